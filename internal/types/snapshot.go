package types

// Snapshotter is implemented by collaborators whose state can be captured
// and rolled back. Position operations snapshot every collaborator that
// supports it on entry and restore all of them when any sub-step fails, so
// an aborted operation leaves no partial effect.
type Snapshotter interface {
	Snapshot() any
	Restore(snap any)
}
