/*

Factory and registry for positions. The factory mints position identities,
wires each position to the bank, vault and pool adapters it was created
with, and keeps the in-memory registry the keeper and web layers iterate.
Persistence is delegated to an optional store so the registry can be rebuilt
across restarts.

*/

package position

import (
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"

	"github.com/parkside-labs/apm/internal/logger"
	"github.com/parkside-labs/apm/internal/pool"
	"github.com/parkside-labs/apm/internal/transfer"
	"github.com/parkside-labs/apm/internal/types"
	"github.com/parkside-labs/apm/internal/vault"
)

// Store persists position records across restarts. Implementations must
// tolerate being handed a record they already hold.
type Store interface {
	SavePosition(rec types.PositionRecord) error
	LoadPositions() ([]types.PositionRecord, error)
}

// Factory creates and tracks positions over one bank/vault/pool wiring.
type Factory struct {
	mu        sync.RWMutex
	bank      transfer.Bank
	vault     vault.Vault
	pool      pool.Pool
	recorder  types.Recorder
	store     Store
	positions map[string]Position
}

// NewFactory wires a factory. pool may be nil when only the redemption
// variant will be created; store and recorder may be nil.
func NewFactory(bank transfer.Bank, v vault.Vault, p pool.Pool, recorder types.Recorder, store Store) *Factory {
	return &Factory{
		bank:      bank,
		vault:     v,
		pool:      p,
		recorder:  recorder,
		store:     store,
		positions: make(map[string]Position),
	}
}

// accountFor derives the position's holding account from its identity.
func accountFor(id string) string {
	return "apm:" + id
}

// Create mints a new uninitialized position of the given variant and
// registers it. The caller initializes it separately.
func (f *Factory) Create(variant types.Variant) (Position, error) {
	id := uuid.New().String()
	pos, err := f.build(id, variant)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.positions[id] = pos
	f.mu.Unlock()

	log := logger.GetForComponent("factory")
	log.Info().
		Str("position_id", id).
		Str("variant", string(variant)).
		Msg("Position created")
	return pos, nil
}

func (f *Factory) build(id string, variant types.Variant) (Position, error) {
	// The factory sits between positions and the recorder so it can
	// re-persist a record whenever a config-changing event fires.
	switch variant {
	case types.VariantRedemption:
		return NewRedemption(id, accountFor(id), f.bank, f.vault, f), nil
	case types.VariantLeveraged:
		if f.pool == nil {
			return nil, errorsmod.Wrap(types.ErrInvalidArgument, "no pool configured for the leveraged variant")
		}
		return NewLeveraged(id, accountFor(id), f.bank, f.vault, f.pool, f), nil
	default:
		return nil, errorsmod.Wrapf(types.ErrInvalidArgument, "unknown variant %q", variant)
	}
}

// Record forwards the event to the configured recorder and keeps the
// persisted record in sync when the position's configuration changed.
func (f *Factory) Record(ev types.Event) {
	if f.recorder != nil {
		f.recorder.Record(ev)
	}
	switch ev.Kind {
	case types.EventThresholdUpdated, types.EventRecipientUpdated, types.EventRateUpdated:
	default:
		return
	}
	pos, err := f.Get(ev.PositionID)
	if err != nil {
		return
	}
	if err := f.Persist(pos); err != nil {
		log := logger.GetForComponent("factory")
		log.Error().Err(err).
			Str("position_id", ev.PositionID).
			Msg("Failed to re-persist position after config change")
	}
}

var _ types.Recorder = (*Factory)(nil)

// Get returns the position with the given id.
func (f *Factory) Get(id string) (Position, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	pos, ok := f.positions[id]
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrNotFound, "position %s", id)
	}
	return pos, nil
}

// List returns all registered positions in stable id order.
func (f *Factory) List() []Position {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.positions))
	for id := range f.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.positions[id])
	}
	return out
}

// Persist writes the position's current record to the store, if one is
// configured.
func (f *Factory) Persist(pos Position) error {
	if f.store == nil {
		return nil
	}
	return f.store.SavePosition(types.PositionRecord{
		ID:      pos.ID(),
		Variant: pos.Variant(),
		Config:  pos.Config(),
	})
}

// Restore rebuilds the registry from the store. Records for initialized
// positions are re-initialized with their persisted configuration; the
// target asset is re-derived and approvals re-granted along the way.
func (f *Factory) Restore() error {
	if f.store == nil {
		return nil
	}
	records, err := f.store.LoadPositions()
	if err != nil {
		return err
	}
	log := logger.GetForComponent("factory")
	for _, rec := range records {
		pos, err := f.build(rec.ID, rec.Variant)
		if err != nil {
			return errorsmod.Wrapf(err, "restoring position %s", rec.ID)
		}
		if rec.Config.Manager != "" {
			if err := pos.Initialize(rec.Config); err != nil {
				return errorsmod.Wrapf(err, "restoring position %s", rec.ID)
			}
		}
		f.mu.Lock()
		f.positions[rec.ID] = pos
		f.mu.Unlock()
		log.Info().Str("position_id", rec.ID).Str("variant", string(rec.Variant)).Msg("Position restored")
	}
	return nil
}
