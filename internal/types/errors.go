package types

import (
	errorsmod "cosmossdk.io/errors"
)

const codespace = "apm"

// Position error taxonomy. Collaborator failures are wrapped with
// ErrExternalCall and propagated verbatim; nothing is masked or retried.
var (
	ErrUnauthorized       = errorsmod.Register(codespace, 2, "caller is not the position manager")
	ErrAlreadyInitialized = errorsmod.Register(codespace, 3, "position already initialized")
	ErrInvalidArgument    = errorsmod.Register(codespace, 4, "invalid argument")
	ErrReentrancy         = errorsmod.Register(codespace, 5, "reentrant call on position")
	ErrTriggerNotMet      = errorsmod.Register(codespace, 6, "rebalance trigger not met")
	ErrExternalCall       = errorsmod.Register(codespace, 7, "external call failed")
	ErrNotFound           = errorsmod.Register(codespace, 8, "position not found")
)
