/*

This file defines the asset transfer capability the position engine is built
against. The engine never implements token-compatibility shims itself; a Bank
implementation is responsible for both standard and legacy transfer paths as
well as the native currency. In sim mode the in-process ledger implements
Bank; in live mode the REST gateway client does.

*/

package transfer

import (
	sdkmath "cosmossdk.io/math"
)

// NativeDenom is the reserved denom for the native currency. Sweep calls use
// an empty token identifier to select it.
const NativeDenom = "native"

// Bank moves fungible assets and the native currency between accounts and
// answers balance queries. Every method either fully succeeds or returns an
// error with no effect.
type Bank interface {
	// BalanceOf returns the balance of denom held by account.
	BalanceOf(account, denom string) (sdkmath.Int, error)

	// Send transfers amount of denom from one account to another.
	Send(denom, from, to string, amount sdkmath.Int) error

	// SendNative transfers amount of the native currency.
	SendNative(from, to string, amount sdkmath.Int) error

	// Pull moves amount of denom from owner to spender, relying on a prior
	// Approve grant from owner to spender.
	Pull(denom, owner, spender string, amount sdkmath.Int) error

	// Approve grants spender an unlimited allowance over owner's denom
	// balance, so subsequent Pull calls need no per-call approval step.
	Approve(owner, spender, denom string) error
}
