/*

This file contains the types describing a managed top-up position: its
configuration, its variant, and the derived debt view for leveraged positions.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// Variant selects which rebalancing strategy a position runs.
type Variant string

const (
	// VariantRedemption tops the recipient up by redeeming vault principal.
	VariantRedemption Variant = "redemption"
	// VariantLeveraged tops the recipient up by borrowing against pledged
	// vault shares, leaving the principal invested.
	VariantLeveraged Variant = "leveraged"
)

// PositionConfig is the only mutable state a position owns. It is written
// once by Initialize and afterwards only by the manager. All position
// economics (balances, debt, capacity) are re-derived from live adapter
// queries on every call, never cached here.
type PositionConfig struct {
	// Manager is the sole account authorized for privileged operations.
	// Set exactly once, immutable afterward.
	Manager string `json:"manager"`

	// Recipient is the account whose target-asset balance is monitored
	// against Threshold.
	Recipient string `json:"recipient"`

	// Threshold is the minimum desired balance of the target asset at
	// Recipient, in base units.
	Threshold sdkmath.Int `json:"threshold"`

	// TargetAsset is derived from the vault's underlying asset at
	// initialization time.
	TargetAsset string `json:"target_asset"`

	// MaxBorrowingRate is the annualized pool rate ceiling above which the
	// leveraged variant refuses to draw new debt. Unset for the redemption
	// variant.
	MaxBorrowingRate sdkmath.LegacyDec `json:"max_borrowing_rate,omitempty"`
}

// DebtPosition is the live view of a leveraged position's obligation. It is
// recomputed from pool queries on every call and never stored.
type DebtPosition struct {
	// Debt is the outstanding borrowed amount, ceil(t0Debt * pendingInflator).
	Debt sdkmath.Int `json:"debt"`

	// Collateral is the pledged vault-share amount, including shares
	// encumbered by open pool auctions.
	Collateral sdkmath.Int `json:"collateral"`

	// NeutralPrice and ThresholdPrice are the pool's published risk metrics
	// for the borrower, replicated from the pool's own formulas.
	NeutralPrice   sdkmath.LegacyDec `json:"neutral_price"`
	ThresholdPrice sdkmath.LegacyDec `json:"threshold_price"`
}

// PositionRecord is the persisted form of a position: identity plus
// configuration. Used to restore the registry across restarts.
type PositionRecord struct {
	ID      string         `json:"id"`
	Variant Variant        `json:"variant"`
	Config  PositionConfig `json:"config"`
}
