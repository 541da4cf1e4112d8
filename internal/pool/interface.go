package pool

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// BorrowerInfo is the pool's raw view of a borrower: normalized debt,
// pledged collateral (including amounts encumbered by open auctions), and
// the neutral-to-threshold price ratio the pool publishes for the position.
type BorrowerInfo struct {
	T0Debt     sdkmath.Int
	Collateral sdkmath.Int
	NpTpRatio  sdkmath.LegacyDec
}

// Pool defines the interface for the lending pool a leveraged position
// borrows from. Collateral is the vault's share token; the quote asset is
// the vault's underlying. Only the calls the position engine consumes are
// modeled; the pool's own accounting stays behind this interface.
type Pool interface {
	// Address identifies the pool's account, the spender approved during
	// position initialization.
	Address() string

	// DrawDebt borrows amount of the quote asset for the borrower and/or
	// pledges additional collateral, at the price bucket limitIndex. A zero
	// amount with positive collateralToPledge is a pure pledge.
	DrawDebt(borrower string, amount sdkmath.Int, limitIndex uint64, collateralToPledge sdkmath.Int) error

	// RepayDebt repays up to maxRepay of the borrower's debt, pulling the
	// funds from the borrower's quote balance, and optionally pulls
	// collateralToPull back out to recipient. Returns the amount repaid.
	RepayDebt(borrower string, maxRepay, collateralToPull sdkmath.Int, recipient string, limitIndex uint64) (sdkmath.Int, error)

	// RemoveCollateral pulls amount of pledged collateral at index back to
	// the owner. Returns the amount removed.
	RemoveCollateral(owner string, amount sdkmath.Int, index uint64) (sdkmath.Int, error)

	// RemoveQuote withdraws amount of the owner's quote deposit at index.
	// Returns the amount removed.
	RemoveQuote(owner string, amount sdkmath.Int, index uint64) (sdkmath.Int, error)

	// Borrower returns the pool's stored borrower state.
	Borrower(borrower string) (BorrowerInfo, error)

	// TotalDebt returns the pool's current total debt.
	TotalDebt() (sdkmath.Int, error)

	// BorrowRate returns the current annualized borrow interest rate.
	BorrowRate() (sdkmath.LegacyDec, error)

	// Reserves returns the bond escrow and unclaimed reserve amounts held
	// out of the pool's quote balance.
	Reserves() (bondEscrow, unclaimedReserves sdkmath.Int, err error)

	// Inflator returns the pool's last-recorded debt inflator and when it
	// was recorded. Callers derive the pending inflator from it.
	Inflator() (sdkmath.LegacyDec, time.Time, error)

	// PriceIndexForDebt returns the price bucket index at which a given
	// total debt level prices.
	PriceIndexForDebt(debt sdkmath.Int) (uint64, error)

	// QuoteBalance returns the pool's total quote asset balance.
	QuoteBalance() (sdkmath.Int, error)

	// CollateralAsset and QuoteAsset identify the pool's asset pair.
	CollateralAsset() (string, error)
	QuoteAsset() (string, error)
}
