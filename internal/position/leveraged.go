/*

Leveraged variant: principal stays invested in the vault, with the shares
pledged to a lending pool as collateral, and top-ups are funded by drawing
pool debt against them. Debt is always valued with the pool's own accrual
formulas so the engine and the pool never disagree on the obligation.

*/

package position

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/parkside-labs/apm/internal/pool"
	"github.com/parkside-labs/apm/internal/transfer"
	"github.com/parkside-labs/apm/internal/types"
	"github.com/parkside-labs/apm/internal/vault"
)

// baselinePriceIndex prices a position's first draw when it has no existing
// debt to anchor a bucket lookup. Matches the pool's mid-range bucket so a
// healthy first draw never trips the limit check.
const baselinePriceIndex uint64 = 4156

// Leveraged is the borrow-against-shares variant of Position.
type Leveraged struct {
	*base
	pool pool.Pool
	now  func() time.Time
}

// NewLeveraged wires a leveraged-variant position against the given pool.
func NewLeveraged(id, addr string, bank transfer.Bank, v vault.Vault, p pool.Pool, recorder types.Recorder) *Leveraged {
	l := &Leveraged{pool: p, now: time.Now}
	l.base = newBase(id, addr, types.VariantLeveraged, bank, v, recorder)
	l.base.strat = l
	l.base.addSnapshotter(p)
	return l
}

// WithClock overrides the position's time source for debt valuation. It must
// match the pool's clock or the two will disagree on accrued interest.
func (l *Leveraged) WithClock(now func() time.Time) *Leveraged {
	l.now = now
	return l
}

func (l *Leveraged) validate(cfg types.PositionConfig) error {
	if cfg.MaxBorrowingRate.IsNil() || !cfg.MaxBorrowingRate.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "max borrowing rate must be positive")
	}
	return nil
}

// approve verifies the pool trades the vault's assets and grants it the
// share and quote approvals that pledging and repaying rely on.
func (l *Leveraged) approve() error {
	shareDenom, err := l.vault.ShareAsset()
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	collateral, err := l.pool.CollateralAsset()
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if collateral != shareDenom {
		return errorsmod.Wrapf(types.ErrInvalidArgument,
			"pool collateral %s does not match vault share asset %s", collateral, shareDenom)
	}
	underlying, err := l.vault.UnderlyingAsset()
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	quote, err := l.pool.QuoteAsset()
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if quote != underlying {
		return errorsmod.Wrapf(types.ErrInvalidArgument,
			"pool quote %s does not match vault underlying %s", quote, underlying)
	}
	if err := l.bank.Approve(l.addr, l.pool.Address(), shareDenom); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if err := l.bank.Approve(l.addr, l.pool.Address(), quote); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	return nil
}

// afterSupply pledges the freshly issued shares to the pool so every
// deposited unit backs future draws.
func (l *Leveraged) afterSupply(shares sdkmath.Int) error {
	if !shares.IsPositive() {
		return nil
	}
	if err := l.pool.DrawDebt(l.addr, sdkmath.ZeroInt(), baselinePriceIndex, shares); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	return nil
}

// capacity is the pool's lendable quote balance: total quote holdings less
// the bond escrow and unclaimed reserves, floored at zero.
func (l *Leveraged) capacity() (sdkmath.Int, error) {
	balance, err := l.pool.QuoteBalance()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	bondEscrow, unclaimed, err := l.pool.Reserves()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	out := balance.Sub(bondEscrow).Sub(unclaimed)
	if out.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return out, nil
}

// triggerExtra refuses to draw when the pool rate has reached the manager's
// ceiling. The comparison is strict: a rate equal to the ceiling blocks.
func (l *Leveraged) triggerExtra() (bool, error) {
	rate, err := l.pool.BorrowRate()
	if err != nil {
		return false, err
	}
	return rate.LT(l.Config().MaxBorrowingRate), nil
}

// currentDebt values the position's outstanding obligation with the pool's
// accrual math applied to the last-recorded inflator.
func (l *Leveraged) currentDebt() (sdkmath.Int, pool.BorrowerInfo, error) {
	info, err := l.pool.Borrower(l.addr)
	if err != nil {
		return sdkmath.ZeroInt(), pool.BorrowerInfo{}, err
	}
	inflator, lastUpdate, err := l.pool.Inflator()
	if err != nil {
		return sdkmath.ZeroInt(), pool.BorrowerInfo{}, err
	}
	rate, err := l.pool.BorrowRate()
	if err != nil {
		return sdkmath.ZeroInt(), pool.BorrowerInfo{}, err
	}
	pending := pool.PendingInflator(inflator, lastUpdate, rate, l.now())
	return pool.DebtFromT0(info.T0Debt, pending), info, nil
}

// drawLimitIndex anchors the draw's bucket limit on existing debt, falling
// back to the baseline index for a first draw.
func (l *Leveraged) drawLimitIndex(debt sdkmath.Int) (uint64, error) {
	if debt.IsZero() {
		return baselinePriceIndex, nil
	}
	return l.pool.PriceIndexForDebt(debt)
}

func (l *Leveraged) topUp(amount sdkmath.Int) error {
	debt, _, err := l.currentDebt()
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	limitIndex, err := l.drawLimitIndex(debt)
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if err := l.pool.DrawDebt(l.addr, amount, limitIndex, sdkmath.ZeroInt()); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	cfg := l.Config()
	if err := l.bank.Send(cfg.TargetAsset, l.addr, cfg.Recipient, amount); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	return nil
}

// withdrawTo pulls enough pledged shares out of the pool to cover amount of
// the underlying and redeems them to the destination. The pool rejects the
// pull if it would leave the remaining debt undercollateralized.
func (l *Leveraged) withdrawTo(amount sdkmath.Int, to string) error {
	shares, err := l.vault.ConvertToShares(amount)
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if !shares.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "withdraw amount rounds to zero shares")
	}
	if _, err := l.pool.RepayDebt(l.addr, sdkmath.ZeroInt(), shares, l.addr, baselinePriceIndex); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if _, err := l.vault.Redeem(shares, to, l.addr); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	return nil
}

// unwind repays the full outstanding debt from the position's loose quote
// balance and pulls back every pledged share. An insufficient loose balance
// surfaces as a failed repayment pull.
func (l *Leveraged) unwind() error {
	debt, info, err := l.currentDebt()
	if err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	if debt.IsZero() && info.Collateral.IsZero() {
		return nil
	}
	if _, err := l.pool.RepayDebt(l.addr, debt, info.Collateral, l.addr, baselinePriceIndex); err != nil {
		return errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	return nil
}

// pledgedCollateral reports the shares currently pledged to the pool, used
// by the base's emptiness check.
func (l *Leveraged) pledgedCollateral() sdkmath.Int {
	info, err := l.pool.Borrower(l.addr)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return info.Collateral
}

// RepayDebt lets anyone pay down the position's debt with their own quote
// tokens. Any excess over the outstanding obligation is refunded to the
// caller.
func (l *Leveraged) RepayDebt(caller string, amount sdkmath.Int) error {
	if err := l.enter(); err != nil {
		return err
	}
	defer l.exit()

	if err := l.requireInitialized(); err != nil {
		return err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "repay amount must be positive")
	}
	cfg := l.Config()

	repaid := sdkmath.ZeroInt()
	err := l.atomically(func() error {
		if err := l.bank.Pull(cfg.TargetAsset, caller, l.addr, amount); err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		var err error
		repaid, err = l.pool.RepayDebt(l.addr, amount, sdkmath.ZeroInt(), l.addr, baselinePriceIndex)
		if err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		if excess := amount.Sub(repaid); excess.IsPositive() {
			if err := l.bank.Send(cfg.TargetAsset, l.addr, caller, excess); err != nil {
				return errorsmod.Wrap(types.ErrExternalCall, err.Error())
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.emit(types.Event{Kind: types.EventDebtRepaid, Actor: caller, Amount: repaid, Requested: amount})
	l.log.Info().Str("payer", caller).Str("repaid", repaid.String()).Msg("Debt repaid")
	return nil
}

// SetMaxBorrowingRate replaces the annualized rate ceiling for new draws.
func (l *Leveraged) SetMaxBorrowingRate(caller string, rate sdkmath.LegacyDec) error {
	if err := l.enter(); err != nil {
		return err
	}
	defer l.exit()

	if err := l.requireManager(caller); err != nil {
		return err
	}
	if rate.IsNil() || !rate.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "max borrowing rate must be positive")
	}

	l.cfgMu.Lock()
	l.cfg.MaxBorrowingRate = rate
	l.cfgMu.Unlock()

	l.emit(types.Event{Kind: types.EventRateUpdated, Actor: caller})
	return nil
}

// RepayWithPull is a manager escape hatch exposing the pool's combined
// repay-and-pull call directly, with the position's loose quote balance
// funding the repayment and pulled collateral landing back at the position.
func (l *Leveraged) RepayWithPull(caller string, maxRepay, collateralToPull sdkmath.Int, limitIndex uint64) error {
	if err := l.enter(); err != nil {
		return err
	}
	defer l.exit()

	if err := l.requireManager(caller); err != nil {
		return err
	}

	repaid := sdkmath.ZeroInt()
	err := l.atomically(func() error {
		var err error
		repaid, err = l.pool.RepayDebt(l.addr, maxRepay, collateralToPull, l.addr, limitIndex)
		if err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		return nil
	})
	if err != nil {
		return err
	}

	if repaid.IsPositive() {
		l.emit(types.Event{Kind: types.EventDebtRepaid, Actor: caller, Amount: repaid, Requested: maxRepay})
	}
	return nil
}

// RemoveCollateral is a manager escape hatch that pulls pledged shares back
// to the position, where a later withdrawal or sweep can reach them.
func (l *Leveraged) RemoveCollateral(caller string, amount sdkmath.Int, index uint64) error {
	if err := l.enter(); err != nil {
		return err
	}
	defer l.exit()

	if err := l.requireManager(caller); err != nil {
		return err
	}
	return l.atomically(func() error {
		if _, err := l.pool.RemoveCollateral(l.addr, amount, index); err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		return nil
	})
}

// RemoveQuote is a manager escape hatch that withdraws a stray lender
// deposit held by the position back to its loose balance.
func (l *Leveraged) RemoveQuote(caller string, amount sdkmath.Int, index uint64) error {
	if err := l.enter(); err != nil {
		return err
	}
	defer l.exit()

	if err := l.requireManager(caller); err != nil {
		return err
	}
	return l.atomically(func() error {
		if _, err := l.pool.RemoveQuote(l.addr, amount, index); err != nil {
			return errorsmod.Wrap(types.ErrExternalCall, err.Error())
		}
		return nil
	})
}

// DebtPosition reports the live obligation: current debt, pledged
// collateral, and the pool's risk prices for the borrower.
func (l *Leveraged) DebtPosition() (types.DebtPosition, error) {
	debt, info, err := l.currentDebt()
	if err != nil {
		return types.DebtPosition{}, errorsmod.Wrap(types.ErrExternalCall, err.Error())
	}
	tp := pool.ThresholdPrice(debt, info.Collateral)
	return types.DebtPosition{
		Debt:           debt,
		Collateral:     info.Collateral,
		NeutralPrice:   pool.NeutralPrice(tp, info.NpTpRatio),
		ThresholdPrice: tp,
	}, nil
}

var _ Position = (*Leveraged)(nil)
