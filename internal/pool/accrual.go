/*

Debt-accrual math shared by the sim pool and the position engine. The engine
must value outstanding debt with the pool's own formulas, never an
approximation, so both sides call these functions.

Interest compounds per second: the pending inflator is the last-recorded
inflator scaled by (1 + rate/secondsPerYear)^elapsedSeconds, which makes it
monotonically non-decreasing in elapsed time. Debt always rounds against the
borrower (ceiling).

*/

package pool

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// SecondsPerYear is the compounding denominator for the per-second rate.
const SecondsPerYear = 365 * 24 * 60 * 60

var secondsPerYearDec = sdkmath.LegacyNewDec(SecondsPerYear)

// PendingInflator derives the current compounding factor from the pool's
// last-recorded inflator, the elapsed time, and the current interest rate.
func PendingInflator(inflator sdkmath.LegacyDec, lastUpdate time.Time, rate sdkmath.LegacyDec, now time.Time) sdkmath.LegacyDec {
	if inflator.IsNil() || !inflator.IsPositive() {
		inflator = sdkmath.LegacyOneDec()
	}
	elapsed := int64(now.Sub(lastUpdate) / time.Second)
	if elapsed <= 0 || rate.IsNil() || !rate.IsPositive() {
		return inflator
	}
	perSecond := sdkmath.LegacyOneDec().Add(rate.Quo(secondsPerYearDec))
	return inflator.Mul(perSecond.Power(uint64(elapsed)))
}

// DebtFromT0 converts normalized debt into current debt: ceil(t0 * inflator).
func DebtFromT0(t0Debt sdkmath.Int, inflator sdkmath.LegacyDec) sdkmath.Int {
	if t0Debt.IsNil() || t0Debt.IsZero() {
		return sdkmath.ZeroInt()
	}
	return sdkmath.LegacyNewDecFromInt(t0Debt).Mul(inflator).Ceil().TruncateInt()
}

// T0FromDebt converts a current-debt amount into normalized debt, rounding
// up so the borrower's obligation is never understated.
func T0FromDebt(debt sdkmath.Int, inflator sdkmath.LegacyDec) sdkmath.Int {
	if debt.IsNil() || debt.IsZero() {
		return sdkmath.ZeroInt()
	}
	if inflator.IsNil() || !inflator.IsPositive() {
		return debt
	}
	return sdkmath.LegacyNewDecFromInt(debt).Quo(inflator).Ceil().TruncateInt()
}

// ThresholdPrice is debt per unit of pledged collateral, the price below
// which the position is undercollateralized.
func ThresholdPrice(debt, collateral sdkmath.Int) sdkmath.LegacyDec {
	if collateral.IsNil() || !collateral.IsPositive() || debt.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return sdkmath.LegacyNewDecFromInt(debt).Quo(sdkmath.LegacyNewDecFromInt(collateral))
}

// NeutralPrice scales the threshold price by the pool's published
// neutral-to-threshold ratio.
func NeutralPrice(thresholdPrice, npTpRatio sdkmath.LegacyDec) sdkmath.LegacyDec {
	if npTpRatio.IsNil() || thresholdPrice.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return thresholdPrice.Mul(npTpRatio)
}
