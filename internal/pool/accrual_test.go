package pool

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingInflatorNoElapsedTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inflator := sdkmath.LegacyMustNewDecFromStr("1.5")
	rate := sdkmath.LegacyMustNewDecFromStr("0.05")

	assert.Equal(t, inflator, PendingInflator(inflator, now, rate, now))
	// Time going backwards must not shrink the inflator.
	assert.Equal(t, inflator, PendingInflator(inflator, now, rate, now.Add(-time.Hour)))
}

func TestPendingInflatorCompounds(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	one := sdkmath.LegacyOneDec()
	rate := sdkmath.LegacyMustNewDecFromStr("0.05")

	halfYear := PendingInflator(one, start, rate, start.Add(time.Duration(SecondsPerYear/2)*time.Second))
	fullYear := PendingInflator(one, start, rate, start.Add(time.Duration(SecondsPerYear)*time.Second))

	assert.True(t, halfYear.GT(one))
	assert.True(t, fullYear.GT(halfYear), "inflator must be monotonic in elapsed time")

	// Per-second compounding of 5% over a year approximates e^0.05.
	expected := sdkmath.LegacyMustNewDecFromStr("1.0512")
	diff := fullYear.Sub(expected).Abs()
	assert.True(t, diff.LT(sdkmath.LegacyMustNewDecFromStr("0.0005")),
		"one year at 5%% should land near e^0.05, got %s", fullYear)
}

func TestPendingInflatorZeroRate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inflator := sdkmath.LegacyMustNewDecFromStr("1.2")

	out := PendingInflator(inflator, start, sdkmath.LegacyZeroDec(), start.Add(24*time.Hour))

	assert.Equal(t, inflator, out)
}

func TestDebtFromT0RoundsUp(t *testing.T) {
	inflator := sdkmath.LegacyMustNewDecFromStr("1.000000000000000001")

	// Any fractional interest rounds against the borrower.
	debt := DebtFromT0(sdkmath.NewInt(100), inflator)
	assert.Equal(t, sdkmath.NewInt(101), debt)

	assert.True(t, DebtFromT0(sdkmath.ZeroInt(), inflator).IsZero())
}

func TestT0FromDebtRoundsUp(t *testing.T) {
	inflator := sdkmath.LegacyMustNewDecFromStr("1.5")

	// 100/1.5 = 66.67, rounded up so the obligation is never understated.
	t0 := T0FromDebt(sdkmath.NewInt(100), inflator)
	assert.Equal(t, sdkmath.NewInt(67), t0)

	// Degenerate inflator falls back to identity.
	assert.Equal(t, sdkmath.NewInt(100), T0FromDebt(sdkmath.NewInt(100), sdkmath.LegacyDec{}))
}

func TestRoundTripNeverUnderstatesDebt(t *testing.T) {
	inflator := sdkmath.LegacyMustNewDecFromStr("1.037")
	for _, amount := range []int64{1, 7, 99, 12345, 1_000_000} {
		t0 := T0FromDebt(sdkmath.NewInt(amount), inflator)
		back := DebtFromT0(t0, inflator)
		require.True(t, back.GTE(sdkmath.NewInt(amount)),
			"draw of %d priced back to %s", amount, back)
	}
}

func TestThresholdAndNeutralPrice(t *testing.T) {
	debt := sdkmath.NewInt(400)
	collateral := sdkmath.NewInt(1_000)

	tp := ThresholdPrice(debt, collateral)
	assert.Equal(t, sdkmath.LegacyMustNewDecFromStr("0.4"), tp)

	np := NeutralPrice(tp, DefaultNpTpRatio)
	assert.Equal(t, sdkmath.LegacyMustNewDecFromStr("0.416"), np)

	// No collateral means no meaningful price.
	assert.True(t, ThresholdPrice(debt, sdkmath.ZeroInt()).IsZero())
}
