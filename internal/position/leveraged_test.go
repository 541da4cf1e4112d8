package position

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkside-labs/apm/internal/ledger"
	"github.com/parkside-labs/apm/internal/pool"
	"github.com/parkside-labs/apm/internal/types"
	"github.com/parkside-labs/apm/internal/vault"
)

type leveragedFixture struct {
	lg     *ledger.Ledger
	vault  *vault.Sim
	pool   *pool.Sim
	events *eventCapture
	pos    *Leveraged
	clock  time.Time
}

// newLeveragedFixture builds a sim stack with a frozen clock so no interest
// accrues unless a test advances time explicitly.
func newLeveragedFixture(t *testing.T) *leveragedFixture {
	f := &leveragedFixture{
		lg:    ledger.New(),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.vault = vault.NewSim(f.lg, "vault:custody", usdc, shareDenom)
	f.pool = pool.NewSim(f.lg, "pool:custody", shareDenom, usdc).
		WithClock(func() time.Time { return f.clock })
	f.events = &eventCapture{}
	f.pos = NewLeveraged("pos-l", "apm:pos-l", f.lg, f.vault, f.pool, f.events).
		WithClock(func() time.Time { return f.clock })

	// Lender liquidity the position can borrow against.
	f.pool.AddQuote("lender", sdkmath.NewInt(10_000))
	return f
}

func leveragedConfig() types.PositionConfig {
	cfg := defaultConfig()
	cfg.MaxBorrowingRate = sdkmath.LegacyMustNewDecFromStr("0.10")
	return cfg
}

func (f *leveragedFixture) fund(t *testing.T, account string, amount int64) {
	f.lg.Mint(account, usdc, sdkmath.NewInt(amount))
	require.NoError(t, f.lg.Approve(account, f.pos.Address(), usdc))
}

func (f *leveragedFixture) balance(t *testing.T, account, denom string) sdkmath.Int {
	bal, err := f.lg.BalanceOf(account, denom)
	require.NoError(t, err)
	return bal
}

func (f *leveragedFixture) setup(t *testing.T, depositAmount int64) {
	require.NoError(t, f.pos.Initialize(leveragedConfig()))
	f.fund(t, manager, depositAmount)
	require.NoError(t, f.pos.Deposit(manager, sdkmath.NewInt(depositAmount)))
}

func TestLeveragedInitializeRequiresRateCeiling(t *testing.T) {
	f := newLeveragedFixture(t)
	cfg := leveragedConfig()
	cfg.MaxBorrowingRate = sdkmath.LegacyDec{}

	err := f.pos.Initialize(cfg)

	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestLeveragedInitializeAssetMismatch(t *testing.T) {
	lg := ledger.New()
	v := vault.NewSim(lg, "vault:custody", usdc, shareDenom)
	// Pool quoted in a different asset than the vault's underlying.
	p := pool.NewSim(lg, "pool:custody", shareDenom, "dai")
	pos := NewLeveraged("pos-l", "apm:pos-l", lg, v, p, &eventCapture{})

	err := pos.Initialize(leveragedConfig())

	require.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.False(t, pos.Initialized())

	// The vault approval granted before the asset check must have been
	// rolled back with the rest of the failed initialization.
	lg.Mint(pos.Address(), usdc, sdkmath.NewInt(100))
	require.Error(t, lg.Pull(usdc, pos.Address(), v.Address(), sdkmath.NewInt(100)),
		"no allowance may survive a failed initialization")
}

func TestLeveragedDepositPledgesShares(t *testing.T) {
	f := newLeveragedFixture(t)

	// ACT
	f.setup(t, 1_000)

	// ASSERT: no loose shares remain; everything is pool collateral.
	assert.True(t, f.balance(t, f.pos.Address(), shareDenom).IsZero())

	info, err := f.pool.Borrower(f.pos.Address())
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_000), info.Collateral)
	assert.True(t, info.T0Debt.IsZero())

	underlying, err := f.pos.BalanceOfUnderlying()
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_000), underlying, "pledged shares still count as position value")
}

func TestLeveragedRebalanceDrawsDebt(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)
	f.lg.Mint(recipient, usdc, sdkmath.NewInt(100)) // shortfall 400

	triggered, err := f.pos.RebalanceTrigger()
	require.NoError(t, err)
	require.True(t, triggered)

	// ACT
	require.NoError(t, f.pos.Rebalance(stranger))

	// ASSERT: recipient topped up to threshold, funded by new debt.
	assert.Equal(t, sdkmath.NewInt(500), f.balance(t, recipient, usdc))
	assert.True(t, f.balance(t, f.pos.Address(), usdc).IsZero(), "no borrowed funds may linger at the position")

	debt, err := f.pos.DebtPosition()
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(400), debt.Debt)
	assert.Equal(t, sdkmath.NewInt(1_000), debt.Collateral)
}

func TestLeveragedRateCeilingBlocksDraw(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)
	f.lg.Mint(recipient, usdc, sdkmath.NewInt(100))

	// A rate equal to the ceiling blocks: the comparison is strict.
	f.pool.SetRate(sdkmath.LegacyMustNewDecFromStr("0.10"))

	triggered, err := f.pos.RebalanceTrigger()
	require.NoError(t, err)
	assert.False(t, triggered)
	require.ErrorIs(t, f.pos.Rebalance(stranger), types.ErrTriggerNotMet)

	// Above the ceiling blocks too.
	f.pool.SetRate(sdkmath.LegacyMustNewDecFromStr("0.15"))
	triggered, err = f.pos.RebalanceTrigger()
	require.NoError(t, err)
	assert.False(t, triggered)

	// Back below the ceiling the draw goes through.
	f.pool.SetRate(sdkmath.LegacyMustNewDecFromStr("0.05"))
	require.NoError(t, f.pos.Rebalance(stranger))
	assert.Equal(t, sdkmath.NewInt(500), f.balance(t, recipient, usdc))
}

func TestLeveragedCapacityLimitedByReserves(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)
	f.lg.Mint(recipient, usdc, sdkmath.NewInt(100)) // shortfall 400

	// Escrow and unclaimed reserves leave only 150 lendable.
	f.pool.SetReserves(sdkmath.NewInt(9_800), sdkmath.NewInt(50))

	// ACT
	require.NoError(t, f.pos.Rebalance(stranger))

	// ASSERT
	assert.Equal(t, sdkmath.NewInt(250), f.balance(t, recipient, usdc))
	ev := f.events.last(t)
	assert.Equal(t, sdkmath.NewInt(150), ev.Amount)
	assert.Equal(t, sdkmath.NewInt(400), ev.Requested)

	// The draw consumed the last lendable quote, so even though the
	// recipient is still short the trigger reports false.
	triggered, err := f.pos.RebalanceTrigger()
	require.NoError(t, err)
	assert.False(t, triggered, "trigger must clear once capacity is exhausted")

	// Freeing reserves restores capacity; the unmet shortfall re-arms it.
	f.pool.SetReserves(sdkmath.NewInt(9_000), sdkmath.NewInt(50))
	triggered, err = f.pos.RebalanceTrigger()
	require.NoError(t, err)
	assert.True(t, triggered, "trigger must re-arm while the shortfall persists and capacity is nonzero")
}

func TestLeveragedRepayDebt(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)
	f.lg.Mint(recipient, usdc, sdkmath.NewInt(100))
	require.NoError(t, f.pos.Rebalance(stranger)) // debt 400

	// A third party repays with more than the outstanding debt.
	f.fund(t, "bob", 600)

	// ACT
	require.NoError(t, f.pos.RepayDebt("bob", sdkmath.NewInt(600)))

	// ASSERT: 400 repaid, 200 refunded.
	debt, err := f.pos.DebtPosition()
	require.NoError(t, err)
	assert.True(t, debt.Debt.IsZero())
	assert.Equal(t, sdkmath.NewInt(200), f.balance(t, "bob", usdc))

	ev := f.events.last(t)
	assert.Equal(t, types.EventDebtRepaid, ev.Kind)
	assert.Equal(t, sdkmath.NewInt(400), ev.Amount)
	assert.Equal(t, sdkmath.NewInt(600), ev.Requested)
}

func TestLeveragedDebtAccrues(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)
	f.lg.Mint(recipient, usdc, sdkmath.NewInt(100))
	require.NoError(t, f.pos.Rebalance(stranger)) // debt 400 at rate 0.05

	before, err := f.pos.DebtPosition()
	require.NoError(t, err)

	// Half a year passes.
	f.clock = f.clock.Add(time.Duration(pool.SecondsPerYear/2) * time.Second)

	after, err := f.pos.DebtPosition()
	require.NoError(t, err)
	assert.True(t, after.Debt.GT(before.Debt), "debt must grow with elapsed time")
	assert.True(t, after.ThresholdPrice.GT(before.ThresholdPrice))
	assert.True(t, after.NeutralPrice.GT(after.ThresholdPrice), "neutral price sits above threshold price")
}

func TestLeveragedWithdrawPullsCollateral(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)

	// ACT: with zero debt any pull is allowed.
	require.NoError(t, f.pos.Withdraw(manager, sdkmath.NewInt(300)))

	// ASSERT
	assert.Equal(t, sdkmath.NewInt(300), f.balance(t, manager, usdc))
	info, err := f.pool.Borrower(f.pos.Address())
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(700), info.Collateral)
}

func TestLeveragedWithdrawBlockedByDebt(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)
	f.lg.Mint(recipient, usdc, sdkmath.NewInt(100))
	require.NoError(t, f.pos.Rebalance(stranger)) // debt 400 against 1000 collateral

	// Pulling 700 would leave 300 collateral under 400 debt.
	err := f.pos.Withdraw(manager, sdkmath.NewInt(700))

	require.ErrorIs(t, err, types.ErrExternalCall)
	info, infoErr := f.pool.Borrower(f.pos.Address())
	require.NoError(t, infoErr)
	assert.Equal(t, sdkmath.NewInt(1_000), info.Collateral, "failed withdrawal must leave collateral untouched")
}

func TestLeveragedWithdrawAllRepaysDebt(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)
	f.lg.Mint(recipient, usdc, sdkmath.NewInt(100))
	require.NoError(t, f.pos.Rebalance(stranger)) // debt 400

	// The manager parks repayment funds at the position first.
	f.lg.Mint(f.pos.Address(), usdc, sdkmath.NewInt(400))

	// ACT
	require.NoError(t, f.pos.WithdrawAll(manager))

	// ASSERT: debt cleared, all collateral redeemed to the manager.
	debt, err := f.pos.DebtPosition()
	require.NoError(t, err)
	assert.True(t, debt.Debt.IsZero())
	assert.True(t, debt.Collateral.IsZero())
	assert.Equal(t, sdkmath.NewInt(1_000), f.balance(t, manager, usdc))
	assert.True(t, f.balance(t, f.pos.Address(), shareDenom).IsZero())
}

func TestLeveragedWithdrawAllFailsWithoutRepaymentFunds(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)
	f.lg.Mint(recipient, usdc, sdkmath.NewInt(100))
	require.NoError(t, f.pos.Rebalance(stranger)) // debt 400, no loose quote

	// ACT
	err := f.pos.WithdrawAll(manager)

	// ASSERT: the operation fails whole; nothing moved.
	require.ErrorIs(t, err, types.ErrExternalCall)
	info, infoErr := f.pool.Borrower(f.pos.Address())
	require.NoError(t, infoErr)
	assert.Equal(t, sdkmath.NewInt(1_000), info.Collateral)
	assert.True(t, f.balance(t, manager, usdc).IsZero())
}

func TestLeveragedSetMaxBorrowingRate(t *testing.T) {
	f := newLeveragedFixture(t)
	require.NoError(t, f.pos.Initialize(leveragedConfig()))

	require.ErrorIs(t, f.pos.SetMaxBorrowingRate(stranger, sdkmath.LegacyOneDec()), types.ErrUnauthorized)
	require.ErrorIs(t, f.pos.SetMaxBorrowingRate(manager, sdkmath.LegacyZeroDec()), types.ErrInvalidArgument)

	newCeiling := sdkmath.LegacyMustNewDecFromStr("0.25")
	require.NoError(t, f.pos.SetMaxBorrowingRate(manager, newCeiling))
	assert.Equal(t, newCeiling, f.pos.Config().MaxBorrowingRate)
}

func TestLeveragedRepayWithPull(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)
	f.lg.Mint(recipient, usdc, sdkmath.NewInt(100))
	require.NoError(t, f.pos.Rebalance(stranger)) // debt 400

	require.ErrorIs(t, f.pos.RepayWithPull(stranger, sdkmath.NewInt(400), sdkmath.ZeroInt(), 0), types.ErrUnauthorized)

	// Fund the position and clear the debt while pulling all collateral.
	f.lg.Mint(f.pos.Address(), usdc, sdkmath.NewInt(400))

	// ACT
	require.NoError(t, f.pos.RepayWithPull(manager, sdkmath.NewInt(400), sdkmath.NewInt(1_000), 0))

	// ASSERT: shares are loose at the position again.
	debt, err := f.pos.DebtPosition()
	require.NoError(t, err)
	assert.True(t, debt.Debt.IsZero())
	assert.True(t, debt.Collateral.IsZero())
	assert.Equal(t, sdkmath.NewInt(1_000), f.balance(t, f.pos.Address(), shareDenom))

	ev := f.events.last(t)
	assert.Equal(t, types.EventDebtRepaid, ev.Kind)
	assert.Equal(t, sdkmath.NewInt(400), ev.Amount)
}

func TestLeveragedRemoveQuoteEscapeHatch(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)

	// A stray lender deposit credited to the position's account.
	f.pool.AddQuote(f.pos.Address(), sdkmath.NewInt(200))

	require.ErrorIs(t, f.pos.RemoveQuote(stranger, sdkmath.NewInt(200), 0), types.ErrUnauthorized)

	// ACT
	require.NoError(t, f.pos.RemoveQuote(manager, sdkmath.NewInt(200), 0))

	// ASSERT: the quote sits loose at the position again.
	assert.Equal(t, sdkmath.NewInt(200), f.balance(t, f.pos.Address(), usdc))

	_, err := f.pool.RemoveQuote(f.pos.Address(), sdkmath.NewInt(1), 0)
	require.Error(t, err, "the deposit must be fully drained")
}

func TestLeveragedRemoveCollateralEscapeHatch(t *testing.T) {
	f := newLeveragedFixture(t)
	f.setup(t, 1_000)

	require.ErrorIs(t, f.pos.RemoveCollateral(stranger, sdkmath.NewInt(100), 0), types.ErrUnauthorized)

	// ACT
	require.NoError(t, f.pos.RemoveCollateral(manager, sdkmath.NewInt(100), 0))

	// ASSERT: the shares come back loose to the position.
	assert.Equal(t, sdkmath.NewInt(100), f.balance(t, f.pos.Address(), shareDenom))
	info, err := f.pool.Borrower(f.pos.Address())
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(900), info.Collateral)
}
