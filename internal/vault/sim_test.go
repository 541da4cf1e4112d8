package vault

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkside-labs/apm/internal/ledger"
)

func newTestVault(t *testing.T) (*ledger.Ledger, *Sim) {
	lg := ledger.New()
	v := NewSim(lg, "vault:custody", "usdc", "vusdc")
	return lg, v
}

func supply(t *testing.T, lg *ledger.Ledger, v *Sim, from string, amount int64) sdkmath.Int {
	lg.Mint(from, "usdc", sdkmath.NewInt(amount))
	require.NoError(t, lg.Approve(from, v.Address(), "usdc"))
	shares, err := v.Supply(from, sdkmath.NewInt(amount))
	require.NoError(t, err)
	return shares
}

func TestSimSupplyInitialSharePrice(t *testing.T) {
	lg, v := newTestVault(t)

	shares := supply(t, lg, v, "alice", 1_000)

	assert.Equal(t, sdkmath.NewInt(1_000), shares, "first supply mints shares one-to-one")
	bal, err := lg.BalanceOf("alice", "vusdc")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_000), bal)
}

func TestSimYieldRaisesSharePrice(t *testing.T) {
	lg, v := newTestVault(t)
	supply(t, lg, v, "alice", 1_000)

	// Yield doubles the vault's assets without minting shares.
	v.AccrueYield(sdkmath.NewInt(1_000))

	value, err := v.ConvertToAssets(sdkmath.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(2_000), value)

	// A new depositor gets half as many shares per asset.
	shares := supply(t, lg, v, "bob", 1_000)
	assert.Equal(t, sdkmath.NewInt(500), shares)
}

func TestSimWithdrawBurnsSharesRoundedUp(t *testing.T) {
	lg, v := newTestVault(t)
	supply(t, lg, v, "alice", 1_000)
	v.AccrueYield(sdkmath.NewInt(500)) // share price 1.5

	// Withdrawing 100 assets costs ceil(100/1.5) = 67 shares.
	burned, err := v.Withdraw(sdkmath.NewInt(100), "alice", "alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(67), burned)

	bal, err := lg.BalanceOf("alice", "usdc")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), bal)
}

func TestSimWithdrawLiquidityCap(t *testing.T) {
	lg, v := newTestVault(t)
	supply(t, lg, v, "alice", 1_000)
	v.SetDeployed(sdkmath.NewInt(900))

	_, err := v.Withdraw(sdkmath.NewInt(101), "alice", "alice")
	require.Error(t, err, "withdrawal beyond liquid assets must fail")

	_, err = v.Withdraw(sdkmath.NewInt(100), "alice", "alice")
	require.NoError(t, err)
}

func TestSimMaxWithdraw(t *testing.T) {
	lg, v := newTestVault(t)
	supply(t, lg, v, "alice", 1_000)
	supply(t, lg, v, "bob", 500)

	// Unconstrained: alice can realize her full value.
	max, err := v.MaxWithdraw("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_000), max)

	// Deployment caps everyone at the liquid remainder.
	v.SetDeployed(sdkmath.NewInt(1_200))
	max, err = v.MaxWithdraw("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(300), max)
}

func TestSimRedeem(t *testing.T) {
	lg, v := newTestVault(t)
	supply(t, lg, v, "alice", 1_000)
	v.AccrueYield(sdkmath.NewInt(1_000))

	assets, err := v.Redeem(sdkmath.NewInt(400), "carol", "alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(800), assets)

	bal, err := lg.BalanceOf("carol", "usdc")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(800), bal)

	remaining, err := v.ShareBalance("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(600), remaining)
}

func TestSimSupplyRequiresAllowance(t *testing.T) {
	lg, v := newTestVault(t)
	lg.Mint("alice", "usdc", sdkmath.NewInt(100))

	_, err := v.Supply("alice", sdkmath.NewInt(100))

	require.Error(t, err, "supply without an allowance grant must fail")
}
