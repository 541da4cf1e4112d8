package keeper

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkside-labs/apm/internal/ledger"
	"github.com/parkside-labs/apm/internal/pool"
	"github.com/parkside-labs/apm/internal/position"
	"github.com/parkside-labs/apm/internal/types"
	"github.com/parkside-labs/apm/internal/vault"
)

func setupKeeperTest(t *testing.T) (*ledger.Ledger, *position.Factory, *Keeper) {
	lg := ledger.New()
	v := vault.NewSim(lg, "vault:custody", "usdc", "vusdc")
	p := pool.NewSim(lg, "pool:custody", "vusdc", "usdc")
	factory := position.NewFactory(lg, v, p, nil, nil)

	k, err := NewKeeper(Config{Factory: factory, Account: "keeper"})
	require.NoError(t, err)
	return lg, factory, k
}

func TestNewKeeperValidation(t *testing.T) {
	_, err := NewKeeper(Config{Factory: nil, Account: "keeper"})
	require.Error(t, err)

	_, err = NewKeeper(Config{Factory: position.NewFactory(nil, nil, nil, nil, nil), Account: ""})
	require.Error(t, err)
}

func TestRunCycleRebalancesNeedyPositions(t *testing.T) {
	lg, factory, k := setupKeeperTest(t)

	pos, err := factory.Create(types.VariantRedemption)
	require.NoError(t, err)
	require.NoError(t, pos.Initialize(types.PositionConfig{
		Manager:   "alice",
		Recipient: "carol",
		Threshold: sdkmath.NewInt(500),
	}))

	lg.Mint("alice", "usdc", sdkmath.NewInt(1_000))
	require.NoError(t, lg.Approve("alice", pos.Address(), "usdc"))
	require.NoError(t, pos.Deposit("alice", sdkmath.NewInt(1_000)))
	lg.Mint("carol", "usdc", sdkmath.NewInt(100))

	// ACT
	k.RunCycle(context.Background())

	// ASSERT: the cycle topped carol up to her threshold.
	bal, err := lg.BalanceOf("carol", "usdc")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(500), bal)

	// A second cycle finds nothing to do and must not move funds.
	k.RunCycle(context.Background())
	bal, err = lg.BalanceOf("carol", "usdc")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(500), bal)
}

func TestRunCycleSkipsUninitializedPositions(t *testing.T) {
	_, factory, k := setupKeeperTest(t)

	_, err := factory.Create(types.VariantRedemption)
	require.NoError(t, err)

	// An uninitialized position must not abort the cycle.
	k.RunCycle(context.Background())
}

func TestRunCycleHonorsCancellation(t *testing.T) {
	_, factory, k := setupKeeperTest(t)
	for i := 0; i < 3; i++ {
		_, err := factory.Create(types.VariantRedemption)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context returns promptly without touching positions.
	k.RunCycle(ctx)
}
