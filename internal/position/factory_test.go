package position

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkside-labs/apm/internal/ledger"
	"github.com/parkside-labs/apm/internal/types"
	"github.com/parkside-labs/apm/internal/vault"
)

// memStore is an in-memory Store that records every save.
type memStore struct {
	records map[string]types.PositionRecord
	saves   int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]types.PositionRecord)}
}

func (s *memStore) SavePosition(rec types.PositionRecord) error {
	s.records[rec.ID] = rec
	s.saves++
	return nil
}

func (s *memStore) LoadPositions() ([]types.PositionRecord, error) {
	out := make([]types.PositionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func newTestFactory(t *testing.T, store Store) (*Factory, *ledger.Ledger) {
	lg := ledger.New()
	v := vault.NewSim(lg, "vault:custody", usdc, shareDenom)
	return NewFactory(lg, v, nil, nil, store), lg
}

func TestFactoryCreateAndGet(t *testing.T) {
	f, _ := newTestFactory(t, nil)

	pos, err := f.Create(types.VariantRedemption)
	require.NoError(t, err)
	require.NotEmpty(t, pos.ID())
	assert.Equal(t, types.VariantRedemption, pos.Variant())
	assert.False(t, pos.Initialized())

	got, err := f.Get(pos.ID())
	require.NoError(t, err)
	assert.Equal(t, pos.ID(), got.ID())

	_, err = f.Get("no-such-id")
	require.ErrorIs(t, err, types.ErrNotFound)

	assert.Len(t, f.List(), 1)
}

func TestFactoryLeveragedRequiresPool(t *testing.T) {
	f, _ := newTestFactory(t, nil)

	_, err := f.Create(types.VariantLeveraged)

	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestFactoryRePersistsOnConfigChange(t *testing.T) {
	store := newMemStore()
	f, _ := newTestFactory(t, store)

	pos, err := f.Create(types.VariantRedemption)
	require.NoError(t, err)
	require.NoError(t, pos.Initialize(defaultConfig()))
	require.NoError(t, f.Persist(pos))
	savesBefore := store.saves

	// A config-changing operation flows through the factory's Record and
	// lands in the store without an explicit Persist call.
	require.NoError(t, pos.SetThreshold(manager, sdkmath.NewInt(900)))

	assert.Greater(t, store.saves, savesBefore)
	rec := store.records[pos.ID()]
	assert.Equal(t, sdkmath.NewInt(900), rec.Config.Threshold)
}

func TestFactoryRestoreRebuildsRegistry(t *testing.T) {
	store := newMemStore()
	f, _ := newTestFactory(t, store)

	pos, err := f.Create(types.VariantRedemption)
	require.NoError(t, err)
	require.NoError(t, pos.Initialize(defaultConfig()))
	require.NoError(t, f.Persist(pos))

	// A fresh factory over the same store sees the position initialized
	// with its persisted configuration.
	f2, _ := newTestFactory(t, store)
	require.NoError(t, f2.Restore())

	got, err := f2.Get(pos.ID())
	require.NoError(t, err)
	assert.True(t, got.Initialized())
	assert.Equal(t, manager, got.Config().Manager)
}
