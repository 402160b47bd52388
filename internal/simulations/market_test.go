package simulations

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/avs/internal/types"
)

func TestMarketIsSeedDeterministic(t *testing.T) {
	a, err := NewMarket(DefaultMarketConfig(42)).NewChallenge()
	require.NoError(t, err)
	b, err := NewMarket(DefaultMarketConfig(42)).NewChallenge()
	require.NoError(t, err)

	assert.Equal(t, a.ResourceKeys(), b.ResourceKeys())
	assert.Equal(t, a.TotalAssets.String(), b.TotalAssets.String())
	for _, key := range a.ResourceKeys() {
		assert.Equal(t, a.Resources[key].Kind, b.Resources[key].Kind)
		assert.Equal(t, a.Resources[key].TotalSupplied.String(), b.Resources[key].TotalSupplied.String())
		assert.Equal(t, a.Resources[key].UserDeposit.String(), b.Resources[key].UserDeposit.String())
	}

	other, err := NewMarket(DefaultMarketConfig(43)).NewChallenge()
	require.NoError(t, err)
	assert.NotEqual(t, a.ResourceKeys(), other.ResourceKeys())
}

func TestMarketChallengeShape(t *testing.T) {
	market := NewMarket(MarketConfig{Seed: 7, MinResources: 3, MaxResources: 5})

	for i := 0; i < 20; i++ {
		challenge, err := market.NewChallenge()
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(challenge.Resources), 3)
		assert.LessOrEqual(t, len(challenge.Resources), 5)
		assert.Equal(t, "uusdc", challenge.TotalAssets.Denom)

		minimums := math.ZeroInt()
		for key, resource := range challenge.Resources {
			assert.Equal(t, key, resource.Key)
			assert.True(t, resource.TotalSupplied.IsPositive())
			assert.False(t, resource.AvailableLiquidity().IsNegative())
			minimums = minimums.Add(resource.MinimumAllocation())
		}
		assert.True(t, minimums.LTE(challenge.TotalAssetsAmount()), "minimums exceed total assets")
	}
}

func TestMarketSyncAccruesYield(t *testing.T) {
	cfg := DefaultMarketConfig(3)
	cfg.Step = 24 * time.Hour
	market := NewMarket(cfg)

	challenge, err := market.NewChallenge()
	require.NoError(t, err)
	keys := challenge.ResourceKeys()

	entry, err := market.Sync(context.Background(), keys)
	require.NoError(t, err)
	exit, err := market.Sync(context.Background(), keys)
	require.NoError(t, err)

	assert.Equal(t, cfg.Start.Add(48*time.Hour), market.Now())
	assert.Equal(t, 24*time.Hour, exit.Timestamp.Sub(entry.Timestamp))

	for _, key := range keys {
		before := entry.Resources[key].YieldIndex
		after := exit.Resources[key].YieldIndex
		assert.True(t, after.GTE(before), "yield index decreased for %s", key)
		if exit.Resources[key].YieldRate(math.ZeroInt()).IsPositive() {
			assert.True(t, after.GT(before), "no accrual for %s", key)
		}
	}

	// The challenge handed out earlier is a copy and is not advanced.
	for _, key := range keys {
		assert.Equal(t, "1000000000000000000", challenge.Resources[key].YieldIndex.String())
	}
}

func TestMarketSyncUnknownKey(t *testing.T) {
	market := NewMarket(DefaultMarketConfig(1))
	_, err := market.NewChallenge()
	require.NoError(t, err)

	_, err = market.Sync(context.Background(), []types.ResourceKey{"0xmissing"})
	assert.Error(t, err)
}
