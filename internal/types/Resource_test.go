package types

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
)

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

func TestAvailableLiquidityAndShortfall(t *testing.T) {
	tests := []struct {
		name      string
		resource  Resource
		available int64
		shortfall int64
	}{
		{
			name:      "lending pool with idle liquidity",
			resource:  Resource{Kind: ResourceLending, TotalSupplied: math.NewInt(100), TotalBorrowed: math.NewInt(40), UserDeposit: math.NewInt(50)},
			available: 60,
			shortfall: 0,
		},
		{
			name:      "lending pool that cannot honor the deposit",
			resource:  Resource{Kind: ResourceLending, TotalSupplied: math.NewInt(100), TotalBorrowed: math.NewInt(97), UserDeposit: math.NewInt(5)},
			available: 3,
			shortfall: 2,
		},
		{
			name:      "over-borrowed pool floors at zero",
			resource:  Resource{Kind: ResourceLending, TotalSupplied: math.NewInt(10), TotalBorrowed: math.NewInt(20), UserDeposit: math.NewInt(5)},
			available: 0,
			shortfall: 5,
		},
		{
			name:      "share vault uses max withdrawable",
			resource:  Resource{Kind: ResourceShareVault, TotalSupplied: math.NewInt(1000), MaxWithdrawable: math.NewInt(7), UserDeposit: math.NewInt(10)},
			available: 7,
			shortfall: 3,
		},
		{
			name:      "fixed rate with unset fields",
			resource:  Resource{Kind: ResourceFixedRate, TotalSupplied: math.NewInt(10)},
			available: 10,
			shortfall: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.available, tt.resource.AvailableLiquidity().Int64())
			assert.Equal(t, tt.shortfall, tt.resource.Shortfall().Int64())
			assert.True(t, tt.resource.MinimumAllocation().Equal(tt.resource.Shortfall()))
		})
	}
}

func TestYieldRate(t *testing.T) {
	lending := Resource{
		Kind:               ResourceLending,
		TotalSupplied:      math.NewInt(1000),
		TotalBorrowed:      math.NewInt(400),
		BaseRate:           dec("0.01"),
		Slope1:             dec("0.04"),
		Slope2:             dec("1.0"),
		OptimalUtilization: dec("0.8"),
		ReserveFactor:      dec("0.1"),
	}

	// utilization 0.4: borrow 0.01 + 0.04*0.4/0.8 = 0.03; supply 0.03*0.4*0.9
	assert.Equal(t, dec("0.0108").String(), lending.YieldRate(math.ZeroInt()).String())

	// 500 more supplied lowers utilization and the rate
	assert.True(t, lending.YieldRate(math.NewInt(500)).LT(lending.YieldRate(math.ZeroInt())))

	above := lending
	above.TotalBorrowed = math.NewInt(900)
	// utilization 0.9: borrow 0.01 + 0.04 + 1.0*0.5 = 0.55; supply 0.55*0.9*0.9
	assert.Equal(t, dec("0.4455").String(), above.YieldRate(math.ZeroInt()).String())

	fixed := Resource{Kind: ResourceFixedRate, SupplyRate: dec("0.05")}
	assert.Equal(t, dec("0.05").String(), fixed.YieldRate(math.NewInt(1_000_000)).String())

	vault := Resource{Kind: ResourceShareVault, TotalSupplied: math.NewInt(300), SupplyRate: dec("0.08")}
	assert.Equal(t, dec("0.06").String(), vault.YieldRate(math.NewInt(100)).String())

	empty := Resource{Kind: ResourceLending}
	assert.True(t, empty.YieldRate(math.ZeroInt()).IsZero())
}

func TestChallengeHelpers(t *testing.T) {
	challenge := Challenge{
		Resources: map[ResourceKey]Resource{"b": {}, "a": {}, "c": {}},
	}
	assert.Equal(t, []ResourceKey{"a", "b", "c"}, challenge.ResourceKeys())
	assert.True(t, challenge.TotalAssetsAmount().IsZero())

	allocation := Allocation{"a": math.NewInt(3), "b": math.Int{}, "c": math.NewInt(4)}
	assert.Equal(t, int64(7), allocation.Total().Int64())
}
