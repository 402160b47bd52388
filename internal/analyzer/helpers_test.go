package analyzer

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/avs/internal/types"
)

func units(n int64) math.Int {
	return math.NewInt(n).MulRaw(1_000_000)
}

func pct(basisPoints int64) math.Int {
	// 1 basis point == 1e14 in 1e18 fixed point
	return math.NewIntWithDecimal(basisPoints, 14)
}

func testParams() types.ScoringParameters {
	return types.ScoringParameters{
		AllocationThreshold:           math.ZeroInt(),
		AllocationSimilarityThreshold: 1e-4,
		APYSimilarityThreshold:        1e-4,
	}
}

// testChallenge has a fixed-rate resource that earned 2% and a lending pool that earned 1%
// over the window, with 1000 units to allocate.
func testChallenge() types.Challenge {
	return types.Challenge{
		TotalAssets: sdk.NewCoin("uusdc", units(1000)),
		Resources: map[types.ResourceKey]types.Resource{
			"savings": {
				Key:           "savings",
				Kind:          types.ResourceFixedRate,
				TotalSupplied: units(1000),
				TotalBorrowed: math.ZeroInt(),
				UserDeposit:   math.ZeroInt(),
				YieldIndex:    math.NewIntWithDecimal(102, 16),
				SupplyRate:    math.LegacyMustNewDecFromStr("0.02"),
			},
			"lending": {
				Key:                "lending",
				Kind:               types.ResourceLending,
				TotalSupplied:      units(1000),
				TotalBorrowed:      units(500),
				UserDeposit:        math.ZeroInt(),
				YieldIndex:         math.NewIntWithDecimal(101, 16),
				BaseRate:           math.LegacyZeroDec(),
				Slope1:             math.LegacyMustNewDecFromStr("0.04"),
				Slope2:             math.LegacyMustNewDecFromStr("1.0"),
				OptimalUtilization: math.LegacyMustNewDecFromStr("0.8"),
				ReserveFactor:      math.LegacyMustNewDecFromStr("0.1"),
			},
		},
	}
}

func testEntryIndex() map[types.ResourceKey]math.Int {
	return map[types.ResourceKey]math.Int{
		"savings": math.NewIntWithDecimal(1, 18),
		"lending": math.NewIntWithDecimal(1, 18),
	}
}
