package analyzer

import (
	"testing"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"

	"github.com/elys-network/avs/internal/types"
)

func illiquidChallenge() types.Challenge {
	return types.Challenge{
		TotalAssets: sdk.NewCoin("uusdc", math.NewIntWithDecimal(100, 23)),
		Resources: map[types.ResourceKey]types.Resource{
			"pool": {
				Key:           "pool",
				Kind:          types.ResourceLending,
				TotalSupplied: math.NewIntWithDecimal(100, 23),
				TotalBorrowed: math.NewIntWithDecimal(97, 23),
				UserDeposit:   math.NewIntWithDecimal(5, 23),
			},
		},
	}
}

func TestCheckAllocationsShortfall(t *testing.T) {
	challenge := illiquidChallenge()

	assert.False(t, CheckAllocations(challenge, types.Allocation{"pool": math.NewInt(1)}, math.ZeroInt()))
	assert.True(t, CheckAllocations(challenge, types.Allocation{"pool": math.NewIntWithDecimal(4, 23)}, math.ZeroInt()))
	// The shortfall is exactly 2e23
	assert.True(t, CheckAllocations(challenge, types.Allocation{"pool": math.NewIntWithDecimal(2, 23)}, math.ZeroInt()))
	assert.False(t, CheckAllocations(challenge, types.Allocation{"pool": math.NewIntWithDecimal(2, 23).SubRaw(1)}, math.ZeroInt()))
}

func TestCheckAllocations(t *testing.T) {
	challenge := testChallenge()

	tests := []struct {
		name       string
		allocation types.Allocation
		threshold  math.Int
		want       bool
	}{
		{
			name:       "full allocation",
			allocation: types.Allocation{"savings": units(600), "lending": units(400)},
			threshold:  math.ZeroInt(),
			want:       true,
		},
		{
			name:       "unreferenced resource counts as zero",
			allocation: types.Allocation{"savings": units(1000)},
			threshold:  math.ZeroInt(),
			want:       true,
		},
		{
			name:       "unreferenced resource below threshold",
			allocation: types.Allocation{"savings": units(1000)},
			threshold:  units(1),
			want:       false,
		},
		{
			name:       "every resource at threshold",
			allocation: types.Allocation{"savings": units(1), "lending": units(1)},
			threshold:  units(1),
			want:       true,
		},
		{
			name:       "unset threshold behaves as zero",
			allocation: types.Allocation{"savings": units(10)},
			threshold:  math.Int{},
			want:       true,
		},
		{
			name:       "missing allocation",
			allocation: nil,
			threshold:  math.ZeroInt(),
			want:       false,
		},
		{
			name:       "empty allocation",
			allocation: types.Allocation{},
			threshold:  math.ZeroInt(),
			want:       false,
		},
		{
			name:       "unknown resource",
			allocation: types.Allocation{"savings": units(10), "elsewhere": units(10)},
			threshold:  math.ZeroInt(),
			want:       false,
		},
		{
			name:       "negative amount",
			allocation: types.Allocation{"savings": units(10), "lending": units(-1)},
			threshold:  math.ZeroInt(),
			want:       false,
		},
		{
			name:       "unset amount",
			allocation: types.Allocation{"savings": math.Int{}},
			threshold:  math.ZeroInt(),
			want:       false,
		},
		{
			name:       "more than the total assets",
			allocation: types.Allocation{"savings": units(600), "lending": units(401)},
			threshold:  math.ZeroInt(),
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckAllocations(challenge, tt.allocation, tt.threshold))
		})
	}
}

func TestFormatAllocations(t *testing.T) {
	challenge := testChallenge()

	formatted := FormatAllocations(types.Allocation{"savings": units(5), "extra": units(1)}, challenge)

	assert.Len(t, formatted, 3)
	assert.True(t, formatted["savings"].Equal(units(5)))
	assert.True(t, formatted["lending"].IsZero())
	assert.True(t, formatted["extra"].Equal(units(1)))

	assert.Len(t, FormatAllocations(nil, challenge), 2)
}
