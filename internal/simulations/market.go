/*

This file contains the synthetic market used to generate challenges.

Resources are generated from a seed so that a round can be replayed, and a virtual clock advances
on every Sync so that yield indices accrue without waiting for wall-clock time.

*/

package simulations

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/resources"
	"github.com/elys-network/avs/internal/types"
	"github.com/elys-network/avs/internal/utils"
)

const (
	// AssetDecimals is the number of decimals of the simulated base asset.
	AssetDecimals = 6

	secondsPerYear = 31_536_000
)

var marketLogger = logger.GetForComponent("market_simulator")

// MarketConfig holds the knobs of the synthetic market.
type MarketConfig struct {
	Seed         int64
	Step         time.Duration // Virtual time added by every Sync
	Denom        string
	MinResources int
	MaxResources int
	Start        time.Time
}

// DefaultMarketConfig returns a market of 2 to 10 resources in uusdc, one week per Sync.
func DefaultMarketConfig(seed int64) MarketConfig {
	return MarketConfig{
		Seed:         seed,
		Step:         7 * 24 * time.Hour,
		Denom:        "uusdc",
		MinResources: 2,
		MaxResources: 10,
		Start:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Market is a seeded resource generator and a SnapshotProvider over the generated resources.
type Market struct {
	mu        sync.Mutex
	cfg       MarketConfig
	rng       *rand.Rand
	clock     time.Time
	resources map[types.ResourceKey]types.Resource
}

var _ resources.SnapshotProvider = (*Market)(nil)

// NewMarket creates a market. Zero-valued config fields fall back to DefaultMarketConfig.
func NewMarket(cfg MarketConfig) *Market {
	defaults := DefaultMarketConfig(cfg.Seed)
	if cfg.Step <= 0 {
		cfg.Step = defaults.Step
	}
	if cfg.Denom == "" {
		cfg.Denom = defaults.Denom
	}
	if cfg.MinResources <= 0 {
		cfg.MinResources = defaults.MinResources
	}
	if cfg.MaxResources < cfg.MinResources {
		cfg.MaxResources = max(defaults.MaxResources, cfg.MinResources)
	}
	if cfg.Start.IsZero() {
		cfg.Start = defaults.Start
	}

	return &Market{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		clock:     cfg.Start,
		resources: map[types.ResourceKey]types.Resource{},
	}
}

// Now returns the market's virtual time.
func (m *Market) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

// NewChallenge replaces the market's resources with a freshly generated set and returns the
// challenge over them. Total assets always cover the sum of the resources' minimum allocations.
func (m *Market) NewChallenge() (types.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.cfg.MinResources
	if spread := m.cfg.MaxResources - m.cfg.MinResources; spread > 0 {
		n += m.rng.Intn(spread + 1)
	}

	totalAssets, err := m.amount(100_000, 10_000_000)
	if err != nil {
		return types.Challenge{}, err
	}
	maxDeposit := totalAssets.QuoRaw(int64(n))

	generated := make(map[types.ResourceKey]types.Resource, n)
	for i := 0; i < n; i++ {
		resource, err := m.generateResource(maxDeposit)
		if err != nil {
			return types.Challenge{}, err
		}
		generated[resource.Key] = resource
	}
	m.resources = generated

	challenge := types.Challenge{
		TotalAssets: sdk.NewCoin(m.cfg.Denom, totalAssets),
		Resources:   copyResources(generated),
	}

	assetUnits, err := utils.SDKIntToFloat64(totalAssets, AssetDecimals)
	if err != nil {
		return types.Challenge{}, err
	}
	marketLogger.Debug().
		Int("resources", n).
		Str("denom", m.cfg.Denom).
		Float64("totalAssets", assetUnits).
		Time("clock", m.clock).
		Msg("Generated challenge")

	return challenge, nil
}

// Sync implements resources.SnapshotProvider. It advances the virtual clock by one step,
// compounds every resource's yield index at its current rate and returns the new state.
func (m *Market) Sync(ctx context.Context, keys []types.ResourceKey) (resources.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return resources.Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clock = m.clock.Add(m.cfg.Step)
	stepFraction := math.LegacyNewDec(int64(m.cfg.Step / time.Second)).QuoInt64(secondsPerYear)

	for key, resource := range m.resources {
		growth := math.LegacyOneDec().Add(resource.YieldRate(math.ZeroInt()).Mul(stepFraction))
		resource.YieldIndex = growth.MulInt(types.IntOrZero(resource.YieldIndex)).TruncateInt()
		m.resources[key] = resource
	}

	return resources.Select(resources.Snapshot{
		Resources: copyResources(m.resources),
		Timestamp: m.clock,
	}, keys)
}

func (m *Market) generateResource(maxDeposit math.Int) (types.Resource, error) {
	address := make([]byte, 20)
	m.rng.Read(address)

	supplied, err := m.amount(1_000_000, 1_000_000_000)
	if err != nil {
		return types.Resource{}, err
	}

	resource := types.Resource{
		Key:           types.ResourceKey(fmt.Sprintf("0x%x", address)),
		TotalSupplied: supplied,
		TotalBorrowed: math.ZeroInt(),
		YieldIndex:    math.NewIntWithDecimal(1, 18),
	}

	switch m.rng.Intn(3) {
	case 0:
		resource.Kind = types.ResourceFixedRate
		resource.SupplyRate = m.rate(100, 800) // 1% - 8%

	case 1:
		resource.Kind = types.ResourceLending
		utilization := m.rate(3000, 9500) // 30% - 95%
		resource.TotalBorrowed = utilization.MulInt(supplied).TruncateInt()
		resource.BaseRate = m.rate(0, 200)
		resource.Slope1 = m.rate(200, 1000)
		resource.Slope2 = m.rate(5000, 30000)
		resource.OptimalUtilization = m.rate(7000, 9000)
		resource.ReserveFactor = m.rate(500, 2000)

	default:
		resource.Kind = types.ResourceShareVault
		resource.SupplyRate = m.rate(200, 1200)
		resource.MaxWithdrawable = m.rate(2000, 10000).MulInt(supplied).TruncateInt()
	}

	// Roughly a third of the resources carry an existing position, some of it stuck.
	if m.rng.Intn(3) == 0 {
		resource.UserDeposit = m.rate(0, 10000).MulInt(maxDeposit).TruncateInt()
	} else {
		resource.UserDeposit = math.ZeroInt()
	}

	return resource, nil
}

// amount draws a whole number of asset units in [lo, hi) and converts it to base units.
func (m *Market) amount(lo, hi int64) (math.Int, error) {
	units := float64(lo + m.rng.Int63n(hi-lo))
	return utils.Float64ToSDKInt(units, AssetDecimals)
}

// rate draws a decimal in [lo, hi] basis points.
func (m *Market) rate(lo, hi int64) math.LegacyDec {
	return math.LegacyNewDecWithPrec(lo+m.rng.Int63n(hi-lo+1), 4)
}

func copyResources(in map[types.ResourceKey]types.Resource) map[types.ResourceKey]types.Resource {
	out := make(map[types.ResourceKey]types.Resource, len(in))
	for key, resource := range in {
		out[key] = resource
	}
	return out
}
