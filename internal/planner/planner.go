package planner

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/types"
	"github.com/elys-network/avs/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNoResources       = errors.New("challenge has no resources")
	ErrInvalidTotal      = errors.New("total assets must be positive")
	ErrInvalidThreshold  = errors.New("allocation threshold cannot be negative")
	ErrInsufficientFunds = errors.New("total assets do not cover the minimum allocations")
)

// SpendableFraction keeps 1% of the total unallocated so rounding never over-allocates.
var SpendableFraction = sdkmath.LegacyMustNewDecFromStr("0.99")

var planLogger = logger.GetForComponent("naive_allocator")

// NaiveAllocation is the reference allocator. Every resource first receives its minimum
// (max(threshold, shortfall)); what is left of 99% of the total assets is spread proportionally to
// each resource's supply rate given an even share of that remainder. Fixed-rate resources are
// rated at their fixed rate. When every rate is zero the remainder is spread evenly.
func NaiveAllocation(challenge types.Challenge, threshold sdkmath.Int) (types.Allocation, error) {
	keys := challenge.ResourceKeys()
	if len(keys) == 0 {
		return nil, ErrNoResources
	}
	total := challenge.TotalAssetsAmount()
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTotal, total)
	}
	threshold = types.IntOrZero(threshold)
	if threshold.IsNegative() {
		return nil, ErrInvalidThreshold
	}

	allocation := make(types.Allocation, len(keys))
	minimumSum := sdkmath.ZeroInt()
	for _, key := range keys {
		minimum := sdkmath.MaxInt(threshold, challenge.Resources[key].MinimumAllocation())
		allocation[key] = minimum
		minimumSum = minimumSum.Add(minimum)
	}
	if minimumSum.GT(total) {
		return nil, fmt.Errorf("%w: minimums %s, total %s", ErrInsufficientFunds, minimumSum, total)
	}

	balance := SpendableFraction.MulInt(total).TruncateInt().Sub(minimumSum)
	if !balance.IsPositive() {
		planLogger.Debug().
			Str("minimums", minimumSum.String()).
			Str("total", total.String()).
			Msg("Minimum allocations use up the spendable assets")
		return allocation, nil
	}

	evenShare := balance.QuoRaw(int64(len(keys)))
	rates := make(map[types.ResourceKey]sdkmath.LegacyDec, len(keys))
	rateSum := sdkmath.LegacyZeroDec()
	for _, key := range keys {
		resource := challenge.Resources[key]
		var rate sdkmath.LegacyDec
		if resource.Kind == types.ResourceFixedRate {
			rate = resource.YieldRate(sdkmath.ZeroInt())
		} else {
			rate = resource.YieldRate(evenShare)
		}
		if rate.IsNegative() {
			rate = sdkmath.LegacyZeroDec()
		}
		rates[key] = rate
		rateSum = rateSum.Add(rate)
	}

	for _, key := range keys {
		var share sdkmath.Int
		if rateSum.IsZero() {
			share = evenShare
		} else {
			share = rates[key].Quo(rateSum).MulInt(balance).TruncateInt()
		}
		allocation[key] = allocation[key].Add(share)

		rate, err := utils.DecToFloat64(rates[key])
		if err != nil {
			return nil, fmt.Errorf("rate of %s: %w", key, err)
		}
		planLogger.Debug().
			Str("resource", string(key)).
			Float64("rate", rate).
			Str("amount", allocation[key].String()).
			Msg("Planned allocation")
	}

	return allocation, nil
}
