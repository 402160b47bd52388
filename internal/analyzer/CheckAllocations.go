/*

This file contains the allocation validator: whether an allocation respects every resource's
minimum amount and the challenge's total assets.

*/

package analyzer

import (
	"cosmossdk.io/math"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/types"
)

var validatorLogger = logger.GetForComponent("allocation_validator")

// CheckAllocations reports whether allocation is acceptable for the challenge.
// Every challenge resource (an unreferenced resource counts as 0) must receive at least
// max(threshold, resource.Shortfall()). Empty allocations, negative or unset amounts, keys that
// are not part of the challenge, and totals above the challenge's total assets are rejected too.
// It never fails; the rejection reason is logged at debug level.
func CheckAllocations(challenge types.Challenge, allocation types.Allocation, threshold math.Int) bool {
	if len(allocation) == 0 {
		validatorLogger.Debug().Bool("answered", allocation != nil).Msg("Allocation rejected: missing or empty")
		return false
	}
	threshold = types.IntOrZero(threshold)

	for key, amount := range allocation {
		if _, ok := challenge.Resources[key]; !ok {
			validatorLogger.Debug().
				Str("resource", string(key)).
				Msg("Allocation rejected: unknown resource")
			return false
		}
		if amount.IsNil() || amount.IsNegative() {
			validatorLogger.Debug().
				Str("resource", string(key)).
				Msg("Allocation rejected: amount is unset or negative")
			return false
		}
	}

	total := allocation.Total()
	if total.GT(challenge.TotalAssetsAmount()) {
		validatorLogger.Debug().
			Str("allocated", total.String()).
			Str("totalAssets", challenge.TotalAssetsAmount().String()).
			Msg("Allocation rejected: allocates more than the total assets")
		return false
	}

	for _, key := range challenge.ResourceKeys() {
		resource := challenge.Resources[key]
		required := math.MaxInt(threshold, resource.Shortfall())

		amount, ok := allocation[key]
		if !ok {
			amount = math.ZeroInt()
		}
		if amount.LT(required) {
			validatorLogger.Debug().
				Str("resource", string(key)).
				Str("kind", string(resource.Kind)).
				Str("amount", amount.String()).
				Str("threshold", threshold.String()).
				Str("shortfall", resource.Shortfall().String()).
				Msg("Allocation rejected: below required minimum")
			return false
		}
	}

	return true
}

// FormatAllocations returns a copy of allocation where every challenge resource is present,
// zero-filled when the allocation does not reference it. Extra keys are kept.
func FormatAllocations(allocation types.Allocation, challenge types.Challenge) types.Allocation {
	formatted := make(types.Allocation, len(challenge.Resources)+len(allocation))
	for key, amount := range allocation {
		formatted[key] = types.IntOrZero(amount)
	}
	for key := range challenge.Resources {
		if _, ok := formatted[key]; !ok {
			formatted[key] = math.ZeroInt()
		}
	}
	return formatted
}
