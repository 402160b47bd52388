/*

This file contains the yield calculator: the annualized realized yield of an allocation between
the entry snapshot of a round and the exit snapshot carried by the challenge.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math/big"

	"cosmossdk.io/math"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/types"
)

// SecondsPerYear is the annualization base (365 days).
const SecondsPerYear = 31_536_000

var (
	ErrEmptyInput        = errors.New("nothing to compute a yield from")
	ErrInvalidElapsed    = errors.New("elapsed time must be positive")
	ErrMissingEntryIndex = errors.New("allocated resource has no entry yield index")
	ErrMissingExitIndex  = errors.New("allocated resource has no exit yield index")
	ErrYieldOutOfRange   = errors.New("yield does not fit a 256-bit integer")
)

var yieldLogger = logger.GetForComponent("yield_calculator")

// fixedPointOne is 1e18, the fixed-point representation of 100%.
var fixedPointOne = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// AnnualizedYieldPct computes the amount-weighted realized return of allocation, annualized over
// elapsedSeconds and returned as a 1e18 fixed-point value (1e18 == 100%).
//
// For each allocated resource the return is exit/entry - 1, with exit taken from the challenge
// (the post-window snapshot) and entry from entryIndex (the snapshot taken at dispatch).
// Everything is computed in big.Int; the result truncates toward zero.
func AnnualizedYieldPct(allocation types.Allocation, challenge types.Challenge, elapsedSeconds int64, entryIndex map[types.ResourceKey]math.Int) (math.Int, error) {
	if len(challenge.Resources) == 0 {
		return math.Int{}, fmt.Errorf("%w: challenge has no resources", ErrEmptyInput)
	}
	if elapsedSeconds <= 0 {
		return math.Int{}, fmt.Errorf("%w: got %d", ErrInvalidElapsed, elapsedSeconds)
	}

	total := new(big.Int)
	numerator := new(big.Int)

	for _, key := range sortedAllocationKeys(allocation) {
		amount := types.IntOrZero(allocation[key])
		if !amount.IsPositive() {
			continue
		}

		entry, ok := entryIndex[key]
		if !ok || entry.IsNil() || !entry.IsPositive() {
			return math.Int{}, fmt.Errorf("%w: %s", ErrMissingEntryIndex, key)
		}
		exit := challenge.Resources[key].YieldIndex
		if exit.IsNil() || !exit.IsPositive() {
			return math.Int{}, fmt.Errorf("%w: %s", ErrMissingExitIndex, key)
		}

		// amount * (exit - entry) * 1e18 / entry
		delta := new(big.Int).Sub(exit.BigInt(), entry.BigInt())
		term := new(big.Int).Mul(amount.BigInt(), delta)
		term.Mul(term, fixedPointOne)
		term.Quo(term, entry.BigInt())

		numerator.Add(numerator, term)
		total.Add(total, amount.BigInt())
	}

	if total.Sign() == 0 {
		return math.Int{}, fmt.Errorf("%w: nothing allocated", ErrEmptyInput)
	}

	// (numerator / total) * (SecondsPerYear / elapsed)
	numerator.Mul(numerator, big.NewInt(SecondsPerYear))
	denominator := new(big.Int).Mul(total, big.NewInt(elapsedSeconds))
	apy := new(big.Int).Quo(numerator, denominator)
	if apy.BitLen() > math.MaxBitLen {
		return math.Int{}, fmt.Errorf("%w: %d bits", ErrYieldOutOfRange, apy.BitLen())
	}

	yieldLogger.Debug().
		Str("allocated", total.String()).
		Int64("elapsedSeconds", elapsedSeconds).
		Str("apy", apy.String()).
		Msg("Annualized yield computed")

	return math.NewIntFromBigInt(apy), nil
}

func sortedAllocationKeys(allocation types.Allocation) []types.ResourceKey {
	keys := make([]types.ResourceKey, 0, len(allocation))
	for k := range allocation {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}
