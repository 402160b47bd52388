/*

This file contains the distance primitive of the similarity engine.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math/big"

	"cosmossdk.io/math"
)

var (
	ErrIncomparableVectors = errors.New("vectors have different lengths")
	ErrInvalidNormalizer   = errors.New("normalizer must be positive")
)

// distancePrecision is the mantissa size used for the final division and square root.
const distancePrecision = 256

// CalculateDistance returns the Euclidean distance between a and b divided by sqrt(2*total^2),
// which maps two allocations of the same total into [0,1].
// Identical vectors return exactly 0 whatever the total.
func CalculateDistance(a, b []math.Int, total math.Int) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrIncomparableVectors, len(a), len(b))
	}

	sumSq := new(big.Int)
	diff := new(big.Int)
	for i := range a {
		diff.Sub(intOrZeroBig(a[i]), intOrZeroBig(b[i]))
		sumSq.Add(sumSq, new(big.Int).Mul(diff, diff))
	}
	if sumSq.Sign() == 0 {
		return 0, nil
	}

	if total.IsNil() || !total.IsPositive() {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidNormalizer, total)
	}

	// sqrt(sumSq / (2 * total^2))
	denominator := new(big.Int).Mul(total.BigInt(), total.BigInt())
	denominator.Lsh(denominator, 1)

	ratio := new(big.Float).SetPrec(distancePrecision).SetInt(sumSq)
	ratio.Quo(ratio, new(big.Float).SetPrec(distancePrecision).SetInt(denominator))
	distance, _ := new(big.Float).SetPrec(distancePrecision).Sqrt(ratio).Float64()

	return distance, nil
}

func intOrZeroBig(i math.Int) *big.Int {
	if i.IsNil() {
		return new(big.Int)
	}
	return i.BigInt()
}
