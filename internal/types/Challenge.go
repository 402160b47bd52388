/*

This file contains the types for a scoring round: the challenge sent to participants,
their responses, and the records the scoring engine derives from them.

*/

package types

import (
	"sort"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Challenge is the shared allocation problem all participants respond to in one round.
type Challenge struct {
	TotalAssets sdk.Coin                 `json:"total_assets"` // e.g., 1000000000uusdc
	Resources   map[ResourceKey]Resource `json:"resources"`
}

// ResourceKeys returns the challenge's resource keys in canonical (sorted) order.
func (c Challenge) ResourceKeys() []ResourceKey {
	keys := make([]ResourceKey, 0, len(c.Resources))
	for k := range c.Resources {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// TotalAssetsAmount returns the challenge's total assets in base units.
func (c Challenge) TotalAssetsAmount() math.Int {
	return IntOrZero(c.TotalAssets.Amount)
}

// Allocation is one participant's proposed distribution of funds across resources (base units).
type Allocation map[ResourceKey]math.Int

// Total sums every entry of the allocation. Unset amounts count as zero.
func (a Allocation) Total() math.Int {
	total := math.ZeroInt()
	for _, amount := range a {
		total = total.Add(IntOrZero(amount))
	}
	return total
}

// ParticipantID identifies a participant (its uid on the network).
type ParticipantID string

// ParticipantResponse is what the transport layer collected from one participant.
// A nil Allocation means the participant did not answer or answered with garbage.
type ParticipantResponse struct {
	ID            ParticipantID `json:"id"`
	Allocation    Allocation    `json:"allocation,omitempty"`
	RoundTripTime float64       `json:"round_trip_time"` // seconds
}

// ParticipantRecord is the per-participant input of the similarity engine.
// A nil Allocation or nil APY marks the respective value as missing.
type ParticipantRecord struct {
	ID          ParticipantID `json:"id"`
	APY         math.Int      `json:"apy"` // fixed point, 1e18 == 100%
	Allocations Allocation    `json:"allocations,omitempty"`
	Latency     float64       `json:"latency"`
}

// HasAPY reports whether the record carries a yield value.
func (r ParticipantRecord) HasAPY() bool {
	return !r.APY.IsNil()
}

// SimilarityMatrix holds pairwise distances. It is symmetric and has no self entries.
// +Inf marks an undefined comparison.
type SimilarityMatrix map[ParticipantID]map[ParticipantID]float64

// PenaltyMap counts how many distinct peers each participant was penalized against.
type PenaltyMap map[ParticipantID]int
