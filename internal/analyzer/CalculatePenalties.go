/*

This file contains the penalty assigner.

*/

package analyzer

import (
	"math"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/types"
)

var penaltyLogger = logger.GetForComponent("penalty_assigner")

// CalculatePenalties flags every unordered pair whose allocation distance is at most
// allocThreshold AND whose yield distance is at most apyThreshold. For a flagged pair the
// strictly slower participant gets one penalty; equal latencies penalize both.
// Missing matrix entries are +Inf (never similar) and missing latencies +Inf (slowest).
// Every participant present in either matrix appears in the result.
func CalculatePenalties(allocSim, apySim types.SimilarityMatrix, latencies map[types.ParticipantID]float64, allocThreshold, apyThreshold float64) types.PenaltyMap {
	penalties := make(types.PenaltyMap, len(allocSim))
	for id := range allocSim {
		penalties[id] = 0
	}
	for id := range apySim {
		penalties[id] = 0
	}

	ids := make([]types.ParticipantID, 0, len(penalties))
	for id := range penalties {
		ids = append(ids, id)
	}
	sortParticipantIDs(ids)

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			allocDistance := lookupDistance(allocSim, a, b)
			apyDistance := lookupDistance(apySim, a, b)
			if !(allocDistance <= allocThreshold && apyDistance <= apyThreshold) {
				continue
			}

			latencyA := lookupLatency(latencies, a)
			latencyB := lookupLatency(latencies, b)
			switch {
			case latencyA > latencyB:
				penalties[a]++
			case latencyB > latencyA:
				penalties[b]++
			default:
				penalties[a]++
				penalties[b]++
			}

			penaltyLogger.Debug().
				Str("participantA", string(a)).
				Str("participantB", string(b)).
				Float64("allocationDistance", allocDistance).
				Float64("apyDistance", apyDistance).
				Float64("latencyA", latencyA).
				Float64("latencyB", latencyB).
				Msg("Similar responses detected")
		}
	}

	return penalties
}

func lookupDistance(matrix types.SimilarityMatrix, a, b types.ParticipantID) float64 {
	row, ok := matrix[a]
	if !ok {
		return math.Inf(1)
	}
	d, ok := row[b]
	if !ok || math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}

func lookupLatency(latencies map[types.ParticipantID]float64, id types.ParticipantID) float64 {
	latency, ok := latencies[id]
	if !ok || math.IsNaN(latency) {
		return math.Inf(1)
	}
	return latency
}
