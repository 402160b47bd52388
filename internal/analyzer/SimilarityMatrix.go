/*

This file contains the similarity engine: pairwise distance matrices over participant
allocations and participant yields, used to detect copied answers.

*/

package analyzer

import (
	"math"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/types"
)

var similarityLogger = logger.GetForComponent("similarity_engine")

// CanonicalResourceOrder is the sorted union of the challenge's resources and every resource
// referenced by a record. Allocation vectors are laid out in this order.
func CanonicalResourceOrder(records []types.ParticipantRecord, challenge types.Challenge) []types.ResourceKey {
	seen := make(map[types.ResourceKey]struct{}, len(challenge.Resources))
	for key := range challenge.Resources {
		seen[key] = struct{}{}
	}
	for _, record := range records {
		for key := range record.Allocations {
			seen[key] = struct{}{}
		}
	}

	keys := make([]types.ResourceKey, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}

// AllocationVector lays allocation out along order, zero-filling missing resources.
func AllocationVector(allocation types.Allocation, order []types.ResourceKey) []sdkmath.Int {
	vector := make([]sdkmath.Int, len(order))
	for i, key := range order {
		vector[i] = types.IntOrZero(allocation[key])
	}
	return vector
}

// AllocationSimilarityMatrix returns the pairwise normalized distances between the records'
// allocations, normalized by the challenge's total assets.
// A record without an allocation is at +Inf from every peer.
func AllocationSimilarityMatrix(records []types.ParticipantRecord, challenge types.Challenge) types.SimilarityMatrix {
	order := CanonicalResourceOrder(records, challenge)
	total := challenge.TotalAssetsAmount()

	vectors := make([][]sdkmath.Int, len(records))
	for i, record := range records {
		if record.Allocations != nil {
			vectors[i] = AllocationVector(record.Allocations, order)
		}
	}

	return buildMatrix(records, "allocation", func(i, j int) (float64, bool, error) {
		if vectors[i] == nil || vectors[j] == nil {
			return 0, false, nil
		}
		d, err := CalculateDistance(vectors[i], vectors[j], total)
		return d, true, err
	})
}

// APYSimilarityMatrix returns the pairwise normalized distances between the records' yields.
// Each pair is normalized by the larger magnitude of the two yields.
// A record without a yield is at +Inf from every peer.
func APYSimilarityMatrix(records []types.ParticipantRecord) types.SimilarityMatrix {
	return buildMatrix(records, "apy", func(i, j int) (float64, bool, error) {
		a, b := records[i], records[j]
		if !a.HasAPY() || !b.HasAPY() {
			return 0, false, nil
		}
		normalizer := sdkmath.MaxInt(a.APY.Abs(), b.APY.Abs())
		d, err := CalculateDistance([]sdkmath.Int{a.APY}, []sdkmath.Int{b.APY}, normalizer)
		return d, true, err
	})
}

// buildMatrix fills a symmetric matrix without self entries. distance is evaluated once per
// unordered pair; ok=false or an error records +Inf ("never similar").
func buildMatrix(records []types.ParticipantRecord, kind string, distance func(i, j int) (float64, bool, error)) types.SimilarityMatrix {
	matrix := make(types.SimilarityMatrix, len(records))
	for _, record := range records {
		matrix[record.ID] = make(map[types.ParticipantID]float64, len(records))
	}

	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			a, b := records[i].ID, records[j].ID
			if a == b {
				continue
			}

			value := math.Inf(1)
			d, ok, err := distance(i, j)
			switch {
			case err != nil:
				similarityLogger.Warn().
					Err(err).
					Str("matrix", kind).
					Str("participantA", string(a)).
					Str("participantB", string(b)).
					Msg("Distance undefined, treating pair as dissimilar")
			case ok && !math.IsNaN(d):
				value = d
			}

			matrix[a][b] = value
			matrix[b][a] = value
		}
	}

	similarityLogger.Debug().
		Str("matrix", kind).
		Int("participants", len(records)).
		Msg("Similarity matrix built")

	return matrix
}
