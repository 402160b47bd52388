// ./internal/state/trust_store.go
package state

import (
	"fmt"
	"math"

	"github.com/elys-network/avs/internal/types"
	"github.com/rs/zerolog/log"
)

// UpdateTrustScores folds one round's final rewards into every participant's trust score:
//
//	score = alpha*reward + (1-alpha)*previous
//
// A participant seen for the first time starts from a previous score of 0.
func UpdateTrustScores(result types.RoundResult, alpha float64) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if alpha <= 0 || alpha > 1 || math.IsNaN(alpha) {
		return fmt.Errorf("trust alpha must be in (0,1], got %f", alpha)
	}
	if len(result.Participants) != len(result.Rewards) {
		return fmt.Errorf("round has %d participants and %d rewards", len(result.Participants), len(result.Rewards))
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	stmt := `
		INSERT INTO trust_scores (participant_id, score, rounds, updated_at)
		VALUES ($1, $2 * $3, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (participant_id) DO UPDATE
		SET score = $2 * $3 + (1 - $2) * trust_scores.score,
		    rounds = trust_scores.rounds + 1,
		    updated_at = CURRENT_TIMESTAMP;`

	for i, id := range result.Participants {
		if _, err = tx.Exec(stmt, string(id), alpha, result.Rewards[i]); err != nil {
			return fmt.Errorf("failed to update trust score of %s: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("participants", len(result.Participants)).
		Float64("alpha", alpha).
		Msg("Trust scores updated")
	return nil
}

// GetTrustScores returns every participant's trust score, highest first.
func GetTrustScores() ([]types.TrustScore, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	rows, err := DB.Query(`
		SELECT participant_id, score, rounds, updated_at
		FROM trust_scores
		ORDER BY score DESC, participant_id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trust scores: %w", err)
	}
	defer rows.Close()

	var scores []types.TrustScore
	for rows.Next() {
		var (
			s  types.TrustScore
			id string
		)
		if err := rows.Scan(&id, &s.Score, &s.Rounds, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trust score: %w", err)
		}
		s.ParticipantID = types.ParticipantID(id)
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trust scores: %w", err)
	}
	return scores, nil
}
