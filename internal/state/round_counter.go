/*

This file manages the persistent global round counter.
The counter lives in the database so round numbers continue across restarts.

*/

package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentRoundNumber retrieves the current round number from the database
func GetCurrentRoundNumber() (int, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	var current int
	err := DB.QueryRow(`SELECT current_round FROM round_counter WHERE id = 1;`).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// EnsureSchema seeds the row; a missing row means it was deleted by hand.
			log.Warn().Msg("No round counter row found, treating it as 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current round number: %w", err)
	}

	log.Debug().Int("currentRound", current).Msg("Retrieved current round number")
	return current, nil
}

// IncrementRoundNumber increments the round counter and returns the new value
func IncrementRoundNumber() (int, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	updateQuery := `
		UPDATE round_counter
		SET current_round = current_round + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_round;`

	var next int
	if err := DB.QueryRow(updateQuery).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment round number: %w", err)
	}

	log.Info().Int("newRound", next).Msg("Incremented round counter")
	return next, nil
}

// ResetRoundNumber resets the round counter to a specific value (for testing/maintenance)
func ResetRoundNumber(roundNumber int) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if roundNumber < 0 {
		return fmt.Errorf("round number cannot be negative: %d", roundNumber)
	}

	updateQuery := `
		UPDATE round_counter
		SET current_round = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	if _, err := DB.Exec(updateQuery, roundNumber); err != nil {
		return fmt.Errorf("failed to reset round number: %w", err)
	}

	log.Warn().Int("roundNumber", roundNumber).Msg("Round counter reset")
	return nil
}
