// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/avs/internal/types"
	"github.com/rs/zerolog/log"
)

// ErrNoActiveParameters is returned when no active parameter set exists for a config name.
var ErrNoActiveParameters = errors.New("no active scoring parameters")

// SaveScoringParameters saves a new version of scoring parameters.
func SaveScoringParameters(params types.ScoringParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	if params.AllocationThreshold.IsNil() {
		return 0, fmt.Errorf("scoring parameters for %s have no allocation threshold", configName)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE scoring_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	// NUMERIC(78,0) holds any uint256, the threshold travels as its decimal string.
	stmt := `
        INSERT INTO scoring_parameters (
            version, config_name, is_active, activated_at, created_at,
            allocation_threshold, allocation_similarity_threshold, apy_similarity_threshold
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8
        ) RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.AllocationThreshold.String(), params.AllocationSimilarityThreshold, params.APYSimilarityThreshold,
	).Scan(&paramsID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert scoring parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved scoring parameters")
	return paramsID, nil
}

// LoadActiveScoringParameters loads the currently active scoring parameters.
func LoadActiveScoringParameters(configName string) (*types.ScoringParameters, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
        SELECT allocation_threshold, allocation_similarity_threshold, apy_similarity_threshold
        FROM scoring_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var threshold string
	p := &types.ScoringParameters{}
	err := DB.QueryRow(query, configName).Scan(&threshold, &p.AllocationSimilarityThreshold, &p.APYSimilarityThreshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w for config '%s'", ErrNoActiveParameters, configName)
		}
		return nil, fmt.Errorf("failed to scan active scoring parameters for config '%s': %w", configName, err)
	}

	amount, ok := math.NewIntFromString(threshold)
	if !ok {
		return nil, fmt.Errorf("stored allocation threshold %q for config '%s' is not an integer", threshold, configName)
	}
	p.AllocationThreshold = amount

	log.Info().Str("config", configName).Msg("Loaded active scoring parameters")
	return p, nil
}

// GetActiveScoringParametersID returns the params_id of the currently active scoring parameters
func GetActiveScoringParametersID(configName string) (*int64, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
        SELECT params_id
        FROM scoring_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var paramsID int64
	err := DB.QueryRow(query, configName).Scan(&paramsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No active parameters found - this is valid, return nil
			log.Debug().Str("config", configName).Msg("No active scoring parameters found")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active scoring parameters ID for config '%s': %w", configName, err)
	}

	log.Debug().
		Str("config", configName).
		Int64("params_id", paramsID).
		Msg("Retrieved active scoring parameters ID")

	return &paramsID, nil
}
