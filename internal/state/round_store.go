// ./internal/state/round_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elys-network/avs/internal/types"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

// ErrRoundNotFound is returned when a round lookup matches no row.
var ErrRoundNotFound = errors.New("round not found")

const (
	defaultRecentRounds = 10
	maxRecentRounds     = 100
)

const selectRoundColumns = `
		SELECT record_id, round_id, round_number, round_timestamp, scoring_params_id,
			total_assets, resource_count, elapsed_seconds, result, responses
		FROM round_results`

// SaveRoundResult saves a scored round to the database.
func SaveRoundResult(record types.RoundRecord) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal result: %w", err)
	}

	responsesJSON, err := json.Marshal(record.Responses)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal responses: %w", err)
	}

	participants := make([]string, len(record.Result.Participants))
	for i, id := range record.Result.Participants {
		participants[i] = string(id)
	}

	query := `
		INSERT INTO round_results (
			round_id, round_number, round_timestamp, scoring_params_id,
			total_assets, resource_count, elapsed_seconds,
			participants, rewards, result, responses
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING record_id;
	`

	var recordID int64
	err = DB.QueryRow(
		query,
		record.RoundID, record.RoundNumber, record.Timestamp, record.ScoringParamsID,
		record.TotalAssets, record.ResourceCount, record.ElapsedSeconds,
		pq.Array(participants), pq.Array(record.Result.Rewards), resultJSON, responsesJSON,
	).Scan(&recordID)

	if err != nil {
		return 0, fmt.Errorf("failed to save round %s: %w", record.RoundID, err)
	}

	log.Info().
		Int64("record_id", recordID).
		Str("round_id", record.RoundID).
		Int("round_number", record.RoundNumber).
		Int("participants", len(participants)).
		Msg("Round result saved to database")

	return recordID, nil
}

// GetRecentRounds returns the most recent rounds, newest first.
// limit defaults to 10 and is capped at 100.
func GetRecentRounds(limit int) ([]types.RoundRecord, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 {
		limit = defaultRecentRounds
	}
	if limit > maxRecentRounds {
		limit = maxRecentRounds
	}

	rows, err := DB.Query(selectRoundColumns+`
		ORDER BY round_timestamp DESC, record_id DESC
		LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent rounds: %w", err)
	}
	defer rows.Close()

	var records []types.RoundRecord
	for rows.Next() {
		record, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent rounds: %w", err)
	}

	log.Debug().Int("count", len(records)).Msg("Retrieved recent rounds")
	return records, nil
}

// GetRoundByID returns the round with the given round ID, or ErrRoundNotFound.
func GetRoundByID(roundID string) (*types.RoundRecord, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	row := DB.QueryRow(selectRoundColumns+`
		WHERE round_id = $1;`, roundID)

	record, err := scanRound(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, roundID)
		}
		return nil, err
	}
	return record, nil
}

// GetLatestRound returns the newest round, or ErrRoundNotFound on an empty table.
func GetLatestRound() (*types.RoundRecord, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	row := DB.QueryRow(selectRoundColumns + `
		ORDER BY round_timestamp DESC, record_id DESC
		LIMIT 1;`)

	record, err := scanRound(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*types.RoundRecord, error) {
	var (
		record        types.RoundRecord
		paramsID      sql.NullInt64
		resultJSON    []byte
		responsesJSON []byte
	)

	err := row.Scan(
		&record.RecordID, &record.RoundID, &record.RoundNumber, &record.Timestamp, &paramsID,
		&record.TotalAssets, &record.ResourceCount, &record.ElapsedSeconds, &resultJSON, &responsesJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan round: %w", err)
	}

	if paramsID.Valid {
		id := paramsID.Int64
		record.ScoringParamsID = &id
	}
	if err := json.Unmarshal(resultJSON, &record.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result of round %s: %w", record.RoundID, err)
	}
	if err := json.Unmarshal(responsesJSON, &record.Responses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal responses of round %s: %w", record.RoundID, err)
	}

	return &record, nil
}
