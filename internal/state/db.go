// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// ErrDBNotInitialized is returned by every store function when InitDB has not run.
var ErrDBNotInitialized = errors.New("database not initialized")

// connectTimeout bounds how long InitDB keeps retrying the first ping.
const connectTimeout = 30 * time.Second

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool. The first ping is retried with exponential
// backoff so the service can start alongside its database.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectTimeout
	err = backoff.RetryNotify(db.Ping, policy, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retryIn", wait).Msg("Database not reachable yet")
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db
	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS scoring_parameters (
		params_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 1,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		allocation_threshold NUMERIC(78, 0) NOT NULL,
		allocation_similarity_threshold DOUBLE PRECISION NOT NULL,
		apy_similarity_threshold DOUBLE PRECISION NOT NULL,
		CONSTRAINT uq_scoring_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_scoring_parameters_config_active_timestamp ON scoring_parameters(config_name, is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS round_results (
		record_id SERIAL PRIMARY KEY,
		round_id VARCHAR(64) NOT NULL UNIQUE,
		round_number INTEGER NOT NULL,
		round_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		scoring_params_id INTEGER REFERENCES scoring_parameters(params_id),
		total_assets TEXT NOT NULL,
		resource_count INTEGER NOT NULL,
		elapsed_seconds BIGINT NOT NULL,
		participants TEXT[] NOT NULL, -- PostgreSQL arrays, index-aligned
		rewards DOUBLE PRECISION[] NOT NULL,
		result JSONB NOT NULL,
		responses JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_round_results_timestamp ON round_results(round_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_round_results_number ON round_results(round_number DESC);

	-- Trust scores, an exponential moving average of each participant's rewards
	CREATE TABLE IF NOT EXISTS trust_scores (
		participant_id VARCHAR(255) PRIMARY KEY,
		score DOUBLE PRECISION NOT NULL,
		rounds INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Round counter table for persistent global round tracking
	CREATE TABLE IF NOT EXISTS round_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_round INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	-- Insert initial row if it doesn't exist
	INSERT INTO round_counter (id, current_round)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

const dropSchemaSQL = `
	DROP TABLE IF EXISTS round_results CASCADE;
	DROP TABLE IF EXISTS trust_scores CASCADE;
	DROP TABLE IF EXISTS round_counter CASCADE;
	DROP TABLE IF EXISTS scoring_parameters CASCADE;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table of the service. Used by the reset script.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	if _, err := DB.Exec(dropSchemaSQL); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	log.Warn().Msg("Database schema dropped.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
