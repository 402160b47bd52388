package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/avs/internal/types"
)

var (
	ErrMissingEnv = errors.New("required environment variable is not set")
	ErrInvalidEnv = errors.New("environment variable has an invalid value")
)

// DatabaseConfig holds the Postgres connection parameters. Persistence is disabled when Host is empty.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AppConfig holds all application configuration loaded from environment variables.
// It is built once at startup by LoadConfig and passed explicitly to every component.
type AppConfig struct {
	LogLevel string
	LogFile  string // Optional file that receives a copy of the console log

	// Participants is the ordered list of allocators queried every round.
	Participants []ParticipantEndpoint
	// QueryTimeout bounds a single participant query.
	QueryTimeout time.Duration
	// MaxInFlightQueries bounds how many participants are queried concurrently.
	MaxInFlightQueries int

	// RoundInterval is the time between two scoring rounds.
	RoundInterval time.Duration
	// ScoringWindow is how long realized yields accrue between dispatch and scoring.
	ScoringWindow time.Duration

	AllocationThreshold           math.Int
	AllocationSimilarityThreshold float64
	APYSimilarityThreshold        float64

	// TrustAlpha is the smoothing factor of the persisted trust scores.
	TrustAlpha float64

	// SimSeed and SimStep drive the synthetic market used to generate challenges.
	SimSeed int64
	SimStep time.Duration

	WebPort           string
	ParticipantListen string

	Database DatabaseConfig
}

// PersistenceEnabled reports whether a database is configured.
func (c *AppConfig) PersistenceEnabled() bool {
	return c.Database.Host != ""
}

// ScoringParameters builds the parameters object handed to each scoring round.
func (c *AppConfig) ScoringParameters() types.ScoringParameters {
	return types.ScoringParameters{
		AllocationThreshold:           types.IntOrZero(c.AllocationThreshold),
		AllocationSimilarityThreshold: c.AllocationSimilarityThreshold,
		APYSimilarityThreshold:        c.APYSimilarityThreshold,
	}
}

// LoadConfig loads configuration from environment variables.
// Only PARTICIPANT_ENDPOINTS is required; everything else falls back to the defaults in Parameters.go.
func LoadConfig() (*AppConfig, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	cfg := &AppConfig{
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:           getEnvOrDefault("LOG_FILE", ""),
		WebPort:           getEnvOrDefault("WEB_PORT", DefaultWebPort),
		ParticipantListen: getEnvOrDefault("PARTICIPANT_LISTEN", DefaultParticipantListen),
	}

	var err error

	cfg.Participants, err = loadParticipantEndpoints()
	if err != nil {
		return nil, err
	}

	if cfg.QueryTimeout, err = getEnvAsDurationOrDefault("QUERY_TIMEOUT", DefaultQueryTimeout); err != nil {
		return nil, err
	}
	if cfg.RoundInterval, err = getEnvAsDurationOrDefault("ROUND_INTERVAL", DefaultRoundInterval); err != nil {
		return nil, err
	}
	if cfg.ScoringWindow, err = getEnvAsDurationOrDefault("SCORING_WINDOW", DefaultScoringWindow); err != nil {
		return nil, err
	}
	if cfg.SimStep, err = getEnvAsDurationOrDefault("SIM_STEP", DefaultSimStep); err != nil {
		return nil, err
	}

	maxInFlight, err := getEnvAsUint64OrDefault("MAX_IN_FLIGHT_QUERIES", DefaultMaxInFlightQueries)
	if err != nil {
		return nil, err
	}
	cfg.MaxInFlightQueries = int(maxInFlight)

	if cfg.AllocationThreshold, err = getEnvAsIntOrDefault("ALLOCATION_THRESHOLD", DefaultScoringParameters.AllocationThreshold); err != nil {
		return nil, err
	}
	if cfg.AllocationSimilarityThreshold, err = getEnvAsFloat64OrDefault("ALLOCATION_SIMILARITY_THRESHOLD", DefaultScoringParameters.AllocationSimilarityThreshold); err != nil {
		return nil, err
	}
	if cfg.APYSimilarityThreshold, err = getEnvAsFloat64OrDefault("APY_SIMILARITY_THRESHOLD", DefaultScoringParameters.APYSimilarityThreshold); err != nil {
		return nil, err
	}
	if cfg.TrustAlpha, err = getEnvAsFloat64OrDefault("TRUST_ALPHA", DefaultTrustAlpha); err != nil {
		return nil, err
	}
	if cfg.TrustAlpha <= 0 || cfg.TrustAlpha > 1 {
		return nil, fmt.Errorf("%w: TRUST_ALPHA must be in (0,1], got %g", ErrInvalidEnv, cfg.TrustAlpha)
	}

	seed, err := getEnvAsUint64OrDefault("SIM_SEED", DefaultSimSeed)
	if err != nil {
		return nil, err
	}
	cfg.SimSeed = int64(seed)

	cfg.Database, err = loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("participants", len(cfg.Participants)).
		Dur("queryTimeout", cfg.QueryTimeout).
		Dur("roundInterval", cfg.RoundInterval).
		Dur("scoringWindow", cfg.ScoringWindow).
		Str("allocationThreshold", cfg.AllocationThreshold.String()).
		Float64("allocationSimilarityThreshold", cfg.AllocationSimilarityThreshold).
		Float64("apySimilarityThreshold", cfg.APYSimilarityThreshold).
		Bool("persistence", cfg.PersistenceEnabled()).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	port, err := getEnvAsUint64OrDefault("DB_PORT", 5432)
	if err != nil {
		return DatabaseConfig{}, err
	}
	return DatabaseConfig{
		Host:     os.Getenv("DB_HOST"),
		Port:     int(port),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrMissingEnv, key)
}

// getEnvOrDefault retrieves a string environment variable, or fallback when it is unset or blank.
func getEnvOrDefault(key, fallback string) string {
	value, err := getEnv(key)
	if err != nil || strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(strings.TrimSpace(valueStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a valid uint64, got: %s", ErrInvalidEnv, key, valueStr)
	}
	return value, nil
}

func getEnvAsUint64OrDefault(key string, fallback uint64) (uint64, error) {
	if getEnvOrDefault(key, "") == "" {
		return fallback, nil
	}
	return getEnvAsUint64(key)
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a valid float64, got: %s", ErrInvalidEnv, key, valueStr)
	}
	return value, nil
}

func getEnvAsFloat64OrDefault(key string, fallback float64) (float64, error) {
	if getEnvOrDefault(key, "") == "" {
		return fallback, nil
	}
	value, err := getEnvAsFloat64(key)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: %s cannot be negative, got: %g", ErrInvalidEnv, key, value)
	}
	return value, nil
}

// getEnvAsDurationOrDefault accepts Go durations ("90s", "10m") or a plain number of seconds.
func getEnvAsDurationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	if seconds, err := strconv.ParseFloat(valueStr, 64); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("%w: %s cannot be negative, got: %s", ErrInvalidEnv, key, valueStr)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: %s must be a valid duration, got: %s", ErrInvalidEnv, key, valueStr)
	}
	return value, nil
}

// getEnvAsIntOrDefault parses a base-unit amount.
func getEnvAsIntOrDefault(key string, fallback math.Int) (math.Int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, ok := math.NewIntFromString(valueStr)
	if !ok || value.IsNegative() {
		return math.Int{}, fmt.Errorf("%w: %s must be a non-negative integer, got: %s", ErrInvalidEnv, key, valueStr)
	}
	return value, nil
}
