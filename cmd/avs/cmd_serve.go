package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elys-network/avs/internal/config"
	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/simulations"
	"github.com/elys-network/avs/internal/state"
	"github.com/elys-network/avs/internal/transport"
	"github.com/elys-network/avs/internal/types"
	"github.com/elys-network/avs/internal/validator"
	"github.com/elys-network/avs/internal/web"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scoring rounds against the configured participants and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	// --- 1. Initialization Phase ---
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Initialize(cfg.LogLevel)
	if cfg.LogFile != "" {
		file, err := logger.FileWriter(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
	}
	log.Info().Msg("Allocation validator starting...")

	params := cfg.ScoringParameters()
	var (
		roundStore validator.RoundStore
		reader     web.RoundReader
	)

	if cfg.PersistenceEnabled() {
		dbCfg := state.DBConfig{
			Host: cfg.Database.Host, Port: cfg.Database.Port,
			User: cfg.Database.User, Password: cfg.Database.Password,
			DBName: cfg.Database.DBName, SSLMode: cfg.Database.SSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			return fmt.Errorf("failed to ensure database schema: %w", err)
		}

		active, err := loadScoringParameters(params)
		if err != nil {
			return err
		}
		params = *active
		roundStore, reader = state.Store{}, state.Store{}
	} else {
		log.Warn().Msg("DB_HOST is not set. Rounds and trust scores will not be persisted.")
	}

	// --- 2. Participants ---
	endpoints := make([]transport.Endpoint, len(cfg.Participants))
	for i, p := range cfg.Participants {
		endpoints[i] = transport.Endpoint{ID: p.ID, Address: p.Address}
	}
	dispatcher, err := transport.NewDispatcher(endpoints, transport.DispatcherConfig{
		Timeout:     cfg.QueryTimeout,
		MaxInFlight: cfg.MaxInFlightQueries,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer dispatcher.Close()

	// --- 3. Validator ---
	market := simulations.NewMarket(simulations.MarketConfig{Seed: cfg.SimSeed, Step: cfg.SimStep})
	v, err := validator.NewValidator(validator.Config{
		Challenges:    market,
		Provider:      market,
		Dispatcher:    dispatcher,
		Store:         roundStore,
		Params:        params,
		ConfigName:    config.DefaultScoringConfigName,
		ScoringWindow: cfg.ScoringWindow,
		TrustAlpha:    cfg.TrustAlpha,
	})
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	webServer, err := web.NewWebServer(web.Options{
		Port:       cfg.WebPort,
		Store:      reader,
		ConfigName: config.DefaultScoringConfigName,
		Parameters: params,
	})
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	// --- 4. Run until interrupted ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.WebPort).Str("url", "http://localhost:"+cfg.WebPort).Msg("Starting HTTP API")
		return webServer.Start(gctx)
	})
	g.Go(func() error {
		v.RunLoop(gctx, cfg.RoundInterval)
		return nil
	})

	err = g.Wait()
	log.Info().Int("roundsScored", v.RoundsScored()).Msg("Allocation validator stopped")
	return err
}

// loadScoringParameters returns the active parameters stored in the database. When none are
// stored yet, fallback is saved as the first active version and returned.
func loadScoringParameters(fallback types.ScoringParameters) (*types.ScoringParameters, error) {
	params, err := state.LoadActiveScoringParameters(config.DefaultScoringConfigName)
	if err == nil {
		log.Info().Msg("Scoring parameters loaded successfully.")
		return params, nil
	}
	if !errors.Is(err, state.ErrNoActiveParameters) {
		return nil, fmt.Errorf("failed to load scoring parameters: %w", err)
	}

	log.Warn().Err(err).Msg("No active scoring parameters, saving the configured ones.")
	if _, err := state.SaveScoringParameters(fallback, config.DefaultScoringConfigName, config.DefaultScoringParametersVersion, true); err != nil {
		return nil, fmt.Errorf("failed to save initial scoring parameters: %w", err)
	}
	return &fallback, nil
}
