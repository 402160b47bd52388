package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/state"
	"github.com/elys-network/avs/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

const (
	defaultPort         = "8080"
	defaultRoundsLimit  = 20
	maxRoundsLimit      = 100
	roundCacheSize      = 256
	defaultRatePerSec   = 20
	defaultRateBurst    = 40
	shutdownGracePeriod = 5 * time.Second
)

// RoundReader is the read side of the round store.
type RoundReader interface {
	GetRecentRounds(limit int) ([]types.RoundRecord, error)
	GetRoundByID(roundID string) (*types.RoundRecord, error)
	GetLatestRound() (*types.RoundRecord, error)
	GetTrustScores() ([]types.TrustScore, error)
	LoadActiveScoringParameters(configName string) (*types.ScoringParameters, error)
	Ping() error
}

// Options configures the web server. A nil Store disables the round and trust endpoints.
type Options struct {
	Port              string
	Store             RoundReader
	ConfigName        string
	Parameters        types.ScoringParameters // Served when the store holds no active set
	RequestsPerSecond float64
	Burst             int
	AllowedOrigins    []string
}

// WebServer serves round results, trust scores and metrics over HTTP
type WebServer struct {
	router  *mux.Router
	handler http.Handler
	port    string
	opts    Options
	rounds  *lru.Cache[string, types.RoundRecord]
	limiter *rate.Limiter
	started time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(opts Options) (*WebServer, error) {
	if opts.Port == "" {
		opts.Port = defaultPort
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRatePerSec
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultRateBurst
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	// Scored rounds never change, so they can be cached by ID indefinitely.
	rounds, err := lru.New[string, types.RoundRecord](roundCacheSize)
	if err != nil {
		return nil, err
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    opts.Port,
		opts:    opts,
		rounds:  rounds,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		started: time.Now(),
	}

	server.setupRoutes()
	return server, nil
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods(http.MethodGet)
	ws.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/rounds", ws.handleGetRounds).Methods(http.MethodGet)
	api.HandleFunc("/rounds/latest", ws.handleGetLatestRound).Methods(http.MethodGet)
	api.HandleFunc("/rounds/{id}", ws.handleGetRound).Methods(http.MethodGet)
	api.HandleFunc("/trust", ws.handleGetTrustScores).Methods(http.MethodGet)
	api.HandleFunc("/scoring-parameters", ws.handleGetScoringParameters).Methods(http.MethodGet)
	api.Use(ws.rateLimitMiddleware)

	ws.router.Use(ws.loggingMiddleware)

	ws.handler = cors.New(cors.Options{
		AllowedOrigins: ws.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(ws.router)
}

// Handler returns the fully wrapped HTTP handler.
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		webLogger.Info().Msg("Shutting down web server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	persistence := ws.opts.Store != nil
	dbHealthy := true
	roundInfo := map[string]interface{}{
		"last_round_number": 0,
		"last_round_time":   nil,
	}

	if persistence {
		if err := ws.opts.Store.Ping(); err != nil {
			webLogger.Warn().Err(err).Msg("Database health check failed")
			dbHealthy = false
		} else if latest, err := ws.opts.Store.GetLatestRound(); err == nil {
			roundInfo["last_round_number"] = latest.RoundNumber
			roundInfo["last_round_time"] = latest.Timestamp
			roundInfo["last_round_id"] = latest.RoundID
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "avs-allocation-scoring",
			"version": "1.0.0",
		},
		"avs_status": map[string]interface{}{
			"persistence_enabled": persistence,
			"database_healthy":    dbHealthy,
			"round_info":          roundInfo,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetRounds returns the most recent rounds
func (ws *WebServer) handleGetRounds(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}

	limit := defaultRoundsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= maxRoundsLimit {
			limit = parsedLimit
		}
	}

	rounds, err := ws.opts.Store.GetRecentRounds(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent rounds")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rounds")
		return
	}
	for _, round := range rounds {
		ws.rounds.Add(round.RoundID, round)
	}

	response := map[string]interface{}{
		"rounds": rounds,
		"count":  len(rounds),
		"limit":  limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRound returns a specific round by its round ID
func (ws *WebServer) handleGetRound(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}

	id := mux.Vars(r)["id"]
	if cached, ok := ws.rounds.Get(id); ok {
		ws.writeJSONResponse(w, http.StatusOK, cached)
		return
	}

	round, err := ws.opts.Store.GetRoundByID(id)
	if err != nil {
		if errors.Is(err, state.ErrRoundNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Round not found")
			return
		}
		webLogger.Error().Err(err).Str("roundId", id).Msg("Failed to get round")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve round")
		return
	}
	ws.rounds.Add(id, *round)

	ws.writeJSONResponse(w, http.StatusOK, round)
}

// handleGetLatestRound returns the most recent round
func (ws *WebServer) handleGetLatestRound(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}

	round, err := ws.opts.Store.GetLatestRound()
	if err != nil {
		if errors.Is(err, state.ErrRoundNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "No rounds found")
			return
		}
		webLogger.Error().Err(err).Msg("Failed to get latest round")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve latest round")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, round)
}

// handleGetTrustScores returns every participant's trust score
func (ws *WebServer) handleGetTrustScores(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}

	scores, err := ws.opts.Store.GetTrustScores()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get trust scores")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve trust scores")
		return
	}
	if scores == nil {
		scores = []types.TrustScore{}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"scores": scores,
		"count":  len(scores),
	})
}

// handleGetScoringParameters returns the scoring parameters rounds are scored with
func (ws *WebServer) handleGetScoringParameters(w http.ResponseWriter, r *http.Request) {
	params := ws.opts.Parameters
	source := "config"

	if ws.opts.Store != nil {
		stored, err := ws.opts.Store.LoadActiveScoringParameters(ws.opts.ConfigName)
		switch {
		case err == nil:
			params = *stored
			source = "database"
		case errors.Is(err, state.ErrNoActiveParameters):
		default:
			webLogger.Error().Err(err).Msg("Failed to get scoring parameters")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve scoring parameters")
			return
		}
	}

	response := map[string]interface{}{
		"parameters": params,
		"source":     source,
		"timestamp":  time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) requireStore(w http.ResponseWriter) bool {
	if ws.opts.Store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Persistence is disabled")
		return false
	}
	return true
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// rateLimitMiddleware rejects API requests above the configured rate
func (ws *WebServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ws.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			ws.writeErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
