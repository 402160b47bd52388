package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/types"
)

var (
	ErrNoEndpoints     = errors.New("no participant endpoints configured")
	ErrInvalidTimeout  = errors.New("query timeout must be positive")
	ErrEmptyAllocation = errors.New("participant returned no allocation")
)

var dispatchLogger = logger.GetForComponent("dispatcher")

// Endpoint is a participant's gRPC address.
type Endpoint struct {
	ID      types.ParticipantID
	Address string
}

// DispatcherConfig bounds a round's fan-out.
type DispatcherConfig struct {
	Timeout     time.Duration // Per participant query
	MaxInFlight int           // Concurrent queries; <= 0 means one per endpoint
	DialOptions []grpc.DialOption
}

// Dispatcher sends a round's challenge to every participant and collects the answers.
type Dispatcher struct {
	endpoints   []Endpoint
	conns       []*grpc.ClientConn
	clients     []ParticipantClient
	timeout     time.Duration
	maxInFlight int
}

// NewDispatcher creates one client per endpoint. Connections are established lazily on the
// first query.
func NewDispatcher(endpoints []Endpoint, cfg DispatcherConfig) (*Dispatcher, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTimeout, cfg.Timeout)
	}

	opts := cfg.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	d := &Dispatcher{
		endpoints:   endpoints,
		timeout:     cfg.Timeout,
		maxInFlight: cfg.MaxInFlight,
	}
	if d.maxInFlight <= 0 {
		d.maxInFlight = len(endpoints)
	}

	for _, endpoint := range endpoints {
		conn, err := grpc.NewClient(endpoint.Address, opts...)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create client for participant %s at %s: %w", endpoint.ID, endpoint.Address, err)
		}
		d.conns = append(d.conns, conn)
		d.clients = append(d.clients, NewParticipantClient(conn))
	}

	return d, nil
}

// Endpoints returns the participants in dispatch order.
func (d *Dispatcher) Endpoints() []Endpoint {
	return append([]Endpoint(nil), d.endpoints...)
}

// Dispatch queries every participant concurrently, at most MaxInFlight at a time, and returns
// one response per endpoint in endpoint order once every query has finished.
// A participant that errors, times out or answers without an allocation is reported with a nil
// Allocation and a round-trip time equal to the timeout. The error is only set when ctx ends.
func (d *Dispatcher) Dispatch(ctx context.Context, roundID string, challenge types.Challenge) ([]types.ParticipantResponse, error) {
	req := &AllocateRequest{RoundID: roundID, Challenge: challenge}
	responses := make([]types.ParticipantResponse, len(d.endpoints))

	var g errgroup.Group
	g.SetLimit(d.maxInFlight)
	for i := range d.endpoints {
		i := i
		g.Go(func() error {
			responses[i] = d.query(ctx, i, req)
			return nil
		})
	}
	_ = g.Wait()

	answered := 0
	for _, response := range responses {
		if response.Allocation != nil {
			answered++
		}
	}
	dispatchLogger.Info().
		Str("roundID", roundID).
		Int("participants", len(responses)).
		Int("answered", answered).
		Msg("Challenge dispatched")

	return responses, ctx.Err()
}

func (d *Dispatcher) query(ctx context.Context, i int, req *AllocateRequest) types.ParticipantResponse {
	endpoint := d.endpoints[i]
	missing := types.ParticipantResponse{ID: endpoint.ID, RoundTripTime: d.timeout.Seconds()}

	qctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	resp, err := d.clients[i].Allocate(qctx, req)
	elapsed := time.Since(start)

	if err == nil && (resp == nil || resp.Allocation == nil) {
		err = ErrEmptyAllocation
	}
	if err != nil {
		dispatchLogger.Debug().
			Str("roundID", req.RoundID).
			Str("participant", string(endpoint.ID)).
			Str("address", endpoint.Address).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("Participant query failed")
		return missing
	}

	return types.ParticipantResponse{
		ID:            endpoint.ID,
		Allocation:    resp.Allocation,
		RoundTripTime: elapsed.Seconds(),
	}
}

// Close closes every participant connection.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, conn := range d.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
