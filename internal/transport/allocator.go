package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"cosmossdk.io/math"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/planner"
	"github.com/elys-network/avs/internal/types"
)

var allocatorLogger = logger.GetForComponent("allocator_server")

// AllocatorServer answers challenges with the reference allocation.
type AllocatorServer struct {
	threshold math.Int
}

var _ ParticipantServer = (*AllocatorServer)(nil)

// NewAllocatorServer creates a participant that allocates with planner.NaiveAllocation.
func NewAllocatorServer(threshold math.Int) *AllocatorServer {
	return &AllocatorServer{threshold: types.IntOrZero(threshold)}
}

// Allocate implements ParticipantServer.
func (s *AllocatorServer) Allocate(ctx context.Context, req *AllocateRequest) (*AllocateResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "empty request")
	}
	allocation, err := planner.NaiveAllocation(req.Challenge, s.threshold)
	if err != nil {
		allocatorLogger.Warn().
			Str("roundID", req.RoundID).
			Err(err).
			Msg("Could not allocate challenge")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	allocatorLogger.Debug().
		Str("roundID", req.RoundID).
		Int("resources", len(allocation)).
		Str("allocated", allocation.Total().String()).
		Msg("Challenge allocated")

	return &AllocateResponse{Allocation: allocation}, nil
}

// NewServer returns a gRPC server with the participant service registered, panics turned into
// Internal errors and every call logged.
func NewServer(srv ParticipantServer, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := grpc_middleware.ChainUnaryServer(
		logUnary,
		grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandler(func(p any) error {
			allocatorLogger.Error().Interface("panic", p).Msg("Recovered from panic in handler")
			return status.Errorf(codes.Internal, "internal error")
		})),
	)
	server := grpc.NewServer(append([]grpc.ServerOption{grpc.UnaryInterceptor(interceptors)}, opts...)...)
	RegisterParticipantServer(server, srv)
	return server
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	allocatorLogger.Debug().
		Str("method", info.FullMethod).
		Dur("duration", time.Since(start)).
		Str("code", status.Code(err).String()).
		Msg("Handled call")
	return resp, err
}

// Serve runs server on lis until ctx is cancelled, then stops it gracefully.
func Serve(ctx context.Context, server *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		server.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
