/*

This file contains the participant gRPC service: the request sent to every participant in a round,
the expected answer, and the hand-written service descriptor carried over the JSON codec.

*/

package transport

import (
	"context"

	"google.golang.org/grpc"

	"github.com/elys-network/avs/internal/types"
)

const (
	serviceName    = "avs.v1.Participant"
	allocateMethod = "/" + serviceName + "/Allocate"
)

// AllocateRequest is the challenge of one round as sent to a participant.
type AllocateRequest struct {
	RoundID   string          `json:"round_id"`
	Challenge types.Challenge `json:"challenge"`
}

// AllocateResponse is a participant's answer.
type AllocateResponse struct {
	Allocation types.Allocation `json:"allocation"`
}

// ParticipantServer is implemented by allocators.
type ParticipantServer interface {
	Allocate(ctx context.Context, req *AllocateRequest) (*AllocateResponse, error)
}

// ParticipantClient queries one participant.
type ParticipantClient interface {
	Allocate(ctx context.Context, req *AllocateRequest, opts ...grpc.CallOption) (*AllocateResponse, error)
}

type participantClient struct {
	cc grpc.ClientConnInterface
}

// NewParticipantClient wraps a connection to a participant.
func NewParticipantClient(cc grpc.ClientConnInterface) ParticipantClient {
	return &participantClient{cc: cc}
}

func (c *participantClient) Allocate(ctx context.Context, req *AllocateRequest, opts ...grpc.CallOption) (*AllocateResponse, error) {
	out := new(AllocateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, allocateMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func allocateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AllocateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ParticipantServer).Allocate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: allocateMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ParticipantServer).Allocate(ctx, req.(*AllocateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ParticipantServiceDesc describes the participant service for grpc.Server.
var ParticipantServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ParticipantServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Allocate",
			Handler:    allocateHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterParticipantServer registers an allocator on a gRPC server.
func RegisterParticipantServer(s grpc.ServiceRegistrar, srv ParticipantServer) {
	s.RegisterService(&ParticipantServiceDesc, srv)
}
