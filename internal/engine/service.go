package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// RoomNameHeader is the gRPC metadata key naming the target room.
	RoomNameHeader = "x-room-name"
	// RoomGenerationHeader pins a call to one binding of the name. Calls
	// without it reach whatever room is currently bound.
	RoomGenerationHeader = "x-room-generation"
)

const (
	roomServiceName   = "arcade.engine.v1.Room"
	addUserFullMethod = "/" + roomServiceName + "/AddUser"
	resetFullMethod   = "/" + roomServiceName + "/Reset"
)

// roomServer is the server side of arcade.engine.v1.Room.
type roomServer interface {
	AddUser(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Reset(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

var roomServiceDesc = grpc.ServiceDesc{
	ServiceName: roomServiceName,
	HandlerType: (*roomServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddUser", Handler: addUserHandler},
		{MethodName: "Reset", Handler: resetHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func addUserHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(roomServer).AddUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: addUserFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(roomServer).AddUser(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func resetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(roomServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resetFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(roomServer).Reset(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Service serves the rooms of a Registry over gRPC.
type Service struct {
	registry *Registry
	logger   *zap.Logger
}

// NewService creates a Service resolving rooms in registry.
//
// Precondition: registry and logger must be non-nil.
func NewService(registry *Registry, logger *zap.Logger) *Service {
	return &Service{registry: registry, logger: logger}
}

// Register attaches svc to a gRPC server.
func Register(s grpc.ServiceRegistrar, svc *Service) {
	s.RegisterService(&roomServiceDesc, svc)
}

// AddUser registers a player with the named room.
func (s *Service) AddUser(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	name, board, err := s.lookup(ctx)
	if err != nil {
		return nil, err
	}
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "identity must not be empty")
	}
	board.AddUser(in.GetValue())
	s.logger.Debug("user added", zap.String("room", name), zap.String("identity", in.GetValue()))
	return &emptypb.Empty{}, nil
}

// Reset clears the named room.
func (s *Service) Reset(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	name, board, err := s.lookup(ctx)
	if err != nil {
		return nil, err
	}
	board.Reset()
	s.logger.Info("room reset", zap.String("room", name))
	return &emptypb.Empty{}, nil
}

func (s *Service) lookup(ctx context.Context) (string, *Board, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	names := md.Get(RoomNameHeader)
	if len(names) == 0 || names[0] == "" {
		return "", nil, status.Error(codes.InvalidArgument, "missing "+RoomNameHeader)
	}
	board, current, err := s.registry.Lookup(names[0])
	if errors.Is(err, ErrNotBound) {
		return "", nil, status.Error(codes.NotFound, err.Error())
	}
	if err != nil {
		return "", nil, status.Error(codes.Internal, err.Error())
	}
	if gens := md.Get(RoomGenerationHeader); len(gens) > 0 {
		want, err := strconv.ParseUint(gens[0], 10, 64)
		if err != nil {
			return "", nil, status.Errorf(codes.InvalidArgument, "malformed %s %q", RoomGenerationHeader, gens[0])
		}
		if want != current {
			return "", nil, status.Errorf(codes.FailedPrecondition,
				"room %q generation %d replaced by %d", names[0], want, current)
		}
	}
	return names[0], board, nil
}

// UnaryLogging logs every engine call with its room, status code and latency.
func UnaryLogging(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		var room string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if names := md.Get(RoomNameHeader); len(names) > 0 {
				room = names[0]
			}
		}
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("room", room),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("engine call failed", append(fields, zap.Error(err))...)
			return resp, err
		}
		logger.Debug("engine call", fields...)
		return resp, nil
	}
}
