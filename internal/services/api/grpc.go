package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/plants/internal/config"
	"github.com/LeonardoBeccarini/plants/internal/hw"
	"github.com/LeonardoBeccarini/plants/internal/services/gardener"
)

const (
	gardenerService = "plants.v1.Gardener"
	statusMethod    = "/" + gardenerService + "/Status"
	waterMethod     = "/" + gardenerService + "/Water"
)

// GardenerServer is the gRPC face of the gardener. Messages are
// well-known types so no generated code is needed:
//
//	Status(Empty) returns (Struct)          // same document as GET /
//	Water(Struct{pump, duration, force}) returns (Struct{status, id, reason})
type GardenerServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Water(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var gardenerServiceDesc = grpc.ServiceDesc{
	ServiceName: gardenerService,
	HandlerType: (*GardenerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "Water", Handler: waterHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "plants/v1/gardener.proto",
}

// RegisterGardenerServer registers srv on s.
func RegisterGardenerServer(s grpc.ServiceRegistrar, srv GardenerServer) {
	s.RegisterService(&gardenerServiceDesc, srv)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GardenerServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(GardenerServer).Status(ctx, req.(*emptypb.Empty))
	})
}

func waterHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GardenerServer).Water(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: waterMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(GardenerServer).Water(ctx, req.(*structpb.Struct))
	})
}

// GRPCServer implements GardenerServer over a Gardener.
type GRPCServer struct {
	g Gardener
}

func NewGRPCServer(g Gardener) *GRPCServer { return &GRPCServer{g: g} }

func (s *GRPCServer) Status(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	raw, err := json.Marshal(s.g.Status())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	out, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

func (s *GRPCServer) Water(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	pump := strings.TrimSpace(f["pump"].GetStringValue())
	if pump == "" {
		return nil, status.Error(codes.InvalidArgument, "pump is required")
	}
	var d time.Duration
	if raw := strings.TrimSpace(f["duration"].GetStringValue()); raw != "" {
		var err error
		if d, err = config.ParseDuration(raw); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	ok, id, err := s.g.Water(pump, d, f["force"].GetBoolValue())
	switch {
	case errors.Is(err, gardener.ErrUnknownPump):
		return nil, status.Error(codes.NotFound, err.Error())
	case errors.Is(err, gardener.ErrNotReady), errors.Is(err, hw.ErrPumpFaulted):
		return nil, status.Error(codes.Unavailable, err.Error())
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	}
	resp := map[string]any{"status": ok}
	if ok {
		resp["id"] = id
	} else {
		resp["reason"] = "quota"
	}
	return structpb.NewStruct(resp)
}

// Client calls a remote GardenerServer.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) Status(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, statusMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Water asks for a watering. duration uses the config syntax ("30s",
// "2m"); empty means the pump default.
func (c *Client) Water(ctx context.Context, pump, duration string, force bool) (bool, string, error) {
	req, err := structpb.NewStruct(map[string]any{"pump": pump, "duration": duration, "force": force})
	if err != nil {
		return false, "", err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, waterMethod, req, out); err != nil {
		return false, "", err
	}
	f := out.GetFields()
	return f["status"].GetBoolValue(), f["id"].GetStringValue(), nil
}
