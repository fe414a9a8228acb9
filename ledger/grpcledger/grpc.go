package grpcledger

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "taskledger.ledger.v1.Ledger"

// LedgerServer is the server API for the Ledger gRPC service.
//
// Messages are protobuf well-known types so no codegen step is needed.
// Signed transactions travel as their JSON encoding; records travel as
// structpb.Struct with integers rendered as decimal strings.
type LedgerServer interface {
	Submit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	TxStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetAllRoles(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetRoleDetails(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetTasksCount(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error)
	GetTask(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error)
}

// UnimplementedLedgerServer can be embedded to have forward compatible implementations.
type UnimplementedLedgerServer struct{}

func (UnimplementedLedgerServer) Submit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Submit not implemented")
}
func (UnimplementedLedgerServer) TxStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method TxStatus not implemented")
}
func (UnimplementedLedgerServer) GetAllRoles(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAllRoles not implemented")
}
func (UnimplementedLedgerServer) GetRoleDetails(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetRoleDetails not implemented")
}
func (UnimplementedLedgerServer) GetTasksCount(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTasksCount not implemented")
}
func (UnimplementedLedgerServer) GetTask(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTask not implemented")
}

// RegisterLedgerServer registers the Ledger service on a gRPC server.
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&Ledger_ServiceDesc, srv)
}

// LedgerClient is the client API for the Ledger gRPC service.
type LedgerClient interface {
	Submit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	TxStatus(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetAllRoles(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	GetRoleDetails(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetTasksCount(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error)
	GetTask(ctx context.Context, in *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type ledgerClient struct{ cc grpc.ClientConnInterface }

func NewLedgerClient(cc grpc.ClientConnInterface) LedgerClient { return &ledgerClient{cc: cc} }

func invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Out, error) {
	out := new(Out)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerClient) Submit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, "Submit", in, opts)
}

func (c *ledgerClient) TxStatus(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "TxStatus", in, opts)
}

func (c *ledgerClient) GetAllRoles(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, "GetAllRoles", in, opts)
}

func (c *ledgerClient) GetRoleDetails(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "GetRoleDetails", in, opts)
}

func (c *ledgerClient) GetTasksCount(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error) {
	return invoke[wrapperspb.UInt64Value](ctx, c.cc, "GetTasksCount", in, opts)
}

func (c *ledgerClient) GetTask(ctx context.Context, in *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "GetTask", in, opts)
}

// methodHandler is the handler signature expected by grpc.MethodDesc.
type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

// unary adapts a typed server method into a methodHandler.
func unary[In any](method string, call func(LedgerServer, context.Context, *In) (any, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServer), ctx, req.(*In))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Ledger_ServiceDesc is the grpc.ServiceDesc for the Ledger service.
var Ledger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unary("Submit", func(s LedgerServer, ctx context.Context, in *wrapperspb.BytesValue) (any, error) {
			return s.Submit(ctx, in)
		})},
		{MethodName: "TxStatus", Handler: unary("TxStatus", func(s LedgerServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.TxStatus(ctx, in)
		})},
		{MethodName: "GetAllRoles", Handler: unary("GetAllRoles", func(s LedgerServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetAllRoles(ctx, in)
		})},
		{MethodName: "GetRoleDetails", Handler: unary("GetRoleDetails", func(s LedgerServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.GetRoleDetails(ctx, in)
		})},
		{MethodName: "GetTasksCount", Handler: unary("GetTasksCount", func(s LedgerServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetTasksCount(ctx, in)
		})},
		{MethodName: "GetTask", Handler: unary("GetTask", func(s LedgerServer, ctx context.Context, in *wrapperspb.UInt64Value) (any, error) {
			return s.GetTask(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taskledger/ledger/v1/ledger.proto",
}
