package grpcledger

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/taskledger/ledger"
)

// Server exposes a ledger.Engine over the Ledger gRPC service.
type Server struct {
	UnimplementedLedgerServer
	Engine ledger.Engine
}

func (s *Server) ready() error {
	if s == nil || s.Engine == nil {
		return status.Error(codes.Unavailable, "missing engine")
	}
	return nil
}

func (s *Server) Submit(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var stx ledger.SignedTx
	if err := json.Unmarshal(in.GetValue(), &stx); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode tx: %v", err)
	}
	h, err := s.Engine.Submit(ctx, stx)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.String(h.Hash), nil
}

func (s *Server) TxStatus(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	st, err := s.Engine.TxStatus(ctx, ledger.TxHandle{Hash: in.GetValue()})
	if err != nil {
		return nil, mapErr(err)
	}
	return stateToStruct(st)
}

func (s *Server) GetAllRoles(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ids, err := s.Engine.GetAllRoles(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	out := &structpb.ListValue{}
	for _, id := range ids {
		out.Values = append(out.Values, structpb.NewStringValue(id.Hex()))
	}
	return out, nil
}

func (s *Server) GetRoleDetails(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var id ledger.Bytes32
	if err := id.UnmarshalText([]byte(in.GetValue())); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "roleId: %v", err)
	}
	d, err := s.Engine.GetRoleDetails(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return roleToStruct(d)
}

func (s *Server) GetTasksCount(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	n, err := s.Engine.GetTasksCount(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.UInt64(n), nil
}

func (s *Server) GetTask(ctx context.Context, in *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	t, err := s.Engine.GetTask(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return taskToStruct(t)
}
