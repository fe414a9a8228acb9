// Package grpcledger carries the ledger engine over gRPC. Remote implements
// ledger.Engine, so a ledger.NewClient over a Remote signs locally and
// submits to a ledgerd process.
package grpcledger

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/taskledger/ledger"
)

// Remote implements ledger.Engine over the Ledger gRPC service.
type Remote struct {
	cc     *grpc.ClientConn
	client LedgerClient

	// Timeout applies per RPC when non-zero, on top of the caller's context.
	Timeout time.Duration
}

var _ ledger.Engine = (*Remote)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration
}

func Dial(target string, opts DialOptions) (*Remote, error) {
	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	cc, err := grpc.DialContext(ctx, target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return NewRemote(cc), nil
}

// NewRemote wraps an established connection.
func NewRemote(cc *grpc.ClientConn) *Remote {
	return &Remote{cc: cc, client: NewLedgerClient(cc)}
}

func (r *Remote) Close() error {
	if r == nil || r.cc == nil {
		return nil
	}
	return r.cc.Close()
}

func (r *Remote) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout > 0 {
		return context.WithTimeout(parent, r.Timeout)
	}
	return context.WithCancel(parent)
}

func (r *Remote) Submit(ctx context.Context, stx ledger.SignedTx) (ledger.TxHandle, error) {
	body, err := json.Marshal(stx)
	if err != nil {
		return ledger.TxHandle{}, err
	}
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	out, err := r.client.Submit(ctx, wrapperspb.Bytes(body))
	if err != nil {
		return ledger.TxHandle{}, mapRPC(err)
	}
	return ledger.TxHandle{Hash: out.GetValue()}, nil
}

func (r *Remote) TxStatus(ctx context.Context, h ledger.TxHandle) (ledger.TxState, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	out, err := r.client.TxStatus(ctx, wrapperspb.String(h.Hash))
	if err != nil {
		return ledger.TxState{}, mapRPC(err)
	}
	return stateFromStruct(out)
}

func (r *Remote) GetAllRoles(ctx context.Context) ([]ledger.Bytes32, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	out, err := r.client.GetAllRoles(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, mapRPC(err)
	}
	ids := make([]ledger.Bytes32, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		var id ledger.Bytes32
		if err := id.UnmarshalText([]byte(v.GetStringValue())); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Remote) GetRoleDetails(ctx context.Context, roleID ledger.Bytes32) (ledger.RoleDetails, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	out, err := r.client.GetRoleDetails(ctx, wrapperspb.String(roleID.Hex()))
	if err != nil {
		return ledger.RoleDetails{}, mapRPC(err)
	}
	return roleFromStruct(out)
}

func (r *Remote) GetTasksCount(ctx context.Context) (uint64, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	out, err := r.client.GetTasksCount(ctx, &emptypb.Empty{})
	if err != nil {
		return 0, mapRPC(err)
	}
	return out.GetValue(), nil
}

func (r *Remote) GetTask(ctx context.Context, index uint64) (ledger.TaskRecord, error) {
	ctx, cancel := r.ctx(ctx)
	defer cancel()
	out, err := r.client.GetTask(ctx, wrapperspb.UInt64(index))
	if err != nil {
		return ledger.TaskRecord{}, mapRPC(err)
	}
	return taskFromStruct(out)
}
