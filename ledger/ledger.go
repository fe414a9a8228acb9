package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
)

// TaskRecord is one task as stored on the ledger. Parameters are kept
// off-ledger and are not part of the record.
type TaskRecord struct {
	Index     uint64
	DataID    Bytes32
	InputCID  string
	ResultCID string
	Completed bool
	Submitter common.Address
}

// RoleDetails is a role and its current members.
//
// Expiration is unix seconds, 0 meaning permanent.
type RoleDetails struct {
	RoleID      Bytes32
	Expiration  int64
	Description Bytes32
	Members     []common.Address
}

// TxHandle identifies an accepted transaction.
type TxHandle struct {
	Hash string
}

// TxStatus is the lifecycle of an accepted transaction.
type TxStatus string

const (
	StatusPending  TxStatus = "pending"
	StatusFinal    TxStatus = "final"
	StatusReverted TxStatus = "reverted"
	StatusUnknown  TxStatus = "unknown"
)

// TxState is a status snapshot. Block is set once the transaction is
// included; Reason explains a revert.
type TxState struct {
	Status TxStatus
	Block  uint64
	Reason string
}

// Receipt describes a finalized write.
type Receipt struct {
	TxHash string
	Block  uint64
	Op     Op
	CID    string
}

// Reader is the read side of the ledger.
type Reader interface {
	GetAllRoles(ctx context.Context) ([]Bytes32, error)
	GetRoleDetails(ctx context.Context, roleID Bytes32) (RoleDetails, error)
	GetTasksCount(ctx context.Context) (uint64, error)
	GetTask(ctx context.Context, index uint64) (TaskRecord, error)
}

// StatusReader reports the state of accepted transactions.
type StatusReader interface {
	TxStatus(ctx context.Context, h TxHandle) (TxState, error)
}

// Writer submits signed writes. A returned handle is not finality.
type Writer interface {
	StatusReader
	SubmitTask(ctx context.Context, dataID Bytes32, id cid.Cid) (TxHandle, error)
	CompleteTask(ctx context.Context, index uint64, result cid.Cid) (TxHandle, error)
	GrantRole(ctx context.Context, roleID Bytes32, account common.Address, description Bytes32, expiration int64) (TxHandle, error)
	RevokeRole(ctx context.Context, roleID Bytes32, account common.Address) (TxHandle, error)
}

// Client is the full ledger surface used by the coordinator and role manager.
type Client interface {
	Reader
	Writer
}

// Engine accepts already-signed transactions. Implementations are the sqlite
// engine in ledgerdb and the gRPC remote in grpcledger.
type Engine interface {
	Reader
	StatusReader
	Submit(ctx context.Context, tx SignedTx) (TxHandle, error)
}
