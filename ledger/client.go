package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/keys"
)

// SignedClient signs writes with one session signer and dispatches them to an
// Engine. Reads pass straight through.
type SignedClient struct {
	Engine
	signer keys.Signer
}

var _ Client = (*SignedClient)(nil)

// NewClient binds engine to the session signer. A nil signer yields a
// read-only client whose writes fail with ErrNoSigner.
func NewClient(engine Engine, signer keys.Signer) *SignedClient {
	return &SignedClient{Engine: engine, signer: signer}
}

// Account is the signer's address, or the zero address for a read-only client.
func (c *SignedClient) Account() common.Address {
	if c.signer == nil {
		return ZeroAddress
	}
	return c.signer.Address()
}

func (c *SignedClient) SubmitTask(ctx context.Context, dataID Bytes32, id cid.Cid) (TxHandle, error) {
	return c.send(ctx, Tx{Op: OpSubmitTask, DataID: dataID, CID: cidString(id)})
}

func (c *SignedClient) CompleteTask(ctx context.Context, index uint64, result cid.Cid) (TxHandle, error) {
	return c.send(ctx, Tx{Op: OpCompleteTask, Index: index, CID: cidString(result)})
}

func (c *SignedClient) GrantRole(ctx context.Context, roleID Bytes32, account common.Address, description Bytes32, expiration int64) (TxHandle, error) {
	return c.send(ctx, Tx{Op: OpGrantRole, RoleID: roleID, Account: account, Description: description, Expiration: expiration})
}

func (c *SignedClient) RevokeRole(ctx context.Context, roleID Bytes32, account common.Address) (TxHandle, error) {
	return c.send(ctx, Tx{Op: OpRevokeRole, RoleID: roleID, Account: account})
}

func (c *SignedClient) send(ctx context.Context, tx Tx) (TxHandle, error) {
	if c.signer == nil {
		return TxHandle{}, ErrNoSigner
	}
	tx.Nonce = uuid.NewString()
	stx, err := Sign(tx, c.signer)
	if err != nil {
		return TxHandle{}, err
	}
	return c.Engine.Submit(ctx, stx)
}

func cidString(id cid.Cid) string {
	if !id.Defined() {
		return ""
	}
	return id.String()
}
