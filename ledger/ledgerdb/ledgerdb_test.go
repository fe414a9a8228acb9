package ledgerdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/keys"
	"xdao.co/taskledger/ledger"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signer(t *testing.T, b byte) keys.Signer {
	t.Helper()
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	s, err := keys.NewSigner(keys.SchemeEd25519, seed)
	require.NoError(t, err)
	return s
}

func open(t *testing.T, owner keys.Signer, autoSeal bool) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"), Options{
		Owner:    owner.Address(),
		AutoSeal: autoSeal,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func b32(t *testing.T, s string) ledger.Bytes32 {
	t.Helper()
	b, err := ledger.EncodeBytes32(s)
	require.NoError(t, err)
	return b
}

func TestSubmitIsPendingUntilSealed(t *testing.T) {
	ctx := context.Background()
	owner := signer(t, 1)
	db := open(t, owner, false)
	c := ledger.NewClient(db, owner)

	id, err := cidutil.CIDv1RawSHA256CID([]byte("0123456789"))
	require.NoError(t, err)
	h, err := c.SubmitTask(ctx, b32(t, "run-001"), id)
	require.NoError(t, err)

	st, err := db.TxStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, st.Status)

	n, err := db.GetTasksCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := db.Seal(ctx)
	require.NoError(t, err)
	assert.Equal(t, SealResult{Block: 1, Final: 1}, res)

	st, err = db.TxStatus(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, ledger.TxState{Status: ledger.StatusFinal, Block: 1}, st)

	rec, err := db.GetTask(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "run-001", rec.DataID.String())
	assert.Equal(t, id.String(), rec.InputCID)
	assert.Equal(t, owner.Address(), rec.Submitter)
	assert.False(t, rec.Completed)

	res, err = db.Seal(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Block, "empty seal creates no block")
}

func TestDuplicateDataIDRejected(t *testing.T) {
	ctx := context.Background()
	owner := signer(t, 1)
	db := open(t, owner, false)
	c := ledger.NewClient(db, owner)
	id, _ := cidutil.CIDv1RawSHA256CID([]byte("a"))

	_, err := c.SubmitTask(ctx, b32(t, "dup"), id)
	require.NoError(t, err)
	_, err = c.SubmitTask(ctx, b32(t, "dup"), id)
	assert.ErrorIs(t, err, ledger.ErrDuplicateKey, "pending duplicate")

	_, err = db.Seal(ctx)
	require.NoError(t, err)
	_, err = c.SubmitTask(ctx, b32(t, "dup"), id)
	assert.ErrorIs(t, err, ledger.ErrDuplicateKey, "sealed duplicate")
}

func TestGrantRevokeLifecycle(t *testing.T) {
	ctx := context.Background()
	owner := signer(t, 1)
	worker := signer(t, 2)
	db := open(t, owner, true)
	c := ledger.NewClient(db, owner)

	_, err := c.GrantRole(ctx, b32(t, RoleWorker), worker.Address(), b32(t, "compute"), 0)
	require.NoError(t, err)

	roles, err := db.GetAllRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	d, err := db.GetRoleDetails(ctx, roles[0])
	require.NoError(t, err)
	assert.Equal(t, "compute", d.Description.String())
	assert.Zero(t, d.Expiration)
	assert.Equal(t, worker.Address(), d.Members[0])

	_, err = c.RevokeRole(ctx, b32(t, RoleWorker), worker.Address())
	require.NoError(t, err)
	roles, err = db.GetAllRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, roles, "revoking the last member removes the role")

	_, err = c.RevokeRole(ctx, b32(t, RoleWorker), worker.Address())
	assert.ErrorIs(t, err, ledger.ErrNotMember)
}

func TestRoleOpsRequireOwnerOrAdmin(t *testing.T) {
	ctx := context.Background()
	owner := signer(t, 1)
	stranger := signer(t, 3)
	db := open(t, owner, true)

	_, err := ledger.NewClient(db, stranger).GrantRole(ctx, b32(t, RoleAdmin), stranger.Address(), b32(t, "me"), 0)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = ledger.NewClient(db, owner).GrantRole(ctx, b32(t, RoleAdmin), stranger.Address(), b32(t, "ops"), 0)
	require.NoError(t, err)
	_, err = ledger.NewClient(db, stranger).GrantRole(ctx, b32(t, RoleWorker), stranger.Address(), b32(t, "me"), 0)
	assert.NoError(t, err)
}

func TestExpiredRoleIsNotAuthoritative(t *testing.T) {
	ctx := context.Background()
	owner := signer(t, 1)
	worker := signer(t, 2)
	db := open(t, owner, true)
	oc := ledger.NewClient(db, owner)
	wc := ledger.NewClient(db, worker)

	id, _ := cidutil.CIDv1RawSHA256CID([]byte("input"))
	_, err := oc.SubmitTask(ctx, b32(t, "t-1"), id)
	require.NoError(t, err)

	_, err = oc.GrantRole(ctx, b32(t, RoleWorker), worker.Address(), b32(t, "compute"), now.Unix()-1)
	require.NoError(t, err)
	ok, err := db.HasRole(ctx, worker.Address(), RoleWorker)
	require.NoError(t, err)
	assert.False(t, ok)

	result, _ := cidutil.CIDv1RawSHA256CID([]byte("result"))
	_, err = wc.CompleteTask(ctx, 0, result)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = oc.GrantRole(ctx, b32(t, RoleWorker), worker.Address(), b32(t, "compute"), now.Unix())
	require.NoError(t, err)
	_, err = wc.CompleteTask(ctx, 0, result)
	require.NoError(t, err)

	rec, err := db.GetTask(ctx, 0)
	require.NoError(t, err)
	assert.True(t, rec.Completed)
	assert.Equal(t, result.String(), rec.ResultCID)
}

func TestConflictingCompletionRevertsAtSeal(t *testing.T) {
	ctx := context.Background()
	owner := signer(t, 1)
	db := open(t, owner, false)
	c := ledger.NewClient(db, owner)

	id, _ := cidutil.CIDv1RawSHA256CID([]byte("input"))
	_, err := c.SubmitTask(ctx, b32(t, "t-1"), id)
	require.NoError(t, err)
	_, err = db.Seal(ctx)
	require.NoError(t, err)

	r1, _ := cidutil.CIDv1RawSHA256CID([]byte("r1"))
	r2, _ := cidutil.CIDv1RawSHA256CID([]byte("r2"))
	h1, err := c.CompleteTask(ctx, 0, r1)
	require.NoError(t, err)
	h2, err := c.CompleteTask(ctx, 0, r2)
	require.NoError(t, err)

	res, err := db.Seal(ctx)
	require.NoError(t, err)
	assert.Equal(t, SealResult{Block: 2, Final: 1, Reverted: 1}, res)

	st1, _ := db.TxStatus(ctx, h1)
	st2, _ := db.TxStatus(ctx, h2)
	assert.Equal(t, ledger.StatusFinal, st1.Status)
	assert.Equal(t, ledger.StatusReverted, st2.Status)
	assert.Contains(t, st2.Reason, "already completed")
}

func TestRejectsForgedSignature(t *testing.T) {
	ctx := context.Background()
	owner := signer(t, 1)
	db := open(t, owner, true)

	id, _ := cidutil.CIDv1RawSHA256CID([]byte("x"))
	stx, err := ledger.Sign(ledger.Tx{Op: ledger.OpSubmitTask, Nonce: "n", DataID: b32(t, "x"), CID: id.String()}, owner)
	require.NoError(t, err)
	stx.Tx.DataID = b32(t, "y")

	_, err = db.Submit(ctx, stx)
	assert.ErrorIs(t, err, ledger.ErrBadSignature)
}

func TestUnknownTxIsNotFound(t *testing.T) {
	db := open(t, signer(t, 1), true)
	_, err := db.TxStatus(context.Background(), ledger.TxHandle{Hash: "0xdead"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
