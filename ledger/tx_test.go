package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/keys"
)

func testSigner(t *testing.T, b byte) keys.Signer {
	t.Helper()
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	s, err := keys.NewSigner(keys.SchemeEd25519, seed)
	require.NoError(t, err)
	return s
}

func submitTx(t *testing.T) Tx {
	t.Helper()
	id, err := EncodeBytes32("run-001")
	require.NoError(t, err)
	return Tx{Op: OpSubmitTask, Nonce: "n-1", DataID: id, CID: cidutil.CIDv1RawSHA256([]byte("payload"))}
}

func TestSignAndVerify(t *testing.T) {
	signer := testSigner(t, 1)
	stx, err := Sign(submitTx(t), signer)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), stx.Tx.From)
	require.NoError(t, stx.Verify())

	tampered := stx
	tampered.Tx.CID = cidutil.CIDv1RawSHA256([]byte("other"))
	assert.ErrorIs(t, tampered.Verify(), ErrBadSignature)

	spoofed := stx
	spoofed.Tx.From = testSigner(t, 2).Address()
	assert.ErrorIs(t, spoofed.Verify(), ErrBadSignature)
}

func TestValidateRejectsMalformed(t *testing.T) {
	tx := submitTx(t)
	tx.CID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	assert.ErrorIs(t, tx.Validate(), ErrInvalidTx)

	tx = submitTx(t)
	tx.DataID = Bytes32{}
	assert.ErrorIs(t, tx.Validate(), ErrInvalidTx)

	role, _ := EncodeBytes32("WORKER")
	grant := Tx{Op: OpGrantRole, Nonce: "n", RoleID: role}
	assert.ErrorIs(t, grant.Validate(), ErrInvalidTx)

	assert.ErrorIs(t, Tx{Op: "burn", Nonce: "n"}.Validate(), ErrInvalidTx)
}

func TestHashIsStableAndNonceSensitive(t *testing.T) {
	a := submitTx(t)
	h1, err := a.Hash()
	require.NoError(t, err)
	h2, err := a.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	a.Nonce = "n-2"
	h3, err := a.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
