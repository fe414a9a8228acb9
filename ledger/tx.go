package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/keys"
)

// Op names a ledger write.
type Op string

const (
	OpSubmitTask   Op = "submitTask"
	OpCompleteTask Op = "completeTask"
	OpGrantRole    Op = "grantRole"
	OpRevokeRole   Op = "revokeRole"
)

// Tx is an unsigned ledger write. Fields not used by Op stay zero.
//
// Expiration is unix seconds, 0 meaning permanent.
type Tx struct {
	Op          Op             `json:"op"`
	From        common.Address `json:"from"`
	Nonce       string         `json:"nonce"`
	DataID      Bytes32        `json:"dataId"`
	CID         string         `json:"cid,omitempty"`
	Index       uint64         `json:"index,omitempty"`
	RoleID      Bytes32        `json:"roleId"`
	Account     common.Address `json:"account"`
	Description Bytes32        `json:"description"`
	Expiration  int64          `json:"expiration,omitempty"`
}

// Validate checks the fields Op requires.
func (tx Tx) Validate() error {
	if tx.Nonce == "" {
		return fmt.Errorf("%w: missing nonce", ErrInvalidTx)
	}
	switch tx.Op {
	case OpSubmitTask:
		if tx.DataID.IsZero() {
			return fmt.Errorf("%w: empty dataId", ErrInvalidTx)
		}
		if _, err := cidutil.ParseV1(tx.CID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTx, err)
		}
	case OpCompleteTask:
		if _, err := cidutil.ParseV1(tx.CID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTx, err)
		}
	case OpGrantRole:
		if tx.RoleID.IsZero() || tx.Description.IsZero() {
			return fmt.Errorf("%w: empty roleId or description", ErrInvalidTx)
		}
		if IsZeroAddress(tx.Account) {
			return fmt.Errorf("%w: zero account", ErrInvalidTx)
		}
		if tx.Expiration < 0 {
			return fmt.Errorf("%w: negative expiration", ErrInvalidTx)
		}
	case OpRevokeRole:
		if tx.RoleID.IsZero() {
			return fmt.Errorf("%w: empty roleId", ErrInvalidTx)
		}
		if IsZeroAddress(tx.Account) {
			return fmt.Errorf("%w: zero account", ErrInvalidTx)
		}
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidTx, tx.Op)
	}
	return nil
}

// SigningBytes is the canonical encoding covered by the signature.
func (tx Tx) SigningBytes() ([]byte, error) {
	return json.Marshal(tx)
}

// Hash is keccak256 over SigningBytes.
func (tx Tx) Hash() (common.Hash, error) {
	b, err := tx.SigningBytes()
	if err != nil {
		return common.Hash{}, err
	}
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(b)
	return common.BytesToHash(h.Sum(nil)), nil
}

// SignedTx is a Tx with the signer's public key and signature.
type SignedTx struct {
	Tx        Tx          `json:"tx"`
	Scheme    keys.Scheme `json:"scheme"`
	PublicKey []byte      `json:"publicKey"`
	Signature []byte      `json:"signature"`
}

// Sign stamps From with the signer's address and signs tx.
func Sign(tx Tx, signer keys.Signer) (SignedTx, error) {
	tx.From = signer.Address()
	if err := tx.Validate(); err != nil {
		return SignedTx{}, err
	}
	msg, err := tx.SigningBytes()
	if err != nil {
		return SignedTx{}, err
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return SignedTx{}, err
	}
	return SignedTx{Tx: tx, Scheme: signer.Scheme(), PublicKey: signer.PublicKey(), Signature: sig}, nil
}

// Verify checks the signature and that From is derived from PublicKey.
func (s SignedTx) Verify() error {
	if keys.AddressOf(s.PublicKey) != s.Tx.From {
		return fmt.Errorf("%w: sender does not match public key", ErrBadSignature)
	}
	msg, err := s.Tx.SigningBytes()
	if err != nil {
		return err
	}
	if err := keys.Verify(s.Scheme, s.PublicKey, msg, s.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}
