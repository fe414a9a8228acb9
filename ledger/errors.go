package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrOverflow       = errors.New("ledger: value exceeds 32 bytes")
	ErrEmpty          = errors.New("ledger: value is empty")
	ErrInvalidAddress = errors.New("ledger: invalid account address")

	ErrDuplicateKey = errors.New("ledger: duplicate key")
	ErrUnauthorized = errors.New("ledger: unauthorized")
	ErrBadSignature = errors.New("ledger: bad signature")
	ErrNotFound     = errors.New("ledger: not found")
	ErrInvalidTx    = errors.New("ledger: invalid transaction")
	ErrNotMember    = errors.New("ledger: account does not hold role")
	ErrUnavailable  = errors.New("ledger: unavailable")
	ErrAlreadyFinal = errors.New("ledger: task already completed")
	ErrNoSigner     = errors.New("ledger: no signer configured")
)

// ConfirmReason explains why a submitted transaction did not reach finality.
type ConfirmReason string

const (
	// ConfirmTimeout means the transaction was still pending at the deadline.
	ConfirmTimeout ConfirmReason = "timeout"
	// ConfirmNetwork means the status could not be read when the wait ended.
	ConfirmNetwork ConfirmReason = "network"
	// ConfirmReverted means the transaction was included and then rejected.
	ConfirmReverted ConfirmReason = "reverted"
	// ConfirmDropped means the engine no longer knows the transaction.
	ConfirmDropped ConfirmReason = "dropped"
)

// ConfirmError is returned by WaitFinal.
type ConfirmError struct {
	Hash   string
	Reason ConfirmReason
	Detail string
	Cause  error
}

func (e *ConfirmError) Error() string {
	msg := fmt.Sprintf("ledger: tx %s not final (%s)", e.Hash, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfirmError) Unwrap() error { return e.Cause }

// IsConfirm reports whether err is a *ConfirmError with the given reason.
func IsConfirm(err error, reason ConfirmReason) bool {
	var ce *ConfirmError
	return errors.As(err, &ce) && ce.Reason == reason
}
