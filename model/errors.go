package model

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	// KindValidation is bad input caught before any network call.
	KindValidation Kind = "Validation"
	// KindStore is a failed push to the addressable store.
	KindStore Kind = "Store"
	// KindLedgerSubmit is a transaction rejected before finality.
	KindLedgerSubmit Kind = "LedgerSubmit"
	// KindLedgerConfirm is a transaction submitted but not finalized within policy.
	KindLedgerConfirm Kind = "LedgerConfirm"
	// KindPartialRead is one list entry that failed to resolve.
	KindPartialRead Kind = "PartialRead"
)

// Stage names the step of a two-phase write that failed.
type Stage string

const (
	StageValidating Stage = "Validating"
	StageUploading  Stage = "Uploading"
	StageCommitting Stage = "Committing"
	StageReading    Stage = "Reading"
)

// Error is the structured error returned by the coordinator and the role
// manager.
//
// CID is set when content reached the store. Message is for humans; do not
// match on it.
type Error struct {
	Kind    Kind
	Stage   Stage
	Op      string
	Message string
	CID     string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.CID != "" {
		msg += " (cid " + e.CID + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Orphaned reports whether the store accepted content that the ledger never
// recorded.
func (e *Error) Orphaned() bool {
	if e == nil {
		return false
	}
	return e.CID != "" && (e.Kind == KindLedgerSubmit || e.Kind == KindLedgerConfirm)
}

// Errorf builds an *Error without a cause.
func Errorf(kind Kind, stage Stage, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around cause.
func Wrap(kind Kind, stage Stage, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// StageOf returns the failing stage of a structured error, or "" if unknown.
func StageOf(err error) Stage {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Stage
}

// IsOrphaned reports whether err describes content left in the store without
// a ledger reference.
func IsOrphaned(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Orphaned()
}
