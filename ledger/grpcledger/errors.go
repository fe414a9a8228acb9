package grpcledger

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/taskledger/ledger"
)

var codeFor = []struct {
	err  error
	code codes.Code
}{
	{ledger.ErrDuplicateKey, codes.AlreadyExists},
	{ledger.ErrUnauthorized, codes.PermissionDenied},
	{ledger.ErrBadSignature, codes.Unauthenticated},
	{ledger.ErrNotFound, codes.NotFound},
	{ledger.ErrNotMember, codes.FailedPrecondition},
	{ledger.ErrAlreadyFinal, codes.Aborted},
	{ledger.ErrInvalidTx, codes.InvalidArgument},
	{ledger.ErrOverflow, codes.InvalidArgument},
	{ledger.ErrEmpty, codes.InvalidArgument},
	{ledger.ErrInvalidAddress, codes.InvalidArgument},
	{ledger.ErrUnavailable, codes.Unavailable},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{context.Canceled, codes.Canceled},
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range codeFor {
		if errors.Is(err, m.err) {
			return status.Error(m.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var base error
	switch st.Code() {
	case codes.AlreadyExists:
		base = ledger.ErrDuplicateKey
	case codes.PermissionDenied:
		base = ledger.ErrUnauthorized
	case codes.Unauthenticated:
		base = ledger.ErrBadSignature
	case codes.NotFound:
		base = ledger.ErrNotFound
	case codes.FailedPrecondition:
		base = ledger.ErrNotMember
	case codes.Aborted:
		base = ledger.ErrAlreadyFinal
	case codes.InvalidArgument:
		base = ledger.ErrInvalidTx
	case codes.DeadlineExceeded:
		base = context.DeadlineExceeded
	case codes.Canceled:
		base = context.Canceled
	default:
		base = ledger.ErrUnavailable
	}
	return fmt.Errorf("%w: %s", base, st.Message())
}
