package ledger

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultPollInterval   = time.Second
)

// WaitPolicy bounds WaitFinal. Zero fields take the defaults.
type WaitPolicy struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

func (p WaitPolicy) withDefaults() WaitPolicy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultConfirmTimeout
	}
	if p.PollInterval <= 0 {
		p.PollInterval = DefaultPollInterval
	}
	return p
}

// WaitFinal polls r until h is final or the policy timeout elapses.
//
// Transient status errors are retried until the deadline. At the deadline a
// transaction last seen pending yields ConfirmTimeout and one whose status
// could not be read, including a read still blocked when the deadline hit,
// yields ConfirmNetwork. Reverted and dropped transactions
// fail immediately.
func WaitFinal(ctx context.Context, r StatusReader, h TxHandle, p WaitPolicy) (TxState, error) {
	p = p.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	var (
		last    TxState
		lastErr error
		lastOK  time.Time
	)
	for {
		st, err := r.TxStatus(ctx, h)
		switch {
		case err == nil:
			last, lastErr, lastOK = st, nil, time.Now()
			switch st.Status {
			case StatusFinal:
				return st, nil
			case StatusReverted:
				return st, &ConfirmError{Hash: h.Hash, Reason: ConfirmReverted, Detail: st.Reason}
			case StatusUnknown:
				return st, &ConfirmError{Hash: h.Hash, Reason: ConfirmDropped}
			}
		case errors.Is(err, ErrNotFound):
			return TxState{Status: StatusUnknown}, &ConfirmError{Hash: h.Hash, Reason: ConfirmDropped, Cause: err}
		case ctx.Err() == nil:
			lastErr = err
		case last.Status == "" || time.Since(lastOK) > 2*p.PollInterval:
			// The call outlived the deadline and the last good read, if
			// any, is stale: the status is unknown, not pending.
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return last, &ConfirmError{Hash: h.Hash, Reason: ConfirmNetwork, Cause: lastErr}
			}
			return last, &ConfirmError{Hash: h.Hash, Reason: ConfirmTimeout, Cause: ctx.Err()}
		case <-ticker.C:
		}
	}
}

// Confirm waits for h and builds a receipt for op.
func Confirm(ctx context.Context, r StatusReader, h TxHandle, op Op, id string, p WaitPolicy) (Receipt, error) {
	st, err := WaitFinal(ctx, r, h, p)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{TxHash: h.Hash, Block: st.Block, Op: op, CID: id}, nil
}
