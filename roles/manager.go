// Package roles manages time-bounded role assignments recorded on the ledger.
//
// The ledger is the only source of truth. After every confirmed grant or
// revoke the manager re-lists all roles and replaces its snapshot; it never
// edits the snapshot in place.
package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/model"
)

// Assignment is one account holding one role. A role with no members is
// listed once with the zero Account.
type Assignment struct {
	RoleID      string
	Account     common.Address
	Description string
	Expiration  Expiration
}

// IsExpired reports whether the assignment is non-authoritative at now.
func (a Assignment) IsExpired(now time.Time) bool { return a.Expiration.IsExpired(now) }

// Row renders a for output.
func (a Assignment) Row(now time.Time) model.RoleRow {
	return model.RoleRow{
		RoleID:      a.RoleID,
		Account:     FormatAccount(a.Account),
		Description: a.Description,
		Expiration:  a.Expiration.String(),
		Expired:     a.IsExpired(now),
	}
}

// Listing is the result of one scan of the ledger.
type Listing struct {
	Assignments []Assignment
	// Failures holds one PartialRead error per role whose details could not
	// be fetched. Those roles are absent from Assignments.
	Failures []error
	At       time.Time
}

// Partial reports whether some roles were dropped.
func (l Listing) Partial() bool { return len(l.Failures) > 0 }

// GrantRequest describes a grant. All fields are required.
type GrantRequest struct {
	RoleID      string
	Account     string
	Description string
	Expiration  ExpirationPolicy
}

// Options configures a Manager.
type Options struct {
	Wait ledger.WaitPolicy
	// Concurrency bounds detail fetches during a listing; 0 means one
	// goroutine per role.
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Manager applies grants and revokes through a ledger client.
type Manager struct {
	client ledger.Client
	opts   Options
	log    *slog.Logger

	issued atomic.Uint64

	mu       sync.RWMutex
	snapshot Listing
	applied  uint64
}

func New(client ledger.Client, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{client: client, opts: opts, log: log}
}

// Grant records req on the ledger, waits for finality and refreshes the
// snapshot. Invalid input is rejected before any ledger call.
func (m *Manager) Grant(ctx context.Context, req GrantRequest) (ledger.Receipt, error) {
	const op = string(ledger.OpGrantRole)
	roleID, err := ledger.EncodeBytes32(req.RoleID)
	if err != nil {
		return ledger.Receipt{}, model.Wrap(model.KindValidation, model.StageValidating, op, "invalid roleId", err)
	}
	account, err := ledger.ParseAddress(req.Account)
	if err != nil {
		return ledger.Receipt{}, model.Wrap(model.KindValidation, model.StageValidating, op, "invalid account", err)
	}
	desc, err := ledger.EncodeBytes32(req.Description)
	if err != nil {
		return ledger.Receipt{}, model.Wrap(model.KindValidation, model.StageValidating, op, "invalid description", err)
	}
	exp, err := req.Expiration.Resolve(m.opts.Now())
	if err != nil {
		return ledger.Receipt{}, model.Wrap(model.KindValidation, model.StageValidating, op, "invalid expiration", err)
	}

	h, err := m.client.GrantRole(ctx, roleID, account, desc, int64(exp))
	rcpt, err := m.confirm(ctx, ledger.OpGrantRole, h, err)
	if err != nil {
		return ledger.Receipt{}, err
	}
	m.log.Info("role granted", "role", req.RoleID, "account", account.Hex(), "expiration", exp.String(), "tx", rcpt.TxHash)
	m.refresh(ctx)
	return rcpt, nil
}

// Revoke removes account from roleID, waits for finality and refreshes the
// snapshot. An invalid account is rejected before any ledger call.
func (m *Manager) Revoke(ctx context.Context, roleID, account string) (ledger.Receipt, error) {
	const op = string(ledger.OpRevokeRole)
	addr, err := ledger.ParseAddress(account)
	if err != nil {
		return ledger.Receipt{}, model.Wrap(model.KindValidation, model.StageValidating, op, "invalid account", err)
	}
	id, err := ledger.EncodeBytes32(roleID)
	if err != nil {
		return ledger.Receipt{}, model.Wrap(model.KindValidation, model.StageValidating, op, "invalid roleId", err)
	}

	h, err := m.client.RevokeRole(ctx, id, addr)
	rcpt, err := m.confirm(ctx, ledger.OpRevokeRole, h, err)
	if err != nil {
		return ledger.Receipt{}, err
	}
	m.log.Info("role revoked", "role", roleID, "account", addr.Hex(), "tx", rcpt.TxHash)
	m.refresh(ctx)
	return rcpt, nil
}

func (m *Manager) confirm(ctx context.Context, op ledger.Op, h ledger.TxHandle, submitErr error) (ledger.Receipt, error) {
	if submitErr != nil {
		return ledger.Receipt{}, model.Wrap(model.KindLedgerSubmit, model.StageCommitting, string(op), "ledger rejected transaction", submitErr)
	}
	rcpt, err := ledger.Confirm(context.WithoutCancel(ctx), m.client, h, op, "", m.opts.Wait)
	if err == nil {
		return rcpt, nil
	}
	if ledger.IsConfirm(err, ledger.ConfirmReverted) {
		return ledger.Receipt{}, model.Wrap(model.KindLedgerSubmit, model.StageCommitting, string(op), "transaction reverted", err)
	}
	return ledger.Receipt{}, model.Wrap(model.KindLedgerConfirm, model.StageCommitting, string(op), "transaction not final", err)
}

func (m *Manager) refresh(ctx context.Context) {
	if _, err := m.List(context.WithoutCancel(ctx)); err != nil {
		m.log.Warn("role refresh after write failed", "err", err)
	}
}

// ListAll returns every resolvable assignment. Roles whose details fail to
// load are dropped and logged; only a failure to enumerate roles is an error.
func (m *Manager) ListAll(ctx context.Context) ([]Assignment, error) {
	l, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	return l.Assignments, nil
}

// List scans the ledger and replaces the snapshot unless a listing started
// later has already done so.
func (m *Manager) List(ctx context.Context) (Listing, error) {
	seq := m.issued.Add(1)
	ids, err := m.client.GetAllRoles(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("roles: list: %w", err)
	}

	details := make([]*ledger.RoleDetails, len(ids))
	failures := make([]error, len(ids))
	var g errgroup.Group
	if m.opts.Concurrency > 0 {
		g.SetLimit(m.opts.Concurrency)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			d, err := m.client.GetRoleDetails(ctx, id)
			if err != nil {
				e := model.Wrap(model.KindPartialRead, model.StageReading, "getRoleDetails", "role "+id.String(), err)
				m.log.Warn("role details unavailable", "role", id.String(), "err", err)
				failures[i] = e
				return nil
			}
			details[i] = &d
			return nil
		})
	}
	_ = g.Wait()

	l := Listing{At: m.opts.Now()}
	for i := range ids {
		if failures[i] != nil {
			l.Failures = append(l.Failures, failures[i])
			continue
		}
		l.Assignments = append(l.Assignments, expand(*details[i])...)
	}

	m.mu.Lock()
	if seq > m.applied {
		m.snapshot, m.applied = l, seq
	} else {
		m.log.Debug("stale role listing discarded", "seq", seq, "applied", m.applied)
	}
	m.mu.Unlock()
	return l, nil
}

func expand(d ledger.RoleDetails) []Assignment {
	base := Assignment{
		RoleID:      d.RoleID.String(),
		Description: d.Description.String(),
		Expiration:  Expiration(d.Expiration),
	}
	if len(d.Members) == 0 {
		return []Assignment{base}
	}
	out := make([]Assignment, 0, len(d.Members))
	for _, a := range d.Members {
		as := base
		as.Account = a
		out = append(out, as)
	}
	return out
}

// Snapshot returns the last listing. It is never modified by writes
// directly, only replaced by the next listing.
func (m *Manager) Snapshot() Listing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// HasRole reads the role from the ledger and reports whether account holds
// it unexpired.
func (m *Manager) HasRole(ctx context.Context, roleID string, account common.Address) (bool, error) {
	id, err := ledger.EncodeBytes32(roleID)
	if err != nil {
		return false, model.Wrap(model.KindValidation, model.StageValidating, "hasRole", "invalid roleId", err)
	}
	d, err := m.client.GetRoleDetails(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if Expiration(d.Expiration).IsExpired(m.opts.Now()) {
		return false, nil
	}
	for _, a := range d.Members {
		if a == account {
			return true, nil
		}
	}
	return false, nil
}
