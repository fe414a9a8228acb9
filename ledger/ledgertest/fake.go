// Package ledgertest provides an in-memory ledger.Client with failure
// injection and call counters for coordinator and role manager tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/ledger"
)

// Fake applies writes at submit time and reports them final after
// PendingPolls status reads.
type Fake struct {
	mu sync.Mutex

	// SubmitErr fails every write before acceptance.
	SubmitErr error
	// StatusErr fails every status read.
	StatusErr error
	// PendingPolls is how many status reads report pending before final.
	PendingPolls int
	// NeverFinal keeps every transaction pending.
	NeverFinal bool
	// Revert makes accepted transactions revert with this reason.
	Revert string
	// RolesErr fails GetAllRoles.
	RolesErr error
	// DetailErr fails GetRoleDetails for specific roles.
	DetailErr map[ledger.Bytes32]error
	// DetailDelay holds each GetRoleDetails call open this long.
	DetailDelay time.Duration

	tasks  []ledger.TaskRecord
	roles  map[ledger.Bytes32]*ledger.RoleDetails
	order  []ledger.Bytes32
	polls  map[string]int
	writes map[ledger.Op]int
	reads  int
	active int
	peak   int
	seq    int
	block  uint64
}

func New() *Fake {
	return &Fake{
		DetailErr: map[ledger.Bytes32]error{},
		roles:     map[ledger.Bytes32]*ledger.RoleDetails{},
		polls:     map[string]int{},
		writes:    map[ledger.Op]int{},
	}
}

var _ ledger.Client = (*Fake)(nil)

// Writes returns how many writes of op reached the fake, including rejected ones.
func (f *Fake) Writes(op ledger.Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[op]
}

// TotalWrites counts every write attempt.
func (f *Fake) TotalWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.writes {
		n += c
	}
	return n
}

// DetailReads counts GetRoleDetails calls.
func (f *Fake) DetailReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// PeakDetailReads is the most GetRoleDetails calls seen in flight at once.
func (f *Fake) PeakDetailReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// SetRole installs a role directly, bypassing transactions.
func (f *Fake) SetRole(d ledger.RoleDetails) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[d.RoleID]; !ok {
		f.order = append(f.order, d.RoleID)
	}
	cp := d
	cp.Members = append([]common.Address(nil), d.Members...)
	f.roles[d.RoleID] = &cp
}

// Tasks returns a copy of the recorded tasks.
func (f *Fake) Tasks() []ledger.TaskRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.TaskRecord(nil), f.tasks...)
}

func (f *Fake) accept(op ledger.Op, apply func() error) (ledger.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[op]++
	if f.SubmitErr != nil {
		return ledger.TxHandle{}, f.SubmitErr
	}
	if f.Revert == "" {
		if err := apply(); err != nil {
			return ledger.TxHandle{}, err
		}
	}
	f.seq++
	h := ledger.TxHandle{Hash: fmt.Sprintf("0x%064x", f.seq)}
	f.polls[h.Hash] = 0
	return h, nil
}

func (f *Fake) SubmitTask(_ context.Context, dataID ledger.Bytes32, id cid.Cid) (ledger.TxHandle, error) {
	return f.accept(ledger.OpSubmitTask, func() error {
		for _, t := range f.tasks {
			if t.DataID == dataID {
				return fmt.Errorf("%w: dataId %q", ledger.ErrDuplicateKey, dataID)
			}
		}
		f.tasks = append(f.tasks, ledger.TaskRecord{Index: uint64(len(f.tasks)), DataID: dataID, InputCID: id.String()})
		return nil
	})
}

func (f *Fake) CompleteTask(_ context.Context, index uint64, result cid.Cid) (ledger.TxHandle, error) {
	return f.accept(ledger.OpCompleteTask, func() error {
		if index >= uint64(len(f.tasks)) {
			return ledger.ErrNotFound
		}
		if f.tasks[index].Completed {
			return ledger.ErrAlreadyFinal
		}
		f.tasks[index].Completed = true
		f.tasks[index].ResultCID = result.String()
		return nil
	})
}

func (f *Fake) GrantRole(_ context.Context, roleID ledger.Bytes32, account common.Address, description ledger.Bytes32, expiration int64) (ledger.TxHandle, error) {
	return f.accept(ledger.OpGrantRole, func() error {
		r, ok := f.roles[roleID]
		if !ok {
			r = &ledger.RoleDetails{RoleID: roleID}
			f.roles[roleID] = r
			f.order = append(f.order, roleID)
		}
		r.Description = description
		r.Expiration = expiration
		for _, m := range r.Members {
			if m == account {
				return nil
			}
		}
		r.Members = append(r.Members, account)
		return nil
	})
}

func (f *Fake) RevokeRole(_ context.Context, roleID ledger.Bytes32, account common.Address) (ledger.TxHandle, error) {
	return f.accept(ledger.OpRevokeRole, func() error {
		r, ok := f.roles[roleID]
		if !ok {
			return ledger.ErrNotFound
		}
		for i, m := range r.Members {
			if m == account {
				r.Members = append(r.Members[:i], r.Members[i+1:]...)
				if len(r.Members) == 0 {
					f.dropRole(roleID)
				}
				return nil
			}
		}
		return ledger.ErrNotMember
	})
}

func (f *Fake) dropRole(roleID ledger.Bytes32) {
	delete(f.roles, roleID)
	for i, id := range f.order {
		if id == roleID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			return
		}
	}
}

func (f *Fake) TxStatus(ctx context.Context, h ledger.TxHandle) (ledger.TxState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return ledger.TxState{}, f.StatusErr
	}
	n, ok := f.polls[h.Hash]
	if !ok {
		return ledger.TxState{}, ledger.ErrNotFound
	}
	f.polls[h.Hash] = n + 1
	if f.NeverFinal || n < f.PendingPolls {
		return ledger.TxState{Status: ledger.StatusPending}, nil
	}
	f.block++
	if f.Revert != "" {
		return ledger.TxState{Status: ledger.StatusReverted, Block: f.block, Reason: f.Revert}, nil
	}
	return ledger.TxState{Status: ledger.StatusFinal, Block: f.block}, nil
}

func (f *Fake) GetAllRoles(context.Context) ([]ledger.Bytes32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RolesErr != nil {
		return nil, f.RolesErr
	}
	return append([]ledger.Bytes32(nil), f.order...), nil
}

func (f *Fake) GetRoleDetails(ctx context.Context, roleID ledger.Bytes32) (ledger.RoleDetails, error) {
	f.mu.Lock()
	f.active++
	f.peak = max(f.peak, f.active)
	delay := f.DetailDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	f.reads++
	if err := f.DetailErr[roleID]; err != nil {
		return ledger.RoleDetails{}, err
	}
	r, ok := f.roles[roleID]
	if !ok {
		return ledger.RoleDetails{}, ledger.ErrNotFound
	}
	cp := *r
	cp.Members = append([]common.Address(nil), r.Members...)
	return cp, nil
}

func (f *Fake) GetTasksCount(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.tasks)), nil
}

func (f *Fake) GetTask(_ context.Context, index uint64) (ledger.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= uint64(len(f.tasks)) {
		return ledger.TaskRecord{}, ledger.ErrNotFound
	}
	return f.tasks[index], nil
}

// RoleIDs returns the current role ids sorted by text.
func (f *Fake) RoleIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, id.String())
	}
	sort.Strings(out)
	return out
}
