package roles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/ledger/ledgertest"
	"xdao.co/taskledger/model"
)

const alice = "0x52908400098527886E0F7030069857D2E4169EE7"

var now = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newManager(fake *ledgertest.Fake) *Manager {
	return New(fake, Options{
		Wait: ledger.WaitPolicy{Timeout: time.Second, PollInterval: 5 * time.Millisecond},
		Now:  func() time.Time { return now },
	})
}

func b32(t *testing.T, s string) ledger.Bytes32 {
	t.Helper()
	b, err := ledger.EncodeBytes32(s)
	require.NoError(t, err)
	return b
}

func TestPermanentGrantRendersSentinel(t *testing.T) {
	fake := ledgertest.New()
	m := newManager(fake)

	_, err := m.Grant(context.Background(), GrantRequest{
		RoleID: "WORKER", Account: alice, Description: "compute nodes", Expiration: Forever(),
	})
	require.NoError(t, err)

	list, err := m.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Expiration.IsPermanent())

	row := list[0].Row(now)
	assert.Equal(t, PermanentLabel, row.Expiration)
	assert.NotContains(t, row.Expiration, "1970")
	assert.Equal(t, common.HexToAddress(alice).Hex(), row.Account)
	assert.False(t, row.Expired)
}

func TestIsExpiredBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		exp     Expiration
		expired bool
	}{
		{"permanent", Permanent, false},
		{"equal to now", ExpiresAt(now), false},
		{"one second ahead", ExpiresAt(now.Add(time.Second)), false},
		{"one second ago", ExpiresAt(now.Add(-time.Second)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expired, tc.exp.IsExpired(now))
			assert.Equal(t, tc.expired, Assignment{Expiration: tc.exp}.IsExpired(now))
		})
	}
}

func TestExpirationFormatting(t *testing.T) {
	assert.Equal(t, "Permanent", Permanent.String())
	assert.Equal(t, "Mon, 04 May 2026 10:30:00 GMT", ExpiresAt(now).String())
}

func TestRevokeRejectsInvalidAccountBeforeLedger(t *testing.T) {
	for name, account := range map[string]string{
		"short by one": alice[:len(alice)-1],
		"non-hex":      "0x52908400098527886E0F7030069857D2E4169EGG",
		"zero":         "0x0000000000000000000000000000000000000000",
	} {
		t.Run(name, func(t *testing.T) {
			fake := ledgertest.New()
			_, err := newManager(fake).Revoke(context.Background(), "WORKER", account)
			require.Error(t, err)
			assert.True(t, model.IsKind(err, model.KindValidation))
			assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
			assert.Zero(t, fake.TotalWrites())
		})
	}
}

func TestGrantValidation(t *testing.T) {
	valid := GrantRequest{RoleID: "WORKER", Account: alice, Description: "d", Expiration: Forever()}
	cases := map[string]struct {
		mutate func(*GrantRequest)
		want   error
	}{
		"empty role":        {func(r *GrantRequest) { r.RoleID = "" }, ledger.ErrEmpty},
		"empty description": {func(r *GrantRequest) { r.Description = "" }, ledger.ErrEmpty},
		"long description":  {func(r *GrantRequest) { r.Description = fmt.Sprintf("%040d", 1) }, ledger.ErrOverflow},
		"bad account":       {func(r *GrantRequest) { r.Account = "alice" }, ledger.ErrInvalidAddress},
		"past date":         {func(r *GrantRequest) { r.Expiration = Until(now.Add(-time.Hour)) }, ErrInvalidExpiration},
		"no date":           {func(r *GrantRequest) { r.Expiration = ExpirationPolicy{} }, ErrInvalidExpiration},
		"epoch date":        {func(r *GrantRequest) { r.Expiration = RetroactiveUntil(time.Unix(0, 0)) }, ErrInvalidExpiration},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fake := ledgertest.New()
			req := valid
			tc.mutate(&req)
			_, err := newManager(fake).Grant(context.Background(), req)
			require.Error(t, err)
			assert.True(t, model.IsKind(err, model.KindValidation))
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, fake.TotalWrites())
		})
	}
}

func TestRetroactiveGrantIsListedAsExpired(t *testing.T) {
	fake := ledgertest.New()
	m := newManager(fake)
	_, err := m.Grant(context.Background(), GrantRequest{
		RoleID: "AUDITOR", Account: alice, Description: "q1 audit", Expiration: RetroactiveUntil(now.Add(-24 * time.Hour)),
	})
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap.Assignments, 1)
	assert.True(t, snap.Assignments[0].IsExpired(now), "expired assignments stay visible")

	ok, err := m.HasRole(context.Background(), "AUDITOR", common.HexToAddress(alice))
	require.NoError(t, err)
	assert.False(t, ok, "expired assignments are not authoritative")
}

func TestListAllDropsFailedEntries(t *testing.T) {
	fake := ledgertest.New()
	for i := 1; i <= 5; i++ {
		fake.SetRole(ledger.RoleDetails{
			RoleID:      b32(t, fmt.Sprintf("ROLE-%d", i)),
			Description: b32(t, "d"),
			Members:     []common.Address{common.HexToAddress(alice)},
		})
	}
	fake.DetailErr[b32(t, "ROLE-3")] = errors.New("rpc timeout")

	m := newManager(fake)
	list, err := m.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 4)
	for _, a := range list {
		assert.NotEqual(t, "ROLE-3", a.RoleID)
	}
	assert.Equal(t, "ROLE-1", list[0].RoleID)
	assert.Equal(t, "ROLE-5", list[3].RoleID)

	snap := m.Snapshot()
	require.True(t, snap.Partial())
	require.Len(t, snap.Failures, 1)
	assert.True(t, model.IsKind(snap.Failures[0], model.KindPartialRead))
}

func TestListAllBoundedConcurrency(t *testing.T) {
	fake := ledgertest.New()
	for i := 0; i < 8; i++ {
		fake.SetRole(ledger.RoleDetails{RoleID: b32(t, fmt.Sprintf("R%d", i)), Description: b32(t, "d")})
	}
	fake.DetailDelay = 10 * time.Millisecond
	m := New(fake, Options{Concurrency: 2})
	list, err := m.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 8)
	assert.Equal(t, 8, fake.DetailReads())
	assert.LessOrEqual(t, fake.PeakDetailReads(), 2)
	assert.Positive(t, fake.PeakDetailReads())
}

// firstReadBlocks holds the first GetRoleDetails call until release is closed.
type firstReadBlocks struct {
	*ledgertest.Fake
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (c *firstReadBlocks) GetRoleDetails(ctx context.Context, id ledger.Bytes32) (ledger.RoleDetails, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()
	if first {
		close(c.started)
		<-c.release
	}
	return c.Fake.GetRoleDetails(ctx, id)
}

func TestSlowListingDoesNotOverwriteNewerSnapshot(t *testing.T) {
	fake := ledgertest.New()
	fake.SetRole(ledger.RoleDetails{RoleID: b32(t, "R1"), Description: b32(t, "d")})
	client := &firstReadBlocks{Fake: fake, started: make(chan struct{}), release: make(chan struct{})}
	m := New(client, Options{Now: func() time.Time { return now }})

	done := make(chan Listing)
	go func() {
		l, err := m.List(context.Background())
		assert.NoError(t, err)
		done <- l
	}()
	<-client.started

	fake.SetRole(ledger.RoleDetails{RoleID: b32(t, "R2"), Description: b32(t, "d")})
	fresh, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, fresh.Assignments, 2)

	close(client.release)
	stale := <-done
	assert.Len(t, stale.Assignments, 1)
	assert.Len(t, m.Snapshot().Assignments, 2)
}

func TestListAllFailsWhenRolesCannotBeEnumerated(t *testing.T) {
	fake := ledgertest.New()
	fake.RolesErr = ledger.ErrUnavailable
	_, err := newManager(fake).ListAll(context.Background())
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}

func TestRoleWithoutMembersRendersNoAccount(t *testing.T) {
	fake := ledgertest.New()
	fake.SetRole(ledger.RoleDetails{RoleID: b32(t, "EMPTY"), Description: b32(t, "d"), Expiration: int64(ExpiresAt(now))})

	list, err := newManager(fake).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	row := list[0].Row(now)
	assert.Equal(t, NoAccount, row.Account)
	assert.NotContains(t, row.Account, "0x0000")
}

func TestWritesRefreshSnapshotFromLedger(t *testing.T) {
	fake := ledgertest.New()
	m := newManager(fake)

	_, err := m.Grant(context.Background(), GrantRequest{RoleID: "WORKER", Account: alice, Description: "d", Expiration: Until(now.Add(time.Hour))})
	require.NoError(t, err)
	assert.Len(t, m.Snapshot().Assignments, 1)
	reads := fake.DetailReads()

	_, err = m.Revoke(context.Background(), "WORKER", alice)
	require.NoError(t, err)
	assert.Empty(t, m.Snapshot().Assignments)
	assert.Equal(t, reads, fake.DetailReads(), "empty ledger needs no detail reads")
	assert.Empty(t, fake.RoleIDs())
}

func TestRevokeNonMemberIsLedgerError(t *testing.T) {
	fake := ledgertest.New()
	fake.SetRole(ledger.RoleDetails{RoleID: b32(t, "WORKER"), Description: b32(t, "d")})
	_, err := newManager(fake).Revoke(context.Background(), "WORKER", alice)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindLedgerSubmit))
	assert.ErrorIs(t, err, ledger.ErrNotMember)
}

func TestConfirmTimeoutOnGrant(t *testing.T) {
	fake := ledgertest.New()
	fake.NeverFinal = true
	m := New(fake, Options{Wait: ledger.WaitPolicy{Timeout: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond}, Now: func() time.Time { return now }})
	_, err := m.Grant(context.Background(), GrantRequest{RoleID: "WORKER", Account: alice, Description: "d", Expiration: Forever()})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindLedgerConfirm))
	assert.True(t, ledger.IsConfirm(err, ledger.ConfirmTimeout))
}

func TestShortAccount(t *testing.T) {
	assert.Equal(t, "0x5290...9EE7", ShortAccount(common.HexToAddress(alice)))
	assert.Equal(t, NoAccount, ShortAccount(common.Address{}))
}
