package submission

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/ledger/ledgertest"
	"xdao.co/taskledger/model"
	"xdao.co/taskledger/storage/testkit"
)

var fastWait = ledger.WaitPolicy{Timeout: time.Second, PollInterval: 5 * time.Millisecond}

type recorder struct {
	mu     sync.Mutex
	values []int
}

func (r *recorder) fn(v int) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder) count(v int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.values {
		if x == v {
			n++
		}
	}
	return n
}

type memJournal struct {
	mu     sync.Mutex
	events []Event
}

func (j *memJournal) Record(_ context.Context, ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

func (j *memJournal) states() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.events))
	for _, ev := range j.events {
		out = append(out, ev.State)
	}
	return out
}

func fixedCID(t *testing.T, s string) cid.Cid {
	t.Helper()
	id, err := cidutil.CIDv1RawSHA256CID([]byte(s))
	require.NoError(t, err)
	return id
}

func TestSubmitEndToEnd(t *testing.T) {
	store := testkit.NewMem()
	x1 := fixedCID(t, "x1")
	store.Override = x1
	fake := ledgertest.New()
	fake.PendingPolls = 2
	journal := &memJournal{}
	c := New(store, fake, Options{Wait: fastWait, Journal: journal})

	task := NewTask("run-001", "resnet, 10 epochs")
	rec := &recorder{}
	rcpt, err := c.Submit(context.Background(), task, Payload{Name: "input.bin", Data: []byte("0123456789")}, rec.fn)
	require.NoError(t, err)

	assert.Equal(t, x1.String(), rcpt.CID, "receipt references the pushed identifier")
	assert.Equal(t, ledger.OpSubmitTask, rcpt.Op)

	st, ok := task.State().(Committed)
	require.True(t, ok, "state is %s", task.State().Name())
	assert.True(t, st.CID.Equals(x1))
	id, ok := task.CID()
	require.True(t, ok)
	assert.True(t, id.Equals(x1))

	assert.Equal(t, []int{ProgressStarted, ProgressUploaded, ProgressSubmitted, ProgressDone}, rec.values)
	assert.Equal(t, 1, rec.count(ProgressDone))
	assert.Equal(t, ProgressDone, task.Progress())

	recs := fake.Tasks()
	require.Len(t, recs, 1)
	assert.Equal(t, "run-001", recs[0].DataID.String())
	assert.Equal(t, x1.String(), recs[0].InputCID)

	meta, ok := store.MetadataFor(x1)
	require.True(t, ok)
	assert.Equal(t, "input.bin", meta.Name)
	assert.Equal(t, "run-001", meta.KeyValues["dataId"])

	assert.Equal(t, []string{"Uploading", "Uploaded", "Committing", "Committed"}, journal.states())
}

func TestStoreFailureMakesNoLedgerCall(t *testing.T) {
	store := testkit.NewMem()
	store.PushErr = errors.New("pinning service down")
	fake := ledgertest.New()
	c := New(store, fake, Options{Wait: fastWait})

	task := NewTask("run-002", "")
	rec := &recorder{}
	_, err := c.Submit(context.Background(), task, Payload{Data: []byte("payload")}, rec.fn)
	require.Error(t, err)

	assert.True(t, model.IsKind(err, model.KindStore))
	assert.Equal(t, model.StageUploading, model.StageOf(err))
	assert.False(t, model.IsOrphaned(err))
	assert.Zero(t, fake.TotalWrites())

	f, ok := task.State().(Failed)
	require.True(t, ok)
	assert.Equal(t, model.StageUploading, f.Stage)
	assert.False(t, f.CID.Defined())
	assert.Equal(t, []int{ProgressStarted, ProgressFailed}, rec.values)
}

func TestLedgerRejectionLeavesOrphanedBlob(t *testing.T) {
	store := testkit.NewMem()
	fake := ledgertest.New()
	fake.SubmitErr = ledger.ErrUnauthorized
	c := New(store, fake, Options{Wait: fastWait})

	task := NewTask("run-003", "")
	_, err := c.Submit(context.Background(), task, Payload{Data: []byte("payload")}, nil)
	require.Error(t, err)

	assert.True(t, model.IsKind(err, model.KindLedgerSubmit))
	assert.Equal(t, model.StageCommitting, model.StageOf(err))
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.True(t, model.IsOrphaned(err))

	id, ok := task.CID()
	require.True(t, ok, "failed task keeps the stored CID")
	assert.True(t, store.Has(context.Background(), id))

	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, id.String(), me.CID)
	assert.Equal(t, ProgressFailed, task.Progress())
}

func TestDuplicateDataIDIsTypedLedgerError(t *testing.T) {
	fake := ledgertest.New()
	c := New(testkit.NewMem(), fake, Options{Wait: fastWait})

	_, err := c.Submit(context.Background(), NewTask("dup", ""), Payload{Data: []byte("a")}, nil)
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), NewTask("dup", ""), Payload{Data: []byte("b")}, nil)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindLedgerSubmit))
	assert.ErrorIs(t, err, ledger.ErrDuplicateKey)
	assert.Equal(t, 2, fake.Writes(ledger.OpSubmitTask), "the coordinator does not deduplicate")
}

func TestConfirmTimeoutIsDistinctFromSubmitFailure(t *testing.T) {
	fake := ledgertest.New()
	fake.NeverFinal = true
	c := New(testkit.NewMem(), fake, Options{Wait: ledger.WaitPolicy{Timeout: 40 * time.Millisecond, PollInterval: 5 * time.Millisecond}})

	task := NewTask("slow", "")
	rec := &recorder{}
	_, err := c.Submit(context.Background(), task, Payload{Data: []byte("x")}, rec.fn)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindLedgerConfirm))
	assert.True(t, ledger.IsConfirm(err, ledger.ConfirmTimeout))
	assert.True(t, model.IsOrphaned(err))
	assert.Equal(t, []int{ProgressStarted, ProgressUploaded, ProgressSubmitted, ProgressFailed}, rec.values)
}

func TestRevertIsSubmitFailure(t *testing.T) {
	fake := ledgertest.New()
	fake.Revert = "unauthorized"
	c := New(testkit.NewMem(), fake, Options{Wait: fastWait})

	_, err := c.Submit(context.Background(), NewTask("rev", ""), Payload{Data: []byte("x")}, nil)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindLedgerSubmit))
	assert.True(t, ledger.IsConfirm(err, ledger.ConfirmReverted))
}

func TestValidationNeverReachesNetwork(t *testing.T) {
	cases := map[string]struct {
		dataID string
		data   []byte
	}{
		"empty dataId":    {"", []byte("x")},
		"dataId overflow": {strings.Repeat("d", 33), []byte("x")},
		"no payload":      {"run-004", nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := testkit.NewMem()
			fake := ledgertest.New()
			c := New(store, fake, Options{Wait: fastWait})
			task := NewTask(tc.dataID, "")
			rec := &recorder{}

			_, err := c.Submit(context.Background(), task, Payload{Data: tc.data}, rec.fn)
			require.Error(t, err)
			assert.True(t, model.IsKind(err, model.KindValidation))
			assert.Zero(t, store.Pushes())
			assert.Zero(t, fake.TotalWrites())
			assert.Equal(t, []int{ProgressStarted, ProgressFailed}, rec.values)
			assert.IsType(t, Failed{}, task.State())
		})
	}
}

func TestCancelAfterLedgerSubmitStillWaitsForFinality(t *testing.T) {
	fake := ledgertest.New()
	fake.PendingPolls = 3
	c := New(testkit.NewMem(), fake, Options{Wait: fastWait})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task := NewTask("run-005", "")
	_, err := c.Submit(ctx, task, Payload{Data: []byte("x")}, func(v int) {
		if v == ProgressSubmitted {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.IsType(t, Committed{}, task.State())
}

func TestTaskIsSubmittedOnce(t *testing.T) {
	fake := ledgertest.New()
	c := New(testkit.NewMem(), fake, Options{Wait: fastWait})
	task := NewTask("once", "")

	_, err := c.Submit(context.Background(), task, Payload{Data: []byte("x")}, nil)
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), task, Payload{Data: []byte("x")}, nil)
	assert.True(t, model.IsKind(err, model.KindValidation))
	assert.Equal(t, 1, fake.Writes(ledger.OpSubmitTask))
}

func TestCompleteRecordsResult(t *testing.T) {
	store := testkit.NewMem()
	fake := ledgertest.New()
	c := New(store, fake, Options{Wait: fastWait})

	_, err := c.Submit(context.Background(), NewTask("run-006", ""), Payload{Data: []byte("input")}, nil)
	require.NoError(t, err)

	result := NewTask("run-006", "")
	rcpt, err := c.Complete(context.Background(), 0, result, Payload{Name: "result.json", Data: []byte(`{"acc":0.91}`)}, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.OpCompleteTask, rcpt.Op)

	recs := fake.Tasks()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Completed)
	assert.Equal(t, rcpt.CID, recs[0].ResultCID)
}

func TestCompleteUnknownTaskKeepsResultOrphaned(t *testing.T) {
	c := New(testkit.NewMem(), ledgertest.New(), Options{Wait: fastWait})
	_, err := c.Complete(context.Background(), 7, NewTask("", ""), Payload{Data: []byte("r")}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.True(t, model.IsOrphaned(err))
}
