package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/ledger/ledgertest"
	"xdao.co/taskledger/storage/testkit"
	"xdao.co/taskledger/submission"
)

func open(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

var fastWait = ledger.WaitPolicy{Timeout: time.Second, PollInterval: 5 * time.Millisecond}

func TestJournalRecordsCoordinatorStates(t *testing.T) {
	ctx := context.Background()
	j := open(t)
	c := submission.New(testkit.NewMem(), ledgertest.New(), submission.Options{Wait: fastWait, Journal: j})

	task := submission.NewTask("run-001", "lr=0.01")
	_, err := c.Submit(ctx, task, submission.Payload{Data: []byte("0123456789")}, nil)
	require.NoError(t, err)

	events, err := j.Events(ctx, task.ID)
	require.NoError(t, err)
	var states []string
	for _, ev := range events {
		states = append(states, ev.State)
	}
	assert.Equal(t, []string{"Uploading", "Uploaded", "Committing", "Committed"}, states)
	last := events[len(events)-1]
	assert.NotEmpty(t, last.CID)
	assert.NotEmpty(t, last.TxHash)
	assert.Equal(t, ledger.OpSubmitTask, last.Op)

	p, ok, err := j.Parameters(ctx, "run-001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lr=0.01", p)

	_, ok, err = j.Parameters(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrphansListsStoredButUncommittedBlobs(t *testing.T) {
	ctx := context.Background()
	j := open(t)

	fake := ledgertest.New()
	fake.SubmitErr = ledger.ErrUnauthorized
	c := submission.New(testkit.NewMem(), fake, submission.Options{Wait: fastWait, Journal: j})
	task := submission.NewTask("orphan-1", "")
	_, err := c.Submit(ctx, task, submission.Payload{Data: []byte("blob")}, nil)
	require.Error(t, err)

	store := testkit.NewMem()
	store.PushErr = errors.New("down")
	c = submission.New(store, ledgertest.New(), submission.Options{Wait: fastWait, Journal: j})
	_, err = c.Submit(ctx, submission.NewTask("never-stored", ""), submission.Payload{Data: []byte("blob")}, nil)
	require.Error(t, err)

	orphans, err := j.Orphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "orphan-1", orphans[0].DataID)
	id, _ := task.CID()
	assert.Equal(t, id.String(), orphans[0].CID)
	assert.Contains(t, orphans[0].Error, "unauthorized")
}

func TestParametersIgnoresRejectedDuplicate(t *testing.T) {
	ctx := context.Background()
	j := open(t)
	c := submission.New(testkit.NewMem(), ledgertest.New(), submission.Options{Wait: fastWait, Journal: j})

	_, err := c.Submit(ctx, submission.NewTask("run-dup", "lr=0.01"), submission.Payload{Data: []byte("first")}, nil)
	require.NoError(t, err)
	_, err = c.Submit(ctx, submission.NewTask("run-dup", "lr=0.5"), submission.Payload{Data: []byte("second")}, nil)
	require.ErrorIs(t, err, ledger.ErrDuplicateKey)

	p, ok, err := j.Parameters(ctx, "run-dup")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lr=0.01", p)
}

func TestParametersSkipsUncommittedAttempts(t *testing.T) {
	ctx := context.Background()
	j := open(t)
	require.NoError(t, j.Record(ctx, submission.Event{
		TaskID: "t1", DataID: "run-x", Parameters: "lr=0.1", Op: ledger.OpSubmitTask, State: "Uploaded",
	}))

	_, ok, err := j.Parameters(ctx, "run-x")
	require.NoError(t, err)
	assert.False(t, ok)
}
