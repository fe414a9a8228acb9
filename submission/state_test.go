package submission

import (
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/model"
)

func TestTransitions(t *testing.T) {
	a, _ := cidutil.CIDv1RawSHA256CID([]byte("a"))
	b, _ := cidutil.CIDv1RawSHA256CID([]byte("b"))
	boom := errors.New("boom")

	legal := []struct{ from, to State }{
		{Pending{}, Uploading{}},
		{Pending{}, Failed{Stage: model.StageValidating, Err: boom}},
		{Uploading{}, Uploaded{CID: a}},
		{Uploading{}, Failed{Stage: model.StageUploading, Err: boom}},
		{Uploaded{CID: a}, Committing{CID: a}},
		{Committing{CID: a}, Committed{CID: a}},
		{Committing{CID: a}, Failed{Stage: model.StageCommitting, Err: boom, CID: a}},
	}
	for _, tc := range legal {
		assert.NoError(t, checkTransition(tc.from, tc.to), "%s -> %s", tc.from.Name(), tc.to.Name())
	}

	illegal := []struct{ from, to State }{
		{Pending{}, Committed{CID: a}},
		{Pending{}, Uploaded{CID: a}},
		{Uploading{}, Uploaded{CID: cid.Undef}},
		{Uploading{}, Committing{CID: a}},
		{Uploaded{CID: a}, Committing{CID: b}},
		{Committing{CID: a}, Committed{CID: b}},
		{Committing{CID: a}, Failed{Stage: model.StageUploading, Err: boom}},
		{Committed{CID: a}, Failed{Stage: model.StageCommitting, CID: a}},
		{Failed{Stage: model.StageUploading}, Uploading{}},
	}
	for _, tc := range illegal {
		assert.ErrorIs(t, checkTransition(tc.from, tc.to), ErrIllegalTransition, "%s -> %s", tc.from.Name(), tc.to.Name())
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(Committed{}))
	assert.True(t, Terminal(Failed{}))
	assert.False(t, Terminal(Pending{}))
	assert.False(t, Terminal(Committing{}))
}

func TestProgressIsMonotonicAndTerminatesOnce(t *testing.T) {
	var got []int
	p := newProgress(func(v int) { got = append(got, v) })
	p.advance(ProgressStarted)
	p.advance(ProgressUploaded)
	p.advance(ProgressStarted)
	p.advance(ProgressUploaded)
	p.finish(true)
	p.finish(false)
	p.advance(ProgressSubmitted)

	assert.Equal(t, []int{ProgressStarted, ProgressUploaded, ProgressDone}, got)
	assert.Equal(t, ProgressDone, p.value())
}
