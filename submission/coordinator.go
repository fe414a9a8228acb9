// Package submission coordinates the two-phase write of a task: push the
// payload to the addressable store, then record its CID on the ledger and
// wait for finality.
//
// The two steps share no transaction. A store failure leaves the ledger
// untouched; a ledger failure after a successful push leaves the blob in the
// store with no ledger reference, which is reported through
// model.Error.Orphaned rather than retracted. Once the ledger write has been
// submitted the wait for finality ignores caller cancellation.
package submission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/model"
	"xdao.co/taskledger/storage"
)

// Event is one journaled state change.
type Event struct {
	TaskID     string
	DataID     string
	Parameters string
	Op         ledger.Op
	State      string
	CID        string
	TxHash     string
	Block      uint64
	Error      string
	At         time.Time
}

// Journal records state changes off-ledger.
type Journal interface {
	Record(ctx context.Context, ev Event) error
}

// Options configures a Coordinator.
type Options struct {
	Wait    ledger.WaitPolicy
	Journal Journal
	Logger  *slog.Logger
	// Tags are added to every push's metadata; per-payload tags win.
	Tags map[string]string
}

// Payload is the blob pushed to the store.
type Payload struct {
	Name string
	Data []byte
	Tags map[string]string
}

// Coordinator runs submissions. It holds no per-task state and is safe for
// concurrent use.
type Coordinator struct {
	store  storage.Store
	ledger ledger.Writer
	opts   Options
	log    *slog.Logger
}

func New(store storage.Store, l ledger.Writer, opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{store: store, ledger: l, opts: opts, log: log}
}

// Submit pushes p and records t.DataID with the resulting CID on the ledger.
// It returns the receipt only after the ledger write is final.
func (c *Coordinator) Submit(ctx context.Context, t *Task, p Payload, onProgress ProgressFunc) (ledger.Receipt, error) {
	var dataID ledger.Bytes32
	validate := func() *model.Error {
		b, err := ledger.EncodeBytes32(t.DataID)
		if err != nil {
			return model.Wrap(model.KindValidation, model.StageValidating, string(ledger.OpSubmitTask), "invalid dataId", err)
		}
		dataID = b
		return nil
	}
	commit := func(ctx context.Context, id cid.Cid) (ledger.TxHandle, error) {
		return c.ledger.SubmitTask(ctx, dataID, id)
	}
	return c.run(ctx, ledger.OpSubmitTask, t, p, onProgress, validate, commit)
}

// Complete pushes a result payload and marks ledger task index completed
// with its CID.
func (c *Coordinator) Complete(ctx context.Context, index uint64, t *Task, p Payload, onProgress ProgressFunc) (ledger.Receipt, error) {
	commit := func(ctx context.Context, id cid.Cid) (ledger.TxHandle, error) {
		return c.ledger.CompleteTask(ctx, index, id)
	}
	return c.run(ctx, ledger.OpCompleteTask, t, p, onProgress, nil, commit)
}

func (c *Coordinator) run(
	ctx context.Context,
	op ledger.Op,
	t *Task,
	p Payload,
	onProgress ProgressFunc,
	validate func() *model.Error,
	commit func(context.Context, cid.Cid) (ledger.TxHandle, error),
) (ledger.Receipt, error) {
	if t == nil {
		return ledger.Receipt{}, model.Errorf(model.KindValidation, model.StageValidating, string(op), "nil task")
	}
	if _, pending := t.State().(Pending); !pending {
		return ledger.Receipt{}, model.Errorf(model.KindValidation, model.StageValidating, string(op),
			"task %s is %s, not Pending", t.ID, t.State().Name())
	}

	prog := newProgress(func(v int) {
		t.setProgress(v)
		if onProgress != nil {
			onProgress(v)
		}
	})
	prog.advance(ProgressStarted)

	fail := func(e *model.Error, id cid.Cid) (ledger.Receipt, error) {
		e.Op = string(op)
		if id.Defined() {
			e.CID = id.String()
		}
		if err := t.transition(Failed{Stage: e.Stage, Err: e, CID: id}); err != nil {
			c.log.Error("record failure", "task", t.ID, "err", err)
		}
		prog.finish(false)
		c.journal(ctx, t, op, "", 0, e)
		if e.Orphaned() {
			c.log.Warn("blob stored without ledger reference", "data_id", t.DataID, "cid", e.CID, "err", e.Cause)
		}
		return ledger.Receipt{}, e
	}

	var verr *model.Error
	if validate != nil {
		verr = validate()
	}
	if verr == nil && len(p.Data) == 0 {
		verr = model.Errorf(model.KindValidation, model.StageValidating, "", "no file payload")
	}
	if verr != nil {
		return fail(verr, cid.Undef)
	}

	// Phase one: store.
	if err := t.transition(Uploading{}); err != nil {
		return ledger.Receipt{}, err
	}
	c.journal(ctx, t, op, "", 0, nil)
	id, err := c.store.Push(ctx, p.Data, c.metadata(t, p))
	if err == nil && (!id.Defined() || id.Version() != cidutil.Version) {
		err = cidutil.ErrNotV1
	}
	if err != nil {
		return fail(model.Wrap(model.KindStore, model.StageUploading, "", "upload failed", err), cid.Undef)
	}
	if err := t.transition(Uploaded{CID: id}); err != nil {
		return ledger.Receipt{}, err
	}
	prog.advance(ProgressUploaded)
	c.journal(ctx, t, op, "", 0, nil)

	// Phase two: ledger.
	if err := t.transition(Committing{CID: id}); err != nil {
		return ledger.Receipt{}, err
	}
	c.journal(ctx, t, op, "", 0, nil)
	h, err := commit(ctx, id)
	if err != nil {
		return fail(model.Wrap(model.KindLedgerSubmit, model.StageCommitting, "", "ledger rejected transaction", err), id)
	}
	prog.advance(ProgressSubmitted)
	c.log.Debug("ledger tx submitted", "data_id", t.DataID, "cid", id.String(), "tx", h.Hash)

	rcpt, err := ledger.Confirm(context.WithoutCancel(ctx), c.ledger, h, op, id.String(), c.opts.Wait)
	if err != nil {
		kind, msg := model.KindLedgerConfirm, "transaction not final"
		if ledger.IsConfirm(err, ledger.ConfirmReverted) {
			kind, msg = model.KindLedgerSubmit, "transaction reverted"
		}
		e := model.Wrap(kind, model.StageCommitting, "", msg, err)
		return fail(e, id)
	}

	if err := t.transition(Committed{CID: id, Receipt: rcpt}); err != nil {
		return ledger.Receipt{}, err
	}
	prog.finish(true)
	c.journal(ctx, t, op, rcpt.TxHash, rcpt.Block, nil)
	c.log.Info("task committed", "op", op, "data_id", t.DataID, "cid", id.String(), "tx", rcpt.TxHash, "block", rcpt.Block)
	return rcpt, nil
}

func (c *Coordinator) metadata(t *Task, p Payload) storage.Metadata {
	kv := map[string]string{}
	for k, v := range p.Tags {
		kv[k] = v
	}
	if t.DataID != "" {
		if _, ok := kv["dataId"]; !ok {
			kv["dataId"] = t.DataID
		}
	}
	name := p.Name
	if name == "" {
		name = t.DataID
	}
	return storage.Metadata{Name: name, KeyValues: kv}.With(c.opts.Tags)
}

func (c *Coordinator) journal(ctx context.Context, t *Task, op ledger.Op, tx string, block uint64, failure error) {
	if c.opts.Journal == nil {
		return
	}
	ev := Event{
		TaskID:     t.ID,
		DataID:     t.DataID,
		Parameters: t.Parameters,
		Op:         op,
		State:      t.State().Name(),
		TxHash:     tx,
		Block:      block,
		At:         time.Now().UTC(),
	}
	if id, ok := t.CID(); ok {
		ev.CID = id.String()
	}
	if failure != nil {
		ev.Error = failure.Error()
	}
	if err := c.opts.Journal.Record(context.WithoutCancel(ctx), ev); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("journal write failed", "task", t.ID, "state", ev.State, "err", err)
	}
}
