package submission

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/model"
)

// State is a task's position in the upload-then-commit protocol. The set of
// implementations is closed; switch on the concrete type.
type State interface {
	Name() string
	isState()
}

type (
	// Pending is a task created but not yet submitted.
	Pending struct{}
	// Uploading is a task whose payload is being pushed to the store.
	Uploading struct{}
	// Uploaded is a task whose payload the store accepted.
	Uploaded struct{ CID cid.Cid }
	// Committing is a task whose reference is being written to the ledger.
	Committing struct{ CID cid.Cid }
	// Committed is a task whose ledger write reached finality.
	Committed struct {
		CID     cid.Cid
		Receipt ledger.Receipt
	}
	// Failed is a terminal failure. CID is defined when the store accepted
	// the payload before the failure.
	Failed struct {
		Stage model.Stage
		Err   error
		CID   cid.Cid
	}
)

func (Pending) Name() string    { return "Pending" }
func (Uploading) Name() string  { return "Uploading" }
func (Uploaded) Name() string   { return "Uploaded" }
func (Committing) Name() string { return "Committing" }
func (Committed) Name() string  { return "Committed" }
func (Failed) Name() string     { return "Failed" }

func (Pending) isState()    {}
func (Uploading) isState()  {}
func (Uploaded) isState()   {}
func (Committing) isState() {}
func (Committed) isState()  {}
func (Failed) isState()     {}

// Terminal reports whether no further transition is possible.
func Terminal(s State) bool {
	switch s.(type) {
	case Committed, Failed:
		return true
	}
	return false
}

var ErrIllegalTransition = errors.New("submission: illegal state transition")

// checkTransition enforces the protocol order and that a CID, once recorded,
// never changes.
func checkTransition(from, to State) error {
	ok := false
	switch f := from.(type) {
	case Pending:
		switch t := to.(type) {
		case Uploading:
			ok = true
		case Failed:
			ok = t.Stage == model.StageValidating && !t.CID.Defined()
		}
	case Uploading:
		switch t := to.(type) {
		case Uploaded:
			ok = t.CID.Defined()
		case Failed:
			ok = t.Stage == model.StageUploading && !t.CID.Defined()
		}
	case Uploaded:
		if t, is := to.(Committing); is {
			ok = t.CID.Equals(f.CID)
		}
	case Committing:
		switch t := to.(type) {
		case Committed:
			ok = t.CID.Equals(f.CID)
		case Failed:
			ok = t.Stage == model.StageCommitting && t.CID.Equals(f.CID)
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from.Name(), to.Name())
	}
	return nil
}
