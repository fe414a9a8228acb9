package submission

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
)

// Task is one unit of work moving through the submission protocol. Only the
// Coordinator mutates it; readers may inspect it from other goroutines.
type Task struct {
	ID         string
	DataID     string
	Parameters string
	Created    time.Time

	mu       sync.RWMutex
	state    State
	history  []State
	progress int
}

// NewTask returns a Pending task with a fresh local id.
func NewTask(dataID, parameters string) *Task {
	return &Task{
		ID:         uuid.NewString(),
		DataID:     dataID,
		Parameters: parameters,
		Created:    time.Now().UTC(),
		state:      Pending{},
		history:    []State{Pending{}},
	}
}

func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// History returns every state the task has been in, oldest first.
func (t *Task) History() []State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]State(nil), t.history...)
}

// CID returns the store identifier once the upload succeeded.
func (t *Task) CID() (cid.Cid, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch s := t.state.(type) {
	case Uploaded:
		return s.CID, true
	case Committing:
		return s.CID, true
	case Committed:
		return s.CID, true
	case Failed:
		return s.CID, s.CID.Defined()
	}
	return cid.Undef, false
}

// Progress returns the last reported stage indicator.
func (t *Task) Progress() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

func (t *Task) transition(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := checkTransition(t.state, to); err != nil {
		return err
	}
	t.state = to
	t.history = append(t.history, to)
	return nil
}

func (t *Task) setProgress(v int) {
	t.mu.Lock()
	t.progress = v
	t.mu.Unlock()
}
