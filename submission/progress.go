package submission

import "sync"

// Progress markers reported to a ProgressFunc.
const (
	ProgressStarted   = 0
	ProgressUploaded  = 33
	ProgressSubmitted = 66
	ProgressDone      = 100
	ProgressFailed    = -1
)

// ProgressFunc receives stage indicators in strictly increasing order,
// followed by exactly one terminal value: ProgressDone or ProgressFailed.
type ProgressFunc func(percent int)

type progress struct {
	mu      sync.Mutex
	fn      ProgressFunc
	cur     int
	started bool
	done    bool
}

func newProgress(fn ProgressFunc) *progress {
	return &progress{fn: fn}
}

func (p *progress) advance(v int) {
	p.mu.Lock()
	if p.done || (p.started && v <= p.cur) {
		p.mu.Unlock()
		return
	}
	p.started, p.cur = true, v
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (p *progress) finish(ok bool) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	v := ProgressFailed
	if ok {
		v = ProgressDone
	}
	p.cur = v
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (p *progress) value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}
