// Package testkit holds test helpers for storage.Store implementations and
// their callers.
package testkit

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/storage"
)

// Mem is an in-memory storage.Store with failure injection.
type Mem struct {
	mu    sync.Mutex
	blobs map[string][]byte
	metas map[string]storage.Metadata

	// PushErr, when set, is returned by every Push.
	PushErr error
	// Override, when defined, replaces the identifier returned by Push.
	Override cid.Cid

	pushes int
}

var _ storage.Store = (*Mem)(nil)

func NewMem() *Mem {
	return &Mem{blobs: map[string][]byte{}, metas: map[string]storage.Metadata{}}
}

func (m *Mem) Push(ctx context.Context, data []byte, meta storage.Metadata) (cid.Cid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes++
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	if m.PushErr != nil {
		return cid.Undef, m.PushErr
	}
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}
	if m.Override.Defined() {
		id = m.Override
	}
	m.blobs[id.KeyString()] = append([]byte(nil), data...)
	m.metas[id.KeyString()] = meta
	return id, nil
}

func (m *Mem) Get(_ context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[id.KeyString()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Mem) Has(_ context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[id.KeyString()]
	return ok
}

// Pushes reports how many times Push was called.
func (m *Mem) Pushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushes
}

// MetadataFor returns the metadata recorded with id.
func (m *Mem) MetadataFor(id cid.Cid) (storage.Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[id.KeyString()]
	return meta, ok
}
