package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
)

// Named associates a Store with a stable backend name for reporting.
type Named struct {
	Name  string
	Store Store
}

// Replicating pushes to every backend and requires them to agree on the CID.
//
// Reads fall back in order. Use PushAll when the per-backend CIDs matter.
type Replicating struct {
	Backends []Named
}

var _ Store = Replicating{}

// PushAll writes data to all backends in order.
//
// The first backend's CID is the reference; any backend returning a different
// CID yields ErrCIDMismatch together with the partial mapping.
func (r Replicating) PushAll(ctx context.Context, data []byte, meta Metadata) (cid.Cid, map[string]cid.Cid, error) {
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: Replicating has no backends")
	}

	out := make(map[string]cid.Cid, len(r.Backends))
	want := cid.Undef
	for _, b := range r.Backends {
		if b.Store == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil store for backend %q", b.Name)
		}
		got, err := b.Store.Push(ctx, data, meta)
		if err != nil {
			return cid.Undef, out, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if !want.Defined() {
			want = got
			continue
		}
		if !got.Equals(want) {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r Replicating) Push(ctx context.Context, data []byte, meta Metadata) (cid.Cid, error) {
	id, _, err := r.PushAll(ctx, data, meta)
	return id, err
}

func (r Replicating) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, b := range r.Backends {
		if b.Store == nil {
			continue
		}
		out, err := b.Store.Get(ctx, id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r Replicating) Has(ctx context.Context, id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(ctx, id) {
			return true
		}
	}
	return false
}
