package storage

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
)

// Multi provides deterministic, ordered fallback across multiple stores.
//
// Reads try Stores in slice order. Push writes only to the first store.
type Multi struct {
	Stores []Store
}

var _ Store = Multi{}

func (m Multi) Push(ctx context.Context, data []byte, meta Metadata) (cid.Cid, error) {
	if len(m.Stores) == 0 {
		return cid.Undef, errors.New("storage: Multi has no stores")
	}
	return m.Stores[0].Push(ctx, data, meta)
}

func (m Multi) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, s := range m.Stores {
		b, err := s.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m Multi) Has(ctx context.Context, id cid.Cid) bool {
	for _, s := range m.Stores {
		if s.Has(ctx, id) {
			return true
		}
	}
	return false
}
