// Package storage defines the addressable-store boundary.
//
// A Store accepts a blob, persists it, and hands back a CIDv1 naming it. The
// store has no delete primitive: once pushed, content stays addressable.
package storage

import (
	"context"
	"sort"

	"github.com/ipfs/go-cid"
)

// Metadata travels with a pushed blob. It never influences the identifier.
type Metadata struct {
	// Name is a human-readable label, typically the uploaded file name.
	Name string
	// KeyValues are free-form tags recorded next to the blob.
	KeyValues map[string]string
}

// Keys returns the tag keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m.KeyValues))
	for k := range m.KeyValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of m with extra tags merged in. Existing keys win.
func (m Metadata) With(tags map[string]string) Metadata {
	out := Metadata{Name: m.Name, KeyValues: make(map[string]string, len(m.KeyValues)+len(tags))}
	for k, v := range tags {
		out.KeyValues[k] = v
	}
	for k, v := range m.KeyValues {
		out.KeyValues[k] = v
	}
	return out
}

// Store is the addressable-store client.
//
// Contract:
//   - Push MUST be idempotent for identical bytes.
//   - Push MUST return a CIDv1; stores that hash locally use raw + sha2-256.
//   - Stored objects MUST be immutable.
//   - Get MUST return ErrNotFound when the CID is absent.
type Store interface {
	Push(ctx context.Context, data []byte, meta Metadata) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
}
