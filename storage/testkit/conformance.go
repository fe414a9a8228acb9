package testkit

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/storage"
)

// NewStore constructs a fresh, empty store for a test.
// The returned store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

// RunStoreConformance checks the storage.Store contract for locally hashing stores.
func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()
	meta := storage.Metadata{Name: "conformance.bin", KeyValues: map[string]string{"suite": "testkit"}}

	t.Run("PushGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := []byte("hello, taskledger storage")

		id, err := s.Push(ctx, want, meta)
		if err != nil {
			t.Fatalf("Push failed: %v", err)
		}
		if id.Version() != cidutil.Version {
			t.Fatalf("Push returned CIDv%d", id.Version())
		}
		if !cidutil.Matches(id, want) {
			t.Fatalf("Push CID %s does not match content", id)
		}

		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PushIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := []byte("same bytes")

		id1, err := s.Push(ctx, b, meta)
		if err != nil {
			t.Fatalf("Push(1) failed: %v", err)
		}
		id2, err := s.Push(ctx, b, storage.Metadata{Name: "renamed.bin"})
		if err != nil {
			t.Fatalf("Push(2) failed: %v", err)
		}
		if !id1.Equals(id2) {
			t.Fatalf("Push not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}

		if s.Has(ctx, id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := s.Get(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if _, err := s.Push(ctx, b, meta); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
		if !s.Has(ctx, id) {
			t.Fatalf("Has returned false after Push")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		s := newStore(t)
		var undef cid.Cid
		if s.Has(ctx, undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := s.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}
