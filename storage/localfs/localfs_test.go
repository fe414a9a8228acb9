package localfs

import (
	"context"
	"os"
	"testing"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/storage"
	"xdao.co/taskledger/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		t.Helper()
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := s.Push(ctx, orig, storage.Metadata{})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := s.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := s.Get(ctx, id); err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}
	if _, err := s.Push(ctx, orig, storage.Metadata{}); err != storage.ErrImmutable {
		t.Fatalf("Push after corruption: got %v want %v", err, storage.ErrImmutable)
	}
	if !cidutil.Matches(id, orig) {
		t.Fatalf("unexpected CID %s", id)
	}
}

func TestLocalFS_MetadataWrittenOnce(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first := storage.Metadata{Name: "input.csv", KeyValues: map[string]string{"customKey": "customValue"}}
	id, err := s.Push(ctx, []byte("a,b,c\n"), first)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if _, err := s.Push(ctx, []byte("a,b,c\n"), storage.Metadata{Name: "other.csv"}); err != nil {
		t.Fatalf("second Push failed: %v", err)
	}

	got, err := s.Metadata(id)
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if got.Name != "input.csv" || got.KeyValues["customKey"] != "customValue" {
		t.Fatalf("unexpected metadata: %+v", got)
	}
}
