package localfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/storage"
)

// Store is a local filesystem-backed addressable store.
//
// Objects are stored immutably and keyed strictly by CID. Metadata for a blob
// is written once, next to it, the first time the blob is pushed.
type Store struct {
	root string
}

var _ storage.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

type sidecar struct {
	Name      string            `json:"name,omitempty"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

func (s *Store) Push(ctx context.Context, data []byte, meta storage.Metadata) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}

	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if !os.IsExist(err) {
			return cid.Undef, err
		}
		existing, rerr := s.Get(ctx, id)
		if rerr != nil || !bytes.Equal(existing, data) {
			// An unreadable or corrupted object is never repaired in place.
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}

	if err := writeAndSync(f, data); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := s.writeSidecar(id, meta); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) writeSidecar(id cid.Cid, meta storage.Metadata) error {
	if meta.Name == "" && len(meta.KeyValues) == 0 {
		return nil
	}
	b, err := json.Marshal(sidecar{Name: meta.Name, KeyValues: meta.KeyValues})
	if err != nil {
		return err
	}
	path := s.pathFor(id) + ".meta.json"
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	return writeAndSync(f, b)
}

// Metadata returns the metadata recorded when id was first pushed.
func (s *Store) Metadata(id cid.Cid) (storage.Metadata, error) {
	if !id.Defined() {
		return storage.Metadata{}, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(s.pathFor(id) + ".meta.json")
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Metadata{}, storage.ErrNotFound
		}
		return storage.Metadata{}, err
	}
	var sc sidecar
	if err := json.Unmarshal(b, &sc); err != nil {
		return storage.Metadata{}, err
	}
	return storage.Metadata{Name: sc.Name, KeyValues: sc.KeyValues}, nil
}

func (s *Store) Get(_ context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (s *Store) Has(_ context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(s.pathFor(id))
	return err == nil
}

func (s *Store) pathFor(id cid.Cid) string {
	str := id.String()
	if len(str) < 2 {
		return filepath.Join(s.root, str)
	}
	return filepath.Join(s.root, str[len(str)-2:], str)
}
