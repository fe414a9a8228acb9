package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/storage"
)

// Store pushes blobs into the local Kubo repository via the "ipfs" CLI.
//
// Blocks are written raw with sha2-256 and CIDv1 so the returned identifier
// equals cidutil.CIDv1RawSHA256CID of the bytes. Kubo raw blocks carry no
// metadata; Push accepts it for interface parity and drops it.
type Store struct {
	bin string
	env []string
	pin bool
}

var _ storage.Store = (*Store)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// RepoPath sets IPFS_PATH for every invocation when non-empty.
	RepoPath string
	// Pin keeps pushed blocks out of the repo garbage collector.
	Pin bool
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	var env []string
	if opts.RepoPath != "" {
		env = append(os.Environ(), "IPFS_PATH="+opts.RepoPath)
	}
	return &Store{bin: bin, env: env, pin: opts.Pin}
}

func (s *Store) Push(ctx context.Context, data []byte, _ storage.Metadata) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}

	args := []string{
		"block", "put",
		"--quiet",
		"--cid-codec=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
	}
	if s.pin {
		args = append(args, "--pin=true")
	}
	out, err := s.run(ctx, data, append(args, "/dev/stdin")...)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", storage.ErrUpstream, err)
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := s.run(ctx, nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Matches(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := s.run(ctx, nil, "block", "stat", "--offline", id.String())
	return err == nil
}

func (s *Store) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.TrimSpace(string(ee.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", msg)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block was not found")
}
