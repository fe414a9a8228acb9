package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/taskledger/cidutil"
	"xdao.co/taskledger/config"
	"xdao.co/taskledger/history"
	"xdao.co/taskledger/keys"
	"xdao.co/taskledger/ledger/ledgerdb"
	"xdao.co/taskledger/model"
	"xdao.co/taskledger/storage/bundle"
	"xdao.co/taskledger/storage/testkit"
)

type harness struct {
	t       *testing.T
	dir     string
	store   *testkit.Mem
	db      *ledgerdb.DB
	journal *history.Journal
	signer  keys.Signer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	seed := bytes.Repeat([]byte{7}, keys.SeedSize)
	signer, err := keys.NewSigner(keys.SchemeEd25519, seed)
	require.NoError(t, err)
	db, err := ledgerdb.Open(filepath.Join(dir, "ledger.db"), ledgerdb.Options{Owner: signer.Address(), AutoSeal: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	j, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return &harness{t: t, dir: dir, store: testkit.NewMem(), db: db, journal: j, signer: signer}
}

func (h *harness) connect(_ context.Context, cfg config.Config, need Need, log *slog.Logger) (*Env, error) {
	cfg.Ledger.PollInterval = 5 * time.Millisecond
	cfg.Ledger.ConfirmTimeout = 5 * time.Second
	cfg.Gateway = "https://gw.example/ipfs"
	env := &Env{Config: cfg, Store: h.store, Engine: h.db, Logger: log}
	if need.has(NeedSigner) {
		env.Signer = h.signer
	}
	if need.has(NeedJournal) {
		env.Journal = h.journal
	}
	return env, nil
}

// run executes args and returns the exit code, stdout and stderr.
func (h *harness) run(args ...string) (int, string, string) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	code := Run(&RootOptions{Connect: h.connect}, args, &out, &errOut)
	return code, out.String(), errOut.String()
}

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Error    *model.ErrorRow  `json:"error"`
	Warnings []model.ErrorRow `json:"warnings"`
}

func (h *harness) runJSON(args ...string) (int, envelope) {
	h.t.Helper()
	code, out, _ := h.run(append([]string{"--format", "json"}, args...)...)
	var env envelope
	require.NoError(h.t, json.Unmarshal([]byte(out), &env), "stdout: %s", out)
	return code, env
}

func (h *harness) file(name string, data []byte) string {
	h.t.Helper()
	p := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(p, data, 0o600))
	return p
}

func (h *harness) tasks() []model.TaskRow {
	h.t.Helper()
	code, env := h.runJSON("tasks")
	require.Equal(h.t, ExitSuccess, code)
	var data struct {
		Tasks []model.TaskRow `json:"tasks"`
	}
	require.NoError(h.t, json.Unmarshal(env.Data, &data))
	return data.Tasks
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(&RootOptions{})
	for _, path := range [][]string{
		{"submit"}, {"complete"}, {"tasks"}, {"roles", "list"}, {"roles", "grant"}, {"roles", "revoke"},
		{"roles", "check"}, {"export"}, {"import"}, {"orphans"}, {"serve-upload"},
		{"key", "init"}, {"key", "derive"}, {"key", "list"}, {"key", "address"},
		{"blob", "put"}, {"blob", "get"}, {"blob", "backends"}, {"config", "show"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestInvalidFormatIsCommandError(t *testing.T) {
	h := newHarness(t)
	code, _, errOut := h.run("--format", "xml", "tasks")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut, "invalid format")
}

func TestSubmitRecordsTaskWithParameters(t *testing.T) {
	h := newHarness(t)
	input := h.file("input.bin", []byte("0123456789"))

	code, out, errOut := h.run("submit", "--data-id", "run-001", "--params", "lr=0.01", input)
	require.Equal(t, ExitSuccess, code, errOut)
	wantCID := cidutil.CIDv1RawSHA256([]byte("0123456789"))
	assert.Contains(t, out, "submitTask run-001 cid="+wantCID)
	assert.Contains(t, errOut, "progress: 33%")
	assert.Contains(t, errOut, "progress: 100%")

	rows := h.tasks()
	require.Len(t, rows, 1)
	assert.Equal(t, model.TaskRow{Index: 0, DataID: "run-001", Parameters: "lr=0.01", InputCID: wantCID}, rows[0])
}

func TestSubmitEmptyFileFailsValidation(t *testing.T) {
	h := newHarness(t)
	code, env := h.runJSON("submit", "--data-id", "run-001", h.file("empty.bin", nil))
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "error", env.Status)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.KindValidation, env.Error.Kind)
	assert.Zero(t, h.store.Pushes())
	assert.Empty(t, h.tasks())
}

func TestSubmitStoreFailureLeavesLedgerUntouched(t *testing.T) {
	h := newHarness(t)
	h.store.PushErr = errors.New("quota exceeded")
	code, env := h.runJSON("submit", "--data-id", "run-001", h.file("in.bin", []byte("x")))
	assert.Equal(t, ExitFailure, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.KindStore, env.Error.Kind)
	assert.False(t, env.Error.Orphaned)
	assert.Empty(t, h.tasks())
}

func TestDuplicateSubmitIsReportedAsOrphan(t *testing.T) {
	h := newHarness(t)
	code, _, errOut := h.run("submit", "--data-id", "run-001", h.file("a.bin", []byte("first")))
	require.Equal(t, ExitSuccess, code, errOut)

	code, env := h.runJSON("submit", "--data-id", "run-001", h.file("b.bin", []byte("second")))
	assert.Equal(t, ExitFailure, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.KindLedgerSubmit, env.Error.Kind)
	assert.True(t, env.Error.Orphaned)
	assert.Equal(t, cidutil.CIDv1RawSHA256([]byte("second")), env.Error.CID)

	code, env = h.runJSON("orphans")
	require.Equal(t, ExitSuccess, code)
	var rows []orphanRow
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "run-001", rows[0].DataID)
	assert.Equal(t, cidutil.CIDv1RawSHA256([]byte("second")), rows[0].CID)
}

func TestCompleteThenExport(t *testing.T) {
	h := newHarness(t)
	code, _, errOut := h.run("submit", "--data-id", "run-001", h.file("in.bin", []byte("input")))
	require.Equal(t, ExitSuccess, code, errOut)
	code, out, errOut := h.run("complete", "--index", "0", h.file("out.bin", []byte("result")))
	require.Equal(t, ExitSuccess, code, errOut)
	resultCID := cidutil.CIDv1RawSHA256([]byte("result"))
	assert.Contains(t, out, "completeTask run-001 cid="+resultCID)

	rows := h.tasks()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Completed)
	assert.Equal(t, resultCID, rows[0].ResultCID)
	assert.Equal(t, "https://gw.example/ipfs/"+resultCID, rows[0].ResultURL)

	tarPath := filepath.Join(h.dir, "results.tar")
	code, _, errOut = h.run("export", "--out", tarPath)
	require.Equal(t, ExitSuccess, code, errOut)

	f, err := os.Open(tarPath)
	require.NoError(t, err)
	defer f.Close()
	target := testkit.NewMem()
	res, err := bundle.Import(context.Background(), f, target, bundle.ImportOptions{IgnoreUnknown: true})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, resultCID, res[resultCID].String())
}

func TestCompleteUnknownIndexFails(t *testing.T) {
	h := newHarness(t)
	code, env := h.runJSON("complete", "--index", "4", h.file("out.bin", []byte("result")))
	assert.Equal(t, ExitFailure, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.KindValidation, env.Error.Kind)
	assert.Zero(t, h.store.Pushes())
}

func TestRolesGrantListRevoke(t *testing.T) {
	h := newHarness(t)
	worker := "0x00000000000000000000000000000000000000aa"

	code, _, errOut := h.run("roles", "grant", "--role", "WORKER", "--account", worker, "--description", "GPU worker", "--permanent")
	require.Equal(t, ExitSuccess, code, errOut)

	list := func() []model.RoleRow {
		code, env := h.runJSON("roles", "list")
		require.Equal(t, ExitSuccess, code)
		var rows []model.RoleRow
		require.NoError(t, json.Unmarshal(env.Data, &rows))
		return rows
	}
	rows := list()
	require.Len(t, rows, 1)
	assert.Equal(t, "WORKER", rows[0].RoleID)
	assert.Equal(t, "GPU worker", rows[0].Description)
	assert.Equal(t, "Permanent", rows[0].Expiration)
	assert.False(t, rows[0].Expired)
	assert.True(t, strings.EqualFold(worker, rows[0].Account), rows[0].Account)

	code, out, _ := h.run("roles", "check", "--role", "WORKER", "--account", worker)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, ": true")

	code, _, errOut = h.run("roles", "revoke", "--role", "WORKER", "--account", worker)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Empty(t, list())
}

func TestRolesGrantRejectsPastExpiry(t *testing.T) {
	h := newHarness(t)
	code, env := h.runJSON("roles", "grant", "--role", "WORKER", "--account", "0x00000000000000000000000000000000000000aa",
		"--description", "late", "--expires", "2001-01-01")
	assert.Equal(t, ExitFailure, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, model.KindValidation, env.Error.Kind)

	code, _, _ = h.run("roles", "grant", "--role", "WORKER", "--account", "0x00000000000000000000000000000000000000aa",
		"--description", "late", "--expires", "2001-01-01", "--retroactive")
	require.Equal(t, ExitSuccess, code)
	code, env = h.runJSON("roles", "list")
	require.Equal(t, ExitSuccess, code)
	var rows []model.RoleRow
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Expired)
	assert.Equal(t, "Mon, 01 Jan 2001 00:00:00 GMT", rows[0].Expiration)
}

func TestRolesGrantNeedsExpirationChoice(t *testing.T) {
	h := newHarness(t)
	code, _, errOut := h.run("roles", "grant", "--role", "WORKER", "--account", "0x00000000000000000000000000000000000000aa", "--description", "x")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut, "--permanent or --expires")
}

func TestKeyInitAndAddress(t *testing.T) {
	h := newHarness(t)
	keyDir := filepath.Join(h.dir, "keys")
	seedHex := strings.Repeat("01", keys.SeedSize)

	code, _, errOut := h.run("key", "--key-dir", keyDir, "init", "--name", "alice", "--seed-hex", seedHex)
	require.Equal(t, ExitSuccess, code, errOut)
	code, _, errOut = h.run("key", "--key-dir", keyDir, "derive", "--from", "alice", "--role", "worker")
	require.Equal(t, ExitSuccess, code, errOut)

	code, out, errOut := h.run("key", "--key-dir", keyDir, "address", "--name", "alice")
	require.Equal(t, ExitSuccess, code, errOut)
	seed, err := keys.ParseSeedHex(seedHex)
	require.NoError(t, err)
	s, err := keys.NewSigner(keys.SchemeEd25519, seed)
	require.NoError(t, err)
	assert.Equal(t, s.Address().Hex()+"\n", out)

	code, out, _ = h.run("key", "--key-dir", keyDir, "list")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "alice\troles: worker\n", out)
}

func TestBlobPutGetThroughConfigStore(t *testing.T) {
	h := newHarness(t)
	code, out, errOut := h.run("blob", "put", h.file("a.txt", []byte("hello")))
	require.Equal(t, ExitSuccess, code, errOut)
	id := strings.TrimSpace(out)
	assert.Equal(t, cidutil.CIDv1RawSHA256([]byte("hello")), id)

	code, out, errOut = h.run("blob", "get", "--cid", id)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Equal(t, "hello", out)
}

func TestBlobPutThroughRegistryBackend(t *testing.T) {
	h := newHarness(t)
	blobs := filepath.Join(h.dir, "blobs")
	code, out, errOut := h.run("blob", "--backend", "localfs", "--localfs-dir", blobs, "put", h.file("a.txt", []byte("hello")))
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Equal(t, cidutil.CIDv1RawSHA256([]byte("hello")), strings.TrimSpace(out))
	assert.Zero(t, h.store.Pushes())
}
