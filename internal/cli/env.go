package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"xdao.co/taskledger/config"
	"xdao.co/taskledger/history"
	"xdao.co/taskledger/keys"
	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/ledger/grpcledger"
	"xdao.co/taskledger/storage"
	"xdao.co/taskledger/storage/casregistry"
	"xdao.co/taskledger/views"

	_ "xdao.co/taskledger/storage/grpccas"
	_ "xdao.co/taskledger/storage/httpupload"
	_ "xdao.co/taskledger/storage/ipfs"
	_ "xdao.co/taskledger/storage/localfs"
	_ "xdao.co/taskledger/storage/pinning"
)

// Need selects which dependencies a command opens.
type Need uint8

const (
	NeedStore Need = 1 << iota
	NeedLedger
	NeedSigner
	NeedJournal
	// NeedDaemonStore opens the store with daemon-usage backends.
	NeedDaemonStore
)

func (n Need) has(x Need) bool { return n&x != 0 }

// Env holds the opened dependencies of one command run. Fields a command did
// not ask for are nil.
type Env struct {
	Config  config.Config
	Store   storage.Store
	Engine  ledger.Engine
	Signer  keys.Signer
	Journal *history.Journal
	Logger  *slog.Logger

	closers []func() error
}

// Connector opens an Env. Tests replace it to run commands in-process.
type Connector func(ctx context.Context, cfg config.Config, need Need, log *slog.Logger) (*Env, error)

// OnClose registers fn to run when the Env is closed, in reverse order.
func (e *Env) OnClose(fn func() error) { e.closers = append(e.closers, fn) }

func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Client returns a ledger client signing with the configured key, or a
// read-only client when no signer was opened.
func (e *Env) Client() *ledger.SignedClient { return ledger.NewClient(e.Engine, e.Signer) }

// ParamSource returns the journal as a parameter source, or nil.
func (e *Env) ParamSource() views.ParamSource {
	if e.Journal == nil {
		return nil
	}
	return e.Journal
}

// Connect is the default Connector: config-driven store backends, a gRPC
// ledger remote, the key store signer and the sqlite journal.
func Connect(ctx context.Context, cfg config.Config, need Need, log *slog.Logger) (*Env, error) {
	env := &Env{Config: cfg, Logger: log}
	fail := func(err error) (*Env, error) {
		_ = env.Close()
		return nil, err
	}

	if need.has(NeedStore) || need.has(NeedDaemonStore) {
		usage := casregistry.UsageCLI
		if need.has(NeedDaemonStore) {
			usage = casregistry.UsageDaemon
		}
		s, closeFn, err := cfg.Store.Open(usage, "")
		if err != nil {
			return fail(err)
		}
		env.Store = s
		if closeFn != nil {
			env.OnClose(closeFn)
		}
	}

	if need.has(NeedLedger) {
		remote, err := grpcledger.Dial(cfg.Ledger.Target, grpcledger.DialOptions{Timeout: cfg.Ledger.DialTimeout})
		if err != nil {
			return fail(fmt.Errorf("dial ledger %s: %w", cfg.Ledger.Target, err))
		}
		remote.Timeout = cfg.Ledger.RPCTimeout
		env.Engine = remote
		env.OnClose(remote.Close)
	}

	if need.has(NeedSigner) {
		s, err := loadSigner(cfg.Signer)
		if err != nil {
			return fail(fmt.Errorf("load signer: %w", err))
		}
		env.Signer = s
	}

	if need.has(NeedJournal) && cfg.History != "" {
		j, err := history.Open(cfg.History)
		if err != nil {
			return fail(err)
		}
		env.Journal = j
		env.OnClose(j.Close)
	}
	return env, nil
}

func loadSigner(sc config.Signer) (keys.Signer, error) {
	scheme, err := keys.ParseScheme(sc.Scheme)
	if err != nil {
		return nil, err
	}
	ks, err := keys.Open(sc.KeyDir)
	if err != nil {
		return nil, err
	}
	return ks.LoadSigner(scheme, sc.SeedFile, sc.Name, sc.Role)
}
