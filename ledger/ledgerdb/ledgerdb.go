// Package ledgerdb is a single-node reference ledger backed by SQLite.
//
// Transactions are verified and pre-checked on Submit, stored as pending, and
// applied in submission order when a block is sealed. A transaction that
// fails its checks at seal time is recorded as reverted; nothing is ever
// deleted from the log.
package ledgerdb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"

	"xdao.co/taskledger/ledger"
)

//go:embed schema.sql
var schemaSQL string

// Well-known roles checked by the engine.
const (
	RoleAdmin     = "ADMIN"
	RoleWorker    = "WORKER"
	RoleSubmitter = "SUBMITTER"
)

// Options configures authorization and sealing.
type Options struct {
	// Owner may always manage roles. A zero Owner leaves role management open.
	Owner common.Address
	// RequireSubmitterRole gates submitTask on a live SUBMITTER role.
	RequireSubmitterRole bool
	// AutoSeal seals a block after every accepted transaction.
	AutoSeal bool
	Now      func() time.Time
	Logger   *slog.Logger
}

// DB is a ledger.Engine.
type DB struct {
	db   *sql.DB
	opts Options
	log  *slog.Logger

	mu sync.Mutex
}

var _ ledger.Engine = (*DB)(nil)

// Open creates or opens a ledger database at path.
func Open(path string, opts Options) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &DB{db: db, opts: opts, log: log}, nil
}

func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Submit verifies and pre-checks stx against the sealed state and records it
// as pending.
func (d *DB) Submit(ctx context.Context, stx ledger.SignedTx) (ledger.TxHandle, error) {
	if err := stx.Tx.Validate(); err != nil {
		return ledger.TxHandle{}, err
	}
	if err := stx.Verify(); err != nil {
		return ledger.TxHandle{}, err
	}
	hash, err := stx.Tx.Hash()
	if err != nil {
		return ledger.TxHandle{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if stx.Tx.Op == ledger.OpSubmitTask {
		var n int
		err := d.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM txs WHERE data_id = ? AND status = 'pending'`, stx.Tx.DataID[:]).Scan(&n)
		if err != nil {
			return ledger.TxHandle{}, err
		}
		if n > 0 {
			return ledger.TxHandle{}, fmt.Errorf("%w: dataId %q is pending", ledger.ErrDuplicateKey, stx.Tx.DataID)
		}
	}
	if err := d.check(ctx, d.db, stx.Tx); err != nil {
		return ledger.TxHandle{}, err
	}

	body, err := encodeBody(stx)
	if err != nil {
		return ledger.TxHandle{}, err
	}
	var dataID any
	if stx.Tx.Op == ledger.OpSubmitTask {
		dataID = stx.Tx.DataID[:]
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO txs (hash, op, sender, data_id, body) VALUES (?, ?, ?, ?, ?)`,
		hash.Hex(), string(stx.Tx.Op), stx.Tx.From.Hex(), dataID, body)
	if err != nil {
		return ledger.TxHandle{}, fmt.Errorf("insert tx: %w", err)
	}
	d.log.Debug("tx accepted", "tx", hash.Hex(), "op", stx.Tx.Op, "from", stx.Tx.From.Hex())

	if d.opts.AutoSeal {
		if _, err := d.seal(ctx); err != nil {
			return ledger.TxHandle{}, err
		}
	}
	return ledger.TxHandle{Hash: hash.Hex()}, nil
}

// SealResult summarizes one sealed block.
type SealResult struct {
	Block    uint64
	Final    int
	Reverted int
}

// Seal applies every pending transaction in order as one block. With nothing
// pending it returns a zero result and creates no block.
func (d *DB) Seal(ctx context.Context) (SealResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seal(ctx)
}

func (d *DB) seal(ctx context.Context) (SealResult, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return SealResult{}, err
	}
	defer tx.Rollback()

	type pendingTx struct {
		hash string
		body []byte
	}
	rows, err := tx.QueryContext(ctx, `SELECT hash, body FROM txs WHERE status = 'pending' ORDER BY seq`)
	if err != nil {
		return SealResult{}, err
	}
	var pending []pendingTx
	for rows.Next() {
		var p pendingTx
		if err := rows.Scan(&p.hash, &p.body); err != nil {
			rows.Close()
			return SealResult{}, err
		}
		pending = append(pending, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SealResult{}, err
	}
	if len(pending) == 0 {
		return SealResult{}, nil
	}

	var res SealResult
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(number), 0) + 1 FROM blocks`).Scan(&res.Block); err != nil {
		return SealResult{}, err
	}

	for _, p := range pending {
		stx, err := decodeBody(p.body)
		if err != nil {
			return SealResult{}, fmt.Errorf("decode %s: %w", p.hash, err)
		}
		status, reason := "final", ""
		if err := d.check(ctx, tx, stx.Tx); err != nil {
			status, reason = "reverted", err.Error()
		} else if err := d.apply(ctx, tx, stx.Tx, p.hash); err != nil {
			return SealResult{}, fmt.Errorf("apply %s: %w", p.hash, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE txs SET status = ?, block = ?, reason = ? WHERE hash = ?`,
			status, res.Block, reason, p.hash); err != nil {
			return SealResult{}, err
		}
		if status == "final" {
			res.Final++
		} else {
			res.Reverted++
			d.log.Warn("tx reverted", "tx", p.hash, "block", res.Block, "reason", reason)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blocks (number, sealed_at, tx_count) VALUES (?, ?, ?)`,
		res.Block, d.opts.Now().Unix(), len(pending)); err != nil {
		return SealResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SealResult{}, err
	}
	d.log.Info("block sealed", "block", res.Block, "final", res.Final, "reverted", res.Reverted)
	return res, nil
}

// Run seals a block every interval until ctx is done.
func (d *DB) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.Seal(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error("seal failed", "err", err)
			}
		}
	}
}

func (d *DB) TxStatus(ctx context.Context, h ledger.TxHandle) (ledger.TxState, error) {
	var (
		status, reason string
		block          uint64
	)
	err := d.db.QueryRowContext(ctx, `SELECT status, block, reason FROM txs WHERE hash = ?`, h.Hash).
		Scan(&status, &block, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.TxState{}, fmt.Errorf("%w: tx %s", ledger.ErrNotFound, h.Hash)
	}
	if err != nil {
		return ledger.TxState{}, err
	}
	return ledger.TxState{Status: ledger.TxStatus(status), Block: block, Reason: reason}, nil
}
