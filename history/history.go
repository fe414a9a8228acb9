// Package history is the local append-only journal of submissions. It keeps
// what the ledger does not: task parameters and every intermediate state,
// including uploads that never reached the ledger.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/submission"
)

//go:embed schema.sql
var schemaSQL string

// Journal implements submission.Journal on SQLite.
type Journal struct {
	db *sql.DB
}

var _ submission.Journal = (*Journal)(nil)

// Open creates or opens a journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		schemaSQL,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize journal: %w", err)
		}
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record appends ev.
func (j *Journal) Record(ctx context.Context, ev submission.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, seq, task_id, data_id, parameters, op, state, cid, tx_hash, block, error, at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM events), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ev.TaskID, ev.DataID, ev.Parameters, string(ev.Op), ev.State,
		ev.CID, ev.TxHash, ev.Block, ev.Error, at.UnixMilli())
	return err
}

// Parameters returns the parameters of the latest committed submission of
// dataID. Attempts the ledger rejected are ignored.
func (j *Journal) Parameters(ctx context.Context, dataID string) (string, bool, error) {
	var p string
	err := j.db.QueryRowContext(ctx,
		`SELECT parameters FROM events WHERE data_id = ? AND op = ? AND state = 'Committed' AND parameters <> '' ORDER BY seq DESC LIMIT 1`,
		dataID, string(ledger.OpSubmitTask)).Scan(&p)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p, true, nil
}

// Events returns the journal for one task, oldest first.
func (j *Journal) Events(ctx context.Context, taskID string) ([]submission.Event, error) {
	return j.query(ctx, `WHERE task_id = ? ORDER BY seq`, taskID)
}

// Orphans returns the last event of every task that stored a blob and then
// failed, so an operator can reconcile or garbage-collect those blobs.
func (j *Journal) Orphans(ctx context.Context) ([]submission.Event, error) {
	return j.query(ctx,
		`WHERE seq IN (SELECT MAX(seq) FROM events GROUP BY task_id) AND state = 'Failed' AND cid <> '' ORDER BY seq`)
}

func (j *Journal) query(ctx context.Context, where string, args ...any) ([]submission.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT task_id, data_id, parameters, op, state, cid, tx_hash, block, error, at FROM events `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []submission.Event
	for rows.Next() {
		var (
			ev submission.Event
			op string
			at int64
		)
		if err := rows.Scan(&ev.TaskID, &ev.DataID, &ev.Parameters, &op, &ev.State, &ev.CID, &ev.TxHash, &ev.Block, &ev.Error, &at); err != nil {
			return nil, err
		}
		ev.Op = ledger.Op(op)
		ev.At = time.UnixMilli(at).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
