package ledgerdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/taskledger/ledger"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func encodeBody(stx ledger.SignedTx) ([]byte, error) { return json.Marshal(stx) }

func decodeBody(b []byte) (ledger.SignedTx, error) {
	var stx ledger.SignedTx
	err := json.Unmarshal(b, &stx)
	return stx, err
}

// check reports whether tx may be applied to the state visible through q.
func (d *DB) check(ctx context.Context, q querier, tx ledger.Tx) error {
	switch tx.Op {
	case ledger.OpSubmitTask:
		if d.opts.RequireSubmitterRole {
			if err := d.requireRole(ctx, q, tx.From, RoleSubmitter); err != nil {
				return err
			}
		}
		var n int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE data_id = ?`, tx.DataID[:]).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: dataId %q", ledger.ErrDuplicateKey, tx.DataID)
		}
	case ledger.OpCompleteTask:
		if err := d.requireRole(ctx, q, tx.From, RoleWorker); err != nil {
			return err
		}
		var completed bool
		err := q.QueryRowContext(ctx, `SELECT completed FROM tasks WHERE idx = ?`, tx.Index).Scan(&completed)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: task %d", ledger.ErrNotFound, tx.Index)
		}
		if err != nil {
			return err
		}
		if completed {
			return fmt.Errorf("%w: task %d", ledger.ErrAlreadyFinal, tx.Index)
		}
	case ledger.OpGrantRole:
		return d.requireRole(ctx, q, tx.From, RoleAdmin)
	case ledger.OpRevokeRole:
		if err := d.requireRole(ctx, q, tx.From, RoleAdmin); err != nil {
			return err
		}
		ok, err := isMember(ctx, q, tx.RoleID, tx.Account)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s does not hold %q", ledger.ErrNotMember, tx.Account.Hex(), tx.RoleID)
		}
	}
	return nil
}

func (d *DB) apply(ctx context.Context, q querier, tx ledger.Tx, hash string) error {
	switch tx.Op {
	case ledger.OpSubmitTask:
		_, err := q.ExecContext(ctx,
			`INSERT INTO tasks (idx, data_id, input_cid, submitter, tx_hash)
			 VALUES ((SELECT COUNT(*) FROM tasks), ?, ?, ?, ?)`,
			tx.DataID[:], tx.CID, tx.From.Hex(), hash)
		return err
	case ledger.OpCompleteTask:
		_, err := q.ExecContext(ctx, `UPDATE tasks SET completed = 1, result_cid = ? WHERE idx = ?`, tx.CID, tx.Index)
		return err
	case ledger.OpGrantRole:
		_, err := q.ExecContext(ctx,
			`INSERT INTO roles (role_id, description, expiration, created_seq)
			 VALUES (?, ?, ?, (SELECT COALESCE(MAX(created_seq), 0) + 1 FROM roles))
			 ON CONFLICT(role_id) DO UPDATE SET description = excluded.description, expiration = excluded.expiration`,
			tx.RoleID[:], tx.Description[:], tx.Expiration)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			`INSERT OR IGNORE INTO role_members (role_id, account) VALUES (?, ?)`, tx.RoleID[:], tx.Account.Hex())
		return err
	case ledger.OpRevokeRole:
		if _, err := q.ExecContext(ctx,
			`DELETE FROM role_members WHERE role_id = ? AND account = ?`, tx.RoleID[:], tx.Account.Hex()); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx,
			`DELETE FROM roles WHERE role_id = ? AND NOT EXISTS (SELECT 1 FROM role_members WHERE role_id = ?)`,
			tx.RoleID[:], tx.RoleID[:])
		return err
	}
	return fmt.Errorf("%w: unknown op %q", ledger.ErrInvalidTx, tx.Op)
}

// requireRole passes for the owner, for anyone when no owner is configured
// and the role is ADMIN, and for live holders of role.
func (d *DB) requireRole(ctx context.Context, q querier, account common.Address, role string) error {
	if d.opts.Owner != ledger.ZeroAddress && account == d.opts.Owner {
		return nil
	}
	if d.opts.Owner == ledger.ZeroAddress && role == RoleAdmin {
		return nil
	}
	ok, err := d.holds(ctx, q, account, role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks live %s role", ledger.ErrUnauthorized, account.Hex(), role)
	}
	return nil
}

func (d *DB) holds(ctx context.Context, q querier, account common.Address, role string) (bool, error) {
	id, err := ledger.EncodeBytes32(role)
	if err != nil {
		return false, err
	}
	var exp int64
	err = q.QueryRowContext(ctx,
		`SELECT r.expiration FROM roles r JOIN role_members m ON m.role_id = r.role_id
		 WHERE r.role_id = ? AND m.account = ?`, id[:], account.Hex()).Scan(&exp)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return exp == 0 || exp >= d.opts.Now().Unix(), nil
}

// HasRole reports whether account holds a live (unexpired) role.
func (d *DB) HasRole(ctx context.Context, account common.Address, role string) (bool, error) {
	return d.holds(ctx, d.db, account, role)
}

func isMember(ctx context.Context, q querier, roleID ledger.Bytes32, account common.Address) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_members WHERE role_id = ? AND account = ?`, roleID[:], account.Hex()).Scan(&n)
	return n > 0, err
}

func (d *DB) GetAllRoles(ctx context.Context) ([]ledger.Bytes32, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT role_id FROM roles ORDER BY created_seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Bytes32
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, toBytes32(raw))
	}
	return out, rows.Err()
}

func (d *DB) GetRoleDetails(ctx context.Context, roleID ledger.Bytes32) (ledger.RoleDetails, error) {
	var (
		desc []byte
		exp  int64
	)
	err := d.db.QueryRowContext(ctx, `SELECT description, expiration FROM roles WHERE role_id = ?`, roleID[:]).
		Scan(&desc, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.RoleDetails{}, fmt.Errorf("%w: role %q", ledger.ErrNotFound, roleID)
	}
	if err != nil {
		return ledger.RoleDetails{}, err
	}
	out := ledger.RoleDetails{RoleID: roleID, Expiration: exp, Description: toBytes32(desc)}

	rows, err := d.db.QueryContext(ctx, `SELECT account FROM role_members WHERE role_id = ? ORDER BY rowid`, roleID[:])
	if err != nil {
		return ledger.RoleDetails{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return ledger.RoleDetails{}, err
		}
		out.Members = append(out.Members, common.HexToAddress(a))
	}
	return out, rows.Err()
}

func (d *DB) GetTasksCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, err
}

func (d *DB) GetTask(ctx context.Context, index uint64) (ledger.TaskRecord, error) {
	var (
		rec       ledger.TaskRecord
		dataID    []byte
		submitter string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT idx, data_id, input_cid, result_cid, completed, submitter FROM tasks WHERE idx = ?`, index).
		Scan(&rec.Index, &dataID, &rec.InputCID, &rec.ResultCID, &rec.Completed, &submitter)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.TaskRecord{}, fmt.Errorf("%w: task %d", ledger.ErrNotFound, index)
	}
	if err != nil {
		return ledger.TaskRecord{}, err
	}
	rec.DataID = toBytes32(dataID)
	rec.Submitter = common.HexToAddress(submitter)
	return rec, nil
}

func toBytes32(b []byte) ledger.Bytes32 {
	var out ledger.Bytes32
	copy(out[:], b)
	return out
}
