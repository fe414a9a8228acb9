// Package views holds read-only projections over ledger state. Nothing here
// caches: every call rescans the ledger.
package views

import (
	"context"
	"fmt"
	"log/slog"

	"xdao.co/taskledger/ledger"
	"xdao.co/taskledger/model"
	"xdao.co/taskledger/storage/gateway"
)

// ParamSource looks up off-ledger task parameters by dataId.
type ParamSource interface {
	Parameters(ctx context.Context, dataID string) (string, bool, error)
}

// Tasks projects the ledger's task list.
type Tasks struct {
	Ledger ledger.Reader
	// Params is optional.
	Params ParamSource
	// Gateway, when set, yields a retrieval URL for every completed task.
	Gateway string
	Logger  *slog.Logger
}

// TaskList is one scan. Failures holds a PartialRead error per task that
// could not be read.
type TaskList struct {
	Rows     []model.TaskRow
	Failures []error
}

// List reads every task in index order.
func (v Tasks) List(ctx context.Context) (TaskList, error) {
	log := v.Logger
	if log == nil {
		log = slog.Default()
	}
	n, err := v.Ledger.GetTasksCount(ctx)
	if err != nil {
		return TaskList{}, fmt.Errorf("views: count tasks: %w", err)
	}
	var out TaskList
	for i := uint64(0); i < n; i++ {
		rec, err := v.Ledger.GetTask(ctx, i)
		if err != nil {
			log.Warn("task unavailable", "index", i, "err", err)
			out.Failures = append(out.Failures,
				model.Wrap(model.KindPartialRead, model.StageReading, "getTask", fmt.Sprintf("task %d", i), err))
			continue
		}
		out.Rows = append(out.Rows, v.row(ctx, rec, log))
	}
	return out, nil
}

func (v Tasks) row(ctx context.Context, rec ledger.TaskRecord, log *slog.Logger) model.TaskRow {
	row := model.TaskRow{
		Index:     rec.Index,
		DataID:    rec.DataID.String(),
		InputCID:  rec.InputCID,
		ResultCID: rec.ResultCID,
		Completed: rec.Completed,
	}
	if v.Params != nil {
		p, ok, err := v.Params.Parameters(ctx, row.DataID)
		if err != nil {
			log.Debug("parameters lookup failed", "data_id", row.DataID, "err", err)
		} else if ok {
			row.Parameters = p
		}
	}
	if rec.Completed && rec.ResultCID != "" && v.Gateway != "" {
		row.ResultURL = gateway.URL(v.Gateway, rec.ResultCID)
	}
	return row
}

// Summary counts tasks by status.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Open      int `json:"open"`
}

func Summarize(rows []model.TaskRow) Summary {
	s := Summary{Total: len(rows)}
	for _, r := range rows {
		if r.Completed {
			s.Completed++
		} else {
			s.Open++
		}
	}
	return s
}
