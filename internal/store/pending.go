package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

const pendingColumns = `ID, TABLE_NAME, ROW_ID, ACTION, PAYLOAD, STATUS, HOST_ID, REQUESTED_AT, RESOLVED_AT`

func scanPending(sc interface{ Scan(...any) error }) (model.PendingAction, error) {
	var (
		pa             model.PendingAction
		action, status uint8
		payload, at    string
		resolved       sql.NullString
		err            error
	)
	if err = sc.Scan(&pa.ID, &pa.Table, &pa.RowID, &action, &payload, &status, &pa.HostID, &at, &resolved); err != nil {
		return model.PendingAction{}, err
	}
	if pa.Action, err = model.DecodeAction(action); err != nil {
		return model.PendingAction{}, err
	}
	if pa.Status, err = model.DecodePartialDataStatus(status); err != nil {
		return model.PendingAction{}, err
	}
	if err = json.Unmarshal([]byte(payload), &pa.Payload); err != nil {
		return model.PendingAction{}, fmt.Errorf("decode pending payload: %w", err)
	}
	if pa.RequestedAt, err = parseTime(at); err != nil {
		return model.PendingAction{}, err
	}
	if pa.ResolvedAt, err = parseNullTime(resolved); err != nil {
		return model.PendingAction{}, err
	}
	return pa, nil
}

// QueuePending records a host mutation awaiting review. A row has at most
// one open action: queuing again replaces the open action's payload, so the
// latest host intent is the one reviewed.
func QueuePending(ctx context.Context, q Querier, pa model.PendingAction) (int64, error) {
	payload, err := json.Marshal(pa.Payload)
	if err != nil {
		return 0, fmt.Errorf("queue pending: marshal: %w", err)
	}
	at := formatTime(pa.RequestedAt)

	res, err := q.ExecContext(ctx, `
		UPDATE COOP_PENDING_ACTIONS SET ACTION = ?, PAYLOAD = ?, HOST_ID = ?, REQUESTED_AT = ?
		WHERE TABLE_NAME = ? AND ROW_ID = ? AND STATUS = ?
	`, int(pa.Action), string(payload), pa.HostID, at, pa.Table, pa.RowID, int(model.PartialDataPending))
	if err != nil {
		return 0, fmt.Errorf("queue pending %s/%d: %w", pa.Table, pa.RowID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("queue pending %s/%d: rows affected: %w", pa.Table, pa.RowID, err)
	} else if n > 0 {
		open, err := GetOpenPending(ctx, q, pa.Table, pa.RowID)
		if err != nil {
			return 0, err
		}
		return open.ID, nil
	}

	res, err = q.ExecContext(ctx, `
		INSERT INTO COOP_PENDING_ACTIONS (TABLE_NAME, ROW_ID, ACTION, PAYLOAD, STATUS, HOST_ID, REQUESTED_AT)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pa.Table, pa.RowID, int(pa.Action), string(payload), int(model.PartialDataPending), pa.HostID, at)
	if err != nil {
		return 0, fmt.Errorf("queue pending %s/%d: %w", pa.Table, pa.RowID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("queue pending %s/%d: last insert id: %w", pa.Table, pa.RowID, err)
	}
	return id, nil
}

// GetOpenPending returns the open action for a row, or PENDING_NOT_FOUND.
func GetOpenPending(ctx context.Context, q Querier, table string, rowID int64) (model.PendingAction, error) {
	pa, err := scanPending(q.QueryRowContext(ctx, `
		SELECT `+pendingColumns+` FROM COOP_PENDING_ACTIONS
		WHERE TABLE_NAME = ? AND ROW_ID = ? AND STATUS = ?
	`, table, rowID, int(model.PartialDataPending)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.PendingAction{}, &model.Error{
			Code:    model.ErrCodePendingNotFound,
			Message: fmt.Sprintf("no pending action for row %d", rowID),
			Table:   table,
		}
	}
	if err != nil {
		return model.PendingAction{}, fmt.Errorf("get pending %s/%d: %w", table, rowID, err)
	}
	return pa, nil
}

// ResolvePending closes an open action with status.
func ResolvePending(ctx context.Context, q Querier, id int64, status model.PartialDataStatus, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE COOP_PENDING_ACTIONS SET STATUS = ?, RESOLVED_AT = ?
		WHERE ID = ? AND STATUS = ?
	`, int(status), formatTime(at), id, int(model.PartialDataPending))
	if err != nil {
		return fmt.Errorf("resolve pending %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve pending %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return &model.Error{
			Code:    model.ErrCodePendingNotFound,
			Message: fmt.Sprintf("pending action %d is not open", id),
		}
	}
	return nil
}

// ListPending returns actions with status, oldest first. PartialDataUnknown
// lists every action.
func ListPending(ctx context.Context, q Querier, status model.PartialDataStatus) ([]model.PendingAction, error) {
	query := `SELECT ` + pendingColumns + ` FROM COOP_PENDING_ACTIONS`
	var args []any
	if status != model.PartialDataUnknown {
		query += ` WHERE STATUS = ?`
		args = append(args, int(status))
	}
	query += ` ORDER BY ID ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []model.PendingAction
	for rows.Next() {
		pa, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending: %w", err)
		}
		out = append(out, pa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return out, nil
}
