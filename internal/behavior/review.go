package behavior

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Review resolves host mutations queued at a participant.
type Review struct {
	writer   *Writer
	outgoing *Outgoing
	now      func() time.Time
}

// NewReview returns a Review. Approved changes are reported through outgoing.
func NewReview(w *Writer, outgoing *Outgoing, now func() time.Time) *Review {
	if now == nil {
		now = time.Now
	}
	return &Review{writer: w, outgoing: outgoing, now: now}
}

// List returns queued actions with status; PartialDataUnknown lists all.
func (r *Review) List(ctx context.Context, db *store.DB, status model.PartialDataStatus) ([]model.PendingAction, error) {
	if db.Kind() != store.KindPartial {
		return nil, notKind(db, store.KindPartial)
	}
	return store.ListPending(ctx, db, status)
}

// ApprovePending applies the open action for a row and then reports the
// change to the host. A row that disappeared since it was queued resolves
// as Ignored.
func (r *Review) ApprovePending(ctx context.Context, db *store.DB, table string, rowID int64) (model.PartialDataResult, Report, error) {
	if db.Kind() != store.KindPartial {
		return model.PartialDataResult{}, Report{}, notKind(db, store.KindPartial)
	}

	var (
		res   model.PartialDataResult
		pa    model.PendingAction
		outID int64
	)
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		pa, err = store.GetOpenPending(ctx, tx, table, rowID)
		if err != nil {
			return err
		}
		res = model.PartialDataResult{Action: pa.Action, Status: model.PartialDataSuccessOverwriteOrLog}

		var (
			o  model.RowOutcome
			ok bool
		)
		switch pa.Action {
		case model.ActionInsert:
			o, err = r.writer.Insert(ctx, tx, pa.Table, pa.RowID, pa.Payload.Values, true)
			ok = err == nil
		case model.ActionUpdate:
			o, ok, err = r.writer.Update(ctx, tx, pa.Table, pa.RowID, pa.Payload.Values, true)
		case model.ActionDelete:
			o, ok, err = r.writer.Delete(ctx, tx, pa.Table, pa.RowID, DropMetadata, true)
		default:
			return model.NewParseError("pending action has no action", nil)
		}
		if err != nil {
			return err
		}
		if !ok {
			res.Status = model.PartialDataIgnored
			res.Message = "row no longer exists"
		} else {
			res.Rows = []model.RowOutcome{o}
			outID = o.RowID
		}
		return store.ResolvePending(ctx, tx, pa.ID, res.Status, r.now())
	})
	if err != nil {
		return model.PartialDataResult{}, Report{}, err
	}
	slog.Info("pending action approved",
		"db", db.Name(), "table", pa.Table, "row_id", pa.RowID, "action", pa.Action.String(), "status", res.Status.String())

	if !res.IsSuccessful() || r.outgoing == nil {
		return res, Report{}, nil
	}
	var rep Report
	if pa.Action == model.ActionDelete {
		rep, err = r.outgoing.AfterDelete(ctx, db, pa.Table, []int64{outID})
	} else {
		rep, err = r.outgoing.AfterWrite(ctx, db, pa.Table, res.Rows)
	}
	if err != nil {
		return res, rep, err
	}
	return res, rep, nil
}

// RejectPending closes the open action for a row without touching data.
func (r *Review) RejectPending(ctx context.Context, db *store.DB, table string, rowID int64) (model.PartialDataResult, error) {
	if db.Kind() != store.KindPartial {
		return model.PartialDataResult{}, notKind(db, store.KindPartial)
	}
	var pa model.PendingAction
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if pa, err = store.GetOpenPending(ctx, tx, table, rowID); err != nil {
			return err
		}
		return store.ResolvePending(ctx, tx, pa.ID, model.PartialDataIgnored, r.now())
	})
	if err != nil {
		return model.PartialDataResult{}, err
	}
	slog.Info("pending action rejected", "db", db.Name(), "table", pa.Table, "row_id", pa.RowID, "action", pa.Action.String())
	return model.PartialDataResult{
		Action: pa.Action,
		Status: model.PartialDataIgnored,
		Rows:   []model.RowOutcome{{RowID: pa.RowID}},
	}, nil
}
