package behavior

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Incoming applies host-pushed mutations to a partial database.
type Incoming struct {
	policies *policy.Engine
	writer   *Writer
	now      func() time.Time
}

// NewIncoming returns an Incoming dispatcher.
func NewIncoming(policies *policy.Engine, w *Writer, now func() time.Time) *Incoming {
	if now == nil {
		now = time.Now
	}
	return &Incoming{policies: policies, writer: w, now: now}
}

// target resolves the policy and behaviors for m. It reads through db and so
// must run before a transaction is opened on it.
func (in *Incoming) target(ctx context.Context, db *store.DB, m model.Mutation, action model.Action) (policy.Rules, model.BehaviorSettings, string, error) {
	if m.Action != action {
		return policy.Rules{}, model.BehaviorSettings{}, "", model.NewParseError(
			fmt.Sprintf("expected %s mutation, got %s", action, m.Action), nil)
	}
	if db.Kind() != store.KindPartial {
		return policy.Rules{}, model.BehaviorSettings{}, "", notKind(db, store.KindPartial)
	}
	p, err := in.policies.Get(ctx, db, m.Table)
	if err != nil {
		return policy.Rules{}, model.BehaviorSettings{}, "", err
	}
	rules := policy.RulesFor(p)
	if !rules.ParticipantHoldsData {
		return rules, model.BehaviorSettings{}, "", model.NewPolicyViolationError(db.Name(), m.Table, p, action)
	}
	schema, err := store.TableSchema(ctx, db, m.Table)
	if err != nil {
		return rules, model.BehaviorSettings{}, "", err
	}
	bs, err := loadBehaviors(ctx, db, schema.Name)
	if err != nil {
		return rules, model.BehaviorSettings{}, "", err
	}
	return rules, bs, schema.Name, nil
}

// ApplyInsert adds the pushed row. Inserts are not subject to review; a row
// that already exists under the pinned id is overwritten.
func (in *Incoming) ApplyInsert(ctx context.Context, db *store.DB, m model.Mutation, hostID string) (model.PartialDataResult, error) {
	_, _, table, err := in.target(ctx, db, m, model.ActionInsert)
	if err != nil {
		return model.PartialDataResult{}, err
	}

	res := model.PartialDataResult{Action: model.ActionInsert, Status: model.PartialDataSuccessOverwriteOrLog}
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := in.writer.Insert(ctx, tx, table, m.RowID, m.Values, true)
		if err != nil {
			return err
		}
		res.Rows = []model.RowOutcome{o}
		return nil
	})
	if err != nil {
		return model.PartialDataResult{}, err
	}
	slog.Debug("host insert applied", "db", db.Name(), "table", table, "host", hostID, "row_id", res.Rows[0].RowID)
	return res, nil
}

// ApplyUpdate handles a host update according to the table's
// UpdatesFromHost behavior.
func (in *Incoming) ApplyUpdate(ctx context.Context, db *store.DB, m model.Mutation, hostID string) (model.PartialDataResult, error) {
	_, bs, table, err := in.target(ctx, db, m, model.ActionUpdate)
	if err != nil {
		return model.PartialDataResult{}, err
	}

	b := bs.UpdatesFromHost
	var (
		logFirst bool
		queue    bool
		status   model.PartialDataStatus
	)
	switch b {
	case model.UpdatesFromHostAllowOverwrite:
		status = model.PartialDataSuccessOverwriteOrLog
	case model.UpdatesFromHostOverwriteWithLog:
		status, logFirst = model.PartialDataSuccessOverwriteOrLog, true
	case model.UpdatesFromHostQueueForReview:
		status, queue = model.PartialDataPending, true
	case model.UpdatesFromHostQueueForReviewAndLog:
		status, queue, logFirst = model.PartialDataPending, true, true
	case model.UpdatesFromHostIgnore:
		status = model.PartialDataIgnored
	default:
		return model.PartialDataResult{}, behaviorNotSet(db, table, "UpdatesFromHost")
	}

	m.Table = table
	res, err := in.dispatch(ctx, db, m, hostID, status, logFirst, queue, func(tx *sql.Tx, id int64) (model.RowOutcome, bool, error) {
		return in.writer.Update(ctx, tx, table, id, m.Values, true)
	})
	if err != nil {
		return model.PartialDataResult{}, err
	}
	slog.Debug("host update handled",
		"db", db.Name(), "table", table, "host", hostID, "behavior", b.String(), "status", res.Status.String(), "rows", len(res.Rows))
	return res, nil
}

// ApplyDelete handles a host delete according to the table's DeletesFromHost
// behavior. Deletes on Mirror tables are permanent and skip the behavior.
func (in *Incoming) ApplyDelete(ctx context.Context, db *store.DB, m model.Mutation, hostID string) (model.PartialDataResult, error) {
	rules, bs, table, err := in.target(ctx, db, m, model.ActionDelete)
	if err != nil {
		return model.PartialDataResult{}, err
	}

	b := bs.DeletesFromHost
	mode := DropMetadata
	var (
		logFirst bool
		queue    bool
		status   model.PartialDataStatus
	)
	if rules.Delete == policy.DeletePermanent {
		status, mode = model.PartialDataSuccessOverwriteOrLog, PurgeMetadata
	} else {
		switch b {
		case model.DeletesFromHostAllowRemoval:
			status = model.PartialDataSuccessOverwriteOrLog
		case model.DeletesFromHostDeleteWithLog:
			status, logFirst = model.PartialDataSuccessOverwriteOrLog, true
		case model.DeletesFromHostQueueForReview:
			status, queue = model.PartialDataPending, true
		case model.DeletesFromHostQueueForReviewAndLog:
			status, queue, logFirst = model.PartialDataPending, true, true
		case model.DeletesFromHostIgnore:
			status = model.PartialDataIgnored
		default:
			return model.PartialDataResult{}, behaviorNotSet(db, table, "DeletesFromHost")
		}
	}

	m.Table = table
	res, err := in.dispatch(ctx, db, m, hostID, status, logFirst, queue, func(tx *sql.Tx, id int64) (model.RowOutcome, bool, error) {
		return in.writer.Delete(ctx, tx, table, id, mode, true)
	})
	if err != nil {
		return model.PartialDataResult{}, err
	}
	slog.Debug("host delete handled",
		"db", db.Name(), "table", table, "host", hostID, "behavior", b.String(), "status", res.Status.String(), "rows", len(res.Rows))
	return res, nil
}

// dispatch runs one behavior over every targeted row in a single transaction.
// Applied rows report their outcome; queued and ignored rows report only
// their id.
func (in *Incoming) dispatch(
	ctx context.Context,
	db *store.DB,
	m model.Mutation,
	hostID string,
	status model.PartialDataStatus,
	logFirst, queue bool,
	apply func(tx *sql.Tx, id int64) (model.RowOutcome, bool, error),
) (model.PartialDataResult, error) {
	res := model.PartialDataResult{Action: m.Action, Status: status}
	at := in.now()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		ids, err := Targets(ctx, tx, m)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if status == model.PartialDataIgnored {
				res.Rows = append(res.Rows, model.RowOutcome{RowID: id})
				continue
			}
			if logFirst {
				if _, err := store.CopyToHistory(ctx, tx, m.Table, id, m.Action, at); err != nil {
					return err
				}
			}
			if queue {
				pa := model.PendingAction{
					Table:       m.Table,
					RowID:       id,
					Action:      m.Action,
					Payload:     model.Mutation{Action: m.Action, Table: m.Table, RowID: id, Values: m.Values},
					HostID:      hostID,
					RequestedAt: at,
				}
				if _, err := store.QueuePending(ctx, tx, pa); err != nil {
					return err
				}
				res.Rows = append(res.Rows, model.RowOutcome{RowID: id})
				continue
			}
			o, ok, err := apply(tx, id)
			if err != nil {
				return err
			}
			if ok {
				res.Rows = append(res.Rows, o)
			}
		}
		return nil
	})
	if err != nil {
		return model.PartialDataResult{}, err
	}
	return res, nil
}
