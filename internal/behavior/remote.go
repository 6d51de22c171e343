package behavior

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Remote reacts at the host to changes participants report.
type Remote struct {
	policies *policy.Engine
	writer   *Writer
}

// NewRemote returns a Remote.
func NewRemote(policies *policy.Engine, w *Writer) *Remote {
	return &Remote{policies: policies, writer: w}
}

// reported checks that the host is told about table and returns its rules
// and canonical name.
func (r *Remote) reported(ctx context.Context, db *store.DB, table string, action model.Action) (policy.Rules, string, error) {
	if db.Kind() != store.KindHost {
		return policy.Rules{}, "", notKind(db, store.KindHost)
	}
	p, err := r.policies.Get(ctx, db, table)
	if err != nil {
		return policy.Rules{}, "", err
	}
	rules := policy.RulesFor(p)
	if !rules.NotifiesHost {
		return rules, "", model.NewPolicyViolationError(db.Name(), table, p, action)
	}
	schema, err := store.TableSchema(ctx, db, table)
	if err != nil {
		return rules, "", err
	}
	return rules, schema.Name, nil
}

// RecordHash stores a participant's reported hash as its reference for the
// row. Where the host holds data the host row must exist, unless the table's
// host applies participant writes: then the reported values are written to
// the host row first, inserting it when absent. The returned action is what
// was applied to the host copy, ActionUnknown when nothing was.
func (r *Remote) RecordHash(ctx context.Context, db *store.DB, p model.Participant, req notify.HashChange) (model.Action, error) {
	rules, table, err := r.reported(ctx, db, req.TableName, model.ActionUpdate)
	if err != nil {
		return model.ActionUnknown, err
	}
	applied := model.ActionUnknown
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		if rules.HostHoldsData {
			_, held, err := store.ReadRow(ctx, tx, table, req.RowID)
			if err != nil {
				return err
			}
			switch {
			case rules.HostAppliesParticipantWrites && len(req.Values) > 0:
				if _, err := r.writer.Insert(ctx, tx, table, req.RowID, req.Values, rules.TracksHashes); err != nil {
					return err
				}
				applied = model.ActionUpdate
				if !held {
					applied = model.ActionInsert
				}
			case !held:
				return &model.Error{
					Code:     model.ErrCodePolicyViolation,
					Message:  fmt.Sprintf("row %d is not held by the host", req.RowID),
					Database: db.Name(),
					Table:    table,
				}
			}
		}
		return r.writer.Hashes().RecordUpdate(ctx, tx, table, req.RowID, req.Hash, p.ID)
	})
	if err != nil {
		return model.ActionUnknown, err
	}
	slog.Debug("participant hash recorded",
		"db", db.Name(), "table", table, "row_id", req.RowID, "participant", p.Alias, "applied", applied.String())
	return applied, nil
}

// HandleRemovedRow applies the participant's RemoteDeleteBehavior to a row it
// deleted. A Mirror table deletes the host row permanently regardless of the
// behavior. The bool reports whether the host row was removed.
func (r *Remote) HandleRemovedRow(ctx context.Context, db *store.DB, p model.Participant, req notify.RowRemoval) (bool, error) {
	rules, table, err := r.reported(ctx, db, req.TableName, model.ActionDelete)
	if err != nil {
		return false, err
	}

	b := p.RemoteDeleteBehavior
	if rules.Delete != policy.DeletePermanent {
		switch b {
		case model.RemoteDeleteIgnore, model.RemoteDeleteAutoDelete, model.RemoteDeleteUpdateStatusOnly:
		default:
			return false, &model.Error{
				Code:     model.ErrCodeBehaviorNotSet,
				Message:  "remote delete behavior is Unknown for " + p.Alias,
				Database: db.Name(),
				Table:    table,
			}
		}
	}

	var removed bool
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		hashes := r.writer.Hashes()
		switch {
		case rules.Delete == policy.DeletePermanent:
			_, ok, err := r.writer.Delete(ctx, tx, table, req.RowID, PurgeMetadata, true)
			removed = ok
			return err
		case b == model.RemoteDeleteIgnore:
			return nil
		case b == model.RemoteDeleteUpdateStatusOnly:
			return hashes.MarkDeleted(ctx, tx, table, req.RowID, p.ID)
		default:
			if err := hashes.MarkDeleted(ctx, tx, table, req.RowID, p.ID); err != nil {
				return err
			}
			if !rules.HostHoldsData {
				return nil
			}
			_, ok, err := r.writer.Delete(ctx, tx, table, req.RowID, TombstoneMetadata, true)
			removed = ok
			return err
		}
	})
	if err != nil {
		return false, err
	}
	slog.Info("participant row removal handled",
		"db", db.Name(), "table", table, "row_id", req.RowID, "participant", p.Alias,
		"behavior", b.String(), "removed", removed)
	return removed, nil
}
