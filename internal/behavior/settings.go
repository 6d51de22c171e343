package behavior

import (
	"context"
	"log/slog"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Settings changes behavior configuration. Table behaviors live in partial
// databases; remote delete behaviors live with the host's participant records.
type Settings struct {
	policies *policy.Engine
}

// NewSettings returns Settings validating tables against policies.
func NewSettings(policies *policy.Engine) *Settings {
	return &Settings{policies: policies}
}

// Get returns the behaviors of a held table, defaults when none were stored.
func (s *Settings) Get(ctx context.Context, db *store.DB, table string) (model.BehaviorSettings, error) {
	name, err := s.heldTable(ctx, db, table)
	if err != nil {
		return model.BehaviorSettings{}, err
	}
	return loadBehaviors(ctx, db, name)
}

// ChangeUpdatesFromHost sets how host updates to table are handled.
func (s *Settings) ChangeUpdatesFromHost(ctx context.Context, db *store.DB, table string, b model.UpdatesFromHostBehavior) error {
	if _, err := model.DecodeUpdatesFromHostBehavior(uint8(b)); err != nil {
		return err
	}
	if b == model.UpdatesFromHostUnknown {
		return behaviorNotSet(db, table, "UpdatesFromHost")
	}
	return s.change(ctx, db, table, func(bs *model.BehaviorSettings) { bs.UpdatesFromHost = b })
}

// ChangeDeletesFromHost sets how host deletes from table are handled.
func (s *Settings) ChangeDeletesFromHost(ctx context.Context, db *store.DB, table string, b model.DeletesFromHostBehavior) error {
	if _, err := model.DecodeDeletesFromHostBehavior(uint8(b)); err != nil {
		return err
	}
	if b == model.DeletesFromHostUnknown {
		return behaviorNotSet(db, table, "DeletesFromHost")
	}
	return s.change(ctx, db, table, func(bs *model.BehaviorSettings) { bs.DeletesFromHost = b })
}

// ChangeUpdatesToHost sets whether local updates to table are reported.
func (s *Settings) ChangeUpdatesToHost(ctx context.Context, db *store.DB, table string, b model.UpdatesToHostBehavior) error {
	if _, err := model.DecodeUpdatesToHostBehavior(uint8(b)); err != nil {
		return err
	}
	if b == model.UpdatesToHostUnknown {
		return behaviorNotSet(db, table, "UpdatesToHost")
	}
	return s.change(ctx, db, table, func(bs *model.BehaviorSettings) { bs.UpdatesToHost = b })
}

// ChangeDeletesToHost sets whether local deletes from table are reported.
func (s *Settings) ChangeDeletesToHost(ctx context.Context, db *store.DB, table string, b model.DeletesToHostBehavior) error {
	if _, err := model.DecodeDeletesToHostBehavior(uint8(b)); err != nil {
		return err
	}
	if b == model.DeletesToHostUnknown {
		return behaviorNotSet(db, table, "DeletesToHost")
	}
	return s.change(ctx, db, table, func(bs *model.BehaviorSettings) { bs.DeletesToHost = b })
}

// ChangeRemoteDeleteBehavior sets how the host reacts when participant alias
// deletes a row it holds.
func (s *Settings) ChangeRemoteDeleteBehavior(ctx context.Context, db *store.DB, alias string, b model.RemoteDeleteBehavior) error {
	if _, err := model.DecodeRemoteDeleteBehavior(uint8(b)); err != nil {
		return err
	}
	if b == model.RemoteDeleteUnknown {
		return &model.Error{
			Code:     model.ErrCodeBehaviorNotSet,
			Message:  "RemoteDeleteBehavior cannot be set to Unknown",
			Database: db.Name(),
		}
	}
	if db.Kind() != store.KindHost {
		return notKind(db, store.KindHost)
	}
	if err := store.SetRemoteDeleteBehavior(ctx, db, alias, b); err != nil {
		if model.IsCode(err, model.ErrCodeParticipantNotFound) {
			return model.NewParticipantNotFoundError(db.Name(), alias)
		}
		return err
	}
	slog.Info("remote delete behavior changed", "db", db.Name(), "participant", alias, "behavior", b.String())
	return nil
}

func (s *Settings) change(ctx context.Context, db *store.DB, table string, fn func(*model.BehaviorSettings)) error {
	name, err := s.heldTable(ctx, db, table)
	if err != nil {
		return err
	}
	bs, err := loadBehaviors(ctx, db, name)
	if err != nil {
		return err
	}
	fn(&bs)
	if err := store.PutBehaviors(ctx, db, bs); err != nil {
		return err
	}
	slog.Info("behaviors changed",
		"db", db.Name(),
		"table", name,
		"updates_from_host", bs.UpdatesFromHost.String(),
		"deletes_from_host", bs.DeletesFromHost.String(),
		"updates_to_host", bs.UpdatesToHost.String(),
		"deletes_to_host", bs.DeletesToHost.String(),
	)
	return nil
}

// heldTable returns the canonical name of a table the partial database holds.
func (s *Settings) heldTable(ctx context.Context, db *store.DB, table string) (string, error) {
	if db.Kind() != store.KindPartial {
		return "", notKind(db, store.KindPartial)
	}
	p, err := s.policies.Get(ctx, db, table)
	if err != nil {
		return "", err
	}
	schema, err := store.TableSchema(ctx, db, table)
	if err != nil || !policy.RulesFor(p).ParticipantHoldsData {
		return "", model.NewTableNotFoundError(db.Name(), table)
	}
	return schema.Name, nil
}

func loadBehaviors(ctx context.Context, q store.Querier, table string) (model.BehaviorSettings, error) {
	bs, found, err := store.GetBehaviors(ctx, q, table)
	if err != nil {
		return model.BehaviorSettings{}, err
	}
	if !found {
		return model.DefaultBehaviorSettings(table), nil
	}
	return bs, nil
}

func behaviorNotSet(db *store.DB, table, which string) *model.Error {
	return &model.Error{
		Code:     model.ErrCodeBehaviorNotSet,
		Message:  which + " behavior is Unknown",
		Database: db.Name(),
		Table:    table,
	}
}

func notKind(db *store.DB, want store.Kind) *model.Error {
	return &model.Error{
		Code:     model.ErrCodeDbNotFound,
		Message:  "not a " + want.String() + " database",
		Database: db.Name(),
	}
}
