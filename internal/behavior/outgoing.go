package behavior

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// HostTarget is where and as whom a participant reports to its host.
type HostTarget struct {
	Addresses   []string
	Credentials model.Credentials
}

// HostResolver finds the host of a partial database.
type HostResolver interface {
	ResolveHost(ctx context.Context, db *store.DB) (HostTarget, error)
}

// StoreResolver resolves hosts from the system database: addresses from the
// trusted host record, alias from the accepted contract.
type StoreResolver struct {
	System *store.DB
	Self   model.HostInfo
}

// ResolveHost implements HostResolver. An unknown host or a database without
// an accepted contract is a REMOTE_NOTIFY_FAILURE: there is nobody to tell.
func (r StoreResolver) ResolveHost(ctx context.Context, db *store.DB) (HostTarget, error) {
	info, err := store.GetDatabaseInfo(ctx, db)
	if err != nil {
		return HostTarget{}, err
	}
	h, ok, err := store.GetRemoteHost(ctx, r.System, info.HostID)
	if err != nil {
		return HostTarget{}, err
	}
	if !ok {
		return HostTarget{}, model.NewRemoteNotifyError("resolve host",
			fmt.Errorf("host %q of %s is not known", info.HostID, db.Name()))
	}
	rec, ok, err := store.ActiveContract(ctx, r.System, store.RoleReceived, db.Name(), "")
	if err != nil {
		return HostTarget{}, err
	}
	if !ok {
		return HostTarget{}, model.NewRemoteNotifyError("resolve host",
			fmt.Errorf("%s has no accepted contract", db.Name()))
	}
	return HostTarget{
		Addresses: h.Addresses,
		Credentials: model.Credentials{
			ID:    r.Self.ID,
			Name:  rec.Contract.ParticipantAlias,
			Token: r.Self.Token,
		},
	}, nil
}

// Report summarizes the host notifications sent after a local change.
// Failed notifications never undo the change.
type Report struct {
	Calls   int    `json:"calls"`
	Failed  int    `json:"failed"`
	Message string `json:"message,omitempty"`
}

// OK reports whether every notification was acknowledged.
func (r Report) OK() bool { return r.Failed == 0 }

func (r *Report) fail(err error) {
	r.Failed++
	if r.Message == "" {
		r.Message = err.Error()
	}
}

// Outgoing tells the host about changes made at a participant.
type Outgoing struct {
	policies *policy.Engine
	notifier notify.Notifier
	resolver HostResolver
}

// NewOutgoing returns an Outgoing dispatcher.
func NewOutgoing(policies *policy.Engine, n notify.Notifier, r HostResolver) *Outgoing {
	return &Outgoing{policies: policies, notifier: n, resolver: r}
}

// rules returns the table's behaviors and policy rules. ok is false when
// nothing should be reported: the database is not partial or the host is not
// told about this table.
func (o *Outgoing) rules(ctx context.Context, db *store.DB, table string) (model.BehaviorSettings, policy.Rules, bool, error) {
	if db.Kind() != store.KindPartial {
		return model.BehaviorSettings{}, policy.Rules{}, false, nil
	}
	p, err := o.policies.Get(ctx, db, table)
	if err != nil {
		return model.BehaviorSettings{}, policy.Rules{}, false, err
	}
	rules := policy.RulesFor(p)
	if !rules.NotifiesHost {
		return model.BehaviorSettings{}, rules, false, nil
	}
	schema, err := store.TableSchema(ctx, db, table)
	if err != nil {
		return model.BehaviorSettings{}, rules, false, err
	}
	bs, err := loadBehaviors(ctx, db, schema.Name)
	if err != nil {
		return model.BehaviorSettings{}, rules, false, err
	}
	return bs, rules, true, nil
}

// AfterWrite reports the new hashes of written rows per UpdatesToHost. On
// tables whose host applies participant writes the report carries the row.
func (o *Outgoing) AfterWrite(ctx context.Context, db *store.DB, table string, rows []model.RowOutcome) (Report, error) {
	var rep Report
	if len(rows) == 0 {
		return rep, nil
	}
	bs, rules, ok, err := o.rules(ctx, db, table)
	if err != nil || !ok {
		return rep, err
	}
	switch bs.UpdatesToHost {
	case model.UpdatesToHostDoNothing:
		return rep, nil
	case model.UpdatesToHostSendDataHashChange:
	default:
		return rep, behaviorNotSet(db, table, "UpdatesToHost")
	}

	target, err := o.resolver.ResolveHost(ctx, db)
	if err != nil {
		return o.unresolved(db, table, len(rows), err)
	}
	for _, row := range rows {
		if row.Deleted {
			continue
		}
		req := notify.HashChange{
			Credentials:  target.Credentials,
			DatabaseName: db.Name(),
			TableName:    bs.Table,
			RowID:        row.RowID,
			Hash:         row.Hash,
		}
		if rules.HostAppliesParticipantWrites {
			current, held, err := store.ReadRow(ctx, db, bs.Table, row.RowID)
			if err != nil {
				return rep, err
			}
			if !held {
				continue
			}
			req.Values = current.ColumnValues()
		}
		rep.Calls++
		err := notify.TryEach(target.Addresses, func(addr string) error {
			return o.notifier.NotifyHostOfUpdatedHash(ctx, addr, req)
		})
		if err != nil {
			slog.Warn("host not told of updated hash", "db", db.Name(), "table", bs.Table, "row_id", row.RowID, "error", err)
			rep.fail(err)
		}
	}
	return rep, nil
}

// AfterDelete reports removed rows per DeletesToHost.
func (o *Outgoing) AfterDelete(ctx context.Context, db *store.DB, table string, rowIDs []int64) (Report, error) {
	var rep Report
	if len(rowIDs) == 0 {
		return rep, nil
	}
	bs, _, ok, err := o.rules(ctx, db, table)
	if err != nil || !ok {
		return rep, err
	}
	switch bs.DeletesToHost {
	case model.DeletesToHostDoNothing:
		return rep, nil
	case model.DeletesToHostSendNotification:
	default:
		return rep, behaviorNotSet(db, table, "DeletesToHost")
	}

	target, err := o.resolver.ResolveHost(ctx, db)
	if err != nil {
		return o.unresolved(db, table, len(rowIDs), err)
	}
	for _, id := range rowIDs {
		req := notify.RowRemoval{
			Credentials:  target.Credentials,
			DatabaseName: db.Name(),
			TableName:    bs.Table,
			RowID:        id,
		}
		rep.Calls++
		err := notify.TryEach(target.Addresses, func(addr string) error {
			return o.notifier.NotifyHostOfRemovedRow(ctx, addr, req)
		})
		if err != nil {
			slog.Warn("host not told of removed row", "db", db.Name(), "table", bs.Table, "row_id", id, "error", err)
			rep.fail(err)
		}
	}
	return rep, nil
}

func (o *Outgoing) unresolved(db *store.DB, table string, n int, err error) (Report, error) {
	if !notify.IsSoftFailure(err) {
		return Report{}, err
	}
	slog.Warn("host unresolved", "db", db.Name(), "table", table, "error", err)
	rep := Report{Calls: n}
	for i := 0; i < n; i++ {
		rep.fail(err)
	}
	return rep, nil
}
