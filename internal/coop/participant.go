package coop

import (
	"context"
	"log/slog"

	"github.com/dynamoRando/rcd-sub004/internal/behavior"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/stmt"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Participant runs the partial databases this node holds.
type Participant struct {
	n *Node
}

var _ notify.ParticipantHandler = (*Participant)(nil)

// LocalResult reports a participant write and the host notifications it caused.
type LocalResult struct {
	Rows   []model.RowOutcome `json:"rows,omitempty"`
	Report behavior.Report    `json:"report"`
}

func (p *Participant) db(name string) (*store.DB, error) {
	return p.n.database(name, store.KindPartial)
}

// PendingContracts lists received contracts awaiting a decision.
func (p *Participant) PendingContracts(ctx context.Context) ([]model.Contract, error) {
	return p.n.contracts.ReviewPending(ctx)
}

// Contracts lists received contracts matching f.
func (p *Participant) Contracts(ctx context.Context, f store.ContractFilter) ([]model.Contract, error) {
	return p.n.contracts.ListReceived(ctx, f)
}

// AcceptContract accepts a received contract. Call again to resume after a
// partial failure.
func (p *Participant) AcceptContract(ctx context.Context, contractID string) (model.AcceptResult, error) {
	return p.n.contracts.Accept(ctx, contractID)
}

// RejectContract rejects a received contract.
func (p *Participant) RejectContract(ctx context.Context, contractID string) error {
	return p.n.contracts.Reject(ctx, contractID)
}

// Behaviors returns the behavior settings of a held table.
func (p *Participant) Behaviors(ctx context.Context, database, table string) (model.BehaviorSettings, error) {
	db, err := p.db(database)
	if err != nil {
		return model.BehaviorSettings{}, err
	}
	return p.n.settings.Get(ctx, db, table)
}

// ChangeUpdatesFromHost sets how host updates to table are handled.
func (p *Participant) ChangeUpdatesFromHost(ctx context.Context, database, table string, b model.UpdatesFromHostBehavior) error {
	db, err := p.db(database)
	if err != nil {
		return err
	}
	return p.n.settings.ChangeUpdatesFromHost(ctx, db, table, b)
}

// ChangeDeletesFromHost sets how host deletes from table are handled.
func (p *Participant) ChangeDeletesFromHost(ctx context.Context, database, table string, b model.DeletesFromHostBehavior) error {
	db, err := p.db(database)
	if err != nil {
		return err
	}
	return p.n.settings.ChangeDeletesFromHost(ctx, db, table, b)
}

// ChangeUpdatesToHost sets whether local updates to table are reported.
func (p *Participant) ChangeUpdatesToHost(ctx context.Context, database, table string, b model.UpdatesToHostBehavior) error {
	db, err := p.db(database)
	if err != nil {
		return err
	}
	return p.n.settings.ChangeUpdatesToHost(ctx, db, table, b)
}

// ChangeDeletesToHost sets whether local deletes from table are reported.
func (p *Participant) ChangeDeletesToHost(ctx context.Context, database, table string, b model.DeletesToHostBehavior) error {
	db, err := p.db(database)
	if err != nil {
		return err
	}
	return p.n.settings.ChangeDeletesToHost(ctx, db, table, b)
}

// ExecuteStatement parses an UPDATE or DELETE and runs it with ExecuteMutation.
func (p *Participant) ExecuteStatement(ctx context.Context, database, query string) (LocalResult, error) {
	m, err := stmt.Parse(query)
	if err != nil {
		return LocalResult{}, err
	}
	return p.ExecuteMutation(ctx, database, m)
}

// ExecuteMutation writes to a held table and then tells the host per the
// table's UpdatesToHost and DeletesToHost behaviors. A host that cannot be
// told is reported in the result; the write stands.
func (p *Participant) ExecuteMutation(ctx context.Context, database string, m model.Mutation) (LocalResult, error) {
	db, err := p.db(database)
	if err != nil {
		return LocalResult{}, err
	}
	pol, err := p.n.policies.Get(ctx, db, m.Table)
	if err != nil {
		return LocalResult{}, err
	}
	rules := policy.RulesFor(pol)
	if !rules.ParticipantMayWrite {
		return LocalResult{}, model.NewPolicyViolationError(database, m.Table, pol, m.Action)
	}
	schema, err := store.TableSchema(ctx, db, m.Table)
	if err != nil {
		return LocalResult{}, err
	}
	m.Table = schema.Name

	mode := behavior.DropMetadata
	if rules.Delete == policy.DeletePermanent {
		mode = behavior.PurgeMetadata
	}
	var res LocalResult
	res.Rows, err = p.n.writer.Apply(ctx, db, m, behavior.LocalOptions{Track: rules.TracksHashes, Delete: mode})
	if err != nil {
		return LocalResult{}, err
	}
	slog.Debug("participant write applied", "db", database, "table", m.Table, "action", m.Action.String(), "rows", len(res.Rows))

	if m.Action == model.ActionDelete {
		ids := make([]int64, len(res.Rows))
		for i, o := range res.Rows {
			ids[i] = o.RowID
		}
		res.Report, err = p.n.outgoing.AfterDelete(ctx, db, m.Table, ids)
	} else {
		res.Report, err = p.n.outgoing.AfterWrite(ctx, db, m.Table, res.Rows)
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// PendingActions lists queued host mutations with status; PartialDataUnknown
// lists all.
func (p *Participant) PendingActions(ctx context.Context, database string, status model.PartialDataStatus) ([]model.PendingAction, error) {
	db, err := p.db(database)
	if err != nil {
		return nil, err
	}
	return p.n.review.List(ctx, db, status)
}

// ApprovePending applies the queued host mutation for a row.
func (p *Participant) ApprovePending(ctx context.Context, database, table string, rowID int64) (model.PartialDataResult, behavior.Report, error) {
	db, err := p.db(database)
	if err != nil {
		return model.PartialDataResult{}, behavior.Report{}, err
	}
	return p.n.review.ApprovePending(ctx, db, table, rowID)
}

// RejectPending discards the queued host mutation for a row.
func (p *Participant) RejectPending(ctx context.Context, database, table string, rowID int64) (model.PartialDataResult, error) {
	db, err := p.db(database)
	if err != nil {
		return model.PartialDataResult{}, err
	}
	return p.n.review.RejectPending(ctx, db, table, rowID)
}

// HandleContractOffer implements notify.ParticipantHandler.
func (p *Participant) HandleContractOffer(ctx context.Context, req notify.ContractOffer) error {
	return p.n.contracts.Receive(ctx, req)
}

// HandleAuth implements notify.ParticipantHandler.
func (p *Participant) HandleAuth(ctx context.Context, req notify.AuthRequest) error {
	_, err := p.n.verifier.Host(ctx, p.n.catalog.System(), req.Credentials)
	return err
}

// HandleInsert implements notify.ParticipantHandler.
func (p *Participant) HandleInsert(ctx context.Context, req notify.DataPush) (model.PartialDataResult, error) {
	db, err := p.inbound(ctx, req)
	if err != nil {
		return model.PartialDataResult{}, err
	}
	return p.n.incoming.ApplyInsert(ctx, db, req.Mutation, req.Credentials.ID)
}

// HandleUpdate implements notify.ParticipantHandler.
func (p *Participant) HandleUpdate(ctx context.Context, req notify.DataPush) (model.PartialDataResult, error) {
	db, err := p.inbound(ctx, req)
	if err != nil {
		return model.PartialDataResult{}, err
	}
	return p.n.incoming.ApplyUpdate(ctx, db, req.Mutation, req.Credentials.ID)
}

// HandleDelete implements notify.ParticipantHandler.
func (p *Participant) HandleDelete(ctx context.Context, req notify.DataPush) (model.PartialDataResult, error) {
	db, err := p.inbound(ctx, req)
	if err != nil {
		return model.PartialDataResult{}, err
	}
	return p.n.incoming.ApplyDelete(ctx, db, req.Mutation, req.Credentials.ID)
}

// inbound authenticates the pushing host and checks it hosts the database.
func (p *Participant) inbound(ctx context.Context, req notify.DataPush) (*store.DB, error) {
	if _, err := p.n.verifier.Host(ctx, p.n.catalog.System(), req.Credentials); err != nil {
		return nil, err
	}
	db, err := p.db(req.DatabaseName)
	if err != nil {
		return nil, err
	}
	info, err := store.GetDatabaseInfo(ctx, db)
	if err != nil {
		return nil, err
	}
	if info.HostID != req.Credentials.ID {
		slog.Warn("push from a host that does not own the database", "db", db.Name(), "host", req.Credentials.ID)
		return nil, model.NewAuthError("host " + req.Credentials.ID)
	}
	return db, nil
}
