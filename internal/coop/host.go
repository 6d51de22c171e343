package coop

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dynamoRando/rcd-sub004/internal/behavior"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/stmt"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Host runs the databases this node hosts.
type Host struct {
	n *Node
}

var _ notify.HostHandler = (*Host)(nil)

// PushResult is the outcome of pushing one mutation to one participant.
// Error is set when the participant could not be reached or refused.
type PushResult struct {
	Participant string                  `json:"participant"`
	Result      model.PartialDataResult `json:"result"`
	Error       string                  `json:"error,omitempty"`
}

// ExecResult reports a host write: the rows changed locally and what each
// participant made of the push.
type ExecResult struct {
	Rows   []model.RowOutcome `json:"rows,omitempty"`
	Pushes []PushResult       `json:"pushes,omitempty"`
}

func (h *Host) db(name string) (*store.DB, error) {
	return h.n.database(name, store.KindHost)
}

// CreateDatabase creates a host database. Creating an existing one is a no-op.
func (h *Host) CreateDatabase(ctx context.Context, name string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	if _, err := h.n.catalog.Create(ctx, store.DatabaseInfo{ID: id.String(), Name: name, Kind: store.KindHost}); err != nil {
		return err
	}
	slog.Info("database created", "db", name)
	return nil
}

// CreateTable creates a user table in a host database.
func (h *Host) CreateTable(ctx context.Context, database string, schema model.TableSchema) error {
	db, err := h.db(database)
	if err != nil {
		return err
	}
	if err := store.CreateTable(ctx, db, schema); err != nil {
		return err
	}
	h.n.policies.Invalidate(db)
	slog.Info("table created", "db", database, "table", schema.Name)
	return nil
}

// AddParticipant registers a participant alias, or refreshes its addresses.
func (h *Host) AddParticipant(ctx context.Context, database, alias string, addresses []string) error {
	db, err := h.db(database)
	if err != nil {
		return err
	}
	if strings.TrimSpace(alias) == "" {
		return model.NewParseError("participant alias is empty", nil)
	}
	return store.AddParticipant(ctx, db, model.Participant{
		Alias:                alias,
		Addresses:            addresses,
		RemoteDeleteBehavior: model.RemoteDeleteIgnore,
	})
}

// Participants lists the participants of a host database.
func (h *Host) Participants(ctx context.Context, database string) ([]model.Participant, error) {
	db, err := h.db(database)
	if err != nil {
		return nil, err
	}
	return store.ListParticipants(ctx, db)
}

// GetPolicy returns the logical storage policy of a table.
func (h *Host) GetPolicy(ctx context.Context, database, table string) (model.LogicalStoragePolicy, error) {
	db, err := h.db(database)
	if err != nil {
		return model.PolicyNone, err
	}
	return h.n.policies.Get(ctx, db, table)
}

// SetPolicy sets the logical storage policy of a table.
func (h *Host) SetPolicy(ctx context.Context, database, table string, p model.LogicalStoragePolicy) error {
	db, err := h.db(database)
	if err != nil {
		return err
	}
	return h.n.policies.Set(ctx, db, table, p)
}

// GenerateContract creates a NotSent contract offering database to alias.
func (h *Host) GenerateContract(ctx context.Context, database, alias, description string, rdb model.RemoteDeleteBehavior) (model.Contract, error) {
	return h.n.contracts.Generate(ctx, database, alias, description, rdb)
}

// SendContract offers a generated contract to its participant.
func (h *Host) SendContract(ctx context.Context, contractID string) (bool, error) {
	return h.n.contracts.Send(ctx, contractID)
}

// Contracts lists issued contracts matching f.
func (h *Host) Contracts(ctx context.Context, f store.ContractFilter) ([]model.Contract, error) {
	return h.n.contracts.ListIssued(ctx, f)
}

// ChangeRemoteDeleteBehavior sets how this host reacts when alias deletes a row.
func (h *Host) ChangeRemoteDeleteBehavior(ctx context.Context, database, alias string, b model.RemoteDeleteBehavior) error {
	db, err := h.db(database)
	if err != nil {
		return err
	}
	return h.n.settings.ChangeRemoteDeleteBehavior(ctx, db, alias, b)
}

// TryAuthAtParticipant checks that alias accepts this host's credentials.
// The bool is false when the participant could not be reached.
func (h *Host) TryAuthAtParticipant(ctx context.Context, database, alias string) (bool, error) {
	db, err := h.db(database)
	if err != nil {
		return false, err
	}
	p, err := store.GetParticipant(ctx, db, alias)
	if err != nil {
		return false, err
	}
	err = notify.TryEach(p.Addresses, func(addr string) error {
		return h.n.notifier.TryAuthAtParticipant(ctx, addr, notify.AuthRequest{Credentials: h.n.self.Credentials()})
	})
	if notify.IsSoftFailure(err) {
		return false, nil
	}
	return err == nil, err
}

// ExecuteStatement parses an UPDATE or DELETE and runs it with ExecuteMutation.
func (h *Host) ExecuteStatement(ctx context.Context, database, query string) (ExecResult, error) {
	m, err := stmt.Parse(query)
	if err != nil {
		return ExecResult{}, err
	}
	return h.ExecuteMutation(ctx, database, m)
}

// ExecuteMutation writes to a host table and propagates per its policy.
// HostOnly and None tables change locally. Shared and Mirror tables change
// locally and each changed row is pushed to every participant holding an
// accepted contract. ParticipantOwned tables hold no data here: updates and
// deletes go to the participants known to hold the row, or to every accepted
// participant when none is known; inserts need ExecuteMutationAt.
func (h *Host) ExecuteMutation(ctx context.Context, database string, m model.Mutation) (ExecResult, error) {
	return h.execute(ctx, database, "", m)
}

// ExecuteMutationAt is ExecuteMutation with the push limited to alias.
func (h *Host) ExecuteMutationAt(ctx context.Context, database, alias string, m model.Mutation) (ExecResult, error) {
	return h.execute(ctx, database, alias, m)
}

func (h *Host) execute(ctx context.Context, database, alias string, m model.Mutation) (ExecResult, error) {
	db, err := h.db(database)
	if err != nil {
		return ExecResult{}, err
	}
	p, err := h.n.policies.Get(ctx, db, m.Table)
	if err != nil {
		return ExecResult{}, err
	}
	rules := policy.RulesFor(p)
	schema, err := store.TableSchema(ctx, db, m.Table)
	if err != nil {
		return ExecResult{}, err
	}
	m.Table = schema.Name

	targets, err := h.targets(ctx, db, alias)
	if err != nil {
		return ExecResult{}, err
	}

	if !rules.HostHoldsData {
		return h.forward(ctx, db, m, targets)
	}

	var res ExecResult
	res.Rows, err = h.n.writer.Apply(ctx, db, m, behavior.LocalOptions{
		Track:  rules.TracksHashes,
		Delete: deleteMode(rules),
	})
	if err != nil {
		return ExecResult{}, err
	}
	slog.Debug("host write applied", "db", database, "table", m.Table, "action", m.Action.String(), "rows", len(res.Rows))

	if !rules.PushesToParticipants {
		return res, nil
	}
	for _, o := range res.Rows {
		push, err := h.rowPush(ctx, db, m, o)
		if err != nil {
			return res, err
		}
		res.Pushes = append(res.Pushes, h.push(ctx, db, rules, push, targets)...)
	}
	return res, nil
}

func deleteMode(r policy.Rules) behavior.DeleteMode {
	switch r.Delete {
	case policy.DeleteSoft:
		return behavior.TombstoneMetadata
	case policy.DeletePermanent:
		return behavior.PurgeMetadata
	default:
		return behavior.DropMetadata
	}
}

// rowPush builds the per-row mutation sent to participants. Writes carry the
// whole row so both copies hash the same.
func (h *Host) rowPush(ctx context.Context, db *store.DB, m model.Mutation, o model.RowOutcome) (model.Mutation, error) {
	push := model.Mutation{Action: m.Action, Table: m.Table, RowID: o.RowID}
	if o.Deleted {
		push.Action = model.ActionDelete
		return push, nil
	}
	row, ok, err := store.ReadRow(ctx, db, m.Table, o.RowID)
	if err != nil {
		return model.Mutation{}, err
	}
	if ok {
		push.Values = row.ColumnValues()
	}
	return push, nil
}

// targets returns the participants pushes go to: those with an accepted
// contract, or only alias when it is set.
func (h *Host) targets(ctx context.Context, db *store.DB, alias string) ([]model.Participant, error) {
	if alias != "" {
		p, err := store.GetParticipant(ctx, db, alias)
		if err != nil {
			return nil, model.NewParticipantNotFoundError(db.Name(), alias)
		}
		if p.ContractID == "" {
			return nil, &model.Error{
				Code:     model.ErrCodeContractNotFound,
				Message:  "participant " + alias + " has not accepted a contract",
				Database: db.Name(),
			}
		}
		return []model.Participant{p}, nil
	}
	all, err := store.ListParticipants(ctx, db)
	if err != nil {
		return nil, err
	}
	var out []model.Participant
	for _, p := range all {
		if p.ContractID != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// forward sends a ParticipantOwned mutation to the participants that hold
// the rows.
func (h *Host) forward(ctx context.Context, db *store.DB, m model.Mutation, targets []model.Participant) (ExecResult, error) {
	rules := policy.RulesFor(model.PolicyParticipantOwned)
	if m.Action == model.ActionInsert && len(targets) != 1 {
		return ExecResult{}, &model.Error{
			Code:     model.ErrCodePolicyViolation,
			Message:  "insert into a participant-owned table needs a single participant",
			Database: db.Name(),
			Table:    m.Table,
		}
	}
	if m.RowID != 0 {
		owners, err := h.owners(ctx, db, m.Table, m.RowID, targets)
		if err != nil {
			return ExecResult{}, err
		}
		if len(owners) > 0 {
			targets = owners
		}
	}
	return ExecResult{Pushes: h.push(ctx, db, rules, m, targets)}, nil
}

func (h *Host) owners(ctx context.Context, db *store.DB, table string, rowID int64, among []model.Participant) ([]model.Participant, error) {
	var out []model.Participant
	for _, p := range among {
		md, ok, err := h.n.writer.Hashes().Get(ctx, db, table, rowID, p.ID)
		if err != nil {
			return nil, err
		}
		if ok && !md.IsDeleted {
			out = append(out, p)
		}
	}
	return out, nil
}

// push sends m to each participant and records the reference hash of every
// participant that applied it.
func (h *Host) push(ctx context.Context, db *store.DB, rules policy.Rules, m model.Mutation, targets []model.Participant) []PushResult {
	out := make([]PushResult, 0, len(targets))
	for _, p := range targets {
		req := notify.DataPush{Credentials: h.n.self.Credentials(), DatabaseName: db.Name(), Mutation: m}
		var res model.PartialDataResult
		err := notify.TryEach(p.Addresses, func(addr string) error {
			var err error
			switch m.Action {
			case model.ActionInsert:
				res, err = h.n.notifier.InsertAtParticipant(ctx, addr, req)
			case model.ActionUpdate:
				res, err = h.n.notifier.UpdateAtParticipant(ctx, addr, req)
			default:
				res, err = h.n.notifier.DeleteAtParticipant(ctx, addr, req)
			}
			return err
		})

		pr := PushResult{Participant: p.Alias, Result: res}
		if err == nil && res.IsSuccessful() {
			err = h.recordReferences(ctx, db, rules, m, p, res)
		}
		if err != nil {
			slog.Warn("push to participant failed",
				"db", db.Name(), "table", m.Table, "participant", p.Alias, "action", m.Action.String(), "error", err)
			pr.Error = err.Error()
		}
		out = append(out, pr)
	}
	return out
}

func (h *Host) recordReferences(ctx context.Context, db *store.DB, rules policy.Rules, m model.Mutation, p model.Participant, res model.PartialDataResult) error {
	hashes := h.n.writer.Hashes()
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, o := range res.Rows {
			var err error
			switch {
			case !o.Deleted:
				err = hashes.RecordUpdate(ctx, tx, m.Table, o.RowID, o.Hash, p.ID)
			case rules.Delete == policy.DeleteSoft:
				err = hashes.MarkDeleted(ctx, tx, m.Table, o.RowID, p.ID)
			default:
				err = hashes.RecordDelete(ctx, tx, m.Table, o.RowID, p.ID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// HandleUpdatedHash implements notify.HostHandler. A row written to a Mirror
// table is applied here and pushed on to every other participant.
func (h *Host) HandleUpdatedHash(ctx context.Context, req notify.HashChange) error {
	db, p, err := h.inbound(ctx, req.DatabaseName, req.Credentials)
	if err != nil {
		return err
	}
	applied, err := h.n.remote.RecordHash(ctx, db, p, req)
	if err != nil || applied == model.ActionUnknown {
		return err
	}

	pol, err := h.n.policies.Get(ctx, db, req.TableName)
	if err != nil {
		return err
	}
	schema, err := store.TableSchema(ctx, db, req.TableName)
	if err != nil {
		return err
	}
	others, err := h.others(ctx, db, p)
	if err != nil {
		return err
	}
	m := model.Mutation{Action: applied, Table: schema.Name, RowID: req.RowID}
	push, err := h.rowPush(ctx, db, m, model.RowOutcome{RowID: req.RowID})
	if err != nil {
		return err
	}
	h.push(ctx, db, policy.RulesFor(pol), push, others)
	return nil
}

// others returns the accepted participants other than p.
func (h *Host) others(ctx context.Context, db *store.DB, p model.Participant) ([]model.Participant, error) {
	targets, err := h.targets(ctx, db, "")
	if err != nil {
		return nil, err
	}
	out := targets[:0]
	for _, t := range targets {
		if t.Alias != p.Alias {
			out = append(out, t)
		}
	}
	return out, nil
}

// HandleRemovedRow implements notify.HostHandler. A row removed from a Mirror
// table is also removed from every other participant.
func (h *Host) HandleRemovedRow(ctx context.Context, req notify.RowRemoval) error {
	db, p, err := h.inbound(ctx, req.DatabaseName, req.Credentials)
	if err != nil {
		return err
	}
	removed, err := h.n.remote.HandleRemovedRow(ctx, db, p, req)
	if err != nil || !removed {
		return err
	}

	pol, err := h.n.policies.Get(ctx, db, req.TableName)
	if err != nil {
		return err
	}
	rules := policy.RulesFor(pol)
	if rules.Delete != policy.DeletePermanent {
		return nil
	}
	others, err := h.others(ctx, db, p)
	if err != nil {
		return err
	}
	schema, err := store.TableSchema(ctx, db, req.TableName)
	if err != nil {
		return err
	}
	h.push(ctx, db, rules, model.Mutation{Action: model.ActionDelete, Table: schema.Name, RowID: req.RowID}, others)
	return nil
}

// HandleContractAcceptance implements notify.HostHandler.
func (h *Host) HandleContractAcceptance(ctx context.Context, req notify.Acceptance) error {
	return h.n.contracts.RecordAcceptance(ctx, req)
}

// inbound authenticates a participant of database.
func (h *Host) inbound(ctx context.Context, database string, creds model.Credentials) (*store.DB, model.Participant, error) {
	db, err := h.db(database)
	if err != nil {
		return nil, model.Participant{}, err
	}
	p, err := h.n.verifier.Participant(ctx, db, creds)
	if err != nil {
		return nil, model.Participant{}, err
	}
	return db, p, nil
}
