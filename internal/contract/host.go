package contract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Generate snapshots the schema and policies of database into a new NotSent
// contract for alias. Fails with NOT_ALL_TABLES_SET, without writing
// anything, when a table has no policy.
func (m *Manager) Generate(ctx context.Context, database, alias, description string, rdb model.RemoteDeleteBehavior) (model.Contract, error) {
	if _, err := model.DecodeRemoteDeleteBehavior(uint8(rdb)); err != nil {
		return model.Contract{}, err
	}
	if rdb == model.RemoteDeleteUnknown {
		return model.Contract{}, &model.Error{
			Code:     model.ErrCodeBehaviorNotSet,
			Message:  "remote delete behavior must be set",
			Database: database,
		}
	}

	db, err := m.hostDB(database)
	if err != nil {
		return model.Contract{}, err
	}
	p, err := store.GetParticipant(ctx, db, alias)
	if err != nil {
		if model.IsCode(err, model.ErrCodeParticipantNotFound) {
			return model.Contract{}, model.NewParticipantNotFoundError(db.Name(), alias)
		}
		return model.Contract{}, err
	}
	policies, err := m.policies.RequireAll(ctx, db)
	if err != nil {
		return model.Contract{}, err
	}
	info, err := store.GetDatabaseInfo(ctx, db)
	if err != nil {
		return model.Contract{}, err
	}

	names, err := store.TableNames(ctx, db)
	if err != nil {
		return model.Contract{}, err
	}
	tables := make([]model.TableSchema, 0, len(names))
	for _, name := range names {
		schema, err := store.TableSchema(ctx, db, name)
		if err != nil {
			return model.Contract{}, err
		}
		schema.Policy = policies[name]
		tables = append(tables, schema)
	}

	c := model.Contract{
		ContractID:           m.ids.Generate(),
		VersionID:            m.ids.Generate(),
		DatabaseName:         db.Name(),
		DatabaseID:           info.ID,
		Description:          description,
		GeneratedAt:          m.now().UTC(),
		Status:               model.ContractStatusNotSent,
		ParticipantAlias:     p.Alias,
		Host:                 m.self.Public(),
		Tables:               tables,
		RemoteDeleteBehavior: rdb,
	}
	if _, err := store.InsertContract(ctx, m.system(), store.RoleIssued, c, m.now()); err != nil {
		return model.Contract{}, err
	}

	slog.Info("contract generated",
		"contract_id", c.ContractID,
		"db", c.DatabaseName,
		"participant", c.ParticipantAlias,
		"tables", len(tables),
	)
	return c, nil
}

// Send offers an issued contract to its participant. Returns true once the
// participant acknowledged receipt, at which point the contract is Pending.
// A transport failure returns false and leaves the contract NotSent.
// Contracts already past NotSent are not sent again.
func (m *Manager) Send(ctx context.Context, contractID string) (bool, error) {
	rec, err := store.GetContract(ctx, m.system(), store.RoleIssued, contractID)
	if err != nil {
		return false, err
	}
	c := rec.Contract
	if c.Status != model.ContractStatusNotSent {
		return true, nil
	}

	db, err := m.hostDB(c.DatabaseName)
	if err != nil {
		return false, err
	}
	p, err := store.GetParticipant(ctx, db, c.ParticipantAlias)
	if err != nil {
		return false, err
	}

	offer := notify.ContractOffer{Credentials: m.self.Credentials(), Contract: c}
	err = notify.TryEach(p.Addresses, func(addr string) error {
		return m.notifier.SendParticipantContract(ctx, addr, offer)
	})
	if notify.IsSoftFailure(err) {
		slog.Warn("contract not delivered",
			"contract_id", c.ContractID,
			"participant", p.Alias,
			"error", err,
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	changed, err := store.TransitionContract(ctx, m.system(), store.RoleIssued, c.ContractID,
		model.ContractStatusPending, m.now(), model.ContractStatusNotSent)
	if err != nil {
		return false, err
	}
	if changed {
		logTransition(c, model.ContractStatusNotSent, model.ContractStatusPending)
		if err := store.SetParticipantState(ctx, db, p.Alias, model.ContractStatusPending); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RecordAcceptance handles a participant's report that it accepted a
// contract. The participant's identity is recorded on first acceptance and
// verified on every later one. Repeating an acceptance is a no-op, and a
// late acceptance of a contract older than the participant's current one
// marks that contract accepted without replacing the current one.
func (m *Manager) RecordAcceptance(ctx context.Context, req notify.Acceptance) error {
	db, err := m.hostDB(req.DatabaseName)
	if err != nil {
		return err
	}
	rec, err := store.GetContract(ctx, m.system(), store.RoleIssued, req.ContractID)
	if err != nil {
		return err
	}
	c := rec.Contract
	creds := req.Credentials
	if !strings.EqualFold(c.DatabaseName, db.Name()) || !strings.EqualFold(c.ParticipantAlias, creds.Name) || creds.ID == "" {
		slog.Warn("acceptance does not match contract", "contract_id", c.ContractID, "alias", creds.Name)
		return model.NewAuthError("participant " + creds.Name)
	}

	p, err := store.GetParticipant(ctx, db, c.ParticipantAlias)
	if err != nil {
		return err
	}
	if p.TokenHash != "" {
		if _, err := m.verifier.Participant(ctx, db, creds); err != nil {
			return err
		}
	}

	switch c.Status {
	case model.ContractStatusRejected:
		return model.NewInvalidTransitionError(c.ContractID, c.Status, model.ContractStatusAccepted)
	case model.ContractStatusAccepted:
		if strings.EqualFold(p.ContractID, c.ContractID) {
			return nil
		}
	default:
		changed, err := store.TransitionContract(ctx, m.system(), store.RoleIssued, c.ContractID,
			model.ContractStatusAccepted, m.now(), model.ContractStatusNotSent, model.ContractStatusPending)
		if err != nil {
			return err
		}
		if changed {
			logTransition(c, c.Status, model.ContractStatusAccepted)
		}
	}

	hash := p.TokenHash
	if hash == "" {
		if hash, err = m.verifier.Hasher().Hash(creds.Token); err != nil {
			return err
		}
	}
	if p.ContractID != "" && !strings.EqualFold(p.ContractID, c.ContractID) {
		current, err := store.GetContract(ctx, m.system(), store.RoleIssued, p.ContractID)
		switch {
		case err == nil && current.Contract.GeneratedAt.After(c.GeneratedAt):
			slog.Info("keeping newer contract for participant",
				"alias", p.Alias, "current", p.ContractID, "late", c.ContractID)
			return nil
		case err != nil && !model.IsCode(err, model.ErrCodeContractNotFound):
			return err
		}
	}
	return store.RecordParticipantAcceptance(ctx, db, p.Alias, creds.ID, hash, c.ContractID, c.RemoteDeleteBehavior)
}

// ListIssued returns issued contracts matching f.
func (m *Manager) ListIssued(ctx context.Context, f store.ContractFilter) ([]model.Contract, error) {
	return m.list(ctx, store.RoleIssued, f)
}

func (m *Manager) list(ctx context.Context, role store.ContractRole, f store.ContractFilter) ([]model.Contract, error) {
	recs, err := store.ListContracts(ctx, m.system(), role, f)
	if err != nil {
		return nil, err
	}
	out := make([]model.Contract, len(recs))
	for i, r := range recs {
		out[i] = r.Contract
	}
	return out, nil
}
