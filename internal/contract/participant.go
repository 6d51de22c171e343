package contract

import (
	"context"
	"log/slog"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Receive stores an offered contract as Pending. The offering host is
// trusted on first contact and must present the same token afterwards.
// Receiving the same contract twice keeps the first copy.
func (m *Manager) Receive(ctx context.Context, offer notify.ContractOffer) error {
	c := offer.Contract
	if c.ContractID == "" || c.DatabaseName == "" {
		return model.NewParseError("contract offer is missing its id or database", nil)
	}
	if c.Host.ID != offer.Credentials.ID {
		return model.NewAuthError("host " + offer.Credentials.ID)
	}
	if err := m.verifier.TrustHost(ctx, m.system(), offer.Credentials, c.Host.Addresses, m.now()); err != nil {
		return err
	}

	c.Status = model.ContractStatusPending
	inserted, err := store.InsertContract(ctx, m.system(), store.RoleReceived, c, m.now())
	if err != nil {
		return err
	}
	if inserted {
		slog.Info("contract received",
			"contract_id", c.ContractID,
			"db", c.DatabaseName,
			"host", c.Host.Name,
		)
	}
	return nil
}

// ReviewPending lists received contracts awaiting a decision, oldest first.
func (m *Manager) ReviewPending(ctx context.Context) ([]model.Contract, error) {
	return m.list(ctx, store.RoleReceived, store.ContractFilter{Status: model.ContractStatusPending})
}

// ListReceived returns received contracts matching f.
func (m *Manager) ListReceived(ctx context.Context, f store.ContractFilter) ([]model.Contract, error) {
	return m.list(ctx, store.RoleReceived, f)
}

// Accept accepts a received contract: mark it Accepted, provision the
// partial database, then tell the host. Steps already completed by an
// earlier call are skipped. A host that cannot be reached leaves
// IsHostNotified false with a nil error; call Accept again to retry.
func (m *Manager) Accept(ctx context.Context, contractID string) (model.AcceptResult, error) {
	m.locks.Lock(contractID)
	defer m.locks.Unlock(contractID)

	var res model.AcceptResult
	rec, err := store.GetContract(ctx, m.system(), store.RoleReceived, contractID)
	if err != nil {
		return res, err
	}
	c := rec.Contract

	switch c.Status {
	case model.ContractStatusRejected:
		return res, model.NewInvalidTransitionError(c.ContractID, c.Status, model.ContractStatusAccepted)
	case model.ContractStatusAccepted:
	default:
		changed, err := store.TransitionContract(ctx, m.system(), store.RoleReceived, c.ContractID,
			model.ContractStatusAccepted, m.now(), model.ContractStatusNotSent, model.ContractStatusPending)
		if err != nil {
			return res, err
		}
		if !changed {
			// Lost a race with Reject.
			current, err := store.GetContract(ctx, m.system(), store.RoleReceived, contractID)
			if err != nil {
				return res, err
			}
			if current.Contract.Status != model.ContractStatusAccepted {
				return res, model.NewInvalidTransitionError(c.ContractID, current.Contract.Status, model.ContractStatusAccepted)
			}
		} else {
			logTransition(c, c.Status, model.ContractStatusAccepted)
		}
		c.Status = model.ContractStatusAccepted
	}
	res.IsContractUpdated = true

	if !rec.Provisioned {
		if _, err := m.provisioner.CreatePartialDatabaseFromContract(ctx, c); err != nil {
			res.Message = err.Error()
			return res, err
		}
		if err := store.MarkProvisioned(ctx, m.system(), c.ContractID, m.now()); err != nil {
			return res, err
		}
	}
	res.DBIsCreated = true

	if !rec.HostNotified {
		req := notify.Acceptance{
			Credentials:  model.Credentials{ID: m.self.ID, Name: c.ParticipantAlias, Token: m.self.Token},
			ContractID:   c.ContractID,
			DatabaseName: c.DatabaseName,
		}
		err := notify.TryEach(c.Host.Addresses, func(addr string) error {
			return m.notifier.NotifyHostOfAcceptanceOfContract(ctx, addr, req)
		})
		if notify.IsSoftFailure(err) {
			slog.Warn("host not notified of acceptance",
				"contract_id", c.ContractID,
				"host", c.Host.Name,
				"error", err,
			)
			res.Message = err.Error()
			return res, nil
		}
		if err != nil {
			res.Message = err.Error()
			return res, err
		}
		if err := store.MarkHostNotified(ctx, m.system(), c.ContractID, m.now()); err != nil {
			return res, err
		}
	}
	res.IsHostNotified = true
	return res, nil
}

// Reject rejects a Pending received contract. Nothing is provisioned and
// the host is not told. Rejecting twice is a no-op.
func (m *Manager) Reject(ctx context.Context, contractID string) error {
	m.locks.Lock(contractID)
	defer m.locks.Unlock(contractID)

	rec, err := store.GetContract(ctx, m.system(), store.RoleReceived, contractID)
	if err != nil {
		return err
	}
	c := rec.Contract
	if c.Status == model.ContractStatusRejected {
		return nil
	}
	changed, err := store.TransitionContract(ctx, m.system(), store.RoleReceived, contractID,
		model.ContractStatusRejected, m.now(), model.ContractStatusNotSent, model.ContractStatusPending)
	if err != nil {
		return err
	}
	if !changed {
		return model.NewInvalidTransitionError(contractID, c.Status, model.ContractStatusRejected)
	}
	logTransition(c, c.Status, model.ContractStatusRejected)
	return nil
}
