package contract

import (
	"context"
	"log/slog"
	"time"

	"github.com/im7mortal/kmutex"

	"github.com/dynamoRando/rcd-sub004/internal/auth"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/provision"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Config wires a Manager.
type Config struct {
	Catalog     *store.Catalog
	Policies    *policy.Engine
	Provisioner *provision.Provisioner
	Notifier    notify.Notifier
	Verifier    *auth.Verifier

	// Self is this node's identity, token included.
	Self model.HostInfo

	// IDs defaults to UUIDv7Generator.
	IDs IDGenerator

	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager runs contract operations for one node.
type Manager struct {
	catalog     *store.Catalog
	policies    *policy.Engine
	provisioner *provision.Provisioner
	notifier    notify.Notifier
	verifier    *auth.Verifier
	self        model.HostInfo
	ids         IDGenerator
	now         func() time.Time
	locks       *kmutex.Kmutex
}

// NewManager returns a Manager for cfg.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		catalog:     cfg.Catalog,
		policies:    cfg.Policies,
		provisioner: cfg.Provisioner,
		notifier:    cfg.Notifier,
		verifier:    cfg.Verifier,
		self:        cfg.Self,
		ids:         cfg.IDs,
		now:         cfg.Now,
		locks:       kmutex.New(),
	}
	if m.ids == nil {
		m.ids = UUIDv7Generator{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *Manager) system() *store.DB { return m.catalog.System() }

// hostDB returns the named database, which must be a host database.
func (m *Manager) hostDB(name string) (*store.DB, error) {
	db, err := m.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	if db.Kind() != store.KindHost {
		return nil, &model.Error{
			Code:     model.ErrCodeDbNotFound,
			Message:  "not a host database",
			Database: name,
		}
	}
	return db, nil
}

// Get returns a stored contract. issued selects the host-side copy.
func (m *Manager) Get(ctx context.Context, id string, issued bool) (store.ContractRecord, error) {
	role := store.RoleReceived
	if issued {
		role = store.RoleIssued
	}
	return store.GetContract(ctx, m.system(), role, id)
}

// logTransition records a status change.
func logTransition(c model.Contract, from, to model.ContractStatus) {
	slog.Info("contract status changed",
		"contract_id", c.ContractID,
		"db", c.DatabaseName,
		"participant", c.ParticipantAlias,
		"from", from.String(),
		"to", to.String(),
	)
}
