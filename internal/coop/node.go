package coop

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dynamoRando/rcd-sub004/internal/auth"
	"github.com/dynamoRando/rcd-sub004/internal/behavior"
	"github.com/dynamoRando/rcd-sub004/internal/contract"
	"github.com/dynamoRando/rcd-sub004/internal/hashstore"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/provision"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Config describes a node.
type Config struct {
	// DataDir holds coop.db and every host and partial database.
	DataDir string

	// Name is the node name presented to other nodes.
	Name string

	// Addresses are where other nodes reach this one.
	Addresses []string

	// Notifier carries outbound calls. Required.
	Notifier notify.Notifier

	// BcryptCost hashes stored tokens; zero uses the bcrypt default.
	BcryptCost int

	// IDs and Now default to UUIDv7 and time.Now.
	IDs contract.IDGenerator
	Now func() time.Time
}

// Node is one cooperating process.
type Node struct {
	catalog   *store.Catalog
	self      model.HostInfo
	notifier  notify.Notifier
	now       func() time.Time
	policies  *policy.Engine
	writer    *behavior.Writer
	verifier  *auth.Verifier
	contracts *contract.Manager
	incoming  *behavior.Incoming
	outgoing  *behavior.Outgoing
	review    *behavior.Review
	remote    *behavior.Remote
	settings  *behavior.Settings

	host        *Host
	participant *Participant
}

// Open opens or initialises the node in cfg.DataDir. The node identity is
// created on first open and kept thereafter; Name and Addresses follow cfg.
func Open(ctx context.Context, cfg Config) (*Node, error) {
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("open node: no notifier")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	catalog, err := store.OpenCatalog(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	self, err := loadIdentity(ctx, catalog.System(), cfg)
	if err != nil {
		catalog.Close()
		return nil, err
	}

	policies := policy.New(now)
	writer := behavior.NewWriter(hashstore.New(now))
	verifier := auth.NewVerifier(auth.Hasher{Cost: cfg.BcryptCost})
	outgoing := behavior.NewOutgoing(policies, cfg.Notifier, behavior.StoreResolver{System: catalog.System(), Self: self})

	n := &Node{
		catalog:  catalog,
		self:     self,
		notifier: cfg.Notifier,
		now:      now,
		policies: policies,
		writer:   writer,
		verifier: verifier,
		contracts: contract.NewManager(contract.Config{
			Catalog:     catalog,
			Policies:    policies,
			Provisioner: provision.New(catalog, policies, now),
			Notifier:    cfg.Notifier,
			Verifier:    verifier,
			Self:        self,
			IDs:         cfg.IDs,
			Now:         now,
		}),
		incoming: behavior.NewIncoming(policies, writer, now),
		outgoing: outgoing,
		review:   behavior.NewReview(writer, outgoing, now),
		remote:   behavior.NewRemote(policies, writer),
		settings: behavior.NewSettings(policies),
	}
	n.host = &Host{n: n}
	n.participant = &Participant{n: n}

	slog.Info("node opened", "id", self.ID, "name", self.Name, "dir", catalog.Dir())
	return n, nil
}

func loadIdentity(ctx context.Context, system *store.DB, cfg Config) (model.HostInfo, error) {
	self, found, err := store.LoadHostInfo(ctx, system)
	if err != nil {
		return model.HostInfo{}, err
	}
	if !found {
		id, err := uuid.NewV7()
		if err != nil {
			return model.HostInfo{}, fmt.Errorf("generate node id: %w", err)
		}
		token, err := auth.NewToken()
		if err != nil {
			return model.HostInfo{}, err
		}
		self = model.HostInfo{ID: id.String(), Token: token}
	} else if self.Name == cfg.Name && slices.Equal(self.Addresses, cfg.Addresses) {
		return self, nil
	}

	self.Name = cfg.Name
	self.Addresses = cfg.Addresses
	if err := store.SaveHostInfo(ctx, system, self); err != nil {
		return model.HostInfo{}, err
	}
	return self, nil
}

// Close closes every database file.
func (n *Node) Close() error { return n.catalog.Close() }

// Self returns the node identity without its token.
func (n *Node) Self() model.HostInfo { return n.self.Public() }

// Host returns the host role.
func (n *Node) Host() *Host { return n.host }

// Participant returns the participant role.
func (n *Node) Participant() *Participant { return n.participant }

// Databases lists the host and partial databases by name.
func (n *Node) Databases() ([]string, error) { return n.catalog.List() }

// ReadRow returns a row of any database this node has.
func (n *Node) ReadRow(ctx context.Context, database, table string, rowID int64) (model.Row, bool, error) {
	db, err := n.catalog.Get(database)
	if err != nil {
		return model.Row{}, false, err
	}
	return store.ReadRow(ctx, db, table, rowID)
}

// Metadata returns the metadata entries of a table, own and participant
// references alike.
func (n *Node) Metadata(ctx context.Context, database, table string) ([]model.RowMetadata, error) {
	db, err := n.catalog.Get(database)
	if err != nil {
		return nil, err
	}
	return n.writer.Hashes().List(ctx, db, table)
}

// History returns the saved prior versions of a table's rows.
func (n *Node) History(ctx context.Context, database, table string) ([]store.HistoryEntry, error) {
	db, err := n.catalog.Get(database)
	if err != nil {
		return nil, err
	}
	return store.ListHistory(ctx, db, table)
}

func (n *Node) database(name string, kind store.Kind) (*store.DB, error) {
	db, err := n.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	if db.Kind() != kind {
		return nil, &model.Error{
			Code:     model.ErrCodeDbNotFound,
			Message:  "not a " + kind.String() + " database",
			Database: name,
		}
	}
	return db, nil
}
