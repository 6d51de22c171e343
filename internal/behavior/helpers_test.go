package behavior

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dynamoRando/rcd-sub004/internal/hashstore"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/provision"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

const hostAddr = "host:7400"

var testTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func now() time.Time { return testTime }

func testContract() model.Contract {
	return model.Contract{
		ContractID:       "c-1",
		DatabaseName:     "hr",
		DatabaseID:       "db-1",
		Status:           model.ContractStatusAccepted,
		ParticipantAlias: "acme",
		Host:             model.HostInfo{ID: "host-1", Name: "central"},
		Tables: []model.TableSchema{
			{Name: "EMPLOYEE", Policy: model.PolicyShared, Columns: employeeColumns()},
			{
				Name:    "PAYROLL",
				Policy:  model.PolicyHostOnly,
				Columns: []model.ColumnSchema{{Name: "Id", Type: "INTEGER", PrimaryKey: true}},
			},
			{
				Name:   "TIMESHEET",
				Policy: model.PolicyParticipantOwned,
				Columns: []model.ColumnSchema{
					{Name: "Id", Type: "INTEGER", Ordinal: 0, PrimaryKey: true},
					{Name: "Hours", Type: "REAL", Ordinal: 1},
				},
			},
			{
				Name:    "HOLIDAY",
				Policy:  model.PolicyMirror,
				Columns: []model.ColumnSchema{{Name: "Day", Type: "TEXT", PrimaryKey: true}},
			},
		},
	}
}

func employeeColumns() []model.ColumnSchema {
	return []model.ColumnSchema{
		{Name: "Id", Type: "INTEGER", Ordinal: 0, PrimaryKey: true},
		{Name: "Name", Type: "TEXT", Ordinal: 1, NotNull: true},
		{Name: "Salary", Type: "REAL", Ordinal: 2},
	}
}

func employee(id int64, name string) []model.ColumnValue {
	return []model.ColumnValue{
		{Column: "Id", Value: model.Int(id)},
		{Column: "Name", Value: model.Text(name)},
		{Column: "Salary", Value: model.Real(1000)},
	}
}

func rename(name string) []model.ColumnValue {
	return []model.ColumnValue{{Column: "Name", Value: model.Text(name)}}
}

// fakeHost records what a participant reports.
type fakeHost struct {
	mu       sync.Mutex
	hashes   []notify.HashChange
	removals []notify.RowRemoval
}

func (h *fakeHost) HandleUpdatedHash(_ context.Context, req notify.HashChange) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashes = append(h.hashes, req)
	return nil
}

func (h *fakeHost) HandleRemovedRow(_ context.Context, req notify.RowRemoval) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removals = append(h.removals, req)
	return nil
}

func (h *fakeHost) HandleContractAcceptance(context.Context, notify.Acceptance) error {
	return errors.New("unexpected acceptance")
}

type staticResolver HostTarget

func (r staticResolver) ResolveHost(context.Context, *store.DB) (HostTarget, error) {
	return HostTarget(r), nil
}

type fixture struct {
	catalog  *store.Catalog
	policies *policy.Engine
	part     *store.DB
	host     *fakeHost
	registry *notify.Registry
	rec      *notify.Recorder
	writer   *Writer
	incoming *Incoming
	outgoing *Outgoing
	review   *Review
	settings *Settings
}

// newFixture provisions partial database "hr" from testContract and points
// outgoing notifications at a fake host.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	c, err := store.OpenCatalog(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	policies := policy.New(now)
	_, err = provision.New(c, policies, now).CreatePartialDatabaseFromContract(ctx, testContract())
	require.NoError(t, err)
	part, err := c.Get("hr")
	require.NoError(t, err)

	host := &fakeHost{}
	registry := notify.NewRegistry()
	registry.RegisterHost(hostAddr, host)
	n, err := notify.New(notify.KindLoopback, notify.Options{Registry: registry})
	require.NoError(t, err)
	rec := notify.NewRecorder(n)

	resolver := staticResolver{
		Addresses:   []string{hostAddr},
		Credentials: model.Credentials{ID: "part-1", Name: "acme", Token: "tok"},
	}

	w := NewWriter(hashstore.New(now))
	out := NewOutgoing(policies, rec, resolver)
	return &fixture{
		catalog:  c,
		policies: policies,
		part:     part,
		host:     host,
		registry: registry,
		rec:      rec,
		writer:   w,
		incoming: NewIncoming(policies, w, now),
		outgoing: out,
		review:   NewReview(w, out, now),
		settings: NewSettings(policies),
	}
}

func (f *fixture) seed(t *testing.T, id int64, name string) model.RowOutcome {
	t.Helper()
	res, err := f.incoming.ApplyInsert(context.Background(), f.part, model.Mutation{
		Action: model.ActionInsert,
		Table:  "EMPLOYEE",
		RowID:  id,
		Values: employee(id, name),
	}, "host-1")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	return res.Rows[0]
}

func (f *fixture) name(t *testing.T, db *store.DB, id int64) string {
	t.Helper()
	row, ok, err := store.ReadRow(context.Background(), db, "EMPLOYEE", id)
	require.NoError(t, err)
	require.True(t, ok, "row %d missing", id)
	v, _ := row.Get("Name")
	return v.Text
}

func (f *fixture) ownHash(t *testing.T, db *store.DB, table string, id int64) (model.RowMetadata, bool) {
	t.Helper()
	md, ok, err := f.writer.Hashes().Get(context.Background(), db, table, id, "")
	require.NoError(t, err)
	return md, ok
}
