package behavior

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamoRando/rcd-sub004/internal/hashstore"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

type hostFixture struct {
	db       *store.DB
	policies *policy.Engine
	writer   *Writer
	remote   *Remote
	settings *Settings
}

// newHostFixture creates host database "hr" with one table per policy and
// row 42 in EMPLOYEE.
func newHostFixture(t *testing.T) *hostFixture {
	t.Helper()
	ctx := context.Background()

	c, err := store.OpenCatalog(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	db, err := c.Create(ctx, store.DatabaseInfo{ID: "db-1", Name: "hr", Kind: store.KindHost})
	require.NoError(t, err)

	policies := policy.New(now)
	for _, ts := range testContract().Tables {
		require.NoError(t, store.CreateTable(ctx, db, ts))
		require.NoError(t, policies.Set(ctx, db, ts.Name, ts.Policy))
	}
	require.NoError(t, store.AddParticipant(ctx, db, model.Participant{Alias: "acme", Addresses: []string{"part:7401"}}))

	w := NewWriter(hashstore.New(now))
	_, err = w.Apply(ctx, db, model.Mutation{
		Action: model.ActionInsert,
		Table:  "EMPLOYEE",
		Values: employee(42, "Ann"),
	}, LocalOptions{Track: true})
	require.NoError(t, err)

	return &hostFixture{
		db:       db,
		policies: policies,
		writer:   w,
		remote:   NewRemote(policies, w),
		settings: NewSettings(policies),
	}
}

func acme(b model.RemoteDeleteBehavior) model.Participant {
	return model.Participant{Alias: "acme", ID: "part-1", RemoteDeleteBehavior: b}
}

func removal(table string, id int64) notify.RowRemoval {
	return notify.RowRemoval{DatabaseName: "hr", TableName: table, RowID: id}
}

func (h *hostFixture) entry(t *testing.T, table string, id int64, participant string) (model.RowMetadata, bool) {
	t.Helper()
	md, ok, err := h.writer.Hashes().Get(context.Background(), h.db, table, id, participant)
	require.NoError(t, err)
	return md, ok
}

func (h *hostFixture) exists(t *testing.T, table string, id int64) bool {
	t.Helper()
	_, ok, err := store.ReadRow(context.Background(), h.db, table, id)
	require.NoError(t, err)
	return ok
}

func TestRecordHash(t *testing.T) {
	h := newHostFixture(t)
	applied, err := h.remote.RecordHash(context.Background(), h.db, acme(model.RemoteDeleteIgnore), notify.HashChange{
		DatabaseName: "hr",
		TableName:    "timesheet",
		RowID:        5,
		Hash:         1 << 63,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionUnknown, applied)

	md, ok := h.entry(t, "TIMESHEET", 5, "part-1")
	require.True(t, ok)
	assert.Equal(t, uint64(1<<63), md.Hash)
	assert.False(t, h.exists(t, "TIMESHEET", 5), "host holds no participant-owned data")
}

func TestRecordHash_TableNotReported(t *testing.T) {
	h := newHostFixture(t)
	_, err := h.remote.RecordHash(context.Background(), h.db, acme(model.RemoteDeleteIgnore), notify.HashChange{
		TableName: "PAYROLL",
		RowID:     1,
	})
	assert.Equal(t, model.ErrCodePolicyViolation, model.CodeOf(err))
}

func TestRecordHash_SharedRowMustBeHeld(t *testing.T) {
	h := newHostFixture(t)
	ctx := context.Background()

	applied, err := h.remote.RecordHash(ctx, h.db, acme(model.RemoteDeleteIgnore), notify.HashChange{
		TableName: "EMPLOYEE",
		RowID:     42,
		Hash:      7,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionUnknown, applied)
	ref, ok := h.entry(t, "EMPLOYEE", 42, "part-1")
	require.True(t, ok)
	assert.Equal(t, uint64(7), ref.Hash)

	_, err = h.remote.RecordHash(ctx, h.db, acme(model.RemoteDeleteIgnore), notify.HashChange{
		TableName: "EMPLOYEE",
		RowID:     77,
		Hash:      9,
		Values:    employee(77, "Otto"),
	})
	assert.Equal(t, model.ErrCodePolicyViolation, model.CodeOf(err))
	assert.False(t, h.exists(t, "EMPLOYEE", 77), "Shared rows are not taken from participants")
	_, ok = h.entry(t, "EMPLOYEE", 77, "part-1")
	assert.False(t, ok)
}

func TestRecordHash_MirrorAppliesValues(t *testing.T) {
	h := newHostFixture(t)
	ctx := context.Background()
	values := []model.ColumnValue{{Column: "Day", Value: model.Text("2025-01-01")}}

	applied, err := h.remote.RecordHash(ctx, h.db, acme(model.RemoteDeleteIgnore), notify.HashChange{
		TableName: "holiday",
		RowID:     3,
		Hash:      hashstore.ComputeHash([]model.Value{model.Text("2025-01-01")}),
		Values:    values,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionInsert, applied)
	require.True(t, h.exists(t, "HOLIDAY", 3))

	own, ok := h.entry(t, "HOLIDAY", 3, "")
	require.True(t, ok)
	ref, ok := h.entry(t, "HOLIDAY", 3, "part-1")
	require.True(t, ok)
	assert.Equal(t, own.Hash, ref.Hash)

	values[0].Value = model.Text("2025-12-31")
	applied, err = h.remote.RecordHash(ctx, h.db, acme(model.RemoteDeleteIgnore), notify.HashChange{
		TableName: "HOLIDAY",
		RowID:     3,
		Hash:      hashstore.ComputeHash([]model.Value{model.Text("2025-12-31")}),
		Values:    values,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionUpdate, applied)
	row, _, err := store.ReadRow(ctx, h.db, "HOLIDAY", 3)
	require.NoError(t, err)
	v, _ := row.Get("Day")
	assert.Equal(t, "2025-12-31", v.Text)
}

func TestRecordHash_MirrorWithoutValuesNeedsHostRow(t *testing.T) {
	h := newHostFixture(t)
	_, err := h.remote.RecordHash(context.Background(), h.db, acme(model.RemoteDeleteIgnore), notify.HashChange{
		TableName: "HOLIDAY",
		RowID:     9,
		Hash:      1,
	})
	assert.Equal(t, model.ErrCodePolicyViolation, model.CodeOf(err))
}

func TestHandleRemovedRow_AutoDelete(t *testing.T) {
	h := newHostFixture(t)
	removed, err := h.remote.HandleRemovedRow(context.Background(), h.db, acme(model.RemoteDeleteAutoDelete), removal("EMPLOYEE", 42))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, h.exists(t, "EMPLOYEE", 42))

	own, ok := h.entry(t, "EMPLOYEE", 42, "")
	require.True(t, ok)
	assert.True(t, own.IsDeleted)
	assert.Equal(t, hashstore.TombstoneHash(42), own.Hash)

	ref, ok := h.entry(t, "EMPLOYEE", 42, "part-1")
	require.True(t, ok)
	assert.True(t, ref.IsDeleted)
}

func TestHandleRemovedRow_UpdateStatusOnly(t *testing.T) {
	h := newHostFixture(t)
	before, _ := h.entry(t, "EMPLOYEE", 42, "")

	removed, err := h.remote.HandleRemovedRow(context.Background(), h.db, acme(model.RemoteDeleteUpdateStatusOnly), removal("EMPLOYEE", 42))
	require.NoError(t, err)
	assert.False(t, removed)
	assert.True(t, h.exists(t, "EMPLOYEE", 42))

	own, _ := h.entry(t, "EMPLOYEE", 42, "")
	assert.Equal(t, before, own)
	ref, ok := h.entry(t, "EMPLOYEE", 42, "part-1")
	require.True(t, ok)
	assert.True(t, ref.IsDeleted)
}

func TestHandleRemovedRow_Ignore(t *testing.T) {
	h := newHostFixture(t)
	removed, err := h.remote.HandleRemovedRow(context.Background(), h.db, acme(model.RemoteDeleteIgnore), removal("EMPLOYEE", 42))
	require.NoError(t, err)
	assert.False(t, removed)
	assert.True(t, h.exists(t, "EMPLOYEE", 42))
	_, ok := h.entry(t, "EMPLOYEE", 42, "part-1")
	assert.False(t, ok)
}

func TestHandleRemovedRow_ParticipantOwnedKeepsReferenceOnly(t *testing.T) {
	h := newHostFixture(t)
	removed, err := h.remote.HandleRemovedRow(context.Background(), h.db, acme(model.RemoteDeleteAutoDelete), removal("TIMESHEET", 8))
	require.NoError(t, err)
	assert.False(t, removed)
	ref, ok := h.entry(t, "TIMESHEET", 8, "part-1")
	require.True(t, ok)
	assert.True(t, ref.IsDeleted)
}

func TestHandleRemovedRow_MirrorIsPermanent(t *testing.T) {
	h := newHostFixture(t)
	ctx := context.Background()
	_, err := h.writer.Apply(ctx, h.db, model.Mutation{
		Action: model.ActionInsert,
		Table:  "HOLIDAY",
		Values: []model.ColumnValue{{Column: "Day", Value: model.Text("2024-01-01")}},
	}, LocalOptions{Track: true})
	require.NoError(t, err)

	removed, err := h.remote.HandleRemovedRow(ctx, h.db, acme(model.RemoteDeleteIgnore), removal("HOLIDAY", 1))
	require.NoError(t, err)
	assert.True(t, removed)
	mds, err := h.writer.Hashes().List(ctx, h.db, "HOLIDAY")
	require.NoError(t, err)
	assert.Empty(t, mds)
}

func TestHandleRemovedRow_UnknownBehavior(t *testing.T) {
	h := newHostFixture(t)
	_, err := h.remote.HandleRemovedRow(context.Background(), h.db, acme(model.RemoteDeleteUnknown), removal("EMPLOYEE", 42))
	assert.Equal(t, model.ErrCodeBehaviorNotSet, model.CodeOf(err))
	assert.True(t, h.exists(t, "EMPLOYEE", 42))
}
