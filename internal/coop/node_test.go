package coop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dynamoRando/rcd-sub004/internal/hashstore"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/testutil"
)

const (
	hostAddr = "host:7400"
	partAddr = "part:7401"
)

type cluster struct {
	host     *Node
	part     *Node
	registry *notify.Registry
	rec      *notify.Recorder
}

func openNode(t *testing.T, dir, name, addr string, n notify.Notifier, clock *testutil.StepClock) *Node {
	t.Helper()
	node, err := Open(context.Background(), Config{
		DataDir:    dir,
		Name:       name,
		Addresses:  []string{addr},
		Notifier:   n,
		BcryptCost: bcrypt.MinCost,
		IDs:        testutil.NewSequenceGenerator(name),
		Now:        clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })
	return node
}

// newCluster opens a host and a participant wired over the loopback transport.
func newCluster(t *testing.T) *cluster {
	t.Helper()
	registry := notify.NewRegistry()
	n, err := notify.New(notify.KindLoopback, notify.Options{Registry: registry})
	require.NoError(t, err)
	rec := notify.NewRecorder(n)
	clock := testutil.NewStepClock(time.Time{}, 0)

	c := &cluster{
		host:     openNode(t, t.TempDir(), "central", hostAddr, rec, clock),
		part:     openNode(t, t.TempDir(), "acme", partAddr, rec, clock),
		registry: registry,
		rec:      rec,
	}
	registry.RegisterHost(hostAddr, c.host.Host())
	registry.RegisterParticipant(partAddr, c.part.Participant())
	return c
}

func employeeSchema() model.TableSchema {
	return model.TableSchema{
		Name: "EMPLOYEE",
		Columns: []model.ColumnSchema{
			{Name: "Id", Type: "INTEGER", Ordinal: 0, PrimaryKey: true},
			{Name: "Name", Type: "TEXT", Ordinal: 1, NotNull: true},
			{Name: "Salary", Type: "REAL", Ordinal: 2},
		},
	}
}

func employee(id int64, name string) model.Mutation {
	return model.Mutation{
		Action: model.ActionInsert,
		Table:  "EMPLOYEE",
		Values: []model.ColumnValue{
			{Column: "Id", Value: model.Int(id)},
			{Column: "Name", Value: model.Text(name)},
			{Column: "Salary", Value: model.Real(1000)},
		},
	}
}

// contracted sets up database hr with one table per policy and an accepted
// contract for participant acme.
func (c *cluster) contracted(t *testing.T, rdb model.RemoteDeleteBehavior) model.Contract {
	t.Helper()
	ctx := context.Background()
	h := c.host.Host()

	require.NoError(t, h.CreateDatabase(ctx, "hr"))
	tables := []struct {
		schema model.TableSchema
		policy model.LogicalStoragePolicy
	}{
		{employeeSchema(), model.PolicyShared},
		{model.TableSchema{Name: "PAYROLL", Columns: []model.ColumnSchema{
			{Name: "Id", Type: "INTEGER", PrimaryKey: true},
			{Name: "Amount", Type: "REAL", Ordinal: 1},
		}}, model.PolicyHostOnly},
		{model.TableSchema{Name: "TIMESHEET", Columns: []model.ColumnSchema{
			{Name: "Id", Type: "INTEGER", PrimaryKey: true},
			{Name: "Hours", Type: "REAL", Ordinal: 1},
		}}, model.PolicyParticipantOwned},
		{model.TableSchema{Name: "HOLIDAY", Columns: []model.ColumnSchema{
			{Name: "Id", Type: "INTEGER", PrimaryKey: true},
			{Name: "Day", Type: "TEXT", Ordinal: 1},
		}}, model.PolicyMirror},
	}
	for _, tb := range tables {
		require.NoError(t, h.CreateTable(ctx, "hr", tb.schema))
		require.NoError(t, h.SetPolicy(ctx, "hr", tb.schema.Name, tb.policy))
	}
	require.NoError(t, h.AddParticipant(ctx, "hr", "acme", []string{partAddr}))

	ct, err := h.GenerateContract(ctx, "hr", "acme", "payroll sharing", rdb)
	require.NoError(t, err)
	sent, err := h.SendContract(ctx, ct.ContractID)
	require.NoError(t, err)
	require.True(t, sent)

	res, err := c.part.Participant().AcceptContract(ctx, ct.ContractID)
	require.NoError(t, err)
	require.True(t, res.Succeeded(), res.Message)
	return ct
}

func (c *cluster) name(t *testing.T, node *Node, id int64) (string, bool) {
	t.Helper()
	row, ok, err := node.ReadRow(context.Background(), "hr", "EMPLOYEE", id)
	require.NoError(t, err)
	if !ok {
		return "", false
	}
	v, _ := row.Get("Name")
	return v.Text, true
}

func entry(t *testing.T, node *Node, table string, rowID int64, participant string) (model.RowMetadata, bool) {
	t.Helper()
	mds, err := node.Metadata(context.Background(), "hr", table)
	require.NoError(t, err)
	for _, md := range mds {
		if md.RowID == rowID && md.ParticipantID == participant {
			return md, true
		}
	}
	return model.RowMetadata{}, false
}

func TestOpen_IdentityIsStable(t *testing.T) {
	dir := t.TempDir()
	registry := notify.NewRegistry()
	n, err := notify.New(notify.KindLoopback, notify.Options{Registry: registry})
	require.NoError(t, err)
	clock := testutil.NewStepClock(time.Time{}, 0)

	first, err := Open(context.Background(), Config{DataDir: dir, Name: "central", Notifier: n, Now: clock.Now})
	require.NoError(t, err)
	id := first.Self().ID
	assert.NotEmpty(t, id)
	assert.Empty(t, first.Self().Token)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), Config{DataDir: dir, Name: "renamed", Addresses: []string{hostAddr}, Notifier: n})
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, id, second.Self().ID)
	assert.Equal(t, "renamed", second.Self().Name)
	assert.Equal(t, []string{hostAddr}, second.Self().Addresses)
}

func TestOpen_RequiresNotifier(t *testing.T) {
	_, err := Open(context.Background(), Config{DataDir: t.TempDir()})
	assert.Error(t, err)
}

func TestSharedInsertIsPushed(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteAutoDelete)
	ctx := context.Background()

	res, err := c.host.Host().ExecuteMutation(ctx, "hr", employee(42, "Ann"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Len(t, res.Pushes, 1)
	assert.Empty(t, res.Pushes[0].Error)
	assert.Equal(t, "acme", res.Pushes[0].Participant)
	assert.True(t, res.Pushes[0].Result.IsSuccessful())

	name, ok := c.name(t, c.part, 42)
	require.True(t, ok)
	assert.Equal(t, "Ann", name)

	own, ok := entry(t, c.host, "EMPLOYEE", 42, "")
	require.True(t, ok)
	ref, ok := entry(t, c.host, "EMPLOYEE", 42, c.part.Self().ID)
	require.True(t, ok)
	assert.Equal(t, own.Hash, ref.Hash, "both copies hash the same")

	partOwn, ok := entry(t, c.part, "EMPLOYEE", 42, "")
	require.True(t, ok)
	assert.Equal(t, own.Hash, partOwn.Hash)
}

func TestHostOnlyStaysLocal(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	c.rec.Reset()

	res, err := c.host.Host().ExecuteMutation(context.Background(), "hr", model.Mutation{
		Action: model.ActionInsert,
		Table:  "PAYROLL",
		Values: []model.ColumnValue{{Column: "Amount", Value: model.Real(10)}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	assert.Empty(t, res.Pushes)
	assert.Empty(t, c.rec.Calls())

	mds, err := c.host.Metadata(context.Background(), "hr", "PAYROLL")
	require.NoError(t, err)
	assert.Empty(t, mds)
}

// Participant deletes a Shared row under SendNotification; the host's
// AutoDelete removes its row and leaves a deletion marker.
func TestParticipantDelete_AutoDelete(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteAutoDelete)
	ctx := context.Background()
	_, err := c.host.Host().ExecuteMutation(ctx, "hr", employee(42, "Ann"))
	require.NoError(t, err)

	res, err := c.part.Participant().ExecuteMutation(ctx, "hr", model.Mutation{
		Action: model.ActionDelete,
		Table:  "EMPLOYEE",
		RowID:  42,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Report.OK(), res.Report.Message)
	assert.Equal(t, 1, c.rec.Count(notify.CallRemovedRow))

	_, ok := c.name(t, c.host, 42)
	assert.False(t, ok, "host row removed")

	own, ok := entry(t, c.host, "EMPLOYEE", 42, "")
	require.True(t, ok)
	assert.True(t, own.IsDeleted)
	assert.Equal(t, hashstore.TombstoneHash(42), own.Hash)

	ref, ok := entry(t, c.host, "EMPLOYEE", 42, c.part.Self().ID)
	require.True(t, ok)
	assert.True(t, ref.IsDeleted)
}

func TestParticipantDelete_UpdateStatusOnly(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteUpdateStatusOnly)
	ctx := context.Background()
	_, err := c.host.Host().ExecuteMutation(ctx, "hr", employee(42, "Ann"))
	require.NoError(t, err)

	_, err = c.part.Participant().ExecuteStatement(ctx, "hr", "DELETE FROM EMPLOYEE WHERE Id = 42")
	require.NoError(t, err)

	name, ok := c.name(t, c.host, 42)
	require.True(t, ok)
	assert.Equal(t, "Ann", name)
	ref, ok := entry(t, c.host, "EMPLOYEE", 42, c.part.Self().ID)
	require.True(t, ok)
	assert.True(t, ref.IsDeleted)
}

// Host update queued for review and logged; approval applies it and the
// host learns the new hash.
func TestQueueForReviewAndLog_EndToEnd(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	ctx := context.Background()
	p := c.part.Participant()

	_, err := c.host.Host().ExecuteMutation(ctx, "hr", employee(999, "Ann"))
	require.NoError(t, err)
	require.NoError(t, p.ChangeUpdatesFromHost(ctx, "hr", "EMPLOYEE", model.UpdatesFromHostQueueForReviewAndLog))

	res, err := c.host.Host().ExecuteStatement(ctx, "hr", "UPDATE EMPLOYEE SET Name = 'Bob' WHERE Id = 999")
	require.NoError(t, err)
	require.Len(t, res.Pushes, 1)
	assert.Equal(t, model.PartialDataPending, res.Pushes[0].Result.Status)

	name, _ := c.name(t, c.part, 999)
	assert.Equal(t, "Ann", name)
	hist, err := c.part.History(ctx, "hr", "EMPLOYEE")
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	hostOwn, _ := entry(t, c.host, "EMPLOYEE", 999, "")
	ref, _ := entry(t, c.host, "EMPLOYEE", 999, c.part.Self().ID)
	assert.NotEqual(t, hostOwn.Hash, ref.Hash, "host reference still holds the old hash")

	pending, err := p.PendingActions(ctx, "hr", model.PartialDataPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved, rep, err := p.ApprovePending(ctx, "hr", "EMPLOYEE", 999)
	require.NoError(t, err)
	assert.True(t, approved.IsSuccessful())
	assert.True(t, rep.OK(), rep.Message)

	name, _ = c.name(t, c.part, 999)
	assert.Equal(t, "Bob", name)
	ref, _ = entry(t, c.host, "EMPLOYEE", 999, c.part.Self().ID)
	assert.Equal(t, hostOwn.Hash, ref.Hash, "approval reported the new hash")
}

func TestParticipantOwnedWriteReportsHash(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	ctx := context.Background()

	res, err := c.part.Participant().ExecuteMutation(ctx, "hr", model.Mutation{
		Action: model.ActionInsert,
		Table:  "timesheet",
		Values: []model.ColumnValue{{Column: "Id", Value: model.Int(5)}, {Column: "Hours", Value: model.Real(7.5)}},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.Report.Calls)

	ref, ok := entry(t, c.host, "TIMESHEET", 5, c.part.Self().ID)
	require.True(t, ok)
	assert.Equal(t, res.Rows[0].Hash, ref.Hash)

	_, held, err := c.host.ReadRow(ctx, "hr", "TIMESHEET", 5)
	require.NoError(t, err)
	assert.False(t, held)

	// The host may change the row at its owner.
	up, err := c.host.Host().ExecuteMutation(ctx, "hr", model.Mutation{
		Action: model.ActionUpdate,
		Table:  "TIMESHEET",
		RowID:  5,
		Values: []model.ColumnValue{{Column: "Hours", Value: model.Real(8)}},
	})
	require.NoError(t, err)
	require.Len(t, up.Pushes, 1)
	assert.True(t, up.Pushes[0].Result.IsSuccessful())

	_, err = c.host.Host().ExecuteMutation(ctx, "hr", model.Mutation{
		Action: model.ActionInsert,
		Table:  "TIMESHEET",
		Values: []model.ColumnValue{{Column: "Hours", Value: model.Real(1)}},
	})
	require.NoError(t, err, "a single accepted participant owns the insert")
}

func TestParticipantCannotWriteHostOnly(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	_, err := c.part.Participant().ExecuteMutation(context.Background(), "hr", model.Mutation{
		Action: model.ActionInsert,
		Table:  "PAYROLL",
		Values: []model.ColumnValue{{Column: "Amount", Value: model.Real(1)}},
	})
	assert.Equal(t, model.ErrCodePolicyViolation, model.CodeOf(err))
}

func TestMirrorDeleteFromParticipantIsPermanent(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	ctx := context.Background()

	_, err := c.host.Host().ExecuteMutation(ctx, "hr", model.Mutation{
		Action: model.ActionInsert,
		Table:  "HOLIDAY",
		Values: []model.ColumnValue{{Column: "Id", Value: model.Int(1)}, {Column: "Day", Value: model.Text("2024-12-25")}},
	})
	require.NoError(t, err)

	_, err = c.part.Participant().ExecuteStatement(ctx, "hr", "DELETE FROM HOLIDAY WHERE Id = 1")
	require.NoError(t, err)

	_, held, err := c.host.ReadRow(ctx, "hr", "HOLIDAY", 1)
	require.NoError(t, err)
	assert.False(t, held)
	mds, err := c.host.Metadata(ctx, "hr", "HOLIDAY")
	require.NoError(t, err)
	assert.Empty(t, mds)
}

func TestInboundCallsAuthenticateFirst(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteAutoDelete)
	ctx := context.Background()
	_, err := c.host.Host().ExecuteMutation(ctx, "hr", employee(42, "Ann"))
	require.NoError(t, err)

	forged := model.Credentials{ID: c.part.Self().ID, Name: "acme", Token: "guess"}
	err = c.host.Host().HandleRemovedRow(ctx, notify.RowRemoval{
		Credentials:  forged,
		DatabaseName: "hr",
		TableName:    "EMPLOYEE",
		RowID:        42,
	})
	assert.Equal(t, model.ErrCodeAuthenticationFailure, model.CodeOf(err))
	_, ok := c.name(t, c.host, 42)
	assert.True(t, ok, "forged removal changed nothing")

	_, err = c.part.Participant().HandleDelete(ctx, notify.DataPush{
		Credentials:  model.Credentials{ID: c.host.Self().ID, Name: "central", Token: "guess"},
		DatabaseName: "hr",
		Mutation:     model.Mutation{Action: model.ActionDelete, Table: "EMPLOYEE", RowID: 42},
	})
	assert.Equal(t, model.ErrCodeAuthenticationFailure, model.CodeOf(err))
	_, ok = c.name(t, c.part, 42)
	assert.True(t, ok, "forged push changed nothing")
}

func TestTryAuthAtParticipant(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	ctx := context.Background()

	ok, err := c.host.Host().TryAuthAtParticipant(ctx, "hr", "acme")
	require.NoError(t, err)
	assert.True(t, ok)

	c.registry.SetDown(partAddr, true)
	ok, err = c.host.Host().TryAuthAtParticipant(ctx, "hr", "acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPushToUnreachableParticipantKeepsHostWrite(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	c.registry.SetDown(partAddr, true)

	res, err := c.host.Host().ExecuteMutation(context.Background(), "hr", employee(7, "Cy"))
	require.NoError(t, err)
	require.Len(t, res.Pushes, 1)
	assert.NotEmpty(t, res.Pushes[0].Error)

	name, ok := c.name(t, c.host, 7)
	require.True(t, ok)
	assert.Equal(t, "Cy", name)
	_, ok = entry(t, c.host, "EMPLOYEE", 7, c.part.Self().ID)
	assert.False(t, ok)
}

func holiday(id int64, day string) model.Mutation {
	return model.Mutation{
		Action: model.ActionInsert,
		Table:  "HOLIDAY",
		Values: []model.ColumnValue{{Column: "Id", Value: model.Int(id)}, {Column: "Day", Value: model.Text(day)}},
	}
}

func day(t *testing.T, node *Node, id int64) (string, bool) {
	t.Helper()
	row, ok, err := node.ReadRow(context.Background(), "hr", "HOLIDAY", id)
	require.NoError(t, err)
	if !ok {
		return "", false
	}
	v, _ := row.Get("Day")
	return v.Text, true
}

func TestMirrorParticipantWritesReachHost(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	ctx := context.Background()
	_, err := c.host.Host().ExecuteMutation(ctx, "hr", holiday(1, "2024-12-25"))
	require.NoError(t, err)

	res, err := c.part.Participant().ExecuteStatement(ctx, "hr", "UPDATE HOLIDAY SET Day = '2025-01-01' WHERE Id = 1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Calls)
	assert.True(t, res.Report.OK(), res.Report.Message)

	got, ok := day(t, c.host, 1)
	require.True(t, ok)
	assert.Equal(t, "2025-01-01", got)

	own, ok := entry(t, c.host, "HOLIDAY", 1, "")
	require.True(t, ok)
	ref, ok := entry(t, c.host, "HOLIDAY", 1, c.part.Self().ID)
	require.True(t, ok)
	assert.Equal(t, own.Hash, ref.Hash, "host copy and participant reference agree")

	res, err = c.part.Participant().ExecuteStatement(ctx, "hr", "INSERT INTO HOLIDAY (Id, Day) VALUES (2, '2025-07-04')")
	require.NoError(t, err)
	assert.True(t, res.Report.OK(), res.Report.Message)

	got, ok = day(t, c.host, 2)
	require.True(t, ok, "participant insert materialised at the host")
	assert.Equal(t, "2025-07-04", got)
	_, ok = entry(t, c.host, "HOLIDAY", 2, "")
	assert.True(t, ok)
}

func TestMirrorParticipantWriteFansOut(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	ctx := context.Background()

	const otherAddr = "globex:7402"
	other := openNode(t, t.TempDir(), "globex", otherAddr, c.rec, testutil.NewStepClock(time.Time{}, 0))
	c.registry.RegisterParticipant(otherAddr, other.Participant())
	h := c.host.Host()
	require.NoError(t, h.AddParticipant(ctx, "hr", "globex", []string{otherAddr}))
	ct, err := h.GenerateContract(ctx, "hr", "globex", "holidays", model.RemoteDeleteIgnore)
	require.NoError(t, err)
	sent, err := h.SendContract(ctx, ct.ContractID)
	require.NoError(t, err)
	require.True(t, sent)
	accepted, err := other.Participant().AcceptContract(ctx, ct.ContractID)
	require.NoError(t, err)
	require.True(t, accepted.Succeeded(), accepted.Message)

	_, err = h.ExecuteMutation(ctx, "hr", holiday(1, "2024-12-25"))
	require.NoError(t, err)

	_, err = c.part.Participant().ExecuteStatement(ctx, "hr", "UPDATE HOLIDAY SET Day = '2025-01-01' WHERE Id = 1")
	require.NoError(t, err)

	got, ok := day(t, other, 1)
	require.True(t, ok)
	assert.Equal(t, "2025-01-01", got)
	ref, ok := entry(t, c.host, "HOLIDAY", 1, other.Self().ID)
	require.True(t, ok)
	own, _ := entry(t, c.host, "HOLIDAY", 1, "")
	assert.Equal(t, own.Hash, ref.Hash)
}

func TestSharedParticipantInsertIsNotReferenced(t *testing.T) {
	c := newCluster(t)
	c.contracted(t, model.RemoteDeleteIgnore)
	ctx := context.Background()

	res, err := c.part.Participant().ExecuteMutation(ctx, "hr", employee(77, "Otto"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.Report.Failed)
	assert.Contains(t, res.Report.Message, "not held by the host")

	name, ok := c.name(t, c.part, 77)
	require.True(t, ok, "the local write stands")
	assert.Equal(t, "Otto", name)

	_, ok = c.name(t, c.host, 77)
	assert.False(t, ok)
	_, ok = entry(t, c.host, "EMPLOYEE", 77, c.part.Self().ID)
	assert.False(t, ok, "no reference without a host row")
}
