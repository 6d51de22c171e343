package behavior

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

func queueUpdate(t *testing.T, f *fixture, id int64, name string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.settings.ChangeUpdatesFromHost(ctx, f.part, "EMPLOYEE", model.UpdatesFromHostQueueForReviewAndLog))
	res, err := f.incoming.ApplyUpdate(ctx, f.part, update(id, name), "host-1")
	require.NoError(t, err)
	require.Equal(t, model.PartialDataPending, res.Status)
}

func TestApprovePending_AppliesAndReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 999, "Ann")
	queueUpdate(t, f, 999, "Bob")

	res, rep, err := f.review.ApprovePending(ctx, f.part, "employee", 999)
	require.NoError(t, err)
	assert.Equal(t, model.PartialDataSuccessOverwriteOrLog, res.Status)
	assert.Equal(t, "Bob", f.name(t, f.part, 999))

	md, ok := f.ownHash(t, f.part, "EMPLOYEE", 999)
	require.True(t, ok)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, md.Hash, res.Rows[0].Hash)

	assert.True(t, rep.OK())
	assert.Equal(t, 1, rep.Calls)
	require.Len(t, f.host.hashes, 1)
	assert.Equal(t, md.Hash, f.host.hashes[0].Hash)
	assert.Equal(t, "acme", f.host.hashes[0].Credentials.Name)

	resolved, err := store.ListPending(ctx, f.part, model.PartialDataSuccessOverwriteOrLog)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].ResolvedAt)

	// Still exactly one history entry: the log was taken when the update was queued.
	hist, err := store.ListHistory(ctx, f.part, "EMPLOYEE")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestApprovePending_HostUnreachableKeepsChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 1, "Ann")
	queueUpdate(t, f, 1, "Bob")
	f.registry.SetDown(hostAddr, true)

	res, rep, err := f.review.ApprovePending(ctx, f.part, "EMPLOYEE", 1)
	require.NoError(t, err)
	assert.True(t, res.IsSuccessful())
	assert.False(t, rep.OK())
	assert.NotEmpty(t, rep.Message)
	assert.Equal(t, "Bob", f.name(t, f.part, 1))
}

func TestApprovePending_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 3, "Ann")
	require.NoError(t, f.settings.ChangeDeletesFromHost(ctx, f.part, "EMPLOYEE", model.DeletesFromHostQueueForReview))
	_, err := f.incoming.ApplyDelete(ctx, f.part, remove("EMPLOYEE", 3), "host-1")
	require.NoError(t, err)

	res, rep, err := f.review.ApprovePending(ctx, f.part, "EMPLOYEE", 3)
	require.NoError(t, err)
	assert.True(t, res.IsSuccessful())
	assert.Equal(t, 1, rep.Calls)
	require.Len(t, f.host.removals, 1)
	assert.Equal(t, int64(3), f.host.removals[0].RowID)

	_, exists, err := store.ReadRow(ctx, f.part, "EMPLOYEE", 3)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestApprovePending_RowGoneResolvesIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 4, "Ann")
	queueUpdate(t, f, 4, "Bob")
	_, err := f.writer.Apply(ctx, f.part, remove("EMPLOYEE", 4), LocalOptions{Track: true})
	require.NoError(t, err)

	res, rep, err := f.review.ApprovePending(ctx, f.part, "EMPLOYEE", 4)
	require.NoError(t, err)
	assert.Equal(t, model.PartialDataIgnored, res.Status)
	assert.Zero(t, rep.Calls)
}

func TestRejectPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, 999, "Ann")
	queueUpdate(t, f, 999, "Bob")

	res, err := f.review.RejectPending(ctx, f.part, "EMPLOYEE", 999)
	require.NoError(t, err)
	assert.Equal(t, model.PartialDataIgnored, res.Status)
	assert.Equal(t, "Ann", f.name(t, f.part, 999))
	assert.Empty(t, f.host.hashes)

	_, err = f.review.RejectPending(ctx, f.part, "EMPLOYEE", 999)
	assert.Equal(t, model.ErrCodePendingNotFound, model.CodeOf(err))
	_, _, err = f.review.ApprovePending(ctx, f.part, "EMPLOYEE", 999)
	assert.Equal(t, model.ErrCodePendingNotFound, model.CodeOf(err))

	all, err := f.review.List(ctx, f.part, model.PartialDataUnknown)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.PartialDataIgnored, all[0].Status)
}
