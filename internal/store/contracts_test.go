package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

func testContract(id string) model.Contract {
	return model.Contract{
		ContractID:           id,
		VersionID:            "v-" + id,
		DatabaseName:         "hr",
		DatabaseID:           "db-1",
		GeneratedAt:          testTime,
		Status:               model.ContractStatusNotSent,
		ParticipantAlias:     "acme",
		Host:                 model.HostInfo{ID: "host-1", Name: "central"},
		Tables:               []model.TableSchema{{Name: "EMPLOYEE", Columns: employeeSchema().Columns, Policy: model.PolicyShared}},
		RemoteDeleteBehavior: model.RemoteDeleteAutoDelete,
	}
}

func TestInsertContract_Idempotent(t *testing.T) {
	ctx := context.Background()
	sys := createTestCatalog(t).System()

	inserted, err := InsertContract(ctx, sys, RoleIssued, testContract("c-1"), testTime)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := testContract("c-1")
	again.Description = "changed"
	inserted, err = InsertContract(ctx, sys, RoleIssued, again, testTime)
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := GetContract(ctx, sys, RoleIssued, "c-1")
	require.NoError(t, err)
	assert.Empty(t, rec.Contract.Description, "stored document is never replaced")
	assert.Equal(t, model.PolicyShared, rec.Contract.Tables[0].Policy)
	assert.True(t, testTime.Equal(rec.Contract.GeneratedAt))

	// The same id under the other role is a separate row.
	inserted, err = InsertContract(ctx, sys, RoleReceived, testContract("c-1"), testTime)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestGetContract_NotFound(t *testing.T) {
	sys := createTestCatalog(t).System()
	_, err := GetContract(context.Background(), sys, RoleIssued, "nope")
	assert.True(t, model.IsCode(err, model.ErrCodeContractNotFound))
}

func TestTransitionContract(t *testing.T) {
	ctx := context.Background()
	sys := createTestCatalog(t).System()
	_, err := InsertContract(ctx, sys, RoleIssued, testContract("c-1"), testTime)
	require.NoError(t, err)

	changed, err := TransitionContract(ctx, sys, RoleIssued, "c-1", model.ContractStatusPending, testTime, model.ContractStatusNotSent)
	require.NoError(t, err)
	assert.True(t, changed)

	// Condition no longer holds: a second caller loses.
	changed, err = TransitionContract(ctx, sys, RoleIssued, "c-1", model.ContractStatusPending, testTime, model.ContractStatusNotSent)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = TransitionContract(ctx, sys, RoleIssued, "c-1", model.ContractStatusAccepted, testTime,
		model.ContractStatusNotSent, model.ContractStatusPending)
	require.NoError(t, err)
	assert.True(t, changed)

	rec, err := GetContract(ctx, sys, RoleIssued, "c-1")
	require.NoError(t, err)
	assert.Equal(t, model.ContractStatusAccepted, rec.Contract.Status)

	_, err = TransitionContract(ctx, sys, RoleIssued, "c-1", model.ContractStatusRejected, testTime, model.ContractStatusAccepted)
	assert.True(t, model.IsCode(err, model.ErrCodeInvalidTransition))
}

func TestListAndActiveContract(t *testing.T) {
	ctx := context.Background()
	sys := createTestCatalog(t).System()

	for i, id := range []string{"c-1", "c-2", "c-3"} {
		c := testContract(id)
		c.GeneratedAt = testTime.Add(time.Duration(i+1) * time.Second)
		_, err := InsertContract(ctx, sys, RoleIssued, c, testTime)
		require.NoError(t, err)
	}
	_, ok, err := ActiveContract(ctx, sys, RoleIssued, "hr", "acme")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, id := range []string{"c-1", "c-2"} {
		_, err := TransitionContract(ctx, sys, RoleIssued, id, model.ContractStatusAccepted, testTime, model.ContractStatusNotSent)
		require.NoError(t, err)
	}

	all, err := ListContracts(ctx, sys, RoleIssued, ContractFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	accepted, err := ListContracts(ctx, sys, RoleIssued, ContractFilter{Status: model.ContractStatusAccepted, Database: "HR"})
	require.NoError(t, err)
	assert.Len(t, accepted, 2)

	active, ok, err := ActiveContract(ctx, sys, RoleIssued, "hr", "ACME")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c-2", active.Contract.ContractID, "latest accepted wins")
}

func TestContractFlags(t *testing.T) {
	ctx := context.Background()
	sys := createTestCatalog(t).System()
	_, err := InsertContract(ctx, sys, RoleReceived, testContract("c-1"), testTime)
	require.NoError(t, err)

	require.NoError(t, MarkProvisioned(ctx, sys, "c-1", testTime))
	rec, err := GetContract(ctx, sys, RoleReceived, "c-1")
	require.NoError(t, err)
	assert.True(t, rec.Provisioned)
	assert.False(t, rec.HostNotified)

	require.NoError(t, MarkHostNotified(ctx, sys, "c-1", testTime))
	rec, err = GetContract(ctx, sys, RoleReceived, "c-1")
	require.NoError(t, err)
	assert.True(t, rec.HostNotified)
}
