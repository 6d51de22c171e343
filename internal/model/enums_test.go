package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// enumCase describes one enum for the exhaustive round-trip tests.
type enumCase struct {
	name    string
	names   []string
	decode  func(uint8) (uint8, error)
	parse   func(string) (uint8, error)
	str     func(uint8) string
	marshal func(uint8) ([]byte, error)
	unmarsh func([]byte) (uint8, error)
}

func allEnums() []enumCase {
	return []enumCase{
		{
			name:  "ContractStatus",
			names: []string{"Unknown", "NotSent", "Pending", "Accepted", "Rejected"},
			decode: func(c uint8) (uint8, error) {
				v, err := DecodeContractStatus(c)
				return uint8(v), err
			},
			parse: func(s string) (uint8, error) {
				v, err := ParseContractStatus(s)
				return uint8(v), err
			},
			str:     func(c uint8) string { return ContractStatus(c).String() },
			marshal: func(c uint8) ([]byte, error) { return json.Marshal(ContractStatus(c)) },
			unmarsh: func(b []byte) (uint8, error) {
				var v ContractStatus
				err := json.Unmarshal(b, &v)
				return uint8(v), err
			},
		},
		{
			name:  "LogicalStoragePolicy",
			names: []string{"None", "HostOnly", "ParticipantOwned", "Shared", "Mirror"},
			decode: func(c uint8) (uint8, error) {
				v, err := DecodeLogicalStoragePolicy(c)
				return uint8(v), err
			},
			parse: func(s string) (uint8, error) {
				v, err := ParseLogicalStoragePolicy(s)
				return uint8(v), err
			},
			str:     func(c uint8) string { return LogicalStoragePolicy(c).String() },
			marshal: func(c uint8) ([]byte, error) { return json.Marshal(LogicalStoragePolicy(c)) },
			unmarsh: func(b []byte) (uint8, error) {
				var v LogicalStoragePolicy
				err := json.Unmarshal(b, &v)
				return uint8(v), err
			},
		},
		{
			name:  "UpdatesFromHostBehavior",
			names: []string{"Unknown", "AllowOverwrite", "QueueForReview", "OverwriteWithLog", "Ignore", "QueueForReviewAndLog"},
			decode: func(c uint8) (uint8, error) {
				v, err := DecodeUpdatesFromHostBehavior(c)
				return uint8(v), err
			},
			parse: func(s string) (uint8, error) {
				v, err := ParseUpdatesFromHostBehavior(s)
				return uint8(v), err
			},
			str:     func(c uint8) string { return UpdatesFromHostBehavior(c).String() },
			marshal: func(c uint8) ([]byte, error) { return json.Marshal(UpdatesFromHostBehavior(c)) },
			unmarsh: func(b []byte) (uint8, error) {
				var v UpdatesFromHostBehavior
				err := json.Unmarshal(b, &v)
				return uint8(v), err
			},
		},
		{
			name:  "DeletesFromHostBehavior",
			names: []string{"Unknown", "AllowRemoval", "QueueForReview", "DeleteWithLog", "Ignore", "QueueForReviewAndLog"},
			decode: func(c uint8) (uint8, error) {
				v, err := DecodeDeletesFromHostBehavior(c)
				return uint8(v), err
			},
			parse: func(s string) (uint8, error) {
				v, err := ParseDeletesFromHostBehavior(s)
				return uint8(v), err
			},
			str:     func(c uint8) string { return DeletesFromHostBehavior(c).String() },
			marshal: func(c uint8) ([]byte, error) { return json.Marshal(DeletesFromHostBehavior(c)) },
			unmarsh: func(b []byte) (uint8, error) {
				var v DeletesFromHostBehavior
				err := json.Unmarshal(b, &v)
				return uint8(v), err
			},
		},
		{
			name:  "UpdatesToHostBehavior",
			names: []string{"Unknown", "SendDataHashChange", "DoNothing"},
			decode: func(c uint8) (uint8, error) {
				v, err := DecodeUpdatesToHostBehavior(c)
				return uint8(v), err
			},
			parse: func(s string) (uint8, error) {
				v, err := ParseUpdatesToHostBehavior(s)
				return uint8(v), err
			},
			str:     func(c uint8) string { return UpdatesToHostBehavior(c).String() },
			marshal: func(c uint8) ([]byte, error) { return json.Marshal(UpdatesToHostBehavior(c)) },
			unmarsh: func(b []byte) (uint8, error) {
				var v UpdatesToHostBehavior
				err := json.Unmarshal(b, &v)
				return uint8(v), err
			},
		},
		{
			name:  "DeletesToHostBehavior",
			names: []string{"Unknown", "SendNotification", "DoNothing"},
			decode: func(c uint8) (uint8, error) {
				v, err := DecodeDeletesToHostBehavior(c)
				return uint8(v), err
			},
			parse: func(s string) (uint8, error) {
				v, err := ParseDeletesToHostBehavior(s)
				return uint8(v), err
			},
			str:     func(c uint8) string { return DeletesToHostBehavior(c).String() },
			marshal: func(c uint8) ([]byte, error) { return json.Marshal(DeletesToHostBehavior(c)) },
			unmarsh: func(b []byte) (uint8, error) {
				var v DeletesToHostBehavior
				err := json.Unmarshal(b, &v)
				return uint8(v), err
			},
		},
		{
			name:  "RemoteDeleteBehavior",
			names: []string{"Unknown", "Ignore", "AutoDelete", "UpdateStatusOnly"},
			decode: func(c uint8) (uint8, error) {
				v, err := DecodeRemoteDeleteBehavior(c)
				return uint8(v), err
			},
			parse: func(s string) (uint8, error) {
				v, err := ParseRemoteDeleteBehavior(s)
				return uint8(v), err
			},
			str:     func(c uint8) string { return RemoteDeleteBehavior(c).String() },
			marshal: func(c uint8) ([]byte, error) { return json.Marshal(RemoteDeleteBehavior(c)) },
			unmarsh: func(b []byte) (uint8, error) {
				var v RemoteDeleteBehavior
				err := json.Unmarshal(b, &v)
				return uint8(v), err
			},
		},
		{
			name:  "PartialDataStatus",
			names: []string{"Unknown", "SuccessOverwriteOrLog", "Pending", "Ignored"},
			decode: func(c uint8) (uint8, error) {
				v, err := DecodePartialDataStatus(c)
				return uint8(v), err
			},
			parse: func(s string) (uint8, error) {
				v, err := ParsePartialDataStatus(s)
				return uint8(v), err
			},
			str:     func(c uint8) string { return PartialDataStatus(c).String() },
			marshal: func(c uint8) ([]byte, error) { return json.Marshal(PartialDataStatus(c)) },
			unmarsh: func(b []byte) (uint8, error) {
				var v PartialDataStatus
				err := json.Unmarshal(b, &v)
				return uint8(v), err
			},
		},
	}
}

func TestEnums_CodeRoundTrip(t *testing.T) {
	for _, ec := range allEnums() {
		t.Run(ec.name, func(t *testing.T) {
			for code, name := range ec.names {
				got, err := ec.decode(uint8(code))
				require.NoError(t, err)
				assert.Equal(t, uint8(code), got, "decode(encode(x)) must equal x")
				assert.Equal(t, name, ec.str(uint8(code)))
			}
		})
	}
}

func TestEnums_StringRoundTrip(t *testing.T) {
	for _, ec := range allEnums() {
		t.Run(ec.name, func(t *testing.T) {
			for code := range ec.names {
				parsed, err := ec.parse(ec.str(uint8(code)))
				require.NoError(t, err, "every String() output must parse")
				assert.Equal(t, uint8(code), parsed)
			}
		})
	}
}

func TestEnums_JSONRoundTrip(t *testing.T) {
	for _, ec := range allEnums() {
		t.Run(ec.name, func(t *testing.T) {
			for code := range ec.names {
				data, err := ec.marshal(uint8(code))
				require.NoError(t, err)
				got, err := ec.unmarsh(data)
				require.NoError(t, err)
				assert.Equal(t, uint8(code), got)
			}
		})
	}
}

func TestEnums_UndefinedCodeIsTypedError(t *testing.T) {
	for _, ec := range allEnums() {
		t.Run(ec.name, func(t *testing.T) {
			for _, code := range []uint8{uint8(len(ec.names)), 42, 255} {
				_, err := ec.decode(code)
				require.Error(t, err)
				assert.True(t, IsCode(err, ErrCodeDecodeFailure), "got %v", err)
			}

			_, err := ec.unmarsh([]byte("200"))
			assert.True(t, IsCode(err, ErrCodeDecodeFailure))

			_, err = ec.unmarsh([]byte("-1"))
			assert.True(t, IsCode(err, ErrCodeDecodeFailure))

			_, err = ec.unmarsh([]byte(`"Pending"`))
			assert.True(t, IsCode(err, ErrCodeDecodeFailure))
		})
	}
}

func TestEnums_UnknownNameIsTypedError(t *testing.T) {
	_, err := ParseLogicalStoragePolicy("Everywhere")
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeDecodeFailure))
}

func TestEnums_ParseIsCaseInsensitive(t *testing.T) {
	p, err := ParseLogicalStoragePolicy("participantowned")
	require.NoError(t, err)
	assert.Equal(t, PolicyParticipantOwned, p)

	b, err := ParseUpdatesFromHostBehavior(" queueForReviewAndLog ")
	require.NoError(t, err)
	assert.Equal(t, UpdatesFromHostQueueForReviewAndLog, b)
}

func TestEnums_WireCodes(t *testing.T) {
	assert.Equal(t, uint8(3), uint8(ContractStatusAccepted))
	assert.Equal(t, uint8(4), uint8(PolicyMirror))
	assert.Equal(t, uint8(5), uint8(UpdatesFromHostQueueForReviewAndLog))
	assert.Equal(t, uint8(3), uint8(DeletesFromHostDeleteWithLog))
	assert.Equal(t, uint8(2), uint8(UpdatesToHostDoNothing))
	assert.Equal(t, uint8(1), uint8(DeletesToHostSendNotification))
	assert.Equal(t, uint8(2), uint8(RemoteDeleteAutoDelete))
	assert.Equal(t, uint8(3), uint8(PartialDataIgnored))
}

func TestContractStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to ContractStatus
		want     bool
	}{
		{ContractStatusUnknown, ContractStatusNotSent, true},
		{ContractStatusNotSent, ContractStatusPending, true},
		{ContractStatusPending, ContractStatusAccepted, true},
		{ContractStatusPending, ContractStatusRejected, true},
		{ContractStatusNotSent, ContractStatusAccepted, true},
		{ContractStatusPending, ContractStatusNotSent, false},
		{ContractStatusAccepted, ContractStatusPending, false},
		{ContractStatusAccepted, ContractStatusRejected, false},
		{ContractStatusRejected, ContractStatusAccepted, false},
		{ContractStatusRejected, ContractStatusPending, false},
		{ContractStatusPending, ContractStatusUnknown, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestContract_JSONCarriesCodes(t *testing.T) {
	c := Contract{
		ContractID: "c-1",
		Status:     ContractStatusPending,
		Tables: []TableSchema{
			{Name: "EMPLOYEE", Policy: PolicyParticipantOwned},
		},
		RemoteDeleteBehavior: RemoteDeleteAutoDelete,
	}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":2`)
	assert.Contains(t, string(data), `"policy":2`)
	assert.Contains(t, string(data), `"remote_delete_behavior":2`)

	var back Contract
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ContractStatusPending, back.Status)
	assert.Equal(t, PolicyParticipantOwned, back.Tables[0].Policy)

	bad := []byte(`{"contract_id":"c-1","status":9}`)
	err = json.Unmarshal(bad, &back)
	assert.True(t, IsCode(err, ErrCodeDecodeFailure))
}
