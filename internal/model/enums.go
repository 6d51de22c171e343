package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// enumTable maps the wire codes of one enum to their names.
// The index of a name is its code.
type enumTable struct {
	enum  string
	names []string
}

func (t enumTable) name(code uint8) string {
	if int(code) < len(t.names) {
		return t.names[code]
	}
	return fmt.Sprintf("%s(%d)", t.enum, code)
}

func (t enumTable) check(code uint8) error {
	if int(code) >= len(t.names) {
		return NewDecodeError(t.enum, int(code))
	}
	return nil
}

func (t enumTable) parse(s string) (uint8, error) {
	for i, n := range t.names {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return uint8(i), nil
		}
	}
	return 0, &Error{
		Code:    ErrCodeDecodeFailure,
		Message: fmt.Sprintf("unknown %s name %q", t.enum, s),
	}
}

// decodeJSONCode reads a numeric wire code and runs it through the checked decoder.
func decodeJSONCode[T ~uint8](enum string, data []byte, decode func(uint8) (T, error)) (T, error) {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, &Error{
			Code:    ErrCodeDecodeFailure,
			Message: fmt.Sprintf("%s must be a numeric code", enum),
			Err:     err,
		}
	}
	if n < 0 || n > 255 {
		return 0, NewDecodeError(enum, n)
	}
	return decode(uint8(n))
}

// ContractStatus is the lifecycle state of a contract.
type ContractStatus uint8

const (
	ContractStatusUnknown ContractStatus = iota
	ContractStatusNotSent
	ContractStatusPending
	ContractStatusAccepted
	ContractStatusRejected
)

var contractStatusTable = enumTable{
	enum:  "ContractStatus",
	names: []string{"Unknown", "NotSent", "Pending", "Accepted", "Rejected"},
}

// DecodeContractStatus converts a wire code into a ContractStatus.
func DecodeContractStatus(code uint8) (ContractStatus, error) {
	if err := contractStatusTable.check(code); err != nil {
		return ContractStatusUnknown, err
	}
	return ContractStatus(code), nil
}

// ParseContractStatus converts a name (case-insensitive) into a ContractStatus.
func ParseContractStatus(s string) (ContractStatus, error) {
	code, err := contractStatusTable.parse(s)
	return ContractStatus(code), err
}

func (s ContractStatus) String() string { return contractStatusTable.name(uint8(s)) }

// IsTerminal reports whether no further transition is possible.
func (s ContractStatus) IsTerminal() bool {
	return s == ContractStatusAccepted || s == ContractStatusRejected
}

// CanTransitionTo reports whether moving from s to next is a forward move.
// Terminal states admit no transition; moving to the same state is handled by
// callers as an idempotent no-op and is not a transition.
func (s ContractStatus) CanTransitionTo(next ContractStatus) bool {
	if s.IsTerminal() || next == ContractStatusUnknown {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	return next > s
}

func (s ContractStatus) MarshalJSON() ([]byte, error) { return json.Marshal(uint8(s)) }

func (s *ContractStatus) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(contractStatusTable.enum, data, DecodeContractStatus)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// LogicalStoragePolicy is the per-table rule for where data lives and how
// changes propagate.
type LogicalStoragePolicy uint8

const (
	PolicyNone LogicalStoragePolicy = iota
	PolicyHostOnly
	PolicyParticipantOwned
	PolicyShared
	PolicyMirror
)

var policyTable = enumTable{
	enum:  "LogicalStoragePolicy",
	names: []string{"None", "HostOnly", "ParticipantOwned", "Shared", "Mirror"},
}

// DecodeLogicalStoragePolicy converts a wire code into a LogicalStoragePolicy.
func DecodeLogicalStoragePolicy(code uint8) (LogicalStoragePolicy, error) {
	if err := policyTable.check(code); err != nil {
		return PolicyNone, err
	}
	return LogicalStoragePolicy(code), nil
}

// ParseLogicalStoragePolicy converts a name into a LogicalStoragePolicy.
func ParseLogicalStoragePolicy(s string) (LogicalStoragePolicy, error) {
	code, err := policyTable.parse(s)
	return LogicalStoragePolicy(code), err
}

func (p LogicalStoragePolicy) String() string { return policyTable.name(uint8(p)) }

func (p LogicalStoragePolicy) MarshalJSON() ([]byte, error) { return json.Marshal(uint8(p)) }

func (p *LogicalStoragePolicy) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(policyTable.enum, data, DecodeLogicalStoragePolicy)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// UpdatesFromHostBehavior controls how a participant applies an UPDATE pushed
// by the host.
type UpdatesFromHostBehavior uint8

const (
	UpdatesFromHostUnknown UpdatesFromHostBehavior = iota
	UpdatesFromHostAllowOverwrite
	UpdatesFromHostQueueForReview
	UpdatesFromHostOverwriteWithLog
	UpdatesFromHostIgnore
	UpdatesFromHostQueueForReviewAndLog
)

var updatesFromHostTable = enumTable{
	enum: "UpdatesFromHostBehavior",
	names: []string{
		"Unknown", "AllowOverwrite", "QueueForReview", "OverwriteWithLog", "Ignore", "QueueForReviewAndLog",
	},
}

// DecodeUpdatesFromHostBehavior converts a wire code into an UpdatesFromHostBehavior.
func DecodeUpdatesFromHostBehavior(code uint8) (UpdatesFromHostBehavior, error) {
	if err := updatesFromHostTable.check(code); err != nil {
		return UpdatesFromHostUnknown, err
	}
	return UpdatesFromHostBehavior(code), nil
}

// ParseUpdatesFromHostBehavior converts a name into an UpdatesFromHostBehavior.
func ParseUpdatesFromHostBehavior(s string) (UpdatesFromHostBehavior, error) {
	code, err := updatesFromHostTable.parse(s)
	return UpdatesFromHostBehavior(code), err
}

func (b UpdatesFromHostBehavior) String() string { return updatesFromHostTable.name(uint8(b)) }

func (b UpdatesFromHostBehavior) MarshalJSON() ([]byte, error) { return json.Marshal(uint8(b)) }

func (b *UpdatesFromHostBehavior) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(updatesFromHostTable.enum, data, DecodeUpdatesFromHostBehavior)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// DeletesFromHostBehavior controls how a participant applies a DELETE pushed
// by the host.
type DeletesFromHostBehavior uint8

const (
	DeletesFromHostUnknown DeletesFromHostBehavior = iota
	DeletesFromHostAllowRemoval
	DeletesFromHostQueueForReview
	DeletesFromHostDeleteWithLog
	DeletesFromHostIgnore
	DeletesFromHostQueueForReviewAndLog
)

var deletesFromHostTable = enumTable{
	enum: "DeletesFromHostBehavior",
	names: []string{
		"Unknown", "AllowRemoval", "QueueForReview", "DeleteWithLog", "Ignore", "QueueForReviewAndLog",
	},
}

// DecodeDeletesFromHostBehavior converts a wire code into a DeletesFromHostBehavior.
func DecodeDeletesFromHostBehavior(code uint8) (DeletesFromHostBehavior, error) {
	if err := deletesFromHostTable.check(code); err != nil {
		return DeletesFromHostUnknown, err
	}
	return DeletesFromHostBehavior(code), nil
}

// ParseDeletesFromHostBehavior converts a name into a DeletesFromHostBehavior.
func ParseDeletesFromHostBehavior(s string) (DeletesFromHostBehavior, error) {
	code, err := deletesFromHostTable.parse(s)
	return DeletesFromHostBehavior(code), err
}

func (b DeletesFromHostBehavior) String() string { return deletesFromHostTable.name(uint8(b)) }

func (b DeletesFromHostBehavior) MarshalJSON() ([]byte, error) { return json.Marshal(uint8(b)) }

func (b *DeletesFromHostBehavior) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(deletesFromHostTable.enum, data, DecodeDeletesFromHostBehavior)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UpdatesToHostBehavior controls whether a participant tells the host about
// a local write.
type UpdatesToHostBehavior uint8

const (
	UpdatesToHostUnknown UpdatesToHostBehavior = iota
	UpdatesToHostSendDataHashChange
	UpdatesToHostDoNothing
)

var updatesToHostTable = enumTable{
	enum:  "UpdatesToHostBehavior",
	names: []string{"Unknown", "SendDataHashChange", "DoNothing"},
}

// DecodeUpdatesToHostBehavior converts a wire code into an UpdatesToHostBehavior.
func DecodeUpdatesToHostBehavior(code uint8) (UpdatesToHostBehavior, error) {
	if err := updatesToHostTable.check(code); err != nil {
		return UpdatesToHostUnknown, err
	}
	return UpdatesToHostBehavior(code), nil
}

// ParseUpdatesToHostBehavior converts a name into an UpdatesToHostBehavior.
func ParseUpdatesToHostBehavior(s string) (UpdatesToHostBehavior, error) {
	code, err := updatesToHostTable.parse(s)
	return UpdatesToHostBehavior(code), err
}

func (b UpdatesToHostBehavior) String() string { return updatesToHostTable.name(uint8(b)) }

func (b UpdatesToHostBehavior) MarshalJSON() ([]byte, error) { return json.Marshal(uint8(b)) }

func (b *UpdatesToHostBehavior) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(updatesToHostTable.enum, data, DecodeUpdatesToHostBehavior)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// DeletesToHostBehavior controls whether a participant tells the host about
// a local delete.
type DeletesToHostBehavior uint8

const (
	DeletesToHostUnknown DeletesToHostBehavior = iota
	DeletesToHostSendNotification
	DeletesToHostDoNothing
)

var deletesToHostTable = enumTable{
	enum:  "DeletesToHostBehavior",
	names: []string{"Unknown", "SendNotification", "DoNothing"},
}

// DecodeDeletesToHostBehavior converts a wire code into a DeletesToHostBehavior.
func DecodeDeletesToHostBehavior(code uint8) (DeletesToHostBehavior, error) {
	if err := deletesToHostTable.check(code); err != nil {
		return DeletesToHostUnknown, err
	}
	return DeletesToHostBehavior(code), nil
}

// ParseDeletesToHostBehavior converts a name into a DeletesToHostBehavior.
func ParseDeletesToHostBehavior(s string) (DeletesToHostBehavior, error) {
	code, err := deletesToHostTable.parse(s)
	return DeletesToHostBehavior(code), err
}

func (b DeletesToHostBehavior) String() string { return deletesToHostTable.name(uint8(b)) }

func (b DeletesToHostBehavior) MarshalJSON() ([]byte, error) { return json.Marshal(uint8(b)) }

func (b *DeletesToHostBehavior) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(deletesToHostTable.enum, data, DecodeDeletesToHostBehavior)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// RemoteDeleteBehavior is the host's reaction to a participant-reported deletion.
type RemoteDeleteBehavior uint8

const (
	RemoteDeleteUnknown RemoteDeleteBehavior = iota
	RemoteDeleteIgnore
	RemoteDeleteAutoDelete
	RemoteDeleteUpdateStatusOnly
)

var remoteDeleteTable = enumTable{
	enum:  "RemoteDeleteBehavior",
	names: []string{"Unknown", "Ignore", "AutoDelete", "UpdateStatusOnly"},
}

// DecodeRemoteDeleteBehavior converts a wire code into a RemoteDeleteBehavior.
func DecodeRemoteDeleteBehavior(code uint8) (RemoteDeleteBehavior, error) {
	if err := remoteDeleteTable.check(code); err != nil {
		return RemoteDeleteUnknown, err
	}
	return RemoteDeleteBehavior(code), nil
}

// ParseRemoteDeleteBehavior converts a name into a RemoteDeleteBehavior.
func ParseRemoteDeleteBehavior(s string) (RemoteDeleteBehavior, error) {
	code, err := remoteDeleteTable.parse(s)
	return RemoteDeleteBehavior(code), err
}

func (b RemoteDeleteBehavior) String() string { return remoteDeleteTable.name(uint8(b)) }

func (b RemoteDeleteBehavior) MarshalJSON() ([]byte, error) { return json.Marshal(uint8(b)) }

func (b *RemoteDeleteBehavior) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(remoteDeleteTable.enum, data, DecodeRemoteDeleteBehavior)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// PartialDataStatus is the outcome of applying a remote mutation at a
// partial database.
type PartialDataStatus uint8

const (
	PartialDataUnknown PartialDataStatus = iota
	PartialDataSuccessOverwriteOrLog
	PartialDataPending
	PartialDataIgnored
)

var partialDataStatusTable = enumTable{
	enum:  "PartialDataStatus",
	names: []string{"Unknown", "SuccessOverwriteOrLog", "Pending", "Ignored"},
}

// DecodePartialDataStatus converts a wire code into a PartialDataStatus.
func DecodePartialDataStatus(code uint8) (PartialDataStatus, error) {
	if err := partialDataStatusTable.check(code); err != nil {
		return PartialDataUnknown, err
	}
	return PartialDataStatus(code), nil
}

// ParsePartialDataStatus converts a name into a PartialDataStatus.
func ParsePartialDataStatus(s string) (PartialDataStatus, error) {
	code, err := partialDataStatusTable.parse(s)
	return PartialDataStatus(code), err
}

func (s PartialDataStatus) String() string { return partialDataStatusTable.name(uint8(s)) }

func (s PartialDataStatus) MarshalJSON() ([]byte, error) { return json.Marshal(uint8(s)) }

func (s *PartialDataStatus) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(partialDataStatusTable.enum, data, DecodePartialDataStatus)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Action is the kind of row mutation carried by a Mutation or PendingAction.
type Action uint8

const (
	ActionUnknown Action = iota
	ActionInsert
	ActionUpdate
	ActionDelete
)

var actionTable = enumTable{
	enum:  "Action",
	names: []string{"Unknown", "Insert", "Update", "Delete"},
}

// DecodeAction converts a wire code into an Action.
func DecodeAction(code uint8) (Action, error) {
	if err := actionTable.check(code); err != nil {
		return ActionUnknown, err
	}
	return Action(code), nil
}

// ParseAction converts a name into an Action.
func ParseAction(s string) (Action, error) {
	code, err := actionTable.parse(s)
	return Action(code), err
}

func (a Action) String() string { return actionTable.name(uint8(a)) }

func (a Action) MarshalJSON() ([]byte, error) { return json.Marshal(uint8(a)) }

func (a *Action) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(actionTable.enum, data, DecodeAction)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
