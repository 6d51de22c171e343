package model

import (
	"strings"
	"time"
)

// HostInfo is the identity of a node. Every node, host or participant, has one.
type HostInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Token     string   `json:"token,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// Credentials returns the identity presented on outbound calls.
func (h HostInfo) Credentials() Credentials {
	return Credentials{ID: h.ID, Name: h.Name, Token: h.Token}
}

// Public returns a copy without the authentication token.
func (h HostInfo) Public() HostInfo {
	h.Token = ""
	return h
}

// Credentials is the identity carried by every cross-party call.
// For host-originated calls Name is the host name; for participant-originated
// calls Name is the participant alias.
type Credentials struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

// Participant is the host-side record of a party holding a partial database.
type Participant struct {
	Alias                string               `json:"alias"`
	ID                   string               `json:"id,omitempty"`
	Addresses            []string             `json:"addresses,omitempty"`
	TokenHash            string               `json:"-"`
	AcceptanceState      ContractStatus       `json:"acceptance_state"`
	RemoteDeleteBehavior RemoteDeleteBehavior `json:"remote_delete_behavior"`
	ContractID           string               `json:"contract_id,omitempty"`
}

// ColumnSchema describes one column of a shared table.
type ColumnSchema struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Ordinal    int    `json:"ordinal"`
	NotNull    bool   `json:"not_null,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// TableSchema describes a table and the policy it is shared under.
type TableSchema struct {
	Name    string               `json:"name"`
	Columns []ColumnSchema       `json:"columns"`
	Policy  LogicalStoragePolicy `json:"policy"`
}

// Contract is a versioned agreement binding a participant to a database's
// schema and per-table policies. A stored contract is never edited apart from
// its status.
type Contract struct {
	ContractID           string               `json:"contract_id"`
	VersionID            string               `json:"version_id"`
	DatabaseName         string               `json:"database_name"`
	DatabaseID           string               `json:"database_id"`
	Description          string               `json:"description"`
	GeneratedAt          time.Time            `json:"generated_at"`
	Status               ContractStatus       `json:"status"`
	ParticipantAlias     string               `json:"participant_alias"`
	Host                 HostInfo             `json:"host"`
	Tables               []TableSchema        `json:"tables"`
	RemoteDeleteBehavior RemoteDeleteBehavior `json:"remote_delete_behavior"`
}

// Table returns the schema of name (case-insensitive).
func (c Contract) Table(name string) (TableSchema, bool) {
	for _, t := range c.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return TableSchema{}, false
}

// RowMetadata is one row of a metadata (hash) table.
// ParticipantID is empty for the host's own copy of a row.
type RowMetadata struct {
	Table         string `json:"table"`
	RowID         int64  `json:"row_id"`
	Hash          uint64 `json:"hash"`
	ParticipantID string `json:"participant_id,omitempty"`
	IsDeleted     bool   `json:"is_deleted,omitempty"`
}

// Predicate is an equality condition on a column. Predicates in a slice are
// combined with AND.
type Predicate struct {
	Column string `json:"column"`
	Value  Value  `json:"value"`
}

// Mutation is a row-level change. A mutation targets RowID when it is
// non-zero, otherwise every row matching Where.
type Mutation struct {
	Action Action        `json:"action"`
	Table  string        `json:"table"`
	RowID  int64         `json:"row_id,omitempty"`
	Values []ColumnValue `json:"values,omitempty"`
	Where  []Predicate   `json:"where,omitempty"`
}

// PendingAction is a host-pushed mutation queued for review at a participant.
type PendingAction struct {
	ID          int64             `json:"id"`
	Table       string            `json:"table"`
	RowID       int64             `json:"row_id"`
	Action      Action            `json:"action"`
	Payload     Mutation          `json:"payload"`
	Status      PartialDataStatus `json:"status"`
	HostID      string            `json:"host_id,omitempty"`
	RequestedAt time.Time         `json:"requested_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}

// BehaviorSettings are the participant-local reactions for one table.
type BehaviorSettings struct {
	Table           string                  `json:"table"`
	UpdatesFromHost UpdatesFromHostBehavior `json:"updates_from_host"`
	DeletesFromHost DeletesFromHostBehavior `json:"deletes_from_host"`
	UpdatesToHost   UpdatesToHostBehavior   `json:"updates_to_host"`
	DeletesToHost   DeletesToHostBehavior   `json:"deletes_to_host"`
}

// DefaultBehaviorSettings returns the settings a freshly provisioned table gets.
func DefaultBehaviorSettings(table string) BehaviorSettings {
	return BehaviorSettings{
		Table:           table,
		UpdatesFromHost: UpdatesFromHostAllowOverwrite,
		DeletesFromHost: DeletesFromHostAllowRemoval,
		UpdatesToHost:   UpdatesToHostSendDataHashChange,
		DeletesToHost:   DeletesToHostSendNotification,
	}
}

// RowOutcome reports the state of one row after a mutation was applied.
// Hash is zero and Deleted is true when the row was removed.
type RowOutcome struct {
	RowID   int64  `json:"row_id"`
	Hash    uint64 `json:"hash,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// PartialDataResult is the outcome of applying a remote mutation at a
// partial database.
type PartialDataResult struct {
	Action  Action            `json:"action"`
	Status  PartialDataStatus `json:"status"`
	Rows    []RowOutcome      `json:"rows,omitempty"`
	Message string            `json:"message,omitempty"`
}

// IsSuccessful reports whether the mutation was applied.
func (r PartialDataResult) IsSuccessful() bool {
	return r.Status == PartialDataSuccessOverwriteOrLog
}

// AcceptResult reports which steps of a contract acceptance completed.
type AcceptResult struct {
	IsContractUpdated bool   `json:"is_contract_updated"`
	DBIsCreated       bool   `json:"db_is_created"`
	IsHostNotified    bool   `json:"is_host_notified"`
	Message           string `json:"message,omitempty"`
}

// Succeeded reports whether every step completed.
func (r AcceptResult) Succeeded() bool {
	return r.IsContractUpdated && r.DBIsCreated && r.IsHostNotified
}
