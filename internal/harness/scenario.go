package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// Scenario is a two-node conformance scenario. Run provisions the tables on
// a host, contracts them to one participant and then executes Flow.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Database is the shared database name. Defaults to "hr".
	Database string `yaml:"database,omitempty"`

	// RemoteDelete is the contract's remote delete behavior. Defaults to Ignore.
	RemoteDelete string `yaml:"remote_delete,omitempty"`

	// Tables are created on the host before the contract is generated.
	Tables []TableSpec `yaml:"tables"`

	// Flow runs after the contract is accepted.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state and the notifier trace.
	Assertions []Assertion `yaml:"assertions"`
}

// TableSpec declares one host table.
type TableSpec struct {
	Name    string   `yaml:"name"`
	Policy  string   `yaml:"policy"`
	Columns []string `yaml:"columns"` // NAME:TYPE[:pk][:notnull]
}

// Step is one flow action.
type Step struct {
	// Do selects the action; see the Step* constants.
	Do string `yaml:"do"`

	// SQL is the statement for host_exec and participant_exec.
	SQL string `yaml:"sql,omitempty"`

	// Table and RowID address approve, reject and set_behavior.
	Table string `yaml:"table,omitempty"`
	RowID int64  `yaml:"row_id,omitempty"`

	// Behaviors for set_behavior, keyed updates_from_host, deletes_from_host,
	// updates_to_host or deletes_to_host.
	Behaviors map[string]string `yaml:"behaviors,omitempty"`

	// Value is the remote delete behavior for set_remote_delete.
	Value string `yaml:"value,omitempty"`

	// Node is "host" or "participant" for node_down and node_up.
	Node string `yaml:"node,omitempty"`

	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect checks a step's outcome. Unset fields are not checked.
type StepExpect struct {
	// Error is the expected error code. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Status is the expected PartialDataStatus of the first push or of the
	// approve/reject result.
	Status string `yaml:"status,omitempty"`

	// Rows is the number of rows changed locally.
	Rows *int `yaml:"rows,omitempty"`

	// Failed is the number of pushes or host notifications that failed.
	Failed *int `yaml:"failed,omitempty"`
}

// Step kinds.
const (
	StepHostExec        = "host_exec"
	StepParticipantExec = "participant_exec"
	StepSetBehavior     = "set_behavior"
	StepSetRemoteDelete = "set_remote_delete"
	StepApprove         = "approve"
	StepReject          = "reject"
	StepNodeDown        = "node_down"
	StepNodeUp          = "node_up"
)

// Node names used by steps and assertions.
const (
	NodeHost        = "host"
	NodeParticipant = "participant"
)

// Assertion validates final state or the recorded notifier trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Node is "host" or "participant" (row, metadata). Defaults to participant.
	Node string `yaml:"node,omitempty"`

	Table string `yaml:"table,omitempty"`
	RowID int64  `yaml:"row_id,omitempty"`

	// Expect holds column values (row). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts the row or metadata entry does not exist.
	Absent bool `yaml:"absent,omitempty"`

	// Status is the expected pending action status (pending).
	Status string `yaml:"status,omitempty"`

	// Ref selects the host's entry for the participant instead of its own
	// entry (metadata).
	Ref bool `yaml:"ref,omitempty"`

	// Deleted is the expected tombstone flag (metadata).
	Deleted *bool `yaml:"deleted,omitempty"`

	// HashMatches asserts the entry's hash equals the participant's own
	// hash for the row (metadata).
	HashMatches bool `yaml:"hash_matches,omitempty"`

	// Call and Count are used by call_count; Count also by history_count.
	Call  string `yaml:"call,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Calls is the expected call order (call_order). Other calls may
	// appear in between.
	Calls []string `yaml:"calls,omitempty"`
}

// Assertion types.
const (
	AssertRow          = "row"
	AssertPending      = "pending"
	AssertMetadata     = "metadata"
	AssertHistoryCount = "history_count"
	AssertCallCount    = "call_count"
	AssertCallOrder    = "call_order"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
//
// The database name defaults to "hr" and the remote delete behavior to
// Ignore. Each table needs a valid policy and schema, each step a known
// action and each assertion a known kind.
//
// Returns error if the YAML is malformed, contains unknown fields, or fails
// validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if scenario.Database == "" {
		scenario.Database = "hr"
	}
	if scenario.RemoteDelete == "" {
		scenario.RemoteDelete = model.RemoteDeleteIgnore.String()
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	if _, err := model.ParseRemoteDeleteBehavior(s.RemoteDelete); err != nil {
		return fmt.Errorf("remote_delete: %w", err)
	}
	for i, t := range s.Tables {
		if _, err := model.ParseLogicalStoragePolicy(t.Policy); err != nil {
			return fmt.Errorf("tables[%d]: %w", i, err)
		}
		if _, err := model.ParseTableSchema(t.Name, t.Columns); err != nil {
			return fmt.Errorf("tables[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step, i); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s Step, index int) error {
	switch s.Do {
	case StepHostExec, StepParticipantExec:
		if s.SQL == "" {
			return fmt.Errorf("flow[%d]: sql is required for %s", index, s.Do)
		}
	case StepSetBehavior:
		if s.Table == "" || len(s.Behaviors) == 0 {
			return fmt.Errorf("flow[%d]: table and behaviors are required for set_behavior", index)
		}
		for k := range s.Behaviors {
			if _, ok := behaviorSetters[k]; !ok {
				return fmt.Errorf("flow[%d]: unknown behavior %q", index, k)
			}
		}
	case StepSetRemoteDelete:
		if _, err := model.ParseRemoteDeleteBehavior(s.Value); err != nil {
			return fmt.Errorf("flow[%d]: %w", index, err)
		}
	case StepApprove, StepReject:
		if s.Table == "" || s.RowID <= 0 {
			return fmt.Errorf("flow[%d]: table and row_id are required for %s", index, s.Do)
		}
	case StepNodeDown, StepNodeUp:
		if s.Node != NodeHost && s.Node != NodeParticipant {
			return fmt.Errorf("flow[%d]: node must be host or participant", index)
		}
	default:
		return fmt.Errorf("flow[%d]: unknown step %q", index, s.Do)
	}
	if s.Expect != nil && s.Expect.Status != "" {
		if _, err := model.ParsePartialDataStatus(s.Expect.Status); err != nil {
			return fmt.Errorf("flow[%d]: %w", index, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	if a.Node != "" && a.Node != NodeHost && a.Node != NodeParticipant {
		return fmt.Errorf("assertions[%d]: node must be host or participant", index)
	}
	switch a.Type {
	case AssertRow:
		if a.Table == "" || a.RowID <= 0 {
			return fmt.Errorf("assertions[%d]: table and row_id are required for row", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for row", index)
		}
	case AssertPending:
		if a.Table == "" || a.RowID <= 0 {
			return fmt.Errorf("assertions[%d]: table and row_id are required for pending", index)
		}
		if _, err := model.ParsePartialDataStatus(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertMetadata:
		if a.Table == "" || a.RowID <= 0 {
			return fmt.Errorf("assertions[%d]: table and row_id are required for metadata", index)
		}
	case AssertHistoryCount:
		if a.Table == "" || a.Count < 0 {
			return fmt.Errorf("assertions[%d]: table and a non-negative count are required for history_count", index)
		}
	case AssertCallCount:
		if a.Call == "" || a.Count < 0 {
			return fmt.Errorf("assertions[%d]: call and a non-negative count are required for call_count", index)
		}
	case AssertCallOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for call_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
