package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/dynamoRando/rcd-sub004/internal/notify"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string        `json:"scenario_name"`
	Trace        []notify.Call `json:"trace"`
	Steps        []StepResult  `json:"steps"`
}

// Snapshot renders result as indented JSON with a trailing newline. The
// output holds the scenario name, the recorded transport calls in order and
// the per-step results, which is everything a golden file pins down.
func Snapshot(name string, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(TraceSnapshot{ScenarioName: name, Trace: result.Trace, Steps: result.Steps}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The golden file captures every call that crossed the transport between the
// two nodes, so a change in push order, a dropped notification or an extra
// retry shows up as a diff even when the step expectations still pass.
//
// Parameters:
//   - t: testing.T instance for test assertions
//   - scenario: the scenario to execute
//
// Returns the Result, or an error if the scenario could not be set up.
// Test failure (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
//
// Parameters:
//   - t: testing.T instance for test assertions
//   - scenarioName: name used for the golden file (without extension)
//   - result: the result from running a scenario
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
