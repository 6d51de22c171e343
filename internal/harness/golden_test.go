package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamoRando/rcd-sub004/internal/notify"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot(t *testing.T) {
	result := NewResult()
	result.Trace = []notify.Call{{Name: "notify_host_of_updated_hash", Addr: HostAddr, Table: "T", RowID: 1, Detail: "hash=1", Result: "ok"}}
	result.Steps = []StepResult{{Index: 0, Do: StepParticipantExec, Rows: 1}}

	data, err := Snapshot("s", result)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var snap TraceSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "s", snap.ScenarioName)
	assert.Equal(t, result.Trace, snap.Trace)
	assert.Equal(t, result.Steps, snap.Steps)
	assert.NotContains(t, string(data), `"status"`)
}
