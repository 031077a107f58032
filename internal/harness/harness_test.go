package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "file name must match scenario name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/partial_failure_retry.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong
description: "Expectations that do not hold"
setup:
  remote: [{id: A, at: t1}]
steps:
  - expect:
      outcome: partially_failed
      operations: [insert B]
      failed: [insert A]
      watermark: t9
assertions:
  - {type: local, rows: {B: t1}}
  - {type: failures, ids: [A]}
  - {type: watermark, at: unset}
  - {type: state, id: A, state: error}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err, "unmet expectations are not harness errors")
	assert.False(t, result.Pass)

	all := strings.Join(result.Errors, "\n")
	assert.Contains(t, all, "steps[0].expect.outcome: expected partially_failed, got committed")
	assert.Contains(t, all, "steps[0].expect.operations: expected [insert B], got [insert A]")
	assert.Contains(t, all, "steps[0].expect.failed: expected [insert A], got []")
	assert.Contains(t, all, "steps[0].expect.watermark: expected t9, got t1")
	assert.Contains(t, all, "Assertion failed: local")
	assert.Contains(t, all, "Actual: A@t1")
	assert.Contains(t, all, "Assertion failed: failures")
	assert.Contains(t, all, "Assertion failed: watermark")
	assert.Contains(t, all, "Assertion failed: state")
	assert.Len(t, result.Errors, 8)
}

func TestRun_TraceRecordsEveryCycle(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/network_error.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, "cycle-1", result.Trace[0].CycleID)
	assert.Equal(t, "network_error", result.Trace[0].Outcome)
	assert.Equal(t, "t1", result.Trace[0].Watermark, "watermark kept across a failed fetch")
	assert.Equal(t, "network_error", result.Trace[1].Outcome)
	assert.Equal(t, "committed", result.Trace[2].Outcome)
	assert.Equal(t, []string{"insert B"}, result.Trace[2].Operations)
}

func TestRunDir(t *testing.T) {
	suite, err := RunDir("testdata/scenarios")
	require.NoError(t, err)
	assert.Positive(t, suite.Total)
	assert.Equal(t, suite.Total, suite.Passed)
	assert.Zero(t, suite.Failed)
	assert.Empty(t, suite.Failures)
}

func TestRunDir_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
name: passes
description: "Nothing to sync"
steps:
  - expect: {outcome: committed, operations: []}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(`
name: fails
description: "Wrong outcome"
steps:
  - expect: {outcome: aborted}
`), 0o644))

	suite, err := RunDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, suite.Total)
	assert.Equal(t, 1, suite.Passed)
	require.Len(t, suite.Failures, 1)
	assert.Equal(t, "fails", suite.Failures[0].Scenario)
	assert.Contains(t, suite.Failures[0].Errors[0], "expected aborted, got committed")
}

func TestRunDir_Errors(t *testing.T) {
	_, err := RunDir(t.TempDir())
	assert.ErrorIs(t, err, errNoScenarios)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: x\n"), 0o644))
	_, err = RunDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}
