package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/replica/internal/entity"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	EntityType   entity.Type  `json:"entity_type"`
	Trace        []CycleTrace `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to plain JSON values, the only
// input entity.MarshalCanonical accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	cycles := make([]any, len(s.Trace))
	for i, c := range s.Trace {
		cycles[i] = map[string]any{
			"step":       c.Step,
			"cycle_id":   c.CycleID,
			"outcome":    c.Outcome,
			"operations": stringList(c.Operations),
			"failed":     stringList(c.Failed),
			"applied":    c.Applied,
			"watermark":  c.Watermark,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"entity_type":   string(s.EntityType),
		"trace":         cycles,
	}
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// MarshalTrace encodes a scenario trace as canonical JSON.
func MarshalTrace(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		EntityType:   scenario.EntityType,
		Trace:        result.Trace,
	}
	return entity.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	traceJSON, err := MarshalTrace(scenario, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return result, nil
}
