package harness

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

// errNoScenarios is returned by RunDir for a directory without scenarios.
var errNoScenarios = errors.New("no scenario files found")

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one failed scenario of a suite.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// RunDir loads and runs every *.yaml scenario in dir, in file name order.
// A scenario that cannot be loaded or run is a harness error; a scenario
// whose expectations fail is reported in the result.
func RunDir(dir string) (*SuiteResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, errNoScenarios)
	}
	sort.Strings(paths)

	suite := &SuiteResult{}
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		result, err := Run(scenario)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		suite.Total++
		if result.Pass {
			suite.Passed++
			continue
		}
		suite.Failed++
		suite.Failures = append(suite.Failures, ScenarioFailure{
			Scenario: scenario.Name,
			Path:     path,
			Errors:   result.Errors,
		})
	}
	return suite, nil
}
