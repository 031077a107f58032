package harness

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/reconcile"
	"github.com/roach88/replica/internal/tracker"
)

// Epoch is time t0 of scenario timestamps. "tN" means Epoch plus N hours.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultEntityType is used when a scenario names no entity type.
const DefaultEntityType entity.Type = "items"

// Scenario defines a sequence of sync cycles against a fake remote source
// and asserts on each cycle and on the final local state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// EntityType is the collection being synced. Defaults to "items".
	EntityType entity.Type `yaml:"entity_type,omitempty"`

	// Setup establishes the state before the first cycle.
	Setup Setup `yaml:"setup,omitempty"`

	// Steps run in order; each runs exactly one cycle.
	Steps []Step `yaml:"steps"`

	// Assertions validate the state after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup is written directly, without running a cycle.
type Setup struct {
	// Local rows already replicated.
	Local []Item `yaml:"local,omitempty"`

	// Remote entities the source starts with.
	Remote []Item `yaml:"remote,omitempty"`

	// Watermark of the collection, "tN" or empty for unset.
	Watermark string `yaml:"watermark,omitempty"`
}

// Item is one entity in scenario notation.
type Item struct {
	ID     string         `yaml:"id"`
	At     string         `yaml:"at"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Step changes the remote or the local store and then runs one cycle.
type Step struct {
	// Put adds or replaces remote entities.
	Put []Item `yaml:"put,omitempty"`

	// Remove deletes remote entities by id.
	Remove []string `yaml:"remove,omitempty"`

	// FailFetch makes the incremental fetch fail with this message.
	FailFetch string `yaml:"fail_fetch,omitempty"`

	// FailList makes the id listing fail with this message.
	FailList string `yaml:"fail_list,omitempty"`

	// Faults arm store failures for this and later cycles.
	Faults []Fault `yaml:"faults,omitempty"`

	// Heal disarms every store fault and clears source failures before
	// the step's own changes are applied.
	Heal bool `yaml:"heal,omitempty"`

	// Expect validates the cycle result. Nil skips validation.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Fault makes one store write fail.
type Fault struct {
	Op string `yaml:"op"`
	ID string `yaml:"id"`
}

// Expect describes the expected result of one cycle.
type Expect struct {
	// Outcome is committed, partially_failed, network_error or aborted.
	Outcome string `yaml:"outcome"`

	// Operations lists the attempted writes in order, as "<kind> <id>".
	// Nil skips the check; an empty list requires no writes.
	Operations []string `yaml:"operations,omitempty"`

	// Failed lists the failed writes, as "<kind> <id>".
	Failed []string `yaml:"failed,omitempty"`

	// Watermark after the cycle, "tN" or "unset". Empty skips the check.
	Watermark string `yaml:"watermark,omitempty"`
}

// Assertion validates the state after the last step.
type Assertion struct {
	// Type is local, failures, watermark or state.
	Type string `yaml:"type"`

	// Rows maps id to "tN" (used by local). The local collection must
	// hold exactly these rows.
	Rows map[string]string `yaml:"rows,omitempty"`

	// IDs are the expected failed item ids (used by failures).
	IDs []string `yaml:"ids,omitempty"`

	// At is the expected watermark, "tN" or "unset" (used by watermark).
	At string `yaml:"at,omitempty"`

	// ID and State select one item's sync state (used by state).
	ID    string `yaml:"id,omitempty"`
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertLocal     = "local"
	AssertFailures  = "failures"
	AssertWatermark = "watermark"
	AssertState     = "state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.EntityType == "" {
		scenario.EntityType = DefaultEntityType
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if err := s.EntityType.Validate(); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if err := validateItems("setup.local", s.Setup.Local); err != nil {
		return err
	}
	if err := validateItems("setup.remote", s.Setup.Remote); err != nil {
		return err
	}
	if s.Setup.Watermark != "" {
		if _, err := ParseAt(s.Setup.Watermark); err != nil {
			return fmt.Errorf("setup.watermark: %w", err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateItems(field string, items []Item) error {
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if item.ID == "" {
			return fmt.Errorf("%s[%d]: id is required", field, i)
		}
		if seen[item.ID] {
			return fmt.Errorf("%s[%d]: duplicate id %q", field, i, item.ID)
		}
		seen[item.ID] = true
		if _, err := ParseAt(item.At); err != nil {
			return fmt.Errorf("%s[%d]: %w", field, i, err)
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	if err := validateItems(fmt.Sprintf("steps[%d].put", index), step.Put); err != nil {
		return err
	}
	for j, f := range step.Faults {
		if _, err := reconcile.ParseKind(f.Op); err != nil {
			return fmt.Errorf("steps[%d].faults[%d]: %w", index, j, err)
		}
		if f.ID == "" {
			return fmt.Errorf("steps[%d].faults[%d]: id is required", index, j)
		}
	}

	if step.Expect == nil {
		return nil
	}
	if step.Expect.Outcome == "" {
		return fmt.Errorf("steps[%d].expect: outcome is required", index)
	}
	if !validOutcomes[step.Expect.Outcome] {
		return fmt.Errorf("steps[%d].expect: unknown outcome %q", index, step.Expect.Outcome)
	}
	if w := step.Expect.Watermark; w != "" && w != unsetWatermark {
		if _, err := ParseAt(w); err != nil {
			return fmt.Errorf("steps[%d].expect.watermark: %w", index, err)
		}
	}
	return nil
}

var validOutcomes = map[string]bool{
	"committed":        true,
	"partially_failed": true,
	"network_error":    true,
	"aborted":          true,
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertLocal:
		for id, at := range a.Rows {
			if _, err := ParseAt(at); err != nil {
				return fmt.Errorf("assertions[%d]: row %q: %w", index, id, err)
			}
		}
	case AssertFailures:
	case AssertWatermark:
		if a.At == "" {
			return fmt.Errorf("assertions[%d]: at is required for watermark", index)
		}
		if a.At != unsetWatermark {
			if _, err := ParseAt(a.At); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertState:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for state", index)
		}
		if _, err := tracker.ParseState(a.State); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

const unsetWatermark = "unset"

// ParseAt converts "tN" to Epoch plus N hours. RFC 3339 timestamps are
// accepted as well.
func ParseAt(s string) (time.Time, error) {
	if n, ok := strings.CutPrefix(s, "t"); ok {
		hours, err := strconv.Atoi(n)
		if err == nil && hours >= 0 {
			return Epoch.Add(time.Duration(hours) * time.Hour), nil
		}
	}
	t, err := entity.ParseTimestamp(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want tN or RFC 3339", s)
	}
	return t, nil
}

// FormatAt is the inverse of ParseAt. The zero time formats as "unset".
func FormatAt(t time.Time) string {
	if t.IsZero() {
		return unsetWatermark
	}
	d := t.Sub(Epoch)
	if d >= 0 && d%time.Hour == 0 {
		return fmt.Sprintf("t%d", d/time.Hour)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (item Item) record() (entity.Record, error) {
	at, err := ParseAt(item.At)
	if err != nil {
		return entity.Record{}, err
	}
	fields := item.Fields
	if fields == nil {
		fields = map[string]any{"name": item.ID}
	}
	return entity.NewRecord(item.ID, at, fields), nil
}
