package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/replica/internal/entity"
	"github.com/roach88/replica/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []CycleTrace // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, c := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s ops=%v failed=%v watermark=%s\n",
				c.Step, c.CycleID, c.Outcome, c.Operations, c.Failed, c.Watermark)
		}
	}

	return buf.String()
}

// AssertionContext provides store access for state assertions.
type AssertionContext struct {
	Ctx        context.Context
	Store      *store.Store
	Collection *store.Collection[entity.Record]
	EntityType entity.Type
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		if actx == nil || actx.Store == nil || actx.Collection == nil {
			err = fmt.Errorf("assertion[%d]: %s requires store context", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertLocal:
				err = assertLocal(actx, assertion, result.Trace)
			case AssertFailures:
				err = assertFailures(actx, assertion, result.Trace)
			case AssertWatermark:
				err = assertWatermark(actx, assertion, result.Trace)
			case AssertState:
				err = assertState(actx, assertion, result.Trace)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertLocal checks that the local collection holds exactly the
// expected rows with the expected lastUpdated.
func assertLocal(actx *AssertionContext, assertion Assertion, trace []CycleTrace) error {
	all, err := actx.Collection.QueryAll(actx.Ctx)
	if err != nil {
		return fmt.Errorf("local assertion: %w", err)
	}

	actual := make(map[string]string, len(all))
	for _, s := range all {
		actual[s.ID()] = FormatAt(s.LastUpdated())
	}
	expected := make(map[string]string, len(assertion.Rows))
	for id, at := range assertion.Rows {
		t, err := ParseAt(at)
		if err != nil {
			return err
		}
		expected[id] = FormatAt(t)
	}

	if !maps.Equal(actual, expected) {
		return &AssertionError{
			Type:     AssertLocal,
			Expected: formatRows(expected),
			Actual:   formatRows(actual),
			Trace:    trace,
		}
	}
	return nil
}

// assertFailures checks the ids in the failed item ledger.
func assertFailures(actx *AssertionContext, assertion Assertion, trace []CycleTrace) error {
	items, err := actx.Store.ListFailures(actx.Ctx, actx.EntityType)
	if err != nil {
		return fmt.Errorf("failures assertion: %w", err)
	}

	actual := make([]string, 0, len(items))
	for _, item := range items {
		actual = append(actual, item.ID)
	}
	expected := slices.Clone(assertion.IDs)
	slices.Sort(expected)
	if expected == nil {
		expected = []string{}
	}

	if !slices.Equal(actual, expected) {
		return &AssertionError{
			Type:     AssertFailures,
			Expected: fmt.Sprintf("failed ids %v", expected),
			Actual:   fmt.Sprintf("failed ids %v", actual),
			Trace:    trace,
		}
	}
	return nil
}

// assertWatermark checks the stored watermark.
func assertWatermark(actx *AssertionContext, assertion Assertion, trace []CycleTrace) error {
	wm, err := actx.Store.GetWatermark(actx.Ctx, actx.EntityType)
	if err != nil {
		return fmt.Errorf("watermark assertion: %w", err)
	}

	expected := assertion.At
	if expected != unsetWatermark {
		t, err := ParseAt(expected)
		if err != nil {
			return err
		}
		expected = FormatAt(t)
	}

	if actual := FormatAt(wm); actual != expected {
		return &AssertionError{
			Type:     AssertWatermark,
			Expected: "watermark " + expected,
			Actual:   "watermark " + actual,
			Trace:    trace,
		}
	}
	return nil
}

// assertState checks one item's sync state.
func assertState(actx *AssertionContext, assertion Assertion, trace []CycleTrace) error {
	state, err := actx.Store.GetState(actx.Ctx, actx.EntityType, assertion.ID)
	if err != nil {
		return fmt.Errorf("state assertion: %w", err)
	}

	if string(state) != assertion.State {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s in state %s", assertion.ID, assertion.State),
			Actual:   fmt.Sprintf("%s in state %s", assertion.ID, state),
			Trace:    trace,
		}
	}
	return nil
}

// checkExpect compares one cycle against its step's expectations.
func checkExpect(index int, expect *Expect, trace CycleTrace) []string {
	var errs []string
	mismatch := func(field string, want, got any) {
		errs = append(errs, fmt.Sprintf("steps[%d].expect.%s: expected %v, got %v", index, field, want, got))
	}

	if trace.Outcome != expect.Outcome {
		mismatch("outcome", expect.Outcome, trace.Outcome)
	}
	if expect.Operations != nil && !slices.Equal(expect.Operations, trace.Operations) {
		mismatch("operations", expect.Operations, trace.Operations)
	}
	if expect.Failed != nil && !slices.Equal(expect.Failed, trace.Failed) {
		mismatch("failed", expect.Failed, trace.Failed)
	}
	if expect.Watermark != "" {
		want := expect.Watermark
		if want != unsetWatermark {
			if t, err := ParseAt(want); err == nil {
				want = FormatAt(t)
			}
		}
		if want != trace.Watermark {
			mismatch("watermark", want, trace.Watermark)
		}
	}
	return errs
}

func formatRows(rows map[string]string) string {
	if len(rows) == 0 {
		return "no rows"
	}
	parts := make([]string, 0, len(rows))
	for _, id := range slices.Sorted(maps.Keys(rows)) {
		parts = append(parts, id+"@"+rows[id])
	}
	return strings.Join(parts, ", ")
}
