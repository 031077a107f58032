package engine

import "fmt"

// Phase is the current step of a controller's cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseReconciling
	PhaseApplying
	PhaseCommitted
	PhasePartiallyFailed
)

var phaseNames = map[Phase]string{
	PhaseIdle:            "idle",
	PhaseFetching:        "fetching",
	PhaseReconciling:     "reconciling",
	PhaseApplying:        "applying",
	PhaseCommitted:       "committed",
	PhasePartiallyFailed: "partially_failed",
}

// String returns the snake_case phase name.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Outcome is the terminal result of a cycle.
type Outcome int

const (
	// OutcomeCommitted: every operation applied.
	OutcomeCommitted Outcome = iota + 1

	// OutcomePartiallyFailed: at least one operation failed; the rest applied.
	OutcomePartiallyFailed

	// OutcomeNetworkError: fetching failed; nothing applied.
	OutcomeNetworkError

	// OutcomeAborted: cancelled during fetching, or a local failure before
	// applying; nothing applied.
	OutcomeAborted
)

var outcomeNames = map[Outcome]string{
	OutcomeCommitted:       "committed",
	OutcomePartiallyFailed: "partially_failed",
	OutcomeNetworkError:    "network_error",
	OutcomeAborted:         "aborted",
}

// String returns the snake_case outcome name.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
