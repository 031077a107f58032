package harness

// CycleTrace records one cycle of a scenario run.
type CycleTrace struct {
	// Step is the zero-based index of the step that ran the cycle.
	Step    int    `json:"step"`
	CycleID string `json:"cycle_id"`
	Outcome string `json:"outcome"`

	// Operations are the attempted store writes in order, as "<kind> <id>".
	Operations []string `json:"operations"`

	// Failed are the writes that failed, as "<kind> <id>".
	Failed []string `json:"failed"`

	Applied   int    `json:"applied"`
	Watermark string `json:"watermark"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation, invariant and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one entry per cycle, in order.
	Trace []CycleTrace `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []CycleTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCycle appends a cycle to the trace.
func (r *Result) AddCycle(c CycleTrace) {
	r.Trace = append(r.Trace, c)
}
