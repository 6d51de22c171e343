package harness

import "github.com/dynamoRando/rcd-sub004/internal/notify"

// StepResult records what one flow step did.
type StepResult struct {
	Index  int    `json:"index"`
	Do     string `json:"do"`
	Status string `json:"status,omitempty"`
	Rows   int    `json:"rows"`
	Failed int    `json:"failed"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace is every notifier call in order, including contract setup.
	Trace []notify.Call `json:"trace"`

	Steps []StepResult `json:"steps"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []notify.Call{}, Steps: []StepResult{}, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
