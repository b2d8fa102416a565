package harness

import (
	"fmt"

	"github.com/roach88/gatewright/internal/wf"
)

// StepTrace records the observable outcome of one scenario step: the
// workflow error code (empty on success), the run phase and status
// after the step, and the IDs minted by a registration.
type StepTrace struct {
	Op     string    `json:"op"`
	Error  string    `json:"error,omitempty"`
	Phase  wf.Phase  `json:"phase"`
	Status wf.Status `json:"status"`
	NewIDs []string  `json:"new_ids,omitempty"`
}

// Result is the outcome of running a scenario. Errors holds
// expectation mismatches; infrastructure failures abort the run
// instead of landing here.
type Result struct {
	Scenario string
	Pass     bool
	Trace    []StepTrace
	Errors   []string
	Final    *wf.RunView
}

// AddError records an expectation mismatch and fails the result.
func (r *Result) AddError(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Snapshot renders the result as canonical JSON for golden
// comparison: the scenario name, the per-step trace, and the final
// folded run state.
func Snapshot(r *Result) ([]byte, error) {
	if r.Final == nil {
		return nil, fmt.Errorf("snapshot requires a final run state")
	}
	return wf.MarshalCanonicalValue(map[string]any{
		"scenario":    r.Scenario,
		"trace":       r.Trace,
		"final_state": r.Final,
	})
}
