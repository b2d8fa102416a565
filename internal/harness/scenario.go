package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is one YAML-described workflow lifecycle. Steps run in
// order against a fresh engine; the first step must be a start.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// RunID is the fixed run ID handed to the engine's generator.
	// Defaults to "run-0001".
	RunID string `yaml:"run_id,omitempty"`

	Steps []Step `yaml:"steps"`
}

// ComponentStep describes one planned component inside a propose_plan
// step.
type ComponentStep struct {
	Name      string   `yaml:"name"`
	Purpose   string   `yaml:"purpose,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// Step is one operation in a scenario. Op selects the operation; the
// remaining fields carry its arguments. Findings and drift are
// addressed by their natural key (location/line/category, claim_ref)
// so scenario authors never spell out fingerprints.
type Step struct {
	Op string `yaml:"op"`

	SubjectRef string `yaml:"subject_ref,omitempty"`
	To         string `yaml:"to,omitempty"`
	Reason     string `yaml:"reason,omitempty"`

	LocationRef string `yaml:"location_ref,omitempty"`
	Line        int    `yaml:"line,omitempty"`
	Category    string `yaml:"category,omitempty"`
	Severity    string `yaml:"severity,omitempty"`
	Description string `yaml:"description,omitempty"`

	ClaimRef string `yaml:"claim_ref,omitempty"`
	Expected string `yaml:"expected,omitempty"`
	Observed string `yaml:"observed,omitempty"`

	Decision   string `yaml:"decision,omitempty"`
	Resolution string `yaml:"resolution,omitempty"`

	Components []ComponentStep `yaml:"components,omitempty"`
	Version    int             `yaml:"version,omitempty"`
	Notes      string          `yaml:"notes,omitempty"`

	Component string `yaml:"component,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Item      string `yaml:"item,omitempty"`
	Pass      bool   `yaml:"pass,omitempty"`

	// ExpectError asserts that the operation is rejected with this
	// workflow error code. An empty value asserts success.
	ExpectError string `yaml:"expect_error,omitempty"`

	// ExpectPhase and ExpectStatus, when set, are checked against the
	// run view after the step.
	ExpectPhase  string `yaml:"expect_phase,omitempty"`
	ExpectStatus string `yaml:"expect_status,omitempty"`
}

// Supported step operations.
const (
	OpStart        = "start"
	OpTransition   = "transition"
	OpFinding      = "register_finding"
	OpDrift        = "register_drift"
	OpDecide       = "decide"
	OpResolve      = "resolve"
	OpProposePlan  = "propose_plan"
	OpApprovePlan  = "approve_plan"
	OpDeliver      = "deliver"
	OpVerify       = "verify"
	OpChecklist    = "checklist"
	OpAbort        = "abort"
	OpVerifyReplay = "verify_replay"
)

var knownOps = map[string]bool{
	OpStart:        true,
	OpTransition:   true,
	OpFinding:      true,
	OpDrift:        true,
	OpDecide:       true,
	OpResolve:      true,
	OpProposePlan:  true,
	OpApprovePlan:  true,
	OpDeliver:      true,
	OpVerify:       true,
	OpChecklist:    true,
	OpAbort:        true,
	OpVerifyReplay: true,
}

// LoadScenario reads and validates a single scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// LoadScenarios reads every *.yaml scenario under dir, sorted by
// filename.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario requires a name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario requires at least one step")
	}
	if s.Steps[0].Op != OpStart {
		return fmt.Errorf("first step must be %q, got %q", OpStart, s.Steps[0].Op)
	}
	for i, step := range s.Steps {
		if !knownOps[step.Op] {
			return fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
		if i > 0 && step.Op == OpStart {
			return fmt.Errorf("step %d: a scenario drives a single run", i)
		}
	}
	return nil
}

func (s *Scenario) runID() string {
	if s.RunID != "" {
		return s.RunID
	}
	return "run-0001"
}
