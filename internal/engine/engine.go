package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/gatewright/internal/store"
	"github.com/roach88/gatewright/internal/wf"
)

// Engine applies workflow operations to runs backed by the ledger store.
//
// Thread-safety model:
//   - All exported operations are safe from any goroutine
//   - Operations on the same run serialize on a per-run mutex
//   - Operations on different runs proceed concurrently
type Engine struct {
	store  *store.Store
	runIDs RunIDGenerator
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunIDGenerator replaces the run ID generator.
// Tests use FixedGenerator for deterministic ledgers.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithClock replaces the timestamp source.
// Tests freeze it so ledger entries compare byte for byte.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine backed by the given store.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		runIDs: UUIDv7Generator{},
		now:    time.Now,
		logger: slog.Default(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lockRun returns the mutex for a run, creating it on first use.
// Lock entries are never removed; a workflow engine tracks few enough
// runs that the map stays small.
func (e *Engine) lockRun(runID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[runID] = l
	}
	return l
}

// loadRun reads and folds the run's ledger. The caller must hold the
// run's lock.
func (e *Engine) loadRun(ctx context.Context, runID string) (*wf.RunView, error) {
	entries, err := e.store.ReadEntries(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read ledger for run %s: %w", runID, err)
	}
	return Fold(runID, entries)
}

// append writes one entry to the run's ledger. The caller must hold the
// run's lock.
func (e *Engine) append(ctx context.Context, runID string, kind wf.EntryKind, payload any) error {
	seq, err := e.store.Append(ctx, runID, e.now(), kind, payload)
	if err != nil {
		return fmt.Errorf("append %s for run %s: %w", kind, runID, err)
	}
	e.logger.Debug("ledger entry appended",
		slog.String("run_id", runID),
		slog.Int64("seq", seq),
		slog.String("kind", string(kind)))
	return nil
}

// StartRun creates a new run in the doc discovery phase.
func (e *Engine) StartRun(ctx context.Context, subjectRef string) (*wf.RunView, error) {
	if subjectRef == "" {
		return nil, NewInvalidDecision("", "subject_ref must not be empty")
	}
	runID := e.runIDs.Generate()

	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.append(ctx, runID, wf.KindRunStarted, wf.RunStartedPayload{SubjectRef: subjectRef}); err != nil {
		return nil, err
	}
	e.logger.Info("run started",
		slog.String("run_id", runID),
		slog.String("subject_ref", subjectRef))
	return e.loadRun(ctx, runID)
}

// GetState folds the run's ledger and returns the materialized view.
func (e *Engine) GetState(ctx context.Context, runID string) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()
	return e.loadRun(ctx, runID)
}

// ListRuns returns the IDs of all runs in start order.
func (e *Engine) ListRuns(ctx context.Context) ([]string, error) {
	return e.store.ListRuns(ctx)
}

// RegisterFindings admits findings into a run during the discovery
// phases. Registration is idempotent: a finding whose fingerprint is
// already on the ledger is skipped. The returned IDs cover only the
// findings that were actually new.
func (e *Engine) RegisterFindings(ctx context.Context, runID string, findings []wf.Finding) ([]string, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	if view.Phase != wf.PhaseDocDiscovery && view.Phase != wf.PhaseIssueDiscovery {
		return nil, NewGuardViolation(runID, view.Phase, "findings register only during discovery phases")
	}

	var newIDs []string
	for _, f := range findings {
		if f.ID == "" {
			f.ID, err = wf.FindingFingerprint(f.LocationRef, f.Line, f.Category)
			if err != nil {
				return newIDs, err
			}
		}
		if view.FindingByID(f.ID) != nil {
			continue
		}
		if f.Decision == "" {
			f.Decision = wf.DecisionPending
		}
		if err := e.append(ctx, runID, wf.KindFindingRegistered, wf.FindingRegisteredPayload{Finding: f}); err != nil {
			return newIDs, err
		}
		view.Findings = append(view.Findings, f)
		newIDs = append(newIDs, f.ID)
	}

	e.logger.Info("findings registered",
		slog.String("run_id", runID),
		slog.Int("submitted", len(findings)),
		slog.Int("new", len(newIDs)))
	return newIDs, nil
}

// RegisterDrift admits drift records into a run during doc discovery.
// Idempotent the same way RegisterFindings is.
func (e *Engine) RegisterDrift(ctx context.Context, runID string, drifts []wf.DriftRecord) ([]string, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	if view.Phase != wf.PhaseDocDiscovery {
		return nil, NewGuardViolation(runID, view.Phase, "drift records register only during doc discovery")
	}

	var newIDs []string
	for _, d := range drifts {
		if d.ID == "" {
			d.ID, err = wf.DriftFingerprint(d.ClaimRef)
			if err != nil {
				return newIDs, err
			}
		}
		if view.DriftByID(d.ID) != nil {
			continue
		}
		if d.Resolution == "" {
			d.Resolution = wf.ResolutionPending
		}
		if err := e.append(ctx, runID, wf.KindDriftRegistered, wf.DriftRegisteredPayload{Drift: d}); err != nil {
			return newIDs, err
		}
		view.Drifts = append(view.Drifts, d)
		newIDs = append(newIDs, d.ID)
	}

	e.logger.Info("drift registered",
		slog.String("run_id", runID),
		slog.Int("submitted", len(drifts)),
		slog.Int("new", len(newIDs)))
	return newIDs, nil
}

// SubmitFindingDecision records a human decision against a pending
// finding. Rejected submissions leave the ledger untouched.
func (e *Engine) SubmitFindingDecision(ctx context.Context, runID, findingID string, decision wf.FindingDecision, reason string) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	if err := validateFindingDecision(view, findingID, decision, reason); err != nil {
		return nil, err
	}

	payload := wf.FindingDecisionPayload{FindingID: findingID, Decision: decision, Reason: reason}
	if err := e.append(ctx, runID, wf.KindFindingDecision, payload); err != nil {
		return nil, err
	}
	return e.loadRun(ctx, runID)
}

// SubmitDriftResolution records a human resolution against a pending
// drift record.
func (e *Engine) SubmitDriftResolution(ctx context.Context, runID, driftID string, resolution wf.DriftResolution) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	if err := validateDriftResolution(view, driftID, resolution); err != nil {
		return nil, err
	}

	payload := wf.DriftResolutionPayload{DriftID: driftID, Resolution: resolution}
	if err := e.append(ctx, runID, wf.KindDriftResolution, payload); err != nil {
		return nil, err
	}
	return e.loadRun(ctx, runID)
}

// SupersedeFinding replaces a pending finding with a corrected one in a
// single ledger step: the old finding is marked superseded and the
// corrected finding registers as pending. The old entry stays on the
// ledger forever.
func (e *Engine) SupersedeFinding(ctx context.Context, runID, findingID string, corrected wf.Finding) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	old := view.FindingByID(findingID)
	if old == nil {
		return nil, NewInvalidDecision(runID, fmt.Sprintf("no finding with id %s", findingID))
	}
	if old.Decision != wf.DecisionPending {
		return nil, NewInvalidDecision(runID,
			fmt.Sprintf("finding %s already decided as %s", findingID, old.Decision))
	}

	if corrected.ID == "" {
		corrected.ID, err = wf.FindingFingerprint(corrected.LocationRef, corrected.Line, corrected.Category)
		if err != nil {
			return nil, err
		}
	}
	if corrected.ID == findingID {
		return nil, NewInvalidDecision(runID, "corrected finding is identical to the original")
	}
	if view.FindingByID(corrected.ID) != nil {
		return nil, NewInvalidDecision(runID,
			fmt.Sprintf("corrected finding %s is already registered", corrected.ID))
	}
	corrected.Decision = wf.DecisionPending
	corrected.DecisionReason = ""

	supersede := wf.FindingDecisionPayload{FindingID: findingID, Decision: wf.DecisionSuperseded}
	if err := e.append(ctx, runID, wf.KindFindingDecision, supersede); err != nil {
		return nil, err
	}
	if err := e.append(ctx, runID, wf.KindFindingRegistered, wf.FindingRegisteredPayload{Finding: corrected}); err != nil {
		return nil, err
	}
	return e.loadRun(ctx, runID)
}

// ProposePlan records a new plan version during planning. Proposing
// again supersedes the previous version; an approval already granted
// does not carry over.
func (e *Engine) ProposePlan(ctx context.Context, runID string, components []wf.ComponentSpec) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	if view.Phase != wf.PhasePlanning {
		return nil, NewGuardViolation(runID, view.Phase, "plans propose only during planning")
	}
	if err := validatePlanComponents(runID, components); err != nil {
		return nil, err
	}

	// Delivery state never arrives from outside.
	clean := make([]wf.ComponentSpec, len(components))
	copy(clean, components)
	for i := range clean {
		clean[i].Delivered = false
	}

	payload := wf.PlanProposedPayload{
		Version:    len(view.Plans) + 1,
		Components: clean,
	}
	if err := e.append(ctx, runID, wf.KindPlanProposed, payload); err != nil {
		return nil, err
	}
	e.logger.Info("plan proposed",
		slog.String("run_id", runID),
		slog.Int("version", payload.Version),
		slog.Int("components", len(clean)))
	return e.loadRun(ctx, runID)
}

// ApprovePlan approves the current plan version. The version argument
// is the version the approver was shown; if proposals have moved on
// since, the approval fails with STALE_PLAN and the current plan must
// be re-presented.
func (e *Engine) ApprovePlan(ctx context.Context, runID string, version int, notes string) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	if view.Phase != wf.PhasePlanning {
		return nil, NewGuardViolation(runID, view.Phase, "plans approve only during planning")
	}
	if err := validatePlanApproval(view, version); err != nil {
		return nil, err
	}

	payload := wf.PlanApprovalPayload{Version: version, Notes: notes}
	if err := e.append(ctx, runID, wf.KindPlanApproval, payload); err != nil {
		return nil, err
	}
	e.logger.Info("plan approved",
		slog.String("run_id", runID),
		slog.Int("version", version))
	return e.loadRun(ctx, runID)
}

// Transition moves the run to the target phase if its guard holds.
// A guard violation leaves the phase unchanged and appends nothing.
func (e *Engine) Transition(ctx context.Context, runID string, to wf.Phase) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(view, to); err != nil {
		return nil, err
	}

	payload := wf.PhaseTransitionPayload{From: view.Phase, To: to}
	if err := e.append(ctx, runID, wf.KindPhaseTransition, payload); err != nil {
		return nil, err
	}
	e.logger.Info("phase transition",
		slog.String("run_id", runID),
		slog.String("from", string(payload.From)),
		slog.String("to", string(payload.To)))
	return e.loadRun(ctx, runID)
}

// Abort terminates the run from any non-terminal phase. The originating
// phase and the reason are preserved on the ledger.
func (e *Engine) Abort(ctx context.Context, runID, reason string) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}

	payload := wf.PhaseTransitionPayload{From: view.Phase, To: wf.PhaseAborted, Reason: reason}
	if err := e.append(ctx, runID, wf.KindPhaseTransition, payload); err != nil {
		return nil, err
	}
	e.logger.Info("run aborted",
		slog.String("run_id", runID),
		slog.String("from", string(payload.From)),
		slog.String("reason", reason))
	return e.loadRun(ctx, runID)
}

// MarkDelivered records delivery of a planned component during
// implementation. Delivering an already-delivered component is a no-op.
// A component's dependencies must be delivered first.
func (e *Engine) MarkDelivered(ctx context.Context, runID, component string) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	if view.Phase != wf.PhaseImplementation {
		return nil, NewGuardViolation(runID, view.Phase, "deliveries record only during implementation")
	}

	plan := view.CurrentPlan()
	comp, ok := plan.Component(component)
	if !ok {
		return nil, NewInvalidDecision(runID, fmt.Sprintf("no component %q in plan version %d", component, plan.Version))
	}
	if comp.Delivered {
		return view, nil
	}
	for _, dep := range comp.DependsOn {
		depComp, _ := plan.Component(dep)
		if depComp == nil || !depComp.Delivered {
			return nil, NewGuardViolation(runID, view.Phase,
				fmt.Sprintf("component %q requires %q to be delivered first", component, dep))
		}
	}

	if err := e.append(ctx, runID, wf.KindComponentDelivered, wf.ComponentDeliveredPayload{Component: component}); err != nil {
		return nil, err
	}
	return e.loadRun(ctx, runID)
}

// RecordVerification records one verification outcome during the
// verification phase. Recording the same name again replaces the
// earlier outcome in the view; both recordings stay on the ledger.
func (e *Engine) RecordVerification(ctx context.Context, runID, name string, pass bool) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	if view.Phase != wf.PhaseVerification {
		return nil, NewGuardViolation(runID, view.Phase, "verification results record only during verification")
	}
	if name == "" {
		return nil, NewInvalidDecision(runID, "verification name must not be empty")
	}

	if err := e.append(ctx, runID, wf.KindVerificationResult, wf.VerificationResultPayload{Name: name, Pass: pass}); err != nil {
		return nil, err
	}
	return e.loadRun(ctx, runID)
}

// RecordChecklist records one checklist outcome during the final
// checklist phase.
func (e *Engine) RecordChecklist(ctx context.Context, runID, item string, pass bool) (*wf.RunView, error) {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	view, err := e.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if view.Phase.IsTerminal() {
		return nil, NewRunTerminal(runID, view.Phase)
	}
	if view.Phase != wf.PhaseFinalChecklist {
		return nil, NewGuardViolation(runID, view.Phase, "checklist items record only during the final checklist")
	}
	if item == "" {
		return nil, NewInvalidDecision(runID, "checklist item must not be empty")
	}

	if err := e.append(ctx, runID, wf.KindChecklistResult, wf.ChecklistResultPayload{Item: item, Pass: pass}); err != nil {
		return nil, err
	}
	return e.loadRun(ctx, runID)
}

// VerifyReplay folds the run's ledger twice and compares the canonical
// serialization of both views byte for byte.
func (e *Engine) VerifyReplay(ctx context.Context, runID string) error {
	lock := e.lockRun(runID)
	lock.Lock()
	defer lock.Unlock()

	entries, err := e.store.ReadEntries(ctx, runID)
	if err != nil {
		return fmt.Errorf("read ledger for run %s: %w", runID, err)
	}
	return CompareViews(runID, entries)
}
