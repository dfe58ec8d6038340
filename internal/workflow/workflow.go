// Package workflow sequences project setup: choose a structure, confirm a
// parcel boundary, optionally wait for document ingest, then navigate to the
// project.
package workflow

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/boundary"
	"github.com/sells-group/siteplan/internal/monitoring"
	"github.com/sells-group/siteplan/internal/parcel"
)

// Step is a setup step.
type Step int

const (
	StepChooseStructure Step = iota
	StepSetBoundary
	StepDocumentIngest
	StepNavigate
)

var stepNames = map[Step]string{
	StepChooseStructure: "choose_structure",
	StepSetBoundary:     "set_boundary",
	StepDocumentIngest:  "document_ingest",
	StepNavigate:        "navigate",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseStep maps a step name back to a Step.
func ParseStep(name string) (Step, error) {
	for s, n := range stepNames {
		if n == name {
			return s, nil
		}
	}
	return 0, eris.Errorf("workflow: unknown step %q", name)
}

// ErrStepLocked is returned when a step is not reachable from the current one.
var ErrStepLocked = eris.New("step locked")

// Selection is the read side of the selection engine the workflow confirms.
type Selection interface {
	Len() int
	Details() []parcel.Feature
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithDocumentIngest inserts the document ingest step after the boundary.
func WithDocumentIngest(enabled bool) Option { return func(w *Workflow) { w.ingest = enabled } }

// WithSaveTimeout bounds dissolve plus save on confirm.
func WithSaveTimeout(d time.Duration) Option { return func(w *Workflow) { w.saveTimeout = d } }

// WithSink sets the event sink.
func WithSink(s monitoring.Sink) Option { return func(w *Workflow) { w.sink = s } }

// WithHint supplies session context, such as the last map click, on confirm.
func WithHint(fn func() boundary.Hint) Option { return func(w *Workflow) { w.hint = fn } }

// Workflow is the setup state machine for one project.
type Workflow struct {
	projectID   string
	selection   Selection
	dissolver   boundary.Dissolver
	store       boundary.Store
	ingest      bool
	saveTimeout time.Duration
	hint        func() boundary.Hint
	sink        monitoring.Sink
	log         *zap.Logger

	mu         sync.Mutex
	current    Step
	completed  map[Step]bool
	structure  string
	saved      *boundary.Saved
	confirming bool
}

// New creates a Workflow at StepChooseStructure.
func New(projectID string, sel Selection, d boundary.Dissolver, store boundary.Store, opts ...Option) *Workflow {
	w := &Workflow{
		projectID:   projectID,
		selection:   sel,
		dissolver:   d,
		store:       store,
		saveTimeout: 10 * time.Second,
		current:     StepChooseStructure,
		completed:   make(map[Step]bool),
		log:         zap.L().With(zap.String("component", "workflow"), zap.String("project_id", projectID)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Steps lists the steps in order. DocumentIngest is present only when enabled.
func (w *Workflow) Steps() []Step {
	if w.ingest {
		return []Step{StepChooseStructure, StepSetBoundary, StepDocumentIngest, StepNavigate}
	}
	return []Step{StepChooseStructure, StepSetBoundary, StepNavigate}
}

// next returns the step after s, or s itself at the end.
func (w *Workflow) next(s Step) Step {
	steps := w.Steps()
	for i, st := range steps {
		if st == s && i+1 < len(steps) {
			return steps[i+1]
		}
	}
	return s
}

// Enter moves to step if it is already completed, is the current step, or
// directly follows a completed current step.
func (w *Workflow) Enter(step Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if step == w.current {
		return nil
	}
	if !w.hasStep(step) {
		return eris.Wrapf(ErrStepLocked, "workflow: %s is not part of this setup", step)
	}
	if w.completed[step] || (w.completed[w.current] && step == w.next(w.current)) {
		w.moveTo(step)
		return nil
	}
	return eris.Wrapf(ErrStepLocked, "workflow: cannot enter %s from %s", step, w.current)
}

// ChooseStructure records the structure type and advances to SetBoundary.
func (w *Workflow) ChooseStructure(structureType string) error {
	structureType = strings.TrimSpace(structureType)
	if structureType == "" {
		return apperr.Validation("choose a structure type")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != StepChooseStructure {
		return eris.Wrapf(ErrStepLocked, "workflow: structure is chosen at %s, current step is %s", StepChooseStructure, w.current)
	}
	w.structure = structureType
	w.completed[StepChooseStructure] = true
	w.moveTo(StepSetBoundary)
	return nil
}

// ConfirmBoundary dissolves the selection, saves it, and advances past
// SetBoundary. An empty selection is a validation failure and a failed save
// is a persistence failure; neither changes the step or the selection.
func (w *Workflow) ConfirmBoundary(ctx context.Context) (*boundary.Saved, error) {
	w.mu.Lock()
	if w.current != StepSetBoundary {
		cur := w.current
		w.mu.Unlock()
		return nil, eris.Wrapf(ErrStepLocked, "workflow: confirm requires %s, current step is %s", StepSetBoundary, cur)
	}
	if w.confirming {
		w.mu.Unlock()
		return nil, apperr.Validation("a confirm is already in progress")
	}
	if w.selection.Len() == 0 {
		w.mu.Unlock()
		monitoring.Emit(w.sink, monitoring.EventBoundaryFailed, monitoring.SeverityNotice,
			"Select at least one parcel to continue", map[string]any{"project_id": w.projectID})
		return nil, apperr.Validation("select at least one parcel to continue")
	}
	w.confirming = true
	w.mu.Unlock()

	saved, err := w.dissolveAndSave(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.confirming = false
	if err != nil {
		w.log.Warn("boundary confirm failed", zap.Error(err))
		monitoring.Emit(w.sink, monitoring.EventBoundaryFailed, monitoring.SeverityError,
			"The boundary could not be saved", map[string]any{"project_id": w.projectID, "error": err.Error()})
		return nil, err
	}

	w.saved = saved
	w.completed[StepSetBoundary] = true
	monitoring.Emit(w.sink, monitoring.EventBoundarySaved, monitoring.SeverityInfo,
		"boundary saved", map[string]any{
			"project_id":   w.projectID,
			"parcel_count": saved.Boundary.ParcelCount,
			"total_acres":  saved.Boundary.TotalAcres,
		})
	w.moveTo(w.next(StepSetBoundary))
	return saved, nil
}

func (w *Workflow) dissolveAndSave(ctx context.Context) (*boundary.Saved, error) {
	if w.saveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.saveTimeout)
		defer cancel()
	}

	details := w.selection.Details()
	var hint boundary.Hint
	if w.hint != nil {
		hint = w.hint()
	}

	b, err := w.dissolver.Dissolve(ctx, details, hint)
	if err != nil {
		return nil, err
	}
	saved, err := w.store.SaveProjectBoundary(ctx, w.projectID, details, b)
	if err != nil {
		if errors.Is(err, apperr.ErrPersistenceFailed) || errors.Is(err, apperr.ErrValidationFailed) ||
			errors.Is(err, apperr.ErrMissingBusinessKey) {
			return nil, err
		}
		return nil, eris.Wrapf(apperr.ErrPersistenceFailed, "workflow: save boundary: %v", err)
	}
	return saved, nil
}

// CompleteIngest is called by the document ingestion collaborator when it is
// done and advances to Navigate.
func (w *Workflow) CompleteIngest() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != StepDocumentIngest {
		return eris.Wrapf(ErrStepLocked, "workflow: ingest completion at %s", w.current)
	}
	w.completed[StepDocumentIngest] = true
	w.moveTo(StepNavigate)
	return nil
}

// State is a snapshot of the workflow.
type State struct {
	ProjectID string          `json:"project_id"`
	Current   string          `json:"current"`
	Steps     []string        `json:"steps"`
	Completed []string        `json:"completed"`
	Structure string          `json:"structure,omitempty"`
	Saved     *boundary.Saved `json:"saved,omitempty"`
	Done      bool            `json:"done"`
}

// Current returns the current step.
func (w *Workflow) Current() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Completed reports whether step has been completed.
func (w *Workflow) Completed(step Step) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completed[step]
}

// Snapshot returns the workflow state.
func (w *Workflow) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State{
		ProjectID: w.projectID,
		Current:   w.current.String(),
		Structure: w.structure,
		Saved:     w.saved,
		Done:      w.current == StepNavigate,
	}
	for _, s := range w.Steps() {
		st.Steps = append(st.Steps, s.String())
		if w.completed[s] {
			st.Completed = append(st.Completed, s.String())
		}
	}
	return st
}

func (w *Workflow) hasStep(step Step) bool {
	return slices.Contains(w.Steps(), step)
}

func (w *Workflow) moveTo(step Step) {
	from := w.current
	w.current = step
	monitoring.Emit(w.sink, monitoring.EventStepChanged, monitoring.SeverityInfo,
		"setup step changed", map[string]any{"project_id": w.projectID, "from": from.String(), "to": step.String()})
}
