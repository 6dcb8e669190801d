package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"robotcore/actions"
)

var ErrUnknownTemplate = errors.New("workflow: unknown template")

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// StepResult is one entry of a run log.
type StepResult struct {
	Index       int            `json:"index"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Params      actions.Params `json:"params,omitempty"`
	Success     bool           `json:"success"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	Duration    time.Duration  `json:"duration"`
}

// Run is the log of one execution of a plan.
type Run struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Status     Status         `json:"status"`
	Success    bool           `json:"success"`
	Steps      []StepResult   `json:"steps"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Actions resolves action ids.
type Actions interface {
	Get(id string) (actions.Action, bool)
}

// RunSink receives every finished run.
type RunSink interface {
	RecordRun(ctx context.Context, run *Run) error
}

// Engine holds the known templates and runs them.
type Engine struct {
	actions Actions
	sinks   []RunSink
	log     zerolog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	templates map[string]Template
}

func NewEngine(acts Actions, log zerolog.Logger, sinks ...RunSink) *Engine {
	e := &Engine{
		actions:   acts,
		sinks:     sinks,
		log:       log.With().Str("component", "workflow").Logger(),
		now:       time.Now,
		templates: make(map[string]Template),
	}
	for _, t := range Builtins() {
		if err := e.Register(t); err != nil {
			e.log.Error().Err(err).Str("template", t.ID).Msg("builtin template rejected")
		}
	}
	return e
}

// Register adds or replaces a template after checking that it is
// structurally sound.
func (e *Engine) Register(t Template) error {
	var problems []string
	if t.ID == "" {
		problems = append(problems, "template id is required")
	}
	if len(t.Sequence) == 0 {
		problems = append(problems, "sequence is empty")
	}
	seen := make(map[string]bool)
	for _, in := range t.Inputs {
		if seen[in.ID] {
			problems = append(problems, fmt.Sprintf("duplicate input %q", in.ID))
		}
		seen[in.ID] = true
		if !in.Type.valid() {
			problems = append(problems, fmt.Sprintf("input %q has unsupported type %q", in.ID, in.Type))
		}
	}
	for i, s := range t.Sequence {
		if _, ok := e.actions.Get(s.Action); !ok {
			problems = append(problems, fmt.Sprintf("step %d: unknown action %q", i+1, s.Action))
		}
	}
	if len(problems) > 0 {
		return &BuildError{TemplateID: t.ID, Problems: problems}
	}
	e.mu.Lock()
	e.templates[t.ID] = t
	e.mu.Unlock()
	return nil
}

// Load registers every template from src and returns how many were accepted.
func (e *Engine) Load(ctx context.Context, src TemplateSource) (int, error) {
	list, err := src.LoadTemplates(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, t := range list {
		if err := e.Register(t); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (e *Engine) Template(id string) (Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[id]
	return t, ok
}

// Templates returns every template ordered by id.
func (e *Engine) Templates() []Template {
	e.mu.RLock()
	out := make([]Template, 0, len(e.templates))
	for _, t := range e.templates {
		out = append(out, t)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Build resolves a registered template against inputs.
func (e *Engine) Build(templateID string, inputs map[string]any) (*Plan, error) {
	t, ok := e.Template(templateID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	return Build(t, inputs)
}

// Submit builds and runs a template. Build problems are returned as an
// error and nothing runs; failures during the run are recorded in the Run.
func (e *Engine) Submit(ctx context.Context, templateID string, inputs map[string]any) (*Run, error) {
	plan, err := e.Build(templateID, inputs)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, plan), nil
}

// Run executes the plan's steps in order and stops at the first failure.
func (e *Engine) Run(ctx context.Context, plan *Plan) *Run {
	run := &Run{
		ID:         uuid.New().String(),
		TemplateID: plan.Template.ID,
		Inputs:     plan.Inputs,
		Status:     StatusRunning,
		Steps:      make([]StepResult, 0, len(plan.Steps)),
		StartedAt:  e.now(),
	}
	log := e.log.With().Str("run", run.ID).Str("template", run.TemplateID).Logger()
	log.Info().Int("steps", len(plan.Steps)).Msg("workflow started")

	run.Success = true
	for i, step := range plan.Steps {
		res := e.step(ctx, i, step)
		run.Steps = append(run.Steps, res)
		if !res.Success {
			run.Success = false
			run.Error = fmt.Sprintf("step %d (%s) failed: %s", i+1, step.Action, res.Error)
			log.Warn().Int("step", i+1).Str("action", step.Action).Str("error", res.Error).Msg("workflow aborted")
			break
		}
		log.Info().Int("step", i+1).Str("action", step.Action).Dur("took", res.Duration).Msg("step completed")
	}

	run.FinishedAt = e.now()
	if run.Success {
		run.Status = StatusCompleted
		log.Info().Dur("took", run.FinishedAt.Sub(run.StartedAt)).Msg("workflow completed")
	} else {
		run.Status = StatusAborted
	}

	for _, sink := range e.sinks {
		if err := sink.RecordRun(ctx, run); err != nil {
			log.Warn().Err(err).Msg("record run failed")
		}
	}
	return run
}

func (e *Engine) step(ctx context.Context, i int, step PlannedStep) (res StepResult) {
	res = StepResult{
		Index:       i,
		Action:      step.Action,
		Description: step.Description,
		Params:      step.Params,
		StartedAt:   e.now(),
	}
	defer func() {
		if rec := recover(); rec != nil {
			res.Success = false
			res.Error = fmt.Sprintf("internal error: %v", rec)
		}
		res.Duration = e.now().Sub(res.StartedAt)
	}()

	a, ok := e.actions.Get(step.Action)
	if !ok {
		res.Error = fmt.Sprintf("unknown action %q", step.Action)
		return res
	}
	if v := a.Validate(step.Params); !v.Valid {
		res.Error = v.Error()
		return res
	}
	out := a.Execute(ctx, step.Params)
	res.Success = out.Success
	res.Data = out.Data
	res.Error = out.Error
	return res
}
