package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robotcore/actions"
)

type stubAction struct {
	id      string
	fail    bool
	invalid bool
	panics  bool
	calls   *[]string
	params  *[]actions.Params
}

func (s stubAction) ID() string                   { return s.id }
func (s stubAction) Description() string          { return s.id }
func (s stubAction) RequiredPointRoles() []string { return nil }

func (s stubAction) Validate(actions.Params) actions.ValidationResult {
	if s.invalid {
		return actions.ValidationResult{Errors: []string{"point is required"}}
	}
	return actions.ValidationResult{Valid: true}
}

func (s stubAction) Execute(_ context.Context, p actions.Params) actions.Result {
	*s.calls = append(*s.calls, s.id)
	*s.params = append(*s.params, p)
	if s.panics {
		panic("sensor exploded")
	}
	if s.fail {
		return actions.Result{Error: "device said no"}
	}
	return actions.Result{Success: true}
}

type stubActions struct {
	calls  []string
	params []actions.Params
	byID   map[string]stubAction
}

func newStubActions(specs ...stubAction) *stubActions {
	s := &stubActions{byID: make(map[string]stubAction)}
	for _, id := range []string{"navigate", "align_with_rack", "jack_up", "jack_down", "to_unload_point", "return_to_charger"} {
		s.byID[id] = stubAction{id: id, calls: &s.calls, params: &s.params}
	}
	for _, sp := range specs {
		sp.calls, sp.params = &s.calls, &s.params
		s.byID[sp.id] = sp
	}
	return s
}

func (s *stubActions) Get(id string) (actions.Action, bool) {
	a, ok := s.byID[id]
	return a, ok
}

type memSink struct {
	mu   sync.Mutex
	runs []*Run
}

func (m *memSink) RecordRun(_ context.Context, r *Run) error {
	m.mu.Lock()
	m.runs = append(m.runs, r)
	m.mu.Unlock()
	return nil
}

func threeStep() Template {
	return Template{
		ID:     "three",
		Inputs: []Input{{ID: "shelf", Type: InputPoint, Required: true}},
		Sequence: []Step{
			{Action: "navigate", Params: map[string]any{"point": "{{shelf:docking}}"}},
			{Action: "align_with_rack", Params: map[string]any{"point": "{{shelf}}"}},
			{Action: "jack_up"},
		},
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	acts := newStubActions(stubAction{id: "align_with_rack", fail: true})
	sink := &memSink{}
	e := NewEngine(acts, zerolog.Nop(), sink)
	require.NoError(t, e.Register(threeStep()))

	run, err := e.Submit(context.Background(), "three", map[string]any{"shelf": "104_load"})
	require.NoError(t, err)

	assert.False(t, run.Success)
	assert.Equal(t, StatusAborted, run.Status)
	require.Len(t, run.Steps, 2)
	assert.True(t, run.Steps[0].Success)
	assert.False(t, run.Steps[1].Success)
	assert.Equal(t, "device said no", run.Steps[1].Error)
	assert.Equal(t, []string{"navigate", "align_with_rack"}, acts.calls)
	assert.NotEmpty(t, run.ID)

	require.Len(t, sink.runs, 1)
	assert.Same(t, run, sink.runs[0])
}

func TestRunCompletes(t *testing.T) {
	acts := newStubActions()
	e := NewEngine(acts, zerolog.Nop())
	require.NoError(t, e.Register(threeStep()))

	run, err := e.Submit(context.Background(), "three", map[string]any{"shelf": "104_load"})
	require.NoError(t, err)
	assert.True(t, run.Success)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Len(t, run.Steps, 3)
	assert.Equal(t, "104_load_docking", acts.params[0]["point"])
	assert.Equal(t, "104_load", acts.params[1]["point"])
}

func TestValidationFailureAbortsWithoutExecuting(t *testing.T) {
	acts := newStubActions(stubAction{id: "navigate", invalid: true})
	e := NewEngine(acts, zerolog.Nop())
	require.NoError(t, e.Register(threeStep()))

	run, err := e.Submit(context.Background(), "three", map[string]any{"shelf": "104_load"})
	require.NoError(t, err)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, "point is required", run.Steps[0].Error)
	assert.Empty(t, acts.calls)
}

func TestPanickingStepBecomesFailure(t *testing.T) {
	acts := newStubActions(stubAction{id: "jack_up", panics: true})
	e := NewEngine(acts, zerolog.Nop())
	require.NoError(t, e.Register(threeStep()))

	run, err := e.Submit(context.Background(), "three", map[string]any{"shelf": "104_load"})
	require.NoError(t, err)
	assert.False(t, run.Success)
	require.Len(t, run.Steps, 3)
	assert.Contains(t, run.Steps[2].Error, "sensor exploded")
}

func TestBuildReportsEveryProblem(t *testing.T) {
	tmpl := Template{
		ID: "broken",
		Inputs: []Input{
			{ID: "a", Type: InputPoint, Required: true},
			{ID: "b", Type: InputPoint, Required: true},
			{ID: "n", Type: InputNumber},
		},
		Sequence: []Step{
			{Action: "navigate", Params: map[string]any{"point": "{{a}}", "x": "{{ghost}}"}},
			{Action: "navigate", Params: map[string]any{"accuracy": "{{n:docking}}"}},
		},
	}
	_, err := Build(tmpl, map[string]any{"n": 0.5, "extra": true})

	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.ElementsMatch(t, []string{
		`missing required input "a"`,
		`missing required input "b"`,
		`unknown input "extra"`,
		`step 1 x: unknown input "ghost"`,
		`step 2 accuracy: transform "docking" applies only to point inputs`,
	}, be.Problems)
}

func TestBuildTypeChecksInputs(t *testing.T) {
	tmpl := Template{
		ID: "typed",
		Inputs: []Input{
			{ID: "p", Type: InputPoint, Required: true},
			{ID: "n", Type: InputNumber, Required: true},
			{ID: "s", Type: InputString, Required: true},
			{ID: "b", Type: InputBoolean, Required: true},
		},
		Sequence: []Step{{Action: "jack_up"}},
	}
	_, err := Build(tmpl, map[string]any{"p": "Shelf 4", "n": "five", "s": 3, "b": "yes"})
	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.Len(t, be.Problems, 4)

	plan, err := Build(tmpl, map[string]any{"p": "drop-off-1_load", "n": 5, "s": "x", "b": true})
	require.NoError(t, err)
	assert.Equal(t, 5.0, plan.Inputs["n"])
}

func TestBuildResolvesPlaceholders(t *testing.T) {
	tmpl := Template{
		ID: "resolve",
		Inputs: []Input{
			{ID: "spot", Type: InputPoint, Required: true},
			{ID: "acc", Type: InputNumber, Default: 0.2},
			{ID: "charger", Type: InputPoint},
		},
		Sequence: []Step{{
			Action:      "navigate",
			Description: "Go to {{spot:load}}",
			Params: map[string]any{
				"point":      "{{spot:load}}",
				"accuracy":   "{{acc}}",
				"note":       "from {{spot}} to {{spot:docking}}",
				"charger":    "{{charger}}",
				"properties": map[string]any{"dock": "{{ spot : docking }}"},
			},
		}},
	}
	plan, err := Build(tmpl, map[string]any{"spot": "pick-up-2_load_docking"})
	require.NoError(t, err)

	p := plan.Steps[0].Params
	assert.Equal(t, "pick-up-2_load", p["point"])
	assert.Equal(t, 0.2, p["accuracy"])
	assert.Equal(t, "from pick-up-2_load_docking to pick-up-2_load_docking", p["note"])
	assert.NotContains(t, p, "charger")
	assert.Equal(t, map[string]any{"dock": "pick-up-2_load_docking"}, p["properties"])
	assert.Equal(t, "Go to pick-up-2_load", plan.Steps[0].Description)
}

func TestSubmitUnknownTemplate(t *testing.T) {
	e := NewEngine(newStubActions(), zerolog.Nop())
	_, err := e.Submit(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestBuiltinsRegister(t *testing.T) {
	e := NewEngine(newStubActions(), zerolog.Nop())
	var ids []string
	for _, tmpl := range e.Templates() {
		ids = append(ids, tmpl.ID)
	}
	assert.Equal(t, []string{"pickup_to_shelf", "return_to_charger", "shelf_to_dropoff", "shelf_to_shelf"}, ids)

	plan, err := e.Build("shelf_to_dropoff", map[string]any{"shelf": "104_load", "dropoff": "drop-off-a_load"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 5)
	assert.Equal(t, "104_load_docking", plan.Steps[0].Params["point"])
	assert.Equal(t, "Go to 104_load docking point", plan.Steps[0].Description)

	plan, err = e.Build("return_to_charger", nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Steps[0].Params)
}

func TestRegisterRejectsUnknownAction(t *testing.T) {
	e := NewEngine(newStubActions(), zerolog.Nop())
	err := e.Register(Template{ID: "x", Sequence: []Step{{Action: "teleport"}}, Inputs: []Input{{ID: "a", Type: "colour"}}})
	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.Len(t, be.Problems, 2)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  - id: lift_only
    name: Lift only
    inputs:
      - id: shelf
        type: point
        required: true
    sequence:
      - action: align_with_rack
        params:
          point: "{{shelf}}"
      - action: jack_up
`), 0o644))

	e := NewEngine(newStubActions(), zerolog.Nop())
	n, err := e.Load(context.Background(), FileSource{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tmpl, ok := e.Template("lift_only")
	require.True(t, ok)
	assert.Len(t, tmpl.Sequence, 2)
	assert.True(t, tmpl.Inputs[0].Required)
}
