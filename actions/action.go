// Package actions implements the atomic physical operations a workflow is
// composed of. Each action validates its parameters before touching the
// device and reports every failure as a Result rather than an error.
package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"robotcore/points"
	"robotcore/position"
	"robotcore/robot"
)

// Params are the resolved parameters of one action invocation.
type Params map[string]any

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func (v ValidationResult) Error() string {
	return strings.Join(v.Errors, "; ")
}

// Result is the outcome of one action. Failures carry Error; nothing is
// returned as a Go error.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func failed(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Action is one atomic physical operation.
type Action interface {
	ID() string
	Description() string
	RequiredPointRoles() []string
	Validate(p Params) ValidationResult
	Execute(ctx context.Context, p Params) Result
}

// Device is the part of the command channel actions use.
type Device interface {
	CreateMove(ctx context.Context, req *robot.MoveRequest) (int64, error)
	GetMove(ctx context.Context, id int64) (*robot.MoveStatus, error)
	CancelMove(ctx context.Context) error
	JackUp(ctx context.Context) error
	JackDown(ctx context.Context) error
}

// PoseSource supplies the cached pose.
type PoseSource interface {
	Latest() (position.Position, bool)
	HasRecentPosition() bool
}

type Config struct {
	PollInterval    time.Duration
	NavigateRetries int
	AlignRetries    int
	UnloadRetries   int
	ChargerRetries  int
	JackUpWait      time.Duration
	JackDownWait    time.Duration
	// Accuracy is the default target accuracy in metres.
	Accuracy float64
	// ChargerPoint is used by return_to_charger when no point is given.
	ChargerPoint string
	Creator      string
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		NavigateRetries: 60,
		AlignRetries:    60,
		UnloadRetries:   90,
		ChargerRetries:  90,
		JackUpWait:      8 * time.Second,
		JackDownWait:    3 * time.Second,
		Accuracy:        0.1,
		Creator:         "robotcore",
	}
}

// Deps are shared by every registered action.
type Deps struct {
	Device Device
	Points points.Directory
	Pose   PoseSource
	Config Config
	Log    zerolog.Logger
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Registry is the fixed set of actions, built once.
type Registry struct {
	actions map[string]Action
	device  Device
	log     zerolog.Logger
}

func NewRegistry(deps Deps) *Registry {
	def := DefaultConfig()
	c := &deps.Config
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.NavigateRetries <= 0 {
		c.NavigateRetries = def.NavigateRetries
	}
	if c.AlignRetries <= 0 {
		c.AlignRetries = def.AlignRetries
	}
	if c.UnloadRetries <= 0 {
		c.UnloadRetries = def.UnloadRetries
	}
	if c.ChargerRetries <= 0 {
		c.ChargerRetries = def.ChargerRetries
	}
	if c.JackUpWait <= 0 {
		c.JackUpWait = def.JackUpWait
	}
	if c.JackDownWait <= 0 {
		c.JackDownWait = def.JackDownWait
	}
	if c.Accuracy <= 0 {
		c.Accuracy = def.Accuracy
	}
	if c.Creator == "" {
		c.Creator = def.Creator
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	if deps.Points == nil {
		deps.Points = points.NewCatalog()
	}
	deps.Log = deps.Log.With().Str("component", "actions").Logger()

	m := &mover{deps: deps}
	list := []Action{
		&navigate{m: m},
		&alignWithRack{m: m},
		&jack{m: m, up: true},
		&jack{m: m, up: false},
		&toUnloadPoint{m: m},
		&returnToCharger{m: m},
	}
	r := &Registry{actions: make(map[string]Action, len(list)), device: deps.Device, log: deps.Log}
	for _, a := range list {
		r.actions[a.ID()] = a
	}
	return r
}

// Get returns the action registered under id.
func (r *Registry) Get(id string) (Action, bool) {
	a, ok := r.actions[id]
	return a, ok
}

// List returns every action ordered by id.
func (r *Registry) List() []Action {
	out := make([]Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Execute validates and runs one action. A panic inside the action is
// converted into a failed Result.
func (r *Registry) Execute(ctx context.Context, id string, p Params) (res Result) {
	a, ok := r.Get(id)
	if !ok {
		return failed("unknown action %q", id)
	}
	if v := a.Validate(p); !v.Valid {
		return Result{Error: v.Error()}
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("action", id).Interface("panic", rec).Msg("action panicked")
			res = failed("action %s: internal error: %v", id, rec)
		}
	}()
	return a.Execute(ctx, p)
}

// Stop cancels the current move. Polling loops observe the cancelled state
// on their next read.
func (r *Registry) Stop(ctx context.Context) error {
	if err := r.device.CancelMove(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	r.log.Info().Msg("motion cancelled")
	return nil
}
