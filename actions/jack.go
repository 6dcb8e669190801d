package actions

import "context"

// jack raises or lowers the lift. The controller reports no progress for
// jack operations, so completion is a fixed wait after the command.
type jack struct {
	m  *mover
	up bool
}

func (a *jack) ID() string {
	if a.up {
		return "jack_up"
	}
	return "jack_down"
}

func (a *jack) Description() string {
	if a.up {
		return "Raise the lift"
	}
	return "Lower the lift"
}

func (*jack) RequiredPointRoles() []string { return nil }

func (*jack) Validate(Params) ValidationResult { return ValidationResult{Valid: true} }

func (a *jack) Execute(ctx context.Context, _ Params) Result {
	cmd, wait := a.m.deps.Device.JackDown, a.m.deps.Config.JackDownWait
	if a.up {
		cmd, wait = a.m.deps.Device.JackUp, a.m.deps.Config.JackUpWait
	}
	if err := cmd(ctx); err != nil {
		return failed("%s command failed: %v", a.ID(), err)
	}
	a.m.deps.Log.Info().Str("action", a.ID()).Dur("wait", wait).Msg("jack command accepted")
	if err := a.m.deps.Sleep(ctx, wait); err != nil {
		return failed("%s interrupted: %v", a.ID(), err)
	}
	return Result{Success: true, Data: map[string]any{"waited_ms": wait.Milliseconds()}}
}
