package actions

import (
	"context"
	"fmt"

	"robotcore/points"
	"robotcore/robot"
)

// navigate drives to a named point or to raw coordinates.
type navigate struct{ m *mover }

func (*navigate) ID() string                   { return "navigate" }
func (*navigate) Description() string          { return "Navigate to a point" }
func (*navigate) RequiredPointRoles() []string { return []string{ParamPoint} }

func (a *navigate) target(p Params) (points.Point, []string) {
	if _, ok := p[ParamPoint]; ok {
		return lookupPoint(a.m.deps.Points, p, nil, "")
	}
	x, okX, errX := p.Float(ParamX)
	y, okY, errY := p.Float(ParamY)
	theta, _, errT := p.Float(ParamTheta)
	var errs []string
	for _, err := range []error{errX, errY, errT} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) == 0 && (!okX || !okY) {
		errs = append(errs, "point or x and y are required")
	}
	return points.Point{X: x, Y: y, Theta: theta, Category: points.CategoryUnknown}, errs
}

func (a *navigate) Validate(p Params) ValidationResult {
	_, errs := a.target(p)
	return validation(append(errs, checkCommon(p)...))
}

func (a *navigate) Execute(ctx context.Context, p Params) Result {
	pt, errs := a.target(p)
	if len(errs) > 0 {
		return Result{Error: validation(errs).Error()}
	}
	acc := a.m.accuracy(p)
	if d, ok := a.m.atTarget(pt.X, pt.Y, acc); ok {
		a.m.deps.Log.Info().Str("target", pt.ID).Float64("distance", d).Msg("already at target")
		return Result{Success: true, Data: map[string]any{"already_at_target": true, "distance": d, "target": pt.ID}}
	}
	return a.m.move(ctx, a.m.request(robot.MoveStandard, pt, acc), "move", a.m.retries(p, a.m.deps.Config.NavigateRetries))
}

// alignWithRack fine-aligns under the rack at a load point.
type alignWithRack struct{ m *mover }

func (*alignWithRack) ID() string                   { return "align_with_rack" }
func (*alignWithRack) Description() string          { return "Align with the rack at a load point" }
func (*alignWithRack) RequiredPointRoles() []string { return []string{ParamPoint} }

func (a *alignWithRack) Validate(p Params) ValidationResult {
	_, errs := lookupPoint(a.m.deps.Points, p, points.Category.IsLoad, "load")
	return validation(append(errs, checkCommon(p)...))
}

func (a *alignWithRack) Execute(ctx context.Context, p Params) Result {
	pt, errs := lookupPoint(a.m.deps.Points, p, points.Category.IsLoad, "load")
	if len(errs) > 0 {
		return Result{Error: validation(errs).Error()}
	}
	req := a.m.request(robot.MoveAlignWithRack, pt, a.m.accuracy(p))
	return a.m.move(ctx, req, "alignment", a.m.retries(p, a.m.deps.Config.AlignRetries))
}

// toUnloadPoint drives to the docking point of a load point and then places
// the rack at the load point. The second move is skipped if the first fails.
type toUnloadPoint struct{ m *mover }

func (*toUnloadPoint) ID() string                   { return "to_unload_point" }
func (*toUnloadPoint) Description() string          { return "Move to a load point via its docking point and unload" }
func (*toUnloadPoint) RequiredPointRoles() []string { return []string{ParamPoint} }

func (a *toUnloadPoint) resolve(p Params) (load, dock points.Point, errs []string) {
	load, errs = lookupPoint(a.m.deps.Points, p, points.Category.IsLoad, "load")
	if len(errs) > 0 {
		return load, dock, errs
	}
	dockID := points.ToDocking(load.ID)
	dock, ok := a.m.deps.Points.Lookup(dockID)
	if !ok {
		errs = append(errs, fmt.Sprintf("docking point %q not found", dockID))
	}
	return load, dock, errs
}

func (a *toUnloadPoint) Validate(p Params) ValidationResult {
	_, _, errs := a.resolve(p)
	return validation(append(errs, checkCommon(p)...))
}

func (a *toUnloadPoint) Execute(ctx context.Context, p Params) Result {
	load, dock, errs := a.resolve(p)
	if len(errs) > 0 {
		return Result{Error: validation(errs).Error()}
	}
	acc := a.m.accuracy(p)
	retries := a.m.retries(p, a.m.deps.Config.UnloadRetries)

	approach := a.m.move(ctx, a.m.request(robot.MoveStandard, dock, acc), "move", retries)
	if !approach.Success {
		approach.Data["stage"] = "approach"
		return approach
	}
	place := a.m.move(ctx, a.m.request(robot.MoveToUnloadPoint, load, acc), "unload", retries)
	place.Data["approach_move_id"] = approach.Data["move_id"]
	if !place.Success {
		place.Data["stage"] = "unload"
	}
	return place
}

// returnToCharger sends the robot to its charger.
type returnToCharger struct{ m *mover }

func (*returnToCharger) ID() string                   { return "return_to_charger" }
func (*returnToCharger) Description() string          { return "Return to the charger" }
func (*returnToCharger) RequiredPointRoles() []string { return nil }

type chargerFinder interface {
	FirstOf(points.Category) (points.Point, bool)
}

func (a *returnToCharger) resolve(p Params) (points.Point, []string) {
	isCharger := func(c points.Category) bool { return c == points.CategoryCharger }
	if _, ok := p[ParamPoint]; ok {
		return lookupPoint(a.m.deps.Points, p, isCharger, "charger")
	}
	if id := a.m.deps.Config.ChargerPoint; id != "" {
		return lookupPoint(a.m.deps.Points, Params{ParamPoint: id}, isCharger, "charger")
	}
	if f, ok := a.m.deps.Points.(chargerFinder); ok {
		if pt, found := f.FirstOf(points.CategoryCharger); found {
			return pt, nil
		}
	}
	return points.Point{}, []string{"no charger point configured"}
}

func (a *returnToCharger) Validate(p Params) ValidationResult {
	_, errs := a.resolve(p)
	return validation(append(errs, checkCommon(p)...))
}

func (a *returnToCharger) Execute(ctx context.Context, p Params) Result {
	pt, errs := a.resolve(p)
	if len(errs) > 0 {
		return Result{Error: validation(errs).Error()}
	}
	req := a.m.request(robot.MoveCharge, pt, a.m.accuracy(p))
	return a.m.move(ctx, req, "charge", a.m.retries(p, a.m.deps.Config.ChargerRetries))
}
