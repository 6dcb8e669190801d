package actions

import (
	"context"
	"fmt"
	"math"

	"robotcore/points"
	"robotcore/robot"
)

// mover issues move commands and polls them to a terminal state.
type mover struct {
	deps Deps
}

func (m *mover) retries(p Params, def int) int {
	if n, ok, err := p.Int(ParamMaxRetries); ok && err == nil && n > 0 {
		return n
	}
	return def
}

func (m *mover) accuracy(p Params) float64 {
	if f, ok, err := p.Float(ParamAccuracy); ok && err == nil && f > 0 {
		return f
	}
	return m.deps.Config.Accuracy
}

// atTarget reports whether the cached pose is fresh and within accuracy of
// (x, y).
func (m *mover) atTarget(x, y, accuracy float64) (float64, bool) {
	if m.deps.Pose == nil || !m.deps.Pose.HasRecentPosition() {
		return 0, false
	}
	cur, ok := m.deps.Pose.Latest()
	if !ok {
		return 0, false
	}
	d := math.Hypot(cur.X-x, cur.Y-y)
	return d, d <= accuracy
}

func (m *mover) request(t robot.MoveType, pt points.Point, accuracy float64) *robot.MoveRequest {
	theta := pt.Theta
	return &robot.MoveRequest{
		Creator:        m.deps.Config.Creator,
		Type:           t,
		TargetX:        pt.X,
		TargetY:        pt.Y,
		TargetOri:      &theta,
		TargetAccuracy: accuracy,
		TargetPoint:    pt.ID,
	}
}

// move issues req and waits for the move to finish.
func (m *mover) move(ctx context.Context, req *robot.MoveRequest, noun string, maxRetries int) Result {
	id, err := m.deps.Device.CreateMove(ctx, req)
	if err != nil {
		res := failed("%s command failed: %v", noun, err)
		res.Data = map[string]any{"target": req.TargetPoint}
		return res
	}
	m.deps.Log.Info().Int64("move_id", id).Str("type", string(req.Type)).Str("target", req.TargetPoint).Msg("move issued")
	res := m.await(ctx, id, noun, maxRetries)
	if res.Data == nil {
		res.Data = map[string]any{}
	}
	res.Data["move_id"] = id
	if req.TargetPoint != "" {
		res.Data["target"] = req.TargetPoint
	}
	return res
}

// await polls the move once per interval, at most maxRetries times.
// Status read errors use up a retry; the robot may be power cycling.
func (m *mover) await(ctx context.Context, id int64, noun string, maxRetries int) Result {
	log := m.deps.Log.With().Int64("move_id", id).Logger()
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := m.deps.Sleep(ctx, m.deps.Config.PollInterval); err != nil {
			return failed("%s interrupted: %v", noun, err)
		}
		st, err := m.deps.Device.GetMove(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("status read failed")
			continue
		}
		state := st.Effective()
		switch {
		case state.IsSuccess():
			log.Info().Str("state", string(state)).Int("polls", attempt).Msg("move completed")
			return Result{Success: true, Data: map[string]any{"state": string(state), "polls": attempt}}
		case state.IsFailure():
			reason := st.Reason()
			if reason == "" {
				reason = fmt.Sprintf("%s %s", noun, state)
			}
			log.Warn().Str("state", string(state)).Str("reason", reason).Msg("move failed")
			return Result{Error: reason, Data: map[string]any{"state": string(state), "polls": attempt}}
		}
	}
	log.Warn().Int("max_retries", maxRetries).Msg("move timed out")
	return failed("Timeout waiting for %s completion", noun)
}
