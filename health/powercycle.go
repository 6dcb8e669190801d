package health

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	MethodRestart  = "restart"
	MethodShutdown = "shutdown"
)

// PowerCycleState describes the most recent power cycle.
type PowerCycleState struct {
	InProgress       bool      `json:"in_progress"`
	LastAttempt      time.Time `json:"last_attempt"`
	Success          bool      `json:"success"`
	Method           string    `json:"method,omitempty"`
	Endpoint         string    `json:"endpoint,omitempty"`
	ExpectedRecovery time.Time `json:"expected_recovery,omitempty"`
	Error            string    `json:"error,omitempty"`
}

type PowerCycleResult struct {
	Success          bool      `json:"success"`
	Message          string    `json:"message"`
	ExpectedRecovery time.Time `json:"expected_recovery,omitempty"`
}

// DefaultPowerCyclePaths lists the primary endpoint followed by the alternate
// spellings seen across firmware versions. {method} is replaced by the
// requested method.
func DefaultPowerCyclePaths() []string {
	return []string{
		"/services/{method}_robot",
		"/services/{method}",
		"/services/robot/{method}",
		"/services/system/{method}",
		"/services/power/{method}",
		"/services/{method}_device",
		"/api/services/{method}_robot",
		"/api/services/{method}",
		"/api/{method}",
		"/system/{method}",
		"/device/{method}",
		"/chassis/{method}",
	}
}

// RemotePowerCycle asks the robot to restart or shut down. It is rejected
// while another cycle runs or within the manual cooldown of the last one.
// The endpoint sweep ignores ctx cancellation so a caller that gives up
// cannot leave a half-tried cycle behind; each endpoint is still bounded by
// the request timeout.
func (m *Monitor) RemotePowerCycle(ctx context.Context, method string) PowerCycleResult {
	return m.powerCycle(ctx, method, false)
}

func (m *Monitor) powerCycle(ctx context.Context, method string, auto bool) PowerCycleResult {
	if method != MethodRestart && method != MethodShutdown {
		return PowerCycleResult{Message: fmt.Sprintf("Unsupported power cycle method %q", method)}
	}

	m.mu.Lock()
	now := m.now()
	if m.power.InProgress {
		m.mu.Unlock()
		return PowerCycleResult{Message: "Power cycle already in progress"}
	}
	if !m.power.LastAttempt.IsZero() {
		if elapsed := now.Sub(m.power.LastAttempt); elapsed < m.cfg.ManualCooldown {
			remaining := int(math.Ceil((m.cfg.ManualCooldown - elapsed).Seconds()))
			m.mu.Unlock()
			return PowerCycleResult{Message: fmt.Sprintf("Power cycle cooldown active, wait %d seconds before retrying", remaining)}
		}
	}
	if auto {
		if !m.lastAuto.IsZero() && now.Sub(m.lastAuto) < m.cfg.AutoCooldown {
			m.mu.Unlock()
			return PowerCycleResult{Message: "Automatic power cycle cooldown active"}
		}
		m.lastAuto = now
	}
	m.power = PowerCycleState{InProgress: true, LastAttempt: now, Method: method}
	state := m.power
	m.mu.Unlock()

	m.log.Warn().Str("method", method).Bool("automatic", auto).Msg("power cycle requested")
	m.emitter.EmitPowerCycle(state)

	sweep := context.WithoutCancel(ctx)
	for _, tmpl := range m.cfg.PowerCyclePaths {
		path := strings.ReplaceAll(tmpl, "{method}", method)
		if err := m.call(sweep, http.MethodPost, path); err != nil {
			m.log.Debug().Err(err).Str("path", path).Msg("power cycle endpoint failed")
			continue
		}
		return m.accepted(method, path)
	}

	m.mu.Lock()
	m.power.InProgress = false
	m.power.Success = false
	m.power.Error = "All power cycle attempts failed"
	state = m.power
	m.mu.Unlock()

	m.log.Error().Str("method", method).Int("endpoints", len(m.cfg.PowerCyclePaths)).Msg("all power cycle attempts failed")
	m.emitter.EmitPowerCycle(state)
	return PowerCycleResult{Message: state.Error}
}

func (m *Monitor) accepted(method, path string) PowerCycleResult {
	window := m.cfg.RestartRecovery
	if method == MethodShutdown {
		window = m.cfg.ShutdownRecovery
	}

	m.mu.Lock()
	expected := m.now().Add(window)
	m.power.Endpoint = path
	m.power.ExpectedRecovery = expected
	if m.resetTimer != nil {
		m.resetTimer.Stop()
	}
	m.resetTimer = time.AfterFunc(window, m.recoveryDeadline)
	state := m.power
	m.mu.Unlock()

	m.log.Info().Str("method", method).Str("path", path).Time("expected_recovery", expected).Msg("power cycle accepted")
	m.emitter.EmitPowerCycle(state)
	return PowerCycleResult{
		Success:          true,
		Message:          fmt.Sprintf("Power cycle (%s) initiated via %s", method, path),
		ExpectedRecovery: expected,
	}
}

// recoveryDeadline runs when the expected recovery window has elapsed.
func (m *Monitor) recoveryDeadline() {
	m.mu.Lock()
	if !m.power.InProgress {
		m.mu.Unlock()
		return
	}
	state := m.finishLocked()
	m.mu.Unlock()

	m.log.Info().Str("method", state.Method).Msg("power cycle recovery window elapsed, service health reset")
	m.emitter.EmitPowerCycle(state)
}

// finishLocked completes an in-flight cycle and resets all service health.
func (m *Monitor) finishLocked() PowerCycleState {
	m.power.InProgress = false
	m.power.Success = true
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
	m.resetAllLocked()
	return m.power
}

// PowerCycleStatus returns the current power cycle state. A link that came
// back up after the cycle started ends the cycle early.
func (m *Monitor) PowerCycleStatus() PowerCycleState {
	m.mu.Lock()
	p := m.power
	early := false
	if p.InProgress && !p.ExpectedRecovery.IsZero() && m.link != nil && m.now().Before(p.ExpectedRecovery) {
		if since, up := m.link.ConnectedSince(); up && since.After(p.LastAttempt) {
			p = m.finishLocked()
			early = true
		}
	}
	m.mu.Unlock()

	if early {
		m.log.Info().Str("method", p.Method).Msg("robot reconnected before expected recovery, power cycle complete")
		m.emitter.EmitPowerCycle(p)
	}
	return p
}
