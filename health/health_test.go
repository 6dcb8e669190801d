package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller answers 2xx for paths in ok and fails everything else.
type fakeCaller struct {
	mu    sync.Mutex
	ok    map[string]bool
	calls []string
}

func newFakeCaller(ok ...string) *fakeCaller {
	c := &fakeCaller{ok: make(map[string]bool)}
	for _, p := range ok {
		c.ok[p] = true
	}
	return c
}

func (c *fakeCaller) Call(_ context.Context, method, path string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, method+" "+path)
	if c.ok[path] {
		return nil
	}
	return errors.New("503 service unavailable")
}

func (c *fakeCaller) setOK(path string, ok bool) {
	c.mu.Lock()
	c.ok[path] = ok
	c.mu.Unlock()
}

func (c *fakeCaller) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeLink struct {
	mu    sync.Mutex
	since time.Time
	up    bool
}

func (l *fakeLink) ConnectedSince() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.since, l.up
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	health []ServiceHealth
	power  []PowerCycleState
}

func (r *recorder) EmitServiceHealth(_ string, h ServiceHealth) {
	r.mu.Lock()
	r.health = append(r.health, h)
	r.mu.Unlock()
}

func (r *recorder) EmitPowerCycle(s PowerCycleState) {
	r.mu.Lock()
	r.power = append(r.power, s)
	r.mu.Unlock()
}

func newTestMonitor(caller Caller, link LinkState) (*Monitor, *clock, *recorder) {
	clk := &clock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	m := NewMonitor(DefaultConfig(), caller, link, rec, zerolog.Nop())
	m.now = clk.now
	return m, clk, rec
}

func TestSuccessfulCheckResetsFailureEpisode(t *testing.T) {
	m, _, _ := newTestMonitor(newFakeCaller(), nil)

	for i := 0; i < 3; i++ {
		m.UpdateHealth("jack", false, errors.New("timeout"))
	}
	assert.False(t, m.AttemptRecovery(context.Background(), "jack"))

	h, ok := m.Health("jack")
	require.True(t, ok)
	assert.Equal(t, 3, h.ConsecutiveFailures)
	assert.True(t, h.RecoveryAttempted)
	assert.False(t, h.Available)
	assert.Equal(t, "timeout", h.LastError)

	m.UpdateHealth("jack", true, nil)
	h, _ = m.Health("jack")
	assert.True(t, h.Available)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.False(t, h.RecoveryAttempted)
	assert.Empty(t, h.LastError)
}

func TestUpdateHealthEmitsOnlyTransitions(t *testing.T) {
	m, _, rec := newTestMonitor(newFakeCaller(), nil)

	m.UpdateHealth("jack", true, nil)
	m.UpdateHealth("jack", true, nil)
	m.UpdateHealth("jack", false, errors.New("a"))
	m.UpdateHealth("jack", false, errors.New("b"))
	m.UpdateHealth("jack", false, errors.New("c"))
	m.UpdateHealth("jack", true, nil)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.health, 3)
	assert.True(t, rec.health[0].Available)
	assert.Equal(t, 1, rec.health[1].ConsecutiveFailures)
	assert.True(t, rec.health[2].Available)
}

func TestAttemptRecoveryOncePerEpisode(t *testing.T) {
	caller := newFakeCaller("/services/jack_reset")
	m, _, _ := newTestMonitor(caller, nil)
	m.UpdateHealth("jack", false, nil)

	assert.True(t, m.AttemptRecovery(context.Background(), "jack"))
	assert.Equal(t, []string{
		"POST /services/jack/reset",
		"POST /services/jack_reset",
	}, caller.Calls())

	assert.False(t, m.AttemptRecovery(context.Background(), "jack"), "second attempt in the same episode")
	assert.Len(t, caller.Calls(), 2)

	m.UpdateHealth("jack", true, nil)
	m.UpdateHealth("jack", false, nil)
	assert.True(t, m.AttemptRecovery(context.Background(), "jack"), "new episode")
}

func TestAttemptRecoverySkipsHealthyService(t *testing.T) {
	caller := newFakeCaller("/services/jack/reset")
	m, _, _ := newTestMonitor(caller, nil)
	m.UpdateHealth("jack", true, nil)
	assert.False(t, m.AttemptRecovery(context.Background(), "jack"))
	assert.Empty(t, caller.Calls())
}

func TestCheckEscalatesAfterThreshold(t *testing.T) {
	caller := newFakeCaller("/services/restart_robot")
	m, _, rec := newTestMonitor(caller, nil)
	ctx := context.Background()

	m.Check(ctx)
	m.Check(ctx)
	assert.Empty(t, rec.power, "no escalation at two failures")

	m.Check(ctx)
	m.wg.Wait()

	calls := caller.Calls()
	assert.Contains(t, calls, "POST /services/jack/reset")
	assert.Contains(t, calls, "POST /services/restart_robot")

	st := m.PowerCycleStatus()
	assert.True(t, st.InProgress)
	assert.Equal(t, MethodRestart, st.Method)

	// the same episode does not escalate again
	m.Check(ctx)
	m.wg.Wait()
	n := 0
	for _, c := range caller.Calls() {
		if c == "POST /services/restart_robot" {
			n++
		}
	}
	assert.Equal(t, 1, n)
	m.Stop()
}

func TestAutomaticCycleRespectsCooldown(t *testing.T) {
	caller := newFakeCaller()
	m, clk, _ := newTestMonitor(caller, nil)

	m.escalate("jack")
	m.wg.Wait()
	first := len(caller.Calls())
	require.NotZero(t, first)

	clk.advance(6 * time.Minute)
	m.escalate("jack")
	m.wg.Wait()
	assert.Equal(t, first, len(caller.Calls()), "within the automatic cooldown")

	clk.advance(5 * time.Minute)
	m.escalate("jack")
	m.wg.Wait()
	assert.Greater(t, len(caller.Calls()), first)
}

func TestPowerCycleCooldown(t *testing.T) {
	caller := newFakeCaller("/services/restart_robot")
	m, clk, _ := newTestMonitor(caller, nil)
	defer m.Stop()
	ctx := context.Background()

	first := m.RemotePowerCycle(ctx, MethodRestart)
	require.True(t, first.Success, first.Message)
	assert.Equal(t, clk.now().Add(2*time.Minute), first.ExpectedRecovery)

	// finish the cycle so only the cooldown stands in the way
	m.recoveryDeadline()
	clk.advance(90 * time.Second)

	second := m.RemotePowerCycle(ctx, MethodRestart)
	assert.False(t, second.Success)
	assert.Contains(t, second.Message, "210 seconds")

	clk.advance(210 * time.Second)
	third := m.RemotePowerCycle(ctx, MethodRestart)
	assert.True(t, third.Success, third.Message)
}

func TestPowerCycleRejectsWhileInProgress(t *testing.T) {
	caller := newFakeCaller("/services/shutdown_robot")
	m, clk, _ := newTestMonitor(caller, nil)
	defer m.Stop()

	res := m.RemotePowerCycle(context.Background(), MethodShutdown)
	require.True(t, res.Success)
	assert.Equal(t, clk.now().Add(5*time.Minute), res.ExpectedRecovery)

	clk.advance(10 * time.Minute)
	res = m.RemotePowerCycle(context.Background(), MethodRestart)
	assert.False(t, res.Success)
	assert.Equal(t, "Power cycle already in progress", res.Message)
}

func TestPowerCycleTriesAlternates(t *testing.T) {
	caller := newFakeCaller("/system/restart")
	m, _, _ := newTestMonitor(caller, nil)
	defer m.Stop()

	res := m.RemotePowerCycle(context.Background(), MethodRestart)
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "/system/restart")

	calls := caller.Calls()
	assert.Equal(t, "POST /services/restart_robot", calls[0])
	assert.Equal(t, "POST /system/restart", calls[len(calls)-1])
	assert.Equal(t, "/system/restart", m.PowerCycleStatus().Endpoint)
}

func TestPowerCycleAllEndpointsFail(t *testing.T) {
	caller := newFakeCaller()
	m, _, rec := newTestMonitor(caller, nil)

	res := m.RemotePowerCycle(context.Background(), MethodRestart)
	assert.False(t, res.Success)
	assert.Equal(t, "All power cycle attempts failed", res.Message)
	assert.GreaterOrEqual(t, len(caller.Calls()), 11)

	st := m.PowerCycleStatus()
	assert.False(t, st.InProgress)
	assert.Equal(t, "All power cycle attempts failed", st.Error)

	rec.mu.Lock()
	assert.Len(t, rec.power, 2)
	rec.mu.Unlock()
}

func TestPowerCycleRejectsUnknownMethod(t *testing.T) {
	m, _, _ := newTestMonitor(newFakeCaller(), nil)
	res := m.RemotePowerCycle(context.Background(), "reboot")
	assert.False(t, res.Success)
}

func TestPowerCycleDetectsEarlyRecovery(t *testing.T) {
	caller := newFakeCaller("/services/restart_robot")
	link := &fakeLink{}
	m, clk, _ := newTestMonitor(caller, link)
	defer m.Stop()

	m.UpdateHealth("jack", false, errors.New("down"))
	res := m.RemotePowerCycle(context.Background(), MethodRestart)
	require.True(t, res.Success)
	start := clk.now()

	// an old connection does not count
	link.mu.Lock()
	link.since, link.up = start.Add(-time.Minute), true
	link.mu.Unlock()
	assert.True(t, m.PowerCycleStatus().InProgress)

	clk.advance(40 * time.Second)
	link.mu.Lock()
	link.since = clk.now()
	link.mu.Unlock()

	st := m.PowerCycleStatus()
	assert.False(t, st.InProgress)
	assert.True(t, st.Success)

	h, _ := m.Health("jack")
	assert.True(t, h.Available)
	assert.Zero(t, h.ConsecutiveFailures)
}

func TestRecoveryDeadlineResetsHealth(t *testing.T) {
	caller := newFakeCaller("/services/restart_robot")
	m, _, _ := newTestMonitor(caller, nil)
	m.cfg.RestartRecovery = 20 * time.Millisecond

	m.UpdateHealth("jack", false, errors.New("down"))
	require.True(t, m.RemotePowerCycle(context.Background(), MethodRestart).Success)

	require.Eventually(t, func() bool {
		return !m.PowerCycleStatus().InProgress
	}, time.Second, 5*time.Millisecond)
	h, _ := m.Health("jack")
	assert.True(t, h.Available)
}

// slowCaller takes delay per request, honours ctx, and accepts only okPath.
type slowCaller struct {
	delay  time.Duration
	okPath string
	mu     sync.Mutex
	calls  int
}

func (c *slowCaller) Call(ctx context.Context, _, path string, _ any) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.delay):
	}
	if path == c.okPath {
		return nil
	}
	return errors.New("404 not found")
}

func TestPowerCycleSweepOutlivesCallerDeadline(t *testing.T) {
	caller := &slowCaller{delay: 20 * time.Millisecond, okPath: "/chassis/restart"}
	m, _, _ := newTestMonitor(caller, nil)
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := m.RemotePowerCycle(ctx, MethodRestart)
	require.True(t, res.Success, res.Message)
	assert.Contains(t, res.Message, "/chassis/restart")

	caller.mu.Lock()
	assert.Equal(t, len(DefaultPowerCyclePaths()), caller.calls)
	caller.mu.Unlock()
	assert.Equal(t, "/chassis/restart", m.PowerCycleStatus().Endpoint)
}

func TestRejectedAutomaticCycleKeepsAutomaticWindow(t *testing.T) {
	caller := newFakeCaller("/services/restart_robot")
	m, clk, _ := newTestMonitor(caller, nil)
	defer m.Stop()

	manual := m.RemotePowerCycle(context.Background(), MethodRestart)
	require.True(t, manual.Success, manual.Message)

	// rejected: the manual cycle is still in progress
	m.escalate("jack")
	m.wg.Wait()
	assert.Len(t, caller.Calls(), 1)
	m.mu.Lock()
	assert.True(t, m.lastAuto.IsZero())
	m.mu.Unlock()

	m.recoveryDeadline()
	clk.advance(6 * time.Minute)
	m.escalate("jack")
	m.wg.Wait()
	assert.Len(t, caller.Calls(), 2)
	st := m.PowerCycleStatus()
	assert.True(t, st.InProgress)
	assert.Equal(t, clk.now(), st.LastAttempt)
}
