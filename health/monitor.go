// Package health tracks the availability of the robot's hardware services,
// attempts recovery through alternate endpoints and escalates to a remote
// power cycle when a service stays down.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrRecoveryExhausted is logged when neither the alternate endpoints nor a
// power cycle brought a service back.
var ErrRecoveryExhausted = errors.New("health: recovery exhausted")

// ServiceHealth is the availability record for one named service.
// Available implies ConsecutiveFailures == 0 and !RecoveryAttempted.
type ServiceHealth struct {
	Available           bool      `json:"available"`
	LastChecked         time.Time `json:"last_checked"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	RecoveryAttempted   bool      `json:"recovery_attempted"`
	LastError           string    `json:"last_error,omitempty"`
}

// Caller issues one request on the device command channel. Any 2xx is nil.
type Caller interface {
	Call(ctx context.Context, method, path string, body any) error
}

// LinkState reports when the telemetry link last came up.
type LinkState interface {
	ConnectedSince() (time.Time, bool)
}

// Emitter receives health transitions and power cycle updates.
type Emitter interface {
	EmitServiceHealth(service string, h ServiceHealth)
	EmitPowerCycle(state PowerCycleState)
}

type Config struct {
	// Service is the hardware service checked on every tick.
	Service       string
	CheckMethod   string
	CheckPath     string
	CheckInterval time.Duration
	// RecoveryThreshold is the failure count that must be exceeded before
	// recovery is attempted.
	RecoveryThreshold int
	RecoveryPaths     map[string][]string

	PowerCyclePaths  []string
	ManualCooldown   time.Duration
	AutoCooldown     time.Duration
	RestartRecovery  time.Duration
	ShutdownRecovery time.Duration
	RequestTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Service:           "jack",
		CheckMethod:       http.MethodGet,
		CheckPath:         "/services/jack/state",
		CheckInterval:     5 * time.Minute,
		RecoveryThreshold: 2,
		RecoveryPaths: map[string][]string{
			"jack": {"/services/jack/reset", "/services/jack_reset", "/api/services/jack/reset"},
		},
		PowerCyclePaths:  DefaultPowerCyclePaths(),
		ManualCooldown:   5 * time.Minute,
		AutoCooldown:     10 * time.Minute,
		RestartRecovery:  2 * time.Minute,
		ShutdownRecovery: 5 * time.Minute,
		RequestTimeout:   10 * time.Second,
	}
}

// Monitor owns every ServiceHealth record and the power cycle state of one
// device. Records change only through its methods.
type Monitor struct {
	cfg     Config
	caller  Caller
	link    LinkState
	emitter Emitter
	log     zerolog.Logger
	now     func() time.Time

	mu         sync.Mutex
	services   map[string]*ServiceHealth
	power      PowerCycleState
	lastAuto   time.Time
	resetTimer *time.Timer

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewMonitor(cfg Config, caller Caller, link LinkState, emitter Emitter, log zerolog.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.CheckMethod == "" {
		cfg.CheckMethod = def.CheckMethod
	}
	if cfg.RecoveryThreshold <= 0 {
		cfg.RecoveryThreshold = def.RecoveryThreshold
	}
	if len(cfg.PowerCyclePaths) == 0 {
		cfg.PowerCyclePaths = def.PowerCyclePaths
	}
	if cfg.ManualCooldown <= 0 {
		cfg.ManualCooldown = def.ManualCooldown
	}
	if cfg.AutoCooldown <= 0 {
		cfg.AutoCooldown = def.AutoCooldown
	}
	if cfg.RestartRecovery <= 0 {
		cfg.RestartRecovery = def.RestartRecovery
	}
	if cfg.ShutdownRecovery <= 0 {
		cfg.ShutdownRecovery = def.ShutdownRecovery
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Monitor{
		cfg:      cfg,
		caller:   caller,
		link:     link,
		emitter:  emitter,
		log:      log.With().Str("component", "health").Logger(),
		now:      time.Now,
		services: make(map[string]*ServiceHealth),
		stopChan: make(chan struct{}, 1),
	}
}

// UpdateHealth records the outcome of one check of a service. Only the
// healthy to failing and failing to healthy transitions are logged.
func (m *Monitor) UpdateHealth(name string, ok bool, err error) {
	m.mu.Lock()
	h, exists := m.services[name]
	if !exists {
		h = &ServiceHealth{Available: true}
		m.services[name] = h
	}
	wasAvailable := h.Available && h.ConsecutiveFailures == 0
	h.LastChecked = m.now()
	if ok {
		h.Available = true
		h.ConsecutiveFailures = 0
		h.RecoveryAttempted = false
		h.LastError = ""
	} else {
		h.Available = false
		h.ConsecutiveFailures++
		if err != nil {
			h.LastError = err.Error()
		}
	}
	snapshot := *h
	m.mu.Unlock()

	switch {
	case ok && !wasAvailable:
		m.log.Info().Str("service", name).Msg("service recovered")
		m.emitter.EmitServiceHealth(name, snapshot)
	case !ok && snapshot.ConsecutiveFailures == 1:
		m.log.Warn().Str("service", name).Str("error", snapshot.LastError).Msg("service failing")
		m.emitter.EmitServiceHealth(name, snapshot)
	case !exists:
		m.emitter.EmitServiceHealth(name, snapshot)
	}
}

// Health returns the record for a service.
func (m *Monitor) Health(name string) (ServiceHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.services[name]
	if !ok {
		return ServiceHealth{}, false
	}
	return *h, true
}

// All returns a copy of every service record.
func (m *Monitor) All() map[string]ServiceHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ServiceHealth, len(m.services))
	for name, h := range m.services {
		out[name] = *h
	}
	return out
}

// AttemptRecovery tries the alternate endpoints of a failing service in
// order and reports whether one answered 2xx. It runs at most once per
// failure episode.
func (m *Monitor) AttemptRecovery(ctx context.Context, name string) bool {
	m.mu.Lock()
	h, ok := m.services[name]
	if !ok || h.Available || h.RecoveryAttempted {
		m.mu.Unlock()
		return false
	}
	h.RecoveryAttempted = true
	m.mu.Unlock()

	paths := m.cfg.RecoveryPaths[name]
	for _, path := range paths {
		if err := m.call(ctx, http.MethodPost, path); err != nil {
			m.log.Debug().Err(err).Str("service", name).Str("path", path).Msg("recovery endpoint failed")
			continue
		}
		m.log.Info().Str("service", name).Str("path", path).Msg("recovery accepted")
		return true
	}
	m.log.Warn().Str("service", name).Int("endpoints", len(paths)).Msg("all recovery endpoints failed")
	return false
}

func (m *Monitor) call(ctx context.Context, method, path string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()
	return m.caller.Call(ctx, method, path, nil)
}

// Check calls the designated service once and escalates if it has been
// failing for long enough.
func (m *Monitor) Check(ctx context.Context) {
	name := m.cfg.Service
	err := m.call(ctx, m.cfg.CheckMethod, m.cfg.CheckPath)
	m.UpdateHealth(name, err == nil, err)
	if err == nil {
		return
	}

	h, _ := m.Health(name)
	if h.ConsecutiveFailures <= m.cfg.RecoveryThreshold || h.RecoveryAttempted {
		return
	}
	if m.AttemptRecovery(ctx, name) {
		return
	}
	m.escalate(name)
}

// escalate starts an automatic restart unless one ran within the automatic
// cooldown. It never blocks the caller. The automatic window is only used up
// by a cycle that actually starts.
func (m *Monitor) escalate(name string) {
	m.mu.Lock()
	now := m.now()
	if !m.lastAuto.IsZero() && now.Sub(m.lastAuto) < m.cfg.AutoCooldown {
		m.mu.Unlock()
		m.log.Error().Err(ErrRecoveryExhausted).Str("service", name).Msg("automatic power cycle on cooldown")
		return
	}
	m.mu.Unlock()

	m.log.Warn().Str("service", name).Msg("escalating to automatic power cycle")
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		res := m.powerCycle(context.Background(), MethodRestart, true)
		if !res.Success {
			m.log.Error().Err(fmt.Errorf("%w: %s", ErrRecoveryExhausted, res.Message)).Str("service", name).Msg("automatic power cycle failed")
		}
	}()
}

func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) Stop() {
	select {
	case m.stopChan <- struct{}{}:
	default:
	}
	m.mu.Lock()
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.Check(context.Background())
		}
	}
}

// resetAllLocked marks every service healthy. Callers hold m.mu.
func (m *Monitor) resetAllLocked() []string {
	names := make([]string, 0, len(m.services))
	now := m.now()
	for name, h := range m.services {
		*h = ServiceHealth{Available: true, LastChecked: now}
		names = append(names, name)
	}
	return names
}

type nopEmitter struct{}

func (nopEmitter) EmitServiceHealth(string, ServiceHealth) {}
func (nopEmitter) EmitPowerCycle(PowerCycleState)          {}
