// Package engine assembles the per-robot context: telemetry link, caches,
// health monitor, action registry and workflow engine, and exposes the
// operations callers use to drive the robot.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"robotcore/actions"
	"robotcore/config"
	"robotcore/health"
	"robotcore/link"
	"robotcore/points"
	"robotcore/position"
	"robotcore/robot"
	"robotcore/telemetry"
	"robotcore/workflow"
)

type Options struct {
	Config *config.Config
	// Client overrides the device client built from Config.Robot.
	Client *robot.Client
	// Points are added to the directory after the configured points.
	Points    []points.Point
	Templates []workflow.TemplateSource
	Sinks     []workflow.RunSink
	Log       zerolog.Logger
	// Sleep replaces the wait used between status polls and after jack
	// commands.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine is the single owner of one robot's runtime state. Nothing outside
// it mutates the cache, tracker or health records.
type Engine struct {
	cfg       *config.Config
	deviceID  string
	client    *robot.Client
	cache     *telemetry.Cache
	tracker   *position.Tracker
	link      *link.Manager
	health    *health.Monitor
	points    *points.Catalog
	actions   *actions.Registry
	workflows *workflow.Engine
	sources   []workflow.TemplateSource
	Events    *EventBus
	log       zerolog.Logger

	stopPosition func()
}

func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	log := opts.Log.With().Str("device", cfg.Robot.ID).Logger()

	e := &Engine{
		cfg:      cfg,
		deviceID: cfg.Robot.ID,
		client:   opts.Client,
		cache:    telemetry.NewCache(),
		tracker:  position.NewTracker(),
		points:   points.NewCatalog(),
		sources:  opts.Templates,
		Events:   NewEventBus(log),
		log:      log.With().Str("component", "engine").Logger(),
	}
	if e.client == nil {
		e.client = robot.NewClient(cfg.Robot.BaseURL, cfg.Robot.Timeout)
	}
	for _, p := range cfg.Points {
		e.points.Put(points.Point{ID: p.ID, X: p.X, Y: p.Y, Theta: p.Theta})
	}
	for _, p := range opts.Points {
		e.points.Put(p)
	}

	e.link = link.NewManager(link.Config{
		DeviceID:          e.deviceID,
		URL:               cfg.Robot.WSURL,
		Topics:            cfg.Link.Topics,
		HeartbeatInterval: cfg.Link.HeartbeatInterval,
		HandshakeTimeout:  cfg.Link.HandshakeTimeout,
	}, e.cache, e.tracker, &linkEmitter{bus: e.Events}, log)

	e.health = health.NewMonitor(healthConfig(cfg), e.client, e.link, &healthEmitter{bus: e.Events, deviceID: e.deviceID}, log)

	e.actions = actions.NewRegistry(actions.Deps{
		Device: e.client,
		Points: e.points,
		Pose:   e.tracker,
		Config: actionsConfig(cfg),
		Log:    log,
		Sleep:  opts.Sleep,
	})

	sinks := append([]workflow.RunSink{&runEmitter{bus: e.Events, deviceID: e.deviceID}}, opts.Sinks...)
	e.workflows = workflow.NewEngine(e.actions, log, sinks...)
	return e
}

func healthConfig(cfg *config.Config) health.Config {
	h := cfg.Health
	return health.Config{
		Service:           h.Service,
		CheckMethod:       h.CheckMethod,
		CheckPath:         h.CheckPath,
		CheckInterval:     h.CheckInterval,
		RecoveryThreshold: h.RecoveryThreshold,
		RecoveryPaths:     h.RecoveryPaths,
		PowerCyclePaths:   h.PowerCyclePaths,
		ManualCooldown:    h.ManualCooldown,
		AutoCooldown:      h.AutoCooldown,
		RestartRecovery:   h.RestartRecovery,
		ShutdownRecovery:  h.ShutdownRecovery,
		RequestTimeout:    cfg.Robot.Timeout,
	}
}

func actionsConfig(cfg *config.Config) actions.Config {
	a := cfg.Actions
	return actions.Config{
		PollInterval:    a.PollInterval,
		NavigateRetries: a.NavigateRetries,
		AlignRetries:    a.AlignRetries,
		UnloadRetries:   a.UnloadRetries,
		ChargerRetries:  a.ChargerRetries,
		JackUpWait:      a.JackUpWait,
		JackDownWait:    a.JackDownWait,
		Accuracy:        a.Accuracy,
		ChargerPoint:    a.ChargerPoint,
	}
}

// Start loads workflow templates, opens the telemetry link and starts the
// health check. Template load failures are logged and skipped.
func (e *Engine) Start(ctx context.Context) {
	sources := e.sources
	if path := e.cfg.Workflows.TemplatesFile; path != "" {
		sources = append(sources, workflow.FileSource{Path: path})
	}
	for _, src := range sources {
		n, err := e.workflows.Load(ctx, src)
		if err != nil {
			e.log.Warn().Err(err).Msg("load templates")
		}
		if n > 0 {
			e.log.Info().Int("count", n).Msg("templates loaded")
		}
	}

	e.stopPosition = e.tracker.OnUpdate(func(p position.Position) {
		e.Events.Emit(Event{Type: EventPosition, DeviceID: e.deviceID, Payload: PositionEvent{Position: p}})
	})

	e.link.Connect()
	e.health.Start()
	e.log.Info().Str("base_url", e.client.BaseURL()).Msg("engine started")
}

// Shutdown closes the link and stops background work. It does not stop the
// robot; use Stop for that.
func (e *Engine) Shutdown() {
	e.health.Stop()
	e.link.Close()
	if e.stopPosition != nil {
		e.stopPosition()
	}
	e.log.Info().Msg("engine stopped")
}

// Accessors
func (e *Engine) DeviceID() string            { return e.deviceID }
func (e *Engine) AppConfig() *config.Config   { return e.cfg }
func (e *Engine) Client() *robot.Client       { return e.client }
func (e *Engine) Cache() *telemetry.Cache     { return e.cache }
func (e *Engine) Tracker() *position.Tracker  { return e.tracker }
func (e *Engine) Link() *link.Manager         { return e.link }
func (e *Engine) Health() *health.Monitor     { return e.health }
func (e *Engine) Points() *points.Catalog     { return e.points }
func (e *Engine) Actions() *actions.Registry  { return e.actions }
func (e *Engine) Workflows() *workflow.Engine { return e.workflows }

func (e *Engine) ConnectionState() telemetry.ConnectionState {
	return e.link.State()
}

// SubmitWorkflow builds the template against inputs and runs it to
// completion. Input problems are returned as an error before any step runs.
func (e *Engine) SubmitWorkflow(ctx context.Context, templateID string, inputs map[string]any) (*workflow.Run, error) {
	return e.workflows.Submit(ctx, templateID, inputs)
}

// CachedView returns the view for category. While the link is down the
// view carries its disconnected shape.
func (e *Engine) CachedView(cat telemetry.Category) any {
	return e.cache.View(e.deviceID, cat)
}

// PointInfo looks up a point in the directory.
func (e *Engine) PointInfo(id string) (points.Point, bool) {
	return e.points.Lookup(id)
}

func (e *Engine) ServiceHealth(name string) (health.ServiceHealth, bool) {
	return e.health.Health(name)
}

func (e *Engine) TriggerPowerCycle(ctx context.Context, method string) health.PowerCycleResult {
	return e.health.RemotePowerCycle(ctx, method)
}

func (e *Engine) PowerCycleStatus() health.PowerCycleState {
	return e.health.PowerCycleStatus()
}

// ExecuteAction runs a single action outside any workflow.
func (e *Engine) ExecuteAction(ctx context.Context, id string, p actions.Params) actions.Result {
	res := e.actions.Execute(ctx, id, p)
	e.Events.Emit(Event{Type: EventActionExecuted, DeviceID: e.deviceID, Payload: ActionEvent{
		ActionID: id,
		Params:   p,
		Result:   res,
	}})
	return res
}

// Stop cancels the robot's current motion. In-flight polling loops are not
// interrupted; they observe the cancelled state on their next poll.
func (e *Engine) Stop(ctx context.Context, reason string) error {
	err := e.actions.Stop(ctx)
	ev := MotionStoppedEvent{Reason: reason}
	if err != nil {
		ev.Error = err.Error()
	}
	e.Events.Emit(Event{Type: EventMotionStopped, DeviceID: e.deviceID, Payload: ev})
	return err
}

// Reconnect forces the telemetry link to reconnect.
func (e *Engine) Reconnect() {
	e.link.Reconnect()
}

// ReconfigureRobot points the command channel and the telemetry link at
// the configured endpoints and forces the link to reconnect.
func (e *Engine) ReconfigureRobot() {
	e.cfg.Lock()
	base, ws, timeout := e.cfg.Robot.BaseURL, e.cfg.Robot.WSURL, e.cfg.Robot.Timeout
	e.cfg.Unlock()
	e.client.Reconfigure(base, timeout)
	e.link.SetURL(ws)
	e.log.Info().Str("base_url", base).Str("ws_url", ws).Msg("robot reconfigured")
	e.link.Reconnect()
}
