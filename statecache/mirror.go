package statecache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"robotcore/engine"
	"robotcore/health"
	"robotcore/telemetry"
)

// Store is the write side of the shared cache. *RedisStore implements it.
type Store interface {
	SetView(ctx context.Context, deviceID string, cat telemetry.Category, view any) error
	SetConnection(ctx context.Context, deviceID string, state telemetry.ConnectionState) error
	SetHealth(ctx context.Context, deviceID, service string, h health.ServiceHealth) error
}

// Viewer supplies the local views being mirrored.
type Viewer interface {
	DeviceID() string
	CachedView(cat telemetry.Category) any
}

// Mirror copies views into the Store. Telemetry only marks a category dirty;
// dirty categories are flushed on every tick so a 10 Hz pose stream costs
// one write per interval. Connection and health changes are written at once.
type Mirror struct {
	bus      *engine.EventBus
	viewer   Viewer
	store    Store
	interval time.Duration
	log      zerolog.Logger

	mu    sync.Mutex
	dirty map[telemetry.Category]bool

	subID    engine.SubscriberID
	stopChan chan struct{}
	done     chan struct{}
}

func NewMirror(bus *engine.EventBus, viewer Viewer, store Store, interval time.Duration, log zerolog.Logger) *Mirror {
	if interval <= 0 {
		interval = time.Second
	}
	return &Mirror{
		bus:      bus,
		viewer:   viewer,
		store:    store,
		interval: interval,
		log:      log.With().Str("component", "statecache").Logger(),
		dirty:    make(map[telemetry.Category]bool),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *Mirror) Start() {
	m.subID = m.bus.SubscribeTypes(m.handle,
		engine.EventTelemetry,
		engine.EventConnectionChanged,
		engine.EventServiceHealth,
	)
	m.writeAll()
	go m.run()
}

func (m *Mirror) Stop() {
	m.bus.Unsubscribe(m.subID)
	close(m.stopChan)
	<-m.done
}

func (m *Mirror) handle(evt engine.Event) {
	switch p := evt.Payload.(type) {
	case engine.TelemetryEvent:
		m.mu.Lock()
		m.dirty[p.Category] = true
		m.mu.Unlock()
	case engine.ConnectionEvent:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.SetConnection(ctx, evt.DeviceID, p.State); err != nil {
			m.log.Warn().Err(err).Msg("mirror connection state")
		}
		// every view changes shape with the connection state
		m.mu.Lock()
		for _, c := range telemetry.Categories() {
			m.dirty[c] = true
		}
		m.mu.Unlock()
	case engine.ServiceHealthEvent:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.SetHealth(ctx, evt.DeviceID, p.Service, p.Health); err != nil {
			m.log.Warn().Err(err).Str("service", p.Service).Msg("mirror service health")
		}
	}
}

func (m *Mirror) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopChan:
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

// Flush writes every dirty view.
func (m *Mirror) Flush() {
	m.mu.Lock()
	cats := make([]telemetry.Category, 0, len(m.dirty))
	for c := range m.dirty {
		cats = append(cats, c)
	}
	m.dirty = make(map[telemetry.Category]bool)
	m.mu.Unlock()

	m.write(cats)
}

func (m *Mirror) writeAll() {
	m.write(telemetry.Categories())
}

func (m *Mirror) write(cats []telemetry.Category) {
	if len(cats) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dev := m.viewer.DeviceID()
	for _, c := range cats {
		if err := m.store.SetView(ctx, dev, c, m.viewer.CachedView(c)); err != nil {
			m.log.Warn().Err(err).Str("category", string(c)).Msg("mirror view")
		}
	}
}
