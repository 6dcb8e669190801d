// Package link owns the persistent telemetry connection to the robot. It
// keeps at most one live websocket, reconnects with backoff, and feeds every
// inbound frame into the telemetry cache and position tracker.
package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"robotcore/position"
	"robotcore/telemetry"
)

// Emitter receives connection and data events from the manager.
type Emitter interface {
	EmitConnectionState(deviceID string, state telemetry.ConnectionState, detail string)
	EmitTelemetry(deviceID string, category telemetry.Category, topic string)
}

type Config struct {
	DeviceID          string
	URL               string
	Topics            []string
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
}

type enableTopics struct {
	EnableTopic []string `json:"enable_topic"`
}

type Manager struct {
	cfg     Config
	cache   *telemetry.Cache
	tracker *position.Tracker
	emitter Emitter
	log     zerolog.Logger
	dialer  *websocket.Dialer
	now     func() time.Time

	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	state          telemetry.ConnectionState
	connecting     bool
	closed         bool
	backoff        backoff
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
	connectedSince time.Time
}

func NewManager(cfg Config, cache *telemetry.Cache, tracker *position.Tracker, emitter Emitter, log zerolog.Logger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = telemetry.AllTopics()
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Manager{
		cfg:     cfg,
		cache:   cache,
		tracker: tracker,
		emitter: emitter,
		log:     log.With().Str("component", "link").Str("device", cfg.DeviceID).Logger(),
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		now:     time.Now,
		state:   telemetry.StateDisconnected,
		backoff: newBackoff(),
	}
}

// Connect starts a connection attempt. It is a no-op while an attempt is in
// flight or a connection is already up.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.connecting || m.conn != nil {
		m.mu.Unlock()
		return
	}
	if wait := m.backoff.gapRemaining(m.now()); wait > 0 {
		m.mu.Unlock()
		m.log.Debug().Dur("wait", wait).Msg("connect attempt too soon, deferring")
		m.armReconnect(wait)
		return
	}
	m.connecting = true
	m.backoff.attempted(m.now())
	m.mu.Unlock()

	m.setState(telemetry.StateConnecting, "")
	go m.dial()
}

func (m *Manager) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	defer cancel()

	m.mu.Lock()
	url := m.cfg.URL
	m.mu.Unlock()
	conn, _, err := m.dialer.DialContext(ctx, url, nil)

	m.mu.Lock()
	m.connecting = false
	if err != nil {
		closed := m.closed
		m.mu.Unlock()
		m.log.Warn().Err(err).Str("url", url).Msg("connect failed")
		m.setState(telemetry.StateDisconnected, err.Error())
		if !closed {
			m.scheduleReconnect()
		}
		return
	}
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.backoff.reset()
	m.connectedSince = m.now()
	stop := make(chan struct{})
	m.heartbeatStop = stop
	m.mu.Unlock()

	readTimeout := 2 * m.cfg.HeartbeatInterval
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// frames from a previous connection are not trusted as live data
	m.cache.Clear(m.cfg.DeviceID)
	m.log.Info().Str("url", url).Msg("connected")
	m.setState(telemetry.StateConnected, url)

	if err := m.send(conn, enableTopics{EnableTopic: m.cfg.Topics}); err != nil {
		m.log.Warn().Err(err).Msg("enable topics failed")
		conn.Close()
	}

	go m.heartbeat(conn, stop)
	go m.readLoop(conn, readTimeout)
}

func (m *Manager) readLoop(conn *websocket.Conn, readTimeout time.Duration) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(conn, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		m.handleFrame(data)
	}
}

func (m *Manager) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(m.cfg.HeartbeatInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.log.Warn().Err(err).Msg("heartbeat failed")
				conn.Close()
				return
			}
		}
	}
}

func (m *Manager) handleFrame(data []byte) {
	f, err := telemetry.Decode(data)
	switch {
	case errors.Is(err, telemetry.ErrNoTopic):
		m.log.Debug().Bytes("frame", truncate(data, 200)).Msg("dropping frame without topic")
		return
	case err != nil:
		m.log.Warn().Err(err).Msg("dropping undecodable frame")
		return
	}

	m.cache.Put(m.cfg.DeviceID, f)
	if pose, ok := f.Payload.(telemetry.PosePayload); ok && m.tracker != nil {
		m.tracker.Update(position.Position{X: pose.X(), Y: pose.Y(), Theta: pose.Theta(), Timestamp: f.Received})
	}
	m.emitter.EmitTelemetry(m.cfg.DeviceID, f.Category, f.Topic)
}

func (m *Manager) handleDisconnect(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
	closed := m.closed
	m.mu.Unlock()

	conn.Close()
	if closed {
		m.setState(telemetry.StateDisconnected, "closed")
		return
	}
	m.log.Warn().Err(err).Msg("disconnected")
	m.setState(telemetry.StateDisconnected, err.Error())
	m.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer using the backoff policy.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	delay := m.backoff.next(m.now())
	attempt, persistent := m.backoff.attempt, m.backoff.persistentMode
	m.mu.Unlock()

	m.log.Info().Dur("delay", delay).Int("attempt", attempt).Bool("persistent", persistent).Msg("reconnecting")
	m.armReconnect(delay)
}

func (m *Manager) armReconnect(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectTimer = time.AfterFunc(delay, m.Connect)
}

// SetURL changes the endpoint used by the next connection attempt.
func (m *Manager) SetURL(url string) {
	m.mu.Lock()
	m.cfg.URL = url
	m.mu.Unlock()
}

// Reconnect drops the current connection, if any, and lets the reconnect
// policy bring it back. While disconnected it re-arms the pending attempt at
// the current delay without advancing the policy, so repeated requests
// during an outage do not count as failed dials.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	conn := m.conn
	if conn != nil {
		m.mu.Unlock()
		// the read loop observes the close and schedules the reconnect
		conn.Close()
		return
	}
	if m.closed || m.connecting {
		m.mu.Unlock()
		return
	}
	delay := m.backoff.current(m.now())
	m.mu.Unlock()

	m.log.Info().Dur("delay", delay).Msg("reconnect requested")
	m.armReconnect(delay)
}

// Close tears down the connection and disables reconnection.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.setState(telemetry.StateDisconnected, "closed")
		return
	}
	m.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	m.writeMu.Unlock()
	conn.Close()
}

// Send writes a control message on the live connection.
func (m *Manager) Send(v any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errors.New("link: not connected")
	}
	return m.send(conn, v)
}

func (m *Manager) send(conn *websocket.Conn, v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	return conn.WriteJSON(v)
}

func (m *Manager) setState(s telemetry.ConnectionState, detail string) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()

	m.cache.SetConnectionState(m.cfg.DeviceID, s)
	if changed {
		m.emitter.EmitConnectionState(m.cfg.DeviceID, s, detail)
	}
}

// State returns the current connection state.
func (m *Manager) State() telemetry.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnectedSince returns when the current connection was established.
func (m *Manager) ConnectedSince() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != telemetry.StateConnected {
		return time.Time{}, false
	}
	return m.connectedSince, true
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

type nopEmitter struct{}

func (nopEmitter) EmitConnectionState(string, telemetry.ConnectionState, string) {}
func (nopEmitter) EmitTelemetry(string, telemetry.Category, string)                {}
