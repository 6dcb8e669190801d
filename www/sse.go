package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"robotcore/engine"
)

type SSEEvent struct {
	Event string
	Data  string
}

type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
	log       zerolog.Logger
}

func NewEventHub(log zerolog.Logger) *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}, 1),
		log:       log,
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	select {
	case h.stopChan <- struct{}{}:
	default:
	}
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.fanOut(evt)
		case <-keepalive.C:
			h.fanOut(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

func (h *EventHub) fanOut(evt SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
			// slow client, drop
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
	}
}

// BroadcastJSON marshals v and broadcasts it under event.
func (h *EventHub) BroadcastJSON(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Warn().Err(err).Str("event", event).Msg("sse: encode")
		return
	}
	h.Broadcast(event, string(data))
}

func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupEngineListeners wires engine events to SSE broadcasts.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.ConnectionEvent)
		h.BroadcastJSON("connection", map[string]any{
			"device": evt.DeviceID,
			"state":  ev.State,
			"detail": ev.Detail,
		})
	}, engine.EventConnectionChanged)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.TelemetryEvent)
		h.BroadcastJSON("telemetry", map[string]any{
			"device":   evt.DeviceID,
			"category": ev.Category,
			"topic":    ev.Topic,
		})
	}, engine.EventTelemetry)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.BroadcastJSON("position", evt.Payload.(engine.PositionEvent).Position)
	}, engine.EventPosition)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.ServiceHealthEvent)
		h.BroadcastJSON("service-health", map[string]any{
			"service": ev.Service,
			"health":  ev.Health,
		})
	}, engine.EventServiceHealth)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.BroadcastJSON("power-cycle", evt.Payload.(engine.PowerCycleEvent).State)
	}, engine.EventPowerCycle)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		run := evt.Payload.(engine.WorkflowEvent).Run
		h.BroadcastJSON("workflow", map[string]any{
			"type":     evt.Type.String(),
			"run_id":   run.ID,
			"template": run.TemplateID,
			"status":   run.Status,
			"error":    run.Error,
		})
	}, engine.EventWorkflowCompleted, engine.EventWorkflowAborted)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.ActionEvent)
		h.BroadcastJSON("action", map[string]any{
			"action":  ev.ActionID,
			"success": ev.Result.Success,
			"error":   ev.Result.Error,
		})
	}, engine.EventActionExecuted)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.MotionStoppedEvent)
		h.BroadcastJSON("motion-stopped", map[string]any{
			"reason": ev.Reason,
			"error":  ev.Error,
		})
	}, engine.EventMotionStopped)
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.AddClient()
	defer h.RemoveClient(ch)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				h.log.Debug().Err(err).Msg("sse: write")
				return
			}
			flusher.Flush()
		}
	}
}
