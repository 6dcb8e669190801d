package messaging

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"robotcore/engine"
	"robotcore/protocol"
)

// Publisher sends an encoded envelope to a topic. *Client implements it.
type Publisher interface {
	PublishEnvelope(ctx context.Context, topic string, env interface{ Encode() ([]byte, error) }) error
}

// exported lists the bus events that leave the process. Telemetry and
// position events are high rate and stay local.
var exported = []engine.EventType{
	engine.EventConnectionChanged,
	engine.EventServiceHealth,
	engine.EventPowerCycle,
	engine.EventWorkflowCompleted,
	engine.EventWorkflowAborted,
	engine.EventActionExecuted,
}

// Exporter publishes engine events as protocol envelopes. Events are queued
// so a slow broker never blocks the emitting goroutine; when the queue is
// full the event is dropped and logged.
type Exporter struct {
	bus      *engine.EventBus
	pub      Publisher
	topic    string
	src      protocol.Address
	log      zerolog.Logger
	queue    chan *protocol.Envelope
	subID    engine.SubscriberID
	stopChan chan struct{}
	done     chan struct{}
}

func NewExporter(bus *engine.EventBus, pub Publisher, topic string, src protocol.Address, log zerolog.Logger) *Exporter {
	return &Exporter{
		bus:      bus,
		pub:      pub,
		topic:    topic,
		src:      src,
		log:      log.With().Str("component", "exporter").Logger(),
		queue:    make(chan *protocol.Envelope, 256),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (x *Exporter) Start() {
	x.subID = x.bus.SubscribeTypes(x.enqueue, exported...)
	go x.run()
}

// Stop unsubscribes and flushes whatever is already queued.
func (x *Exporter) Stop() {
	x.bus.Unsubscribe(x.subID)
	close(x.stopChan)
	<-x.done
}

func (x *Exporter) enqueue(evt engine.Event) {
	env, err := x.envelope(evt)
	if err != nil {
		x.log.Warn().Err(err).Str("event", evt.Type.String()).Msg("build envelope")
		return
	}
	if env == nil {
		return
	}
	select {
	case x.queue <- env:
	default:
		x.log.Warn().Str("type", env.Type).Msg("export queue full, event dropped")
	}
}

func (x *Exporter) run() {
	defer close(x.done)
	for {
		select {
		case env := <-x.queue:
			x.publish(env)
		case <-x.stopChan:
			for {
				select {
				case env := <-x.queue:
					x.publish(env)
				default:
					return
				}
			}
		}
	}
}

func (x *Exporter) publish(env *protocol.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := x.pub.PublishEnvelope(ctx, x.topic, env); err != nil {
		x.log.Warn().Err(err).Str("type", env.Type).Str("id", env.ID).Msg("publish failed")
	}
}

func (x *Exporter) envelope(evt engine.Event) (*protocol.Envelope, error) {
	dst := protocol.Address{Role: protocol.RoleController}
	src := x.src
	src.Device = evt.DeviceID

	switch p := evt.Payload.(type) {
	case engine.ConnectionEvent:
		return protocol.NewEnvelope(protocol.TypeConnectionChanged, src, dst, &protocol.ConnectionChanged{
			DeviceID: evt.DeviceID,
			State:    string(p.State),
			Detail:   p.Detail,
		})
	case engine.ServiceHealthEvent:
		return protocol.NewEnvelope(protocol.TypeServiceHealth, src, dst, &protocol.ServiceHealth{
			DeviceID:            evt.DeviceID,
			Service:             p.Service,
			Available:           p.Health.Available,
			ConsecutiveFailures: p.Health.ConsecutiveFailures,
			RecoveryAttempted:   p.Health.RecoveryAttempted,
			LastError:           p.Health.LastError,
			LastChecked:         p.Health.LastChecked,
		})
	case engine.PowerCycleEvent:
		return protocol.NewEnvelope(protocol.TypePowerCycle, src, dst, &protocol.PowerCycle{
			DeviceID:         evt.DeviceID,
			Method:           p.State.Method,
			InProgress:       p.State.InProgress,
			Success:          p.State.Success,
			Endpoint:         p.State.Endpoint,
			ExpectedRecovery: p.State.ExpectedRecovery,
			Error:            p.State.Error,
		})
	case engine.WorkflowEvent:
		r := p.Run
		return protocol.NewEnvelope(protocol.TypeWorkflowRun, src, dst, &protocol.WorkflowRun{
			DeviceID:   evt.DeviceID,
			RunID:      r.ID,
			TemplateID: r.TemplateID,
			Status:     string(r.Status),
			Success:    r.Success,
			Steps:      len(r.Steps),
			Error:      r.Error,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		})
	case engine.ActionEvent:
		return protocol.NewEnvelope(protocol.TypeActionResult, src, dst, &protocol.ActionResult{
			DeviceID: evt.DeviceID,
			ActionID: p.ActionID,
			Success:  p.Result.Success,
			Error:    p.Result.Error,
		})
	}
	return nil, nil
}
