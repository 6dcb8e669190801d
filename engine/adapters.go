package engine

import (
	"context"

	"robotcore/health"
	"robotcore/telemetry"
	"robotcore/workflow"
)

// linkEmitter bridges the link manager's emitter interface to the EventBus.
type linkEmitter struct {
	bus *EventBus
}

func (e *linkEmitter) EmitConnectionState(deviceID string, state telemetry.ConnectionState, detail string) {
	e.bus.Emit(Event{Type: EventConnectionChanged, DeviceID: deviceID, Payload: ConnectionEvent{
		State:  state,
		Detail: detail,
	}})
}

func (e *linkEmitter) EmitTelemetry(deviceID string, category telemetry.Category, topic string) {
	e.bus.Emit(Event{Type: EventTelemetry, DeviceID: deviceID, Payload: TelemetryEvent{
		Category: category,
		Topic:    topic,
	}})
}

// healthEmitter bridges the health monitor's transitions to the EventBus.
type healthEmitter struct {
	bus      *EventBus
	deviceID string
}

func (e *healthEmitter) EmitServiceHealth(service string, h health.ServiceHealth) {
	e.bus.Emit(Event{Type: EventServiceHealth, DeviceID: e.deviceID, Payload: ServiceHealthEvent{
		Service: service,
		Health:  h,
	}})
}

func (e *healthEmitter) EmitPowerCycle(state health.PowerCycleState) {
	e.bus.Emit(Event{Type: EventPowerCycle, DeviceID: e.deviceID, Payload: PowerCycleEvent{State: state}})
}

// runEmitter publishes finished workflow runs on the EventBus.
type runEmitter struct {
	bus      *EventBus
	deviceID string
}

func (e *runEmitter) RecordRun(_ context.Context, run *workflow.Run) error {
	typ := EventWorkflowCompleted
	if !run.Success {
		typ = EventWorkflowAborted
	}
	e.bus.Emit(Event{Type: typ, DeviceID: e.deviceID, Payload: WorkflowEvent{Run: run}})
	return nil
}
