package engine

import (
	"robotcore/actions"
	"robotcore/health"
	"robotcore/position"
	"robotcore/telemetry"
	"robotcore/workflow"
)

const (
	EventConnectionChanged EventType = iota + 1
	EventTelemetry
	EventPosition
	EventServiceHealth
	EventPowerCycle
	EventWorkflowCompleted
	EventWorkflowAborted
	EventActionExecuted
	EventMotionStopped
)

var eventNames = map[EventType]string{
	EventConnectionChanged: "connection_changed",
	EventTelemetry:         "telemetry",
	EventPosition:          "position",
	EventServiceHealth:     "service_health",
	EventPowerCycle:        "power_cycle",
	EventWorkflowCompleted: "workflow_completed",
	EventWorkflowAborted:   "workflow_aborted",
	EventActionExecuted:    "action_executed",
	EventMotionStopped:     "motion_stopped",
}

func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// --- Event payloads ---

type ConnectionEvent struct {
	State  telemetry.ConnectionState
	Detail string
}

type TelemetryEvent struct {
	Category telemetry.Category
	Topic    string
}

type PositionEvent struct {
	Position position.Position
}

type ServiceHealthEvent struct {
	Service string
	Health  health.ServiceHealth
}

type PowerCycleEvent struct {
	State health.PowerCycleState
}

type WorkflowEvent struct {
	Run *workflow.Run
}

type ActionEvent struct {
	ActionID string
	Params   actions.Params
	Result   actions.Result
}

type MotionStoppedEvent struct {
	Reason string
	Error  string
}
