package protocol

// Message types.
const (
	// Core -> subscribers (published on the events topic)
	TypeConnectionChanged = "robot.connection"
	TypeServiceHealth     = "robot.service_health"
	TypePowerCycle        = "robot.power_cycle"
	TypeWorkflowRun       = "workflow.run"
	TypeActionResult      = "action.result"

	// Controllers -> core (consumed from the commands topic)
	TypeWorkflowSubmit    = "command.workflow_submit"
	TypeMotionStop        = "command.motion_stop"
	TypePowerCycleRequest = "command.power_cycle"

	// Core -> controllers
	TypeCommandResult = "command.result"
)

// Roles for Address.Role.
const (
	RoleRobot      = "robot"
	RoleController = "controller"
)

// Version is the envelope format version.
const Version = 1
