package protocol

import "time"

// --- Core -> subscribers ---

type ConnectionChanged struct {
	DeviceID string `json:"device_id"`
	State    string `json:"state"`
	Detail   string `json:"detail,omitempty"`
}

type ServiceHealth struct {
	DeviceID            string    `json:"device_id"`
	Service             string    `json:"service"`
	Available           bool      `json:"available"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	RecoveryAttempted   bool      `json:"recovery_attempted"`
	LastError           string    `json:"last_error,omitempty"`
	LastChecked         time.Time `json:"last_checked"`
}

type PowerCycle struct {
	DeviceID         string    `json:"device_id"`
	Method           string    `json:"method"`
	InProgress       bool      `json:"in_progress"`
	Success          bool      `json:"success"`
	Endpoint         string    `json:"endpoint,omitempty"`
	ExpectedRecovery time.Time `json:"expected_recovery,omitempty"`
	Error            string    `json:"error,omitempty"`
}

type WorkflowRun struct {
	DeviceID   string    `json:"device_id"`
	RunID      string    `json:"run_id"`
	TemplateID string    `json:"template_id"`
	Status     string    `json:"status"`
	Success    bool      `json:"success"`
	Steps      int       `json:"steps"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type ActionResult struct {
	DeviceID string `json:"device_id"`
	ActionID string `json:"action_id"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// --- Controllers -> core ---

type WorkflowSubmit struct {
	TemplateID string         `json:"template_id"`
	Inputs     map[string]any `json:"inputs,omitempty"`
}

type MotionStop struct {
	Reason string `json:"reason,omitempty"`
}

type PowerCycleRequest struct {
	Method string `json:"method"`
}

// --- Core -> controllers ---

type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}
