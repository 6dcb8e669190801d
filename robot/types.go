package robot

// MoveType selects the controller's motion behaviour.
type MoveType string

const (
	MoveStandard      MoveType = "standard"
	MoveAlignWithRack MoveType = "align_with_rack"
	MoveToUnloadPoint MoveType = "to_unload_point"
	MoveCharge        MoveType = "charge"
)

// MoveState is the state field reported for a move.
type MoveState string

const (
	MoveIdle      MoveState = "idle"
	MoveMoving    MoveState = "moving"
	MoveSucceeded MoveState = "succeeded"
	MoveFinished  MoveState = "finished"
	MoveFailed    MoveState = "failed"
	MoveError     MoveState = "error"
	MoveCancelled MoveState = "cancelled"
)

// IsSuccess reports a terminal success state.
func (s MoveState) IsSuccess() bool {
	return s == MoveIdle || s == MoveSucceeded || s == MoveFinished
}

// IsFailure reports a terminal failure state.
func (s MoveState) IsFailure() bool {
	return s == MoveFailed || s == MoveError || s == MoveCancelled
}

func (s MoveState) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure()
}

// MoveRequest is the body of POST /chassis/moves.
type MoveRequest struct {
	Creator        string         `json:"creator"`
	Type           MoveType       `json:"type"`
	TargetX        float64        `json:"target_x"`
	TargetY        float64        `json:"target_y"`
	TargetOri      *float64       `json:"target_ori,omitempty"`
	TargetAccuracy float64        `json:"target_accuracy,omitempty"`
	TargetPoint    string         `json:"target_point,omitempty"`
	Properties     map[string]any `json:"properties,omitempty"`
}

type MoveResponse struct {
	ID int64 `json:"id"`
}

// MoveStatus is the body of GET /chassis/moves/{id}. Some firmware reports
// "status" instead of "state".
type MoveStatus struct {
	ID            int64     `json:"id"`
	State         MoveState `json:"state"`
	Status        MoveState `json:"status"`
	FailReason    int       `json:"fail_reason"`
	FailReasonStr string    `json:"fail_reason_str"`
	FailMessage   string    `json:"fail_message"`
	Error         string    `json:"error"`
}

// Effective returns whichever of state/status the device filled in.
func (m MoveStatus) Effective() MoveState {
	if m.State != "" {
		return m.State
	}
	return m.Status
}

// Reason returns the device-reported failure reason, if any.
func (m MoveStatus) Reason() string {
	switch {
	case m.FailMessage != "":
		return m.FailMessage
	case m.FailReasonStr != "":
		return m.FailReasonStr
	case m.Error != "":
		return m.Error
	}
	return ""
}

type cancelRequest struct {
	State MoveState `json:"state"`
}

// DeviceInfo is the body of GET /device/info.
type DeviceInfo struct {
	Serial  string `json:"sn"`
	Model   string `json:"model"`
	Version string `json:"version"`
}
