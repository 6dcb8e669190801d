package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoTopic      = errors.New("frame has no topic")
	ErrUnknownTopic = errors.New("unknown topic")
)

// Frame is one decoded inbound telemetry message.
type Frame struct {
	Topic    string
	Category Category
	Received time.Time
	Payload  Payload
}

// Payload is the typed body of a frame. Each topic decodes to exactly one
// implementation.
type Payload interface {
	payloadTopic() string
}

type PosePayload struct {
	Pos [2]float64 `json:"pos"`
	Ori float64    `json:"ori"`
}

func (p PosePayload) X() float64     { return p.Pos[0] }
func (p PosePayload) Y() float64     { return p.Pos[1] }
func (p PosePayload) Theta() float64 { return p.Ori }

type BatteryPayload struct {
	Percentage        float64 `json:"percentage"`
	Voltage           float64 `json:"voltage"`
	Current           float64 `json:"current"`
	PowerSupplyStatus string  `json:"power_supply_status"`
}

type WheelPayload struct {
	ControlMode          string `json:"control_mode"`
	EmergencyStopPressed bool   `json:"emergency_stop_pressed"`
	WheelsReleased       bool   `json:"wheels_released"`
}

type SlamPayload struct {
	State    string `json:"state"`
	Reliable bool   `json:"reliable"`
}

type JackPayload struct {
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
}

type Alert struct {
	Code  int    `json:"code"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

type AlertPayload struct {
	Alerts []Alert `json:"alerts"`
}

type MapPayload struct {
	Resolution float64    `json:"resolution"`
	Size       [2]int     `json:"size"`
	Origin     [2]float64 `json:"origin"`
	Data       string     `json:"data"`
}

type ScanPayload struct {
	Stamp  float64      `json:"stamp"`
	Points [][3]float64 `json:"points"`
}

type CameraPayload struct {
	Stamp  float64 `json:"stamp"`
	Format string  `json:"format"`
	Data   string  `json:"data"`
}

type IMUPayload struct {
	AngularVelocity    [3]float64 `json:"angular_velocity"`
	LinearAcceleration [3]float64 `json:"linear_acceleration"`
}

type UltrasonicPayload struct {
	Ranges []float64 `json:"ranges"`
}

func (PosePayload) payloadTopic() string       { return TopicPose }
func (BatteryPayload) payloadTopic() string    { return TopicBattery }
func (WheelPayload) payloadTopic() string      { return TopicWheel }
func (SlamPayload) payloadTopic() string       { return TopicSlam }
func (JackPayload) payloadTopic() string       { return TopicJack }
func (AlertPayload) payloadTopic() string      { return TopicAlerts }
func (MapPayload) payloadTopic() string        { return TopicMap }
func (ScanPayload) payloadTopic() string       { return TopicScan }
func (CameraPayload) payloadTopic() string     { return TopicCamera }
func (IMUPayload) payloadTopic() string        { return TopicIMU }
func (UltrasonicPayload) payloadTopic() string { return TopicUltrasonic }

// Decode parses a raw frame. Frames without a topic return ErrNoTopic;
// frames on topics outside the table return ErrUnknownTopic.
func Decode(data []byte) (Frame, error) {
	var header struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return Frame{}, fmt.Errorf("decode frame header: %w", err)
	}
	if header.Topic == "" {
		return Frame{}, ErrNoTopic
	}
	cat, ok := CategoryOf(header.Topic)
	if !ok {
		return Frame{}, fmt.Errorf("%w: %s", ErrUnknownTopic, header.Topic)
	}

	var payload Payload
	var err error
	switch header.Topic {
	case TopicPose:
		payload, err = decodeAs[PosePayload](data)
	case TopicBattery:
		payload, err = decodeAs[BatteryPayload](data)
	case TopicWheel:
		payload, err = decodeAs[WheelPayload](data)
	case TopicSlam:
		payload, err = decodeAs[SlamPayload](data)
	case TopicJack:
		payload, err = decodeAs[JackPayload](data)
	case TopicAlerts:
		payload, err = decodeAs[AlertPayload](data)
	case TopicMap:
		payload, err = decodeAs[MapPayload](data)
	case TopicScan:
		payload, err = decodeAs[ScanPayload](data)
	case TopicCamera:
		payload, err = decodeAs[CameraPayload](data)
	case TopicIMU:
		payload, err = decodeAs[IMUPayload](data)
	case TopicUltrasonic:
		payload, err = decodeAs[UltrasonicPayload](data)
	}
	if err != nil {
		return Frame{}, fmt.Errorf("decode %s: %w", header.Topic, err)
	}
	return Frame{Topic: header.Topic, Category: cat, Received: time.Now(), Payload: payload}, nil
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
