package telemetry

import "time"

// Every view honours the same three tiers: a disconnected device yields the
// zero shape with State=disconnected, a connected device with no frame of
// that category yields the zero shape with State=connecting, and otherwise
// the last frame is transformed into the view. Slices are never nil so the
// JSON shape is identical across tiers.

type StatusView struct {
	State            ConnectionState `json:"state"`
	BatteryPercent   float64         `json:"battery_percent"`
	Charging         bool            `json:"charging"`
	Voltage          float64         `json:"voltage"`
	ControlMode      string          `json:"control_mode"`
	EmergencyStop    bool            `json:"emergency_stop"`
	SlamState        string          `json:"slam_state"`
	PositionReliable bool            `json:"position_reliable"`
	JackState        string          `json:"jack_state"`
	Alerts           []Alert         `json:"alerts"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type PositionView struct {
	State     ConnectionState `json:"state"`
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Theta     float64         `json:"theta"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type SensorsView struct {
	State              ConnectionState `json:"state"`
	AngularVelocity    [3]float64      `json:"angular_velocity"`
	LinearAcceleration [3]float64      `json:"linear_acceleration"`
	Ultrasonic         []float64       `json:"ultrasonic"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type MapView struct {
	State      ConnectionState `json:"state"`
	Resolution float64         `json:"resolution"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	OriginX    float64         `json:"origin_x"`
	OriginY    float64         `json:"origin_y"`
	Data       string          `json:"data"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type LidarView struct {
	State     ConnectionState `json:"state"`
	Points    [][3]float64    `json:"points"`
	Count     int             `json:"count"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CameraView struct {
	State     ConnectionState `json:"state"`
	Format    string          `json:"format"`
	Data      string          `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// tier returns the placeholder state to report, or "" when real data should
// be served.
func (c *Cache) tier(deviceID string, cat Category) ConnectionState {
	if c.ConnectionState(deviceID) != StateConnected {
		return StateDisconnected
	}
	if _, ok := c.Get(deviceID, cat); !ok {
		return StateConnecting
	}
	return ""
}

func (c *Cache) Status(deviceID string) StatusView {
	v := StatusView{Alerts: []Alert{}}
	if s := c.tier(deviceID, CategoryStatus); s != "" {
		v.State = s
		return v
	}
	v.State = StateConnected
	if f, ok := c.Topic(deviceID, TopicBattery); ok {
		b, _ := f.Payload.(BatteryPayload)
		v.BatteryPercent = b.Percentage * 100
		v.Charging = b.PowerSupplyStatus == "charging"
		v.Voltage = b.Voltage
		v.UpdatedAt = latest(v.UpdatedAt, f.Received)
	}
	if f, ok := c.Topic(deviceID, TopicWheel); ok {
		w, _ := f.Payload.(WheelPayload)
		v.ControlMode = w.ControlMode
		v.EmergencyStop = w.EmergencyStopPressed
		v.UpdatedAt = latest(v.UpdatedAt, f.Received)
	}
	if f, ok := c.Topic(deviceID, TopicSlam); ok {
		s, _ := f.Payload.(SlamPayload)
		v.SlamState = s.State
		v.PositionReliable = s.Reliable
		v.UpdatedAt = latest(v.UpdatedAt, f.Received)
	}
	if f, ok := c.Topic(deviceID, TopicJack); ok {
		j, _ := f.Payload.(JackPayload)
		v.JackState = j.State
		v.UpdatedAt = latest(v.UpdatedAt, f.Received)
	}
	if f, ok := c.Topic(deviceID, TopicAlerts); ok {
		if a, _ := f.Payload.(AlertPayload); a.Alerts != nil {
			v.Alerts = a.Alerts
		}
		v.UpdatedAt = latest(v.UpdatedAt, f.Received)
	}
	return v
}

func (c *Cache) Position(deviceID string) PositionView {
	if s := c.tier(deviceID, CategoryPose); s != "" {
		return PositionView{State: s}
	}
	f, _ := c.Get(deviceID, CategoryPose)
	p, _ := f.Payload.(PosePayload)
	return PositionView{State: StateConnected, X: p.X(), Y: p.Y(), Theta: p.Theta(), UpdatedAt: f.Received}
}

func (c *Cache) Sensors(deviceID string) SensorsView {
	v := SensorsView{Ultrasonic: []float64{}}
	if s := c.tier(deviceID, CategorySensors); s != "" {
		v.State = s
		return v
	}
	v.State = StateConnected
	if f, ok := c.Topic(deviceID, TopicIMU); ok {
		imu, _ := f.Payload.(IMUPayload)
		v.AngularVelocity = imu.AngularVelocity
		v.LinearAcceleration = imu.LinearAcceleration
		v.UpdatedAt = latest(v.UpdatedAt, f.Received)
	}
	if f, ok := c.Topic(deviceID, TopicUltrasonic); ok {
		if u, _ := f.Payload.(UltrasonicPayload); u.Ranges != nil {
			v.Ultrasonic = u.Ranges
		}
		v.UpdatedAt = latest(v.UpdatedAt, f.Received)
	}
	return v
}

func (c *Cache) Map(deviceID string) MapView {
	if s := c.tier(deviceID, CategoryMap); s != "" {
		return MapView{State: s}
	}
	f, _ := c.Get(deviceID, CategoryMap)
	m, _ := f.Payload.(MapPayload)
	return MapView{
		State:      StateConnected,
		Resolution: m.Resolution,
		Width:      m.Size[0],
		Height:     m.Size[1],
		OriginX:    m.Origin[0],
		OriginY:    m.Origin[1],
		Data:       m.Data,
		UpdatedAt:  f.Received,
	}
}

func (c *Cache) Lidar(deviceID string) LidarView {
	v := LidarView{Points: [][3]float64{}}
	if s := c.tier(deviceID, CategoryLidar); s != "" {
		v.State = s
		return v
	}
	f, _ := c.Get(deviceID, CategoryLidar)
	scan, _ := f.Payload.(ScanPayload)
	v.State = StateConnected
	if scan.Points != nil {
		v.Points = scan.Points
	}
	v.Count = len(v.Points)
	v.UpdatedAt = f.Received
	return v
}

func (c *Cache) Camera(deviceID string) CameraView {
	if s := c.tier(deviceID, CategoryVideo); s != "" {
		return CameraView{State: s}
	}
	f, _ := c.Get(deviceID, CategoryVideo)
	cam, _ := f.Payload.(CameraPayload)
	return CameraView{State: StateConnected, Format: cam.Format, Data: cam.Data, UpdatedAt: f.Received}
}

// View dispatches to the view function for a category.
func (c *Cache) View(deviceID string, cat Category) any {
	switch cat {
	case CategoryStatus:
		return c.Status(deviceID)
	case CategoryPose:
		return c.Position(deviceID)
	case CategorySensors:
		return c.Sensors(deviceID)
	case CategoryMap:
		return c.Map(deviceID)
	case CategoryLidar:
		return c.Lidar(deviceID)
	case CategoryVideo:
		return c.Camera(deviceID)
	}
	return nil
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
