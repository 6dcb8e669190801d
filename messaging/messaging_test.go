package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robotcore/config"
	"robotcore/engine"
	"robotcore/health"
	"robotcore/protocol"
	"robotcore/telemetry"
	"robotcore/workflow"
)

type memPublisher struct {
	mu   sync.Mutex
	sent []*protocol.Envelope
	got  chan struct{}
}

func newMemPublisher() *memPublisher {
	return &memPublisher{got: make(chan struct{}, 64)}
}

func (m *memPublisher) PublishEnvelope(_ context.Context, _ string, env interface{ Encode() ([]byte, error) }) error {
	m.mu.Lock()
	m.sent = append(m.sent, env.(*protocol.Envelope))
	m.mu.Unlock()
	m.got <- struct{}{}
	return nil
}

func (m *memPublisher) wait(t *testing.T, n int) []*protocol.Envelope {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*protocol.Envelope(nil), m.sent...)
}

func TestExporterPublishesSelectedEvents(t *testing.T) {
	bus := engine.NewEventBus(zerolog.Nop())
	pub := newMemPublisher()
	x := NewExporter(bus, pub, "robotcore.events", protocol.Address{Role: protocol.RoleRobot, Site: "plant-a"}, zerolog.Nop())
	x.Start()

	bus.Emit(engine.Event{Type: engine.EventTelemetry, DeviceID: "amr-01", Payload: engine.TelemetryEvent{Topic: telemetry.TopicPose}})
	bus.Emit(engine.Event{Type: engine.EventConnectionChanged, DeviceID: "amr-01", Payload: engine.ConnectionEvent{State: telemetry.StateConnected}})
	bus.Emit(engine.Event{Type: engine.EventWorkflowAborted, DeviceID: "amr-01", Payload: engine.WorkflowEvent{Run: &workflow.Run{
		ID:         "run-1",
		TemplateID: "shelf_to_dropoff",
		Status:     workflow.StatusAborted,
		Error:      "step 2 failed",
	}}})

	sent := pub.wait(t, 2)
	x.Stop()
	require.Len(t, sent, 2)

	assert.Equal(t, protocol.TypeConnectionChanged, sent[0].Type)
	assert.Equal(t, "amr-01", sent[0].Src.Device)
	assert.Equal(t, "plant-a", sent[0].Src.Site)
	var conn protocol.ConnectionChanged
	require.NoError(t, sent[0].DecodePayload(&conn))
	assert.Equal(t, "connected", conn.State)

	assert.Equal(t, protocol.TypeWorkflowRun, sent[1].Type)
	var run protocol.WorkflowRun
	require.NoError(t, sent[1].DecodePayload(&run))
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, "aborted", run.Status)
	assert.False(t, run.Success)
}

func TestExporterStopUnsubscribes(t *testing.T) {
	bus := engine.NewEventBus(zerolog.Nop())
	pub := newMemPublisher()
	x := NewExporter(bus, pub, "events", protocol.Address{Role: protocol.RoleRobot}, zerolog.Nop())
	x.Start()
	x.Stop()

	bus.Emit(engine.Event{Type: engine.EventPowerCycle, Payload: engine.PowerCycleEvent{}})
	assert.Empty(t, pub.sent)
}

type fakeCommands struct {
	mu      sync.Mutex
	stopped []string
	cycles  []string
	runErr  error
	stopErr error
}

func (f *fakeCommands) DeviceID() string { return "amr-01" }

func (f *fakeCommands) SubmitWorkflow(_ context.Context, templateID string, _ map[string]any) (*workflow.Run, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &workflow.Run{ID: "run-9", TemplateID: templateID, Success: true, Status: workflow.StatusCompleted}, nil
}

func (f *fakeCommands) Stop(_ context.Context, reason string) error {
	f.mu.Lock()
	f.stopped = append(f.stopped, reason)
	f.mu.Unlock()
	return f.stopErr
}

func (f *fakeCommands) TriggerPowerCycle(_ context.Context, method string) health.PowerCycleResult {
	f.mu.Lock()
	f.cycles = append(f.cycles, method)
	f.mu.Unlock()
	return health.PowerCycleResult{Success: true, Message: "initiated"}
}

func command(t *testing.T, msgType, device string, payload any) []byte {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, protocol.Address{Role: protocol.RoleController}, protocol.Address{Role: protocol.RoleRobot, Device: device}, payload)
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	return data
}

func newHandler(cmds *fakeCommands) (*protocol.Ingestor, *memPublisher) {
	pub := newMemPublisher()
	h := NewCommandHandler(cmds, pub, "robotcore.events", protocol.Address{Role: protocol.RoleRobot}, zerolog.Nop())
	return protocol.NewIngestor(h, h.Filter, zerolog.Nop()), pub
}

func TestMotionStopRepliesWithCorrelation(t *testing.T) {
	cmds := &fakeCommands{}
	ing, pub := newHandler(cmds)

	data := command(t, protocol.TypeMotionStop, "amr-01", &protocol.MotionStop{Reason: "estop"})
	ing.HandleRaw(data)

	sent := pub.wait(t, 1)
	assert.Equal(t, []string{"estop"}, cmds.stopped)
	assert.Equal(t, protocol.TypeCommandResult, sent[0].Type)
	assert.NotEmpty(t, sent[0].CorID)
	assert.Equal(t, protocol.RoleController, sent[0].Dst.Role)

	var res protocol.CommandResult
	require.NoError(t, sent[0].DecodePayload(&res))
	assert.True(t, res.Success)
}

func TestMotionStopFailureIsReported(t *testing.T) {
	cmds := &fakeCommands{stopErr: errors.New("stop: device unreachable")}
	ing, pub := newHandler(cmds)

	ing.HandleRaw(command(t, protocol.TypeMotionStop, "", &protocol.MotionStop{}))

	sent := pub.wait(t, 1)
	var res protocol.CommandResult
	require.NoError(t, sent[0].DecodePayload(&res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unreachable")
}

func TestCommandsForOtherRobotsAreIgnored(t *testing.T) {
	cmds := &fakeCommands{}
	ing, pub := newHandler(cmds)

	ing.HandleRaw(command(t, protocol.TypePowerCycleRequest, "amr-02", &protocol.PowerCycleRequest{Method: "restart"}))
	assert.Empty(t, cmds.cycles)
	assert.Empty(t, pub.sent)
}

func TestPowerCycleRequest(t *testing.T) {
	cmds := &fakeCommands{}
	ing, pub := newHandler(cmds)

	ing.HandleRaw(command(t, protocol.TypePowerCycleRequest, "amr-01", &protocol.PowerCycleRequest{Method: "shutdown"}))
	pub.wait(t, 1)
	assert.Equal(t, []string{"shutdown"}, cmds.cycles)
}

func TestWorkflowSubmitRepliesWhenRunFinishes(t *testing.T) {
	cmds := &fakeCommands{}
	ing, pub := newHandler(cmds)

	ing.HandleRaw(command(t, protocol.TypeWorkflowSubmit, "amr-01", &protocol.WorkflowSubmit{TemplateID: "return_to_charger"}))

	sent := pub.wait(t, 1)
	var res protocol.CommandResult
	require.NoError(t, sent[0].DecodePayload(&res))
	assert.True(t, res.Success)
	assert.Equal(t, "run-9", res.RunID)
}

func TestWorkflowSubmitBuildErrorIsReported(t *testing.T) {
	cmds := &fakeCommands{runErr: workflow.ErrUnknownTemplate}
	ing, pub := newHandler(cmds)

	ing.HandleRaw(command(t, protocol.TypeWorkflowSubmit, "amr-01", &protocol.WorkflowSubmit{TemplateID: "nope"}))

	sent := pub.wait(t, 1)
	var res protocol.CommandResult
	require.NoError(t, sent[0].DecodePayload(&res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unknown template")
}

func TestClientRejectsUnknownBackend(t *testing.T) {
	c := NewClient(config.MessagingConfig{Backend: "carrier-pigeon"}, zerolog.Nop())
	assert.Error(t, c.Connect())
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Publish(context.Background(), "t", nil))
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient(config.MessagingConfig{Backend: "kafka"}, zerolog.Nop())
	assert.ErrorIs(t, c.Publish(context.Background(), "t", []byte("x")), ErrNotConnected)
	assert.ErrorIs(t, c.Subscribe("t", func([]byte) {}), ErrNotConnected)
	c.Close()
}
