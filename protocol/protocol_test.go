package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	src := Address{Role: RoleRobot, Device: "amr-01", Site: "plant-a"}
	dst := Address{Role: RoleController}

	env, err := NewEnvelope(TypeWorkflowRun, src, dst, &WorkflowRun{
		DeviceID:   "amr-01",
		RunID:      "run-123",
		TemplateID: "shelf_to_dropoff",
		Status:     "completed",
		Success:    true,
		Steps:      4,
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	if env.Version != Version {
		t.Errorf("version = %d, want %d", env.Version, Version)
	}
	if env.Src != src {
		t.Errorf("src = %+v, want %+v", env.Src, src)
	}
	if env.ID == "" {
		t.Error("ID should not be empty")
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != env.ID {
		t.Errorf("decoded id = %q, want %q", decoded.ID, env.ID)
	}

	var run WorkflowRun
	if err := decoded.DecodePayload(&run); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if run.RunID != "run-123" || run.Steps != 4 || !run.Success {
		t.Errorf("payload = %+v", run)
	}
}

func TestEnvelopeShortKeys(t *testing.T) {
	env, err := NewEnvelope(TypeMotionStop, Address{Role: RoleController}, Address{Role: RoleRobot, Device: "amr-01"}, &MotionStop{})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	data, _ := env.Encode()

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, k := range []string{"v", "type", "id", "src", "dst", "ts", "exp", "p"} {
		if _, ok := raw[k]; !ok {
			t.Errorf("missing key %q", k)
		}
	}
	if _, ok := raw["cor"]; ok {
		t.Error("cor should be omitted when empty")
	}
}

func TestReplyCarriesCorrelation(t *testing.T) {
	reply, err := NewReply(TypeCommandResult, Address{Role: RoleRobot}, Address{Role: RoleController}, "orig-1", &CommandResult{Success: true})
	if err != nil {
		t.Fatalf("NewReply: %v", err)
	}
	if reply.CorID != "orig-1" {
		t.Errorf("cor = %q, want orig-1", reply.CorID)
	}
}

func TestDefaultTTL(t *testing.T) {
	if got := DefaultTTLFor(TypeMotionStop); got != 30*time.Second {
		t.Errorf("motion stop ttl = %v", got)
	}
	if got := DefaultTTLFor("unknown.type"); got != FallbackTTL {
		t.Errorf("fallback ttl = %v", got)
	}
}

func TestIsExpired(t *testing.T) {
	env := &Envelope{ExpiresAt: time.Now().UTC().Add(-time.Second)}
	if !IsExpired(env) {
		t.Error("past expiry should be expired")
	}
	env.ExpiresAt = time.Time{}
	if IsExpired(env) {
		t.Error("zero expiry should never expire")
	}
}

type recordingHandler struct {
	NoOpHandler
	submits []*WorkflowSubmit
	stops   []*MotionStop
	cycles  []*PowerCycleRequest
}

func (h *recordingHandler) HandleWorkflowSubmit(_ *Envelope, p *WorkflowSubmit) {
	h.submits = append(h.submits, p)
}

func (h *recordingHandler) HandleMotionStop(_ *Envelope, p *MotionStop) {
	h.stops = append(h.stops, p)
}

func (h *recordingHandler) HandlePowerCycleRequest(_ *Envelope, p *PowerCycleRequest) {
	h.cycles = append(h.cycles, p)
}

func encode(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	env, err := NewEnvelope(msgType, Address{Role: RoleController}, Address{Role: RoleRobot, Device: "amr-01"}, payload)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestIngestorDispatch(t *testing.T) {
	h := &recordingHandler{}
	ing := NewIngestor(h, nil, zerolog.Nop())

	ing.HandleRaw(encode(t, TypeWorkflowSubmit, &WorkflowSubmit{
		TemplateID: "shelf_to_dropoff",
		Inputs:     map[string]any{"shelf": "LOC-3"},
	}))
	ing.HandleRaw(encode(t, TypeMotionStop, &MotionStop{Reason: "estop"}))
	ing.HandleRaw(encode(t, TypePowerCycleRequest, &PowerCycleRequest{Method: "restart"}))
	ing.HandleRaw(encode(t, TypeWorkflowRun, &WorkflowRun{}))

	if len(h.submits) != 1 || h.submits[0].TemplateID != "shelf_to_dropoff" {
		t.Errorf("submits = %+v", h.submits)
	}
	if len(h.stops) != 1 || h.stops[0].Reason != "estop" {
		t.Errorf("stops = %+v", h.stops)
	}
	if len(h.cycles) != 1 || h.cycles[0].Method != "restart" {
		t.Errorf("cycles = %+v", h.cycles)
	}
}

func TestIngestorDropsExpired(t *testing.T) {
	h := &recordingHandler{}
	ing := NewIngestor(h, nil, zerolog.Nop())

	env, _ := NewEnvelope(TypeMotionStop, Address{Role: RoleController}, Address{Role: RoleRobot}, &MotionStop{})
	env.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	data, _ := env.Encode()
	ing.HandleRaw(data)

	if len(h.stops) != 0 {
		t.Error("expired message should be dropped")
	}
}

func TestIngestorFilter(t *testing.T) {
	h := &recordingHandler{}
	filter := func(hdr *RawHeader) bool { return hdr.Dst.Device == "amr-02" }
	ing := NewIngestor(h, filter, zerolog.Nop())

	ing.HandleRaw(encode(t, TypeMotionStop, &MotionStop{}))
	if len(h.stops) != 0 {
		t.Error("filtered message should be dropped")
	}
}

func TestIngestorMalformed(t *testing.T) {
	h := &recordingHandler{}
	ing := NewIngestor(h, nil, zerolog.Nop())

	ing.HandleRaw([]byte("not json"))
	ing.HandleRaw([]byte(`{"v":1,"type":"command.motion_stop","id":"x","p":"oops"}`))
	if len(h.stops) != 0 {
		t.Error("malformed messages should not dispatch")
	}
}
