package messaging

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"robotcore/health"
	"robotcore/protocol"
	"robotcore/workflow"
)

// Commands is the part of the engine remote controllers may drive.
type Commands interface {
	DeviceID() string
	SubmitWorkflow(ctx context.Context, templateID string, inputs map[string]any) (*workflow.Run, error)
	Stop(ctx context.Context, reason string) error
	TriggerPowerCycle(ctx context.Context, method string) health.PowerCycleResult
}

// CommandHandler handles inbound protocol commands for one robot and replies
// with a command.result correlated to the request.
type CommandHandler struct {
	protocol.NoOpHandler

	cmds    Commands
	pub     Publisher
	topic   string
	src     protocol.Address
	timeout time.Duration
	log     zerolog.Logger
}

func NewCommandHandler(cmds Commands, pub Publisher, replyTopic string, src protocol.Address, log zerolog.Logger) *CommandHandler {
	src.Device = cmds.DeviceID()
	return &CommandHandler{
		cmds:    cmds,
		pub:     pub,
		topic:   replyTopic,
		src:     src,
		timeout: 15 * time.Second,
		log:     log.With().Str("component", "commands").Logger(),
	}
}

// Filter accepts commands addressed to this robot or to no robot in particular.
func (h *CommandHandler) Filter(hdr *protocol.RawHeader) bool {
	return hdr.Dst.Device == "" || hdr.Dst.Device == h.src.Device
}

// HandleWorkflowSubmit runs the workflow in the background; the reply is sent
// once the run finishes.
func (h *CommandHandler) HandleWorkflowSubmit(env *protocol.Envelope, p *protocol.WorkflowSubmit) {
	h.log.Info().Str("from", env.Src.Role).Str("template", p.TemplateID).Msg("workflow submit")
	go func() {
		run, err := h.cmds.SubmitWorkflow(context.Background(), p.TemplateID, p.Inputs)
		switch {
		case err != nil:
			h.reply(env, &protocol.CommandResult{Message: err.Error()})
		case !run.Success:
			h.reply(env, &protocol.CommandResult{Message: run.Error, RunID: run.ID})
		default:
			h.reply(env, &protocol.CommandResult{Success: true, Message: "workflow completed", RunID: run.ID})
		}
	}()
}

func (h *CommandHandler) HandleMotionStop(env *protocol.Envelope, p *protocol.MotionStop) {
	h.log.Warn().Str("from", env.Src.Role).Str("reason", p.Reason).Msg("motion stop")
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.cmds.Stop(ctx, p.Reason); err != nil {
		h.reply(env, &protocol.CommandResult{Message: err.Error()})
		return
	}
	h.reply(env, &protocol.CommandResult{Success: true, Message: "motion cancelled"})
}

func (h *CommandHandler) HandlePowerCycleRequest(env *protocol.Envelope, p *protocol.PowerCycleRequest) {
	h.log.Warn().Str("from", env.Src.Role).Str("method", p.Method).Msg("power cycle request")
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	res := h.cmds.TriggerPowerCycle(ctx, p.Method)
	h.reply(env, &protocol.CommandResult{Success: res.Success, Message: res.Message})
}

func (h *CommandHandler) reply(env *protocol.Envelope, res *protocol.CommandResult) {
	out, err := protocol.NewReply(protocol.TypeCommandResult, h.src, env.Src, env.ID, res)
	if err != nil {
		h.log.Warn().Err(err).Msg("build reply")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.pub.PublishEnvelope(ctx, h.topic, out); err != nil {
		h.log.Warn().Err(err).Str("cor", env.ID).Msg("publish reply")
	}
}

// Subscriber feeds the commands topic into a protocol ingestor.
type Subscriber struct {
	client *Client
	topic  string
	ing    *protocol.Ingestor
}

func NewSubscriber(client *Client, topic string, h *CommandHandler, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		client: client,
		topic:  topic,
		ing:    protocol.NewIngestor(h, h.Filter, log),
	}
}

func (s *Subscriber) Start() error {
	return s.client.Subscribe(s.topic, s.ing.HandleRaw)
}
