package protocol

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// MessageHandler receives decoded inbound commands.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	HandleWorkflowSubmit(env *Envelope, p *WorkflowSubmit)
	HandleMotionStop(env *Envelope, p *MotionStop)
	HandlePowerCycleRequest(env *Envelope, p *PowerCycleRequest)
}

// Ingestor performs two-phase decode and dispatches to a MessageHandler.
type Ingestor struct {
	handler MessageHandler
	filter  FilterFunc
	log     zerolog.Logger
}

func NewIngestor(handler MessageHandler, filter FilterFunc, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		handler: handler,
		filter:  filter,
		log:     log.With().Str("component", "protocol").Logger(),
	}
}

// HandleRaw is the entry point for raw message bytes from the messaging layer.
func (ing *Ingestor) HandleRaw(data []byte) {
	// Phase 1: routing header only
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		ing.log.Warn().Err(err).Msg("header decode error")
		return
	}
	if IsExpiredHeader(&hdr) {
		ing.log.Info().Str("id", hdr.ID).Str("type", hdr.Type).Msg("dropping expired message")
		return
	}
	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	// Phase 2: full envelope
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ing.log.Warn().Err(err).Msg("envelope decode error")
		return
	}

	switch env.Type {
	case TypeWorkflowSubmit:
		decodeAndCall(ing, ing.handler.HandleWorkflowSubmit, &env)
	case TypeMotionStop:
		decodeAndCall(ing, ing.handler.HandleMotionStop, &env)
	case TypePowerCycleRequest:
		decodeAndCall(ing, ing.handler.HandlePowerCycleRequest, &env)
	default:
		ing.log.Debug().Str("type", env.Type).Msg("ignoring message type")
	}
}

func decodeAndCall[T any](ing *Ingestor, fn func(*Envelope, *T), env *Envelope) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		ing.log.Warn().Err(err).Str("type", env.Type).Msg("payload decode error")
		return
	}
	fn(env, &p)
}
