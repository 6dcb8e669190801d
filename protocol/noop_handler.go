package protocol

// NoOpHandler implements MessageHandler with no-op methods.
type NoOpHandler struct{}

func (NoOpHandler) HandleWorkflowSubmit(*Envelope, *WorkflowSubmit)       {}
func (NoOpHandler) HandleMotionStop(*Envelope, *MotionStop)               {}
func (NoOpHandler) HandlePowerCycleRequest(*Envelope, *PowerCycleRequest) {}

var _ MessageHandler = NoOpHandler{}
