package machine

// An Event is a normalized notification from the device channel.
//
// Adapters translate their wire encoding into one of ProbeCompleted,
// ProbeFailed or ChannelLost.
type Event interface {
	event()
}

// ProbeCompleted reports a probe that touched the surface at machine height Z.
type ProbeCompleted struct{ Z float64 }

// ProbeFailed reports a probe move that ended without contact, or a probe
// command the controller rejected.
type ProbeFailed struct{ Reason string }

// ChannelLost reports that the channel can no longer be trusted to execute commands.
type ChannelLost struct{ Err error }

func (ProbeCompleted) event() {}
func (ProbeFailed) event()    {}
func (ChannelLost) event()    {}
