package machine

import (
	"context"
	"log"
	"time"
)

// Status is the outcome of a probe session.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusAborted
}

// State is the position of a session in the acquisition state machine.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateAwaitingAck
	StateRetracting
	StateTerminated
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDispatching:
		return "Dispatching"
	case StateAwaitingAck:
		return "AwaitingAck"
	case StateRetracting:
		return "Retracting"
	case StateTerminated:
		return "Terminated"
	case StateAborted:
		return "Aborted"
	}
	return "Unknown"
}

// Sample is the raw machine height probed at a grid point.
type Sample struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	ZRaw float64 `json:"z_raw"`
}

// Progress is reported after each accepted sample and once when the
// session ends.
type Progress struct {
	Collected int
	Total     int

	// Sample is the sample just taken, nil for the final report.
	Sample *Sample
	Status Status
	Err    error
}

// A Session probes one grid, one point at a time.
//
// Only one command block is in flight at any time: the next point is
// dispatched when the report for the current one arrives, so reports are
// matched to points by position alone.
//
// A Session is not safe for concurrent use. Run drives it from a single
// goroutine; tests and other drivers may call Start and HandleEvent directly.
type Session struct {
	ch   Channel
	grid Grid
	opt  ProbeOptions

	state   State
	status  Status
	index   int
	samples []Sample
	err     error

	sub       Subscription
	retracted bool

	// OnProgress, if set, is called synchronously from the session.
	OnProgress func(Progress)
}

func NewSession(ch Channel, grid Grid, opt ProbeOptions) *Session {
	return &Session{
		ch:      ch,
		grid:    grid,
		opt:     opt,
		samples: make([]Sample, 0, grid.Len()),
	}
}

func (s *Session) State() State   { return s.state }
func (s *Session) Status() Status { return s.status }

// Index is the scan-order index of the point being probed.
func (s *Session) Index() int { return s.index }

// Err returns the reason the session did not succeed.
func (s *Session) Err() error { return s.err }

// Done reports whether the session reached a terminal state.
func (s *Session) Done() bool { return s.status.Terminal() }

// Samples returns the samples collected so far, in scan order.
func (s *Session) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Start dispatches the first point.
func (s *Session) Start() error {
	if s.state != StateIdle {
		return ErrSessionStarted
	}
	s.status = StatusRunning
	s.dispatch(0)
	return nil
}

// HandleEvent advances the session with one event from the channel. Events
// arriving while no report is expected are ignored.
func (s *Session) HandleEvent(e Event) {
	if s.state != StateAwaitingAck {
		log.Printf("probe session: ignoring %T in state %s", e, s.state)
		return
	}

	switch e := e.(type) {
	case ProbeCompleted:
		p := s.grid.At(s.index)
		smp := Sample{X: p.X, Y: p.Y, ZRaw: e.Z}
		s.samples = append(s.samples, smp)
		s.report(&smp)

		if s.index+1 == s.grid.Len() {
			s.finish()
			return
		}
		s.dispatch(s.index + 1)
	case ProbeFailed:
		s.abort(&ProbeFailure{Index: s.index, Collected: len(s.samples), Reason: e.Reason})
	case ChannelLost:
		s.abort(&ChannelError{Err: e.Err})
	default:
		log.Printf("probe session: unknown event %T", e)
	}
}

// Abort ends the session early. It is a no-op once the session is done.
func (s *Session) Abort(err error) {
	if s.Done() {
		return
	}
	if err == nil {
		err = ErrAborted
	}
	s.abort(err)
}

// Run subscribes to the channel, probes every point and returns when the
// session ends. The subscription is released before Run returns.
//
// A report that does not arrive within ProbeOptions.Timeout fails the
// point. Cancelling ctx aborts the session with the context's cause.
func (s *Session) Run(ctx context.Context) error {
	events := make(chan Event, 16)
	s.sub = s.ch.Subscribe(func(e Event) {
		select {
		case events <- e:
		default:
			log.Printf("ERROR: probe session: event queue full, dropped %T", e)
		}
	})
	defer s.release()

	err := s.Start()
	if err != nil {
		return err
	}

	for !s.Done() {
		var timer *time.Timer
		var timeout <-chan time.Time
		if s.opt.Timeout > 0 {
			timer = time.NewTimer(s.opt.Timeout)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			s.Abort(context.Cause(ctx))
		case <-timeout:
			s.abort(&ProbeFailure{Index: s.index, Collected: len(s.samples), Timeout: true})
		case e := <-events:
			s.HandleEvent(e)
		}

		if timer != nil {
			timer.Stop()
		}
	}

	return s.err
}

func (s *Session) dispatch(i int) {
	s.state = StateDispatching
	s.index = i
	if i >= s.grid.Len() {
		s.finish()
		return
	}

	err := s.ch.Send(s.opt.ProbeCommand(s.grid.At(i)))
	if err != nil {
		s.abort(&ChannelError{Err: err})
		return
	}
	s.state = StateAwaitingAck
}

func (s *Session) finish() {
	s.state = StateRetracting
	s.retract()
	s.release()

	s.state = StateTerminated
	if len(s.samples) > 0 {
		s.status = StatusSucceeded
	} else {
		s.status = StatusFailed
		s.err = ErrNoSamples
	}
	s.report(nil)
}

func (s *Session) abort(err error) {
	s.state = StateAborted
	s.status = StatusAborted
	s.err = err
	s.retract()
	s.release()
	s.report(nil)
}

// retract sends the retract block at most once per session.
func (s *Session) retract() {
	if s.retracted {
		return
	}
	s.retracted = true
	err := s.ch.Send(s.opt.RetractCommand())
	if err != nil {
		log.Println("ERROR: probe session: retract:", err)
	}
}

func (s *Session) release() {
	if s.sub == nil {
		return
	}
	s.sub.Cancel()
	s.sub = nil
}

func (s *Session) report(smp *Sample) {
	if s.OnProgress == nil {
		return
	}
	s.OnProgress(Progress{
		Collected: len(s.samples),
		Total:     s.grid.Len(),
		Sample:    smp,
		Status:    s.status,
		Err:       s.err,
	})
}
