package machine

import (
	"sync"
	"sync/atomic"

	"github.com/mats19/pcb-bridge/gcode"
)

// A Command is a group of blocks sent to the machine in one go.
type Command []gcode.Block

// Lines returns each block as a line of text, without line endings.
func (c Command) Lines() []string {
	lines := make([]string, len(c))
	for i, b := range c {
		lines[i] = b.String()
	}
	return lines
}

func (c Command) String() string { return gcode.Format(c) }

// Probes reports whether c contains a probing move, which the machine
// answers with a probe report.
func (c Command) Probes() bool {
	for _, b := range c {
		if ok, arg := b.Arg('G'); ok && arg == 38.2 {
			return true
		}
	}
	return false
}

// A Channel sends commands to a machine and reports probe events back.
type Channel interface {
	// Send queues cmd for the machine and returns without waiting for it to run.
	//
	// An error means the channel is unusable.
	Send(cmd Command) error

	// Subscribe registers fn for every future event until the returned
	// Subscription is cancelled.
	Subscribe(fn func(Event)) Subscription
}

// A Subscription is an event handler registration.
type Subscription interface {
	// Cancel removes the handler. It is safe to call more than once.
	Cancel()
}

// Hub fans out events to subscribers. The zero value is ready to use.
//
// Adapters embed a Hub to implement Channel.Subscribe.
type Hub struct {
	mx   sync.Mutex
	subs map[uint64]*hubSub
	next uint64
}

type hubSub struct {
	h        *Hub
	id       uint64
	fn       func(Event)
	canceled atomic.Bool
}

func (s *hubSub) Cancel() {
	if s.canceled.Swap(true) {
		return
	}
	s.h.mx.Lock()
	delete(s.h.subs, s.id)
	s.h.mx.Unlock()
}

func (h *Hub) Subscribe(fn func(Event)) Subscription {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.subs == nil {
		h.subs = make(map[uint64]*hubSub)
	}
	h.next++
	s := &hubSub{h: h, id: h.next, fn: fn}
	h.subs[s.id] = s
	return s
}

// Publish delivers e to every active subscriber, in the caller's goroutine.
func (h *Hub) Publish(e Event) {
	h.mx.Lock()
	subs := make([]*hubSub, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mx.Unlock()

	for _, s := range subs {
		if s.canceled.Load() {
			continue
		}
		s.fn(e)
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mx.Lock()
	defer h.mx.Unlock()
	return len(h.subs)
}
