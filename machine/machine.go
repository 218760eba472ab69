package machine

import (
	"context"
	"log"
	"sync"
)

// Machine runs grid probes over a Channel, one session at a time.
type Machine struct {
	ch      Channel
	persist Persister

	mx     sync.Mutex
	active *Session
	cancel context.CancelCauseFunc
}

// NewMachine returns a Machine probing through ch. If p is nil, results
// are returned without being saved.
func NewMachine(ch Channel, p Persister) *Machine {
	return &Machine{ch: ch, persist: p}
}

// Active reports whether a session is running.
func (m *Machine) Active() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.active != nil
}

// Abort cancels the running session, if any. It reports whether there was
// one to cancel.
func (m *Machine) Abort() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.cancel == nil {
		return false
	}
	m.cancel(ErrAborted)
	return true
}

// ProbeGrid probes cfg, normalizes the samples and saves the height map.
//
// Invalid configurations are rejected before anything is sent. A
// *PersistenceError is returned together with a valid Result.
func (m *Machine) ProbeGrid(ctx context.Context, cfg GridConfig, opt ProbeOptions, progress func(Progress)) (*Result, error) {
	grid, err := Plan(cfg)
	if err != nil {
		return nil, err
	}
	err = opt.Validate()
	if err != nil {
		return nil, invalidConfig("%v", err)
	}

	s := NewSession(m.ch, grid, opt)
	s.OnProgress = progress

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	m.mx.Lock()
	if m.active != nil {
		m.mx.Unlock()
		return nil, ErrBusy
	}
	m.active = s
	m.cancel = cancel
	m.mx.Unlock()

	defer func() {
		m.mx.Lock()
		m.active = nil
		m.cancel = nil
		m.mx.Unlock()
	}()

	log.Printf("probe: starting %dx%d grid over %gx%gmm", cfg.PointsX, cfg.PointsY, cfg.Width, cfg.Height)
	err = s.Run(ctx)
	if err != nil {
		log.Printf("ERROR: probe: %v", err)
		return nil, err
	}

	hm, err := Normalize(s.Samples())
	if err != nil {
		return nil, err
	}
	log.Println("probe: complete,", hm.Stats)

	if m.persist == nil {
		return &Result{Config: cfg, HeightMap: *hm}, nil
	}
	return Export(context.WithoutCancel(ctx), m.persist, cfg, hm)
}
