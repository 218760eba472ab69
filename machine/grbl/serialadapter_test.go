package grbl

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mats19/pcb-bridge/coord"
	"github.com/mats19/pcb-bridge/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGrbl answers every line with "ok" and reports probe results for G38.2.
type fakeGrbl struct {
	conn net.Conn

	// greeting is written when the port opens.
	greeting string
	// reject is a line answered with "error:9".
	reject string

	mx    sync.Mutex
	lines []string

	probe func(n int) string
	n     int
}

func newFakeGrbl(t *testing.T, probe func(n int) string) (*fakeGrbl, *SerialAdapter) {
	return startFakeGrbl(t, &fakeGrbl{probe: probe})
}

func startFakeGrbl(t *testing.T, f *fakeGrbl) (*fakeGrbl, *SerialAdapter) {
	a, b := net.Pipe()
	f.conn = b
	go f.serve()
	adapter := NewSerialAdapter(a, 0)
	t.Cleanup(func() {
		adapter.Close()
		b.Close()
	})
	return f, adapter
}

func (f *fakeGrbl) serve() {
	if f.greeting != "" {
		f.conn.Write([]byte(f.greeting))
	}
	r := bufio.NewReader(f.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)

		f.mx.Lock()
		f.lines = append(f.lines, line)
		var reply string
		switch {
		case line == f.reject:
			reply = "error:9\n"
		case strings.HasPrefix(line, "G38.2"):
			reply = f.probe(f.n) + "\n"
			f.n++
		}
		f.mx.Unlock()

		if strings.HasPrefix(reply, "error:") {
			f.conn.Write([]byte(reply))
			continue
		}
		f.conn.Write([]byte(reply + "ok\n"))
	}
}

func (f *fakeGrbl) received() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]string(nil), f.lines...)
}

func TestSerialAdapter_ProbeGrid(t *testing.T) {
	f, adapter := newFakeGrbl(t, func(n int) string {
		return "[PRB:0.000,0.000,-1." + string(rune('0'+n%10)) + "00:1]"
	})

	cfg := machine.GridConfig{Width: 10, Height: 10, PointsX: 2, PointsY: 2}
	opt := machine.DefaultProbeOptions()
	opt.Timeout = 2 * time.Second

	res, err := machine.NewMachine(adapter, nil).ProbeGrid(context.Background(), cfg, opt, nil)
	require.NoError(t, err)
	require.Len(t, res.Points, 4)
	assert.Equal(t, 0.0, res.Points[0].Z)
	assert.InDelta(t, -0.3, res.Points[3].Z, 1e-9)

	assert.Eventually(t, func() bool {
		lines := f.received()
		return len(lines) > 0 && lines[len(lines)-1] == "G90G0Z2"
	}, time.Second, 5*time.Millisecond)

	lines := f.received()
	assert.Equal(t, []string{"G90", "G0Z2", "G0X0Y0", "G38.2Z-5F100"}, lines[:4])
	assert.Len(t, lines, 17)
	assert.Zero(t, adapter.Subscribers())
}

func TestSerialAdapter_ProbeFailure(t *testing.T) {
	_, adapter := newFakeGrbl(t, func(n int) string {
		if n == 1 {
			return "ALARM:5"
		}
		return "[PRB:0.000,0.000,-1.000:1]"
	})

	cfg := machine.GridConfig{Width: 10, Height: 10, PointsX: 2, PointsY: 2}
	opt := machine.DefaultProbeOptions()
	opt.Timeout = 2 * time.Second

	_, err := machine.NewMachine(adapter, nil).ProbeGrid(context.Background(), cfg, opt, nil)
	var pf *machine.ProbeFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, 1, pf.Index)
	assert.Equal(t, "ALARM:5", pf.Reason)
}

func TestSerialAdapter_ErrorAck(t *testing.T) {
	_, adapter := newFakeGrbl(t, func(n int) string { return "error:9" })

	events := make(chan machine.Event, 4)
	sub := adapter.Subscribe(func(e machine.Event) { events <- e })
	defer sub.Cancel()

	require.NoError(t, adapter.Send(machine.DefaultProbeOptions().ProbeCommand(coord.Point{})))

	select {
	case e := <-events:
		assert.Equal(t, machine.ProbeFailed{Reason: "error:9"}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
}

func TestSerialAdapter_ChannelLost(t *testing.T) {
	a, b := net.Pipe()
	adapter := NewSerialAdapter(a, 0)
	defer adapter.Close()

	events := make(chan machine.Event, 4)
	sub := adapter.Subscribe(func(e machine.Event) { events <- e })
	defer sub.Cancel()

	b.Close()

	select {
	case e := <-events:
		assert.IsType(t, machine.ChannelLost{}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	assert.Eventually(t, func() bool {
		return adapter.Send(machine.DefaultProbeOptions().RetractCommand()) != nil
	}, time.Second, 5*time.Millisecond)
}

func TestSerialAdapter_Status(t *testing.T) {
	a, b := net.Pipe()
	adapter := NewSerialAdapter(a, 0)
	defer adapter.Close()
	defer b.Close()

	_, err := b.Write([]byte("<Idle|MPos:1.000,2.000,3.000|FS:0,0|WCO:1.000,1.000,1.000>\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return adapter.LastStatus().State == "Idle"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, adapter.LastStatus().WPos().X)
	assert.Equal(t, 2.0, adapter.LastStatus().WPos().Z)
}

func TestSerialAdapter_StartupBanner(t *testing.T) {
	_, adapter := startFakeGrbl(t, &fakeGrbl{
		greeting: "\r\nGrbl 1.1h ['$' for help]\r\nok\nok\n<Idle|MPos:0.000,0.000,0.000|FS:0,0>\n",
		probe:    func(n int) string { return "[PRB:0.000,0.000,-1.000:1]" },
	})
	assert.Eventually(t, func() bool {
		return adapter.LastStatus().State == "Idle"
	}, time.Second, 5*time.Millisecond)

	cfg := machine.GridConfig{Width: 10, Height: 10, PointsX: 2, PointsY: 2}
	opt := machine.DefaultProbeOptions()
	opt.Timeout = 2 * time.Second

	m := machine.NewMachine(adapter, nil)
	for i := 0; i < 2; i++ {
		res, err := m.ProbeGrid(context.Background(), cfg, opt, nil)
		require.NoError(t, err, "session %d", i)
		assert.Len(t, res.Points, 4)
	}
}

func TestSerialAdapter_ResetMidCommand(t *testing.T) {
	_, adapter := newFakeGrbl(t, func(n int) string { return "Grbl 1.1h ['$' for help]" })

	cfg := machine.GridConfig{Width: 10, Height: 10, PointsX: 2, PointsY: 2}
	opt := machine.DefaultProbeOptions()
	opt.Timeout = 2 * time.Second

	_, err := machine.NewMachine(adapter, nil).ProbeGrid(context.Background(), cfg, opt, nil)
	var ce *machine.ChannelError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, ErrGrblReset, ce.Err)
}

func TestSerialAdapter_RejectedRetract(t *testing.T) {
	_, adapter := startFakeGrbl(t, &fakeGrbl{
		reject: "G90G0Z2",
		probe:  func(n int) string { return "[PRB:0.000,0.000,-1.500:1]" },
	})

	events := make(chan machine.Event, 4)
	sub := adapter.Subscribe(func(e machine.Event) { events <- e })
	defer sub.Cancel()

	opt := machine.DefaultProbeOptions()
	require.NoError(t, adapter.Send(opt.RetractCommand()))
	require.NoError(t, adapter.Send(opt.ProbeCommand(coord.Point{})))

	select {
	case e := <-events:
		assert.Equal(t, machine.ProbeCompleted{Z: -1.5}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
}
