package grbl

import (
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mats19/pcb-bridge/machine"
	"github.com/tarm/serial"
)

// ErrQueueFull is returned by Send when commands are produced faster than the
// controller accepts them.
var ErrQueueFull = errors.New("command queue full")

// SerialAdapter talks to a Grbl controller over a serial line and reports
// probe results parsed from its status lines.
type SerialAdapter struct {
	machine.Hub
	*Conn

	cmds    chan machine.Command
	closeCh chan struct{}
	once    sync.Once

	mx   sync.Mutex
	last Status
	lost error
}

var _ machine.Channel = &SerialAdapter{}

// OpenSerial opens a serial port and returns an adapter for the Grbl
// controller on it.
func OpenSerial(name string, baud int, poll time.Duration) (*SerialAdapter, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, err
	}
	log.Printf("Opened %s at %d baud", name, baud)
	return NewSerialAdapter(port, poll), nil
}

// NewSerialAdapter starts reading from rw. If poll is positive, a status
// query is sent at that interval.
func NewSerialAdapter(rw io.ReadWriter, poll time.Duration) *SerialAdapter {
	adapter := &SerialAdapter{
		Conn:    NewConn(rw),
		cmds:    make(chan machine.Command, 16),
		closeCh: make(chan struct{}),
	}
	go adapter.writeLoop()
	go adapter.readLoop()
	if poll > 0 {
		go adapter.pollLoop(poll)
	}

	return adapter
}

// Send queues cmd for the controller and returns without waiting for it to
// run.
func (adapter *SerialAdapter) Send(cmd machine.Command) error {
	adapter.mx.Lock()
	lost := adapter.lost
	adapter.mx.Unlock()
	if lost != nil {
		return lost
	}

	select {
	case <-adapter.closeCh:
		return io.ErrClosedPipe
	case adapter.cmds <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// LastStatus returns the most recent status report.
func (adapter *SerialAdapter) LastStatus() Status {
	adapter.mx.Lock()
	defer adapter.mx.Unlock()
	return adapter.last
}

func (adapter *SerialAdapter) Close() error {
	adapter.once.Do(func() { close(adapter.closeCh) })
	return adapter.Conn.Close()
}

func (adapter *SerialAdapter) pollLoop(d time.Duration) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-adapter.closeCh:
			return
		case <-t.C:
			err := adapter.WriteByte('?')
			if err != nil {
				log.Println("ERROR: status query:", err)
			}
		}
	}
}

func (adapter *SerialAdapter) writeLoop() {
	for {
		var cmd machine.Command
		select {
		case <-adapter.closeCh:
			return
		case cmd = <-adapter.cmds:
		}

		_, err := adapter.Write([]byte(cmd.String()))
		switch {
		case err == nil:
		case err == ErrGrblReset, err == io.ErrClosedPipe:
			adapter.Publish(machine.ChannelLost{Err: err})
		case strings.HasPrefix(err.Error(), "error:") && cmd.Probes():
			// the controller rejected a line; the session must not wait for a report
			adapter.Publish(machine.ProbeFailed{Reason: err.Error()})
		case strings.HasPrefix(err.Error(), "error:"):
			log.Printf("ERROR: %q rejected: %v", cmd.String(), err)
		default:
			log.Println("ERROR: write to port:", err)
			adapter.fail(err)
		}
	}
}

func (adapter *SerialAdapter) readLoop() {
	buf := make([]byte, 1024)
	for {
		n, err := adapter.Read(buf)
		if err == io.ErrShortBuffer {
			buf = make([]byte, len(buf)*2)
			continue
		}
		if err != nil {
			log.Println("ERROR: read from port:", err)
			adapter.fail(err)
			return
		}
		adapter.handleLine(string(buf[:n]))
	}
}

func (adapter *SerialAdapter) handleLine(line string) {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	if line[0] == '<' {
		adapter.mx.Lock()
		stat, err := parseStatus(adapter.last, line)
		if err == nil {
			adapter.last = *stat
		}
		adapter.mx.Unlock()
		if err != nil {
			log.Println("ERROR: parse status:", err)
		}
		return
	}

	e, ok := classify(line)
	if !ok {
		return
	}
	if _, reset := e.(machine.ChannelLost); reset {
		// a reset during a command fails its Write; the banner alone is
		// also printed whenever the port is opened
		log.Println("Controller reset:", line)
		return
	}
	adapter.Publish(e)
}

// fail marks the adapter unusable and tells subscribers.
func (adapter *SerialAdapter) fail(err error) {
	adapter.mx.Lock()
	first := adapter.lost == nil
	if first {
		adapter.lost = err
	}
	adapter.mx.Unlock()
	if first {
		adapter.Publish(machine.ChannelLost{Err: err})
	}
}
