package grbl

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mats19/pcb-bridge/machine"
	"github.com/mats19/pcb-bridge/spjs"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// ErrWipedQueue is reported when the server drops queued commands.
var ErrWipedQueue = errors.New("spjs: wiped queue")

// SPJSAdapter drives a Grbl controller attached to a Serial Port JSON Server.
type SPJSAdapter struct {
	machine.Hub

	sp   *spjs.SPJS
	port string
	baud int

	cmds    chan spjs.JSON
	closeCh chan struct{}
	once    sync.Once

	// probing is set while a probe command awaits its report.
	probing atomic.Bool

	mx   sync.Mutex
	last Status
}

var _ machine.Channel = &SPJSAdapter{}

func NewSPJSAdapter(sp *spjs.SPJS, port string, baud int) *SPJSAdapter {
	adapter := &SPJSAdapter{
		sp:      sp,
		port:    port,
		baud:    baud,
		cmds:    make(chan spjs.JSON, 16),
		closeCh: make(chan struct{}),
	}
	go adapter.loop()

	return adapter
}

// Send queues cmd on the server. Each block becomes one line.
func (adapter *SPJSAdapter) Send(cmd machine.Command) error {
	j := spjs.JSON{Port: adapter.port}
	for _, line := range cmd.Lines() {
		j.Data = append(j.Data, spjs.Data{Data: line + "\n", ID: nextID()})
	}

	select {
	case <-adapter.closeCh:
		return spjs.ErrClosed
	case adapter.cmds <- j:
		if cmd.Probes() {
			adapter.probing.Store(true)
		}
		return nil
	default:
		return ErrQueueFull
	}
}

func (adapter *SPJSAdapter) LastStatus() Status {
	adapter.mx.Lock()
	defer adapter.mx.Unlock()
	return adapter.last
}

func (adapter *SPJSAdapter) Close() error {
	adapter.once.Do(func() { close(adapter.closeCh) })
	return adapter.sp.Close()
}

func (adapter *SPJSAdapter) loop() {
	for {
		select {
		case <-adapter.closeCh:
			return
		case resp := <-adapter.sp.Messages():
			adapter.handle(resp)
		case j := <-adapter.cmds:
			err := adapter.sp.SendJSON(j)
			if err != nil {
				adapter.Publish(machine.ChannelLost{Err: err})
			}
		}
	}
}

func (adapter *SPJSAdapter) handle(resp interface{}) {
	switch msg := resp.(type) {
	case *spjs.DataFrame:
		if msg.Port != "" && msg.Port != adapter.port {
			return
		}
		for _, line := range strings.Split(msg.Data, "\n") {
			adapter.handleLine(strings.TrimSpace(line))
		}
	case *spjs.CmdStatus:
		if msg.Cmd == "WipedQueue" {
			adapter.Publish(machine.ChannelLost{Err: ErrWipedQueue})
		}
	case *spjs.SerialPortList:
		for _, port := range msg.SerialPorts {
			if port.Name != adapter.port || port.IsOpen {
				continue
			}
			err := adapter.sp.WriteString("open " + adapter.port + " grbl " + strconv.Itoa(adapter.baud))
			if err != nil {
				log.Println("ERROR: open port:", err)
			}
		}
	case *spjs.ErrorMessage:
		log.Println("ERROR: spjs:", msg.Error)
	case *spjs.Disconnected:
		adapter.Publish(machine.ChannelLost{Err: msg.Err})
	}
}

func (adapter *SPJSAdapter) handleLine(line string) {
	if len(line) == 0 {
		return
	}
	if line[0] == '<' {
		adapter.mx.Lock()
		defer adapter.mx.Unlock()
		stat, err := parseStatus(adapter.last, line)
		if err != nil {
			log.Println("ERROR: parse status:", err)
			return
		}
		adapter.last = *stat
		return
	}
	if strings.HasPrefix(line, "error:") {
		if !adapter.probing.Swap(false) {
			log.Println("ERROR: command rejected:", line)
			return
		}
		adapter.Publish(machine.ProbeFailed{Reason: line})
		return
	}
	e, ok := classify(line)
	if !ok {
		return
	}
	if _, lost := e.(machine.ChannelLost); !lost {
		adapter.probing.Store(false)
	}
	adapter.Publish(e)
}
