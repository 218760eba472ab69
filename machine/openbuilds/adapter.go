// Package openbuilds talks to OpenBuilds CONTROL over socket.io.
//
// Commands are sent as `runJob` events; probe results arrive as structured
// `prbResult` events of the form {state, z}.
package openbuilds

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/mats19/pcb-bridge/machine"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// ErrDisconnected is reported when the socket.io connection drops.
var ErrDisconnected = errors.New("openbuilds: disconnected")

// Job is the payload of a runJob event.
type Job struct {
	Data         string `json:"data"`
	IsJob        bool   `json:"isJob"`
	CompletedMsg bool   `json:"completedMsg"`
	FileName     string `json:"fileName"`
}

type emitter interface {
	Emit(string, ...any) error
}

// Adapter is a machine.Channel backed by an OpenBuilds CONTROL server.
type Adapter struct {
	machine.Hub

	io emitter

	mx        sync.Mutex
	connected bool
	close     func()
}

var _ machine.Channel = &Adapter{}

// Dial connects to the server at rawURL, e.g. http://127.0.0.1:3000.
func Dial(ctx context.Context, rawURL string) (*Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	opts := socket.DefaultOptions()
	if u.Path != "" && u.Path != "/" {
		opts.SetPath(u.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(u.Scheme+"://"+u.Host, opts)
	io := manager.Socket("/", opts)

	a := &Adapter{io: io, close: func() { io.Disconnect() }}

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(args ...any) {
		err, _ := first(args).(error)
		if err == nil {
			err = ErrDisconnected
		}
		connected <- err
	})
	io.On(types.EventName("prbResult"), func(args ...any) {
		e, err := DecodeProbeResult(first(args))
		if err != nil {
			log.Println("ERROR: prbResult:", err)
			e = machine.ProbeFailed{Reason: err.Error()}
		}
		a.Publish(e)
	})
	io.On(types.EventName("disconnect"), func(args ...any) {
		log.Println("Disconnected from", rawURL, first(args))
		a.setConnected(false)
		a.Publish(machine.ChannelLost{Err: ErrDisconnected})
	})
	io.On(types.EventName("connect"), func(...any) {
		a.setConnected(true)
	})

	log.Println("Connecting to", rawURL)
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connect: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, ctx.Err()
	case <-time.After(15 * time.Second):
		io.Disconnect()
		return nil, errors.New("timed out waiting for socket.io connection")
	}

	a.setConnected(true)
	log.Println("Connected, sid", io.Id())
	return a, nil
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func (a *Adapter) setConnected(v bool) {
	a.mx.Lock()
	a.connected = v
	a.mx.Unlock()
}

// Send runs cmd as a non-job command.
func (a *Adapter) Send(cmd machine.Command) error {
	a.mx.Lock()
	ok := a.connected
	a.mx.Unlock()
	if !ok {
		return ErrDisconnected
	}
	return a.io.Emit("runJob", Job{Data: cmd.String()})
}

func (a *Adapter) Close() error {
	a.setConnected(false)
	if a.close != nil {
		a.close()
	}
	return nil
}
