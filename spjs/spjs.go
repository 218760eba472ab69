// Package spjs is a websocket client for Serial Port JSON Server.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned for sends after Close.
var ErrClosed = errors.New("spjs: closed")

const redialDelay = 3 * time.Second

// SPJS is a client for Serial Port JSON Server. It reconnects until closed.
type SPJS struct {
	url string

	outgoing chan frame
	incoming chan interface{}

	closeCh   chan struct{}
	closeOnce sync.Once
}

// frame is a queued text message; written is closed once it is on the wire.
type frame struct {
	payload []byte
	written chan struct{}
}

// NewSPJS starts a client for the server at url, e.g.
// ws://localhost:8989/ws.
func NewSPJS(url string) *SPJS {
	sp := &SPJS{
		url:      url,
		outgoing: make(chan frame, 1000),
		incoming: make(chan interface{}, 1000),
		closeCh:  make(chan struct{}),
	}
	go sp.loop()
	return sp
}

// Messages delivers decoded server messages (see Decode) and *Disconnected.
func (sp *SPJS) Messages() <-chan interface{} { return sp.incoming }

// Close stops reconnecting and closes the current connection.
func (sp *SPJS) Close() error {
	sp.closeOnce.Do(func() { close(sp.closeCh) })
	return nil
}

func (sp *SPJS) deliver(v interface{}) {
	select {
	case sp.incoming <- v:
	case <-sp.closeCh:
	}
}

func (sp *SPJS) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Println("ERROR: read:", err)
			sp.deliver(&Disconnected{Err: err})
			return
		}
		// the server echoes commands back as plain text
		if !bytes.HasPrefix(data, []byte("{")) {
			continue
		}
		v, err := Decode(data)
		if err != nil {
			log.Println("ERROR: decode:", err)
			continue
		}
		sp.deliver(v)
	}
}

func (sp *SPJS) loop() {
	var pending *frame
	for {
		select {
		case <-sp.closeCh:
			return
		default:
		}

		log.Println("Connecting to", sp.url)
		ws, _, err := websocket.DefaultDialer.Dial(sp.url, nil)
		if err != nil {
			log.Println("ERROR: connect:", err)
			select {
			case <-sp.closeCh:
				return
			case <-time.After(redialDelay):
			}
			continue
		}
		log.Println("Connected.")

		var closed bool
		pending, closed = sp.serve(ws, pending)
		ws.Close()
		if closed {
			return
		}
	}
}

// serve writes queued frames to ws until the connection drops or the client
// is closed. A frame that failed to write is returned for the next
// connection.
func (sp *SPJS) serve(ws *websocket.Conn, pending *frame) (*frame, bool) {
	readDone := make(chan struct{})
	go sp.readLoop(ws, readDone)

	// refresh the port list on every connect
	err := ws.WriteMessage(websocket.TextMessage, []byte("list"))
	if err != nil {
		log.Println("ERROR: send:", err)
		return pending, false
	}

	for {
		if pending != nil {
			err := ws.WriteMessage(websocket.TextMessage, pending.payload)
			if err != nil {
				log.Println("ERROR: send:", err)
				return pending, false
			}
			close(pending.written)
			pending = nil
		}

		select {
		case <-sp.closeCh:
			return nil, true
		case <-readDone:
			return nil, false
		case f := <-sp.outgoing:
			pending = &f
		}
	}
}

// SendJSON queues a sendjson command and waits until it is written.
func (sp *SPJS) SendJSON(v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sp.send(append([]byte("sendjson "), data...))
}

// WriteString sends a raw server command such as "list".
func (sp *SPJS) WriteString(cmd string) error {
	return sp.send([]byte(cmd))
}

func (sp *SPJS) send(payload []byte) error {
	f := frame{payload: payload, written: make(chan struct{})}
	select {
	case sp.outgoing <- f:
	case <-sp.closeCh:
		return ErrClosed
	}
	select {
	case <-f.written:
		return nil
	case <-sp.closeCh:
		return ErrClosed
	}
}
