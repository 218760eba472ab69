package grbl

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
)

// rxBufferSize is the size of Grbl's serial receive buffer.
const rxBufferSize = 128

// ErrGrblReset is returned from Write if the controller resets before every
// line has been acknowledged.
var ErrGrblReset = errors.New("grbl reset")

// rxWindow tracks the bytes sent to the controller that it has not yet
// acknowledged. Grbl acks lines in order, one "ok" or "error:" each.
type rxWindow struct {
	used    int
	pending []int
}

func (w *rxWindow) fits(n int) bool { return w.used+n <= rxBufferSize || len(w.pending) == 0 }
func (w *rxWindow) empty() bool     { return len(w.pending) == 0 }

func (w *rxWindow) push(n int) {
	w.used += n
	w.pending = append(w.pending, n)
}

func (w *rxWindow) pop() {
	w.used -= w.pending[0]
	w.pending = w.pending[1:]
}

func (w *rxWindow) clear() {
	w.used = 0
	w.pending = nil
}

// Conn is a direct connection to a Grbl controller. Write streams lines
// using character counting; Read returns the controller's output one line
// at a time and must be called continuously for Write to make progress.
type Conn struct {
	rw    io.ReadWriter
	lines *bufio.Scanner

	// held is a line that did not fit the caller's buffer.
	held []byte

	// unacked counts lines written but not yet acknowledged. Acks and
	// resets are only queued while it is positive, so Read never blocks on
	// a writer and output from before a Write cannot be mistaken for its
	// acknowledgment.
	ackMx   sync.Mutex
	unacked int

	acks   chan error
	resets chan struct{}
	done   chan struct{}

	sendMx    sync.Mutex
	portMx    sync.Mutex
	closeOnce sync.Once

	window rxWindow
}

// NewConn returns a Conn using rw for data.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		rw:     rw,
		lines:  bufio.NewScanner(rw),
		acks:   make(chan error, rxBufferSize),
		resets: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Close aborts pending writes and closes the underlying ReadWriter if it is
// an io.Closer.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// awaitAck blocks for the acknowledgment of the oldest pending line.
func (c *Conn) awaitAck() error {
	if c.closed() {
		return io.ErrClosedPipe
	}
	select {
	case <-c.done:
		return io.ErrClosedPipe
	case <-c.resets:
		c.window.clear()
		c.drain()
		return ErrGrblReset
	case err := <-c.acks:
		c.window.pop()
		return err
	}
}

// Write sends every line in p and returns once all of them have been
// acknowledged. The first "error:" response is returned after the rest of
// the lines have been processed.
func (c *Conn) Write(p []byte) (int, error) {
	c.sendMx.Lock()
	defer c.sendMx.Unlock()

	if c.closed() {
		return 0, io.ErrClosedPipe
	}
	c.drain()

	var n int
	var rejected error
	for len(p) > 0 {
		line := p
		if i := bytes.IndexByte(p, '\n'); i >= 0 {
			line = p[:i+1]
		}
		p = p[len(line):]

		for !c.window.fits(len(line)) {
			err := c.awaitAck()
			if err == ErrGrblReset || err == io.ErrClosedPipe {
				return n, err
			}
			if rejected == nil {
				rejected = err
			}
		}

		c.ackMx.Lock()
		c.unacked++
		c.ackMx.Unlock()

		c.portMx.Lock()
		_, err := c.rw.Write(line)
		c.portMx.Unlock()
		if err != nil {
			return n, err
		}
		c.window.push(len(line))
		n += len(line)
	}

	for !c.window.empty() {
		err := c.awaitAck()
		if err == ErrGrblReset || err == io.ErrClosedPipe {
			return n, err
		}
		if rejected == nil {
			rejected = err
		}
	}
	return n, rejected
}

// WriteByte writes b immediately, bypassing flow control. Use it for
// realtime commands like `?`.
func (c *Conn) WriteByte(b byte) error {
	if c.closed() {
		return io.ErrClosedPipe
	}
	c.portMx.Lock()
	defer c.portMx.Unlock()
	_, err := c.rw.Write([]byte{b})
	return err
}

// Read reads the next line from the controller, without the newline.
// Acknowledgments are also delivered to a pending Write.
func (c *Conn) Read(p []byte) (int, error) {
	if c.closed() {
		return 0, io.ErrClosedPipe
	}

	if c.held != nil {
		if len(p) < len(c.held) {
			return 0, io.ErrShortBuffer
		}
		n := copy(p, c.held)
		c.held = nil
		return n, nil
	}

	if !c.lines.Scan() {
		err := c.lines.Err()
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	line := c.lines.Bytes()
	text := strings.TrimSpace(string(line))

	switch {
	case text == "ok":
		c.ack(nil)
	case strings.HasPrefix(text, "error:"):
		c.ack(errors.New(text))
	case strings.HasPrefix(text, "Grbl"):
		c.reset()
	}

	if len(p) < len(line) {
		c.held = append([]byte(nil), line...)
		return 0, io.ErrShortBuffer
	}
	return copy(p, line), nil
}

// ack hands an acknowledgment to the pending Write. Acks with no line
// outstanding are dropped.
func (c *Conn) ack(err error) {
	c.ackMx.Lock()
	defer c.ackMx.Unlock()
	if c.unacked == 0 {
		return
	}
	c.unacked--
	select {
	case c.acks <- err:
	default:
		// the window never holds more than rxBufferSize lines
	}
}

// reset reports a controller reset to the pending Write. The startup banner
// printed when the port opens is ignored.
func (c *Conn) reset() {
	c.ackMx.Lock()
	defer c.ackMx.Unlock()
	if c.unacked == 0 {
		return
	}
	c.unacked = 0
	select {
	case c.resets <- struct{}{}:
	default:
	}
}

// drain discards acks and resets left over from an aborted Write.
func (c *Conn) drain() {
	c.ackMx.Lock()
	defer c.ackMx.Unlock()
	c.unacked = 0
	for {
		select {
		case <-c.acks:
		case <-c.resets:
		default:
			return
		}
	}
}
