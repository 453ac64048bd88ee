package session

import (
	"fmt"
	"sync/atomic"

	"github.com/Diesmo/scripthost/internal/bus"
	"github.com/Diesmo/scripthost/internal/value"
)

// State is a connection's position in its lifecycle:
//
//	Connecting -> Open | Failed
//	Open       -> Closed | Errored
//
// Failed, Closed, and Errored are terminal.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateFailed
	StateClosed
	StateErrored
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed || s == StateErrored
}

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// transport is the byte-level face of an open stream or websocket
// connection. read blocks until data, peer close, or error.
type transport interface {
	read() ([]byte, bool, error) // data, peerClosed, err
	write(data []byte) error
	close() error
}

// Conn is one connection owned by one script context.
//
// Concurrency: the dial, the read loop, and the writer each run on their own
// goroutine. Script-visible effects are all posted to the owner's queue and
// guarded by localClosed, which the owner's Close call sets synchronously on
// that same queue - so once Close returns to script code, nothing more is
// delivered for this id.
type Conn struct {
	id    string
	kind  Kind
	owner Owner
	queue Poster
	mgr   *Manager

	state       atomic.Int32
	localClosed atomic.Bool

	sendCh chan []byte
	doneCh chan struct{}

	transport transport // Set before the transition to Open.
	db        *dbSession
}

// State returns the connection's current state.
func (m *Manager) State(id string) (State, bool) {
	c := m.lookup(id)
	if c == nil {
		return 0, false
	}
	return State(c.state.Load()), true
}

// connect dials the transport for the connection's kind, then reports the
// single terminal open callback. Runs on its own goroutine.
func (c *Conn) connect(p Params, onResult OpenResult) {
	c.doneCh = make(chan struct{})

	var t transport
	var db *dbSession
	var err error
	switch c.kind {
	case KindStream:
		t, err = dialStream(p, c.mgr.timeout)
	case KindWebsocket:
		t, err = dialWebsocket(p, c.mgr.timeout)
	case KindDatabase:
		db, err = openDatabase(p, c.mgr.timeout)
	}

	if err != nil {
		if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateFailed)) {
			// Closed while connecting; the close wins and the callback is
			// suppressed.
			return
		}
		c.mgr.drop(c.id)
		c.post(func() { onResult(c.id, &ConnError{Code: ErrCodeDialFailed, ID: c.id, Err: err}) })
		return
	}

	c.transport = t
	c.db = db
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		// Closed while connecting: release what we just opened.
		if t != nil {
			t.close()
		}
		if db != nil {
			db.close()
		}
		return
	}

	c.post(func() { onResult(c.id, nil) })

	if c.kind == KindDatabase {
		go c.db.run(c)
		return
	}
	go c.readLoop()
	go c.writeLoop()
}

// post schedules a script callback on the owner's queue, suppressed once the
// owner has closed the connection.
func (c *Conn) post(fn func()) {
	c.queue.Post(func() {
		if c.localClosed.Load() {
			return
		}
		fn()
	})
}

// emit publishes a connection event local to the owning script context.
func (c *Conn) emit(suffix string, fields value.Object) {
	payload := value.Object{"id": value.String(c.id)}
	for k, v := range fields {
		payload[k] = v
	}
	c.mgr.bus.EmitGuarded(c.owner.Instance, bus.Event{
		Name:      c.eventName(suffix),
		Payload:   payload,
		Origin:    bus.Origin{Script: c.owner.Script, Instance: c.owner.Instance},
		OwnerOnly: c.owner.Script,
	}, func() bool { return !c.localClosed.Load() })
}

func (c *Conn) eventName(suffix string) string {
	switch c.kind {
	case KindStream:
		return "net." + suffix
	case KindWebsocket:
		return "ws." + suffix
	case KindDatabase:
		return "db." + suffix
	}
	return string(c.kind) + "." + suffix
}

// readLoop translates inbound transport notifications into bus events.
// Arrival order is preserved per connection because a single goroutine reads
// and the queue is FIFO.
func (c *Conn) readLoop() {
	for {
		data, peerClosed, err := c.transport.read()
		switch {
		case peerClosed:
			if c.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
				c.teardown()
				c.emit("close", nil)
			}
			return
		case err != nil:
			if c.state.CompareAndSwap(int32(StateOpen), int32(StateErrored)) {
				c.teardown()
				c.emit("error", value.Object{"error": value.String(err.Error())})
			}
			return
		default:
			c.emit("data", value.Object{"data": value.String(data)})
		}
	}
}

// writeLoop drains the send queue onto the transport. A send failure is an
// asynchronous error event, since the script that issued the write has long
// returned to its queue.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.doneCh:
			return
		case data := <-c.sendCh:
			if err := c.transport.write(data); err != nil {
				if c.state.CompareAndSwap(int32(StateOpen), int32(StateErrored)) {
					c.teardown()
					c.emit("error", value.Object{"error": value.String(err.Error())})
				}
				return
			}
		}
	}
}

// write hands data to the writer goroutine. Calls from the owning script are
// serialized by its queue, so back-to-back writes land on sendCh - and on
// the wire - in call order.
func (c *Conn) write(data []byte) error {
	if c.kind == KindDatabase {
		return &ConnError{Code: ErrCodeNotOpen, ID: c.id, Err: fmt.Errorf("not a writable connection")}
	}
	if State(c.state.Load()) != StateOpen {
		return &ConnError{Code: ErrCodeNotOpen, ID: c.id}
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.doneCh:
		return &ConnError{Code: ErrCodeNotOpen, ID: c.id}
	default:
		// Send queue saturated. Blocking here would stall the instance
		// queue, so the overflow surfaces as an error event instead.
		c.emit("error", value.Object{"error": value.String("send queue full")})
		return nil
	}
}

// close moves the connection to a terminal state. Idempotent: the first
// caller wins, later calls and races with the read/write loops are no-ops.
func (c *Conn) close(to State) {
	for {
		s := State(c.state.Load())
		if s.Terminal() {
			return
		}
		if c.state.CompareAndSwap(int32(s), int32(to)) {
			if s == StateOpen {
				c.teardown()
			} else {
				// Closed while Connecting. The dial goroutine still owns
				// the transport and releases it when its CAS fails, but
				// the manager entry is forgotten here.
				c.mgr.drop(c.id)
			}
			return
		}
	}
}

// teardown releases worker goroutines and transport resources, and forgets
// the connection. Called exactly once, by whichever transition left Open.
func (c *Conn) teardown() {
	select {
	case <-c.doneCh:
	default:
		close(c.doneCh)
	}
	if c.transport != nil {
		c.transport.close()
	}
	if c.db != nil {
		c.db.close()
	}
	c.mgr.drop(c.id)
}
