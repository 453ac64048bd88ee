// Package session owns externally-driven connections - stream sockets,
// websocket peers, and database sessions - on behalf of script contexts.
//
// Each connection runs on its own worker goroutines, fully parallel to every
// instance queue. Completions are posted back onto the owning instance's
// queue: opening yields exactly one terminal callback (success or error,
// never both), inbound traffic becomes local bus events in per-connection
// arrival order, and writes are handed to a dedicated sender so script code
// never blocks.
//
// Close is idempotent and final: once the close call returns to the script,
// no further events are delivered for that connection id, even if data was
// in flight.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Diesmo/scripthost/internal/bus"
)

// Kind selects the transport behind a connection.
type Kind string

const (
	// KindStream is a plain TCP socket.
	KindStream Kind = "stream"
	// KindWebsocket is a websocket peer.
	KindWebsocket Kind = "websocket"
	// KindDatabase is a SQL session.
	KindDatabase Kind = "database"
)

// Owner identifies the script context that owns a connection.
type Owner struct {
	Script   string
	Instance string
}

func (o Owner) key() string { return o.Script + "@" + o.Instance }

// Poster accepts tasks for the owner's execution queue.
// Satisfied by *runq.Queue.
type Poster interface {
	Post(func()) bool
}

// Params carries connection parameters. Which fields are required depends on
// the kind; Open validates them before doing any work.
type Params struct {
	Host string // stream
	Port int    // stream
	URL  string // websocket, e.g. "ws://host:port/path"
	DSN  string // database, passed to the sqlite3 driver
}

type streamParams struct {
	Host string `validate:"required,hostname|ip"`
	Port int    `validate:"required,min=1,max=65535"`
}

type websocketParams struct {
	URL string `validate:"required,uri,startswith=ws"`
}

type databaseParams struct {
	DSN string `validate:"required"`
}

// ValidationError reports malformed connection parameters. Returned
// synchronously from Open; the connection is never created.
type ValidationError struct {
	Kind    Kind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session: invalid %s params: %s", e.Kind, e.Message)
}

// ConnErrorCode categorizes connection errors.
type ConnErrorCode string

const (
	// ErrCodeUnknownConn indicates an id this manager does not own.
	ErrCodeUnknownConn ConnErrorCode = "UNKNOWN_CONNECTION"
	// ErrCodeNotOpen indicates an operation on a connection that is not Open.
	ErrCodeNotOpen ConnErrorCode = "NOT_OPEN"
	// ErrCodeDialFailed indicates the connect attempt failed or timed out.
	ErrCodeDialFailed ConnErrorCode = "DIAL_FAILED"
)

// ConnError is a transport-level failure tied to one connection id.
type ConnError struct {
	Code ConnErrorCode
	ID   string
	Err  error
}

func (e *ConnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: connection %s: %v", e.Code, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: connection %s", e.Code, e.ID)
}

func (e *ConnError) Unwrap() error { return e.Err }

// IsUnknownConn reports whether err refers to an id the manager does not own.
func IsUnknownConn(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce) && ce.Code == ErrCodeUnknownConn
}

// Manager owns every connection in the process. One Manager is created at
// host startup and shared by all instances.
type Manager struct {
	bus      *bus.Bus
	timeout  time.Duration
	validate *validator.Validate
	newID    func() string

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewManager creates a manager posting completions through b.
// connectTimeout bounds every dial; a timed-out open transitions the
// connection to Failed with its single error callback.
func NewManager(b *bus.Bus, connectTimeout time.Duration) *Manager {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &Manager{
		bus:      b,
		timeout:  connectTimeout,
		validate: validator.New(),
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
		conns:    make(map[string]*Conn),
	}
}

// SetIDGenerator overrides connection id generation. Tests use sequential
// ids for stable assertions; production keeps the UUIDv7 default.
func (m *Manager) SetIDGenerator(gen func() string) {
	if gen != nil {
		m.newID = gen
	}
}

// OpenResult is the terminal callback of an Open. Exactly one of the two
// outcomes is reported: err is nil once the connection is Open, or non-nil
// once it is Failed. Runs on the owner's execution queue.
type OpenResult func(id string, err error)

// Open validates params, allocates a Connecting connection, and dials on a
// worker goroutine. The returned id is valid immediately (for Close), but
// the connection only becomes usable when onResult reports success.
//
// Malformed params return a ValidationError synchronously and allocate
// nothing.
func (m *Manager) Open(owner Owner, q Poster, kind Kind, p Params, onResult OpenResult) (string, error) {
	if err := m.checkParams(kind, p); err != nil {
		return "", err
	}

	c := &Conn{
		id:     m.newID(),
		kind:   kind,
		owner:  owner,
		queue:  q,
		mgr:    m,
		sendCh: make(chan []byte, 64),
	}
	c.state.Store(int32(StateConnecting))

	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()

	go c.connect(p, onResult)
	return c.id, nil
}

func (m *Manager) checkParams(kind Kind, p Params) error {
	var err error
	switch kind {
	case KindStream:
		err = m.validate.Struct(streamParams{Host: p.Host, Port: p.Port})
	case KindWebsocket:
		err = m.validate.Struct(websocketParams{URL: p.URL})
	case KindDatabase:
		err = m.validate.Struct(databaseParams{DSN: p.DSN})
	default:
		return &ValidationError{Kind: kind, Message: "unknown connection kind"}
	}
	if err != nil {
		return &ValidationError{Kind: kind, Message: err.Error()}
	}
	return nil
}

// Write queues data for sending on the connection's own worker. It never
// blocks on the network; a failed send surfaces later as an error event, not
// as a return value. Only an unknown or non-open connection id is reported
// synchronously.
func (m *Manager) Write(id string, data []byte) error {
	c := m.lookup(id)
	if c == nil {
		return &ConnError{Code: ErrCodeUnknownConn, ID: id}
	}
	return c.write(data)
}

// Query runs a database query on the connection's worker. Queries issued
// back-to-back on one connection are answered strictly in request order -
// result delivery is never interleaved. onRows runs on the owner's queue.
func (m *Manager) Query(id string, query string, args []any, onRows QueryResult) error {
	c := m.lookup(id)
	if c == nil {
		return &ConnError{Code: ErrCodeUnknownConn, ID: id}
	}
	return c.queryAsync(query, args, onRows)
}

// Close tears a connection down. Idempotent; closing an unknown id is a
// no-op. After Close returns, no further events are posted for the id.
func (m *Manager) Close(id string) {
	c := m.lookup(id)
	if c == nil {
		return
	}
	c.localClosed.Store(true)
	c.close(StateClosed)
}

// CloseOwner closes every connection owned by the given script context.
// Called during script unload.
func (m *Manager) CloseOwner(owner Owner) {
	m.mu.Lock()
	var owned []*Conn
	for _, c := range m.conns {
		if c.owner == owner {
			owned = append(owned, c)
		}
	}
	m.mu.Unlock()

	for _, c := range owned {
		c.localClosed.Store(true)
		c.close(StateClosed)
	}
}

// Shutdown closes all connections. Called at host teardown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		all = append(all, c)
	}
	m.mu.Unlock()

	for _, c := range all {
		c.localClosed.Store(true)
		c.close(StateClosed)
	}
}

func (m *Manager) lookup(id string) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[id]
}

func (m *Manager) drop(id string) {
	m.mu.Lock()
	delete(m.conns, id)
	m.mu.Unlock()
}
