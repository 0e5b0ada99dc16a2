package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the lifecycle of a connection: connecting → open → closed.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// ErrConnNotOpen is returned by Send when the connection is not open for writing.
var ErrConnNotOpen = errors.New("connection not open")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// socket is the part of *websocket.Conn used for writing.
type socket interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Conn represents a single WebSocket connection.
type Conn struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	ws          socket
	writeMu     sync.Mutex
	state       atomic.Int32
	closeOnce   sync.Once
}

func NewConn(id string, ws socket, remoteAddr string) *Conn {
	return &Conn{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		ws:          ws,
	}
}

func (c *Conn) String() string { return c.ID }

// State reports where the connection is in its lifecycle.
func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }

func (c *Conn) open() { c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) }

// Send writes v as a JSON text frame (thread-safe). Connections that are not
// open are skipped with ErrConnNotOpen.
func (c *Conn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.State() != StateOpen {
		return ErrConnNotOpen
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// Ping sends a keepalive ping control frame.
func (c *Conn) Ping() error {
	if c.State() != StateOpen {
		return ErrConnNotOpen
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close marks the connection closed, sends a close frame and releases the socket.
// It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.state.Store(int32(StateClosed))
		c.writeMu.Unlock()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// Broadcaster is the read-only view of the registry handed to the relay.
type Broadcaster interface {
	// Broadcast sends v to every open connection and returns how many received it.
	Broadcast(v any) int
	// Count returns the number of registered connections.
	Count() int
}

// ConnManager tracks all active WebSocket connections.
type ConnManager struct {
	mu      sync.RWMutex
	conns   map[string]*Conn // connID → conn
	metrics *Metrics
}

func NewConnManager(metrics *Metrics) *ConnManager {
	return &ConnManager{conns: make(map[string]*Conn), metrics: metrics}
}

// Add registers a new connection and moves it to the open state.
func (m *ConnManager) Add(conn *Conn) {
	m.mu.Lock()
	m.conns[conn.ID] = conn
	n := len(m.conns)
	m.mu.Unlock()
	conn.open()
	m.metrics.setConnections(n)
}

// Remove unregisters a connection. Unknown IDs are ignored.
func (m *ConnManager) Remove(connID string) {
	m.mu.Lock()
	delete(m.conns, connID)
	n := len(m.conns)
	m.mu.Unlock()
	m.metrics.setConnections(n)
}

// Get returns a connection by ID.
func (m *ConnManager) Get(connID string) *Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[connID]
}

// Count returns the number of registered connections.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *ConnManager) snapshot() []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Broadcast sends v to all open connections. Failed writes are logged and do
// not stop delivery to the others.
func (m *ConnManager) Broadcast(v any) int {
	sent := 0
	for _, conn := range m.snapshot() {
		if conn.State() != StateOpen {
			continue
		}
		if err := conn.Send(v); err != nil {
			if !errors.Is(err, ErrConnNotOpen) {
				slog.Warn("broadcast failed", "conn", conn.ID, "error", err)
			}
			continue
		}
		sent++
	}
	m.metrics.addBroadcastFrames(sent)
	return sent
}

// CloseAll closes and unregisters every connection.
func (m *ConnManager) CloseAll() int {
	conns := m.snapshot()
	for _, conn := range conns {
		m.Remove(conn.ID)
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection", "conn", conn.ID, "error", err)
		}
	}
	return len(conns)
}
