package presence

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds how long a single event write may block on a slow
// client before the send is abandoned and the connection treated as dead.
const writeTimeout = 5 * time.Second

// Conn wraps a websocket connection with automatic write synchronization.
//
// Presence broadcasts and routed events originate from many goroutines
// (every HTTP handler with a real-time side effect, plus the hub itself).
// gorilla/websocket allows at most one concurrent writer per connection, so
// Conn encapsulates both the socket and its write mutex, making it
// impossible to emit an event without proper synchronization.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex // Protects writes to ws
}

// NewConn wraps a websocket connection with write synchronization.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteEvent marshals and sends a single event frame. This is the ONLY way
// to write to the connection - the raw socket is private.
//
// A write error means the connection is effectively gone; callers treat it
// the same as the peer having already disconnected and never retry.
func (c *Conn) WriteEvent(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(Frame{Event: event, Data: data})
}

// ReadDiscard reads and discards the next inbound message. Clients only
// listen on this transport; the read loop exists to detect disconnects.
func (c *Conn) ReadDiscard() error {
	_, _, err := c.ws.ReadMessage()
	return err
}

// Close closes the underlying websocket connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}
