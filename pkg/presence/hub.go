package presence

import (
	"io"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var (
	errorLog = log.New(io.Discard, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// SetLoggers redirects the package loggers. The server wires these to its
// own error/debug logs; tests leave them discarded.
func SetLoggers(errLog, dbgLog *log.Logger) {
	if errLog != nil {
		errorLog = errLog
	}
	if dbgLog != nil {
		debugLog = dbgLog
	}
}

// Metrics receives presence events. Implemented by the server's prometheus
// metrics; a nil Metrics disables instrumentation.
type Metrics interface {
	ConnectionOpened(online int)
	ConnectionClosed(online int)
	PresenceBroadcast(fanout int)
	EventRouted(event string)
	EventDropped(event string)
}

// Hub owns the connection lifecycle: it upgrades incoming WebSocket
// requests, drives the Registry on connect/disconnect, and pushes the
// online-user set to every client after each transition.
//
// State machine per physical connection: handshake (userId from the query
// string) -> registered -> read loop -> unregistered. A connection that
// never resolves a userId is rejected before it touches the Registry.
type Hub struct {
	registry *Registry
	upgrader websocket.Upgrader
	metrics  Metrics
}

// NewHub creates a hub around the given registry.
func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Auth happens upstream via the session cookie; the ws
			// handshake itself accepts any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetMetrics attaches metrics to the hub.
func (h *Hub) SetMetrics(metrics Metrics) {
	h.metrics = metrics
}

// Registry returns the registry the hub maintains.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// HandleWebSocket is the HTTP handler for the live connection endpoint.
// The client identifies itself with a userId query parameter; the value is
// treated as an opaque identifier and is fixed for the connection lifetime.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		// Handshake failure: local and silent, no registry effect.
		debugLog.Printf("ws handshake from %s rejected: missing userId", r.RemoteAddr)
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own HTTP error response.
		debugLog.Printf("ws upgrade failed for user %s: %v", userID, err)
		return
	}

	conn := NewConn(ws)
	h.registry.Register(userID, conn)
	debugLog.Printf("user %s connected from %s (%d online)", userID, conn.RemoteAddr(), h.registry.Count())
	if h.metrics != nil {
		h.metrics.ConnectionOpened(h.registry.Count())
	}
	h.broadcastPresence()

	h.readLoop(userID, conn)
}

// readLoop blocks until the connection dies, then reconciles the registry.
// Inbound frames are discarded: clients only listen on this transport, and
// the read exists to observe the close.
func (h *Hub) readLoop(userID string, conn *Conn) {
	defer conn.Close()

	for {
		if err := conn.ReadDiscard(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				debugLog.Printf("user %s read error: %v", userID, err)
			}
			break
		}
	}

	// Identity-checked removal: if the user reconnected while this loop was
	// still running, the registry already points at the newer connection and
	// this unregister is a no-op.
	removed := h.registry.Unregister(userID, conn)
	debugLog.Printf("user %s disconnected (removed=%v, %d online)", userID, removed, h.registry.Count())
	if h.metrics != nil {
		h.metrics.ConnectionClosed(h.registry.Count())
	}
	// Broadcast even when nothing was removed: peers still need a refresh
	// ordered after this transition.
	h.broadcastPresence()
}

// broadcastPresence sends the current online-user set to every connected
// client. The snapshot is taken strictly after the mutation that triggered
// the call, so each broadcast reflects the registry at call time. Eager and
// O(connections) per transition; there is no batching.
func (h *Hub) broadcastPresence() {
	online := h.registry.Snapshot()

	sent := 0
	for _, userID := range online {
		conn, ok := h.registry.Lookup(userID)
		if !ok {
			// Disconnected between snapshot and lookup; skip.
			continue
		}
		if err := conn.WriteEvent(EventOnlineUsers, online); err != nil {
			// Equivalent to the connection already being closed; the
			// connection's own read loop will reconcile the registry.
			debugLog.Printf("presence broadcast to %s failed: %v", userID, err)
			continue
		}
		sent++
	}

	if h.metrics != nil {
		h.metrics.PresenceBroadcast(sent)
	}
}
