package presence

// Event names emitted by the server over the WebSocket transport.
//
// EventOnlineUsers goes to every open connection; everything else is routed
// point-to-point through the Router. Payload shapes for routed events are
// defined by the caller - the presence core never looks inside them.
const (
	EventOnlineUsers  = "online-users"
	EventNotification = "notification"
	EventNewMessage   = "new-message"
)

// Frame is the envelope for every server-to-client event.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
