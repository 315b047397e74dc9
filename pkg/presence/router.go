package presence

// Router delivers point-to-point events (chat messages, notifications) to
// the single connection belonging to the target user.
//
// Delivery is best-effort and fire-and-forget: no queue, no retry, no
// acknowledgment. If the recipient is offline at call time the event is
// simply lost; the caller's own persisted state is the source of truth and
// must not treat non-delivery as a failure.
type Router struct {
	registry *Registry
	metrics  Metrics
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// SetMetrics attaches metrics to the router.
func (rt *Router) SetMetrics(metrics Metrics) {
	rt.metrics = metrics
}

// Route emits (event, payload) to the target user's connection, if one is
// registered. The payload shape is defined by the caller and never
// inspected here. No other connection ever observes the payload.
func (rt *Router) Route(targetUserID, event string, payload any) {
	conn, ok := rt.registry.Lookup(targetUserID)
	if !ok {
		debugLog.Printf("route %s to %s dropped: recipient offline", event, targetUserID)
		if rt.metrics != nil {
			rt.metrics.EventDropped(event)
		}
		return
	}

	if err := conn.WriteEvent(event, payload); err != nil {
		// Treated as the connection already being closed; the hub's close
		// handling reconciles the registry. No retry.
		debugLog.Printf("route %s to %s failed: %v", event, targetUserID, err)
		if rt.metrics != nil {
			rt.metrics.EventDropped(event)
		}
		return
	}

	if rt.metrics != nil {
		rt.metrics.EventRouted(event)
	}
}
