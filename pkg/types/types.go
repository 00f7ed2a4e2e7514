package types

// MetricsSnapshot is an immutable point-in-time read of the hub's counters.
// The JSON shape is fixed; observers and GET /api/v1/metrics both receive it.
type MetricsSnapshot struct {
	ActiveConnections int64 `json:"activeConnections"`
	TotalMessages     int64 `json:"totalMessages"`
	MessagesPerSecond int64 `json:"messagesPerSecond"`
}

// Broker frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSend        = "send"
	FrameMessage     = "message"
	FrameError       = "error"
)

// BrokerFrame is one JSON text frame on the broker endpoint.
//
// Clients send subscribe/unsubscribe (Topic) and send (Destination, Body).
// The server sends message (Topic, Body) and error (Body).
type BrokerFrame struct {
	Type        string `json:"type"`
	Topic       string `json:"topic,omitempty"`
	Destination string `json:"destination,omitempty"`
	Body        string `json:"body,omitempty"`
}
