package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/elizahub/elizahub/server/internal/bridge"
	"github.com/elizahub/elizahub/server/internal/broker"
	"github.com/elizahub/elizahub/server/internal/eliza"
	"github.com/elizahub/elizahub/server/internal/metrics"
	"github.com/elizahub/elizahub/server/internal/session"
)

// Endpoint paths.
const (
	ChatPath     = "/eliza"
	BrokerPath   = "/eliza-broker"
	ObserverPath = "/metrics-stream"
)

const (
	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames
	// to observers. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// observerReadLimit caps inbound frames on the observer endpoint, which
	// expects none.
	observerReadLimit = 512
)

// Options configures a Hub.
type Options struct {
	WriteTimeout   time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
	RequestTopic   string
	ReplyTopic     string
}

// Hub serves the conversation and observer endpoints.
type Hub struct {
	opts      Options
	metrics   *metrics.Aggregator
	observers *session.Registry
	broker    *broker.Broker
	script    *eliza.Script
	upgrader  websocket.Upgrader
}

// New creates a Hub. Conversations count against agg, observers join the
// registry agg broadcasts to, and every conversation gets its own responder
// running script.
func New(opts Options, agg *metrics.Aggregator, observers *session.Registry, b *broker.Broker, script *eliza.Script) *Hub {
	h := &Hub{
		opts:      opts,
		metrics:   agg,
		observers: observers,
		broker:    b,
		script:    script,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Routes mounts the endpoints on mux.
func (h *Hub) Routes(mux *http.ServeMux) {
	mux.HandleFunc(ChatPath, h.ServeChat)
	mux.HandleFunc(BrokerPath, h.ServeBroker)
	mux.HandleFunc(ObserverPath, h.ServeObserver)
}

// ServeChat runs a direct-push conversation. Blocks until the connection closes.
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request) {
	conn, ch, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	slog.Info("ws: chat connected", "session", ch.ID(), "remote", r.RemoteAddr)

	conv := bridge.New(ch.ID(), bridge.NewChannelAdapter(ch), eliza.New(h.script), h.metrics)
	h.serveConversation(conn, ch, conv, func(data []byte) error {
		return conv.Handle(string(data))
	})
}

// ServeObserver registers the connection for metrics broadcasts. Blocks until
// the connection closes.
func (h *Hub) ServeObserver(w http.ResponseWriter, r *http.Request) {
	conn, ch, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	h.observers.Register(ch)
	slog.Info("ws: observer connected", "session", ch.ID(), "remote", r.RemoteAddr)

	done := make(chan struct{})
	defer func() {
		close(done)
		h.observers.Unregister(ch)
		_ = ch.Close(websocket.CloseNormalClosure, "")
		slog.Info("ws: observer disconnected", "session", ch.ID())
	}()

	go keepAlive(ch, done)
	readPump(conn)
}

// CloseObservers closes every observer with 1001. Call it once the sampling
// loop has stopped.
func (h *Hub) CloseObservers() {
	h.observers.CloseAll(websocket.CloseGoingAway, "server shutting down")
}

func (h *Hub) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, *session.Channel, bool) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "path", r.URL.Path, "err", err)
		return nil, nil, false
	}
	if h.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(h.opts.MaxMessageSize)
	}
	return conn, session.NewChannel(conn, h.opts.WriteTimeout), true
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	slog.Warn("ws: origin rejected", "origin", origin)
	return false
}

// serveConversation opens conv and feeds it inbound text frames one at a time
// until the connection ends or handle fails. Blocks until then.
func (h *Hub) serveConversation(conn *websocket.Conn, ch *session.Channel, conv *bridge.Conversation, handle func([]byte) error) {
	defer func() {
		conv.Closed()
		_ = ch.Close(websocket.CloseNormalClosure, "")
	}()

	if err := conv.Open(); err != nil {
		return
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ch.IsOpen() && !websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				conv.Fail(err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := handle(data); err != nil {
			return
		}
	}
}

// keepAlive pings ch every pingPeriod until done is closed or a ping fails.
func keepAlive(ch *session.Channel, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := ch.Ping(); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages (pong,
// close) and detect disconnects. Blocks until the connection closes.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(observerReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
