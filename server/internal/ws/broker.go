package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/elizahub/elizahub/pkg/types"
	"github.com/elizahub/elizahub/server/internal/bridge"
	"github.com/elizahub/elizahub/server/internal/broker"
	"github.com/elizahub/elizahub/server/internal/eliza"
	"github.com/elizahub/elizahub/server/internal/session"
)

// ServeBroker runs a broker-topic conversation. Blocks until the connection
// closes.
func (h *Hub) ServeBroker(w http.ResponseWriter, r *http.Request) {
	conn, ch, ok := h.upgrade(w, r)
	if !ok {
		return
	}
	slog.Info("ws: broker client connected", "session", ch.ID(), "remote", r.RemoteAddr)

	subs := &subscriptions{broker: h.broker, ch: ch, active: make(map[string]*broker.Subscription)}
	defer subs.cancelAll()

	adapter := bridge.NewTopicAdapter(ch, h.broker, h.opts.ReplyTopic)
	conv := bridge.New(ch.ID(), adapter, eliza.New(h.script), h.metrics)
	h.serveConversation(conn, ch, conv, func(data []byte) error {
		var f types.BrokerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return sendFrame(ch, types.BrokerFrame{Type: types.FrameError, Body: "malformed frame"})
		}

		switch f.Type {
		case types.FrameSubscribe:
			if f.Topic == "" {
				return sendFrame(ch, types.BrokerFrame{Type: types.FrameError, Body: "subscribe: topic is required"})
			}
			subs.add(f.Topic)
		case types.FrameUnsubscribe:
			subs.remove(f.Topic)
		case types.FrameSend:
			switch f.Destination {
			case "":
				return sendFrame(ch, types.BrokerFrame{Type: types.FrameError, Body: "send: destination is required"})
			case h.opts.RequestTopic:
				return conv.Handle(f.Body)
			default:
				h.broker.Publish(f.Destination, f.Body)
			}
		default:
			return sendFrame(ch, types.BrokerFrame{Type: types.FrameError, Body: "unknown frame type " + f.Type})
		}
		return nil
	})
}

func sendFrame(ch *session.Channel, f types.BrokerFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return ch.Send(string(data))
}

// subscriptions tracks one client's topic subscriptions and forwards their
// messages to the client's channel.
type subscriptions struct {
	broker *broker.Broker
	ch     *session.Channel

	mu     sync.Mutex
	active map[string]*broker.Subscription
	wg     sync.WaitGroup
}

func (s *subscriptions) add(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[topic]; ok {
		return
	}
	sub := s.broker.Subscribe(topic)
	s.active[topic] = sub

	s.wg.Add(1)
	go s.forward(sub)
}

func (s *subscriptions) remove(topic string) {
	s.mu.Lock()
	sub, ok := s.active[topic]
	delete(s.active, topic)
	s.mu.Unlock()
	if ok {
		s.broker.Unsubscribe(sub)
	}
}

func (s *subscriptions) cancelAll() {
	s.mu.Lock()
	active := s.active
	s.active = make(map[string]*broker.Subscription)
	s.mu.Unlock()

	for _, sub := range active {
		s.broker.Unsubscribe(sub)
	}
	s.wg.Wait()
}

// forward drains sub until it is cancelled. Once the channel is unusable the
// remaining messages are discarded.
func (s *subscriptions) forward(sub *broker.Subscription) {
	defer s.wg.Done()
	for m := range sub.C {
		if !s.ch.IsOpen() {
			continue
		}
		err := sendFrame(s.ch, types.BrokerFrame{Type: types.FrameMessage, Topic: m.Topic, Body: m.Body})
		if err != nil {
			slog.Debug("ws: broker forward failed", "session", s.ch.ID(), "topic", sub.Topic(), "err", err)
		}
	}
}
