// Package broker is the in-process publish/subscribe hub behind the broker
// endpoint: publishing to a named topic delivers the payload to every current
// subscriber of that topic.
package broker

import (
	"log/slog"
	"sync"
)

// DefaultBuffer is the per-subscription queue depth.
const DefaultBuffer = 64

// Message is one published payload.
type Message struct {
	Topic string
	Body  string
}

// Broker manages per-topic subscriptions. It is safe for concurrent use.
type Broker struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// Subscription receives messages for one topic until it is cancelled.
type Subscription struct {
	topic string
	C     <-chan Message
	ch    chan Message
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// New creates a Broker whose subscriptions buffer up to buffer messages.
func New(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe returns a Subscription for topic.
func (b *Broker) Subscribe(topic string) *Subscription {
	ch := make(chan Message, b.buffer)
	sub := &Subscription{topic: topic, C: ch, ch: ch}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Subscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subs[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subs, sub.topic)
	}
	close(sub.ch)
}

// Publish delivers body to every subscriber of topic and returns how many
// received it. It never blocks: a subscriber whose queue is full misses the
// message.
func (b *Broker) Publish(topic, body string) int {
	msg := Message{Topic: topic, Body: body}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.subs[topic] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			slog.Warn("broker: dropping message for slow subscriber", "topic", topic)
		}
	}
	return delivered
}

// Subscribers returns the number of subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
