package bridge

import (
	"github.com/elizahub/elizahub/server/internal/session"
)

// Style is the transport capability a conversation is bound to.
type Style int

const (
	// Push writes frames straight back to the client connection.
	Push Style = iota
	// PubSub publishes replies to a shared topic.
	PubSub
)

func (s Style) String() string {
	switch s {
	case Push:
		return "push"
	case PubSub:
		return "pubsub"
	}
	return "unknown"
}

// Adapter is the transport side of a conversation.
type Adapter interface {
	Style() Style
	// Send delivers lines in order. Push adapters write them as one frame group.
	Send(lines ...string) error
	// Close ends the client connection with a close code and reason.
	Close(code int, reason string) error
	IsOpen() bool
}

// Publisher is the broker capability a PubSub adapter needs.
type Publisher interface {
	Publish(topic, body string) int
}

// ChannelAdapter pushes frames to a session.Channel.
type ChannelAdapter struct {
	ch *session.Channel
}

// NewChannelAdapter returns a Push adapter writing to ch.
func NewChannelAdapter(ch *session.Channel) *ChannelAdapter {
	return &ChannelAdapter{ch: ch}
}

func (a *ChannelAdapter) Style() Style                        { return Push }
func (a *ChannelAdapter) Send(lines ...string) error          { return a.ch.SendAll(lines...) }
func (a *ChannelAdapter) Close(code int, reason string) error { return a.ch.Close(code, reason) }
func (a *ChannelAdapter) IsOpen() bool                        { return a.ch.IsOpen() }

// TopicAdapter publishes replies to a broker topic on behalf of the client
// connected through ch.
type TopicAdapter struct {
	ch    *session.Channel
	pub   Publisher
	topic string
}

// NewTopicAdapter returns a PubSub adapter that publishes to topic.
func NewTopicAdapter(ch *session.Channel, pub Publisher, topic string) *TopicAdapter {
	return &TopicAdapter{ch: ch, pub: pub, topic: topic}
}

func (a *TopicAdapter) Style() Style { return PubSub }

// Send publishes each line to the reply topic. Publishing never fails; slow
// subscribers miss messages instead.
func (a *TopicAdapter) Send(lines ...string) error {
	for _, line := range lines {
		a.pub.Publish(a.topic, line)
	}
	return nil
}

func (a *TopicAdapter) Close(code int, reason string) error { return a.ch.Close(code, reason) }
func (a *TopicAdapter) IsOpen() bool                        { return a.ch.IsOpen() }
