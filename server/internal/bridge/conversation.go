package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Fixed conversation texts.
const (
	Delimiter = "---"
	Farewell  = "Alright then, goodbye!"
	Apology   = "I'm sorry, I didn't understand that."

	farewellKeyword = "bye"
)

// Greeting is sent, in order, when a Push conversation opens.
var Greeting = []string{"The doctor is in.", "What's on your mind?", Delimiter}

var (
	// ErrEngineFailure wraps a responder panic.
	ErrEngineFailure = errors.New("bridge: response engine failure")
	// ErrNotOpening is returned by Open on a conversation that already opened.
	ErrNotOpening = errors.New("bridge: conversation already opened")
)

// Responder produces a reply for a normalized utterance.
type Responder interface {
	Respond(utterance string) string
}

// Counters receives connection and message accounting.
type Counters interface {
	IncrementConnections()
	DecrementConnections()
	IncrementMessages()
}

// State is a conversation lifecycle state.
type State int

const (
	Opening State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Conversation is one client's session with a responder.
type Conversation struct {
	id       string
	adapter  Adapter
	engine   Responder
	counters Counters

	mu     sync.Mutex // serializes inbound handling and guards the fields below
	state  State
	opened bool
}

// New returns a conversation in the Opening state.
func New(id string, adapter Adapter, engine Responder, counters Counters) *Conversation {
	return &Conversation{
		id:       id,
		adapter:  adapter,
		engine:   engine,
		counters: counters,
	}
}

// State returns the current lifecycle state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Normalize case-folds an utterance.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// IsFarewell reports whether a normalized utterance ends the conversation.
func IsFarewell(normalized string) bool {
	return strings.Contains(normalized, farewellKeyword)
}

// Open counts the connection and, for Push conversations, sends the greeting.
func (c *Conversation) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Opening {
		return ErrNotOpening
	}
	c.counters.IncrementConnections()
	c.opened = true
	c.state = Open
	slog.Info("bridge: conversation opened", "session", c.id, "style", c.adapter.Style())

	if c.adapter.Style() == Push {
		if err := c.adapter.Send(Greeting...); err != nil {
			c.abortLocked(err)
			return err
		}
	}
	return nil
}

// Handle processes one inbound utterance. Utterances arriving outside the
// Open state are dropped. A non-nil error means the connection was closed.
func (c *Conversation) Handle(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Open {
		slog.Debug("bridge: dropping message", "session", c.id, "state", c.state)
		return nil
	}

	normalized := Normalize(text)
	if IsFarewell(normalized) {
		if c.adapter.Style() == PubSub {
			return c.deliverLocked(Farewell)
		}
		c.state = Closing
		slog.Info("bridge: conversation ended by client", "session", c.id)
		_ = c.adapter.Close(websocket.CloseNormalClosure, Farewell)
		return nil
	}

	c.counters.IncrementMessages()
	reply, err := c.respond(normalized)
	if err != nil {
		c.abortLocked(err)
		return err
	}
	return c.deliverLocked(reply)
}

// Fail records an unrecoverable transport error: the connection is closed
// with the apology text, best effort, and the conversation ends.
func (c *Conversation) Fail(err error) {
	c.mu.Lock()
	if c.state != Closed {
		c.abortLocked(err)
	}
	c.mu.Unlock()
	c.Closed()
}

// Closed moves the conversation to its terminal state. Only the first call
// releases the connection count.
func (c *Conversation) Closed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return
	}
	c.state = Closed
	if c.opened {
		c.counters.DecrementConnections()
	}
	slog.Info("bridge: conversation closed", "session", c.id)
}

func (c *Conversation) respond(normalized string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEngineFailure, r)
		}
	}()
	return c.engine.Respond(normalized), nil
}

func (c *Conversation) deliverLocked(reply string) error {
	if !c.adapter.IsOpen() {
		return nil
	}
	lines := []string{reply}
	if c.adapter.Style() == Push {
		lines = append(lines, Delimiter)
	}
	if err := c.adapter.Send(lines...); err != nil {
		c.abortLocked(err)
		return err
	}
	return nil
}

// abortLocked closes the connection abnormally. The close itself is best
// effort; the channel is usually already broken.
func (c *Conversation) abortLocked(err error) {
	slog.Error("bridge: conversation failed", "session", c.id, "err", err)
	if c.state == Open || c.state == Opening {
		c.state = Closing
	}
	_ = c.adapter.Close(websocket.CloseInternalServerErr, Apology)
}
