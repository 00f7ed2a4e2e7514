package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// closeGrace bounds the close control frame write.
const closeGrace = time.Second

// Conn is the subset of *websocket.Conn a Channel writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Channel serializes text frames to a single connection.
type Channel struct {
	id           string
	conn         Conn
	writeTimeout time.Duration

	mu        sync.Mutex // held for the duration of a frame group
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewChannel wraps conn. A zero writeTimeout leaves write deadlines unset.
func NewChannel(conn Conn, writeTimeout time.Duration) *Channel {
	return &Channel{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// ID returns the channel's unique identifier.
func (c *Channel) ID() string { return c.id }

// IsOpen reports whether the channel can still be written to.
func (c *Channel) IsOpen() bool { return !c.closed.Load() }

// Send writes one text frame.
func (c *Channel) Send(text string) error {
	return c.SendAll(text)
}

// SendAll writes lines as consecutive text frames. No other sender can write
// to this connection until the whole group has been written or has failed.
// A transport failure marks the channel closed.
func (c *Channel) SendAll(lines ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, line := range lines {
		if c.closed.Load() {
			return &SendError{ID: c.id, Err: ErrClosed}
		}
		if c.writeTimeout > 0 {
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.closed.Store(true)
				return &SendError{ID: c.id, Err: err}
			}
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			c.closed.Store(true)
			return &SendError{ID: c.id, Err: err}
		}
	}
	return nil
}

// Ping writes a ping control frame. It does not take the frame lock.
func (c *Channel) Ping() error {
	if c.closed.Load() {
		return &SendError{ID: c.id, Err: ErrClosed}
	}
	deadline := time.Now().Add(closeGrace)
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return &SendError{ID: c.id, Err: err}
	}
	return nil
}

// Close sends a close frame carrying code and reason, then closes the
// transport. Only the first call has any effect. Close does not wait for an
// in-flight frame group; control frames may be written concurrently with data.
func (c *Channel) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = c.conn.Close()
	})
	return err
}

// MarkClosed records that the peer went away without writing anything.
func (c *Channel) MarkClosed() {
	c.closed.Store(true)
}
