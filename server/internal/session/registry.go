package session

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// DefaultQueueSize is the per-observer outgoing frame buffer depth.
const DefaultQueueSize = 16

// Close reasons used when the registry drops an observer.
const (
	reasonTooSlow     = "observer too slow"
	reasonWriteFailed = "observer write failed"
)

// member is one registered channel and its outgoing queue. The queue is
// drained by a dedicated writePump goroutine.
type member struct {
	ch      *Channel
	send    chan string
	removed atomic.Bool
}

// Registry tracks the observer channels eligible for metrics broadcasts.
// It is safe for concurrent use.
type Registry struct {
	queueSize int

	mu      sync.RWMutex
	members map[*Channel]*member
}

// NewRegistry returns an empty Registry with DefaultQueueSize queues.
func NewRegistry() *Registry {
	return NewRegistrySize(DefaultQueueSize)
}

// NewRegistrySize returns an empty Registry whose members buffer up to size
// frames each.
func NewRegistrySize(size int) *Registry {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Registry{queueSize: size, members: make(map[*Channel]*member)}
}

// Register adds ch and starts its writer. Closed channels are never admitted.
func (r *Registry) Register(ch *Channel) {
	if ch == nil || !ch.IsOpen() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[ch]; ok {
		return
	}
	m := &member{ch: ch, send: make(chan string, r.queueSize)}
	r.members[ch] = m
	go r.writePump(m)
}

// Unregister removes ch and stops its writer. Frames still queued are
// discarded. Removing a channel that is not a member is a no-op.
func (r *Registry) Unregister(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(ch)
}

func (r *Registry) removeLocked(ch *Channel) bool {
	m, ok := r.members[ch]
	if !ok {
		return false
	}
	m.removed.Store(true)
	close(m.send)
	delete(r.members, ch)
	return true
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast queues text for every open member and returns how many members
// accepted it. It never writes to a connection itself, so a stalled observer
// cannot delay the others or the caller. A closed member is dropped; a member
// whose queue is full is dropped and closed.
func (r *Registry) Broadcast(text string) int {
	var closed, slow []*Channel
	queued := 0

	r.mu.RLock()
	for ch, m := range r.members {
		if !ch.IsOpen() {
			closed = append(closed, ch)
			continue
		}
		select {
		case m.send <- text:
			queued++
		default:
			slow = append(slow, ch)
		}
	}
	r.mu.RUnlock()

	for _, ch := range closed {
		r.Unregister(ch)
	}
	for _, ch := range slow {
		slog.Warn("session: dropping slow observer", "session", ch.ID())
		r.evict(ch, websocket.ClosePolicyViolation, reasonTooSlow)
	}
	return queued
}

// evict removes ch and closes it in the background; the close handshake may
// wait behind a stalled write.
func (r *Registry) evict(ch *Channel, code int, reason string) {
	r.mu.Lock()
	removed := r.removeLocked(ch)
	r.mu.Unlock()
	if removed {
		go func() { _ = ch.Close(code, reason) }()
	}
}

// writePump drains m's queue into its channel, one frame at a time, until
// the member is removed or a write fails.
func (r *Registry) writePump(m *member) {
	for text := range m.send {
		if m.removed.Load() {
			return
		}
		if err := m.ch.Send(text); err != nil {
			slog.Debug("session: observer went away", "session", m.ch.ID(), "err", err)
			r.evict(m.ch, websocket.CloseInternalServerErr, reasonWriteFailed)
			return
		}
	}
}

// CloseAll closes and removes every member.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	targets := make([]*Channel, 0, len(r.members))
	for ch := range r.members {
		targets = append(targets, ch)
		r.removeLocked(ch)
	}
	r.mu.Unlock()

	for _, ch := range targets {
		_ = ch.Close(code, reason)
	}
}
