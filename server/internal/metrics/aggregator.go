package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elizahub/elizahub/pkg/types"
	"github.com/elizahub/elizahub/server/internal/session"
)

// DefaultInterval is the reference sampling period.
const DefaultInterval = time.Second

// Aggregator holds the process-wide counters and broadcasts snapshots to the
// observer registry. It is safe for concurrent use.
type Aggregator struct {
	interval  time.Duration
	observers *session.Registry

	active atomic.Int64
	total  atomic.Int64

	sampleMu        sync.Mutex
	lastSampleTotal int64 // guarded by sampleMu
	latest          atomic.Pointer[types.MetricsSnapshot]
}

// New returns an Aggregator that samples every interval and broadcasts to
// observers. A non-positive interval falls back to DefaultInterval.
func New(interval time.Duration, observers *session.Registry) *Aggregator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	a := &Aggregator{interval: interval, observers: observers}
	a.latest.Store(&types.MetricsSnapshot{})
	return a
}

// IncrementConnections records a conversational connection opening.
func (a *Aggregator) IncrementConnections() {
	a.active.Add(1)
}

// DecrementConnections records a conversational connection closing.
// The counter never goes below zero; an unmatched call is logged and ignored.
func (a *Aggregator) DecrementConnections() {
	for {
		cur := a.active.Load()
		if cur <= 0 {
			slog.Warn("metrics: unmatched connection decrement ignored")
			return
		}
		if a.active.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// IncrementMessages records one processed inbound conversational message.
func (a *Aggregator) IncrementMessages() {
	a.total.Add(1)
}

// ActiveConnections returns the current number of open conversations.
func (a *Aggregator) ActiveConnections() int64 { return a.active.Load() }

// TotalMessages returns the number of messages processed since start.
func (a *Aggregator) TotalMessages() int64 { return a.total.Load() }

// Observers returns the number of registered observer connections.
func (a *Aggregator) Observers() int { return a.observers.Len() }

// Interval returns the sampling period.
func (a *Aggregator) Interval() time.Duration { return a.interval }

// Latest returns the snapshot computed by the most recent Sample.
func (a *Aggregator) Latest() types.MetricsSnapshot {
	return *a.latest.Load()
}

// Sample closes the current throughput window and returns its snapshot.
// Every message falls into exactly one window: the total is read once and
// becomes the baseline for the next window.
func (a *Aggregator) Sample() types.MetricsSnapshot {
	a.sampleMu.Lock()
	defer a.sampleMu.Unlock()

	total := a.total.Load()
	delta := total - a.lastSampleTotal
	a.lastSampleTotal = total

	snap := types.MetricsSnapshot{
		ActiveConnections: a.active.Load(),
		TotalMessages:     total,
		MessagesPerSecond: perSecond(delta, a.interval),
	}
	a.latest.Store(&snap)
	return snap
}

// Run starts the sampling loop. It blocks until ctx is cancelled. Observers
// stay registered; closing them is up to the transport that owns them.
func (a *Aggregator) Run(ctx context.Context) {
	t := time.NewTicker(a.interval)
	defer t.Stop()

	slog.Info("metrics: sampling loop started", "interval", a.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("metrics: sampling loop stopped")
			return
		case <-t.C:
			a.tick()
		}
	}
}

// tick samples and broadcasts once. A panic inside one tick is logged and
// does not end the loop.
func (a *Aggregator) tick() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("metrics: tick panicked", "panic", r)
		}
	}()

	snap := a.Sample()
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("metrics: marshal snapshot", "err", err)
		return
	}

	queued := a.observers.Broadcast(string(data))
	slog.Debug("metrics: snapshot broadcast",
		"active_connections", snap.ActiveConnections,
		"total_messages", snap.TotalMessages,
		"messages_per_second", snap.MessagesPerSecond,
		"observers", queued,
	)
}

// perSecond scales a per-interval delta to a per-second rate.
func perSecond(delta int64, interval time.Duration) int64 {
	if interval == time.Second {
		return delta
	}
	if ms := interval.Milliseconds(); ms > 0 {
		return delta * 1000 / ms
	}
	return delta * int64(time.Second) / int64(interval)
}
