// Package session holds the per-connection write path and the observer set.
//
// Channel wraps one upgraded WebSocket connection and guarantees that at most
// one text frame is in flight to it at a time. SendAll writes a group of
// frames under a single lock acquisition so the group reaches the peer as a
// contiguous, ordered run. The lock is per connection; unrelated connections
// never wait on each other.
//
// Registry is the set of observer channels that receive metrics broadcasts.
// Each member gets a bounded queue drained by its own writer goroutine.
// Broadcast only enqueues, so one stalled observer never delays the others
// or the caller; an observer whose queue overflows or whose write fails is
// dropped and closed.
package session
