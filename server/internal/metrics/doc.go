// Package metrics owns the hub's shared counters and the sampling loop.
//
// Aggregator is created once in main and injected into every connection
// handler. Counters are atomic; activeConnections never drops below zero.
//
// Run(ctx) ticks every interval (first tick one interval after start). Each
// tick computes the message delta since the previous tick, builds a
// types.MetricsSnapshot and pushes it as JSON to every registered observer:
//
//	{"activeConnections": 3, "totalMessages": 120, "messagesPerSecond": 4}
//
// A tick only enqueues the snapshot on each observer's queue (see
// session.Registry), so a stalled observer never delays the others or the
// next tick. Delivery is best-effort per observer. Run does not close
// observers on cancellation; the WebSocket layer does that.
package metrics
