// Package ws implements the WebSocket endpoints of elizahub-server.
//
// Hub serves three endpoints on one HTTP mux:
//
//	/eliza           direct-push conversation: greeting triple on connect,
//	                 reply + "---" per text frame, "bye" closes with 1000
//	/eliza-broker    broker-topic conversation over JSON frames (see
//	                 types.BrokerFrame): a send to the request topic yields
//	                 exactly one reply on the reply topic
//	/metrics-stream  observer: receives a metrics snapshot every sampling
//	                 tick; inbound frames are ignored
//
// Each connection is wrapped in a session.Channel so every writer (replies,
// broker forwarders, the observer writer) goes through one per-connection lock.
// Inbound frames are read and handled by one goroutine per connection.
//
// The upgrader accepts all origins unless AllowedOrigins is set. Apply CORS
// restrictions at the reverse proxy level otherwise.
package ws
