// Package config loads the server configuration from the `server:` section
// of config.yaml.
//
// Config fields:
//   - HTTPPort                  WebSocket endpoints and REST API (default 8080)
//   - GRPCPort                  gRPC health service; 0 disables it (default 50051)
//   - LogLevel                  debug | info | warn | error (default info)
//   - Metrics.SampleInterval    snapshot cadence for observers (default 1s)
//   - WebSocket.WriteTimeout    deadline for one frame write (default 10s)
//   - WebSocket.MaxMessageSize  inbound frame limit in bytes (default 4096)
//   - WebSocket.AllowedOrigins  accepted Origin values; empty allows all
//   - Broker.RequestTopic       destination routed to the responder (default /app/chat)
//   - Broker.ReplyTopic         topic replies are published to (default /topic/replies)
//   - Eliza.Script              optional YAML script; empty uses the built-in one
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on change and delivers only
// LogLevel changes; edits to other fields are logged as needing a restart.
package config
