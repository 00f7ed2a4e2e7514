// Package health exposes the standard gRPC health service
// (grpc.health.v1.Health) so load balancers and orchestrators can probe the
// hub without opening a WebSocket.
//
// Both the empty service name and ServiceName report SERVING while the
// process runs. Shutdown flips them to NOT_SERVING before draining, so
// watchers see the hub leave rotation before connections are refused.
package health
