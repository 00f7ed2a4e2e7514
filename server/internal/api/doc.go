// Package api implements the HTTP REST API for elizahub-server.
//
// New(src) returns an http.Handler that serves:
//
//	GET /api/v1/health   status, active conversations, observer count
//	GET /api/v1/metrics  latest metrics snapshot (same shape as the broadcast)
//	GET /metrics         Prometheus text exposition of the counters
//
// All endpoints return 405 for non-GET methods. The JSON endpoints respond
// with Content-Type: application/json.
package api
