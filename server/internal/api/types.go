package api

// HealthResponse is the JSON body of GET /api/v1/health.
type HealthResponse struct {
	Status            string `json:"status"`
	ActiveConnections int64  `json:"active_connections"`
	Observers         int    `json:"observers"`
	SampleInterval    string `json:"sample_interval"`
}

type errorResponse struct {
	Error string `json:"error"`
}
