package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/elizahub/elizahub/pkg/types"
)

// Source is the read side of the metrics aggregator.
type Source interface {
	Latest() types.MetricsSnapshot
	ActiveConnections() int64
	TotalMessages() int64
	Observers() int
	Interval() time.Duration
}

// Handler is the HTTP handler for the REST and Prometheus endpoints.
type Handler struct {
	src Source
	mux *http.ServeMux
}

// New creates a Handler reading from src and registers all routes.
func New(src Source) http.Handler {
	h := &Handler{src: src, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/metrics", h.snapshot)
	h.mux.HandleFunc("/metrics", h.prometheus)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		ActiveConnections: h.src.ActiveConnections(),
		Observers:         h.src.Observers(),
		SampleInterval:    h.src.Interval().String(),
	})
}

// snapshot returns the snapshot computed at the last sampling tick. Before the
// first tick every field is zero.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.src.Latest())
}

// prometheus serves the counters in the Prometheus text format. Connection and
// message totals are read live; the rate comes from the last tick.
func (h *Handler) prometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range h.families() {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("api: encode metric family", "name", mf.GetName(), "err", err)
			return
		}
	}
}

func (h *Handler) families() []*dto.MetricFamily {
	return []*dto.MetricFamily{
		gauge("elizahub_active_connections",
			"Open conversations across both conversation endpoints.",
			float64(h.src.ActiveConnections())),
		counter("elizahub_messages_total",
			"Conversational messages received since start.",
			float64(h.src.TotalMessages())),
		gauge("elizahub_messages_per_second",
			"Message throughput over the last sampling interval.",
			float64(h.src.Latest().MessagesPerSecond)),
		gauge("elizahub_observers",
			"Connected metrics observers.",
			float64(h.src.Observers())),
	}
}

// --- helpers ----------------------------------------------------------------

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
