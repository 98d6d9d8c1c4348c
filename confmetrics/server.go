// Package confmetrics serves Prometheus metrics on their own HTTP listener,
// the way httpserver.Server runs a dedicated metrics server alongside the
// API server (metrics.New(packageName, cfg.MetricsAddr)).
package confmetrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a standalone HTTP server exposing /metrics for its own
// Prometheus registry, which holds the Go and process collectors. The
// namespace argument of New is not used.
type Server struct {
	srv *http.Server
}

// New builds a Server bound to addr. If addr is empty the caller should
// simply not start it; New still succeeds so callers can construct metrics
// unconditionally.
func New(namespace string, addr string) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{Addr: addr, Handler: mux},
	}, nil
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// SessionMetrics are the counters and histograms the session package
// reports against, registered on the default Prometheus registry. A
// dedicated Server serves its own registry, so it does not expose them.
type SessionMetrics struct {
	KeyRequestsTotal   *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	KeyRolloversTotal  prometheus.Counter
	RequestDuration    prometheus.Histogram
}

// NewSessionMetrics registers the session-layer metrics under namespace.
func NewSessionMetrics(namespace string) *SessionMetrics {
	return &SessionMetrics{
		KeyRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_requests_total",
			Help:      "Number of KeyRequest/KeyResponse handshakes handled, by outcome.",
		}, []string{"outcome"}),
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Number of channel messages (KeyRequests and sealed Requests) handled, by outcome.",
		}, []string{"outcome"}),
		KeyRolloversTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rollovers_total",
			Help:      "Number of times the active key provider rotated current/previous.",
		}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of successfully handling a single channel message (KeyRequest or sealed Request) end to end.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
