package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceMetrics contains general process health metrics plus the
// bancho-domain gauges/counters: sessions, channels, matches and packet
// throughput.
type ServiceMetrics struct {
	BuildInfo *prometheus.GaugeVec
	StartTime prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SessionsActive   *prometheus.GaugeVec
	ChannelsActive   prometheus.Gauge
	MatchesActive    prometheus.Gauge
	LoginsTotal      *prometheus.CounterVec
	PacketsDecoded   *prometheus.CounterVec
	PacketsEncoded   *prometheus.CounterVec
	SpectatorsActive prometheus.Gauge
}

// NewServiceMetrics creates and registers all service metrics under namespace.
func NewServiceMetrics(namespace string) *ServiceMetrics {
	return &ServiceMetrics{
		BuildInfo: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		}, []string{"version", "commit", "build_time"}),
		StartTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Unix timestamp of service start time",
		}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		SessionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of authenticated sessions, by transport",
		}, []string{"transport"}),
		ChannelsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "channels_active",
			Help:      "Number of channels currently registered",
		}),
		MatchesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "multiplayer",
			Name:      "matches_active",
			Help:      "Number of multiplayer rooms currently open",
		}),
		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Total login attempts, by outcome",
		}, []string{"outcome"}),
		PacketsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "packets_decoded_total",
			Help:      "Total inbound packets decoded, by transport",
		}, []string{"transport"}),
		PacketsEncoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "packets_encoded_total",
			Help:      "Total outbound packets encoded, by transport",
		}, []string{"transport"}),
		SpectatorsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "spectate",
			Name:      "spectators_active",
			Help:      "Number of active spectator relationships",
		}),
	}
}

// Registry bundles the process metrics with an HTTP exposition server.
type Registry struct {
	serviceName    string
	serviceVersion string
	buildTime      string
	gitCommit      string
	logger         *slog.Logger

	Service *ServiceMetrics

	server *http.Server
}

// NewRegistry creates a new metrics registry for the bancho service.
func NewRegistry(serviceName, version, buildTime, gitCommit string, logger *slog.Logger) *Registry {
	reg := &Registry{
		serviceName:    serviceName,
		serviceVersion: version,
		buildTime:      buildTime,
		gitCommit:      gitCommit,
		logger:         logger,
		Service:        NewServiceMetrics("bancho"),
	}

	reg.Service.BuildInfo.WithLabelValues(version, gitCommit, buildTime).Set(1)
	reg.Service.StartTime.SetToCurrentTime()

	return reg
}

// StartMetricsServer starts the HTTP server exposing /metrics and /health.
func (r *Registry) StartMetricsServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"` + r.serviceName + `"}`))
	})

	r.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	r.logger.Info("starting metrics server", "addr", addr)
	return r.server.ListenAndServe()
}

// StopMetricsServer stops the metrics HTTP server.
func (r *Registry) StopMetricsServer(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info("stopping metrics server")
	return r.server.Shutdown(ctx)
}

// HTTPMiddleware returns HTTP middleware that instruments requests.
func (r *Registry) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, req)

			duration := time.Since(start)
			status := strconv.Itoa(wrapped.statusCode)

			r.Service.HTTPRequestsTotal.WithLabelValues(req.Method, req.URL.Path, status).Inc()
			r.Service.HTTPRequestDuration.WithLabelValues(req.Method, req.URL.Path).Observe(duration.Seconds())

			r.logger.Debug("http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", duration.Milliseconds(),
				"remote_addr", req.RemoteAddr,
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
