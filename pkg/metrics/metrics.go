// Package metrics exposes namenode counters to Prometheus and serves the HTTP
// health endpoints.
package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NamenodeMetrics tracks namenode activity
type NamenodeMetrics struct {
	// Membership
	LiveDatanodes   prometheus.Gauge
	SafeMode        prometheus.Gauge
	Heartbeats      prometheus.Counter
	HeartbeatErrors prometheus.Counter
	RejectedNodes   prometheus.Counter

	// Namespace
	Files            prometheus.Gauge
	BlocksAssigned   prometheus.Counter
	FailedPlacements prometheus.Counter

	// Requests
	Requests         *prometheus.CounterVec
	RequestLatency   *prometheus.HistogramVec
	PlacementLatency prometheus.Histogram
}

// NewNamenodeMetrics creates and registers the namenode metrics
func NewNamenodeMetrics(registry prometheus.Registerer) *NamenodeMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &NamenodeMetrics{
		LiveDatanodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "namenode_live_datanodes",
			Help: "Number of datanodes that have registered",
		}),
		SafeMode: factory.NewGauge(prometheus.GaugeOpts{
			Name: "namenode_safe_mode",
			Help: "1 while the namenode waits for its first datanode",
		}),
		Heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Name: "namenode_heartbeats_total",
			Help: "Total number of accepted datanode heartbeats",
		}),
		HeartbeatErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "namenode_heartbeat_errors_total",
			Help: "Heartbeat connections that failed to deliver a status record",
		}),
		RejectedNodes: factory.NewCounter(prometheus.CounterOpts{
			Name: "namenode_rejected_heartbeats_total",
			Help: "Heartbeats ignored because the datanode id is out of range",
		}),
		Files: factory.NewGauge(prometheus.GaugeOpts{
			Name: "namenode_files",
			Help: "Number of files in the catalog",
		}),
		BlocksAssigned: factory.NewCounter(prometheus.CounterOpts{
			Name: "namenode_blocks_assigned_total",
			Help: "Total number of blocks placed on datanodes",
		}),
		FailedPlacements: factory.NewCounter(prometheus.CounterOpts{
			Name: "namenode_failed_placements_total",
			Help: "Placement attempts that found no datanode to use",
		}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "namenode_requests_total",
			Help: "Client requests by operation and result",
		}, []string{"op", "result"}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "namenode_request_duration_seconds",
			Help:    "Time from request decode to response written",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		PlacementLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "namenode_placement_duration_seconds",
			Help:    "Block placement latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.SafeMode.Set(1)
	return m
}

// HealthSource is what the health endpoints report on.
type HealthSource interface {
	SafeMode() bool
	LiveDatanodes() int
}

// HealthEndpoint provides HTTP health check endpoints
type HealthEndpoint struct {
	source   HealthSource
	gatherer prometheus.Gatherer
	started  time.Time
	logger   *zap.Logger
}

func NewHealthEndpoint(source HealthSource, gatherer prometheus.Gatherer, logger *zap.Logger) *HealthEndpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HealthEndpoint{
		source:   source,
		gatherer: gatherer,
		started:  time.Now(),
		logger:   logger,
	}
}

// RegisterHandlers registers HTTP handlers
func (he *HealthEndpoint) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/health", he.handleHealth)
	mux.HandleFunc("/health/live", he.handleLiveness)
	mux.HandleFunc("/health/ready", he.handleReadiness)
	mux.Handle("/metrics", promhttp.HandlerFor(he.gatherer, promhttp.HandlerOpts{}))
}

type healthResponse struct {
	Status        string `json:"status"`
	SafeMode      bool   `json:"safe_mode"`
	LiveDatanodes int    `json:"live_datanodes"`
	Uptime        string `json:"uptime"`
	Timestamp     string `json:"timestamp"`
}

func (he *HealthEndpoint) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "serving",
		SafeMode:      he.source.SafeMode(),
		LiveDatanodes: he.source.LiveDatanodes(),
		Uptime:        time.Since(he.started).Round(time.Second).String(),
		Timestamp:     time.Now().Format(time.RFC3339),
	}
	if resp.SafeMode {
		resp.Status = "safe_mode"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		he.logger.Warn("Failed to write health response", zap.Error(err))
	}
}

func (he *HealthEndpoint) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleReadiness reports ready only once the namenode has left safe mode.
func (he *HealthEndpoint) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if he.source.SafeMode() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("SAFE MODE"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}
