// Package monitor serves the daemon's health and metrics endpoints and
// follows the ledger outbox to keep the swarm gauges current.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dyluth/brock/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is the part of the ledger client the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer provides HTTP health check and metrics endpoints.
type HealthServer struct {
	addr     string
	client   Pinger
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	server   *http.Server
}

// NewHealthServer creates a server for addr. gatherer backs /metrics and may
// be nil to omit the endpoint.
func NewHealthServer(addr string, client Pinger, gatherer prometheus.Gatherer, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthServer{
		addr:     addr,
		client:   client,
		gatherer: gatherer,
		logger:   logger.With(zap.String("component", "health")),
	}
}

// Handler returns the mux serving /healthz and /metrics.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)
	if h.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start starts the HTTP server in the background.
func (h *HealthServer) Start() error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server error", zap.Error(err))
		}
	}()

	h.logger.Info("health server listening", zap.String("addr", h.addr))
	return nil
}

// Shutdown gracefully shuts down the server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if Redis is accessible, 503 Service Unavailable otherwise.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{Status: "healthy", Redis: "connected"}
	status := http.StatusOK

	if err := h.client.Ping(ctx); err != nil {
		response = HealthResponse{Status: "unhealthy", Redis: "disconnected", Error: err.Error()}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}

var _ Pinger = (*ledger.Client)(nil)
