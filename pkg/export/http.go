package export

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/poolsight/poolsight/pkg/pperrors"
	"github.com/poolsight/poolsight/pkg/tracker"
)

// ReadAPI is the tracker read surface the HTTP server publishes. The
// Tracker satisfies it.
type ReadAPI interface {
	Snapshotter
	TrackedTypes() []string
	RecentActivity(typeName string, n int) []tracker.ActivityRecord
	AllActivity(typeName string) []tracker.ActivityRecord
}

// Server hosts the pull-based export surface: prometheus metrics on
// /metrics and JSON snapshots on /debug/pools and /debug/activity.
type Server struct {
	addr   string
	logger *zap.Logger
	api    ReadAPI
	srv    *http.Server
}

// NewServer wires a registry with the poolsight collector plus the
// standard process/go collectors and builds the HTTP server. ListenAndServe
// is deferred to Start.
func NewServer(addr, namespace string, api ReadAPI, logger *zap.Logger) (*Server, error) {
	if addr == "" {
		return nil, pperrors.New(pperrors.ErrorTypeConfig, "listen address cannot be empty")
	}
	if api == nil {
		return nil, pperrors.New(pperrors.ErrorTypeValidation, "read API cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	collector, err := NewCollector(namespace, api)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{addr: addr, logger: logger, api: api}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pools", s.handlePools)
	mux.HandleFunc("/debug/activity", s.handleActivity)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Start serves until the listener fails or Shutdown is called.
// http.ErrServerClosed is swallowed as the normal shutdown outcome.
func (s *Server) Start() error {
	s.logger.Info("export server listening", zap.String("addr", s.addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return pperrors.Wrap(err, pperrors.ErrorTypeExport, "export server failed").
			WithDetail("addr", s.addr)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("export server shutting down")
	return s.srv.Shutdown(ctx)
}

// pooledView augments the raw pooled snapshot with its derived fields for
// JSON consumers, computed at encode time like every other read path.
type pooledView struct {
	tracker.PooledSnapshot
	InPool        int64          `json:"in_pool"`
	ActiveRentals int64          `json:"active_rentals"`
	Utilization   float64        `json:"utilization"`
	ReuseRatio    float64        `json:"reuse_ratio"`
	ReturnRate    float64        `json:"return_rate"`
	AvgRental     time.Duration  `json:"avg_rental_duration"`
	Health        tracker.Health `json:"health"`
}

type standardView struct {
	tracker.StandardSnapshot
	PotentialLeaks int64         `json:"potential_leaks"`
	AvgLifetime    time.Duration `json:"avg_lifetime"`
}

type poolsResponse struct {
	Pooled   map[string]pooledView   `json:"pooled"`
	Standard map[string]standardView `json:"standard"`
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	set := s.api.Snapshots()

	resp := poolsResponse{
		Pooled:   make(map[string]pooledView, len(set.Pooled)),
		Standard: make(map[string]standardView, len(set.Standard)),
	}
	for name, snap := range set.Pooled {
		resp.Pooled[name] = pooledView{
			PooledSnapshot: snap,
			InPool:         snap.InPool(),
			ActiveRentals:  snap.ActiveRentals(),
			Utilization:    snap.Utilization(),
			ReuseRatio:     snap.ReuseRatio(),
			ReturnRate:     snap.ReturnRate(),
			AvgRental:      snap.RentalDuration.Avg(),
			Health:         snap.Health(),
		}
	}
	for name, snap := range set.Standard {
		resp.Standard[name] = standardView{
			StandardSnapshot: snap,
			PotentialLeaks:   snap.PotentialLeaks(),
			AvgLifetime:      snap.Lifetime.Avg(),
		}
	}

	s.writeJSON(w, resp)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	typeName := r.URL.Query().Get("type")
	if typeName == "" {
		http.Error(w, "missing type parameter", http.StatusBadRequest)
		return
	}

	var records []tracker.ActivityRecord
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid n parameter", http.StatusBadRequest)
			return
		}
		records = s.api.RecentActivity(typeName, n)
	} else {
		records = s.api.AllActivity(typeName)
	}

	s.writeJSON(w, map[string]interface{}{
		"type":    typeName,
		"records": records,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
