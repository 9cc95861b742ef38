package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/tgcollect/internal/config"
)

// HealthService serves health, readiness, collector status and metrics over HTTP.
type HealthService struct {
	cfg        *config.Config
	gatherer   prometheus.Gatherer
	collectors *CollectorService
	server     *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, gatherer prometheus.Gatherer, collectors *CollectorService) *HealthService {
	return &HealthService{
		cfg:        cfg,
		gatherer:   gatherer,
		collectors: collectors,
	}
}

// Handler returns the HTTP routes
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Ready once all configured collectors are attached
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.collectors.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.HandleFunc("/collectors", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.collectors.Status())
	})

	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux
}

// Run serves until ctx is cancelled. It returns nil when disabled.
func (s *HealthService) Run(ctx context.Context) error {
	if !s.cfg.HTTP.Enabled {
		return nil
	}

	addr := s.cfg.HTTP.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
