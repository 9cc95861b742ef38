package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/tgcollect/internal/config"
	"github.com/dokzlo13/tgcollect/internal/db"
	"github.com/dokzlo13/tgcollect/internal/eventbus"
	"github.com/dokzlo13/tgcollect/internal/ledger"
	"github.com/dokzlo13/tgcollect/internal/metrics"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB       *db.DB
	Ledger   *ledger.Ledger
	Bus      *eventbus.Bus
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// High-level services
	Collectors *CollectorService
	Health     *HealthService
	Retention  *LedgerService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger
	s.Ledger = ledger.New(database.DB)

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Initialize metrics on a private registry
	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.Metrics = metrics.New(s.Registry)

	s.Collectors = NewCollectorService(cfg, s.Bus, s.Ledger, s.Metrics)
	s.Health = NewHealthService(cfg, s.Registry, s.Collectors)
	s.Retention = NewLedgerService(cfg, s.Ledger)

	return s, nil
}

// Start attaches the configured collectors to the bus.
func (s *Services) Start(ctx context.Context) error {
	return s.Collectors.Start(ctx)
}

// Run runs the background services until ctx is cancelled or one of them fails.
func (s *Services) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Health.Run(ctx) })
	g.Go(func() error { return s.Retention.Run(ctx) })
	return g.Wait()
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
