package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/tgcollect/internal/collector"
	"github.com/dokzlo13/tgcollect/internal/config"
	"github.com/dokzlo13/tgcollect/internal/eventbus"
)

// App is the main application container that manages all services and their lifecycle.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
	runDone  chan error
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start attaches the collectors and starts the background services.
// The provided context is used for cancellation.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx); err != nil {
		a.cancel()
		return err
	}

	a.runDone = make(chan error, 1)
	go func() {
		err := a.services.Run(a.ctx)
		if err != nil {
			// Fatal error - cancels the app context to trigger shutdown
			log.Error().Err(err).Msg("Fatal error, initiating shutdown")
			a.cancel()
		}
		a.runDone <- err
	}()

	log.Info().Msg("tgcollect started")
	return nil
}

// Bus returns the event bus collectors listen on
func (a *App) Bus() *eventbus.Bus {
	return a.services.Bus
}

// Collectors returns the collector service
func (a *App) Collectors() *CollectorService {
	return a.services.Collectors
}

// Drain stops accepting events and waits for queued deliveries to be handled
func (a *App) Drain(ctx context.Context) {
	a.services.Bus.Close(ctx)
}

// Stop ends the remaining collectors with reason "user", waits for their
// sessions to be recorded and shuts down all services.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	a.services.Collectors.StopAll(collector.ReasonUser)

	waitCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout.Duration())
	defer cancel()
	if err := a.services.Collectors.Wait(waitCtx); err != nil {
		log.Warn().Err(err).Msg("Timed out waiting for collector sessions to be recorded")
	}

	if a.cancel != nil {
		a.cancel()
	}

	var runErr error
	if a.runDone != nil {
		runErr = <-a.runDone
	}

	a.services.Close()
	return runErr
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
