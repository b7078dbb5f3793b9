// Package server assembles and runs the HTTP server. Shared by cmd/server and
// p4pctl serve.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fieldcrew/p4p-engine/api"
	"github.com/fieldcrew/p4p-engine/config"
	"github.com/fieldcrew/p4p-engine/logging"
	"github.com/fieldcrew/p4p-engine/observability"
	"github.com/fieldcrew/p4p-engine/p4p"
	"github.com/fieldcrew/p4p-engine/store"
)

// App is the wired application, ready to serve.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   p4p.Store
	Service *p4p.Service
	Handler *api.Handler
	Metrics *observability.Metrics
	HTTP    *http.Server
}

// New opens the store and wires every component. Close releases the store.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.Store.Driver, err)
	}

	metrics := observability.NewMetrics()
	svc := p4p.NewService(st, cfg.WageFloor(),
		p4p.WithLogger(logger.Named("p4p")),
		p4p.WithRecorder(metrics),
		p4p.WithConcurrency(cfg.Recalc.Concurrency))

	h := api.NewHandler(st, svc, logger)
	h.Recalc.Interval = cfg.Recalc.Interval
	h.Recalc.Enabled = cfg.Recalc.Enabled

	router := api.NewRouter(h, api.RouterOptions{
		Logger:         logger.Named("http"),
		Metrics:        metrics,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   st,
		Service: svc,
		Handler: h,
		Metrics: metrics,
		HTTP: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Serve runs until ctx is cancelled, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	a.Handler.Recalc.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server starting",
			zap.String("addr", a.HTTP.Addr),
			zap.String("store", a.Config.Store.Driver),
			zap.String("floor_source", string(a.Config.Floor.Source)))
		if err := a.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.Handler.Recalc.Stop()
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down server")
	a.Handler.Recalc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.Logger.Info("server stopped")
	return nil
}

func (a *App) Close() error {
	_ = a.Logger.Sync()
	return a.Store.Close()
}

// Run wires the app and serves until SIGINT or SIGTERM.
func Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Serve(ctx)
}
