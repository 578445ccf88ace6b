package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfscan/internal/config"
	http_controllers "github.com/mrlokans/shelfscan/internal/http"
	"github.com/mrlokans/shelfscan/internal/scheduler"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the companion API until ctx is cancelled, then shuts it down
// within the configured timeout.
func Serve(ctx context.Context, router *gin.Engine, cfg *config.Config, logger *slog.Logger, onShutdown ShutdownFunc) error {
	srv := &http.Server{
		Addr:    cfg.HTTP.Address(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting companion API", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout()
	logger.Info("shutting down server", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if onShutdown != nil {
		onShutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server exiting")
	return nil
}

// Run starts the long-running service: the companion API plus the periodic
// resync. It returns after SIGINT or SIGTERM.
func Run(cfg *config.Config, version string, logger *slog.Logger) error {
	logger.Info("starting shelfscan", "version", version, "backend", cfg.Backend.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		logger.Warn("collection not loaded", "error", err)
	}

	var resync *scheduler.ResyncScheduler
	if cfg.Sync.ResyncEnabled {
		resync = scheduler.NewResyncScheduler(app.Library, cfg.Sync.ResyncSchedule, logger.With("component", "scheduler"))
		if err := resync.Start(ctx); err != nil {
			return fmt.Errorf("failed to start resync scheduler: %w", err)
		}
	} else {
		logger.Info("periodic resync disabled")
	}

	routerCfg := http_controllers.RouterConfig{
		Service:  app.Library,
		Database: app.DB,
		Version:  version,
		Logger:   logger.With("component", "http"),
	}
	if resync != nil {
		routerCfg.Sync = resync
	}
	if app.Covers != nil {
		routerCfg.Covers = app.Covers
	}
	gin.SetMode(gin.ReleaseMode)
	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(context.Context) {
		if resync != nil {
			resync.Stop()
		}
	}

	return Serve(ctx, router, cfg, logger, onShutdown)
}
