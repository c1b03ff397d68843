package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"schedule-backend/internal/bootstrap"
	"schedule-backend/internal/shared/config"
	"schedule-backend/internal/shared/server"
	"schedule-backend/internal/shared/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := telemetry.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer telemetry.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		telemetry.Error("api.exit", map[string]any{"error": err.Error()})
		telemetry.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}

	// The pool outlives ctx so shutdown can drain queued contributions.
	app.Pool.Start(context.WithoutCancel(ctx))

	srv := &http.Server{
		Addr:              server.Addr(cfg.Server.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		telemetry.Info("api.listening", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		telemetry.Info("api.shutdown", map[string]any{"timeout": cfg.Server.ShutdownTimeout.String()})

		httpCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		httpErr := srv.Shutdown(httpCtx)

		closeErr := app.Close(context.Background())
		return errors.Join(httpErr, closeErr)
	})
	return g.Wait()
}
