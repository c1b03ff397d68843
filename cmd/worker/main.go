package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"schedule-backend/internal/bootstrap"
	"schedule-backend/internal/shared/config"
	"schedule-backend/internal/shared/telemetry"
	"schedule-backend/internal/workerproc"
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

	if cfg.Queue.SQSURL == "" {
		log.Fatal("SCHED_QUEUE_SQS_URL is required")
	}
	// The worker's pool is sized by the queue concurrency.
	cfg.Pool.Size = max(1, cfg.Queue.Concurrency)
	cfg.Pool.ShutdownGrace = cfg.Queue.ShutdownTimeout

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	app.Pool.Start(context.WithoutCancel(ctx))

	consumer := &workerproc.Consumer{
		Receiver:  app.Queue,
		Processor: app.Contributions,
		Pool:      app.Pool,
		BatchSize: int32(min(10, cfg.Pool.Size)),
	}

	telemetry.Info("worker.started", map[string]any{
		"queue":       cfg.Queue.SQSURL,
		"concurrency": cfg.Pool.Size,
		"visibility":  cfg.Queue.VisibilitySeconds,
	})
	if err := consumer.Run(ctx); err != nil {
		telemetry.Error("worker.stopped", map[string]any{"error": err.Error()})
	}

	telemetry.Info("worker.draining", map[string]any{"timeout": cfg.Queue.ShutdownTimeout.String()})
	if err := app.Close(context.Background()); err != nil {
		telemetry.Error("worker.shutdown_incomplete", map[string]any{"error": err.Error()})
	}
}
