// Command almazara serves the mill traceability API.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"almazara/internal/adapters/exports"
	"almazara/internal/archive/mongodb"
	"almazara/internal/blob"
	"almazara/internal/config"
	"almazara/internal/core"
	"almazara/internal/scheduler"
	"almazara/internal/server/handlers"
	"almazara/internal/server/router"
	"almazara/pkg/clients/webhook"
	"almazara/pkg/logger"
)

func main() {
	envFile := flag.String("env", "", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		baseLogger.Fatal("failed to register metrics", zap.Error(err))
	}

	store, err := core.OpenPersistentStore(cfg.StorageOptions(), core.NewDefaultRulesEngine())
	if err != nil {
		baseLogger.Fatal("failed to open snapshot store", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				baseLogger.Error("failed to close snapshot store", zap.Error(err))
			}
		}()
	}

	svcLogger := core.NewZapLogger(logger.Named(baseLogger, "svc.mill"))
	svc := core.NewService(store,
		core.WithLogger(svcLogger),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.NewLogAuditRecorder(core.NewZapLogger(logger.Named(baseLogger, "audit")))),
	)

	blobs, err := blob.Open(context.Background(), cfg.Blob)
	if err != nil {
		baseLogger.Fatal("failed to open blob store", zap.Error(err))
	}

	exportLogger := core.NewZapLogger(logger.Named(baseLogger, "exports"))
	workerOpts := []exports.Option{
		exports.WithLogger(exportLogger),
		exports.WithQueueSize(cfg.Exports.QueueSize),
	}
	if cfg.MongoDB.URI != "" {
		archive, err := mongodb.New(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb archive", zap.Error(err))
		}
		defer func() {
			if err := archive.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		workerOpts = append(workerOpts, exports.WithArchiver(archive))
		baseLogger.Info("export archive enabled", zap.String("db", cfg.MongoDB.DBName))
	} else {
		baseLogger.Warn("mongodb uri missing, export archive disabled")
	}
	if cfg.Webhook.URL != "" {
		client := webhook.NewClient(webhook.Config{URL: cfg.Webhook.URL, Token: cfg.Webhook.Token, Retries: 2})
		workerOpts = append(workerOpts, exports.WithNotifier(exports.WebhookNotifier{Sender: client}))
		baseLogger.Info("export webhook enabled")
	}
	worker := exports.NewWorker(svc, blobs, exports.LogAuditLog{Logger: exportLogger}, workerOpts...)
	worker.Start()

	sched := scheduler.NewScheduler(cfg.Backup.CronSchedule, svc, blobs, logger.Named(baseLogger, "scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	engine := router.New(router.Handlers{
		Trace:     handlers.NewTraceHandler(svc, logger.Named(baseLogger, "handlers.trace")),
		Workflows: handlers.NewWorkflowHandler(svc, logger.Named(baseLogger, "handlers.workflows")),
		Exports:   handlers.NewExportHandler(worker, logger.Named(baseLogger, "handlers.exports")),
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, logger.Named(baseLogger, "router"))

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("blob", string(blobs.Driver())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		baseLogger.Error("export worker did not stop", zap.Error(err))
	}
}
