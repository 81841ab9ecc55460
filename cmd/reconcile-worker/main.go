// Command reconcile-worker runs the family reconciler as a standalone
// process, sweeping the identity directory on an interval and repairing
// parent-child links that drifted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"famiglia/internal/amqp"
	"famiglia/internal/backend"
	"famiglia/internal/cache"
	"famiglia/internal/config"
	"famiglia/internal/log"
	"famiglia/internal/services"
	"famiglia/internal/session"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	logger.Info("Starting reconcile-worker", log.FieldOperation, log.OpStartup)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(),
			log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err.Error())
			}
		}()
	}

	// AMQP is optional: audit events are skipped when unavailable.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events",
				log.FieldError, err.Error())
			events = nil
		} else {
			defer events.Close()
		}
	}

	// The session manager supplies ReconcileFamily; no user ever logs in
	// inside this process.
	sessions := session.NewManager(result.Identity, events, logger)

	caches := cache.NewManager()
	caches.Register(sessions.AccountCache())
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	reconcilerCfg := services.DefaultFamilyReconcilerConfig()
	reconcilerCfg.Interval = cfg.ReconcileInterval
	reconciler := services.NewFamilyReconciler(result.Identity, sessions, logger, reconcilerCfg)
	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start family reconciler", log.FieldError, err.Error())
		os.Exit(1)
	}

	logger.Info("reconcile-worker ready",
		log.FieldBackend, cfg.DataBackend,
		"interval", cfg.ReconcileInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := reconciler.Stop(stopCtx); err != nil {
		logger.Error("Family reconciler shutdown failed", log.FieldError, err.Error())
	}
}
