// Package main wires together the verification service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prm-gestao/projudi-verifier/internal/api"
	"github.com/prm-gestao/projudi-verifier/internal/clock/system"
	"github.com/prm-gestao/projudi-verifier/internal/config"
	"github.com/prm-gestao/projudi-verifier/internal/id/uuid"
	"github.com/prm-gestao/projudi-verifier/internal/logging"
	"github.com/prm-gestao/projudi-verifier/internal/metrics"
	"github.com/prm-gestao/projudi-verifier/internal/portal"
	"github.com/prm-gestao/projudi-verifier/internal/storage"
	"github.com/prm-gestao/projudi-verifier/internal/storage/postgres"
	"github.com/prm-gestao/projudi-verifier/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	mode := flag.String("mode", "all", "What to run: serve, work or all")
	flag.Parse()

	if *mode != "serve" && *mode != "work" && *mode != "all" {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		logger.Fatal("schema init failed", zap.Error(err))
	}

	snapshots, err := storage.NewSnapshotStore(ctx, cfg.Snapshots)
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}

	clock := system.New()
	idGen := uuid.New()

	if *mode != "serve" {
		sessions := portal.NewFactory(cfg.Portal, snapshots, logger.Named("portal"))
		w := worker.New(store, store, store, store, sessions, clock, worker.Config{
			PollInterval:      cfg.Worker.PollInterval,
			HeartbeatInterval: cfg.Worker.HeartbeatInterval,
			StallThreshold:    cfg.Worker.StallThreshold,
			EnvCredential:     cfg.Worker.Credential,
			EnvPassword:       cfg.Worker.Password,
			WorkerID:          cfg.Worker.WorkerID,
		}, logger.Named("worker"))
		go func() {
			logger.Info("worker started")
			w.Run(ctx)
		}()
	}

	if *mode == "work" {
		<-ctx.Done()
		logger.Info("shutdown complete")
		return
	}

	apiServer := api.NewServer(store, store, store, store, store,
		idGen, clock, cfg, logger.Named("api"), store.Ping)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
