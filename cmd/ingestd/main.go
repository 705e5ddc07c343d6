// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// omni-lodge — Booking Ingestion Daemon
//
// Entry point for the booking ingestion daemon. It:
//  1. Loads configuration from config.yaml
//  2. Connects to PostgreSQL and Redis
//  3. Builds the Gmail client for the monitored mailbox
//  4. Serves the admin endpoints (health, metrics, manual reprocess)
//  5. Polls the mailbox on an interval and reconciles booking events
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/admin"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/config"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/dedup"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/ingest"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/mailbox"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/notify"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/parsers"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/reconcile"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting omni-lodge booking ingestion")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"query", cfg.Query,
		"interval", cfg.PollInterval,
		"lookback", cfg.PollLookback,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Booking Store ---
	st, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise booking store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	filter := dedup.NewFilter(rdb, cfg.DedupTTL)
	if err := filter.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Gmail Client ---
	svc, err := mailbox.NewService(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile)
	if err != nil {
		slog.Error("failed to build Gmail service", "error", err)
		os.Exit(1)
	}
	client := mailbox.NewClient(svc, cfg.Gmail.User)
	slog.Info("gmail client ready", "user", cfg.Gmail.User)

	// --- Pipeline ---
	engine := reconcile.NewEngine(st)

	runnerCfg := ingest.RunnerConfig{
		Mailbox:   client,
		Store:     st,
		Dispatch:  parsers.Default(),
		Engine:    engine,
		Dedup:     filter,
		PageSize:  cfg.PageSize,
		PageDelay: cfg.PageDelay,
	}
	if cfg.NotifyEnabled {
		publisher := notify.NewPublisher(rdb, cfg.UpdatesQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to reach Redis for notifications", "error", err)
			os.Exit(1)
		}
		runnerCfg.Publisher = publisher
	}
	runner := ingest.NewRunner(runnerCfg)

	scheduler := ingest.NewScheduler(runner, cfg.Query, cfg.PollInterval, cfg.PollLookback)

	// --- Admin server first, so probes and reprocess work during the
	// initial ingestion pass ---
	handler := admin.NewHandler(runner, pgPool, st)
	ready, err := admin.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start admin server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Start polling ---
	scheduler.Start(ctx)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stop all background goroutines

	scheduler.Stop()

	if err := rdb.Close(); err != nil {
		slog.Error("redis close error", "error", err)
	}
	st.Close()

	slog.Info("booking ingestion stopped")
}
