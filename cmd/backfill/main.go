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

// omni-lodge — Historical Backfill Command
//
// Standalone CLI that ingests historical booking mail within a date
// range, or replays a single message. Intended for seeding new
// deployments and recovering gaps after an outage.
//
// Usage:
//
//	go run ./cmd/backfill/ --query "from:fareharbor.com" --after 2025-01-01 --before 2025-08-01
//	go run ./cmd/backfill/ --message-id 18c2f4a91b7e3d05 --force
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/config"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/dedup"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/ingest"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/mailbox"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/parsers"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/reconcile"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/store"
)

const dateLayout = "2006-01-02"

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	queryFlag := flag.String("query", "", "Mailbox query (default: the standing query from configuration)")
	afterFlag := flag.String("after", "", "Only messages received on or after this date (YYYY-MM-DD)")
	beforeFlag := flag.String("before", "", "Only messages received before this date (YYYY-MM-DD)")
	batchFlag := flag.Int("batch-size", 0, "List page size (default: configured page size)")
	messageFlag := flag.String("message-id", "", "Replay a single message instead of running a query")
	forceFlag := flag.Bool("force", false, "Reprocess even if the message was already handled")
	flag.Parse()

	after, err := parseDateFlag(*afterFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --after date %q: %v\n", *afterFlag, err)
		os.Exit(1)
	}
	before, err := parseDateFlag(*beforeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --before date %q: %v\n", *beforeFlag, err)
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	query := *queryFlag
	if query == "" {
		query = cfg.Query
	}

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
	defer rdb.Close()

	filter := dedup.NewFilter(rdb, cfg.DedupTTL)
	if err := filter.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// --- Gmail Client ---
	svc, err := mailbox.NewService(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile)
	if err != nil {
		slog.Error("failed to build Gmail service", "error", err)
		os.Exit(1)
	}
	client := mailbox.NewClient(svc, cfg.Gmail.User)

	// --- Pipeline ---
	// No update publisher here: replaying history should not flood the
	// booking-updates feed.
	runner := ingest.NewRunner(ingest.RunnerConfig{
		Mailbox:   client,
		Store:     st,
		Dispatch:  parsers.Default(),
		Engine:    reconcile.NewEngine(st),
		Dedup:     filter,
		PageSize:  cfg.PageSize,
		PageDelay: cfg.PageDelay,
	})

	// --- Single-message replay ---
	if *messageFlag != "" {
		res, err := runner.ProcessMessage(ctx, *messageFlag, *forceFlag)
		if err != nil {
			if errors.Is(err, ingest.ErrNotFound) {
				slog.Error("message not found upstream and not stored", "message_id", *messageFlag)
			} else {
				slog.Error("reprocess failed", "message_id", *messageFlag, "error", err)
			}
			os.Exit(1)
		}
		printSummary(res)
		if res.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	// --- Query Backfill ---
	slog.Info("starting historical backfill",
		"query", query,
		"after", *afterFlag,
		"before", *beforeFlag,
	)

	res, err := runner.Backfill(ctx, ingest.BackfillRequest{
		Query:     query,
		After:     after,
		Before:    before,
		BatchSize: *batchFlag,
	})
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	printSummary(res)
}

// parseDateFlag parses an optional YYYY-MM-DD flag as midnight UTC.
func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// printSummary reports the run outcome, listing each failed message so
// the operator can replay them individually.
func printSummary(res *ingest.Result) {
	slog.Info("backfill complete",
		"fetched", res.Fetched,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"pages", res.Pages,
		"elapsed", res.Elapsed,
	)
	for _, f := range res.Failures {
		slog.Warn("message failed",
			"message_id", f.MessageID,
			"reason", f.Reason,
		)
	}
}
