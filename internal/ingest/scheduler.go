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

package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// IncrementalRunner is what the scheduler drives on each tick.
// Implemented by Runner.
type IncrementalRunner interface {
	Run(ctx context.Context, query string, lookback time.Duration) (*Result, error)
}

// Scheduler runs the incremental ingestion pass at a fixed interval.
// Overlap with a manual backfill is tolerated; the storage uniqueness
// constraints keep double processing harmless.
type Scheduler struct {
	runner   IncrementalRunner
	query    string
	lookback time.Duration
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for the standing query.
func NewScheduler(runner IncrementalRunner, query string, interval, lookback time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		query:    query,
		lookback: lookback,
		interval: interval,
	}
}

// Start launches the periodic loop: one immediate pass, then one per
// tick. A loop that is already running is stopped and waited for first,
// so at most one is ever live.
func (s *Scheduler) Start(ctx context.Context) {
	s.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.runOnce(loopCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.runOnce(loopCtx)
			}
		}
	}()

	slog.Info("ingestion scheduler started",
		"interval", s.interval,
		"lookback", s.lookback,
	)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.runner.Run(ctx, s.query, s.lookback); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("scheduled ingestion run failed", "error", err)
	}
}

// Stop shuts down the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
