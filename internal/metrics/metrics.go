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

// Package metrics registers the Prometheus instruments for the ingestion
// daemon. Everything is registered once via promauto at init and served
// by the admin mux under /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed counts pipeline outcomes per message.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omnilodge_messages_processed_total",
			Help: "Mailbox messages handled by the ingestion pipeline",
		},
		[]string{"result"}, // result: processed, skipped, failed
	)

	// ParsedEvents counts parses per parser name and event type.
	ParsedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omnilodge_parsed_events_total",
			Help: "Booking events produced by each parser",
		},
		[]string{"parser", "event_type"},
	)

	// ReconcileDuration tracks how long applying one event takes.
	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "omnilodge_reconcile_duration_seconds",
			Help:    "Time to reconcile one booking event into the database",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"platform"},
	)

	// StaleEventsSkipped counts events dropped for arriving out of order.
	StaleEventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omnilodge_stale_events_skipped_total",
			Help: "Events audited but not applied because a newer one already was",
		},
		[]string{"platform"},
	)
)

// IncMessageProcessed increments the outcome counter for one message.
func IncMessageProcessed(result string) {
	MessagesProcessed.WithLabelValues(result).Inc()
}

// IncParsedEvent increments the per-parser event counter.
func IncParsedEvent(parser, eventType string) {
	ParsedEvents.WithLabelValues(parser, eventType).Inc()
}

// ObserveReconcile records the duration of one reconciliation.
func ObserveReconcile(platform string, duration time.Duration) {
	ReconcileDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// IncStaleSkip increments the out-of-order skip counter.
func IncStaleSkip(platform string) {
	StaleEventsSkipped.WithLabelValues(platform).Inc()
}
