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

// Package notify pushes booking-change envelopes to Redis for the rest
// of the back-office. Reporting and the front-desk UI consume the list;
// ingestion only produces. Publishing is best-effort: a Redis outage
// must never fail a message that already reconciled.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher sends booking updates to a Redis list.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting the specified list.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// BookingUpdate is the envelope consumers read off the list. It carries
// just enough to decide whether a refetch of the booking is worth it.
type BookingUpdate struct {
	ID                string    `json:"id"`
	BookingID         int64     `json:"booking_id"`
	Platform          string    `json:"platform"`
	PlatformBookingID string    `json:"platform_booking_id"`
	EventType         string    `json:"event_type"`
	Status            string    `json:"status"`
	MessageID         string    `json:"message_id"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// PublishBookingUpdate serialises an update and pushes it onto the list.
func (p *Publisher) PublishBookingUpdate(ctx context.Context, upd *BookingUpdate) error {
	if upd.ID == "" {
		upd.ID = uuid.New().String()
	}

	body, err := json.Marshal(upd)
	if err != nil {
		return fmt.Errorf("marshal booking update: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(body)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published booking update",
		"update_id", upd.ID,
		"booking_id", upd.BookingID,
		"platform", upd.Platform,
		"event_type", upd.EventType,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
