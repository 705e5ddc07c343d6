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

// Package store provides the Postgres persistence layer for bookings, their
// append-only event history, add-on lines and the raw ingested emails.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

// querier is the subset of pgx shared by a pool and a transaction, so the
// same data methods serve both scopes.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStore is the transaction-scoped slice of the store used by the
// reconciliation engine. One event application runs entirely inside one
// transaction obtained through InTx.
type TxStore interface {
	BookingForUpdate(ctx context.Context, platform, platformBookingID string) (*models.Booking, error)
	InsertBooking(ctx context.Context, b *models.Booking) (int64, error)
	UpdateBooking(ctx context.Context, b *models.Booking) error
	InsertEvent(ctx context.Context, ev *models.BookingEvent) (int64, error)
	UpsertAddon(ctx context.Context, a *models.BookingAddon) error
}

// queries implements every data operation against a querier.
type queries struct {
	db querier
}

// Store provides CRUD operations for the ingestion tables in Postgres.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// NewStore creates a store backed by the given Postgres pool. It ensures
// the ingestion tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{queries: queries{db: pool}, pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure booking schema: %w", err)
	}
	slog.Info("booking store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bookings (
			id                     BIGSERIAL PRIMARY KEY,
			platform               TEXT NOT NULL,
			platform_booking_id    TEXT NOT NULL,
			platform_order_id      TEXT DEFAULT '',
			product_name           TEXT DEFAULT '',
			product_code           TEXT DEFAULT '',
			guest_name             TEXT DEFAULT '',
			guest_email            TEXT DEFAULT '',
			guest_phone            TEXT DEFAULT '',
			party_size_total       INTEGER DEFAULT 0,
			party_size_adults      INTEGER DEFAULT 0,
			party_size_children    INTEGER DEFAULT 0,
			experience_date        TIMESTAMPTZ,
			experience_start       TIMESTAMPTZ,
			experience_end         TIMESTAMPTZ,
			base_amount            DOUBLE PRECISION DEFAULT 0,
			addons_amount          DOUBLE PRECISION DEFAULT 0,
			discount_amount        DOUBLE PRECISION DEFAULT 0,
			total_amount           DOUBLE PRECISION DEFAULT 0,
			commission_amount      DOUBLE PRECISION DEFAULT 0,
			currency               TEXT DEFAULT '',
			status                 TEXT NOT NULL DEFAULT 'pending',
			payment_status         TEXT DEFAULT '',
			attendance_status      TEXT DEFAULT 'expected',
			checked_in_at          TIMESTAMPTZ,
			checked_in_count       INTEGER DEFAULT 0,
			notes                  TEXT DEFAULT '',
			last_email_message_id  TEXT DEFAULT '',
			last_event_occurred_at TIMESTAMPTZ,
			status_changed_at      TIMESTAMPTZ,
			created_at             TIMESTAMPTZ DEFAULT NOW(),
			updated_at             TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(platform, platform_booking_id)
		);
		CREATE INDEX IF NOT EXISTS idx_bookings_experience ON bookings(experience_date);
		CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);

		CREATE TABLE IF NOT EXISTS booking_events (
			id               BIGSERIAL PRIMARY KEY,
			booking_id       BIGINT REFERENCES bookings(id),
			email_id         BIGINT,
			event_type       TEXT NOT NULL,
			platform         TEXT DEFAULT '',
			status_after     TEXT DEFAULT '',
			email_message_id TEXT DEFAULT '',
			event_payload    JSONB,
			occurred_at      TIMESTAMPTZ,
			ingested_at      TIMESTAMPTZ DEFAULT NOW(),
			processed_at     TIMESTAMPTZ,
			processing_error TEXT DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_events_booking ON booking_events(booking_id);
		CREATE INDEX IF NOT EXISTS idx_events_email ON booking_events(email_id);
		CREATE INDEX IF NOT EXISTS idx_events_message ON booking_events(email_message_id);

		CREATE TABLE IF NOT EXISTS booking_addons (
			id                BIGSERIAL PRIMARY KEY,
			booking_id        BIGINT NOT NULL REFERENCES bookings(id),
			source_event_id   BIGINT,
			platform_addon_id TEXT DEFAULT '',
			name              TEXT NOT NULL,
			quantity          INTEGER NOT NULL DEFAULT 1,
			unit_price        DOUBLE PRECISION DEFAULT 0,
			total_price       DOUBLE PRECISION DEFAULT 0,
			currency          TEXT DEFAULT '',
			tax_amount        DOUBLE PRECISION DEFAULT 0,
			is_included       BOOLEAN DEFAULT FALSE,
			metadata          JSONB,
			created_at        TIMESTAMPTZ DEFAULT NOW(),
			updated_at        TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_addons_platform_line
			ON booking_addons(booking_id, platform_addon_id) WHERE platform_addon_id <> '';
		CREATE UNIQUE INDEX IF NOT EXISTS idx_addons_named_line
			ON booking_addons(booking_id, name) WHERE platform_addon_id = '';

		CREATE TABLE IF NOT EXISTS booking_emails (
			id               BIGSERIAL PRIMARY KEY,
			message_id       TEXT NOT NULL UNIQUE,
			thread_id        TEXT DEFAULT '',
			history_id       BIGINT DEFAULT 0,
			from_address     TEXT DEFAULT '',
			to_address       TEXT DEFAULT '',
			subject          TEXT DEFAULT '',
			snippet          TEXT DEFAULT '',
			headers          JSONB,
			raw_payload      BYTEA,
			text_body        TEXT DEFAULT '',
			html_body        TEXT DEFAULT '',
			received_at      TIMESTAMPTZ,
			internal_date    TIMESTAMPTZ,
			fetched_at       TIMESTAMPTZ DEFAULT NOW(),
			processed_at     TIMESTAMPTZ,
			processing_error TEXT DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_emails_internal ON booking_emails(internal_date);
		CREATE INDEX IF NOT EXISTS idx_emails_pending ON booking_emails(fetched_at) WHERE processed_at IS NULL;
	`)
	return err
}

// InTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// nullTime maps the zero time to NULL on write.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// nullID maps id zero to NULL on write.
func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func idOrZero(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
