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

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

const emailColumns = `id, message_id, thread_id, history_id, from_address, to_address,
	       subject, snippet, headers, raw_payload, text_body, html_body,
	       received_at, internal_date, fetched_at, processed_at, processing_error`

// InsertEmail persists a fetched message. A message_id already present is
// left untouched; the existing row id is returned either way, so the raw
// mail is stored exactly once per message.
func (q *queries) InsertEmail(ctx context.Context, e *models.BookingEmail) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO booking_emails
			(message_id, thread_id, history_id, from_address, to_address,
			 subject, snippet, headers, raw_payload, text_body, html_body,
			 received_at, internal_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id
	`, e.MessageID, e.ThreadID, e.HistoryID, e.FromAddress, e.ToAddress,
		e.Subject, e.Snippet, e.Headers, e.RawPayload, e.TextBody, e.HTMLBody,
		nullTime(e.ReceivedAt), nullTime(e.InternalDate)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, lookupErr := q.EmailByMessageID(ctx, e.MessageID)
		if lookupErr != nil {
			return 0, lookupErr
		}
		if existing == nil {
			return 0, fmt.Errorf("insert email %s: conflict but no existing row", e.MessageID)
		}
		return existing.ID, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpsertEmail persists a fetched message, refreshing the stored copy and
// clearing processing state when the message_id already exists. Used by
// forced reprocessing so a re-fetched mail body replaces the stored one.
func (q *queries) UpsertEmail(ctx context.Context, e *models.BookingEmail) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO booking_emails
			(message_id, thread_id, history_id, from_address, to_address,
			 subject, snippet, headers, raw_payload, text_body, html_body,
			 received_at, internal_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (message_id) DO UPDATE SET
			thread_id        = EXCLUDED.thread_id,
			history_id       = EXCLUDED.history_id,
			from_address     = EXCLUDED.from_address,
			to_address       = EXCLUDED.to_address,
			subject          = EXCLUDED.subject,
			snippet          = EXCLUDED.snippet,
			headers          = EXCLUDED.headers,
			raw_payload      = EXCLUDED.raw_payload,
			text_body        = EXCLUDED.text_body,
			html_body        = EXCLUDED.html_body,
			received_at      = EXCLUDED.received_at,
			internal_date    = EXCLUDED.internal_date,
			fetched_at       = NOW(),
			processed_at     = NULL,
			processing_error = ''
		RETURNING id
	`, e.MessageID, e.ThreadID, e.HistoryID, e.FromAddress, e.ToAddress,
		e.Subject, e.Snippet, e.Headers, e.RawPayload, e.TextBody, e.HTMLBody,
		nullTime(e.ReceivedAt), nullTime(e.InternalDate)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// EmailByMessageID retrieves a stored email by mailbox message id.
func (q *queries) EmailByMessageID(ctx context.Context, messageID string) (*models.BookingEmail, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+emailColumns+`
		FROM booking_emails
		WHERE message_id = $1
	`, messageID)
	return scanEmail(row)
}

// MarkEmailProcessed stamps processed_at and records the outcome. An empty
// procErr marks success.
func (q *queries) MarkEmailProcessed(ctx context.Context, emailID int64, procErr string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE booking_emails
		SET processed_at = NOW(), processing_error = $1
		WHERE id = $2
	`, procErr, emailID)
	return err
}

// ListPendingEmails returns stored emails that were never processed and have
// no event rows, oldest first. These are messages the pipeline fetched and
// then crashed on before reaching the parse step.
func (q *queries) ListPendingEmails(ctx context.Context, limit int) ([]models.BookingEmail, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+emailColumns+`
		FROM booking_emails e
		WHERE e.processed_at IS NULL
		  AND NOT EXISTS (SELECT 1 FROM booking_events ev WHERE ev.email_id = e.id)
		ORDER BY e.fetched_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmails(rows)
}

func scanEmail(row pgx.Row) (*models.BookingEmail, error) {
	e, err := scanEmailValues(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEmailValues(row pgx.Row) (*models.BookingEmail, error) {
	var e models.BookingEmail
	var receivedAt, internalDate, processedAt *time.Time
	err := row.Scan(
		&e.ID, &e.MessageID, &e.ThreadID, &e.HistoryID, &e.FromAddress, &e.ToAddress,
		&e.Subject, &e.Snippet, &e.Headers, &e.RawPayload, &e.TextBody, &e.HTMLBody,
		&receivedAt, &internalDate, &e.FetchedAt, &processedAt, &e.ProcessingError,
	)
	if err != nil {
		return nil, err
	}
	e.ReceivedAt = timeOrZero(receivedAt)
	e.InternalDate = timeOrZero(internalDate)
	e.ProcessedAt = timeOrZero(processedAt)
	return &e, nil
}

func collectEmails(rows pgx.Rows) ([]models.BookingEmail, error) {
	var emails []models.BookingEmail
	for rows.Next() {
		e, err := scanEmailValues(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}
