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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

// InsertEvent appends one audit row to the booking event history and
// returns its id. BookingID and EmailID of zero are stored as NULL: a
// failure row has no booking, a manually injected event has no email.
func (q *queries) InsertEvent(ctx context.Context, ev *models.BookingEvent) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO booking_events
			(booking_id, email_id, event_type, platform, status_after,
			 email_message_id, event_payload, occurred_at, processed_at,
			 processing_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, nullID(ev.BookingID), nullID(ev.EmailID), ev.EventType, ev.Platform,
		ev.StatusAfter, ev.EmailMessageID, nullPayload(ev.EventPayload),
		nullTime(ev.OccurredAt), nullTime(ev.ProcessedAt), ev.ProcessingError).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// EventsForBooking returns the audit trail of a booking, oldest first.
func (q *queries) EventsForBooking(ctx context.Context, bookingID int64) ([]models.BookingEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, booking_id, email_id, event_type, platform, status_after,
		       email_message_id, event_payload, occurred_at, ingested_at,
		       processed_at, processing_error
		FROM booking_events
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsForMessage returns all audit rows written for one mailbox message.
func (q *queries) EventsForMessage(ctx context.Context, messageID string) ([]models.BookingEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, booking_id, email_id, event_type, platform, status_after,
		       email_message_id, event_payload, occurred_at, ingested_at,
		       processed_at, processing_error
		FROM booking_events
		WHERE email_message_id = $1
		ORDER BY id
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]models.BookingEvent, error) {
	var events []models.BookingEvent
	for rows.Next() {
		var ev models.BookingEvent
		var bookingID, emailID *int64
		var occurredAt, processedAt *time.Time
		if err := rows.Scan(
			&ev.ID, &bookingID, &emailID, &ev.EventType, &ev.Platform,
			&ev.StatusAfter, &ev.EmailMessageID, &ev.EventPayload,
			&occurredAt, &ev.IngestedAt, &processedAt, &ev.ProcessingError,
		); err != nil {
			return nil, err
		}
		ev.BookingID = idOrZero(bookingID)
		ev.EmailID = idOrZero(emailID)
		ev.OccurredAt = timeOrZero(occurredAt)
		ev.ProcessedAt = timeOrZero(processedAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// nullPayload maps an empty payload to NULL so the JSONB column never sees
// a zero-length document.
func nullPayload(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	return p
}
