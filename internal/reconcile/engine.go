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

// Package reconcile applies parsed booking events to the booking aggregate.
// Each event is applied in its own transaction: resolve the booking row by
// its platform key, create or patch it, append the audit row, and upsert
// any add-on lines. Events are the only writers of booking state.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/store"
)

// Store is the transactional persistence the engine runs against.
type Store interface {
	InTx(ctx context.Context, fn func(tx store.TxStore) error) error
}

// Result reports what applying one event did.
type Result struct {
	BookingID   int64
	EventID     int64
	Created     bool
	Stale       bool
	StatusAfter string
}

// Engine reconciles parsed events into booking rows.
type Engine struct {
	store Store
}

// NewEngine creates a reconciliation engine over the given store.
func NewEngine(s Store) *Engine {
	return &Engine{store: s}
}

// ApplyAll applies an event and then its spawned events in order, each in
// its own transaction. It stops at the first failure and returns the
// results of the applications that committed.
func (e *Engine) ApplyAll(ctx context.Context, evt *models.ParsedBookingEvent, emailID int64, messageID string) ([]Result, error) {
	results := make([]Result, 0, 1+len(evt.SpawnedEvents))

	r, err := e.ApplyEvent(ctx, evt, emailID, messageID)
	if err != nil {
		return results, err
	}
	results = append(results, *r)

	for _, spawned := range evt.SpawnedEvents {
		r, err := e.ApplyEvent(ctx, spawned, emailID, messageID)
		if err != nil {
			return results, fmt.Errorf("apply spawned %s event: %w", spawned.EventType, err)
		}
		results = append(results, *r)
	}
	return results, nil
}

// ApplyEvent applies one parsed event in one transaction. An event older
// than the booking's last applied event is not merged: the audit row is
// still appended, but the sparse patch and status are skipped so a late
// backfill cannot roll the booking backwards.
func (e *Engine) ApplyEvent(ctx context.Context, evt *models.ParsedBookingEvent, emailID int64, messageID string) (*Result, error) {
	if evt.Platform == "" || evt.PlatformBookingID == "" {
		return nil, fmt.Errorf("reconcile: event from message %s missing platform booking key", messageID)
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	var res Result
	err = e.store.InTx(ctx, func(tx store.TxStore) error {
		booking, err := tx.BookingForUpdate(ctx, evt.Platform, evt.PlatformBookingID)
		if err != nil {
			return fmt.Errorf("lookup booking %s/%s: %w", evt.Platform, evt.PlatformBookingID, err)
		}

		now := time.Now().UTC()
		if booking == nil {
			created, err := e.createBooking(ctx, tx, evt, messageID)
			if err != nil {
				return err
			}
			if created != nil {
				booking = created
				res.Created = true
			} else {
				// Lost a create race; the winning row is now visible.
				booking, err = tx.BookingForUpdate(ctx, evt.Platform, evt.PlatformBookingID)
				if err != nil || booking == nil {
					return fmt.Errorf("re-read booking %s/%s after conflict: %w", evt.Platform, evt.PlatformBookingID, err)
				}
			}
		}

		stale := false
		if !res.Created {
			stale = isStale(booking, evt)
			if stale {
				slog.Warn("skipping stale event",
					"platform", evt.Platform,
					"booking_id", evt.PlatformBookingID,
					"event_type", evt.EventType,
					"occurred_at", evt.OccurredAt,
					"last_applied", booking.LastEventOccurredAt)
			} else {
				e.mergeEvent(booking, evt, messageID)
				if err := tx.UpdateBooking(ctx, booking); err != nil {
					return fmt.Errorf("update booking %d: %w", booking.ID, err)
				}
			}
		}

		procErr := ""
		if stale {
			procErr = "skipped: older than last applied event"
		}
		eventID, err := tx.InsertEvent(ctx, &models.BookingEvent{
			BookingID:       booking.ID,
			EmailID:         emailID,
			EventType:       evt.EventType,
			Platform:        evt.Platform,
			StatusAfter:     booking.Status,
			EmailMessageID:  messageID,
			EventPayload:    payload,
			OccurredAt:      evt.OccurredAt,
			ProcessedAt:     now,
			ProcessingError: procErr,
		})
		if err != nil {
			return fmt.Errorf("append booking event: %w", err)
		}

		if !stale {
			for i := range evt.Addons {
				line := evt.Addons[i]
				if err := tx.UpsertAddon(ctx, &models.BookingAddon{
					BookingID:       booking.ID,
					SourceEventID:   eventID,
					PlatformAddonID: line.PlatformAddonID,
					Name:            line.Name,
					Quantity:        line.Quantity,
					UnitPrice:       line.UnitPrice,
					TotalPrice:      line.TotalPrice,
					Currency:        line.Currency,
					TaxAmount:       line.TaxAmount,
					IsIncluded:      line.IsIncluded,
					Metadata:        line.Metadata,
				}); err != nil {
					return fmt.Errorf("upsert addon %q: %w", line.Name, err)
				}
			}
		}

		res.BookingID = booking.ID
		res.EventID = eventID
		res.Stale = stale
		res.StatusAfter = booking.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// createBooking inserts a fresh booking built from the event. Returns nil
// without error when a concurrent transaction created the row first.
func (e *Engine) createBooking(ctx context.Context, tx store.TxStore, evt *models.ParsedBookingEvent, messageID string) (*models.Booking, error) {
	status := evt.Status
	if status == "" {
		status = models.StatusPending
	}
	b := &models.Booking{
		Platform:            evt.Platform,
		PlatformBookingID:   evt.PlatformBookingID,
		PlatformOrderID:     evt.PlatformOrderID,
		Status:              status,
		PaymentStatus:       evt.PaymentStatus,
		AttendanceStatus:    deriveAttendance("", status),
		Notes:               evt.Notes,
		LastEmailMessageID:  messageID,
		LastEventOccurredAt: evt.OccurredAt,
		StatusChangedAt:     evt.OccurredAt,
	}
	evt.Fields.Apply(b)

	id, err := tx.InsertBooking(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("create booking %s/%s: %w", evt.Platform, evt.PlatformBookingID, err)
	}
	if id == 0 {
		return nil, nil
	}
	b.ID = id
	return b, nil
}

// mergeEvent folds a non-stale event into an existing booking.
func (e *Engine) mergeEvent(b *models.Booking, evt *models.ParsedBookingEvent, messageID string) {
	evt.Fields.Apply(b)

	if evt.Status != "" && evt.Status != b.Status {
		b.Status = evt.Status
		b.StatusChangedAt = evt.OccurredAt
	}
	if evt.PaymentStatus != "" {
		b.PaymentStatus = evt.PaymentStatus
	}
	b.AttendanceStatus = deriveAttendance(b.AttendanceStatus, b.Status)

	if evt.Notes != "" && !strings.Contains(b.Notes, evt.Notes) {
		if b.Notes == "" {
			b.Notes = evt.Notes
		} else {
			b.Notes += "\n" + evt.Notes
		}
	}

	b.LastEmailMessageID = messageID
	if evt.OccurredAt.After(b.LastEventOccurredAt) {
		b.LastEventOccurredAt = evt.OccurredAt
	}
}

// isStale reports whether the event predates the booking's last applied
// event. Events without a timestamp are never treated as stale.
func isStale(b *models.Booking, evt *models.ParsedBookingEvent) bool {
	if evt.OccurredAt.IsZero() || b.LastEventOccurredAt.IsZero() {
		return false
	}
	return evt.OccurredAt.Before(b.LastEventOccurredAt)
}

// deriveAttendance recomputes the attendance state after a status change.
// A cancellation or refund clears the expectation even for a checked-in
// booking; otherwise a check-in recorded by the desk is preserved.
func deriveAttendance(current, status string) string {
	switch status {
	case models.StatusCancelled, models.StatusRefunded:
		return models.AttendanceNotExpected
	default:
		if current == models.AttendanceCheckedIn {
			return current
		}
		return models.AttendanceExpected
	}
}
