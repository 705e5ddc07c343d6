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

package models

import "time"

// ParsedBookingEvent is a parser's normalized output for one message. It is
// never persisted as its own entity; it is the vehicle for mutating the
// Booking aggregate and its audit trail. SpawnedEvents carries secondary
// state changes the same message implies, applied independently in order.
type ParsedBookingEvent struct {
	Platform          string                `json:"platform"`
	PlatformBookingID string                `json:"platform_booking_id"`
	PlatformOrderID   string                `json:"platform_order_id,omitempty"`
	Status            string                `json:"status,omitempty"`
	PaymentStatus     string                `json:"payment_status,omitempty"`
	EventType         string                `json:"event_type"`
	Fields            *BookingPatch         `json:"fields,omitempty"`
	Addons            []AddonLine           `json:"addons,omitempty"`
	Notes             string                `json:"notes,omitempty"`
	OccurredAt        time.Time             `json:"occurred_at"`
	SourceReceivedAt  time.Time             `json:"source_received_at"`
	SpawnedEvents     []*ParsedBookingEvent `json:"spawned_events,omitempty"`
}

// BookingEvent is one append-only audit row recording a message-to-booking
// application. Rows are never mutated after insert except to set
// ProcessedAt or ProcessingError. BookingID is zero for failure rows where
// no booking was resolved; EmailID is zero for manually injected events.
type BookingEvent struct {
	ID              int64
	BookingID       int64
	EmailID         int64
	EventType       string
	Platform        string
	StatusAfter     string
	EmailMessageID  string
	EventPayload    []byte
	OccurredAt      time.Time
	IngestedAt      time.Time
	ProcessedAt     time.Time
	ProcessingError string
}
