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

// Known platform identifiers. The set is open: parsers may emit values
// outside this list and the store treats platform as free text.
const (
	PlatformFareHarbor      = "fareharbor"
	PlatformGetYourGuide    = "getyourguide"
	PlatformEcwid           = "ecwid"
	PlatformViator          = "viator"
	PlatformFreetour        = "freetour"
	PlatformXperiencePoland = "xperiencepoland"
	PlatformAirbnb          = "airbnb"
	PlatformManual          = "manual"
	PlatformUnknown         = "unknown"
)

// Booking lifecycle states.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

// Attendance states derived from the booking status.
const (
	AttendanceExpected    = "expected"
	AttendanceNotExpected = "not_expected"
	AttendanceCheckedIn   = "checked_in"
)

// Event types classifying what kind of change a message represents.
const (
	EventCreated       = "created"
	EventModified      = "modified"
	EventCancelled     = "cancelled"
	EventRefunded      = "refunded"
	EventReminder      = "reminder"
	EventAddonsUpdated = "addons_updated"
	EventUnclassified  = "unclassified"
	EventParseFailed   = "parse_failed"
)

// Booking is the persistent aggregate, one row per distinct
// (platform, platform_booking_id) pair. Created on the first event for a
// platform booking id, mutated by every subsequent compatible event, never
// deleted by the ingestion path.
type Booking struct {
	ID                  int64     `json:"id"`
	Platform            string    `json:"platform"`
	PlatformBookingID   string    `json:"platform_booking_id"`
	PlatformOrderID     string    `json:"platform_order_id,omitempty"`
	ProductName         string    `json:"product_name,omitempty"`
	ProductCode         string    `json:"product_code,omitempty"`
	GuestName           string    `json:"guest_name,omitempty"`
	GuestEmail          string    `json:"guest_email,omitempty"`
	GuestPhone          string    `json:"guest_phone,omitempty"`
	PartySizeTotal      int       `json:"party_size_total"`
	PartySizeAdults     int       `json:"party_size_adults"`
	PartySizeChildren   int       `json:"party_size_children"`
	ExperienceDate      time.Time `json:"experience_date"`
	ExperienceStart     time.Time `json:"experience_start"`
	ExperienceEnd       time.Time `json:"experience_end"`
	BaseAmount          float64   `json:"base_amount"`
	AddonsAmount        float64   `json:"addons_amount"`
	DiscountAmount      float64   `json:"discount_amount"`
	TotalAmount         float64   `json:"total_amount"`
	CommissionAmount    float64   `json:"commission_amount"`
	Currency            string    `json:"currency,omitempty"`
	Status              string    `json:"status"`
	PaymentStatus       string    `json:"payment_status,omitempty"`
	AttendanceStatus    string    `json:"attendance_status"`
	CheckedInAt         time.Time `json:"checked_in_at"`
	CheckedInCount      int       `json:"checked_in_count"`
	Notes               string    `json:"notes,omitempty"`
	LastEmailMessageID  string    `json:"last_email_message_id,omitempty"`
	LastEventOccurredAt time.Time `json:"last_event_occurred_at"`
	StatusChangedAt     time.Time `json:"status_changed_at"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// BookingPatch is a sparse update against a Booking: only non-nil fields are
// applied. Plain fields overwrite the stored value; *Delta fields add to it,
// so incremental-change emails ("+2 guests added") accumulate without the
// message restating the full total.
type BookingPatch struct {
	PlatformOrderID        *string    `json:"platform_order_id,omitempty"`
	ProductName            *string    `json:"product_name,omitempty"`
	ProductCode            *string    `json:"product_code,omitempty"`
	GuestName              *string    `json:"guest_name,omitempty"`
	GuestEmail             *string    `json:"guest_email,omitempty"`
	GuestPhone             *string    `json:"guest_phone,omitempty"`
	PartySizeTotal         *int       `json:"party_size_total,omitempty"`
	PartySizeAdults        *int       `json:"party_size_adults,omitempty"`
	PartySizeChildren      *int       `json:"party_size_children,omitempty"`
	PartySizeTotalDelta    *int       `json:"party_size_total_delta,omitempty"`
	PartySizeAdultsDelta   *int       `json:"party_size_adults_delta,omitempty"`
	PartySizeChildrenDelta *int       `json:"party_size_children_delta,omitempty"`
	ExperienceDate         *time.Time `json:"experience_date,omitempty"`
	ExperienceStart        *time.Time `json:"experience_start,omitempty"`
	ExperienceEnd          *time.Time `json:"experience_end,omitempty"`
	BaseAmount             *float64   `json:"base_amount,omitempty"`
	AddonsAmount           *float64   `json:"addons_amount,omitempty"`
	DiscountAmount         *float64   `json:"discount_amount,omitempty"`
	TotalAmount            *float64   `json:"total_amount,omitempty"`
	CommissionAmount       *float64   `json:"commission_amount,omitempty"`
	Currency               *string    `json:"currency,omitempty"`
}

// Apply merges the patch into a booking in place.
func (p *BookingPatch) Apply(b *Booking) {
	if p == nil {
		return
	}
	if p.PlatformOrderID != nil {
		b.PlatformOrderID = *p.PlatformOrderID
	}
	if p.ProductName != nil {
		b.ProductName = *p.ProductName
	}
	if p.ProductCode != nil {
		b.ProductCode = *p.ProductCode
	}
	if p.GuestName != nil {
		b.GuestName = *p.GuestName
	}
	if p.GuestEmail != nil {
		b.GuestEmail = *p.GuestEmail
	}
	if p.GuestPhone != nil {
		b.GuestPhone = *p.GuestPhone
	}
	if p.PartySizeTotal != nil {
		b.PartySizeTotal = *p.PartySizeTotal
	}
	if p.PartySizeAdults != nil {
		b.PartySizeAdults = *p.PartySizeAdults
	}
	if p.PartySizeChildren != nil {
		b.PartySizeChildren = *p.PartySizeChildren
	}
	if p.PartySizeTotalDelta != nil {
		b.PartySizeTotal += *p.PartySizeTotalDelta
	}
	if p.PartySizeAdultsDelta != nil {
		b.PartySizeAdults += *p.PartySizeAdultsDelta
	}
	if p.PartySizeChildrenDelta != nil {
		b.PartySizeChildren += *p.PartySizeChildrenDelta
	}
	if p.ExperienceDate != nil {
		b.ExperienceDate = *p.ExperienceDate
	}
	if p.ExperienceStart != nil {
		b.ExperienceStart = *p.ExperienceStart
	}
	if p.ExperienceEnd != nil {
		b.ExperienceEnd = *p.ExperienceEnd
	}
	if p.BaseAmount != nil {
		b.BaseAmount = *p.BaseAmount
	}
	if p.AddonsAmount != nil {
		b.AddonsAmount = *p.AddonsAmount
	}
	if p.DiscountAmount != nil {
		b.DiscountAmount = *p.DiscountAmount
	}
	if p.TotalAmount != nil {
		b.TotalAmount = *p.TotalAmount
	}
	if p.CommissionAmount != nil {
		b.CommissionAmount = *p.CommissionAmount
	}
	if p.Currency != nil {
		b.Currency = *p.Currency
	}
}

// HasDelta reports whether the patch carries any incremental-change field.
func (p *BookingPatch) HasDelta() bool {
	if p == nil {
		return false
	}
	return p.PartySizeTotalDelta != nil || p.PartySizeAdultsDelta != nil || p.PartySizeChildrenDelta != nil
}

// AddonLine is a normalized add-on line item extracted from a message.
type AddonLine struct {
	PlatformAddonID string            `json:"platform_addon_id,omitempty"`
	Name            string            `json:"name"`
	Quantity        int               `json:"quantity"`
	UnitPrice       float64           `json:"unit_price,omitempty"`
	TotalPrice      float64           `json:"total_price,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	TaxAmount       float64           `json:"tax_amount,omitempty"`
	IsIncluded      bool              `json:"is_included,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// BookingAddon is one persisted add-on line attached to a booking, linked to
// the event that introduced or last modified it.
type BookingAddon struct {
	ID              int64             `json:"id"`
	BookingID       int64             `json:"booking_id"`
	SourceEventID   int64             `json:"source_event_id,omitempty"`
	PlatformAddonID string            `json:"platform_addon_id,omitempty"`
	Name            string            `json:"name"`
	Quantity        int               `json:"quantity"`
	UnitPrice       float64           `json:"unit_price"`
	TotalPrice      float64           `json:"total_price"`
	Currency        string            `json:"currency,omitempty"`
	TaxAmount       float64           `json:"tax_amount"`
	IsIncluded      bool              `json:"is_included"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
