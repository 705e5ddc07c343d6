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

package parsers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

var (
	airbnbCode     = regexp.MustCompile(`\b(HM[A-Z0-9]{8})\b`)
	airbnbGuest    = regexp.MustCompile(`(?im)^Guest:\s*(.+)$`)
	airbnbGuests   = regexp.MustCompile(`(?i)(\d+)\s+guests?\b`)
	airbnbAdults   = regexp.MustCompile(`(?i)(\d+)\s+adults?\b`)
	airbnbChildren = regexp.MustCompile(`(?i)(\d+)\s+child(?:ren)?\b`)
	airbnbCheckIn  = regexp.MustCompile(`(?im)^Check-?in:?\s*(.+)$`)
	airbnbCheckOut = regexp.MustCompile(`(?im)^Check-?out:?\s*(.+)$`)
	airbnbPayout   = regexp.MustCompile(`(?i)(?:payout|you earn|host earnings):?\s*(.+)`)
)

var airbnbDateLayouts = []string{
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
}

// Airbnb parses host notifications for the guest experience listing. The
// confirmation code (HM plus eight characters) is the stable reference
// across the whole reservation thread.
type Airbnb struct{}

// NewAirbnb creates the Airbnb parser.
func NewAirbnb() *Airbnb {
	return &Airbnb{}
}

// Name returns the parser name.
func (p *Airbnb) Name() string { return models.PlatformAirbnb }

// CanParse matches mail sent from airbnb.com.
func (p *Airbnb) CanParse(pc *models.ParserContext) bool {
	return fromDomainIs(pc, "airbnb.com")
}

// Parse extracts a booking event from an Airbnb host notification.
func (p *Airbnb) Parse(pc *models.ParserContext) (*models.ParsedBookingEvent, error) {
	ref := firstMatch(airbnbCode, pc.Subject)
	if ref == "" {
		ref = firstMatch(airbnbCode, pc.TextBody)
	}
	if ref == "" {
		return nil, fmt.Errorf("airbnb: no confirmation code in message %s", pc.MessageID)
	}

	subject := strings.ToLower(pc.Subject)
	eventType := models.EventCreated
	status := models.StatusConfirmed
	switch {
	case containsAny(subject, "cancel"):
		eventType, status = models.EventCancelled, models.StatusCancelled
	case containsAny(subject, "refund"):
		eventType, status = models.EventRefunded, models.StatusRefunded
	case containsAny(subject, "alteration", "altered", "changed", "updated"):
		eventType, status = models.EventModified, ""
	case containsAny(subject, "reminder", "arrives soon"):
		eventType, status = models.EventReminder, ""
	}

	patch := &models.BookingPatch{}
	if guest := firstMatch(airbnbGuest, pc.TextBody); guest != "" {
		guest = strings.TrimSpace(guest)
		patch.GuestName = &guest
	}
	if n := firstInt(firstMatch(airbnbGuests, pc.TextBody)); n > 0 {
		patch.PartySizeTotal = &n
	}
	adults := firstInt(firstMatch(airbnbAdults, pc.TextBody))
	children := firstInt(firstMatch(airbnbChildren, pc.TextBody))
	if adults > 0 {
		patch.PartySizeAdults = &adults
	}
	if children > 0 {
		patch.PartySizeChildren = &children
	}
	if patch.PartySizeTotal == nil && adults+children > 0 {
		total := adults + children
		patch.PartySizeTotal = &total
	}
	if raw := firstMatch(airbnbCheckIn, pc.TextBody); raw != "" {
		if date := tryParseDate(airbnbTrimDate(raw), airbnbDateLayouts); !date.IsZero() {
			patch.ExperienceDate = &date
			patch.ExperienceStart = &date
		}
	}
	if raw := firstMatch(airbnbCheckOut, pc.TextBody); raw != "" {
		if date := tryParseDate(airbnbTrimDate(raw), airbnbDateLayouts); !date.IsZero() {
			patch.ExperienceEnd = &date
		}
	}
	if payoutRaw := firstMatch(airbnbPayout, pc.TextBody); payoutRaw != "" {
		amount, currency := parseMoney(payoutRaw)
		if amount > 0 {
			patch.TotalAmount = &amount
		}
		if currency != "" {
			patch.Currency = &currency
		}
	}

	return &models.ParsedBookingEvent{
		Platform:          models.PlatformAirbnb,
		PlatformBookingID: ref,
		Status:            status,
		EventType:         eventType,
		Fields:            patch,
		OccurredAt:        pc.ReceivedAt,
		SourceReceivedAt:  pc.ReceivedAt,
	}, nil
}

// airbnbTrimDate drops a trailing arrival window ("Fri, Jul 4, 2025 (4:00 PM)").
func airbnbTrimDate(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "("); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
