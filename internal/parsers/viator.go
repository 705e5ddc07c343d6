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
	viatorRef        = regexp.MustCompile(`\b(BR-\d{6,})\b`)
	viatorItinerary  = regexp.MustCompile(`(?i)itinerary\s*#?:?\s*(\d{6,})`)
	viatorProduct    = regexp.MustCompile(`(?im)^(?:Product|Tour):\s*(.+)$`)
	viatorTravelers  = regexp.MustCompile(`(?i)(\d+)\s+travel(?:l)?ers?\b|travel(?:l)?ers?:?\s*(\d+)`)
	viatorLead       = regexp.MustCompile(`(?im)^Lead traveler:\s*(.+)$`)
	viatorDateLine   = regexp.MustCompile(`(?im)^(?:Travel\s+)?Date:\s*(.+)$`)
	viatorTimeLine   = regexp.MustCompile(`(?im)^Time:\s*(.+)$`)
	viatorTotalLine  = regexp.MustCompile(`(?im)^(?:Total|Gross amount):\s*(.+)$`)
	viatorCommission = regexp.MustCompile(`(?im)^(?:Your\s+)?Commission:\s*(.+)$`)
)

var viatorDateLayouts = []string{
	"Monday, January 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
}

// Viator parses Viator supplier notifications. References look like
// BR-123456789 and payouts arrive with the commission already broken out.
type Viator struct{}

// NewViator creates the Viator parser.
func NewViator() *Viator {
	return &Viator{}
}

// Name returns the parser name.
func (p *Viator) Name() string { return models.PlatformViator }

// CanParse matches mail sent from viator.com.
func (p *Viator) CanParse(pc *models.ParserContext) bool {
	return fromDomainIs(pc, "viator.com")
}

// Parse extracts a booking event from a Viator supplier notification.
func (p *Viator) Parse(pc *models.ParserContext) (*models.ParsedBookingEvent, error) {
	ref := firstMatch(viatorRef, pc.Subject)
	if ref == "" {
		ref = firstMatch(viatorRef, pc.TextBody)
	}
	if ref == "" {
		return nil, fmt.Errorf("viator: no booking reference in message %s", pc.MessageID)
	}

	subject := strings.ToLower(pc.Subject)
	eventType := models.EventCreated
	status := models.StatusConfirmed
	switch {
	case containsAny(subject, "cancel"):
		eventType, status = models.EventCancelled, models.StatusCancelled
	case containsAny(subject, "refund"):
		eventType, status = models.EventRefunded, models.StatusRefunded
	case containsAny(subject, "amend", "change", "updated"):
		eventType, status = models.EventModified, ""
	case containsAny(subject, "reminder"):
		eventType, status = models.EventReminder, ""
	}

	patch := &models.BookingPatch{}
	// The itinerary number groups several bookings bought in one checkout;
	// keep it alongside the per-booking reference.
	itinerary := firstMatch(viatorItinerary, pc.TextBody)
	if itinerary != "" {
		patch.PlatformOrderID = &itinerary
	}
	if product := firstMatch(viatorProduct, pc.TextBody); product != "" {
		product = strings.TrimSpace(product)
		patch.ProductName = &product
	}
	if lead := firstMatch(viatorLead, pc.TextBody); lead != "" {
		lead = strings.TrimSpace(lead)
		patch.GuestName = &lead
	}
	if m := viatorTravelers.FindStringSubmatch(pc.TextBody); m != nil {
		n := firstInt(m[1])
		if n == 0 {
			n = firstInt(m[2])
		}
		if n > 0 {
			patch.PartySizeTotal = &n
		}
	}
	if raw := firstMatch(viatorDateLine, pc.TextBody); raw != "" {
		if date := tryParseDate(strings.TrimSpace(raw), viatorDateLayouts); !date.IsZero() {
			patch.ExperienceDate = &date
			start := atTime(date, strings.TrimSpace(firstMatch(viatorTimeLine, pc.TextBody)))
			patch.ExperienceStart = &start
		}
	}
	if totalRaw := firstMatch(viatorTotalLine, pc.TextBody); totalRaw != "" {
		amount, currency := parseMoney(totalRaw)
		if amount > 0 {
			patch.TotalAmount = &amount
		}
		if currency != "" {
			patch.Currency = &currency
		}
	}
	if commRaw := firstMatch(viatorCommission, pc.TextBody); commRaw != "" {
		amount, _ := parseMoney(commRaw)
		if amount > 0 {
			patch.CommissionAmount = &amount
		}
	}

	return &models.ParsedBookingEvent{
		Platform:          models.PlatformViator,
		PlatformBookingID: ref,
		PlatformOrderID:   itinerary,
		Status:            status,
		EventType:         eventType,
		Fields:            patch,
		OccurredAt:        pc.ReceivedAt,
		SourceReceivedAt:  pc.ReceivedAt,
	}, nil
}
