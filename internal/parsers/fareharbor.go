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
	"strconv"
	"strings"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

var (
	fhBookingRef = regexp.MustCompile(`#\s*(FH-[A-Z0-9]+|\d{5,})`)
	fhItemLine   = regexp.MustCompile(`(?im)^Item:\s*(.+)$`)
	fhDateLine   = regexp.MustCompile(`(?im)^Date:\s*(.+)$`)
	fhTimeLine   = regexp.MustCompile(`(?im)^Time:\s*(.+)$`)
	fhPartyLine  = regexp.MustCompile(`(?im)^Party:\s*(\d+)`)
	fhPartyDelta = regexp.MustCompile(`(?im)^Party change:\s*([+-]\d+)`)
	fhAdults     = regexp.MustCompile(`(?i)(\d+)\s*Adults?`)
	fhChildren   = regexp.MustCompile(`(?i)(\d+)\s*Child(?:ren)?`)
	fhContact    = regexp.MustCompile(`(?im)^Contact:\s*(.+)$`)
	fhEmail      = regexp.MustCompile(`(?im)^Email:\s*(\S+@\S+)\s*$`)
	fhPhone      = regexp.MustCompile(`(?im)^Phone:\s*(.+)$`)
	fhTotal      = regexp.MustCompile(`(?im)^Total:\s*(.+)$`)
	fhExtraLine  = regexp.MustCompile(`(?m)^\s*[-*]\s*(.+?)\s+x\s*(\d+)\s*-\s*([^(]+?)(?:\s*\(([A-Z0-9-]+)\))?\s*$`)
)

var fhDateLayouts = []string{
	"Monday, January 2, 2006",
	"Mon, January 2, 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// FareHarbor parses FareHarbor notification emails. Bodies are line
// oriented plain text; the booking reference rides in the subject.
type FareHarbor struct{}

// NewFareHarbor creates the FareHarbor parser.
func NewFareHarbor() *FareHarbor {
	return &FareHarbor{}
}

// Name returns the parser name.
func (p *FareHarbor) Name() string { return models.PlatformFareHarbor }

// CanParse matches mail sent from fareharbor.com.
func (p *FareHarbor) CanParse(pc *models.ParserContext) bool {
	return fromDomainIs(pc, "fareharbor.com")
}

// Parse extracts a booking event from a FareHarbor notification.
func (p *FareHarbor) Parse(pc *models.ParserContext) (*models.ParsedBookingEvent, error) {
	body := pc.TextBody

	ref := firstMatch(fhBookingRef, pc.Subject)
	if ref == "" {
		ref = firstMatch(fhBookingRef, body)
	}
	if ref == "" {
		return nil, fmt.Errorf("fareharbor: no booking reference in message %s", pc.MessageID)
	}
	if !strings.HasPrefix(ref, "FH-") {
		ref = "FH-" + ref
	}

	subject := strings.ToLower(pc.Subject)
	eventType := models.EventCreated
	status := models.StatusConfirmed
	switch {
	case containsAny(subject, "cancel"):
		eventType, status = models.EventCancelled, models.StatusCancelled
	case containsAny(subject, "refund"):
		eventType, status = models.EventRefunded, models.StatusRefunded
	case containsAny(subject, "rebooked", "amended", "changed", "updated"):
		eventType, status = models.EventModified, ""
	case containsAny(subject, "reminder"):
		eventType, status = models.EventReminder, ""
	}

	patch := &models.BookingPatch{}
	if item := firstMatch(fhItemLine, body); item != "" {
		patch.ProductName = &item
	}
	if name := firstMatch(fhContact, body); name != "" {
		patch.GuestName = &name
	}
	if email := firstMatch(fhEmail, body); email != "" {
		patch.GuestEmail = &email
	}
	if phone := firstMatch(fhPhone, body); phone != "" {
		patch.GuestPhone = &phone
	}

	if total := firstMatch(fhPartyLine, body); total != "" {
		if n, err := strconv.Atoi(total); err == nil {
			patch.PartySizeTotal = &n
		}
	}
	if adults := firstMatch(fhAdults, body); adults != "" {
		if n, err := strconv.Atoi(adults); err == nil {
			patch.PartySizeAdults = &n
		}
	}
	if children := firstMatch(fhChildren, body); children != "" {
		if n, err := strconv.Atoi(children); err == nil {
			patch.PartySizeChildren = &n
		}
	}
	// Amendment mails may report the change without restating the total.
	if delta := firstMatch(fhPartyDelta, body); delta != "" {
		if n, err := strconv.Atoi(delta); err == nil {
			patch.PartySizeTotalDelta = &n
		}
	}

	if d := firstMatch(fhDateLine, body); d != "" {
		if date := tryParseDate(d, fhDateLayouts); !date.IsZero() {
			patch.ExperienceDate = &date
			start := atTime(date, firstMatch(fhTimeLine, body))
			patch.ExperienceStart = &start
		}
	}

	if totalLine := firstMatch(fhTotal, body); totalLine != "" {
		amount, currency := parseMoney(totalLine)
		if amount > 0 {
			patch.TotalAmount = &amount
		}
		if currency != "" {
			patch.Currency = &currency
		}
	}

	evt := &models.ParsedBookingEvent{
		Platform:          models.PlatformFareHarbor,
		PlatformBookingID: ref,
		Status:            status,
		EventType:         eventType,
		Fields:            patch,
		OccurredAt:        pc.ReceivedAt,
		SourceReceivedAt:  pc.ReceivedAt,
	}

	extras := parseFareHarborExtras(body)
	switch {
	case len(extras) == 0:
	case eventType == models.EventCreated:
		evt.Addons = extras
	default:
		// An amendment that also touches extras implies a second state
		// change; spawn it so it is applied and audited on its own.
		evt.SpawnedEvents = append(evt.SpawnedEvents, &models.ParsedBookingEvent{
			Platform:          models.PlatformFareHarbor,
			PlatformBookingID: ref,
			EventType:         models.EventAddonsUpdated,
			Addons:            extras,
			OccurredAt:        pc.ReceivedAt,
			SourceReceivedAt:  pc.ReceivedAt,
		})
	}

	return evt, nil
}

// parseFareHarborExtras reads the "Extras:" block, lines shaped like
// "- Party Hat x 2 - $10.00 (EXT-77)".
func parseFareHarborExtras(body string) []models.AddonLine {
	idx := strings.Index(strings.ToLower(body), "extras:")
	if idx < 0 {
		return nil
	}

	var lines []models.AddonLine
	for _, m := range fhExtraLine.FindAllStringSubmatch(body[idx:], -1) {
		qty, err := strconv.Atoi(m[2])
		if err != nil || qty <= 0 {
			qty = 1
		}
		amount, currency := parseMoney(m[3])
		line := models.AddonLine{
			PlatformAddonID: m[4],
			Name:            strings.TrimSpace(m[1]),
			Quantity:        qty,
			TotalPrice:      amount,
			Currency:        currency,
		}
		if qty > 0 && amount > 0 {
			line.UnitPrice = amount / float64(qty)
		}
		lines = append(lines, line)
	}
	return lines
}
