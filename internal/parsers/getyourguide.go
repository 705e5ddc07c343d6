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

	"github.com/PuerkitoBio/goquery"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

var (
	gygRef          = regexp.MustCompile(`\b(GYG[A-Z0-9]{6,})\b`)
	gygParticipants = regexp.MustCompile(`(?i)participants?:?\s*(\d+)`)
)

var gygDateLayouts = []string{
	"Monday, January 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"02.01.2006",
}

// GetYourGuide parses GetYourGuide booking notifications. The interesting
// fields come as HTML label/value table rows; a text fallback covers the
// plain part.
type GetYourGuide struct{}

// NewGetYourGuide creates the GetYourGuide parser.
func NewGetYourGuide() *GetYourGuide {
	return &GetYourGuide{}
}

// Name returns the parser name.
func (p *GetYourGuide) Name() string { return models.PlatformGetYourGuide }

// CanParse matches mail sent from getyourguide.com.
func (p *GetYourGuide) CanParse(pc *models.ParserContext) bool {
	return fromDomainIs(pc, "getyourguide.com")
}

// Parse extracts a booking event from a GetYourGuide notification.
func (p *GetYourGuide) Parse(pc *models.ParserContext) (*models.ParsedBookingEvent, error) {
	fields := htmlLabelValues(pc.HTMLBody)

	ref := fields["reference number"]
	if ref == "" {
		ref = fields["booking reference"]
	}
	if ref == "" {
		ref = firstMatch(gygRef, pc.Subject+" "+pc.TextBody)
	}
	if ref == "" {
		return nil, fmt.Errorf("getyourguide: no booking reference in message %s", pc.MessageID)
	}

	subject := strings.ToLower(pc.Subject)
	eventType := models.EventCreated
	status := models.StatusConfirmed
	switch {
	case containsAny(subject, "cancel"):
		eventType, status = models.EventCancelled, models.StatusCancelled
	case containsAny(subject, "refund"):
		eventType, status = models.EventRefunded, models.StatusRefunded
	case containsAny(subject, "updated", "amended", "change"):
		eventType, status = models.EventModified, ""
	case containsAny(subject, "reminder"):
		eventType, status = models.EventReminder, ""
	}

	patch := &models.BookingPatch{}
	if option := firstNonEmptyValue(fields, "option", "activity", "tour"); option != "" {
		patch.ProductName = &option
	}
	if name := firstNonEmptyValue(fields, "main customer", "customer", "lead traveler"); name != "" {
		patch.GuestName = &name
	}
	if email := fields["email"]; email != "" {
		patch.GuestEmail = &email
	}
	if phone := fields["phone"]; phone != "" {
		patch.GuestPhone = &phone
	}

	participants := fields["number of participants"]
	if participants == "" {
		participants = firstMatch(gygParticipants, pc.TextBody)
	}
	if n := firstInt(participants); n > 0 {
		patch.PartySizeTotal = &n
	}
	if n := firstInt(firstMatch(fhAdults, participants+" "+pc.TextBody)); n > 0 {
		patch.PartySizeAdults = &n
	}
	if n := firstInt(firstMatch(fhChildren, participants+" "+pc.TextBody)); n > 0 {
		patch.PartySizeChildren = &n
	}

	if d := firstNonEmptyValue(fields, "date", "travel date"); d != "" {
		datePart := d
		clock := ""
		if i := strings.LastIndex(d, " at "); i > 0 {
			datePart, clock = d[:i], d[i+4:]
		}
		if date := tryParseDate(datePart, gygDateLayouts); !date.IsZero() {
			patch.ExperienceDate = &date
			start := atTime(date, clock)
			patch.ExperienceStart = &start
		}
	}

	if totalRaw := firstNonEmptyValue(fields, "total price", "price", "total"); totalRaw != "" {
		amount, currency := parseMoney(totalRaw)
		if amount > 0 {
			patch.TotalAmount = &amount
		}
		if currency != "" {
			patch.Currency = &currency
		}
	}
	if comm := fields["commission"]; comm != "" {
		amount, _ := parseMoney(comm)
		if amount > 0 {
			patch.CommissionAmount = &amount
		}
	}

	return &models.ParsedBookingEvent{
		Platform:          models.PlatformGetYourGuide,
		PlatformBookingID: ref,
		Status:            status,
		EventType:         eventType,
		Fields:            patch,
		OccurredAt:        pc.ReceivedAt,
		SourceReceivedAt:  pc.ReceivedAt,
	}, nil
}

// htmlLabelValues flattens two-cell table rows into a lowercased label map.
func htmlLabelValues(htmlBody string) map[string]string {
	fields := map[string]string{}
	if htmlBody == "" {
		return fields
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return fields
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() != 2 {
			return
		}
		label := normalizeLabel(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		if label == "" || value == "" {
			return
		}
		if _, ok := fields[label]; !ok {
			fields[label] = value
		}
	})
	return fields
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimSuffix(s, ":")
}

func firstNonEmptyValue(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}
