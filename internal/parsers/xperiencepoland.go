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

// Xperience Poland mails are Polish-language. Labels and status words are
// matched in Polish with English fallbacks for their bilingual template.
var (
	xpRef      = regexp.MustCompile(`(?i)Rezerwacja\s+nr\.?\s*([A-Z0-9-]+)|Booking\s+no\.?\s*([A-Z0-9-]+)`)
	xpActivity = regexp.MustCompile(`(?im)^(?:Atrakcja|Activity):\s*(.+)$`)
	xpName     = regexp.MustCompile(`(?im)^(?:Imię i nazwisko|Klient|Name):\s*(.+)$`)
	xpPeople   = regexp.MustCompile(`(?i)Liczba\s+os[oó]b:?\s*(\d+)`)
	xpDate     = regexp.MustCompile(`(?im)^(?:Data|Date):\s*(\d{2}\.\d{2}\.\d{4})(?:\s+(?:godz\.?|o)\s*(\d{1,2}:\d{2}))?`)
	xpTotal    = regexp.MustCompile(`(?im)^(?:Suma|Kwota|Total):\s*(.+)$`)
	xpPhone    = regexp.MustCompile(`(?im)^(?:Telefon|Phone):\s*([+0-9][0-9 ()-]{5,})`)
	xpEmail    = regexp.MustCompile(`(?im)^(?:E-?mail):\s*(\S+@\S+)`)
)

// XperiencePoland parses booking mail from xperiencepoland.com.
type XperiencePoland struct{}

// NewXperiencePoland creates the Xperience Poland parser.
func NewXperiencePoland() *XperiencePoland {
	return &XperiencePoland{}
}

// Name returns the parser name.
func (p *XperiencePoland) Name() string { return models.PlatformXperiencePoland }

// CanParse matches mail sent from xperiencepoland.com.
func (p *XperiencePoland) CanParse(pc *models.ParserContext) bool {
	return fromDomainIs(pc, "xperiencepoland.com")
}

// Parse extracts a booking event from an Xperience Poland notification.
func (p *XperiencePoland) Parse(pc *models.ParserContext) (*models.ParsedBookingEvent, error) {
	ref := xpFirstGroup(xpRef, pc.Subject)
	if ref == "" {
		ref = xpFirstGroup(xpRef, pc.TextBody)
	}
	if ref == "" {
		return nil, fmt.Errorf("xperiencepoland: no booking number in message %s", pc.MessageID)
	}

	subject := strings.ToLower(pc.Subject)
	eventType := models.EventCreated
	status := models.StatusConfirmed
	switch {
	case containsAny(subject, "anulowan", "cancel"):
		eventType, status = models.EventCancelled, models.StatusCancelled
	case containsAny(subject, "zwrot", "refund"):
		eventType, status = models.EventRefunded, models.StatusRefunded
	case containsAny(subject, "zmian", "zmien", "change", "updated"):
		eventType, status = models.EventModified, ""
	case containsAny(subject, "przypomnien", "reminder"):
		eventType, status = models.EventReminder, ""
	}

	patch := &models.BookingPatch{}
	if activity := firstMatch(xpActivity, pc.TextBody); activity != "" {
		activity = strings.TrimSpace(activity)
		patch.ProductName = &activity
	}
	if name := firstMatch(xpName, pc.TextBody); name != "" {
		name = strings.TrimSpace(name)
		patch.GuestName = &name
	}
	if email := firstMatch(xpEmail, pc.TextBody); email != "" {
		patch.GuestEmail = &email
	}
	if phone := firstMatch(xpPhone, pc.TextBody); phone != "" {
		phone = strings.TrimSpace(phone)
		patch.GuestPhone = &phone
	}
	if n := firstInt(firstMatch(xpPeople, pc.TextBody)); n > 0 {
		patch.PartySizeTotal = &n
	}
	if m := xpDate.FindStringSubmatch(pc.TextBody); m != nil {
		if date := tryParseDate(m[1], []string{"02.01.2006"}); !date.IsZero() {
			patch.ExperienceDate = &date
			start := atTime(date, m[2])
			patch.ExperienceStart = &start
		}
	}
	if totalRaw := firstMatch(xpTotal, pc.TextBody); totalRaw != "" {
		amount, currency := parseMoney(totalRaw)
		if amount > 0 {
			patch.TotalAmount = &amount
		}
		if currency == "" {
			currency = "PLN"
		}
		patch.Currency = &currency
	}

	return &models.ParsedBookingEvent{
		Platform:          models.PlatformXperiencePoland,
		PlatformBookingID: ref,
		Status:            status,
		EventType:         eventType,
		Fields:            patch,
		OccurredAt:        pc.ReceivedAt,
		SourceReceivedAt:  pc.ReceivedAt,
	}, nil
}

// xpFirstGroup returns the first non-empty capture group, the bilingual
// patterns carry one group per language.
func xpFirstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return strings.TrimSpace(g)
		}
	}
	return ""
}
