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
	ecwidOrderRef  = regexp.MustCompile(`(?i)order\s*#?\s*([A-Z0-9][A-Z0-9-]{2,})`)
	ecwidCustomer  = regexp.MustCompile(`(?im)^Customer:\s*(.+)$`)
	ecwidEmailLine = regexp.MustCompile(`(?im)^Email:\s*(\S+@\S+)`)
	ecwidPhoneLine = regexp.MustCompile(`(?im)^Phone:\s*([+0-9][0-9 ()-]{5,})`)
	ecwidTotalLine = regexp.MustCompile(`(?im)^(?:Order\s+)?Total:\s*(.+)$`)
	ecwidPickup    = regexp.MustCompile(`(?im)^(?:Pickup|Visit)\s+date:\s*(.+)$`)
	ecwidItemLine  = regexp.MustCompile(`(?m)^\s*(.+?)\s+[x×]\s*(\d+)\s*[-–]\s*([^(]+?)(?:\s*\(([A-Z0-9-]+)\))?\s*$`)
	ecwidQty       = regexp.MustCompile(`[x×]\s*(\d+)`)
)

var ecwidDateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"02.01.2006",
	"2006-01-02",
}

// Ecwid parses order notifications from the Ecwid web store. Orders map onto
// bookings with the purchased products carried as add-on lines.
type Ecwid struct{}

// NewEcwid creates the Ecwid parser.
func NewEcwid() *Ecwid {
	return &Ecwid{}
}

// Name returns the parser name.
func (p *Ecwid) Name() string { return models.PlatformEcwid }

// CanParse matches mail sent from ecwid.com.
func (p *Ecwid) CanParse(pc *models.ParserContext) bool {
	return fromDomainIs(pc, "ecwid.com")
}

// Parse extracts a booking event from an Ecwid order notification.
func (p *Ecwid) Parse(pc *models.ParserContext) (*models.ParsedBookingEvent, error) {
	ref := firstMatch(ecwidOrderRef, pc.Subject)
	if ref == "" {
		ref = firstMatch(ecwidOrderRef, pc.TextBody)
	}
	if ref == "" {
		return nil, fmt.Errorf("ecwid: no order number in message %s", pc.MessageID)
	}

	subject := strings.ToLower(pc.Subject)
	eventType := models.EventCreated
	status := models.StatusConfirmed
	paymentStatus := ""
	switch {
	case containsAny(subject, "cancel"):
		eventType, status = models.EventCancelled, models.StatusCancelled
	case containsAny(subject, "refund"):
		eventType, status = models.EventRefunded, models.StatusRefunded
	case containsAny(subject, "paid", "payment received"):
		eventType, status = models.EventModified, ""
		paymentStatus = "paid"
	case containsAny(subject, "updated", "edited", "changed"):
		eventType, status = models.EventModified, ""
	}

	patch := &models.BookingPatch{}
	if name := firstMatch(ecwidCustomer, pc.TextBody); name != "" {
		name = strings.TrimSpace(name)
		patch.GuestName = &name
	}
	if email := firstMatch(ecwidEmailLine, pc.TextBody); email != "" {
		patch.GuestEmail = &email
	}
	if phone := firstMatch(ecwidPhoneLine, pc.TextBody); phone != "" {
		phone = strings.TrimSpace(phone)
		patch.GuestPhone = &phone
	}
	if raw := firstMatch(ecwidPickup, pc.TextBody); raw != "" {
		if date := tryParseDate(strings.TrimSpace(raw), ecwidDateLayouts); !date.IsZero() {
			patch.ExperienceDate = &date
		}
	}
	if totalRaw := firstMatch(ecwidTotalLine, pc.TextBody); totalRaw != "" {
		amount, currency := parseMoney(totalRaw)
		if amount > 0 {
			patch.TotalAmount = &amount
		}
		if currency != "" {
			patch.Currency = &currency
		}
	}
	if paymentStatus != "" {
		patch.PaymentStatus = &paymentStatus
	}

	items := ecwidItems(pc)
	if len(items) > 0 && patch.ProductName == nil {
		name := items[0].Name
		patch.ProductName = &name
	}

	evt := &models.ParsedBookingEvent{
		Platform:          models.PlatformEcwid,
		PlatformBookingID: ref,
		Status:            status,
		PaymentStatus:     paymentStatus,
		EventType:         eventType,
		Fields:            patch,
		OccurredAt:        pc.ReceivedAt,
		SourceReceivedAt:  pc.ReceivedAt,
	}

	if len(items) > 0 {
		if eventType == models.EventCreated {
			evt.Addons = items
		} else {
			// Edits can reshape the item list; spawn a dedicated add-ons
			// event so the change lands as its own audited state change.
			evt.SpawnedEvents = append(evt.SpawnedEvents, &models.ParsedBookingEvent{
				Platform:          models.PlatformEcwid,
				PlatformBookingID: ref,
				EventType:         models.EventAddonsUpdated,
				Addons:            items,
				OccurredAt:        pc.ReceivedAt,
				SourceReceivedAt:  pc.ReceivedAt,
			})
		}
	}

	return evt, nil
}

// ecwidItems reads the order items, preferring the HTML items table and
// falling back to "Name x 2 - 180.00 zł (SKU)" text lines.
func ecwidItems(pc *models.ParserContext) []models.AddonLine {
	if items := ecwidItemsFromHTML(pc.HTMLBody); len(items) > 0 {
		return items
	}
	return ecwidItemsFromText(pc.TextBody)
}

func ecwidItemsFromHTML(htmlBody string) []models.AddonLine {
	if htmlBody == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil
	}

	var items []models.AddonLine
	doc.Find("table.order-items tr, table[data-items] tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		qty := firstInt(firstMatch(ecwidQty, cells.Eq(1).Text()))
		if qty == 0 {
			qty = firstInt(cells.Eq(1).Text())
		}
		amount, _ := parseMoney(cells.Eq(2).Text())
		if name == "" || qty == 0 {
			return
		}
		sku, _ := row.Attr("data-sku")
		items = append(items, models.AddonLine{
			PlatformAddonID: sku,
			Name:            name,
			Quantity:        qty,
			UnitPrice:       amount / float64(qty),
			TotalPrice:      amount,
		})
	})
	return items
}

func ecwidItemsFromText(text string) []models.AddonLine {
	idx := strings.Index(strings.ToLower(text), "items:")
	if idx < 0 {
		return nil
	}
	var items []models.AddonLine
	for _, m := range ecwidItemLine.FindAllStringSubmatch(text[idx:], -1) {
		name := strings.TrimSpace(m[1])
		if strings.EqualFold(name, "items") || strings.HasSuffix(strings.ToLower(name), "items:") {
			continue
		}
		qty := firstInt(m[2])
		if qty == 0 {
			qty = 1
		}
		amount, _ := parseMoney(m[3])
		items = append(items, models.AddonLine{
			PlatformAddonID: m[4],
			Name:            name,
			Quantity:        qty,
			UnitPrice:       amount / float64(qty),
			TotalPrice:      amount,
		})
	}
	return items
}
