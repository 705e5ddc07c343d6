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
	freetourRef      = regexp.MustCompile(`\b(FT[A-Z0-9]{5,})\b`)
	freetourTour     = regexp.MustCompile(`(?im)^Tour:\s*(.+)$`)
	freetourGuests   = regexp.MustCompile(`(?i)guests?:?\s*(\d+)|(\d+)\s+guests?\b`)
	freetourName     = regexp.MustCompile(`(?im)^(?:Guest name|Name):\s*(.+)$`)
	freetourDateLine = regexp.MustCompile(`(?im)^Date:\s*(.+)$`)
	freetourTimeLine = regexp.MustCompile(`(?im)^Time:\s*(.+)$`)
)

var freetourDateLayouts = []string{
	"2 January 2006",
	"January 2, 2006",
	"02/01/2006",
	"2006-01-02",
}

// Freetour parses booking mail from freetour.com. Free walking tours carry
// no price so only the guest, party and slot details matter.
type Freetour struct{}

// NewFreetour creates the Freetour parser.
func NewFreetour() *Freetour {
	return &Freetour{}
}

// Name returns the parser name.
func (p *Freetour) Name() string { return models.PlatformFreetour }

// CanParse matches mail sent from freetour.com.
func (p *Freetour) CanParse(pc *models.ParserContext) bool {
	return fromDomainIs(pc, "freetour.com")
}

// Parse extracts a booking event from a freetour.com notification.
func (p *Freetour) Parse(pc *models.ParserContext) (*models.ParsedBookingEvent, error) {
	ref := firstMatch(freetourRef, pc.Subject)
	if ref == "" {
		ref = firstMatch(freetourRef, pc.TextBody)
	}
	if ref == "" {
		return nil, fmt.Errorf("freetour: no booking code in message %s", pc.MessageID)
	}

	subject := strings.ToLower(pc.Subject)
	eventType := models.EventCreated
	status := models.StatusConfirmed
	switch {
	case containsAny(subject, "cancel"):
		eventType, status = models.EventCancelled, models.StatusCancelled
	case containsAny(subject, "change", "updated", "modified"):
		eventType, status = models.EventModified, ""
	case containsAny(subject, "reminder"):
		eventType, status = models.EventReminder, ""
	}

	patch := &models.BookingPatch{}
	if tour := firstMatch(freetourTour, pc.TextBody); tour != "" {
		tour = strings.TrimSpace(tour)
		patch.ProductName = &tour
	}
	if name := firstMatch(freetourName, pc.TextBody); name != "" {
		name = strings.TrimSpace(name)
		patch.GuestName = &name
	}
	if m := freetourGuests.FindStringSubmatch(pc.TextBody); m != nil {
		n := firstInt(m[1])
		if n == 0 {
			n = firstInt(m[2])
		}
		if n > 0 {
			patch.PartySizeTotal = &n
		}
	}
	if raw := firstMatch(freetourDateLine, pc.TextBody); raw != "" {
		if date := tryParseDate(strings.TrimSpace(raw), freetourDateLayouts); !date.IsZero() {
			patch.ExperienceDate = &date
			start := atTime(date, strings.TrimSpace(firstMatch(freetourTimeLine, pc.TextBody)))
			patch.ExperienceStart = &start
		}
	}

	return &models.ParsedBookingEvent{
		Platform:          models.PlatformFreetour,
		PlatformBookingID: ref,
		Status:            status,
		EventType:         eventType,
		Fields:            patch,
		OccurredAt:        pc.ReceivedAt,
		SourceReceivedAt:  pc.ReceivedAt,
	}, nil
}
