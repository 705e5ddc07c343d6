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
	"testing"
	"time"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

const viatorBody = `Product: Krakow Vodka Tasting
Itinerary # 1024885512
Lead traveler: James Smith
Travelers: 4
Date: Monday, July 14, 2025
Time: 7:30 PM
Total: $260.00
Commission: $52.00
`

// TestViator_ParseConfirmation verifies a supplier confirmation including
// the commission breakdown.
func TestViator_ParseConfirmation(t *testing.T) {
	p := NewViator()
	pc := testContext("no-reply@viator.com", "New booking BR-580123456", viatorBody)

	if !p.CanParse(pc) {
		t.Fatal("CanParse = false for viator.com sender")
	}
	evt, err := p.Parse(pc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if evt.PlatformBookingID != "BR-580123456" {
		t.Errorf("booking id = %q, want BR-580123456", evt.PlatformBookingID)
	}
	if evt.PlatformOrderID != "1024885512" {
		t.Errorf("order id = %q, want 1024885512", evt.PlatformOrderID)
	}
	if evt.EventType != models.EventCreated || evt.Status != models.StatusConfirmed {
		t.Errorf("event/status = %q/%q, want created/confirmed", evt.EventType, evt.Status)
	}

	f := evt.Fields
	if f.PlatformOrderID == nil || *f.PlatformOrderID != "1024885512" {
		t.Errorf("patch order id = %v, want 1024885512", f.PlatformOrderID)
	}
	if f.ProductName == nil || *f.ProductName != "Krakow Vodka Tasting" {
		t.Errorf("product = %v", f.ProductName)
	}
	if f.GuestName == nil || *f.GuestName != "James Smith" {
		t.Errorf("guest name = %v", f.GuestName)
	}
	if f.PartySizeTotal == nil || *f.PartySizeTotal != 4 {
		t.Errorf("party total = %v, want 4", f.PartySizeTotal)
	}
	wantStart := time.Date(2025, 7, 14, 19, 30, 0, 0, time.UTC)
	if f.ExperienceStart == nil || !f.ExperienceStart.Equal(wantStart) {
		t.Errorf("experience start = %v, want %v", f.ExperienceStart, wantStart)
	}
	if f.TotalAmount == nil || *f.TotalAmount != 260 {
		t.Errorf("total = %v, want 260", f.TotalAmount)
	}
	if f.CommissionAmount == nil || *f.CommissionAmount != 52 {
		t.Errorf("commission = %v, want 52", f.CommissionAmount)
	}
	if f.Currency == nil || *f.Currency != "USD" {
		t.Errorf("currency = %v, want USD", f.Currency)
	}
}

// TestViator_Amendment verifies amendment classification.
func TestViator_Amendment(t *testing.T) {
	p := NewViator()
	pc := testContext("no-reply@viator.com", "Booking amended: BR-580123456", "Travelers: 6\n")

	evt, err := p.Parse(pc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.EventType != models.EventModified {
		t.Errorf("event type = %q, want modified", evt.EventType)
	}
	if evt.Status != "" {
		t.Errorf("status = %q, want empty", evt.Status)
	}
	if evt.Fields.PartySizeTotal == nil || *evt.Fields.PartySizeTotal != 6 {
		t.Errorf("party total = %v, want 6", evt.Fields.PartySizeTotal)
	}
}
