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

package reconcile

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/store"
)

// fakeStore implements Store and store.TxStore in memory for testing.
// Reads hand out copies so state only changes through UpdateBooking,
// matching how row data behaves in Postgres.
type fakeStore struct {
	mu           sync.Mutex
	bookings     map[string]*models.Booking
	events       []models.BookingEvent
	addons       map[string]*models.BookingAddon
	nextID       int64
	hideBookings int // make the next n lookups miss, to force create races
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings: make(map[string]*models.Booking),
		addons:   make(map[string]*models.BookingAddon),
	}
}

func (f *fakeStore) InTx(_ context.Context, fn func(tx store.TxStore) error) error {
	return fn(f)
}

func bookingKey(platform, platformBookingID string) string {
	return platform + "|" + platformBookingID
}

func (f *fakeStore) BookingForUpdate(_ context.Context, platform, platformBookingID string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideBookings > 0 {
		f.hideBookings--
		return nil, nil
	}
	b, ok := f.bookings[bookingKey(platform, platformBookingID)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) InsertBooking(_ context.Context, b *models.Booking) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := bookingKey(b.Platform, b.PlatformBookingID)
	if _, exists := f.bookings[key]; exists {
		return 0, nil
	}
	f.nextID++
	cp := *b
	cp.ID = f.nextID
	f.bookings[key] = &cp
	return cp.ID, nil
}

func (f *fakeStore) UpdateBooking(_ context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, existing := range f.bookings {
		if existing.ID == b.ID {
			cp := *b
			f.bookings[key] = &cp
			return nil
		}
	}
	return nil
}

func (f *fakeStore) InsertEvent(_ context.Context, ev *models.BookingEvent) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *ev
	cp.ID = f.nextID
	f.events = append(f.events, cp)
	return cp.ID, nil
}

func (f *fakeStore) UpsertAddon(_ context.Context, a *models.BookingAddon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := a.PlatformAddonID
	if key == "" {
		key = "name:" + a.Name
	}
	key = strconv.FormatInt(a.BookingID, 10) + "|" + key
	if existing, ok := f.addons[key]; ok {
		a.ID = existing.ID
	} else {
		f.nextID++
		a.ID = f.nextID
	}
	cp := *a
	f.addons[key] = &cp
	return nil
}

func (f *fakeStore) booking(platform, platformBookingID string) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingKey(platform, platformBookingID)]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func intPtr(n int) *int { return &n }

var baseTime = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func createdEvent(partySize int) *models.ParsedBookingEvent {
	return &models.ParsedBookingEvent{
		Platform:          models.PlatformFareHarbor,
		PlatformBookingID: "FH-001",
		Status:            models.StatusConfirmed,
		EventType:         models.EventCreated,
		Fields:            &models.BookingPatch{PartySizeTotal: intPtr(partySize)},
		OccurredAt:        baseTime,
	}
}

// TestApplyEvent_CreatesBooking verifies the first event for a platform key
// creates the booking and appends an audit row.
func TestApplyEvent_CreatesBooking(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)

	res, err := e.ApplyEvent(context.Background(), createdEvent(4), 11, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Created {
		t.Error("Created = false, want true")
	}

	b := f.booking(models.PlatformFareHarbor, "FH-001")
	if b == nil {
		t.Fatal("booking not created")
	}
	if b.Status != models.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", b.Status)
	}
	if b.AttendanceStatus != models.AttendanceExpected {
		t.Errorf("attendance = %q, want expected", b.AttendanceStatus)
	}
	if b.PartySizeTotal != 4 {
		t.Errorf("party = %d, want 4", b.PartySizeTotal)
	}
	if b.LastEmailMessageID != "m1" {
		t.Errorf("last message = %q, want m1", b.LastEmailMessageID)
	}

	if len(f.events) != 1 {
		t.Fatalf("events = %d, want 1", len(f.events))
	}
	ev := f.events[0]
	if ev.BookingID != b.ID || ev.EmailID != 11 || ev.StatusAfter != models.StatusConfirmed {
		t.Errorf("audit row = %+v", ev)
	}
	if ev.ProcessedAt.IsZero() {
		t.Error("audit row processed_at not set")
	}
}

// TestApplyEvent_CreateThenCancel verifies a create followed by a cancel
// leaves exactly one booking row in cancelled state with two audit rows.
func TestApplyEvent_CreateThenCancel(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)
	ctx := context.Background()

	if _, err := e.ApplyEvent(ctx, createdEvent(4), 11, "m1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	cancel := &models.ParsedBookingEvent{
		Platform:          models.PlatformFareHarbor,
		PlatformBookingID: "FH-001",
		Status:            models.StatusCancelled,
		EventType:         models.EventCancelled,
		OccurredAt:        baseTime.Add(time.Hour),
	}
	res, err := e.ApplyEvent(ctx, cancel, 12, "m2")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Created {
		t.Error("Created = true on cancel, want false")
	}
	if res.StatusAfter != models.StatusCancelled {
		t.Errorf("StatusAfter = %q, want cancelled", res.StatusAfter)
	}

	if n := len(f.bookings); n != 1 {
		t.Errorf("booking rows = %d, want 1", n)
	}
	b := f.booking(models.PlatformFareHarbor, "FH-001")
	if b.Status != models.StatusCancelled {
		t.Errorf("status = %q, want cancelled", b.Status)
	}
	if b.AttendanceStatus != models.AttendanceNotExpected {
		t.Errorf("attendance = %q, want not_expected", b.AttendanceStatus)
	}
	if !b.StatusChangedAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("status changed at = %v, want cancel time", b.StatusChangedAt)
	}
	if len(f.events) != 2 {
		t.Fatalf("events = %d, want 2", len(f.events))
	}
	if f.events[1].StatusAfter != models.StatusCancelled {
		t.Errorf("second audit status = %q, want cancelled", f.events[1].StatusAfter)
	}
}

// TestApplyEvent_DeltaAccumulates verifies delta fields add to the stored
// value on every application instead of overwriting it.
func TestApplyEvent_DeltaAccumulates(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)
	ctx := context.Background()

	if _, err := e.ApplyEvent(ctx, createdEvent(4), 11, "m1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	delta := &models.ParsedBookingEvent{
		Platform:          models.PlatformFareHarbor,
		PlatformBookingID: "FH-001",
		EventType:         models.EventModified,
		Fields:            &models.BookingPatch{PartySizeTotalDelta: intPtr(2)},
		OccurredAt:        baseTime.Add(time.Hour),
	}
	if _, err := e.ApplyEvent(ctx, delta, 12, "m2"); err != nil {
		t.Fatalf("delta: %v", err)
	}
	if got := f.booking(models.PlatformFareHarbor, "FH-001").PartySizeTotal; got != 6 {
		t.Errorf("party after one delta = %d, want 6", got)
	}

	// Deltas are cumulative: replaying the same change moves the total again.
	delta.OccurredAt = baseTime.Add(2 * time.Hour)
	if _, err := e.ApplyEvent(ctx, delta, 13, "m3"); err != nil {
		t.Fatalf("second delta: %v", err)
	}
	if got := f.booking(models.PlatformFareHarbor, "FH-001").PartySizeTotal; got != 8 {
		t.Errorf("party after second delta = %d, want 8", got)
	}
}

// TestApplyEvent_AbsolutePatchIdempotent verifies replaying an event with
// absolute fields leaves the booking unchanged.
func TestApplyEvent_AbsolutePatchIdempotent(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)
	ctx := context.Background()

	if _, err := e.ApplyEvent(ctx, createdEvent(4), 11, "m1"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := e.ApplyEvent(ctx, createdEvent(4), 11, "m1"); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	b := f.booking(models.PlatformFareHarbor, "FH-001")
	if b.PartySizeTotal != 4 {
		t.Errorf("party = %d, want 4 after replay", b.PartySizeTotal)
	}
	if b.Status != models.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", b.Status)
	}
	if len(f.events) != 2 {
		t.Errorf("events = %d, want one audit row per application", len(f.events))
	}
}

// TestApplyEvent_StaleEventSkipped verifies an event older than the last
// applied one does not touch booking state but is still audited.
func TestApplyEvent_StaleEventSkipped(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)
	ctx := context.Background()

	if _, err := e.ApplyEvent(ctx, createdEvent(4), 11, "m1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	late := &models.ParsedBookingEvent{
		Platform:          models.PlatformFareHarbor,
		PlatformBookingID: "FH-001",
		Status:            models.StatusCancelled,
		EventType:         models.EventCancelled,
		Fields:            &models.BookingPatch{PartySizeTotal: intPtr(99)},
		OccurredAt:        baseTime.Add(-time.Hour),
	}
	res, err := e.ApplyEvent(ctx, late, 12, "m2")
	if err != nil {
		t.Fatalf("stale apply: %v", err)
	}
	if !res.Stale {
		t.Error("Stale = false, want true")
	}

	b := f.booking(models.PlatformFareHarbor, "FH-001")
	if b.PartySizeTotal != 4 {
		t.Errorf("party = %d, want 4 (stale patch must not apply)", b.PartySizeTotal)
	}
	if b.Status != models.StatusConfirmed {
		t.Errorf("status = %q, want confirmed (stale cancel must not apply)", b.Status)
	}
	if b.LastEmailMessageID != "m1" {
		t.Errorf("last message = %q, want m1", b.LastEmailMessageID)
	}

	if len(f.events) != 2 {
		t.Fatalf("events = %d, want stale event still audited", len(f.events))
	}
	if !strings.Contains(f.events[1].ProcessingError, "stale") &&
		!strings.Contains(f.events[1].ProcessingError, "older") {
		t.Errorf("stale audit row error = %q, want skip marker", f.events[1].ProcessingError)
	}
}

// TestApplyEvent_CreateRaceFallsBackToUpdate verifies losing an insert race
// re-reads the winner's row and applies the event as an update.
func TestApplyEvent_CreateRaceFallsBackToUpdate(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)
	ctx := context.Background()

	if _, err := e.ApplyEvent(ctx, createdEvent(4), 11, "m1"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The next lookup misses, so the engine tries to insert, conflicts,
	// and must recover by re-reading.
	f.hideBookings = 1
	update := &models.ParsedBookingEvent{
		Platform:          models.PlatformFareHarbor,
		PlatformBookingID: "FH-001",
		EventType:         models.EventModified,
		Fields:            &models.BookingPatch{PartySizeTotal: intPtr(7)},
		OccurredAt:        baseTime.Add(time.Hour),
	}
	res, err := e.ApplyEvent(ctx, update, 12, "m2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created {
		t.Error("Created = true, want false after losing the race")
	}
	if n := len(f.bookings); n != 1 {
		t.Errorf("booking rows = %d, want 1", n)
	}
	if got := f.booking(models.PlatformFareHarbor, "FH-001").PartySizeTotal; got != 7 {
		t.Errorf("party = %d, want 7", got)
	}
}

// TestApplyAll_SpawnedEventsInOrder verifies the spawned events of a parse
// are applied after the main event, each with its own audit row.
func TestApplyAll_SpawnedEventsInOrder(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)
	ctx := context.Background()

	main := createdEvent(4)
	main.SpawnedEvents = []*models.ParsedBookingEvent{{
		Platform:          models.PlatformFareHarbor,
		PlatformBookingID: "FH-001",
		EventType:         models.EventAddonsUpdated,
		Addons: []models.AddonLine{
			{PlatformAddonID: "EXT-77", Name: "Party Hat", Quantity: 2, UnitPrice: 5, TotalPrice: 10},
		},
		OccurredAt: baseTime,
	}}

	results, err := e.ApplyAll(ctx, main, 11, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].Created || results[1].Created {
		t.Errorf("created flags = %v/%v, want true/false", results[0].Created, results[1].Created)
	}
	if len(f.events) != 2 {
		t.Fatalf("events = %d, want 2", len(f.events))
	}
	if f.events[0].EventType != models.EventCreated || f.events[1].EventType != models.EventAddonsUpdated {
		t.Errorf("event order = %q, %q", f.events[0].EventType, f.events[1].EventType)
	}
	if len(f.addons) != 1 {
		t.Errorf("addons = %d, want 1", len(f.addons))
	}
}

// TestApplyEvent_AddonUpsert verifies an add-on line keyed by its platform
// id is updated in place, not duplicated.
func TestApplyEvent_AddonUpsert(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)
	ctx := context.Background()

	first := createdEvent(4)
	first.Addons = []models.AddonLine{{PlatformAddonID: "EXT-77", Name: "Party Hat", Quantity: 2, TotalPrice: 10}}
	if _, err := e.ApplyEvent(ctx, first, 11, "m1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	second := &models.ParsedBookingEvent{
		Platform:          models.PlatformFareHarbor,
		PlatformBookingID: "FH-001",
		EventType:         models.EventAddonsUpdated,
		Addons:            []models.AddonLine{{PlatformAddonID: "EXT-77", Name: "Party Hat", Quantity: 4, TotalPrice: 20}},
		OccurredAt:        baseTime.Add(time.Hour),
	}
	if _, err := e.ApplyEvent(ctx, second, 12, "m2"); err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(f.addons) != 1 {
		t.Fatalf("addon rows = %d, want 1", len(f.addons))
	}
	for _, a := range f.addons {
		if a.Quantity != 4 || a.TotalPrice != 20 {
			t.Errorf("addon = %+v, want quantity 4", a)
		}
	}
}

// TestApplyEvent_UnclassifiedStillAudited verifies catch-all events create
// a booking shell and an audit row so no mail disappears silently.
func TestApplyEvent_UnclassifiedStillAudited(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)

	evt := &models.ParsedBookingEvent{
		Platform:          models.PlatformUnknown,
		PlatformBookingID: "msg-999",
		EventType:         models.EventUnclassified,
		Notes:             "unrecognized sender desk@example.org",
		OccurredAt:        baseTime,
	}
	res, err := e.ApplyEvent(context.Background(), evt, 21, "msg-999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Created {
		t.Error("Created = false, want true")
	}

	b := f.booking(models.PlatformUnknown, "msg-999")
	if b == nil {
		t.Fatal("booking shell not created")
	}
	if b.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", b.Status)
	}
	if b.Notes == "" {
		t.Error("notes empty, want sender context")
	}
	if len(f.events) != 1 {
		t.Errorf("events = %d, want 1", len(f.events))
	}
}

// TestApplyEvent_MissingKey verifies events without a platform key are
// rejected before touching storage.
func TestApplyEvent_MissingKey(t *testing.T) {
	f := newFakeStore()
	e := NewEngine(f)

	evt := &models.ParsedBookingEvent{EventType: models.EventCreated}
	if _, err := e.ApplyEvent(context.Background(), evt, 1, "m1"); err == nil {
		t.Fatal("expected error for event without platform booking key")
	}
	if len(f.events) != 0 {
		t.Errorf("events = %d, want 0", len(f.events))
	}
}
