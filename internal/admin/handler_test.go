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

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/ingest"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

type mockReprocessor struct {
	lastID    string
	lastForce bool
	result    *ingest.Result
	err       error
}

func (m *mockReprocessor) ProcessMessage(_ context.Context, messageID string, force bool) (*ingest.Result, error) {
	m.lastID = messageID
	m.lastForce = force
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

// --- Mock Reader ---

type mockReader struct {
	bookings map[string]*models.Booking // keyed platform|platformBookingID
	byDate   []models.Booking
	events   map[int64][]models.BookingEvent
	addons   map[int64][]models.BookingAddon
	msgRows  map[string][]models.BookingEvent

	lastFrom time.Time
	lastTo   time.Time
}

func (m *mockReader) BookingByPlatformID(_ context.Context, platform, platformBookingID string) (*models.Booking, error) {
	return m.bookings[platform+"|"+platformBookingID], nil
}

func (m *mockReader) EventsForBooking(_ context.Context, bookingID int64) ([]models.BookingEvent, error) {
	return m.events[bookingID], nil
}

func (m *mockReader) AddonsForBooking(_ context.Context, bookingID int64) ([]models.BookingAddon, error) {
	return m.addons[bookingID], nil
}

func (m *mockReader) ListBookingsByDate(_ context.Context, from, to time.Time) ([]models.Booking, error) {
	m.lastFrom, m.lastTo = from, to
	return m.byDate, nil
}

func (m *mockReader) EventsForMessage(_ context.Context, messageID string) ([]models.BookingEvent, error) {
	return m.msgRows[messageID], nil
}

// TestServeHealthz verifies the liveness probe always reports ok.
func TestServeHealthz(t *testing.T) {
	h := NewHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHealthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %q, want ok status", rr.Body.String())
	}
}

// TestServeReadyz verifies readiness follows the database ping.
func TestServeReadyz(t *testing.T) {
	h := NewHandler(nil, &mockPinger{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	h.ServeReadyz(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	h = NewHandler(nil, &mockPinger{err: errors.New("connection refused")}, nil)
	rr = httptest.NewRecorder()
	h.ServeReadyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

// TestServeReprocess verifies a replay request reaches the runner and the
// outcome comes back as JSON.
func TestServeReprocess(t *testing.T) {
	mr := &mockReprocessor{result: &ingest.Result{Processed: 1}}
	h := NewHandler(mr, nil, nil)

	body := strings.NewReader(`{"message_id": "msg-42", "force": true}`)
	req := httptest.NewRequest(http.MethodPost, "/reprocess", body)
	rr := httptest.NewRecorder()
	h.ServeReprocess(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if mr.lastID != "msg-42" || !mr.lastForce {
		t.Errorf("runner got id=%q force=%v, want msg-42/true", mr.lastID, mr.lastForce)
	}

	var resp reprocessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Processed != 1 || resp.MessageID != "msg-42" {
		t.Errorf("response = %+v", resp)
	}
}

// TestServeReprocess_NotFound verifies the upstream-gone case maps to 404.
func TestServeReprocess_NotFound(t *testing.T) {
	mr := &mockReprocessor{err: ingest.ErrNotFound}
	h := NewHandler(mr, nil, nil)

	body := strings.NewReader(`{"message_id": "ghost"}`)
	req := httptest.NewRequest(http.MethodPost, "/reprocess", body)
	rr := httptest.NewRecorder()
	h.ServeReprocess(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// TestServeReprocess_BadRequest verifies input validation.
func TestServeReprocess_BadRequest(t *testing.T) {
	h := NewHandler(&mockReprocessor{}, nil, nil)

	// Wrong method
	rr := httptest.NewRecorder()
	h.ServeReprocess(rr, httptest.NewRequest(http.MethodGet, "/reprocess", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}

	// Missing message id
	rr = httptest.NewRecorder()
	h.ServeReprocess(rr, httptest.NewRequest(http.MethodPost, "/reprocess", strings.NewReader(`{}`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty id status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	// Invalid JSON
	rr = httptest.NewRecorder()
	h.ServeReprocess(rr, httptest.NewRequest(http.MethodPost, "/reprocess", strings.NewReader(`{nope`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// TestServeBookings verifies the daily manifest endpoint queries one full
// UTC day and returns the rows.
func TestServeBookings(t *testing.T) {
	store := &mockReader{byDate: []models.Booking{
		{ID: 1, Platform: "fareharbor", PlatformBookingID: "FH-1", Status: "confirmed"},
		{ID: 2, Platform: "airbnb", PlatformBookingID: "HM99XY", Status: "confirmed"},
	}}
	h := NewHandler(nil, nil, store)

	rr := httptest.NewRecorder()
	h.ServeBookings(rr, httptest.NewRequest(http.MethodGet, "/bookings?date=2026-08-22", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Count    int              `json:"count"`
		Bookings []models.Booking `json:"bookings"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Bookings) != 2 {
		t.Errorf("count = %d, bookings = %d, want 2/2", resp.Count, len(resp.Bookings))
	}

	wantFrom := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	if !store.lastFrom.Equal(wantFrom) || !store.lastTo.Equal(wantFrom.AddDate(0, 0, 1)) {
		t.Errorf("queried [%v, %v), want [%v, %v)", store.lastFrom, store.lastTo, wantFrom, wantFrom.AddDate(0, 0, 1))
	}
}

// TestServeBookings_BadDate verifies date validation.
func TestServeBookings_BadDate(t *testing.T) {
	h := NewHandler(nil, nil, &mockReader{})

	for _, raw := range []string{"", "yesterday", "22-08-2026"} {
		rr := httptest.NewRecorder()
		h.ServeBookings(rr, httptest.NewRequest(http.MethodGet, "/bookings?date="+raw, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("date %q: status = %d, want %d", raw, rr.Code, http.StatusBadRequest)
		}
	}
}

// TestServeBooking verifies the detail endpoint composes the booking with
// its audit trail and add-ons.
func TestServeBooking(t *testing.T) {
	store := &mockReader{
		bookings: map[string]*models.Booking{
			"viator|BR-123": {ID: 7, Platform: "viator", PlatformBookingID: "BR-123", Status: "confirmed"},
		},
		events: map[int64][]models.BookingEvent{
			7: {{ID: 1, BookingID: 7, EventType: "created", EventPayload: []byte(`{"platform":"viator"}`)}},
		},
		addons: map[int64][]models.BookingAddon{
			7: {{ID: 3, BookingID: 7, Name: "Lunch", Quantity: 2}},
		},
	}
	h := NewHandler(nil, nil, store)

	rr := httptest.NewRecorder()
	h.ServeBooking(rr, httptest.NewRequest(http.MethodGet, "/booking?platform=viator&booking_id=BR-123", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Booking models.Booking        `json:"booking"`
		Events  []eventView           `json:"events"`
		Addons  []models.BookingAddon `json:"addons"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Booking.ID != 7 {
		t.Errorf("booking id = %d, want 7", resp.Booking.ID)
	}
	if len(resp.Events) != 1 || !strings.Contains(string(resp.Events[0].Payload), "viator") {
		t.Errorf("events = %+v, want one with inline payload", resp.Events)
	}
	if len(resp.Addons) != 1 || resp.Addons[0].Name != "Lunch" {
		t.Errorf("addons = %+v, want Lunch line", resp.Addons)
	}
}

// TestServeBooking_NotFound verifies unknown keys map to 404 and missing
// parameters to 400.
func TestServeBooking_NotFound(t *testing.T) {
	h := NewHandler(nil, nil, &mockReader{})

	rr := httptest.NewRecorder()
	h.ServeBooking(rr, httptest.NewRequest(http.MethodGet, "/booking?platform=viator&booking_id=BR-999", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = httptest.NewRecorder()
	h.ServeBooking(rr, httptest.NewRequest(http.MethodGet, "/booking?platform=viator", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing booking_id: status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// TestServeMessage verifies the per-message audit listing, including the
// empty case for ids that never produced events.
func TestServeMessage(t *testing.T) {
	store := &mockReader{msgRows: map[string][]models.BookingEvent{
		"m1": {
			{ID: 1, EventType: "created", EmailMessageID: "m1"},
			{ID: 2, EventType: "addons_updated", EmailMessageID: "m1"},
		},
	}}
	h := NewHandler(nil, nil, store)

	rr := httptest.NewRecorder()
	h.ServeMessage(rr, httptest.NewRequest(http.MethodGet, "/message?message_id=m1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Count  int         `json:"count"`
		Events []eventView `json:"events"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Events) != 2 {
		t.Errorf("count = %d, events = %d, want 2/2", resp.Count, len(resp.Events))
	}

	rr = httptest.NewRecorder()
	h.ServeMessage(rr, httptest.NewRequest(http.MethodGet, "/message?message_id=never-seen", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown id status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"count":0`) {
		t.Errorf("body = %q, want zero count", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeMessage(rr, httptest.NewRequest(http.MethodGet, "/message", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing id status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
