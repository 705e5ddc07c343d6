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

// Package admin exposes the daemon's operational HTTP surface: liveness
// and readiness probes, Prometheus metrics, a manual reprocess hook so
// the front desk can replay a single message without shell access, and
// read-only inspection endpoints for tracing what a mail did to a
// booking.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/ingest"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

// Reprocessor replays one message through the pipeline. Implemented by
// ingest.Runner.
type Reprocessor interface {
	ProcessMessage(ctx context.Context, messageID string, force bool) (*ingest.Result, error)
}

// Pinger reports backend liveness. Implemented by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reader is the read-only slice of the booking store behind the
// inspection endpoints. Implemented by store.Store.
type Reader interface {
	BookingByPlatformID(ctx context.Context, platform, platformBookingID string) (*models.Booking, error)
	EventsForBooking(ctx context.Context, bookingID int64) ([]models.BookingEvent, error)
	AddonsForBooking(ctx context.Context, bookingID int64) ([]models.BookingAddon, error)
	ListBookingsByDate(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	EventsForMessage(ctx context.Context, messageID string) ([]models.BookingEvent, error)
}

// Handler serves the admin endpoints.
type Handler struct {
	runner Reprocessor
	db     Pinger
	store  Reader
}

// NewHandler creates an admin handler. db may be nil; readiness then
// reports only that the process is up.
func NewHandler(runner Reprocessor, db Pinger, store Reader) *Handler {
	return &Handler{runner: runner, db: db, store: store}
}

// Mux builds the route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.ServeHealthz)
	mux.HandleFunc("/readyz", h.ServeReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/reprocess", h.ServeReprocess)
	mux.HandleFunc("/bookings", h.ServeBookings)
	mux.HandleFunc("/booking", h.ServeBooking)
	mux.HandleFunc("/message", h.ServeMessage)
	return mux
}

// ServeHealthz is the liveness probe.
func (h *Handler) ServeHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServeReadyz is the readiness probe; it checks the database.
func (h *Handler) ServeReadyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "db_not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reprocessRequest is the POST /reprocess body.
type reprocessRequest struct {
	MessageID string `json:"message_id"`
	Force     bool   `json:"force"`
}

// reprocessResponse reports what the replay did.
type reprocessResponse struct {
	MessageID string           `json:"message_id"`
	Processed int              `json:"processed"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Failures  []ingest.Failure `json:"failures,omitempty"`
}

// ServeReprocess replays one message through the pipeline.
func (h *Handler) ServeReprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}

	var req reprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.MessageID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message_id is required"})
		return
	}

	slog.Info("manual reprocess requested", "message_id", req.MessageID, "force", req.Force)

	res, err := h.runner.ProcessMessage(r.Context(), req.MessageID, req.Force)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "message not found"})
			return
		}
		slog.Error("manual reprocess failed", "message_id", req.MessageID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, reprocessResponse{
		MessageID: req.MessageID,
		Processed: res.Processed,
		Skipped:   res.Skipped,
		Failed:    res.Failed,
		Failures:  res.Failures,
	})
}

// eventView is the wire form of an audit row. The payload goes out as
// embedded JSON rather than base64 bytes.
type eventView struct {
	ID              int64           `json:"id"`
	BookingID       int64           `json:"booking_id,omitempty"`
	EmailID         int64           `json:"email_id,omitempty"`
	EventType       string          `json:"event_type"`
	Platform        string          `json:"platform,omitempty"`
	StatusAfter     string          `json:"status_after,omitempty"`
	EmailMessageID  string          `json:"email_message_id,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
	IngestedAt      time.Time       `json:"ingested_at"`
	ProcessedAt     time.Time       `json:"processed_at"`
	ProcessingError string          `json:"processing_error,omitempty"`
}

func eventViews(events []models.BookingEvent) []eventView {
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, eventView{
			ID:              ev.ID,
			BookingID:       ev.BookingID,
			EmailID:         ev.EmailID,
			EventType:       ev.EventType,
			Platform:        ev.Platform,
			StatusAfter:     ev.StatusAfter,
			EmailMessageID:  ev.EmailMessageID,
			Payload:         json.RawMessage(ev.EventPayload),
			OccurredAt:      ev.OccurredAt,
			IngestedAt:      ev.IngestedAt,
			ProcessedAt:     ev.ProcessedAt,
			ProcessingError: ev.ProcessingError,
		})
	}
	return views
}

// ServeBookings lists the manifest for one experience date.
func (h *Handler) ServeBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET only"})
		return
	}
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not configured"})
		return
	}

	day := r.URL.Query().Get("date")
	from, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	bookings, err := h.store.ListBookingsByDate(r.Context(), from, from.AddDate(0, 0, 1))
	if err != nil {
		slog.Error("list bookings failed", "date", day, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":     day,
		"count":    len(bookings),
		"bookings": bookings,
	})
}

// ServeBooking returns one booking with its audit trail and add-on lines.
func (h *Handler) ServeBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET only"})
		return
	}
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not configured"})
		return
	}

	platform := r.URL.Query().Get("platform")
	bookingID := r.URL.Query().Get("booking_id")
	if platform == "" || bookingID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "platform and booking_id are required"})
		return
	}

	b, err := h.store.BookingByPlatformID(r.Context(), platform, bookingID)
	if err != nil {
		slog.Error("booking lookup failed", "platform", platform, "booking_id", bookingID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if b == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
		return
	}

	events, err := h.store.EventsForBooking(r.Context(), b.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	addons, err := h.store.AddonsForBooking(r.Context(), b.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booking": b,
		"events":  eventViews(events),
		"addons":  addons,
	})
}

// ServeMessage returns every audit row one mailbox message produced, so
// an operator can see exactly what a mail changed.
func (h *Handler) ServeMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET only"})
		return
	}
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not configured"})
		return
	}

	messageID := r.URL.Query().Get("message_id")
	if messageID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message_id is required"})
		return
	}

	events, err := h.store.EventsForMessage(r.Context(), messageID)
	if err != nil {
		slog.Error("message events lookup failed", "message_id", messageID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": messageID,
		"count":      len(events),
		"events":     eventViews(events),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("write admin response", "error", err)
	}
}

// Serve starts the admin HTTP server on the given port. It binds the
// port immediately and signals readiness via the returned channel before
// starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler: handler.Mux(),
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind admin port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("admin server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("admin server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("admin server error", "error", err)
		}
	}()

	return ready, nil
}
