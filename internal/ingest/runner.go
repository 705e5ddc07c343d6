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

// Package ingest drives the mailbox-to-database pipeline: list matching
// messages, fetch and persist each one, parse it into booking events and
// reconcile those into booking rows. Parse and reconcile failures are
// per-message and recorded; transport and persistence failures abort the
// run so a broken upstream does not burn the whole listing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/mailbox"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/metrics"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/notify"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/parsers"
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/reconcile"
)

// ErrNotFound reports that the message no longer exists upstream and no
// stored copy is available to reparse.
var ErrNotFound = errors.New("message not found")

// Mailbox is the interface the runner needs to list and fetch messages.
// Implemented by mailbox.Client.
type Mailbox interface {
	ListMessages(ctx context.Context, query string, maxResults int64, pageToken string) (*mailbox.ListPage, error)
	FetchMessage(ctx context.Context, messageID string) (*models.RawMessage, error)
}

// EmailStore is the slice of the booking store the runner persists
// through. Implemented by store.Store.
type EmailStore interface {
	InsertEmail(ctx context.Context, e *models.BookingEmail) (int64, error)
	UpsertEmail(ctx context.Context, e *models.BookingEmail) (int64, error)
	EmailByMessageID(ctx context.Context, messageID string) (*models.BookingEmail, error)
	MarkEmailProcessed(ctx context.Context, emailID int64, procErr string) error
	ListPendingEmails(ctx context.Context, limit int) ([]models.BookingEmail, error)
	InsertEvent(ctx context.Context, ev *models.BookingEvent) (int64, error)
}

// Applier reconciles parsed events into bookings. Implemented by
// reconcile.Engine.
type Applier interface {
	ApplyAll(ctx context.Context, evt *models.ParsedBookingEvent, emailID int64, messageID string) ([]reconcile.Result, error)
}

// SeenFilter is the fast-path duplicate check. Implemented by dedup.Filter.
type SeenFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
}

// UpdatePublisher pushes booking-change envelopes for downstream
// consumers. Implemented by notify.Publisher.
type UpdatePublisher interface {
	PublishBookingUpdate(ctx context.Context, upd *notify.BookingUpdate) error
}

// Pipeline outcomes per message; also the metric label values.
const (
	resultProcessed = "processed"
	resultSkipped   = "skipped"
	resultFailed    = "failed"
)

// Result summarises one ingestion run.
type Result struct {
	Fetched   int
	Processed int
	Skipped   int
	Failed    int
	Pages     int
	Failures  []Failure
	Elapsed   time.Duration
}

// Failure records one message the pipeline could not process.
type Failure struct {
	MessageID string
	Reason    string
}

// BackfillRequest defines the scope of a historical ingestion run.
type BackfillRequest struct {
	Query     string
	After     time.Time // optional lower bound on received time
	Before    time.Time // optional upper bound on received time
	BatchSize int       // list page size, 0 = runner default
}

// Runner performs mailbox ingestion runs.
type Runner struct {
	mailbox   Mailbox
	store     EmailStore
	dispatch  *parsers.Dispatcher
	engine    Applier
	dedup     SeenFilter      // optional
	publisher UpdatePublisher // optional
	pageSize  int
	pageDelay time.Duration // delay between list pages to avoid throttling
}

// RunnerConfig holds dependencies for the runner. Dedup and Publisher
// may be nil; the pipeline then relies on the database gate alone and
// publishes nothing.
type RunnerConfig struct {
	Mailbox   Mailbox
	Store     EmailStore
	Dispatch  *parsers.Dispatcher
	Engine    Applier
	Dedup     SeenFilter
	Publisher UpdatePublisher
	PageSize  int
	PageDelay time.Duration
}

// NewRunner creates an ingestion runner.
func NewRunner(cfg RunnerConfig) *Runner {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	delay := cfg.PageDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	return &Runner{
		mailbox:   cfg.Mailbox,
		store:     cfg.Store,
		dispatch:  cfg.Dispatch,
		engine:    cfg.Engine,
		dedup:     cfg.Dedup,
		publisher: cfg.Publisher,
		pageSize:  pageSize,
		pageDelay: delay,
	}
}

// Run performs one incremental ingestion pass: recover messages a previous
// run left unfinished, then list the standing query bounded by the lookback
// window and push every new message through the pipeline.
func (r *Runner) Run(ctx context.Context, query string, lookback time.Duration) (*Result, error) {
	start := time.Now()

	recovered, err := r.RecoverPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover pending emails: %w", err)
	}
	if recovered > 0 {
		slog.Info("recovered unfinished emails", "count", recovered)
	}

	if lookback > 0 {
		query = fmt.Sprintf("%s after:%d", query, time.Now().UTC().Add(-lookback).Unix())
	}

	slog.Info("starting ingestion run", "query", query)

	res := &Result{}
	refs, pages, err := r.collectRefs(ctx, query, int64(r.pageSize))
	if err != nil {
		return nil, err
	}
	res.Pages = pages

	if err := r.processRefs(ctx, refs, false, res); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(start)
	slog.Info("ingestion run complete",
		"fetched", res.Fetched,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"pages", res.Pages,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// Backfill ingests the full set of messages matching an explicit query,
// optionally bounded by received-time dates.
func (r *Runner) Backfill(ctx context.Context, req BackfillRequest) (*Result, error) {
	start := time.Now()

	query := req.Query
	if !req.After.IsZero() {
		query = fmt.Sprintf("%s after:%d", query, req.After.Unix())
	}
	if !req.Before.IsZero() {
		query = fmt.Sprintf("%s before:%d", query, req.Before.Unix())
	}
	batch := int64(req.BatchSize)
	if batch <= 0 {
		batch = int64(r.pageSize)
	}

	slog.Info("starting backfill", "query", query, "batch_size", batch)

	res := &Result{}
	refs, pages, err := r.collectRefs(ctx, query, batch)
	if err != nil {
		return nil, err
	}
	res.Pages = pages

	if err := r.processRefs(ctx, refs, false, res); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(start)
	slog.Info("backfill complete",
		"fetched", res.Fetched,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"pages", res.Pages,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// collectRefs pages through the listing and returns every matching ref.
// The listing is newest-first; the collected run is reversed so events
// apply in the order the messages arrived.
func (r *Runner) collectRefs(ctx context.Context, query string, pageSize int64) ([]mailbox.MessageRef, int, error) {
	var refs []mailbox.MessageRef
	pages := 0

	for pageToken := ""; ; {
		// Rate limit between pages
		if pages > 0 {
			select {
			case <-ctx.Done():
				return nil, pages, ctx.Err()
			case <-time.After(r.pageDelay):
			}
		}

		page, err := r.mailbox.ListMessages(ctx, query, pageSize, pageToken)
		if err != nil {
			return nil, pages, fmt.Errorf("list page %d: %w", pages, err)
		}
		pages++
		refs = append(refs, page.Messages...)

		slog.Debug("listing page collected",
			"page", pages,
			"messages", len(page.Messages),
		)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	for i, j := 0, len(refs)-1; i < j; i, j = i+1, j-1 {
		refs[i], refs[j] = refs[j], refs[i]
	}
	return refs, pages, nil
}

// processRefs runs the per-message pipeline over a collected listing.
func (r *Runner) processRefs(ctx context.Context, refs []mailbox.MessageRef, force bool, res *Result) error {
	for _, ref := range refs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		out, err := r.processOne(ctx, ref.ID, force)
		if err != nil {
			return fmt.Errorf("process message %s: %w", ref.ID, err)
		}
		if out.Fetched {
			res.Fetched++
		}
		switch out.Result {
		case resultProcessed:
			res.Processed++
		case resultSkipped:
			res.Skipped++
		case resultFailed:
			res.Failed++
			res.Failures = append(res.Failures, Failure{MessageID: ref.ID, Reason: out.Reason})
		}
		metrics.IncMessageProcessed(out.Result)
	}
	return nil
}

// ProcessMessage runs the pipeline for a single message id. With force the
// dedup mark is cleared and the message is refetched, upserted and
// reapplied even if it was already processed. Returns ErrNotFound when the
// message is gone upstream and was never stored.
func (r *Runner) ProcessMessage(ctx context.Context, messageID string, force bool) (*Result, error) {
	res := &Result{}
	out, err := r.processOne(ctx, messageID, force)
	if err != nil {
		return nil, err
	}
	if out.Fetched {
		res.Fetched++
	}
	switch out.Result {
	case resultProcessed:
		res.Processed++
	case resultSkipped:
		res.Skipped++
	case resultFailed:
		res.Failed++
		res.Failures = append(res.Failures, Failure{MessageID: messageID, Reason: out.Reason})
	}
	metrics.IncMessageProcessed(out.Result)
	return res, nil
}

// messageOutcome classifies what the pipeline did with one message.
type messageOutcome struct {
	Result  string
	Reason  string
	Fetched bool
}

// processOne is the per-message pipeline: dedup gate, fetch, persist,
// parse, reconcile, mark. The returned error is fatal for the run;
// parse and reconcile problems come back as a failed outcome instead.
func (r *Runner) processOne(ctx context.Context, messageID string, force bool) (messageOutcome, error) {
	if force && r.dedup != nil {
		if err := r.dedup.Forget(ctx, messageID); err != nil {
			slog.Warn("dedup forget failed", "message_id", messageID, "error", err)
		}
	}

	// Fast path: skip mail a previous run already claimed.
	if !force && r.dedup != nil {
		isNew, err := r.dedup.IsNew(ctx, messageID)
		if err != nil {
			slog.Warn("dedup check failed", "message_id", messageID, "error", err)
		} else if !isNew {
			return messageOutcome{Result: resultSkipped, Reason: "already seen"}, nil
		}
	}

	// Authoritative gate: the stored row decides. A row without a
	// processed mark is a previous run's unfinished work, so it flows on
	// through the pipeline again.
	existing, err := r.store.EmailByMessageID(ctx, messageID)
	if err != nil {
		return messageOutcome{}, fmt.Errorf("look up stored email: %w", err)
	}
	if existing != nil && !force && !existing.ProcessedAt.IsZero() {
		return messageOutcome{Result: resultSkipped, Reason: "already processed"}, nil
	}

	raw, err := r.mailbox.FetchMessage(ctx, messageID)
	if err != nil {
		return messageOutcome{}, fmt.Errorf("fetch message: %w", err)
	}
	if raw == nil {
		if existing == nil {
			if force {
				return messageOutcome{}, ErrNotFound
			}
			slog.Warn("message vanished between list and fetch", "message_id", messageID)
			return messageOutcome{Result: resultSkipped, Reason: "gone upstream"}, nil
		}
		// The upstream copy is gone but we stored it; reparse that.
		slog.Warn("upstream copy gone, reparsing stored payload", "message_id", messageID)
		raw = existing.RawMessage()
	}

	var emailID int64
	if force || (existing != nil && existing.ProcessedAt.IsZero()) {
		emailID, err = r.store.UpsertEmail(ctx, raw.BookingEmail())
	} else {
		emailID, err = r.store.InsertEmail(ctx, raw.BookingEmail())
	}
	if err != nil {
		return messageOutcome{}, fmt.Errorf("persist email: %w", err)
	}

	out := r.processEmail(ctx, emailID, raw)
	out.Fetched = true
	return out, nil
}

// processEmail parses a persisted message and reconciles the resulting
// events. Failures are recorded on the email row and as a failure event
// so the message stays visible in the audit trail.
func (r *Runner) processEmail(ctx context.Context, emailID int64, raw *models.RawMessage) messageOutcome {
	pc := models.NewParserContext(raw)
	parser := r.dispatch.Select(pc)

	evt, err := parser.Parse(pc)
	if err != nil {
		r.recordFailure(ctx, emailID, raw, models.EventParseFailed, err)
		return messageOutcome{Result: resultFailed, Reason: fmt.Sprintf("parse (%s): %v", parser.Name(), err)}
	}
	if evt == nil {
		// Recognized format, nothing actionable in this message.
		if err := r.store.MarkEmailProcessed(ctx, emailID, ""); err != nil {
			slog.Warn("mark email processed failed", "message_id", raw.MessageID, "error", err)
		}
		return messageOutcome{Result: resultSkipped, Reason: "nothing actionable"}
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = pc.ReceivedAt
	}
	metrics.IncParsedEvent(parser.Name(), evt.EventType)

	applyStart := time.Now()
	results, err := r.engine.ApplyAll(ctx, evt, emailID, raw.MessageID)
	metrics.ObserveReconcile(evt.Platform, time.Since(applyStart))
	if err != nil {
		r.recordFailure(ctx, emailID, raw, evt.EventType, err)
		return messageOutcome{Result: resultFailed, Reason: fmt.Sprintf("reconcile: %v", err)}
	}
	for _, res := range results {
		if res.Stale {
			metrics.IncStaleSkip(evt.Platform)
		}
	}

	if err := r.store.MarkEmailProcessed(ctx, emailID, ""); err != nil {
		slog.Warn("mark email processed failed", "message_id", raw.MessageID, "error", err)
	}

	if r.publisher != nil && len(results) > 0 {
		upd := &notify.BookingUpdate{
			BookingID:         results[0].BookingID,
			Platform:          evt.Platform,
			PlatformBookingID: evt.PlatformBookingID,
			EventType:         evt.EventType,
			Status:            results[len(results)-1].StatusAfter,
			MessageID:         raw.MessageID,
			OccurredAt:        evt.OccurredAt,
		}
		if err := r.publisher.PublishBookingUpdate(ctx, upd); err != nil {
			// Best-effort: the booking state is already committed.
			slog.Warn("publish booking update failed", "message_id", raw.MessageID, "error", err)
		}
	}

	return messageOutcome{Result: resultProcessed}
}

// recordFailure appends a failure event row and marks the email so the
// message shows up in the audit trail instead of disappearing.
func (r *Runner) recordFailure(ctx context.Context, emailID int64, raw *models.RawMessage, eventType string, cause error) {
	slog.Error("message failed in pipeline",
		"message_id", raw.MessageID,
		"event_type", eventType,
		"error", cause,
	)

	now := time.Now().UTC()
	if _, err := r.store.InsertEvent(ctx, &models.BookingEvent{
		EmailID:         emailID,
		EventType:       eventType,
		EmailMessageID:  raw.MessageID,
		OccurredAt:      raw.InternalDate,
		ProcessedAt:     now,
		ProcessingError: cause.Error(),
	}); err != nil {
		slog.Warn("record failure event failed", "message_id", raw.MessageID, "error", err)
	}
	if err := r.store.MarkEmailProcessed(ctx, emailID, cause.Error()); err != nil {
		slog.Warn("mark email failed", "message_id", raw.MessageID, "error", err)
	}
}

// RecoverPending reprocesses stored emails that never finished the
// pipeline, typically after a crash between persist and reconcile.
func (r *Runner) RecoverPending(ctx context.Context) (int, error) {
	pending, err := r.store.ListPendingEmails(ctx, 500)
	if err != nil {
		return 0, fmt.Errorf("list pending emails: %w", err)
	}

	recovered := 0
	for i := range pending {
		e := &pending[i]
		out := r.processEmail(ctx, e.ID, e.RawMessage())
		metrics.IncMessageProcessed(out.Result)
		if out.Result == resultProcessed {
			recovered++
		} else {
			slog.Warn("pending email did not recover",
				"message_id", e.MessageID,
				"result", out.Result,
				"reason", out.Reason,
			)
		}
	}
	return recovered, nil
}
