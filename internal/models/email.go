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

// Package models defines the data structures shared across the booking
// ingestion service.
package models

import (
	"html"
	"regexp"
	"strings"
	"time"
)

// RawMessage is one message fetched from the mailbox with its bodies decoded.
// Immutable once fetched; persisted only as a BookingEmail row.
type RawMessage struct {
	MessageID    string
	ThreadID     string
	HistoryID    uint64
	Subject      string
	Snippet      string
	From         string
	To           string
	Headers      map[string]string // keys lowercased at fetch time
	TextBody     string            // first text/plain leaf, decoded
	HTMLBody     string            // first text/html leaf, decoded
	ReceivedAt   time.Time         // sender Date header, zero if unparseable
	InternalDate time.Time         // upstream receive timestamp
	RawPayload   []byte            // full upstream payload for audit storage
}

// Header returns a header value by case-insensitive name.
func (m *RawMessage) Header(name string) string {
	return m.Headers[strings.ToLower(name)]
}

// ParserContext is the read-only view of a message handed to parsers.
// TextBody is always populated: the plain-text part when one exists,
// otherwise text derived from the HTML body. RawTextBody preserves the
// original plain-text part so parsers can tell the two apart.
type ParserContext struct {
	MessageID   string
	Subject     string
	Snippet     string
	From        string
	To          string
	Headers     map[string]string
	RawTextBody string
	TextBody    string
	HTMLBody    string
	ReceivedAt  time.Time
}

// Header returns a header value by case-insensitive name.
func (c *ParserContext) Header(name string) string {
	return c.Headers[strings.ToLower(name)]
}

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// htmlToText derives plain text from an HTML body: tags become spaces,
// &nbsp; becomes a space, remaining entities are decoded, whitespace runs
// collapse to single spaces and the result is trimmed.
func htmlToText(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NewParserContext builds the parser-facing view of a fetched message,
// applying the HTML fallback when the message carries no plain-text part.
func NewParserContext(m *RawMessage) *ParserContext {
	text := m.TextBody
	if strings.TrimSpace(text) == "" && m.HTMLBody != "" {
		text = htmlToText(m.HTMLBody)
	}
	received := m.InternalDate
	if received.IsZero() {
		received = m.ReceivedAt
	}
	return &ParserContext{
		MessageID:   m.MessageID,
		Subject:     m.Subject,
		Snippet:     m.Snippet,
		From:        m.From,
		To:          m.To,
		Headers:     m.Headers,
		RawTextBody: m.TextBody,
		TextBody:    text,
		HTMLBody:    m.HTMLBody,
		ReceivedAt:  received,
	}
}

// BookingEmail builds the persistable record for a fetched message.
func (m *RawMessage) BookingEmail() *BookingEmail {
	return &BookingEmail{
		MessageID:    m.MessageID,
		ThreadID:     m.ThreadID,
		HistoryID:    int64(m.HistoryID),
		FromAddress:  m.From,
		ToAddress:    m.To,
		Subject:      m.Subject,
		Snippet:      m.Snippet,
		Headers:      m.Headers,
		RawPayload:   m.RawPayload,
		TextBody:     m.TextBody,
		HTMLBody:     m.HTMLBody,
		ReceivedAt:   m.ReceivedAt,
		InternalDate: m.InternalDate,
	}
}

// BookingEmail is the persisted raw message record. MessageID is unique at
// the storage layer and is the at-most-once processing key. ProcessedAt is
// zero until the ingestion pipeline finishes with the message; a non-empty
// ProcessingError marks a message that failed parse or reconcile.
type BookingEmail struct {
	ID              int64
	MessageID       string
	ThreadID        string
	HistoryID       int64
	FromAddress     string
	ToAddress       string
	Subject         string
	Snippet         string
	Headers         map[string]string
	RawPayload      []byte
	TextBody        string
	HTMLBody        string
	ReceivedAt      time.Time
	InternalDate    time.Time
	FetchedAt       time.Time
	ProcessedAt     time.Time
	ProcessingError string
}

// RawMessage reconstructs the fetched form of a stored email so it can be
// re-parsed without another upstream fetch.
func (e *BookingEmail) RawMessage() *RawMessage {
	return &RawMessage{
		MessageID:    e.MessageID,
		ThreadID:     e.ThreadID,
		HistoryID:    uint64(e.HistoryID),
		Subject:      e.Subject,
		Snippet:      e.Snippet,
		From:         e.FromAddress,
		To:           e.ToAddress,
		Headers:      e.Headers,
		TextBody:     e.TextBody,
		HTMLBody:     e.HTMLBody,
		ReceivedAt:   e.ReceivedAt,
		InternalDate: e.InternalDate,
		RawPayload:   e.RawPayload,
	}
}
