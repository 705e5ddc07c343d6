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

package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, func()) {
	t.Helper()
	ts := httptest.NewServer(handler)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(ts.URL),
		option.WithoutAuthentication(),
	)
	if err != nil {
		ts.Close()
		t.Fatalf("create test gmail service: %v", err)
	}
	return NewClient(svc, "me"), ts.Close
}

func b64url(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestListMessages_Pagination(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		resp := &gmail.ListMessagesResponse{ResultSizeEstimate: 3}
		switch r.URL.Query().Get("pageToken") {
		case "":
			resp.Messages = []*gmail.Message{{Id: "m1", ThreadId: "t1"}, {Id: "m2", ThreadId: "t2"}}
			resp.NextPageToken = "page2"
		case "page2":
			resp.Messages = []*gmail.Message{{Id: "m3", ThreadId: "t3"}}
		default:
			t.Errorf("unexpected pageToken %q", r.URL.Query().Get("pageToken"))
		}
		json.NewEncoder(w).Encode(resp)
	})

	client, closeFn := newTestClient(t, handler)
	defer closeFn()

	ctx := context.Background()
	first, err := client.ListMessages(ctx, "from:fareharbor.com", 2, "")
	if err != nil {
		t.Fatalf("ListMessages page 1: %v", err)
	}
	if len(first.Messages) != 2 {
		t.Errorf("page 1 returned %d messages, want 2", len(first.Messages))
	}
	if first.NextPageToken != "page2" {
		t.Errorf("NextPageToken = %q, want page2", first.NextPageToken)
	}

	second, err := client.ListMessages(ctx, "from:fareharbor.com", 2, first.NextPageToken)
	if err != nil {
		t.Fatalf("ListMessages page 2: %v", err)
	}
	if len(second.Messages) != 1 || second.Messages[0].ID != "m3" {
		t.Errorf("page 2 = %+v, want single m3", second.Messages)
	}
	if second.NextPageToken != "" {
		t.Errorf("final page NextPageToken = %q, want empty", second.NextPageToken)
	}
}

func TestFetchMessage_NestedMultipart(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m10",
		ThreadId:     "t10",
		HistoryId:    991,
		InternalDate: 1767384000000,
		Snippet:      "Booking confirmed",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "New booking #FH-1"},
				{Name: "From", Value: "FareHarbor <notify@fareharbor.com>"},
				{Name: "To", Value: "bookings@omnilodge.example"},
				{Name: "Date", Value: "Fri, 02 Jan 2026 20:00:00 +0100"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{
							MimeType: "text/plain",
							Body:     &gmail.MessagePartBody{Data: b64url("plain booking body")},
						},
						{
							MimeType: "text/html",
							Body:     &gmail.MessagePartBody{Data: b64url("<p>html booking body</p>")},
						},
					},
				},
				{
					MimeType: "application/pdf",
					Body:     &gmail.MessagePartBody{Data: b64url("%PDF-ignored")},
				},
			},
		},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages/m10") {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(msg)
	})

	client, closeFn := newTestClient(t, handler)
	defer closeFn()

	raw, err := client.FetchMessage(context.Background(), "m10")
	if err != nil {
		t.Fatalf("FetchMessage: %v", err)
	}
	if raw == nil {
		t.Fatal("FetchMessage returned nil for an existing message")
	}

	if raw.TextBody != "plain booking body" {
		t.Errorf("TextBody = %q", raw.TextBody)
	}
	if raw.HTMLBody != "<p>html booking body</p>" {
		t.Errorf("HTMLBody = %q", raw.HTMLBody)
	}
	if raw.Subject != "New booking #FH-1" {
		t.Errorf("Subject = %q", raw.Subject)
	}
	if raw.From != "FareHarbor <notify@fareharbor.com>" {
		t.Errorf("From = %q", raw.From)
	}
	if raw.HistoryID != 991 {
		t.Errorf("HistoryID = %d, want 991", raw.HistoryID)
	}
	if raw.InternalDate.IsZero() {
		t.Error("InternalDate not set from internalDate millis")
	}
	if raw.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not parsed from Date header")
	}
	if len(raw.RawPayload) == 0 {
		t.Error("RawPayload not captured for audit storage")
	}
	if got := raw.Header("SUBJECT"); got != "New booking #FH-1" {
		t.Errorf("case-insensitive header lookup = %q", got)
	}
}

func TestFetchMessage_FirstLeafWins(t *testing.T) {
	msg := &gmail.Message{
		Id: "m11",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("first")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("second")}},
			},
		},
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(msg)
	})

	client, closeFn := newTestClient(t, handler)
	defer closeFn()

	raw, err := client.FetchMessage(context.Background(), "m11")
	if err != nil {
		t.Fatalf("FetchMessage: %v", err)
	}
	if raw.TextBody != "first" {
		t.Errorf("TextBody = %q, want the first text/plain leaf", raw.TextBody)
	}
}

func TestFetchMessage_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	})

	client, closeFn := newTestClient(t, handler)
	defer closeFn()

	raw, err := client.FetchMessage(context.Background(), "gone")
	if err != nil {
		t.Fatalf("FetchMessage on 404 should not error, got %v", err)
	}
	if raw != nil {
		t.Errorf("FetchMessage on 404 = %+v, want nil", raw)
	}
}

func TestFetchMessage_ServerErrorPropagates(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client, closeFn := newTestClient(t, handler)
	defer closeFn()

	if _, err := client.FetchMessage(context.Background(), "m500"); err == nil {
		t.Error("transport errors must propagate, got nil")
	}
}

func TestDecodeBase64URL(t *testing.T) {
	got, err := decodeBase64URL("Pj4-Pz8_")
	if err != nil {
		t.Fatalf("decodeBase64URL: %v", err)
	}
	if string(got) != ">>>???" {
		t.Errorf("decoded %q, want >>>???", got)
	}

	// Already-padded standard alphabet input decodes too.
	got, err = decodeBase64URL(base64.StdEncoding.EncodeToString([]byte("abc")))
	if err != nil || string(got) != "abc" {
		t.Errorf("standard input decoded to %q (err %v), want abc", got, err)
	}
}

func TestDecodeCharset_ISO88592(t *testing.T) {
	// "Liczba osób" with ó encoded as iso-8859-2 0xF3.
	data := []byte("Liczba os\xf3b")
	got := decodeCharset(data, "iso-8859-2")
	if got != "Liczba osób" {
		t.Errorf("decodeCharset = %q, want %q", got, "Liczba osób")
	}
}

func TestParseHeaderDate(t *testing.T) {
	cases := []string{
		"Fri, 02 Jan 2026 20:00:00 +0100",
		"Fri, 2 Jan 2026 20:00:00 +0100",
		"Fri, 02 Jan 2026 19:00:00 GMT",
		"Fri, 02 Jan 2026 20:00:00 +0100 (CET)",
	}
	for _, c := range cases {
		if parseHeaderDate(c).IsZero() {
			t.Errorf("parseHeaderDate(%q) returned zero time", c)
		}
	}
	if !parseHeaderDate("not a date").IsZero() {
		t.Error("garbage date should produce the zero time")
	}
}
