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
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"mime"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

// rawMessageFromGmail maps an API message into the canonical RawMessage,
// decoding the first text/plain and text/html leaf parts.
func rawMessageFromGmail(msg *gmail.Message) (*models.RawMessage, error) {
	raw := &models.RawMessage{
		MessageID: msg.Id,
		ThreadID:  msg.ThreadId,
		HistoryID: msg.HistoryId,
		Snippet:   msg.Snippet,
		Headers:   map[string]string{},
	}
	if msg.InternalDate > 0 {
		raw.InternalDate = time.UnixMilli(msg.InternalDate).UTC()
	}

	if msg.Payload != nil {
		raw.Headers = headerMap(msg.Payload.Headers)
		raw.Subject = raw.Header("subject")
		raw.From = raw.Header("from")
		raw.To = raw.Header("to")
		if d := raw.Header("date"); d != "" {
			raw.ReceivedAt = parseHeaderDate(d)
		}
		raw.TextBody, raw.HTMLBody = extractBodies(msg.Payload)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	raw.RawPayload = payload

	return raw, nil
}

// headerMap lowercases header names. The first occurrence of a repeated
// header wins.
func headerMap(headers []*gmail.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		key := strings.ToLower(h.Name)
		if _, ok := m[key]; !ok {
			m[key] = h.Value
		}
	}
	return m
}

// extractBodies walks the part tree depth-first with an explicit stack,
// collecting the first text/plain and first text/html leaves. Iteration
// instead of recursion bounds stack depth for pathological nesting.
func extractBodies(root *gmail.MessagePart) (textBody, htmlBody string) {
	stack := []*gmail.MessagePart{root}
	for len(stack) > 0 {
		part := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if part == nil {
			continue
		}

		if len(part.Parts) > 0 {
			// Push children reversed so the leftmost child is visited next.
			for i := len(part.Parts) - 1; i >= 0; i-- {
				stack = append(stack, part.Parts[i])
			}
			continue
		}

		if part.Body == nil || part.Body.Data == "" {
			continue
		}
		switch {
		case strings.EqualFold(part.MimeType, "text/plain") && textBody == "":
			textBody = decodePartBody(part)
		case strings.EqualFold(part.MimeType, "text/html") && htmlBody == "":
			htmlBody = decodePartBody(part)
		}
		if textBody != "" && htmlBody != "" {
			return textBody, htmlBody
		}
	}
	return textBody, htmlBody
}

func decodePartBody(part *gmail.MessagePart) string {
	data, err := decodeBase64URL(part.Body.Data)
	if err != nil {
		slog.Warn("undecodable message part body",
			"mime_type", part.MimeType,
			"error", err,
		)
		return ""
	}
	return decodeCharset(data, partCharset(part))
}

// decodeBase64URL decodes the API's url-safe base64 body encoding: translate
// the url-safe alphabet back to standard, re-pad, decode.
func decodeBase64URL(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}
	return base64.StdEncoding.DecodeString(s)
}

// partCharset reads the charset parameter from a part's Content-Type header.
func partCharset(part *gmail.MessagePart) string {
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, "Content-Type") {
			if _, params, err := mime.ParseMediaType(h.Value); err == nil {
				return params["charset"]
			}
			return ""
		}
	}
	return ""
}

// decodeCharset transcodes legacy single-byte charsets to UTF-8. Polish
// suppliers still send iso-8859-2 and windows-1250 bodies.
func decodeCharset(data []byte, charset string) string {
	var dec *charmap.Charmap
	switch strings.ToLower(charset) {
	case "", "utf-8", "us-ascii":
		return string(data)
	case "iso-8859-1", "latin1":
		dec = charmap.ISO8859_1
	case "iso-8859-2", "latin2":
		dec = charmap.ISO8859_2
	case "windows-1250", "cp1250":
		dec = charmap.Windows1250
	case "windows-1252", "cp1252":
		dec = charmap.Windows1252
	default:
		return string(data)
	}

	out, _, err := transform.Bytes(dec.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// Layouts seen in the Date headers of real booking mail.
var headerDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
}

// parseHeaderDate parses an RFC 5322 Date header, tolerating a trailing
// "(MST)" style comment. Returns the zero time when nothing matches.
func parseHeaderDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range headerDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
