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

var basicRef = regexp.MustCompile(`(?i)(?:booking|reservation|order|confirmation)(?:\s+(?:booking|reservation|order|confirmation))*\s*(?:number|no\.?|id|ref(?:erence)?)?\s*[#:]?\s*([A-Z0-9][A-Z0-9-]{3,})`)

// Basic is the catch-all parser. It claims every message so that mail no
// platform parser recognizes still produces an audit trail entry, keyed by
// whatever loose reference it can find or by the mailbox message id.
type Basic struct{}

// NewBasic creates the catch-all parser.
func NewBasic() *Basic {
	return &Basic{}
}

// Name returns the parser name.
func (p *Basic) Name() string { return "basic" }

// CanParse always reports true. Keep this parser last in the dispatch order.
func (p *Basic) CanParse(pc *models.ParserContext) bool {
	return true
}

// Parse builds an unclassified event. It never returns an error: a message
// with no recognizable reference is keyed by its mailbox message id so the
// audit row can still be written and tied back to the mail.
func (p *Basic) Parse(pc *models.ParserContext) (*models.ParsedBookingEvent, error) {
	ref := basicReference(pc.Subject)
	if ref == "" {
		ref = basicReference(pc.TextBody)
	}
	if ref == "" {
		ref = pc.MessageID
	}

	notes := fmt.Sprintf("unrecognized sender %s, subject %q", fromAddress(pc), strings.TrimSpace(pc.Subject))
	if snippet := strings.TrimSpace(pc.Snippet); snippet != "" {
		notes += ": " + snippet
	}

	return &models.ParsedBookingEvent{
		Platform:          models.PlatformUnknown,
		PlatformBookingID: ref,
		EventType:         models.EventUnclassified,
		Notes:             notes,
		OccurredAt:        pc.ReceivedAt,
		SourceReceivedAt:  pc.ReceivedAt,
	}, nil
}

// basicReference scans for a reference-looking token after a booking or
// order keyword. Candidates without a digit are dictionary words, not ids.
func basicReference(s string) string {
	for _, m := range basicRef.FindAllStringSubmatch(s, -1) {
		if strings.ContainsAny(m[1], "0123456789") {
			return m[1]
		}
	}
	return ""
}
