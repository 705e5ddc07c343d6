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
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

// firstMatch returns the first capture group of the first match, trimmed.
func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// firstInt returns the first integer found in s, or 0.
var intPattern = regexp.MustCompile(`-?\d+`)

func firstInt(s string) int {
	m := intPattern.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// fromAddress extracts the lowercased address part of a From header,
// tolerating both "Name <addr>" and bare-address forms.
func fromAddress(pc *models.ParserContext) string {
	if a, err := mail.ParseAddress(pc.From); err == nil {
		return strings.ToLower(a.Address)
	}
	return strings.ToLower(strings.TrimSpace(pc.From))
}

// fromDomainIs reports whether the sender address belongs to the domain or
// one of its subdomains.
func fromDomainIs(pc *models.ParserContext, domain string) bool {
	addr := fromAddress(pc)
	return strings.HasSuffix(addr, "@"+domain) || strings.HasSuffix(addr, "."+domain)
}

// containsAny reports whether s contains any of the needles. Callers pass s
// already lowercased.
func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

var amountPattern = regexp.MustCompile(`\d+(?:[ .,]\d{3})*(?:[.,]\d{1,2})?`)

// parseAmount parses a numeric amount out of s, handling both decimal-point
// and decimal-comma locales ("1,200.50", "400,00", "1 200,00").
func parseAmount(s string) float64 {
	m := amountPattern.FindString(s)
	if m == "" {
		return 0
	}
	m = strings.ReplaceAll(m, " ", "")

	lastComma := strings.LastIndex(m, ",")
	lastDot := strings.LastIndex(m, ".")
	if lastComma > lastDot {
		frac := m[lastComma+1:]
		if lastDot == -1 && len(frac) == 3 {
			// "1,200" is a thousands separator, not cents.
			m = strings.ReplaceAll(m, ",", "")
		} else {
			m = strings.ReplaceAll(m[:lastComma], ".", "") + "." + frac
			m = strings.ReplaceAll(m, ",", "")
		}
	} else {
		m = strings.ReplaceAll(m, ",", "")
	}

	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseMoney extracts an amount and an ISO currency code from strings like
// "$120.00 USD", "€45,50", "400,00 zł" or "1 200.00 PLN".
func parseMoney(s string) (float64, string) {
	currency := ""
	upper := strings.ToUpper(s)
	switch {
	case strings.Contains(s, "zł") || strings.Contains(upper, "PLN"):
		currency = "PLN"
	case strings.ContainsRune(s, '€') || strings.Contains(upper, "EUR"):
		currency = "EUR"
	case strings.ContainsRune(s, '£') || strings.Contains(upper, "GBP"):
		currency = "GBP"
	case strings.ContainsRune(s, '$') || strings.Contains(upper, "USD"):
		currency = "USD"
	}
	return parseAmount(s), currency
}

// tryParseDate parses s against the layouts in order, first hit wins.
// Returns the zero time when nothing matches.
func tryParseDate(s string, layouts []string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// atTime combines a calendar date with a clock time parsed from clock
// ("8:00 PM", "15:04"). Returns the date unchanged when the clock does not
// parse.
func atTime(date time.Time, clock string) time.Time {
	clock = strings.TrimSpace(clock)
	for _, layout := range []string{"3:04 PM", "3:04PM", "15:04"} {
		if t, err := time.Parse(layout, clock); err == nil {
			return time.Date(date.Year(), date.Month(), date.Day(),
				t.Hour(), t.Minute(), 0, 0, date.Location())
		}
	}
	return date
}
