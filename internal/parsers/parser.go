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

// Package parsers extracts structured booking events from platform emails.
// Each parser owns its platform's field formats (date layouts, currency
// symbols, locale decimal separators); the dispatcher tries parsers in a
// fixed priority order with the catch-all last.
package parsers

import (
	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

// Parser is one platform-specific extraction strategy.
//
// CanParse is a fast, side-effect-free signature check (sender domain,
// subject pattern). Parse does pure text analysis and returns the normalized
// event; (nil, nil) means the format was recognized but the message carries
// nothing actionable, which is distinct from CanParse returning false.
type Parser interface {
	Name() string
	CanParse(pc *models.ParserContext) bool
	Parse(pc *models.ParserContext) (*models.ParsedBookingEvent, error)
}
