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

import "github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"

// Dispatcher selects the first applicable parser from a fixed,
// priority-ordered list. Ordering is an invariant: the most specific
// platform signatures come first and the list always ends with the
// catch-all, which would shadow every other parser anywhere else.
type Dispatcher struct {
	parsers []Parser
}

// NewDispatcher builds a dispatcher over the given parser order.
func NewDispatcher(parsers ...Parser) *Dispatcher {
	if len(parsers) == 0 {
		panic("parsers: dispatcher needs at least one parser")
	}
	return &Dispatcher{parsers: parsers}
}

// Default returns the canonical parser ordering.
func Default() *Dispatcher {
	return NewDispatcher(
		NewFareHarbor(),
		NewGetYourGuide(),
		NewEcwid(),
		NewViator(),
		NewFreetour(),
		NewXperiencePoland(),
		NewAirbnb(),
		NewBasic(),
	)
}

// Select returns the first parser whose CanParse accepts the message. With
// the default ordering this never returns nil: the basic parser accepts
// everything.
func (d *Dispatcher) Select(pc *models.ParserContext) Parser {
	for _, p := range d.parsers {
		if p.CanParse(pc) {
			return p
		}
	}
	return nil
}
