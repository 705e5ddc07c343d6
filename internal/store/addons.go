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

package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

// UpsertAddon inserts or refreshes one add-on line. Lines carrying a
// platform add-on id are keyed on (booking_id, platform_addon_id); lines
// without one are keyed on (booking_id, name). Add-on rows are never
// deleted by ingestion, an absent line simply stops being updated.
func (q *queries) UpsertAddon(ctx context.Context, a *models.BookingAddon) error {
	if a.PlatformAddonID != "" {
		_, err := q.db.Exec(ctx, `
			INSERT INTO booking_addons
				(booking_id, source_event_id, platform_addon_id, name, quantity,
				 unit_price, total_price, currency, tax_amount, is_included, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (booking_id, platform_addon_id) WHERE platform_addon_id <> ''
			DO UPDATE SET
				source_event_id = EXCLUDED.source_event_id,
				name            = EXCLUDED.name,
				quantity        = EXCLUDED.quantity,
				unit_price      = EXCLUDED.unit_price,
				total_price     = EXCLUDED.total_price,
				currency        = EXCLUDED.currency,
				tax_amount      = EXCLUDED.tax_amount,
				is_included     = EXCLUDED.is_included,
				metadata        = EXCLUDED.metadata,
				updated_at      = NOW()
		`, a.BookingID, nullID(a.SourceEventID), a.PlatformAddonID, a.Name, a.Quantity,
			a.UnitPrice, a.TotalPrice, a.Currency, a.TaxAmount, a.IsIncluded, a.Metadata)
		return err
	}

	_, err := q.db.Exec(ctx, `
		INSERT INTO booking_addons
			(booking_id, source_event_id, platform_addon_id, name, quantity,
			 unit_price, total_price, currency, tax_amount, is_included, metadata)
		VALUES ($1, $2, '', $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (booking_id, name) WHERE platform_addon_id = ''
		DO UPDATE SET
			source_event_id = EXCLUDED.source_event_id,
			quantity        = EXCLUDED.quantity,
			unit_price      = EXCLUDED.unit_price,
			total_price     = EXCLUDED.total_price,
			currency        = EXCLUDED.currency,
			tax_amount      = EXCLUDED.tax_amount,
			is_included     = EXCLUDED.is_included,
			metadata        = EXCLUDED.metadata,
			updated_at      = NOW()
	`, a.BookingID, nullID(a.SourceEventID), a.Name, a.Quantity,
		a.UnitPrice, a.TotalPrice, a.Currency, a.TaxAmount, a.IsIncluded, a.Metadata)
	return err
}

// AddonsForBooking returns the add-on lines of a booking.
func (q *queries) AddonsForBooking(ctx context.Context, bookingID int64) ([]models.BookingAddon, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, booking_id, source_event_id, platform_addon_id, name,
		       quantity, unit_price, total_price, currency, tax_amount,
		       is_included, metadata, created_at, updated_at
		FROM booking_addons
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAddons(rows)
}

func collectAddons(rows pgx.Rows) ([]models.BookingAddon, error) {
	var addons []models.BookingAddon
	for rows.Next() {
		var a models.BookingAddon
		var sourceEventID *int64
		if err := rows.Scan(
			&a.ID, &a.BookingID, &sourceEventID, &a.PlatformAddonID, &a.Name,
			&a.Quantity, &a.UnitPrice, &a.TotalPrice, &a.Currency, &a.TaxAmount,
			&a.IsIncluded, &a.Metadata, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.SourceEventID = idOrZero(sourceEventID)
		addons = append(addons, a)
	}
	return addons, rows.Err()
}
