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
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pablo-dryfield/omni-lodge-ingestion/internal/models"
)

const bookingColumns = `id, platform, platform_booking_id, platform_order_id,
	       product_name, product_code, guest_name, guest_email, guest_phone,
	       party_size_total, party_size_adults, party_size_children,
	       experience_date, experience_start, experience_end,
	       base_amount, addons_amount, discount_amount, total_amount,
	       commission_amount, currency, status, payment_status,
	       attendance_status, checked_in_at, checked_in_count, notes,
	       last_email_message_id, last_event_occurred_at, status_changed_at,
	       created_at, updated_at`

// BookingForUpdate retrieves a booking by its platform key, locking the row
// for the remainder of the transaction. Returns nil when absent.
func (q *queries) BookingForUpdate(ctx context.Context, platform, platformBookingID string) (*models.Booking, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE platform = $1 AND platform_booking_id = $2
		FOR UPDATE
	`, platform, platformBookingID)
	return scanBooking(row)
}

// BookingByPlatformID retrieves a booking by its platform key without
// locking. Returns nil when absent.
func (q *queries) BookingByPlatformID(ctx context.Context, platform, platformBookingID string) (*models.Booking, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE platform = $1 AND platform_booking_id = $2
	`, platform, platformBookingID)
	return scanBooking(row)
}

// InsertBooking creates a booking row and returns its id. When a concurrent
// transaction created the same (platform, platform_booking_id) first, the
// insert is silently skipped and id 0 is returned; the caller re-reads with
// BookingForUpdate and applies its event as an update instead.
func (q *queries) InsertBooking(ctx context.Context, b *models.Booking) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO bookings
			(platform, platform_booking_id, platform_order_id, product_name,
			 product_code, guest_name, guest_email, guest_phone,
			 party_size_total, party_size_adults, party_size_children,
			 experience_date, experience_start, experience_end,
			 base_amount, addons_amount, discount_amount, total_amount,
			 commission_amount, currency, status, payment_status,
			 attendance_status, checked_in_at, checked_in_count, notes,
			 last_email_message_id, last_event_occurred_at, status_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26,
		        $27, $28, $29)
		ON CONFLICT (platform, platform_booking_id) DO NOTHING
		RETURNING id
	`, b.Platform, b.PlatformBookingID, b.PlatformOrderID, b.ProductName,
		b.ProductCode, b.GuestName, b.GuestEmail, b.GuestPhone,
		b.PartySizeTotal, b.PartySizeAdults, b.PartySizeChildren,
		nullTime(b.ExperienceDate), nullTime(b.ExperienceStart), nullTime(b.ExperienceEnd),
		b.BaseAmount, b.AddonsAmount, b.DiscountAmount, b.TotalAmount,
		b.CommissionAmount, b.Currency, b.Status, b.PaymentStatus,
		b.AttendanceStatus, nullTime(b.CheckedInAt), b.CheckedInCount, b.Notes,
		b.LastEmailMessageID, nullTime(b.LastEventOccurredAt), nullTime(b.StatusChangedAt)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateBooking writes the full mutable state of a booking row.
func (q *queries) UpdateBooking(ctx context.Context, b *models.Booking) error {
	_, err := q.db.Exec(ctx, `
		UPDATE bookings SET
			platform_order_id      = $1,
			product_name           = $2,
			product_code           = $3,
			guest_name             = $4,
			guest_email            = $5,
			guest_phone            = $6,
			party_size_total       = $7,
			party_size_adults      = $8,
			party_size_children    = $9,
			experience_date        = $10,
			experience_start       = $11,
			experience_end         = $12,
			base_amount            = $13,
			addons_amount          = $14,
			discount_amount        = $15,
			total_amount           = $16,
			commission_amount      = $17,
			currency               = $18,
			status                 = $19,
			payment_status         = $20,
			attendance_status      = $21,
			checked_in_at          = $22,
			checked_in_count       = $23,
			notes                  = $24,
			last_email_message_id  = $25,
			last_event_occurred_at = $26,
			status_changed_at      = $27,
			updated_at             = NOW()
		WHERE id = $28
	`, b.PlatformOrderID, b.ProductName, b.ProductCode, b.GuestName,
		b.GuestEmail, b.GuestPhone, b.PartySizeTotal, b.PartySizeAdults,
		b.PartySizeChildren, nullTime(b.ExperienceDate), nullTime(b.ExperienceStart),
		nullTime(b.ExperienceEnd), b.BaseAmount, b.AddonsAmount, b.DiscountAmount,
		b.TotalAmount, b.CommissionAmount, b.Currency, b.Status, b.PaymentStatus,
		b.AttendanceStatus, nullTime(b.CheckedInAt), b.CheckedInCount, b.Notes,
		b.LastEmailMessageID, nullTime(b.LastEventOccurredAt), nullTime(b.StatusChangedAt),
		b.ID)
	return err
}

// ListBookingsByDate returns bookings whose experience date falls inside
// [from, to), soonest first.
func (q *queries) ListBookingsByDate(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE experience_date >= $1 AND experience_date < $2
		ORDER BY experience_start, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	b, err := scanBookingValues(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func scanBookingValues(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	var expDate, expStart, expEnd, checkedInAt, lastOccurred, statusChanged *time.Time
	err := row.Scan(
		&b.ID, &b.Platform, &b.PlatformBookingID, &b.PlatformOrderID,
		&b.ProductName, &b.ProductCode, &b.GuestName, &b.GuestEmail, &b.GuestPhone,
		&b.PartySizeTotal, &b.PartySizeAdults, &b.PartySizeChildren,
		&expDate, &expStart, &expEnd,
		&b.BaseAmount, &b.AddonsAmount, &b.DiscountAmount, &b.TotalAmount,
		&b.CommissionAmount, &b.Currency, &b.Status, &b.PaymentStatus,
		&b.AttendanceStatus, &checkedInAt, &b.CheckedInCount, &b.Notes,
		&b.LastEmailMessageID, &lastOccurred, &statusChanged,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ExperienceDate = timeOrZero(expDate)
	b.ExperienceStart = timeOrZero(expStart)
	b.ExperienceEnd = timeOrZero(expEnd)
	b.CheckedInAt = timeOrZero(checkedInAt)
	b.LastEventOccurredAt = timeOrZero(lastOccurred)
	b.StatusChangedAt = timeOrZero(statusChanged)
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBookingValues(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}
