package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

// =============================================================================
// BOOKINGS
// =============================================================================

// SaveBooking inserts the booking and its rooms in one transaction.
func (s *Store) SaveBooking(ctx context.Context, b hotel.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, reference, customer, contract_id, check_in, check_out, status, waitlisted, created_at, cancelled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(b.ID), nullString(b.Reference), nullString(b.Customer), string(b.ContractID),
		b.Stay.CheckIn.String(), b.Stay.CheckOut.String(), string(b.Status), b.Waitlisted,
		formatTime(b.CreatedAt), nullTime(b.CancelledAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: booking %s", generic.ErrDuplicateIdempotencyKey, b.ID)
	}
	if err != nil {
		return err
	}

	for _, r := range b.Rooms {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO booking_rooms (booking_id, rate_id, pool_key, quantity, occupancy, price_per_room, total_price, currency, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(b.ID), string(r.RateID), string(r.PoolKey), r.Quantity, string(r.Occupancy),
			r.PricePerRoom.Amount.String(), r.TotalPrice.Amount.String(), r.TotalPrice.Currency, string(r.Status),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetBooking(ctx context.Context, id generic.BookingID) (hotel.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanBooking(s.db.QueryRowContext(ctx, bookingSelect+" WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return hotel.Booking{}, fmt.Errorf("%w: booking %s", generic.ErrNotFound, id)
	}
	if err != nil {
		return hotel.Booking{}, err
	}
	b.Rooms, err = s.queryRooms(ctx, "WHERE booking_id = ?", string(id))
	return b, err
}

func (s *Store) ListBookings(ctx context.Context) ([]hotel.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, bookingSelect+" ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	var bookings []hotel.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bookings = append(bookings, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bookings {
		bookings[i].Rooms, err = s.queryRooms(ctx, "WHERE booking_id = ?", string(bookings[i].ID))
		if err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

// CancelBooking marks the booking and all its rooms cancelled.
func (s *Store) CancelBooking(ctx context.Context, id generic.BookingID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE bookings SET status = ?, cancelled_at = ? WHERE id = ?`,
		string(hotel.StatusCancelled), formatTime(at), string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: booking %s", generic.ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE booking_rooms SET status = ? WHERE booking_id = ?`,
		string(hotel.StatusCancelled), string(id)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListBookingRooms(ctx context.Context) ([]hotel.BookingRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRooms(ctx, "")
}

const bookingSelect = `SELECT id, reference, customer, contract_id, check_in, check_out, status, waitlisted, created_at, cancelled_at FROM bookings`

func scanBooking(row rowScanner) (hotel.Booking, error) {
	var b hotel.Booking
	var id, contractID, checkIn, checkOut, status, createdAt string
	var reference, customer, cancelledAt sql.NullString
	if err := row.Scan(&id, &reference, &customer, &contractID, &checkIn, &checkOut, &status, &b.Waitlisted, &createdAt, &cancelledAt); err != nil {
		return hotel.Booking{}, err
	}
	in, err := generic.ParseDate(checkIn)
	if err != nil {
		return hotel.Booking{}, err
	}
	out, err := generic.ParseDate(checkOut)
	if err != nil {
		return hotel.Booking{}, err
	}
	b.ID = generic.BookingID(id)
	b.Reference = reference.String
	b.Customer = customer.String
	b.ContractID = generic.ContractID(contractID)
	b.Stay = generic.Stay{CheckIn: in, CheckOut: out}
	b.Status = hotel.BookingStatus(status)
	b.CreatedAt = parseTime(createdAt)
	b.CancelledAt = parseNullTime(cancelledAt)
	return b, nil
}

func (s *Store) queryRooms(ctx context.Context, where string, args ...any) ([]hotel.BookingRoom, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT booking_id, rate_id, pool_key, quantity, occupancy, price_per_room, total_price, currency, status
		FROM booking_rooms `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []hotel.BookingRoom
	for rows.Next() {
		var r hotel.BookingRoom
		var bookingID, rateID, poolKey, occupancy, perRoom, total, currency, status string
		if err := rows.Scan(&bookingID, &rateID, &poolKey, &r.Quantity, &occupancy, &perRoom, &total, &currency, &status); err != nil {
			return nil, err
		}
		r.BookingID = generic.BookingID(bookingID)
		r.RateID = generic.RateID(rateID)
		r.PoolKey = generic.AllocationKey(poolKey)
		r.Occupancy = hotel.OccupancyType(occupancy)
		perRoomAmount, err := decimal.NewFromString(perRoom)
		if err != nil {
			return nil, fmt.Errorf("booking %s: price_per_room: %w", bookingID, err)
		}
		totalAmount, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("booking %s: total_price: %w", bookingID, err)
		}
		r.PricePerRoom = generic.NewMoneyFromDecimal(perRoomAmount, currency)
		r.TotalPrice = generic.NewMoneyFromDecimal(totalAmount, currency)
		r.Status = hotel.BookingStatus(status)
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}
