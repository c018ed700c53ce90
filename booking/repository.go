package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

// Repository persists contracts, rates and bookings. It embeds the read
// side the hotel item type needs.
type Repository interface {
	hotel.Catalog

	SaveContract(ctx context.Context, c hotel.Contract) error
	ListContracts(ctx context.Context) ([]hotel.Contract, error)
	SaveRate(ctx context.Context, r hotel.Rate) error
	GetRate(ctx context.Context, id generic.RateID) (hotel.Rate, error)

	SaveBooking(ctx context.Context, b hotel.Booking) error
	GetBooking(ctx context.Context, id generic.BookingID) (hotel.Booking, error)
	ListBookings(ctx context.Context) ([]hotel.Booking, error)
	// CancelBooking marks the booking and its rooms cancelled.
	CancelBooking(ctx context.Context, id generic.BookingID, at time.Time) error
	// ListBookingRooms returns the rooms of every booking, any status.
	ListBookingRooms(ctx context.Context) ([]hotel.BookingRoom, error)
}

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu        sync.RWMutex
	contracts map[generic.ContractID]hotel.Contract
	rates     map[generic.RateID]hotel.Rate
	bookings  map[generic.BookingID]hotel.Booking
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		contracts: make(map[generic.ContractID]hotel.Contract),
		rates:     make(map[generic.RateID]hotel.Rate),
		bookings:  make(map[generic.BookingID]hotel.Booking),
	}
}

func (m *MemoryRepository) SaveContract(_ context.Context, c hotel.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = c
	return nil
}

func (m *MemoryRepository) GetContract(_ context.Context, id generic.ContractID) (hotel.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[id]
	if !ok {
		return hotel.Contract{}, fmt.Errorf("%w: contract %s", generic.ErrNotFound, id)
	}
	return c, nil
}

func (m *MemoryRepository) ListContracts(_ context.Context) ([]hotel.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hotel.Contract, 0, len(m.contracts))
	for _, c := range m.contracts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) SaveRate(_ context.Context, r hotel.Rate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[r.ID] = r
	return nil
}

func (m *MemoryRepository) GetRate(_ context.Context, id generic.RateID) (hotel.Rate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rates[id]
	if !ok {
		return hotel.Rate{}, fmt.Errorf("%w: rate %s", generic.ErrNotFound, id)
	}
	return r, nil
}

func (m *MemoryRepository) ListRates(_ context.Context, contractID generic.ContractID) ([]hotel.Rate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []hotel.Rate
	for _, r := range m.rates {
		if r.ContractID == contractID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) SaveBooking(_ context.Context, b hotel.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bookings[b.ID]; exists {
		return fmt.Errorf("%w: booking %s", generic.ErrDuplicateIdempotencyKey, b.ID)
	}
	b.Rooms = append([]hotel.BookingRoom(nil), b.Rooms...)
	m.bookings[b.ID] = b
	return nil
}

func (m *MemoryRepository) GetBooking(_ context.Context, id generic.BookingID) (hotel.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return hotel.Booking{}, fmt.Errorf("%w: booking %s", generic.ErrNotFound, id)
	}
	b.Rooms = append([]hotel.BookingRoom(nil), b.Rooms...)
	return b, nil
}

func (m *MemoryRepository) ListBookings(_ context.Context) ([]hotel.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hotel.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) CancelBooking(_ context.Context, id generic.BookingID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return fmt.Errorf("%w: booking %s", generic.ErrNotFound, id)
	}
	b.Status = hotel.StatusCancelled
	b.CancelledAt = &at
	rooms := make([]hotel.BookingRoom, len(b.Rooms))
	for i, r := range b.Rooms {
		r.Status = hotel.StatusCancelled
		rooms[i] = r
	}
	b.Rooms = rooms
	m.bookings[id] = b
	return nil
}

func (m *MemoryRepository) ListBookingRooms(_ context.Context) ([]hotel.BookingRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []hotel.BookingRoom
	for _, b := range m.bookings {
		out = append(out, b.Rooms...)
	}
	return out, nil
}
