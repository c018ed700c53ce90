// Package store provides CapacityStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/allocation-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory serializes every transaction behind one mutex, which is the
// in-process equivalent of locking the pool rows.
type Memory struct {
	mu           sync.RWMutex
	pools        map[generic.AllocationKey]generic.PoolCapacity
	reservations map[string]generic.Reservation
	byBooking    map[generic.BookingID][]string
}

func NewMemory() *Memory {
	return &Memory{
		pools:        make(map[generic.AllocationKey]generic.PoolCapacity),
		reservations: make(map[string]generic.Reservation),
		byBooking:    make(map[generic.BookingID][]string),
	}
}

// SavePool upserts static configuration and preserves counters.
func (m *Memory) SavePool(_ context.Context, pool generic.PoolCapacity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.pools[pool.Key]; ok {
		pool.CurrentBookings = existing.CurrentBookings
		pool.WaitlistSize = existing.WaitlistSize
		pool.Version = existing.Version
	}
	m.pools[pool.Key] = pool
	return nil
}

func (m *Memory) GetPool(_ context.Context, key generic.AllocationKey) (generic.PoolCapacity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pool, ok := m.pools[key]
	if !ok {
		return generic.PoolCapacity{}, generic.ErrPoolNotFound
	}
	return pool, nil
}

func (m *Memory) ListPools(_ context.Context) ([]generic.PoolCapacity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.PoolCapacity, 0, len(m.pools))
	for _, p := range m.pools {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(generic.CapacityTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	pools        map[generic.AllocationKey]generic.PoolCapacity
	reservations map[string]generic.Reservation
	byBooking    map[generic.BookingID][]string
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		pools:        make(map[generic.AllocationKey]generic.PoolCapacity, len(m.pools)),
		reservations: make(map[string]generic.Reservation, len(m.reservations)),
		byBooking:    make(map[generic.BookingID][]string, len(m.byBooking)),
	}
	for k, v := range m.pools {
		s.pools[k] = v
	}
	for k, v := range m.reservations {
		s.reservations[k] = v
	}
	for k, v := range m.byBooking {
		s.byBooking[k] = append([]string{}, v...)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.pools = s.pools
	m.reservations = s.reservations
	m.byBooking = s.byBooking
}

// =============================================================================
// TRANSACTIONAL VIEW - Caller already holds m.mu
// =============================================================================

type txView struct {
	parent *Memory
}

func (tv *txView) LockPool(_ context.Context, key generic.AllocationKey) (generic.PoolCapacity, error) {
	pool, ok := tv.parent.pools[key]
	if !ok {
		return generic.PoolCapacity{}, generic.ErrPoolNotFound
	}
	return pool, nil
}

func (tv *txView) UpdateCounters(_ context.Context, key generic.AllocationKey, currentBookings, waitlistSize int) error {
	pool, ok := tv.parent.pools[key]
	if !ok {
		return generic.ErrPoolNotFound
	}
	pool.CurrentBookings = currentBookings
	pool.WaitlistSize = waitlistSize
	pool.Version++
	tv.parent.pools[key] = pool
	return nil
}

func (tv *txView) Reservations(_ context.Context, bookingID generic.BookingID) ([]generic.Reservation, error) {
	ids := tv.parent.byBooking[bookingID]
	result := make([]generic.Reservation, 0, len(ids))
	for _, id := range ids {
		result = append(result, tv.parent.reservations[id])
	}
	return result, nil
}

func (tv *txView) InsertReservation(_ context.Context, r generic.Reservation) error {
	if _, exists := tv.parent.reservations[r.ID]; exists {
		return generic.ErrDuplicateIdempotencyKey
	}
	tv.parent.reservations[r.ID] = r
	tv.parent.byBooking[r.BookingID] = append(tv.parent.byBooking[r.BookingID], r.ID)
	return nil
}

func (tv *txView) TransitionReservation(_ context.Context, id string, from, to generic.ReservationState, at time.Time) (bool, error) {
	r, ok := tv.parent.reservations[id]
	if !ok {
		return false, generic.ErrNotFound
	}
	if r.State != from {
		return false, nil
	}
	r.State = to
	if to == generic.ReservationReleased {
		r.ReleasedAt = &at
	}
	tv.parent.reservations[id] = r
	return true, nil
}

func (tv *txView) SumHeld(_ context.Context, key generic.AllocationKey, state generic.ReservationState) (int, error) {
	total := 0
	for _, r := range tv.parent.reservations {
		if r.Key == key && r.State == state {
			total += r.Quantity
		}
	}
	return total, nil
}
