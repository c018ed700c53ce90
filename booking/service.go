/*
Package booking orchestrates the two-phase booking flow.

PURPOSE:
  Quoting and committing are separate phases. A quote is a read-only,
  unsynchronized price and availability check. Commit re-validates capacity
  inside the ledger's atomic reserve, so two customers holding quotes for
  the last room cannot both get it.

FLOW:
  Quote(request)
    -> registry: item type for the request kind
    -> AllocationStrategy.ResolvePool   (exactly one pool or config error)
    -> PricingStrategy.Price            (nights check, shoulder rates, breakdown)
    -> ledger pool entry                (available / waitlistable)
    -> QuoteStore.Put(ttl)

  Commit(quote ids)
    -> QuoteStore.Take                  (missing, expired or taken -> StaleQuote)
    -> AllocationLedger.Reserve         (all-or-nothing, fails closed)
    -> Repository.SaveBooking           (compensating Release on failure)
  A commit that fails puts its quotes back for the rest of their TTL.
    -> Publisher: booking.confirmed

  Cancel(booking id)
    -> AllocationLedger.Release         (idempotent)
    -> Repository.CancelBooking
    -> Publisher: booking.cancelled
  Unknown or already-cancelled bookings are a no-op.

SOURCE OF TRUTH:
  The stored ledger counter decides admission. Scanning booking rooms is
  only used by Reconcile to audit the ledger.

SEE ALSO:
  - generic/ledger.go: Reserve / Release
  - hotel/strategy.go: The hotel item type
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

// DefaultQuoteTTL applies when Config.QuoteTTL is zero.
const DefaultQuoteTTL = 15 * time.Minute

type Config struct {
	QuoteTTL       time.Duration
	ShoulderPolicy hotel.ShoulderPolicy
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

type QuoteRequest struct {
	Kind        generic.ItemKind
	ContractID  generic.ContractID
	RoomGroupID generic.RoomGroupID
	Occupancy   hotel.OccupancyType
	BoardType   hotel.BoardType
	Stay        generic.Stay
	Quantity    int

	// BoardCost is the board cost per room per night, used only when the
	// rate has no board included.
	BoardCost *decimal.Decimal
}

// Quote is an issued, committable price for one room line.
type Quote struct {
	ID           generic.QuoteID       `json:"id"`
	Kind         generic.ItemKind      `json:"kind"`
	ContractID   generic.ContractID    `json:"contract_id"`
	RoomGroupID  generic.RoomGroupID   `json:"room_group_id"`
	RateID       generic.RateID        `json:"rate_id"`
	Occupancy    hotel.OccupancyType   `json:"occupancy"`
	BoardType    hotel.BoardType       `json:"board_type"`
	Stay         generic.Stay          `json:"stay"`
	Quantity     int                   `json:"quantity"`
	PoolKey      generic.AllocationKey `json:"pool_key"`
	Available    bool                  `json:"available"`
	Waitlistable bool                  `json:"waitlistable"`
	Remaining    int                   `json:"remaining"`
	Nights       int                   `json:"nights"`
	Currency     string                `json:"currency"`
	Nightly      []hotel.NightlyRate   `json:"nightly"`
	PerRoom      hotel.Breakdown       `json:"per_room"`
	Total        hotel.Breakdown       `json:"total"`
	CreatedAt    time.Time             `json:"created_at"`
	ExpiresAt    time.Time             `json:"expires_at"`
}

type CommitRequest struct {
	QuoteIDs      []generic.QuoteID
	Customer      string
	Reference     string
	AllowWaitlist bool
}

type CommitResult struct {
	Booking    hotel.Booking
	Quotes     []Quote
	Waitlisted bool
	Total      generic.Money
}

type CancelResult struct {
	BookingID generic.BookingID
	Cancelled bool // false when nothing changed
	Released  int
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	repo     Repository
	ledger   generic.AllocationLedger
	quotes   QuoteStore
	events   Publisher
	registry *generic.Registry
	log      *slog.Logger
	ttl      time.Duration

	Now func() time.Time
}

// NewService wires the hotel item type into a fresh registry. Nil quotes,
// events or logger fall back to in-memory, no-op and slog.Default.
func NewService(repo Repository, ledger generic.AllocationLedger, quotes QuoteStore, events Publisher, logger *slog.Logger, cfg Config) *Service {
	if quotes == nil {
		quotes = NewMemoryQuoteStore()
	}
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.QuoteTTL
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	registry := generic.NewRegistry()
	registry.Register(hotel.NewItemType(repo, cfg.ShoulderPolicy))

	return &Service{
		repo:     repo,
		ledger:   ledger,
		quotes:   quotes,
		events:   events,
		registry: registry,
		log:      logger,
		ttl:      ttl,
		Now:      time.Now,
	}
}

func (s *Service) now() time.Time { return s.Now().UTC() }

// Registry exposes the item-type registry so other kinds can be added.
func (s *Service) Registry() *generic.Registry { return s.registry }

// RegisterContract validates and stores a contract with its rates, then
// registers one ledger pool per allocation. An allocation that names an
// existing explicit pool attaches to it without changing its capacity.
func (s *Service) RegisterContract(ctx context.Context, c hotel.Contract, rates []hotel.Rate) ([]generic.PoolStatus, error) {
	if err := hotel.ValidateAllocations(c); err != nil {
		return nil, err
	}
	for _, r := range rates {
		if r.ContractID != c.ID {
			return nil, fmt.Errorf("%w: rate %s belongs to contract %s", generic.ErrInvalidAllocationConfig, r.ID, r.ContractID)
		}
		if _, err := hotel.FindAllocation(c, r.RoomGroupID); err != nil {
			return nil, fmt.Errorf("rate %s: %w", r.ID, err)
		}
	}

	if err := s.repo.SaveContract(ctx, c); err != nil {
		return nil, fmt.Errorf("save contract %s: %w", c.ID, err)
	}
	for _, r := range rates {
		if err := s.repo.SaveRate(ctx, r); err != nil {
			return nil, fmt.Errorf("save rate %s: %w", r.ID, err)
		}
	}

	statuses := make([]generic.PoolStatus, 0, len(c.RoomAllocations))
	for _, a := range c.RoomAllocations {
		pool := a.PoolCapacity(c.ID)
		if a.AllocationPoolID != "" {
			existing, err := s.ledger.Pool(ctx, pool.Key)
			if err == nil {
				statuses = append(statuses, generic.StatusOf(existing))
				continue
			}
			if !errors.Is(err, generic.ErrPoolNotFound) {
				return nil, err
			}
		}
		registered, err := s.ledger.Register(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("register pool for contract %s: %w", c.ID, err)
		}
		statuses = append(statuses, generic.StatusOf(registered))
	}

	s.log.Info("contract registered", "contract_id", c.ID, "pools", len(statuses), "rates", len(rates))
	return statuses, nil
}

// RegisterPool creates or reconfigures a pool directly, e.g. a manual
// block shared by several contracts.
func (s *Service) RegisterPool(ctx context.Context, pool generic.PoolCapacity) (generic.PoolStatus, error) {
	p, err := s.ledger.Register(ctx, pool)
	if err != nil {
		return generic.PoolStatus{}, err
	}
	s.log.Info("pool registered", "pool_key", p.Key, "capacity", p.TotalCapacity)
	return generic.StatusOf(p), nil
}

// Quote prices a request and records it for a later Commit. An
// unavailable request still yields a quote with Available=false.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	kind := req.Kind
	if kind == "" {
		kind = generic.KindHotel
	}
	it, err := s.registry.Lookup(kind)
	if err != nil {
		return Quote{}, err
	}
	if req.Quantity <= 0 {
		return Quote{}, fmt.Errorf("%w: quantity must be positive", generic.ErrInvalidQuantity)
	}

	item := generic.ItemRequest{
		Kind:       kind,
		ContractID: req.ContractID,
		Category:   req.RoomGroupID,
		Variant:    string(req.Occupancy),
		Option:     string(req.BoardType),
		Stay:       req.Stay,
		Quantity:   req.Quantity,

		ExtraCostPerUnit: req.BoardCost,
	}
	key, err := it.Allocation().ResolvePool(ctx, item)
	if err != nil {
		return Quote{}, err
	}
	priced, err := it.Pricing().Price(ctx, item)
	if err != nil {
		return Quote{}, err
	}
	detail, ok := priced.Detail.(hotel.Quote)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s pricing detail", generic.ErrUnsupportedItemType, kind)
	}

	pool, err := s.ledger.Pool(ctx, key)
	if err != nil {
		if errors.Is(err, generic.ErrPoolNotFound) {
			return Quote{}, fmt.Errorf("%w: contract %s has no registered pool %s", generic.ErrInvalidAllocationConfig, req.ContractID, key)
		}
		return Quote{}, err
	}

	now := s.now()
	q := Quote{
		ID:           generic.QuoteID(uuid.NewString()),
		Kind:         kind,
		ContractID:   req.ContractID,
		RoomGroupID:  req.RoomGroupID,
		RateID:       detail.RateID,
		Occupancy:    req.Occupancy,
		BoardType:    req.BoardType,
		Stay:         req.Stay,
		Quantity:     req.Quantity,
		PoolKey:      key,
		Available:    pool.CanAdmit(req.Quantity),
		Waitlistable: pool.CanWaitlist(req.Quantity),
		Remaining:    pool.MaxSellable(),
		Nights:       detail.PerRoom.Nights,
		Currency:     priced.Currency,
		Nightly:      detail.Nightly,
		PerRoom:      detail.PerRoom,
		Total:        detail.Total,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.quotes.Put(ctx, q, s.ttl); err != nil {
		return Quote{}, err
	}

	s.log.Debug("quote issued", "quote_id", q.ID, "pool_key", key, "quantity", q.Quantity, "available", q.Available)
	return q, nil
}

// Commit turns one or more quotes into a booking. All quotes must share
// contract and stay. Capacity is re-checked atomically; a quote that was
// available but no longer fits fails with StaleQuote.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	if len(req.QuoteIDs) == 0 {
		return CommitResult{}, fmt.Errorf("%w: no quotes to commit", generic.ErrInvalidQuantity)
	}

	quotes, err := s.takeQuotes(ctx, req.QuoteIDs)
	if err != nil {
		return CommitResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			s.restoreQuotes(ctx, quotes)
		}
	}()
	first := quotes[0]

	bookingID := generic.BookingID(uuid.NewString())
	lines := make([]generic.ReserveLine, len(quotes))
	for i, q := range quotes {
		lines[i] = generic.ReserveLine{Key: q.PoolKey, Quantity: q.Quantity}
	}

	reservations, err := s.ledger.Reserve(ctx, generic.ReserveRequest{
		BookingID:     bookingID,
		Lines:         lines,
		AllowWaitlist: req.AllowWaitlist,
	})
	if err != nil {
		var capErr *generic.InsufficientCapacityError
		if errors.As(err, &capErr) {
			for _, q := range quotes {
				if q.PoolKey == capErr.Key && q.Available {
					s.log.Warn("quote stale at commit", "quote_id", q.ID, "pool_key", capErr.Key, "requested", capErr.Requested, "booked", capErr.Booked)
					return CommitResult{}, &generic.StaleQuoteError{QuoteID: q.ID, Reason: "capacity changed since quote", Cause: err}
				}
			}
		}
		return CommitResult{}, err
	}

	waitlisted := make(map[generic.AllocationKey]bool)
	for _, r := range reservations {
		if r.State == generic.ReservationWaitlisted {
			waitlisted[r.Key] = true
		}
	}

	now := s.now()
	b := hotel.Booking{
		ID:         bookingID,
		Reference:  req.Reference,
		Customer:   req.Customer,
		ContractID: first.ContractID,
		Stay:       first.Stay,
		Status:     hotel.StatusConfirmed,
		CreatedAt:  now,
	}
	total := generic.ZeroMoney(first.Currency)
	for _, q := range quotes {
		status := hotel.StatusConfirmed
		if waitlisted[q.PoolKey] {
			status = hotel.StatusWaitlisted
			b.Status = hotel.StatusWaitlisted
			b.Waitlisted = true
		}
		b.Rooms = append(b.Rooms, hotel.BookingRoom{
			BookingID:    bookingID,
			RateID:       q.RateID,
			PoolKey:      q.PoolKey,
			Quantity:     q.Quantity,
			Occupancy:    q.Occupancy,
			PricePerRoom: q.PerRoom.SellingPrice,
			TotalPrice:   q.Total.SellingPrice,
			Status:       status,
		})
		total = total.Add(q.Total.SellingPrice)
	}

	if err := s.repo.SaveBooking(ctx, b); err != nil {
		if _, relErr := s.ledger.Release(ctx, bookingID); relErr != nil {
			s.log.Error("compensating release failed", "booking_id", bookingID, "error", relErr)
		}
		return CommitResult{}, fmt.Errorf("save booking: %w", err)
	}

	committed = true

	for _, q := range quotes {
		s.log.Info("booking committed", "booking_id", bookingID, "pool_key", q.PoolKey, "quantity", q.Quantity, "waitlisted", waitlisted[q.PoolKey])
	}
	s.publish(ctx, QueueBookingConfirmed, b, total)

	return CommitResult{Booking: b, Quotes: quotes, Waitlisted: b.Waitlisted, Total: total}, nil
}

// takeQuotes claims every quote of a commit. On failure the quotes taken
// so far are put back.
func (s *Service) takeQuotes(ctx context.Context, ids []generic.QuoteID) (quotes []Quote, err error) {
	now := s.now()
	quotes = make([]Quote, 0, len(ids))
	defer func() {
		if err != nil {
			s.restoreQuotes(ctx, quotes)
			quotes = nil
		}
	}()

	seen := make(map[generic.QuoteID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return quotes, fmt.Errorf("%w: quote %s listed twice", generic.ErrInvalidQuantity, id)
		}
		seen[id] = true

		q, err := s.quotes.Take(ctx, id)
		if err != nil {
			if generic.IsNotFound(err) {
				return quotes, &generic.StaleQuoteError{QuoteID: id, Reason: "quote expired, unknown or already committed"}
			}
			return quotes, err
		}
		quotes = append(quotes, q)
		if !now.Before(q.ExpiresAt) {
			return quotes, &generic.StaleQuoteError{QuoteID: id, Reason: "quote expired"}
		}
		if first := quotes[0]; q.ContractID != first.ContractID || !q.Stay.CheckIn.Equal(first.Stay.CheckIn) || !q.Stay.CheckOut.Equal(first.Stay.CheckOut) {
			return quotes, fmt.Errorf("%w: quotes in one booking must share contract and stay", generic.ErrInvalidPeriod)
		}
	}
	return quotes, nil
}

// restoreQuotes puts quotes back for whatever TTL they have left.
func (s *Service) restoreQuotes(ctx context.Context, quotes []Quote) {
	now := s.now()
	for _, q := range quotes {
		ttl := q.ExpiresAt.Sub(now)
		if ttl <= 0 {
			continue
		}
		if err := s.quotes.Put(context.WithoutCancel(ctx), q, ttl); err != nil {
			s.log.Warn("quote restore failed", "quote_id", q.ID, "error", err)
		}
	}
}

// Cancel releases a whole booking. Unknown and already-cancelled bookings
// are not errors.
func (s *Service) Cancel(ctx context.Context, id generic.BookingID) (CancelResult, error) {
	result := CancelResult{BookingID: id}

	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		if generic.IsNotFound(err) {
			s.log.Debug("cancel of unknown booking ignored", "booking_id", id)
			return result, nil
		}
		return result, err
	}
	if b.Status == hotel.StatusCancelled {
		return result, nil
	}

	released, err := s.ledger.Release(ctx, id)
	if err != nil {
		return result, fmt.Errorf("release booking %s: %w", id, err)
	}
	now := s.now()
	if err := s.repo.CancelBooking(ctx, id, now); err != nil {
		return result, fmt.Errorf("cancel booking %s: %w", id, err)
	}
	b.Status = hotel.StatusCancelled
	b.CancelledAt = &now

	result.Cancelled = true
	result.Released = released
	s.log.Info("booking cancelled", "booking_id", id, "quantity", released)
	s.publish(ctx, QueueBookingCancelled, b, b.TotalPrice(currencyOf(b)))
	return result, nil
}

func currencyOf(b hotel.Booking) string {
	for _, r := range b.Rooms {
		if r.TotalPrice.Currency != "" {
			return r.TotalPrice.Currency
		}
	}
	return ""
}

// publish never fails the caller; the booking is already durable.
func (s *Service) publish(ctx context.Context, queue string, b hotel.Booking, total generic.Money) {
	e := Event{
		Type:         queue,
		BookingID:    string(b.ID),
		Reference:    b.Reference,
		ContractID:   string(b.ContractID),
		Status:       string(b.Status),
		CheckIn:      b.Stay.CheckIn.String(),
		CheckOut:     b.Stay.CheckOut.String(),
		TotalSelling: total.Amount.StringFixed(2),
		Currency:     total.Currency,
		OccurredAt:   s.now().Format(time.RFC3339),
	}
	for _, r := range b.Rooms {
		e.Quantity += r.Quantity
		if e.PoolKey == "" {
			e.PoolKey = string(r.PoolKey)
		}
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Error("event publish failed", "queue", queue, "booking_id", b.ID, "error", err)
	}
}

// =============================================================================
// READ SIDE
// =============================================================================

func (s *Service) GetBooking(ctx context.Context, id generic.BookingID) (hotel.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *Service) ListBookings(ctx context.Context) ([]hotel.Booking, error) {
	return s.repo.ListBookings(ctx)
}

func (s *Service) GetContract(ctx context.Context, id generic.ContractID) (hotel.Contract, error) {
	return s.repo.GetContract(ctx, id)
}

func (s *Service) ListContracts(ctx context.Context) ([]hotel.Contract, error) {
	return s.repo.ListContracts(ctx)
}

func (s *Service) ListRates(ctx context.Context, contractID generic.ContractID) ([]hotel.Rate, error) {
	if _, err := s.repo.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.repo.ListRates(ctx, contractID)
}

// AddRate stores one more rate for an already registered contract.
func (s *Service) AddRate(ctx context.Context, r hotel.Rate) error {
	c, err := s.repo.GetContract(ctx, r.ContractID)
	if err != nil {
		return err
	}
	if _, err := hotel.FindAllocation(c, r.RoomGroupID); err != nil {
		return fmt.Errorf("rate %s: %w", r.ID, err)
	}
	return s.repo.SaveRate(ctx, r)
}

func (s *Service) PoolStatus(ctx context.Context, key generic.AllocationKey) (generic.PoolStatus, error) {
	return s.ledger.Status(ctx, key)
}

func (s *Service) ListPools(ctx context.Context) ([]generic.PoolStatus, error) {
	return s.ledger.List(ctx)
}

// Availability returns the ledger view of the pool serving a room group.
func (s *Service) Availability(ctx context.Context, contractID generic.ContractID, roomGroupID generic.RoomGroupID) (hotel.Availability, error) {
	c, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return hotel.Availability{}, err
	}
	a, err := hotel.FindAllocation(c, roomGroupID)
	if err != nil {
		return hotel.Availability{}, err
	}
	pool, err := s.ledger.Pool(ctx, a.Key(c.ID))
	if err != nil {
		return hotel.Availability{}, err
	}
	return hotel.AvailabilityFromPool(a, pool), nil
}

// =============================================================================
// RECONCILIATION - Audit the ledger against booking rooms
// =============================================================================

// Reconcile scans active booking rooms through the shared-pool rule and
// compares the result with every ledger pool. With repair set, drifting
// pools are reset from their recorded reservations.
func (s *Service) Reconcile(ctx context.Context, repair bool) ([]generic.ReconcileReport, error) {
	scanned, err := s.scanBooked(ctx)
	if err != nil {
		return nil, err
	}
	pools, err := s.ledger.List(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]generic.ReconcileReport, 0, len(pools))
	for _, p := range pools {
		report, err := s.ledger.Reconcile(ctx, p.Key, scanned[p.Key])
		if err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", p.Key, err)
		}
		if !report.Consistent() {
			s.log.Warn("pool drift", "pool_key", p.Key, "stored", report.Stored, "reservations", report.Reservations, "scanned", report.Scanned)
			if repair {
				if _, err := s.ledger.Repair(ctx, p.Key); err != nil {
					return nil, fmt.Errorf("repair %s: %w", p.Key, err)
				}
			}
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Key < reports[j].Key })
	return reports, nil
}

func (s *Service) scanBooked(ctx context.Context) (map[generic.AllocationKey]int, error) {
	contracts, err := s.repo.ListContracts(ctx)
	if err != nil {
		return nil, err
	}
	rooms, err := s.repo.ListBookingRooms(ctx)
	if err != nil {
		return nil, err
	}
	rates := make(map[generic.RateID]hotel.Rate)
	for _, c := range contracts {
		rs, err := s.repo.ListRates(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range rs {
			rates[r.ID] = r
		}
	}

	scanned := make(map[generic.AllocationKey]int)
	for _, c := range contracts {
		for _, a := range c.RoomAllocations {
			scanned[a.Key(c.ID)] += hotel.BookedInAllocation(c, a, rooms, rates)
		}
	}
	return scanned, nil
}
