/*
handlers.go - HTTP API handlers for the allocation and pricing engine

PURPOSE:
  Exposes booking.Service via REST. Handles HTTP request/response, JSON
  serialization, and maps the engine's error taxonomy to status codes.

ENDPOINTS:
  Contracts:
    GET    /api/contracts                       List contracts
    POST   /api/contracts                       Upload contract (+ rates)
    GET    /api/contracts/{id}                  Contract details
    GET    /api/contracts/{id}/rates            Rates of a contract
    POST   /api/contracts/{id}/rates            Add a rate
    GET    /api/contracts/{id}/availability     ?room_group_id=double

  Quotes & bookings:
    POST   /api/quotes                          Price + availability, returns quote id
    POST   /api/bookings                        Commit quotes into one booking
    GET    /api/bookings                        List bookings
    GET    /api/bookings/{id}                   Booking details
    DELETE /api/bookings/{id}                   Cancel (idempotent)

  Pools:
    GET    /api/pools                           Dashboard view of every pool
    POST   /api/pools                           Register a manual shared pool
    GET    /api/pools/{key}                     One pool
    POST   /api/admin/reconcile                 ?repair=true to fix drift

ERROR HANDLING:
  Errors are returned as ErrorResponse JSON:
  - 400: Malformed input, nights out of range, invalid fraction or period
  - 404: Contract, booking or pool not found
  - 409: Insufficient capacity, stale quote, duplicate booking
  - 422: Invalid allocation configuration
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo contract loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/allocation-engine/booking"
	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes all stored data. Only demo deployments provide one.
type Resetter interface {
	Reset() error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *booking.Service
	Contracts *factory.ContractFactory
	Logger    *slog.Logger

	// Resetter is optional; without it scenarios load on top of existing data.
	Resetter Resetter

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler around the booking service.
func NewHandler(svc *booking.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service:   svc,
		Contracts: factory.NewContractFactory(),
		Logger:    logger,
	}
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.Service.ListContracts(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list contracts", err)
		return
	}
	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(h.Contracts, c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContract validates and registers a contract. Rates come from the
// request, from generation, or both; explicit rates win on ID collision.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Contracts.ContractFromJSON(req.Contract)
	if err != nil {
		writeServiceError(w, "Invalid contract", err)
		return
	}

	rates, err := h.buildRates(c, req)
	if err != nil {
		writeServiceError(w, "Invalid rates", err)
		return
	}

	pools, err := h.Service.RegisterContract(r.Context(), c, rates)
	if err != nil {
		writeServiceError(w, "Failed to register contract", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateContractResponse{
		Contract: toContractDTO(h.Contracts, c),
		Rates:    len(rates),
		Pools:    toPoolDTOs(pools),
	})
}

func (h *Handler) buildRates(c hotel.Contract, req CreateContractRequest) ([]hotel.Rate, error) {
	var rates []hotel.Rate
	index := make(map[generic.RateID]int)
	add := func(rt hotel.Rate) {
		if i, ok := index[rt.ID]; ok {
			rates[i] = rt
			return
		}
		index[rt.ID] = len(rates)
		rates = append(rates, rt)
	}

	if g := req.GenerateRates; g != nil {
		markup, err := generic.NewFraction(g.Markup)
		if err != nil {
			return nil, fmt.Errorf("generate_rates.markup_percentage: %w", err)
		}
		shoulder, err := generic.NewFraction(g.ShoulderMarkup)
		if err != nil {
			return nil, fmt.Errorf("generate_rates.shoulder_markup_percentage: %w", err)
		}
		for _, rt := range h.Contracts.GenerateRates(c, factory.RateDefaults{
			BoardType:      hotel.BoardType(g.BoardType),
			Markup:         markup,
			ShoulderMarkup: shoulder,
		}) {
			add(rt)
		}
	}

	for _, rj := range req.Rates {
		if rj.ContractID == "" {
			rj.ContractID = string(c.ID)
		}
		rt, err := h.Contracts.RateFromJSON(rj)
		if err != nil {
			return nil, fmt.Errorf("rate %s: %w", rj.ID, err)
		}
		add(rt)
	}
	return rates, nil
}

func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetContract(r.Context(), generic.ContractID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Contract not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(h.Contracts, c))
}

func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Service.ListRates(r.Context(), generic.ContractID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Failed to list rates", err)
		return
	}
	dtos := make([]factory.RateJSON, len(rates))
	for i, rt := range rates {
		dtos[i] = h.Contracts.RateToJSON(rt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	contractID := chi.URLParam(r, "id")

	var rj factory.RateJSON
	if err := json.NewDecoder(r.Body).Decode(&rj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if rj.ContractID != "" && rj.ContractID != contractID {
		writeError(w, http.StatusBadRequest, "Rate belongs to another contract", nil)
		return
	}
	rj.ContractID = contractID

	rt, err := h.Contracts.RateFromJSON(rj)
	if err != nil {
		writeServiceError(w, "Invalid rate", err)
		return
	}
	if err := h.Service.AddRate(r.Context(), rt); err != nil {
		writeServiceError(w, "Failed to save rate", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Contracts.RateToJSON(rt))
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("room_group_id")
	if group == "" {
		writeError(w, http.StatusBadRequest, "room_group_id is required", nil)
		return
	}
	av, err := h.Service.Availability(r.Context(), generic.ContractID(chi.URLParam(r, "id")), generic.RoomGroupID(group))
	if err != nil {
		writeServiceError(w, "Failed to compute availability", err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityDTO(av))
}

// =============================================================================
// QUOTE & BOOKING HANDLERS
// =============================================================================

func (h *Handler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sreq, err := parseQuoteRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quote request", err)
		return
	}

	q, err := h.Service.Quote(r.Context(), sreq)
	if err != nil {
		writeServiceError(w, "Failed to quote", err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuoteDTO(q))
}

func parseQuoteRequest(req QuoteRequest) (booking.QuoteRequest, error) {
	occ, err := hotel.ParseOccupancy(req.Occupancy)
	if err != nil {
		return booking.QuoteRequest{}, err
	}
	checkIn, err := generic.ParseDate(req.CheckIn)
	if err != nil {
		return booking.QuoteRequest{}, fmt.Errorf("check_in: %w", err)
	}
	checkOut, err := generic.ParseDate(req.CheckOut)
	if err != nil {
		return booking.QuoteRequest{}, fmt.Errorf("check_out: %w", err)
	}
	stay, err := generic.NewStay(checkIn, checkOut)
	if err != nil {
		return booking.QuoteRequest{}, err
	}
	var kind generic.ItemKind
	if req.Kind != "" {
		if kind, err = generic.ParseItemKind(req.Kind); err != nil {
			return booking.QuoteRequest{}, err
		}
	}
	var boardCost *decimal.Decimal
	if req.BoardCost != "" {
		v, err := decimal.NewFromString(req.BoardCost)
		if err != nil {
			return booking.QuoteRequest{}, fmt.Errorf("board_cost: %w", err)
		}
		if v.IsNegative() {
			return booking.QuoteRequest{}, fmt.Errorf("board_cost: %s is negative", req.BoardCost)
		}
		boardCost = &v
	}
	return booking.QuoteRequest{
		Kind:        kind,
		ContractID:  generic.ContractID(req.ContractID),
		RoomGroupID: generic.RoomGroupID(req.RoomGroupID),
		Occupancy:   occ,
		BoardType:   hotel.BoardType(req.BoardType),
		Stay:        stay,
		Quantity:    req.Quantity,
		BoardCost:   boardCost,
	}, nil
}

// CommitBooking turns quotes into a booking. Every quote is re-checked
// against the ledger.
func (h *Handler) CommitBooking(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ids := make([]generic.QuoteID, len(req.QuoteIDs))
	for i, id := range req.QuoteIDs {
		ids[i] = generic.QuoteID(id)
	}

	res, err := h.Service.Commit(r.Context(), booking.CommitRequest{
		QuoteIDs:      ids,
		Customer:      req.Customer,
		Reference:     req.Reference,
		AllowWaitlist: req.AllowWaitlist,
	})
	if err != nil {
		writeServiceError(w, "Failed to commit booking", err)
		return
	}

	status := http.StatusCreated
	if res.Waitlisted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, toBookingDTO(res.Booking))
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Service.ListBookings(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list bookings", err)
		return
	}
	dtos := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		dtos[i] = toBookingDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.GetBooking(r.Context(), generic.BookingID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Booking not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// CancelBooking is idempotent: cancelling twice returns cancelled=false.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Cancel(r.Context(), generic.BookingID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, "Failed to cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, CancelDTO{
		BookingID: string(res.BookingID),
		Cancelled: res.Cancelled,
		Released:  res.Released,
	})
}

// =============================================================================
// POOL HANDLERS
// =============================================================================

func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.Service.ListPools(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to list pools", err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolDTOs(pools))
}

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.PoolStatus(r.Context(), generic.AllocationKey(chi.URLParam(r, "key")))
	if err != nil {
		writeServiceError(w, "Pool not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toPoolDTO(p))
}

func (h *Handler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PoolID == "" || req.TotalCapacity < 0 || req.OverbookingLimit < 0 || req.WaitlistMaxSize < 0 {
		writeError(w, http.StatusBadRequest, "pool_id is required and limits must not be negative", nil)
		return
	}

	p, err := h.Service.RegisterPool(r.Context(), generic.PoolCapacity{
		Key:               generic.PoolKey(generic.PoolID(req.PoolID)),
		Label:             req.Label,
		TotalCapacity:     req.TotalCapacity,
		AllowsOverbooking: req.AllowsOverbooking,
		OverbookingLimit:  req.OverbookingLimit,
		WaitlistEnabled:   req.WaitlistEnabled,
		WaitlistMaxSize:   req.WaitlistMaxSize,
	})
	if err != nil {
		writeServiceError(w, "Failed to register pool", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPoolDTO(p))
}

// Reconcile audits every pool against the booking rooms.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	repair, _ := strconv.ParseBool(r.URL.Query().Get("repair"))

	reports, err := h.Service.Reconcile(r.Context(), repair)
	if err != nil {
		writeServiceError(w, "Reconciliation failed", err)
		return
	}
	dtos := make([]ReconcileDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = ReconcileDTO{
			PoolKey:      string(rep.Key),
			Stored:       rep.Stored,
			Reservations: rep.Reservations,
			Scanned:      rep.Scanned,
			Consistent:   rep.Consistent(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusNotImplemented, "Reset not supported by this store", nil)
		return
	}
	if err := h.Resetter.Reset(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps the engine's error taxonomy to a status and code.
func writeServiceError(w http.ResponseWriter, message string, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}

	var capErr *generic.InsufficientCapacityError
	if errors.As(err, &capErr) {
		resp.Details = map[string]any{
			"message":            err.Error(),
			"pool_key":           string(capErr.Key),
			"requested":          capErr.Requested,
			"remaining":          capErr.Remaining(),
			"waitlist_available": capErr.WaitlistAvailable,
		}
	}
	var cfgErr *generic.InvalidAllocationConfigError
	if errors.As(err, &cfgErr) && len(cfgErr.Matches) > 0 {
		resp.Details = map[string]any{
			"message": err.Error(),
			"matches": cfgErr.Matches,
		}
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, generic.ErrStaleQuote):
		return http.StatusConflict, "stale_quote"
	case errors.Is(err, generic.ErrInsufficientCapacity):
		return http.StatusConflict, "insufficient_capacity"
	case generic.IsConflict(err):
		return http.StatusConflict, "conflict"
	case generic.IsConfigError(err):
		return http.StatusUnprocessableEntity, "invalid_allocation_config"
	case generic.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrNightsOutOfRange):
		return http.StatusBadRequest, "nights_out_of_range"
	case errors.Is(err, generic.ErrMissingShoulderRate):
		return http.StatusBadRequest, "missing_shoulder_rate"
	case generic.IsClientError(err):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
