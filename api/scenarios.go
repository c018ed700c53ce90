/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Registers ready-made contracts so the pooling and pricing rules can be
  exercised from the API without writing contract JSON by hand.

AVAILABLE SCENARIOS:
  shared-pool:       Double and Twin sell from one pool of 10
  shoulder-nights:   Contract with pre/post shoulder rate tables
  linked-contracts:  Two contracts drawing from one explicit pool
  overbooking:       Small suite pool with overbooking and a waitlist

HOW SCENARIOS WORK:
  1. Reset the store when a Resetter is configured
  2. Parse contract JSON via the factory
  3. Generate rates from the allocation prices
  4. Register contract, rates and pools through the service

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "shared-pool"}

NOTE:
  Scenarios reset the database when possible. Only use in development or
  demo environments.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
)

type scenario struct {
	ScenarioDTO
	pools     []generic.PoolCapacity
	contracts []string
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "shared-pool",
			Name:        "Shared Pool",
			Description: "Double and Twin share one allocation of 10 rooms",
		},
		contracts: []string{`{
		  "id": "demo-summer", "supplier_id": "hotel-del-mar", "name": "Summer 2025",
		  "start_date": "2025-06-10", "end_date": "2025-09-30", "currency": "EUR",
		  "tax_rate": "0.10", "city_tax_per_person_per_night": "2", "resort_fee_per_night": "5",
		  "supplier_commission_rate": "0.10", "min_nights": 1, "max_nights": 14,
		  "room_allocations": [
		    {"label": "standard", "room_group_ids": ["double", "twin"], "quantity": 10,
		     "occupancy_rates": {"single": "120", "double": "150"}}
		  ]}`},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "shoulder-nights",
			Name:        "Shoulder Nights",
			Description: "Stays before and after the contract use the shoulder tables",
		},
		contracts: []string{`{
		  "id": "demo-shoulder", "supplier_id": "hotel-del-mar", "name": "High season with shoulders",
		  "start_date": "2025-06-10", "end_date": "2025-06-20", "currency": "EUR",
		  "tax_rate": "0.10", "supplier_commission_rate": "0.10",
		  "pre_shoulder_rates": ["100", "110"], "post_shoulder_rates": ["90"],
		  "room_allocations": [
		    {"label": "standard", "room_group_ids": ["double"], "quantity": 8,
		     "occupancy_rates": {"double": "150"}}
		  ]}`},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "linked-contracts",
			Name:        "Linked Contracts",
			Description: "Main and shoulder contracts sell from the same explicit pool",
		},
		pools: []generic.PoolCapacity{{
			Key:           generic.PoolKey("demo-block"),
			Label:         "Demo block",
			TotalCapacity: 6,
		}},
		contracts: []string{`{
		  "id": "demo-main", "start_date": "2025-07-01", "end_date": "2025-08-31", "currency": "EUR",
		  "tax_rate": "0.10",
		  "room_allocations": [
		    {"label": "block", "room_group_ids": ["double"], "quantity": 6,
		     "occupancy_rates": {"double": "140"}, "allocation_pool_id": "demo-block"}
		  ]}`, `{
		  "id": "demo-late", "start_date": "2025-09-01", "end_date": "2025-09-30", "currency": "EUR",
		  "tax_rate": "0.10",
		  "room_allocations": [
		    {"label": "block", "room_group_ids": ["double"], "quantity": 6,
		     "occupancy_rates": {"double": "110"}, "allocation_pool_id": "demo-block"}
		  ]}`},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overbooking",
			Name:        "Overbooking & Waitlist",
			Description: "Two suites, one room of overbooking, then a waitlist of two",
		},
		contracts: []string{`{
		  "id": "demo-suites", "start_date": "2025-06-01", "end_date": "2025-12-31", "currency": "EUR",
		  "tax_rate": "0.10",
		  "room_allocations": [
		    {"label": "suites", "room_group_ids": ["suite"], "quantity": 2, "base_rate": "400",
		     "allows_overbooking": true, "overbooking_limit": 1,
		     "waitlist_enabled": true, "waitlist_max_size": 2}
		  ]}`},
	},
}

var demoRateDefaults = factory.RateDefaults{
	Markup:         generic.MustFraction("0.60"),
	ShoulderMarkup: generic.MustFraction("0.20"),
}

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the last loaded scenario, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s.ScenarioDTO)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Resetter != nil {
		if err := h.Resetter.Reset(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
			return
		}
	}
	h.currentScenario = ""

	if err := h.loadScenario(r.Context(), s); err != nil {
		writeServiceError(w, fmt.Sprintf("Failed to load scenario %s", s.ID), err)
		return
	}
	h.currentScenario = s.ID
	h.Logger.Info("scenario loaded", "scenario", s.ID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": s.ID})
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) error {
	for _, p := range s.pools {
		if _, err := h.Service.RegisterPool(ctx, p); err != nil {
			return err
		}
	}
	for _, raw := range s.contracts {
		c, err := h.Contracts.ParseContract(raw)
		if err != nil {
			return err
		}
		if _, err := h.Service.RegisterContract(ctx, c, h.Contracts.GenerateRates(c, demoRateDefaults)); err != nil {
			return err
		}
	}
	return nil
}
