package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/allocation-engine/factory"
	"github.com/warp/allocation-engine/generic"
	"github.com/warp/allocation-engine/hotel"
)

// =============================================================================
// CONTRACTS & RATES
// =============================================================================
//
// Contracts and rates are stored as their factory JSON form plus a few
// indexed header columns. Loading goes back through the factory, so a
// stored contract is validated exactly like an uploaded one.

var contracts = factory.NewContractFactory()

func (s *Store) SaveContract(ctx context.Context, c hotel.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := json.Marshal(contracts.ContractToJSON(c))
	if err != nil {
		return fmt.Errorf("marshal contract %s: %w", c.ID, err)
	}

	query := `
		INSERT INTO contracts (id, supplier_id, name, start_date, end_date, currency, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			supplier_id = excluded.supplier_id,
			name = excluded.name,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			currency = excluded.currency,
			config_json = excluded.config_json,
			version = contracts.version + 1,
			updated_at = excluded.updated_at
	`
	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx, query,
		string(c.ID), c.SupplierID, c.Name, c.Period.Start.String(), c.Period.End.String(), c.Currency,
		string(config), now, now,
	)
	return err
}

func (s *Store) GetContract(ctx context.Context, id generic.ContractID) (hotel.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var config string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM contracts WHERE id = ?", string(id)).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return hotel.Contract{}, fmt.Errorf("%w: contract %s", generic.ErrNotFound, id)
	}
	if err != nil {
		return hotel.Contract{}, err
	}
	return decodeContract(config)
}

func (s *Store) ListContracts(ctx context.Context) ([]hotel.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT config_json FROM contracts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []hotel.Contract
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, err
		}
		c, err := decodeContract(config)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func decodeContract(config string) (hotel.Contract, error) {
	var cj factory.ContractJSON
	if err := json.Unmarshal([]byte(config), &cj); err != nil {
		return hotel.Contract{}, fmt.Errorf("decode contract: %w", err)
	}
	return contracts.ContractFromJSON(cj)
}

func (s *Store) SaveRate(ctx context.Context, r hotel.Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := json.Marshal(contracts.RateToJSON(r))
	if err != nil {
		return fmt.Errorf("marshal rate %s: %w", r.ID, err)
	}
	query := `
		INSERT INTO rates (id, contract_id, room_group_id, occupancy, board_type, config_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contract_id = excluded.contract_id,
			room_group_id = excluded.room_group_id,
			occupancy = excluded.occupancy,
			board_type = excluded.board_type,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		string(r.ID), string(r.ContractID), string(r.RoomGroupID), string(r.Occupancy), string(r.BoardType),
		string(config), formatTime(time.Now()),
	)
	return err
}

func (s *Store) GetRate(ctx context.Context, id generic.RateID) (hotel.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var config string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM rates WHERE id = ?", string(id)).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return hotel.Rate{}, fmt.Errorf("%w: rate %s", generic.ErrNotFound, id)
	}
	if err != nil {
		return hotel.Rate{}, err
	}
	return decodeRate(config)
}

func (s *Store) ListRates(ctx context.Context, contractID generic.ContractID) ([]hotel.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT config_json FROM rates WHERE contract_id = ? ORDER BY id", string(contractID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []hotel.Rate
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, err
		}
		r, err := decodeRate(config)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeRate(config string) (hotel.Rate, error) {
	var rj factory.RateJSON
	if err := json.Unmarshal([]byte(config), &rj); err != nil {
		return hotel.Rate{}, fmt.Errorf("decode rate: %w", err)
	}
	return contracts.RateFromJSON(rj)
}
