package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ClosedPositionRecord is one row of trade history as served to
// clients. Monetary JSON documents are passed through untouched.
type ClosedPositionRecord struct {
	ID            string          `json:"id"`
	WalletID      string          `json:"wallet_id"`
	TraderID      string          `json:"trader_id"`
	Instrument    string          `json:"instrument"`
	Side          string          `json:"side"`
	Status        string          `json:"status"`
	CloseReason   string          `json:"close_reason"`
	Leverage      float64         `json:"leverage"`
	OpenPrice     float64         `json:"open_price"`
	OpenDate      int64           `json:"open_date"`
	ActivatePrice *float64        `json:"activate_price,omitempty"`
	ActivateDate  *int64          `json:"activate_date,omitempty"`
	ClosePrice    float64         `json:"close_price"`
	CloseDate     int64           `json:"close_date"`
	PnL           *float64        `json:"pnl,omitempty"`
	AssetPnLs     json.RawMessage `json:"asset_pnls"`
	InvestAssets  json.RawMessage `json:"invest_assets"`
}

// Service provides read-only access to persisted closed positions.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// WalletHistory returns a wallet's closed positions, newest first.
// beforeDate is an exclusive close-date cursor in unix microseconds;
// zero means from the latest.
func (s *Service) WalletHistory(
	ctx context.Context,
	walletID string,
	limit int,
	beforeDate int64,
) ([]ClosedPositionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if beforeDate <= 0 {
		beforeDate = int64(^uint64(0) >> 1)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet_id, trader_id, instrument, side, status, close_reason,
		       leverage, open_price, open_date, activate_price, activate_date,
		       close_price, close_date, pnl, asset_pnls, invest_assets
		FROM margin.closed_positions
		WHERE wallet_id = $1 AND close_date < $2
		ORDER BY close_date DESC
		LIMIT $3
	`, walletID, beforeDate, limit)
	if err != nil {
		return nil, fmt.Errorf("query wallet history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// TraderHistory returns a trader's closed positions across all of
// their wallets, newest first.
func (s *Service) TraderHistory(
	ctx context.Context,
	traderID string,
	limit int,
	beforeDate int64,
) ([]ClosedPositionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if beforeDate <= 0 {
		beforeDate = int64(^uint64(0) >> 1)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet_id, trader_id, instrument, side, status, close_reason,
		       leverage, open_price, open_date, activate_price, activate_date,
		       close_price, close_date, pnl, asset_pnls, invest_assets
		FROM margin.closed_positions
		WHERE trader_id = $1 AND close_date < $2
		ORDER BY close_date DESC
		LIMIT $3
	`, traderID, beforeDate, limit)
	if err != nil {
		return nil, fmt.Errorf("query trader history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ClosedPosition returns one persisted closed position, or nil when
// the id is unknown.
func (s *Service) ClosedPosition(ctx context.Context, id string) (*ClosedPositionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet_id, trader_id, instrument, side, status, close_reason,
		       leverage, open_price, open_date, activate_price, activate_date,
		       close_price, close_date, pnl, asset_pnls, invest_assets
		FROM margin.closed_positions
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query closed position: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func scanRecords(rows *sql.Rows) ([]ClosedPositionRecord, error) {
	var records []ClosedPositionRecord
	for rows.Next() {
		var r ClosedPositionRecord
		if err := rows.Scan(
			&r.ID, &r.WalletID, &r.TraderID, &r.Instrument, &r.Side, &r.Status, &r.CloseReason,
			&r.Leverage, &r.OpenPrice, &r.OpenDate, &r.ActivatePrice, &r.ActivateDate,
			&r.ClosePrice, &r.CloseDate, &r.PnL, &r.AssetPnLs, &r.InvestAssets,
		); err != nil {
			return nil, fmt.Errorf("scan closed position: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
