package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"MarginCore/internal/position"
)

// ClosedPositionWriter writes closed positions to Postgres using
// multi-row INSERT batches. Inserts are idempotent on position id so a
// replayed batch after a crash does not duplicate rows.
type ClosedPositionWriter struct {
	db *sql.DB
}

// ClosedPositionRow is one row of margin.closed_positions.
type ClosedPositionRow struct {
	ID             string
	WalletID       string
	TraderID       string
	Instrument     string
	Side           string
	Status         string
	CloseReason    string
	Leverage       float64
	OpenPrice      float64
	OpenDate       int64
	ActivatePrice  *float64
	ActivateDate   *int64
	ClosePrice     float64
	CloseDate      int64
	PnL            *float64
	AssetPnLs      []byte
	InvestAssets   []byte
	BonusAssets    []byte
	TopUps         []byte
	CanceledTopUps []byte
}

const closedPositionColumns = 20

// NewClosedPositionRow flattens a closed position into its storage row.
// Asset maps and top-up histories are stored as JSONB documents.
func NewClosedPositionRow(p *position.ClosedPosition) (ClosedPositionRow, error) {
	row := ClosedPositionRow{
		ID:          p.ID.String(),
		WalletID:    string(p.Order.WalletID),
		TraderID:    string(p.Order.TraderID),
		Instrument:  string(p.Order.Instrument),
		Side:        p.Order.Side.String(),
		Status:      p.Status().String(),
		CloseReason: p.CloseReason.String(),
		Leverage:    p.Order.Leverage,
		OpenPrice:   p.OpenPrice,
		OpenDate:    p.OpenDate.UnixMicro(),
		ClosePrice:  p.ClosePrice,
		CloseDate:   p.CloseDate.UnixMicro(),
		PnL:         p.PnL,
	}
	row.ActivatePrice = p.ActivatePrice
	if p.ActivateDate != nil {
		us := p.ActivateDate.UnixMicro()
		row.ActivateDate = &us
	}

	var err error
	if row.AssetPnLs, err = json.Marshal(p.AssetPnLs); err != nil {
		return row, fmt.Errorf("marshal asset pnls: %w", err)
	}
	if row.InvestAssets, err = json.Marshal(p.TotalInvestAssets); err != nil {
		return row, fmt.Errorf("marshal invest assets: %w", err)
	}
	if row.BonusAssets, err = json.Marshal(p.BonusInvestAssets); err != nil {
		return row, fmt.Errorf("marshal bonus assets: %w", err)
	}
	if row.TopUps, err = json.Marshal(p.TopUps); err != nil {
		return row, fmt.Errorf("marshal top ups: %w", err)
	}
	if row.CanceledTopUps, err = json.Marshal(p.CanceledTopUps); err != nil {
		return row, fmt.Errorf("marshal canceled top ups: %w", err)
	}
	return row, nil
}

func NewClosedPositionWriter(db *sql.DB) *ClosedPositionWriter {
	return &ClosedPositionWriter{db: db}
}

// WriteBatch inserts a batch of closed positions in one statement.
func (w *ClosedPositionWriter) WriteBatch(ctx context.Context, rows []ClosedPositionRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO margin.closed_positions
		(id, wallet_id, trader_id, instrument, side, status, close_reason,
		 leverage, open_price, open_date, activate_price, activate_date,
		 close_price, close_date, pnl, asset_pnls, invest_assets, bonus_assets,
		 top_ups, canceled_top_ups)
		VALUES `

	const cols = closedPositionColumns
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		base := i * cols
		placeholders := make([]string, cols)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args,
			r.ID, r.WalletID, r.TraderID, r.Instrument, r.Side, r.Status, r.CloseReason,
			r.Leverage, r.OpenPrice, r.OpenDate, r.ActivatePrice, r.ActivateDate,
			r.ClosePrice, r.CloseDate, r.PnL, r.AssetPnLs, r.InvestAssets, r.BonusAssets,
			r.TopUps, r.CanceledTopUps,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (id) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}
