package testutil

import (
	"testing"
	"time"

	"MarginCore/internal/assets"
	"MarginCore/internal/position"
)

// NewClosedPosition builds a realistic closed position for persistence
// and query tests. Each call produces a distinct position id.
func NewClosedPosition(t *testing.T, walletID assets.WalletID, traderID assets.TraderID) *position.ClosedPosition {
	t.Helper()

	order := &position.Order{
		ID:                "order-" + string(walletID),
		WalletID:          walletID,
		TraderID:          traderID,
		Instrument:        "BTCUSDT",
		BaseAsset:         "USDT",
		Side:              position.SideBuy,
		Leverage:          2.0,
		InvestAssets:      assets.Amounts{"USDT": 100.0},
		StopOutPercent:    90.0,
		MarginCallPercent: 70.0,
		CreatedDate:       time.Now(),
	}

	p, err := order.Open(&position.BidAsk{
		Instrument: "BTCUSDT",
		Timestamp:  time.Now(),
		Bid:        20000.0,
		Ask:        20000.0,
	}, assets.Prices{"USDT": 1.0})
	if err != nil {
		t.Fatalf("open fixture position: %v", err)
	}
	active, ok := p.(*position.ActivePosition)
	if !ok {
		t.Fatalf("fixture position is %T, want *ActivePosition", p)
	}
	active.CurrentPrice = 20500.0
	return active.Close(position.CloseReasonClientCommand, nil)
}
