package monitor_test

import (
	"math"
	"testing"
	"time"

	"MarginCore/internal/assets"
	"MarginCore/internal/monitor"
	"MarginCore/internal/position"
	"MarginCore/internal/wallet"
)

func newTestMonitor() *monitor.PositionsMonitor {
	return monitor.NewPositionsMonitor(16, monitor.Config{
		CancelTopUpDelay:              30 * time.Second,
		CancelTopUpPriceChangePercent: 0.5,
	})
}

func newTestOrder(walletID assets.WalletID, investAssets assets.Amounts, leverage float64) *position.Order {
	return &position.Order{
		ID:                "order-1",
		WalletID:          walletID,
		TraderID:          "trader-1",
		Instrument:        "BTCUSDT",
		BaseAsset:         "USDT",
		Side:              position.SideBuy,
		Leverage:          leverage,
		InvestAssets:      investAssets,
		StopOutPercent:    90.0,
		MarginCallPercent: 70.0,
		TopUpPercent:      30.0,
		CreatedDate:       time.Now(),
	}
}

func newTick(instrument assets.InstrumentSymbol, price float64) *position.BidAsk {
	return &position.BidAsk{
		Instrument: instrument,
		Timestamp:  time.Now(),
		Bid:        price,
		Ask:        price,
	}
}

func openActive(t *testing.T, order *position.Order) *position.ActivePosition {
	t.Helper()
	p, err := order.Open(newTick("BTCUSDT", 10.0), assets.Prices{"USDT": 1.0})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	active, ok := p.(*position.ActivePosition)
	if !ok {
		t.Fatalf("Open returned %T, want *ActivePosition", p)
	}
	return active
}

func TestUpdateWithNoSubscribersReturnsNil(t *testing.T) {
	m := newTestMonitor()

	if events := m.Update(newTick("BTCUSDT", 10.0)); events != nil {
		t.Errorf("events = %v, want nil for unsubscribed instrument", events)
	}
}

func TestLifecyclePendingToActiveToClosed(t *testing.T) {
	m := newTestMonitor()

	order := newTestOrder("wallet-1", assets.Amounts{"USDT": 100.0}, 1.0)
	order.MarginCallPercent = 95.0
	desire := 19000.0
	order.DesirePrice = &desire

	p, err := order.Open(newTick("BTCUSDT", 20000.0), assets.Prices{"USDT": 1.0})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pending, ok := p.(*position.PendingPosition)
	if !ok {
		t.Fatalf("Open returned %T, want *PendingPosition", p)
	}
	id := pending.ID
	m.Add(pending)

	// Above the trigger: no activation.
	if events := m.Update(newTick("BTCUSDT", 19500.0)); len(events) != 0 {
		t.Fatalf("events = %v, want none above the trigger", events)
	}

	events := m.Update(newTick("BTCUSDT", 19000.0))
	if len(events) != 1 {
		t.Fatalf("events = %v, want exactly one activation", events)
	}
	activated, ok := events[0].(monitor.PositionActivated)
	if !ok {
		t.Fatalf("event = %T, want PositionActivated", events[0])
	}
	if activated.Position.ID != id {
		t.Errorf("activated id = %v, want %v", activated.Position.ID, id)
	}
	if activated.Position.ActivatePrice != 19000.0 {
		t.Errorf("activate price = %v, want 19000", activated.Position.ActivatePrice)
	}
	if _, ok := m.Get(id).(*position.ActivePosition); !ok {
		t.Fatalf("cached position is %T, want *ActivePosition", m.Get(id))
	}

	// Crash past the stop-out threshold.
	events = m.Update(newTick("BTCUSDT", 1800.0))
	if len(events) != 1 {
		t.Fatalf("events = %v, want exactly one close", events)
	}
	closed, ok := events[0].(monitor.PositionClosed)
	if !ok {
		t.Fatalf("event = %T, want PositionClosed", events[0])
	}
	if closed.Position.CloseReason != position.CloseReasonStopOut {
		t.Errorf("close reason = %v, want StopOut", closed.Position.CloseReason)
	}
	if m.Get(id) != nil {
		t.Error("closed position still cached")
	}
	if stats := m.Stats(); stats.Positions != 0 {
		t.Errorf("positions = %d, want 0", stats.Positions)
	}
}

func TestUnfundedActivationLocks(t *testing.T) {
	m := newTestMonitor()

	order := newTestOrder("wallet-1", assets.Amounts{}, 1.0)
	desire := 19000.0
	order.DesirePrice = &desire

	p, err := order.Open(newTick("BTCUSDT", 20000.0), assets.Prices{"USDT": 1.0})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pending := p.(*position.PendingPosition)
	id := pending.ID
	m.Add(pending)

	events := m.Update(newTick("BTCUSDT", 19000.0))
	if len(events) != 1 {
		t.Fatalf("events = %v, want one lock", events)
	}
	locked, ok := events[0].(monitor.PositionLocked)
	if !ok {
		t.Fatalf("event = %T, want PositionLocked", events[0])
	}
	if locked.Reason != monitor.LockReasonActivationPending {
		t.Errorf("lock reason = %v, want ActivationPending", locked.Reason)
	}
	if locked.PositionID() != id {
		t.Errorf("locked id = %v, want %v", locked.PositionID(), id)
	}
	if !m.IsLocked(id) {
		t.Fatal("position must be locked")
	}

	// Locked positions are skipped entirely.
	if events := m.Update(newTick("BTCUSDT", 19000.0)); len(events) != 0 {
		t.Fatalf("events = %v, want none while locked", events)
	}

	// Fund and resume.
	if err := pending.AddInvestAssets(assets.Amounts{"USDT": 100.0}); err != nil {
		t.Fatalf("AddInvestAssets: %v", err)
	}
	m.Unlock(id)

	events = m.Update(newTick("BTCUSDT", 19000.0))
	if len(events) != 1 {
		t.Fatalf("events = %v, want one activation after funding", events)
	}
	if _, ok := events[0].(monitor.PositionActivated); !ok {
		t.Errorf("event = %T, want PositionActivated", events[0])
	}
}

func TestRemoveLockedPositionReturnsNil(t *testing.T) {
	m := newTestMonitor()

	order := newTestOrder("wallet-1", assets.Amounts{"USDT": 100.0}, 10.0)
	order.TopUpEnabled = true
	active := openActive(t, order)
	m.Add(active)

	// 50% loss crosses the 30% top-up threshold.
	events := m.Update(newTick("BTCUSDT", 9.5))
	if len(events) != 1 {
		t.Fatalf("events = %v, want one lock", events)
	}
	locked := events[0].(monitor.PositionLocked)
	if locked.Reason != monitor.LockReasonTopUp {
		t.Fatalf("lock reason = %v, want TopUp", locked.Reason)
	}

	if got := m.Remove(active.ID); got != nil {
		t.Errorf("Remove returned %v for a locked position, want nil", got)
	}
	if m.Get(active.ID) == nil {
		t.Error("locked position must stay cached")
	}

	m.Unlock(active.ID)
	if got := m.Remove(active.ID); got == nil {
		t.Error("Remove returned nil after unlock")
	}
}

func TestTopUpResolvesLock(t *testing.T) {
	m := newTestMonitor()

	order := newTestOrder("wallet-1", assets.Amounts{"USDT": 100.0}, 10.0)
	order.TopUpEnabled = true
	active := openActive(t, order)
	m.Add(active)

	events := m.Update(newTick("BTCUSDT", 9.5))
	if len(events) != 1 {
		t.Fatalf("events = %v, want one lock", events)
	}

	err := m.AddTopUp(active.ID, &position.ActiveTopUp{
		ID:              "topup-1",
		Date:            time.Now(),
		TotalAssets:     assets.Amounts{"USDT": 100.0},
		AssetPrices:     assets.Prices{"USDT": 1.0},
		InstrumentPrice: 9.5,
		BonusAssets:     make(assets.Amounts),
	})
	if err != nil {
		t.Fatalf("AddTopUp: %v", err)
	}
	m.Unlock(active.ID)

	// Loss is now 25% of the doubled collateral: below the threshold.
	if events := m.Update(newTick("BTCUSDT", 9.5)); len(events) != 0 {
		t.Errorf("events = %v, want none after the top-up", events)
	}
}

func TestTopUpCancellationLocks(t *testing.T) {
	m := newTestMonitor()

	order := newTestOrder("wallet-1", assets.Amounts{"USDT": 100.0}, 10.0)
	order.TopUpEnabled = true
	active := openActive(t, order)
	active.AddTopUp(&position.ActiveTopUp{
		ID:              "topup-1",
		Date:            time.Now().Add(-time.Minute),
		TotalAssets:     assets.Amounts{"USDT": 50.0},
		AssetPrices:     assets.Prices{"USDT": 1.0},
		InstrumentPrice: 10.0,
		BonusAssets:     make(assets.Amounts),
	})
	m.Add(active)

	// Recovery past the 0.5% threshold cancels the aged top-up.
	events := m.Update(newTick("BTCUSDT", 10.1))
	if len(events) != 1 {
		t.Fatalf("events = %v, want one lock", events)
	}
	locked, ok := events[0].(monitor.PositionLocked)
	if !ok {
		t.Fatalf("event = %T, want PositionLocked", events[0])
	}
	if locked.Reason != monitor.LockReasonTopUpsCanceled {
		t.Errorf("lock reason = %v, want TopUpsCanceled", locked.Reason)
	}
	if len(locked.CanceledTopUps) != 1 {
		t.Fatalf("canceled = %d, want 1", len(locked.CanceledTopUps))
	}
	if locked.CanceledTopUps[0].ID != "topup-1" {
		t.Errorf("canceled id = %q, want topup-1", locked.CanceledTopUps[0].ID)
	}
	if !m.IsLocked(active.ID) {
		t.Error("position must be locked for top-up settlement")
	}
}

func TestPositionMarginCallEvent(t *testing.T) {
	m := newTestMonitor()

	order := newTestOrder("wallet-1", assets.Amounts{"USDT": 100.0}, 10.0)
	order.MarginCallPercent = 10.0
	active := openActive(t, order)
	m.Add(active)

	events := m.Update(newTick("BTCUSDT", 9.85))
	if len(events) != 1 {
		t.Fatalf("events = %v, want one margin call", events)
	}
	if _, ok := events[0].(monitor.PositionMarginCall); !ok {
		t.Fatalf("event = %T, want PositionMarginCall", events[0])
	}

	// Same loss level again: the warning does not repeat.
	if events := m.Update(newTick("BTCUSDT", 9.85)); len(events) != 0 {
		t.Errorf("events = %v, want none on repeated tick", events)
	}
}

func TestWalletMarginCall(t *testing.T) {
	m := newTestMonitor()

	order := newTestOrder("wallet-1", assets.Amounts{"USDT": 1000.0}, 10.0)
	order.TopUpEnabled = true
	order.TopUpPercent = 50.0
	active := openActive(t, order)
	m.Add(active)

	w := wallet.NewWallet(
		"wallet-1", "trader-1", "USDT", 25.0,
		[]wallet.Balance{{ID: "b1", Asset: "USDT", Amount: 100.0}},
		assets.Prices{},
	)
	m.AddWallet(w)

	// 30% position loss stays under the 50% top-up threshold but pushes
	// the wallet past its 25% margin call.
	events := m.Update(newTick("BTCUSDT", 9.7))
	if len(events) != 1 {
		t.Fatalf("events = %v, want one wallet margin call", events)
	}
	call, ok := events[0].(monitor.WalletMarginCall)
	if !ok {
		t.Fatalf("event = %T, want WalletMarginCall", events[0])
	}
	if call.WalletID != "wallet-1" || call.TraderID != "trader-1" {
		t.Errorf("event ids = %v/%v, want wallet-1/trader-1", call.WalletID, call.TraderID)
	}
	if call.PnL >= 0 {
		t.Errorf("event pnl = %v, want negative", call.PnL)
	}

	// Reserved collateral tracks the position's invested amounts.
	if w.TotalReserved != 1000.0 {
		t.Errorf("reserved = %v, want 1000", w.TotalReserved)
	}

	// The call does not repeat while the loss stays above the threshold.
	if events := m.Update(newTick("BTCUSDT", 9.7)); len(events) != 0 {
		t.Errorf("events = %v, want none on repeated tick", events)
	}
}

func TestWalletRemovedWithLastPosition(t *testing.T) {
	m := newTestMonitor()

	order := newTestOrder("wallet-1", assets.Amounts{"USDT": 100.0}, 10.0)
	order.TopUpEnabled = true
	active := openActive(t, order)
	active.TopUpLocked = true
	m.Add(active)

	w := wallet.NewWallet(
		"wallet-1", "trader-1", "USDT", 70.0,
		[]wallet.Balance{{ID: "b1", Asset: "USDT", Amount: 100.0}},
		assets.Prices{},
	)
	m.AddWallet(w)

	// With top-ups locked the full crash stops the position out, and the
	// wallet goes with its last position.
	events := m.Update(newTick("BTCUSDT", 8.0))
	if len(events) != 1 {
		t.Fatalf("events = %v, want one close", events)
	}
	closed, ok := events[0].(monitor.PositionClosed)
	if !ok {
		t.Fatalf("event = %T, want PositionClosed", events[0])
	}
	if closed.Position.CloseReason != position.CloseReasonStopOut {
		t.Errorf("close reason = %v, want StopOut", closed.Position.CloseReason)
	}
	if m.ContainsWallet("wallet-1") {
		t.Error("wallet must be removed with its last position")
	}
	if stats := m.Stats(); stats.Positions != 0 || stats.Wallets != 0 {
		t.Errorf("stats = %+v, want empty monitor", stats)
	}
}

func TestRemoveDeductsWalletPnL(t *testing.T) {
	m := newTestMonitor()

	first := newTestOrder("wallet-1", assets.Amounts{"USDT": 100.0}, 10.0)
	first.TopUpEnabled = true
	first.TopUpPercent = 50.0
	activeFirst := openActive(t, first)
	m.Add(activeFirst)

	second := newTestOrder("wallet-1", assets.Amounts{"USDT": 100.0}, 10.0)
	second.ID = "order-2"
	second.TopUpEnabled = true
	second.TopUpPercent = 50.0
	m.Add(openActive(t, second))

	w := wallet.NewWallet(
		"wallet-1", "trader-1", "USDT", 99.0,
		[]wallet.Balance{{ID: "b1", Asset: "USDT", Amount: 1000.0}},
		assets.Prices{},
	)
	m.AddWallet(w)

	m.Update(newTick("BTCUSDT", 9.7))

	// Each position loses 30 (volume 1000, 3% adverse move); the wallet
	// sees -60 against 1000 of balance plus 200 reserved.
	if math.Abs(w.CurrentLossPercent-5.0) > 1e-9 {
		t.Fatalf("loss percent = %v, want 5", w.CurrentLossPercent)
	}

	removed := m.Remove(activeFirst.ID)
	if removed == nil {
		t.Fatal("Remove returned nil")
	}
	if !m.ContainsWallet("wallet-1") {
		t.Fatal("wallet must survive while a position remains")
	}

	// The removed position's contribution is deducted immediately.
	w.UpdateLoss()
	if math.Abs(w.CurrentLossPercent-2.5) > 1e-9 {
		t.Errorf("loss percent = %v, want 2.5 after removal", w.CurrentLossPercent)
	}
	if m.GetWallet("wallet-1") != w {
		t.Error("wallet identity changed")
	}
}

func TestGetByWalletID(t *testing.T) {
	m := newTestMonitor()

	order := newTestOrder("wallet-1", assets.Amounts{"USDT": 100.0}, 1.0)
	active := openActive(t, order)
	m.Add(active)

	other := newTestOrder("wallet-2", assets.Amounts{"USDT": 100.0}, 1.0)
	other.ID = "order-2"
	m.Add(openActive(t, other))

	got := m.GetByWalletID("wallet-1")
	if len(got) != 1 {
		t.Fatalf("positions = %d, want 1", len(got))
	}
	if got[0].GetID() != active.ID {
		t.Errorf("position id = %v, want %v", got[0].GetID(), active.ID)
	}

	if got := m.GetByWalletID("wallet-3"); len(got) != 0 {
		t.Errorf("positions = %d for unknown wallet, want 0", len(got))
	}
}

func TestUpdateWalletBalance(t *testing.T) {
	m := newTestMonitor()

	w := wallet.NewWallet(
		"wallet-1", "trader-1", "USDT", 70.0,
		[]wallet.Balance{{ID: "b1", Asset: "USDT", Amount: 100.0}},
		assets.Prices{},
	)
	m.AddWallet(w)

	updated, err := m.UpdateWallet("wallet-1", wallet.Balance{ID: "b1", Asset: "USDT", Amount: 250.0})
	if err != nil {
		t.Fatalf("UpdateWallet: %v", err)
	}
	if updated.TotalBalance != 250.0 {
		t.Errorf("total balance = %v, want 250", updated.TotalBalance)
	}

	if unknown, err := m.UpdateWallet("wallet-9", wallet.Balance{}); unknown != nil || err != nil {
		t.Errorf("unknown wallet = (%v, %v), want (nil, nil)", unknown, err)
	}
}
