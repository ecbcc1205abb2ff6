package wallet_test

import (
	"math"
	"testing"
	"time"

	"MarginCore/internal/assets"
	"MarginCore/internal/position"
	"MarginCore/internal/wallet"
)

func newTestWallet(marginCallPercent float64) *wallet.Wallet {
	return wallet.NewWallet(
		"wallet-1",
		"trader-1",
		"USDT",
		marginCallPercent,
		[]wallet.Balance{
			{ID: "b1", Asset: "USDT", Amount: 1000.0},
			{ID: "b2", Asset: "BTC", Amount: 0.5},
		},
		assets.Prices{"BTC": 20000.0},
	)
}

func newTick(instrument assets.InstrumentSymbol, bid, ask float64) *position.BidAsk {
	return &position.BidAsk{
		Instrument: instrument,
		Timestamp:  time.Now(),
		Bid:        bid,
		Ask:        ask,
	}
}

func TestTotalBalanceValuation(t *testing.T) {
	w := newTestWallet(70.0)

	// 1000 USDT at par plus 0.5 BTC at 20000.
	if w.TotalBalance != 11000.0 {
		t.Errorf("total balance = %v, want 11000", w.TotalBalance)
	}
}

func TestInstrumentsCoverBalancesPnLsAndReserves(t *testing.T) {
	w := newTestWallet(70.0)
	w.SetTopUpPnL("ETHUSDT", -10.0)
	w.SetTopUpReserved("GALAUSDT", assets.Amounts{"USDT": 50.0})

	got := w.Instruments()
	want := []assets.InstrumentSymbol{"BTCUSDT", "ETHUSDT", "GALAUSDT"}
	if len(got) != len(want) {
		t.Fatalf("instruments = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instruments[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUpdatePriceRevaluesBalance(t *testing.T) {
	w := newTestWallet(70.0)

	w.UpdatePrice(newTick("BTCUSDT", 22000.0, 22001.0))

	// Sell-side pricing uses the ask: 1000 + 0.5*22001.
	if w.TotalBalance != 12000.5 {
		t.Errorf("total balance = %v, want 12000.5", w.TotalBalance)
	}
}

func TestUpdatePriceIgnoresUnrelatedInstrument(t *testing.T) {
	w := newTestWallet(70.0)
	before := w.TotalBalance

	w.UpdatePrice(newTick("ETHBTC", 0.05, 0.05))

	if w.TotalBalance != before {
		t.Errorf("total balance changed to %v on unrelated tick", w.TotalBalance)
	}
}

func TestUpdatePriceRevaluesReserves(t *testing.T) {
	w := newTestWallet(70.0)
	w.SetTopUpReserved("GALAUSDT", assets.Amounts{"BTC": 0.1})

	if w.TotalReserved != 2000.0 {
		t.Fatalf("reserved = %v, want 2000", w.TotalReserved)
	}

	w.UpdatePrice(newTick("BTCUSDT", 21000.0, 21000.0))

	if w.TotalReserved != 2100.0 {
		t.Errorf("reserved after tick = %v, want 2100", w.TotalReserved)
	}
}

func TestUpdateLoss(t *testing.T) {
	w := newTestWallet(70.0)
	w.SetTopUpPnL("ETHUSDT", -2200.0)
	w.SetTopUpPnL("GALAUSDT", -1100.0)

	w.UpdateLoss()

	// 3300 lost against 11000 of funds.
	want := 30.0
	if math.Abs(w.CurrentLossPercent-want) > 1e-9 {
		t.Errorf("loss percent = %v, want %v", w.CurrentLossPercent, want)
	}
}

func TestUpdateLossNonNegativePnL(t *testing.T) {
	w := newTestWallet(70.0)
	w.SetTopUpPnL("ETHUSDT", 150.0)

	w.UpdateLoss()

	if w.CurrentLossPercent != 0 {
		t.Errorf("loss percent = %v, want 0 for profitable wallet", w.CurrentLossPercent)
	}
}

func TestDeductTopUpPnLRemovesContribution(t *testing.T) {
	w := newTestWallet(70.0)
	w.SetTopUpPnL("ETHUSDT", -2200.0)
	w.AddTopUpPnL("ETHUSDT", -1100.0)
	w.DeductTopUpPnL("ETHUSDT", -3300.0)

	w.UpdateLoss()

	if w.CurrentLossPercent != 0 {
		t.Errorf("loss percent = %v, want 0 after deduction", w.CurrentLossPercent)
	}
}

func TestMarginCallFiresOnceOnCrossing(t *testing.T) {
	w := newTestWallet(25.0)

	w.SetTopUpPnL("ETHUSDT", -3300.0)
	w.UpdateLoss()
	if !w.IsMarginCall() {
		t.Fatal("expected margin call on crossing update")
	}

	w.UpdateLoss()
	if w.IsMarginCall() {
		t.Error("margin call must not repeat while above threshold")
	}

	// Recover, then cross again.
	w.SetTopUpPnL("ETHUSDT", -110.0)
	w.UpdateLoss()
	if w.IsMarginCall() {
		t.Error("no margin call at 1% loss")
	}

	w.SetTopUpPnL("ETHUSDT", -3300.0)
	w.UpdateLoss()
	if !w.IsMarginCall() {
		t.Error("expected margin call on second crossing")
	}
}

func TestUpdateBalance(t *testing.T) {
	w := newTestWallet(70.0)

	if err := w.UpdateBalance(wallet.Balance{ID: "b1", Asset: "USDT", Amount: 500.0}); err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}
	if w.TotalBalance != 10500.0 {
		t.Errorf("total balance = %v, want 10500", w.TotalBalance)
	}

	if err := w.UpdateBalance(wallet.Balance{ID: "b3", Asset: "ETH", Amount: 1.0}); err == nil {
		t.Error("expected error for asset the wallet never held")
	}
}

func TestBalancesSortedByAsset(t *testing.T) {
	w := newTestWallet(70.0)

	balances := w.Balances()
	if len(balances) != 2 {
		t.Fatalf("balances length = %d, want 2", len(balances))
	}
	if balances[0].Asset != "BTC" || balances[1].Asset != "USDT" {
		t.Errorf("balances order = [%s %s], want [BTC USDT]", balances[0].Asset, balances[1].Asset)
	}
}
