package wallet

import (
	"fmt"
	"sort"
	"strings"

	"MarginCore/internal/assets"
	"MarginCore/internal/position"
)

// Balance is one asset's unlocked amount in a wallet.
type Balance struct {
	ID     string
	Asset  assets.AssetSymbol
	Amount float64
}

type balanceState struct {
	balance  Balance
	price    float64 // latest known price in base-asset terms
	estimate float64 // amount valued at price
}

// Wallet aggregates top-up PnL and reserved collateral for one trader
// across all of their top-up-enabled positions, so the wallet-level
// margin call reflects total exposure rather than a single position.
type Wallet struct {
	ID                assets.WalletID
	TraderID          assets.TraderID
	BaseAsset         assets.AssetSymbol
	MarginCallPercent float64

	balances          map[assets.AssetSymbol]*balanceState
	topUpPnLs         map[assets.InstrumentSymbol]float64
	reservedAssets    map[assets.InstrumentSymbol]assets.Amounts
	reservedEstimates map[assets.InstrumentSymbol]float64
	assetPrices       assets.Prices

	TotalBalance       float64
	TotalReserved      float64
	CurrentLossPercent float64
	PrevLossPercent    float64
}

// NewWallet builds a wallet from its balances, valuing each at the
// supplied prices. The base asset is always valued at 1.
func NewWallet(
	id assets.WalletID,
	traderID assets.TraderID,
	baseAsset assets.AssetSymbol,
	marginCallPercent float64,
	balances []Balance,
	prices assets.Prices,
) *Wallet {
	w := &Wallet{
		ID:                id,
		TraderID:          traderID,
		BaseAsset:         baseAsset,
		MarginCallPercent: marginCallPercent,
		balances:          make(map[assets.AssetSymbol]*balanceState, len(balances)),
		topUpPnLs:         make(map[assets.InstrumentSymbol]float64),
		reservedAssets:    make(map[assets.InstrumentSymbol]assets.Amounts),
		reservedEstimates: make(map[assets.InstrumentSymbol]float64),
		assetPrices:       prices.Clone(),
	}
	w.assetPrices[baseAsset] = 1.0

	for _, b := range balances {
		w.balances[b.Asset] = &balanceState{balance: b, price: w.assetPrices[b.Asset]}
	}
	w.revalueBalances()
	return w
}

// Instruments returns every instrument whose ticks this wallet needs:
// the pricing instrument of every non-base balance asset plus all
// instruments it tracks PnL or reserves for.
func (w *Wallet) Instruments() []assets.InstrumentSymbol {
	set := make(map[assets.InstrumentSymbol]struct{})
	for asset := range w.balances {
		if asset == w.BaseAsset {
			continue
		}
		set[assets.PricingInstrument(asset, w.BaseAsset)] = struct{}{}
	}
	for instrument := range w.topUpPnLs {
		set[instrument] = struct{}{}
	}
	for instrument := range w.reservedAssets {
		set[instrument] = struct{}{}
	}

	instruments := make([]assets.InstrumentSymbol, 0, len(set))
	for instrument := range set {
		instruments = append(instruments, instrument)
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i] < instruments[j] })
	return instruments
}

// SetTopUpPnL replaces the PnL contribution of an instrument.
func (w *Wallet) SetTopUpPnL(instrument assets.InstrumentSymbol, pnl float64) {
	w.topUpPnLs[instrument] = pnl
}

// AddTopUpPnL adds to the PnL contribution of an instrument.
func (w *Wallet) AddTopUpPnL(instrument assets.InstrumentSymbol, pnl float64) {
	w.topUpPnLs[instrument] += pnl
}

// DeductTopUpPnL removes a closed or removed position's contribution.
func (w *Wallet) DeductTopUpPnL(instrument assets.InstrumentSymbol, pnl float64) {
	w.topUpPnLs[instrument] -= pnl
}

// SetTopUpReserved replaces the reserved collateral estimate for an
// instrument, revaluing the amounts at the latest known asset prices.
func (w *Wallet) SetTopUpReserved(instrument assets.InstrumentSymbol, reserved assets.Amounts) {
	w.reservedAssets[instrument] = reserved.Clone()
	w.reservedEstimates[instrument] = w.valueAmounts(reserved)
	w.recomputeTotalReserved()
}

// UpdatePrice rebases the wallet's balance and reserve estimates for
// the asset the tick's instrument prices.
func (w *Wallet) UpdatePrice(bidask *position.BidAsk) {
	asset := w.assetForInstrument(bidask.Instrument)
	if asset == "" {
		return
	}
	price, err := bidask.AssetPrice(asset, position.SideSell)
	if err != nil {
		return
	}
	w.assetPrices[asset] = price

	if state, ok := w.balances[asset]; ok {
		state.price = price
		w.revalueBalances()
	}

	changed := false
	for instrument, reserved := range w.reservedAssets {
		if _, ok := reserved[asset]; !ok {
			continue
		}
		w.reservedEstimates[instrument] = w.valueAmounts(reserved)
		changed = true
	}
	if changed {
		w.recomputeTotalReserved()
	}
}

// UpdateLoss snapshots the previous loss percent and recomputes the
// current one from total PnL against balance plus reserved collateral.
func (w *Wallet) UpdateLoss() {
	w.PrevLossPercent = w.CurrentLossPercent

	var pnl float64
	for _, instrument := range w.sortedPnLInstruments() {
		pnl += w.topUpPnLs[instrument]
	}

	if pnl >= 0 {
		w.CurrentLossPercent = 0
		return
	}
	funds := w.TotalBalance + w.TotalReserved
	if funds <= 0 {
		w.CurrentLossPercent = 0
		return
	}
	w.CurrentLossPercent = -pnl / funds * 100.0
}

// IsMarginCall fires only on the tick that crossed the threshold from
// below, so repeated ticks above the threshold emit nothing.
func (w *Wallet) IsMarginCall() bool {
	return w.CurrentLossPercent >= w.MarginCallPercent &&
		w.PrevLossPercent < w.MarginCallPercent
}

// UpdateBalance replaces an existing balance entry and adjusts the
// aggregate totals. A balance for an asset the wallet never held is a
// missing-data failure.
func (w *Wallet) UpdateBalance(balance Balance) error {
	state, ok := w.balances[balance.Asset]
	if !ok {
		return fmt.Errorf("balance not found for asset %s", balance.Asset)
	}
	state.balance = balance
	w.revalueBalances()
	return nil
}

func (w *Wallet) revalueBalances() {
	var total float64
	for _, asset := range w.sortedBalanceAssets() {
		state := w.balances[asset]
		if asset == w.BaseAsset {
			state.estimate = state.balance.Amount
		} else {
			state.estimate = state.balance.Amount * state.price
		}
		total += state.estimate
	}
	w.TotalBalance = total
}

func (w *Wallet) recomputeTotalReserved() {
	var total float64
	instruments := make([]assets.InstrumentSymbol, 0, len(w.reservedEstimates))
	for instrument := range w.reservedEstimates {
		instruments = append(instruments, instrument)
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i] < instruments[j] })
	for _, instrument := range instruments {
		total += w.reservedEstimates[instrument]
	}
	w.TotalReserved = total
}

func (w *Wallet) valueAmounts(amounts assets.Amounts) float64 {
	var total float64
	for _, asset := range amounts.SortedSymbols() {
		if asset == w.BaseAsset {
			total += amounts[asset]
			continue
		}
		if price, ok := w.assetPrices[asset]; ok {
			total += amounts[asset] * price
		}
	}
	return total
}

// assetForInstrument recovers the asset a pricing instrument quotes,
// or "" when the instrument is not an asset+base concatenation.
func (w *Wallet) assetForInstrument(instrument assets.InstrumentSymbol) assets.AssetSymbol {
	s := string(instrument)
	base := string(w.BaseAsset)
	if !strings.HasSuffix(s, base) || len(s) == len(base) {
		return ""
	}
	return assets.AssetSymbol(strings.TrimSuffix(s, base))
}

// Balances returns the wallet's balances sorted by asset.
func (w *Wallet) Balances() []Balance {
	out := make([]Balance, 0, len(w.balances))
	for _, asset := range w.sortedBalanceAssets() {
		out = append(out, w.balances[asset].balance)
	}
	return out
}

func (w *Wallet) sortedBalanceAssets() []assets.AssetSymbol {
	out := make([]assets.AssetSymbol, 0, len(w.balances))
	for asset := range w.balances {
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w *Wallet) sortedPnLInstruments() []assets.InstrumentSymbol {
	out := make([]assets.InstrumentSymbol, 0, len(w.topUpPnLs))
	for instrument := range w.topUpPnLs {
		out = append(out, instrument)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
