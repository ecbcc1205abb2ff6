package position

import (
	"fmt"
	"math"
	"time"

	"MarginCore/internal/assets"
)

// ActivePosition carries the live PnL and margin state of a filled
// order. TotalInvestAssets is the order's committed amounts plus all
// active top-ups; BonusInvestAssets is bonus collateral from top-ups
// that is never at risk and never counts toward the stop-out loss.
type ActivePosition struct {
	ID                  assets.PositionID
	Order               *Order
	OpenDate            time.Time
	OpenPrice           float64
	OpenAssetPrices     assets.Prices
	ActivatePrice       float64
	ActivateDate        time.Time
	ActivateAssetPrices assets.Prices
	CurrentPrice        float64
	CurrentAssetPrices  assets.Prices
	LastUpdateDate      time.Time
	TopUps              []*ActiveTopUp
	CanceledTopUps      []*CanceledTopUp
	CurrentPnL          float64
	CurrentLossPercent  float64
	PrevLossPercent     float64
	TopUpLocked         bool
	TotalInvestAssets   assets.Amounts
	BonusInvestAssets   assets.Amounts
}

func newActivePosition(order *Order, bidask *BidAsk, assetPrices assets.Prices) *ActivePosition {
	now := time.Now()
	openPrice := bidask.OpenPrice(order.Side)

	p := &ActivePosition{
		ID:                  assets.NewPositionID(),
		Order:               order,
		OpenDate:            now,
		OpenPrice:           openPrice,
		OpenAssetPrices:     assetPrices.Clone(),
		ActivatePrice:       openPrice,
		ActivateDate:        now,
		ActivateAssetPrices: assetPrices.Clone(),
		CurrentPrice:        bidask.ClosePrice(order.Side),
		CurrentAssetPrices:  assetPrices.Clone(),
		LastUpdateDate:      now,
		TotalInvestAssets:   order.InvestAssets.Clone(),
		BonusInvestAssets:   make(assets.Amounts),
	}
	p.updatePnL()
	return p
}

// Update applies a price tick and recomputes PnL.
func (p *ActivePosition) Update(bidask *BidAsk) {
	if p.Order.Instrument == bidask.Instrument {
		p.CurrentPrice = bidask.ClosePrice(p.Order.Side)
	}
	p.updateAssetPrices(bidask)
	p.LastUpdateDate = time.Now()
	p.updatePnL()
}

func (p *ActivePosition) updateAssetPrices(bidask *BidAsk) {
	for _, asset := range p.TotalInvestAssets.SortedSymbols() {
		if assets.PricingInstrument(asset, p.Order.BaseAsset) != bidask.Instrument {
			continue
		}
		if price, err := bidask.AssetPrice(asset, SideSell); err == nil {
			p.CurrentAssetPrices[asset] = price
		}
	}
}

// lotPnL is the PnL of one cost-basis lot: an invested amount times
// leverage, valued by the relative move from the lot's entry price.
func (p *ActivePosition) lotPnL(investAmount, initialPrice float64) float64 {
	volume := p.Order.Volume(investAmount)
	if p.Order.Side == SideBuy {
		return (p.CurrentPrice/initialPrice - 1.0) * volume
	}
	return (p.CurrentPrice/initialPrice - 1.0) * -volume
}

// orderAssetPnLs prices the order's original lots at the activation
// price. Each lot's loss is capped at its own invested amount
// (isolated margin).
func (p *ActivePosition) orderAssetPnLs() assets.Amounts {
	pnls := make(assets.Amounts, len(p.Order.InvestAssets))
	for _, asset := range p.Order.InvestAssets.SortedSymbols() {
		amount := p.Order.InvestAssets[asset]
		pnl := p.lotPnL(amount, p.ActivatePrice)
		if maxLoss := -amount; pnl < maxLoss {
			pnl = maxLoss
		}
		pnls[asset] = pnl
	}
	return pnls
}

// topUpAssetPnLs prices each top-up as its own lot at that top-up's
// entry price, capping each lot's loss at its own amount.
func (p *ActivePosition) topUpAssetPnLs() assets.Amounts {
	pnls := make(assets.Amounts)
	for _, topUp := range p.TopUps {
		for _, asset := range topUp.TotalAssets.SortedSymbols() {
			amount := topUp.TotalAssets[asset]
			pnl := p.lotPnL(amount, topUp.InstrumentPrice)
			if maxLoss := -amount; pnl < maxLoss {
				pnl = maxLoss
			}
			pnls[asset] += pnl
		}
	}
	return pnls
}

// AssetPnLs sums the per-asset PnL across the order's lots and every
// active top-up lot.
func (p *ActivePosition) AssetPnLs() assets.Amounts {
	pnls := p.orderAssetPnLs()
	pnls.Merge(p.topUpAssetPnLs())
	return pnls
}

func (p *ActivePosition) updatePnL() {
	pnl, err := assets.TotalAmount(p.AssetPnLs(), p.CurrentAssetPrices)
	if err != nil {
		// Current prices always cover invested assets: prices are
		// validated at open and merged in by every top-up. A missing
		// price here means no tick arrived yet; keep the last value.
		return
	}

	p.CurrentPnL = pnl
	p.PrevLossPercent = p.CurrentLossPercent

	if pnl >= 0 {
		p.CurrentLossPercent = 0
		return
	}

	invested, err := assets.TotalAmount(p.TotalInvestAssets, p.CurrentAssetPrices)
	if err != nil || invested == 0 {
		return
	}
	p.CurrentLossPercent = math.Abs(pnl) / invested * 100.0
}

// AddTopUp attaches supplementary collateral and recomputes PnL. The
// top-up's asset prices refresh the position's current prices so the
// new collateral can be valued immediately.
func (p *ActivePosition) AddTopUp(topUp *ActiveTopUp) {
	for asset, price := range topUp.AssetPrices {
		p.CurrentAssetPrices[asset] = price
	}
	p.TotalInvestAssets.Merge(topUp.TotalAssets)
	p.BonusInvestAssets.Merge(topUp.BonusAssets)
	p.TopUps = append(p.TopUps, topUp)
	p.updatePnL()
}

// TryCancelTopUps cancels every top-up older than delay whose entry
// price the market has moved back past by at least
// priceChangePercent. Canceled amounts leave TotalInvestAssets and
// BonusInvestAssets, and PnL is recomputed immediately when anything
// was canceled.
func (p *ActivePosition) TryCancelTopUps(priceChangePercent float64, delay time.Duration) []*CanceledTopUp {
	now := time.Now()
	var canceled []*CanceledTopUp

	kept := p.TopUps[:0]
	for _, topUp := range p.TopUps {
		if now.Sub(topUp.Date) <= delay {
			kept = append(kept, topUp)
			continue
		}

		recovered := false
		switch p.Order.Side {
		case SideBuy:
			recovered = p.CurrentPrice >= topUp.InstrumentPrice*(1.0+priceChangePercent/100.0)
		case SideSell:
			recovered = p.CurrentPrice <= topUp.InstrumentPrice*(1.0-priceChangePercent/100.0)
		}
		if !recovered {
			kept = append(kept, topUp)
			continue
		}

		p.TotalInvestAssets.Subtract(topUp.TotalAssets)
		p.BonusInvestAssets.Subtract(topUp.BonusAssets)
		canceled = append(canceled, topUp.Cancel(p.CurrentPrice, now))
	}
	p.TopUps = kept

	if len(canceled) > 0 {
		p.CanceledTopUps = append(p.CanceledTopUps, canceled...)
		p.updatePnL()
	}
	return canceled
}

// IsStopOut reports whether the loss reached the forced-liquidation
// threshold. Top-up eligibility takes priority: a position that can
// still be topped up is not liquidated.
func (p *ActivePosition) IsStopOut() bool {
	if p.IsTopUp() {
		return false
	}
	return p.CurrentLossPercent >= p.Order.StopOutPercent
}

// IsMarginCall fires only on the tick that crosses the threshold from
// below, and never for top-up-enabled orders where the top-up flow
// supersedes the warning.
func (p *ActivePosition) IsMarginCall() bool {
	if p.Order.TopUpEnabled {
		return false
	}
	return p.CurrentLossPercent >= p.Order.MarginCallPercent &&
		p.PrevLossPercent < p.Order.MarginCallPercent
}

// IsTopUp reports whether the position needs supplementary collateral.
func (p *ActivePosition) IsTopUp() bool {
	if p.TopUpLocked || !p.Order.TopUpEnabled {
		return false
	}
	return p.CurrentLossPercent >= p.Order.TopUpPercent
}

func (p *ActivePosition) isTakeProfit() bool {
	if p.Order.TakeProfit == nil {
		return false
	}
	return p.Order.TakeProfit.IsTriggered(p.CurrentPnL, p.CurrentPrice, p.Order.Side)
}

func (p *ActivePosition) isStopLoss() bool {
	if p.Order.StopLoss == nil {
		return false
	}
	return p.Order.StopLoss.IsTriggered(p.CurrentPnL, p.CurrentPrice, p.Order.Side)
}

// DetermineCloseReason returns the close reason with the highest
// priority, or nil when the position should stay open. Priority:
// StopOut > StopLoss > TakeProfit.
func (p *ActivePosition) DetermineCloseReason() *CloseReason {
	if p.IsStopOut() {
		reason := CloseReasonStopOut
		return &reason
	}
	if p.isStopLoss() {
		reason := CloseReasonStopLoss
		return &reason
	}
	if p.isTakeProfit() {
		reason := CloseReasonTakeProfit
		return &reason
	}
	return nil
}

// RequiredTopUpAmount returns the base-asset amount needed to restore
// margin. Calling it on a position that is not top-up eligible is a
// caller contract violation.
func (p *ActivePosition) RequiredTopUpAmount() (float64, error) {
	if !p.IsTopUp() {
		return 0, fmt.Errorf("position %s is not eligible for top-up", p.ID)
	}
	total, err := assets.TotalAmount(p.TotalInvestAssets, p.CurrentAssetPrices)
	if err != nil {
		return 0, err
	}
	return total * p.Order.TopUpPercent / 100.0, nil
}

// Close finalizes the position. When pnlAccuracy is set, per-asset and
// total PnL are floored (toward negative infinity) to that many decimal
// places so the platform never overstates a payout.
func (p *ActivePosition) Close(reason CloseReason, pnlAccuracy *int) *ClosedPosition {
	assetPnLs := p.AssetPnLs()
	if pnlAccuracy != nil {
		for asset, pnl := range assetPnLs {
			assetPnLs[asset] = floorTo(pnl, *pnlAccuracy)
		}
	}

	pnl, err := assets.TotalAmount(assetPnLs, p.CurrentAssetPrices)
	if err != nil {
		pnl = p.CurrentPnL
	}
	if pnlAccuracy != nil {
		pnl = floorTo(pnl, *pnlAccuracy)
	}

	activatePrice := p.ActivatePrice
	activateDate := p.ActivateDate

	return &ClosedPosition{
		ID:                  p.ID,
		Order:               p.Order,
		OpenDate:            p.OpenDate,
		OpenPrice:           p.OpenPrice,
		OpenAssetPrices:     p.OpenAssetPrices,
		ActivatePrice:       &activatePrice,
		ActivateDate:        &activateDate,
		ActivateAssetPrices: p.ActivateAssetPrices,
		ClosePrice:          p.CurrentPrice,
		CloseDate:           time.Now(),
		CloseReason:         reason,
		CloseAssetPrices:    p.CurrentAssetPrices.Clone(),
		PnL:                 &pnl,
		AssetPnLs:           assetPnLs,
		TopUps:              p.TopUps,
		CanceledTopUps:      p.CanceledTopUps,
		TotalInvestAssets:   p.TotalInvestAssets.Clone(),
		BonusInvestAssets:   p.BonusInvestAssets.Clone(),
	}
}

// TryClose closes the position if any close condition holds, otherwise
// returns it unchanged.
func (p *ActivePosition) TryClose(pnlAccuracy *int) Position {
	reason := p.DetermineCloseReason()
	if reason == nil {
		return p
	}
	return p.Close(*reason, pnlAccuracy)
}

func floorTo(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Floor(v*factor) / factor
}
