package position

import (
	"fmt"
	"time"

	"MarginCore/internal/assets"
)

// PendingPosition waits for its desired price. It can also be waiting
// for funding: a pending position whose TotalInvestAssets is empty has
// reached no committed collateral yet and cannot activate even once the
// price trigger fires.
type PendingPosition struct {
	ID                 assets.PositionID
	Order              *Order
	OpenDate           time.Time
	OpenPrice          float64
	OpenAssetPrices    assets.Prices
	CurrentPrice       float64
	CurrentAssetPrices assets.Prices
	LastUpdateDate     time.Time
	TotalInvestAssets  assets.Amounts
}

func newPendingPosition(order *Order, bidask *BidAsk, assetPrices assets.Prices) *PendingPosition {
	now := time.Now()
	openPrice := bidask.OpenPrice(order.Side)

	return &PendingPosition{
		ID:                 assets.NewPositionID(),
		Order:              order,
		OpenDate:           now,
		OpenPrice:          openPrice,
		OpenAssetPrices:    assetPrices.Clone(),
		CurrentPrice:       openPrice,
		CurrentAssetPrices: assetPrices.Clone(),
		LastUpdateDate:     now,
		TotalInvestAssets:  order.InvestAssets.Clone(),
	}
}

// Update applies a price tick: the instrument price if the tick is for
// the order's instrument, collateral prices for any invested asset
// whose pricing instrument matches.
func (p *PendingPosition) Update(bidask *BidAsk) {
	if p.Order.Instrument == bidask.Instrument {
		p.CurrentPrice = bidask.OpenPrice(p.Order.Side)
	}
	p.updateAssetPrices(bidask)
	p.LastUpdateDate = time.Now()
}

func (p *PendingPosition) updateAssetPrices(bidask *BidAsk) {
	for asset := range p.OpenAssetPrices {
		if assets.PricingInstrument(asset, p.Order.BaseAsset) != bidask.Instrument {
			continue
		}
		if price, err := bidask.AssetPrice(asset, SideSell); err == nil {
			p.CurrentAssetPrices[asset] = price
		}
	}
}

// IsPriceReached classifies the order as limit or stop from the
// relationship between the open price and the desired price, then
// checks the trigger:
//
//	Sell, open <= desired (limit sell):  current >= desired
//	Buy,  open >= desired (limit buy):   current <= desired
//	Sell, open >  desired (stop sell):   current <= desired
//	Buy,  open <  desired (stop buy):    current >= desired
func (p *PendingPosition) IsPriceReached() bool {
	if p.Order.DesirePrice == nil {
		return false
	}
	desired := *p.Order.DesirePrice

	switch p.Order.Side {
	case SideSell:
		if p.OpenPrice <= desired {
			return p.CurrentPrice >= desired
		}
		return p.CurrentPrice <= desired
	case SideBuy:
		if p.OpenPrice >= desired {
			return p.CurrentPrice <= desired
		}
		return p.CurrentPrice >= desired
	default:
		return false
	}
}

// CanActivate reports whether the price trigger fired and committed
// collateral exists.
func (p *PendingPosition) CanActivate() bool {
	return p.IsPriceReached() && len(p.TotalInvestAssets) > 0
}

// AddInvestAssets merges committed collateral into the pending
// position. Every asset must have been quoted at creation; an asset
// with no open price snapshot cannot be invested in.
func (p *PendingPosition) AddInvestAssets(amounts assets.Amounts) error {
	for _, asset := range amounts.SortedSymbols() {
		if _, ok := p.OpenAssetPrices[asset]; !ok {
			return fmt.Errorf("no open price for asset %s", asset)
		}
	}
	p.TotalInvestAssets.Merge(amounts)
	return nil
}

// Activate turns the pending position into an active one at the current
// price. The order's invested amounts are replaced by the committed
// collateral.
func (p *PendingPosition) Activate() (*ActivePosition, error) {
	if !p.IsPriceReached() {
		return nil, fmt.Errorf("desire price is not reached")
	}
	if len(p.TotalInvestAssets) == 0 {
		return nil, fmt.Errorf("no invested assets to activate with")
	}

	now := time.Now()
	p.Order.InvestAssets = p.TotalInvestAssets.Clone()

	return &ActivePosition{
		ID:                  p.ID,
		Order:               p.Order,
		OpenDate:            p.OpenDate,
		OpenPrice:           p.OpenPrice,
		OpenAssetPrices:     p.OpenAssetPrices,
		ActivatePrice:       p.CurrentPrice,
		ActivateDate:        now,
		ActivateAssetPrices: p.CurrentAssetPrices.Clone(),
		CurrentPrice:        p.CurrentPrice,
		CurrentAssetPrices:  p.CurrentAssetPrices,
		LastUpdateDate:      now,
		TotalInvestAssets:   p.TotalInvestAssets.Clone(),
		BonusInvestAssets:   make(assets.Amounts),
	}, nil
}

// Close cancels the pending position. It never activated, so there is
// no PnL to report.
func (p *PendingPosition) Close(reason CloseReason) *ClosedPosition {
	return &ClosedPosition{
		ID:                p.ID,
		Order:             p.Order,
		OpenDate:          p.OpenDate,
		OpenPrice:         p.OpenPrice,
		OpenAssetPrices:   p.OpenAssetPrices,
		ClosePrice:        p.CurrentPrice,
		CloseDate:         time.Now(),
		CloseReason:       reason,
		CloseAssetPrices:  p.CurrentAssetPrices.Clone(),
		AssetPnLs:         make(assets.Amounts),
		TotalInvestAssets: p.TotalInvestAssets.Clone(),
		BonusInvestAssets: make(assets.Amounts),
	}
}
