package position

import (
	"fmt"
	"sort"
	"time"

	"MarginCore/internal/assets"
)

// Side of the trade.
type Side int32

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// OrderType is derived from the presence of a desired activation price.
type OrderType int32

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
)

func (t OrderType) String() string {
	if t == OrderTypeLimit {
		return "Limit"
	}
	return "Market"
}

// AutoCloseUnit selects how a take-profit or stop-loss value is
// interpreted.
type AutoCloseUnit int32

const (
	UnitAssetAmount AutoCloseUnit = iota
	UnitPriceRate
)

// TakeProfitConfig closes a position once it earned enough.
type TakeProfitConfig struct {
	Value float64
	Unit  AutoCloseUnit
}

// IsTriggered reports whether the take-profit condition holds for the
// given pnl and close price.
func (c *TakeProfitConfig) IsTriggered(pnl, closePrice float64, side Side) bool {
	switch c.Unit {
	case UnitAssetAmount:
		return pnl >= c.Value
	case UnitPriceRate:
		if side == SideBuy {
			return closePrice >= c.Value
		}
		return closePrice <= c.Value
	default:
		return false
	}
}

// StopLossConfig closes a position once it lost enough.
type StopLossConfig struct {
	Value float64
	Unit  AutoCloseUnit
}

// IsTriggered reports whether the stop-loss condition holds for the
// given pnl and close price.
func (c *StopLossConfig) IsTriggered(pnl, closePrice float64, side Side) bool {
	switch c.Unit {
	case UnitAssetAmount:
		return pnl <= -c.Value
	case UnitPriceRate:
		if side == SideBuy {
			return closePrice <= c.Value
		}
		return closePrice >= c.Value
	default:
		return false
	}
}

// Order is the immutable trade intent a position is built from. The
// lifecycle code replaces InvestAssets on activation with the amounts
// actually committed; everything else stays as submitted.
type Order struct {
	ID                string
	WalletID          assets.WalletID
	TraderID          assets.TraderID
	Instrument        assets.InstrumentSymbol
	BaseAsset         assets.AssetSymbol
	Side              Side
	Leverage          float64
	InvestAssets      assets.Amounts
	DesirePrice       *float64
	TakeProfit        *TakeProfitConfig
	StopLoss          *StopLossConfig
	StopOutPercent    float64
	MarginCallPercent float64
	TopUpEnabled      bool
	TopUpPercent      float64
	FundingFeePeriod  *time.Duration
	CreatedDate       time.Time
}

// Type returns Limit when a desired activation price is set.
func (o *Order) Type() OrderType {
	if o.DesirePrice != nil {
		return OrderTypeLimit
	}
	return OrderTypeMarket
}

// Instruments returns the primary trading instrument plus the synthetic
// pricing instrument of every invested asset: the complete set of price
// feeds this order cares about.
func (o *Order) Instruments() []assets.InstrumentSymbol {
	instruments := o.InvestInstruments()
	instruments = append(instruments, o.Instrument)
	sort.Slice(instruments, func(i, j int) bool { return instruments[i] < instruments[j] })
	return instruments
}

// InvestInstruments returns only the collateral pricing instruments,
// used before activation when the primary instrument does not matter
// yet.
func (o *Order) InvestInstruments() []assets.InstrumentSymbol {
	instruments := make([]assets.InstrumentSymbol, 0, len(o.InvestAssets))
	for _, asset := range o.InvestAssets.SortedSymbols() {
		instruments = append(instruments, assets.PricingInstrument(asset, o.BaseAsset))
	}
	return instruments
}

// ValidatePrices ensures every invested asset has a quote. Callers must
// have prices for all collateral before opening.
func (o *Order) ValidatePrices(prices assets.Prices) error {
	for _, asset := range o.InvestAssets.SortedSymbols() {
		if _, ok := prices[asset]; !ok {
			return fmt.Errorf("missing price for invested asset %s", asset)
		}
	}
	return nil
}

// Volume is the leveraged exposure for an invested amount.
func (o *Order) Volume(investAmount float64) float64 {
	return investAmount * o.Leverage
}

// InvestAmount values the order's invested assets in base-asset terms.
func (o *Order) InvestAmount(prices assets.Prices) (float64, error) {
	return assets.TotalAmount(o.InvestAssets, prices)
}

// Open builds a position from the order against the submission tick.
// Market orders activate immediately; limit orders open Pending and
// attempt activation against the same tick, so a limit whose trigger is
// already satisfied (and funded) activates instantly.
func (o *Order) Open(bidask *BidAsk, assetPrices assets.Prices) (Position, error) {
	if o.Leverage <= 0 {
		return nil, fmt.Errorf("invalid leverage %v", o.Leverage)
	}
	if err := o.ValidatePrices(assetPrices); err != nil {
		return nil, err
	}

	if o.Type() == OrderTypeMarket {
		return newActivePosition(o, bidask, assetPrices), nil
	}

	pending := newPendingPosition(o, bidask, assetPrices)
	if pending.CanActivate() {
		active, err := pending.Activate()
		if err != nil {
			return nil, err
		}
		return active, nil
	}
	return pending, nil
}
