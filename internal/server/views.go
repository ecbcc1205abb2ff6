package server

import (
	"time"

	"MarginCore/internal/assets"
	"MarginCore/internal/monitor"
	"MarginCore/internal/position"
	"MarginCore/internal/wallet"
)

// positionView is the read-model JSON shape of a position in any
// lifecycle state. Fields that only exist in some states are pointers
// and omitted when absent.
type positionView struct {
	ID             string         `json:"id"`
	WalletID       string         `json:"wallet_id"`
	TraderID       string         `json:"trader_id"`
	Instrument     string         `json:"instrument"`
	Side           string         `json:"side"`
	Status         string         `json:"status"`
	Leverage       float64        `json:"leverage"`
	OpenPrice      float64        `json:"open_price"`
	OpenDate       time.Time      `json:"open_date"`
	DesirePrice    *float64       `json:"desire_price,omitempty"`
	ActivatePrice  *float64       `json:"activate_price,omitempty"`
	ActivateDate   *time.Time     `json:"activate_date,omitempty"`
	CurrentPrice   *float64       `json:"current_price,omitempty"`
	ClosePrice     *float64       `json:"close_price,omitempty"`
	CloseDate      *time.Time     `json:"close_date,omitempty"`
	CloseReason    *string        `json:"close_reason,omitempty"`
	PnL            *float64       `json:"pnl,omitempty"`
	LossPercent    *float64       `json:"loss_percent,omitempty"`
	AssetPnLs      assets.Amounts `json:"asset_pnls,omitempty"`
	InvestAssets   assets.Amounts `json:"invest_assets,omitempty"`
	TopUps         int            `json:"top_ups"`
	CanceledTopUps int            `json:"canceled_top_ups"`
	TopUpLocked    bool           `json:"top_up_locked,omitempty"`
	Locked         bool           `json:"locked"`
}

func newPositionView(p position.Position, locked bool) positionView {
	order := p.GetOrder()
	view := positionView{
		ID:         p.GetID().String(),
		WalletID:   string(order.WalletID),
		TraderID:   string(order.TraderID),
		Instrument: string(order.Instrument),
		Side:       order.Side.String(),
		Status:     p.GetStatus().String(),
		Leverage:   order.Leverage,
		OpenDate:   p.GetOpenDate(),
		Locked:     locked,
	}
	if order.DesirePrice != nil {
		v := *order.DesirePrice
		view.DesirePrice = &v
	}

	switch pos := p.(type) {
	case *position.PendingPosition:
		view.OpenPrice = pos.OpenPrice
		view.CurrentPrice = &pos.CurrentPrice
		view.InvestAssets = pos.TotalInvestAssets

	case *position.ActivePosition:
		view.OpenPrice = pos.OpenPrice
		view.ActivatePrice = &pos.ActivatePrice
		view.ActivateDate = &pos.ActivateDate
		view.CurrentPrice = &pos.CurrentPrice
		view.PnL = &pos.CurrentPnL
		view.LossPercent = &pos.CurrentLossPercent
		view.AssetPnLs = pos.AssetPnLs()
		view.InvestAssets = pos.TotalInvestAssets
		view.TopUps = len(pos.TopUps)
		view.CanceledTopUps = len(pos.CanceledTopUps)
		view.TopUpLocked = pos.TopUpLocked

	case *position.ClosedPosition:
		view.OpenPrice = pos.OpenPrice
		view.ActivatePrice = pos.ActivatePrice
		view.ActivateDate = pos.ActivateDate
		view.ClosePrice = &pos.ClosePrice
		view.CloseDate = &pos.CloseDate
		reason := pos.CloseReason.String()
		view.CloseReason = &reason
		view.PnL = pos.PnL
		view.AssetPnLs = pos.AssetPnLs
		view.InvestAssets = pos.TotalInvestAssets
		view.TopUps = len(pos.TopUps)
		view.CanceledTopUps = len(pos.CanceledTopUps)
	}

	return view
}

type walletView struct {
	ID                 string           `json:"id"`
	TraderID           string           `json:"trader_id"`
	BaseAsset          string           `json:"base_asset"`
	Balances           []wallet.Balance `json:"balances"`
	TotalBalance       float64          `json:"total_balance"`
	TotalReserved      float64          `json:"total_reserved"`
	CurrentLossPercent float64          `json:"current_loss_percent"`
	MarginCallPercent  float64          `json:"margin_call_percent"`
}

func newWalletView(w *wallet.Wallet) walletView {
	return walletView{
		ID:                 string(w.ID),
		TraderID:           string(w.TraderID),
		BaseAsset:          string(w.BaseAsset),
		Balances:           w.Balances(),
		TotalBalance:       w.TotalBalance,
		TotalReserved:      w.TotalReserved,
		CurrentLossPercent: w.CurrentLossPercent,
		MarginCallPercent:  w.MarginCallPercent,
	}
}

type statsView struct {
	Positions int `json:"positions"`
	Locked    int `json:"locked"`
	Wallets   int `json:"wallets"`
}

func newStatsView(s monitor.Stats) statsView {
	return statsView{Positions: s.Positions, Locked: s.Locked, Wallets: s.Wallets}
}
