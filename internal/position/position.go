package position

import (
	"sort"
	"time"

	"MarginCore/internal/assets"
)

// PositionStatus is the externally visible lifecycle state.
type PositionStatus int32

const (
	StatusPending PositionStatus = iota
	StatusActive
	StatusFilled
	StatusCanceled
)

func (s PositionStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusActive:
		return "Active"
	case StatusFilled:
		return "Filled"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// CloseReason records why a position left the Active or Pending state.
type CloseReason int32

const (
	CloseReasonClientCommand CloseReason = iota
	CloseReasonStopOut
	CloseReasonTakeProfit
	CloseReasonStopLoss
	CloseReasonAdminCommand
)

func (r CloseReason) String() string {
	switch r {
	case CloseReasonClientCommand:
		return "ClientCommand"
	case CloseReasonStopOut:
		return "StopOut"
	case CloseReasonTakeProfit:
		return "TakeProfit"
	case CloseReasonStopLoss:
		return "StopLoss"
	case CloseReasonAdminCommand:
		return "AdminCommand"
	default:
		return "Unknown"
	}
}

// Position is the closed union of the three lifecycle states:
// *PendingPosition, *ActivePosition and *ClosedPosition. The state set
// is small and closed, so shared operations are exhaustive type
// switches rather than virtual dispatch.
type Position interface {
	GetID() assets.PositionID
	GetOrder() *Order
	GetStatus() PositionStatus
	GetOpenDate() time.Time
	GetWalletID() assets.WalletID

	// GetInstruments returns every instrument whose price feed this
	// position depends on: the primary trading instrument plus the
	// synthetic pricing instrument of every invested asset, including
	// top-up assets.
	GetInstruments() []assets.InstrumentSymbol

	isPosition()
}

func (p *PendingPosition) isPosition() {}
func (p *ActivePosition) isPosition()  {}
func (p *ClosedPosition) isPosition()  {}

func (p *PendingPosition) GetID() assets.PositionID { return p.ID }
func (p *ActivePosition) GetID() assets.PositionID  { return p.ID }
func (p *ClosedPosition) GetID() assets.PositionID  { return p.ID }

func (p *PendingPosition) GetOrder() *Order { return p.Order }
func (p *ActivePosition) GetOrder() *Order  { return p.Order }
func (p *ClosedPosition) GetOrder() *Order  { return p.Order }

func (p *PendingPosition) GetStatus() PositionStatus { return StatusPending }
func (p *ActivePosition) GetStatus() PositionStatus  { return StatusActive }
func (p *ClosedPosition) GetStatus() PositionStatus  { return p.Status() }

func (p *PendingPosition) GetOpenDate() time.Time { return p.OpenDate }
func (p *ActivePosition) GetOpenDate() time.Time  { return p.OpenDate }
func (p *ClosedPosition) GetOpenDate() time.Time  { return p.OpenDate }

func (p *PendingPosition) GetWalletID() assets.WalletID { return p.Order.WalletID }
func (p *ActivePosition) GetWalletID() assets.WalletID  { return p.Order.WalletID }
func (p *ClosedPosition) GetWalletID() assets.WalletID  { return p.Order.WalletID }

func (p *PendingPosition) GetInstruments() []assets.InstrumentSymbol {
	return p.Order.Instruments()
}

func (p *ActivePosition) GetInstruments() []assets.InstrumentSymbol {
	return mergeInstruments(p.Order, p.TopUps)
}

func (p *ClosedPosition) GetInstruments() []assets.InstrumentSymbol {
	return mergeInstruments(p.Order, p.TopUps)
}

func mergeInstruments(order *Order, topUps []*ActiveTopUp) []assets.InstrumentSymbol {
	set := make(map[assets.InstrumentSymbol]struct{})
	for _, instrument := range order.Instruments() {
		set[instrument] = struct{}{}
	}
	for _, topUp := range topUps {
		for asset := range topUp.TotalAssets {
			set[assets.PricingInstrument(asset, order.BaseAsset)] = struct{}{}
		}
	}

	instruments := make([]assets.InstrumentSymbol, 0, len(set))
	for instrument := range set {
		instruments = append(instruments, instrument)
	}
	sort.Slice(instruments, func(i, j int) bool { return instruments[i] < instruments[j] })
	return instruments
}
