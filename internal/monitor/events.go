package monitor

import (
	"MarginCore/internal/assets"
	"MarginCore/internal/position"
)

// EventType discriminator for monitoring events.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePositionClosed
	EventTypePositionActivated
	EventTypePositionMarginCall
	EventTypePositionLocked
	EventTypeWalletMarginCall
)

func (et EventType) String() string {
	switch et {
	case EventTypePositionClosed:
		return "PositionClosed"
	case EventTypePositionActivated:
		return "PositionActivated"
	case EventTypePositionMarginCall:
		return "PositionMarginCall"
	case EventTypePositionLocked:
		return "PositionLocked"
	case EventTypeWalletMarginCall:
		return "WalletMarginCall"
	default:
		return "Unknown"
	}
}

// Event is one state change produced by a monitor update, for the
// downstream notification and persistence consumers.
type Event interface {
	EventType() EventType
}

// PositionClosed: a position was closed and removed from the cache.
type PositionClosed struct {
	Position *position.ClosedPosition
}

func (PositionClosed) EventType() EventType { return EventTypePositionClosed }

// PositionActivated: a pending position with committed collateral
// reached its desired price and was re-added as active.
type PositionActivated struct {
	Position *position.ActivePosition
}

func (PositionActivated) EventType() EventType { return EventTypePositionActivated }

// PositionMarginCall: an active position crossed its margin-call
// threshold on this tick.
type PositionMarginCall struct {
	Position *position.ActivePosition
}

func (PositionMarginCall) EventType() EventType { return EventTypePositionMarginCall }

// LockReason explains why a position was excluded from automatic
// updates pending an external decision.
type LockReason int32

const (
	// LockReasonTopUp: the position needs supplementary collateral.
	LockReasonTopUp LockReason = iota
	// LockReasonTopUpsCanceled: top-ups were withdrawn and the host
	// must settle them.
	LockReasonTopUpsCanceled
	// LockReasonActivationPending: the desired price was reached but
	// no collateral is committed yet.
	LockReasonActivationPending
)

func (r LockReason) String() string {
	switch r {
	case LockReasonTopUp:
		return "TopUp"
	case LockReasonTopUpsCanceled:
		return "TopUpsCanceled"
	case LockReasonActivationPending:
		return "ActivationPending"
	default:
		return "Unknown"
	}
}

// PositionLocked: the monitor locked a position until the host calls
// Unlock. Active is set for TopUp and TopUpsCanceled, Pending for
// ActivationPending.
type PositionLocked struct {
	Reason         LockReason
	Active         *position.ActivePosition
	Pending        *position.PendingPosition
	CanceledTopUps []*position.CanceledTopUp
}

func (PositionLocked) EventType() EventType { return EventTypePositionLocked }

// PositionID returns the locked position's id regardless of state.
func (e PositionLocked) PositionID() assets.PositionID {
	if e.Active != nil {
		return e.Active.ID
	}
	if e.Pending != nil {
		return e.Pending.ID
	}
	return ""
}

// WalletMarginCall: a wallet's aggregate loss crossed its margin-call
// threshold on this tick.
type WalletMarginCall struct {
	WalletID    assets.WalletID
	TraderID    assets.TraderID
	LossPercent float64
	PnL         float64
}

func (WalletMarginCall) EventType() EventType { return EventTypeWalletMarginCall }
