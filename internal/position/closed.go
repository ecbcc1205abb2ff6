package position

import (
	"time"

	"MarginCore/internal/assets"
)

// ClosedPosition is the terminal state. ActivatePrice, ActivateDate and
// PnL are nil for a pending position that was canceled before it ever
// activated.
type ClosedPosition struct {
	ID                  assets.PositionID
	Order               *Order
	OpenDate            time.Time
	OpenPrice           float64
	OpenAssetPrices     assets.Prices
	ActivatePrice       *float64
	ActivateDate        *time.Time
	ActivateAssetPrices assets.Prices
	ClosePrice          float64
	CloseDate           time.Time
	CloseReason         CloseReason
	CloseAssetPrices    assets.Prices
	PnL                 *float64
	AssetPnLs           assets.Amounts
	TopUps              []*ActiveTopUp
	CanceledTopUps      []*CanceledTopUp
	TotalInvestAssets   assets.Amounts
	BonusInvestAssets   assets.Amounts
}

// Status is Filled when the position was ever activated, Canceled
// otherwise.
func (p *ClosedPosition) Status() PositionStatus {
	if p.ActivateDate != nil {
		return StatusFilled
	}
	return StatusCanceled
}
