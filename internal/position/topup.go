package position

import (
	"time"

	"MarginCore/internal/assets"
)

// ActiveTopUp is supplementary collateral attached to an active
// position. TotalAssets are at risk; BonusAssets are platform bonus
// collateral that never counts toward the stop-out loss.
type ActiveTopUp struct {
	ID              string
	Date            time.Time
	TotalAssets     assets.Amounts
	AssetPrices     assets.Prices
	InstrumentPrice float64
	BonusAssets     assets.Amounts
}

// Cancel converts the top-up into its canceled form, recording the
// price and time of cancellation.
func (t *ActiveTopUp) Cancel(instrumentPrice float64, at time.Time) *CanceledTopUp {
	return &CanceledTopUp{
		ID:                    t.ID,
		Date:                  t.Date,
		TotalAssets:           t.TotalAssets,
		AssetPrices:           t.AssetPrices,
		InstrumentPrice:       t.InstrumentPrice,
		BonusAssets:           t.BonusAssets,
		CancelInstrumentPrice: instrumentPrice,
		CancelDate:            at,
	}
}

// CanceledTopUp is a top-up withdrawn after the price recovered.
type CanceledTopUp struct {
	ID                    string
	Date                  time.Time
	TotalAssets           assets.Amounts
	AssetPrices           assets.Prices
	InstrumentPrice       float64
	BonusAssets           assets.Amounts
	CancelInstrumentPrice float64
	CancelDate            time.Time
}
