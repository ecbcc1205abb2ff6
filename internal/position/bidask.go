package position

import (
	"fmt"
	"strings"
	"time"

	"MarginCore/internal/assets"
)

// BidAsk is a single instrument quote.
type BidAsk struct {
	Instrument assets.InstrumentSymbol
	Timestamp  time.Time
	Bid        float64
	Ask        float64
}

// OpenPrice returns the price a position opens at: a buyer lifts the
// ask, a seller hits the bid.
func (b *BidAsk) OpenPrice(side Side) float64 {
	if side == SideBuy {
		return b.Ask
	}
	return b.Bid
}

// ClosePrice returns the price a position closes at. Closing uses the
// opposite quote from opening, which is how spread cost enters PnL.
func (b *BidAsk) ClosePrice(side Side) float64 {
	if side == SideBuy {
		return b.Bid
	}
	return b.Ask
}

// AssetPrice returns the quote used to value an asset. The instrument
// must be the concatenation of asset and quote asset; anything else
// means the synthetic-instrument derivation or an index is corrupted
// and the caller must treat the error as fatal.
func (b *BidAsk) AssetPrice(asset assets.AssetSymbol, side Side) (float64, error) {
	if !strings.HasPrefix(string(b.Instrument), string(asset)) {
		return 0, fmt.Errorf("invalid instrument %s for asset %s", b.Instrument, asset)
	}
	if side == SideSell {
		return b.Ask, nil
	}
	return b.Bid, nil
}
