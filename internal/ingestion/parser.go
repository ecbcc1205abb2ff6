package ingestion

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"MarginCore/internal/assets"
	"MarginCore/internal/position"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bidAskJSON is the tick wire format. Field names use snake_case to
// match upstream producers.
type bidAskJSON struct {
	Instrument  string  `json:"instrument"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	TimestampUs int64   `json:"timestamp_us"`
}

// ParseBidAsk decodes and validates one tick payload.
func ParseBidAsk(data []byte) (*position.BidAsk, error) {
	var raw bidAskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal bidask: %w", err)
	}

	if raw.Instrument == "" {
		return nil, fmt.Errorf("bidask missing instrument")
	}
	if raw.Bid <= 0 || raw.Ask <= 0 {
		return nil, fmt.Errorf("bidask %s has non-positive prices: bid=%v ask=%v",
			raw.Instrument, raw.Bid, raw.Ask)
	}

	return &position.BidAsk{
		Instrument: assets.InstrumentSymbol(raw.Instrument),
		Timestamp:  time.UnixMicro(raw.TimestampUs).UTC(),
		Bid:        raw.Bid,
		Ask:        raw.Ask,
	}, nil
}
