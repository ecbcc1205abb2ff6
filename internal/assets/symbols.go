package assets

// AssetSymbol identifies a single asset ("BTC", "USDT").
type AssetSymbol string

// InstrumentSymbol identifies a tradable pair ("BTCUSDT").
// By convention it is the concatenation of the asset symbol and the
// quote asset symbol.
type InstrumentSymbol string

func (s AssetSymbol) String() string      { return string(s) }
func (s InstrumentSymbol) String() string { return string(s) }

// PricingInstrument derives the synthetic instrument used to value an
// asset against a base asset: asset + base.
func PricingInstrument(asset, base AssetSymbol) InstrumentSymbol {
	return InstrumentSymbol(string(asset) + string(base))
}

// AssetAmount is an amount denominated in a specific asset.
type AssetAmount struct {
	Symbol AssetSymbol
	Amount float64
}

// AssetPrice is the price of an asset in base-asset terms.
type AssetPrice struct {
	Symbol AssetSymbol
	Price  float64
}
