package assets

import (
	"fmt"
	"sort"
)

// Amounts maps asset symbols to amounts denominated in that asset.
type Amounts map[AssetSymbol]float64

// Prices maps asset symbols to their price in base-asset terms.
type Prices map[AssetSymbol]float64

// Clone returns a deep copy.
func (a Amounts) Clone() Amounts {
	out := make(Amounts, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Add merges amount into the map, additive if the asset is present.
func (a Amounts) Add(asset AssetSymbol, amount float64) {
	a[asset] += amount
}

// Merge adds every entry of other into a.
func (a Amounts) Merge(other Amounts) {
	for asset, amount := range other {
		a[asset] += amount
	}
}

// Subtract removes other's amounts from a. An asset whose remaining
// amount drops to zero or below is removed entirely.
func (a Amounts) Subtract(other Amounts) {
	for asset, amount := range other {
		rest, ok := a[asset]
		if !ok {
			continue
		}
		rest -= amount
		if rest <= 0 {
			delete(a, asset)
		} else {
			a[asset] = rest
		}
	}
}

// SortedSymbols returns the asset symbols in lexical order. Iteration
// over amounts must be ordered wherever float sums feed state, so that
// results do not depend on map iteration order.
func (a Amounts) SortedSymbols() []AssetSymbol {
	symbols := make([]AssetSymbol, 0, len(a))
	for asset := range a {
		symbols = append(symbols, asset)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	return symbols
}

// Clone returns a deep copy.
func (p Prices) Clone() Prices {
	out := make(Prices, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// TotalAmount values amounts at the given prices and sums the result in
// base-asset terms. Returns an error if any asset lacks a price.
func TotalAmount(amounts Amounts, prices Prices) (float64, error) {
	var total float64
	for _, asset := range amounts.SortedSymbols() {
		price, ok := prices[asset]
		if !ok {
			return 0, fmt.Errorf("price not found for %s", asset)
		}
		total += price * amounts[asset]
	}
	return total, nil
}
