// Package domain defines the core data structures shared by the wallet server.
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Asset is one priced entry of the market-data catalog.
type Asset struct {
	// ID catalog identifier, e.g. BTC.
	ID string
	// Name display name.
	Name string
	// IsCrypto reports whether the asset is a tradable crypto asset.
	IsCrypto bool
	// PriceUSD last known price in USD.
	PriceUSD decimal.Decimal
	// DataStart and DataEnd bound the catalog validity window as reported by the feed.
	DataStart string
	DataEnd   string
}

// Tradable reports whether the asset can be listed and traded.
func (a Asset) Tradable() bool {
	return a.IsCrypto && a.PriceUSD.IsPositive()
}

// String returns the block printed by list-offerings.
func (a Asset) String() string {
	return fmt.Sprintf("Asset {\n    assetId: '%s',\n    name: '%s',\n    priceUsd: '%s',\n    dataStart: '%s',\n    dataEnd: '%s'\n}\n",
		a.ID, a.Name, a.PriceUSD.StringFixed(6), a.DataStart, a.DataEnd)
}
