// Package asset holds the static instrument catalog.
package asset

import (
	"fmt"
	"strings"
)

// Category groups instruments for display and tiering.
type Category string

const (
	Crypto      Category = "Crypto"
	Stocks      Category = "Stocks"
	Forex       Category = "Forex"
	OTC         Category = "OTC"
	Commodities Category = "Commodities"
)

// Asset is an immutable instrument descriptor.
type Asset struct {
	Symbol        string   `yaml:"symbol" json:"symbol"`
	Name          string   `yaml:"name" json:"name"`
	Category      Category `yaml:"category" json:"category"`
	PayoutPercent float64  `yaml:"payout_percent" json:"payout_percent"`
	InitialPrice  float64  `yaml:"initial_price" json:"initial_price"`
	IsSimulated   bool     `yaml:"simulated" json:"is_simulated"`
	IsHot         bool     `yaml:"hot" json:"is_hot"`
}

// Catalog is a read-only, ordered set of assets indexed by lower-cased symbol.
type Catalog struct {
	assets []Asset
	index  map[string]int
}

// NewCatalog validates and indexes the supplied assets, preserving order.
func NewCatalog(assets []Asset) (*Catalog, error) {
	c := &Catalog{
		assets: make([]Asset, 0, len(assets)),
		index:  make(map[string]int, len(assets)),
	}
	for _, a := range assets {
		a.Symbol = strings.TrimSpace(a.Symbol)
		if a.Symbol == "" {
			return nil, fmt.Errorf("asset %q has empty symbol", a.Name)
		}
		key := strings.ToLower(a.Symbol)
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("duplicate asset symbol %q", a.Symbol)
		}
		if a.Name == "" {
			a.Name = a.Symbol
		}
		c.index[key] = len(c.assets)
		c.assets = append(c.assets, a)
	}
	return c, nil
}

// All returns a copy of the catalog in configured order.
func (c *Catalog) All() []Asset {
	out := make([]Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// Lookup finds an asset by symbol, case-insensitively.
func (c *Catalog) Lookup(symbol string) (Asset, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(symbol))]
	if !ok {
		return Asset{}, false
	}
	return c.assets[i], true
}

// Len reports the number of assets.
func (c *Catalog) Len() int { return len(c.assets) }

// Default returns the built-in instrument list used when the config names none.
func Default() []Asset {
	return []Asset{
		{Symbol: "btcusdt", Name: "Bitcoin", Category: Crypto, PayoutPercent: 86, InitialPrice: 116186.66, IsHot: true},
		{Symbol: "ltcusdt", Name: "Litecoin", Category: Crypto, PayoutPercent: 86, InitialPrice: 115.69, IsHot: true},
		{Symbol: "adausdt", Name: "Cardano", Category: Crypto, PayoutPercent: 86, InitialPrice: 0.8986, IsHot: true},
		{Symbol: "bnbusdt", Name: "BNB", Category: Crypto, PayoutPercent: 92, InitialPrice: 986.94, IsHot: true},
		{Symbol: "xrpusdt", Name: "XRP", Category: Crypto, PayoutPercent: 86, InitialPrice: 3.0356, IsHot: true},
		{Symbol: "ethusdt", Name: "Ethereum", Category: Crypto, PayoutPercent: 86, InitialPrice: 4512.84, IsHot: true},
		{Symbol: "solusdt", Name: "Solana", Category: Crypto, PayoutPercent: 86, InitialPrice: 240.65, IsHot: true},
		{Symbol: "dogeusdt", Name: "DOGE", Category: Crypto, PayoutPercent: 80, InitialPrice: 0.2448, IsHot: true},
		{Symbol: "avaxusdt", Name: "AVAX", Category: Crypto, PayoutPercent: 80, InitialPrice: 34.33, IsHot: true},
		{Symbol: "suiusdt", Name: "SUI", Category: Crypto, PayoutPercent: 80, InitialPrice: 3.19, IsHot: true},
		{Symbol: "linkusdt", Name: "LINK", Category: Crypto, PayoutPercent: 80, InitialPrice: 20.74, IsHot: true},
		{Symbol: "xlmusdt", Name: "Stellar", Category: Crypto, PayoutPercent: 80, InitialPrice: 0.28, IsHot: true},
		{Symbol: "AAPL_S", Name: "Apple", Category: Stocks, PayoutPercent: 98, InitialPrice: 237.92, IsSimulated: true, IsHot: true},
		{Symbol: "TSLA_S", Name: "Tesla", Category: Stocks, PayoutPercent: 94, InitialPrice: 416.81, IsSimulated: true, IsHot: true},
		{Symbol: "EURUSD_OTC", Name: "EUR/USD (OTC)", Category: OTC, PayoutPercent: 92, InitialPrice: 1.1260, IsSimulated: true, IsHot: true},
		{Symbol: "XAUUSD_F", Name: "XAU/USD", Category: Forex, PayoutPercent: 91, InitialPrice: 3648.86, IsSimulated: true, IsHot: true},
	}
}
