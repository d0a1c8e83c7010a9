package domain

// DefaultDecimals is assumed for a mint until its supply has been looked up.
const DefaultDecimals = 9

// TokenInfo is the canonical identity of a token plus a market snapshot,
// normalized from its most liquid trading pair.
type TokenInfo struct {
	MintAddress  string  `json:"mint_address"`           // unique key
	Symbol       string  `json:"symbol"`                 // ticker as listed by the pair
	Name         string  `json:"name"`                   // display name
	PriceUSD     float64 `json:"price_usd"`              // last price
	MarketCap    float64 `json:"market_cap"`             // 0 when unknown
	FDV          float64 `json:"fdv"`                    // fully diluted valuation
	LiquidityUSD float64 `json:"liquidity_usd"`          // pair liquidity
	Volume24h    float64 `json:"volume_24h"`             // 24h volume
	Supply       float64 `json:"supply"`                 // human units, 0 until enriched
	Decimals     int     `json:"decimals"`               // refined after supply lookup
	PairAddress  string  `json:"pair_address,omitempty"` // originating pair
	DexID        string  `json:"dex_id,omitempty"`       // originating DEX
}

// MarketCapOrFDV returns the market cap, falling back to FDV when the
// market cap is not reported.
func (t *TokenInfo) MarketCapOrFDV() float64 {
	if t.MarketCap != 0 {
		return t.MarketCap
	}
	return t.FDV
}
