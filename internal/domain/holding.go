package domain

// HoldingQuery is a user intent: "some wallet holds TokenAmount of Ticker".
// Resolution fills MintAddress and Decimals in place.
type HoldingQuery struct {
	Ticker      string  `json:"ticker"`                 // display label once resolved
	TokenAmount float64 `json:"token_amount"`           // target, human units
	MintAddress string  `json:"mint_address,omitempty"` // empty until resolved
	Decimals    int     `json:"decimals"`               // DefaultDecimals until resolved
}

// NewHoldingQuery creates an unresolved query.
func NewHoldingQuery(ticker string, amount float64) *HoldingQuery {
	return &HoldingQuery{
		Ticker:      ticker,
		TokenAmount: amount,
		Decimals:    DefaultDecimals,
	}
}

// Resolved reports whether the query already carries a mint address.
func (q *HoldingQuery) Resolved() bool {
	return q.MintAddress != ""
}
