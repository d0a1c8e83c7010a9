package matcher

import (
	"strings"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/solana"
)

// mintLabelLen is how much of a pasted mint address is kept as its label.
const mintLabelLen = 8

// LooksLikeMint reports whether raw user input is a mint address rather than a ticker.
func LooksLikeMint(raw string) bool {
	return solana.IsValidAddress(strings.TrimSpace(raw))
}

// ParseHoldingInput builds a query from raw user text. A mint address is
// set as MintAddress and labelled with its first characters; anything else
// is taken as an upper-cased ticker, with a leading "$" dropped.
func ParseHoldingInput(raw string, amount float64) *domain.HoldingQuery {
	raw = strings.TrimSpace(raw)

	if solana.IsValidAddress(raw) {
		q := domain.NewHoldingQuery(raw[:mintLabelLen]+"...", amount)
		q.MintAddress = raw
		return q
	}

	ticker := strings.ToUpper(strings.TrimPrefix(raw, "$"))
	return domain.NewHoldingQuery(ticker, amount)
}

// SelectToken pins a query to a chosen token, as after a disambiguation prompt.
func SelectToken(q *domain.HoldingQuery, token *domain.TokenInfo) {
	q.MintAddress = token.MintAddress
	q.Ticker = token.Symbol
}
