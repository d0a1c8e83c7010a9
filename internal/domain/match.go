package domain

// WalletMatch is a wallet whose holdings matched one or more queries.
type WalletMatch struct {
	Address  string             `json:"address"`
	Holdings map[string]float64 `json:"holdings"` // mint -> human amount
	OnCurve  bool               `json:"on_curve"` // false for program-derived owners
}

// NewWalletMatch creates a match with no holdings.
func NewWalletMatch(address string) *WalletMatch {
	return &WalletMatch{
		Address:  address,
		Holdings: make(map[string]float64),
	}
}

// AddHolding records the amount held for a mint.
func (m *WalletMatch) AddHolding(mint string, amount float64) {
	m.Holdings[mint] = amount
}

// SearchResult is the outcome of one holder search.
// A nil Token means the query could not be resolved; Candidates is then empty.
type SearchResult struct {
	Query               *HoldingQuery  `json:"query"`
	Token               *TokenInfo     `json:"token"`
	Candidates          []*WalletMatch `json:"candidates"`
	TotalHoldersScanned int            `json:"total_holders_scanned"` // distinct owners
	SearchTimeMs        int64          `json:"search_time_ms"`
}

// Found reports whether at least one wallet matched.
func (r *SearchResult) Found() bool {
	return len(r.Candidates) > 0
}

// UniqueMatch reports whether exactly one wallet matched.
func (r *SearchResult) UniqueMatch() bool {
	return len(r.Candidates) == 1
}

// VerificationResult intersects the candidates of two independent searches.
type VerificationResult struct {
	PrimaryQuery           *HoldingQuery  `json:"primary_query"`
	VerificationQuery      *HoldingQuery  `json:"verification_query"`
	ConfirmedWallets       []string       `json:"confirmed_wallets"` // sorted
	PrimaryCandidates      []*WalletMatch `json:"primary_candidates"`
	VerificationCandidates []*WalletMatch `json:"verification_candidates"`
}

// Verified reports whether the intersection pins down exactly one wallet.
func (r *VerificationResult) Verified() bool {
	return len(r.ConfirmedWallets) == 1
}

// Wallet returns the confirmed wallet, or "" when not verified.
func (r *VerificationResult) Wallet() string {
	if !r.Verified() {
		return ""
	}
	return r.ConfirmedWallets[0]
}
