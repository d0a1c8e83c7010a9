package domain

// HolderRecord is one token account of a mint as returned by a ledger source.
// An owner holding several token accounts appears once per account.
type HolderRecord struct {
	Owner        string // owning wallet (may be a program-derived address)
	TokenAccount string // token account address
	Amount       uint64 // raw amount, before decimals
}

// TokenSupply is the total supply of a mint.
type TokenSupply struct {
	Amount   uint64  // raw amount, before decimals
	Decimals int     // decimal precision of the mint
	UIAmount float64 // Amount / 10^Decimals
}
