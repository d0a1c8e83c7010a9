package storage

import (
	"context"
	"time"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/ledger"
)

// HolderIndex is a self-hosted snapshot of token accounts. It serves the
// ledger query contract so the matcher can read from it instead of Helius.
type HolderIndex interface {
	ledger.Source
	ledger.Named

	// UpsertMint stores supply and decimals for a mint.
	UpsertMint(ctx context.Context, mint string, supply domain.TokenSupply) error

	// UpsertAccounts stores token accounts of a mint, replacing rows with the
	// same account address. Returns ErrDuplicateKey if the batch repeats an account.
	UpsertAccounts(ctx context.Context, mint string, records []domain.HolderRecord) error

	// GetMint retrieves supply for a mint. Returns ErrNotFound if not indexed.
	GetMint(ctx context.Context, mint string) (*domain.TokenSupply, error)

	// CountAccounts returns the number of indexed token accounts of a mint.
	CountAccounts(ctx context.Context, mint string) (int, error)

	// PruneAccounts deletes the mint's accounts last written before cutoff
	// and returns how many were removed.
	PruneAccounts(ctx context.Context, mint string, cutoff time.Time) (int, error)
}

// ValidateBatch checks a batch of records before it is written.
func ValidateBatch(mint string, records []domain.HolderRecord) error {
	if mint == "" {
		return ErrInvalidInput
	}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.TokenAccount == "" {
			return ErrInvalidInput
		}
		if _, exists := seen[r.TokenAccount]; exists {
			return ErrDuplicateKey
		}
		seen[r.TokenAccount] = struct{}{}
	}
	return nil
}
