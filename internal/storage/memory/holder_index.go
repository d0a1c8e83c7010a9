package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/storage"
)

// HolderIndex is an in-memory implementation of storage.HolderIndex.
// Accounts are paged in insertion order.
type HolderIndex struct {
	mu       sync.RWMutex
	mints    map[string]domain.TokenSupply
	accounts map[string][]domain.HolderRecord // keyed by mint, insertion order
	written  map[string][]time.Time           // parallel to accounts
	position map[string]map[string]int        // mint -> token account -> index in accounts

	pageRequests   int
	supplyRequests int
	pageErrors     map[int]error
}

// NewHolderIndex creates a new in-memory holder index.
func NewHolderIndex() *HolderIndex {
	return &HolderIndex{
		mints:      make(map[string]domain.TokenSupply),
		accounts:   make(map[string][]domain.HolderRecord),
		written:    make(map[string][]time.Time),
		position:   make(map[string]map[string]int),
		pageErrors: make(map[int]error),
	}
}

// Compile-time interface check.
var _ storage.HolderIndex = (*HolderIndex)(nil)

// Name returns the backend label.
func (s *HolderIndex) Name() string {
	return "memory"
}

// UpsertMint stores supply and decimals for a mint.
func (s *HolderIndex) UpsertMint(_ context.Context, mint string, supply domain.TokenSupply) error {
	if mint == "" || supply.Decimals < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.mints[mint] = supply
	return nil
}

// UpsertAccounts stores token accounts, replacing existing ones in place.
func (s *HolderIndex) UpsertAccounts(_ context.Context, mint string, records []domain.HolderRecord) error {
	if err := storage.ValidateBatch(mint, records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.position[mint]
	if !ok {
		pos = make(map[string]int)
		s.position[mint] = pos
	}

	now := time.Now()
	for _, r := range records {
		if i, exists := pos[r.TokenAccount]; exists {
			s.accounts[mint][i] = r
			s.written[mint][i] = now
			continue
		}
		pos[r.TokenAccount] = len(s.accounts[mint])
		s.accounts[mint] = append(s.accounts[mint], r)
		s.written[mint] = append(s.written[mint], now)
	}
	return nil
}

// PruneAccounts drops accounts last written before cutoff. Survivors keep
// their relative order.
func (s *HolderIndex) PruneAccounts(_ context.Context, mint string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, stamps := s.accounts[mint], s.written[mint]
	keptRecords := records[:0]
	keptStamps := stamps[:0]
	pos := make(map[string]int, len(records))
	for i, r := range records {
		if stamps[i].Before(cutoff) {
			continue
		}
		pos[r.TokenAccount] = len(keptRecords)
		keptRecords = append(keptRecords, r)
		keptStamps = append(keptStamps, stamps[i])
	}

	removed := len(records) - len(keptRecords)
	s.accounts[mint] = keptRecords
	s.written[mint] = keptStamps
	s.position[mint] = pos
	return removed, nil
}

// GetMint retrieves supply for a mint. Returns ErrNotFound if not indexed.
func (s *HolderIndex) GetMint(_ context.Context, mint string) (*domain.TokenSupply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supply, exists := s.mints[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return &supply, nil
}

// CountAccounts returns the number of indexed token accounts of a mint.
func (s *HolderIndex) CountAccounts(_ context.Context, mint string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.accounts[mint]), nil
}

// GetHolderPage returns one page of token accounts in insertion order.
func (s *HolderIndex) GetHolderPage(ctx context.Context, mint string, page, limit int) ([]domain.HolderRecord, error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d: %w", page, storage.ErrInvalidInput)
	}
	limit = ledger.ClampPageSize(limit)

	s.mu.Lock()
	s.pageRequests++
	failure := s.pageErrors[page]
	s.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.accounts[mint]
	start := (page - 1) * limit
	if start >= len(all) {
		return []domain.HolderRecord{}, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	result := make([]domain.HolderRecord, end-start)
	copy(result, all[start:end])
	return result, nil
}

// GetTokenSupply returns supply for a mint, or nil if the mint is not indexed.
func (s *HolderIndex) GetTokenSupply(ctx context.Context, mint string) (*domain.TokenSupply, error) {
	s.mu.Lock()
	s.supplyRequests++
	s.mu.Unlock()

	supply, err := s.GetMint(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return supply, err
}

// FailPage makes every request for the given page number return err.
func (s *HolderIndex) FailPage(page int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pageErrors[page] = err
}

// PageRequests returns the number of GetHolderPage calls served.
func (s *HolderIndex) PageRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pageRequests
}

// SupplyRequests returns the number of GetTokenSupply calls served.
func (s *HolderIndex) SupplyRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.supplyRequests
}
