// Package ledger defines the ledger query contract shared by every holder
// backend and the pagination discipline used to collect a full holder set.
package ledger

import (
	"context"
	"fmt"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
)

// MaxPageSize is the largest holder page a backend serves.
const MaxPageSize = 1000

// DefaultMaxPages bounds pagination when no limit is configured.
const DefaultMaxPages = 50

// Source is a ledger indexing service.
type Source interface {
	// GetHolderPage returns one page of token accounts for a mint.
	// Pages are numbered from 1; limit is at most MaxPageSize.
	GetHolderPage(ctx context.Context, mint string, page, limit int) ([]domain.HolderRecord, error)

	// GetTokenSupply returns the total supply and decimals of a mint.
	// Returns nil when the backend knows nothing about the mint.
	GetTokenSupply(ctx context.Context, mint string) (*domain.TokenSupply, error)
}

// Named is implemented by sources that report a backend label for metrics.
type Named interface {
	Name() string
}

// PageProgress is reported after every fetched page.
type PageProgress struct {
	Mint         string `json:"mint"`
	Page         int    `json:"page"`
	PageRecords  int    `json:"page_records"`
	TotalRecords int    `json:"total_records"`
}

type options struct {
	pageSize int
	onPage   func(PageProgress)
}

// Option configures GetAllHolders.
type Option func(*options)

// WithPageSize sets the requested page size (clamped to MaxPageSize).
func WithPageSize(n int) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

// WithProgress registers a callback invoked after each page.
func WithProgress(fn func(PageProgress)) Option {
	return func(o *options) {
		o.onPage = fn
	}
}

// ClampPageSize maps non-positive or oversized values to MaxPageSize.
func ClampPageSize(n int) int {
	if n <= 0 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// GetAllHolders fetches holder pages starting at 1 until a page comes back
// shorter than the page size or maxPages pages have been fetched.
// Records are not deduplicated. Any page error aborts the walk; no partial
// result is returned.
func GetAllHolders(ctx context.Context, src Source, mint string, maxPages int, opts ...Option) ([]domain.HolderRecord, error) {
	var all []domain.HolderRecord
	_, err := WalkHolders(ctx, src, mint, maxPages, func(records []domain.HolderRecord) error {
		all = append(all, records...)
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return all, nil
}

// WalkHolders pages through the holders of a mint like GetAllHolders but
// hands every page to fn instead of collecting it. An error from fn stops
// the walk. It returns the number of pages fetched.
func WalkHolders(ctx context.Context, src Source, mint string, maxPages int, fn func([]domain.HolderRecord) error, opts ...Option) (int, error) {
	o := options{pageSize: MaxPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	pageSize := ClampPageSize(o.pageSize)
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	backend := "unknown"
	if n, ok := src.(Named); ok {
		backend = n.Name()
	}

	total := 0
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return page - 1, err
		}

		records, err := src.GetHolderPage(ctx, mint, page, pageSize)
		if err != nil {
			return page - 1, fmt.Errorf("fetch holder page %d for %s: %w", page, mint, err)
		}
		observability.RecordHolderPage(backend)

		if err := fn(records); err != nil {
			return page, err
		}
		total += len(records)
		if o.onPage != nil {
			o.onPage(PageProgress{
				Mint:         mint,
				Page:         page,
				PageRecords:  len(records),
				TotalRecords: total,
			})
		}

		// Short page is the last page
		if len(records) < pageSize {
			return page, nil
		}
	}

	return maxPages, nil
}
