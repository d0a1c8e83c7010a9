// Package indexer snapshots the holder set of a mint from a ledger source
// into a database holder index, page by page.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/storage"
)

// ErrMintNotFound is returned when the source knows nothing about the mint.
var ErrMintNotFound = errors.New("mint not found")

// Stats summarizes one snapshot.
type Stats struct {
	Mint     string
	Supply   domain.TokenSupply
	Pages    int
	Fetched  int  // records read from the source
	Written  int  // records written after dropping repeats within a page
	Pruned   int  // accounts removed because the walk no longer saw them
	Complete bool // the walk reached the last holder page
	Indexed  int  // accounts of the mint in the index afterwards
	Duration time.Duration
}

// Indexer copies holder pages from a source into an index.
type Indexer struct {
	src      ledger.Source
	dst      storage.HolderIndex
	maxPages int
	pageSize int
	logger   *log.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithMaxPages bounds the number of pages fetched.
func WithMaxPages(n int) Option {
	return func(x *Indexer) {
		x.maxPages = n
	}
}

// WithPageSize sets the page size requested from the source.
func WithPageSize(n int) Option {
	return func(x *Indexer) {
		x.pageSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(x *Indexer) {
		x.logger = logger
	}
}

// New creates an Indexer.
func New(src ledger.Source, dst storage.HolderIndex, opts ...Option) *Indexer {
	x := &Indexer{
		src:      src,
		dst:      dst,
		maxPages: ledger.DefaultMaxPages,
		pageSize: ledger.MaxPageSize,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.logger == nil {
		x.logger = log.Default()
	}
	return x
}

// Snapshot stores the mint's supply and then every holder page. Pages are
// written as they arrive; a failure leaves earlier pages in place. When the
// walk reaches the last page, accounts of the mint not written by this
// snapshot are pruned. A walk cut short by the page bound prunes nothing.
func (x *Indexer) Snapshot(ctx context.Context, mint string) (*Stats, error) {
	start := time.Now()
	stats := &Stats{Mint: mint}
	pageSize := ledger.ClampPageSize(x.pageSize)
	lastPage := 0

	supply, err := x.src.GetTokenSupply(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get supply of %s: %w", mint, err)
	}
	if supply == nil {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, mint)
	}
	if err := x.dst.UpsertMint(ctx, mint, *supply); err != nil {
		return nil, fmt.Errorf("store mint %s: %w", mint, err)
	}
	stats.Supply = *supply

	pages, err := ledger.WalkHolders(ctx, x.src, mint, x.maxPages, func(records []domain.HolderRecord) error {
		batch := uniqueAccounts(records)
		stats.Fetched += len(records)
		lastPage = len(records)
		if len(batch) == 0 {
			return nil
		}
		if err := x.dst.UpsertAccounts(ctx, mint, batch); err != nil {
			return fmt.Errorf("store accounts of %s: %w", mint, err)
		}
		stats.Written += len(batch)
		return nil
	},
		ledger.WithPageSize(pageSize),
		ledger.WithProgress(func(p ledger.PageProgress) {
			x.logger.Printf("%s: page %d, %d records (%d total)", mint, p.Page, p.PageRecords, p.TotalRecords)
		}),
	)
	stats.Pages = pages
	if err != nil {
		return stats, err
	}

	stats.Complete = lastPage < pageSize
	if stats.Complete {
		if stats.Pruned, err = x.dst.PruneAccounts(ctx, mint, start); err != nil {
			return stats, fmt.Errorf("prune accounts of %s: %w", mint, err)
		}
	} else {
		x.logger.Printf("%s: stopped at the %d page bound, keeping accounts not seen", mint, pages)
	}

	if stats.Indexed, err = x.dst.CountAccounts(ctx, mint); err != nil {
		return stats, fmt.Errorf("count accounts of %s: %w", mint, err)
	}
	stats.Duration = time.Since(start)

	x.logger.Printf("%s: indexed %d accounts from %d pages, pruned %d, in %v",
		mint, stats.Indexed, stats.Pages, stats.Pruned, stats.Duration.Truncate(time.Millisecond))
	return stats, nil
}

// uniqueAccounts drops records without an account address and keeps the
// last record of a repeated account at its first position.
func uniqueAccounts(records []domain.HolderRecord) []domain.HolderRecord {
	index := make(map[string]int, len(records))
	out := make([]domain.HolderRecord, 0, len(records))
	for _, r := range records {
		if r.TokenAccount == "" {
			continue
		}
		if i, ok := index[r.TokenAccount]; ok {
			out[i] = r
			continue
		}
		index[r.TokenAccount] = len(out)
		out = append(out, r)
	}
	return out
}
