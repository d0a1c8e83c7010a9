package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/storage"
)

// HolderIndex implements storage.HolderIndex using ClickHouse.
// Tables are ReplacingMergeTree, so reads use FINAL to see the latest row per key.
type HolderIndex struct {
	conn *Conn
}

// NewHolderIndex creates a new HolderIndex.
func NewHolderIndex(conn *Conn) *HolderIndex {
	return &HolderIndex{conn: conn}
}

// Compile-time interface check.
var _ storage.HolderIndex = (*HolderIndex)(nil)

// Name returns the backend label.
func (s *HolderIndex) Name() string {
	return "clickhouse"
}

// UpsertMint stores supply and decimals for a mint.
func (s *HolderIndex) UpsertMint(ctx context.Context, mint string, supply domain.TokenSupply) (err error) {
	if mint == "" || supply.Decimals < 0 || supply.Decimals > math.MaxUint8 {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("upsert_mint", start, err) }()

	err = s.conn.Exec(ctx, `
		INSERT INTO token_mints (mint, supply, decimals, ui_supply, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, mint, supply.Amount, uint8(supply.Decimals), supply.UIAmount, time.Now())
	if err != nil {
		return fmt.Errorf("insert token mint: %w", err)
	}
	return nil
}

// UpsertAccounts appends a new version of each token account in one batch.
func (s *HolderIndex) UpsertAccounts(ctx context.Context, mint string, records []domain.HolderRecord) (err error) {
	if err := storage.ValidateBatch(mint, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("upsert_accounts", start, err) }()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_accounts (mint, address, owner, amount, updated_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := time.Now()
	for _, r := range records {
		if err = batch.Append(mint, r.TokenAccount, r.Owner, r.Amount, version); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetMint retrieves supply for a mint. Returns ErrNotFound if not indexed.
func (s *HolderIndex) GetMint(ctx context.Context, mint string) (supply *domain.TokenSupply, err error) {
	start := time.Now()
	defer func() { observe("get_mint", start, err) }()

	rows, err := s.conn.Query(ctx, `
		SELECT supply, decimals, ui_supply
		FROM token_mints FINAL
		WHERE mint = ?
	`, mint)
	if err != nil {
		return nil, fmt.Errorf("query token mint: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate token mint rows: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	var decimals uint8
	supply = &domain.TokenSupply{}
	if err := rows.Scan(&supply.Amount, &decimals, &supply.UIAmount); err != nil {
		return nil, fmt.Errorf("scan token mint row: %w", err)
	}
	supply.Decimals = int(decimals)
	return supply, nil
}

// CountAccounts returns the number of indexed token accounts of a mint.
func (s *HolderIndex) CountAccounts(ctx context.Context, mint string) (n int, err error) {
	start := time.Now()
	defer func() { observe("count_accounts", start, err) }()

	var count uint64
	err = s.conn.QueryRow(ctx, `
		SELECT count() FROM token_accounts FINAL WHERE mint = ?
	`, mint).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count token accounts: %w", err)
	}
	return int(count), nil
}

// PruneAccounts deletes the mint's accounts whose latest version was written
// before cutoff. updated_at has millisecond precision, so cutoff is truncated
// to the millisecond. The mutation runs synchronously.
func (s *HolderIndex) PruneAccounts(ctx context.Context, mint string, cutoff time.Time) (n int, err error) {
	start := time.Now()
	defer func() { observe("prune_accounts", start, err) }()

	before := cutoff.Truncate(time.Millisecond).UnixMilli()

	var stale uint64
	err = s.conn.QueryRow(ctx, `
		SELECT count() FROM token_accounts FINAL
		WHERE mint = ? AND toUnixTimestamp64Milli(updated_at) < ?
	`, mint, before).Scan(&stale)
	if err != nil {
		return 0, fmt.Errorf("count stale token accounts: %w", err)
	}
	if stale == 0 {
		return 0, nil
	}

	syncCtx := clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 2,
	}))
	err = s.conn.Exec(syncCtx, `
		ALTER TABLE token_accounts DELETE
		WHERE mint = ? AND toUnixTimestamp64Milli(updated_at) < ?
	`, mint, before)
	if err != nil {
		return 0, fmt.Errorf("prune token accounts: %w", err)
	}
	return int(stale), nil
}

// GetHolderPage returns one page of token accounts ordered by account address.
func (s *HolderIndex) GetHolderPage(ctx context.Context, mint string, page, limit int) (records []domain.HolderRecord, err error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d: %w", page, storage.ErrInvalidInput)
	}
	limit = ledger.ClampPageSize(limit)
	start := time.Now()
	defer func() { observe("holder_page", start, err) }()

	rows, err := s.conn.Query(ctx, `
		SELECT address, owner, amount
		FROM token_accounts FINAL
		WHERE mint = ?
		ORDER BY address ASC
		LIMIT ? OFFSET ?
	`, mint, uint64(limit), uint64((page-1)*limit))
	if err != nil {
		return nil, fmt.Errorf("query holder page: %w", err)
	}
	defer rows.Close()

	return scanHolderRecords(rows)
}

// GetTokenSupply returns supply for a mint, or nil if the mint is not indexed.
func (s *HolderIndex) GetTokenSupply(ctx context.Context, mint string) (*domain.TokenSupply, error) {
	supply, err := s.GetMint(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return supply, err
}

// scanHolderRecords scans multiple token_accounts rows.
func scanHolderRecords(rows chRows) ([]domain.HolderRecord, error) {
	records := []domain.HolderRecord{}

	for rows.Next() {
		var r domain.HolderRecord
		if err := rows.Scan(&r.TokenAccount, &r.Owner, &r.Amount); err != nil {
			return nil, fmt.Errorf("scan token account row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token account rows: %w", err)
	}

	return records, nil
}
