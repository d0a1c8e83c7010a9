package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/storage"
)

// HolderIndex implements storage.HolderIndex using PostgreSQL.
type HolderIndex struct {
	pool *Pool
}

// NewHolderIndex creates a new HolderIndex.
func NewHolderIndex(pool *Pool) *HolderIndex {
	return &HolderIndex{pool: pool}
}

// Compile-time interface check.
var _ storage.HolderIndex = (*HolderIndex)(nil)

// Name returns the backend label.
func (s *HolderIndex) Name() string {
	return "postgres"
}

// UpsertMint stores supply and decimals for a mint.
func (s *HolderIndex) UpsertMint(ctx context.Context, mint string, supply domain.TokenSupply) (err error) {
	if mint == "" || supply.Decimals < 0 {
		return storage.ErrInvalidInput
	}
	start := time.Now()
	defer func() { observe("upsert_mint", start, err) }()

	query := `
		INSERT INTO token_mints (mint, supply, decimals, ui_supply)
		VALUES ($1, $2::numeric, $3, $4)
		ON CONFLICT (mint) DO UPDATE SET
			supply = EXCLUDED.supply,
			decimals = EXCLUDED.decimals,
			ui_supply = EXCLUDED.ui_supply,
			updated_at = now()
	`

	_, err = s.pool.Exec(ctx, query,
		mint,
		strconv.FormatUint(supply.Amount, 10),
		supply.Decimals,
		supply.UIAmount,
	)
	if err != nil {
		return fmt.Errorf("upsert token mint: %w", err)
	}
	return nil
}

// UpsertAccounts stores token accounts atomically, replacing rows by address.
func (s *HolderIndex) UpsertAccounts(ctx context.Context, mint string, records []domain.HolderRecord) (err error) {
	if err := storage.ValidateBatch(mint, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("upsert_accounts", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// updated_at uses the application clock; PruneAccounts cutoffs come from the same clock.
	query := `
		INSERT INTO token_accounts (address, mint, owner, amount, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (address) DO UPDATE SET
			mint = EXCLUDED.mint,
			owner = EXCLUDED.owner,
			amount = EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at
	`

	written := time.Now()
	for _, r := range records {
		_, err := tx.Exec(ctx, query,
			r.TokenAccount,
			mint,
			r.Owner,
			strconv.FormatUint(r.Amount, 10),
			written,
		)
		if err != nil {
			if isInvalidValueError(err) {
				return storage.ErrInvalidInput
			}
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("upsert token account %s: %w", r.TokenAccount, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetMint retrieves supply for a mint. Returns ErrNotFound if not indexed.
func (s *HolderIndex) GetMint(ctx context.Context, mint string) (supply *domain.TokenSupply, err error) {
	start := time.Now()
	defer func() { observe("get_mint", start, err) }()

	query := `
		SELECT supply::text, decimals, ui_supply
		FROM token_mints
		WHERE mint = $1
	`

	row := s.pool.QueryRow(ctx, query, mint)
	supply, err = scanSupply(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token mint: %w", err)
	}
	return supply, nil
}

// CountAccounts returns the number of indexed token accounts of a mint.
func (s *HolderIndex) CountAccounts(ctx context.Context, mint string) (n int, err error) {
	start := time.Now()
	defer func() { observe("count_accounts", start, err) }()

	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM token_accounts WHERE mint = $1`, mint).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count token accounts: %w", err)
	}
	return n, nil
}

// PruneAccounts deletes the mint's accounts last written before cutoff.
func (s *HolderIndex) PruneAccounts(ctx context.Context, mint string, cutoff time.Time) (n int, err error) {
	start := time.Now()
	defer func() { observe("prune_accounts", start, err) }()

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM token_accounts
		WHERE mint = $1 AND updated_at < $2
	`, mint, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune token accounts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetHolderPage returns one page of token accounts ordered by account address.
func (s *HolderIndex) GetHolderPage(ctx context.Context, mint string, page, limit int) (records []domain.HolderRecord, err error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d: %w", page, storage.ErrInvalidInput)
	}
	limit = ledger.ClampPageSize(limit)
	start := time.Now()
	defer func() { observe("holder_page", start, err) }()

	query := `
		SELECT address, owner, amount::text
		FROM token_accounts
		WHERE mint = $1
		ORDER BY address ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, mint, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("get holder page: %w", err)
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

// scanSupply scans a single token_mints row.
func scanSupply(row pgx.Row) (*domain.TokenSupply, error) {
	var amount string
	var decimals int16
	var supply domain.TokenSupply

	if err := row.Scan(&amount, &decimals, &supply.UIAmount); err != nil {
		return nil, err
	}

	v, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse supply %q: %w", amount, err)
	}
	supply.Amount = v
	supply.Decimals = int(decimals)
	return &supply, nil
}

// scanHolderRecords scans multiple token_accounts rows.
func scanHolderRecords(rows pgx.Rows) ([]domain.HolderRecord, error) {
	records := []domain.HolderRecord{}

	for rows.Next() {
		var r domain.HolderRecord
		var amount string

		if err := rows.Scan(&r.TokenAccount, &r.Owner, &amount); err != nil {
			return nil, fmt.Errorf("scan token account row: %w", err)
		}

		v, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q of %s: %w", amount, r.TokenAccount, err)
		}
		r.Amount = v
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token account rows: %w", err)
	}

	return records, nil
}
