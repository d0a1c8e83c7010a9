// Package matcher finds wallets by the amount of a token they hold and
// confirms a wallet by intersecting two independent holdings.
package matcher

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/solana"
)

// Defaults used when a Config field is zero.
const (
	DefaultTolerance      = 0.001
	DefaultMaxHolderPages = ledger.DefaultMaxPages
	DefaultPageSize       = ledger.MaxPageSize
)

// Config holds matching parameters. It is passed by value and never mutated.
type Config struct {
	Tolerance      float64 // relative amount tolerance, 0.001 = 0.1%
	MaxHolderPages int     // pagination safety bound
	PageSize       int     // holder page size, at most 1000
}

// DefaultConfig returns the default matching parameters.
func DefaultConfig() Config {
	return Config{
		Tolerance:      DefaultTolerance,
		MaxHolderPages: DefaultMaxHolderPages,
		PageSize:       DefaultPageSize,
	}
}

// TokenResolver resolves a query to a token identity.
type TokenResolver interface {
	Resolve(ctx context.Context, ticker string, marketCapHint float64) (*domain.TokenInfo, error)
	GetByMintAddress(ctx context.Context, mint string) (*domain.TokenInfo, error)
}

// Progress stages reported during FindCandidates.
const (
	StageResolved = "resolved"
	StagePage     = "page"
)

// Progress is reported while a search runs.
type Progress struct {
	Stage string               `json:"stage"`
	Token *domain.TokenInfo    `json:"token,omitempty"`
	Page  *ledger.PageProgress `json:"page,omitempty"`
}

// Matcher is the wallet matching engine. It holds no per-request state and
// is safe for concurrent use.
type Matcher struct {
	cfg        Config
	resolver   TokenResolver
	ledger     ledger.Source
	logger     *log.Logger
	onProgress func(Progress)
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn func(Progress)) Option {
	return func(m *Matcher) {
		m.onProgress = fn
	}
}

// New creates a Matcher.
func New(cfg Config, resolver TokenResolver, src ledger.Source, opts ...Option) *Matcher {
	if !(cfg.Tolerance >= 0) {
		cfg.Tolerance = 0
	}
	if cfg.MaxHolderPages <= 0 {
		cfg.MaxHolderPages = DefaultMaxHolderPages
	}
	cfg.PageSize = ledger.ClampPageSize(cfg.PageSize)

	m := &Matcher{
		cfg:      cfg,
		resolver: resolver,
		ledger:   src,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	return m
}

// Config returns the effective matching parameters.
func (m *Matcher) Config() Config {
	return m.cfg
}

// WithProgress returns a copy of the matcher that reports progress to fn.
func (m *Matcher) WithProgress(fn func(Progress)) *Matcher {
	c := *m
	c.onProgress = fn
	return &c
}

// FindCandidates resolves the query's token, scans its holders and returns
// every owner whose aggregated balance is within tolerance of the target.
// An unresolvable token yields a result with a nil Token, not an error.
// The query is updated in place with the resolved mint and decimals.
func (m *Matcher) FindCandidates(ctx context.Context, query *domain.HoldingQuery) (*domain.SearchResult, error) {
	start := time.Now()

	result, err := m.findCandidates(ctx, query, start)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		observability.RecordSearch("error", elapsed.Seconds(), 0, 0)
	case result.Token == nil:
		observability.RecordSearch("not_found", elapsed.Seconds(), 0, 0)
	default:
		observability.RecordSearch(searchOutcome(result), elapsed.Seconds(), result.TotalHoldersScanned, len(result.Candidates))
	}
	return result, err
}

func (m *Matcher) findCandidates(ctx context.Context, query *domain.HoldingQuery, start time.Time) (*domain.SearchResult, error) {
	// Step 1: resolve identity
	token, err := m.resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	if token == nil {
		m.logger.Printf("no token found for %q", query.Ticker)
		return &domain.SearchResult{
			Query:        query,
			Candidates:   []*domain.WalletMatch{},
			SearchTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}
	query.MintAddress = token.MintAddress
	m.report(Progress{Stage: StageResolved, Token: token})

	// Step 2: decimals
	supply, err := m.ledger.GetTokenSupply(ctx, token.MintAddress)
	if err != nil {
		return nil, fmt.Errorf("get supply of %s: %w", token.MintAddress, err)
	}
	decimals := domain.DefaultDecimals
	if supply != nil {
		decimals = supply.Decimals
	}
	query.Decimals = decimals
	token.Decimals = decimals

	// Step 3: holders
	records, err := ledger.GetAllHolders(ctx, m.ledger, token.MintAddress, m.cfg.MaxHolderPages,
		ledger.WithPageSize(m.cfg.PageSize),
		ledger.WithProgress(func(p ledger.PageProgress) {
			m.report(Progress{Stage: StagePage, Page: &p})
		}),
	)
	if err != nil {
		return nil, err
	}

	// Steps 4-5: aggregate and filter
	totals := AggregateByOwner(records, decimals)
	candidates := MatchAmount(totals, token.MintAddress, query.TokenAmount, m.cfg.Tolerance)

	elapsed := time.Since(start).Milliseconds()
	m.logger.Printf("%s: scanned %d owners (%d accounts), %d candidates in %dms",
		token.MintAddress, len(totals), len(records), len(candidates), elapsed)

	return &domain.SearchResult{
		Query:               query,
		Token:               token,
		Candidates:          candidates,
		TotalHoldersScanned: len(totals),
		SearchTimeMs:        elapsed,
	}, nil
}

// resolve looks the token up by mint when the query carries one, else by ticker.
func (m *Matcher) resolve(ctx context.Context, query *domain.HoldingQuery) (*domain.TokenInfo, error) {
	if query.Resolved() {
		return m.resolver.GetByMintAddress(ctx, query.MintAddress)
	}
	return m.resolver.Resolve(ctx, query.Ticker, 0)
}

// VerifyWithSecondHolding runs both searches and intersects their owners.
// The searches run sequentially.
func (m *Matcher) VerifyWithSecondHolding(ctx context.Context, primary, verification *domain.HoldingQuery) (*domain.VerificationResult, error) {
	first, err := m.FindCandidates(ctx, primary)
	if err != nil {
		observability.RecordVerification("error")
		return nil, fmt.Errorf("primary holding: %w", err)
	}

	second, err := m.FindCandidates(ctx, verification)
	if err != nil {
		observability.RecordVerification("error")
		return nil, fmt.Errorf("verification holding: %w", err)
	}

	result := &domain.VerificationResult{
		PrimaryQuery:           primary,
		VerificationQuery:      verification,
		ConfirmedWallets:       Intersect(first.Candidates, second.Candidates),
		PrimaryCandidates:      first.Candidates,
		VerificationCandidates: second.Candidates,
	}

	switch {
	case result.Verified():
		observability.RecordVerification("verified")
	case len(result.ConfirmedWallets) > 1:
		observability.RecordVerification("ambiguous")
	default:
		observability.RecordVerification("none")
	}
	return result, nil
}

func (m *Matcher) report(p Progress) {
	if m.onProgress != nil {
		m.onProgress(p)
	}
}

// OwnerTotal is one owner's balance summed across token accounts.
type OwnerTotal struct {
	Owner  string
	Amount decimal.Decimal // human units
}

// AggregateByOwner sums raw amounts per owner exactly and scales by
// 10^-decimals. Records with an empty owner are skipped. Owners keep the
// order of their first record.
func AggregateByOwner(records []domain.HolderRecord, decimals int) []OwnerTotal {
	index := make(map[string]int)
	var totals []OwnerTotal

	for _, r := range records {
		if r.Owner == "" {
			continue
		}
		amount := decimal.NewFromUint64(r.Amount)
		if i, ok := index[r.Owner]; ok {
			totals[i].Amount = totals[i].Amount.Add(amount)
			continue
		}
		index[r.Owner] = len(totals)
		totals = append(totals, OwnerTotal{Owner: r.Owner, Amount: amount})
	}

	for i := range totals {
		totals[i].Amount = totals[i].Amount.Shift(int32(-decimals))
	}
	return totals
}

// MatchAmount returns a match for every owner with |amount - target| <= target * tolerance,
// ordered by deviation and then address. A target that is not a positive finite
// number, or a NaN tolerance, matches nothing. An infinite tolerance matches every owner.
func MatchAmount(totals []OwnerTotal, mint string, target, tolerance float64) []*domain.WalletMatch {
	matches := []*domain.WalletMatch{}
	if !(target > 0) || math.IsInf(target, 0) || math.IsNaN(tolerance) {
		return matches
	}
	unbounded := math.IsInf(tolerance, 1)

	want := decimal.NewFromFloat(target)
	band := decimal.Zero
	if !unbounded && tolerance > 0 {
		band = want.Mul(decimal.NewFromFloat(tolerance))
	}

	type scored struct {
		total     OwnerTotal
		deviation decimal.Decimal
	}
	var hits []scored
	for _, t := range totals {
		dev := t.Amount.Sub(want).Abs()
		if unbounded || dev.LessThanOrEqual(band) {
			hits = append(hits, scored{total: t, deviation: dev})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if c := hits[i].deviation.Cmp(hits[j].deviation); c != 0 {
			return c < 0
		}
		return hits[i].total.Owner < hits[j].total.Owner
	})

	for _, h := range hits {
		match := domain.NewWalletMatch(h.total.Owner)
		match.OnCurve = solana.IsOnCurve(h.total.Owner)
		match.AddHolding(mint, h.total.Amount.InexactFloat64())
		matches = append(matches, match)
	}
	return matches
}

// Intersect returns the sorted owner addresses present in both candidate lists.
func Intersect(a, b []*domain.WalletMatch) []string {
	inA := make(map[string]struct{}, len(a))
	for _, m := range a {
		inA[m.Address] = struct{}{}
	}

	confirmed := []string{}
	seen := make(map[string]struct{})
	for _, m := range b {
		if _, ok := inA[m.Address]; !ok {
			continue
		}
		if _, dup := seen[m.Address]; dup {
			continue
		}
		seen[m.Address] = struct{}{}
		confirmed = append(confirmed, m.Address)
	}
	sort.Strings(confirmed)
	return confirmed
}

func searchOutcome(r *domain.SearchResult) string {
	switch len(r.Candidates) {
	case 0:
		return "no_match"
	case 1:
		return "unique"
	default:
		return "multiple"
	}
}
