// Package resolver turns a ticker or mint address into a single token identity.
package resolver

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"solana-wallet-tracker/internal/dexscreener"
	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
)

// DefaultMarketCapTolerance is the relative deviation accepted when a market
// cap hint picks between tokens sharing a ticker.
const DefaultMarketCapTolerance = 0.5

// PairSource searches trading pairs.
type PairSource interface {
	SearchByTicker(ctx context.Context, query string) ([]dexscreener.Pair, error)
	GetPairsForMint(ctx context.Context, mint string) ([]dexscreener.Pair, error)
	GetMostLiquidPairForMint(ctx context.Context, mint string) (*dexscreener.Pair, error)
}

// SupplySource reports the human-readable total supply of a mint.
type SupplySource interface {
	GetTokenSupplyUI(ctx context.Context, mint string) (float64, error)
}

// Resolver resolves tickers and mint addresses to token identities.
type Resolver struct {
	pairs  PairSource
	supply SupplySource
	logger *log.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSupplySource enables best-effort supply enrichment.
func WithSupplySource(s SupplySource) Option {
	return func(r *Resolver) {
		r.supply = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver over a pair source.
func New(pairs PairSource, opts ...Option) *Resolver {
	r := &Resolver{pairs: pairs}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r
}

// SearchByTicker returns the tokens whose symbol equals ticker (case-insensitive),
// one per mint, each described by its most liquid pair, most liquid first.
func (r *Resolver) SearchByTicker(ctx context.Context, ticker string) ([]*domain.TokenInfo, error) {
	want := strings.ToUpper(strings.TrimSpace(ticker))

	pairs, err := r.pairs.SearchByTicker(ctx, want)
	if err != nil {
		return nil, err
	}

	var order []string
	byMint := make(map[string]*dexscreener.Pair)
	for i := range pairs {
		p := &pairs[i]
		mint := p.BaseToken.Address
		if mint == "" {
			continue
		}
		if strings.ToUpper(p.BaseToken.Symbol) != want {
			continue
		}

		existing, seen := byMint[mint]
		if !seen {
			order = append(order, mint)
			byMint[mint] = p
			continue
		}
		if p.LiquidityUSD > existing.LiquidityUSD {
			byMint[mint] = p
		}
	}

	tokens := make([]*domain.TokenInfo, 0, len(order))
	for _, mint := range order {
		tokens = append(tokens, byMint[mint].TokenInfo())
	}
	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].LiquidityUSD > tokens[j].LiquidityUSD
	})

	return tokens, nil
}

// GetByMintAddress describes a mint by its most liquid pair, without ticker
// filtering. Returns nil when the mint has no pairs.
func (r *Resolver) GetByMintAddress(ctx context.Context, mint string) (*domain.TokenInfo, error) {
	pair, err := r.pairs.GetMostLiquidPairForMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, nil
	}

	token := pair.TokenInfo()
	r.enrichSupply(ctx, token)
	return token, nil
}

// Resolve picks one token for a ticker. Several candidates are disambiguated
// by marketCapHint when it is positive, otherwise the most liquid wins.
// Returns nil when no token matches.
func (r *Resolver) Resolve(ctx context.Context, ticker string, marketCapHint float64) (*domain.TokenInfo, error) {
	candidates, err := r.SearchByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var token *domain.TokenInfo
	switch {
	case len(candidates) == 0:
		return nil, nil
	case len(candidates) == 1:
		token = candidates[0]
	case marketCapHint > 0:
		token = DisambiguateByMarketCap(candidates, marketCapHint, DefaultMarketCapTolerance)
	default:
		token = candidates[0]
	}
	if len(candidates) > 1 {
		r.logger.Printf("%d tokens match %q, picked %s", len(candidates), ticker, describe(token))
	}

	if token != nil {
		r.enrichSupply(ctx, token)
	}
	return token, nil
}

// DisambiguateByMarketCap returns the candidate whose market cap (or FDV when
// the market cap is unknown) deviates least from target, provided the relative
// deviation is within tolerance. Otherwise it returns candidates[0].
func DisambiguateByMarketCap(candidates []*domain.TokenInfo, target, tolerance float64) *domain.TokenInfo {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 || target <= 0 {
		return candidates[0]
	}

	var best *domain.TokenInfo
	bestDiff := math.Inf(1)
	for _, t := range candidates {
		mcap := t.MarketCapOrFDV()
		if mcap <= 0 {
			continue
		}
		diff := math.Abs(mcap-target) / target
		if diff < bestDiff {
			best = t
			bestDiff = diff
		}
	}

	if best != nil && bestDiff <= tolerance {
		return best
	}
	return candidates[0]
}

// enrichSupply sets token.Supply from the supply source. Failures are logged
// and leave Supply at zero.
func (r *Resolver) enrichSupply(ctx context.Context, token *domain.TokenInfo) {
	if r.supply == nil {
		return
	}

	supply, err := r.supply.GetTokenSupplyUI(ctx, token.MintAddress)
	if err != nil {
		observability.RecordSupplyEnrichment("failed")
		r.logger.Printf("supply enrichment for %s failed: %v", token.MintAddress, err)
		return
	}
	observability.RecordSupplyEnrichment("ok")
	token.Supply = supply
}

// describe formats a token for log lines.
func describe(t *domain.TokenInfo) string {
	if t == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s (%s)", t.Symbol, t.MintAddress)
}
