// Package dexscreener implements the token search provider on top of the
// DexScreener public API.
package dexscreener

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"solana-wallet-tracker/internal/transport"
)

// DefaultBaseURL is the public DexScreener API.
const DefaultBaseURL = "https://api.dexscreener.com"

// ChainSolana is the DexScreener chain identifier for Solana.
const ChainSolana = "solana"

const providerName = "dexscreener"

// Client queries DexScreener for trading pairs.
type Client struct {
	baseURL string
	chainID string
	http    *transport.Client
}

// NewClient creates a DexScreener client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...transport.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		chainID: ChainSolana,
		http:    transport.NewClient(providerName, opts...),
	}
}

// SearchByTicker searches pairs by free text and keeps only Solana pairs,
// preserving DexScreener's ranking.
func (c *Client) SearchByTicker(ctx context.Context, query string) ([]Pair, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/search?q=%s", c.baseURL, url.QueryEscape(query))

	pairs, err := c.fetchPairs(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("search pairs %q: %w", query, err)
	}

	filtered := pairs[:0]
	for _, p := range pairs {
		if p.ChainID == c.chainID {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// GetPairsForMint returns all trading pairs of a token.
func (c *Client) GetPairsForMint(ctx context.Context, mint string) ([]Pair, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, url.PathEscape(mint))

	pairs, err := c.fetchPairs(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("get pairs for mint %s: %w", mint, err)
	}
	return pairs, nil
}

// GetMostLiquidPairForMint returns the pair with the highest USD liquidity,
// or nil when the token has no pairs. Pairs where mint is the base token are
// preferred over pairs quoting it; the first pair wins ties.
func (c *Client) GetMostLiquidPairForMint(ctx context.Context, mint string) (*Pair, error) {
	pairs, err := c.GetPairsForMint(ctx, mint)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	best := -1
	for i := range pairs {
		if pairs[i].BaseToken.Address != mint {
			continue
		}
		if best < 0 || pairs[i].LiquidityUSD > pairs[best].LiquidityUSD {
			best = i
		}
	}
	if best < 0 {
		best = 0
		for i := 1; i < len(pairs); i++ {
			if pairs[i].LiquidityUSD > pairs[best].LiquidityUSD {
				best = i
			}
		}
	}
	p := pairs[best]
	return &p, nil
}

func (c *Client) fetchPairs(ctx context.Context, endpoint string) ([]Pair, error) {
	var resp pairsResponse
	if err := c.http.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0, len(resp.Pairs))
	for i := range resp.Pairs {
		p, err := resp.Pairs[i].toPair()
		if err != nil {
			return nil, transport.Malformed(providerName, "%v", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}
