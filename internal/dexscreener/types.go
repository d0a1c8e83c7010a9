package dexscreener

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"solana-wallet-tracker/internal/domain"
)

// Pair is a trading pair as listed by DexScreener, validated at decode time.
type Pair struct {
	ChainID       string
	DexID         string
	PairAddress   string
	BaseToken     BaseToken
	PriceUSD      float64
	MarketCap     float64
	FDV           float64
	LiquidityUSD  float64
	Volume24h     float64
	PairCreatedAt int64 // Unix ms, 0 when unknown
}

// BaseToken is the token a pair prices.
type BaseToken struct {
	Address string
	Name    string
	Symbol  string
}

// TokenInfo normalizes the pair into a token identity.
func (p *Pair) TokenInfo() *domain.TokenInfo {
	return &domain.TokenInfo{
		MintAddress:  p.BaseToken.Address,
		Symbol:       p.BaseToken.Symbol,
		Name:         p.BaseToken.Name,
		PriceUSD:     p.PriceUSD,
		MarketCap:    p.MarketCap,
		FDV:          p.FDV,
		LiquidityUSD: p.LiquidityUSD,
		Volume24h:    p.Volume24h,
		Decimals:     domain.DefaultDecimals,
		PairAddress:  p.PairAddress,
		DexID:        p.DexID,
	}
}

// pairsResponse is the raw envelope shared by the search and token endpoints.
type pairsResponse struct {
	SchemaVersion string    `json:"schemaVersion"`
	Pairs         []rawPair `json:"pairs"`
}

type rawPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  flexFloat `json:"priceUsd"`
	MarketCap flexFloat `json:"marketCap"`
	FDV       flexFloat `json:"fdv"`
	Liquidity *struct {
		USD flexFloat `json:"usd"`
	} `json:"liquidity"`
	Volume *struct {
		H24 flexFloat `json:"h24"`
	} `json:"volume"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

// toPair validates required fields and converts to Pair.
func (r *rawPair) toPair() (Pair, error) {
	if r.BaseToken.Address == "" {
		return Pair{}, fmt.Errorf("pair %q has no baseToken.address", r.PairAddress)
	}

	p := Pair{
		ChainID:     r.ChainID,
		DexID:       r.DexID,
		PairAddress: r.PairAddress,
		BaseToken: BaseToken{
			Address: r.BaseToken.Address,
			Name:    r.BaseToken.Name,
			Symbol:  r.BaseToken.Symbol,
		},
		PriceUSD:      float64(r.PriceUSD),
		MarketCap:     float64(r.MarketCap),
		FDV:           float64(r.FDV),
		PairCreatedAt: r.PairCreatedAt,
	}
	if r.Liquidity != nil {
		p.LiquidityUSD = float64(r.Liquidity.USD)
	}
	if r.Volume != nil {
		p.Volume24h = float64(r.Volume.H24)
	}
	return p, nil
}

// flexFloat decodes a JSON number, a numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse numeric string %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
