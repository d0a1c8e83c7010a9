package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/matcher"
	"solana-wallet-tracker/internal/storage/memory"
)

const (
	bonkX   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	bonkY   = "So11111111111111111111111111111111111111112"
	wifMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type fakeTokens struct {
	byTicker map[string][]*domain.TokenInfo
}

func (f *fakeTokens) SearchByTicker(_ context.Context, ticker string) ([]*domain.TokenInfo, error) {
	return f.byTicker[ticker], nil
}

func (f *fakeTokens) Resolve(ctx context.Context, ticker string, _ float64) (*domain.TokenInfo, error) {
	tokens, _ := f.SearchByTicker(ctx, ticker)
	if len(tokens) == 0 {
		return nil, nil
	}
	return tokens[0], nil
}

func (f *fakeTokens) GetByMintAddress(_ context.Context, mint string) (*domain.TokenInfo, error) {
	for _, tokens := range f.byTicker {
		for _, t := range tokens {
			if t.MintAddress == mint {
				c := *t
				return &c, nil
			}
		}
	}
	return nil, nil
}

// newSession builds a session over BONK (two tokens) and WIF.
// BONK X: A holds 1000, B holds 500; BONK Y: C holds 1000.
// WIF: A and C hold 7.
func newSession(t *testing.T, input string) (*session, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()

	tokens := &fakeTokens{byTicker: map[string][]*domain.TokenInfo{
		"BONK": {
			{MintAddress: bonkX, Symbol: "BONK", Name: "Bonk", MarketCap: 1_500_000_000, LiquidityUSD: 900_000},
			{MintAddress: bonkY, Symbol: "BONK", Name: "Bonk Copy"},
		},
		"WIF": {{MintAddress: wifMint, Symbol: "WIF", Name: "dogwifhat"}},
	}}

	idx := memory.NewHolderIndex()
	require.NoError(t, idx.UpsertMint(ctx, bonkX, domain.TokenSupply{Decimals: 5}))
	require.NoError(t, idx.UpsertAccounts(ctx, bonkX, []domain.HolderRecord{
		{Owner: "A", TokenAccount: "x1", Amount: 100_000_000},
		{Owner: "B", TokenAccount: "x2", Amount: 50_000_000},
	}))
	require.NoError(t, idx.UpsertMint(ctx, bonkY, domain.TokenSupply{Decimals: 5}))
	require.NoError(t, idx.UpsertAccounts(ctx, bonkY, []domain.HolderRecord{
		{Owner: "C", TokenAccount: "y1", Amount: 100_000_000},
	}))
	require.NoError(t, idx.UpsertMint(ctx, wifMint, domain.TokenSupply{Decimals: 6}))
	require.NoError(t, idx.UpsertAccounts(ctx, wifMint, []domain.HolderRecord{
		{Owner: "A", TokenAccount: "w1", Amount: 7_000_000},
		{Owner: "C", TokenAccount: "w2", Amount: 7_000_000},
	}))

	var out bytes.Buffer
	m := matcher.New(matcher.DefaultConfig(), tokens, idx, matcher.WithLogger(log.New(io.Discard, "", 0)))
	return &session{
		in:      bufio.NewScanner(strings.NewReader(input)),
		out:     &out,
		tokens:  tokens,
		matcher: m,
	}, &out
}

func TestTestToken(t *testing.T) {
	s, out := newSession(t, "")

	require.NoError(t, s.testToken(context.Background(), "bonk"))
	assert.Contains(t, out.String(), "Found 2 token(s)")
	assert.Contains(t, out.String(), bonkX)
	assert.Contains(t, out.String(), "$1,500,000,000")

	out.Reset()
	require.NoError(t, s.testToken(context.Background(), "nope"))
	assert.Contains(t, out.String(), "No tokens found for ticker: NOPE")
}

func TestInteractive_Disambiguate(t *testing.T) {
	// Pick BONK #2 (Y): only C holds 1000 there.
	input := "bonk\n1000\n2\n"
	s, out := newSession(t, input)

	require.NoError(t, s.interactive(context.Background()))
	text := out.String()
	assert.Contains(t, text, "Multiple tokens found for 'BONK'")
	assert.Contains(t, text, "LIKELY WALLET")
	assert.Contains(t, text, "\nC\n")
}

func TestInteractive_VerificationFlow(t *testing.T) {
	// 7 WIF matches A and C; 1000 BONK (first choice, X) confirms A.
	input := "$wif\n7\ny\nbonk\n1,000\n\n"
	s, out := newSession(t, input)

	require.NoError(t, s.interactive(context.Background()))
	text := out.String()
	assert.Contains(t, text, "Found 2 Candidate Wallet(s)")
	assert.Contains(t, text, "WALLET CONFIRMED")
	assert.Contains(t, text, "\nA\n")
}

func TestInteractive_RepromptsBadAmount(t *testing.T) {
	input := "\n" + wifMint + "\nabc\n-1\nInf\nNaN\n7\nn\n"
	s, out := newSession(t, input)

	require.NoError(t, s.interactive(context.Background()))
	text := out.String()
	assert.Equal(t, 4, strings.Count(text, "Please enter a positive number."))
	assert.Contains(t, text, "Found 2 Candidate Wallet(s)")
	assert.NotContains(t, text, "Verifying")
}

func TestInteractive_EOF(t *testing.T) {
	s, _ := newSession(t, "WIF\n")

	err := s.interactive(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
}

func TestSearchOnce(t *testing.T) {
	s, out := newSession(t, "")

	require.NoError(t, s.searchOnce(context.Background(), "BONK", 1000, "", 0))
	text := out.String()
	assert.Contains(t, text, "2 tokens match BONK, using the most liquid")
	assert.Contains(t, text, "page 1: 2 accounts")
	assert.Contains(t, text, "LIKELY WALLET")

	out.Reset()
	require.NoError(t, s.searchOnce(context.Background(), "WIF", 7, bonkY, 1000))
	assert.Contains(t, out.String(), "WALLET CONFIRMED")
	assert.Contains(t, out.String(), "\nC\n")

	err := s.searchOnce(context.Background(), "NOPE", 1, "", 0)
	assert.True(t, errors.Is(err, errNoToken))

	assert.Error(t, s.searchOnce(context.Background(), "WIF", 0, "", 0))
	assert.Error(t, s.searchOnce(context.Background(), "WIF", math.Inf(1), "", 0))
	assert.Error(t, s.searchOnce(context.Background(), "WIF", math.NaN(), "", 0))
	assert.Error(t, s.searchOnce(context.Background(), "WIF", 7, "BONK", math.Inf(1)))
	assert.Error(t, s.searchOnce(context.Background(), "WIF", 7, "BONK", 0))
}

func TestUSD(t *testing.T) {
	assert.Equal(t, "N/A", usd(0))
	assert.Equal(t, "$999", usd(999))
	assert.Equal(t, "$1,000", usd(1000))
	assert.Equal(t, "$12,345,678", usd(12_345_678.4))
	assert.Equal(t, "-$1,000", usd(-1000))
}

func TestPrintVerification(t *testing.T) {
	var out bytes.Buffer
	printVerification(&out, &domain.VerificationResult{
		ConfirmedWallets:       []string{},
		PrimaryCandidates:      []*domain.WalletMatch{domain.NewWalletMatch("A")},
		VerificationCandidates: nil,
	})
	assert.Contains(t, out.String(), "NO MATCHES")
	assert.Contains(t, out.String(), "Primary holding candidates: 1")

	out.Reset()
	printVerification(&out, &domain.VerificationResult{ConfirmedWallets: []string{"A", "C"}})
	assert.Contains(t, out.String(), "Found 2 wallets matching both holdings")
	assert.Contains(t, out.String(), "  - C")
}
