package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/matcher"
	"solana-wallet-tracker/internal/storage/memory"
	"solana-wallet-tracker/internal/transport"
)

const (
	bonkX   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	bonkY   = "So11111111111111111111111111111111111111112"
	wifMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	unknown = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// fakeTokens serves both the token directory and the matcher's resolver.
type fakeTokens struct {
	byTicker map[string][]*domain.TokenInfo
	err      error
}

func (f *fakeTokens) SearchByTicker(_ context.Context, ticker string) ([]*domain.TokenInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byTicker[ticker], nil
}

func (f *fakeTokens) Resolve(ctx context.Context, ticker string, _ float64) (*domain.TokenInfo, error) {
	tokens, err := f.SearchByTicker(ctx, ticker)
	if err != nil || len(tokens) == 0 {
		return nil, err
	}
	c := *tokens[0]
	return &c, nil
}

func (f *fakeTokens) GetByMintAddress(_ context.Context, mint string) (*domain.TokenInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
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

// newTestServer builds a server over two BONK tokens and one WIF token.
// BONK X (5 decimals): A holds 1000, B holds 500.
// WIF (6 decimals): A and C hold 7, B holds 3.
func newTestServer(t *testing.T) (*Server, *fakeTokens) {
	t.Helper()
	ctx := context.Background()

	tokens := &fakeTokens{byTicker: map[string][]*domain.TokenInfo{
		"BONK": {
			{MintAddress: bonkX, Symbol: "BONK", Name: "Bonk", LiquidityUSD: 900_000},
			{MintAddress: bonkY, Symbol: "BONK", Name: "Bonk Copy", LiquidityUSD: 1_000},
		},
		"WIF": {
			{MintAddress: wifMint, Symbol: "WIF", Name: "dogwifhat", LiquidityUSD: 500_000},
		},
	}}

	idx := memory.NewHolderIndex()
	require.NoError(t, idx.UpsertMint(ctx, bonkX, domain.TokenSupply{Amount: 1_000_000_000_000, Decimals: 5, UIAmount: 10_000_000}))
	require.NoError(t, idx.UpsertAccounts(ctx, bonkX, []domain.HolderRecord{
		{Owner: "A", TokenAccount: "x1", Amount: 100_000_000},
		{Owner: "B", TokenAccount: "x2", Amount: 50_000_000},
	}))
	require.NoError(t, idx.UpsertMint(ctx, wifMint, domain.TokenSupply{Amount: 1_000_000_000, Decimals: 6, UIAmount: 1000}))
	require.NoError(t, idx.UpsertAccounts(ctx, wifMint, []domain.HolderRecord{
		{Owner: "A", TokenAccount: "w1", Amount: 7_000_000},
		{Owner: "C", TokenAccount: "w2", Amount: 7_000_000},
		{Owner: "B", TokenAccount: "w3", Amount: 3_000_000},
	}))

	logger := log.New(io.Discard, "", 0)
	m := matcher.New(matcher.DefaultConfig(), tokens, idx, matcher.WithLogger(logger))
	return NewServer(":0", m, tokens, WithLogger(logger), WithBackend(idx.Name())), tokens
}

func do(t *testing.T, srv *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func candidateAddresses(matches []*domain.WalletMatch) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Address)
	}
	return out
}

func TestTokens(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/tokens?ticker=bonk", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TokensResponse
	decode(t, rec, &resp)
	assert.Equal(t, "BONK", resp.Ticker)
	require.Len(t, resp.Tokens, 2)
	assert.Equal(t, bonkX, resp.Tokens[0].MintAddress)

	rec = do(t, srv, http.MethodGet, "/api/tokens?ticker=nope", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ticker":"NOPE","tokens":[]}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/tokens", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFind_AmbiguousTickerAsksToDisambiguate(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/find", FindRequest{Token: "bonk", Amount: 1000})
	require.Equal(t, http.StatusMultipleChoices, rec.Code)

	var resp FindResponse
	decode(t, rec, &resp)
	assert.Equal(t, StatusDisambiguate, resp.Status)
	require.Len(t, resp.Tokens, 2)
	assert.Equal(t, bonkX, resp.Tokens[0].MintAddress)
	assert.Equal(t, bonkY, resp.Tokens[1].MintAddress)
	assert.Nil(t, resp.Result)
}

func TestFind_ResubmitWithMint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/find", FindRequest{Token: "bonk", Amount: 1000, Mint: bonkX})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FindResponse
	decode(t, rec, &resp)
	assert.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "BONK", resp.Result.Query.Ticker)
	assert.Equal(t, 5, resp.Result.Query.Decimals)
	assert.Equal(t, []string{"A"}, candidateAddresses(resp.Result.Candidates))
	assert.Equal(t, 1000.0, resp.Result.Candidates[0].Holdings[bonkX])
	assert.Equal(t, 2, resp.Result.TotalHoldersScanned)
}

func TestFind_SingleTickerSearchesDirectly(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/find", FindRequest{Token: "$wif", Amount: 7})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FindResponse
	decode(t, rec, &resp)
	require.NotNil(t, resp.Result)
	assert.Equal(t, wifMint, resp.Result.Token.MintAddress)
	assert.Equal(t, []string{"A", "C"}, candidateAddresses(resp.Result.Candidates))
}

func TestFind_PastedMint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/find", FindRequest{Token: wifMint, Amount: 3})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FindResponse
	decode(t, rec, &resp)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "EPjFWdd5...", resp.Result.Query.Ticker)
	assert.Equal(t, []string{"B"}, candidateAddresses(resp.Result.Candidates))
}

func TestFind_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/find", FindRequest{Token: "nope", Amount: 1})
	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp FindResponse
	decode(t, rec, &resp)
	assert.Equal(t, StatusNotFound, resp.Status)
	assert.Contains(t, resp.Message, "NOPE")

	rec = do(t, srv, http.MethodPost, "/api/find", FindRequest{Token: unknown, Amount: 1})
	require.Equal(t, http.StatusNotFound, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, StatusNotFound, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Nil(t, resp.Result.Token)
	assert.Empty(t, resp.Result.Candidates)
}

func TestFind_RejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		body   interface{}
		want   int
	}{
		{"zero amount", http.MethodPost, FindRequest{Token: "WIF"}, http.StatusBadRequest},
		{"negative amount", http.MethodPost, FindRequest{Token: "WIF", Amount: -1}, http.StatusBadRequest},
		{"missing token", http.MethodPost, FindRequest{Amount: 1}, http.StatusBadRequest},
		{"invalid mint", http.MethodPost, FindRequest{Token: "WIF", Amount: 1, Mint: "not-a-mint"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, map[string]interface{}{"token": "WIF", "amount": 1, "extra": true}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, "/api/find", tt.body)
			assert.Equal(t, tt.want, rec.Code)

			var resp ErrorResponse
			decode(t, rec, &resp)
			assert.Equal(t, StatusError, resp.Status)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestFind_UpstreamFailureIsGeneric(t *testing.T) {
	srv, tokens := newTestServer(t)
	tokens.err = &transport.RateLimitedError{Provider: "dexscreener"}

	rec := do(t, srv, http.MethodPost, "/api/find", FindRequest{Token: "WIF", Amount: 7})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, StatusError, resp.Status)
	assert.NotContains(t, resp.Message, "dexscreener")
	assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)

	tokens.err = &transport.UpstreamError{Provider: "dexscreener", StatusCode: 500, Message: "boom"}
	rec = do(t, srv, http.MethodPost, "/api/find", FindRequest{Token: "WIF", Amount: 7})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestVerify_AutoResolvesMostLiquid(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/verify", VerifyRequest{Token1: "BONK", Amount1: 1000, Token2: "wif", Amount2: 7})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VerifyResponse
	decode(t, rec, &resp)
	assert.Equal(t, StatusVerified, resp.Status)
	assert.Equal(t, "A", resp.Wallet)
	require.NotNil(t, resp.Result)
	assert.Equal(t, bonkX, resp.Result.PrimaryQuery.MintAddress)
	assert.Equal(t, []string{"A"}, resp.Result.ConfirmedWallets)
}

func TestVerify_Outcomes(t *testing.T) {
	srv, _ := newTestServer(t)

	// A and C both hold 7 WIF.
	rec := do(t, srv, http.MethodPost, "/api/verify", VerifyRequest{Token1: "WIF", Amount1: 7, Token2: wifMint, Amount2: 7})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp VerifyResponse
	decode(t, rec, &resp)
	assert.Equal(t, StatusAmbiguous, resp.Status)
	assert.Empty(t, resp.Wallet)
	assert.Equal(t, []string{"A", "C"}, resp.Result.ConfirmedWallets)

	// B holds 500 BONK but not 7 WIF.
	rec = do(t, srv, http.MethodPost, "/api/verify", VerifyRequest{Token1: "BONK", Amount1: 500, Token2: "WIF", Amount2: 7})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = VerifyResponse{}
	decode(t, rec, &resp)
	assert.Equal(t, StatusUnverified, resp.Status)
	assert.Empty(t, resp.Result.ConfirmedWallets)
}

func TestVerify_NamesUnresolvedTokens(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/verify", VerifyRequest{Token1: "nope", Amount1: 1, Token2: "WIF", Amount2: 7})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp VerifyResponse
	decode(t, rec, &resp)
	assert.Equal(t, StatusNotFound, resp.Status)
	assert.Equal(t, []string{"nope"}, resp.Missing)
	assert.Nil(t, resp.Result)
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health", nil)
	generated := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "not a uuid")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, "not a uuid", rec.Header().Get(RequestIDHeader))
}

func TestHealthAndStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	do(t, srv, http.MethodPost, "/api/find", FindRequest{Token: "WIF", Amount: 7})

	rec = do(t, srv, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	decode(t, rec, &status)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, "memory", status.Backend)
	assert.Equal(t, matcher.DefaultTolerance, status.Tolerance)
	assert.Equal(t, 1, status.Searches)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, http.MethodGet, "/api/tokens?ticker=WIF", nil)

	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wallet_tracker_api_requests_total")
}

func dialFind(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/find?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvents reads until the server closes the stream.
func readEvents(t *testing.T, conn *websocket.Conn) []Event {
	t.Helper()
	var events []Event
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			return events
		}
		events = append(events, ev)
	}
}

func TestWSFind_StreamsProgress(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	events := readEvents(t, dialFind(t, ts, "token=WIF&amount=7"))
	require.Len(t, events, 3)

	assert.Equal(t, matcher.StageResolved, events[0].Stage)
	require.NotNil(t, events[0].Token)
	assert.Equal(t, wifMint, events[0].Token.MintAddress)

	assert.Equal(t, matcher.StagePage, events[1].Stage)
	require.NotNil(t, events[1].Page)
	assert.Equal(t, 1, events[1].Page.Page)
	assert.Equal(t, 3, events[1].Page.TotalRecords)

	assert.Equal(t, StageDone, events[2].Stage)
	require.NotNil(t, events[2].Result)
	assert.Equal(t, []string{"A", "C"}, candidateAddresses(events[2].Result.Candidates))
}

func TestWSFind_Disambiguate(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	events := readEvents(t, dialFind(t, ts, "token=BONK&amount=1000"))
	require.Len(t, events, 1)
	assert.Equal(t, StageDisambiguate, events[0].Stage)
	assert.Len(t, events[0].Tokens, 2)

	events = readEvents(t, dialFind(t, ts, "token=BONK&amount=1000&mint="+bonkX))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, StageDone, last.Stage)
	assert.Equal(t, []string{"A"}, candidateAddresses(last.Result.Candidates))
}

func TestWSFind_Errors(t *testing.T) {
	srv, tokens := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, amount := range []string{"abc", "Inf", "-Inf", "NaN", "0"} {
		resp, err := http.Get(ts.URL + "/ws/find?token=WIF&amount=" + amount)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "amount=%s", amount)
	}

	events := readEvents(t, dialFind(t, ts, "token=NOPE&amount=1"))
	require.Len(t, events, 1)
	assert.Equal(t, StageError, events[0].Stage)

	tokens.err = &transport.TransportError{Provider: "dexscreener", Err: io.ErrUnexpectedEOF}
	events = readEvents(t, dialFind(t, ts, "token=WIF&amount=7"))
	require.Len(t, events, 1)
	assert.Equal(t, StageError, events[0].Stage)
	assert.Equal(t, "upstream service unreachable", events[0].Message)
}

func TestValidateHolding(t *testing.T) {
	assert.NoError(t, validateHolding("WIF", "", 7))
	assert.NoError(t, validateHolding("", wifMint, 0.5))

	for _, amount := range []float64{0, -1, math.Inf(1), math.Inf(-1), math.NaN()} {
		assert.Error(t, validateHolding("WIF", "", amount), "amount %v", amount)
	}
	assert.Error(t, validateHolding("", "", 7))
	assert.Error(t, validateHolding("WIF", "BONK", 7))
}
