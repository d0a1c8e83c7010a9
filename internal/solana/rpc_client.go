package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/ledger"
	"solana-wallet-tracker/internal/transport"
)

const providerName = "helius"

// HTTPClient implements ledger.Source over Helius JSON-RPC 2.0
// (DAS getTokenAccounts and getTokenSupply).
type HTTPClient struct {
	endpoint  string
	http      *transport.Client
	requestID atomic.Uint64
}

// Compile-time interface check.
var _ ledger.Source = (*HTTPClient)(nil)

// NewHTTPClient creates a new Helius RPC client.
func NewHTTPClient(endpoint string, opts ...transport.Option) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		http:     transport.NewClient(providerName, opts...),
	}
}

// Name returns the backend label.
func (c *HTTPClient) Name() string {
	return providerName
}

// call performs a JSON-RPC call. Transport retries are handled by the shared
// policy; RPC error objects are returned as upstream errors and not retried.
func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	var resp rpcResponse
	if err := c.http.PostJSON(ctx, c.endpoint, req, &resp); err != nil {
		return err
	}

	if resp.Error != nil {
		return &transport.UpstreamError{
			Provider:   providerName,
			StatusCode: 200,
			Code:       resp.Error.Code,
			Message:    resp.Error.Message,
		}
	}

	if result == nil || len(resp.Result) == 0 || bytes.Equal(resp.Result, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return transport.Malformed(providerName, "%s result: %v", method, err)
	}
	return nil
}

// GetHolderPage retrieves one page of token accounts for a mint.
func (c *HTTPClient) GetHolderPage(ctx context.Context, mint string, page, limit int) ([]domain.HolderRecord, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}

	params := map[string]interface{}{
		"mint":           mint,
		"page":           page,
		"limit":          ledger.ClampPageSize(limit),
		"displayOptions": map[string]interface{}{},
	}

	var result getTokenAccountsResult
	if err := c.call(ctx, "getTokenAccounts", params, &result); err != nil {
		return nil, fmt.Errorf("getTokenAccounts page %d: %w", page, err)
	}

	records := make([]domain.HolderRecord, 0, len(result.TokenAccounts))
	for i, acct := range result.TokenAccounts {
		if acct.Address == "" {
			return nil, transport.Malformed(providerName, "token account %d on page %d has no address", i, page)
		}
		amount, err := parseRawAmount(acct.Amount)
		if err != nil {
			return nil, transport.Malformed(providerName, "token account %s: %v", acct.Address, err)
		}
		records = append(records, domain.HolderRecord{
			Owner:        acct.Owner,
			TokenAccount: acct.Address,
			Amount:       amount,
		})
	}

	return records, nil
}

// getTokenAccountsResult is the raw DAS response for getTokenAccounts.
type getTokenAccountsResult struct {
	Total         int               `json:"total"`
	Limit         int               `json:"limit"`
	Page          int               `json:"page"`
	TokenAccounts []rawTokenAccount `json:"token_accounts"`
}

type rawTokenAccount struct {
	Address string       `json:"address"`
	Mint    string       `json:"mint"`
	Owner   string       `json:"owner"`
	Amount  *json.Number `json:"amount"`
	Frozen  bool         `json:"frozen"`
}

// GetTokenSupply retrieves supply and decimals for a mint.
// Returns nil if the RPC reports no value.
func (c *HTTPClient) GetTokenSupply(ctx context.Context, mint string) (*domain.TokenSupply, error) {
	var result getTokenSupplyResult
	if err := c.call(ctx, "getTokenSupply", []interface{}{mint}, &result); err != nil {
		return nil, fmt.Errorf("getTokenSupply %s: %w", mint, err)
	}

	if result.Value == nil {
		return nil, nil
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return nil, transport.Malformed(providerName, "supply amount %q: %v", result.Value.Amount, err)
	}

	supply := &domain.TokenSupply{
		Amount:   amount,
		Decimals: result.Value.Decimals,
	}
	if result.Value.UIAmount != nil {
		supply.UIAmount = *result.Value.UIAmount
	} else if result.Value.UIAmountString != "" {
		supply.UIAmount, _ = strconv.ParseFloat(result.Value.UIAmountString, 64)
	}

	return supply, nil
}

// getTokenSupplyResult is the raw RPC response for getTokenSupply.
type getTokenSupplyResult struct {
	Value *struct {
		Amount         string   `json:"amount"`
		Decimals       int      `json:"decimals"`
		UIAmount       *float64 `json:"uiAmount"`
		UIAmountString string   `json:"uiAmountString"`
	} `json:"value"`
}

// parseRawAmount parses an integer token amount.
func parseRawAmount(n *json.Number) (uint64, error) {
	if n == nil {
		return 0, fmt.Errorf("missing amount")
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a u64: %w", n.String(), err)
	}
	return v, nil
}
