// Package solana implements the Helius-backed ledger source and Solana
// address helpers.
package solana

import (
	"encoding/json"
	"fmt"
)

// HeliusRPCBaseURL is the Helius mainnet JSON-RPC endpoint.
const HeliusRPCBaseURL = "https://mainnet.helius-rpc.com"

// HeliusRPCURL returns the Helius RPC endpoint authenticated with apiKey.
func HeliusRPCURL(apiKey string) string {
	return fmt.Sprintf("%s/?api-key=%s", HeliusRPCBaseURL, apiKey)
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
