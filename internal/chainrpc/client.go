// Package chainrpc reads mint supply from a public Solana RPC node. The
// resolver uses it to enrich tokens with a human-readable total supply.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	jrpc "github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"solana-wallet-tracker/internal/transport"
)

// DefaultEndpoint is the public mainnet RPC.
const DefaultEndpoint = rpc.MainNetBeta_RPC

const providerName = "solana-rpc"

// errUnsupported is returned by the solana-go hooks this client never uses.
var errUnsupported = errors.New("chainrpc: batch and callback calls are not supported")

// Client wraps the solana-go RPC client. Requests go through the shared
// transport, so retries and error kinds match the other providers.
type Client struct {
	rpc *rpc.Client
}

// NewClient creates a client for endpoint. An empty endpoint uses DefaultEndpoint.
func NewClient(endpoint string, opts ...transport.Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		rpc: rpc.NewWithCustomRPCClient(&rpcTransport{
			endpoint: endpoint,
			http:     transport.NewClient(providerName, opts...),
		}),
	}
}

// GetTokenSupplyUI returns the total supply of a mint in human units.
func (c *Client) GetTokenSupplyUI(ctx context.Context, mint string) (float64, error) {
	mintPk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address %q: %w", mint, err)
	}

	out, err := c.rpc.GetTokenSupply(ctx, mintPk, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("getTokenSupply %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return 0, transport.Malformed(providerName, "getTokenSupply %s: no value", mint)
	}
	return uiAmount(out.Value)
}

// uiAmount prefers uiAmountString, which survives precision loss in uiAmount.
func uiAmount(v *rpc.UiTokenAmount) (float64, error) {
	if v.UiAmountString != "" {
		f, err := strconv.ParseFloat(v.UiAmountString, 64)
		if err != nil {
			return 0, transport.Malformed(providerName, "uiAmountString %q: %v", v.UiAmountString, err)
		}
		return f, nil
	}
	if v.UiAmount != nil {
		return *v.UiAmount, nil
	}
	return 0, transport.Malformed(providerName, "supply has no ui amount")
}

// rpcTransport implements rpc.JSONRPCClient over transport.Client.
type rpcTransport struct {
	endpoint  string
	http      *transport.Client
	requestID atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *jrpc.RPCError  `json:"error,omitempty"`
}

// CallForInto posts one JSON-RPC request and decodes its result into out.
// RPC error objects become upstream errors and are not retried.
func (t *rpcTransport) CallForInto(ctx context.Context, out interface{}, method string, params []interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      t.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	var resp rpcResponse
	if err := t.http.PostJSON(ctx, t.endpoint, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return &transport.UpstreamError{
			Provider:   providerName,
			StatusCode: http.StatusOK,
			Code:       resp.Error.Code,
			Message:    resp.Error.Message,
		}
	}
	if out == nil || len(resp.Result) == 0 || bytes.Equal(resp.Result, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return transport.Malformed(providerName, "%s result: %v", method, err)
	}
	return nil
}

func (t *rpcTransport) CallWithCallback(context.Context, string, []interface{}, func(*http.Request, *http.Response) error) error {
	return errUnsupported
}

func (t *rpcTransport) CallBatch(context.Context, jrpc.RPCRequests) (jrpc.RPCResponses, error) {
	return nil, errUnsupported
}

var _ rpc.JSONRPCClient = (*rpcTransport)(nil)
