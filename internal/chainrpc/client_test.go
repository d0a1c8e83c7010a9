package chainrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-tracker/internal/transport"
)

const bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func newRPCServer(t *testing.T, respond func(method string, params []interface{}) map[string]interface{}) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     interface{}   `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := respond(req.Method, req.Params)
		resp["jsonrpc"] = "2.0"
		resp["id"] = req.ID

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(url string) *Client {
	return NewClient(url,
		transport.WithPolicy(transport.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
		transport.WithLogger(log.New(io.Discard, "", 0)),
	)
}

func supplyResult() map[string]interface{} {
	return map[string]interface{}{
		"result": map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": map[string]interface{}{
				"amount":         "8800000000000000",
				"decimals":       5,
				"uiAmount":       88000000000.0,
				"uiAmountString": "88000000000",
			},
		},
	}
}

func TestClient_GetTokenSupplyUI(t *testing.T) {
	server := newRPCServer(t, func(method string, params []interface{}) map[string]interface{} {
		assert.Equal(t, "getTokenSupply", method)
		require.NotEmpty(t, params)
		assert.Equal(t, bonkMint, params[0])

		return supplyResult()
	})

	client := newTestClient(server.URL)
	supply, err := client.GetTokenSupplyUI(context.Background(), bonkMint)
	require.NoError(t, err)
	assert.Equal(t, 88000000000.0, supply)
}

func TestClient_GetTokenSupplyUI_RPCError(t *testing.T) {
	server := newRPCServer(t, func(method string, params []interface{}) map[string]interface{} {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    -32602,
				"message": "Invalid param: not a Token mint",
			},
		}
	})

	client := newTestClient(server.URL)
	_, err := client.GetTokenSupplyUI(context.Background(), bonkMint)

	var ue *transport.UpstreamError
	require.True(t, errors.As(err, &ue), "expected UpstreamError, got %v", err)
	assert.Equal(t, -32602, ue.Code)
}

func TestClient_GetTokenSupplyUI_InvalidMint(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.GetTokenSupplyUI(context.Background(), "BONK")
	assert.Error(t, err)
}

func TestClient_GetTokenSupplyUI_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newTestClient(url)
	_, err := client.GetTokenSupplyUI(context.Background(), bonkMint)

	var te *transport.TransportError
	assert.True(t, errors.As(err, &te), "expected TransportError, got %v", err)
}

func TestClient_GetTokenSupplyUI_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	inner := newRPCServer(t, func(method string, params []interface{}) map[string]interface{} {
		return supplyResult()
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		inner.Config.Handler.ServeHTTP(w, r)
	}))
	defer server.Close()

	supply, err := newTestClient(server.URL).GetTokenSupplyUI(context.Background(), bonkMint)
	require.NoError(t, err)
	assert.Equal(t, 88000000000.0, supply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_GetTokenSupplyUI_RateLimitExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetTokenSupplyUI(context.Background(), bonkMint)

	var rl *transport.RateLimitedError
	assert.True(t, errors.As(err, &rl), "expected RateLimitedError, got %v", err)
}
