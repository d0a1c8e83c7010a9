package solana

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solana-wallet-tracker/internal/transport"
)

func newTestClient(t *testing.T, handler func(req rpcRequest) interface{}) *HTTPClient {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		switch v := handler(req).(type) {
		case *rpcError:
			resp["error"] = v
		default:
			resp["result"] = v
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	return NewHTTPClient(server.URL,
		transport.WithPolicy(transport.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}),
		transport.WithLogger(log.New(io.Discard, "", 0)),
	)
}

func TestHTTPClient_GetHolderPage(t *testing.T) {
	client := newTestClient(t, func(req rpcRequest) interface{} {
		if req.Method != "getTokenAccounts" {
			t.Errorf("expected method getTokenAccounts, got %s", req.Method)
		}

		params, ok := req.Params.(map[string]interface{})
		if !ok {
			t.Fatalf("expected object params, got %T", req.Params)
		}
		if params["mint"] != "mintX" {
			t.Errorf("expected mint mintX, got %v", params["mint"])
		}
		if params["page"] != float64(2) {
			t.Errorf("expected page 2, got %v", params["page"])
		}
		if params["limit"] != float64(1000) {
			t.Errorf("expected limit clamped to 1000, got %v", params["limit"])
		}

		return map[string]interface{}{
			"total": 2,
			"limit": 1000,
			"page":  2,
			"token_accounts": []map[string]interface{}{
				{"address": "acct1", "mint": "mintX", "owner": "ownerA", "amount": json.Number("1000000000")},
				{"address": "acct2", "mint": "mintX", "owner": "ownerB", "amount": json.Number("18446744073709551615")},
			},
		}
	})

	records, err := client.GetHolderPage(context.Background(), "mintX", 2, 5000)
	if err != nil {
		t.Fatalf("GetHolderPage: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Owner != "ownerA" || records[0].TokenAccount != "acct1" || records[0].Amount != 1000000000 {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Amount != 18446744073709551615 {
		t.Errorf("expected max u64 amount, got %d", records[1].Amount)
	}
}

func TestHTTPClient_GetHolderPage_NullResult(t *testing.T) {
	client := newTestClient(t, func(req rpcRequest) interface{} {
		return nil
	})

	records, err := client.GetHolderPage(context.Background(), "mintX", 1, 1000)
	if err != nil {
		t.Fatalf("GetHolderPage: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestHTTPClient_GetHolderPage_MalformedAmount(t *testing.T) {
	client := newTestClient(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"token_accounts": []map[string]interface{}{
				{"address": "acct1", "owner": "ownerA", "amount": 1.5},
			},
		}
	})

	_, err := client.GetHolderPage(context.Background(), "mintX", 1, 1000)
	if !errors.Is(err, transport.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestHTTPClient_GetHolderPage_MissingAmount(t *testing.T) {
	client := newTestClient(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"token_accounts": []map[string]interface{}{
				{"address": "acct1", "owner": "ownerA"},
			},
		}
	})

	_, err := client.GetHolderPage(context.Background(), "mintX", 1, 1000)
	if !errors.Is(err, transport.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestHTTPClient_GetHolderPage_OwnerAndAddress(t *testing.T) {
	client := newTestClient(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"token_accounts": []map[string]interface{}{
				{"address": "acct1", "amount": json.Number("7")},
			},
		}
	})

	records, err := client.GetHolderPage(context.Background(), "mintX", 1, 1000)
	if err != nil {
		t.Fatalf("empty owner should pass through, got %v", err)
	}
	if len(records) != 1 || records[0].Owner != "" || records[0].Amount != 7 {
		t.Errorf("unexpected records %+v", records)
	}

	client = newTestClient(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"token_accounts": []map[string]interface{}{
				{"owner": "ownerA", "amount": json.Number("7")},
			},
		}
	})

	_, err = client.GetHolderPage(context.Background(), "mintX", 1, 1000)
	if !errors.Is(err, transport.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse for a missing address, got %v", err)
	}
}

func TestHTTPClient_GetHolderPage_InvalidPage(t *testing.T) {
	client := newTestClient(t, func(req rpcRequest) interface{} {
		t.Error("no request expected")
		return nil
	})

	if _, err := client.GetHolderPage(context.Background(), "mintX", 0, 1000); err == nil {
		t.Fatal("expected error for page 0")
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	client := newTestClient(t, func(req rpcRequest) interface{} {
		return &rpcError{Code: -32602, Message: "invalid mint"}
	})

	_, err := client.GetHolderPage(context.Background(), "bad", 1, 1000)

	var ue *transport.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Code != -32602 || ue.Message != "invalid mint" {
		t.Errorf("unexpected upstream error: %+v", ue)
	}
}

func TestHTTPClient_GetTokenSupply(t *testing.T) {
	client := newTestClient(t, func(req rpcRequest) interface{} {
		if req.Method != "getTokenSupply" {
			t.Errorf("expected method getTokenSupply, got %s", req.Method)
		}
		params, ok := req.Params.([]interface{})
		if !ok || len(params) != 1 || params[0] != "mintX" {
			t.Errorf("unexpected params: %v", req.Params)
		}

		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": map[string]interface{}{
				"amount":         "88000000000000000",
				"decimals":       5,
				"uiAmount":       880000000000.0,
				"uiAmountString": "880000000000",
			},
		}
	})

	supply, err := client.GetTokenSupply(context.Background(), "mintX")
	if err != nil {
		t.Fatalf("GetTokenSupply: %v", err)
	}
	if supply == nil {
		t.Fatal("expected supply, got nil")
	}
	if supply.Decimals != 5 {
		t.Errorf("expected decimals 5, got %d", supply.Decimals)
	}
	if supply.Amount != 88000000000000000 {
		t.Errorf("unexpected amount %d", supply.Amount)
	}
	if supply.UIAmount != 880000000000.0 {
		t.Errorf("unexpected ui amount %f", supply.UIAmount)
	}
}

func TestHTTPClient_GetTokenSupply_NoValue(t *testing.T) {
	client := newTestClient(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{"value": nil}
	})

	supply, err := client.GetTokenSupply(context.Background(), "mintX")
	if err != nil {
		t.Fatalf("GetTokenSupply: %v", err)
	}
	if supply != nil {
		t.Errorf("expected nil supply, got %+v", supply)
	}
}

func TestHeliusRPCURL(t *testing.T) {
	if got := HeliusRPCURL("k3y"); got != "https://mainnet.helius-rpc.com/?api-key=k3y" {
		t.Errorf("unexpected url %s", got)
	}
}
