package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newRPCServer(t *testing.T, handle func(method string, params []any) (any, *Error)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string `json:"jsonrpc"`
			Method  string `json:"method"`
			Params  []any  `json:"params"`
			ID      uint64 `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
			return
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %q", req.JSONRPC)
		}
		result, rpcErr := handle(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPProvider_Call(t *testing.T) {
	server := newRPCServer(t, func(method string, params []any) (any, *Error) {
		if method != "eth_chainId" {
			t.Errorf("unexpected method %s", method)
		}
		if len(params) != 0 {
			t.Errorf("expected empty params, got %v", params)
		}
		return "0x4268", nil
	})

	p := NewHTTPProvider("test", server.URL, 5*time.Second)
	result, err := p.Call(context.Background(), "eth_chainId", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.(string) != "0x4268" {
		t.Errorf("expected 0x4268, got %v", result)
	}

	h := p.GetHealth()
	if !h.Available {
		t.Error("expected provider available")
	}
	if h.MonitorStats == nil || h.MonitorStats.TotalRequests != 1 {
		t.Errorf("expected 1 recorded request, got %+v", h.MonitorStats)
	}
}

func TestHTTPProvider_TypedError(t *testing.T) {
	server := newRPCServer(t, func(method string, params []any) (any, *Error) {
		return nil, &Error{Code: CodeUserRejected, Message: "User rejected the request."}
	})

	p := NewHTTPProvider("test", server.URL, 5*time.Second)
	_, err := p.Call(context.Background(), "eth_requestAccounts", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsUserRejected(err) {
		t.Errorf("expected user rejection, got %v", err)
	}

	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if rpcErr.Message != "User rejected the request." {
		t.Errorf("unexpected message %q", rpcErr.Message)
	}

	// A provider-level rejection does not mark the endpoint unhealthy.
	if !p.IsAvailable() {
		t.Error("expected provider to stay available")
	}
}

func TestHTTPProvider_UnrecognizedChain(t *testing.T) {
	server := newRPCServer(t, func(method string, params []any) (any, *Error) {
		return nil, &Error{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	})

	p := NewHTTPProvider("test", server.URL, 5*time.Second)
	_, err := p.Call(context.Background(), "wallet_switchEthereumChain", []any{map[string]any{"chainId": "0x1"}})
	if !IsUnrecognizedChain(err) {
		t.Errorf("expected unrecognized chain, got %v", err)
	}
}

func TestHTTPProvider_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewHTTPProvider("test", server.URL, 5*time.Second)
	if _, err := p.Call(context.Background(), "eth_blockNumber", nil); err == nil {
		t.Fatal("expected rate limit error")
	}
	if p.IsAvailable() {
		t.Error("expected provider unavailable while throttled")
	}
	if got := p.Monitor.GetRetryAfter(); got < 100*time.Second {
		t.Errorf("expected retry-after near 120s, got %v", got)
	}

	// Subsequent calls short-circuit without hitting the server.
	if _, err := p.Call(context.Background(), "eth_blockNumber", nil); err == nil {
		t.Error("expected throttled error")
	}
}

func TestHTTPProvider_BatchCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []struct {
			Method string `json:"method"`
			ID     uint64 `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			t.Errorf("failed to decode batch: %v", err)
			return
		}
		// Reply in reverse order to check id matching.
		resps := make([]map[string]any, 0, len(reqs))
		for i := len(reqs) - 1; i >= 0; i-- {
			resp := map[string]any{"jsonrpc": "2.0", "id": reqs[i].ID}
			if reqs[i].Method == "eth_getCode" {
				resp["error"] = map[string]any{"code": -32602, "message": "invalid params"}
			} else {
				resp["result"] = "0x1"
			}
			resps = append(resps, resp)
		}
		json.NewEncoder(w).Encode(resps)
	}))
	defer server.Close()

	p := NewHTTPProvider("test", server.URL, 5*time.Second)
	responses, err := p.BatchCall(context.Background(), []BatchRequest{
		{Method: "eth_blockNumber"},
		{Method: "eth_getCode", Params: []any{"0x0", "latest"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[0].Error != nil || responses[0].Result != "0x1" {
		t.Errorf("unexpected first response %+v", responses[0])
	}
	if code, ok := ErrorCode(responses[1].Error); !ok || code != CodeInvalidParams {
		t.Errorf("expected invalid params error, got %v", responses[1].Error)
	}
}
