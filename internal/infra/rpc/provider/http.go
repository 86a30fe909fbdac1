package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vietddude/walletsync/internal/metrics"
)

// HTTPProvider implements RPCProvider for JSON-RPC 2.0 over HTTP.
type HTTPProvider struct {
	*BaseProvider

	endpoint   string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseProvider: NewBaseProvider(name),
		endpoint:     endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	ID     uint64 `json:"id"`
	Result any    `json:"result"`
	Error  *Error `json:"error"`
}

func (p *HTTPProvider) newRequest(method string, params []any) rpcRequest {
	if params == nil {
		params = []any{}
	}
	return rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      p.nextID.Add(1),
	}
}

// Call makes a single JSON-RPC call. A JSON-RPC error object is returned as *Error.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(p.Name, method).Inc()

	if status := p.Monitor.CheckProviderStatus(); status == StatusThrottled || status == StatusBlocked {
		metrics.RPCErrorsTotal.WithLabelValues(p.Name, method).Inc()
		return nil, fmt.Errorf("provider %s, retry after: %v", status, p.Monitor.GetRetryAfter())
	}

	body, err := p.post(ctx, p.newRequest(method, params))
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(p.Name, method).Inc()
		return nil, err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		p.RecordFailure()
		metrics.RPCErrorsTotal.WithLabelValues(p.Name, method).Inc()
		return nil, fmt.Errorf("parse response: %w", err)
	}

	latency := time.Since(start)
	metrics.RPCLatency.WithLabelValues(p.Name, method).Observe(latency.Seconds())

	if rpcResp.Error != nil {
		metrics.RPCErrorsTotal.WithLabelValues(p.Name, method).Inc()
		if p.Monitor.DetectThrottlePattern(rpcResp.Error.Message) {
			p.Monitor.RecordThrottle(429, 0)
			p.RecordFailure()
			return nil, fmt.Errorf("throttle in rpc error: %w", rpcResp.Error)
		}
		p.RecordSuccess(latency)
		return nil, rpcResp.Error
	}

	p.RecordSuccess(latency)
	return rpcResp.Result, nil
}

// BatchCall makes multiple RPC calls in one request. Responses are matched by id.
func (p *HTTPProvider) BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	start := time.Now()

	batchReq := make([]rpcRequest, len(requests))
	index := make(map[uint64]int, len(requests))
	for i, req := range requests {
		batchReq[i] = p.newRequest(req.Method, req.Params)
		index[batchReq[i].ID] = i
	}

	body, err := p.post(ctx, batchReq)
	if err != nil {
		return nil, err
	}

	var batchResp []rpcResponse
	if err := json.Unmarshal(body, &batchResp); err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("parse batch response: %w", err)
	}

	responses := make([]BatchResponse, len(requests))
	for i := range responses {
		responses[i] = BatchResponse{Error: fmt.Errorf("missing response for %s", requests[i].Method)}
	}
	for _, r := range batchResp {
		i, ok := index[r.ID]
		if !ok {
			continue
		}
		if r.Error != nil {
			responses[i] = BatchResponse{Error: r.Error}
		} else {
			responses[i] = BatchResponse{Result: r.Result}
		}
	}

	p.RecordSuccess(time.Since(start))
	return responses, nil
}

func (p *HTTPProvider) post(ctx context.Context, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		p.Monitor.RecordThrottle(http.StatusTooManyRequests, parseRetryAfter(retryAfter))
		p.RecordFailure()
		return nil, fmt.Errorf("rate limited (429), retry after: %s", retryAfter)
	}

	// IP blocked detection
	if resp.StatusCode == http.StatusForbidden {
		p.Monitor.RecordThrottle(http.StatusForbidden, 0)
		p.RecordFailure()
		return nil, fmt.Errorf("ip blocked (403)")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.RecordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.RecordFailure()
		if p.Monitor.DetectThrottlePattern(string(body)) {
			return nil, fmt.Errorf("throttle detected in response: %s", string(body))
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
