// Package explorer reads account history from an Etherscan-compatible API.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logger "log/slog"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/metrics"
)

// DefaultURL is the Holesky Etherscan API.
const DefaultURL = "https://api-holesky.etherscan.io/api"

// Config holds explorer client settings.
type Config struct {
	URL           string
	APIKey        string
	TokenContract string
	Timeout       time.Duration
}

// Client queries transaction lists, token balances and NFT transfers.
type Client struct {
	baseURL       string
	apiKey        string
	tokenContract string
	httpClient    *http.Client
	log           *logger.Logger
}

// NewClient creates an explorer client.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:       cfg.URL,
		apiKey:        cfg.APIKey,
		tokenContract: cfg.TokenContract,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		log:           logger.Default().With("component", "explorer"),
	}
}

// apiResponse is the Etherscan envelope. Result is an array on success and
// an error string otherwise.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type txRow struct {
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	TimeStamp     string `json:"timeStamp"`
	Confirmations string `json:"confirmations"`
	IsError       string `json:"isError"`
}

type nftRow struct {
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenID"`
}

func (c *Client) get(ctx context.Context, action string, query url.Values, out any) error {
	query.Set("module", "account")
	query.Set("action", action)
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ExplorerRequestsTotal.WithLabelValues(action, "error").Inc()
		return fmt.Errorf("explorer %s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ExplorerRequestsTotal.WithLabelValues(action, "error").Inc()
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ExplorerRequestsTotal.WithLabelValues(action, "error").Inc()
		return fmt.Errorf("explorer %s: http %d", action, resp.StatusCode)
	}

	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		metrics.ExplorerRequestsTotal.WithLabelValues(action, "error").Inc()
		return fmt.Errorf("parse response: %w", err)
	}

	if env.Status != "1" {
		if strings.HasPrefix(strings.ToLower(env.Message), "no ") {
			metrics.ExplorerRequestsTotal.WithLabelValues(action, "empty").Inc()
			return nil
		}
		var reason string
		_ = json.Unmarshal(env.Result, &reason)
		metrics.ExplorerRequestsTotal.WithLabelValues(action, "error").Inc()
		return fmt.Errorf("explorer %s: %s: %s", action, env.Message, reason)
	}

	metrics.ExplorerRequestsTotal.WithLabelValues(action, "ok").Inc()
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("parse %s result: %w", action, err)
	}
	return nil
}

// Transactions returns the account's transactions, newest first. endBlock of 0 means latest.
func (c *Client) Transactions(ctx context.Context, address string, endBlock uint64) ([]domain.Transaction, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("startblock", "0")
	if endBlock > 0 {
		q.Set("endblock", strconv.FormatUint(endBlock, 10))
	} else {
		q.Set("endblock", "99999999")
	}
	q.Set("sort", "desc")

	var rows []txRow
	if err := c.get(ctx, "txlist", q, &rows); err != nil {
		return nil, err
	}

	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, toTransaction(row, address))
	}
	c.log.Debug("fetched transactions", "address", domain.ShortAddress(address), "count", len(txs))
	return txs, nil
}

func toTransaction(row txRow, address string) domain.Transaction {
	direction := domain.DirectionReceived
	if domain.SameAddress(row.From, address) {
		direction = domain.DirectionSent
	}

	value, ok := new(big.Int).SetString(row.Value, 10)
	if !ok {
		value = new(big.Int)
	}

	status := domain.TxStatusPending
	confirmations, _ := strconv.ParseUint(row.Confirmations, 10, 64)
	switch {
	case row.IsError == "1":
		status = domain.TxStatusFailed
	case confirmations > domain.ConfirmationsForCompleted:
		status = domain.TxStatusCompleted
	}

	var ts time.Time
	if secs, err := strconv.ParseInt(row.TimeStamp, 10, 64); err == nil {
		ts = time.Unix(secs, 0).UTC()
	}

	return domain.Transaction{
		Hash:          row.Hash,
		Direction:     direction,
		AmountDisplay: domain.FormatEther(value) + " ETH",
		Status:        status,
		Timestamp:     ts,
	}
}

// TokenBalance returns the configured ERC-20 balance in whole tokens (18 decimals).
// Without a configured token contract it returns 0.
func (c *Client) TokenBalance(ctx context.Context, address string) (float64, error) {
	if c.tokenContract == "" {
		return 0, nil
	}
	q := url.Values{}
	q.Set("contractaddress", c.tokenContract)
	q.Set("address", address)
	q.Set("tag", "latest")

	var raw string
	if err := c.get(ctx, "tokenbalance", q, &raw); err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0, fmt.Errorf("tokenbalance: invalid amount %q", raw)
	}
	return domain.WeiToEther(amount), nil
}

// NFTCount returns how many ERC-721 tokens the address holds, replaying its
// transfer history oldest first.
func (c *Client) NFTCount(ctx context.Context, address string) (int, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("sort", "asc")

	var rows []nftRow
	if err := c.get(ctx, "tokennfttx", q, &rows); err != nil {
		return 0, err
	}

	held := make(map[string]struct{})
	for _, row := range rows {
		key := strings.ToLower(row.ContractAddress) + "/" + row.TokenID
		if domain.SameAddress(row.From, address) {
			delete(held, key)
		}
		if domain.SameAddress(row.To, address) {
			held[key] = struct{}{}
		}
	}
	return len(held), nil
}
