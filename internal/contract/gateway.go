// Package contract classifies addresses and dispatches transfers either as
// plain value transfers or as wallet-contract calls.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/chain"
	"github.com/vietddude/walletsync/internal/metrics"
)

// Fixed gas limits.
const (
	GasPlainTransfer uint64 = 21000
	GasContractSend  uint64 = 300000
	GasAdmin         uint64 = 80000
)

// Transfer paths.
const (
	PathPlain      = "plain"
	PathContract   = "contract"
	PathDowngraded = "downgraded"
	PathToken      = "token"
)

// Handle is the cached classification of one address.
type Handle struct {
	Address    string
	IsContract bool
	Methods    map[string]bool
}

// Options configures a Gateway.
type Options struct {
	// ContractAddress is the configured wallet contract, optional.
	ContractAddress string
	// FallbackToPlain downgrades failed contract sends to plain transfers.
	FallbackToPlain bool
	Logger          *logger.Logger
}

// Gateway caches per-address contract handles and submits transfers.
type Gateway struct {
	bridge   chain.Bridge
	fallback bool
	log      *logger.Logger

	mu              sync.RWMutex
	handles         map[string]*Handle
	contractAddress string

	lookups singleflight.Group
}

// NewGateway creates a gateway over bridge.
func NewGateway(bridge chain.Bridge, opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Gateway{
		bridge:          bridge,
		fallback:        opts.FallbackToPlain,
		log:             opts.Logger.With("component", "contract"),
		handles:         make(map[string]*Handle),
		contractAddress: opts.ContractAddress,
	}
}

func key(address string) string {
	return strings.ToLower(address)
}

// ContractAddress returns the configured wallet contract.
func (g *Gateway) ContractAddress() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.contractAddress
}

// SetContractAddress selects the wallet contract used when the contract toggle is on.
func (g *Gateway) SetContractAddress(address string) error {
	if address != "" && !domain.IsValidAddress(address) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	g.mu.Lock()
	g.contractAddress = address
	g.mu.Unlock()
	return nil
}

// Handle returns a copy of the cached handle for address.
func (g *Gateway) Handle(address string) (Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.handles[key(address)]
	if !ok {
		return Handle{}, false
	}
	methods := make(map[string]bool, len(h.Methods))
	for m, v := range h.Methods {
		methods[m] = v
	}
	return Handle{Address: h.Address, IsContract: h.IsContract, Methods: methods}, true
}

// IsContract reports whether address has deployed code. The first answer for
// an address is kept until Reset; a failed lookup is remembered as false.
func (g *Gateway) IsContract(ctx context.Context, address string) bool {
	if !domain.IsValidAddress(address) {
		return false
	}
	k := key(address)

	g.mu.RLock()
	h, ok := g.handles[k]
	g.mu.RUnlock()
	if ok {
		return h.IsContract
	}

	v, _, _ := g.lookups.Do(k, func() (any, error) {
		g.mu.RLock()
		h, ok := g.handles[k]
		g.mu.RUnlock()
		if ok {
			return h.IsContract, nil
		}

		isContract := false
		code, err := g.bridge.Code(ctx, address)
		if err != nil {
			g.log.Warn("bytecode lookup failed", "address", address, "error", err)
		} else {
			isContract = len(code) > 0
		}

		g.mu.Lock()
		g.handles[k] = &Handle{Address: address, IsContract: isContract, Methods: make(map[string]bool)}
		g.mu.Unlock()
		return isContract, nil
	})
	return v.(bool)
}

// HasMethod reports whether address is a contract exposing the wallet-contract method.
func (g *Gateway) HasMethod(ctx context.Context, address, method string) bool {
	if !g.IsContract(ctx, address) {
		return false
	}
	k := key(address)

	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.handles[k]
	if h == nil {
		return false
	}
	if has, ok := h.Methods[method]; ok {
		return has
	}
	_, has := walletABI.Methods[method]
	h.Methods[method] = has
	return has
}

// Reset drops every cached handle.
func (g *Gateway) Reset() {
	g.mu.Lock()
	g.handles = make(map[string]*Handle)
	g.mu.Unlock()
}

// SendRequest describes a native-currency transfer.
type SendRequest struct {
	From        string
	To          string
	Amount      *big.Int
	Description string
	// Via is the address to classify: the wallet contract when the contract
	// toggle is on, otherwise empty (meaning To).
	Via string
}

// SendResult is the outcome of a submitted transfer.
type SendResult struct {
	Hash string
	Path string
	// Downgraded is set when the contract call failed and a plain transfer was sent instead.
	Downgraded  bool
	ContractErr error
}

// Send classifies the target and submits either a plain transfer or a
// sendEther contract call.
func (g *Gateway) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if !domain.IsValidAddress(req.To) {
		return SendResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, req.To)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return SendResult{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}

	via := req.Via
	if via == "" {
		via = req.To
	}

	if !g.IsContract(ctx, via) {
		return g.sendPlain(ctx, req, PathPlain)
	}

	data, err := walletABI.Pack(MethodSendEther, common.HexToAddress(req.To), req.Amount, req.Description)
	if err != nil {
		return SendResult{}, fmt.Errorf("pack sendEther: %w", err)
	}

	hash, err := g.bridge.SendTransaction(ctx, chain.TxRequest{
		From: req.From,
		To:   via,
		Gas:  GasContractSend,
		Data: data,
	})
	if err == nil {
		metrics.TransfersTotal.WithLabelValues(PathContract, "ok").Inc()
		g.log.Info("contract transfer submitted", "contract", via, "to", req.To, "hash", hash)
		return SendResult{Hash: hash, Path: PathContract}, nil
	}

	metrics.TransfersTotal.WithLabelValues(PathContract, "failed").Inc()
	if errors.Is(err, domain.ErrUserRejected) || !g.fallback {
		return SendResult{}, err
	}

	g.log.Warn("contract transfer failed, sending plain transfer", "contract", via, "error", err)
	res, plainErr := g.sendPlain(ctx, req, PathDowngraded)
	if plainErr != nil {
		return SendResult{}, errors.Join(err, plainErr)
	}
	res.Downgraded = true
	res.ContractErr = err
	return res, nil
}

func (g *Gateway) sendPlain(ctx context.Context, req SendRequest, path string) (SendResult, error) {
	hash, err := g.bridge.SendTransaction(ctx, chain.TxRequest{
		From:  req.From,
		To:    req.To,
		Value: req.Amount,
		Gas:   GasPlainTransfer,
	})
	if err != nil {
		metrics.TransfersTotal.WithLabelValues(path, "failed").Inc()
		return SendResult{}, err
	}
	metrics.TransfersTotal.WithLabelValues(path, "ok").Inc()
	g.log.Info("transfer submitted", "to", req.To, "hash", hash, "path", path)
	return SendResult{Hash: hash, Path: path}, nil
}
