package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/chain"
	"github.com/vietddude/walletsync/internal/metrics"
)

// ContractTransfer is one entry of the wallet contract's own history.
type ContractTransfer struct {
	To          string    `json:"to"`
	Amount      string    `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Executed    bool      `json:"executed"`
}

type historyEntry struct {
	To          common.Address
	Amount      *big.Int
	Timestamp   *big.Int
	Description string
	Executed    bool
}

func (g *Gateway) target(address string) (string, error) {
	if address == "" {
		address = g.ContractAddress()
	}
	if address == "" {
		return "", domain.ErrNoContract
	}
	if !domain.IsValidAddress(address) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	return address, nil
}

func (g *Gateway) call(ctx context.Context, contractABI abi.ABI, address, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := g.bridge.Call(ctx, chain.CallMsg{To: address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func (g *Gateway) callUint(ctx context.Context, address, method string) (*big.Int, error) {
	values, err := g.call(ctx, walletABI, address, method)
	if err != nil {
		return nil, err
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, values[0])
	}
	return n, nil
}

// ContractBalance returns the ether balance of the contract (empty address:
// the configured one). The direct balance is read first; a contract's own
// getBalance() answer takes precedence when it succeeds.
func (g *Gateway) ContractBalance(ctx context.Context, address string) (float64, error) {
	address, err := g.target(address)
	if err != nil {
		return 0, err
	}

	wei, err := g.bridge.Balance(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("contract balance: %w", err)
	}
	balance := domain.WeiToEther(wei)

	if g.HasMethod(ctx, address, MethodGetBalance) {
		if own, err := g.callUint(ctx, address, MethodGetBalance); err == nil {
			return domain.WeiToEther(own), nil
		}
	}
	return balance, nil
}

// DailyLimit returns the contract's daily limit in ether, 0 for non-contracts.
func (g *Gateway) DailyLimit(ctx context.Context, address string) (float64, error) {
	return g.etherView(ctx, address, MethodDailyLimit)
}

// DailySpent returns how much was spent today through the contract, 0 for non-contracts.
func (g *Gateway) DailySpent(ctx context.Context, address string) (float64, error) {
	return g.etherView(ctx, address, MethodDailySpent)
}

func (g *Gateway) etherView(ctx context.Context, address, method string) (float64, error) {
	address, err := g.target(address)
	if err != nil {
		return 0, err
	}
	if !g.IsContract(ctx, address) {
		return 0, nil
	}
	n, err := g.callUint(ctx, address, method)
	if err != nil {
		return 0, err
	}
	return domain.WeiToEther(n), nil
}

// IsAddressApproved reports whether account is an approved recipient of the contract.
func (g *Gateway) IsAddressApproved(ctx context.Context, contractAddress, account string) (bool, error) {
	contractAddress, err := g.target(contractAddress)
	if err != nil {
		return false, err
	}
	if !domain.IsValidAddress(account) {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, account)
	}
	values, err := g.call(ctx, walletABI, contractAddress, MethodApprovedAddresses, common.HexToAddress(account))
	if err != nil {
		return false, err
	}
	approved, _ := values[0].(bool)
	return approved, nil
}

// TransactionHistory returns the contract's recorded transfers.
func (g *Gateway) TransactionHistory(ctx context.Context, contractAddress string) ([]ContractTransfer, error) {
	contractAddress, err := g.target(contractAddress)
	if err != nil {
		return nil, err
	}
	values, err := g.call(ctx, walletABI, contractAddress, MethodTransactionHistory)
	if err != nil {
		return nil, err
	}
	entries := *abi.ConvertType(values[0], new([]historyEntry)).(*[]historyEntry)

	out := make([]ContractTransfer, 0, len(entries))
	for _, e := range entries {
		out = append(out, ContractTransfer{
			To:          e.To.Hex(),
			Amount:      domain.FormatEther(e.Amount),
			Timestamp:   time.Unix(e.Timestamp.Int64(), 0).UTC(),
			Description: e.Description,
			Executed:    e.Executed,
		})
	}
	return out, nil
}

// SetDailyLimit submits setDailyLimit(limit) from owner.
func (g *Gateway) SetDailyLimit(ctx context.Context, owner, contractAddress string, limit *big.Int) (string, error) {
	contractAddress, err := g.target(contractAddress)
	if err != nil {
		return "", err
	}
	data, err := walletABI.Pack(MethodSetDailyLimit, limit)
	if err != nil {
		return "", fmt.Errorf("pack setDailyLimit: %w", err)
	}
	return g.bridge.SendTransaction(ctx, chain.TxRequest{From: owner, To: contractAddress, Gas: GasAdmin, Data: data})
}

// ApproveAddress grants or revokes recipient approval on the contract.
func (g *Gateway) ApproveAddress(ctx context.Context, owner, contractAddress, account string, approved bool) (string, error) {
	contractAddress, err := g.target(contractAddress)
	if err != nil {
		return "", err
	}
	if !domain.IsValidAddress(account) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, account)
	}
	data, err := walletABI.Pack(MethodApproveAddress, common.HexToAddress(account), approved)
	if err != nil {
		return "", fmt.Errorf("pack approveAddress: %w", err)
	}
	return g.bridge.SendTransaction(ctx, chain.TxRequest{From: owner, To: contractAddress, Gas: GasAdmin, Data: data})
}

// TokenRequest describes an ERC-20 transfer with a decimal amount.
type TokenRequest struct {
	From   string
	Token  string
	To     string
	Amount string
}

// SendTokens looks up the token's decimals and submits transfer(to, amount).
func (g *Gateway) SendTokens(ctx context.Context, req TokenRequest) (string, error) {
	if !domain.IsValidAddress(req.Token) {
		return "", fmt.Errorf("%w: token %q", domain.ErrInvalidAddress, req.Token)
	}
	if !domain.IsValidAddress(req.To) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidAddress, req.To)
	}

	values, err := g.call(ctx, erc20ABI, req.Token, "decimals")
	if err != nil {
		return "", err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return "", fmt.Errorf("decimals: unexpected result type %T", values[0])
	}

	amount, err := domain.ParseUnits(req.Amount, int(decimals))
	if err != nil {
		return "", err
	}
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}

	data, err := erc20ABI.Pack("transfer", common.HexToAddress(req.To), amount)
	if err != nil {
		return "", fmt.Errorf("pack transfer: %w", err)
	}
	hash, err := g.bridge.SendTransaction(ctx, chain.TxRequest{From: req.From, To: req.Token, Data: data})
	if err != nil {
		metrics.TransfersTotal.WithLabelValues(PathToken, "failed").Inc()
		return "", err
	}
	metrics.TransfersTotal.WithLabelValues(PathToken, "ok").Inc()
	return hash, nil
}
