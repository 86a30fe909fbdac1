// Package transfer validates transfer requests and hands them to the contract gateway.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	logger "log/slog"

	"github.com/vietddude/walletsync/internal/contract"
	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/notify"
)

const DefaultRefreshDelay = 2 * time.Second

// MinAmount is the smallest accepted transfer, 0.000001 ether in wei.
var MinAmount = big.NewInt(1_000_000_000_000)

// Field names a request field that failed validation.
type Field string

const (
	FieldRecipient Field = "recipient"
	FieldAmount    Field = "amount"
	FieldToken     Field = "token"
	FieldSource    Field = "source"
)

// ValidationError collects field-level failures. errors.Is matches any of
// the wrapped causes.
type ValidationError struct {
	Fields map[Field]error
}

func (e *ValidationError) add(f Field, err error) {
	if e.Fields == nil {
		e.Fields = make(map[Field]error)
	}
	e.Fields[f] = err
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, string(f))
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", n, e.Fields[Field(n)]))
	}
	return "invalid transfer: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Fields))
	for _, err := range e.Fields {
		out = append(out, err)
	}
	return out
}

// Wallet is the part of the wallet store the orchestrator needs.
type Wallet interface {
	Current() *domain.WalletSnapshot
	Refresh(ctx context.Context, silent bool) error
}

// Gateway submits transfers.
type Gateway interface {
	ContractAddress() string
	ContractBalance(ctx context.Context, address string) (float64, error)
	Send(ctx context.Context, req contract.SendRequest) (contract.SendResult, error)
	SendTokens(ctx context.Context, req contract.TokenRequest) (string, error)
}

// Request is a native-currency transfer as entered by the user.
type Request struct {
	To          string
	Amount      string
	Description string
	// UseContract sends through the configured wallet contract and checks
	// the amount against the contract balance.
	UseContract bool
}

// Result reports a submitted transfer.
type Result struct {
	Hash       string
	Path       string
	Downgraded bool
}

type Options struct {
	RefreshDelay time.Duration
	Notifier     notify.Notifier
	Logger       *logger.Logger
}

// Orchestrator validates, submits and schedules the follow-up refresh.
type Orchestrator struct {
	wallet  Wallet
	gateway Gateway
	notify  notify.Notifier
	log     *logger.Logger
	delay   time.Duration

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

func NewOrchestrator(wallet Wallet, gateway Gateway, opts Options) *Orchestrator {
	if opts.RefreshDelay <= 0 {
		opts.RefreshDelay = DefaultRefreshDelay
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	return &Orchestrator{
		wallet:  wallet,
		gateway: gateway,
		notify:  opts.Notifier,
		log:     opts.Logger.With("component", "transfer"),
		delay:   opts.RefreshDelay,
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Validate checks req without submitting anything. The only provider read
// is the contract balance when UseContract is set, and it is skipped when
// the recipient or amount is already invalid.
func (o *Orchestrator) Validate(ctx context.Context, req Request) (*big.Int, error) {
	if o.wallet.Current() == nil {
		return nil, domain.ErrNotConnected
	}

	var verr ValidationError
	to := strings.TrimSpace(req.To)
	switch {
	case to == "":
		verr.add(FieldRecipient, fmt.Errorf("%w: recipient is required", domain.ErrInvalidAddress))
	case !domain.IsValidAddress(to):
		verr.add(FieldRecipient, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, to))
	}

	amount, err := domain.ParseEther(strings.TrimSpace(req.Amount))
	switch {
	case err != nil:
		verr.add(FieldAmount, err)
	case amount.Sign() <= 0:
		verr.add(FieldAmount, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount))
	case amount.Cmp(MinAmount) < 0:
		verr.add(FieldAmount, fmt.Errorf("%w: minimum is 0.000001", domain.ErrInvalidAmount))
	}

	// Only a request with valid fields reaches the provider.
	if len(verr.Fields) == 0 {
		balance, err := o.availableBalance(ctx, req.UseContract)
		switch {
		case err != nil:
			verr.add(FieldSource, err)
		case domain.WeiToEther(amount) > balance:
			verr.add(FieldAmount, fmt.Errorf("%w: %s exceeds available %g", domain.ErrInsufficientFunds, domain.FormatEther(amount), balance))
		}
	}

	if len(verr.Fields) > 0 {
		return nil, &verr
	}
	return amount, nil
}

func (o *Orchestrator) availableBalance(ctx context.Context, useContract bool) (float64, error) {
	if !useContract {
		return o.wallet.Current().BalanceEth, nil
	}
	address := o.gateway.ContractAddress()
	if address == "" {
		return 0, fmt.Errorf("%w: no wallet contract configured", domain.ErrInvalidAddress)
	}
	return o.gateway.ContractBalance(ctx, address)
}

// Send validates req, submits it and schedules a silent refresh. The call
// returns once the provider accepted the transaction.
func (o *Orchestrator) Send(ctx context.Context, req Request) (Result, error) {
	amount, err := o.Validate(ctx, req)
	if err != nil {
		o.reportInvalid(err)
		return Result{}, err
	}

	sendReq := contract.SendRequest{
		From:        o.wallet.Current().Address,
		To:          strings.TrimSpace(req.To),
		Amount:      amount,
		Description: req.Description,
	}
	if req.UseContract {
		sendReq.Via = o.gateway.ContractAddress()
	}

	res, err := o.gateway.Send(ctx, sendReq)
	if err != nil {
		o.log.Error("transfer failed", "to", sendReq.To, "error", err)
		o.notify.Error(fmt.Sprintf("Transfer failed: %v", err))
		return Result{}, fmt.Errorf("send transfer: %w", err)
	}

	if res.Downgraded {
		o.notify.Warning(fmt.Sprintf("Contract call failed, sent as a plain transfer. Hash: %s", res.Hash))
	} else {
		o.notify.Success(fmt.Sprintf("Transfer sent successfully. Hash: %s", res.Hash))
	}
	o.scheduleRefresh()
	return Result{Hash: res.Hash, Path: res.Path, Downgraded: res.Downgraded}, nil
}

// SendTokens submits an ERC-20 transfer of amount (in token units).
func (o *Orchestrator) SendTokens(ctx context.Context, token, to, amount string) (string, error) {
	snap := o.wallet.Current()
	if snap == nil {
		return "", domain.ErrNotConnected
	}

	var verr ValidationError
	if !domain.IsValidAddress(strings.TrimSpace(token)) {
		verr.add(FieldToken, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, token))
	}
	if !domain.IsValidAddress(strings.TrimSpace(to)) {
		verr.add(FieldRecipient, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, to))
	}
	if strings.TrimSpace(amount) == "" {
		verr.add(FieldAmount, fmt.Errorf("%w: amount is required", domain.ErrInvalidAmount))
	}
	if len(verr.Fields) > 0 {
		o.reportInvalid(&verr)
		return "", &verr
	}

	hash, err := o.gateway.SendTokens(ctx, contract.TokenRequest{
		From:   snap.Address,
		Token:  strings.TrimSpace(token),
		To:     strings.TrimSpace(to),
		Amount: strings.TrimSpace(amount),
	})
	if err != nil {
		o.notify.Error(fmt.Sprintf("Token transfer failed: %v", err))
		return "", fmt.Errorf("send tokens: %w", err)
	}
	o.notify.Success(fmt.Sprintf("Tokens sent successfully. Hash: %s", hash))
	o.scheduleRefresh()
	return hash, nil
}

func (o *Orchestrator) reportInvalid(err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		o.notify.Warning("Please fill in all fields correctly")
		return
	}
	if errors.Is(err, domain.ErrNotConnected) {
		o.notify.Error("Connect your wallet first")
	}
}

func (o *Orchestrator) scheduleRefresh() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(o.delay, func() {
		o.mu.Lock()
		delete(o.timers, t)
		o.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.wallet.Refresh(ctx, true); err != nil {
			o.log.Warn("post-transfer refresh failed", "error", err)
		}
	})
	o.timers[t] = struct{}{}
}

// Close cancels pending refreshes.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	for t := range o.timers {
		t.Stop()
	}
	clear(o.timers)
}
