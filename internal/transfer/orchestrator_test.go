package transfer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/walletsync/internal/contract"
	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/chain"
	"github.com/vietddude/walletsync/internal/infra/chain/chaintest"
	"github.com/vietddude/walletsync/internal/notify"
)

const (
	owner     = "0x1111111111111111111111111111111111111111"
	recipient = "0x2222222222222222222222222222222222222222"
	walletSC  = "0x3333333333333333333333333333333333333333"
	token     = "0x4444444444444444444444444444444444444444"
)

type fakeWallet struct {
	mu        sync.Mutex
	snap      *domain.WalletSnapshot
	refreshes chan bool
}

func newFakeWallet(balance float64) *fakeWallet {
	return &fakeWallet{
		snap:      &domain.WalletSnapshot{Address: owner, BalanceEth: balance},
		refreshes: make(chan bool, 4),
	}
}

func (w *fakeWallet) Current() *domain.WalletSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

func (w *fakeWallet) Refresh(ctx context.Context, silent bool) error {
	w.refreshes <- silent
	return nil
}

func setup(t *testing.T, balance float64) (*Orchestrator, *chaintest.FakeBridge, *fakeWallet, *notify.Recorder) {
	t.Helper()
	bridge := chaintest.New(owner, domain.ChainIDHolesky)
	gw := contract.NewGateway(bridge, contract.Options{ContractAddress: walletSC, FallbackToPlain: true})
	w := newFakeWallet(balance)
	notes := notify.NewRecorder(nil, 50)
	o := NewOrchestrator(w, gw, Options{RefreshDelay: 10 * time.Millisecond, Notifier: notes})
	t.Cleanup(o.Close)
	return o, bridge, w, notes
}

func TestOrchestrator_InsufficientFundsRejectedBeforeProvider(t *testing.T) {
	o, bridge, _, notes := setup(t, 1.0)

	_, err := o.Send(context.Background(), Request{To: recipient, Amount: "1.5"})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[FieldAmount] == nil {
		t.Fatalf("expected amount field error, got %v", err)
	}
	if n := bridge.TotalCalls(); n != 0 {
		t.Errorf("expected no provider calls, got %d", n)
	}
	if notes.Count(notify.LevelWarning) != 1 {
		t.Error("expected a validation warning")
	}
}

func TestOrchestrator_Validation(t *testing.T) {
	o, bridge, _, _ := setup(t, 10)

	tests := []struct {
		name   string
		req    Request
		field  Field
		target error
	}{
		{"empty recipient", Request{To: "", Amount: "1"}, FieldRecipient, domain.ErrInvalidAddress},
		{"bad recipient", Request{To: "0xabc", Amount: "1"}, FieldRecipient, domain.ErrInvalidAddress},
		{"zero amount", Request{To: recipient, Amount: "0"}, FieldAmount, domain.ErrInvalidAmount},
		{"negative amount", Request{To: recipient, Amount: "-1"}, FieldAmount, domain.ErrInvalidAmount},
		{"not a number", Request{To: recipient, Amount: "abc"}, FieldAmount, domain.ErrInvalidAmount},
		{"below minimum", Request{To: recipient, Amount: "0.0000001"}, FieldAmount, domain.ErrInvalidAmount},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Validate(context.Background(), tc.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !errors.Is(verr.Fields[tc.field], tc.target) {
				t.Errorf("field %s: expected %v, got %v", tc.field, tc.target, verr.Fields[tc.field])
			}
		})
	}

	amount, err := o.Validate(context.Background(), Request{To: recipient, Amount: "0.000001"})
	if err != nil {
		t.Fatalf("minimum amount should pass: %v", err)
	}
	if amount.Cmp(MinAmount) != 0 {
		t.Errorf("expected %s wei, got %s", MinAmount, amount)
	}
	if bridge.TotalCalls() != 0 {
		t.Error("validation must not call the provider")
	}
}

func TestOrchestrator_MultipleFieldErrors(t *testing.T) {
	o, _, _, _ := setup(t, 10)
	_, err := o.Validate(context.Background(), Request{To: "bad", Amount: "0"})
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("expected two field errors, got %v", err)
	}
}

func TestOrchestrator_InvalidRecipientSkipsContractBalance(t *testing.T) {
	o, bridge, _, _ := setup(t, 0)
	bridge.SetCode(walletSC, []byte{0x01})

	_, err := o.Send(context.Background(), Request{To: "not-an-address", Amount: "1", UseContract: true})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[FieldRecipient] == nil {
		t.Errorf("expected only a recipient error, got %v", verr.Fields)
	}
	if errors.Is(err, domain.ErrInsufficientFunds) {
		t.Error("balance must not be checked for an invalid recipient")
	}
	if n := bridge.TotalCalls(); n != 0 {
		t.Errorf("expected no provider calls, got %d", n)
	}
}

func TestOrchestrator_NotConnected(t *testing.T) {
	o, _, w, _ := setup(t, 10)
	w.snap = nil
	if _, err := o.Send(context.Background(), Request{To: recipient, Amount: "1"}); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestOrchestrator_SendPlainSchedulesRefresh(t *testing.T) {
	o, bridge, w, notes := setup(t, 5)
	bridge.SendFunc = func(tx chain.TxRequest) (string, error) { return "0xfeed", nil }

	res, err := o.Send(context.Background(), Request{To: recipient, Amount: "1.5"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Hash != "0xfeed" || res.Path != contract.PathPlain || res.Downgraded {
		t.Errorf("unexpected result %+v", res)
	}

	sent := bridge.SentTransactions()
	if len(sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(sent))
	}
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if sent[0].Value.Cmp(want) != 0 || sent[0].Gas != contract.GasPlainTransfer || sent[0].From != owner {
		t.Errorf("unexpected tx %+v", sent[0])
	}
	if notes.Count(notify.LevelSuccess) != 1 {
		t.Error("expected success notification")
	}

	select {
	case silent := <-w.refreshes:
		if !silent {
			t.Error("background refresh should be silent")
		}
	case <-time.After(time.Second):
		t.Fatal("refresh was not scheduled")
	}
}

func TestOrchestrator_UseContract(t *testing.T) {
	o, bridge, _, _ := setup(t, 0)
	bridge.SetCode(walletSC, []byte{0x01})
	bridge.SetBalance(walletSC, big.NewInt(3e18))

	res, err := o.Send(context.Background(), Request{To: recipient, Amount: "2", Description: "rent", UseContract: true})
	if err != nil {
		t.Fatalf("send via contract: %v", err)
	}
	if res.Path != contract.PathContract {
		t.Errorf("expected contract path, got %s", res.Path)
	}
	sent := bridge.SentTransactions()
	if len(sent) != 1 || sent[0].To != walletSC || sent[0].Gas != contract.GasContractSend {
		t.Errorf("unexpected tx %+v", sent)
	}

	_, err = o.Send(context.Background(), Request{To: recipient, Amount: "4", UseContract: true})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("expected contract balance check, got %v", err)
	}
}

func TestOrchestrator_DowngradedWarns(t *testing.T) {
	o, bridge, _, notes := setup(t, 0)
	bridge.SetCode(walletSC, []byte{0x01})
	bridge.SetBalance(walletSC, big.NewInt(3e18))
	bridge.SendFunc = func(tx chain.TxRequest) (string, error) {
		if len(tx.Data) > 0 {
			return "", errors.New("execution reverted")
		}
		return "0xplain", nil
	}

	res, err := o.Send(context.Background(), Request{To: recipient, Amount: "1", UseContract: true})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Downgraded || res.Hash != "0xplain" {
		t.Errorf("expected downgraded result, got %+v", res)
	}
	if notes.Count(notify.LevelWarning) != 1 {
		t.Error("expected downgrade warning")
	}
}

func TestOrchestrator_SubmissionFailure(t *testing.T) {
	o, bridge, w, notes := setup(t, 5)
	bridge.SendFunc = func(tx chain.TxRequest) (string, error) {
		return "", domain.ErrUserRejected
	}

	if _, err := o.Send(context.Background(), Request{To: recipient, Amount: "1"}); !errors.Is(err, domain.ErrUserRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if notes.Count(notify.LevelError) != 1 {
		t.Error("expected error notification")
	}
	select {
	case <-w.refreshes:
		t.Error("failed transfer must not schedule a refresh")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOrchestrator_SendTokensValidation(t *testing.T) {
	o, bridge, _, _ := setup(t, 5)
	_, err := o.SendTokens(context.Background(), "bad", recipient, "1")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[FieldToken] == nil {
		t.Fatalf("expected token field error, got %v", err)
	}
	if bridge.TotalCalls() != 0 {
		t.Error("invalid token transfer must not reach the provider")
	}
}

func TestOrchestrator_CloseCancelsRefresh(t *testing.T) {
	bridge := chaintest.New(owner, domain.ChainIDHolesky)
	gw := contract.NewGateway(bridge, contract.Options{})
	w := newFakeWallet(5)
	o := NewOrchestrator(w, gw, Options{RefreshDelay: 50 * time.Millisecond, Notifier: notify.NewRecorder(nil, 10)})

	if _, err := o.Send(context.Background(), Request{To: recipient, Amount: "1"}); err != nil {
		t.Fatal(err)
	}
	o.Close()
	select {
	case <-w.refreshes:
		t.Error("refresh ran after Close")
	case <-time.After(150 * time.Millisecond):
	}
}
