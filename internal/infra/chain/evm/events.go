package evm

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/rpc"
)

// SubscribeEvents delivers accountsChanged and chainChanged events derived by
// polling eth_accounts and eth_chainId. The poller runs while at least one
// subscription is live.
func (b *EVMBridge) SubscribeEvents(ch chan<- domain.ProviderEvent) event.Subscription {
	inner := b.feed.Subscribe(ch)

	b.watchMu.Lock()
	b.watchers++
	if b.stopPoll == nil {
		ctx, cancel := context.WithCancel(context.Background())
		b.stopPoll = cancel
		go b.pollEvents(ctx)
	}
	b.watchMu.Unlock()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer b.release()
		defer inner.Unsubscribe()
		select {
		case err := <-inner.Err():
			return err
		case <-quit:
			return nil
		}
	})
}

func (b *EVMBridge) release() {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	b.watchers--
	if b.watchers <= 0 && b.stopPoll != nil {
		b.stopPoll()
		b.stopPoll = nil
		b.watchers = 0
	}
}

type providerState struct {
	accounts []string
	chainID  uint64
}

func (b *EVMBridge) pollEvents(ctx context.Context) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	var last *providerState
	for {
		if state, ok := b.sample(ctx); ok {
			if last != nil {
				b.diff(*last, state)
			}
			last = &state
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

var pollBatch = []rpc.BatchRequest{
	{Method: "eth_accounts"},
	{Method: "eth_chainId"},
}

// sample reads accounts and chain id in one batch. A provider that rejects
// batches is remembered and polled with two single calls from then on.
func (b *EVMBridge) sample(ctx context.Context) (providerState, bool) {
	callCtx, cancel := context.WithTimeout(ctx, b.pollInterval*2)
	defer cancel()

	var accountsRaw, chainRaw any
	if !b.noBatch.Load() {
		responses, err := b.client.BatchCall(callCtx, pollBatch)
		switch {
		case err == nil && len(responses) == len(pollBatch):
			for i, r := range responses {
				if r.Error != nil {
					if ctx.Err() == nil {
						b.log.Debug("event poll failed", "method", pollBatch[i].Method, "error", r.Error)
					}
					return providerState{}, false
				}
			}
			accountsRaw, chainRaw = responses[0].Result, responses[1].Result
			return b.parseSample(accountsRaw, chainRaw)
		case ctx.Err() != nil:
			return providerState{}, false
		default:
			b.log.Debug("provider does not batch, polling with single calls", "error", err)
			b.noBatch.Store(true)
		}
	}

	accountsRaw, err := b.client.Call(callCtx, "eth_accounts", nil)
	if err != nil {
		if ctx.Err() == nil {
			b.log.Debug("event poll: eth_accounts failed", "error", err)
		}
		return providerState{}, false
	}
	chainRaw, err = b.client.Call(callCtx, "eth_chainId", nil)
	if err != nil {
		if ctx.Err() == nil {
			b.log.Debug("event poll: eth_chainId failed", "error", err)
		}
		return providerState{}, false
	}
	return b.parseSample(accountsRaw, chainRaw)
}

func (b *EVMBridge) parseSample(accountsRaw, chainRaw any) (providerState, bool) {
	chainID, err := parseHexString(getString(chainRaw))
	if err != nil {
		b.log.Debug("event poll: bad chain id", "error", err)
		return providerState{}, false
	}
	return providerState{accounts: getStrings(accountsRaw), chainID: chainID}, true
}

func (b *EVMBridge) diff(prev, next providerState) {
	now := time.Now()
	if !sameAccounts(prev.accounts, next.accounts) {
		b.log.Info("provider accounts changed", "accounts", len(next.accounts))
		b.feed.Send(domain.ProviderEvent{
			Type:     domain.EventAccountsChanged,
			Accounts: next.accounts,
			At:       now,
		})
	}
	if prev.chainID != next.chainID {
		b.log.Info("provider chain changed", "from", prev.chainID, "to", next.chainID)
		b.feed.Send(domain.ProviderEvent{
			Type:    domain.EventChainChanged,
			ChainID: next.chainID,
			At:      now,
		})
	}
}

func sameAccounts(a, b []string) bool {
	return slices.EqualFunc(a, b, strings.EqualFold)
}
