package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/walletsync/internal/core/domain"
)

func (s *Store) startEventLoop() {
	ctx, cancel := context.WithCancel(s.baseCtx)
	events := make(chan domain.ProviderEvent, 16)
	sub := s.bridge.SubscribeEvents(events)

	s.mu.Lock()
	s.stopEvents = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-events:
				s.handleProviderEvent(ctx, ev)
			case err := <-sub.Err():
				if err != nil {
					s.log.Error("provider event subscription failed", "error", err)
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Store) handleProviderEvent(ctx context.Context, ev domain.ProviderEvent) {
	if ctx.Err() != nil {
		return
	}
	switch ev.Type {
	case domain.EventAccountsChanged:
		s.handleAccountsChanged(ctx, ev.Accounts)
	case domain.EventChainChanged:
		s.handleChainChanged(ctx, ev.ChainID)
	}
}

func (s *Store) handleAccountsChanged(ctx context.Context, accounts []string) {
	if len(accounts) == 0 {
		s.log.Info("accounts cleared by provider")
		s.Disconnect()
		return
	}

	sess, ok := s.Session()
	if !ok {
		return
	}
	if !domain.SameAddress(sess.Address, accounts[0]) {
		s.log.Info("account changed", "from", sess.Address, "to", accounts[0])
		s.newSession(accounts[0], sess.ChainID)
	}
	if err := s.Refresh(ctx, false); err != nil {
		s.log.Warn("refresh after account change failed", "error", err)
	}
}

// handleChainChanged pauses syncing until the provider reports chainID, then
// starts a new session generation on the new chain.
func (s *Store) handleChainChanged(ctx context.Context, chainID uint64) {
	if !s.networkChanging.CompareAndSwap(false, true) {
		return
	}
	defer s.networkChanging.Store(false)

	s.stopAutoRefresh()
	s.log.Info("chain changed", "chain_id", chainID)

	if err := s.awaitChain(ctx, chainID); err != nil {
		s.log.Warn("provider did not settle on new chain", "error", err)
	}

	sess, ok := s.Session()
	if !ok || ctx.Err() != nil {
		return
	}
	s.newSession(sess.Address, chainID)
	s.startAutoRefresh()
	if err := s.refresh(ctx, true, true); err != nil {
		s.log.Warn("refresh after chain change failed", "error", err)
	}
}

func (s *Store) awaitChain(ctx context.Context, chainID uint64) error {
	ctx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		if id, err := s.bridge.ChainID(ctx); err == nil && id == chainID {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("chain %d not reported within %v: %w", chainID, s.settleTimeout, ctx.Err())
		}
	}
}
