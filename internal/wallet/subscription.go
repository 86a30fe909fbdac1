package wallet

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"

	"github.com/vietddude/walletsync/internal/core/domain"
)

// snapshotSub delivers the latest snapshot to one sink. A slow sink only
// ever sees the newest value; intermediate snapshots are dropped.
type snapshotSub struct {
	sink chan<- *domain.WalletSnapshot

	mu      sync.Mutex
	latest  *domain.WalletSnapshot
	pending bool
	wake    chan struct{}
}

func (s *snapshotSub) offer(snap *domain.WalletSnapshot) {
	s.mu.Lock()
	s.latest = snap
	s.pending = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *snapshotSub) take() (*domain.WalletSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return nil, false
	}
	s.pending = false
	return s.latest, true
}

func (s *snapshotSub) run(quit <-chan struct{}) error {
	for {
		select {
		case <-s.wake:
		case <-quit:
			return nil
		}
		snap, ok := s.take()
		if !ok {
			continue
		}
		select {
		case s.sink <- snap:
		case <-quit:
			return nil
		}
	}
}

// snapshotHub fans snapshots out to subscribers, replaying the current value
// to each new subscriber.
type snapshotHub struct {
	mu      sync.Mutex
	current *domain.WalletSnapshot
	subs    map[*snapshotSub]struct{}
}

func newSnapshotHub() *snapshotHub {
	return &snapshotHub{subs: make(map[*snapshotSub]struct{})}
}

func (h *snapshotHub) publish(snap *domain.WalletSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = snap
	for sub := range h.subs {
		sub.offer(snap)
	}
}

func (h *snapshotHub) subscribe(sink chan<- *domain.WalletSnapshot) event.Subscription {
	sub := &snapshotSub{sink: sink, wake: make(chan struct{}, 1)}

	h.mu.Lock()
	sub.offer(h.current)
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		}()
		return sub.run(quit)
	})
}

func (h *snapshotHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
