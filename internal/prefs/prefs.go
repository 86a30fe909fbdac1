// Package prefs stores the user's local preferences.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	logger "log/slog"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/infra/storage"
)

const (
	DefaultLanguage = "es"
	DefaultRoute    = "/wallet/dashboard"
)

// Preferences reads and writes preference keys in the local KV store.
type Preferences struct {
	store storage.KVStore
	log   *logger.Logger
}

func New(store storage.KVStore) *Preferences {
	return &Preferences{store: store, log: logger.Default().With("component", "prefs")}
}

// ContractAddress returns the saved wallet contract address, or "".
func (p *Preferences) ContractAddress(ctx context.Context) (string, error) {
	return storage.GetOrDefault(ctx, p.store, storage.KeyContractAddress, "")
}

// SetContractAddress saves the wallet contract address and adds it to the
// known contracts; "" clears it.
func (p *Preferences) SetContractAddress(ctx context.Context, address string) error {
	if address == "" {
		return p.store.Delete(ctx, storage.KeyContractAddress)
	}
	if !domain.IsValidAddress(address) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	if err := p.store.Set(ctx, storage.KeyContractAddress, address); err != nil {
		return err
	}
	_, err := p.AddKnownContract(ctx, address)
	return err
}

// KnownContracts returns the contract addresses used so far, oldest first.
func (p *Preferences) KnownContracts(ctx context.Context) ([]string, error) {
	raw, err := storage.GetOrDefault(ctx, p.store, storage.KeyKnownContracts, "")
	if err != nil || raw == "" {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode known contracts: %w", err)
	}
	return list, nil
}

// AddKnownContract appends address to the known contracts. It reports false
// when the address was already listed.
func (p *Preferences) AddKnownContract(ctx context.Context, address string) (bool, error) {
	if !domain.IsValidAddress(address) {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidAddress, address)
	}
	list, err := p.KnownContracts(ctx)
	if err != nil {
		p.log.Warn("known contracts unreadable, starting over", "error", err)
		list = nil
	}
	for _, known := range list {
		if strings.EqualFold(known, address) {
			return false, nil
		}
	}
	data, err := json.Marshal(append(list, address))
	if err != nil {
		return false, err
	}
	if err := p.store.Set(ctx, storage.KeyKnownContracts, string(data)); err != nil {
		return false, err
	}
	return true, nil
}

// Language returns the preferred UI language.
func (p *Preferences) Language(ctx context.Context) string {
	lang, err := storage.GetOrDefault(ctx, p.store, storage.KeyLanguage, DefaultLanguage)
	if err != nil || lang == "" {
		if err != nil {
			p.log.Warn("read language failed", "error", err)
		}
		return DefaultLanguage
	}
	return lang
}

func (p *Preferences) SetLanguage(ctx context.Context, lang string) error {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return fmt.Errorf("language must not be empty")
	}
	return p.store.Set(ctx, storage.KeyLanguage, lang)
}

// LastRoute returns the last saved route, or DefaultRoute.
func (p *Preferences) LastRoute(ctx context.Context) string {
	route, err := storage.GetOrDefault(ctx, p.store, storage.KeyLastRoute, DefaultRoute)
	if err != nil || route == "" {
		if err != nil {
			p.log.Warn("read last route failed", "error", err)
		}
		return DefaultRoute
	}
	return route
}

// SaveRoute remembers route unless it is the landing page or the
// initialization screen. It reports whether the route was saved.
func (p *Preferences) SaveRoute(ctx context.Context, route string) (bool, error) {
	if route == "" || route == "/" || strings.Contains(route, "/inir-components") {
		return false, nil
	}
	if err := p.store.Set(ctx, storage.KeyLastRoute, route); err != nil {
		return false, err
	}
	return true, nil
}
