package storage

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned when a key doesn't exist
	ErrKeyNotFound = errors.New("key not found")
)

// Keys used by the wallet core.
const (
	KeyContacts        = "wallet-contacts"
	KeyContractAddress = "contract-address"
	KeyKnownContracts  = "available-contracts"
	KeyLanguage        = "idioma-preferido"
	KeyLastRoute       = "lastRoute"
)

// AllKeys lists every key the wallet core writes.
var AllKeys = []string{KeyContacts, KeyContractAddress, KeyKnownContracts, KeyLanguage, KeyLastRoute}

// KVStore is the local persistent key-value storage.
// Values are plain strings or JSON documents; there is no schema versioning.
type KVStore interface {
	// Get returns the value for key or ErrKeyNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Close releases backend resources
	Close() error
}

// GetOrDefault returns the stored value or def when the key is missing.
func GetOrDefault(ctx context.Context, s KVStore, key, def string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}
