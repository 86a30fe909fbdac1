package config

import (
	"time"

	"github.com/vietddude/walletsync/internal/core/domain"
	redisclient "github.com/vietddude/walletsync/internal/infra/redis"
	"github.com/vietddude/walletsync/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Provider ProviderConfig `yaml:"provider"`
	Explorer ExplorerConfig `yaml:"explorer"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Network  NetworkConfig  `yaml:"network"`
	Contract ContractConfig `yaml:"contract"`
	Transfer TransferConfig `yaml:"transfer"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig holds HTTP status server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ProviderConfig holds settings for the wallet provider endpoint.
type ProviderConfig struct {
	Name              string        `yaml:"name"`
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	EventPollInterval time.Duration `yaml:"event_poll_interval"`
}

// ExplorerConfig holds settings for the Etherscan-compatible explorer API.
type ExplorerConfig struct {
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"api_key"`
	TokenContract string        `yaml:"token_contract"` // ERC-20 used for the token balance, optional
	Timeout       time.Duration `yaml:"timeout"`
}

// WalletConfig holds wallet state store settings.
type WalletConfig struct {
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	BlockPollInterval time.Duration `yaml:"block_poll_interval"` // 0 disables the new-block watcher
	AutoConnect       *bool         `yaml:"auto_connect"`
}

// AutoConnectEnabled reports whether the daemon connects the wallet on start.
func (c WalletConfig) AutoConnectEnabled() bool {
	return c.AutoConnect == nil || *c.AutoConnect
}

// NetworkConfig holds network registry settings.
type NetworkConfig struct {
	SettleTimeout time.Duration        `yaml:"settle_timeout"`
	PollInterval  time.Duration        `yaml:"poll_interval"`
	Custom        []domain.NetworkInfo `yaml:"custom"`
}

// ContractConfig holds wallet contract settings.
type ContractConfig struct {
	Address         string `yaml:"address"`
	FallbackToPlain *bool  `yaml:"fallback_to_plain"`
}

// TransferConfig holds transfer settings.
type TransferConfig struct {
	RefreshDelay time.Duration `yaml:"refresh_delay"`
}

// StorageConfig selects the local key-value backend.
type StorageConfig struct {
	Backend  string             `yaml:"backend"` // memory, file, redis, postgres
	Path     string             `yaml:"path"`    // file backend
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
}

// FallbackEnabled reports whether failed contract calls downgrade to plain transfers.
func (c ContractConfig) FallbackEnabled() bool {
	return c.FallbackToPlain == nil || *c.FallbackToPlain
}
