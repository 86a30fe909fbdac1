package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "wallet"
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}
	if cfg.Provider.EventPollInterval == 0 {
		cfg.Provider.EventPollInterval = 2 * time.Second
	}
	if cfg.Explorer.URL == "" {
		cfg.Explorer.URL = "https://api-holesky.etherscan.io/api"
	}
	if cfg.Explorer.Timeout == 0 {
		cfg.Explorer.Timeout = 15 * time.Second
	}
	if cfg.Wallet.RefreshInterval == 0 {
		cfg.Wallet.RefreshInterval = 15 * time.Second
	}
	if cfg.Network.SettleTimeout == 0 {
		cfg.Network.SettleTimeout = 10 * time.Second
	}
	if cfg.Network.PollInterval == 0 {
		cfg.Network.PollInterval = 250 * time.Millisecond
	}
	if cfg.Transfer.RefreshDelay == 0 {
		cfg.Transfer.RefreshDelay = 2 * time.Second
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Backend == "file" && cfg.Storage.Path == "" {
		cfg.Storage.Path = "walletsync.json"
	}
}
