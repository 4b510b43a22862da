// config.go - Configuration for the zktoken client daemon.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// Wallet settings
	WalletAddress string `json:"wallet_address"`
	TokenAddress  string `json:"token_address"`

	// File paths
	WalletDir string `json:"wallet_dir"`
	EventLog  string `json:"event_log"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Performance
	ScanBatchSize  int `json:"scan_batch_size"`
	TimeoutSeconds int `json:"timeout_seconds"`

	// Submission throttling
	MaxSubmitsPerMinute int `json:"max_submits_per_minute"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		WalletAddress:       "0x0000000000000000000000000000000000000001",
		TokenAddress:        "0x0000000000000000000000000000000000000002",
		WalletDir:           "wallets",
		EventLog:            "events.json",
		LogLevel:            "info",
		LogFile:             "zktokend.log",
		ScanBatchSize:       256,
		TimeoutSeconds:      120,
		MaxSubmitsPerMinute: 6,
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return &config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig writes the configuration to disk
func SaveConfig(config *Config, configPath string) error {
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(config)
}
