package config

import (
	"time"

	redisclient "github.com/vietddude/payverify/internal/infra/redis"
	"github.com/vietddude/payverify/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Chain   ChainConfig   `yaml:"chain"`
	Remote  RemoteConfig  `yaml:"remote"`
	Device  DeviceConfig  `yaml:"device"`
	Server  ServerConfig  `yaml:"server"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig describes the ledger and the token being paid with.
type ChainConfig struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	TokenContract  string           `yaml:"token_contract"`
	TokenDecimals  int32            `yaml:"token_decimals"`
	TokenSymbol    string           `yaml:"token_symbol"`
	StoreAddress   string           `yaml:"store_address"`   // recipient of order payments
	LookbackBlocks uint64           `yaml:"lookback_blocks"` // bounded log search window
	Timeout        time.Duration    `yaml:"timeout"`
	MaxRetries     int              `yaml:"max_retries"` // extra attempts on transport failure
	Providers      []ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// RemoteConfig points at the authoritative consumption/history API.
type RemoteConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DeviceConfig holds device-local persistence settings.
type DeviceConfig struct {
	DataFile     string `yaml:"data_file"`
	HistoryLimit int    `yaml:"history_limit"`
}

// ServerConfig holds settings for `payverify serve`.
type ServerConfig struct {
	Port     int                `yaml:"port"`
	Tokens   map[string]string  `yaml:"tokens"` // bearer token -> account id
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
}
