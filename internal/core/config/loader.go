package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/payverify/internal/core/domain"
)

const (
	DefaultLookbackBlocks = 5000
	DefaultTimeout        = 15 * time.Second
	DefaultMaxRetries     = 2
	DefaultHistoryLimit   = 100
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

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Chain.TokenDecimals == 0 {
		c.Chain.TokenDecimals = domain.DefaultDecimals
	}
	if c.Chain.LookbackBlocks == 0 {
		c.Chain.LookbackBlocks = DefaultLookbackBlocks
	}
	if c.Chain.Timeout == 0 {
		c.Chain.Timeout = DefaultTimeout
	}
	if c.Chain.MaxRetries == 0 {
		c.Chain.MaxRetries = DefaultMaxRetries
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = DefaultTimeout
	}
	if c.Remote.MaxRetries == 0 {
		c.Remote.MaxRetries = DefaultMaxRetries
	}
	if c.Device.HistoryLimit == 0 {
		c.Device.HistoryLimit = DefaultHistoryLimit
	}
	if c.Device.DataFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Device.DataFile = filepath.Join(home, ".payverify", "device.db")
		} else {
			c.Device.DataFile = "payverify.db"
		}
	}
}

// ValidateDevice checks the settings needed by the verification commands.
func (c *AppConfig) ValidateDevice() error {
	var errs []error
	if len(c.Chain.Providers) == 0 {
		errs = append(errs, errors.New("chain.providers: at least one provider is required"))
	}
	if _, err := domain.ParseAddress(c.Chain.TokenContract); err != nil {
		errs = append(errs, fmt.Errorf("chain.token_contract: %w", err))
	}
	if _, err := domain.ParseAddress(c.Chain.StoreAddress); err != nil {
		errs = append(errs, fmt.Errorf("chain.store_address: %w", err))
	}
	if c.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote.base_url is required"))
	}
	return errors.Join(errs...)
}

// ValidateServer checks the settings needed by `payverify serve`.
func (c *AppConfig) ValidateServer() error {
	if len(c.Server.Tokens) == 0 {
		return errors.New("server.tokens: at least one bearer token is required")
	}
	for token, account := range c.Server.Tokens {
		if token == "" || account == "" {
			return errors.New("server.tokens: empty token or account")
		}
	}
	return nil
}
