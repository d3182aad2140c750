package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/payverify/internal/infra/storage"
)

// Client wraps Redis operations for the server-side consumption and history stores.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

var _ storage.ServerStore = (*Client)(nil)

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "payverify"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

func (c *Client) Consumption() storage.ConsumptionStore   { return &ConsumedRepo{c: c} }
func (c *Client) Transfers() storage.TransferHistoryStore { return &TransferRepo{c: c} }

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func (c *Client) consumedKey(hash string) string {
	return fmt.Sprintf("%s:consumed:%s", c.prefix, hash)
}

func (c *Client) transfersKey(account string) string {
	return fmt.Sprintf("%s:transfers:%s", c.prefix, account)
}

func (c *Client) transfersByTimeKey(account string) string {
	return fmt.Sprintf("%s:transfers_by_time:%s", c.prefix, account)
}
