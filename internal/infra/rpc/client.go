package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/rpc/routing"
	"github.com/vietddude/payverify/internal/metrics"
)

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
type Client struct {
	chainID string
	router  routing.Router
	retry   routing.RetryConfig
	logger  *slog.Logger
}

// NewClient creates a new RPC client over the router's providers.
func NewClient(chainID string, router routing.Router, retry routing.RetryConfig) *Client {
	return &Client{
		chainID: chainID,
		router:  router,
		retry:   retry,
		logger:  slog.With("component", "rpc", "chain", chainID),
	}
}

// Call makes an RPC call with bounded retry and failover across providers.
// Any failure is wrapped with domain.ErrRPCUnavailable.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	start := time.Now()
	result, providerName, err := routing.CallWithRetryAndFailover(ctx, c.router, method, params, c.retry)
	if providerName == "" {
		providerName = "none"
	}

	metrics.RPCCallsTotal.WithLabelValues(c.chainID, providerName, method).Inc()
	metrics.RPCLatency.WithLabelValues(c.chainID, providerName, method).Observe(time.Since(start).Seconds())

	if err != nil {
		action := routing.ClassifyError(err)
		metrics.RPCErrorsTotal.WithLabelValues(c.chainID, providerName, action.String()).Inc()
		c.logger.Warn("RPC call failed",
			"method", method,
			"provider", providerName,
			"action", action.String(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrRPCUnavailable, method, err)
	}

	return result, nil
}

// Close releases provider resources.
func (c *Client) Close() error {
	for _, p := range c.router.GetAllProviders() {
		p.Close()
	}
	return nil
}
