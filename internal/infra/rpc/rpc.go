// Package rpc provides a resilient JSON-RPC client for EVM ledgers.
//
// This package offers:
//   - Multiple provider support with ordered failover
//   - Bounded retry with exponential backoff for transport failures
//   - A per-provider circuit breaker
//
// # Quick Start
//
//	client := rpc.Dial("56", []rpc.Endpoint{
//	    {Name: "primary", URL: primaryURL},
//	    {Name: "fallback", URL: fallbackURL},
//	}, 15*time.Second, 2)
//
//	result, err := client.Call(ctx, "eth_blockNumber", nil)
//
// # Package Structure
//
//   - provider/ - HTTPProvider and typed RPC errors
//   - routing/  - provider ordering, error classification, retry logic
package rpc

import (
	"time"

	"github.com/vietddude/payverify/internal/infra/rpc/provider"
	"github.com/vietddude/payverify/internal/infra/rpc/routing"
)

// Endpoint names one JSON-RPC URL.
type Endpoint struct {
	Name string
	URL  string
}

// Dial builds a Client over HTTP providers for the given endpoints, tried in order.
func Dial(chainID string, endpoints []Endpoint, timeout time.Duration, maxRetries int) *Client {
	router := routing.NewRouter()
	for _, ep := range endpoints {
		router.AddProvider(provider.NewHTTPProvider(ep.Name, ep.URL, timeout))
	}
	return NewClient(chainID, router, routing.NewRetryConfig(maxRetries))
}
