// Package provider implements RPC provider interfaces.
//
// This package contains:
//   - Provider interface: core abstraction for ledger JSON-RPC endpoints
//   - HTTPProvider: JSON-RPC 2.0 over HTTP implementation
//   - Error, StatusError: typed failures used for retry classification
package provider

import (
	"context"
	"fmt"
	"time"
)

// Provider defines the core interface for a ledger RPC endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "ankr", "publicnode")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Call makes a single RPC request
	Call(ctx context.Context, method string, params []any) (any, error)

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available      bool
	Latency        time.Duration
	ErrorRate      float64
	LastSuccessAt  time.Time
	LastFailureAt  time.Time
	ThrottledUntil time.Time
}

// Error is a JSON-RPC error object returned by the endpoint.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StatusError is a non-200 HTTP response from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}
