// Package routing handles provider ordering and failover logic.
//
// This package contains:
//   - Router: interface for provider selection and health tracking
//   - DefaultRouter: ordered providers with a per-provider circuit breaker
//   - Retry: retry logic with exponential backoff and failover
package routing

import (
	"sync"
	"time"

	"github.com/vietddude/payverify/internal/infra/rpc/provider"
)

const (
	circuitThreshold = 5
	circuitCooldown  = 30 * time.Second
)

// Router handles provider selection and health tracking.
type Router interface {
	// AddProvider registers a provider
	AddProvider(p provider.Provider)

	// GetAllProviders returns providers in the order they should be tried
	GetAllProviders() []provider.Provider

	// RecordSuccess tracks successful calls
	RecordSuccess(providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(providerName string, err error)
}

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpenUntil time.Time
}

// DefaultRouter keeps providers in configuration order. Providers whose circuit
// is open or which report themselves unavailable are moved to the back rather
// than dropped, so a single-provider setup still gets its call.
type DefaultRouter struct {
	mu             sync.RWMutex
	providers      []provider.Provider
	providerHealth map[string]*providerMetrics
	now            func() time.Time
}

// NewRouter creates an empty router.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		providerHealth: make(map[string]*providerMetrics),
		now:            time.Now,
	}
}

// AddProvider registers a provider.
func (r *DefaultRouter) AddProvider(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	r.providerHealth[p.GetName()] = &providerMetrics{
		lastSuccessAt: r.now(),
	}
}

// GetAllProviders returns healthy providers first, in registration order.
func (r *DefaultRouter) GetAllProviders() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	healthy := make([]provider.Provider, 0, len(r.providers))
	var degraded []provider.Provider
	for _, p := range r.providers {
		m := r.providerHealth[p.GetName()]
		if (m != nil && now.Before(m.circuitOpenUntil)) || !p.IsAvailable() {
			degraded = append(degraded, p)
			continue
		}
		healthy = append(healthy, p)
	}
	return append(healthy, degraded...)
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.successCount++
	metrics.totalLatency += latency
	metrics.lastSuccessAt = r.now()
	metrics.consecutiveFails = 0
	metrics.circuitOpenUntil = time.Time{}
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.failureCount++
	metrics.lastFailureAt = r.now()
	metrics.consecutiveFails++

	if metrics.consecutiveFails >= circuitThreshold {
		metrics.circuitOpenUntil = r.now().Add(circuitCooldown)
	}
}
