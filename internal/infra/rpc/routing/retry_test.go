package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/payverify/internal/infra/rpc/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{errors.New("429 Too Many Requests"), ActionFailover},
		{errors.New("project rate limit exceeded"), ActionFailover},
		{errors.New("quota exceeded"), ActionFailover},
		{errors.New("daily request count exceeded"), ActionFailover},
		{errors.New("403 Forbidden"), ActionFailover},
		{errors.New("Invalid JSON-RPC request -32600"), ActionFatal},
		{errors.New("Method not found -32601"), ActionFatal},
		{errors.New("Parse error -32700"), ActionFatal},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("timeout"), ActionRetry},
		{errors.New("500 Internal Server Error"), ActionRetry},
		{&provider.Error{Code: -32602, Message: "invalid argument"}, ActionFatal},
		{&provider.Error{Code: -32000, Message: "header not found"}, ActionRetry},
		{&provider.StatusError{StatusCode: 401}, ActionFailover},
		{&provider.StatusError{StatusCode: 404}, ActionFatal},
		{&provider.StatusError{StatusCode: 502}, ActionRetry},
		{fmt.Errorf("rpc call: %w", context.Canceled), ActionFatal},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

type mockProvider struct {
	name      string
	errs      []error
	callCount int
}

func (m *mockProvider) GetName() string                  { return m.name }
func (m *mockProvider) GetHealth() provider.HealthStatus { return provider.HealthStatus{Available: true} }
func (m *mockProvider) IsAvailable() bool                { return true }
func (m *mockProvider) Close() error                     { return nil }

func (m *mockProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	m.callCount++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return "ok", nil
}

var fastRetry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 2}

func TestCallWithRetry_TransportFailureThenSuccess(t *testing.T) {
	p := &mockProvider{name: "p", errs: []error{errors.New("connection refused"), errors.New("EOF")}}

	result, err := CallWithRetry(context.Background(), p, "eth_blockNumber", nil, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("unexpected result %v", result)
	}
	if p.callCount != 3 {
		t.Errorf("expected 3 calls, got %d", p.callCount)
	}
}

func TestCallWithRetry_FatalNotRetried(t *testing.T) {
	p := &mockProvider{name: "p", errs: []error{&provider.Error{Code: -32602, Message: "bad params"}}}

	if _, err := CallWithRetry(context.Background(), p, "eth_getLogs", nil, fastRetry); err == nil {
		t.Fatal("expected error")
	}
	if p.callCount != 1 {
		t.Errorf("expected 1 call, got %d", p.callCount)
	}
}

func TestCallWithRetry_Exhausted(t *testing.T) {
	fail := errors.New("connection refused")
	p := &mockProvider{name: "p", errs: []error{fail, fail, fail, fail}}

	_, err := CallWithRetry(context.Background(), p, "eth_blockNumber", nil, NewRetryConfig(1))
	if !errors.Is(err, fail) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if p.callCount != 2 {
		t.Errorf("expected 2 calls, got %d", p.callCount)
	}
}

func TestCallWithRetryAndFailover(t *testing.T) {
	primary := &mockProvider{name: "primary", errs: []error{&provider.StatusError{StatusCode: 429}}}
	secondary := &mockProvider{name: "secondary"}

	router := NewRouter()
	router.AddProvider(primary)
	router.AddProvider(secondary)

	result, name, err := CallWithRetryAndFailover(context.Background(), router, "eth_blockNumber", nil, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || name != "secondary" {
		t.Errorf("unexpected result %v from %s", result, name)
	}
	if primary.callCount != 1 {
		t.Errorf("failover errors should not be retried, got %d calls", primary.callCount)
	}
}

func TestCallWithRetryAndFailover_FatalStops(t *testing.T) {
	primary := &mockProvider{name: "primary", errs: []error{&provider.Error{Code: -32601, Message: "method not found"}}}
	secondary := &mockProvider{name: "secondary"}

	router := NewRouter()
	router.AddProvider(primary)
	router.AddProvider(secondary)

	if _, _, err := CallWithRetryAndFailover(context.Background(), router, "eth_foo", nil, fastRetry); err == nil {
		t.Fatal("expected error")
	}
	if secondary.callCount != 0 {
		t.Errorf("fatal errors must not fail over, secondary got %d calls", secondary.callCount)
	}
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := NewRetryConfig(2)
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for attempt, w := range want {
		if got := cfg.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.MaxAttempts)
	}
}
