package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/storage/memory"
)

// MockConsumptionRemote is a hand-written ConsumptionRemote.
type MockConsumptionRemote struct {
	MarkFunc     func(hash domain.TxHash, claimID string) error
	ConsumedFunc func(hash domain.TxHash) (bool, error)
	marks        int
}

func (m *MockConsumptionRemote) MarkConsumed(ctx context.Context, hash domain.TxHash, amount string, at time.Time, claimID string) error {
	m.marks++
	if m.MarkFunc != nil {
		return m.MarkFunc(hash, claimID)
	}
	return nil
}

func (m *MockConsumptionRemote) IsConsumed(ctx context.Context, hash domain.TxHash) (bool, error) {
	if m.ConsumedFunc != nil {
		return m.ConsumedFunc(hash)
	}
	return false, nil
}

func TestMarkConsumed_Accepted(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDeviceStorage()
	rc := &MockConsumptionRemote{}
	l := NewConsumptionLedger(store.Consumed(), rc)
	hash := domain.MustParseTxHash(txHash(1))

	if err := l.MarkConsumed(ctx, hash, "10", "order-1"); err != nil {
		t.Fatalf("MarkConsumed: %v", err)
	}
	rec, err := store.Consumed().Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Acknowledged || rec.ClaimID != "order-1" {
		t.Errorf("unexpected record %+v", rec)
	}

	// An acknowledged claim is not sent again.
	if err := l.MarkConsumed(ctx, hash, "10", "order-1"); err != nil {
		t.Fatalf("repeat MarkConsumed: %v", err)
	}
	if rc.marks != 1 {
		t.Errorf("expected 1 remote mark, got %d", rc.marks)
	}
}

func TestMarkConsumed_LocalOwnedByOther(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDeviceStorage()
	rc := &MockConsumptionRemote{}
	l := NewConsumptionLedger(store.Consumed(), rc)
	hash := domain.MustParseTxHash(txHash(1))

	if err := l.MarkConsumed(ctx, hash, "10", "order-1"); err != nil {
		t.Fatalf("MarkConsumed: %v", err)
	}
	if err := l.MarkConsumed(ctx, hash, "10", "order-2"); !errors.Is(err, domain.ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed, got %v", err)
	}
	if rc.marks != 1 {
		t.Errorf("second claim must not reach the server, got %d marks", rc.marks)
	}
}

func TestMarkConsumed_RemoteRejects(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDeviceStorage()
	rc := &MockConsumptionRemote{MarkFunc: func(h domain.TxHash, _ string) error {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyConsumed, h)
	}}
	l := NewConsumptionLedger(store.Consumed(), rc)
	hash := domain.MustParseTxHash(txHash(1))

	if err := l.MarkConsumed(ctx, hash, "10", "order-1"); !errors.Is(err, domain.ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed, got %v", err)
	}

	rec, err := store.Consumed().Get(ctx, hash)
	if err != nil {
		t.Fatalf("local record must be kept: %v", err)
	}
	if rec.OwnedBy("order-1") {
		t.Error("rejected hash should become a foreign mark")
	}

	claim, _ := l.OwnClaim(ctx, "order-1")
	if claim != nil {
		t.Errorf("rejected hash must not be retried, got %+v", claim)
	}
	excluded, _ := l.ExcludedHashes(ctx, "order-1")
	if !excluded.Has(hash) {
		t.Error("rejected hash must be excluded")
	}
}

func TestMarkConsumed_RemoteUnreachable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDeviceStorage()
	rc := &MockConsumptionRemote{MarkFunc: func(domain.TxHash, string) error {
		return domain.ErrRemoteUnreachable
	}}
	l := NewConsumptionLedger(store.Consumed(), rc)
	hash := domain.MustParseTxHash(txHash(1))

	if err := l.MarkConsumed(ctx, hash, "10", "order-1"); !errors.Is(err, domain.ErrRemoteUnreachable) {
		t.Fatalf("expected ErrRemoteUnreachable, got %v", err)
	}

	claim, err := l.OwnClaim(ctx, "order-1")
	if err != nil || claim == nil || claim.TxHash != hash || claim.Acknowledged {
		t.Fatalf("expected unacknowledged claim for %s, got %+v %v", hash, claim, err)
	}

	// Own unacknowledged claim stays searchable; everyone else skips it.
	own, _ := l.ExcludedHashes(ctx, "order-1")
	if own.Has(hash) {
		t.Error("own pending claim must not be excluded")
	}
	other, _ := l.ExcludedHashes(ctx, "order-2")
	if !other.Has(hash) {
		t.Error("pending claim must be excluded for other orders")
	}

	rc.MarkFunc = nil
	if err := l.MarkConsumed(ctx, hash, "10", "order-1"); err != nil {
		t.Fatalf("retry MarkConsumed: %v", err)
	}
	if claim, _ := l.OwnClaim(ctx, "order-1"); claim == nil || !claim.Acknowledged {
		t.Errorf("claim should be acknowledged, got %+v", claim)
	}
	if own, _ := l.ExcludedHashes(ctx, "order-1"); own.Has(hash) {
		t.Error("own acknowledged claim must not be excluded")
	}
}

func TestIsConsumed_LocalOnly(t *testing.T) {
	ctx := context.Background()
	rc := &MockConsumptionRemote{ConsumedFunc: func(domain.TxHash) (bool, error) { return true, nil }}
	l := NewConsumptionLedger(memory.NewDeviceStorage().Consumed(), rc)
	hash := domain.MustParseTxHash(txHash(1))

	if consumed, err := l.IsConsumed(ctx, hash); err != nil || consumed {
		t.Errorf("expected local miss, got %v %v", consumed, err)
	}
	if consumed, err := l.IsConsumedRemote(ctx, hash); err != nil || !consumed {
		t.Errorf("expected remote hit, got %v %v", consumed, err)
	}
}
