package memory

import (
	"context"
	"sync"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/storage"
)

// DeviceStorage is an in-memory storage.DeviceStore for tests and dry runs.
type DeviceStorage struct {
	consumed map[domain.TxHash]domain.ConsumedTransaction
	pending  *domain.PendingPayment
	history  []domain.TransferRecord
	mu       sync.RWMutex
}

func NewDeviceStorage() *DeviceStorage {
	return &DeviceStorage{
		consumed: make(map[domain.TxHash]domain.ConsumedTransaction),
	}
}

func (s *DeviceStorage) Consumed() storage.ConsumedRepository { return &ConsumedRepo{store: s} }
func (s *DeviceStorage) Pending() storage.PendingRepository   { return &PendingRepo{store: s} }
func (s *DeviceStorage) History() storage.HistoryRepository   { return &HistoryRepo{store: s} }
func (s *DeviceStorage) Close() error                         { return nil }

// -----------------------------------------------------------------------------
// Consumed Repository
// -----------------------------------------------------------------------------

type ConsumedRepo struct {
	store *DeviceStorage
}

func (r *ConsumedRepo) Get(ctx context.Context, hash domain.TxHash) (*domain.ConsumedTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.consumed[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (r *ConsumedRepo) Put(ctx context.Context, rec domain.ConsumedTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.consumed[rec.TxHash] = rec
	return nil
}

func (r *ConsumedRepo) List(ctx context.Context) ([]domain.ConsumedTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.ConsumedTransaction, 0, len(r.store.consumed))
	for _, rec := range r.store.consumed {
		out = append(out, rec)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Pending Repository
// -----------------------------------------------------------------------------

type PendingRepo struct {
	store *DeviceStorage
}

func (r *PendingRepo) Get(ctx context.Context) (*domain.PendingPayment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if r.store.pending == nil {
		return nil, domain.ErrNotFound
	}
	p := *r.store.pending
	return &p, nil
}

func (r *PendingRepo) Set(ctx context.Context, p domain.PendingPayment) (*domain.PendingPayment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	prev := r.store.pending
	r.store.pending = &p
	return prev, nil
}

func (r *PendingRepo) Delete(ctx context.Context, correlationID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.pending == nil {
		return false, nil
	}
	if correlationID != "" && r.store.pending.CorrelationID != correlationID {
		return false, nil
	}
	r.store.pending = nil
	return true, nil
}

// -----------------------------------------------------------------------------
// History Repository
// -----------------------------------------------------------------------------

type HistoryRepo struct {
	store *DeviceStorage
}

func (r *HistoryRepo) List(ctx context.Context) ([]domain.TransferRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.TransferRecord, len(r.store.history))
	copy(out, r.store.history)
	return out, nil
}

func (r *HistoryRepo) Prepend(ctx context.Context, rec domain.TransferRecord, limit int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.history = storage.PrependRecord(r.store.history, rec, limit)
	return nil
}

func (r *HistoryRepo) Replace(ctx context.Context, recs []domain.TransferRecord, limit int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]domain.TransferRecord, len(recs))
	copy(out, recs)
	r.store.history = storage.Truncate(out, limit)
	return nil
}
