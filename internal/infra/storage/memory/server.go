package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/storage"
)

// ServerStorage is an in-memory storage.ServerStore used by `serve --memory` and tests.
type ServerStorage struct {
	marks     map[domain.TxHash]storage.Mark
	transfers map[string]map[string]domain.TransferRecord // account -> id -> record
	mu        sync.RWMutex
}

func NewServerStorage() *ServerStorage {
	return &ServerStorage{
		marks:     make(map[domain.TxHash]storage.Mark),
		transfers: make(map[string]map[string]domain.TransferRecord),
	}
}

func (s *ServerStorage) Consumption() storage.ConsumptionStore { return &ConsumptionRepo{store: s} }
func (s *ServerStorage) Transfers() storage.TransferHistoryStore {
	return &TransferRepo{store: s}
}
func (s *ServerStorage) Ping(ctx context.Context) error { return nil }
func (s *ServerStorage) Close() error                   { return nil }

type ConsumptionRepo struct {
	store *ServerStorage
}

func (r *ConsumptionRepo) MarkConsumed(ctx context.Context, m storage.Mark) (storage.MarkResult, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if existing, ok := r.store.marks[m.TxHash]; ok {
		return storage.Resolve(existing, m), nil
	}
	r.store.marks[m.TxHash] = m
	return storage.MarkAccepted, nil
}

func (r *ConsumptionRepo) IsConsumed(ctx context.Context, hash domain.TxHash) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	_, ok := r.store.marks[hash]
	return ok, nil
}

type TransferRepo struct {
	store *ServerStorage
}

func (r *TransferRepo) Save(ctx context.Context, account string, rec domain.TransferRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	byID, ok := r.store.transfers[account]
	if !ok {
		byID = make(map[string]domain.TransferRecord)
		r.store.transfers[account] = byID
	}
	if existing, ok := byID[rec.ID]; ok && !rec.Supersedes(existing) {
		return nil
	}
	byID[rec.ID] = rec
	return nil
}

func (r *TransferRepo) List(ctx context.Context, account string) ([]domain.TransferRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.TransferRecord, 0, len(r.store.transfers[account]))
	for _, rec := range r.store.transfers[account] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
