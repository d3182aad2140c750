package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/storage"
	"github.com/vietddude/payverify/internal/metrics"
)

// DefaultHistoryLimit caps the local history list.
const DefaultHistoryLimit = 100

// HistoryRemote is the server copy of the transfer history.
type HistoryRemote interface {
	SaveTransfer(ctx context.Context, rec domain.TransferRecord) error
	History(ctx context.Context) ([]domain.TransferRecord, error)
}

// HistoryStore is the bounded local transfer log, mirrored to the server.
type HistoryStore struct {
	repo   storage.HistoryRepository
	remote HistoryRemote
	limit  int
	log    *slog.Logger

	// mu orders local writes and the pushes they queue.
	mu     sync.Mutex
	last   chan struct{} // closed once the latest queued push is done
	pushes sync.WaitGroup
}

func NewHistoryStore(repo storage.HistoryRepository, remote HistoryRemote, limit int) *HistoryStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryStore{
		repo:   repo,
		remote: remote,
		limit:  limit,
		log:    slog.With("component", "history"),
	}
}

// Record upserts rec at the head of the local list and pushes it to the
// server in the background. Pushes reach the server in Record order.
// Push failures are logged, never returned.
func (h *HistoryStore) Record(ctx context.Context, rec domain.TransferRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record transfer: empty id")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.repo.Prepend(ctx, rec, h.limit); err != nil {
		return fmt.Errorf("record transfer %s: %w", rec.ID, err)
	}
	if h.remote != nil {
		h.enqueue(context.WithoutCancel(ctx), rec)
	}
	return nil
}

// enqueue starts a push that waits for the previous one. Callers hold h.mu.
func (h *HistoryStore) enqueue(ctx context.Context, rec domain.TransferRecord) {
	prev, done := h.last, make(chan struct{})
	h.last = done

	h.pushes.Add(1)
	go func() {
		defer h.pushes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := h.remote.SaveTransfer(ctx, rec); err != nil {
			metrics.HistoryPushFailures.Inc()
			h.log.Warn("History push failed", "id", rec.ID, "error", err)
		}
	}()
}

// Flush waits for outstanding pushes.
func (h *HistoryStore) Flush() {
	h.pushes.Wait()
}

// Sync replaces the local list with the server's once queued pushes are
// done. On failure the local list is left as it was.
func (h *HistoryStore) Sync(ctx context.Context) (int, error) {
	h.Flush()
	recs, err := h.remote.History(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync history: %w", err)
	}
	recs = storage.Truncate(recs, h.limit)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.repo.Replace(ctx, recs, h.limit); err != nil {
		return 0, fmt.Errorf("replace history: %w", err)
	}
	h.log.Info("History synced", "records", len(recs))
	return len(recs), nil
}

func (h *HistoryStore) List(ctx context.Context) ([]domain.TransferRecord, error) {
	return h.repo.List(ctx)
}

// Get returns the record with id or domain.ErrNotFound.
func (h *HistoryStore) Get(ctx context.Context, id string) (domain.TransferRecord, error) {
	recs, err := h.repo.List(ctx)
	if err != nil {
		return domain.TransferRecord{}, err
	}
	for _, rec := range recs {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.TransferRecord{}, fmt.Errorf("transfer %s: %w", id, domain.ErrNotFound)
}
