package storage

import (
	"context"
	"time"

	"github.com/vietddude/payverify/internal/core/domain"
)

// ConsumedRepository handles the device-local consumed transaction set
type ConsumedRepository interface {
	// Get retrieves a consumed record by hash, domain.ErrNotFound if absent
	Get(ctx context.Context, hash domain.TxHash) (*domain.ConsumedTransaction, error)

	// Put inserts or replaces the record for rec.TxHash
	Put(ctx context.Context, rec domain.ConsumedTransaction) error

	// List returns every consumed record
	List(ctx context.Context) ([]domain.ConsumedTransaction, error)
}

// PendingRepository holds the single active pending payment of a device
type PendingRepository interface {
	// Get returns the active pending payment, domain.ErrNotFound if none
	Get(ctx context.Context) (*domain.PendingPayment, error)

	// Set stores p as the active payment and returns the one it replaced, if any
	Set(ctx context.Context, p domain.PendingPayment) (*domain.PendingPayment, error)

	// Delete removes the active payment if its correlation id matches.
	// An empty id removes whatever is active. Reports whether it removed one.
	Delete(ctx context.Context, correlationID string) (bool, error)
}

// HistoryRepository handles the bounded, most-recent-first local transfer log
type HistoryRepository interface {
	// List returns records newest first
	List(ctx context.Context) ([]domain.TransferRecord, error)

	// Prepend removes any record with rec.ID, puts rec first and keeps at most limit records
	Prepend(ctx context.Context, rec domain.TransferRecord, limit int) error

	// Replace swaps the whole log for recs, truncated to limit
	Replace(ctx context.Context, recs []domain.TransferRecord, limit int) error
}

// DeviceStore bundles the device-local repositories
type DeviceStore interface {
	Consumed() ConsumedRepository
	Pending() PendingRepository
	History() HistoryRepository
	Close() error
}

// Mark is a server-side consumption claim on a transaction hash
type Mark struct {
	TxHash    domain.TxHash
	Amount    string
	Timestamp time.Time
	ClaimID   string
	Account   string
}

// MarkResult is the outcome of a server-side mark
type MarkResult int

const (
	// MarkAccepted means the hash was not consumed before
	MarkAccepted MarkResult = iota
	// MarkRepeated means the same claim marked the hash again
	MarkRepeated
	// MarkConflict means the hash is owned by another claim
	MarkConflict
)

func (r MarkResult) String() string {
	switch r {
	case MarkAccepted:
		return "accepted"
	case MarkRepeated:
		return "repeat"
	default:
		return "conflict"
	}
}

// Resolve decides the result of marking a hash already held by existing.
// Only a non-empty matching claim id counts as the same claim.
func Resolve(existing Mark, incoming Mark) MarkResult {
	if existing.ClaimID != "" && existing.ClaimID == incoming.ClaimID {
		return MarkRepeated
	}
	return MarkConflict
}

// ConsumptionStore is the server-authoritative consumed set
type ConsumptionStore interface {
	// MarkConsumed claims m.TxHash. It never lets two different claims own one hash.
	MarkConsumed(ctx context.Context, m Mark) (MarkResult, error)

	// IsConsumed reports whether any claim owns hash
	IsConsumed(ctx context.Context, hash domain.TxHash) (bool, error)
}

// TransferHistoryStore is the server-authoritative, unbounded per-account history
type TransferHistoryStore interface {
	// Save upserts rec for account by id
	Save(ctx context.Context, account string, rec domain.TransferRecord) error

	// List returns account's records newest first
	List(ctx context.Context, account string) ([]domain.TransferRecord, error)
}

// ServerStore bundles the server-side stores
type ServerStore interface {
	Consumption() ConsumptionStore
	Transfers() TransferHistoryStore
	Ping(ctx context.Context) error
	Close() error
}
