package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/storage"
)

// ConsumptionRemote is the server-authoritative consumed set.
type ConsumptionRemote interface {
	MarkConsumed(ctx context.Context, hash domain.TxHash, amount string, at time.Time, claimID string) error
	IsConsumed(ctx context.Context, hash domain.TxHash) (bool, error)
}

// ConsumptionLedger tracks which transaction hashes have been applied to an order.
// The local set excludes hashes from searches; the remote set decides ownership.
type ConsumptionLedger struct {
	repo   storage.ConsumedRepository
	remote ConsumptionRemote
	now    func() time.Time
	log    *slog.Logger

	// serialises the local check-and-put; never held across a remote call
	mu sync.Mutex
}

func NewConsumptionLedger(repo storage.ConsumedRepository, remote ConsumptionRemote) *ConsumptionLedger {
	return &ConsumptionLedger{
		repo:   repo,
		remote: remote,
		now:    time.Now,
		log:    slog.With("component", "consumption"),
	}
}

// IsConsumed checks the local set only.
func (l *ConsumptionLedger) IsConsumed(ctx context.Context, hash domain.TxHash) (bool, error) {
	_, err := l.repo.Get(ctx, hash)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load consumed %s: %w", hash, err)
	}
	return true, nil
}

// IsConsumedRemote asks the remote store, which is authoritative.
func (l *ConsumptionLedger) IsConsumedRemote(ctx context.Context, hash domain.TxHash) (bool, error) {
	return l.remote.IsConsumed(ctx, hash)
}

// ExcludedHashes returns every locally consumed hash except claimID's own.
func (l *ConsumptionLedger) ExcludedHashes(ctx context.Context, claimID string) (domain.HashSet, error) {
	recs, err := l.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list consumed: %w", err)
	}

	set := domain.NewHashSet()
	for _, rec := range recs {
		if rec.OwnedBy(claimID) {
			continue
		}
		set.Add(rec.TxHash)
	}
	return set, nil
}

// OwnClaim returns claimID's local record, acknowledged or not, or nil.
// An acknowledged one means the server accepted the claim but the payment
// was not finished locally.
func (l *ConsumptionLedger) OwnClaim(ctx context.Context, claimID string) (*domain.ConsumedTransaction, error) {
	recs, err := l.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list consumed: %w", err)
	}
	for _, rec := range recs {
		if rec.OwnedBy(claimID) {
			return &rec, nil
		}
	}
	return nil, nil
}

// MarkConsumed records hash locally for claimID, then claims it remotely.
//
// The local record is written first and kept whatever the remote answers:
// accepted sets Acknowledged, a rejection turns it into a foreign mark and
// returns domain.ErrAlreadyConsumed, and a transport failure leaves the claim
// pending and returns domain.ErrRemoteUnreachable.
func (l *ConsumptionLedger) MarkConsumed(ctx context.Context, hash domain.TxHash, amount, claimID string) error {
	rec, err := l.claimLocal(ctx, hash, amount, claimID)
	if err != nil {
		return err
	}
	if rec.Acknowledged {
		return nil
	}

	err = l.remote.MarkConsumed(ctx, hash, amount, rec.ConsumedAt, claimID)
	switch {
	case err == nil:
		// The server has decided; a cancelled caller must not lose the ack.
		rec.Acknowledged = true
		if err := l.repo.Put(context.WithoutCancel(ctx), rec); err != nil {
			return fmt.Errorf("acknowledge %s: %w", hash, err)
		}
		l.log.Info("Transaction consumed", "hash", hash, "claim_id", claimID)
		return nil

	case errors.Is(err, domain.ErrAlreadyConsumed):
		l.log.Warn("Transaction owned by another claim", "hash", hash, "claim_id", claimID)
		if ferr := l.MarkForeign(context.WithoutCancel(ctx), hash, amount); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err

	default:
		l.log.Warn("Remote mark failed, claim kept for retry", "hash", hash, "claim_id", claimID, "error", err)
		return err
	}
}

// MarkForeign records hash as consumed by some other claim so searches skip it.
func (l *ConsumptionLedger) MarkForeign(ctx context.Context, hash domain.TxHash, amount string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := domain.ConsumedTransaction{
		TxHash:       hash,
		Amount:       amount,
		ConsumedAt:   l.now().UTC(),
		Acknowledged: true,
	}
	if err := l.repo.Put(ctx, rec); err != nil {
		return fmt.Errorf("mark foreign %s: %w", hash, err)
	}
	return nil
}

func (l *ConsumptionLedger) claimLocal(ctx context.Context, hash domain.TxHash, amount, claimID string) (domain.ConsumedTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.repo.Get(ctx, hash)
	switch {
	case err == nil:
		if !existing.OwnedBy(claimID) {
			return domain.ConsumedTransaction{}, fmt.Errorf("%w: %s", domain.ErrAlreadyConsumed, hash)
		}
		return *existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.ConsumedTransaction{}, fmt.Errorf("load consumed %s: %w", hash, err)
	}

	rec := domain.ConsumedTransaction{
		TxHash:     hash,
		Amount:     amount,
		ConsumedAt: l.now().UTC(),
		ClaimID:    claimID,
	}
	if err := l.repo.Put(ctx, rec); err != nil {
		return domain.ConsumedTransaction{}, fmt.Errorf("store consumed %s: %w", hash, err)
	}
	return rec, nil
}
