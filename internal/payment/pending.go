package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/storage"
)

// PendingStore holds the device's single active pending payment.
type PendingStore struct {
	repo  storage.PendingRepository
	newID func() string
	now   func() time.Time
	log   *slog.Logger
}

func NewPendingStore(repo storage.PendingRepository) *PendingStore {
	return &PendingStore{
		repo:  repo,
		newID: uuid.NewString,
		now:   time.Now,
		log:   slog.With("component", "pending"),
	}
}

// Begin starts a new pending payment, replacing any active one.
func (s *PendingStore) Begin(ctx context.Context, amount domain.TokenAmount, from, to domain.Address) (domain.PendingPayment, error) {
	if from.IsZero() {
		return domain.PendingPayment{}, fmt.Errorf("%w: sender", domain.ErrInvalidAddress)
	}
	if to.IsZero() {
		return domain.PendingPayment{}, fmt.Errorf("%w: recipient", domain.ErrInvalidAddress)
	}
	if amount.IsZero() || amount.Decimal().IsNegative() {
		return domain.PendingPayment{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}

	p := domain.PendingPayment{
		CorrelationID: s.newID(),
		Amount:        amount,
		From:          from,
		To:            to,
		CreatedAt:     s.now().UTC(),
	}

	prev, err := s.repo.Set(ctx, p)
	if err != nil {
		return domain.PendingPayment{}, fmt.Errorf("store pending payment: %w", err)
	}
	if prev != nil {
		s.log.Warn("Pending payment abandoned", "correlation_id", prev.CorrelationID, "replaced_by", p.CorrelationID)
	}

	s.log.Info("Pending payment started", "correlation_id", p.CorrelationID, "amount", amount, "to", to)
	return p, nil
}

// Active returns the active pending payment or domain.ErrNoPendingPayment.
func (s *PendingStore) Active(ctx context.Context) (domain.PendingPayment, error) {
	p, err := s.repo.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PendingPayment{}, domain.ErrNoPendingPayment
	}
	if err != nil {
		return domain.PendingPayment{}, fmt.Errorf("load pending payment: %w", err)
	}
	return *p, nil
}

// Clear removes the active payment only if it is correlationID.
func (s *PendingStore) Clear(ctx context.Context, correlationID string) error {
	if correlationID == "" {
		return nil
	}
	if _, err := s.repo.Delete(ctx, correlationID); err != nil {
		return fmt.Errorf("clear pending payment %s: %w", correlationID, err)
	}
	return nil
}

// Cancel drops whatever payment is active and returns it.
func (s *PendingStore) Cancel(ctx context.Context) (domain.PendingPayment, error) {
	p, err := s.Active(ctx)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	if _, err := s.repo.Delete(ctx, p.CorrelationID); err != nil {
		return domain.PendingPayment{}, fmt.Errorf("cancel pending payment: %w", err)
	}
	s.log.Info("Pending payment cancelled", "correlation_id", p.CorrelationID)
	return p, nil
}
