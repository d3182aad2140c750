// Package payment confirms that an externally submitted token transfer landed
// on chain and credits each transfer to at most one order.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/chain"
	"github.com/vietddude/payverify/internal/metrics"
)

// State is where the device stands in the payment flow.
type State int

const (
	StateNoPendingPayment State = iota
	StateAwaitingExternalApproval
	StateVerifying
)

func (s State) String() string {
	switch s {
	case StateAwaitingExternalApproval:
		return "awaiting_external_approval"
	case StateVerifying:
		return "verifying"
	default:
		return "no_pending_payment"
	}
}

// OutcomeKind is the terminal result of one verification attempt.
type OutcomeKind int

const (
	// OutcomeNotYetVisible leaves the payment pending; try again later.
	OutcomeNotYetVisible OutcomeKind = iota
	OutcomeVerified
	OutcomeAlreadyConsumed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeVerified:
		return "verified"
	case OutcomeAlreadyConsumed:
		return "already_consumed"
	default:
		return "not_yet_visible"
	}
}

// Outcome of Verify.
type Outcome struct {
	Kind          OutcomeKind
	CorrelationID string
	TxHash        domain.TxHash
	Amount        string

	// Why nothing was verified, for OutcomeNotYetVisible.
	Reason     chain.MatchReason
	Diagnostic string
}

// Checkout is what the wallet needs to submit a started payment.
type Checkout struct {
	Payment domain.PendingPayment
	Payload chain.TransferPayload
}

// Verifier drives a pending payment to Verified or AlreadyConsumed.
type Verifier struct {
	ledger      chain.Ledger
	pending     *PendingStore
	consumption *ConsumptionLedger
	history     *HistoryStore
	log         *slog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	inFlight int
}

func NewVerifier(ledger chain.Ledger, pending *PendingStore, consumption *ConsumptionLedger, history *HistoryStore) *Verifier {
	return &Verifier{
		ledger:      ledger,
		pending:     pending,
		consumption: consumption,
		history:     history,
		log:         slog.With("component", "verifier"),
	}
}

// Begin starts a payment of amount from the user's wallet to the store and
// returns the wallet hand-off payload.
func (v *Verifier) Begin(ctx context.Context, amount domain.TokenAmount, from, to domain.Address) (Checkout, error) {
	payload, err := v.ledger.EncodeTransfer(to, amount)
	if err != nil {
		return Checkout{}, err
	}

	p, err := v.pending.Begin(ctx, amount, from, to)
	if err != nil {
		return Checkout{}, err
	}

	rec := domain.TransferRecord{
		ID:         p.CorrelationID,
		Kind:       domain.TransferKindPayment,
		Amount:     amount.Decimal(),
		From:       from,
		To:         to,
		Timestamp:  p.CreatedAt,
		Settlement: domain.Pending(),
	}
	if err := v.history.Record(ctx, rec); err != nil {
		return Checkout{}, err
	}

	return Checkout{Payment: p, Payload: payload}, nil
}

// Cancel abandons the active payment and marks its history record failed.
func (v *Verifier) Cancel(ctx context.Context) (domain.PendingPayment, error) {
	p, err := v.pending.Cancel(ctx)
	if err != nil {
		return domain.PendingPayment{}, err
	}
	if err := v.settle(ctx, p, domain.Failed("cancelled")); err != nil {
		return p, err
	}
	return p, nil
}

// State reports the current flow state.
func (v *Verifier) State(ctx context.Context) (State, error) {
	v.mu.Lock()
	verifying := v.inFlight > 0
	v.mu.Unlock()
	if verifying {
		return StateVerifying, nil
	}

	_, err := v.pending.Active(ctx)
	if errors.Is(err, domain.ErrNoPendingPayment) {
		return StateNoPendingPayment, nil
	}
	if err != nil {
		return StateNoPendingPayment, err
	}
	return StateAwaitingExternalApproval, nil
}

// Verify checks whether the active payment has landed. Concurrent calls for
// the same payment share one attempt. Only ledger transport and storage
// failures are errors; everything else is an Outcome.
func (v *Verifier) Verify(ctx context.Context) (Outcome, error) {
	p, err := v.pending.Active(ctx)
	if err != nil {
		return Outcome{}, err
	}

	res, err, shared := v.group.Do(p.CorrelationID, func() (any, error) {
		return v.verify(ctx, p)
	})
	if shared {
		v.log.Debug("Joined in-flight verification", "correlation_id", p.CorrelationID)
	}
	if err != nil {
		return Outcome{}, err
	}
	return res.(Outcome), nil
}

func (v *Verifier) verify(ctx context.Context, p domain.PendingPayment) (out Outcome, err error) {
	v.mu.Lock()
	v.inFlight++
	v.mu.Unlock()

	start := time.Now()
	defer func() {
		v.mu.Lock()
		v.inFlight--
		v.mu.Unlock()

		label := out.Kind.String()
		if err != nil {
			label = "error"
		}
		metrics.VerificationsTotal.WithLabelValues(label).Inc()
		metrics.VerificationDuration.Observe(time.Since(start).Seconds())
	}()

	log := v.log.With("correlation_id", p.CorrelationID)

	claim, err := v.consumption.OwnClaim(ctx, p.CorrelationID)
	if err != nil {
		return Outcome{}, err
	}
	if claim != nil {
		log.Info("Resuming claim", "hash", claim.TxHash, "acknowledged", claim.Acknowledged)
		return v.confirm(ctx, p, claim.TxHash, claim.Amount)
	}

	excluded, err := v.consumption.ExcludedHashes(ctx, p.CorrelationID)
	if err != nil {
		return Outcome{}, err
	}

	match, err := v.ledger.FindMatchingTransfer(ctx, chain.MatchRequest{
		From:     p.From,
		To:       p.To,
		Amount:   p.Amount,
		Excluded: excluded,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("search transfers: %w", err)
	}
	if !match.Found {
		log.Info("No matching transfer yet", "reason", match.Reason)
		return Outcome{
			Kind:          OutcomeNotYetVisible,
			CorrelationID: p.CorrelationID,
			Reason:        match.Reason,
			Diagnostic:    match.Diagnostic,
		}, nil
	}

	amount := match.Amount.String()
	log.Info("Matching transfer found", "hash", match.TxHash, "amount", amount, "block", match.BlockNumber)

	consumed, err := v.consumption.IsConsumedRemote(ctx, match.TxHash)
	if err != nil {
		log.Warn("Remote check failed", "hash", match.TxHash, "error", err)
		return v.unreachable(p, err), nil
	}
	if consumed {
		if err := v.consumption.MarkForeign(ctx, match.TxHash, amount); err != nil {
			return Outcome{}, err
		}
		return v.alreadyConsumed(ctx, p, match.TxHash, amount)
	}

	return v.confirm(ctx, p, match.TxHash, amount)
}

// confirm claims hash for p and completes the payment. MarkConsumed has
// recorded the hash locally whenever it returns ErrAlreadyConsumed.
func (v *Verifier) confirm(ctx context.Context, p domain.PendingPayment, hash domain.TxHash, amount string) (Outcome, error) {
	err := v.consumption.MarkConsumed(ctx, hash, amount, p.CorrelationID)
	switch {
	case errors.Is(err, domain.ErrAlreadyConsumed):
		return v.alreadyConsumed(ctx, p, hash, amount)
	case errors.Is(err, domain.ErrRemoteUnreachable):
		return v.unreachable(p, err), nil
	case err != nil:
		return Outcome{}, err
	}

	// The claim is acknowledged; finish the local writes even if ctx ends.
	ctx = context.WithoutCancel(ctx)

	settlement, err := domain.Completed(hash)
	if err != nil {
		return Outcome{}, err
	}
	if err := v.settle(ctx, p, settlement); err != nil {
		return Outcome{}, err
	}
	if err := v.pending.Clear(ctx, p.CorrelationID); err != nil {
		return Outcome{}, err
	}

	v.log.Info("Payment verified", "correlation_id", p.CorrelationID, "hash", hash)
	return Outcome{
		Kind:          OutcomeVerified,
		CorrelationID: p.CorrelationID,
		TxHash:        hash,
		Amount:        amount,
	}, nil
}

// alreadyConsumed fails p. The caller has already recorded hash locally.
func (v *Verifier) alreadyConsumed(ctx context.Context, p domain.PendingPayment, hash domain.TxHash, amount string) (Outcome, error) {
	if err := v.settle(ctx, p, domain.Failed(domain.ErrAlreadyConsumed.Error())); err != nil {
		return Outcome{}, err
	}
	if err := v.pending.Clear(ctx, p.CorrelationID); err != nil {
		return Outcome{}, err
	}

	v.log.Warn("Transaction already consumed", "correlation_id", p.CorrelationID, "hash", hash)
	return Outcome{
		Kind:          OutcomeAlreadyConsumed,
		CorrelationID: p.CorrelationID,
		TxHash:        hash,
		Amount:        amount,
		Diagnostic:    domain.UserMessage(domain.ErrAlreadyConsumed),
	}, nil
}

func (v *Verifier) unreachable(p domain.PendingPayment, err error) Outcome {
	return Outcome{
		Kind:          OutcomeNotYetVisible,
		CorrelationID: p.CorrelationID,
		Diagnostic:    domain.UserMessage(err),
	}
}

// settle updates the history record for p, creating it if it was lost.
func (v *Verifier) settle(ctx context.Context, p domain.PendingPayment, s domain.Settlement) error {
	rec, err := v.history.Get(ctx, p.CorrelationID)
	if errors.Is(err, domain.ErrNotFound) {
		rec = domain.TransferRecord{
			ID:        p.CorrelationID,
			Kind:      domain.TransferKindPayment,
			Amount:    p.Amount.Decimal(),
			From:      p.From,
			To:        p.To,
			Timestamp: p.CreatedAt,
		}
	} else if err != nil {
		return err
	}
	rec.Settlement = s
	return v.history.Record(ctx, rec)
}
