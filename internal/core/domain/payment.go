package domain

import "time"

// PendingPayment is a transfer handed off to an external wallet and awaiting verification.
type PendingPayment struct {
	CorrelationID string      `json:"correlation_id"`
	Amount        TokenAmount `json:"amount"`
	From          Address     `json:"from"`
	To            Address     `json:"to"`
	CreatedAt     time.Time   `json:"created_at"`
}

// ConsumedTransaction records that a chain transaction has been applied to an order.
type ConsumedTransaction struct {
	TxHash     TxHash    `json:"hash"`
	Amount     string    `json:"amount"`
	ConsumedAt time.Time `json:"consumed_at"`

	// ClaimID is the correlation id the hash was credited to. Empty when the
	// hash was learned to be consumed by some other device or order.
	ClaimID string `json:"claim_id,omitempty"`

	// Acknowledged is set once the remote store has accepted (or reported) the mark.
	Acknowledged bool `json:"acknowledged"`
}

// OwnedBy reports whether this record is the given claim's own mark.
func (c ConsumedTransaction) OwnedBy(claimID string) bool {
	return c.ClaimID != "" && c.ClaimID == claimID
}
