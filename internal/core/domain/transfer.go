package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransferKind string

const (
	TransferKindSend    TransferKind = "send"
	TransferKindReceive TransferKind = "receive"
	TransferKindPayment TransferKind = "payment"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
)

// Settlement is the state of a transfer. Only the constructors below can build one,
// so a completed settlement always carries a transaction hash.
type Settlement struct {
	status TransferStatus
	txHash TxHash
	reason string
}

func Pending() Settlement {
	return Settlement{status: TransferStatusPending}
}

func Completed(hash TxHash) (Settlement, error) {
	if hash.IsZero() {
		return Settlement{}, errors.New("completed settlement requires a transaction hash")
	}
	return Settlement{status: TransferStatusCompleted, txHash: hash}, nil
}

func Failed(reason string) Settlement {
	return Settlement{status: TransferStatusFailed, reason: reason}
}

// Status defaults to pending for the zero Settlement.
func (s Settlement) Status() TransferStatus {
	if s.status == "" {
		return TransferStatusPending
	}
	return s.status
}

// TxHash returns the chain hash and whether one is known.
func (s Settlement) TxHash() (TxHash, bool) {
	return s.txHash, s.status == TransferStatusCompleted
}

func (s Settlement) Reason() string { return s.reason }

// Final reports whether the transfer has settled. A final record never goes
// back to pending.
func (s Settlement) Final() bool {
	return s.Status() != TransferStatusPending
}

// Supersedes reports whether rec may replace existing, a record with the same id.
func (rec TransferRecord) Supersedes(existing TransferRecord) bool {
	return rec.Settlement.Final() || !existing.Settlement.Final()
}

// TransferRecord is one entry of the transfer history.
type TransferRecord struct {
	ID         string
	Kind       TransferKind
	Amount     decimal.Decimal
	From       Address
	To         Address
	Timestamp  time.Time
	Settlement Settlement
}

// transferWire is the JSON shape shared by local storage and the remote history API.
type transferWire struct {
	ID        string          `json:"id"`
	Hash      string          `json:"hash,omitempty"`
	Type      TransferKind    `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	From      Address         `json:"from"`
	To        Address         `json:"to"`
	Timestamp int64           `json:"timestamp"`
	Status    TransferStatus  `json:"status"`
	Reason    string          `json:"reason,omitempty"`
}

func (r TransferRecord) MarshalJSON() ([]byte, error) {
	w := transferWire{
		ID:        r.ID,
		Type:      r.Kind,
		Amount:    r.Amount,
		From:      r.From,
		To:        r.To,
		Timestamp: r.Timestamp.UnixMilli(),
		Status:    r.Settlement.Status(),
		Reason:    r.Settlement.reason,
	}
	if h, ok := r.Settlement.TxHash(); ok {
		w.Hash = h.String()
	}
	return json.Marshal(w)
}

func (r *TransferRecord) UnmarshalJSON(data []byte) error {
	var w transferWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var s Settlement
	switch w.Status {
	case TransferStatusPending, "":
		s = Pending()
	case TransferStatusCompleted:
		h, err := ParseTxHash(w.Hash)
		if err != nil {
			return fmt.Errorf("transfer %s: %w", w.ID, err)
		}
		s, _ = Completed(h)
	case TransferStatusFailed:
		s = Failed(w.Reason)
	default:
		return fmt.Errorf("transfer %s: unknown status %q", w.ID, w.Status)
	}

	*r = TransferRecord{
		ID:         w.ID,
		Kind:       w.Type,
		Amount:     w.Amount,
		From:       w.From,
		To:         w.To,
		Timestamp:  time.UnixMilli(w.Timestamp).UTC(),
		Settlement: s,
	}
	return nil
}
