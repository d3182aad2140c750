package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/payverify/internal/core/domain"
)

// TransferRepo implements storage.TransferHistoryStore using PostgreSQL.
type TransferRepo struct {
	db *DB
}

// NewTransferRepo creates a new PostgreSQL transfer history repository.
func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

type transferRow struct {
	Account    string          `db:"account"`
	ID         string          `db:"id"`
	TxHash     string          `db:"tx_hash"`
	Kind       string          `db:"kind"`
	Amount     decimal.Decimal `db:"amount"`
	From       string          `db:"from_address"`
	To         string          `db:"to_address"`
	Status     string          `db:"status"`
	Reason     string          `db:"reason"`
	OccurredAt time.Time       `db:"occurred_at"`
}

func fromDomain(account string, rec domain.TransferRecord) transferRow {
	row := transferRow{
		Account:    account,
		ID:         rec.ID,
		Kind:       string(rec.Kind),
		Amount:     rec.Amount,
		Status:     string(rec.Settlement.Status()),
		Reason:     rec.Settlement.Reason(),
		OccurredAt: rec.Timestamp.UTC(),
	}
	if !rec.From.IsZero() {
		row.From = rec.From.String()
	}
	if !rec.To.IsZero() {
		row.To = rec.To.String()
	}
	if h, ok := rec.Settlement.TxHash(); ok {
		row.TxHash = h.String()
	}
	return row
}

func (r transferRow) toDomain() (domain.TransferRecord, error) {
	rec := domain.TransferRecord{
		ID:        r.ID,
		Kind:      domain.TransferKind(r.Kind),
		Amount:    r.Amount,
		Timestamp: r.OccurredAt.UTC(),
	}

	var err error
	if r.From != "" {
		if rec.From, err = domain.ParseAddress(r.From); err != nil {
			return rec, err
		}
	}
	if r.To != "" {
		if rec.To, err = domain.ParseAddress(r.To); err != nil {
			return rec, err
		}
	}

	switch domain.TransferStatus(r.Status) {
	case domain.TransferStatusCompleted:
		hash, err := domain.ParseTxHash(r.TxHash)
		if err != nil {
			return rec, fmt.Errorf("transfer %s: %w", r.ID, err)
		}
		rec.Settlement, _ = domain.Completed(hash)
	case domain.TransferStatusFailed:
		rec.Settlement = domain.Failed(r.Reason)
	default:
		rec.Settlement = domain.Pending()
	}
	return rec, nil
}

// Save upserts a transfer for account by id. A settled row is never
// overwritten by a pending one.
func (r *TransferRepo) Save(ctx context.Context, account string, rec domain.TransferRecord) error {
	query := `
		INSERT INTO transfers (
			account, id, tx_hash, kind, amount, from_address, to_address, status, reason, occurred_at
		) VALUES (
			:account, :id, :tx_hash, :kind, :amount, :from_address, :to_address, :status, :reason, :occurred_at
		)
		ON CONFLICT (account, id) DO UPDATE SET
			tx_hash = EXCLUDED.tx_hash,
			kind = EXCLUDED.kind,
			amount = EXCLUDED.amount,
			from_address = EXCLUDED.from_address,
			to_address = EXCLUDED.to_address,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			occurred_at = EXCLUDED.occurred_at,
			updated_at = NOW()
		WHERE transfers.status = 'pending' OR EXCLUDED.status <> 'pending'
	`
	if _, err := r.db.NamedExecContext(ctx, query, fromDomain(account, rec)); err != nil {
		return fmt.Errorf("failed to save transfer: %w", err)
	}
	return nil
}

// List returns account's transfers newest first.
func (r *TransferRepo) List(ctx context.Context, account string) ([]domain.TransferRecord, error) {
	var rows []transferRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT account, id, tx_hash, kind, amount, from_address, to_address, status, reason, occurred_at
		FROM transfers
		WHERE account = $1
		ORDER BY occurred_at DESC, id DESC
	`, account)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	out := make([]domain.TransferRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
