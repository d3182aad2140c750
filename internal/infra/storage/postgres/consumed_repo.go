package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/storage"
)

// ConsumedRepo implements storage.ConsumptionStore using PostgreSQL.
// The primary key on tx_hash is what makes a second claim impossible.
type ConsumedRepo struct {
	db *DB
}

// NewConsumedRepo creates a new PostgreSQL consumption repository.
func NewConsumedRepo(db *DB) *ConsumedRepo {
	return &ConsumedRepo{db: db}
}

type consumedRow struct {
	TxHash     string    `db:"tx_hash"`
	Amount     string    `db:"amount"`
	ClaimID    string    `db:"claim_id"`
	Account    string    `db:"account"`
	ConsumedAt time.Time `db:"consumed_at"`
}

func (r consumedRow) toMark() (storage.Mark, error) {
	hash, err := domain.ParseTxHash(r.TxHash)
	if err != nil {
		return storage.Mark{}, err
	}
	return storage.Mark{
		TxHash:    hash,
		Amount:    r.Amount,
		Timestamp: r.ConsumedAt,
		ClaimID:   r.ClaimID,
		Account:   r.Account,
	}, nil
}

// MarkConsumed inserts the mark unless the hash is already owned.
func (r *ConsumedRepo) MarkConsumed(ctx context.Context, m storage.Mark) (storage.MarkResult, error) {
	query := `
		INSERT INTO consumed_transactions (tx_hash, amount, claim_id, account, consumed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tx_hash) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		m.TxHash.String(), m.Amount, m.ClaimID, m.Account, m.Timestamp.UTC(),
	)
	if err != nil {
		return storage.MarkConflict, fmt.Errorf("failed to mark consumed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storage.MarkConflict, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return storage.MarkAccepted, nil
	}

	var row consumedRow
	err = r.db.GetContext(ctx, &row, `
		SELECT tx_hash, amount, claim_id, account, consumed_at
		FROM consumed_transactions WHERE tx_hash = $1
	`, m.TxHash.String())
	if err != nil {
		return storage.MarkConflict, fmt.Errorf("failed to load existing mark: %w", err)
	}

	existing, err := row.toMark()
	if err != nil {
		return storage.MarkConflict, err
	}
	return storage.Resolve(existing, m), nil
}

// IsConsumed checks whether any claim owns hash.
func (r *ConsumedRepo) IsConsumed(ctx context.Context, hash domain.TxHash) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one,
		`SELECT 1 FROM consumed_transactions WHERE tx_hash = $1`, hash.String())
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check consumed: %w", err)
	}
	return true, nil
}
