package bolt

import (
	"context"

	"go.etcd.io/bbolt"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/storage"
)

type consumedRepo struct {
	db *bbolt.DB
}

func (r *consumedRepo) Get(ctx context.Context, hash domain.TxHash) (*domain.ConsumedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *domain.ConsumedTransaction
	err := r.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketConsumed).Get([]byte(hash.String()))
		if raw == nil {
			return domain.ErrNotFound
		}
		rec = new(domain.ConsumedTransaction)
		return decode(raw, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *consumedRepo) Put(ctx context.Context, rec domain.ConsumedTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encode(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConsumed).Put([]byte(rec.TxHash.String()), raw)
	})
}

func (r *consumedRepo) List(ctx context.Context) ([]domain.ConsumedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.ConsumedTransaction
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConsumed).ForEach(func(_, raw []byte) error {
			var rec domain.ConsumedTransaction
			if err := decode(raw, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

type pendingRepo struct {
	db *bbolt.DB
}

func (r *pendingRepo) Get(ctx context.Context) (*domain.PendingPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p *domain.PendingPayment
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		p, err = getPending(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *pendingRepo) Set(ctx context.Context, p domain.PendingPayment) (*domain.PendingPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := encode(p)
	if err != nil {
		return nil, err
	}
	var prev *domain.PendingPayment
	err = r.db.Update(func(tx *bbolt.Tx) error {
		var err error
		if prev, err = getPending(tx); err != nil {
			return err
		}
		return tx.Bucket(bucketPending).Put(keyActive, raw)
	})
	return prev, err
}

func (r *pendingRepo) Delete(ctx context.Context, correlationID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	removed := false
	err := r.db.Update(func(tx *bbolt.Tx) error {
		p, err := getPending(tx)
		if err != nil || p == nil {
			return err
		}
		if correlationID != "" && p.CorrelationID != correlationID {
			return nil
		}
		removed = true
		return tx.Bucket(bucketPending).Delete(keyActive)
	})
	return removed, err
}

func getPending(tx *bbolt.Tx) (*domain.PendingPayment, error) {
	raw := tx.Bucket(bucketPending).Get(keyActive)
	if raw == nil {
		return nil, nil
	}
	var p domain.PendingPayment
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type historyRepo struct {
	db *bbolt.DB
}

func (r *historyRepo) List(ctx context.Context) ([]domain.TransferRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.TransferRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		out, err = getHistory(tx)
		return err
	})
	return out, err
}

func (r *historyRepo) Prepend(ctx context.Context, rec domain.TransferRecord, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		list, err := getHistory(tx)
		if err != nil {
			return err
		}
		return putHistory(tx, storage.PrependRecord(list, rec, limit))
	})
}

func (r *historyRepo) Replace(ctx context.Context, recs []domain.TransferRecord, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return putHistory(tx, storage.Truncate(recs, limit))
	})
}

func getHistory(tx *bbolt.Tx) ([]domain.TransferRecord, error) {
	raw := tx.Bucket(bucketHistory).Get(keyRecords)
	if raw == nil {
		return nil, nil
	}
	var list []domain.TransferRecord
	if err := decode(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func putHistory(tx *bbolt.Tx, list []domain.TransferRecord) error {
	if list == nil {
		list = []domain.TransferRecord{}
	}
	raw, err := encode(list)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketHistory).Put(keyRecords, raw)
}
