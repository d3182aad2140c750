package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/payverify/internal/core/domain"
)

// TransferRepo implements storage.TransferHistoryStore.
// Records live in a hash keyed by id; a sorted set by timestamp gives the order.
type TransferRepo struct {
	c *Client
}

// Save upserts rec for account. The record hash is watched so a pending
// record cannot overwrite a settled one written concurrently.
func (r *TransferRepo) Save(ctx context.Context, account string, rec domain.TransferRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer: %w", err)
	}

	key := r.c.transfersKey(account)
	err = r.c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, rec.ID).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var existing domain.TransferRecord
			if err := json.Unmarshal([]byte(cur), &existing); err == nil && !rec.Supersedes(existing) {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, rec.ID, data)
			pipe.ZAdd(ctx, r.c.transfersByTimeKey(account), redis.Z{
				Score:  float64(rec.Timestamp.UnixMilli()),
				Member: rec.ID,
			})
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to save transfer: %w", err)
	}
	return nil
}

// List returns account's transfers newest first.
func (r *TransferRepo) List(ctx context.Context, account string) ([]domain.TransferRecord, error) {
	ids, err := r.c.rdb.ZRevRange(ctx, r.c.transfersByTimeKey(account), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	if len(ids) == 0 {
		return []domain.TransferRecord{}, nil
	}

	values, err := r.c.rdb.HMGet(ctx, r.c.transfersKey(account), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget failed: %w", err)
	}

	out := make([]domain.TransferRecord, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // index entry without a record
		}
		var rec domain.TransferRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transfer %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}
