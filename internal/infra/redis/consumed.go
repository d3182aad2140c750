package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/payverify/internal/core/domain"
	"github.com/vietddude/payverify/internal/infra/storage"
)

// ConsumedRepo implements storage.ConsumptionStore with one SETNX key per hash.
// Keys never expire.
type ConsumedRepo struct {
	c *Client
}

type markValue struct {
	Amount    string `json:"amount"`
	ClaimID   string `json:"claim_id"`
	Account   string `json:"account"`
	Timestamp int64  `json:"timestamp"`
}

// MarkConsumed claims the hash unless another claim already owns it.
func (r *ConsumedRepo) MarkConsumed(ctx context.Context, m storage.Mark) (storage.MarkResult, error) {
	data, err := json.Marshal(markValue{
		Amount:    m.Amount,
		ClaimID:   m.ClaimID,
		Account:   m.Account,
		Timestamp: m.Timestamp.UnixMilli(),
	})
	if err != nil {
		return storage.MarkConflict, fmt.Errorf("failed to marshal mark: %w", err)
	}

	key := r.c.consumedKey(m.TxHash.String())
	ok, err := r.c.rdb.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return storage.MarkConflict, fmt.Errorf("setnx failed: %w", err)
	}
	if ok {
		return storage.MarkAccepted, nil
	}

	raw, err := r.c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		// Only possible if someone deleted the key in between.
		return storage.MarkConflict, nil
	}
	if err != nil {
		return storage.MarkConflict, fmt.Errorf("get failed: %w", err)
	}

	var existing markValue
	if err := json.Unmarshal(raw, &existing); err != nil {
		return storage.MarkConflict, fmt.Errorf("failed to unmarshal mark: %w", err)
	}
	return storage.Resolve(storage.Mark{
		TxHash:    m.TxHash,
		Amount:    existing.Amount,
		ClaimID:   existing.ClaimID,
		Account:   existing.Account,
		Timestamp: time.UnixMilli(existing.Timestamp),
	}, m), nil
}

// IsConsumed checks whether the hash key exists.
func (r *ConsumedRepo) IsConsumed(ctx context.Context, hash domain.TxHash) (bool, error) {
	n, err := r.c.rdb.Exists(ctx, r.c.consumedKey(hash.String())).Result()
	if err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return n > 0, nil
}
