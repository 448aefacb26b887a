package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisJournal struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisJournal(rdb *redis.Client, ttl time.Duration) *RedisJournal {
	return &RedisJournal{rdb: rdb, ttl: ttl}
}

func journalKey(callRef string) string {
	return "call:" + callRef
}

func (j *RedisJournal) RecordCall(ctx context.Context, callRef string, rec CallRecord) error {
	rec.PlacedAt = rec.PlacedAt.UTC()

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return j.rdb.Set(ctx, journalKey(callRef), b, j.ttl).Err()
}

func (j *RedisJournal) LookupCall(ctx context.Context, callRef string) (CallRecord, error) {
	raw, err := j.rdb.Get(ctx, journalKey(callRef)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CallRecord{}, ErrCallNotFound
	}
	if err != nil {
		return CallRecord{}, err
	}

	var rec CallRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return CallRecord{}, err
	}
	return rec, nil
}
