package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store deduplicates client-supplied idempotency keys on the submit
// endpoint. A key is claimed with SetNX; the winning request later binds
// the local payment id it produced, so replays can return the original
// payment instead of creating a duplicate.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(raw string) string {
	return "idem:submit:" + raw
}

// Claim reserves the key. It returns isNew=true when this request owns the
// key; otherwise localID holds the bound payment id (empty while the owning
// request is still in flight).
func (s *Store) Claim(ctx context.Context, rawKey string) (localID string, isNew bool, err error) {
	ok, err := s.rdb.SetNX(ctx, key(rawKey), "", s.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	v, err := s.rdb.Get(ctx, key(rawKey)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, false, nil
}

// Bind records the payment produced by the request that claimed the key.
func (s *Store) Bind(ctx context.Context, rawKey, localID string) error {
	return s.rdb.Set(ctx, key(rawKey), localID, redis.KeepTTL).Err()
}

// Release frees a claimed key after a failed request so the client can
// retry with the same key.
func (s *Store) Release(ctx context.Context, rawKey string) error {
	return s.rdb.Del(ctx, key(rawKey)).Err()
}
