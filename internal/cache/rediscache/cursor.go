package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const DefaultCursorClearTTL = time.Hour

// CursorStore keeps the reconciliation resumption point as unix seconds.
// A cleared cursor is stored as "0" with a bounded TTL so the key does not
// stick around forever between runs.
type CursorStore struct {
	cache    *RedisCache
	key      string
	clearTTL time.Duration
}

func NewCursorStore(cache *RedisCache, key string, clearTTL time.Duration) *CursorStore {
	if key == "" {
		key = "shipwatch:last-checked-order-date"
	}
	if clearTTL <= 0 {
		clearTTL = DefaultCursorClearTTL
	}
	return &CursorStore{
		cache:    cache,
		key:      key,
		clearTTL: clearTTL,
	}
}

func (cs *CursorStore) Get(ctx context.Context) (time.Time, error) {
	val, ok, err := cs.cache.Get(ctx, cs.key)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, nil
	}

	sec, err := strconv.ParseInt(string(val), 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "malformed cursor %q", val)
	}
	if sec <= 0 {
		return time.Time{}, nil
	}
	return time.Unix(sec, 0).UTC(), nil
}

func (cs *CursorStore) Set(ctx context.Context, t time.Time) error {
	return cs.cache.Set(ctx, cs.key, []byte(strconv.FormatInt(t.Unix(), 10)), 0)
}

func (cs *CursorStore) Clear(ctx context.Context) error {
	return cs.cache.Set(ctx, cs.key, []byte("0"), cs.clearTTL)
}
