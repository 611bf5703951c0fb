package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheTTL  = 5 * time.Minute
	defaultCacheSize = 1024

	allSubmitters = "all"
)

// listCache holds listings of stored (unprojected) records. Keys embed the catalog generation, so
// a schema mutation makes every earlier entry unreachable without touching it.
type listCache interface {
	get(ctx context.Context, key string) ([]StoredRecord, bool, error)
	set(ctx context.Context, key string, recs []StoredRecord) error
	del(ctx context.Context, keys ...string) error
}

// listKey is e.g. `service:leads|leads|generation=4|submitter_id=42`; submitter is an id or "all".
func listKey(service string, generation uint64, submitter interface{}) string {
	return fmt.Sprintf("service:%s|leads|generation=%d|submitter_id=%v", service, generation, submitter)
}

type cache struct {
	*redis.Client
	ttl time.Duration
}

func newCache(conn *redis.Client, ttl time.Duration) *cache {
	return &cache{
		Client: conn,
		ttl:    ttl,
	}
}

func (c *cache) get(ctx context.Context, key string) ([]StoredRecord, bool, error) {
	str, err := c.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	recs := []StoredRecord{}
	if err := json.Unmarshal([]byte(str), &recs); err != nil {
		return nil, false, err
	}
	return recs, true, nil
}

func (c *cache) set(ctx context.Context, key string, recs []StoredRecord) error {
	str, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	d("set() key: %s records: %d", key, len(recs))
	return c.Set(ctx, key, str, c.ttl).Err()
}

func (c *cache) del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	// As Logan says: deleting the key is never the wrong move.
	return c.Del(ctx, keys...).Err()
}

// memCache is the bounded in-process fallback when no Redis client is configured.
type memCache struct {
	entries *lru.Cache[string, memEntry]
	ttl     time.Duration
	now     func() time.Time
}

type memEntry struct {
	recs    []StoredRecord
	expires time.Time
}

func newMemCache(size int, ttl time.Duration, now func() time.Time) (*memCache, error) {
	entries, err := lru.New[string, memEntry](size)
	if err != nil {
		return nil, err
	}
	return &memCache{entries: entries, ttl: ttl, now: now}, nil
}

func (m *memCache) get(ctx context.Context, key string) ([]StoredRecord, bool, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if m.ttl > 0 && m.now().After(e.expires) {
		m.entries.Remove(key)
		return nil, false, nil
	}
	return cloneRecords(e.recs), true, nil
}

func (m *memCache) set(ctx context.Context, key string, recs []StoredRecord) error {
	m.entries.Add(key, memEntry{recs: cloneRecords(recs), expires: m.now().Add(m.ttl)})
	return nil
}

func (m *memCache) del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		m.entries.Remove(k)
	}
	return nil
}

type noCache struct{}

func (noCache) get(context.Context, string) ([]StoredRecord, bool, error) { return nil, false, nil }
func (noCache) set(context.Context, string, []StoredRecord) error         { return nil }
func (noCache) del(context.Context, ...string) error                      { return nil }

func newListCache(conf *Config) (listCache, error) {
	if conf.DoNotUseCache {
		return noCache{}, nil
	}
	ttl := conf.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if conf.Redis != nil {
		return newCache(conf.Redis, ttl), nil
	}
	size := conf.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	mc, err := newMemCache(size, ttl, conf.Now)
	if err != nil {
		return nil, errors.New("create listing cache: " + err.Error())
	}
	return mc, nil
}

func cloneRecords(in []StoredRecord) []StoredRecord {
	out := make([]StoredRecord, len(in))
	for i, r := range in {
		out[i] = cloneRecord(r)
	}
	return out
}
