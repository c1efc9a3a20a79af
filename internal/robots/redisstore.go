package robots

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/temoto/robotstxt"
)

// RedisStore is a Store backed by Redis so cached allow-all fallbacks
// survive an Engine Registry restart. Only the allow-all fallback is stored:
// a parsed robotstxt.RobotsData does not expose its source bytes, so Set
// skips it and lookups for that origin miss, leaving the Checker to fetch
// robots.txt again.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

const defaultKeyPrefix = "crawlhive:robots:"

type redisEntry struct {
	AllowAll bool   `json:"allow_all"`
	Body     []byte `json:"body,omitempty"`
}

// NewRedisStore builds a Store on top of an existing redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, keyPrefix: defaultKeyPrefix}
}

// Get returns the cached policy for key if present.
func (s *RedisStore) Get(key string) (Policy, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err != nil {
		return Policy{}, false
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Policy{}, false
	}
	if entry.AllowAll {
		return Policy{AllowAll: true}, true
	}

	data, err := robotstxt.FromBytes(entry.Body)
	if err != nil {
		return Policy{}, false
	}
	return Policy{Data: data}, true
}

// Set caches policy for key with the given ttl.
func (s *RedisStore) Set(key string, policy Policy, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entry := redisEntry{AllowAll: policy.AllowAll}
	// robotstxt.RobotsData does not expose its source bytes, so only the
	// allow-all fallback round-trips through Redis; a parsed policy is not
	// stored, so the next lookup misses and robots.txt is fetched again.
	if !policy.AllowAll {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = s.client.Set(ctx, s.keyPrefix+key, raw, ttl).Err()
}
