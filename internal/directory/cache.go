package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// noPasswordProof marks a cache record that was populated by a
// non-authenticating lookup. Such records are trusted without re-verifying a
// password.
const noPasswordProof = "no password"

// Store is the key/value contract the cache is layered over. A miss is
// reported through the boolean, not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// redisStore adapts a redis client to the Store contract.
type redisStore struct {
	client *redis.Client
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// cacheRecord is the stored shape: the normalized user entry plus either a
// bcrypt hash of a previously verified password or the no-password marker.
type cacheRecord struct {
	User          Entry  `json:"user"`
	PasswordProof string `json:"password_proof"`
}

// Cache is the cache-aside layer over a Store. A nil *Cache is valid and
// turns every operation into a no-op, which is how a disabled cache backend
// is represented.
type Cache struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewCache wraps an already-constructed store handle.
func NewCache(store Store, ttl time.Duration, log *zap.Logger) *Cache {
	if store == nil {
		return nil
	}
	return &Cache{store: store, ttl: ttl, log: log}
}

// NewCacheFromURL builds a redis-backed cache from a connection URL
// (redis://[user:password@]host:port/db). An unparsable URL logs the
// condition and yields a disabled cache; it never aborts startup.
func NewCacheFromURL(url string, ttl time.Duration, log *zap.Logger) *Cache {
	if url == "" {
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Error("cache disabled: failed to parse cache URL", zap.Error(err))
		return nil
	}

	return NewCache(&redisStore{client: redis.NewClient(opts)}, ttl, log)
}

// Enabled reports whether a usable cache backend is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// UserKey returns the cache key for an account-name lookup.
func UserKey(username string) string {
	return "user:" + strings.ToLower(username)
}

// DNKey returns the cache key for a DN lookup.
func DNKey(dn string) string {
	return "dn:" + strings.ToLower(dn)
}

// read fetches and decodes the record for a key. Decode failures and store
// errors are logged and treated as misses.
func (c *Cache) read(ctx context.Context, key string) (cacheRecord, bool) {
	if !c.Enabled() {
		return cacheRecord{}, false
	}

	value, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Error("cache read failed", zap.String("key", key), zap.Error(err))
		return cacheRecord{}, false
	}
	if !found {
		return cacheRecord{}, false
	}

	var record cacheRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		c.log.Error("cache record decode failed", zap.String("key", key), zap.Error(err))
		return cacheRecord{}, false
	}

	if record.User.AccountName() == "" {
		return cacheRecord{}, false
	}

	return record, true
}

// Read returns the cached entry for key, or a miss when absent or the record
// lacks a valid account name.
func (c *Cache) Read(ctx context.Context, key string) (Entry, bool) {
	record, ok := c.read(ctx, key)
	if !ok {
		return nil, false
	}
	return record.User, true
}

// ReadAuthenticated returns the cached entry for key only when the stored
// proof is the no-password marker or matches the supplied password. A record
// failing the password check is a miss, forcing live authentication. The
// stored proof is returned so the refresh path can tell whether a concrete
// password hash was present.
func (c *Cache) ReadAuthenticated(ctx context.Context, key, password string) (Entry, string, bool) {
	record, ok := c.read(ctx, key)
	if !ok {
		return nil, "", false
	}

	if record.PasswordProof != noPasswordProof {
		if bcrypt.CompareHashAndPassword([]byte(record.PasswordProof), []byte(password)) != nil {
			return nil, "", false
		}
	}

	return record.User, record.PasswordProof, true
}

// Write stores {entry, proof} under key with the configured TTL, overwriting
// any existing record.
func (c *Cache) Write(ctx context.Context, key string, entry Entry, proof string) {
	if !c.Enabled() {
		return
	}

	value, err := json.Marshal(cacheRecord{User: entry, PasswordProof: proof})
	if err != nil {
		c.log.Error("cache record encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.store.Set(ctx, key, string(value), c.ttl); err != nil {
		c.log.Error("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate deletes the records for the given keys; used after directory
// mutations so stale attributes are not served.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}

	if err := c.store.Del(ctx, keys...); err != nil {
		c.log.Error("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// hashPassword computes a fresh password proof. Hash failures degrade to the
// no-password marker so the record stays trusted for lookups but never
// validates a wrong password.
func hashPassword(password string, log *zap.Logger) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("password hash failed", zap.Error(err))
		return noPasswordProof
	}
	return string(hash)
}
