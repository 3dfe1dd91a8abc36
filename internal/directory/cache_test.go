package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*Cache, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewCache(store, time.Minute, zap.NewNop()), store
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "user:alice", UserKey("Alice"))
	assert.Equal(t, "user:alice", UserKey("ALICE"))
	assert.Equal(t, "dn:cn=alice,dc=example,dc=com", DNKey("CN=Alice,DC=Example,DC=Com"))
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	entry := Entry{
		"dn":             "cn=alice,dc=example,dc=com",
		"sAMAccountName": "alice",
	}
	cache.Write(ctx, UserKey("alice"), entry, noPasswordProof)

	got, ok := cache.Read(ctx, UserKey("alice"))
	require.True(t, ok)
	assert.True(t, entry.Equal(got))

	_, ok = cache.Read(ctx, UserKey("bob"))
	assert.False(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()

	entry := Entry{"dn": "cn=alice,dc=example,dc=com", "sAMAccountName": "alice"}
	cache.Write(ctx, UserKey("alice"), entry, noPasswordProof)
	cache.Write(ctx, DNKey("cn=alice,dc=example,dc=com"), entry, noPasswordProof)

	cache.Invalidate(ctx, UserKey("alice"), DNKey("cn=alice,dc=example,dc=com"))

	assert.False(t, store.has(UserKey("alice")))
	assert.False(t, store.has(DNKey("cn=alice,dc=example,dc=com")))
}

func TestCacheRejectsRecordWithoutAccountName(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, UserKey("ghost"), `{"user":{"dn":"cn=ghost"},"password_proof":"no password"}`, 0))

	_, ok := cache.Read(ctx, UserKey("ghost"))
	assert.False(t, ok)
}

func TestCacheAcceptsServerCasedAccountName(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, UserKey("alice"),
		`{"user":{"dn":"cn=alice,dc=example,dc=com","samaccountname":"alice"},"password_proof":"no password"}`, 0))

	entry, ok := cache.Read(ctx, UserKey("alice"))
	require.True(t, ok)
	assert.Equal(t, "alice", entry.AccountName())
}

func TestCacheRejectsCorruptRecord(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, UserKey("alice"), "not json", 0))

	_, ok := cache.Read(ctx, UserKey("alice"))
	assert.False(t, ok)
}

func TestCacheReadAuthenticated(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	log := zap.NewNop()

	entry := Entry{"dn": "cn=alice,dc=example,dc=com", "sAMAccountName": "alice"}

	t.Run("no-password marker trusts any password", func(t *testing.T) {
		cache.Write(ctx, UserKey("alice"), entry, noPasswordProof)

		got, proof, ok := cache.ReadAuthenticated(ctx, UserKey("alice"), "whatever")
		require.True(t, ok)
		assert.Equal(t, noPasswordProof, proof)
		assert.True(t, entry.Equal(got))
	})

	t.Run("hashed proof requires matching password", func(t *testing.T) {
		stored := hashPassword("hunter2", log)
		cache.Write(ctx, UserKey("alice"), entry, stored)

		got, proof, ok := cache.ReadAuthenticated(ctx, UserKey("alice"), "hunter2")
		require.True(t, ok)
		assert.Equal(t, stored, proof)
		assert.True(t, entry.Equal(got))

		_, _, ok = cache.ReadAuthenticated(ctx, UserKey("alice"), "wrong")
		assert.False(t, ok)
	})
}

func TestNilCacheIsDisabled(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	assert.False(t, cache.Enabled())
	assert.NotPanics(t, func() {
		cache.Write(ctx, UserKey("alice"), Entry{"sAMAccountName": "alice"}, noPasswordProof)
		cache.Invalidate(ctx, UserKey("alice"))

		_, ok := cache.Read(ctx, UserKey("alice"))
		assert.False(t, ok)

		_, _, ok = cache.ReadAuthenticated(ctx, UserKey("alice"), "pw")
		assert.False(t, ok)
	})
}

func TestNewCacheFromURL(t *testing.T) {
	log := zap.NewNop()

	assert.False(t, NewCacheFromURL("", time.Minute, log).Enabled())
	assert.False(t, NewCacheFromURL("://not-a-url", time.Minute, log).Enabled())
	assert.True(t, NewCacheFromURL("redis://localhost:6379/2", time.Minute, log).Enabled())
}

func TestHashPasswordProducesVerifiableProof(t *testing.T) {
	log := zap.NewNop()

	proof := hashPassword("secret", log)
	require.NotEqual(t, noPasswordProof, proof)
	assert.NotEqual(t, proof, hashPassword("secret", log))
}
