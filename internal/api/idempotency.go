package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/zulandar/rapidaid/internal/lifecycle"
)

// IdempotencyHeader lets clients name a submission explicitly. Without it
// the request body hash is used.
const IdempotencyHeader = "Idempotency-Key"

// IdemStore remembers keys for a bounded time.
type IdemStore interface {
	// Reserve records key and reports true, or reports false if key is
	// already held.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so the request may be retried.
	Release(ctx context.Context, key string) error
}

// LocalIdemStore keeps keys in process memory.
type LocalIdemStore struct {
	cache *gocache.Cache
}

// NewLocalIdemStore returns an in-memory store that sweeps expired keys
// every cleanup interval.
func NewLocalIdemStore(cleanup time.Duration) *LocalIdemStore {
	return &LocalIdemStore{cache: gocache.New(gocache.NoExpiration, cleanup)}
}

// Reserve implements IdemStore.
func (s *LocalIdemStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return s.cache.Add(key, struct{}{}, ttl) == nil, nil
}

// Release implements IdemStore.
func (s *LocalIdemStore) Release(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// RedisIdemStore shares keys between API replicas.
type RedisIdemStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisIdemStore returns a store using SET NX on client.
func NewRedisIdemStore(client redis.UniversalClient) *RedisIdemStore {
	return &RedisIdemStore{client: client, prefix: "rapidaid:idem:"}
}

// Reserve implements IdemStore.
func (s *RedisIdemStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("api: reserve idempotency key: %w: %w", lifecycle.ErrStoreUnavailable, err)
	}
	return ok, nil
}

// Release implements IdemStore.
func (s *RedisIdemStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("api: release idempotency key: %w", err)
	}
	return nil
}

// idempotent rejects a repeated submission from the same caller within ttl.
// Keys of failed requests are released so corrected retries go through.
func idempotent(store IdemStore, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if key == "" {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				abort(c, http.StatusBadRequest, codeBadRequest, "unreadable body")
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			key = hex.EncodeToString(sum[:])
		}
		key = mustCaller(c).ID + ":" + key

		ok, err := store.Reserve(c.Request.Context(), key, ttl)
		if err != nil {
			writeError(c, err)
			return
		}
		if !ok {
			abort(c, http.StatusConflict, codeDuplicate, "duplicate submission")
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if err := store.Release(context.WithoutCancel(c.Request.Context()), key); err != nil {
				c.Error(err)
			}
		}
	}
}
