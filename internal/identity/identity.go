// Package identity resolves bearer credentials to callers.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"

	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/models"
)

// Identity is an authenticated caller.
type Identity struct {
	ID   string
	Name string
	Role string
}

// Caller returns the identity in the form the lifecycle engine consumes.
func (i Identity) Caller() lifecycle.Caller {
	return lifecycle.Caller{ID: i.ID, Role: i.Role}
}

// Resolver maps an opaque bearer credential to an Identity. Unknown or
// malformed credentials yield lifecycle.ErrUnauthorized.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (Identity, error)
}

// HashToken returns the hex SHA-256 of a bearer token, the form stored in
// the accounts table.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DBResolver looks credentials up in the accounts table.
type DBResolver struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewDBResolver returns a resolver over db. A zero timeout disables the
// per-lookup deadline.
func NewDBResolver(db *gorm.DB, timeout time.Duration) *DBResolver {
	return &DBResolver{db: db, timeout: timeout}
}

// Resolve implements Resolver.
func (r *DBResolver) Resolve(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, fmt.Errorf("identity: %w: missing credential", lifecycle.ErrUnauthorized)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var acct models.Account
	err := r.db.WithContext(ctx).Where("token_hash = ?", HashToken(credential)).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, fmt.Errorf("identity: %w: unknown credential", lifecycle.ErrUnauthorized)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("identity: lookup: %w: %w", lifecycle.ErrStoreUnavailable, err)
	}
	if !lifecycle.ValidRole(acct.Role) {
		return Identity{}, fmt.Errorf("identity: %w: account %s has role %q", lifecycle.ErrUnauthorized, acct.ID, acct.Role)
	}
	return Identity{ID: acct.ID, Name: acct.Name, Role: acct.Role}, nil
}

// CachedResolver memoizes successful resolutions for a bounded time.
// Failures are never cached.
type CachedResolver struct {
	next  Resolver
	cache *expirable.LRU[string, Identity]
}

// NewCachedResolver wraps next with an LRU of at most size entries that
// expire after ttl.
func NewCachedResolver(next Resolver, size int, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next:  next,
		cache: expirable.NewLRU[string, Identity](size, nil, ttl),
	}
}

// Resolve implements Resolver.
func (c *CachedResolver) Resolve(ctx context.Context, credential string) (Identity, error) {
	key := HashToken(strings.TrimSpace(credential))
	if id, ok := c.cache.Get(key); ok {
		return id, nil
	}
	id, err := c.next.Resolve(ctx, credential)
	if err != nil {
		return Identity{}, err
	}
	c.cache.Add(key, id)
	return id, nil
}

// Purge drops every cached identity, e.g. after accounts are reseeded.
func (c *CachedResolver) Purge() {
	c.cache.Purge()
}
