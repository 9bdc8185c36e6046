package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"teamassist/internal/cache"
	"teamassist/internal/models"
	"teamassist/internal/storage"
)

const (
	identityCachePrefix = "identity:"
	identityCacheTTL    = 10 * time.Minute
)

// ErrUserNotFound is returned when an email has no row in user_perms.
var ErrUserNotFound = errors.New("user not found")

// IdentityResolver maps emails to their stored identity. Lookups go through
// the redis cache when one is configured.
type IdentityResolver struct {
	store *storage.Store
	cache *cache.Client
}

// NewIdentityResolver builds a resolver; the cache client may be nil.
func NewIdentityResolver(store *storage.Store, cacheClient *cache.Client) *IdentityResolver {
	return &IdentityResolver{store: store, cache: cacheClient}
}

// Resolve returns the full identity for an email.
func (r *IdentityResolver) Resolve(ctx context.Context, email string) (models.UserIdentity, error) {
	if email == "" {
		return models.UserIdentity{}, ErrUserNotFound
	}
	if identity, ok := r.cached(ctx, email); ok {
		return identity, nil
	}

	var (
		identity models.UserIdentity
		roleName string
	)
	err := r.store.DB().QueryRowContext(ctx,
		`SELECT id, email, role FROM user_perms WHERE email = ?`, email,
	).Scan(&identity.NumericID, &identity.Email, &roleName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserIdentity{}, ErrUserNotFound
		}
		return models.UserIdentity{}, fmt.Errorf("resolve identity: %w", err)
	}
	identity.Role = models.ParseRole(roleName)

	r.put(ctx, email, identity)
	return identity, nil
}

// NumericID resolves just the numeric id, satisfying the memory manager's
// user lookup.
func (r *IdentityResolver) NumericID(ctx context.Context, email string) (int64, error) {
	identity, err := r.Resolve(ctx, email)
	if err != nil {
		return 0, err
	}
	return identity.NumericID, nil
}

// Invalidate drops a cached identity, for role or account changes.
func (r *IdentityResolver) Invalidate(ctx context.Context, email string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Del(ctx, identityCachePrefix+email)
}

func (r *IdentityResolver) cached(ctx context.Context, email string) (models.UserIdentity, bool) {
	if r.cache == nil {
		return models.UserIdentity{}, false
	}
	raw, err := r.cache.Get(ctx, identityCachePrefix+email)
	if err != nil {
		return models.UserIdentity{}, false
	}
	var identity models.UserIdentity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return models.UserIdentity{}, false
	}
	return identity, true
}

func (r *IdentityResolver) put(ctx context.Context, email string, identity models.UserIdentity) {
	if r.cache == nil {
		return
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, identityCachePrefix+email, string(payload), identityCacheTTL)
}
