// Package auth issues opaque bearer tokens against the user_perms table and
// resolves them back to a user identity carrying email and role.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"teamassist/internal/cache"
	"teamassist/internal/models"
)

// ErrInvalidCredentials is returned when the email or password does not match.
var ErrInvalidCredentials = errors.New("invalid email or password")

const cacheTokenPrefix = "auth:token:"

// Service issues, validates, and revokes user authentication tokens.
type Service struct {
	db             *sql.DB
	cache          *cache.Client
	tokenTTL       time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service with the supplied token lifetime.
// The cache client may be nil; tokens then resolve from the database alone.
func NewService(db *sql.DB, cacheClient *cache.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		cache:          cacheClient,
		tokenTTL:       ttl,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// Login checks the password against user_perms and mints a token on success.
func (s *Service) Login(ctx context.Context, email, password string) (string, models.UserIdentity, error) {
	var (
		identity models.UserIdentity
		hash     string
		roleName string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role FROM user_perms WHERE email = ?`, email,
	).Scan(&identity.NumericID, &identity.Email, &hash, &roleName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", models.UserIdentity{}, ErrInvalidCredentials
		}
		return "", models.UserIdentity{}, fmt.Errorf("lookup user: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(HashPassword(password))) != 1 {
		return "", models.UserIdentity{}, ErrInvalidCredentials
	}
	identity.Role = models.ParseRole(roleName)

	token, err := s.issueToken(ctx, identity)
	if err != nil {
		return "", models.UserIdentity{}, err
	}
	return token, identity, nil
}

// HashPassword returns the hex sha256 digest stored in user_perms.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (s *Service) issueToken(ctx context.Context, identity models.UserIdentity) (string, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, identity.NumericID, now, expiresAt,
		)
		if err == nil {
			s.cacheIdentity(ctx, token, identity)
			return token, nil
		}
	}
	return "", errors.New("could not issue token")
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// Identify verifies the token and resolves the identity it belongs to. The
// cache is consulted first; misses fall back to a token join on user_perms.
func (s *Service) Identify(ctx context.Context, authToken string) (models.UserIdentity, error) {
	if authToken == "" {
		return models.UserIdentity{}, errors.New("token required")
	}
	if identity, ok := s.cachedIdentity(ctx, authToken); ok {
		return identity, nil
	}

	var (
		identity models.UserIdentity
		roleName string
		expires  time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.role, t.expires_at
		FROM user_tokens t
		JOIN user_perms u ON u.id = t.user_id
		WHERE t.token = ?`, authToken,
	).Scan(&identity.NumericID, &identity.Email, &roleName, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserIdentity{}, errors.New("invalid token")
		}
		return models.UserIdentity{}, fmt.Errorf("lookup token: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken)
		return models.UserIdentity{}, errors.New("token expired")
	}
	identity.Role = models.ParseRole(roleName)
	s.cacheIdentity(ctx, authToken, identity)
	return identity, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, cacheTokenPrefix+authToken)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeUserTokens removes all tokens belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	if s.cache != nil {
		rows, err := s.db.QueryContext(ctx, `SELECT token FROM user_tokens WHERE user_id = ?`, userID)
		if err == nil {
			var keys []string
			for rows.Next() {
				var token string
				if rows.Scan(&token) == nil {
					keys = append(keys, cacheTokenPrefix+token)
				}
			}
			rows.Close()
			_ = s.cache.Del(ctx, keys...)
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (s *Service) cacheIdentity(ctx context.Context, token string, identity models.UserIdentity) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, cacheTokenPrefix+token, string(payload), s.tokenTTL)
}

func (s *Service) cachedIdentity(ctx context.Context, token string) (models.UserIdentity, bool) {
	if s.cache == nil {
		return models.UserIdentity{}, false
	}
	raw, err := s.cache.Get(ctx, cacheTokenPrefix+token)
	if err != nil {
		return models.UserIdentity{}, false
	}
	var identity models.UserIdentity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return models.UserIdentity{}, false
	}
	return identity, true
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
