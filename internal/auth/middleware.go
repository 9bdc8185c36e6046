package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"teamassist/internal/models"
)

const (
	identityContextKey  = "auth_identity"
	authTokenContextKey = "auth_token"
)

// Middleware validates bearer tokens and stores the resolved identity in the
// request context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		identity, err := s.Identify(c.Request.Context(), authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(identityContextKey, identity)
		c.Set(authTokenContextKey, authToken)
		c.Next()
	}
}

// IdentityFromContext retrieves the authenticated identity from the gin context.
func IdentityFromContext(c *gin.Context) (models.UserIdentity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return models.UserIdentity{}, false
	}
	identity, ok := val.(models.UserIdentity)
	return identity, ok
}

// AuthTokenFromContext retrieves the bearer token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}
