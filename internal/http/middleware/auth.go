package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/streamhive/account-service/internal/domain"
	"github.com/streamhive/account-service/internal/token"
)

// Cookie names shared with the handlers.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

const identityKey = "authIdentity"

// Auth is the request-time guard for protected routes. It validates the
// access token and attaches the resolved identity to the gin context. It
// never attempts a refresh itself; that is an explicit client call.
type Auth struct {
	Codec *token.Codec
}

// RequireAuth extracts the access token from the accessToken cookie or the
// Authorization bearer header and rejects the request when it is missing,
// expired, or invalid.
func (m *Auth) RequireAuth(c *gin.Context) {
	raw := accessTokenFromRequest(c)
	if raw == "" {
		abortUnauthorized(c, "Access token is required.")
		return
	}

	identity, err := m.Codec.VerifyAccess(raw)
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		abortUnauthorized(c, "Access token has expired.")
		return
	case err != nil:
		abortUnauthorized(c, "Access token is invalid.")
		return
	}

	c.Set(identityKey, identity)
	c.Next()
}

// GetIdentity returns the identity attached by RequireAuth.
func GetIdentity(c *gin.Context) (domain.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

func accessTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   "unauthorized",
		"message": message,
	})
}
