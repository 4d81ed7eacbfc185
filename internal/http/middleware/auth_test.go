package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/streamhive/account-service/internal/domain"
	"github.com/streamhive/account-service/internal/http/middleware"
	"github.com/streamhive/account-service/internal/token"
)

func newGuardedRouter(codec *token.Codec) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := &middleware.Auth{Codec: codec}

	r := gin.New()
	r.GET("/protected", auth.RequireAuth, func(c *gin.Context) {
		identity, ok := middleware.GetIdentity(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "identity missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": identity.UserID, "username": identity.Username})
	})
	return r
}

func newCodec(accessTTL time.Duration) *token.Codec {
	return token.NewCodec("guard-access-secret-0123456789abcdef", "guard-refresh-secret-0123456789abcdef", accessTTL, time.Hour, "accounts-test")
}

func signedAccess(t *testing.T, codec *token.Codec) string {
	t.Helper()
	tok, err := codec.SignAccess(domain.User{ID: 42, Username: "maya", Email: "maya@example.com", FullName: "Maya Chen"})
	require.NoError(t, err)
	return tok
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	r := newGuardedRouter(newCodec(time.Minute))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "required")
}

func TestRequireAuthAcceptsCookie(t *testing.T) {
	codec := newCodec(time.Minute)
	r := newGuardedRouter(codec)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: signedAccess(t, codec)})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"username":"maya"`)
}

func TestRequireAuthAcceptsBearerHeader(t *testing.T) {
	codec := newCodec(time.Minute)
	r := newGuardedRouter(codec)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signedAccess(t, codec))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthPrefersCookieOverHeader(t *testing.T) {
	codec := newCodec(time.Minute)
	r := newGuardedRouter(codec)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: signedAccess(t, codec)})
	req.Header.Set("Authorization", "Bearer garbage")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	expired := newCodec(-time.Minute)
	r := newGuardedRouter(expired)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signedAccess(t, expired))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "expired")
}

func TestRequireAuthRejectsRefreshTokenAsAccess(t *testing.T) {
	codec := newCodec(time.Minute)
	r := newGuardedRouter(codec)

	refresh, err := codec.SignRefresh(42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid")
}

func TestRequireAuthRejectsMalformedBearer(t *testing.T) {
	r := newGuardedRouter(newCodec(time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abcdef")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
