package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamhive/account-service/internal/domain"
	"github.com/streamhive/account-service/internal/token"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789abcdef"
	testRefreshSecret = "refresh-secret-for-tests-0123456789abcdef"
	testIssuer        = "accounts-test"
)

func newCodec(accessTTL, refreshTTL time.Duration) *token.Codec {
	return token.NewCodec(testAccessSecret, testRefreshSecret, accessTTL, refreshTTL, testIssuer)
}

func TestAccessRoundTrip(t *testing.T) {
	codec := newCodec(time.Minute, time.Hour)
	user := domain.User{ID: 42, Username: "chai", Email: "chai@example.com", FullName: "Chai Aur Code"}

	signed, err := codec.SignAccess(user)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	identity, err := codec.VerifyAccess(signed)
	require.NoError(t, err)
	require.Equal(t, int64(42), identity.UserID)
	require.Equal(t, "chai", identity.Username)
	require.Equal(t, "chai@example.com", identity.Email)
	require.Equal(t, "Chai Aur Code", identity.FullName)
}

func TestRefreshRoundTrip(t *testing.T) {
	codec := newCodec(time.Minute, time.Hour)

	signed, err := codec.SignRefresh(42)
	require.NoError(t, err)

	userID, err := codec.VerifyRefresh(signed)
	require.NoError(t, err)
	require.Equal(t, int64(42), userID)
}

func TestKeyClassIsolation(t *testing.T) {
	codec := newCodec(time.Minute, time.Hour)
	user := domain.User{ID: 7, Username: "u", Email: "u@example.com"}

	access, err := codec.SignAccess(user)
	require.NoError(t, err)
	refresh, err := codec.SignRefresh(7)
	require.NoError(t, err)

	_, err = codec.VerifyRefresh(access)
	require.ErrorIs(t, err, token.ErrTokenInvalid)

	_, err = codec.VerifyAccess(refresh)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestExpiredIsDistinctFromInvalid(t *testing.T) {
	expired := newCodec(-2*time.Minute, -2*time.Minute)
	user := domain.User{ID: 7, Username: "u", Email: "u@example.com"}

	access, err := expired.SignAccess(user)
	require.NoError(t, err)
	_, err = expired.VerifyAccess(access)
	require.ErrorIs(t, err, token.ErrTokenExpired)

	refresh, err := expired.SignRefresh(7)
	require.NoError(t, err)
	_, err = expired.VerifyRefresh(refresh)
	require.ErrorIs(t, err, token.ErrTokenExpired)
}

func TestTamperedTokenIsInvalid(t *testing.T) {
	codec := newCodec(time.Minute, time.Hour)

	signed, err := codec.SignRefresh(7)
	require.NoError(t, err)

	tampered := signed[:len(signed)-2] + "xx"
	if tampered == signed {
		tampered = signed[:len(signed)-2] + "yy"
	}
	_, err = codec.VerifyRefresh(tampered)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestForeignIssuerIsInvalid(t *testing.T) {
	other := token.NewCodec(testAccessSecret, testRefreshSecret, time.Minute, time.Hour, "someone-else")

	signed, err := other.SignRefresh(7)
	require.NoError(t, err)

	codec := newCodec(time.Minute, time.Hour)
	_, err = codec.VerifyRefresh(signed)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}
