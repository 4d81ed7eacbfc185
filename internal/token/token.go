// Package token signs and verifies the two session credential classes.
// Access and refresh tokens use distinct HMAC secrets so compromise of one
// class cannot forge the other.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/streamhive/account-service/internal/domain"
)

var (
	// ErrTokenInvalid marks tokens with a bad signature or malformed
	// claims: hard reject.
	ErrTokenInvalid = errors.New("token: invalid")
	// ErrTokenExpired marks well-signed tokens past their expiry: the
	// caller may attempt an explicit refresh.
	ErrTokenExpired = errors.New("token: expired")
)

var signingAlgorithms = []gojose.SignatureAlgorithm{gojose.HS256}

// AccessClaims is the custom payload of access tokens. Profile fields are
// denormalized at sign time to avoid a store round-trip on every protected
// request.
type AccessClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

// Codec is a stateless sign/verify pair parameterized by two secret keys
// and their expiry durations.
type Codec struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
}

// NewCodec constructs a Codec. The two secrets must differ; config.Load
// enforces that before we get here.
func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, issuer string) *Codec {
	return &Codec{
		accessKey:  []byte(accessSecret),
		refreshKey: []byte(refreshSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     issuer,
	}
}

// AccessTTL exposes the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess mints a short-lived access token carrying the user's
// denormalized profile claims.
func (c *Codec) SignAccess(user domain.User) (string, error) {
	custom := AccessClaims{
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
	}
	return c.sign(c.accessKey, user.ID, c.accessTTL, &custom)
}

// SignRefresh mints a long-lived refresh token carrying only the subject.
func (c *Codec) SignRefresh(userID int64) (string, error) {
	return c.sign(c.refreshKey, userID, c.refreshTTL, nil)
}

func (c *Codec) sign(key []byte, userID int64, ttl time.Duration, custom *AccessClaims) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: key},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	// The jti makes every mint distinct, so a rotation within the same
	// second still produces a new slot value.
	now := time.Now().UTC()
	std := gojwt.Claims{
		ID:       uuid.NewString(),
		Subject:  strconv.FormatInt(userID, 10),
		Issuer:   c.issuer,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(ttl)),
	}

	builder := gojwt.Signed(signer).Claims(std)
	if custom != nil {
		builder = builder.Claims(custom)
	}
	serialized, err := builder.Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return serialized, nil
}

// VerifyAccess checks signature and expiry against the access key and
// returns the caller identity from the claims.
func (c *Codec) VerifyAccess(token string) (domain.Identity, error) {
	var custom AccessClaims
	std, err := c.verify(c.accessKey, token, &custom)
	if err != nil {
		return domain.Identity{}, err
	}
	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return domain.Identity{}, ErrTokenInvalid
	}
	return domain.Identity{
		UserID:   userID,
		Username: custom.Username,
		Email:    custom.Email,
		FullName: custom.FullName,
	}, nil
}

// VerifyRefresh checks signature and expiry against the refresh key and
// returns the subject id.
func (c *Codec) VerifyRefresh(token string) (int64, error) {
	std, err := c.verify(c.refreshKey, token, nil)
	if err != nil {
		return 0, err
	}
	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}

func (c *Codec) verify(key []byte, token string, custom *AccessClaims) (gojwt.Claims, error) {
	parsed, err := gojwt.ParseSigned(token, signingAlgorithms)
	if err != nil {
		return gojwt.Claims{}, ErrTokenInvalid
	}

	var std gojwt.Claims
	dests := []any{&std}
	if custom != nil {
		dests = append(dests, custom)
	}
	if err := parsed.Claims(key, dests...); err != nil {
		return gojwt.Claims{}, ErrTokenInvalid
	}

	err = std.ValidateWithLeeway(gojwt.Expected{Issuer: c.issuer, Time: time.Now().UTC()}, 0)
	switch {
	case err == nil:
		return std, nil
	case errors.Is(err, gojwt.ErrExpired):
		return gojwt.Claims{}, ErrTokenExpired
	default:
		return gojwt.Claims{}, ErrTokenInvalid
	}
}
