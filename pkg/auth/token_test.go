package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/enums"
)

func newTestTokens(t *testing.T, now time.Time) *Tokens {
	t.Helper()
	tokens, err := NewTokens(config.JWTConfig{Secret: "secret", Issuer: "livo", ExpirationMinutes: 30, Leeway: 30 * time.Second})
	require.NoError(t, err)
	tokens.now = func() time.Time { return now }
	return tokens
}

func TestMintAndVerify(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	tokens := newTestTokens(t, now)
	userID := uuid.New()

	raw, err := tokens.Mint(AccessTokenPayload{UserID: userID, Role: enums.UserRoleGuest})
	require.NoError(t, err)

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, userID.String(), claims.Subject)
	require.Equal(t, enums.UserRoleGuest, claims.Role)
	require.Equal(t, "livo", claims.Issuer)
	require.NotEmpty(t, claims.ID)
	require.Equal(t, now.Add(30*time.Minute), claims.ExpiresAt.Time.UTC())
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	now := time.Now()
	tokens := newTestTokens(t, now)
	raw, err := tokens.Mint(AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	_, err = tokens.Verify(raw + "x")
	require.ErrorIs(t, err, ErrTokenInvalid)

	other, err := NewTokens(config.JWTConfig{Secret: "another", Issuer: "livo", ExpirationMinutes: 30})
	require.NoError(t, err)
	_, err = other.Verify(raw)
	require.ErrorIs(t, err, ErrTokenInvalid)

	otherIssuer, err := NewTokens(config.JWTConfig{Secret: "secret", Issuer: "someone-else", ExpirationMinutes: 30})
	require.NoError(t, err)
	_, err = otherIssuer.Verify(raw)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyExpiryHonoursLeeway(t *testing.T) {
	issued := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	tokens := newTestTokens(t, issued)
	raw, err := tokens.Mint(AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleGuest})
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(30*time.Minute + 10*time.Second) }
	_, err = tokens.Verify(raw)
	require.NoError(t, err, "inside the leeway")

	tokens.now = func() time.Time { return issued.Add(31 * time.Minute) }
	_, err = tokens.Verify(raw)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRejectsBadClaims(t *testing.T) {
	tokens := newTestTokens(t, time.Now())
	sign := func(claims AccessTokenClaims) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return signed
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Minute))

	cases := map[string]AccessTokenClaims{
		"unknown role":   {UserID: uuid.New(), Role: "superuser", RegisteredClaims: jwt.RegisteredClaims{Issuer: "livo", ExpiresAt: exp}},
		"missing user":   {Role: enums.UserRoleGuest, RegisteredClaims: jwt.RegisteredClaims{Issuer: "livo", ExpiresAt: exp}},
		"missing expiry": {UserID: uuid.New(), Role: enums.UserRoleGuest, RegisteredClaims: jwt.RegisteredClaims{Issuer: "livo"}},
	}
	for name, claims := range cases {
		_, err := tokens.Verify(sign(claims))
		require.ErrorIs(t, err, ErrTokenInvalid, name)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
		UserID:           uuid.New(),
		Role:             enums.UserRoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "livo", ExpiresAt: exp},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Verify(none)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewTokensAndMintValidation(t *testing.T) {
	_, err := NewTokens(config.JWTConfig{Issuer: "livo", ExpirationMinutes: 5})
	require.Error(t, err)
	_, err = NewTokens(config.JWTConfig{Secret: "s", ExpirationMinutes: 5})
	require.Error(t, err)
	_, err = NewTokens(config.JWTConfig{Secret: "s", Issuer: "livo"})
	require.Error(t, err)

	tokens := newTestTokens(t, time.Now())
	_, err = tokens.Mint(AccessTokenPayload{UserID: uuid.New()})
	require.Error(t, err)
	_, err = tokens.Mint(AccessTokenPayload{Role: enums.UserRoleGuest})
	require.Error(t, err)
}
