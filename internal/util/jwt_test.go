package util

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWT_RoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-1", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, testSecret, JWTOptions{})
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
}

func TestJWT_WrongSecret(t *testing.T) {
	token, err := GenerateJWT("user-1", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(token, "another-secret-another-secret-xx", JWTOptions{})
	assert.Error(t, err)
}

func TestJWT_Expired(t *testing.T) {
	token, err := GenerateJWT("user-1", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(token, testSecret, JWTOptions{})
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func sign(t *testing.T, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestJWT_SubjectFallback(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "firebase-uid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	claims, err := ParseJWT(token, testSecret, JWTOptions{})
	require.NoError(t, err)
	assert.Equal(t, "firebase-uid", claims.UserID())
}

func TestJWT_Rejects(t *testing.T) {
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name  string
		token string
		opts  JWTOptions
	}{
		{
			name:  "other algorithm",
			token: sign(t, jwt.SigningMethodHS384, jwt.RegisteredClaims{Subject: "u", ExpiresAt: exp}),
		},
		{
			name:  "no expiry",
			token: sign(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u"}),
		},
		{
			name:  "no subject",
			token: sign(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: exp}),
		},
		{
			name:  "wrong issuer",
			token: sign(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u", Issuer: "evil", ExpiresAt: exp}),
			opts:  JWTOptions{Issuer: "phrasal"},
		},
		{
			name:  "wrong audience",
			token: sign(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u", Audience: jwt.ClaimStrings{"other"}, ExpiresAt: exp}),
			opts:  JWTOptions{Audience: "phrasal-web"},
		},
		{
			name:  "garbage",
			token: "not.a.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJWT(tt.token, testSecret, tt.opts)
			assert.Error(t, err)
		})
	}
}
