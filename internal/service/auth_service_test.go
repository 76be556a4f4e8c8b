package service

import (
	"testing"
	"time"

	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_Verify(t *testing.T) {
	auth := NewAuthService(config.JWTConfig{Secret: testJWTSecret})

	token, err := util.GenerateJWT("user-1", testJWTSecret, time.Hour)
	require.NoError(t, err)

	claims, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())

	_, err = auth.Verify("")
	assert.ErrorIs(t, err, util.ErrMissingToken)

	_, err = auth.Verify("garbage")
	assert.ErrorIs(t, err, util.ErrInvalidToken)
}

func TestAuthService_IssuerRequired(t *testing.T) {
	auth := NewAuthService(config.JWTConfig{Secret: testJWTSecret, Issuer: "phrasal-auth"})

	token, err := util.GenerateJWT("user-1", testJWTSecret, time.Hour)
	require.NoError(t, err)

	_, err = auth.Verify(token)
	assert.ErrorIs(t, err, util.ErrInvalidToken)
}
