package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "fusen"})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "user-1", Email: "a@x.com"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "a@x.com", claims.Email)
	require.Equal(t, "fusen", claims.Issuer)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:         "test-secret",
		AccessTokenTTL: time.Hour,
		Clock:          clock,
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)

	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	issuing, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "other"})
	require.NoError(t, err)

	validating, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "fusen"})
	require.NoError(t, err)

	token, err := issuing.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	_, err = validating.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	other, err := NewJWTService(JWTConfig{Secret: "different-secret"})
	require.NoError(t, err)

	token, err := other.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}
