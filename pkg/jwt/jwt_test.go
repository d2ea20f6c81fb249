package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	s := NewService("test-secret", time.Hour)

	token, err := s.GenerateToken(42, "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestValidateExpiredToken(t *testing.T) {
	s := NewService("test-secret", -time.Hour)

	token, err := s.GenerateToken(42, "alice@example.com")
	require.NoError(t, err)

	_, err = s.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewService("secret-one", time.Hour)
	verifier := NewService("secret-two", time.Hour)

	token, err := issuer.GenerateToken(42, "alice@example.com")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbageToken(t *testing.T) {
	s := NewService("test-secret", time.Hour)

	_, err := s.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
