package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintToken(t *testing.T, userID, email string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)
	return token
}

func TestNewSession_ParsesClaims(t *testing.T) {
	token := mintToken(t, "user-123", "fern@example.com", 15*time.Minute)

	session, err := NewSession(token)

	require.NoError(t, err)
	assert.Equal(t, "user-123", session.UserID())
	assert.Equal(t, "fern@example.com", session.Email())
	assert.Equal(t, token, session.Token())
	assert.False(t, session.Expired())
	assert.True(t, session.Live())
}

func TestNewSession_SubjectFallback(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user-456",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	session, err := NewSession(token)

	require.NoError(t, err)
	assert.Equal(t, "user-456", session.UserID())
}

func TestNewSession_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage token", "not-a-jwt"},
		{"truncated token", "aaaa.bbbb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestSession_Expired(t *testing.T) {
	token := mintToken(t, "user-123", "fern@example.com", -time.Minute)

	session, err := NewSession(token)

	require.NoError(t, err)
	assert.True(t, session.Expired())
	assert.False(t, session.Live())
}

func TestSession_Live_NilReceiver(t *testing.T) {
	var session *Session
	assert.False(t, session.Live())
}

func TestSession_Decorate(t *testing.T) {
	token := mintToken(t, "user-123", "fern@example.com", 15*time.Minute)
	session, err := NewSession(token)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://shop.local/cart", nil)
	require.NoError(t, err)
	session.Decorate(req)

	assert.Equal(t, "Bearer "+token, req.Header.Get("Authorization"))
}
