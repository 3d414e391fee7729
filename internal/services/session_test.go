package services

import (
	"testing"
	"time"

	"github.com/AnshRaj112/airdrop-chat-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionResolver_RoundTrip(t *testing.T) {
	r := NewSessionResolver("test-secret", "airdrops")
	token, err := r.Issue(models.Principal{UserID: "u1", Username: "alice", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	p, err := r.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "alice", p.Username)
	assert.True(t, p.IsAdmin())
}

func TestSessionResolver_UnknownRoleIsUser(t *testing.T) {
	r := NewSessionResolver("test-secret", "")
	token, err := r.Issue(models.Principal{UserID: "u1", Username: "admin", Role: "superuser"}, time.Hour)
	require.NoError(t, err)

	p, err := r.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, p.Role)
	assert.False(t, p.IsAdmin(), "username must not grant admin")
}

func TestSessionResolver_Rejects(t *testing.T) {
	r := NewSessionResolver("test-secret", "airdrops")
	good, err := r.Issue(models.Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	other, err := NewSessionResolver("other-secret", "airdrops").Issue(models.Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewSessionResolver("test-secret", "elsewhere").Issue(models.Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	past := NewSessionResolver("test-secret", "airdrops")
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.Issue(models.Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "airdrops"},
		Username:         "ghost",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"tampered":     good + "x",
		"other secret": other,
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"no user":      noUser,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}
