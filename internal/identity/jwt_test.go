package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTResolverRoundTrip(t *testing.T) {
	r := NewJWTResolver([]byte("test-secret"))
	color := "#ff8800"

	token, err := r.Issue(User{ID: "u1", DisplayName: "Alice", AvatarColor: &color}, time.Hour)
	require.NoError(t, err)

	user, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Alice", user.DisplayName)
	require.NotNil(t, user.AvatarColor)
	assert.Equal(t, color, *user.AvatarColor)
	assert.Nil(t, user.AvatarURL)
}

func TestJWTResolverRejects(t *testing.T) {
	r := NewJWTResolver([]byte("test-secret"))
	valid, err := r.Issue(User{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	expired := NewJWTResolver([]byte("test-secret"))
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(User{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	other, err := NewJWTResolver([]byte("another-secret")).Issue(User{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"expired":      old,
		"wrong secret": other,
		"alg none":     none,
		"tampered":     valid + "x",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.True(t, IsInvalidToken(err))
		})
	}
}

func TestJWTResolverDefaultsDisplayName(t *testing.T) {
	r := NewJWTResolver([]byte("s"))
	token, err := r.Issue(User{ID: "u7"}, time.Minute)
	require.NoError(t, err)

	user, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u7", user.DisplayName)
}
