package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_RejectsEmptySecret(t *testing.T) {
	_, err := NewManager("", time.Hour)
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestManager_RoundTrip(t *testing.T) {
	m, err := NewManager("s3cret", time.Hour, WithIssuer("take-it-and-go"))
	require.NoError(t, err)

	token, exp, err := m.GenerateToken("u1", "shipper")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "shipper", claims.Role)
	assert.Equal(t, "take-it-and-go", claims.Issuer)
}

func TestManager_ValidateToken_Failures(t *testing.T) {
	m, err := NewManager("s3cret", time.Hour)
	require.NoError(t, err)

	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredMgr, err := NewManager("s3cret", time.Hour, WithClock(past))
	require.NoError(t, err)
	expired, _, err := expiredMgr.GenerateToken("u1", "traveler")
	require.NoError(t, err)

	otherMgr, err := NewManager("different", time.Hour)
	require.NoError(t, err)
	foreign, _, err := otherMgr.GenerateToken("u1", "traveler")
	require.NoError(t, err)

	noID, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, &Claims{Role: "shipper"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	unsigned, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, &Claims{UserID: "u1"}).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", ErrMissingToken},
		{"garbage", "not-a-token", ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
		{"wrong secret", foreign, ErrInvalidToken},
		{"no user id", noID, ErrInvalidToken},
		{"alg none", unsigned, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
