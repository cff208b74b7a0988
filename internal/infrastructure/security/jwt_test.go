package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "unit-test-secret"

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateJWTAcceptsValidToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"type": "collab_auth",
		"sub":  "alice",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	claims, err := ValidateJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])
}

func TestValidateJWTRejectsWrongSecret(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "alice"})
	_, err := ValidateJWT(token, "a different secret")
	assert.Error(t, err)
}

func TestValidateJWTRejectsExpiredToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err := ValidateJWT(token, secret)
	assert.Error(t, err)
}

func TestParticipantFromClaims(t *testing.T) {
	participant, err := ParticipantFromClaims(jwt.MapClaims{
		"type":   "collab_auth",
		"sub":    "alice",
		"name":   "Alice",
		"color":  "#112233",
		"avatar": "https://example.com/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", participant.ID)
	assert.Equal(t, "Alice", participant.Name)
	assert.Equal(t, "#112233", participant.Color)
	assert.Equal(t, "https://example.com/a.png", participant.Avatar)
}

func TestParticipantFromClaimsRejectsWrongTokenType(t *testing.T) {
	_, err := ParticipantFromClaims(jwt.MapClaims{"type": "refresh", "sub": "alice"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParticipantFromClaimsRequiresSubject(t *testing.T) {
	_, err := ParticipantFromClaims(jwt.MapClaims{"type": "collab_auth"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}
