package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func teacherClaims(expires time.Time) models.JWTClaims {
	return models.JWTClaims{
		UserID: "t1",
		Role:   models.RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity",
			Audience:  jwt.ClaimStrings{"behavior-api"},
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
}

func TestTokenVerifierAcceptsValidToken(t *testing.T) {
	verifier, err := NewTokenVerifier(TokenConfig{Secret: "secret", Issuer: "identity", Audience: []string{"behavior-api"}})
	require.NoError(t, err)

	token := signToken(t, jwt.SigningMethodHS256, []byte("secret"), teacherClaims(time.Now().Add(time.Hour)))
	claims, err := verifier.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "t1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestTokenVerifierRejectsBadTokens(t *testing.T) {
	verifier, err := NewTokenVerifier(TokenConfig{Secret: "secret", Issuer: "identity", Audience: []string{"behavior-api"}})
	require.NoError(t, err)

	expired := signToken(t, jwt.SigningMethodHS256, []byte("secret"), teacherClaims(time.Now().Add(-time.Hour)))
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), teacherClaims(time.Now().Add(time.Hour)))
	wrongAlg := signToken(t, jwt.SigningMethodHS512, []byte("secret"), teacherClaims(time.Now().Add(time.Hour)))
	foreign := teacherClaims(time.Now().Add(time.Hour))
	foreign.Issuer = "someone-else"
	wrongIssuer := signToken(t, jwt.SigningMethodHS256, []byte("secret"), foreign)
	noRole := teacherClaims(time.Now().Add(time.Hour))
	noRole.Role = ""
	missingRole := signToken(t, jwt.SigningMethodHS256, []byte("secret"), noRole)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong key":    wrongKey,
		"wrong alg":    wrongAlg,
		"wrong issuer": wrongIssuer,
		"missing role": missingRole,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.ValidateToken(token)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier(TokenConfig{})
	assert.Error(t, err)
}
