// Package authtest signs access tokens for handler and middleware tests.
package authtest

import (
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Secret is the signing secret tests share with the validator under test.
const Secret = "test-secret"

// Token signs a valid HS256 token for userID.
func Token(t *testing.T, userID int64) string {
	t.Helper()
	return sign(t, userID, time.Now().Add(time.Hour))
}

// ExpiredToken signs a token that expired a minute ago.
func ExpiredToken(t *testing.T, userID int64) string {
	t.Helper()
	return sign(t, userID, time.Now().Add(-time.Minute))
}

func sign(t *testing.T, userID int64, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString([]byte(Secret))
	require.NoError(t, err)
	return signed
}
