package mw

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"equipment-queue-backend/internal/logger"
)

const ctxUserIDKey = "user_id"

var errNoSubject = errors.New("token has no numeric subject")

// TokenValidator resolves an access token to a user id. Token issuance
// belongs to the identity service; this side only verifies.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator creates a validator for HS256 tokens signed with secret.
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// ValidateToken parses tokenString and returns the user id in its subject.
func (v *TokenValidator) ValidateToken(tokenString string) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errNoSubject
	}
	return userID, nil
}

// Identity resolves the caller when a token is present and leaves anonymous
// requests untouched. A present but invalid token is rejected.
func Identity(v *TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		userID, err := v.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "invalid_token", "message": "invalid or expired token"},
			})
			return
		}
		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

// RequireUser rejects requests without a resolved identity. It must run after Identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthenticated", "message": "access token required"},
			})
			return
		}
		c.Next()
	}
}

// UserID returns the caller's id when the request is authenticated.
func UserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ctxUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter that EventSource clients must use.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return c.Query("access_token")
}
