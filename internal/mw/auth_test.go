package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"equipment-queue-backend/internal/mw/authtest"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity(NewTokenValidator(authtest.Secret)))
	r.GET("/open", func(c *gin.Context) {
		id, ok := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "ok": ok})
	})
	r.GET("/private", RequireUser(), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	return r
}

func TestIdentity(t *testing.T) {
	r := newAuthRouter()

	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"anonymous open", "/open", "", http.StatusOK, `{"id":0,"ok":false}`},
		{"bearer open", "/open", "Bearer " + authtest.Token(t, 7), http.StatusOK, `{"id":7,"ok":true}`},
		{"query token", "/open?access_token=" + authtest.Token(t, 8), "", http.StatusOK, `{"id":8,"ok":true}`},
		{"expired token", "/open", "Bearer " + authtest.ExpiredToken(t, 7), http.StatusUnauthorized, ""},
		{"garbage token", "/open", "Bearer nope", http.StatusUnauthorized, ""},
		{"anonymous private", "/private", "", http.StatusUnauthorized, ""},
		{"bearer private", "/private", "Bearer " + authtest.Token(t, 9), http.StatusOK, `{"id":9}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestTokenValidator_WrongSecret(t *testing.T) {
	v := NewTokenValidator("other-secret")
	_, err := v.ValidateToken(authtest.Token(t, 1))
	assert.Error(t, err)
}
