package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newAuthEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTAuth(testSecret))
	r.GET("/whoami", func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "admin": p.IsAdmin})
	})
	return r
}

func TestParseToken(t *testing.T) {
	token, err := NewAccessToken("u1", true, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.True(t, claims.Admin)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)

	expired, err := NewAccessToken("u1", false, testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, testSecret)
	assert.Error(t, err)
}

func TestJWTAuth(t *testing.T) {
	r := newAuthEngine()

	token, err := NewAccessToken("u2", false, testSecret, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"u2","admin":false}`, w.Body.String())
}

func TestJWTAuth_Rejects(t *testing.T) {
	r := newAuthEngine()

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dTE6cGFzcw=="},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestPrincipalFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := principalFrom(c)
	assert.False(t, ok)

	c.Set(principalKey, domain.Principal{UserID: "admin", IsAdmin: true})
	p, ok := principalFrom(c)
	assert.True(t, ok)
	assert.True(t, p.IsAdmin)
}
