package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRateLimiterAllow(t *testing.T) {
	now := time.Now()

	t.Run("burst then deny", func(t *testing.T) {
		l := NewRateLimiter(1, 3, zap.NewNop())
		for i := 0; i < 3; i++ {
			assert.True(t, l.Allow("client", now))
		}
		assert.False(t, l.Allow("client", now))
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		l := NewRateLimiter(10, 1, zap.NewNop())
		assert.True(t, l.Allow("client", now))
		assert.False(t, l.Allow("client", now))
		assert.True(t, l.Allow("client", now.Add(200*time.Millisecond)))
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := NewRateLimiter(1, 1, zap.NewNop())
		assert.True(t, l.Allow("a", now))
		assert.True(t, l.Allow("b", now))
		assert.False(t, l.Allow("a", now))
	})

	t.Run("empty key bypasses", func(t *testing.T) {
		l := NewRateLimiter(1, 1, zap.NewNop())
		assert.True(t, l.Allow("", now))
		assert.True(t, l.Allow("", now))
	})

	t.Run("invalid arguments disable limiting", func(t *testing.T) {
		var l *RateLimiter = NewRateLimiter(0, 0, zap.NewNop())
		assert.Nil(t, l)
		assert.True(t, l.Allow("client", now))
	})
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := NewRateLimiter(1, 1, zap.NewNop())
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRateLimiterMiddlewareUserKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := NewRateLimiter(1, 1, zap.NewNop())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-User"); u != "" {
			c.Set(ctxUserID, u)
		}
	}, l.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	as := func(user string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-User", user)
		r.ServeHTTP(w, req)
		return w.Code
	}

	// Same client address, separate budgets per authenticated user.
	assert.Equal(t, http.StatusOK, as("alice"))
	assert.Equal(t, http.StatusOK, as("bob"))
	assert.Equal(t, http.StatusTooManyRequests, as("alice"))
}
