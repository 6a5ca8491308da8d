package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func limitedRouter(config RateLimiterConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(config).RateLimit())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func pingFrom(r *gin.Engine, remoteAddr string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitPerClient(t *testing.T) {
	r := limitedRouter(RateLimiterConfig{Rate: rate.Limit(1), Burst: 2})

	assert.Equal(t, http.StatusOK, pingFrom(r, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, pingFrom(r, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, pingFrom(r, "10.0.0.1:1234"))

	// A different terminal keeps its own allowance.
	assert.Equal(t, http.StatusOK, pingFrom(r, "10.0.0.2:1234"))
}

func TestRequestIDReplacesMalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderXRequestID, "not-a-uuid\nInjected: line")
	r.ServeHTTP(w, req)

	rid := w.Header().Get(HeaderXRequestID)
	_, err := uuid.Parse(rid)
	assert.NoError(t, err)
}

func TestRequestIDHonorsWellFormedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	inbound := uuid.New().String()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderXRequestID, inbound)
	r.ServeHTTP(w, req)

	assert.Equal(t, inbound, w.Header().Get(HeaderXRequestID))
}
