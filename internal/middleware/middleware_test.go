package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *int32) {
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	var calls int32
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.syncway.io"}), IdempotencyMiddleware(client))
	r.PUT("/v1/rides/:id/claim", func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusOK, gin.H{"call": n})
	})
	r.PUT("/v1/rides/:id/cancel", func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})
	return r, &calls
}

func do(r *gin.Engine, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	r, calls := setupRouter(t)

	first := do(r, http.MethodPut, "/v1/rides/r1/claim", "k1")
	second := do(r, http.MethodPut, "/v1/rides/r1/claim", "k1")

	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(replayedHeader))
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")
}

func TestIdempotency_KeyScopedToRoute(t *testing.T) {
	r, calls := setupRouter(t)

	do(r, http.MethodPut, "/v1/rides/r1/claim", "k1")
	do(r, http.MethodPut, "/v1/rides/r2/claim", "k1")

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestIdempotency_ServerErrorsNotCached(t *testing.T) {
	r, calls := setupRouter(t)

	do(r, http.MethodPut, "/v1/rides/r1/cancel", "k2")
	w := do(r, http.MethodPut, "/v1/rides/r1/cancel", "k2")

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Empty(t, w.Header().Get(replayedHeader))
}

func TestIdempotency_WithoutKey(t *testing.T) {
	r, calls := setupRouter(t)

	do(r, http.MethodPut, "/v1/rides/r1/claim", "")
	do(r, http.MethodPut, "/v1/rides/r1/claim", "")

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func preflight(r *gin.Engine, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/v1/rides/r1/claim", nil)
	req.Header.Set("Origin", origin)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_Preflight(t *testing.T) {
	r, calls := setupRouter(t)

	w := preflight(r, "https://app.syncway.io")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.syncway.io", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestCORS_UnlistedOriginGetsNoHeaders(t *testing.T) {
	r, _ := setupRouter(t)

	w := preflight(r, "https://evil.example")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
