package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aimate/internal/handler"
	"aimate/internal/util"
	"aimate/pkg/cache"
	"aimate/pkg/trace"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, userID int64) http.Header {
	t.Helper()
	token, err := util.GenerateJWT(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt64(handler.UserIDKey)})
	})

	w := do(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"missing token"}`, w.Body.String())

	w = do(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"invalid token"}`, w.Body.String())

	expired, err := util.GenerateJWT(7, testSecret, -time.Minute)
	require.NoError(t, err)
	w = do(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer " + expired}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")

	w = do(r, http.MethodGet, "/me", bearer(t, 7))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7}`, w.Body.String())
}

func TestTraceMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, trace.FromContext(c.Request.Context()))
	})

	w := do(r, http.MethodGet, "/", http.Header{trace.HeaderName(): {"abc123"}})
	assert.Equal(t, "abc123", w.Header().Get(trace.HeaderName()))
	assert.Equal(t, "abc123", w.Body.String())

	w = do(r, http.MethodGet, "/", http.Header{"x-trace-id": {"lower42"}})
	assert.Equal(t, "lower42", w.Body.String())

	w = do(r, http.MethodGet, "/", nil)
	generated := w.Header().Get(trace.HeaderName())
	assert.Len(t, generated, 32)
	assert.Equal(t, generated, w.Body.String())
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := do(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Server error"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://aimate.example.com/"}))
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, origin := range []string{
		"http://localhost:5173",
		"https://aimate.example.com",
		"https://aimate-git-feature.vercel.app",
	} {
		w := do(r, http.MethodOptions, "/api/health", http.Header{
			"Origin":                        {origin},
			"Access-Control-Request-Method": {http.MethodGet},
		})
		assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"), origin)
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"), origin)
	}

	w := do(r, http.MethodGet, "/api/health", http.Header{"Origin": {"https://evil.example.com"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUserRateLimiter(t *testing.T) {
	l := NewUserRateLimiter(0.001, 2)
	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))
	assert.True(t, l.Allow(2), "limits are per user")

	r := gin.New()
	r.POST("/ai", func(c *gin.Context) { c.Set(handler.UserIDKey, int64(3)) }, NewUserRateLimiter(0.001, 1).Middleware(),
		func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/ai", nil).Code)
	w := do(r, http.MethodPost, "/ai", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestResponseCache(t *testing.T) {
	rc := cache.New(100, time.Minute)
	calls := map[string]int{}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		uid := int64(1)
		if c.GetHeader("X-User") == "2" {
			uid = 2
		}
		c.Set(handler.UserIDKey, uid)
	}, ResponseCache(rc, []string{"/api/tasks"}, []string{"/api/emails/sync"}))
	r.GET("/api/tasks", func(c *gin.Context) {
		calls["list"]++
		c.JSON(http.StatusOK, gin.H{"success": true, "count": calls["list"]})
	})
	r.GET("/api/tasks/:id", func(c *gin.Context) {
		calls["get"]++
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	r.POST("/api/tasks", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/api/emails/sync", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodGet, "/api/tasks?status=pending", nil)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	w = do(r, http.MethodGet, "/api/tasks?status=pending", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"success":true,"count":1}`, w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, 1, calls["list"])

	// 不同查询串和不同用户各自缓存
	do(r, http.MethodGet, "/api/tasks?status=completed", nil)
	do(r, http.MethodGet, "/api/tasks?status=pending", http.Header{"X-User": {"2"}})
	assert.Equal(t, 3, calls["list"])

	// 单条资源不缓存
	do(r, http.MethodGet, "/api/tasks/5", nil)
	do(r, http.MethodGet, "/api/tasks/5", nil)
	assert.Equal(t, 2, calls["get"])

	// 写操作只清空当前用户
	do(r, http.MethodPost, "/api/tasks", nil)
	do(r, http.MethodGet, "/api/tasks?status=pending", nil)
	assert.Equal(t, 4, calls["list"])
	w = do(r, http.MethodGet, "/api/tasks?status=pending", http.Header{"X-User": {"2"}})
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	// 同步虽然是 GET 也会清空
	do(r, http.MethodGet, "/api/emails/sync", nil)
	do(r, http.MethodGet, "/api/tasks?status=pending", nil)
	assert.Equal(t, 5, calls["list"])
}

func TestResponseCache_SkipsErrors(t *testing.T) {
	rc := cache.New(100, time.Minute)
	calls := 0

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(handler.UserIDKey, int64(1)) }, ResponseCache(rc, []string{"/api/emails"}, nil))
	r.GET("/api/emails", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
	})

	do(r, http.MethodGet, "/api/emails", nil)
	do(r, http.MethodGet, "/api/emails", nil)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, rc.Len())
}
