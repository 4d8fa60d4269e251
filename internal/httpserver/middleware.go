package httpserver

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"aimate/internal/handler"
	"aimate/internal/util"
	"aimate/pkg/cache"
	"aimate/pkg/logger"
	"aimate/pkg/metrics"
	"aimate/pkg/trace"
)

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}

// TraceMiddleware 沿用请求头中的 trace id，缺失时生成，并回写到响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeader(c.GetHeader(trace.HeaderName()))
		c.Set(trace.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// RequestLogger 记录访问日志和请求耗时指标
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), latency)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if uid := c.GetInt64(handler.UserIDKey); uid != 0 {
			fields = append(fields, zap.Int64("user_id", uid))
		}
		l := logger.WithTrace(c.Request.Context(), log)
		if status >= http.StatusInternalServerError {
			l.Warn("http request", fields...)
			return
		}
		l.Info("http request", fields...)
	}
}

// Recovery 把 panic 转成 500 响应
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithTrace(c.Request.Context(), log).Error("panic recovered",
			zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		abort(c, http.StatusInternalServerError, "Server error")
	})
}

// CORS 允许配置的客户端地址以及所有 vercel.app 部署
func CORS(clientURLs []string) gin.HandlerFunc {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:5000": true,
		"http://localhost:3000": true,
	}
	for _, u := range clientURLs {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			allowed[u] = true
		}
	}
	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowed[origin] || strings.Contains(origin, "vercel.app")
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", trace.HeaderName()},
		ExposeHeaders:    []string{"Content-Range", "X-Content-Range", trace.HeaderName()},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	})
}

// AuthMiddleware 校验 Bearer token 并把 user_id 写入 context
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			abort(c, http.StatusUnauthorized, "missing token")
			return
		}

		userID, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			if util.IsExpired(err) {
				abort(c, http.StatusUnauthorized, "token expired")
				return
			}
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(handler.UserIDKey, userID)
		c.Next()
	}
}

// UserRateLimiter 对每个用户做令牌桶限流，只保留最近活跃的用户
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[int64, *rate.Limiter]
	rps      rate.Limit
	burst    int
}

func NewUserRateLimiter(rps float64, burst int) *UserRateLimiter {
	limiters, _ := lru.New[int64, *rate.Limiter](10000)
	return &UserRateLimiter{limiters: limiters, rps: rate.Limit(rps), burst: burst}
}

func (l *UserRateLimiter) limiter(userID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters.Get(userID); ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.limiters.Add(userID, lim)
	return lim
}

func (l *UserRateLimiter) Allow(userID int64) bool {
	return l.limiter(userID).Allow()
}

// Middleware 必须挂在 AuthMiddleware 之后
func (l *UserRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.GetInt64(handler.UserIDKey)) {
			abort(c, http.StatusTooManyRequests, "Too many requests, please try again later.")
			return
		}
		c.Next()
	}
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache 缓存 cacheable 中列表路由的 GET 响应，按 (用户, 完整 URL) 区分。
// 用户的任何非 GET 请求以及 invalidating 中的 GET 路由都会清空该用户的缓存。
func ResponseCache(rc *cache.ResponseCache, cacheable, invalidating []string) gin.HandlerFunc {
	hit := routeSet(cacheable)
	skip := routeSet(invalidating)
	return func(c *gin.Context) {
		owner := strconv.FormatInt(c.GetInt64(handler.UserIDKey), 10)
		if c.Request.Method != http.MethodGet || skip[c.FullPath()] {
			c.Next()
			rc.InvalidateOwner(owner)
			return
		}
		if !hit[c.FullPath()] {
			c.Next()
			return
		}

		url := c.Request.URL.RequestURI()
		if e, ok := rc.Get(owner, url); ok {
			metrics.IncrementResponseCache("hit")
			c.Header("X-Cache", "HIT")
			c.Data(e.Status, e.ContentType, e.Body)
			c.Abort()
			return
		}
		metrics.IncrementResponseCache("miss")

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Header("X-Cache", "MISS")
		c.Next()

		if rec.Status() == http.StatusOK {
			rc.Set(owner, url, cache.Entry{
				Status:      rec.Status(),
				ContentType: rec.Header().Get("Content-Type"),
				Body:        append([]byte(nil), rec.body.Bytes()...),
			})
		}
	}
}

func routeSet(routes []string) map[string]bool {
	m := make(map[string]bool, len(routes))
	for _, r := range routes {
		m[r] = true
	}
	return m
}
