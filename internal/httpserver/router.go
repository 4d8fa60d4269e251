package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"aimate/internal/handler"
	"aimate/pkg/cache"
	"aimate/pkg/otel"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Task    *handler.TaskHandler
	Expense *handler.ExpenseHandler
	Meeting *handler.MeetingHandler
	Email   *handler.EmailHandler
}

// ReadinessCheck 在 /readyz 中执行，返回 error 表示依赖未就绪
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	JWTSecret  string
	ClientURLs []string
	Cache      *cache.ResponseCache
	RateLimit  *UserRateLimiter
	Checks     map[string]ReadinessCheck
	Logger     *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

var cachedRoutes = []string{"/api/tasks", "/api/expenses", "/api/meetings", "/api/emails"}

// 同步是 GET，但会改写邮件列表
var invalidatingRoutes = []string{"/api/emails/sync"}

func NewRouter(h Handlers, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(500, 2*time.Minute)
	}
	if opts.RateLimit == nil {
		opts.RateLimit = NewUserRateLimiter(1, 10)
	}

	r := gin.New()
	r.Use(Recovery(opts.Logger), TraceMiddleware(), otel.GinMiddleware(), RequestLogger(opts.Logger), CORS(opts.ClientURLs))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, check := range opts.Checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "message": "AIMate API is running"})
	})

	api := r.Group("/api")

	// Public
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)

	// Protected
	auth := api.Group("/")
	auth.Use(AuthMiddleware(opts.JWTSecret), ResponseCache(opts.Cache, cachedRoutes, invalidatingRoutes))
	ai := opts.RateLimit.Middleware()
	{
		auth.GET("/auth/me", h.Auth.Me)
		auth.POST("/auth/logout", h.Auth.Logout)
		auth.PUT("/auth/preferences", h.Auth.UpdatePreferences)
		auth.GET("/auth/gmail/url", h.Auth.GmailURL)
		auth.POST("/auth/gmail/callback", h.Auth.GmailCallback)
		auth.POST("/auth/gmail/disconnect", h.Auth.GmailDisconnect)

		auth.GET("/tasks", h.Task.List)
		auth.POST("/tasks", h.Task.Create)
		auth.POST("/tasks/generate", ai, h.Task.Generate)
		auth.GET("/tasks/:id", h.Task.Get)
		auth.PUT("/tasks/:id", h.Task.Update)
		auth.DELETE("/tasks/:id", h.Task.Delete)

		auth.GET("/expenses/insights", ai, h.Expense.Insights)
		auth.GET("/expenses", h.Expense.List)
		auth.POST("/expenses", h.Expense.Create)
		auth.GET("/expenses/:id", h.Expense.Get)
		auth.PUT("/expenses/:id", h.Expense.Update)
		auth.DELETE("/expenses/:id", h.Expense.Delete)

		auth.GET("/meetings", h.Meeting.List)
		auth.POST("/meetings", h.Meeting.Create)
		auth.POST("/meetings/create-with-ai", ai, h.Meeting.CreateWithAI)
		auth.POST("/meetings/:id/upload-audio", ai, h.Meeting.UploadAudio)
		auth.POST("/meetings/:id/action-items/:itemId/convert", h.Meeting.ConvertActionItem)
		auth.GET("/meetings/:id", h.Meeting.Get)
		auth.PUT("/meetings/:id", h.Meeting.Update)
		auth.DELETE("/meetings/:id", h.Meeting.Delete)

		// 同步沿用 GET，客户端一直这样调用
		auth.GET("/emails/sync", h.Email.Sync)
		auth.POST("/emails/sync", h.Email.Sync)
		auth.GET("/emails", h.Email.List)
		auth.POST("/emails/generate-reply-manual", ai, h.Email.GenerateReplyManual)
		auth.POST("/emails/:id/generate-reply", ai, h.Email.GenerateReply)
		auth.POST("/emails/:id/send", h.Email.Send)
		auth.GET("/emails/:id", h.Email.Get)
		auth.PUT("/emails/:id", h.Email.Update)
		auth.DELETE("/emails/:id", h.Email.Delete)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Route not found"})
	})

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
