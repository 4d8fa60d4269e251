package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aimate/internal/adapter/ai"
	"aimate/internal/adapter/gmail"
	"aimate/internal/adapter/stt"
	"aimate/internal/config"
	"aimate/internal/emailsync"
	"aimate/internal/handler"
	"aimate/internal/httpserver"
	"aimate/internal/repository"
	"aimate/internal/service/auth"
	"aimate/internal/service/email"
	"aimate/internal/service/expense"
	"aimate/internal/service/meeting"
	"aimate/internal/service/task"
	"aimate/pkg/cache"
	pkgconfig "aimate/pkg/config"
	"aimate/pkg/db"
	"aimate/pkg/logger"
	"aimate/pkg/mq"
	"aimate/pkg/otel"
	"aimate/pkg/outbox"
	pkgredis "aimate/pkg/redis"
	"aimate/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(pkgconfig.GetConfigEnv())
	defer log.Sync()

	log.Info("Starting AIMate API...",
		zap.String("port", cfg.Server.Port),
		zap.String("db_host", cfg.DB.Host),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
	)

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName: cfg.Otel.ServiceName,
		Endpoint:    cfg.Otel.Endpoint,
		Enabled:     cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	// DB
	if err := db.MigrateUp(cfg.DB); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	dbConn, err := db.NewConnection(context.Background(), cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	// Redis
	rdb := pkgredis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := pkgredis.Ping(pingCtx, rdb); err != nil {
		// 只影响同步锁，锁获取失败时放行
		log.Warn("Redis not reachable, email sync lock degraded", zap.Error(err))
	}
	pingCancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MQ
	var publisher mq.EventPublisher = mq.NopPublisher{Logger: log}
	var outboxRepo *outbox.Repository
	if cfg.MQ.Enabled {
		mqPublisher, err := mq.NewPublisher(cfg.MQ.URL, "aimate-api")
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer mqPublisher.Close()

		outboxRepo = outbox.NewRepository(dbConn)
		publisher = outboxRepo
		dispatcher := outbox.NewDispatcher(outboxRepo, mqPublisher, log)
		go dispatcher.Start(ctx)
		log.Info("Outbox dispatcher started")
	}

	// Repositories
	userRepo := repository.NewUserRepository(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn)
	if outboxRepo != nil {
		taskRepo = taskRepo.WithOutbox(outboxRepo)
	}
	expenseRepo := repository.NewExpenseRepository(dbConn)
	meetingRepo := repository.NewMeetingRepository(dbConn)
	emailRepo := repository.NewEmailRepository(dbConn)

	// Adapters
	aiClient := ai.NewClient(cfg.OpenAI, log)
	transcriber := stt.NewTranscriber(aiClient.API(), cfg.OpenAI.TranscribeTimeout, log).WithBreaker(aiClient.Breaker())
	gmailClient := gmail.NewClient(cfg.Gmail, log)

	reconciler := emailsync.NewReconciler(gmailClient, emailRepo, userRepo, log,
		emailsync.WithLocker(util.NewRedisLock(rdb, "email-sync", cfg.Gmail.SyncLockTTL, log)),
		emailsync.WithProfiler(gmailClient),
		emailsync.WithPublisher(publisher),
		emailsync.WithFetchCount(cfg.Gmail.FetchCount),
	)

	// Services
	authService := auth.NewService(userRepo, emailRepo, gmailClient, cfg.JWT.Secret, cfg.JWT.Expire, log)
	taskService := task.NewService(taskRepo, aiClient, log)
	expenseService := expense.NewService(expenseRepo, aiClient, publisher, log)
	meetingService := meeting.NewService(meetingRepo, aiClient, transcriber, publisher, log)
	emailService := email.NewService(emailRepo, userRepo, reconciler, aiClient, gmailClient, publisher, log)

	// HTTP
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Task:    handler.NewTaskHandler(taskService, log),
		Expense: handler.NewExpenseHandler(expenseService, log),
		Meeting: handler.NewMeetingHandler(meetingService, log),
		Email:   handler.NewEmailHandler(emailService, log),
	}, httpserver.Options{
		JWTSecret:  cfg.JWT.Secret,
		ClientURLs: cfg.Server.ClientURLs,
		Cache:      cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL),
		RateLimit:  httpserver.NewUserRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Checks:     readinessChecks(dbConn, rdb),
		Logger:     log,
	})
	srv := httpserver.NewServer(cfg.Server, router, log)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("AIMate API is fully initialized and running",
		zap.Bool("openai_configured", aiClient.Configured()),
		zap.Bool("gmail_configured", gmailClient.Configured()),
	)

	// 优雅退出处理
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down AIMate API gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("AIMate API shutdown complete")
}

func readinessChecks(dbConn *pgxpool.Pool, rdb *redis.Client) map[string]httpserver.ReadinessCheck {
	return map[string]httpserver.ReadinessCheck{
		"db":    dbConn.Ping,
		"redis": func(ctx context.Context) error { return pkgredis.Ping(ctx, rdb) },
	}
}
