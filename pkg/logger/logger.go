package logger

import (
	"context"

	"go.uber.org/zap"

	"aimate/pkg/trace"
)

var Log *zap.Logger

// NewLogger 创建全局 logger，local 环境使用开发配置
func NewLogger(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "local" || env == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}

// WithUser 为 logger 附加 trace_id 和 user_id
func WithUser(ctx context.Context, logger *zap.Logger, userID int64) *zap.Logger {
	return WithTrace(ctx, logger).With(zap.Int64("user_id", userID))
}
