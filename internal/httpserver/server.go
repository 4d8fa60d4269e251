package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"aimate/pkg/config"
)

// Server 包装 http.Server，统一超时和优雅退出
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(cfg config.ServerConfig, router *Router, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Port,
			Handler:           router.Engine,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		logger: logger,
	}
}

func (s *Server) Addr() string { return s.srv.Addr }

// Start 阻塞直到服务器关闭，正常关闭时返回 nil
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.srv.Shutdown(ctx)
}
