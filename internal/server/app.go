package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/pkg/logger"
)

type Config struct {
	HttpPort        string
	ShutdownTimeout time.Duration
}

type App struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

func New(cfg Config, httpHandler *gin.Engine) *App {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &App{
		httpServer: &http.Server{
			Addr:              ":" + cfg.HttpPort,
			Handler:           httpHandler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: timeout,
	}
}

// Run 启动 HTTP 服务并阻塞，直到 ctx 取消或服务异常退出
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	// Graceful Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
		return err
	}
	logger.Info("Server exited properly")
	return nil
}
