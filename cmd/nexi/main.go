// Package main запускает HTTP-сервер сервиса nexi.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AYUSH1442006/nexi-backend/internal/config"
	"github.com/AYUSH1442006/nexi-backend/internal/explain"
	"github.com/AYUSH1442006/nexi-backend/internal/handler"
	"github.com/AYUSH1442006/nexi-backend/internal/middleware"
	"github.com/AYUSH1442006/nexi-backend/internal/payment"
	"github.com/AYUSH1442006/nexi-backend/internal/repository"
	"github.com/AYUSH1442006/nexi-backend/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var explainer explain.Explainer
	if cfg.GeminiAPIKey != "" {
		explainer = explain.NewClient(cfg.GeminiAddress, cfg.GeminiAPIKey)
	}

	var gateway service.Gateway
	if cfg.GatewayAddress != "" && cfg.GatewayKeyID != "" {
		gateway = payment.NewClient(cfg.GatewayAddress, cfg.GatewayKeyID, cfg.GatewaySecret)
	}

	svc := service.NewService(repo, explainer, gateway, cfg.GatewayKeyID, cfg.GatewaySecret)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting nexi server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
