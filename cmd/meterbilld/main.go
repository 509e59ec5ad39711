// Command meterbilld serves the meter-billing HTTP API: photo uploads,
// LLM reading extraction, tenants, invoices and exports.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baloghm/meterbill/internal/analysis"
	"github.com/baloghm/meterbill/internal/billing"
	"github.com/baloghm/meterbill/internal/common"
	"github.com/baloghm/meterbill/internal/export"
	"github.com/baloghm/meterbill/internal/imageprep"
	"github.com/baloghm/meterbill/internal/llm/openai"
	"github.com/baloghm/meterbill/internal/server"
	"github.com/baloghm/meterbill/internal/tenant"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; analysis requests will fail until it is provided")
	}

	prep := imageprep.NewProcessor(cfg.Image, logger)
	extractor := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Models:      cfg.LLM.Models,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxAttempts: cfg.LLM.MaxAttempts,
		BaseDelay:   cfg.LLM.BaseDelay,
	}, logger)

	tenants := tenant.NewStore()
	items := analysis.NewStore()
	orch := analysis.NewOrchestrator(items, extractor, prep, logger)
	composer := billing.NewComposer(tenants, items, cfg.Billing)
	exporter := export.NewService(logger)

	srv := server.New(cfg, tenants, items, orch, prep, composer, exporter, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr, "models", cfg.LLM.Models)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	orch.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}
