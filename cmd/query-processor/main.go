package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/seanankenbruck/warehouse-ai/internal/app"
	"github.com/seanankenbruck/warehouse-ai/internal/config"
	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

func main() {
	// .env is optional; real deployments set the environment or mount secrets
	_ = godotenv.Load()

	ctx := context.Background()
	loader := config.NewDefaultLoader()
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.SetDefaultLevel(observability.ParseLevel(cfg.Server.LogLevel))
	logger := observability.NewLogger("main")

	if err := cfg.ValidateWithContext(); err != nil {
		logger.Error(ctx, "Invalid configuration", err, nil)
		os.Exit(1)
	}
	gin.SetMode(cfg.Server.GinMode)

	sources := map[string]interface{}{}
	for _, key := range []string{"OPENAI_API_KEY", "CLAUDE_API_KEY", "GEMINI_API_KEY", "WAREHOUSE_DSN", "MYSQL_PASSWORD"} {
		if source := loader.Source(key); source != "" {
			sources[key] = source
		}
	}
	logger.Info(ctx, "Configuration loaded", map[string]interface{}{
		"schema_path":    cfg.Catalog.Path,
		"embed_provider": cfg.Embedding.Provider,
		"gen_provider":   cfg.Generation.Provider,
		"secret_sources": sources,
	})

	application, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		logger.Error(ctx, "Failed to initialize pipeline", err, nil)
		os.Exit(1)
	}
	defer application.Close()

	router := application.Processor.SetupRoutes(application.NewRateLimitMiddleware())

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Query processor starting", map[string]interface{}{
			"port":    cfg.Server.Port,
			"version": app.Version,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Graceful shutdown failed", err, nil)
	}
}
