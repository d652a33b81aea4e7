package app

import (
	"context"
	"fmt"

	"github.com/seanankenbruck/warehouse-ai/internal/config"
	"github.com/seanankenbruck/warehouse-ai/internal/llm"
)

// NewEmbedder builds the configured embedding provider wrapped in metrics and a circuit breaker
func NewEmbedder(ctx context.Context, cfg *config.Config) (llm.Embedder, error) {
	var embedder llm.Embedder

	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		client, err := llm.NewOpenAIClient(llm.Config{
			APIKey:  cfg.Credentials.OpenAIAPIKey,
			BaseURL: cfg.Credentials.OpenAIBaseURL,
			Timeout: cfg.Generation.Timeout,
		}, cfg.Embedding.Model, "")
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		embedder = client
	case config.ProviderGemini:
		client, err := llm.NewGeminiClient(ctx, llm.Config{APIKey: cfg.Credentials.GeminiAPIKey}, cfg.Embedding.Model, "")
		if err != nil {
			return nil, fmt.Errorf("gemini embeddings: %w", err)
		}
		embedder = client
	case config.ProviderLocal:
		embedder = llm.NewLocalEmbedder(cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Embedding.Provider)
	}

	instrumented := llm.NewInstrumentedEmbedder(embedder, cfg.Embedding.Provider)
	return llm.NewCircuitBreakerEmbedder(instrumented, "embedder-"+cfg.Embedding.Provider, llm.DefaultCircuitBreakerConfig), nil
}

// NewGenerator builds the configured generation provider wrapped in metrics and a circuit breaker
func NewGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, error) {
	base := llm.Config{
		Model:     cfg.Generation.Model,
		Timeout:   cfg.Generation.Timeout,
		MaxTokens: cfg.Generation.MaxTokens,
	}

	var generator llm.Generator
	switch cfg.Generation.Provider {
	case config.ProviderOpenAI:
		base.APIKey = cfg.Credentials.OpenAIAPIKey
		base.BaseURL = cfg.Credentials.OpenAIBaseURL
		client, err := llm.NewOpenAIClient(base, "", cfg.Generation.Model)
		if err != nil {
			return nil, fmt.Errorf("openai generation: %w", err)
		}
		generator = client
	case config.ProviderClaude:
		base.APIKey = cfg.Credentials.ClaudeAPIKey
		client, err := llm.NewClaudeClient(base)
		if err != nil {
			return nil, fmt.Errorf("claude generation: %w", err)
		}
		generator = client
	case config.ProviderGemini:
		base.APIKey = cfg.Credentials.GeminiAPIKey
		client, err := llm.NewGeminiClient(ctx, base, "", cfg.Generation.Model)
		if err != nil {
			return nil, fmt.Errorf("gemini generation: %w", err)
		}
		generator = client
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Generation.Provider)
	}

	instrumented := llm.NewInstrumentedGenerator(generator, cfg.Generation.Provider)
	return llm.NewCircuitBreakerGenerator(instrumented, "generator-"+cfg.Generation.Provider, llm.DefaultCircuitBreakerConfig), nil
}
