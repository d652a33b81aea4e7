package llm

import (
	"context"
	"time"

	"github.com/seanankenbruck/warehouse-ai/internal/observability"
)

// InstrumentedEmbedder records request metrics and logs failures for an Embedder
type InstrumentedEmbedder struct {
	embedder Embedder
	provider string
	logger   *observability.Logger
}

// NewInstrumentedEmbedder wraps embedder under the given provider label
func NewInstrumentedEmbedder(embedder Embedder, provider string) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		embedder: embedder,
		provider: provider,
		logger:   observability.NewLogger("llm"),
	}
}

func (i *InstrumentedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := i.embedder.Embed(ctx, texts)
	duration := time.Since(start)

	observability.RecordLLMMetrics(i.provider, "embed", duration, 0, err)
	if err != nil {
		i.logger.Error(ctx, "Embedding request failed", err, map[string]interface{}{
			"provider":    i.provider,
			"inputs":      len(texts),
			"duration_ms": duration.Milliseconds(),
		})
		return nil, err
	}
	i.logger.Debug(ctx, "Embedding request completed", map[string]interface{}{
		"provider":    i.provider,
		"inputs":      len(texts),
		"duration_ms": duration.Milliseconds(),
	})
	return vectors, nil
}

// InstrumentedGenerator records request metrics and logs failures for a Generator
type InstrumentedGenerator struct {
	generator Generator
	provider  string
	logger    *observability.Logger
}

// NewInstrumentedGenerator wraps generator under the given provider label
func NewInstrumentedGenerator(generator Generator, provider string) *InstrumentedGenerator {
	return &InstrumentedGenerator{
		generator: generator,
		provider:  provider,
		logger:    observability.NewLogger("llm"),
	}
}

func (i *InstrumentedGenerator) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	start := time.Now()
	reply, err := i.generator.Generate(ctx, system, user, temperature)
	duration := time.Since(start)

	observability.RecordLLMMetrics(i.provider, "generate", duration, 0, err)
	if err != nil {
		i.logger.Error(ctx, "Generation request failed", err, map[string]interface{}{
			"provider":    i.provider,
			"temperature": temperature,
			"duration_ms": duration.Milliseconds(),
		})
		return "", err
	}
	return reply, nil
}
