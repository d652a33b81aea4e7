// Package llm holds the embedding and generation providers used by the ask pipeline.
package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Embedder turns texts into vectors. The result has the same length and order as the input
// and every vector from one Embedder has the same dimensionality.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator returns the model's full text reply for a system instruction and a user message.
type Generator interface {
	Generate(ctx context.Context, system, user string, temperature float64) (string, error)
}

// ErrEmptyReply is returned when a provider answers with no usable text
var ErrEmptyReply = errors.New("model returned an empty reply")

// Config holds configuration for LLM clients
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

func (c Config) timeoutOrDefault() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// A word right after the opening fence is a language tag only when a newline follows it
var codeFenceRegex = regexp.MustCompile("(?s)```(?:[A-Za-z]*[ \t]*\n)?(.*?)```")

// ExtractReply unwraps the first markdown code fence in a reply, if any, and trims it.
func ExtractReply(text string) string {
	if matches := codeFenceRegex.FindStringSubmatch(text); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return strings.TrimSpace(text)
}
