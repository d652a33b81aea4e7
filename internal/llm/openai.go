package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	OpenAIAPIBaseURL      = "https://api.openai.com/v1"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultChatModel      = "gpt-4o-mini"
)

// OpenAIClient talks to an OpenAI-compatible API. It serves as both Embedder and Generator;
// the embedding and chat models are configured separately.
type OpenAIClient struct {
	apiKey         string
	baseURL        string
	embeddingModel string
	chatModel      string
	maxTokens      int
	client         *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a client. embeddingModel or chatModel may be empty when the
// client is only used for the other role.
func NewOpenAIClient(cfg Config, embeddingModel, chatModel string) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIAPIBaseURL
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if chatModel == "" {
		chatModel = DefaultChatModel
	}

	return &OpenAIClient{
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
		maxTokens:      cfg.MaxTokens,
		client:         &http.Client{Timeout: cfg.timeoutOrDefault()},
	}, nil
}

// Embed sends every text in one request and maps the vectors back by index
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var out embeddingResponse
	if err := c.post(ctx, "/embeddings", embeddingRequest{Input: texts, Model: c.embeddingModel}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return vectors, nil
}

// Generate runs a chat completion with the system instruction as the first message
func (c *OpenAIClient) Generate(ctx context.Context, system, user string, temperature float64) (string, error) {
	req := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	}

	var out chatResponse
	if err := c.post(ctx, "/chat/completions", req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyReply
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func (c *OpenAIClient) post(ctx context.Context, path string, payload, out interface{}) error {
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	return postJSON(ctx, c.client, "OpenAI", c.baseURL+path, headers, payload, out, nestedErrorMessage)
}
