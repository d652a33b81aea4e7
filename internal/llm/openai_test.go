package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Embed(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)

		// Out of order on purpose: vectors are placed by index
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL}, "", "")
	require.NoError(t, err)

	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	assert.Equal(t, 1, calls)
}

func TestOpenAIClient_EmbedLengthMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL}, "", "")
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestOpenAIClient_EmbedEmptyInput(t *testing.T) {
	client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, "", "")
	require.NoError(t, err)

	vectors, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestOpenAIClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "be strict", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, 0.0, req.Temperature)
		assert.Equal(t, "gpt-4o-mini", req.Model)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  SELECT 1  "}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL}, "", "")
	require.NoError(t, err)

	reply, err := client.Generate(context.Background(), "be strict", "question", 0)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", reply)
}

func TestOpenAIClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "api error", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key"}}`, wantErr: "bad key"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: ErrEmptyReply.Error()},
		{name: "blank content", status: http.StatusOK, body: `{"choices":[{"message":{"content":"   "}}]}`, wantErr: ErrEmptyReply.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: server.URL}, "", "")
			require.NoError(t, err)

			_, err = client.Generate(context.Background(), "s", "u", 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{}, "", "")
	assert.Error(t, err)
}
