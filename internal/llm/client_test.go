package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"ouroboros/internal/config"
)

// =============================================================================
// OLLAMA
// =============================================================================

func TestOllamaClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req ollamaChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5-coder", req.Model)
		assert.False(t, req.Stream)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, RoleSystem, req.Messages[0].Role)
		}

		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: RoleAssistant, Content: "pong"},
			Done:    true,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{Endpoint: srv.URL + "/"})
	out, err := c.Complete(context.Background(), []Message{System("be brief"), User("ping")}, "")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, "ollama:qwen2.5-coder", c.Name())
}

func TestOllamaClient_ModelOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: Message{Content: req.Model}})
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{Endpoint: srv.URL})
	out, err := c.Complete(context.Background(), []Message{User("x")}, "llama3")
	require.NoError(t, err)
	assert.Equal(t, "llama3", out)
}

func TestOllamaClient_DefaultRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{Endpoint: srv.URL})
	c.transport.backoff = time.Millisecond

	_, err := c.Complete(context.Background(), []Message{User("x")}, "")
	require.Error(t, err)
	assert.Equal(t, int32(DefaultMaxRetries+1), atomic.LoadInt32(&calls))
}

func TestOllamaClient_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{Endpoint: srv.URL})
	_, err := c.Complete(context.Background(), []Message{User("x")}, "")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

// =============================================================================
// OPENAI
// =============================================================================

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4o"})
	out, err := c.Complete(context.Background(), []Message{User("hi")}, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOpenAIClient_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 3})
	c.transport.backoff = time.Millisecond

	out, err := c.Complete(context.Background(), []Message{User("hi")}, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_RetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 2})
	c.transport.backoff = time.Millisecond

	_, err := c.Complete(context.Background(), []Message{User("hi")}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	c.transport.backoff = time.Millisecond

	_, err := c.Complete(context.Background(), []Message{User("hi")}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_MissingKey(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{})
	_, err := c.Complete(context.Background(), []Message{User("hi")}, "")
	assert.ErrorIs(t, err, ErrAPIKeyMissing)
}

func TestTransport_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	c.transport.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, []Message{User("hi")}, "")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

// =============================================================================
// GEMINI
// =============================================================================

func TestToGenAIContents(t *testing.T) {
	system, contents := toGenAIContents([]Message{
		System("rule one"),
		User("question"),
		{Role: RoleAssistant, Content: "answer"},
		System("rule two"),
	})

	assert.Equal(t, "rule one\n\nrule two", system)
	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), string(contents[0].Role))
	assert.Equal(t, "question", contents[0].Parts[0].Text)
	assert.Equal(t, string(genai.RoleModel), string(contents[1].Role))
}

func TestNewGeminiClient_MissingKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrAPIKeyMissing)
}

// =============================================================================
// FACTORY
// =============================================================================

func TestNewClient(t *testing.T) {
	c, err := NewClient(context.Background(), config.LLMConfig{Provider: "ollama"}, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, c)

	c, err = NewClient(context.Background(), config.LLMConfig{Provider: "openai", APIKey: "k"}, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = NewClient(context.Background(), config.LLMConfig{Provider: "openai"}, time.Second)
	assert.ErrorIs(t, err, ErrAPIKeyMissing)

	_, err = NewClient(context.Background(), config.LLMConfig{Provider: "anthropic"}, time.Second)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestClientFunc(t *testing.T) {
	var c Client = ClientFunc(func(_ context.Context, msgs []Message, model string) (string, error) {
		return model + ":" + msgs[0].Content, nil
	})
	out, err := c.Complete(context.Background(), []Message{User("x")}, "m")
	require.NoError(t, err)
	assert.Equal(t, "m:x", out)
}
