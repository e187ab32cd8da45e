package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"orgfinder/internal/config"
)

func newTestClient(t *testing.T, url string, stream bool) *Client {
	return NewClient(&config.LLMConfig{
		APIKey:    "test-key",
		APIBase:   url,
		ChatModel: "test-model",
		Stream:    stream,
		Timeout:   5,
		Enabled:   true,
	}, zaptest.NewLogger(t))
}

func TestGenerate(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":" {\"service_keywords\":\"food\"} "},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`)
	}))
	defer srv.Close()

	gen, err := newTestClient(t, srv.URL, false).Generate(context.Background(), "extract", true)
	require.NoError(t, err)

	assert.Equal(t, "test-model", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.False(t, got.Stream)

	assert.Equal(t, `{"service_keywords":"food"}`, gen.Text)
	assert.Equal(t, 17, gen.Usage.TotalTokens)
	assert.False(t, gen.Usage.Estimated)
	assert.Nil(t, gen.FirstTokenMs)
}

func TestGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"MATCH (o)\"}}]}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" RETURN o\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	prompt := "write a query for libraries"
	gen, err := newTestClient(t, srv.URL, true).Generate(context.Background(), prompt, false)
	require.NoError(t, err)

	assert.Equal(t, "MATCH (o) RETURN o", gen.Text)
	require.NotNil(t, gen.FirstTokenMs)
	assert.GreaterOrEqual(t, gen.DurationMs, *gen.FirstTokenMs)
	assert.True(t, gen.Usage.Estimated)
	assert.Equal(t, len(prompt)/4, gen.Usage.InputTokens)
	assert.Equal(t, len("MATCH (o) RETURN o")/4, gen.Usage.OutputTokens)
}

func TestGenerateStreamReportedUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":1,\"total_tokens\":4}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	gen, err := newTestClient(t, srv.URL, true).Generate(context.Background(), "hi", false)
	require.NoError(t, err)
	assert.Equal(t, 4, gen.Usage.TotalTokens)
	assert.False(t, gen.Usage.Estimated)
}

func TestGenerateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, false).Generate(context.Background(), "x", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = newTestClient(t, srv.URL, true).Generate(context.Background(), "x", false)
	require.Error(t, err)

	disabled := NewClient(&config.LLMConfig{APIBase: srv.URL}, nil)
	assert.False(t, disabled.IsEnabled())
	_, err = disabled.Generate(context.Background(), "x", false)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestReasoningParser(t *testing.T) {
	p := &ReasoningStreamChunkParser{}
	chunk, err := p.ParseChunk([]byte(`{"choices":[{"delta":{"reasoning_content":"thinking","content":""}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "thinking", chunk.ThinkingContent)
	assert.False(t, chunk.Done)

	assert.True(t, IsReasoningProvider("https://integrate.api.nvidia.com/v1"))
	assert.True(t, IsGroqProvider("https://api.groq.com/openai/v1"))
	assert.False(t, IsOpenAIProvider("https://api.groq.com/openai/v1"))
}

func TestGenerationMetrics(t *testing.T) {
	ft := 12.5
	g := &Generation{DurationMs: 40, FirstTokenMs: &ft, Usage: EstimateUsage("abcdefgh", "abcd")}
	m := g.Metrics()
	assert.Equal(t, 40.0, m.LLMMs)
	require.NotNil(t, m.FirstTokenMs)
	assert.Equal(t, 12.5, *m.FirstTokenMs)
	assert.Equal(t, 3, m.Tokens.TotalTokens)

	var nilGen *Generation
	assert.Equal(t, 0.0, nilGen.Metrics().LLMMs)
}
