// Package llm is the text-generation capability: an OpenAI-compatible chat
// completion client exposed as Generate(prompt, jsonMode).
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"orgfinder/internal/config"
	"orgfinder/internal/model"
)

// ErrDisabled is returned when no API key is configured
var ErrDisabled = errors.New("llm: text generation is not enabled")

// Generation is the result of one prompt
type Generation struct {
	Text         string
	Thinking     string
	Usage        model.TokenUsage
	FirstTokenMs *float64
	DurationMs   float64
}

// Metrics converts the generation bookkeeping into query metrics
func (g *Generation) Metrics() model.Metrics {
	if g == nil {
		return model.Metrics{}
	}
	m := model.Metrics{LLMMs: g.DurationMs, GenerationMs: g.DurationMs, Tokens: g.Usage}
	if g.FirstTokenMs != nil {
		v := *g.FirstTokenMs
		m.FirstTokenMs = &v
	}
	return m
}

// Generator produces text for a prompt. jsonMode asks the provider for a
// single JSON object.
type Generator interface {
	Generate(ctx context.Context, prompt string, jsonMode bool) (*Generation, error)
	IsEnabled() bool
}

// Client handles OpenAI-compatible API interactions
type Client struct {
	config      *config.LLMConfig
	httpClient  *http.Client
	chunkParser StreamChunkParser
	logger      *zap.Logger
}

// NewClient creates a new OpenAI-compatible client with auto-detection of provider
func NewClient(cfg *config.LLMConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm"))

	var parser StreamChunkParser
	switch {
	case IsReasoningProvider(cfg.APIBase):
		parser = &ReasoningStreamChunkParser{}
		logger.Info("Detected reasoning API provider", zap.String("base", cfg.APIBase))
	case IsOpenAIProvider(cfg.APIBase), IsGroqProvider(cfg.APIBase):
		parser = &OpenAIStreamChunkParser{}
	default:
		parser = &OpenAIStreamChunkParser{}
		logger.Info("Using standard OpenAI format", zap.String("base", cfg.APIBase))
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config:      cfg,
		chunkParser: parser,
		logger:      logger,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// IsEnabled returns whether the client is configured and ready
func (c *Client) IsEnabled() bool {
	return c != nil && c.config.Enabled
}

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *StreamOptions  `json:"stream_options,omitempty"`
}

// StreamOptions asks the provider to report usage on the final chunk
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatMessage represents a single message in the conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat specifies the format of the response
type ResponseFormat struct {
	Type string `json:"type"` // "json_object" or "text"
}

// ChatCompletionResponse represents the API response
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// StreamCallback is called for each chunk in streaming mode
type StreamCallback func(chunk *StreamChunk) error

func (c *Client) applyDefaults(req *ChatCompletionRequest) {
	if req.Model == "" {
		req.Model = c.config.ChatModel
	}
	if req.Temperature == 0 && c.config.ChatTemperature > 0 {
		req.Temperature = c.config.ChatTemperature
	}
	if req.MaxTokens == 0 && c.config.ChatMaxTokens > 0 {
		req.MaxTokens = c.config.ChatMaxTokens
	}
}

func (c *Client) newRequest(ctx context.Context, req ChatCompletionRequest) (*http.Request, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(c.config.APIBase, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))
	return httpReq, nil
}

// ChatCompletion performs a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if !c.IsEnabled() {
		return nil, ErrDisabled
	}
	c.applyDefaults(&req)
	req.Stream = false

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ChatCompletionStream performs a streaming chat completion request
func (c *Client) ChatCompletionStream(ctx context.Context, req ChatCompletionRequest, callback StreamCallback) error {
	if !c.IsEnabled() {
		return ErrDisabled
	}
	c.applyDefaults(&req)
	req.Stream = true
	req.StreamOptions = &StreamOptions{IncludeUsage: true}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read stream: %w", err)
		}

		trimmed := bytes.TrimSpace(line)
		if bytes.HasPrefix(trimmed, []byte("data:")) {
			data := bytes.TrimSpace(bytes.TrimPrefix(trimmed, []byte("data:")))
			if bytes.Equal(data, []byte("[DONE]")) {
				return nil
			}

			chunk, perr := c.chunkParser.ParseChunk(data)
			if perr != nil {
				c.logger.Warn("Failed to parse stream chunk", zap.Error(perr))
			} else if cerr := callback(chunk); cerr != nil {
				return fmt.Errorf("callback error: %w", cerr)
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

// Generate runs one prompt. When streaming is configured the time to the first
// content token is recorded. Token usage is estimated at four characters per
// token when the provider reports none.
func (c *Client) Generate(ctx context.Context, prompt string, jsonMode bool) (*Generation, error) {
	if !c.IsEnabled() {
		return nil, ErrDisabled
	}

	req := ChatCompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: prompt}},
	}
	if jsonMode {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	start := time.Now()
	gen := &Generation{}
	var usage *Usage

	if c.config.Stream {
		var text, thinking strings.Builder
		err := c.ChatCompletionStream(ctx, req, func(chunk *StreamChunk) error {
			if chunk.Content != "" && gen.FirstTokenMs == nil {
				ms := elapsedMs(start)
				gen.FirstTokenMs = &ms
			}
			text.WriteString(chunk.Content)
			thinking.WriteString(chunk.ThinkingContent)
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("streaming error: %w", err)
		}
		gen.Text = text.String()
		gen.Thinking = thinking.String()
	} else {
		resp, err := c.ChatCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no choices in completion response")
		}
		gen.Text = resp.Choices[0].Message.Content
		usage = resp.Usage
	}

	gen.DurationMs = elapsedMs(start)
	gen.Text = strings.TrimSpace(gen.Text)
	if usage != nil && usage.TotalTokens > 0 {
		gen.Usage = model.TokenUsage{
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
			TotalTokens:  usage.TotalTokens,
		}
	} else {
		gen.Usage = EstimateUsage(prompt, gen.Text)
	}

	c.logger.Debug("Generation complete",
		zap.Float64("duration_ms", gen.DurationMs),
		zap.Int("total_tokens", gen.Usage.TotalTokens),
		zap.Bool("estimated", gen.Usage.Estimated))
	return gen, nil
}

// EstimateTokens approximates the token count of text at four characters per token
func EstimateTokens(text string) int {
	return len(text) / 4
}

// EstimateUsage approximates usage for a prompt and its completion
func EstimateUsage(prompt, completion string) model.TokenUsage {
	in, out := EstimateTokens(prompt), EstimateTokens(completion)
	return model.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out, Estimated: true}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var _ Generator = (*Client)(nil)
