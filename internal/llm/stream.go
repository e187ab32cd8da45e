package llm

import (
	"encoding/json"
	"strings"
)

// StreamChunkParser is the interface for provider-specific chunk parsing
type StreamChunkParser interface {
	ParseChunk(data []byte) (*StreamChunk, error)
}

// StreamChunk represents a generic streaming response chunk
type StreamChunk struct {
	Content string

	// Reasoning content emitted by thinking models before the answer
	ThinkingContent string

	Role string
	Done bool

	// Usage is only reported on the final chunk by some providers
	Usage *Usage
}

// Usage is the provider-reported token usage
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type rawChunk struct {
	Choices []struct {
		Delta struct {
			Role             string  `json:"role,omitempty"`
			Content          string  `json:"content,omitempty"`
			ReasoningContent *string `json:"reasoning_content,omitempty"`
			Reasoning        *string `json:"reasoning,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
	XGroq *struct {
		Usage *Usage `json:"usage,omitempty"`
	} `json:"x_groq,omitempty"`
}

// OpenAIStreamChunkParser parses standard OpenAI-format streaming chunks
type OpenAIStreamChunkParser struct{}

// ParseChunk converts a standard OpenAI chunk to a generic StreamChunk
func (p *OpenAIStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	var raw rawChunk
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	chunk := &StreamChunk{Usage: raw.Usage}
	if chunk.Usage == nil && raw.XGroq != nil {
		chunk.Usage = raw.XGroq.Usage
	}
	if len(raw.Choices) > 0 {
		delta := raw.Choices[0].Delta
		chunk.Role = delta.Role
		chunk.Content = delta.Content
		chunk.Done = raw.Choices[0].FinishReason != ""
	}
	return chunk, nil
}

// ReasoningStreamChunkParser parses chunks of providers that stream the
// model's reasoning separately (NVIDIA, DeepSeek, Groq reasoning models)
type ReasoningStreamChunkParser struct{}

// ParseChunk converts a reasoning-aware chunk to a generic StreamChunk
func (p *ReasoningStreamChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	var raw rawChunk
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	chunk := &StreamChunk{Usage: raw.Usage}
	if chunk.Usage == nil && raw.XGroq != nil {
		chunk.Usage = raw.XGroq.Usage
	}
	if len(raw.Choices) > 0 {
		delta := raw.Choices[0].Delta
		chunk.Role = delta.Role
		chunk.Content = delta.Content
		switch {
		case delta.ReasoningContent != nil:
			chunk.ThinkingContent = *delta.ReasoningContent
		case delta.Reasoning != nil:
			chunk.ThinkingContent = *delta.Reasoning
		}
		chunk.Done = raw.Choices[0].FinishReason != ""
	}
	return chunk, nil
}

// IsReasoningProvider checks if the base URL belongs to a provider that
// streams reasoning content
func IsReasoningProvider(baseURL string) bool {
	return baseURL == "https://integrate.api.nvidia.com/v1" || strings.Contains(baseURL, "api.deepseek.com")
}

// IsOpenAIProvider checks if the base URL is official OpenAI API
func IsOpenAIProvider(baseURL string) bool {
	return strings.Contains(baseURL, "api.openai.com")
}

// IsGroqProvider checks if the base URL is the Groq OpenAI-compatible API
func IsGroqProvider(baseURL string) bool {
	return strings.Contains(baseURL, "api.groq.com")
}
