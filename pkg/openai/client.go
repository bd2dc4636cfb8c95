// Package openai is a minimal client for OpenAI-compatible embedding and
// chat completion endpoints, written directly against net/http.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/WessleyAI/roadwise/pkg/llm"
)

// Defaults.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultEmbedModel = "text-embedding-ada-002"
	DefaultChatModel  = "gpt-3.5-turbo"
)

// Client implements vecindex.Embedder and llm.Chatter.
type Client struct {
	apiKey      string
	baseURL     string
	embedModel  string
	chatModel   string
	temperature float64
	maxTokens   int
	http        *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithEmbedModel sets the embedding model.
func WithEmbedModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.embedModel = m
		}
	}
}

// WithChatModel sets the chat model.
func WithChatModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.chatModel = m
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option { return func(c *Client) { c.temperature = t } }

// WithMaxTokens caps the reply length. Zero leaves it to the server.
func WithMaxTokens(n int) Option { return func(c *Client) { c.maxTokens = n } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		embedModel:  DefaultEmbedModel,
		chatModel:   DefaultChatModel,
		temperature: 0.3,
		http:        &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the chat model name.
func (c *Client) Model() string { return c.chatModel }

// EmbedModel returns the embedding model name.
func (c *Client) EmbedModel() string { return c.embedModel }

// APIError is the error object OpenAI returns in failed responses.
type APIError struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (%s, status %d): %s", e.Type, e.Status, e.Message)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embeddingResponse
	if err := c.post(ctx, "/embeddings", embeddingRequest{Model: c.embedModel, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *Client) chatRequest(msgs []llm.Message, stream bool) chatRequest {
	return chatRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      stream,
	}
}

// Chat returns the first choice of a chat completion.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", c.chatRequest(msgs, false), &resp); err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices returned")
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("openai chat: %w", llm.ErrEmptyResponse)
	}
	return answer, nil
}

// Stream reads the server-sent event stream of a chat completion and calls
// onToken for each content delta.
func (c *Client) Stream(ctx context.Context, msgs []llm.Message, onToken func(string)) error {
	resp, err := c.do(ctx, "/chat/completions", c.chatRequest(msgs, true))
	if err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}
		var env errorEnvelope
		if json.Unmarshal([]byte(data), &env) == nil && env.Error != nil {
			env.Error.Status = resp.StatusCode
			return fmt.Errorf("openai stream: %w", env.Error)
		}
		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				onToken(ch.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("openai stream: read: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	resp, err := c.do(ctx, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	return nil
}

// do sends the request and converts non-2xx responses into *APIError. On
// success the caller owns the body.
func (c *Client) do(ctx context.Context, path string, in any) (*http.Response, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error != nil {
		env.Error.Status = resp.StatusCode
		return nil, env.Error
	}
	return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}
