package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/WessleyAI/roadwise/pkg/llm"
)

// ChatClient completes conversations with Ollama's /api/chat endpoint. It
// satisfies llm.Chatter.
type ChatClient struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

// NewChatClient creates an Ollama chat client. Streaming responses can be
// long, so the HTTP client carries no overall timeout; callers bound requests
// through the context.
func NewChatClient(baseURL, model string, temperature float64) *ChatClient {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		client:      &http.Client{},
	}
}

// Model returns the chat model name.
func (c *ChatClient) Model() string { return c.model }

type chatReq struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func (c *ChatClient) request(msgs []llm.Message, stream bool) chatReq {
	return chatReq{
		Model:    c.model,
		Messages: msgs,
		Stream:   stream,
		Options:  chatOptions{Temperature: c.temperature},
	}
}

// Chat returns the full assistant reply.
func (c *ChatClient) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	var result chatChunk
	if err := postJSON(ctx, c.client, c.baseURL+"/api/chat", c.request(msgs, false), &result); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", result.Error)
	}
	answer := strings.TrimSpace(result.Message.Content)
	if answer == "" {
		return "", fmt.Errorf("ollama chat: %w", llm.ErrEmptyResponse)
	}
	return answer, nil
}

// Stream reads the NDJSON response and calls onToken for every non-empty
// content delta.
func (c *ChatClient) Stream(ctx context.Context, msgs []llm.Message, onToken func(string)) error {
	req, err := newRequest(ctx, c.baseURL+"/api/chat", c.request(msgs, true))
	if err != nil {
		return fmt.Errorf("ollama stream: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama stream: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("ollama stream: %w", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama stream: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			onToken(chunk.Message.Content)
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama stream: read: %w", err)
	}
	return nil
}
