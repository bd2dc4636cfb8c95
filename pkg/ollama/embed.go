// Package ollama talks to an Ollama server over its HTTP API for embeddings
// and chat completions.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultURL is the address of a local Ollama server.
const DefaultURL = "http://localhost:11434"

// Models used when none is configured.
const (
	DefaultEmbedModel = "nomic-embed-text"
	DefaultChatModel  = "llama3.2"
)

// EmbedClient embeds text batches with Ollama's /api/embed endpoint. It
// satisfies vecindex.Embedder.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewEmbedClient creates an Ollama embedding client.
func NewEmbedClient(baseURL, model string) *EmbedClient {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultEmbedModel
	}
	return &EmbedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Model returns the embedding model name.
func (c *EmbedClient) Model() string { return c.model }

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed returns one vector per text, in input order.
func (c *EmbedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var result embedResp
	if err := postJSON(ctx, c.client, c.baseURL+"/api/embed", embedReq{Model: c.model, Input: texts}, &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		v := make([]float32, len(e))
		for j, x := range e {
			v[j] = float32(x)
		}
		out[i] = v
	}
	return out, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func newRequest(ctx context.Context, url string, in any) (*http.Request, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	req, err := newRequest(ctx, url, in)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
