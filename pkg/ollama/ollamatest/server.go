// Package ollamatest runs a fake Ollama server for tests. Embeddings are
// hashed bags of lower-cased words, so texts sharing words score higher;
// chat replies are fixed.
package ollamatest

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"unicode"
)

// Dim is the embedding size.
const Dim = 64

// Server is a fake Ollama endpoint.
type Server struct {
	*httptest.Server
	// Reply is returned by /api/chat and streamed word by word.
	Reply string
	// FailEmbed makes /api/embed answer 503.
	FailEmbed atomic.Bool

	EmbedCalls atomic.Int64
	ChatCalls  atomic.Int64
	// LastSystem is the system prompt of the latest chat request.
	LastSystem atomic.Value
}

// NewServer starts a server. Close it with Close.
func NewServer(reply string) *Server {
	s := &Server{Reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/embed", s.embed)
	mux.HandleFunc("POST /api/chat", s.chat)
	s.Server = httptest.NewServer(mux)
	return s
}

// Vector returns the embedding the server produces for text.
func Vector(text string) []float32 {
	v := make([]float64, Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%Dim]++
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, Dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

func (s *Server) embed(w http.ResponseWriter, r *http.Request) {
	s.EmbedCalls.Add(1)
	if s.FailEmbed.Load() {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out := make([][]float32, len(req.Input))
	for i, t := range req.Input {
		out[i] = Vector(t)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": out})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	s.ChatCalls.Add(1)
	var req struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, m := range req.Messages {
		if m.Role == "system" {
			s.LastSystem.Store(m.Content)
		}
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	if !req.Stream {
		json.NewEncoder(w).Encode(map[string]any{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": s.Reply},
			"done":    true,
		})
		return
	}
	enc := json.NewEncoder(w)
	for i, word := range strings.Fields(s.Reply) {
		if i > 0 {
			word = " " + word
		}
		enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": word}, "done": false})
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
}

// System returns the latest system prompt seen, or "".
func (s *Server) System() string {
	v, _ := s.LastSystem.Load().(string)
	return v
}
