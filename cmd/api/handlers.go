package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/WessleyAI/roadwise/engine/app"
	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/rag"
	"github.com/WessleyAI/roadwise/engine/roadctx"
	"github.com/WessleyAI/roadwise/pkg/llm"
	"github.com/WessleyAI/roadwise/pkg/mid"
	"github.com/WessleyAI/roadwise/pkg/resilience"
)

const maxBodyBytes = 1 << 20

type server struct {
	app    *app.App
	logger *slog.Logger
}

func newServer(a *app.App, logger *slog.Logger) *server {
	return &server{app: a, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/roads", s.handleRoads)
	mux.HandleFunc("GET /api/roads/{name}/versions", s.handleVersions)
	mux.HandleFunc("GET /api/roads/{name}/summary", s.handleSummary)
	mux.HandleFunc("POST /api/resolve", s.handleResolve)
	// Both chat routes draw from one bucket.
	chatLimit := mid.RateLimit(resilience.NewLimiter(resilience.LimiterOpts{
		Rate:  s.app.Config.HTTP.ChatRatePerSec,
		Burst: s.app.Config.HTTP.ChatBurst,
	}))
	mux.Handle("POST /api/chat", chatLimit(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /api/chat/stream", chatLimit(http.HandlerFunc(s.handleChatStream)))
	mux.Handle("GET /metrics", s.app.Registry.Handler())

	return mid.Chain(mux,
		mid.Recover(s.logger),
		mid.RequestID(),
		mid.OTel("roadwise-api"),
		mid.Logger(s.logger),
		mid.Metrics(s.app.Registry),
		mid.CORS(s.app.Config.HTTP.CORSOrigin),
		mid.MaxBody(maxBodyBytes),
	)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps engine errors to HTTP statuses. Upstream failures get a
// generic message; their cause is only logged.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid input"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, domain.ErrUpstream):
		s.logger.Error("upstream failure", "err", err, "path", r.URL.Path, "request_id", mid.RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "could not process the request, please try again later"})
	default:
		s.logger.Error("request failed", "err", err, "path", r.URL.Path, "request_id", mid.RequestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

// --- Handlers ---

type healthResponse struct {
	Status  string `json:"status"`
	Records int    `json:"records"`
	Roads   int    `json:"roads"`
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Records: s.app.Catalog.Len(),
		Roads:   len(s.app.Catalog.RoadNames()),
	})
}

type roadEntry struct {
	Name     string   `json:"name"`
	Versions []string `json:"versions"`
}

// handleRoads lists roads with their version labels, latest first. ?q=
// filters by name substring.
func (s *server) handleRoads(w http.ResponseWriter, r *http.Request) {
	var recs []domain.RoadVersionRecord
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		recs = s.app.Catalog.FindVersions(q)
	} else {
		recs = s.app.Catalog.Records()
	}

	var out []roadEntry
	pos := make(map[string]int)
	for _, rec := range roadctx.SortVersions(recs) {
		i, ok := pos[rec.Road]
		if !ok {
			i = len(out)
			pos[rec.Road] = i
			out = append(out, roadEntry{Name: rec.Road})
		}
		out[i].Versions = append(out[i].Versions, rec.Version)
	}
	if out == nil {
		out = []roadEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roads": out})
}

func (s *server) handleVersions(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	recs := roadctx.SortVersions(s.app.Catalog.FindVersions(name))
	if len(recs) == 0 {
		s.writeError(w, r, fmt.Errorf("road %q: %w", name, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"road": name, "versions": recs})
}

type summaryResponse struct {
	Road    string            `json:"road"`
	Context roadctx.Context   `json:"context"`
	Text    map[string]string `json:"text"`
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	versions, _ := strconv.ParseBool(r.URL.Query().Get("versions"))
	c, err := s.app.Builder.Build(r.Context(), []string{name}, versions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if c.Len() == 0 {
		s.writeError(w, r, fmt.Errorf("road %q: %w", name, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Road: name, Context: c, Text: c.Texts()})
}

// ResolveRequest is the JSON body for POST /api/resolve.
type ResolveRequest struct {
	Query string `json:"query"`
}

func (s *server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "query is required"})
		return
	}
	roads, err := s.app.Resolver.Resolve(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if roads == nil {
		roads = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roads": roads})
}

// ChatRequest is the JSON body for POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	Question string        `json:"question"`
	Versions bool          `json:"versions,omitempty"`
	History  []llm.Message `json:"history,omitempty"`
}

func (req ChatRequest) question() rag.Question {
	return rag.Question{
		Question: domain.Question{Text: req.Question, Versions: req.Versions},
		History:  req.History,
	}
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Answer  string            `json:"answer"`
	Roads   []string          `json:"roads"`
	Context map[string]string `json:"context"`
	Model   string            `json:"model"`
}

func (s *server) readChat(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return req, false
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "question is required"})
		return req, false
	}
	return req, true
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChat(w, r)
	if !ok {
		return
	}
	ans, err := s.app.RAG.Ask(r.Context(), req.question())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	roads := ans.Roads
	if roads == nil {
		roads = []string{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Answer:  ans.Text,
		Roads:   roads,
		Context: ans.Summaries.Texts(),
		Model:   ans.Model,
	})
}

type sourcesEvent struct {
	Roads   []string          `json:"roads"`
	Context map[string]string `json:"context"`
}

// handleChatStream answers over server-sent events: one "sources" event,
// then "token" events, then "done" or "error".
func (s *server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChat(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming not supported"})
		return
	}

	p, err := s.app.RAG.Prepare(r.Context(), req.question())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(event string, v any) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	roads := p.Roads
	if roads == nil {
		roads = []string{}
	}
	send("sources", sourcesEvent{Roads: roads, Context: p.Context.Texts()})

	ans, err := s.app.RAG.Stream(r.Context(), p, func(tok string) {
		send("token", map[string]string{"token": tok})
	})
	if err != nil {
		s.logger.Error("chat stream failed", "err", err, "request_id", mid.RequestIDFrom(r.Context()))
		send("error", errorBody{Error: "could not process the request, please try again later"})
		return
	}
	send("done", map[string]string{"model": ans.Model})
}
