// Package rag answers traffic questions. It resolves the road names a
// question refers to, summarizes their traffic data, places the summaries in
// the system prompt and asks the chat model.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/roadctx"
	"github.com/WessleyAI/roadwise/pkg/fn"
	"github.com/WessleyAI/roadwise/pkg/llm"
	"github.com/WessleyAI/roadwise/pkg/metrics"
)

// Resolver maps a question to road names. resolve.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]string, error)
}

// ContextBuilder summarizes roads. roadctx.Builder satisfies it.
type ContextBuilder interface {
	Build(ctx context.Context, roads []string, versions bool) (roadctx.Context, error)
}

// Options configures the pipeline.
type Options struct {
	SystemPrompt   string
	HistoryTurns   int
	ResolveTimeout time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		SystemPrompt:   defaultSystemPrompt,
		HistoryTurns:   6,
		ResolveTimeout: 5 * time.Second,
	}
}

const defaultSystemPrompt = `You are Roadwise, a road traffic assistant.
Answer questions about traffic speeds, travel times and road segments using the
known data included below when it is relevant. If the data does not cover the
question, say so instead of guessing. Speeds are in km/h and distances in km.`

// Service is the question pipeline.
type Service struct {
	resolver Resolver
	builder  ContextBuilder
	chat     llm.Chatter
	opts     Options
	metrics  *metrics.Roadwise
	logger   *slog.Logger
}

// New creates a Service. m may be nil.
func New(resolver Resolver, builder ContextBuilder, chat llm.Chatter, opts Options, m *metrics.Roadwise, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &Service{resolver: resolver, builder: builder, chat: chat, opts: opts, metrics: m, logger: logger}
}

// Question is a user question plus the conversation so far.
type Question struct {
	domain.Question
	History []llm.Message `json:"history,omitempty"`
}

// Prepared is a question with its road context, ready for the chat model.
type Prepared struct {
	Question Question
	Roads    []string
	Context  roadctx.Context
	Prompt   string
	Messages []llm.Message
	// Degraded is set when road resolution failed and the question goes to
	// the model without road data.
	Degraded bool
}

// Answer is the pipeline output.
type Answer struct {
	Text      string          `json:"text"`
	Roads     []string        `json:"roads"`
	Summaries roadctx.Context `json:"summaries"`
	Model     string          `json:"model"`
}

type resolved struct {
	roads    []string
	degraded bool
}

// Prepare validates q, resolves its roads and builds the messages for the
// chat model. Resolution failures caused by an unavailable upstream or an
// index that is not built yet degrade to "no roads"; other failures are
// returned.
func (s *Service) Prepare(ctx context.Context, q Question) (*Prepared, error) {
	if err := domain.ValidateQuestion(q.Question); err != nil {
		return nil, err
	}
	q.Text = strings.TrimSpace(q.Text)

	resolveStage := fn.TracedStage("rag.resolve", func(ctx context.Context, text string) fn.Result[resolved] {
		return s.resolve(ctx, text)
	})
	res, err := resolveStage(ctx, q.Text).Unwrap()
	if err != nil {
		return nil, err
	}
	s.metrics.Resolved(len(res.roads), res.degraded)

	contextStage := fn.TracedStage("rag.context", func(ctx context.Context, roads []string) fn.Result[roadctx.Context] {
		c, err := s.builder.Build(ctx, roads, q.Versions)
		if err != nil {
			return fn.Err[roadctx.Context](fmt.Errorf("rag: road context: %w", err))
		}
		return fn.Ok(c)
	})
	c := roadctx.Context{}
	if len(res.roads) > 0 {
		out, err := contextStage(ctx, res.roads).Unwrap()
		if err != nil {
			return nil, err
		}
		c = out
		s.metrics.Summaries(c.Len(), countNoData(c))
	}

	p := &Prepared{Question: q, Roads: res.roads, Context: c, Degraded: res.degraded}
	p.Prompt = s.opts.SystemPrompt
	if len(res.roads) > 0 {
		p.Prompt += c.Render(res.roads)
	}
	p.Messages = s.messages(p.Prompt, q)
	s.logger.Info("rag question prepared",
		"question_len", len(q.Text),
		"roads", len(res.roads),
		"summaries", c.Len(),
		"degraded", res.degraded)
	return p, nil
}

func (s *Service) resolve(ctx context.Context, text string) fn.Result[resolved] {
	if s.opts.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ResolveTimeout)
		defer cancel()
	}
	roads, err := s.resolver.Resolve(ctx, text)
	switch {
	case err == nil:
		return fn.Ok(resolved{roads: roads})
	case errors.Is(err, domain.ErrUpstream), errors.Is(err, domain.ErrNotInitialized):
		s.logger.Warn("rag: road resolution failed, continuing without road data", "err", err)
		return fn.Ok(resolved{degraded: true})
	default:
		return fn.Err[resolved](fmt.Errorf("rag: resolve: %w", err))
	}
}

func (s *Service) messages(prompt string, q Question) []llm.Message {
	history := llm.Tail(q.History, s.opts.HistoryTurns)
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: prompt})
	for _, h := range history {
		if h.Role == llm.RoleSystem || strings.TrimSpace(h.Content) == "" {
			continue
		}
		msgs = append(msgs, h)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: q.Text})
}

func countNoData(c roadctx.Context) int {
	n := 0
	for _, k := range c.Keys {
		if c.Summaries[k].NoData {
			n++
		}
	}
	return n
}

// Ask runs the whole pipeline and returns the model's answer.
func (s *Service) Ask(ctx context.Context, q Question) (*Answer, error) {
	start := time.Now()
	ans, err := s.ask(ctx, q)
	s.metrics.Question(start, domain.ErrorKind(err))
	return ans, err
}

func (s *Service) ask(ctx context.Context, q Question) (*Answer, error) {
	p, err := s.Prepare(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.Complete(ctx, p)
}

// Complete sends a prepared question to the chat model.
func (s *Service) Complete(ctx context.Context, p *Prepared) (*Answer, error) {
	start := time.Now()
	text, err := s.chat.Chat(ctx, p.Messages)
	s.metrics.Chat(start, err)
	if err != nil {
		return nil, fmt.Errorf("rag: chat: %w", domain.Upstream("chat", err))
	}
	return s.answer(p, text), nil
}

// Stream sends a prepared question to the chat model and calls onToken for
// each streamed piece of the reply. The returned Answer holds the full text.
func (s *Service) Stream(ctx context.Context, p *Prepared, onToken func(string)) (*Answer, error) {
	start := time.Now()
	var b strings.Builder
	err := s.chat.Stream(ctx, p.Messages, func(tok string) {
		b.WriteString(tok)
		onToken(tok)
	})
	s.metrics.Chat(start, err)
	if err != nil {
		err = fmt.Errorf("rag: stream: %w", domain.Upstream("chat", err))
	}
	s.metrics.Question(start, domain.ErrorKind(err))
	if err != nil {
		return nil, err
	}
	return s.answer(p, strings.TrimSpace(b.String())), nil
}

func (s *Service) answer(p *Prepared, text string) *Answer {
	return &Answer{
		Text:      text,
		Roads:     p.Roads,
		Summaries: p.Context,
		Model:     s.chat.Model(),
	}
}
