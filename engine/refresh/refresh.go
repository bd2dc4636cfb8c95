// Package refresh rescans the data directory for new road versions and
// announces them: validate, mirror into the graph, publish on NATS. Failed
// batches are retried and finally sent to a dead-letter subject.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/pkg/fn"
	"github.com/WessleyAI/roadwise/pkg/metrics"
	"github.com/WessleyAI/roadwise/pkg/natsutil"
	"github.com/WessleyAI/roadwise/pkg/resilience"
	"github.com/nats-io/nats.go"
)

const (
	// DiscoveredSubject carries a Discovery for every batch of new records.
	DiscoveredSubject = "roads.catalog.discovered"
	// DLQSubject receives batches that failed MaxRetries times.
	DLQSubject = "roads.catalog.discovered.dlq"
	// MaxRetries before a batch goes to the DLQ.
	MaxRetries = 3
)

// Discovery announces records appended to the catalog by one scan.
type Discovery struct {
	Records []domain.RoadVersionRecord `json:"records"`
	Roads   []string                   `json:"roads"`
	At      time.Time                  `json:"at"`
}

// Updater appends newly discovered files to a catalog and returns them.
// catalog.Catalog and catalog.Guarded satisfy it.
type Updater interface {
	Update() ([]domain.RoadVersionRecord, error)
}

// Mirror stores records in a secondary store. graph.RoadGraph satisfies it.
type Mirror interface {
	Mirror(ctx context.Context, recs []domain.RoadVersionRecord) error
}

// Deps holds the collaborators of a Refresher. Graph and Conn are optional.
type Deps struct {
	Catalog Updater
	Graph   Mirror
	Conn    *nats.Conn
	Retry   fn.RetryOpts
	// Breaker, when set, guards the graph mirror stage.
	Breaker *resilience.Breaker
	Metrics *metrics.Roadwise
	Logger  *slog.Logger
	Now     func() time.Time
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Records []domain.RoadVersionRecord `json:"records"`
	Error   string                     `json:"error"`
	Retries int                        `json:"retries"`
}

// --- Pipeline Stages ---

// NewValidate returns a stage that drops invalid records with a warning.
// A batch with no valid record fails.
func NewValidate(log *slog.Logger) fn.Stage[[]domain.RoadVersionRecord, []domain.RoadVersionRecord] {
	return func(_ context.Context, recs []domain.RoadVersionRecord) fn.Result[[]domain.RoadVersionRecord] {
		valid := fn.Filter(recs, func(r domain.RoadVersionRecord) bool {
			if err := domain.ValidateRecord(r); err != nil {
				log.Warn("refresh: dropping record", "path", r.Path, "err", err)
				return false
			}
			return true
		})
		if len(valid) == 0 {
			return fn.Err[[]domain.RoadVersionRecord](fmt.Errorf("refresh: no valid records in batch of %d: %w", len(recs), domain.ErrInvalidRecord))
		}
		return fn.Ok(valid)
	}
}

// NewMirror returns a stage that writes the batch to m. A nil m passes the
// batch through.
func NewMirror(m Mirror) fn.Stage[[]domain.RoadVersionRecord, []domain.RoadVersionRecord] {
	return func(ctx context.Context, recs []domain.RoadVersionRecord) fn.Result[[]domain.RoadVersionRecord] {
		if m == nil {
			return fn.Ok(recs)
		}
		if err := m.Mirror(ctx, recs); err != nil {
			return fn.Err[[]domain.RoadVersionRecord](fmt.Errorf("graph mirror: %w", err))
		}
		return fn.Ok(recs)
	}
}

// NewPublish returns a stage that turns the batch into a Discovery and
// publishes it on DiscoveredSubject. A nil nc only builds the event.
func NewPublish(nc *nats.Conn, now func() time.Time) fn.Stage[[]domain.RoadVersionRecord, Discovery] {
	return func(ctx context.Context, recs []domain.RoadVersionRecord) fn.Result[Discovery] {
		d := Discovery{
			Records: recs,
			Roads:   fn.Unique(fn.Map(recs, func(r domain.RoadVersionRecord) string { return r.Road })),
			At:      now().UTC(),
		}
		if nc == nil {
			return fn.Ok(d)
		}
		if err := natsutil.Publish(ctx, nc, DiscoveredSubject, d); err != nil {
			return fn.Err[Discovery](domain.Upstream("nats publish", err))
		}
		return fn.Ok(d)
	}
}

// LoggedTap returns a stage that logs the batch entering stage name.
func LoggedTap(name string, log *slog.Logger) fn.Stage[[]domain.RoadVersionRecord, []domain.RoadVersionRecord] {
	return fn.TapStage(func(_ context.Context, recs []domain.RoadVersionRecord) {
		log.Debug("refresh: stage", "stage", name, "records", len(recs))
	})
}

func retryUpstream(err error) bool { return errors.Is(err, domain.ErrUpstream) }

// NewPipeline constructs validate → mirror → publish with tracing and
// retries around the network stages.
func NewPipeline(deps Deps) fn.Stage[[]domain.RoadVersionRecord, Discovery] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	retry := deps.Retry
	if retry.MaxAttempts == 0 {
		retry = fn.DefaultRetry
	}
	if retry.Retryable == nil {
		retry.Retryable = retryUpstream
	}

	mirror := NewMirror(deps.Graph)
	if deps.Breaker != nil {
		mirror = resilience.BreakerStage(deps.Breaker, mirror)
	}

	validated := fn.Then(LoggedTap("validate", log), fn.TracedStage("refresh.validate", NewValidate(log)))
	mirrored := fn.Then(validated, fn.Then(LoggedTap("mirror", log),
		fn.TracedStage("refresh.mirror", fn.RetryStage(retry, mirror))))
	return fn.Then(mirrored, fn.Then(LoggedTap("publish", log),
		fn.TracedStage("refresh.publish", fn.RetryStage(retry, NewPublish(deps.Conn, now)))))
}

// Refresher runs catalog rescans through the pipeline.
type Refresher struct {
	deps     Deps
	pipeline fn.Stage[[]domain.RoadVersionRecord, Discovery]
	log      *slog.Logger
}

// New creates a Refresher.
func New(deps Deps) *Refresher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Refresher{deps: deps, pipeline: NewPipeline(deps), log: deps.Logger}
}

// Scan runs one catalog update. It returns the zero Discovery when nothing
// new was found. A batch the pipeline rejects is sent to the DLQ.
func (r *Refresher) Scan(ctx context.Context) (Discovery, error) {
	recs, err := r.deps.Catalog.Update()
	if err != nil {
		return Discovery{}, fmt.Errorf("refresh: scan: %w", err)
	}
	if len(recs) == 0 {
		return Discovery{}, nil
	}
	r.deps.Metrics.Discovered(len(recs))
	r.log.Info("refresh: discovered records", "count", len(recs))

	d, err := r.pipeline(ctx, recs).Unwrap()
	if err != nil {
		r.deadLetter(ctx, recs, err, MaxRetries)
		return Discovery{}, fmt.Errorf("refresh: pipeline: %w", err)
	}
	return d, nil
}

// Run scans every interval until ctx is done. Scan errors are logged and
// the loop continues.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := r.Scan(ctx); err != nil {
			r.log.Error("refresh: scan failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Refresher) deadLetter(ctx context.Context, recs []domain.RoadVersionRecord, cause error, retries int) {
	if r.deps.Conn == nil {
		return
	}
	msg := dlqMessage{Records: recs, Error: cause.Error(), Retries: retries}
	if err := natsutil.Publish(ctx, r.deps.Conn, DLQSubject, msg); err != nil {
		r.log.Error("refresh: DLQ publish failed", "err", err)
	}
}
