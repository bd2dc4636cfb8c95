package refresh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/roadwise/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// Handler applies a Discovery on the consuming side.
type Handler func(ctx context.Context, d Discovery) error

// StartConsumer subscribes to DiscoveredSubject and runs h for every event.
// A failing event is republished with an incremented retry count and goes
// to the DLQ after MaxRetries.
func StartConsumer(nc *nats.Conn, h Handler, log *slog.Logger) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return natsutil.SubscribeMsg(nc, DiscoveredSubject, log, func(ctx context.Context, d Discovery, msg *nats.Msg) {
		err := h(ctx, d)
		if err == nil {
			log.Info("refresh: applied discovery", "records", len(d.Records), "roads", len(d.Roads))
			return
		}

		retries := natsutil.Retries(msg) + 1
		log.Error("refresh: apply failed", "err", err, "retry", retries)
		if retries >= MaxRetries {
			dlq := dlqMessage{Records: d.Records, Error: err.Error(), Retries: retries}
			if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
				log.Error("refresh: DLQ publish failed", "err", err)
			}
			return
		}
		if err := natsutil.Republish(ctx, nc, DiscoveredSubject, msg.Data, retries); err != nil {
			log.Error("refresh: retry publish failed", "err", err)
		}
	})
}

// Catalog is the replica-side catalog a Syncer refreshes.
type Catalog interface {
	Updater
	RoadNames() []string
}

// Syncer brings a replica's catalog up to date after a Discovery and calls
// Rebuild when the set of road names grew.
type Syncer struct {
	Catalog Catalog
	Rebuild func(ctx context.Context, roads []string) error
	Logger  *slog.Logger
}

// Apply implements Handler.
func (s *Syncer) Apply(ctx context.Context, d Discovery) error {
	before := make(map[string]bool)
	for _, n := range s.Catalog.RoadNames() {
		before[n] = true
	}
	if _, err := s.Catalog.Update(); err != nil {
		return fmt.Errorf("refresh: sync catalog: %w", err)
	}
	names := s.Catalog.RoadNames()

	var added []string
	for _, n := range names {
		if !before[n] {
			added = append(added, n)
		}
	}
	if len(added) == 0 || s.Rebuild == nil {
		return nil
	}
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("refresh: rebuilding index", "new_roads", added, "total", len(names))
	if err := s.Rebuild(ctx, names); err != nil {
		return fmt.Errorf("refresh: rebuild index: %w", err)
	}
	return nil
}
