package refresh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/roadwise/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// StatusSubject answers catalog status requests from API replicas.
const StatusSubject = "roads.catalog.status"

// StatusRequest asks a replica for its Status.
type StatusRequest struct{}

// Status describes what one replica currently serves.
type Status struct {
	Instance string `json:"instance"`
	Records  int    `json:"records"`
	Roads    int    `json:"roads"`
	Indexed  bool   `json:"indexed"`
}

// ServeStatus replies to StatusSubject requests with whatever status
// returns at the time of the request.
func ServeStatus(nc *nats.Conn, status func() Status, log *slog.Logger) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return natsutil.SubscribeMsg(nc, StatusSubject, log, func(_ context.Context, _ StatusRequest, msg *nats.Msg) {
		if err := natsutil.Respond(msg, status()); err != nil {
			log.Warn("refresh: status reply failed", "err", err)
		}
	})
}

// QueryStatus asks one replica for its Status.
func QueryStatus(ctx context.Context, nc *nats.Conn) (Status, error) {
	st, err := natsutil.Request[StatusRequest, Status](ctx, nc, StatusSubject, StatusRequest{})
	if err != nil {
		return Status{}, fmt.Errorf("refresh: status: %w", err)
	}
	return st, nil
}

// WatchDiscoveries calls fn for every announced Discovery. Malformed events
// are dropped.
func WatchDiscoveries(nc *nats.Conn, fn func(context.Context, Discovery)) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, DiscoveredSubject, fn)
}
