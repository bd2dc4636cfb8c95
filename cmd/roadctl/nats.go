package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/WessleyAI/roadwise/engine/app"
	"github.com/WessleyAI/roadwise/engine/refresh"
	"github.com/spf13/cobra"
)

var errNATSDisabled = errors.New("nats is not enabled (set nats.enabled)")

// withNATS opens the engine with services and fails when NATS is off.
func withNATS(opts *options, run func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := opts.open(cmd, app.Options{Services: true}, false, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.NATS == nil {
			return errNATSDisabled
		}
		return run(cmd, a)
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Ask a running API replica what it serves",
		Args:  cobra.NoArgs,
		RunE: withNATS(opts, func(cmd *cobra.Command, a *app.App) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, err := refresh.QueryStatus(ctx, a.NATS)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "instance: %s\nrecords:  %d\nroads:    %d\nindexed:  %t\n",
				st.Instance, st.Records, st.Roads, st.Indexed)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for a reply")
	return cmd
}

func newWatchCmd(opts *options) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print road versions as the refresh service announces them",
		Args:  cobra.NoArgs,
		RunE: withNATS(opts, func(cmd *cobra.Command, a *app.App) error {
			events := make(chan refresh.Discovery, 16)
			sub, err := refresh.WatchDiscoveries(a.NATS, func(_ context.Context, d refresh.Discovery) {
				select {
				case events <- d:
				default:
				}
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()
			if err := a.NATS.Flush(); err != nil {
				return err
			}
			return watchDiscoveries(cmd.Context(), events, count, cmd.OutOrStdout())
		}),
	}
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many announcements (0 waits until interrupted)")
	return cmd
}

// watchDiscoveries prints events until ctx ends or count events arrived.
func watchDiscoveries(ctx context.Context, events <-chan refresh.Discovery, count int, w io.Writer) error {
	for seen := 0; count <= 0 || seen < count; seen++ {
		select {
		case <-ctx.Done():
			return nil
		case d := <-events:
			fmt.Fprintf(w, "%s\t%d new records\t%s\n", d.At.Format(time.RFC3339), len(d.Records), strings.Join(d.Roads, ", "))
		}
	}
	return nil
}
