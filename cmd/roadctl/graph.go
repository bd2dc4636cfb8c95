package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/WessleyAI/roadwise/engine/app"
	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/graph"
	"github.com/spf13/cobra"
)

const pageSize = 500

var errGraphDisabled = errors.New("neo4j is not enabled (set neo4j.enabled)")

// graphStore is the part of graph.RoadGraph the graph subcommands use.
type graphStore interface {
	Mirror(ctx context.Context, recs []domain.RoadVersionRecord) error
	Roads(ctx context.Context, offset, limit int) ([]graph.Road, error)
	RemoveRoad(ctx context.Context, name string) error
	Counts(ctx context.Context) (roads, versions int64, err error)
}

func newGraphCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Maintain the Neo4j mirror of the catalog",
	}

	withGraph := func(run func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd, app.Options{Services: true}, false, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Graph == nil {
				return errGraphDisabled
			}
			return run(cmd, a)
		}
	}

	var dryRun bool
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete road nodes whose files are gone from the data directory",
		Args:  cobra.NoArgs,
		RunE: withGraph(func(cmd *cobra.Command, a *app.App) error {
			n, err := pruneRoads(cmd.Context(), a.Graph, a.Catalog.RoadNames(), dryRun, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d orphaned roads\n", n)
			return nil
		}),
	}
	prune.Flags().BoolVar(&dryRun, "dry-run", false, "list orphaned roads without deleting them")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "sync",
			Short: "Mirror every catalog record into Neo4j",
			Args:  cobra.NoArgs,
			RunE: withGraph(func(cmd *cobra.Command, a *app.App) error {
				return syncGraph(cmd.Context(), a.Graph, a.Catalog.Records(), cmd.OutOrStdout())
			}),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print road and version node counts",
			Args:  cobra.NoArgs,
			RunE: withGraph(func(cmd *cobra.Command, a *app.App) error {
				return printCounts(cmd.Context(), a.Graph, cmd.OutOrStdout())
			}),
		},
		prune,
	)
	return cmd
}

func syncGraph(ctx context.Context, g graphStore, recs []domain.RoadVersionRecord, w io.Writer) error {
	if err := g.Mirror(ctx, recs); err != nil {
		return err
	}
	fmt.Fprintf(w, "mirrored %d records\n", len(recs))
	return printCounts(ctx, g, w)
}

func printCounts(ctx context.Context, g graphStore, w io.Writer) error {
	roads, versions, err := g.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "roads: %d\nversions: %d\n", roads, versions)
	return nil
}

// pruneRoads removes graph roads missing from known and returns how many
// were found.
func pruneRoads(ctx context.Context, g graphStore, known []string, dryRun bool, w io.Writer) (int, error) {
	keep := make(map[string]bool, len(known))
	for _, name := range known {
		keep[name] = true
	}

	var orphans []string
	for offset := 0; ; offset += pageSize {
		page, err := g.Roads(ctx, offset, pageSize)
		if err != nil {
			return 0, err
		}
		for _, r := range page {
			if !keep[r.Name] {
				orphans = append(orphans, r.Name)
			}
		}
		if len(page) < pageSize {
			break
		}
	}

	for _, name := range orphans {
		if dryRun {
			fmt.Fprintf(w, "would remove %s\n", name)
			continue
		}
		if err := g.RemoveRoad(ctx, name); err != nil {
			return 0, err
		}
		fmt.Fprintf(w, "removed %s\n", name)
	}
	return len(orphans), nil
}
