// Package roadctx builds the per-road traffic context that is placed into the
// chat system prompt. It ties the catalog, the row source and the
// aggregator together for a list of requested road names.
package roadctx

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/engine/stats"
)

// VersionFinder looks up the road versions matching a road name.
type VersionFinder interface {
	FindVersions(query string) []domain.RoadVersionRecord
}

// TableLoader reads the rows of one road version file.
type TableLoader interface {
	LoadRows(ctx context.Context, path string) ([]domain.SegmentRow, error)
}

// Builder assembles road contexts.
type Builder struct {
	Finder VersionFinder
	Loader TableLoader
	Logger *slog.Logger
}

// Context is an ordered mapping from "<road>,<version>" to a summary.
type Context struct {
	Keys      []string                      `json:"keys"`
	Summaries map[string]domain.RoadSummary `json:"summaries"`
}

// Len returns the number of entries.
func (c Context) Len() int { return len(c.Keys) }

func (c *Context) add(s domain.RoadSummary) {
	if c.Summaries == nil {
		c.Summaries = make(map[string]domain.RoadSummary)
	}
	k := s.Key()
	if _, dup := c.Summaries[k]; !dup {
		c.Keys = append(c.Keys, k)
	}
	c.Summaries[k] = s
}

// Build resolves every road in roads to its versions and summarizes them.
// Roads without catalog matches are omitted. When versions is false only the
// latest version of each road is kept, otherwise all of them, latest first.
// Versions whose table has no rows produce no entry.
//
// Versions are ordered by comparing labels as raw strings, so "Jan 2023"
// sorts before "Feb 2022". Labels that are plain years order correctly.
func (b *Builder) Build(ctx context.Context, roads []string, versions bool) (Context, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var out Context
	for _, road := range roads {
		matches := b.Finder.FindVersions(road)
		if len(matches) == 0 {
			logger.Debug("roadctx: no versions", "road", road)
			continue
		}
		matches = SortVersions(matches)
		if !versions {
			matches = matches[:1]
		}

		for _, rec := range matches {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			rows, err := b.Loader.LoadRows(ctx, rec.Path)
			if err != nil {
				return out, fmt.Errorf("roadctx: %w", domain.Upstream("load "+rec.Path, err))
			}
			if len(rows) == 0 {
				logger.Debug("roadctx: empty table", "road", road, "version", rec.Version)
				continue
			}
			s := stats.Aggregate(road, rec.Version, rows)
			if s.NoData {
				logger.Info("roadctx: no valid data", "road", road, "version", rec.Version, "rows", len(rows))
			}
			out.add(s)
		}
	}
	return out, nil
}

// SortVersions returns a copy of recs ordered by version label, descending,
// comparing labels as raw strings. Equal labels keep catalog order.
func SortVersions(recs []domain.RoadVersionRecord) []domain.RoadVersionRecord {
	sorted := append([]domain.RoadVersionRecord(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Version > sorted[j].Version
	})
	return sorted
}

// Texts returns the output mapping with each summary rendered as text.
func (c Context) Texts() map[string]string {
	m := make(map[string]string, len(c.Keys))
	for _, k := range c.Keys {
		m[k] = stats.Format(c.Summaries[k])
	}
	return m
}

// Render produces the prompt fragment for the requested road names.
func (c Context) Render(requested []string) string {
	var b strings.Builder
	b.WriteString("\n\nThe user might be referring to one of the roads \"")
	b.WriteString(strings.Join(requested, ", "))
	b.WriteString("\". Here is the known data:\n\n")
	if len(c.Keys) == 0 {
		b.WriteString("No traffic data is available for these roads.")
		return b.String()
	}
	for i, k := range c.Keys {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(stats.Format(c.Summaries[k]))
	}
	return b.String()
}
