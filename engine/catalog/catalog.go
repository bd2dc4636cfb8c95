// Package catalog discovers per-road-version data files under a directory
// tree and answers which versions exist for a road name.
//
// Layout: <root>/<version label>/<road name>[_<suffix>].<ext>
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/WessleyAI/roadwise/engine/domain"
)

// DefaultExtension is the recognized data file extension.
const DefaultExtension = ".geojson"

// minPathParts is the number of path components a file needs so that it has
// a parent version directory.
const minPathParts = 3

// Catalog holds RoadVersionRecords discovered under a root directory. It is
// the sole writer of its records. Catalog does no locking: callers that run
// Update concurrently with reads must serialize them (see Guarded).
type Catalog struct {
	root    string
	ext     string
	records []domain.RoadVersionRecord
	paths   map[string]struct{}
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithExtension sets the recognized file extension (default ".geojson").
func WithExtension(ext string) Option {
	return func(c *Catalog) {
		if ext == "" {
			return
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.ext = ext
	}
}

// New scans root and returns a populated catalog. A missing root yields an
// empty catalog.
func New(root string, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		root:  root,
		ext:   DefaultExtension,
		paths: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if _, err := c.Update(); err != nil {
		return nil, err
	}
	return c, nil
}

// Root returns the scanned directory.
func (c *Catalog) Root() string { return c.root }

// Scan walks root and returns one record per data file with the default
// extension, sorted by path.
func Scan(root string) ([]domain.RoadVersionRecord, error) {
	return scan(root, DefaultExtension)
}

func scan(root, ext string) ([]domain.RoadVersionRecord, error) {
	var records []domain.RoadVersionRecord
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		if rec, ok := recordFromPath(path); ok {
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: scan %s: %w", root, err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

// recordFromPath derives road and version from a file path. ok is false when
// the path is too shallow to contain a version directory.
func recordFromPath(path string) (domain.RoadVersionRecord, bool) {
	parts := splitPath(path)
	if len(parts) < minPathParts {
		return domain.RoadVersionRecord{}, false
	}
	return domain.RoadVersionRecord{
		Road:    RoadName(filepath.Base(path)),
		Version: parts[len(parts)-2],
		Path:    path,
	}, true
}

// RoadName turns a data file name into a road name: the extension is removed,
// everything from the first underscore on is dropped, and whitespace trimmed.
// "Abu-Baker Al-Siddiq Rd NB_9.geojson" -> "Abu-Baker Al-Siddiq Rd NB".
func RoadName(file string) string {
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	if i := strings.IndexByte(stem, '_'); i >= 0 {
		stem = stem[:i]
	}
	return strings.TrimSpace(stem)
}

func splitPath(path string) []string {
	clean := filepath.ToSlash(filepath.Clean(path))
	var parts []string
	for _, p := range strings.Split(clean, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if strings.HasPrefix(clean, "/") {
		parts = append([]string{"/"}, parts...)
	}
	return parts
}

// Update rescans the tree and appends records whose path is not yet known.
// Stale records for deleted files are kept. It returns the appended records.
func (c *Catalog) Update() ([]domain.RoadVersionRecord, error) {
	found, err := scan(c.root, c.ext)
	if err != nil {
		return nil, err
	}
	var added []domain.RoadVersionRecord
	for _, r := range found {
		if _, ok := c.paths[r.Path]; ok {
			continue
		}
		c.paths[r.Path] = struct{}{}
		c.records = append(c.records, r)
		added = append(added, r)
	}
	return added, nil
}

// FindVersions returns every record whose road name contains query,
// case-insensitively, in catalog order.
func (c *Catalog) FindVersions(query string) []domain.RoadVersionRecord {
	q := strings.ToLower(query)
	var out []domain.RoadVersionRecord
	for _, r := range c.records {
		if strings.Contains(strings.ToLower(r.Road), q) {
			out = append(out, r)
		}
	}
	return out
}

// Records returns a copy of all records.
func (c *Catalog) Records() []domain.RoadVersionRecord {
	out := make([]domain.RoadVersionRecord, len(c.records))
	copy(out, c.records)
	return out
}

// RoadNames returns the distinct road names in first-seen order.
func (c *Catalog) RoadNames() []string {
	seen := make(map[string]struct{}, len(c.records))
	var out []string
	for _, r := range c.records {
		if _, ok := seen[r.Road]; ok {
			continue
		}
		seen[r.Road] = struct{}{}
		out = append(out, r.Road)
	}
	return out
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.records) }

// Exists reports whether root exists and is a directory.
func Exists(root string) bool {
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}
