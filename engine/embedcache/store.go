// Package embedcache persists road-name embeddings in SQLite so restarts and
// index rebuilds only embed names the model has not seen.
package embedcache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed (model, text) → vector table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the cache database at path and applies pending
// migrations. Use ":memory:" for a throwaway cache.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("embedcache: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("embedcache: %s: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("embedcache: migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("embedcache: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("embedcache: migrate: %w", err)
	}
	// m is not closed: closing it would close s.db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("embedcache: migration up failed: %w", err)
	}
	v, _, _ := m.Version()
	s.logger.Debug("embedcache migrated", "version", v)
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Lookup returns the cached vectors of texts under model. Missing texts are
// absent from the returned map, which is keyed by text.
func (s *Store) Lookup(ctx context.Context, model string, texts []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	// SQLite caps bound parameters; stay well below the limit.
	const chunk = 500
	for start := 0; start < len(texts); start += chunk {
		part := texts[start:min(start+chunk, len(texts))]
		args := make([]any, 0, len(part)+1)
		args = append(args, model)
		for _, t := range part {
			args = append(args, t)
		}
		q := `SELECT text, dim, vector FROM embeddings WHERE model = ? AND text IN (?` +
			strings.Repeat(",?", len(part)-1) + `)`
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("embedcache: lookup: %w", err)
		}
		for rows.Next() {
			var (
				text string
				dim  int
				blob []byte
			)
			if err := rows.Scan(&text, &dim, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("embedcache: scan: %w", err)
			}
			vec, err := decodeVector(blob, dim)
			if err != nil {
				s.logger.Warn("embedcache: dropping corrupt entry", "model", model, "text", text, "err", err)
				continue
			}
			out[text] = vec
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("embedcache: lookup rows: %w", err)
		}
	}
	return out, nil
}

// Put stores vecs[i] as the embedding of texts[i] under model, replacing
// earlier entries.
func (s *Store) Put(ctx context.Context, model string, texts []string, vecs [][]float32) error {
	if len(texts) != len(vecs) {
		return fmt.Errorf("embedcache: put: %d texts, %d vectors", len(texts), len(vecs))
	}
	if len(texts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("embedcache: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO embeddings (model, text, dim, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("embedcache: prepare: %w", err)
	}
	defer stmt.Close()

	for i, t := range texts {
		if _, err := stmt.ExecContext(ctx, model, t, len(vecs[i]), encodeVector(vecs[i])); err != nil {
			return fmt.Errorf("embedcache: insert %q: %w", t, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("embedcache: commit: %w", err)
	}
	return nil
}

// Count returns the number of entries cached for model.
func (s *Store) Count(ctx context.Context, model string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE model = ?`, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("embedcache: count: %w", err)
	}
	return n, nil
}

// DeleteModel drops every entry of model and returns how many were removed.
func (s *Store) DeleteModel(ctx context.Context, model string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE model = ?`, model)
	if err != nil {
		return 0, fmt.Errorf("embedcache: delete model: %w", err)
	}
	return res.RowsAffected()
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte, dim int) ([]float32, error) {
	if len(b) != 4*dim {
		return nil, fmt.Errorf("blob is %d bytes, want %d", len(b), 4*dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
