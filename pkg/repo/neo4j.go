package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of a Neo4j result the repository reads.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Runner is the part of a Neo4j session the repository uses.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// SessionFunc opens a Runner for one operation.
type SessionFunc func(ctx context.Context) Runner

// DriverSessions opens sessions on a Neo4j driver.
func DriverSessions(driver neo4j.DriverWithContext) SessionFunc {
	return func(ctx context.Context) Runner {
		return &driverSession{sess: driver.NewSession(ctx, neo4j.SessionConfig{})}
	}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (d *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return d.sess.Run(ctx, cypher, params)
}

func (d *driverSession) Close(ctx context.Context) error { return d.sess.Close(ctx) }

// Neo4jRepo stores T as nodes carrying label, identified by the idKey
// property.
type Neo4jRepo[T any, ID comparable] struct {
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
	sessions   SessionFunc
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property used as the id (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// WithSessions replaces the driver's sessions, for tests or for callers that
// already wrap sessions.
func WithSessions[T any, ID comparable](f SessionFunc) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.sessions = f }
}

// NewNeo4jRepo creates a repository. driver may be nil when WithSessions is
// given.
func NewNeo4jRepo[T any, ID comparable](
	driver neo4j.DriverWithContext,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	if driver != nil {
		r.sessions = DriverSessions(driver)
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

func (r *Neo4jRepo[T, ID]) one(ctx context.Context, cypher string, params map[string]any) (T, error) {
	var zero T
	sess := r.sessions(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return zero, fmt.Errorf("repo: %s: %w", r.label, err)
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return zero, fmt.Errorf("repo: %s: %w", r.label, err)
		}
		return zero, fmt.Errorf("%s: %w", r.label, ErrNotFound)
	}
	return r.fromRecord(res.Record())
}

// Get returns the node with the given id.
func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	return r.one(ctx, cypher, map[string]any{"id": id})
}

// List returns nodes ordered by id. A zero Limit means 100.
func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	sess := r.sessions(ctx)
	defer sess.Close(ctx)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	params := map[string]any{"offset": int64(opts.Offset), "limit": int64(limit)}

	keys := make([]string, 0, len(opts.Filter))
	for k := range opts.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var where []string
	for i, k := range keys {
		p := fmt.Sprintf("f%d", i)
		where = append(where, fmt.Sprintf("n.`%s` = $%s", strings.ReplaceAll(k, "`", ""), p))
		params[p] = opts.Filter[k]
	}

	cypher := fmt.Sprintf("MATCH (n:%s)", r.label)
	if len(where) > 0 {
		cypher += " WHERE " + strings.Join(where, " AND ")
	}
	cypher += fmt.Sprintf(" RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit", r.idKey)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("repo: list %s: %w", r.label, err)
	}
	var items []T
	for res.Next(ctx) {
		item, err := r.fromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("repo: list %s: %w", r.label, err)
	}
	return items, nil
}

// Create merges a node on its id and sets its properties.
func (r *Neo4jRepo[T, ID]) Create(ctx context.Context, entity T) (T, error) {
	props := r.toMap(entity)
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props RETURN n", r.label, r.idKey)
	return r.one(ctx, cypher, map[string]any{"id": props[r.idKey], "props": props})
}

// Update sets the properties of an existing node.
func (r *Neo4jRepo[T, ID]) Update(ctx context.Context, entity T) (T, error) {
	props := r.toMap(entity)
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) SET n += $props RETURN n", r.label, r.idKey)
	return r.one(ctx, cypher, map[string]any{"id": props[r.idKey], "props": props})
}

// Delete removes the node and its relationships.
func (r *Neo4jRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	sess := r.sessions(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n", r.label, r.idKey)
	if _, err := sess.Run(ctx, cypher, map[string]any{"id": id}); err != nil {
		return fmt.Errorf("repo: delete %s: %w", r.label, err)
	}
	return nil
}
