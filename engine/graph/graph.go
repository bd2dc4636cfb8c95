// Package graph mirrors the road catalog into Neo4j:
//
//	(:Road {name})-[:HAS_VERSION]->(:RoadVersion {path, road, version})-[:OF_PERIOD]->(:Period {label})
//
// The mirror lets other services browse roads and their versions without
// scanning the data directory.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/WessleyAI/roadwise/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Road is a Road node.
type Road struct {
	Name     string `json:"name"`
	Versions int64  `json:"versions"`
}

// RoadGraph is the Neo4j catalog mirror.
type RoadGraph struct {
	opener SessionOpener
	roads  *repo.Neo4jRepo[Road, string]
}

// New creates a RoadGraph on a driver.
func New(driver neo4j.DriverWithContext) *RoadGraph {
	return NewWithOpener(driverOpener{driver: driver})
}

// NewWithOpener creates a RoadGraph on custom sessions.
func NewWithOpener(opener SessionOpener) *RoadGraph {
	return &RoadGraph{
		opener: opener,
		roads: repo.NewNeo4jRepo[Road, string](nil, "Road", roadToMap, roadFromRecord,
			repo.WithIDKey[Road, string]("name"),
			repo.WithSessions[Road, string](func(ctx context.Context) repo.Runner {
				return opener.OpenSession(ctx)
			}),
		),
	}
}

var schema = []string{
	`CREATE CONSTRAINT road_name IF NOT EXISTS FOR (r:Road) REQUIRE r.name IS UNIQUE`,
	`CREATE CONSTRAINT road_version_path IF NOT EXISTS FOR (v:RoadVersion) REQUIRE v.path IS UNIQUE`,
	`CREATE CONSTRAINT period_label IF NOT EXISTS FOR (p:Period) REQUIRE p.label IS UNIQUE`,
}

// EnsureSchema creates the uniqueness constraints.
func (g *RoadGraph) EnsureSchema(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	for _, c := range schema {
		if _, err := sess.Run(ctx, c, nil); err != nil {
			return fmt.Errorf("graph: schema: %w", err)
		}
	}
	return nil
}

const mirrorCypher = `UNWIND $rows AS row
MERGE (r:Road {name: row.road})
MERGE (v:RoadVersion {path: row.path})
SET v.road = row.road, v.version = row.version
MERGE (p:Period {label: row.version})
MERGE (r)-[:HAS_VERSION]->(v)
MERGE (v)-[:OF_PERIOD]->(p)
WITH DISTINCT r
SET r.versions = COUNT { (r)-[:HAS_VERSION]->() }`

// Mirror merges records into the graph in one write transaction. Merging
// is idempotent, so a record mirrored twice leaves one node.
func (g *RoadGraph) Mirror(ctx context.Context, recs []domain.RoadVersionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(recs))
	for i, r := range recs {
		rows[i] = map[string]any{"road": r.Road, "version": r.Version, "path": r.Path}
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		return nil, exec(ctx, tx, mirrorCypher, map[string]any{"rows": rows})
	})
	if err != nil {
		return fmt.Errorf("graph: mirror %d records: %w", len(recs), domain.Upstream("neo4j write", err))
	}
	return nil
}

// Road returns one road node.
func (g *RoadGraph) Road(ctx context.Context, name string) (Road, error) {
	r, err := g.roads.Get(ctx, name)
	if errors.Is(err, repo.ErrNotFound) {
		return Road{}, fmt.Errorf("graph: road %q: %w", name, domain.ErrNotFound)
	}
	return r, err
}

// Roads lists road nodes by name.
func (g *RoadGraph) Roads(ctx context.Context, offset, limit int) ([]Road, error) {
	return g.roads.List(ctx, repo.ListOpts{Offset: offset, Limit: limit})
}

// RemoveRoad deletes a road and its version nodes.
func (g *RoadGraph) RemoveRoad(ctx context.Context, name string) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		return nil, exec(ctx, tx, `MATCH (r:Road {name: $name})
OPTIONAL MATCH (r)-[:HAS_VERSION]->(v:RoadVersion)
DETACH DELETE r, v`, map[string]any{"name": name})
	})
	if err != nil {
		return fmt.Errorf("graph: remove %q: %w", name, err)
	}
	return nil
}

// Versions returns the mirrored records of road, latest label first.
func (g *RoadGraph) Versions(ctx context.Context, road string) ([]domain.RoadVersionRecord, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `MATCH (:Road {name: $name})-[:HAS_VERSION]->(v:RoadVersion)
RETURN v.road AS road, v.version AS version, v.path AS path
ORDER BY version DESC, path`, map[string]any{"name": road})
	if err != nil {
		return nil, fmt.Errorf("graph: versions: %w", err)
	}
	var out []domain.RoadVersionRecord
	for res.Next(ctx) {
		rec := res.Record()
		out = append(out, domain.RoadVersionRecord{
			Road:    stringValue(rec, "road"),
			Version: stringValue(rec, "version"),
			Path:    stringValue(rec, "path"),
		})
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("graph: versions: %w", err)
	}
	return out, nil
}

// Counts returns the number of road and road-version nodes.
func (g *RoadGraph) Counts(ctx context.Context) (roads, versions int64, err error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, `OPTIONAL MATCH (r:Road) WITH count(r) AS roads
OPTIONAL MATCH (v:RoadVersion) RETURN roads, count(v) AS versions`, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("graph: counts: %w", err)
	}
	if res.Next(ctx) {
		rec := res.Record()
		roads, _ = valueOf(rec, "roads").(int64)
		versions, _ = valueOf(rec, "versions").(int64)
	}
	return roads, versions, res.Err()
}

// exec runs a write statement and consumes its result inside the
// transaction.
func exec(ctx context.Context, tx CypherRunner, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	for res.Next(ctx) {
	}
	return res.Err()
}

func roadToMap(r Road) map[string]any {
	return map[string]any{"name": r.Name, "versions": r.Versions}
}

func roadFromRecord(rec *neo4j.Record) (Road, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Road{}, err
	}
	r := Road{}
	r.Name, _ = node.Props["name"].(string)
	r.Versions, _ = node.Props["versions"].(int64)
	return r, nil
}

func valueOf(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func stringValue(rec *neo4j.Record, key string) string {
	s, _ := valueOf(rec, key).(string)
	return s
}
