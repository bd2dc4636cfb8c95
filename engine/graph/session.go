package graph

import (
	"context"

	"github.com/WessleyAI/roadwise/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CypherRunner runs one statement.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (repo.Result, error)
}

// CypherSession is the part of a Neo4j session RoadGraph uses.
type CypherSession interface {
	repo.Runner
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
}

// SessionOpener opens sessions.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return &driverSession{sess: o.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (d *driverSession) Run(ctx context.Context, cypher string, params map[string]any) (repo.Result, error) {
	return d.sess.Run(ctx, cypher, params)
}

func (d *driverSession) Close(ctx context.Context) error { return d.sess.Close(ctx) }

func (d *driverSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return d.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(txRunner{tx})
	})
}

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (t txRunner) Run(ctx context.Context, cypher string, params map[string]any) (repo.Result, error) {
	return t.tx.Run(ctx, cypher, params)
}
