package service

import (
	"context"
	"fmt"

	"github.com/vanshika/iamgraph/internal/bootstrap"
	"github.com/vanshika/iamgraph/internal/graph"
)

// QuickstartDatabase is the database recreated by Quickstart.
const QuickstartDatabase = "access-management-db"

var (
	quickstartSchema = []string{
		"CREATE CONSTRAINT person_name_unique IF NOT EXISTS FOR (p:Person) REQUIRE p.name IS UNIQUE",
		"CREATE INDEX person_name IF NOT EXISTS FOR (p:Person) ON (p.name)",
	}
	quickstartPeople = []string{"Alice", "Bob"}
)

const (
	insertPersonCypher = `CREATE (p:Person {name: $name}) RETURN p.name AS name`
	fetchPeopleCypher  = `MATCH (p:Person) RETURN p.name AS name ORDER BY name`
)

// Quickstart recreates database, defines a Person type, inserts Alice and Bob in one
// write transaction and reads their names back.
func Quickstart(ctx context.Context, drv graph.Driver, database string) ([]string, error) {
	if database == "" {
		database = QuickstartDatabase
	}
	if err := bootstrap.EnsureFreshDatabase(ctx, drv, database); err != nil {
		return nil, err
	}
	if err := quickstartDefine(ctx, drv, database); err != nil {
		return nil, err
	}

	sess, err := drv.OpenSession(ctx, database, graph.SessionData)
	if err != nil {
		return nil, fmt.Errorf("open data session: %w", err)
	}
	defer sess.Close(ctx)

	if err := quickstartInsert(ctx, sess); err != nil {
		return nil, err
	}
	return quickstartFetch(ctx, sess)
}

func quickstartDefine(ctx context.Context, drv graph.Driver, database string) error {
	sess, err := drv.OpenSession(ctx, database, graph.SessionSchema)
	if err != nil {
		return fmt.Errorf("open schema session: %w", err)
	}
	defer sess.Close(ctx)

	tx, err := sess.Transaction(ctx, graph.TxWrite, graph.TxOptions{})
	if err != nil {
		return fmt.Errorf("open schema transaction: %w", err)
	}
	defer tx.Close(ctx)

	for _, stmt := range quickstartSchema {
		if err := tx.Define(ctx, stmt); err != nil {
			return fmt.Errorf("define person: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func quickstartInsert(ctx context.Context, sess graph.Session) error {
	tx, err := sess.Transaction(ctx, graph.TxWrite, graph.TxOptions{})
	if err != nil {
		return fmt.Errorf("open write transaction: %w", err)
	}
	defer tx.Close(ctx)

	for _, name := range quickstartPeople {
		if _, err := tx.Insert(ctx, insertPersonCypher, map[string]any{"name": name}); err != nil {
			return fmt.Errorf("insert %s: %w", name, err)
		}
	}
	return tx.Commit(ctx)
}

func quickstartFetch(ctx context.Context, sess graph.Session) ([]string, error) {
	tx, err := sess.Transaction(ctx, graph.TxRead, graph.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("open read transaction: %w", err)
	}
	defer tx.Close(ctx)

	rows, err := tx.Query(ctx, fetchPeopleCypher, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch people: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		name, err := row.GetString("name")
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
