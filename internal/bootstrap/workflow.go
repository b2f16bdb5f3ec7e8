// Package bootstrap brings a named database into a known-good state: it replaces the
// database, defines the schema, loads the dataset and verifies the load with a count.
// Every step receives the driver explicitly and aborts the workflow on first failure.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vanshika/iamgraph/internal/cypher"
	"github.com/vanshika/iamgraph/internal/domain"
	"github.com/vanshika/iamgraph/internal/graph"
)

// DefaultCountQuery counts the users of the IAM dataset.
const DefaultCountQuery = "MATCH (u:User) RETURN count(u) AS count"

// Plan describes one bootstrap run. ExpectedCount is used as given, so a dataset
// without users verifies against 0.
type Plan struct {
	Database      string
	SchemaFile    string
	DataFile      string
	ExpectedCount int64
	CountQuery    string
}

func (p Plan) withDefaults() Plan {
	if p.CountQuery == "" {
		p.CountQuery = DefaultCountQuery
	}
	return p
}

// Reporter receives user-facing progress. Step announces work in progress; it is
// always followed by exactly one OK or Fail.
type Reporter interface {
	Info(msg string)
	Step(msg string)
	OK()
	Fail(err error)
}

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) Info(string) {}
func (NopReporter) Step(string) {}
func (NopReporter) OK() {}
func (NopReporter) Fail(error) {}

// Run executes the full workflow described by plan. Both input files are read before
// the database is touched. A count mismatch yields a *domain.VerificationError.
func Run(ctx context.Context, drv graph.Driver, plan Plan, rep Reporter) error {
	if rep == nil {
		rep = NopReporter{}
	}
	plan = plan.withDefaults()
	if plan.ExpectedCount < 0 {
		return domain.NewError(domain.CodeVerification, fmt.Sprintf("expected count must not be negative, got %d", plan.ExpectedCount))
	}
	if err := checkDatabaseName(plan.Database); err != nil {
		return err
	}
	countQuery, err := cypher.New(plan.CountQuery, nil)
	if err != nil {
		return domain.WrapError(domain.CodeQuery, "invalid count query", err)
	}

	schema, err := os.ReadFile(plan.SchemaFile)
	if err != nil {
		return domain.WrapError(domain.CodeSchema, "read schema file", err)
	}
	data, err := os.ReadFile(plan.DataFile)
	if err != nil {
		return domain.WrapError(domain.CodeInsert, "read data file", err)
	}

	rep.Info("Setting up the database: " + plan.Database)
	if err := replaceDatabase(ctx, drv, plan.Database, rep); err != nil {
		rep.Fail(err)
		return err
	}

	rep.Step("Defining schema...")
	if err := LoadSchema(ctx, drv, plan.Database, string(schema)); err != nil {
		rep.Fail(err)
		return err
	}
	rep.OK()

	sess, err := drv.OpenSession(ctx, plan.Database, graph.SessionData)
	if err != nil {
		err = wrap(domain.CodeInsert, "open data session", err)
		rep.Fail(err)
		return err
	}
	defer sess.Close(ctx)

	rep.Step("Loading data...")
	if err := loadDataset(ctx, sess, string(data)); err != nil {
		rep.Fail(err)
		return err
	}
	rep.OK()

	rep.Step("Testing the database...")
	observed, err := countRows(ctx, sess, countQuery)
	if err != nil {
		rep.Fail(err)
		return err
	}
	if observed != plan.ExpectedCount {
		verr := &domain.VerificationError{Database: plan.Database, Expected: plan.ExpectedCount, Observed: observed}
		rep.Fail(verr)
		return verr
	}
	rep.OK()
	return nil
}

// EnsureFreshDatabase deletes name if it exists and creates it empty. Any data held
// under name is lost.
func EnsureFreshDatabase(ctx context.Context, drv graph.Driver, name string) error {
	return replaceDatabase(ctx, drv, name, NopReporter{})
}

func checkDatabaseName(name string) error {
	if name == "" {
		return domain.NewError(domain.CodeDatabase, "database name is required")
	}
	if err := graph.ValidateDatabaseName(name); err != nil {
		return domain.WrapError(domain.CodeDatabase, "invalid database name", err)
	}
	return nil
}

// replaceDatabase reports through rep only once a step is under way; name checks fail
// silently so every Fail follows a Step.
func replaceDatabase(ctx context.Context, drv graph.Driver, name string, rep Reporter) error {
	if err := checkDatabaseName(name); err != nil {
		return err
	}

	exists, err := drv.DatabaseExists(ctx, name)
	if err != nil {
		return wrap(domain.CodeDatabase, "check database "+name, err)
	}
	if exists {
		rep.Step("Found an existing database. Replacing...")
		if err := drv.DeleteDatabase(ctx, name); err != nil {
			return wrap(domain.CodeDatabase, "delete database "+name, err)
		}
	} else {
		rep.Step("Creating new database...")
	}

	if err := drv.CreateDatabase(ctx, name); err != nil {
		return wrap(domain.CodeDatabase, "create database "+name, err)
	}
	rep.OK()
	return nil
}

// LoadSchema defines schema in db through a schema session and a write transaction.
// The transaction is discarded and the session closed on every path.
func LoadSchema(ctx context.Context, drv graph.Driver, db, schema string) error {
	sess, err := drv.OpenSession(ctx, db, graph.SessionSchema)
	if err != nil {
		return wrap(domain.CodeSchema, "open schema session", err)
	}
	defer sess.Close(ctx)

	tx, err := sess.Transaction(ctx, graph.TxWrite, graph.TxOptions{})
	if err != nil {
		return wrap(domain.CodeSchema, "open schema transaction", err)
	}
	defer tx.Close(ctx)

	if err := tx.Define(ctx, schema); err != nil {
		return wrap(domain.CodeSchema, "define schema", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap(domain.CodeSchema, "commit schema", err)
	}
	return nil
}

// LoadDataset inserts every statement of data in one write transaction. Nothing is
// committed unless all statements succeed.
func LoadDataset(ctx context.Context, drv graph.Driver, db, data string) error {
	sess, err := drv.OpenSession(ctx, db, graph.SessionData)
	if err != nil {
		return wrap(domain.CodeInsert, "open data session", err)
	}
	defer sess.Close(ctx)
	return loadDataset(ctx, sess, data)
}

func loadDataset(ctx context.Context, sess graph.Session, data string) error {
	statements := cypher.SplitStatements(data)
	if len(statements) == 0 {
		return domain.NewError(domain.CodeInsert, "data script contains no statements")
	}

	tx, err := sess.Transaction(ctx, graph.TxWrite, graph.TxOptions{})
	if err != nil {
		return wrap(domain.CodeInsert, "open data transaction", err)
	}
	defer tx.Close(ctx)

	for i, stmt := range statements {
		if _, err := tx.Insert(ctx, stmt, nil); err != nil {
			return wrap(domain.CodeInsert, fmt.Sprintf("insert statement %d of %d", i+1, len(statements)), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap(domain.CodeInsert, "commit data", err)
	}
	return nil
}

// VerifyRowCount runs q in a read transaction and reports whether its single long
// value equals expected. A mismatch is not an error; a missing or non-integer value is.
func VerifyRowCount(ctx context.Context, sess graph.Session, expected int64, q cypher.Query) (bool, error) {
	observed, err := countRows(ctx, sess, q)
	if err != nil {
		return false, err
	}
	return observed == expected, nil
}

func countRows(ctx context.Context, sess graph.Session, q cypher.Query) (int64, error) {
	tx, err := sess.Transaction(ctx, graph.TxRead, graph.TxOptions{})
	if err != nil {
		return 0, wrap(domain.CodeQuery, "open read transaction", err)
	}
	defer tx.Close(ctx)

	v, err := tx.Aggregate(ctx, q.Text, q.Params)
	if err != nil {
		return 0, wrap(domain.CodeQuery, "run count query", err)
	}
	n, err := v.AsLong()
	if err != nil {
		return 0, domain.WrapError(domain.CodeQuery, "count query returned a non-integer value", err)
	}
	return n, nil
}

// wrap tags err with code, or with CodeConnection when the driver reports the failure
// as transient.
func wrap(code domain.ErrorCode, message string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(code, message, err)
	}
	if graph.IsTransient(err) {
		return domain.WrapRetryable(domain.CodeConnection, message, err)
	}
	return domain.WrapError(code, message, err)
}
