package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vanshika/iamgraph/internal/graph"
)

// Span names produced by the traced driver.
const (
	SpanDatabaseExists     = "iamgraph.graph.database_exists"
	SpanCreateDatabase     = "iamgraph.graph.create_database"
	SpanDeleteDatabase     = "iamgraph.graph.delete_database"
	SpanOpenSession        = "iamgraph.graph.open_session"
	SpanVerifyConnectivity = "iamgraph.graph.verify_connectivity"
	SpanTransaction        = "iamgraph.graph.transaction"
	SpanDefine             = "iamgraph.graph.define"
	SpanInsert             = "iamgraph.graph.insert"
	SpanUpdate             = "iamgraph.graph.update"
	SpanDelete             = "iamgraph.graph.delete"
	SpanQuery              = "iamgraph.graph.query"
	SpanAggregate          = "iamgraph.graph.aggregate"
	SpanCommit             = "iamgraph.graph.commit"
)

// Attribute keys set on graph spans.
const (
	AttrDatabase    = attribute.Key("db.name")
	AttrSessionKind = attribute.Key("db.session_kind")
	AttrTxKind      = attribute.Key("db.tx_kind")
	AttrStatement   = attribute.Key("db.statement")
	AttrRows        = attribute.Key("db.rows")
	AttrInfer       = attribute.Key("iamgraph.infer")
)

// TraceDriver wraps drv so every database admin call, session open and transaction
// operation runs inside a span. Sessions and transactions returned by the wrapper are
// traced as well.
func TraceDriver(drv graph.Driver, tracer trace.Tracer) graph.Driver {
	return &tracedDriver{inner: drv, tracer: tracer}
}

type tracedDriver struct {
	inner  graph.Driver
	tracer trace.Tracer
}

func (d *tracedDriver) DatabaseExists(ctx context.Context, name string) (bool, error) {
	ctx, span := d.tracer.Start(ctx, SpanDatabaseExists, trace.WithAttributes(AttrDatabase.String(name)))
	defer span.End()

	exists, err := d.inner.DatabaseExists(ctx, name)
	span.SetAttributes(attribute.Bool("db.exists", exists))
	return exists, finish(span, err)
}

func (d *tracedDriver) CreateDatabase(ctx context.Context, name string) error {
	ctx, span := d.tracer.Start(ctx, SpanCreateDatabase, trace.WithAttributes(AttrDatabase.String(name)))
	defer span.End()
	return finish(span, d.inner.CreateDatabase(ctx, name))
}

func (d *tracedDriver) DeleteDatabase(ctx context.Context, name string) error {
	ctx, span := d.tracer.Start(ctx, SpanDeleteDatabase, trace.WithAttributes(AttrDatabase.String(name)))
	defer span.End()
	return finish(span, d.inner.DeleteDatabase(ctx, name))
}

func (d *tracedDriver) OpenSession(ctx context.Context, database string, kind graph.SessionKind) (graph.Session, error) {
	ctx, span := d.tracer.Start(ctx, SpanOpenSession, trace.WithAttributes(
		AttrDatabase.String(database),
		AttrSessionKind.String(kind.String()),
	))
	defer span.End()

	sess, err := d.inner.OpenSession(ctx, database, kind)
	if err != nil {
		return nil, finish(span, err)
	}
	finish(span, nil)
	return &tracedSession{inner: sess, tracer: d.tracer}, nil
}

func (d *tracedDriver) VerifyConnectivity(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, SpanVerifyConnectivity)
	defer span.End()
	return finish(span, d.inner.VerifyConnectivity(ctx))
}

func (d *tracedDriver) Close(ctx context.Context) error {
	return d.inner.Close(ctx)
}

type tracedSession struct {
	inner  graph.Session
	tracer trace.Tracer
}

func (s *tracedSession) Database() string        { return s.inner.Database() }
func (s *tracedSession) Kind() graph.SessionKind { return s.inner.Kind() }

func (s *tracedSession) Transaction(ctx context.Context, kind graph.TransactionKind, opts graph.TxOptions) (graph.Transaction, error) {
	attrs := []attribute.KeyValue{
		AttrDatabase.String(s.inner.Database()),
		AttrSessionKind.String(s.inner.Kind().String()),
		AttrTxKind.String(kind.String()),
	}
	ctx, span := s.tracer.Start(ctx, SpanTransaction, trace.WithAttributes(append(attrs, AttrInfer.Bool(opts.Infer))...))
	defer span.End()

	tx, err := s.inner.Transaction(ctx, kind, opts)
	if err != nil {
		return nil, finish(span, err)
	}
	finish(span, nil)
	return &tracedTransaction{inner: tx, tracer: s.tracer, attrs: attrs}, nil
}

func (s *tracedSession) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

type tracedTransaction struct {
	inner  graph.Transaction
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

func (t *tracedTransaction) Kind() graph.TransactionKind { return t.inner.Kind() }
func (t *tracedTransaction) Options() graph.TxOptions    { return t.inner.Options() }

func (t *tracedTransaction) start(ctx context.Context, name, statement string) (context.Context, trace.Span) {
	attrs := t.attrs
	if statement != "" {
		attrs = append(attrs[:len(attrs):len(attrs)], AttrStatement.String(statement))
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t *tracedTransaction) Define(ctx context.Context, script string) error {
	ctx, span := t.start(ctx, SpanDefine, script)
	defer span.End()
	return finish(span, t.inner.Define(ctx, script))
}

func (t *tracedTransaction) Insert(ctx context.Context, statement string, params map[string]any) ([]graph.Row, error) {
	return t.rows(ctx, SpanInsert, statement, func(ctx context.Context) ([]graph.Row, error) {
		return t.inner.Insert(ctx, statement, params)
	})
}

func (t *tracedTransaction) Update(ctx context.Context, statement string, params map[string]any) ([]graph.Row, error) {
	return t.rows(ctx, SpanUpdate, statement, func(ctx context.Context) ([]graph.Row, error) {
		return t.inner.Update(ctx, statement, params)
	})
}

func (t *tracedTransaction) Delete(ctx context.Context, statement string, params map[string]any) ([]graph.Row, error) {
	return t.rows(ctx, SpanDelete, statement, func(ctx context.Context) ([]graph.Row, error) {
		return t.inner.Delete(ctx, statement, params)
	})
}

func (t *tracedTransaction) Query(ctx context.Context, statement string, params map[string]any) ([]graph.Row, error) {
	return t.rows(ctx, SpanQuery, statement, func(ctx context.Context) ([]graph.Row, error) {
		return t.inner.Query(ctx, statement, params)
	})
}

func (t *tracedTransaction) rows(ctx context.Context, name, statement string, run func(context.Context) ([]graph.Row, error)) ([]graph.Row, error) {
	ctx, span := t.start(ctx, name, statement)
	defer span.End()

	rows, err := run(ctx)
	span.SetAttributes(AttrRows.Int(len(rows)))
	return rows, finish(span, err)
}

func (t *tracedTransaction) Aggregate(ctx context.Context, statement string, params map[string]any) (graph.Value, error) {
	ctx, span := t.start(ctx, SpanAggregate, statement)
	defer span.End()

	v, err := t.inner.Aggregate(ctx, statement, params)
	return v, finish(span, err)
}

func (t *tracedTransaction) Commit(ctx context.Context) error {
	ctx, span := t.start(ctx, SpanCommit, "")
	defer span.End()
	return finish(span, t.inner.Commit(ctx))
}

func (t *tracedTransaction) Close(ctx context.Context) error {
	return t.inner.Close(ctx)
}

// finish records err on span and sets its status. It returns err unchanged.
func finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
