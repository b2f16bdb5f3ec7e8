package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/vanshika/iamgraph/internal/cypher"
)

const (
	systemDatabase = "system"

	databaseExistsCypher = `SHOW DATABASES YIELD name WHERE name = $name RETURN count(name) > 0 AS exists`
	createDatabaseCypher = `CREATE DATABASE $name WAIT`
	dropDatabaseCypher   = `DROP DATABASE $name IF EXISTS WAIT`

	codeDatabaseNotFound = "Neo.ClientError.Database.DatabaseNotFound"
)

// NewNeo4jDriver establishes a Bolt connection using the official Neo4j driver and
// verifies it. Transient connectivity failures are retried with exponential backoff
// bounded by opts.RetryMaxAttempts and opts.RetryMaxElapsed; anything else fails
// immediately.
func NewNeo4jDriver(ctx context.Context, logger *slog.Logger, opts Options) (Driver, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}
	if logger == nil {
		logger = slog.Default()
	}

	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *neo4j.Config) {
		if opts.MaxConnections > 0 {
			c.MaxConnectionPoolSize = opts.MaxConnections
		}
		if opts.ConnectTimeout > 0 {
			c.SocketConnectTimeout = opts.ConnectTimeout
			c.ConnectionAcquisitionTimeout = opts.ConnectTimeout
		}
		if opts.UserAgent != "" {
			c.UserAgent = opts.UserAgent
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	attempt := 0
	verify := func() error {
		attempt++
		verifyCtx, cancel := withOptionalTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
		err := driver.VerifyConnectivity(verifyCtx)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("graph connectivity check failed, retrying",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err,
		)
	}
	if err := backoff.RetryNotify(verify, connectBackOff(ctx, opts), notify); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity after %d attempt(s): %w", attempt, err)
	}

	return &neo4jDriver{
		driver:    driver,
		txTimeout: opts.TxTimeout,
	}, nil
}

func connectBackOff(ctx context.Context, opts Options) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if opts.RetryInitial > 0 {
		exp.InitialInterval = opts.RetryInitial
	}
	if opts.RetryMaxElapsed > 0 {
		exp.MaxElapsedTime = opts.RetryMaxElapsed
	}
	attempts := opts.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// IsTransient reports whether err is a connectivity or server-flagged retryable failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return neo4j.IsConnectivityError(err) || neo4j.IsRetryable(err)
}

type neo4jDriver struct {
	driver    neo4j.DriverWithContext
	txTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (d *neo4jDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *neo4jDriver) system(ctx context.Context, query string, name string) (*neo4j.EagerResult, error) {
	if d.isClosed() {
		return nil, ErrDriverClosed
	}
	if err := ValidateDatabaseName(name); err != nil {
		return nil, err
	}
	q, err := cypher.New(query, cypher.Params{"name": name})
	if err != nil {
		return nil, err
	}
	return neo4j.ExecuteQuery(ctx, d.driver, q.Text, q.Params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(systemDatabase),
	)
}

func (d *neo4jDriver) DatabaseExists(ctx context.Context, name string) (bool, error) {
	res, err := d.system(ctx, databaseExistsCypher, name)
	if err != nil {
		return false, fmt.Errorf("check database %s: %w", name, err)
	}
	if len(res.Records) == 0 {
		return false, nil
	}
	raw, ok := res.Records[0].Get("exists")
	if !ok {
		return false, fmt.Errorf("check database %s: %w: exists", name, ErrMissingColumn)
	}
	exists, err := mustValue(raw).AsBoolean()
	if err != nil {
		return false, fmt.Errorf("check database %s: %w", name, err)
	}
	return exists, nil
}

func (d *neo4jDriver) CreateDatabase(ctx context.Context, name string) error {
	if _, err := d.system(ctx, createDatabaseCypher, name); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

func (d *neo4jDriver) DeleteDatabase(ctx context.Context, name string) error {
	if _, err := d.system(ctx, dropDatabaseCypher, name); err != nil {
		return fmt.Errorf("delete database %s: %w", name, err)
	}
	return nil
}

func (d *neo4jDriver) OpenSession(_ context.Context, database string, kind SessionKind) (Session, error) {
	if d.isClosed() {
		return nil, ErrDriverClosed
	}
	if err := ValidateDatabaseName(database); err != nil {
		return nil, err
	}
	if kind != SessionSchema && kind != SessionData {
		return nil, fmt.Errorf("unknown session kind %s", kind)
	}
	return &neo4jSession{
		driver:    d.driver,
		database:  database,
		kind:      kind,
		txTimeout: d.txTimeout,
	}, nil
}

func (d *neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	if d.isClosed() {
		return ErrDriverClosed
	}
	return d.driver.VerifyConnectivity(ctx)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.driver.Close(ctx)
}

// neo4jSession maps one graph Session onto short-lived driver sessions, one per
// transaction, so each transaction gets the access mode matching its kind.
type neo4jSession struct {
	driver    neo4j.DriverWithContext
	database  string
	kind      SessionKind
	txTimeout time.Duration
	state     sessionState
}

func (s *neo4jSession) Database() string { return s.database }
func (s *neo4jSession) Kind() SessionKind { return s.kind }

func (s *neo4jSession) Transaction(ctx context.Context, kind TransactionKind, opts TxOptions) (Transaction, error) {
	if err := s.state.active(); err != nil {
		return nil, err
	}
	if err := checkKinds(s.kind, kind); err != nil {
		return nil, err
	}

	mode := neo4j.AccessModeRead
	if kind == TxWrite {
		mode = neo4j.AccessModeWrite
	}
	inner := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.txTimeout
	}
	configurers := []func(*neo4j.TransactionConfig){
		neo4j.WithTxMetadata(map[string]any{
			"app":         "iamgraph",
			"sessionKind": s.kind.String(),
			"infer":       opts.Infer,
		}),
	}
	if timeout > 0 {
		configurers = append(configurers, neo4j.WithTxTimeout(timeout))
	}

	explicit, err := inner.BeginTransaction(ctx, configurers...)
	if err != nil {
		_ = inner.Close(ctx)
		return nil, fmt.Errorf("begin %s transaction on %s: %w", kind, s.database, translateError(err))
	}

	tx := &neo4jTransaction{
		inner:       inner,
		tx:          explicit,
		sessionKind: s.kind,
		kind:        kind,
		opts:        opts,
	}
	tx.release = func() { s.state.untrack(tx) }
	if err := s.state.track(tx); err != nil {
		_ = explicit.Rollback(ctx)
		_ = inner.Close(ctx)
		return nil, err
	}
	return tx, nil
}

func (s *neo4jSession) Close(ctx context.Context) error {
	_, err := s.state.close(ctx)
	return err
}

type neo4jTransaction struct {
	inner       neo4j.SessionWithContext
	tx          neo4j.ExplicitTransaction
	sessionKind SessionKind
	kind        TransactionKind
	opts        TxOptions
	state       txState
	release     func()
}

func (t *neo4jTransaction) Kind() TransactionKind { return t.kind }
func (t *neo4jTransaction) Options() TxOptions { return t.opts }

func (t *neo4jTransaction) Define(ctx context.Context, script string) error {
	if err := t.state.active(); err != nil {
		return err
	}
	if err := checkDefine(t.sessionKind, t.kind); err != nil {
		return err
	}
	statements := cypher.SplitStatements(script)
	if len(statements) == 0 {
		return errors.New("schema script contains no statements")
	}
	for i, stmt := range statements {
		if _, _, err := t.run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *neo4jTransaction) Insert(ctx context.Context, statement string, params map[string]any) ([]Row, error) {
	return t.write(ctx, "insert", statement, params)
}

func (t *neo4jTransaction) Update(ctx context.Context, statement string, params map[string]any) ([]Row, error) {
	return t.write(ctx, "update", statement, params)
}

func (t *neo4jTransaction) Delete(ctx context.Context, statement string, params map[string]any) ([]Row, error) {
	return t.write(ctx, "delete", statement, params)
}

func (t *neo4jTransaction) write(ctx context.Context, op, statement string, params map[string]any) ([]Row, error) {
	if err := t.state.active(); err != nil {
		return nil, err
	}
	if err := checkDataWrite(op, t.sessionKind, t.kind); err != nil {
		return nil, err
	}
	rows, _, err := t.run(ctx, statement, params)
	return rows, err
}

func (t *neo4jTransaction) Query(ctx context.Context, statement string, params map[string]any) ([]Row, error) {
	if err := t.state.active(); err != nil {
		return nil, err
	}
	rows, _, err := t.run(ctx, statement, params)
	return rows, err
}

func (t *neo4jTransaction) Aggregate(ctx context.Context, statement string, params map[string]any) (Value, error) {
	if err := t.state.active(); err != nil {
		return Value{}, err
	}
	rows, keys, err := t.run(ctx, statement, params)
	if err != nil {
		return Value{}, err
	}
	return firstValue(rows, keys)
}

// run executes one statement and drains the full result stream.
func (t *neo4jTransaction) run(ctx context.Context, statement string, params map[string]any) ([]Row, []string, error) {
	res, err := t.tx.Run(ctx, statement, params)
	if err != nil {
		return nil, nil, translateError(err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, nil, translateError(err)
	}
	keys, err := res.Keys()
	if err != nil {
		return nil, nil, translateError(err)
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := make(Row, len(rec.Keys))
		for i, key := range rec.Keys {
			v, err := ValueOf(rec.Values[i])
			if err != nil {
				return nil, nil, fmt.Errorf("column %s: %w", key, err)
			}
			row[key] = v
		}
		rows = append(rows, row)
	}
	return rows, keys, nil
}

func (t *neo4jTransaction) Commit(ctx context.Context) error {
	if !t.state.finish() {
		return ErrTransactionClosed
	}
	defer t.cleanup(ctx)
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateError(err))
	}
	return nil
}

func (t *neo4jTransaction) Close(ctx context.Context) error {
	if !t.state.finish() {
		return nil
	}
	defer t.cleanup(ctx)
	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("discard: %w", translateError(err))
	}
	return nil
}

func (t *neo4jTransaction) cleanup(ctx context.Context) {
	_ = t.inner.Close(ctx)
	if t.release != nil {
		t.release()
	}
}

func translateError(err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Code == codeDatabaseNotFound {
		return fmt.Errorf("%w: %v", ErrDatabaseNotFound, err)
	}
	return err
}

func mustValue(raw any) Value {
	v, err := ValueOf(raw)
	if err != nil {
		return Null()
	}
	return v
}
