package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vanshika/iamgraph/internal/cypher"
)

// Op names a driver operation recorded by MemoryDriver.
type Op string

const (
	OpDatabaseExists Op = "database_exists"
	OpCreateDatabase Op = "create_database"
	OpDeleteDatabase Op = "delete_database"
	OpOpenSession    Op = "open_session"
	OpCloseSession   Op = "close_session"
	OpBegin          Op = "begin"
	OpDefine         Op = "define"
	OpInsert         Op = "insert"
	OpUpdate         Op = "update"
	OpDelete         Op = "delete"
	OpQuery          Op = "query"
	OpAggregate      Op = "aggregate"
	OpCommit         Op = "commit"
	OpDiscard        Op = "discard"
)

// ExecutedQuery captures one operation performed against the MemoryDriver.
type ExecutedQuery struct {
	Op          Op
	Database    string
	Session     SessionKind
	Transaction TransactionKind
	Query       string
	Params      map[string]any
}

// MemoryDatabase is the committed state of one in-memory database.
type MemoryDatabase struct {
	Name   string
	Schema []string
	Data   []ExecutedQuery
}

func (db *MemoryDatabase) clone() MemoryDatabase {
	return MemoryDatabase{
		Name:   db.Name,
		Schema: append([]string(nil), db.Schema...),
		Data:   append([]ExecutedQuery(nil), db.Data...),
	}
}

// AggregateFunc computes an aggregate from a snapshot of committed state.
type AggregateFunc func(db MemoryDatabase, statement string, params map[string]any) (Value, error)

type memoryFailure struct {
	op    Op
	match string
	err   error
}

// MemoryDriver is an in-memory Driver used for unit testing workflows and
// repositories without a running graph server. Writes are staged per
// transaction and applied to the database only on Commit.
type MemoryDriver struct {
	mu           sync.Mutex
	databases    map[string]*MemoryDatabase
	calls        []ExecutedQuery
	failures     []memoryFailure
	readResults  [][]Row
	writeResults [][]Row
	aggregate    AggregateFunc
	connectivity error
	closed       bool
}

// NewMemoryDriver instantiates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{databases: make(map[string]*MemoryDatabase)}
}

// FailOn makes every op whose statement contains match fail with err. An empty
// match applies to every call of op; for database ops match is the database name.
func (m *MemoryDriver) FailOn(op Op, match string, err error) *MemoryDriver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, memoryFailure{op: op, match: match, err: err})
	return m
}

// WithConnectivityError forces VerifyConnectivity to return the supplied error.
func (m *MemoryDriver) WithConnectivityError(err error) *MemoryDriver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivity = err
	return m
}

// WithAggregate installs the function answering Aggregate calls. Without one,
// Aggregate returns ErrNoValue.
func (m *MemoryDriver) WithAggregate(fn AggregateFunc) *MemoryDriver {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregate = fn
	return m
}

// PushReadResult appends rows returned by the next Query call.
func (m *MemoryDriver) PushReadResult(rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readResults = append(m.readResults, rows)
}

// PushWriteResult appends rows returned by the next Insert, Update or Delete call.
func (m *MemoryDriver) PushWriteResult(rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeResults = append(m.writeResults, rows)
}

// Database returns a snapshot of the committed state of name.
func (m *MemoryDriver) Database(name string) (MemoryDatabase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.databases[name]
	if !ok {
		return MemoryDatabase{}, false
	}
	return db.clone(), true
}

// Calls returns a snapshot of every recorded operation in order.
func (m *MemoryDriver) Calls() []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutedQuery(nil), m.calls...)
}

// CallsFor returns the recorded operations of the given kinds, in order.
func (m *MemoryDriver) CallsFor(ops ...Op) []ExecutedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExecutedQuery
	for _, c := range m.calls {
		for _, op := range ops {
			if c.Op == op {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// record appends call to the log and returns the injected failure, if any.
// Callers must hold m.mu.
func (m *MemoryDriver) record(call ExecutedQuery) error {
	call.Params = cloneMap(call.Params)
	m.calls = append(m.calls, call)
	if m.closed {
		return ErrDriverClosed
	}
	subject := call.Query
	if subject == "" {
		subject = call.Database
	}
	for _, f := range m.failures {
		if f.op == call.Op && (f.match == "" || strings.Contains(subject, f.match)) {
			return f.err
		}
	}
	return nil
}

func (m *MemoryDriver) DatabaseExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ExecutedQuery{Op: OpDatabaseExists, Database: name}); err != nil {
		return false, err
	}
	if err := ValidateDatabaseName(name); err != nil {
		return false, err
	}
	_, ok := m.databases[name]
	return ok, nil
}

func (m *MemoryDriver) CreateDatabase(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ExecutedQuery{Op: OpCreateDatabase, Database: name}); err != nil {
		return err
	}
	if err := ValidateDatabaseName(name); err != nil {
		return err
	}
	if _, ok := m.databases[name]; ok {
		return fmt.Errorf("create database %s: already exists", name)
	}
	m.databases[name] = &MemoryDatabase{Name: name}
	return nil
}

func (m *MemoryDriver) DeleteDatabase(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ExecutedQuery{Op: OpDeleteDatabase, Database: name}); err != nil {
		return err
	}
	delete(m.databases, name)
	return nil
}

func (m *MemoryDriver) OpenSession(_ context.Context, database string, kind SessionKind) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(ExecutedQuery{Op: OpOpenSession, Database: database, Session: kind}); err != nil {
		return nil, err
	}
	if kind != SessionSchema && kind != SessionData {
		return nil, fmt.Errorf("unknown session kind %s", kind)
	}
	if _, ok := m.databases[database]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, database)
	}
	return &memorySession{driver: m, database: database, kind: kind}, nil
}

func (m *MemoryDriver) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDriverClosed
	}
	return m.connectivity
}

func (m *MemoryDriver) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memorySession struct {
	driver   *MemoryDriver
	database string
	kind     SessionKind
	state    sessionState
}

func (s *memorySession) Database() string { return s.database }
func (s *memorySession) Kind() SessionKind { return s.kind }

func (s *memorySession) Transaction(_ context.Context, kind TransactionKind, opts TxOptions) (Transaction, error) {
	if err := s.state.active(); err != nil {
		return nil, err
	}
	if err := checkKinds(s.kind, kind); err != nil {
		return nil, err
	}

	s.driver.mu.Lock()
	err := s.driver.record(ExecutedQuery{Op: OpBegin, Database: s.database, Session: s.kind, Transaction: kind})
	s.driver.mu.Unlock()
	if err != nil {
		return nil, err
	}

	tx := &memoryTransaction{session: s, kind: kind, opts: opts}
	if err := s.state.track(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *memorySession) Close(ctx context.Context) error {
	first, err := s.state.close(ctx)
	if first {
		s.driver.mu.Lock()
		_ = s.driver.record(ExecutedQuery{Op: OpCloseSession, Database: s.database, Session: s.kind})
		s.driver.mu.Unlock()
	}
	return err
}

type memoryTransaction struct {
	session *memorySession
	kind    TransactionKind
	opts    TxOptions
	state   txState

	schema []string
	data   []ExecutedQuery
}

func (t *memoryTransaction) Kind() TransactionKind { return t.kind }
func (t *memoryTransaction) Options() TxOptions { return t.opts }

func (t *memoryTransaction) call(op Op, statement string, params map[string]any) ExecutedQuery {
	return ExecutedQuery{
		Op:          op,
		Database:    t.session.database,
		Session:     t.session.kind,
		Transaction: t.kind,
		Query:       statement,
		Params:      params,
	}
}

func (t *memoryTransaction) Define(_ context.Context, script string) error {
	if err := t.state.active(); err != nil {
		return err
	}
	if err := checkDefine(t.session.kind, t.kind); err != nil {
		return err
	}
	statements := cypher.SplitStatements(script)
	if len(statements) == 0 {
		return errors.New("schema script contains no statements")
	}

	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, stmt := range statements {
		if err := d.record(t.call(OpDefine, stmt, nil)); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
		t.schema = append(t.schema, stmt)
	}
	return nil
}

func (t *memoryTransaction) Insert(_ context.Context, statement string, params map[string]any) ([]Row, error) {
	return t.write(OpInsert, statement, params)
}

func (t *memoryTransaction) Update(_ context.Context, statement string, params map[string]any) ([]Row, error) {
	return t.write(OpUpdate, statement, params)
}

func (t *memoryTransaction) Delete(_ context.Context, statement string, params map[string]any) ([]Row, error) {
	return t.write(OpDelete, statement, params)
}

func (t *memoryTransaction) write(op Op, statement string, params map[string]any) ([]Row, error) {
	if err := t.state.active(); err != nil {
		return nil, err
	}
	if err := checkDataWrite(string(op), t.session.kind, t.kind); err != nil {
		return nil, err
	}

	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	call := t.call(op, statement, params)
	if err := d.record(call); err != nil {
		return nil, err
	}
	call.Params = cloneMap(params)
	t.data = append(t.data, call)

	if len(d.writeResults) == 0 {
		return nil, nil
	}
	rows := d.writeResults[0]
	d.writeResults = d.writeResults[1:]
	return rows, nil
}

func (t *memoryTransaction) Query(_ context.Context, statement string, params map[string]any) ([]Row, error) {
	if err := t.state.active(); err != nil {
		return nil, err
	}

	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(t.call(OpQuery, statement, params)); err != nil {
		return nil, err
	}
	if len(d.readResults) == 0 {
		return nil, nil
	}
	rows := d.readResults[0]
	d.readResults = d.readResults[1:]
	return rows, nil
}

func (t *memoryTransaction) Aggregate(_ context.Context, statement string, params map[string]any) (Value, error) {
	if err := t.state.active(); err != nil {
		return Value{}, err
	}

	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(t.call(OpAggregate, statement, params)); err != nil {
		return Value{}, err
	}
	db, ok := d.databases[t.session.database]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrDatabaseNotFound, t.session.database)
	}
	if d.aggregate == nil {
		return Value{}, ErrNoValue
	}
	v, err := d.aggregate(db.clone(), statement, cloneMap(params))
	if err != nil {
		return Value{}, err
	}
	if v.IsNull() {
		return Value{}, ErrNoValue
	}
	return v, nil
}

func (t *memoryTransaction) Commit(context.Context) error {
	if !t.state.finish() {
		return ErrTransactionClosed
	}
	defer t.session.state.untrack(t)

	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(t.call(OpCommit, "", nil)); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db, ok := d.databases[t.session.database]
	if !ok {
		return fmt.Errorf("commit: %w: %s", ErrDatabaseNotFound, t.session.database)
	}
	if t.kind == TxWrite {
		db.Schema = append(db.Schema, t.schema...)
		db.Data = append(db.Data, t.data...)
	}
	return nil
}

func (t *memoryTransaction) Close(context.Context) error {
	if !t.state.finish() {
		return nil
	}
	defer t.session.state.untrack(t)

	d := t.session.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.record(t.call(OpDiscard, "", nil))
	t.schema = nil
	t.data = nil
	return nil
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
