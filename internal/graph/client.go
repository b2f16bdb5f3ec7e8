package graph

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Driver is the connection-level contract to the graph server. Implementations are
// safe for concurrent use once constructed.
type Driver interface {
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name string) error
	DeleteDatabase(ctx context.Context, name string) error
	OpenSession(ctx context.Context, database string, kind SessionKind) (Session, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Session is bound to one database and one SessionKind. It must be closed after use.
type Session interface {
	Database() string
	Kind() SessionKind
	Transaction(ctx context.Context, kind TransactionKind, opts TxOptions) (Transaction, error)
	Close(ctx context.Context) error
}

// Transaction is a unit of work inside a Session. Write transactions persist only
// after Commit; Close discards anything uncommitted. A closed transaction rejects
// every further call with ErrTransactionClosed.
type Transaction interface {
	Kind() TransactionKind
	Options() TxOptions

	// Define runs a schema script (one or more ';'-separated statements).
	Define(ctx context.Context, script string) error
	// Insert, Update and Delete run a data-modifying statement and return its rows.
	Insert(ctx context.Context, statement string, params map[string]any) ([]Row, error)
	Update(ctx context.Context, statement string, params map[string]any) ([]Row, error)
	Delete(ctx context.Context, statement string, params map[string]any) ([]Row, error)
	// Query runs a read statement and returns all rows.
	Query(ctx context.Context, statement string, params map[string]any) ([]Row, error)
	// Aggregate runs a statement reducing to a single scalar, returned from the first
	// column of the first row. An empty result or a null value yields ErrNoValue.
	Aggregate(ctx context.Context, statement string, params map[string]any) (Value, error)

	Commit(ctx context.Context) error
	Close(ctx context.Context) error
}

// SessionKind selects what a session may change.
type SessionKind int

const (
	SessionSchema SessionKind = iota + 1
	SessionData
)

func (k SessionKind) String() string {
	switch k {
	case SessionSchema:
		return "schema"
	case SessionData:
		return "data"
	default:
		return fmt.Sprintf("SessionKind(%d)", int(k))
	}
}

// TransactionKind selects read-only or read-write access.
type TransactionKind int

const (
	TxRead TransactionKind = iota + 1
	TxWrite
)

func (k TransactionKind) String() string {
	switch k {
	case TxRead:
		return "read"
	case TxWrite:
		return "write"
	default:
		return fmt.Sprintf("TransactionKind(%d)", int(k))
	}
}

// TxOptions tunes a single transaction.
type TxOptions struct {
	// Infer asks read queries to follow derived access paths (group membership and
	// directory collections) in addition to direct grants.
	Infer bool
	// Timeout bounds the transaction on the server; zero uses the server default.
	Timeout time.Duration
}

// Options configures a Driver connection.
type Options struct {
	URI              string
	Username         string
	Password         string
	MaxConnections   int
	ConnectTimeout   time.Duration
	TxTimeout        time.Duration
	RetryMaxAttempts int
	RetryInitial     time.Duration
	RetryMaxElapsed  time.Duration
	UserAgent        string
}

var (
	// ErrMissingURI indicates the graph URI is not provided.
	ErrMissingURI = errors.New("graph URI is required")
	// ErrSessionClosed is returned by any call on a closed session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrTransactionClosed is returned by any call on a committed or discarded transaction.
	ErrTransactionClosed = errors.New("transaction is closed")
	// ErrWrongSessionKind is returned when an operation is not allowed for the session kind.
	ErrWrongSessionKind = errors.New("operation not allowed in this session kind")
	// ErrReadOnlyTransaction is returned for writes attempted in a read transaction.
	ErrReadOnlyTransaction = errors.New("transaction is read-only")
	// ErrNoValue is returned by Aggregate when the server produced no value.
	ErrNoValue = errors.New("aggregate returned no value")
	// ErrInvalidDatabaseName is returned for names the server would reject.
	ErrInvalidDatabaseName = errors.New("invalid database name")
	// ErrDriverClosed is returned by calls on a closed driver.
	ErrDriverClosed = errors.New("driver is closed")
	// ErrDatabaseNotFound is returned when opening a session on a missing database.
	ErrDatabaseNotFound = errors.New("database not found")
)

var databaseNamePattern = regexp.MustCompile(`^[a-z][a-z0-9.-]{2,62}$`)

// ValidateDatabaseName checks name against the server's naming rules: a lowercase
// ASCII letter followed by letters, digits, dots or dashes, 3 to 63 characters.
func ValidateDatabaseName(name string) error {
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabaseName, name)
	}
	return nil
}
