// Package store persists channel and keyword records and owns the
// process-wide database connection.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/model"
)

var (
	// ErrNotFound is returned when a delete matched no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates the unique key index.
	ErrDuplicate = errors.New("duplicate key")
	// ErrNotConnected is returned by Manager.Ping before the first connection.
	ErrNotConnected = errors.New("store not connected")
	// ErrNoConnectionString means no database URI was configured.
	ErrNoConnectionString = errors.New("no database connection string configured")
)

// ConnectionError reports a failed attempt to open the store.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("database connection failed: %v", e.Err)
	}
	return fmt.Sprintf("database connection failed (%s): %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Store defines the record operations every backend provides.
// MongoDB, PostgreSQL and SQLite implementations satisfy this interface.
type Store interface {
	// List returns every record of the kind in insertion order.
	List(ctx context.Context, kind model.Kind) ([]model.Record, error)
	// Create inserts a record with a zero counter. A key that already
	// exists yields ErrDuplicate.
	Create(ctx context.Context, kind model.Kind, key string) (model.Record, error)
	// Delete removes the record with the given id, or returns ErrNotFound.
	Delete(ctx context.Context, kind model.Kind, id string) error

	Ping(ctx context.Context) error

	// Backend returns the database backend name.
	Backend() string

	Close(ctx context.Context) error
}

// Opener opens a store for the given database configuration.
type Opener func(ctx context.Context, cfg config.DatabaseConfig) (Store, error)

// Open picks a backend from the URI scheme and connects to it.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	uri := cfg.URI
	if uri == "" {
		return nil, &ConnectionError{Err: ErrNoConnectionString}
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	var (
		s       Store
		err     error
		backend = BackendFor(uri)
	)
	switch backend {
	case BackendMongo:
		s, err = NewMongo(ctx, uri, cfg.Name, cfg.ConnectTimeout)
	case BackendPostgres:
		s, err = NewSQL(ctx, "postgres", uri)
	case BackendSQLite:
		s, err = NewSQL(ctx, "sqlite", sqlitePath(uri))
	default:
		err = fmt.Errorf("unsupported connection string scheme in %q", redactURI(uri))
	}
	if err != nil {
		return nil, &ConnectionError{Backend: backend, Err: err}
	}
	return s, nil
}

// Backend names.
const (
	BackendMongo    = "MongoDB"
	BackendPostgres = "PostgreSQL"
	BackendSQLite   = "SQLite"
)

// BackendFor returns the backend name for a connection string, or "" when
// the scheme is not recognised.
func BackendFor(uri string) string {
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return BackendMongo
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return BackendPostgres
	case strings.HasPrefix(uri, "sqlite://"), strings.HasPrefix(uri, "file:"):
		return BackendSQLite
	default:
		return ""
	}
}

func sqlitePath(uri string) string {
	return strings.TrimPrefix(uri, "sqlite://")
}

// redactURI drops credentials so connection strings can be logged.
func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}

// opTimeout bounds store calls made outside a request context.
const opTimeout = 5 * time.Second
