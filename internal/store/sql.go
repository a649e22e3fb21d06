package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/keywatch/keywatch/internal/model"
)

// SQLStore keeps records in PostgreSQL or SQLite, one table per kind.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// Ensure SQLStore implements Store interface.
var _ Store = (*SQLStore)(nil)

// NewSQL opens a PostgreSQL ("postgres") or SQLite ("sqlite") database and
// creates the record tables.
func NewSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	switch driver {
	case "sqlite":
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set wal mode: %w", err)
		}
	case "postgres":
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	seq := "seq BIGSERIAL PRIMARY KEY"
	counter := "BIGINT"
	if s.driver == "sqlite" {
		seq = "seq INTEGER PRIMARY KEY AUTOINCREMENT"
		counter = "INTEGER"
	}

	for _, k := range model.Kinds {
		schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s,
			id TEXT NOT NULL UNIQUE,
			%s TEXT NOT NULL UNIQUE,
			%s %s NOT NULL DEFAULT 0
		)`, k.Collection, seq, k.KeyColumn, k.CounterColumn, counter)
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("create %s table: %w", k.Collection, err)
		}
	}
	return nil
}

// Backend returns the database backend name.
func (s *SQLStore) Backend() string {
	if s.driver == "sqlite" {
		return BackendSQLite
	}
	return BackendPostgres
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close(ctx context.Context) error {
	return s.db.Close()
}

type sqlRecord struct {
	ID    string `db:"id"`
	Key   string `db:"record_key"`
	Count int64  `db:"record_count"`
}

func (s *SQLStore) List(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	query := fmt.Sprintf("SELECT id, %s AS record_key, %s AS record_count FROM %s ORDER BY seq",
		kind.KeyColumn, kind.CounterColumn, kind.Collection)

	var rows []sqlRecord
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select %s: %w", kind.Collection, err)
	}

	return lo.Map(rows, func(row sqlRecord, _ int) model.Record {
		return model.Record{ID: row.ID, Key: row.Key, Count: row.Count, Kind: kind}
	}), nil
}

func (s *SQLStore) Create(ctx context.Context, kind model.Kind, key string) (model.Record, error) {
	id := uuid.NewString()
	query := s.db.Rebind(fmt.Sprintf("INSERT INTO %s (id, %s, %s) VALUES (?, ?, 0)",
		kind.Collection, kind.KeyColumn, kind.CounterColumn))

	if _, err := s.db.ExecContext(ctx, query, id, key); err != nil {
		if isUniqueViolation(err) {
			return model.Record{}, ErrDuplicate
		}
		return model.Record{}, fmt.Errorf("insert %s: %w", kind.Collection, err)
	}
	return model.NewRecord(kind, id, key), nil
}

func (s *SQLStore) Delete(ctx context.Context, kind model.Kind, id string) error {
	query := s.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ?", kind.Collection))

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind.Collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind.Collection, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation recognises unique constraint failures from lib/pq and
// modernc sqlite.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}
