// Package sqlite stores the question bank, roster, attempts and answers in an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/errors"
)

//go:embed schema.sql
var schema string

const defaultDSN = "file:examprep.db?mode=rwc&_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

type Config struct {
	// DSN is a modernc.org/sqlite data source name. Transactions must take the write
	// lock when they begin (_txlock=immediate) so that read-then-write sequences
	// serialize.
	DSN string
	// MaxOpenConns is 1 for in-memory databases.
	MaxOpenConns int
}

// MemoryDSN returns the DSN of a fresh private in-memory database. It lives as
// long as one connection to it stays open, so pair it with MaxOpenConns 1.
func MemoryDSN() string {
	return "file:" + uuid.NewString() + "?mode=memory&cache=shared&_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

type Store struct {
	db *sql.DB
}

// Open opens the database and applies the schema.
func Open(ctx context.Context, c Config) (*Store, error) {
	dsn := c.DSN
	if dsn == "" {
		dsn = defaultDSN
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
		db.SetMaxIdleConns(c.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, stderrors.Join(fmt.Errorf("ping sqlite: %w", err), db.Close())
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		return nil, stderrors.Join(err, db.Close())
	}

	return s, nil
}

// Migrate creates the tables and indexes that do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback())
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return translate(tx.Commit())
}

// translate maps driver errors onto domain errors: constraint races become
// domain.ErrConflict and lock contention becomes domain.ErrUnavailable.
func translate(err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return domain.ErrUnavailable.With(errors.WithCause(err), errors.WithMessagef("sqlite: deadline exceeded"))
	}

	var se *moderncsqlite.Error
	if !stderrors.As(err, &se) {
		return err
	}

	switch code := se.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return domain.ErrConflict.With(errors.WithCause(err), errors.WithMessagef("sqlite: %s", se.Error()))
	case code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"):
		return domain.ErrConflict.With(errors.WithCause(err), errors.WithMessagef("sqlite: %s", se.Error()))
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return domain.ErrUnavailable.With(errors.WithCause(err), errors.WithMessagef("sqlite: database is locked"))
	}

	return err
}

func notFound(kind, id string) error {
	return domain.ErrNotFound.With(errors.WithMessagef("%s %s not found", kind, id))
}
