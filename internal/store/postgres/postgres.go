// Package postgres stores the question bank, roster, attempts and answers in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/errors"
)

//go:embed schema.sql
var schema string

const (
	codeUniqueViolation = "23505"
	// Raised for attempt IDs that are not UUIDs.
	codeInvalidTextRepresentation = "22P02"
)

type Config struct {
	DB *pgxpool.Pool
}

type Store struct {
	db *pgxpool.Pool
}

func New(c Config) *Store {
	return &Store{db: c.DB}
}

// Migrate creates the tables and indexes that do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	// Without arguments pgx uses the simple protocol, which accepts several statements.
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return translate(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return translate(tx.Commit(ctx))
}

func translate(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return domain.ErrConflict.With(errors.WithCause(err), errors.WithMessagef("postgres: %s", pgErr.ConstraintName))
		case codeInvalidTextRepresentation:
			return domain.ErrNotFound.With(errors.WithCause(err), errors.WithMessagef("postgres: malformed identifier"))
		}
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return domain.ErrUnavailable.With(errors.WithCause(err), errors.WithMessagef("postgres: unavailable"))
	}

	return err
}

func notFound(kind, id string) error {
	return domain.ErrNotFound.With(errors.WithMessagef("%s %s not found", kind, id))
}
