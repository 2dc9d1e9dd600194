// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/nestedset"
	"github.com/alfredjeanlab/threads/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
// lockTimeout bounds how long a mutation waits for its scope lock; zero
// leaves it to the caller's context.
func New(databaseURL string, lockTimeout time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db, lockTimeout: lockTimeout}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) InsertComment(ctx context.Context, c *model.Comment) error {
	return classify(c.Scope(), queryInsertComment(ctx, s.db, c))
}

func (s *PostgresStore) GetComment(ctx context.Context, scope model.Scope, id string) (*model.Comment, error) {
	c, err := queryGetComment(ctx, s.db, scope, id)
	return c, classify(scope, err)
}

func (s *PostgresStore) ListComments(ctx context.Context, filter model.CommentFilter) ([]*model.Comment, int, error) {
	return queryListComments(ctx, s.db, filter)
}

func (s *PostgresStore) Ancestors(ctx context.Context, c *model.Comment) ([]*model.Comment, error) {
	return queryAncestors(ctx, s.db, c)
}

func (s *PostgresStore) Descendants(ctx context.Context, c *model.Comment) ([]*model.Comment, error) {
	return queryDescendants(ctx, s.db, c)
}

func (s *PostgresStore) CountComments(ctx context.Context, scope model.Scope) (int, error) {
	return queryCountComments(ctx, s.db, scope)
}

func (s *PostgresStore) Authors(ctx context.Context, scope model.Scope, span *model.Interval) ([]string, error) {
	return queryAuthors(ctx, s.db, scope, span)
}

func (s *PostgresStore) ListScopes(ctx context.Context) ([]model.Scope, error) {
	return queryListScopes(ctx, s.db)
}

func (s *PostgresStore) MaxRight(ctx context.Context, scope model.Scope) (int64, error) {
	return queryMaxRight(ctx, s.db, scope)
}

func (s *PostgresStore) ShiftBounds(ctx context.Context, scope model.Scope, shift nestedset.Shift) (int64, error) {
	n, err := queryShiftBounds(ctx, s.db, scope, shift)
	return n, classify(scope, err)
}

func (s *PostgresStore) DeleteRange(ctx context.Context, scope model.Scope, span model.Interval) (int64, error) {
	n, err := queryDeleteRange(ctx, s.db, scope, span)
	return n, classify(scope, err)
}

// LockScope outside a transaction would release the lock immediately.
func (s *PostgresStore) LockScope(ctx context.Context, scope model.Scope) error {
	return errors.New("lock scope: requires a transaction")
}

// RunInTransaction begins a READ COMMITTED transaction, creates a txStore
// that delegates to it, calls fn, and commits on success or rolls back on
// error. Mutations call LockScope first; statements after the lock see every
// earlier commit to the scope.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if s.lockTimeout > 0 {
		// SET does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(txS.scope, err))
	}
	return nil
}

// RunReadOnly runs fn against a single REPEATABLE READ snapshot, so a
// multi-query read never mixes states from before and after a mutation.
func (s *PostgresStore) RunReadOnly(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&txStore{tx: tx, readOnly: true}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx       *sql.Tx
	scope    model.Scope // last locked scope, for error classification
	readOnly bool
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) InsertComment(ctx context.Context, c *model.Comment) error {
	return classify(c.Scope(), queryInsertComment(ctx, s.tx, c))
}

func (s *txStore) GetComment(ctx context.Context, scope model.Scope, id string) (*model.Comment, error) {
	c, err := queryGetComment(ctx, s.tx, scope, id)
	return c, classify(scope, err)
}

func (s *txStore) ListComments(ctx context.Context, filter model.CommentFilter) ([]*model.Comment, int, error) {
	return queryListComments(ctx, s.tx, filter)
}

func (s *txStore) Ancestors(ctx context.Context, c *model.Comment) ([]*model.Comment, error) {
	return queryAncestors(ctx, s.tx, c)
}

func (s *txStore) Descendants(ctx context.Context, c *model.Comment) ([]*model.Comment, error) {
	return queryDescendants(ctx, s.tx, c)
}

func (s *txStore) CountComments(ctx context.Context, scope model.Scope) (int, error) {
	return queryCountComments(ctx, s.tx, scope)
}

func (s *txStore) Authors(ctx context.Context, scope model.Scope, span *model.Interval) ([]string, error) {
	return queryAuthors(ctx, s.tx, scope, span)
}

func (s *txStore) ListScopes(ctx context.Context) ([]model.Scope, error) {
	return queryListScopes(ctx, s.tx)
}

func (s *txStore) MaxRight(ctx context.Context, scope model.Scope) (int64, error) {
	return queryMaxRight(ctx, s.tx, scope)
}

func (s *txStore) ShiftBounds(ctx context.Context, scope model.Scope, shift nestedset.Shift) (int64, error) {
	n, err := queryShiftBounds(ctx, s.tx, scope, shift)
	return n, classify(scope, err)
}

func (s *txStore) DeleteRange(ctx context.Context, scope model.Scope, span model.Interval) (int64, error) {
	n, err := queryDeleteRange(ctx, s.tx, scope, span)
	return n, classify(scope, err)
}

func (s *txStore) LockScope(ctx context.Context, scope model.Scope) error {
	if s.readOnly {
		return errors.New("lock scope: read-only transaction")
	}
	s.scope = scope
	return classify(scope, queryLockScope(ctx, s.tx, scope))
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// RunReadOnly on a txStore reuses the existing transaction.
func (s *txStore) RunReadOnly(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}

// Postgres error codes that mean another transaction won the race.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// classify turns lock and serialization failures into *model.ConflictError.
func classify(scope model.Scope, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return &model.ConflictError{Scope: scope, Err: err}
		}
	}
	return err
}
