// Package gormstore implements store.Store on gorm, for SQLite (development
// and tests) or PostgreSQL.
package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/alfredjeanlab/threads/internal/logger"
	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/nestedset"
	"github.com/alfredjeanlab/threads/internal/store"
)

// commentRow is the comments table. Depth is read-only: queries compute it.
type commentRow struct {
	ID              string    `gorm:"primaryKey"`
	CommentableType string    `gorm:"not null;index:idx_comments_scope_lft,priority:1;index:idx_comments_scope_rgt,priority:1"`
	CommentableID   string    `gorm:"not null;index:idx_comments_scope_lft,priority:2;index:idx_comments_scope_rgt,priority:2"`
	AuthorID        string    `gorm:"not null;index:idx_comments_author"`
	Body            string    `gorm:"not null"`
	ParentID        *string   `gorm:"index"`
	Lft             int64     `gorm:"not null;index:idx_comments_scope_lft,priority:3"`
	Rgt             int64     `gorm:"not null;index:idx_comments_scope_rgt,priority:3"`
	CreatedAt       time.Time `gorm:"not null"`
	Depth           int       `gorm:"->;-:migration"`
}

func (commentRow) TableName() string { return "comments" }

func toRow(c *model.Comment) *commentRow {
	return &commentRow{
		ID:              c.ID,
		CommentableType: c.CommentableType,
		CommentableID:   c.CommentableID,
		AuthorID:        c.AuthorID,
		Body:            c.Body,
		ParentID:        c.ParentID,
		Lft:             c.Lft,
		Rgt:             c.Rgt,
		CreatedAt:       c.CreatedAt,
	}
}

func (r *commentRow) toModel() *model.Comment {
	return &model.Comment{
		ID:              r.ID,
		CommentableType: r.CommentableType,
		CommentableID:   r.CommentableID,
		AuthorID:        r.AuthorID,
		Body:            r.Body,
		ParentID:        r.ParentID,
		Lft:             r.Lft,
		Rgt:             r.Rgt,
		Depth:           r.Depth,
		CreatedAt:       r.CreatedAt,
	}
}

func toModels(rows []commentRow) []*model.Comment {
	out := make([]*model.Comment, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out
}

// selectWithDepth selects every column of c plus the count of intervals
// strictly containing it.
const selectWithDepth = `c.*, (SELECT COUNT(*) FROM comments a
	WHERE a.commentable_type = c.commentable_type AND a.commentable_id = c.commentable_id
	AND a.lft < c.lft AND a.rgt > c.rgt) AS depth`

// Store implements store.Store on a *gorm.DB. Inside RunInTransaction the
// db handle is the transaction and tx tracks the scope locks it holds.
type Store struct {
	db    *gorm.DB
	locks *scopeLocks
	log   *logger.Logger
	tx    *txState
}

type txState struct {
	readOnly bool
	locked   map[string]bool
	releases []func()
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// OpenSQLite opens (or creates) a SQLite database. ":memory:" gives a
// private in-memory database that lives as long as the Store.
func OpenSQLite(path string, log *logger.Logger) (*Store, error) {
	return Open(sqlite.Open(path), log)
}

// OpenPostgres opens a PostgreSQL database through gorm.
func OpenPostgres(databaseURL string, log *logger.Logger) (*Store, error) {
	return Open(postgres.Open(databaseURL), log)
}

// Open connects with the given dialector and migrates the schema.
func Open(dialector gorm.Dialector, log *logger.Logger) (*Store, error) {
	storeLog := log.With("component", "gormstore", "dialect", dialector.Name())

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.New(
			zap.NewStdLog(log.SugaredLogger.Desugar()),
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// One connection: SQLite serializes writers anyway, and an
		// in-memory database exists per connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.AutoMigrate(&commentRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	storeLog.Debug("store opened")
	return &Store{db: db, locks: newScopeLocks(), log: storeLog}, nil
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func scoped(db *gorm.DB, scope model.Scope) *gorm.DB {
	return db.Where("commentable_type = ? AND commentable_id = ?", scope.Type, scope.ID)
}

func (s *Store) InsertComment(ctx context.Context, c *model.Comment) error {
	return s.conn(ctx).Create(toRow(c)).Error
}

func (s *Store) GetComment(ctx context.Context, scope model.Scope, id string) (*model.Comment, error) {
	var row commentRow
	err := s.conn(ctx).
		Table("comments AS c").
		Select(selectWithDepth).
		Where("c.id = ? AND c.commentable_type = ? AND c.commentable_id = ?", id, scope.Type, scope.ID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &model.NotFoundError{Kind: "comment", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) ListComments(ctx context.Context, filter model.CommentFilter) ([]*model.Comment, int, error) {
	build := func() *gorm.DB {
		inner := s.conn(ctx).Table("comments AS c").Select(selectWithDepth)
		if filter.Scope != nil {
			inner = inner.Where("c.commentable_type = ? AND c.commentable_id = ?", filter.Scope.Type, filter.Scope.ID)
		}
		if filter.RootsOnly {
			inner = inner.Where("c.parent_id IS NULL")
		}
		if filter.Within != nil {
			inner = inner.Where("c.lft > ? AND c.rgt < ?", filter.Within.Left, filter.Within.Right)
		}
		if filter.Span != nil {
			inner = inner.Where("c.lft >= ? AND c.rgt <= ?", filter.Span.Left, filter.Span.Right)
		}
		if filter.AuthorID != "" {
			inner = inner.Where("c.author_id = ?", filter.AuthorID)
		}

		q := s.conn(ctx).Table("(?) AS t", inner)
		if filter.MaxDepth != nil {
			q = q.Where("t.depth <= ?", *filter.MaxDepth)
		}
		return q
	}

	var total int64
	if err := build().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	q := build().Order(orderClause(filter))
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []commentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	return toModels(rows), int(total), nil
}

// orderClause returns lft order for tree listings and created_at order otherwise.
func orderClause(filter model.CommentFilter) string {
	if filter.TreeOrder || filter.Within != nil || filter.Span != nil {
		return "t.lft ASC"
	}
	if filter.Order == model.OrderAsc {
		return "t.created_at ASC, t.id ASC"
	}
	return "t.created_at DESC, t.id DESC"
}

func (s *Store) Ancestors(ctx context.Context, c *model.Comment) ([]*model.Comment, error) {
	var rows []commentRow
	err := s.conn(ctx).
		Table("comments AS c").
		Select(selectWithDepth).
		Where("c.commentable_type = ? AND c.commentable_id = ?", c.CommentableType, c.CommentableID).
		Where("c.lft < ? AND c.rgt > ?", c.Lft, c.Rgt).
		Order("c.lft ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ancestors: %w", err)
	}
	return toModels(rows), nil
}

func (s *Store) Descendants(ctx context.Context, c *model.Comment) ([]*model.Comment, error) {
	var rows []commentRow
	err := s.conn(ctx).
		Table("comments AS c").
		Select(selectWithDepth).
		Where("c.commentable_type = ? AND c.commentable_id = ?", c.CommentableType, c.CommentableID).
		Where("c.lft > ? AND c.rgt < ?", c.Lft, c.Rgt).
		Order("c.lft ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("descendants: %w", err)
	}
	return toModels(rows), nil
}

func (s *Store) CountComments(ctx context.Context, scope model.Scope) (int, error) {
	var n int64
	if err := scoped(s.conn(ctx).Model(&commentRow{}), scope).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return int(n), nil
}

func (s *Store) Authors(ctx context.Context, scope model.Scope, span *model.Interval) ([]string, error) {
	q := scoped(s.conn(ctx).Model(&commentRow{}), scope)
	if span != nil {
		q = q.Where("lft >= ? AND rgt <= ?", span.Left, span.Right)
	}
	var authors []string
	if err := q.Distinct().Order("author_id").Pluck("author_id", &authors).Error; err != nil {
		return nil, fmt.Errorf("authors: %w", err)
	}
	return authors, nil
}

func (s *Store) ListScopes(ctx context.Context) ([]model.Scope, error) {
	var rows []struct {
		CommentableType string
		CommentableID   string
	}
	err := s.conn(ctx).
		Model(&commentRow{}).
		Distinct("commentable_type", "commentable_id").
		Order("commentable_type, commentable_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	scopes := make([]model.Scope, len(rows))
	for i, r := range rows {
		scopes[i] = model.Scope{Type: r.CommentableType, ID: r.CommentableID}
	}
	return scopes, nil
}

func (s *Store) MaxRight(ctx context.Context, scope model.Scope) (int64, error) {
	var max int64
	err := scoped(s.conn(ctx).Model(&commentRow{}), scope).
		Select("COALESCE(MAX(rgt), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("max right: %w", err)
	}
	return max, nil
}

func (s *Store) ShiftBounds(ctx context.Context, scope model.Scope, shift nestedset.Shift) (int64, error) {
	res := scoped(s.conn(ctx).Model(&commentRow{}), scope).
		Where("rgt >= ?", shift.From).
		Updates(map[string]any{
			"lft": gorm.Expr("CASE WHEN lft >= ? THEN lft + ? ELSE lft END", shift.From, shift.Delta),
			"rgt": gorm.Expr("CASE WHEN rgt >= ? THEN rgt + ? ELSE rgt END", shift.From, shift.Delta),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("shift bounds: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) DeleteRange(ctx context.Context, scope model.Scope, span model.Interval) (int64, error) {
	res := scoped(s.conn(ctx), scope).
		Where("lft >= ? AND lft <= ?", span.Left, span.Right).
		Delete(&commentRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete range: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// LockScope takes the in-process lock for scope until the surrounding
// transaction ends. Locking the same scope twice in one transaction is a
// no-op.
func (s *Store) LockScope(ctx context.Context, scope model.Scope) error {
	if s.tx == nil {
		return errors.New("lock scope: requires a transaction")
	}
	if s.tx.readOnly {
		return errors.New("lock scope: read-only transaction")
	}
	key := scope.Type + "\x00" + scope.ID
	if s.tx.locked[key] {
		return nil
	}
	release, err := s.locks.acquire(ctx, key)
	if err != nil {
		return &model.ConflictError{Scope: scope, Err: err}
	}
	s.tx.locked[key] = true
	s.tx.releases = append(s.tx.releases, release)
	return nil
}

// RunInTransaction runs fn in a gorm transaction. Scope locks taken by fn
// are released after commit or rollback. A nested call reuses the
// transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	state := &txState{locked: make(map[string]bool)}
	defer func() {
		for _, release := range state.releases {
			release()
		}
	}()
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, locks: s.locks, log: s.log, tx: state})
	})
}

// RunReadOnly runs fn in one transaction so its queries share a snapshot.
// On PostgreSQL the transaction is read-only REPEATABLE READ.
func (s *Store) RunReadOnly(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	var opts []*sql.TxOptions
	if s.db.Dialector.Name() == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	state := &txState{readOnly: true}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, locks: s.locks, log: s.log, tx: state})
	}, opts...)
}

// Close closes the underlying connection pool. It is a no-op on a
// transaction-bound Store.
func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
