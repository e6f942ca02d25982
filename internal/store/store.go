// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store defines the persistence gateway used by the content core
// and provides its PostgreSQL implementation. Each store struct wraps a
// DBTX (a *sql.DB or a *sql.Tx) and exposes typed query methods.
//
// Lookups return (nil, nil) when the row does not exist. Unique and foreign
// key violations are reported as *ConstraintError wrapping ErrDuplicate or
// ErrForeignKey so callers can translate them into business errors.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"quillpress/internal/models"
)

var (
	// ErrDuplicate is wrapped by errors caused by a unique constraint.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrForeignKey is wrapped by errors caused by a foreign key constraint.
	ErrForeignKey = errors.New("referenced record constraint")
	// ErrNotFound is returned by writes addressing a row that does not exist.
	ErrNotFound = errors.New("record not found")
)

// ConstraintError is a storage-level integrity violation.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Err, e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// Page selects a window of a listing. Numbers start at 1.
type Page struct {
	Number int
	Size   int
}

// Paging limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize applies defaults and bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// PostPage is one page of a post listing.
type PostPage struct {
	Items    []models.Post `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// PostFilter narrows a post listing. Zero values do not filter.
type PostFilter struct {
	Status         models.PostStatus
	CategoryID     *uuid.UUID
	AuthorID       *uuid.UUID
	Featured       *bool
	Term           string
	IncludeDeleted bool
}

// StatusChange is the write half of a status compare-and-swap.
type StatusChange struct {
	To          models.PostStatus
	ScheduledAt *time.Time
	PublishedAt *time.Time
	At          time.Time
}

// UserRepository persists users.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, u *models.User) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Count(ctx context.Context) (int, error)
}

// CategoryRepository persists categories.
type CategoryRepository interface {
	Create(ctx context.Context, c *models.Category) (*models.Category, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	FindBySlug(ctx context.Context, slug string) (*models.Category, error)
	NameTaken(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error)
	SlugTaken(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error)
	Update(ctx context.Context, c *models.Category) error
	SetParent(ctx context.Context, id uuid.UUID, parentID *uuid.UUID, at time.Time) error
	SetActive(ctx context.Context, ids []uuid.UUID, active bool, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]models.Category, error)
	ListChildren(ctx context.Context, parentID *uuid.UUID) ([]models.Category, error)
	CountChildren(ctx context.Context, id uuid.UUID) (int, error)
	NextDisplayOrder(ctx context.Context, parentID *uuid.UUID) (int, error)
	LockHierarchy(ctx context.Context) error
}

// PostRepository persists posts.
type PostRepository interface {
	Create(ctx context.Context, p *models.Post) (*models.Post, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	FindBySlug(ctx context.Context, slug string) (*models.Post, error)
	SlugTaken(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error)
	Update(ctx context.Context, p *models.Post) error
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from models.PostStatus, change StatusChange) (bool, error)
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error)
	CountByAuthor(ctx context.Context, authorID uuid.UUID) (int, error)
	MoveCategory(ctx context.Context, from, to uuid.UUID, at time.Time) (int, error)
	List(ctx context.Context, f PostFilter, p Page) (PostPage, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Post, error)
}

// Repos groups the repositories bound to one connection or transaction.
type Repos interface {
	Users() UserRepository
	Categories() CategoryRepository
	Posts() PostRepository
}

// Gateway is the persistence boundary consumed by the managers. InTx runs
// fn in a single transaction: any error returned by fn rolls back every
// write made through the Repos it was given.
type Gateway interface {
	Repos
	InTx(ctx context.Context, fn func(Repos) error) error
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres is the PostgreSQL Gateway.
type Postgres struct {
	db *sql.DB
}

// New returns a Gateway backed by the given connection pool.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Users() UserRepository           { return NewUserStore(s.db) }
func (s *Postgres) Categories() CategoryRepository { return NewCategoryStore(s.db) }
func (s *Postgres) Posts() PostRepository           { return NewPostStore(s.db) }

// InTx runs fn inside a database transaction.
func (s *Postgres) InTx(ctx context.Context, fn func(Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(txRepos{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", translate(err))
	}
	return nil
}

type txRepos struct {
	tx *sql.Tx
}

func (r txRepos) Users() UserRepository           { return NewUserStore(r.tx) }
func (r txRepos) Categories() CategoryRepository { return NewCategoryStore(r.tx) }
func (r txRepos) Posts() PostRepository           { return NewPostStore(r.tx) }

// translate maps PostgreSQL integrity violations to ConstraintError.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return &ConstraintError{Constraint: pgErr.ConstraintName, Err: ErrDuplicate}
		case "23503": // foreign_key_violation
			return &ConstraintError{Constraint: pgErr.ConstraintName, Err: ErrForeignKey}
		}
	}
	return err
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface{ Scan(...any) error }
