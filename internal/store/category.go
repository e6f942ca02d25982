// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quillpress/internal/models"
)

// hierarchyLockKey identifies the transaction-scoped advisory lock that
// serializes structural category changes.
const hierarchyLockKey int64 = 0x6361746567 // "categ"

// CategoryStore manages categories in the database.
type CategoryStore struct {
	db DBTX
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db DBTX) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `id, name, slug, description, parent_id, display_order,
	is_active, metadata, created_at, updated_at`

// scanCategory scans a row into a Category struct.
func scanCategory(row scanner, extra ...any) (*models.Category, error) {
	var c models.Category
	dest := []any{
		&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID, &c.DisplayOrder,
		&c.IsActive, &c.Metadata, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns all categories ordered by display_order, with the number of
// live posts each owns directly.
func (s *CategoryStore) List(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.slug, c.description, c.parent_id, c.display_order,
		       c.is_active, c.metadata, c.created_at, c.updated_at,
		       COUNT(p.id) AS post_count
		FROM categories c
		LEFT JOIN posts p ON p.category_id = c.id AND p.deleted_at IS NULL
		GROUP BY c.id
		ORDER BY c.display_order, c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		var count int
		c, err := scanCategory(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.PostCount = count
		items = append(items, *c)
	}
	return items, rows.Err()
}

// ListChildren returns the direct children of parentID, or the roots when
// parentID is nil.
func (s *CategoryStore) ListChildren(ctx context.Context, parentID *uuid.UUID) ([]models.Category, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == nil {
		rows, err = s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories
			WHERE parent_id IS NULL ORDER BY display_order, name`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories
			WHERE parent_id = $1 ORDER BY display_order, name`, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("list child categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// FindByID retrieves a category by ID. Returns nil if not found.
func (s *CategoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", err)
	}
	return c, nil
}

// FindBySlug retrieves a category by slug. Returns nil if not found.
func (s *CategoryStore) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE slug = $1`, slug)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category by slug: %w", err)
	}
	return c, nil
}

// NameTaken reports whether another category already uses name,
// compared case-insensitively.
func (s *CategoryStore) NameTaken(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM categories
		               WHERE lower(name) = lower($1) AND ($2::uuid IS NULL OR id <> $2))
	`, name, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check category name: %w", err)
	}
	return exists, nil
}

// SlugTaken reports whether another category already uses slug.
func (s *CategoryStore) SlugTaken(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM categories
		               WHERE slug = $1 AND ($2::uuid IS NULL OR id <> $2))
	`, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check category slug: %w", err)
	}
	return exists, nil
}

// Create inserts a new category and returns it.
func (s *CategoryStore) Create(ctx context.Context, c *models.Category) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, slug, description, parent_id, display_order, is_active, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+categoryColumns,
		c.Name, c.Slug, c.Description, c.ParentID, c.DisplayOrder, c.IsActive, c.Metadata,
	)
	result, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", translate(err))
	}
	return result, nil
}

// Update modifies the descriptive fields of a category. Structure
// (parent, active flag) is changed through SetParent and SetActive.
func (s *CategoryStore) Update(ctx context.Context, c *models.Category) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE categories SET
			name = $1, slug = $2, description = $3, display_order = $4,
			metadata = $5, updated_at = $6
		WHERE id = $7
	`, c.Name, c.Slug, c.Description, c.DisplayOrder, c.Metadata, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", translate(err))
	}
	return nil
}

// SetParent moves a category under parentID (nil moves it to the root).
func (s *CategoryStore) SetParent(ctx context.Context, id uuid.UUID, parentID *uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE categories SET parent_id = $1, updated_at = $2 WHERE id = $3`, parentID, at, id)
	if err != nil {
		return fmt.Errorf("set category parent: %w", translate(err))
	}
	return nil
}

// SetActive flips the active flag of every listed category.
func (s *CategoryStore) SetActive(ctx context.Context, ids []uuid.UUID, active bool, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE categories SET is_active = $1, updated_at = $2 WHERE id = ANY($3::uuid[])`,
		active, at, uuidStrings(ids))
	if err != nil {
		return fmt.Errorf("set category active: %w", err)
	}
	return nil
}

// Delete removes a category by ID. Children and posts restrict the delete.
func (s *CategoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", translate(err))
	}
	return nil
}

// CountChildren returns the number of direct children of a category.
func (s *CategoryStore) CountChildren(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count child categories: %w", err)
	}
	return n, nil
}

// NextDisplayOrder returns the next display_order value for a given parent.
func (s *CategoryStore) NextDisplayOrder(ctx context.Context, parentID *uuid.UUID) (int, error) {
	var maxOrder sql.NullInt64
	var err error
	if parentID == nil {
		err = s.db.QueryRowContext(ctx, `SELECT MAX(display_order) FROM categories WHERE parent_id IS NULL`).Scan(&maxOrder)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT MAX(display_order) FROM categories WHERE parent_id = $1`, *parentID).Scan(&maxOrder)
	}
	if err != nil {
		return 0, fmt.Errorf("next display order: %w", err)
	}
	if maxOrder.Valid {
		return int(maxOrder.Int64) + 1, nil
	}
	return 0, nil
}

// LockHierarchy takes the transaction-scoped hierarchy lock. Outside a
// transaction it is released immediately.
func (s *CategoryStore) LockHierarchy(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, hierarchyLockKey); err != nil {
		return fmt.Errorf("lock category hierarchy: %w", err)
	}
	return nil
}

// uuidStrings renders ids for a uuid[] parameter.
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
