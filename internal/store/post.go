// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"quillpress/internal/models"
)

// PostStore handles all post-related database operations.
type PostStore struct {
	db DBTX
}

// NewPostStore creates a new PostStore with the given database connection.
func NewPostStore(db DBTX) *PostStore {
	return &PostStore{db: db}
}

const postColumns = `id, title, slug, content, excerpt, featured_image_url, tags,
	status, scheduled_at, published_at, is_featured, allow_comments,
	meta_title, meta_description, category_id, author_id, deleted_at,
	created_at, updated_at`

func scanPost(row scanner) (*models.Post, error) {
	var (
		p    models.Post
		tags string
	)
	err := row.Scan(
		&p.ID, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &p.FeaturedImageURL, &tags,
		&p.Status, &p.ScheduledAt, &p.PublishedAt, &p.IsFeatured, &p.AllowComments,
		&p.MetaTitle, &p.MetaDescription, &p.CategoryID, &p.AuthorID, &p.DeletedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Tags = SplitTags(tags)
	return &p, nil
}

// JoinTags renders tags for the comma-separated tags column.
func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// SplitTags parses the comma-separated tags column.
func SplitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func (s *PostStore) findOne(ctx context.Context, op, where string, arg any) (*models.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE `+where, arg)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// FindByID retrieves a post by its UUID, soft-deleted or not. Returns nil
// if not found.
func (s *PostStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return s.findOne(ctx, "find post by id", "id = $1", id)
}

// FindBySlug retrieves a post by its slug. Returns nil if not found.
func (s *PostStore) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	return s.findOne(ctx, "find post by slug", "slug = $1", slug)
}

// SlugTaken reports whether another post already uses slug.
func (s *PostStore) SlugTaken(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1 AND ($2::uuid IS NULL OR id <> $2))
	`, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check post slug: %w", err)
	}
	return exists, nil
}

// Create inserts a new post and returns it with the generated ID.
func (s *PostStore) Create(ctx context.Context, p *models.Post) (*models.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (title, slug, content, excerpt, featured_image_url, tags,
		                   status, scheduled_at, published_at, is_featured, allow_comments,
		                   meta_title, meta_description, category_id, author_id,
		                   created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING `+postColumns,
		p.Title, p.Slug, p.Content, p.Excerpt, p.FeaturedImageURL, JoinTags(p.Tags),
		p.Status, p.ScheduledAt, p.PublishedAt, p.IsFeatured, p.AllowComments,
		p.MetaTitle, p.MetaDescription, p.CategoryID, p.AuthorID, p.CreatedAt,
	)
	created, err := scanPost(row)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", translate(err))
	}
	return created, nil
}

// Update writes the editable fields of a post. Status and its timestamps
// only change through CompareAndSetStatus.
func (s *PostStore) Update(ctx context.Context, p *models.Post) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts SET
			title = $1, slug = $2, content = $3, excerpt = $4, featured_image_url = $5,
			tags = $6, is_featured = $7, allow_comments = $8, meta_title = $9,
			meta_description = $10, category_id = $11, updated_at = $12
		WHERE id = $13
	`, p.Title, p.Slug, p.Content, p.Excerpt, p.FeaturedImageURL,
		JoinTags(p.Tags), p.IsFeatured, p.AllowComments, p.MetaTitle,
		p.MetaDescription, p.CategoryID, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", translate(err))
	}
	return nil
}

// CompareAndSetStatus applies change only if the post is still live and in
// status from. It reports whether the row was claimed.
func (s *PostStore) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from models.PostStatus, change StatusChange) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET status = $1, scheduled_at = $2, published_at = $3, updated_at = $4
		WHERE id = $5 AND status = $6 AND deleted_at IS NULL
	`, change.To, change.ScheduledAt, change.PublishedAt, change.At, id, from)
	if err != nil {
		return false, fmt.Errorf("set post status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set post status rows: %w", err)
	}
	return n == 1, nil
}

// SoftDelete marks a post deleted and archives it.
func (s *PostStore) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts SET deleted_at = $1, status = 'archived', scheduled_at = NULL, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`, at, id)
	if err != nil {
		return fmt.Errorf("soft delete post: %w", err)
	}
	return nil
}

// Delete removes a post row permanently.
func (s *PostStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete post: %w", translate(err))
	}
	return nil
}

// CountByCategory counts every post row referencing the category,
// including soft-deleted ones (they still hold the foreign key).
func (s *PostStore) CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE category_id = $1`, categoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count posts by category: %w", err)
	}
	return n, nil
}

// CountByAuthor counts every post row owned by the author.
func (s *PostStore) CountByAuthor(ctx context.Context, authorID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE author_id = $1`, authorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count posts by author: %w", err)
	}
	return n, nil
}

// MoveCategory reassigns every post of one category to another and
// returns the number of rows moved.
func (s *PostStore) MoveCategory(ctx context.Context, from, to uuid.UUID, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET category_id = $1, updated_at = $2 WHERE category_id = $3`, to, at, from)
	if err != nil {
		return 0, fmt.Errorf("move posts: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("move posts rows: %w", err)
	}
	return int(n), nil
}

// List returns one page of posts matching f, newest first.
func (s *PostStore) List(ctx context.Context, f PostFilter, p Page) (PostPage, error) {
	p = p.Normalize()
	where, args := postWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&total); err != nil {
		return PostPage{}, fmt.Errorf("count posts: %w", err)
	}

	n := len(args)
	args = append(args, p.Size, p.Offset())
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts`+where+`
		ORDER BY COALESCE(published_at, created_at) DESC, id
		LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return PostPage{}, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	items := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return PostPage{}, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, *post)
	}
	if err := rows.Err(); err != nil {
		return PostPage{}, fmt.Errorf("list posts: %w", err)
	}
	return PostPage{Items: items, Total: total, Page: p.Number, PageSize: p.Size}, nil
}

// postWhere builds the WHERE clause for a filter.
func postWhere(f PostFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if !f.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.CategoryID != nil {
		conds = append(conds, "category_id = "+arg(*f.CategoryID))
	}
	if f.AuthorID != nil {
		conds = append(conds, "author_id = "+arg(*f.AuthorID))
	}
	if f.Featured != nil {
		conds = append(conds, "is_featured = "+arg(*f.Featured))
	}
	if term := strings.TrimSpace(f.Term); term != "" {
		ph := arg("%" + likeEscaper.Replace(term) + "%")
		conds = append(conds, "(title ILIKE "+ph+" OR excerpt ILIKE "+ph+
			" OR content ILIKE "+ph+" OR tags ILIKE "+ph+")")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// likeEscaper escapes LIKE wildcards in user-supplied search terms.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListDueScheduled returns scheduled posts whose date has been reached,
// oldest first.
func (s *PostStore) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE status = 'scheduled' AND scheduled_at <= $1 AND deleted_at IS NULL
		ORDER BY scheduled_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due posts: %w", err)
	}
	defer rows.Close()

	var items []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}
