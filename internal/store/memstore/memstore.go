// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package memstore is an in-memory store.Gateway. It enforces the same
// unique and restrict constraints as the PostgreSQL schema and reports them
// with the same *store.ConstraintError values, so managers behave the same
// against either backend.
//
// A single mutex guards the data. InTx holds it for the whole callback and
// works on a private copy that replaces the committed state only when the
// callback succeeds. The callback must use the Repos it is given; calling
// the Store itself from inside InTx deadlocks.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quillpress/internal/models"
	"quillpress/internal/store"
)

// Store is the in-memory gateway.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for database-assigned timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type state struct {
	users      map[uuid.UUID]models.User
	categories map[uuid.UUID]models.Category
	posts      map[uuid.UUID]models.Post
}

func newState() *state {
	return &state{
		users:      make(map[uuid.UUID]models.User),
		categories: make(map[uuid.UUID]models.Category),
		posts:      make(map[uuid.UUID]models.Post),
	}
}

// clone copies the state. Records are stored by value; the only shared
// references are the tags slices, which are never mutated in place.
func (st *state) clone() *state {
	c := newState()
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.categories {
		c.categories[k] = v
	}
	for k, v := range st.posts {
		c.posts[k] = v
	}
	return c
}

// view binds repositories either to the committed state (tx == nil, one
// lock per call) or to a transaction's private copy.
type view struct {
	s  *Store
	tx *state
}

func (v view) run(fn func(*state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.st)
}

func (s *Store) Users() store.UserRepository           { return userRepo{view{s: s}} }
func (s *Store) Categories() store.CategoryRepository { return categoryRepo{view{s: s}} }
func (s *Store) Posts() store.PostRepository           { return postRepo{view{s: s}} }

// InTx runs fn against a copy of the data and commits it if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(store.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(txRepos{view{s: s, tx: work}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.st = work
	return nil
}

type txRepos struct{ v view }

func (r txRepos) Users() store.UserRepository           { return userRepo{r.v} }
func (r txRepos) Categories() store.CategoryRepository { return categoryRepo{r.v} }
func (r txRepos) Posts() store.PostRepository           { return postRepo{r.v} }

func duplicate(constraint string) error {
	return &store.ConstraintError{Constraint: constraint, Err: store.ErrDuplicate}
}

func foreignKey(constraint string) error {
	return &store.ConstraintError{Constraint: constraint, Err: store.ErrForeignKey}
}

func notFound(entity string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", entity, id, store.ErrNotFound)
}

func ptr[T any](v T) *T { return &v }

// --- users ---

type userRepo struct{ v view }

func checkUser(st *state, u models.User) error {
	for id, other := range st.users {
		if id == u.ID {
			continue
		}
		if other.Username == u.Username {
			return duplicate("users_username_key")
		}
		if other.Email == u.Email {
			return duplicate("users_email_key")
		}
	}
	return nil
}

func (r userRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	var out models.User
	err := r.v.run(func(st *state) error {
		rec := *u
		rec.ID = uuid.New()
		if err := checkUser(st, rec); err != nil {
			return err
		}
		now := r.v.s.now()
		rec.CreatedAt, rec.UpdatedAt = now, now
		st.users[rec.ID] = rec
		out = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &out, nil
}

func (r userRepo) find(match func(models.User) bool) (*models.User, error) {
	var out *models.User
	err := r.v.run(func(st *state) error {
		for _, u := range st.users {
			if match(u) {
				out = ptr(u)
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r userRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r userRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username })
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email })
}

func (r userRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	u, err := r.FindByUsername(ctx, username)
	return u != nil, err
}

func (r userRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	u, err := r.FindByEmail(ctx, email)
	return u != nil, err
}

func (r userRepo) Update(ctx context.Context, u *models.User) error {
	err := r.v.run(func(st *state) error {
		cur, ok := st.users[u.ID]
		if !ok {
			return notFound("user", u.ID)
		}
		cur.Email, cur.PasswordHash = u.Email, u.PasswordHash
		cur.FirstName, cur.LastName = u.FirstName, u.LastName
		cur.Role, cur.IsActive, cur.UpdatedAt = u.Role, u.IsActive, u.UpdatedAt
		if err := checkUser(st, cur); err != nil {
			return err
		}
		st.users[u.ID] = cur
		return nil
	})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r userRepo) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.v.run(func(st *state) error {
		cur, ok := st.users[id]
		if !ok {
			return notFound("user", id)
		}
		cur.LastLoginAt, cur.UpdatedAt = ptr(at), at
		st.users[id] = cur
		return nil
	})
}

func (r userRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.v.run(func(st *state) error {
		n = len(st.users)
		return nil
	})
	return n, err
}

// --- categories ---

type categoryRepo struct{ v view }

func checkCategory(st *state, c models.Category) error {
	for id, other := range st.categories {
		if id == c.ID {
			continue
		}
		if other.Slug == c.Slug {
			return duplicate("categories_slug_key")
		}
		if strings.EqualFold(other.Name, c.Name) {
			return duplicate("categories_name_key")
		}
	}
	if c.ParentID != nil {
		if *c.ParentID == c.ID {
			return fmt.Errorf("category cannot be its own parent")
		}
		if _, ok := st.categories[*c.ParentID]; !ok {
			return foreignKey("categories_parent_id_fkey")
		}
	}
	return nil
}

func sortCategories(items []models.Category) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].DisplayOrder != items[j].DisplayOrder {
			return items[i].DisplayOrder < items[j].DisplayOrder
		}
		return items[i].Name < items[j].Name
	})
}

func (r categoryRepo) Create(ctx context.Context, c *models.Category) (*models.Category, error) {
	var out models.Category
	err := r.v.run(func(st *state) error {
		rec := *c
		rec.ID = uuid.New()
		if err := checkCategory(st, rec); err != nil {
			return err
		}
		now := r.v.s.now()
		rec.CreatedAt, rec.UpdatedAt = now, now
		st.categories[rec.ID] = rec
		out = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &out, nil
}

func (r categoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var out *models.Category
	err := r.v.run(func(st *state) error {
		if c, ok := st.categories[id]; ok {
			out = ptr(c)
		}
		return nil
	})
	return out, err
}

func (r categoryRepo) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var out *models.Category
	err := r.v.run(func(st *state) error {
		for _, c := range st.categories {
			if c.Slug == slug {
				out = ptr(c)
				break
			}
		}
		return nil
	})
	return out, err
}

func (r categoryRepo) taken(match func(models.Category) bool, excludeID *uuid.UUID) (bool, error) {
	var found bool
	err := r.v.run(func(st *state) error {
		for id, c := range st.categories {
			if excludeID != nil && id == *excludeID {
				continue
			}
			if match(c) {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (r categoryRepo) NameTaken(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	return r.taken(func(c models.Category) bool { return strings.EqualFold(c.Name, name) }, excludeID)
}

func (r categoryRepo) SlugTaken(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	return r.taken(func(c models.Category) bool { return c.Slug == slug }, excludeID)
}

func (r categoryRepo) Update(ctx context.Context, c *models.Category) error {
	err := r.v.run(func(st *state) error {
		cur, ok := st.categories[c.ID]
		if !ok {
			return notFound("category", c.ID)
		}
		cur.Name, cur.Slug, cur.Description = c.Name, c.Slug, c.Description
		cur.DisplayOrder, cur.Metadata, cur.UpdatedAt = c.DisplayOrder, c.Metadata, c.UpdatedAt
		if err := checkCategory(st, cur); err != nil {
			return err
		}
		st.categories[c.ID] = cur
		return nil
	})
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

func (r categoryRepo) SetParent(ctx context.Context, id uuid.UUID, parentID *uuid.UUID, at time.Time) error {
	err := r.v.run(func(st *state) error {
		cur, ok := st.categories[id]
		if !ok {
			return notFound("category", id)
		}
		cur.ParentID, cur.UpdatedAt = parentID, at
		if err := checkCategory(st, cur); err != nil {
			return err
		}
		st.categories[id] = cur
		return nil
	})
	if err != nil {
		return fmt.Errorf("set category parent: %w", err)
	}
	return nil
}

func (r categoryRepo) SetActive(ctx context.Context, ids []uuid.UUID, active bool, at time.Time) error {
	return r.v.run(func(st *state) error {
		for _, id := range ids {
			if cur, ok := st.categories[id]; ok {
				cur.IsActive, cur.UpdatedAt = active, at
				st.categories[id] = cur
			}
		}
		return nil
	})
}

func (r categoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.v.run(func(st *state) error {
		for _, c := range st.categories {
			if c.ParentID != nil && *c.ParentID == id {
				return foreignKey("categories_parent_id_fkey")
			}
		}
		for _, p := range st.posts {
			if p.CategoryID == id {
				return foreignKey("posts_category_id_fkey")
			}
		}
		delete(st.categories, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func (r categoryRepo) List(ctx context.Context) ([]models.Category, error) {
	var items []models.Category
	err := r.v.run(func(st *state) error {
		counts := make(map[uuid.UUID]int)
		for _, p := range st.posts {
			if p.DeletedAt == nil {
				counts[p.CategoryID]++
			}
		}
		for id, c := range st.categories {
			c.PostCount = counts[id]
			items = append(items, c)
		}
		return nil
	})
	sortCategories(items)
	return items, err
}

func (r categoryRepo) ListChildren(ctx context.Context, parentID *uuid.UUID) ([]models.Category, error) {
	var items []models.Category
	err := r.v.run(func(st *state) error {
		for _, c := range st.categories {
			switch {
			case parentID == nil && c.ParentID == nil:
				items = append(items, c)
			case parentID != nil && c.ParentID != nil && *c.ParentID == *parentID:
				items = append(items, c)
			}
		}
		return nil
	})
	sortCategories(items)
	return items, err
}

func (r categoryRepo) CountChildren(ctx context.Context, id uuid.UUID) (int, error) {
	children, err := r.ListChildren(ctx, &id)
	return len(children), err
}

func (r categoryRepo) NextDisplayOrder(ctx context.Context, parentID *uuid.UUID) (int, error) {
	siblings, err := r.ListChildren(ctx, parentID)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, c := range siblings {
		if c.DisplayOrder >= next {
			next = c.DisplayOrder + 1
		}
	}
	return next, nil
}

// LockHierarchy is a no-op: transactions are already serialized.
func (r categoryRepo) LockHierarchy(ctx context.Context) error { return nil }

// --- posts ---

type postRepo struct{ v view }

func checkPost(st *state, p models.Post) error {
	for id, other := range st.posts {
		if id != p.ID && other.Slug == p.Slug {
			return duplicate("posts_slug_key")
		}
	}
	if _, ok := st.categories[p.CategoryID]; !ok {
		return foreignKey("posts_category_id_fkey")
	}
	if _, ok := st.users[p.AuthorID]; !ok {
		return foreignKey("posts_author_id_fkey")
	}
	return nil
}

func (r postRepo) Create(ctx context.Context, p *models.Post) (*models.Post, error) {
	var out models.Post
	err := r.v.run(func(st *state) error {
		rec := *p
		rec.ID = uuid.New()
		rec.Tags = append([]string{}, p.Tags...)
		if err := checkPost(st, rec); err != nil {
			return err
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = r.v.s.now()
		}
		rec.UpdatedAt = rec.CreatedAt
		st.posts[rec.ID] = rec
		out = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &out, nil
}

func (r postRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var out *models.Post
	err := r.v.run(func(st *state) error {
		if p, ok := st.posts[id]; ok {
			out = ptr(p)
		}
		return nil
	})
	return out, err
}

func (r postRepo) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	var out *models.Post
	err := r.v.run(func(st *state) error {
		for _, p := range st.posts {
			if p.Slug == slug {
				out = ptr(p)
				break
			}
		}
		return nil
	})
	return out, err
}

func (r postRepo) SlugTaken(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	p, err := r.FindBySlug(ctx, slug)
	if err != nil || p == nil {
		return false, err
	}
	return excludeID == nil || p.ID != *excludeID, nil
}

func (r postRepo) Update(ctx context.Context, p *models.Post) error {
	err := r.v.run(func(st *state) error {
		cur, ok := st.posts[p.ID]
		if !ok {
			return notFound("post", p.ID)
		}
		cur.Title, cur.Slug, cur.Content, cur.Excerpt = p.Title, p.Slug, p.Content, p.Excerpt
		cur.FeaturedImageURL, cur.Tags = p.FeaturedImageURL, append([]string{}, p.Tags...)
		cur.IsFeatured, cur.AllowComments = p.IsFeatured, p.AllowComments
		cur.MetaTitle, cur.MetaDescription = p.MetaTitle, p.MetaDescription
		cur.CategoryID, cur.UpdatedAt = p.CategoryID, p.UpdatedAt
		if err := checkPost(st, cur); err != nil {
			return err
		}
		st.posts[p.ID] = cur
		return nil
	})
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

func (r postRepo) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from models.PostStatus, change store.StatusChange) (bool, error) {
	var claimed bool
	err := r.v.run(func(st *state) error {
		cur, ok := st.posts[id]
		if !ok || cur.DeletedAt != nil || cur.Status != from {
			return nil
		}
		cur.Status, cur.ScheduledAt, cur.PublishedAt = change.To, change.ScheduledAt, change.PublishedAt
		cur.UpdatedAt = change.At
		st.posts[id] = cur
		claimed = true
		return nil
	})
	return claimed, err
}

func (r postRepo) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.v.run(func(st *state) error {
		cur, ok := st.posts[id]
		if !ok || cur.DeletedAt != nil {
			return nil
		}
		cur.DeletedAt, cur.Status, cur.ScheduledAt, cur.UpdatedAt = ptr(at), models.PostStatusArchived, nil, at
		st.posts[id] = cur
		return nil
	})
}

func (r postRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.v.run(func(st *state) error {
		delete(st.posts, id)
		return nil
	})
}

func (r postRepo) count(match func(models.Post) bool) (int, error) {
	var n int
	err := r.v.run(func(st *state) error {
		for _, p := range st.posts {
			if match(p) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r postRepo) CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error) {
	return r.count(func(p models.Post) bool { return p.CategoryID == categoryID })
}

func (r postRepo) CountByAuthor(ctx context.Context, authorID uuid.UUID) (int, error) {
	return r.count(func(p models.Post) bool { return p.AuthorID == authorID })
}

func (r postRepo) MoveCategory(ctx context.Context, from, to uuid.UUID, at time.Time) (int, error) {
	var n int
	err := r.v.run(func(st *state) error {
		if _, ok := st.categories[to]; !ok {
			return foreignKey("posts_category_id_fkey")
		}
		for id, p := range st.posts {
			if p.CategoryID == from {
				p.CategoryID, p.UpdatedAt = to, at
				st.posts[id] = p
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("move posts: %w", err)
	}
	return n, nil
}

func matches(p models.Post, f store.PostFilter) bool {
	if !f.IncludeDeleted && p.DeletedAt != nil {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.CategoryID != nil && p.CategoryID != *f.CategoryID {
		return false
	}
	if f.AuthorID != nil && p.AuthorID != *f.AuthorID {
		return false
	}
	if f.Featured != nil && p.IsFeatured != *f.Featured {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.Term)); term != "" {
		haystack := strings.ToLower(strings.Join(
			[]string{p.Title, p.Excerpt, p.Content, store.JoinTags(p.Tags)}, "\x00"))
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// sortKey mirrors COALESCE(published_at, created_at).
func sortKey(p models.Post) time.Time {
	if p.PublishedAt != nil {
		return *p.PublishedAt
	}
	return p.CreatedAt
}

func (r postRepo) List(ctx context.Context, f store.PostFilter, pg store.Page) (store.PostPage, error) {
	pg = pg.Normalize()
	var all []models.Post
	err := r.v.run(func(st *state) error {
		for _, p := range st.posts {
			if matches(p, f) {
				all = append(all, p)
			}
		}
		return nil
	})
	if err != nil {
		return store.PostPage{}, err
	}
	sort.Slice(all, func(i, j int) bool {
		ki, kj := sortKey(all[i]), sortKey(all[j])
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	items := []models.Post{}
	if off := pg.Offset(); off < len(all) {
		end := min(off+pg.Size, len(all))
		items = append(items, all[off:end]...)
	}
	return store.PostPage{Items: items, Total: len(all), Page: pg.Number, PageSize: pg.Size}, nil
}

func (r postRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Post, error) {
	var due []models.Post
	err := r.v.run(func(st *state) error {
		for _, p := range st.posts {
			if p.Status == models.PostStatusScheduled && p.DeletedAt == nil &&
				p.ScheduledAt != nil && !p.ScheduledAt.After(now) {
				due = append(due, p)
			}
		}
		return nil
	})
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(*due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, err
}
