// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package taxonomy manages the category hierarchy: creation, re-parenting
// with cycle detection, deactivation cascades, deletion with post moves and
// the derived path, level and post-count views.
//
// Categories are stored flat with a parent reference. Structural changes
// run in one transaction holding the hierarchy lock, so the cycle check and
// the write cannot interleave with another re-parent.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"quillpress/internal/apperr"
	"quillpress/internal/identity"
	"quillpress/internal/models"
	"quillpress/internal/slug"
	"quillpress/internal/store"
)

// Field limits.
const (
	MinNameLen        = 2
	MaxNameLen        = 100
	MaxDescriptionLen = 500
	MaxMetadataLen    = 1000

	// MaxDepth bounds every walk up the parent chain.
	MaxDepth = 64
)

var namePattern = regexp.MustCompile(`^[\p{L}\p{N}\s\-_&]+$`)

// TreeCache is an optional, explicitly invalidated cache of Tree results.
type TreeCache interface {
	Get(ctx context.Context) ([]models.Category, bool)
	Set(ctx context.Context, tree []models.Category)
	Invalidate(ctx context.Context)
}

// CreateInput holds the fields of a new category.
type CreateInput struct {
	Name         string
	Description  string
	ParentID     *uuid.UUID
	Slug         string // empty derives one from Name
	Metadata     string
	DisplayOrder *int  // nil appends after the last sibling
	IsActive     *bool // nil means active
}

// UpdateInput is a partial category update. Nil fields are left unchanged.
// When Reparent is set the category moves under ParentID (nil is the root).
type UpdateInput struct {
	Name         *string
	Description  *string
	Slug         *string
	Metadata     *string
	DisplayOrder *int
	IsActive     *bool
	Reparent     bool
	ParentID     *uuid.UUID
}

// Manager implements the category operations.
type Manager struct {
	gw    store.Gateway
	cache TreeCache
	now   identity.Clock
	log   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTreeCache caches Tree results and drops them on every change.
func WithTreeCache(c TreeCache) Option { return func(m *Manager) { m.cache = c } }

// WithClock sets the time source.
func WithClock(now identity.Clock) Option { return func(m *Manager) { m.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// NewManager returns a Manager persisting through gw.
func NewManager(gw store.Gateway, opts ...Option) *Manager {
	m := &Manager{gw: gw, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func requireElevated(actor identity.Actor) error {
	if !actor.Elevated() {
		return apperr.Unauthorized("only editors and admins can manage categories")
	}
	return nil
}

// Create adds a category.
func (m *Manager) Create(ctx context.Context, actor identity.Actor, in CreateInput) (*models.Category, error) {
	if err := requireElevated(actor); err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Slug = strings.TrimSpace(in.Slug)

	var v apperr.Validation
	validateName(&v, in.Name)
	validateDescription(&v, in.Description)
	validateMetadata(&v, in.Metadata)
	if in.Slug != "" {
		validateSlug(&v, in.Slug)
	}
	if in.DisplayOrder != nil {
		v.Check(*in.DisplayOrder >= 0, "display_order", "cannot be negative")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	var created *models.Category
	err := m.gw.InTx(ctx, func(r store.Repos) error {
		cats := r.Categories()

		taken, err := cats.NameTaken(ctx, in.Name, nil)
		if err != nil {
			return apperr.Internal(err)
		}
		if taken {
			return apperr.Conflict(fmt.Sprintf("category name %q is already in use", in.Name), nil)
		}

		if in.ParentID != nil {
			parent, err := cats.FindByID(ctx, *in.ParentID)
			if err != nil {
				return apperr.Internal(err)
			}
			if parent == nil {
				return apperr.NotFound("parent category", *in.ParentID)
			}
			if !parent.IsActive {
				return apperr.Invalid("parent_id", "parent category is inactive")
			}
		}

		s, err := m.resolveSlug(ctx, cats, in.Slug, in.Name, nil)
		if err != nil {
			return err
		}

		order := 0
		if in.DisplayOrder != nil {
			order = *in.DisplayOrder
		} else if order, err = cats.NextDisplayOrder(ctx, in.ParentID); err != nil {
			return apperr.Internal(err)
		}

		active := true
		if in.IsActive != nil {
			active = *in.IsActive
		}

		created, err = cats.Create(ctx, &models.Category{
			Name:         in.Name,
			Slug:         s,
			Description:  in.Description,
			ParentID:     in.ParentID,
			DisplayOrder: order,
			IsActive:     active,
			Metadata:     in.Metadata,
		})
		if err != nil {
			return translateErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx)
	m.log.Info("category created", "id", created.ID, "slug", created.Slug, "by", actor.UserID)
	return m.GetByID(ctx, created.ID)
}

// resolveSlug validates an explicit slug or derives a unique one from name.
// excludeID skips the category being updated.
func (m *Manager) resolveSlug(ctx context.Context, cats store.CategoryRepository, explicit, name string, excludeID *uuid.UUID) (string, error) {
	if explicit != "" {
		taken, err := cats.SlugTaken(ctx, explicit, excludeID)
		if err != nil {
			return "", apperr.Internal(err)
		}
		if taken {
			return "", apperr.Conflict(fmt.Sprintf("category slug %q is already in use", explicit), nil)
		}
		return explicit, nil
	}

	candidate := slug.Generate(name, slug.MaxCategoryLen)
	if candidate == "" {
		candidate = slug.Random("category")
	}
	s, err := slug.EnsureUnique(ctx, candidate, slug.MaxCategoryLen, func(ctx context.Context, s string) (bool, error) {
		return cats.SlugTaken(ctx, s, excludeID)
	})
	if err != nil {
		return "", apperr.Internal(err)
	}
	return s, nil
}

// GetByID returns a category with its derived fields.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	idx, err := m.index(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := idx.byID[id]
	if !ok {
		return nil, apperr.NotFound("category", id)
	}
	return idx.view(c), nil
}

// GetBySlug returns a category with its derived fields.
func (m *Manager) GetBySlug(ctx context.Context, s string) (*models.Category, error) {
	c, err := m.gw.Categories().FindBySlug(ctx, s)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if c == nil {
		return nil, apperr.NotFound("category", s)
	}
	return m.GetByID(ctx, c.ID)
}

// Update applies a partial update. A parent change and an activation
// change are applied in the same transaction as the field changes.
func (m *Manager) Update(ctx context.Context, actor identity.Actor, id uuid.UUID, in UpdateInput) (*models.Category, error) {
	if err := requireElevated(actor); err != nil {
		return nil, err
	}

	in.Name = trimmed(in.Name)
	in.Description = trimmed(in.Description)
	in.Slug = trimmed(in.Slug)

	var v apperr.Validation
	if in.Name != nil {
		validateName(&v, *in.Name)
	}
	if in.Description != nil {
		validateDescription(&v, *in.Description)
	}
	if in.Slug != nil {
		validateSlug(&v, *in.Slug)
	}
	if in.Metadata != nil {
		validateMetadata(&v, *in.Metadata)
	}
	if in.DisplayOrder != nil {
		v.Check(*in.DisplayOrder >= 0, "display_order", "cannot be negative")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	err := m.gw.InTx(ctx, func(r store.Repos) error {
		cats := r.Categories()
		if in.Reparent || in.IsActive != nil {
			if err := cats.LockHierarchy(ctx); err != nil {
				return apperr.Internal(err)
			}
		}

		c, err := load(ctx, cats, id)
		if err != nil {
			return err
		}

		if in.Name != nil && *in.Name != c.Name {
			taken, err := cats.NameTaken(ctx, *in.Name, &c.ID)
			if err != nil {
				return apperr.Internal(err)
			}
			if taken {
				return apperr.Conflict(fmt.Sprintf("category name %q is already in use", *in.Name), nil)
			}
			c.Name = *in.Name
		}
		if in.Slug != nil && *in.Slug != c.Slug {
			if c.Slug, err = m.resolveSlug(ctx, cats, *in.Slug, "", &c.ID); err != nil {
				return err
			}
		}
		if in.Description != nil {
			c.Description = *in.Description
		}
		if in.Metadata != nil {
			c.Metadata = *in.Metadata
		}
		if in.DisplayOrder != nil {
			c.DisplayOrder = *in.DisplayOrder
		}

		now := m.now()
		c.UpdatedAt = now
		if err := cats.Update(ctx, c); err != nil {
			return translateErr(err)
		}

		if in.Reparent {
			if err := m.reparent(ctx, cats, c, in.ParentID, now); err != nil {
				return err
			}
		}
		if in.IsActive != nil && *in.IsActive != c.IsActive {
			if err := m.setActive(ctx, cats, c, *in.IsActive, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx)
	m.log.Info("category updated", "id", id, "by", actor.UserID)
	return m.GetByID(ctx, id)
}

// Reparent moves a category under newParentID, or to the root when nil.
func (m *Manager) Reparent(ctx context.Context, actor identity.Actor, id uuid.UUID, newParentID *uuid.UUID) (*models.Category, error) {
	if err := requireElevated(actor); err != nil {
		return nil, err
	}

	err := m.gw.InTx(ctx, func(r store.Repos) error {
		cats := r.Categories()
		if err := cats.LockHierarchy(ctx); err != nil {
			return apperr.Internal(err)
		}
		c, err := load(ctx, cats, id)
		if err != nil {
			return err
		}
		return m.reparent(ctx, cats, c, newParentID, m.now())
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx)
	m.log.Info("category reparented", "id", id, "parent_id", newParentID, "by", actor.UserID)
	return m.GetByID(ctx, id)
}

// reparent checks that c may move under newParentID and writes the move.
// The caller holds the hierarchy lock.
func (m *Manager) reparent(ctx context.Context, cats store.CategoryRepository, c *models.Category, newParentID *uuid.UUID, now time.Time) error {
	if newParentID == nil {
		if c.ParentID == nil {
			return nil
		}
		if err := cats.SetParent(ctx, c.ID, nil, now); err != nil {
			return translateErr(err)
		}
		c.ParentID = nil
		return nil
	}

	if *newParentID == c.ID {
		return apperr.Cycle("a category cannot be its own parent")
	}
	if c.ParentID != nil && *c.ParentID == *newParentID {
		return nil
	}

	parent, err := cats.FindByID(ctx, *newParentID)
	if err != nil {
		return apperr.Internal(err)
	}
	if parent == nil {
		return apperr.NotFound("parent category", *newParentID)
	}
	if !parent.IsActive {
		return apperr.Invalid("parent_id", "parent category is inactive")
	}

	// Walk up from the new parent. Reaching c means the move would make c
	// its own ancestor.
	visited := map[uuid.UUID]bool{parent.ID: true}
	for cur, depth := parent.ParentID, 1; cur != nil; depth++ {
		if *cur == c.ID {
			return apperr.Cycle(fmt.Sprintf("%q is an ancestor of %q", c.Name, parent.Name))
		}
		if visited[*cur] {
			return apperr.Cycle("existing category hierarchy contains a cycle")
		}
		if depth >= MaxDepth {
			return apperr.Invalid("parent_id", fmt.Sprintf("hierarchy cannot be deeper than %d levels", MaxDepth))
		}
		visited[*cur] = true

		next, err := cats.FindByID(ctx, *cur)
		if err != nil {
			return apperr.Internal(err)
		}
		if next == nil {
			break
		}
		cur = next.ParentID
	}

	if err := cats.SetParent(ctx, c.ID, newParentID, now); err != nil {
		return translateErr(err)
	}
	c.ParentID = newParentID
	return nil
}

// setActive applies the activation policy: deactivation cascades to every
// descendant, reactivation only touches c and needs an active parent.
func (m *Manager) setActive(ctx context.Context, cats store.CategoryRepository, c *models.Category, active bool, now time.Time) error {
	if active {
		if c.ParentID != nil {
			parent, err := cats.FindByID(ctx, *c.ParentID)
			if err != nil {
				return apperr.Internal(err)
			}
			if parent != nil && !parent.IsActive {
				return apperr.Invalid("is_active", "cannot activate a category under an inactive parent")
			}
		}
		if err := cats.SetActive(ctx, []uuid.UUID{c.ID}, true, now); err != nil {
			return apperr.Internal(err)
		}
		c.IsActive = true
		return nil
	}

	ids, err := descendants(ctx, cats, c.ID)
	if err != nil {
		return err
	}
	if err := cats.SetActive(ctx, append([]uuid.UUID{c.ID}, ids...), false, now); err != nil {
		return apperr.Internal(err)
	}
	c.IsActive = false
	m.log.Info("category deactivated", "id", c.ID, "descendants", len(ids))
	return nil
}

// descendants returns the IDs below root, breadth first.
func descendants(ctx context.Context, cats store.CategoryRepository, root uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	seen := map[uuid.UUID]bool{root: true}
	queue := []uuid.UUID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := cats.ListChildren(ctx, &id)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		for _, ch := range children {
			if seen[ch.ID] {
				continue
			}
			seen[ch.ID] = true
			out = append(out, ch.ID)
			queue = append(queue, ch.ID)
		}
	}
	return out, nil
}

// Delete removes a category with no children. Its posts, soft-deleted ones
// included, must first be moved to moveTo. It returns the number of posts
// moved.
func (m *Manager) Delete(ctx context.Context, actor identity.Actor, id uuid.UUID, moveTo *uuid.UUID) (int, error) {
	if err := requireElevated(actor); err != nil {
		return 0, err
	}

	var moved int
	err := m.gw.InTx(ctx, func(r store.Repos) error {
		cats, posts := r.Categories(), r.Posts()
		if err := cats.LockHierarchy(ctx); err != nil {
			return apperr.Internal(err)
		}
		c, err := load(ctx, cats, id)
		if err != nil {
			return err
		}

		children, err := cats.CountChildren(ctx, id)
		if err != nil {
			return apperr.Internal(err)
		}
		if children > 0 {
			return apperr.Conflict(fmt.Sprintf("category %q has %d child categories", c.Name, children), nil)
		}

		owned, err := posts.CountByCategory(ctx, id)
		if err != nil {
			return apperr.Internal(err)
		}
		if owned > 0 && moveTo == nil {
			return apperr.Conflict(fmt.Sprintf("category %q still owns %d posts", c.Name, owned), nil)
		}

		if moveTo != nil {
			if *moveTo == id {
				return apperr.Invalid("move_to", "cannot move posts into the category being deleted")
			}
			target, err := cats.FindByID(ctx, *moveTo)
			if err != nil {
				return apperr.Internal(err)
			}
			if target == nil {
				return apperr.NotFound("category", *moveTo)
			}
			if !target.IsActive {
				return apperr.Invalid("move_to", "target category is inactive")
			}
			if owned > 0 {
				if moved, err = posts.MoveCategory(ctx, id, *moveTo, m.now()); err != nil {
					return translateErr(err)
				}
			}
		}

		if err := cats.Delete(ctx, id); err != nil {
			return translateErr(err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.invalidate(ctx)
	m.log.Info("category deleted", "id", id, "moved_posts", moved, "by", actor.UserID)
	return moved, nil
}

// ListChildren returns the direct children of id, or the roots when id is nil.
func (m *Manager) ListChildren(ctx context.Context, id *uuid.UUID) ([]models.Category, error) {
	idx, err := m.index(ctx)
	if err != nil {
		return nil, err
	}
	if id != nil {
		if _, ok := idx.byID[*id]; !ok {
			return nil, apperr.NotFound("category", *id)
		}
	}

	out := []models.Category{}
	for _, c := range idx.children[key(id)] {
		out = append(out, *idx.view(c))
	}
	return out, nil
}

// AncestorsPath returns the chain from the root down to and including the
// category.
func (m *Manager) AncestorsPath(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	cats := m.gw.Categories()
	var chain []models.Category
	seen := map[uuid.UUID]bool{}
	for cur := &id; cur != nil; {
		if seen[*cur] || len(chain) > MaxDepth {
			return nil, apperr.Cycle("category hierarchy contains a cycle")
		}
		seen[*cur] = true

		c, err := cats.FindByID(ctx, *cur)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if c == nil {
			if len(chain) == 0 {
				return nil, apperr.NotFound("category", id)
			}
			break
		}
		chain = append(chain, *c)
		cur = c.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	for i := range chain {
		chain[i].Level = i
	}
	return chain, nil
}

// Tree returns the whole hierarchy as nested categories ordered by
// display order and name.
func (m *Manager) Tree(ctx context.Context) ([]models.Category, error) {
	if m.cache != nil {
		if tree, ok := m.cache.Get(ctx); ok {
			return tree, nil
		}
	}

	idx, err := m.index(ctx)
	if err != nil {
		return nil, err
	}
	tree := idx.build(nil)
	if m.cache != nil {
		m.cache.Set(ctx, tree)
	}
	return tree, nil
}

// Invalidate drops cached views. Post placement changes made elsewhere
// call it so post counts stay current.
func (m *Manager) Invalidate(ctx context.Context) {
	m.invalidate(ctx)
}

func (m *Manager) invalidate(ctx context.Context) {
	if m.cache != nil {
		m.cache.Invalidate(ctx)
	}
}

func load(ctx context.Context, cats store.CategoryRepository, id uuid.UUID) (*models.Category, error) {
	c, err := cats.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if c == nil {
		return nil, apperr.NotFound("category", id)
	}
	return c, nil
}

func validateName(v *apperr.Validation, s string) {
	n := utf8.RuneCountInString(s)
	v.Check(n >= MinNameLen && n <= MaxNameLen, "name",
		fmt.Sprintf("must be between %d and %d characters", MinNameLen, MaxNameLen))
	v.Check(n == 0 || namePattern.MatchString(s), "name",
		"can only contain letters, numbers, spaces, hyphens, underscores, and ampersands")
}

func validateDescription(v *apperr.Validation, s string) {
	v.Check(utf8.RuneCountInString(s) <= MaxDescriptionLen, "description",
		fmt.Sprintf("cannot exceed %d characters", MaxDescriptionLen))
}

func validateMetadata(v *apperr.Validation, s string) {
	v.Check(utf8.RuneCountInString(s) <= MaxMetadataLen, "metadata",
		fmt.Sprintf("cannot exceed %d characters", MaxMetadataLen))
}

func validateSlug(v *apperr.Validation, s string) {
	v.Check(len(s) <= slug.MaxCategoryLen, "slug",
		fmt.Sprintf("cannot exceed %d characters", slug.MaxCategoryLen))
	v.Check(slug.Valid(s), "slug", "must contain only lowercase letters, numbers, and single hyphens")
}

// translateErr maps storage constraint errors to business errors.
func translateErr(err error) error {
	var ce *store.ConstraintError
	if errors.As(err, &ce) {
		switch {
		case errors.Is(err, store.ErrDuplicate) && ce.Constraint == "categories_name_key":
			return apperr.Conflict("category name is already in use", err)
		case errors.Is(err, store.ErrDuplicate):
			return apperr.Conflict("category slug is already in use", err)
		case errors.Is(err, store.ErrForeignKey):
			return apperr.Conflict("category is still referenced", err)
		}
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(err)
}

// trimmed returns a trimmed copy of *s, leaving the caller's string alone.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
