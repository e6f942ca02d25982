// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package publishing implements the post lifecycle: creation with slug
// management, partial updates, the draft/scheduled/published/archived state
// machine, listings and deletion, plus the scheduled-publish sweeper.
package publishing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"quillpress/internal/apperr"
	"quillpress/internal/excerpt"
	"quillpress/internal/identity"
	"quillpress/internal/models"
	"quillpress/internal/slug"
	"quillpress/internal/store"
)

// Field limits.
const (
	MaxTitleLen           = 200
	MaxImageURLLen        = 500
	MaxTagsLen            = 200
	MaxMetaTitleLen       = 60
	MaxMetaDescriptionLen = 160

	// Publish-validation minimums.
	MinPublishTitleLen   = 5
	MinPublishContentLen = 50
)

// Filter narrows Paginate.
type Filter = store.PostFilter

// Invalidator drops cached views that depend on post placement, such as
// category post counts.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// CreateInput holds the fields of a new post. Publish or ScheduleAt apply
// the matching transition in the creating transaction.
type CreateInput struct {
	Title            string
	Content          string
	Excerpt          string // empty derives one from Content
	Slug             string // empty derives one from Title
	FeaturedImageURL string
	Tags             []string
	CategoryID       uuid.UUID
	IsFeatured       bool
	AllowComments    *bool // nil means true
	MetaTitle        string
	MetaDescription  string

	Publish    bool
	ScheduleAt *time.Time
}

// UpdateInput is a partial post update. Nil fields are left unchanged.
type UpdateInput struct {
	Title            *string
	Content          *string
	Excerpt          *string // set to "" to derive from Content again
	Slug             *string
	FeaturedImageURL *string
	Tags             *[]string
	CategoryID       *uuid.UUID
	IsFeatured       *bool
	AllowComments    *bool
	MetaTitle        *string
	MetaDescription  *string
}

// PurgeOptions controls a hard delete.
type PurgeOptions struct {
	// Cascade acknowledges that data depending on a published post may
	// be removed along with it.
	Cascade bool
}

// Manager implements the post operations.
type Manager struct {
	gw          store.Gateway
	invalidator Invalidator
	now         identity.Clock
	log         *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithInvalidator is told whenever post placement changes.
func WithInvalidator(inv Invalidator) Option { return func(m *Manager) { m.invalidator = inv } }

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

// CanEdit reports whether actor may modify post.
func CanEdit(post *models.Post, actor identity.Actor) bool {
	return actor.Elevated() || (actor.UserID != uuid.Nil && actor.UserID == post.AuthorID)
}

// CanEdit reports whether actor may modify post.
func (m *Manager) CanEdit(post *models.Post, actor identity.Actor) bool {
	return CanEdit(post, actor)
}

// Create stores a new draft post authored by actor.
func (m *Manager) Create(ctx context.Context, actor identity.Actor, in CreateInput) (*models.Post, error) {
	if actor.UserID == uuid.Nil {
		return nil, apperr.Unauthorized("posts need an authenticated author")
	}

	p := &models.Post{
		Title:            strings.TrimSpace(in.Title),
		Content:          in.Content,
		Excerpt:          strings.TrimSpace(in.Excerpt),
		Slug:             strings.TrimSpace(in.Slug),
		FeaturedImageURL: strings.TrimSpace(in.FeaturedImageURL),
		Tags:             NormalizeTags(in.Tags),
		Status:           models.PostStatusDraft,
		IsFeatured:       in.IsFeatured,
		AllowComments:    in.AllowComments == nil || *in.AllowComments,
		MetaTitle:        strings.TrimSpace(in.MetaTitle),
		MetaDescription:  strings.TrimSpace(in.MetaDescription),
		CategoryID:       in.CategoryID,
		AuthorID:         actor.UserID,
	}

	var v apperr.Validation
	v.Check(p.Title != "", "title", "is required")
	v.Check(strings.TrimSpace(p.Content) != "", "content", "is required")
	v.Check(p.CategoryID != uuid.Nil, "category_id", "is required")
	if p.Slug != "" {
		validateSlug(&v, p.Slug)
	}
	if in.Publish && in.ScheduleAt != nil {
		v.Add("status", "cannot both publish and schedule")
	}
	validateFields(&v, p)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if p.Excerpt == "" {
		p.Excerpt = m.deriveExcerpt(p.Content)
	}

	var created *models.Post
	err := m.gw.InTx(ctx, func(r store.Repos) error {
		if err := requireActiveCategory(ctx, r.Categories(), p.CategoryID); err != nil {
			return err
		}

		posts := r.Posts()
		s, err := resolveSlug(ctx, posts, p.Slug, p.Title, nil)
		if err != nil {
			return err
		}
		p.Slug = s
		p.CreatedAt = m.now()

		if created, err = posts.Create(ctx, p); err != nil {
			return translateErr(err)
		}

		switch {
		case in.Publish:
			created, err = m.apply(ctx, r, actor, created, models.EventPublish, nil)
		case in.ScheduleAt != nil:
			created, err = m.apply(ctx, r, actor, created, models.EventSchedule, in.ScheduleAt)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	m.invalidate(ctx)
	m.log.Info("post created", "id", created.ID, "slug", created.Slug, "status", created.Status, "author", actor.UserID)
	return created, nil
}

// GetByID returns a live post.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	p, err := m.gw.Posts().FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if p == nil || p.IsDeleted() {
		return nil, apperr.NotFound("post", id)
	}
	return p, nil
}

// GetBySlug returns a live post.
func (m *Manager) GetBySlug(ctx context.Context, s string) (*models.Post, error) {
	p, err := m.gw.Posts().FindBySlug(ctx, s)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if p == nil || p.IsDeleted() {
		return nil, apperr.NotFound("post", s)
	}
	return p, nil
}

// Update applies a partial update. The slug only changes when one is
// supplied explicitly.
func (m *Manager) Update(ctx context.Context, actor identity.Actor, id uuid.UUID, in UpdateInput) (*models.Post, error) {
	var updated *models.Post
	moved := false
	err := m.gw.InTx(ctx, func(r store.Repos) error {
		posts := r.Posts()
		p, err := loadLive(ctx, posts, id)
		if err != nil {
			return err
		}
		if !CanEdit(p, actor) {
			return apperr.Unauthorized("only the author or an editor can change this post")
		}

		// An excerpt still equal to the one derived from the old content
		// follows the content; a hand-written one is kept.
		derived := p.Excerpt == "" || p.Excerpt == m.deriveExcerpt(p.Content)

		var v apperr.Validation
		if in.Title != nil {
			p.Title = strings.TrimSpace(*in.Title)
			v.Check(p.Title != "", "title", "is required")
		}
		if in.Content != nil {
			p.Content = *in.Content
			v.Check(strings.TrimSpace(p.Content) != "", "content", "is required")
		}
		if in.Slug != nil {
			validateSlug(&v, strings.TrimSpace(*in.Slug))
		}
		if in.FeaturedImageURL != nil {
			p.FeaturedImageURL = strings.TrimSpace(*in.FeaturedImageURL)
		}
		if in.Tags != nil {
			p.Tags = NormalizeTags(*in.Tags)
		}
		if in.IsFeatured != nil {
			p.IsFeatured = *in.IsFeatured
		}
		if in.AllowComments != nil {
			p.AllowComments = *in.AllowComments
		}
		if in.MetaTitle != nil {
			p.MetaTitle = strings.TrimSpace(*in.MetaTitle)
		}
		if in.MetaDescription != nil {
			p.MetaDescription = strings.TrimSpace(*in.MetaDescription)
		}
		switch {
		case in.Excerpt != nil && strings.TrimSpace(*in.Excerpt) != "":
			p.Excerpt = strings.TrimSpace(*in.Excerpt)
		case in.Excerpt != nil, in.Content != nil && derived:
			p.Excerpt = m.deriveExcerpt(p.Content)
		}
		validateFields(&v, p)

		categoryOK := true
		if in.CategoryID != nil && *in.CategoryID != p.CategoryID {
			catErr := requireActiveCategory(ctx, r.Categories(), *in.CategoryID)
			if err := v.Merge(catErr); err != nil {
				return err
			}
			categoryOK = catErr == nil
			p.CategoryID = *in.CategoryID
			moved = true
		}
		// A published post must stay publishable; its violations are
		// reported together with the field errors.
		if p.IsPublished() && categoryOK {
			if err := v.Merge(m.publishable(ctx, r.Categories(), p)); err != nil {
				return err
			}
		}
		if err := v.Err(); err != nil {
			return err
		}

		if in.Slug != nil && strings.TrimSpace(*in.Slug) != p.Slug {
			if p.Slug, err = resolveSlug(ctx, posts, strings.TrimSpace(*in.Slug), "", &p.ID); err != nil {
				return err
			}
		}

		p.UpdatedAt = m.now()
		if err := posts.Update(ctx, p); err != nil {
			return translateErr(err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if moved {
		m.invalidate(ctx)
	}
	m.log.Info("post updated", "id", id, "by", actor.UserID)
	return updated, nil
}

// Delete soft-deletes a post. The row keeps its slug and category.
func (m *Manager) Delete(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	err := m.gw.InTx(ctx, func(r store.Repos) error {
		posts := r.Posts()
		p, err := loadLive(ctx, posts, id)
		if err != nil {
			return err
		}
		if !CanEdit(p, actor) {
			return apperr.Unauthorized("only the author or an editor can delete this post")
		}
		if err := posts.SoftDelete(ctx, id, m.now()); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.invalidate(ctx)
	m.log.Info("post deleted", "id", id, "by", actor.UserID)
	return nil
}

// Purge removes a post permanently, soft-deleted or not. Posts that were
// ever published need opts.Cascade.
func (m *Manager) Purge(ctx context.Context, actor identity.Actor, id uuid.UUID, opts PurgeOptions) error {
	if !actor.IsAdmin() {
		return apperr.Unauthorized("only admins can purge posts")
	}

	err := m.gw.InTx(ctx, func(r store.Repos) error {
		posts := r.Posts()
		p, err := posts.FindByID(ctx, id)
		if err != nil {
			return apperr.Internal(err)
		}
		if p == nil {
			return apperr.NotFound("post", id)
		}
		if p.PublishedAt != nil && !opts.Cascade {
			return apperr.Conflict("post has been published; purge needs cascade", nil)
		}
		if err := posts.Delete(ctx, id); err != nil {
			return translateErr(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.invalidate(ctx)
	m.log.Warn("post purged", "id", id, "cascade", opts.Cascade, "by", actor.UserID)
	return nil
}

// ListByCategory returns the live posts of a category.
func (m *Manager) ListByCategory(ctx context.Context, categoryID uuid.UUID, page store.Page) (store.PostPage, error) {
	c, err := m.gw.Categories().FindByID(ctx, categoryID)
	if err != nil {
		return store.PostPage{}, apperr.Internal(err)
	}
	if c == nil {
		return store.PostPage{}, apperr.NotFound("category", categoryID)
	}
	return m.Paginate(ctx, Filter{CategoryID: &categoryID}, page)
}

// ListByAuthor returns the live posts of an author.
func (m *Manager) ListByAuthor(ctx context.Context, authorID uuid.UUID, page store.Page) (store.PostPage, error) {
	u, err := m.gw.Users().FindByID(ctx, authorID)
	if err != nil {
		return store.PostPage{}, apperr.Internal(err)
	}
	if u == nil {
		return store.PostPage{}, apperr.NotFound("user", authorID)
	}
	return m.Paginate(ctx, Filter{AuthorID: &authorID}, page)
}

// Search matches term case-insensitively against title, excerpt, content
// and tags.
func (m *Manager) Search(ctx context.Context, term string, page store.Page) (store.PostPage, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return store.PostPage{}, apperr.Invalid("term", "is required")
	}
	return m.Paginate(ctx, Filter{Term: term}, page)
}

// Paginate returns one page of live posts matching f.
func (m *Manager) Paginate(ctx context.Context, f Filter, page store.Page) (store.PostPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return store.PostPage{}, apperr.Invalid("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	f.IncludeDeleted = false
	res, err := m.gw.Posts().List(ctx, f, page)
	if err != nil {
		return store.PostPage{}, apperr.Internal(err)
	}
	return res, nil
}

// deriveExcerpt summarizes content, falling back to the raw text if the
// Markdown cannot be rendered.
func (m *Manager) deriveExcerpt(content string) string {
	text, err := excerpt.Derive(content, excerpt.MaxLen)
	if err != nil {
		m.log.Warn("derive excerpt", "error", err)
		return excerpt.Truncate(strings.Join(strings.Fields(content), " "), excerpt.MaxLen)
	}
	return text
}

func (m *Manager) invalidate(ctx context.Context) {
	if m.invalidator != nil {
		m.invalidator.Invalidate(ctx)
	}
}

func loadLive(ctx context.Context, posts store.PostRepository, id uuid.UUID) (*models.Post, error) {
	p, err := posts.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if p == nil || p.IsDeleted() {
		return nil, apperr.NotFound("post", id)
	}
	return p, nil
}

func requireActiveCategory(ctx context.Context, cats store.CategoryRepository, id uuid.UUID) error {
	c, err := cats.FindByID(ctx, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if c == nil {
		return apperr.NotFound("category", id)
	}
	if !c.IsActive {
		return apperr.Invalid("category_id", "category is inactive")
	}
	return nil
}

// resolveSlug validates an explicit slug or derives a unique one from title.
func resolveSlug(ctx context.Context, posts store.PostRepository, explicit, title string, excludeID *uuid.UUID) (string, error) {
	if explicit != "" {
		taken, err := posts.SlugTaken(ctx, explicit, excludeID)
		if err != nil {
			return "", apperr.Internal(err)
		}
		if taken {
			return "", apperr.Conflict(fmt.Sprintf("post slug %q is already in use", explicit), nil)
		}
		return explicit, nil
	}

	candidate := slug.Generate(title, slug.MaxPostLen)
	if candidate == "" {
		candidate = slug.Random("post")
	}
	s, err := slug.EnsureUnique(ctx, candidate, slug.MaxPostLen, func(ctx context.Context, s string) (bool, error) {
		return posts.SlugTaken(ctx, s, excludeID)
	})
	if err != nil {
		return "", apperr.Internal(err)
	}
	return s, nil
}

// NormalizeTags trims tags, splits comma-joined input and drops empty and
// case-insensitive duplicate entries, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, raw := range tags {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			k := strings.ToLower(t)
			if t == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, t)
		}
	}
	return out
}

func validateSlug(v *apperr.Validation, s string) {
	v.Check(len(s) <= slug.MaxPostLen, "slug", fmt.Sprintf("cannot exceed %d characters", slug.MaxPostLen))
	v.Check(slug.Valid(s), "slug", "must contain only lowercase letters, numbers, and single hyphens")
}

func validateFields(v *apperr.Validation, p *models.Post) {
	maxRunes := func(field, s string, n int) {
		v.Check(utf8.RuneCountInString(s) <= n, field, fmt.Sprintf("cannot exceed %d characters", n))
	}
	maxRunes("title", p.Title, MaxTitleLen)
	maxRunes("excerpt", p.Excerpt, excerpt.MaxLen)
	maxRunes("featured_image_url", p.FeaturedImageURL, MaxImageURLLen)
	maxRunes("tags", store.JoinTags(p.Tags), MaxTagsLen)
	maxRunes("meta_title", p.MetaTitle, MaxMetaTitleLen)
	maxRunes("meta_description", p.MetaDescription, MaxMetaDescriptionLen)
}

// translateErr maps storage constraint errors to business errors.
func translateErr(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var ce *store.ConstraintError
	if errors.As(err, &ce) {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return apperr.Conflict("post slug is already in use", err)
		case ce.Constraint == "posts_category_id_fkey":
			return apperr.NotFound("category", "referenced by post")
		case ce.Constraint == "posts_author_id_fkey":
			return apperr.NotFound("author", "referenced by post")
		}
		return apperr.Conflict("post is still referenced", err)
	}
	return apperr.Internal(err)
}
