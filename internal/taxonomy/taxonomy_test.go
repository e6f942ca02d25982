// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package taxonomy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"quillpress/internal/apperr"
	"quillpress/internal/identity"
	"quillpress/internal/models"
	"quillpress/internal/store/memstore"
)

var (
	bg     = context.Background()
	editor = identity.Actor{UserID: uuid.New(), Role: models.RoleEditor}
	reader = identity.Actor{UserID: uuid.New(), Role: models.RoleUser}
)

func ptr[T any](v T) *T { return &v }

func newManager(t *testing.T, opts ...Option) (*Manager, *memstore.Store) {
	t.Helper()
	gw := memstore.New()
	return NewManager(gw, opts...), gw
}

func mustCreate(t *testing.T, m *Manager, name string, parent *uuid.UUID) *models.Category {
	t.Helper()
	c, err := m.Create(bg, editor, CreateInput{Name: name, ParentID: parent})
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	return c
}

// addPosts stores n posts in category c owned by a fresh author.
func addPosts(t *testing.T, gw *memstore.Store, c uuid.UUID, n int) {
	t.Helper()
	u, err := gw.Users().Create(bg, &models.User{
		Username: "author" + uuid.NewString()[:8], Email: uuid.NewString() + "@example.com",
		Role: models.RoleUser, IsActive: true,
	})
	if err != nil {
		t.Fatalf("create author: %v", err)
	}
	for i := 0; i < n; i++ {
		_, err := gw.Posts().Create(bg, &models.Post{
			Title: fmt.Sprintf("Post %d", i), Slug: "post-" + uuid.NewString(),
			Status: models.PostStatusDraft, CategoryID: c, AuthorID: u.ID,
		})
		if err != nil {
			t.Fatalf("create post: %v", err)
		}
	}
}

func TestCreateDerivesPathAndLevel(t *testing.T) {
	m, _ := newManager(t)

	tech := mustCreate(t, m, "Technology", nil)
	if tech.Slug != "technology" || tech.Path != "Technology" || tech.Level != 0 {
		t.Errorf("root = %q %q level %d", tech.Slug, tech.Path, tech.Level)
	}

	prog := mustCreate(t, m, "Programming", &tech.ID)
	if prog.Slug != "programming" {
		t.Errorf("slug = %q, want programming", prog.Slug)
	}
	if prog.Path != "Technology > Programming" {
		t.Errorf("path = %q", prog.Path)
	}
	if prog.Level != 1 {
		t.Errorf("level = %d, want 1", prog.Level)
	}

	got, err := m.GetByID(bg, tech.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.HasChildren {
		t.Error("expected HasChildren on parent")
	}

	_, err = m.Reparent(bg, editor, tech.ID, &prog.ID)
	if !apperr.Is(err, apperr.KindCycleDetected) {
		t.Fatalf("reparent under child: err = %v, want cycle", err)
	}
	got, _ = m.GetByID(bg, tech.ID)
	if got.ParentID != nil {
		t.Error("failed reparent changed the parent")
	}
}

func TestCreateValidation(t *testing.T) {
	m, _ := newManager(t)
	mustCreate(t, m, "Science", nil)

	tests := []struct {
		name string
		in   CreateInput
		kind apperr.Kind
	}{
		{name: "short name", in: CreateInput{Name: "A"}, kind: apperr.KindValidationFailed},
		{name: "bad characters", in: CreateInput{Name: "Tech!"}, kind: apperr.KindValidationFailed},
		{name: "long description", in: CreateInput{Name: "Books", Description: strings.Repeat("x", 501)}, kind: apperr.KindValidationFailed},
		{name: "long metadata", in: CreateInput{Name: "Books", Metadata: strings.Repeat("x", 1001)}, kind: apperr.KindValidationFailed},
		{name: "negative order", in: CreateInput{Name: "Books", DisplayOrder: ptr(-1)}, kind: apperr.KindValidationFailed},
		{name: "invalid slug", in: CreateInput{Name: "Books", Slug: "Not A Slug"}, kind: apperr.KindValidationFailed},
		{name: "duplicate name any case", in: CreateInput{Name: "science"}, kind: apperr.KindConflict},
		{name: "duplicate explicit slug", in: CreateInput{Name: "Other", Slug: "science"}, kind: apperr.KindConflict},
		{name: "missing parent", in: CreateInput{Name: "Orphan", ParentID: ptr(uuid.New())}, kind: apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(bg, editor, tt.in)
			if got := apperr.KindOf(err); got != tt.kind {
				t.Errorf("kind = %s, want %s (err %v)", got, tt.kind, err)
			}
		})
	}
}

func TestCreateRequiresElevatedActor(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Create(bg, reader, CreateInput{Name: "News"})
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if _, err := m.Delete(bg, reader, uuid.New(), nil); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("delete err = %v, want unauthorized", err)
	}
}

func TestCreateSlugCollisionAndOrder(t *testing.T) {
	m, _ := newManager(t)
	a := mustCreate(t, m, "Go & Rust", nil)
	b, err := m.Create(bg, editor, CreateInput{Name: "Go Rust"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Slug != "go-rust" || b.Slug != "go-rust-2" {
		t.Errorf("slugs = %q, %q", a.Slug, b.Slug)
	}
	if b.DisplayOrder != a.DisplayOrder+1 {
		t.Errorf("display order = %d, want %d", b.DisplayOrder, a.DisplayOrder+1)
	}

	// Names with no ASCII letters still get a slug.
	c, err := m.Create(bg, editor, CreateInput{Name: "日本語"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(c.Slug, "category-") {
		t.Errorf("slug = %q, want category- prefix", c.Slug)
	}
}

func TestCreateUnderInactiveParent(t *testing.T) {
	m, _ := newManager(t)
	p, err := m.Create(bg, editor, CreateInput{Name: "Hidden", IsActive: ptr(false)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = m.Create(bg, editor, CreateInput{Name: "Child", ParentID: &p.ID})
	if !apperr.Is(err, apperr.KindValidationFailed) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestReparent(t *testing.T) {
	m, _ := newManager(t)
	a := mustCreate(t, m, "Alpha", nil)
	b := mustCreate(t, m, "Beta", &a.ID)
	c := mustCreate(t, m, "Gamma", &b.ID)
	d := mustCreate(t, m, "Delta", nil)

	t.Run("self", func(t *testing.T) {
		_, err := m.Reparent(bg, editor, a.ID, &a.ID)
		if !apperr.Is(err, apperr.KindCycleDetected) {
			t.Errorf("err = %v, want cycle", err)
		}
	})
	t.Run("under grandchild", func(t *testing.T) {
		_, err := m.Reparent(bg, editor, a.ID, &c.ID)
		if !apperr.Is(err, apperr.KindCycleDetected) {
			t.Errorf("err = %v, want cycle", err)
		}
	})
	t.Run("missing parent", func(t *testing.T) {
		_, err := m.Reparent(bg, editor, a.ID, ptr(uuid.New()))
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("err = %v, want not found", err)
		}
	})
	t.Run("valid move", func(t *testing.T) {
		got, err := m.Reparent(bg, editor, b.ID, &d.ID)
		if err != nil {
			t.Fatalf("Reparent: %v", err)
		}
		if got.Path != "Delta > Beta" {
			t.Errorf("path = %q", got.Path)
		}
		gc, _ := m.GetByID(bg, c.ID)
		if gc.Path != "Delta > Beta > Gamma" || gc.Level != 2 {
			t.Errorf("grandchild path = %q level %d", gc.Path, gc.Level)
		}
	})
	t.Run("to root", func(t *testing.T) {
		got, err := m.Reparent(bg, editor, b.ID, nil)
		if err != nil {
			t.Fatalf("Reparent: %v", err)
		}
		if got.ParentID != nil || got.Level != 0 {
			t.Errorf("parent = %v level %d", got.ParentID, got.Level)
		}
	})
}

func TestConcurrentReparentsNeverCycle(t *testing.T) {
	m, _ := newManager(t)
	a := mustCreate(t, m, "North", nil)
	b := mustCreate(t, m, "South", nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m.Reparent(bg, editor, a.ID, &b.ID) }()
	go func() { defer wg.Done(); m.Reparent(bg, editor, b.ID, &a.ID) }()
	wg.Wait()

	ga, _ := m.GetByID(bg, a.ID)
	gb, _ := m.GetByID(bg, b.ID)
	if ga.ParentID != nil && gb.ParentID != nil {
		t.Fatal("both categories ended up under each other")
	}
}

func TestDeactivationCascades(t *testing.T) {
	m, _ := newManager(t)
	a := mustCreate(t, m, "Parent", nil)
	b := mustCreate(t, m, "Child", &a.ID)
	c := mustCreate(t, m, "Grandchild", &b.ID)

	if _, err := m.Update(bg, editor, a.ID, UpdateInput{IsActive: ptr(false)}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	for _, id := range []uuid.UUID{a.ID, b.ID, c.ID} {
		got, _ := m.GetByID(bg, id)
		if got.IsActive {
			t.Errorf("%s still active", got.Name)
		}
	}

	_, err := m.Update(bg, editor, b.ID, UpdateInput{IsActive: ptr(true)})
	if !apperr.Is(err, apperr.KindValidationFailed) {
		t.Fatalf("activate under inactive parent: err = %v, want validation", err)
	}

	if _, err := m.Update(bg, editor, a.ID, UpdateInput{IsActive: ptr(true)}); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	got, _ := m.GetByID(bg, b.ID)
	if got.IsActive {
		t.Error("reactivation should not cascade")
	}
}

func TestUpdateFields(t *testing.T) {
	m, _ := newManager(t)
	a := mustCreate(t, m, "Music", nil)
	mustCreate(t, m, "Film", nil)

	got, err := m.Update(bg, editor, a.ID, UpdateInput{
		Name: ptr("Music & Audio"), Description: ptr("  sounds  "), DisplayOrder: ptr(7),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Music & Audio" || got.Description != "sounds" || got.DisplayOrder != 7 {
		t.Errorf("got %+v", got)
	}
	if got.Slug != "music" {
		t.Errorf("slug changed to %q without request", got.Slug)
	}

	if _, err := m.Update(bg, editor, a.ID, UpdateInput{Name: ptr("FILM")}); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("rename to taken: err = %v, want conflict", err)
	}
	if _, err := m.Update(bg, editor, a.ID, UpdateInput{Slug: ptr("film")}); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("reslug to taken: err = %v, want conflict", err)
	}
	if _, err := m.Update(bg, editor, uuid.New(), UpdateInput{}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing: err = %v, want not found", err)
	}
}

func TestUpdateLeavesInputUntouched(t *testing.T) {
	m, _ := newManager(t)
	a := mustCreate(t, m, "Travel", nil)

	name, desc, s := "  Travel Notes  ", "  trips  ", "  travel-notes  "
	in := UpdateInput{Name: &name, Description: &desc, Slug: &s}
	got, err := m.Update(bg, editor, a.ID, in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Travel Notes" || got.Description != "trips" || got.Slug != "travel-notes" {
		t.Errorf("stored %q/%q/%q, want trimmed values", got.Name, got.Description, got.Slug)
	}
	if name != "  Travel Notes  " || desc != "  trips  " || s != "  travel-notes  " {
		t.Errorf("caller strings rewritten: %q %q %q", name, desc, s)
	}
}

func TestDelete(t *testing.T) {
	m, gw := newManager(t)
	src := mustCreate(t, m, "Source", nil)
	dst := mustCreate(t, m, "Target", nil)
	child := mustCreate(t, m, "Leaf", &src.ID)
	addPosts(t, gw, src.ID, 3)

	if _, err := m.Delete(bg, editor, src.ID, &dst.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("delete with children: err = %v, want conflict", err)
	}
	if _, err := m.Delete(bg, editor, child.ID, nil); err != nil {
		t.Fatalf("delete leaf: %v", err)
	}
	if _, err := m.Delete(bg, editor, src.ID, nil); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("delete with posts: err = %v, want conflict", err)
	}
	if _, err := m.Delete(bg, editor, src.ID, &src.ID); !apperr.Is(err, apperr.KindValidationFailed) {
		t.Fatalf("move to self: err = %v, want validation", err)
	}
	if _, err := m.Delete(bg, editor, src.ID, ptr(uuid.New())); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("move to missing: err = %v, want not found", err)
	}

	moved, err := m.Delete(bg, editor, src.ID, &dst.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if moved != 3 {
		t.Errorf("moved = %d, want 3", moved)
	}
	if _, err := m.GetByID(bg, src.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("deleted category still found: %v", err)
	}
	got, _ := m.GetByID(bg, dst.ID)
	if got.PostCount != 3 {
		t.Errorf("target post count = %d, want 3", got.PostCount)
	}
}

func TestPostCountsAndViews(t *testing.T) {
	m, gw := newManager(t)
	root := mustCreate(t, m, "Root", nil)
	mid := mustCreate(t, m, "Middle", &root.ID)
	leaf := mustCreate(t, m, "Bottom", &mid.ID)
	other := mustCreate(t, m, "Aside", nil)
	addPosts(t, gw, root.ID, 1)
	addPosts(t, gw, leaf.ID, 2)

	got, _ := m.GetBySlug(bg, "root")
	if got.PostCount != 1 || got.TotalPostCount != 3 {
		t.Errorf("counts = %d/%d, want 1/3", got.PostCount, got.TotalPostCount)
	}

	path, err := m.AncestorsPath(bg, leaf.ID)
	if err != nil {
		t.Fatalf("AncestorsPath: %v", err)
	}
	var names []string
	for _, c := range path {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "Root,Middle,Bottom" {
		t.Errorf("ancestors = %v", names)
	}

	roots, err := m.ListChildren(bg, nil)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(roots) != 2 || roots[0].ID != root.ID || roots[1].ID != other.ID {
		t.Errorf("roots = %+v", roots)
	}
	if _, err := m.ListChildren(bg, ptr(uuid.New())); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("children of missing: err = %v", err)
	}

	tree, err := m.Tree(bg)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree) != 2 || len(tree[0].Children) != 1 || len(tree[0].Children[0].Children) != 1 {
		t.Fatalf("unexpected tree shape: %+v", tree)
	}
	if tree[0].Children[0].Children[0].Path != "Root > Middle > Bottom" {
		t.Errorf("leaf path = %q", tree[0].Children[0].Children[0].Path)
	}

	if _, err := m.GetBySlug(bg, "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing slug: err = %v", err)
	}
}

// countingCache records cache traffic.
type countingCache struct {
	tree        []models.Category
	ok          bool
	sets, drops int
}

func (c *countingCache) Get(context.Context) ([]models.Category, bool) { return c.tree, c.ok }
func (c *countingCache) Set(_ context.Context, t []models.Category) {
	c.tree, c.ok = t, true
	c.sets++
}
func (c *countingCache) Invalidate(context.Context) {
	c.tree, c.ok = nil, false
	c.drops++
}

func TestTreeCache(t *testing.T) {
	cache := &countingCache{}
	m, _ := newManager(t, WithTreeCache(cache))
	mustCreate(t, m, "Cached", nil)
	if cache.drops != 1 {
		t.Errorf("drops after create = %d, want 1", cache.drops)
	}

	if _, err := m.Tree(bg); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if _, err := m.Tree(bg); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if cache.sets != 1 {
		t.Errorf("sets = %d, want 1 (second call served from cache)", cache.sets)
	}

	mustCreate(t, m, "Fresh", nil)
	tree, _ := m.Tree(bg)
	if len(tree) != 2 {
		t.Errorf("tree after change has %d roots, want 2", len(tree))
	}
}
