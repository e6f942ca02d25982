// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package taxonomy

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"quillpress/internal/apperr"
	"quillpress/internal/models"
)

// index is an in-memory snapshot of every category, used to compute the
// derived read fields in one pass over the table.
type index struct {
	byID     map[uuid.UUID]*models.Category
	children map[uuid.UUID][]*models.Category // uuid.Nil holds the roots
	totals   map[uuid.UUID]int
}

// key maps a parent reference to its children bucket.
func key(parentID *uuid.UUID) uuid.UUID {
	if parentID == nil {
		return uuid.Nil
	}
	return *parentID
}

func (m *Manager) index(ctx context.Context) (*index, error) {
	flat, err := m.gw.Categories().List(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	idx := &index{
		byID:     make(map[uuid.UUID]*models.Category, len(flat)),
		children: make(map[uuid.UUID][]*models.Category),
		totals:   make(map[uuid.UUID]int, len(flat)),
	}
	// flat is ordered by display order, so children buckets are too.
	for i := range flat {
		c := &flat[i]
		idx.byID[c.ID] = c
		idx.children[key(c.ParentID)] = append(idx.children[key(c.ParentID)], c)
	}
	for _, c := range flat {
		idx.total(c.ID, 0)
	}
	return idx, nil
}

// total returns own plus descendant post counts, memoized.
func (idx *index) total(id uuid.UUID, depth int) int {
	if n, ok := idx.totals[id]; ok {
		return n
	}
	n := idx.byID[id].PostCount
	if depth < MaxDepth {
		for _, ch := range idx.children[id] {
			n += idx.total(ch.ID, depth+1)
		}
	}
	idx.totals[id] = n
	return n
}

// view returns a copy of c with Path, Level, HasChildren and
// TotalPostCount filled in.
func (idx *index) view(c *models.Category) *models.Category {
	out := *c
	out.Children = nil

	names := []string{c.Name}
	seen := map[uuid.UUID]bool{c.ID: true}
	for p := c.ParentID; p != nil && len(names) <= MaxDepth; {
		parent, ok := idx.byID[*p]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		names = append(names, parent.Name)
		p = parent.ParentID
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}

	out.Path = strings.Join(names, models.PathSeparator)
	out.Level = len(names) - 1
	out.HasChildren = len(idx.children[c.ID]) > 0
	out.TotalPostCount = idx.totals[c.ID]
	return &out
}

// build returns the nested subtree under parentID.
func (idx *index) build(parentID *uuid.UUID) []models.Category {
	return idx.buildDepth(parentID, 0)
}

func (idx *index) buildDepth(parentID *uuid.UUID, depth int) []models.Category {
	var result []models.Category
	if depth > MaxDepth {
		return result
	}
	for _, c := range idx.children[key(parentID)] {
		node := idx.view(c)
		node.Children = idx.buildDepth(&c.ID, depth+1)
		result = append(result, *node)
	}
	return result
}
