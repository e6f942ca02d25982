// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// PathSeparator joins category names in a root-to-leaf path.
const PathSeparator = " > "

// Category represents a node in the category tree. The tree is stored as
// parent references only; there is no in-memory pointer graph.
type Category struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description"`
	ParentID     *uuid.UUID `json:"parent_id"`
	DisplayOrder int        `json:"display_order"`
	IsActive     bool       `json:"is_active"`
	Metadata     string     `json:"metadata,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Virtual fields populated by read operations.
	Children       []Category `json:"children,omitempty"`
	Path           string     `json:"path"`
	Level          int        `json:"level"`
	HasChildren    bool       `json:"has_children"`
	PostCount      int        `json:"post_count"`
	TotalPostCount int        `json:"total_post_count"`
}

// IsRoot returns true if the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}
