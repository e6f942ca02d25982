// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// PostStatus is the publishing state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
	PostStatusArchived  PostStatus = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusPublished, PostStatusArchived:
		return true
	}
	return false
}

// Event is a lifecycle event requested on a post.
type Event string

const (
	EventPublish   Event = "publish"
	EventSchedule  Event = "schedule"
	EventCancel    Event = "cancel"
	EventUnpublish Event = "unpublish"
	EventArchive   Event = "archive"
	EventRestore   Event = "restore"
)

type edge struct {
	from  PostStatus
	event Event
}

// transitions is the complete set of legal lifecycle edges.
var transitions = map[edge]PostStatus{
	{PostStatusDraft, EventPublish}:       PostStatusPublished,
	{PostStatusDraft, EventSchedule}:      PostStatusScheduled,
	{PostStatusScheduled, EventPublish}:   PostStatusPublished,
	{PostStatusScheduled, EventCancel}:    PostStatusDraft,
	{PostStatusPublished, EventUnpublish}: PostStatusDraft,
	{PostStatusPublished, EventArchive}:   PostStatusArchived,
	{PostStatusArchived, EventRestore}:    PostStatusPublished,
}

// NextStatus returns the status reached by applying event in status from.
// ok is false when the edge is not legal.
func NextStatus(from PostStatus, event Event) (to PostStatus, ok bool) {
	to, ok = transitions[edge{from, event}]
	return to, ok
}

// Post is an authored article that belongs to exactly one category.
type Post struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	Slug             string     `json:"slug"`
	Content          string     `json:"content"`
	Excerpt          string     `json:"excerpt"`
	FeaturedImageURL string     `json:"featured_image_url,omitempty"`
	Tags             []string   `json:"tags"`
	Status           PostStatus `json:"status"`
	ScheduledAt      *time.Time `json:"scheduled_at,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	IsFeatured       bool       `json:"is_featured"`
	AllowComments    bool       `json:"allow_comments"`
	MetaTitle        string     `json:"meta_title,omitempty"`
	MetaDescription  string     `json:"meta_description,omitempty"`
	CategoryID       uuid.UUID  `json:"category_id"`
	AuthorID         uuid.UUID  `json:"author_id"`
	DeletedAt        *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsPublished returns true if the post is in published status.
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// IsDeleted returns true if the post has been soft-deleted.
func (p *Post) IsDeleted() bool {
	return p.DeletedAt != nil
}
