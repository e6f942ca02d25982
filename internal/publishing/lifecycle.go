// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package publishing

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"quillpress/internal/apperr"
	"quillpress/internal/identity"
	"quillpress/internal/models"
	"quillpress/internal/store"
)

// Transition applies a lifecycle event to a post. at is the schedule date
// for EventSchedule and ignored otherwise.
func (m *Manager) Transition(ctx context.Context, actor identity.Actor, id uuid.UUID, event models.Event, at *time.Time) (*models.Post, error) {
	var out *models.Post
	err := m.gw.InTx(ctx, func(r store.Repos) error {
		p, err := loadLive(ctx, r.Posts(), id)
		if err != nil {
			return err
		}
		out, err = m.apply(ctx, r, actor, p, event, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("post transitioned", "id", id, "event", event, "status", out.Status, "by", actor.UserID, "system", actor.System)
	return out, nil
}

// apply checks the edge and its precondition, then claims the post with a
// compare-and-swap on its current status.
func (m *Manager) apply(ctx context.Context, r store.Repos, actor identity.Actor, p *models.Post, event models.Event, at *time.Time) (*models.Post, error) {
	if !actor.System && !CanEdit(p, actor) {
		return nil, apperr.Unauthorized("only the author or an editor can change this post")
	}
	to, ok := models.NextStatus(p.Status, event)
	if !ok {
		return nil, apperr.InvalidTransition(string(event), string(p.Status))
	}

	now := m.now()
	// A scheduled post only goes live once its date is reached; publishing
	// earlier requires cancelling the schedule first.
	if event == models.EventPublish && p.Status == models.PostStatusScheduled &&
		(p.ScheduledAt == nil || now.Before(*p.ScheduledAt)) {
		return nil, apperr.InvalidTransition(string(event), string(p.Status))
	}
	change := store.StatusChange{To: to, PublishedAt: p.PublishedAt, At: now}

	switch event {
	case models.EventPublish:
		if err := m.publishable(ctx, r.Categories(), p); err != nil {
			return nil, err
		}
		if change.PublishedAt == nil {
			change.PublishedAt = &now
		}
	case models.EventSchedule:
		if at == nil {
			return nil, apperr.Invalid("scheduled_at", "is required")
		}
		if !at.After(now) {
			return nil, apperr.Invalid("scheduled_at", "must be in the future")
		}
		when := at.UTC()
		change.ScheduledAt = &when
	case models.EventRestore:
		if err := requireActiveCategory(ctx, r.Categories(), p.CategoryID); err != nil {
			return nil, err
		}
	}

	claimed, err := r.Posts().CompareAndSetStatus(ctx, p.ID, p.Status, change)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !claimed {
		return nil, apperr.InvalidTransition(string(event), string(p.Status))
	}

	p.Status = change.To
	p.ScheduledAt = change.ScheduledAt
	p.PublishedAt = change.PublishedAt
	p.UpdatedAt = now
	return p, nil
}

// publishable collects every reason p cannot be published.
func (m *Manager) publishable(ctx context.Context, cats store.CategoryRepository, p *models.Post) error {
	var v apperr.Validation
	v.Check(utf8.RuneCountInString(strings.TrimSpace(p.Title)) >= MinPublishTitleLen, "title",
		fmt.Sprintf("must be at least %d characters to publish", MinPublishTitleLen))
	v.Check(utf8.RuneCountInString(strings.TrimSpace(p.Content)) >= MinPublishContentLen, "content",
		fmt.Sprintf("must be at least %d characters to publish", MinPublishContentLen))

	c, err := cats.FindByID(ctx, p.CategoryID)
	if err != nil {
		return apperr.Internal(err)
	}
	switch {
	case c == nil:
		v.Add("category_id", "category does not exist")
	case !c.IsActive:
		v.Add("category_id", "category is inactive")
	}
	return v.Err()
}
