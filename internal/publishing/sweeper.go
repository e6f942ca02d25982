// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package publishing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quillpress/internal/apperr"
	"quillpress/internal/identity"
	"quillpress/internal/models"
	"quillpress/internal/store"
)

// DefaultSweepBatch is the number of due posts handled per sweep.
const DefaultSweepBatch = 100

// Sweeper publishes scheduled posts whose date has been reached. Several
// sweepers may run at once: each post is claimed by compare-and-swap, so
// it is published exactly once.
type Sweeper struct {
	m     *Manager
	batch int
	log   *slog.Logger
}

// NewSweeper returns a Sweeper using m for transitions.
func NewSweeper(m *Manager) *Sweeper {
	return &Sweeper{m: m, batch: DefaultSweepBatch, log: m.log.With("component", "sweeper")}
}

// RunOnce handles one batch of due posts and returns how many were
// published. Posts that no longer pass publish-validation go back to
// draft.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	due, err := s.m.gw.Posts().ListDueScheduled(ctx, s.m.now(), s.batch)
	if err != nil {
		return 0, apperr.Internal(err)
	}

	var (
		published int
		errs      []error
	)
	for _, p := range due {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}

		_, err := s.m.Transition(ctx, identity.SystemActor, p.ID, models.EventPublish, nil)
		switch {
		case err == nil:
			published++
		case apperr.Is(err, apperr.KindValidationFailed):
			s.log.Warn("scheduled post failed validation, returning to draft",
				"id", p.ID, "error", err)
			if err := s.revert(ctx, p); err != nil {
				errs = append(errs, err)
			}
		case apperr.Is(err, apperr.KindInvalidStateTransition), apperr.Is(err, apperr.KindNotFound):
			// Claimed, cancelled or deleted since it was listed.
			s.log.Debug("scheduled post changed before sweep", "id", p.ID)
		default:
			s.log.Error("publish scheduled post", "id", p.ID, "error", err)
			errs = append(errs, err)
		}
	}

	if published > 0 {
		s.log.Info("published scheduled posts", "count", published)
	}
	return published, errors.Join(errs...)
}

// revert moves a scheduled post back to draft.
func (s *Sweeper) revert(ctx context.Context, p models.Post) error {
	_, err := s.m.gw.Posts().CompareAndSetStatus(ctx, p.ID, models.PostStatusScheduled, store.StatusChange{
		To:          models.PostStatusDraft,
		PublishedAt: p.PublishedAt,
		At:          s.m.now(),
	})
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", interval)
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}
