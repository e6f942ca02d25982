// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package publishing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"quillpress/internal/models"
	"quillpress/internal/store"
)

func schedule(t *testing.T, f *fixture, title string, in time.Duration) *models.Post {
	t.Helper()
	at := f.clock.Now().Add(in)
	p, err := f.m.Create(bg, f.author, CreateInput{
		Title: title, Content: longContent, CategoryID: f.category.ID, ScheduleAt: &at,
	})
	if err != nil {
		t.Fatalf("Create scheduled: %v", err)
	}
	if p.Status != models.PostStatusScheduled {
		t.Fatalf("status = %s, want scheduled", p.Status)
	}
	return p
}

func TestSweeperPublishesDuePosts(t *testing.T) {
	f := newFixture(t)
	due := schedule(t, f, "Due Soon", time.Minute)
	later := schedule(t, f, "Due Later", time.Hour)
	s := NewSweeper(f.m)

	if n, err := s.RunOnce(bg); err != nil || n != 0 {
		t.Fatalf("early sweep = %d, %v", n, err)
	}

	f.clock.Advance(2 * time.Minute)
	n, err := s.RunOnce(bg)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("published = %d, want 1", n)
	}

	got, _ := f.m.GetByID(bg, due.ID)
	if got.Status != models.PostStatusPublished || got.PublishedAt == nil || got.ScheduledAt != nil {
		t.Errorf("due post = %s published %v scheduled %v", got.Status, got.PublishedAt, got.ScheduledAt)
	}
	got, _ = f.m.GetByID(bg, later.ID)
	if got.Status != models.PostStatusScheduled {
		t.Errorf("later post = %s", got.Status)
	}

	if n, _ := s.RunOnce(bg); n != 0 {
		t.Errorf("second sweep published %d again", n)
	}
}

func TestSweeperRevertsInvalidPosts(t *testing.T) {
	f := newFixture(t)
	p := schedule(t, f, "Will Break", time.Minute)
	if err := f.gw.Categories().SetActive(bg, []uuid.UUID{f.category.ID}, false, f.clock.Now()); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	f.clock.Advance(time.Hour)
	n, err := NewSweeper(f.m).RunOnce(bg)
	if err != nil || n != 0 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	got, _ := f.m.GetByID(bg, p.ID)
	if got.Status != models.PostStatusDraft {
		t.Errorf("status = %s, want draft", got.Status)
	}
}

func TestConcurrentSweepersPublishOnce(t *testing.T) {
	f := newFixture(t)
	for _, title := range []string{"First Due", "Second Due", "Third Due"} {
		schedule(t, f, title, time.Minute)
	}
	f.clock.Advance(time.Hour)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := NewSweeper(f.m).RunOnce(bg)
			if err != nil {
				t.Errorf("RunOnce: %v", err)
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 3 {
		t.Errorf("published %d times, want exactly 3", total)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	schedule(t, f, "Background Due", time.Minute)
	f.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(bg)
	done := make(chan struct{})
	go func() {
		NewSweeper(f.m).Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		page, _ := f.m.Paginate(bg, Filter{Status: models.PostStatusPublished}, store.Page{})
		if page.Total == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper never published the post")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
