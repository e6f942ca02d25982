// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package identity

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttleIdle is how long an unused bucket is kept.
const throttleIdle = 10 * time.Minute

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle limits login attempts per identifier with a token bucket.
type Throttle struct {
	mu      sync.Mutex
	entries map[string]*throttleEntry
	limit   rate.Limit
	burst   int
	now     Clock
}

// NewThrottle allows burst attempts at once, refilled at perSecond.
func NewThrottle(perSecond float64, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		entries: make(map[string]*throttleEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow consumes one attempt for key and reports whether it was available.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.cleanupLocked(now)

	e, ok := t.entries[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (t *Throttle) cleanupLocked(now time.Time) {
	for key, e := range t.entries {
		if now.Sub(e.lastSeen) > throttleIdle {
			delete(t.entries, key)
		}
	}
}
