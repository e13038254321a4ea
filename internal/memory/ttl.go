// Package memory implements the two memory tiers: a TTL-bounded short-term cache of
// outcomes and the promotion of selected outcomes into the long-term store.
package memory

import (
	"sync"
	"time"

	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// Clock supplies the current time. Tests inject a ManualClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Expired reports whether an entry expiring at expiresAt is dead at now.
// An entry is live only while now < expiresAt.
func Expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

// ExpiresAt anchors the TTL on the outcome's finish time, or on now when the outcome has none.
func ExpiresAt(o models.Outcome, ttl time.Duration, now time.Time) time.Time {
	if o.FinishedAt.IsZero() {
		return now.Add(ttl)
	}
	return o.FinishedAt.Add(ttl)
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
