package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/shahincodev/Sofware-AI-English/internal/otel"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// Entry is a cached outcome and the instant it stops being visible.
type Entry struct {
	Outcome   models.Outcome `json:"outcome"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// STMConfig configures a ShortTerm cache.
type STMConfig struct {
	TTL        time.Duration
	MaxEntries int
	Clock      Clock
	Logger     *slog.Logger
}

// DefaultSTMConfig returns the defaults used when nothing is configured.
func DefaultSTMConfig() STMConfig {
	return STMConfig{
		TTL:        time.Hour,
		MaxEntries: models.DefaultSTMMaxEntries,
		Clock:      SystemClock{},
	}
}

// ShortTerm is the short-term memory tier: outcomes keyed by task id, each visible
// until its TTL passes. Expiry is checked on every read, so Sweep is only needed to
// reclaim memory. When MaxEntries is reached the least recently used entry is dropped
// and, if still live, handed back to the caller of Put.
type ShortTerm struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	logger  *slog.Logger
	max     int
	entries *simplelru.LRU[string, Entry]
}

// NewShortTerm builds a cache. A non-positive TTL is a configuration error.
func NewShortTerm(cfg STMConfig) (*ShortTerm, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: stm ttl must be positive, got %s", models.ErrConfiguration, cfg.TTL)
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = models.DefaultSTMMaxEntries
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	lru, err := simplelru.NewLRU[string, Entry](cfg.MaxEntries, nil)
	if err != nil {
		return nil, err
	}
	return &ShortTerm{ttl: cfg.TTL, clock: cfg.Clock, logger: cfg.Logger, max: cfg.MaxEntries, entries: lru}, nil
}

// TTL returns the configured time-to-live.
func (s *ShortTerm) TTL() time.Duration { return s.ttl }

// Put stores o, replacing any previous entry for the same task and resetting its expiry.
// At capacity the least recently used entry is dropped; if it had not expired yet it
// is returned in displaced so the caller can keep it elsewhere.
func (s *ShortTerm) Put(o models.Outcome) (e Entry, displaced []Entry) {
	now := s.clock.Now()
	e = Entry{Outcome: o, ExpiresAt: ExpiresAt(o, s.ttl, now)}
	s.mu.Lock()
	if !s.entries.Contains(o.TaskID) && s.entries.Len() >= s.max {
		if _, old, ok := s.entries.GetOldest(); ok && !Expired(old.ExpiresAt, now) {
			displaced = append(displaced, old)
		}
	}
	evicted := s.entries.Add(o.TaskID, e)
	s.mu.Unlock()
	if evicted {
		s.logger.Warn("stm at capacity, evicted least recently used entry", "live", len(displaced))
		otel.RecordSTMEvictions(context.Background(), "capacity", 1)
	}
	return e, displaced
}

// Get returns the outcome for taskID if present and not expired. An expired entry
// is removed as a side effect.
func (s *ShortTerm) Get(taskID string) (models.Outcome, bool) {
	e, ok := s.Entry(taskID)
	return e.Outcome, ok
}

// Entry is Get with the expiry attached.
func (s *ShortTerm) Entry(taskID string) (Entry, bool) {
	now := s.clock.Now()
	s.mu.Lock()
	e, ok := s.entries.Get(taskID)
	if ok && Expired(e.ExpiresAt, now) {
		s.entries.Remove(taskID)
		s.mu.Unlock()
		otel.RecordSTMEvictions(context.Background(), "expired", 1)
		return Entry{}, false
	}
	s.mu.Unlock()
	return e, ok
}

// Sweep removes every expired entry and returns how many were removed.
func (s *ShortTerm) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	removed := 0
	for _, k := range s.entries.Keys() {
		if e, ok := s.entries.Peek(k); ok && Expired(e.ExpiresAt, now) {
			s.entries.Remove(k)
			removed++
		}
	}
	s.mu.Unlock()
	otel.RecordSTMEvictions(context.Background(), "sweep", removed)
	return removed
}

// Len returns the number of entries held, including expired ones not yet swept.
func (s *ShortTerm) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}
