package memory

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shahincodev/Sofware-AI-English/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSTM(t *testing.T, ttl time.Duration, clock Clock) *ShortTerm {
	t.Helper()
	s, err := NewShortTerm(STMConfig{TTL: ttl, MaxEntries: 100, Clock: clock, Logger: quietLogger()})
	require.NoError(t, err)
	return s
}

func outcome(id string, finished time.Time) models.Outcome {
	res := "ok"
	return models.Outcome{
		TaskID:     id,
		Mode:       models.ModeBrowser,
		Status:     models.StatusSuccess,
		Result:     &res,
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
	}
}

func TestExpired(t *testing.T) {
	exp := t0.Add(time.Minute)
	assert.False(t, Expired(exp, t0))
	assert.False(t, Expired(exp, exp.Add(-time.Nanosecond)))
	assert.True(t, Expired(exp, exp), "entry is dead exactly at expires_at")
	assert.True(t, Expired(exp, exp.Add(time.Second)))
}

func TestExpiresAt(t *testing.T) {
	o := outcome("a", t0)
	assert.Equal(t, t0.Add(time.Minute), ExpiresAt(o, time.Minute, t0.Add(time.Hour)))
	o.FinishedAt = time.Time{}
	assert.Equal(t, t0.Add(2*time.Minute), ExpiresAt(o, time.Minute, t0.Add(time.Minute)))
}

func TestNewShortTerm_rejectsNonPositiveTTL(t *testing.T) {
	_, err := NewShortTerm(STMConfig{TTL: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestShortTerm_lazyExpiry(t *testing.T) {
	clock := NewManualClock(t0)
	s := newSTM(t, 5*time.Minute, clock)
	s.Put(outcome("a", t0))

	clock.Set(t0.Add(5*time.Minute - time.Nanosecond))
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.TaskID)

	clock.Set(t0.Add(5 * time.Minute))
	_, ok = s.Get("a")
	assert.False(t, ok, "expired entry must never be returned")
	assert.Equal(t, 0, s.Len(), "expired entry removed on read")
}

func TestShortTerm_overwriteResetsExpiry(t *testing.T) {
	clock := NewManualClock(t0)
	s := newSTM(t, time.Minute, clock)
	s.Put(outcome("a", t0))

	clock.Advance(50 * time.Second)
	second := outcome("a", clock.Now())
	second.Status = models.StatusFailure
	e, displaced := s.Put(second)
	assert.Empty(t, displaced, "overwrite displaces nothing")
	assert.Equal(t, t0.Add(50*time.Second+time.Minute), e.ExpiresAt)

	clock.Advance(30 * time.Second)
	got, ok := s.Get("a")
	require.True(t, ok, "second put extended the lifetime")
	assert.Equal(t, models.StatusFailure, got.Status)
	assert.Equal(t, 1, s.Len())
}

func TestShortTerm_sweep(t *testing.T) {
	clock := NewManualClock(t0)
	s := newSTM(t, time.Minute, clock)
	for i := 0; i < 3; i++ {
		s.Put(outcome(fmt.Sprintf("old%d", i), t0))
	}
	s.Put(outcome("fresh", t0.Add(time.Minute)))

	assert.Equal(t, 0, s.Sweep())
	clock.Advance(time.Minute)
	assert.Equal(t, 3, s.Sweep())
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("fresh")
	assert.True(t, ok)
	assert.Equal(t, 0, s.Sweep())
}

func TestShortTerm_capacity(t *testing.T) {
	clock := NewManualClock(t0)
	s, err := NewShortTerm(STMConfig{TTL: time.Hour, MaxEntries: 2, Clock: clock, Logger: quietLogger()})
	require.NoError(t, err)
	s.Put(outcome("a", t0))
	s.Put(outcome("b", t0))
	_, displaced := s.Put(outcome("c", t0))
	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
	require.Len(t, displaced, 1)
	assert.Equal(t, "a", displaced[0].Outcome.TaskID)

	// An expired entry pushed out by capacity is not handed back.
	clock.Advance(time.Hour)
	_, displaced = s.Put(outcome("d", clock.Now()))
	assert.Empty(t, displaced)
}

func TestShortTerm_concurrentAccess(t *testing.T) {
	clock := NewManualClock(t0)
	s := newSTM(t, time.Minute, clock)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		id := fmt.Sprintf("k%d", i%5)
		go func() { defer wg.Done(); s.Put(outcome(id, t0)) }()
		go func() { defer wg.Done(); _, _ = s.Get(id) }()
		go func() { defer wg.Done(); s.Sweep() }()
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 5)
}
