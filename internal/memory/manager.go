package memory

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/shahincodev/Sofware-AI-English/internal/otel"
	"github.com/shahincodev/Sofware-AI-English/internal/store"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// Manager ties the two tiers together: every outcome is recorded in short-term
// memory and, when the policy holds, appended to the long-term store before
// Record returns.
type Manager struct {
	stm    *ShortTerm
	ltm    store.Store
	policy Policy
	clock  Clock
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithClock sets the clock used for promoted_at.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager wires a short-term cache to a long-term store.
func NewManager(stm *ShortTerm, ltm store.Store, opts ...Option) *Manager {
	m := &Manager{
		stm:    stm,
		ltm:    ltm,
		policy: DefaultPolicy,
		clock:  SystemClock{},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Recalled is an outcome found by Recall and the tier it came from.
type Recalled struct {
	Outcome models.Outcome
	Tier    string
}

// Record stores o in short-term memory and promotes it when the policy holds.
// A long-term failure is returned as *models.MemoryWriteError; the short-term
// entry is kept either way.
func (m *Manager) Record(ctx context.Context, o models.Outcome) error {
	e, displaced := m.stm.Put(o)
	m.logger.Debug("outcome recorded", "task_id", o.TaskID, "status", o.Status, "expires_at", e.ExpiresAt)
	for _, d := range displaced {
		m.consolidate(ctx, d.Outcome)
	}
	if !m.policy(o) {
		return nil
	}
	if _, err := m.append(ctx, o); err != nil {
		return &models.MemoryWriteError{TaskID: o.TaskID, Tier: models.TierLongTerm, Err: err}
	}
	return nil
}

// Promote copies the live short-term entry for taskID into long-term memory,
// regardless of policy. It reports whether the outcome is in long-term memory
// after the call; calling it again, or concurrently, never creates a second record.
func (m *Manager) Promote(ctx context.Context, taskID string) (bool, error) {
	o, ok := m.stm.Get(taskID)
	if !ok {
		rec, err := m.ltm.Get(ctx, taskID)
		if err != nil {
			return false, err
		}
		return rec != nil, nil
	}
	if _, err := m.append(ctx, o); err != nil {
		return false, &models.MemoryWriteError{TaskID: taskID, Tier: models.TierLongTerm, Err: err}
	}
	return true, nil
}

func (m *Manager) append(ctx context.Context, o models.Outcome) (bool, error) {
	rec := models.MemoryRecord{Outcome: o, PromotedAt: m.clock.Now().UTC()}
	inserted, err := m.ltm.Append(ctx, rec)
	switch {
	case err != nil:
		otel.RecordPromotion(ctx, "error")
		m.logger.Error("promotion failed", "task_id", o.TaskID, "err", err)
	case inserted:
		otel.RecordPromotion(ctx, "inserted")
		m.logger.Debug("outcome promoted", "task_id", o.TaskID)
	default:
		otel.RecordPromotion(ctx, "duplicate")
	}
	return inserted, err
}

// consolidate moves an outcome pushed out of a full short-term cache into
// long-term memory so it stays recallable. The policy does not apply. A failure
// is logged only; it belongs to another task than the one being recorded.
func (m *Manager) consolidate(ctx context.Context, o models.Outcome) {
	m.logger.Info("consolidating displaced stm entry", "task_id", o.TaskID, "status", o.Status)
	_, _ = m.append(ctx, o)
}

// Recall looks in short-term memory first, then long-term. ok is false when the
// task is in neither.
func (m *Manager) Recall(ctx context.Context, taskID string) (Recalled, bool, error) {
	if o, ok := m.stm.Get(taskID); ok {
		return Recalled{Outcome: o, Tier: models.TierShortTerm}, true, nil
	}
	rec, err := m.ltm.Get(ctx, taskID)
	if err != nil {
		return Recalled{}, false, err
	}
	if rec == nil {
		return Recalled{}, false, nil
	}
	return Recalled{Outcome: rec.Outcome, Tier: models.TierLongTerm}, true, nil
}

// Query lists long-term records in promoted_at order.
func (m *Manager) Query(ctx context.Context, f store.Filter) iter.Seq2[models.MemoryRecord, error] {
	return m.ltm.Query(ctx, f)
}

// Sweep drops expired short-term entries and returns how many were removed.
func (m *Manager) Sweep() int {
	n := m.stm.Sweep()
	if n > 0 {
		m.logger.Debug("stm sweep", "removed", n)
	}
	return n
}

// ShortTerm exposes the short-term tier.
func (m *Manager) ShortTerm() *ShortTerm { return m.stm }

// Ping checks the long-term store.
func (m *Manager) Ping(ctx context.Context) error { return m.ltm.Ping(ctx) }

// Close closes the long-term store.
func (m *Manager) Close() error {
	if m.ltm == nil {
		return nil
	}
	return m.ltm.Close()
}

// IsMemoryWrite reports whether err is a memory write failure.
func IsMemoryWrite(err error) bool {
	return errors.Is(err, models.ErrMemoryWrite)
}
