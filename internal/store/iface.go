package store

import (
	"context"
	"iter"
	"time"

	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// Store is the long-term memory tier: an append-only log of promoted outcomes keyed by task id.
// Implementations: SQLite (this package), postgres.Store, redisstore.Store.
type Store interface {
	// Append inserts rec unless a record with the same task id exists. A duplicate is not
	// an error; inserted reports whether this call created the record.
	Append(ctx context.Context, rec models.MemoryRecord) (inserted bool, err error)
	// Get returns the record for taskID, or nil and no error when absent.
	Get(ctx context.Context, taskID string) (*models.MemoryRecord, error)
	// Query lazily yields records matching f in promoted_at order. Each range re-runs the query.
	Query(ctx context.Context, f Filter) iter.Seq2[models.MemoryRecord, error]
	Ping(ctx context.Context) error
	Close() error
}

// Filter narrows a Query. Zero values mean unbounded.
type Filter struct {
	Mode  models.Mode
	Since time.Time // inclusive, on promoted_at
	Until time.Time // exclusive, on promoted_at
	Limit int
}

// Match reports whether rec satisfies f (ignores Limit).
func (f Filter) Match(rec models.MemoryRecord) bool {
	if f.Mode != "" && rec.Mode != f.Mode {
		return false
	}
	if !f.Since.IsZero() && rec.PromotedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !rec.PromotedAt.Before(f.Until) {
		return false
	}
	return true
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[models.MemoryRecord, error]) ([]models.MemoryRecord, error) {
	var out []models.MemoryRecord
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
