package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

// RecordColumns is the column list shared by the SQL stores, in ScanRecord order.
const RecordColumns = `task_id, mode, task_text, status, result, error, error_message, started_at, finished_at, promoted_at`

// Scanner is satisfied by *sql.Row, *sql.Rows and pgx.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanRecord reads one row selected with RecordColumns.
func ScanRecord(sc Scanner) (models.MemoryRecord, error) {
	var (
		rec                                   models.MemoryRecord
		mode, errKind                         string
		result                                sql.NullString
		startedAt, finishedAt, promotedAtNano int64
	)
	if err := sc.Scan(&rec.TaskID, &mode, &rec.Text, &rec.Status, &result, &errKind, &rec.ErrorMessage, &startedAt, &finishedAt, &promotedAtNano); err != nil {
		return models.MemoryRecord{}, err
	}
	rec.Mode = models.Mode(mode)
	rec.ErrorKind = models.ErrorKind(errKind)
	if result.Valid {
		s := result.String
		rec.Result = &s
	}
	rec.StartedAt = fromNanos(startedAt)
	rec.FinishedAt = fromNanos(finishedAt)
	rec.PromotedAt = fromNanos(promotedAtNano)
	return rec, nil
}

// RecordArgs returns the insert arguments for rec in RecordColumns order.
func RecordArgs(rec models.MemoryRecord) []any {
	var result any
	if rec.Result != nil {
		result = *rec.Result
	}
	return []any{
		rec.TaskID,
		string(rec.Mode),
		rec.Text,
		rec.Status,
		result,
		string(rec.ErrorKind),
		rec.ErrorMessage,
		toNanos(rec.StartedAt),
		toNanos(rec.FinishedAt),
		toNanos(rec.PromotedAt),
	}
}

// InsertSQL builds the idempotent insert. placeholder renders the n-th (1-based) bind parameter.
func InsertSQL(placeholder func(n int) string) string {
	ph := make([]string, 10)
	for i := range ph {
		ph[i] = placeholder(i + 1)
	}
	return `INSERT INTO ltm_records(` + RecordColumns + `) VALUES(` + strings.Join(ph, ", ") + `) ON CONFLICT(task_id) DO NOTHING`
}

// QuerySQL builds the filtered select for f.
func QuerySQL(f Filter, placeholder func(n int) string) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, placeholder(len(args))))
	}
	if f.Mode != "" {
		add("mode = %s", string(f.Mode))
	}
	if !f.Since.IsZero() {
		add("promoted_at >= %s", toNanos(f.Since))
	}
	if !f.Until.IsZero() {
		add("promoted_at < %s", toNanos(f.Until))
	}
	q := `SELECT ` + RecordColumns + ` FROM ltm_records`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY promoted_at ASC, task_id ASC`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	return q, args
}

// QuestionMark is the SQLite placeholder style.
func QuestionMark(int) string { return "?" }

// Dollar is the PostgreSQL placeholder style.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
