package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteStore is the SQLite implementation of Store (internal to this package).
type sqliteStore struct {
	DB *sql.DB
	// Prepared statements for hot paths (prepared at open, closed in Close).
	stmtInsert *sql.Stmt
	stmtGet    *sql.Stmt
}

// OpenOptions configures how to open the SQLite store.
type OpenOptions struct {
	Home string // directory containing data/memories.sqlite3
	DSN  string // file path or file: URI; takes precedence over Home
}

// DBPath returns the default SQLite location under home.
func DBPath(home string) string {
	return filepath.Join(home, "data", "memories.sqlite3")
}

// Open opens the default SQLite store at home/data/memories.sqlite3.
func Open(ctx context.Context, home string) (Store, error) {
	return OpenWithOptions(ctx, OpenOptions{Home: home})
}

// OpenWithOptions opens SQLite from a DSN or home directory and applies migrations.
// Postgres and Redis live in their own packages to avoid import cycles.
func OpenWithOptions(ctx context.Context, opts OpenOptions) (Store, error) {
	dsn := opts.DSN
	if dsn == "" {
		if opts.Home == "" {
			return nil, errors.New("sqlite home or DSN required")
		}
		dbPath := DBPath(opts.Home)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn + "?_pragma=busy_timeout(5000)"
	}
	return openSQLiteDSN(ctx, dsn)
}

func openSQLiteDSN(ctx context.Context, dsn string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &sqliteStore{DB: db}
	if err := s.initPragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db, goose.DialectSQLite3, migrationsFS); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.prepareStatements(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded goose migrations found under migrations/ in fsys.
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, fsys fs.FS) error {
	sub, err := fs.Sub(fsys, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	return nil
}

func (s *sqliteStore) prepareStatements(ctx context.Context) error {
	pairs := []struct {
		dest **sql.Stmt
		q    string
	}{
		{&s.stmtInsert, InsertSQL(QuestionMark)},
		{&s.stmtGet, `SELECT ` + RecordColumns + ` FROM ltm_records WHERE task_id = ?`},
	}
	for _, p := range pairs {
		st, err := s.DB.PrepareContext(ctx, p.q)
		if err != nil {
			return err
		}
		*p.dest = st
	}
	return nil
}

func (s *sqliteStore) initPragmas(ctx context.Context) error {
	// WAL lets readers proceed while a promotion is being written.
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		// Negative cache_size means KB.
		"PRAGMA cache_size=-20000;",
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) Append(ctx context.Context, rec models.MemoryRecord) (bool, error) {
	if rec.TaskID == "" {
		return false, errors.New("task id required")
	}
	res, err := s.stmtInsert.ExecContext(ctx, RecordArgs(rec)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) Get(ctx context.Context, taskID string) (*models.MemoryRecord, error) {
	rec, err := ScanRecord(s.stmtGet.QueryRowContext(ctx, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *sqliteStore) Query(ctx context.Context, f Filter) iter.Seq2[models.MemoryRecord, error] {
	return func(yield func(models.MemoryRecord, error) bool) {
		q, args := QuerySQL(f, QuestionMark)
		rows, err := s.DB.QueryContext(ctx, q, args...)
		if err != nil {
			yield(models.MemoryRecord{}, err)
			return
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			rec, err := ScanRecord(rows)
			if err != nil {
				yield(models.MemoryRecord{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.MemoryRecord{}, err)
		}
	}
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	for _, st := range []*sql.Stmt{s.stmtInsert, s.stmtGet} {
		if st != nil {
			_ = st.Close()
		}
	}
	return s.DB.Close()
}
