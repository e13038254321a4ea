package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"iter"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shahincodev/Sofware-AI-English/internal/store"
	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var insertSQL = store.InsertSQL(store.Dollar)

// Store is the PostgreSQL implementation of store.Store.
type Store struct {
	Pool *pgxpool.Pool
	db   *sql.DB // database/sql view of Pool, used by goose
}

// Open opens a PostgreSQL connection pool and runs migrations. dsn may be empty to use DATABASE_URL env.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("postgres DSN or DATABASE_URL required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &Store{Pool: pool, db: stdlib.OpenDBFromPool(pool)}
	if err := store.Migrate(ctx, s.db, goose.DialectPostgres, migrationsFS); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	s.Pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) Append(ctx context.Context, rec models.MemoryRecord) (bool, error) {
	if rec.TaskID == "" {
		return false, errors.New("task id required")
	}
	tag, err := s.Pool.Exec(ctx, insertSQL, store.RecordArgs(rec)...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, taskID string) (*models.MemoryRecord, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+store.RecordColumns+` FROM ltm_records WHERE task_id = $1`, taskID)
	rec, err := store.ScanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Query(ctx context.Context, f store.Filter) iter.Seq2[models.MemoryRecord, error] {
	return func(yield func(models.MemoryRecord, error) bool) {
		q, args := store.QuerySQL(f, store.Dollar)
		rows, err := s.Pool.Query(ctx, q, args...)
		if err != nil {
			yield(models.MemoryRecord{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := store.ScanRecord(rows)
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

var _ store.Store = (*Store)(nil)
