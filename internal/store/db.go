package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// Store is the durable job store. All multi-worker coordination is
// expressed as conditional updates against it; there are no in-process
// locks that would need to hold across worker instances.
type Store struct {
	DB      *sql.DB
	dialect string
	log     *slog.Logger

	// Now is the clock used for claims, heartbeats and stale detection.
	// Tests override it to advance time.
	Now func() time.Time
}

// Config tunes the underlying connection pool. Only used for Postgres;
// SQLite opens a single local file.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// Open connects to the store selected by the DSN. A postgres:// URL opens
// a pgx pool wrapped as database/sql; anything else is a SQLite file path.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db      *sql.DB
		dialect string
		err     error
	)
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		db, err = openPostgres(ctx, cfg, logger)
		dialect = dialectPostgres
	} else {
		db, err = openSQLite(cfg.DSN)
		dialect = dialectSQLite
	}
	if err != nil {
		return nil, err
	}

	s := &Store{DB: db, dialect: dialect, log: logger, Now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("job store ready", "dialect", dialect)
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// WAL keeps readers from blocking the claim transaction.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	return db, nil
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database DSN", "error", err)
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "menuqd"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	return stdlib.OpenDBFromPool(pool), nil
}

// Ping verifies the store connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// rebind rewrites ? placeholders to $n for Postgres. Queries are written
// in SQLite style throughout.
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.DB.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.DB.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.DB.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) migrate(ctx context.Context) error {
	// Timestamps are stored as Unix nanoseconds so ordering predicates
	// (claim order, not-before, staleness) compare exactly on both dialects.
	schema := `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  job_type TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('pending','queued','in_progress','paused','completed','failed','cancelled')),
  tenant_id TEXT NOT NULL,
  input_payload TEXT NOT NULL,
  result TEXT,
  error_kind TEXT,
  error_message TEXT,
  retries INTEGER NOT NULL DEFAULT 0,
  max_retries INTEGER NOT NULL DEFAULT 3,
  recoveries INTEGER NOT NULL DEFAULT 0,
  priority INTEGER NOT NULL DEFAULT 0,
  parent_job_id TEXT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  available_at BIGINT NOT NULL,
  started_at BIGINT,
  heartbeat_at BIGINT,
  completed_at BIGINT,
  cancelled_at BIGINT
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs (status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_jobs_heartbeat ON jobs (status, heartbeat_at);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant ON jobs (tenant_id, created_at);

CREATE TABLE IF NOT EXISTS archived_jobs (
  id TEXT PRIMARY KEY,
  job_type TEXT NOT NULL,
  status TEXT NOT NULL,
  tenant_id TEXT NOT NULL,
  input_payload TEXT NOT NULL,
  result TEXT,
  error_kind TEXT,
  error_message TEXT,
  retries INTEGER NOT NULL,
  max_retries INTEGER NOT NULL,
  recoveries INTEGER NOT NULL,
  priority INTEGER NOT NULL,
  parent_job_id TEXT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  completed_at BIGINT,
  cancelled_at BIGINT,
  archived_at BIGINT NOT NULL
);
`
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
