package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultOpTimeout = 5 * time.Second

// PostgresStore keeps records in a single table with a JSONB metadata column.
// Attribute updates merge one key into the column inside a single UPDATE, so
// concurrent updates of different attributes never overwrite each other.
type PostgresStore struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration

	createSQL string
	setSQL    string
	getSQL    string
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse catalog dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog pool: %w", err)
	}

	s := newPostgresStore(pool, cfg.Table, timeout)
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	return s, nil
}

func newPostgresStore(pool *pgxpool.Pool, table string, timeout time.Duration) *PostgresStore {
	t := pgx.Identifier{table}.Sanitize()
	return &PostgresStore{
		pool:      pool,
		table:     t,
		timeout:   timeout,
		createSQL: fmt.Sprintf(`INSERT INTO %s (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, t),
		setSQL: fmt.Sprintf(`UPDATE %s
SET metadata = metadata || jsonb_build_object($2::text, $3::text), updated_at = now()
WHERE id = $1`, t),
		getSQL: fmt.Sprintf(`SELECT id, metadata, created_at, updated_at FROM %s WHERE id = $1`, t),
	}
}

func (s *PostgresStore) Create(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, s.createSQL, id)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetAttribute(ctx context.Context, id, name, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, s.setSQL, id, name, value)
	if err != nil {
		return fmt.Errorf("update record attribute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec := &Record{}
	err := s.pool.QueryRow(ctx, s.getSQL, id).Scan(&rec.ID, &rec.Metadata, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select record: %w", err)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	return rec, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
