package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// PostgresStore is the server-backed Store.
type PostgresStore struct {
	*sqlStore
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{sqlStore: &sqlStore{q: pgQuerier{pool}}, pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateSchema creates the PostgreSQL tables.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_telegrams (
		id          BIGSERIAL PRIMARY KEY,
		center      TEXT NOT NULL DEFAULT '',
		shr_text    TEXT NOT NULL DEFAULT '',
		dep_text    TEXT NOT NULL DEFAULT '',
		arr_text    TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'PENDING',
		file_name   TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_raw_telegrams_status ON raw_telegrams(status);

	CREATE TABLE IF NOT EXISTS regions (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT NOT NULL UNIQUE,
		area_km2      DOUBLE PRECISION NOT NULL DEFAULT 0,
		geometry_wkt  TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS flights (
		id                   BIGSERIAL PRIMARY KEY,
		telegram_id          BIGINT REFERENCES raw_telegrams(id) ON DELETE SET NULL,
		flight_id            TEXT NOT NULL DEFAULT '',
		drone_type           TEXT NOT NULL,
		flight_date          DATE NOT NULL,
		departure_time       TEXT,
		arrival_time         TEXT,
		duration_minutes     INTEGER NOT NULL DEFAULT 0,
		coordinates          TEXT,
		departure_coords     TEXT,
		arrival_coords       TEXT,
		departure_region_id  BIGINT REFERENCES regions(id) ON DELETE SET NULL,
		arrival_region_id    BIGINT REFERENCES regions(id) ON DELETE SET NULL,
		processing_status    TEXT NOT NULL DEFAULT 'PARSED',
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (departure_time, arrival_time, departure_coords, arrival_coords)
	);

	CREATE INDEX IF NOT EXISTS idx_flights_date ON flights(flight_date);
	CREATE INDEX IF NOT EXISTS idx_flights_drone_type ON flights(drone_type);
	CREATE INDEX IF NOT EXISTS idx_flights_departure_region ON flights(departure_region_id);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ...
func rebind(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

type pgQuerier struct {
	pool *pgxpool.Pool
}

func (q pgQuerier) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := q.pool.Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q pgQuerier) query(ctx context.Context, query string, args ...any) (rows, error) {
	return q.pool.Query(ctx, rebind(query), args...)
}

func (q pgQuerier) queryRow(ctx context.Context, query string, args ...any) row {
	return pgRow{q.pool.QueryRow(ctx, rebind(query), args...)}
}

type pgRow struct {
	pgx.Row
}

func (r pgRow) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return sql.ErrNoRows
	}
	return err
}
