package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteConfig holds SQLite settings. Path ":memory:" opens a private
// in-memory database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SQLiteStore is the embedded default Store.
type SQLiteStore struct {
	*sqlStore
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{sqlStore: &sqlStore{q: sqliteQuerier{db}}, db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSchema creates the tables and indices.
func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_telegrams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		center TEXT NOT NULL DEFAULT '',
		shr_text TEXT NOT NULL DEFAULT '',
		dep_text TEXT NOT NULL DEFAULT '',
		arr_text TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING',
		file_name TEXT NOT NULL DEFAULT '',
		created_at TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_raw_telegrams_status ON raw_telegrams(status);

	CREATE TABLE IF NOT EXISTS regions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		area_km2 REAL NOT NULL DEFAULT 0,
		geometry_wkt TEXT NOT NULL DEFAULT '',
		created_at TEXT DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS flights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id INTEGER REFERENCES raw_telegrams(id) ON DELETE SET NULL,
		flight_id TEXT NOT NULL DEFAULT '',
		drone_type TEXT NOT NULL,
		flight_date TEXT NOT NULL,
		departure_time TEXT,
		arrival_time TEXT,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		coordinates TEXT,
		departure_coords TEXT,
		arrival_coords TEXT,
		departure_region_id INTEGER REFERENCES regions(id) ON DELETE SET NULL,
		arrival_region_id INTEGER REFERENCES regions(id) ON DELETE SET NULL,
		processing_status TEXT NOT NULL DEFAULT 'PARSED',
		created_at TEXT DEFAULT (datetime('now')),
		UNIQUE (departure_time, arrival_time, departure_coords, arrival_coords)
	);

	CREATE INDEX IF NOT EXISTS idx_flights_date ON flights(flight_date);
	CREATE INDEX IF NOT EXISTS idx_flights_drone_type ON flights(drone_type);
	CREATE INDEX IF NOT EXISTS idx_flights_departure_region ON flights(departure_region_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

type sqliteQuerier struct {
	db *sql.DB
}

func (q sqliteQuerier) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q sqliteQuerier) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rs}, nil
}

func (q sqliteQuerier) queryRow(ctx context.Context, query string, args ...any) row {
	return q.db.QueryRowContext(ctx, query, args...)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() { _ = r.Rows.Close() }
