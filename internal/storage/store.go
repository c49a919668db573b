// Package storage persists raw telegrams, flight records and region boundaries.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shr_parser/internal/extractor"
	"shr_parser/internal/geo"
	"shr_parser/internal/telegram"
)

// DateLayout is the storage format of flight dates.
const DateLayout = "2006-01-02"

// Store persists telegrams, flights and regions.
type Store interface {
	CreateSchema(ctx context.Context) error
	Close() error

	SaveTelegrams(ctx context.Context, ts []*telegram.Telegram) error
	UpdateTelegramStatus(ctx context.Context, id int64, status telegram.Status) error
	CountTelegramsByStatus(ctx context.Context) (map[telegram.Status]int64, error)

	SaveFlights(ctx context.Context, recs []*extractor.Record) (*SaveResult, error)
	GetFlight(ctx context.Context, id int64) (*extractor.Record, error)
	ListFlights(ctx context.Context, f FlightFilter, p Page) (*FlightPage, error)
	DeleteFlight(ctx context.Context, id int64) (bool, error)
	FlightStats(ctx context.Context, today time.Time) (*FlightStats, error)
	DroneTypes(ctx context.Context) ([]string, error)
	CountByDroneType(ctx context.Context, from, to time.Time) ([]DroneTypeCount, error)

	SaveRegions(ctx context.Context, bs []geo.Boundary) ([]geo.Boundary, error)
	ListRegions(ctx context.Context) ([]geo.Boundary, error)
	TopRegions(ctx context.Context, from, to time.Time, limit int) ([]RegionCount, error)
}

// SaveResult reports how many flights were inserted and how many were
// already stored under the same departure/arrival time and coordinates.
type SaveResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// FlightFilter narrows ListFlights. Zero values mean no restriction.
type FlightFilter struct {
	From      time.Time
	To        time.Time
	DroneType string
	RegionID  int64
}

// Page selects a slice of results. Number is zero-based.
type Page struct {
	Number int
	Size   int
	SortBy string
	Desc   bool
}

// DefaultPageSize is used when Page.Size is not positive.
const DefaultPageSize = 20

// MaxPageSize caps Page.Size.
const MaxPageSize = 500

// sortColumns whitelists the columns flights can be ordered by.
var sortColumns = map[string]string{
	"":                 "f.flight_date",
	"flight_date":      "f.flight_date",
	"id":               "f.id",
	"duration_minutes": "f.duration_minutes",
	"drone_type":       "f.drone_type",
}

// ErrInvalidSort is returned for an unknown Page.SortBy.
var ErrInvalidSort = errors.New("invalid sort column")

func (p Page) normalize() (Page, string, error) {
	col, ok := sortColumns[p.SortBy]
	if !ok {
		return p, "", fmt.Errorf("%w: %q", ErrInvalidSort, p.SortBy)
	}
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p, col, nil
}

// FlightPage is one page of flights.
type FlightPage struct {
	Flights    []*extractor.Record `json:"flights"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	Size       int                 `json:"size"`
	TotalPages int                 `json:"total_pages"`
}

// FlightStats is the dashboard summary.
type FlightStats struct {
	TotalFlights     int64 `json:"total_flights"`
	TodayFlights     int64 `json:"today_flights"`
	UniqueDroneTypes int64 `json:"unique_drone_types"`
}

// RegionCount is one row of the top-regions report.
type RegionCount struct {
	RegionID int64  `json:"region_id"`
	Name     string `json:"name"`
	Flights  int64  `json:"flights"`
}

// DroneTypeCount is the number of flights of one drone type.
type DroneTypeCount struct {
	DroneType string `json:"drone_type"`
	Flights   int64  `json:"flights"`
}

// Config selects and configures the storage backend.
type Config struct {
	Driver   string         `yaml:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Driver: "sqlite",
		SQLite: SQLiteConfig{Path: "shr.db"},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "shr",
			User:     "shr",
			Password: "shr",
		},
	}
}

// Open opens the configured store and creates its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = OpenSQLite(cfg.SQLite.Path)
	case "postgres":
		s, err = OpenPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Driver, err)
	}
	if err := s.CreateSchema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%s schema: %w", cfg.Driver, err)
	}
	return s, nil
}
