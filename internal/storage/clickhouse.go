package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"shr_parser/internal/extractor"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ClickHouseArchive keeps an append-only copy of stored flights for reporting.
type ClickHouseArchive struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseArchive{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (a *ClickHouseArchive) Close() error {
	return a.conn.Close()
}

// CreateSchema creates the archive table.
func (a *ClickHouseArchive) CreateSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS flights_archive (
		id                   UInt64,
		telegram_id          UInt64,
		flight_id            String,
		drone_type           LowCardinality(String),
		flight_date          Date,
		departure_time       String,
		arrival_time         String,
		duration_minutes     Int32,
		departure_coords     String,
		arrival_coords       String,
		departure_region_id  UInt64,
		departure_region     LowCardinality(String),
		arrival_region_id    UInt64,
		arrival_region       LowCardinality(String),
		archived_at          DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(flight_date)
	ORDER BY (flight_date, drone_type, id)`

	if err := a.conn.Exec(ctx, q); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// archiveColumns must match the order of archiveRow.
const archiveColumns = `id, telegram_id, flight_id, drone_type, flight_date,
	departure_time, arrival_time, duration_minutes,
	departure_coords, arrival_coords,
	departure_region_id, departure_region, arrival_region_id, arrival_region`

// archiveRow flattens a record into column values. Missing optional
// fields become zero values.
func archiveRow(r *extractor.Record) []any {
	var dep, arr string
	if r.DepartureTime != nil {
		dep = r.DepartureTime.String()
	}
	if r.ArrivalTime != nil {
		arr = r.ArrivalTime.String()
	}
	var depID, arrID uint64
	var depName, arrName string
	if r.DepartureRegion != nil {
		depID, depName = uint64(r.DepartureRegion.ID), r.DepartureRegion.Name
	}
	if r.ArrivalRegion != nil {
		arrID, arrName = uint64(r.ArrivalRegion.ID), r.ArrivalRegion.Name
	}
	return []any{
		uint64(r.ID), uint64(r.TelegramID), r.FlightID, r.DroneType, r.FlightDate,
		dep, arr, int32(r.DurationMinutes),
		r.DepartureCoords, r.ArrivalCoords,
		depID, depName, arrID, arrName,
	}
}

// InsertFlights appends records to the archive in one batch.
func (a *ClickHouseArchive) InsertFlights(ctx context.Context, recs []*extractor.Record) error {
	if len(recs) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `INSERT INTO flights_archive (`+archiveColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range recs {
		if err := batch.Append(archiveRow(r)...); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// TopRegions ranks departure regions by archived flights between two dates inclusive.
func (a *ClickHouseArchive) TopRegions(ctx context.Context, from, to time.Time, limit int) ([]RegionCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := a.conn.Query(ctx, `
		SELECT departure_region_id, any(departure_region), count() AS n
		FROM flights_archive
		WHERE departure_region_id != 0 AND flight_date >= ? AND flight_date <= ?
		GROUP BY departure_region_id
		ORDER BY n DESC
		LIMIT ?`,
		from.Format(DateLayout), to.Format(DateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("top regions: %w", err)
	}
	defer rows.Close()

	var out []RegionCount
	for rows.Next() {
		var (
			id    uint64
			name  string
			count uint64
		)
		if err := rows.Scan(&id, &name, &count); err != nil {
			return nil, fmt.Errorf("scan top regions: %w", err)
		}
		out = append(out, RegionCount{RegionID: int64(id), Name: name, Flights: int64(count)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top regions: %w", err)
	}
	return out, nil
}

// CountByDroneType counts archived flights per drone type between two dates inclusive.
func (a *ClickHouseArchive) CountByDroneType(ctx context.Context, from, to time.Time) ([]DroneTypeCount, error) {
	rows, err := a.conn.Query(ctx, `
		SELECT drone_type, count() AS n
		FROM flights_archive
		WHERE flight_date >= ? AND flight_date <= ?
		GROUP BY drone_type
		ORDER BY n DESC, drone_type`,
		from.Format(DateLayout), to.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("count by drone type: %w", err)
	}
	defer rows.Close()

	var out []DroneTypeCount
	for rows.Next() {
		var (
			typ   string
			count uint64
		)
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("scan count by drone type: %w", err)
		}
		out = append(out, DroneTypeCount{DroneType: typ, Flights: int64(count)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count by drone type: %w", err)
	}
	return out, nil
}
