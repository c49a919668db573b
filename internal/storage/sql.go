package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"shr_parser/internal/extractor"
	"shr_parser/internal/geo"
	"shr_parser/internal/patterns"
	"shr_parser/internal/telegram"
)

// querier is the subset of a connection both SQL backends provide. Queries
// are written with ? placeholders; backends rebind as needed. A row that
// does not exist surfaces as sql.ErrNoRows from row.Scan.
type querier interface {
	exec(ctx context.Context, q string, args ...any) (int64, error)
	query(ctx context.Context, q string, args ...any) (rows, error)
	queryRow(ctx context.Context, q string, args ...any) row
}

type row interface {
	Scan(dest ...any) error
}

type rows interface {
	row
	Next() bool
	Err() error
	Close()
}

// sqlStore implements Store on top of a querier.
type sqlStore struct {
	q querier
}

const flightColumns = `
	f.id, f.telegram_id, f.flight_id, f.drone_type, CAST(f.flight_date AS TEXT),
	f.departure_time, f.arrival_time, f.duration_minutes,
	f.coordinates, f.departure_coords, f.arrival_coords,
	f.departure_region_id, dr.name, f.arrival_region_id, ar.name,
	f.processing_status
FROM flights f
LEFT JOIN regions dr ON dr.id = f.departure_region_id
LEFT JOIN regions ar ON ar.id = f.arrival_region_id`

// SaveTelegrams inserts raw telegrams and assigns their IDs.
func (s *sqlStore) SaveTelegrams(ctx context.Context, ts []*telegram.Telegram) error {
	for _, t := range ts {
		if t.Status == "" {
			t.Status = telegram.StatusPending
		}
		var id int64
		err := s.q.queryRow(ctx, `
			INSERT INTO raw_telegrams (center, shr_text, dep_text, arr_text, status, file_name)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`,
			t.Center, t.SHRText, t.DEPText, t.ARRText, string(t.Status), t.FileName,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert telegram: %w", err)
		}
		t.ID = telegram.FlexInt64(id)
	}
	return nil
}

// UpdateTelegramStatus sets the processing status of one telegram.
func (s *sqlStore) UpdateTelegramStatus(ctx context.Context, id int64, status telegram.Status) error {
	if _, err := s.q.exec(ctx, `UPDATE raw_telegrams SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return fmt.Errorf("update telegram %d: %w", id, err)
	}
	return nil
}

// CountTelegramsByStatus returns the number of telegrams in each status.
func (s *sqlStore) CountTelegramsByStatus(ctx context.Context) (map[telegram.Status]int64, error) {
	rs, err := s.q.query(ctx, `SELECT status, COUNT(*) FROM raw_telegrams GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count telegrams: %w", err)
	}
	defer rs.Close()

	out := map[telegram.Status]int64{}
	for rs.Next() {
		var (
			status string
			n      int64
		)
		if err := rs.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[telegram.Status(status)] = n
	}
	return out, rs.Err()
}

// SaveFlights inserts records, skipping any that duplicate a stored flight.
// Inserted records get their ID set.
func (s *sqlStore) SaveFlights(ctx context.Context, recs []*extractor.Record) (*SaveResult, error) {
	res := &SaveResult{}
	for _, r := range recs {
		if r == nil {
			continue
		}
		status := r.ProcessingStatus
		if status == "" {
			status = extractor.StatusParsed
		}
		var id int64
		err := s.q.queryRow(ctx, `
			INSERT INTO flights (
				telegram_id, flight_id, drone_type, flight_date,
				departure_time, arrival_time, duration_minutes,
				coordinates, departure_coords, arrival_coords,
				departure_region_id, arrival_region_id, processing_status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (departure_time, arrival_time, departure_coords, arrival_coords) DO NOTHING
			RETURNING id`,
			nullInt(r.TelegramID),
			r.FlightID,
			r.DroneType,
			r.FlightDate.Format(DateLayout),
			nullTime(r.DepartureTime),
			nullTime(r.ArrivalTime),
			r.DurationMinutes,
			nullString(r.Coordinates),
			nullString(r.DepartureCoords),
			nullString(r.ArrivalCoords),
			regionID(r.DepartureRegion),
			regionID(r.ArrivalRegion),
			status,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			res.Duplicates++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("insert flight: %w", err)
		}
		r.ID = id
		res.Inserted++
	}
	return res, nil
}

// GetFlight returns one flight, or nil when it does not exist.
func (s *sqlStore) GetFlight(ctx context.Context, id int64) (*extractor.Record, error) {
	r, err := scanFlight(s.q.queryRow(ctx, `SELECT `+flightColumns+` WHERE f.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flight %d: %w", id, err)
	}
	return r, nil
}

// ListFlights returns one page of flights matching f.
func (s *sqlStore) ListFlights(ctx context.Context, f FlightFilter, p Page) (*FlightPage, error) {
	p, col, err := p.normalize()
	if err != nil {
		return nil, err
	}
	where, args := f.where()

	var total int64
	if err := s.q.queryRow(ctx, `SELECT COUNT(*) FROM flights f`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count flights: %w", err)
	}

	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	q := `SELECT ` + flightColumns + where +
		fmt.Sprintf(" ORDER BY %s %s, f.id %s LIMIT ? OFFSET ?", col, dir, dir)
	rs, err := s.q.query(ctx, q, append(args, p.Size, p.Number*p.Size)...)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer rs.Close()

	page := &FlightPage{
		Flights:    []*extractor.Record{},
		Total:      total,
		Page:       p.Number,
		Size:       p.Size,
		TotalPages: int((total + int64(p.Size) - 1) / int64(p.Size)),
	}
	for rs.Next() {
		r, err := scanFlight(rs)
		if err != nil {
			return nil, err
		}
		page.Flights = append(page.Flights, r)
	}
	return page, rs.Err()
}

func (f FlightFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		conds = append(conds, "f.flight_date >= ?")
		args = append(args, f.From.Format(DateLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "f.flight_date <= ?")
		args = append(args, f.To.Format(DateLayout))
	}
	if f.DroneType != "" {
		conds = append(conds, "f.drone_type = ?")
		args = append(args, f.DroneType)
	}
	if f.RegionID != 0 {
		conds = append(conds, "(f.departure_region_id = ? OR f.arrival_region_id = ?)")
		args = append(args, f.RegionID, f.RegionID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// DeleteFlight removes one flight and reports whether it existed.
func (s *sqlStore) DeleteFlight(ctx context.Context, id int64) (bool, error) {
	n, err := s.q.exec(ctx, `DELETE FROM flights WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete flight %d: %w", id, err)
	}
	return n > 0, nil
}

// FlightStats counts all flights, flights dated today, and distinct drone types.
func (s *sqlStore) FlightStats(ctx context.Context, today time.Time) (*FlightStats, error) {
	st := &FlightStats{}
	err := s.q.queryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN flight_date = ? THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT drone_type)
		FROM flights`,
		today.Format(DateLayout),
	).Scan(&st.TotalFlights, &st.TodayFlights, &st.UniqueDroneTypes)
	if err != nil {
		return nil, fmt.Errorf("flight stats: %w", err)
	}
	return st, nil
}

// DroneTypes lists the distinct drone types in alphabetical order.
func (s *sqlStore) DroneTypes(ctx context.Context) ([]string, error) {
	rs, err := s.q.query(ctx, `SELECT DISTINCT drone_type FROM flights ORDER BY drone_type`)
	if err != nil {
		return nil, fmt.Errorf("drone types: %w", err)
	}
	defer rs.Close()

	var out []string
	for rs.Next() {
		var t string
		if err := rs.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rs.Err()
}

// CountByDroneType counts flights per drone type between two dates inclusive.
func (s *sqlStore) CountByDroneType(ctx context.Context, from, to time.Time) ([]DroneTypeCount, error) {
	rs, err := s.q.query(ctx, `
		SELECT drone_type, COUNT(*) AS n
		FROM flights
		WHERE flight_date >= ? AND flight_date <= ?
		GROUP BY drone_type
		ORDER BY n DESC, drone_type`,
		from.Format(DateLayout), to.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("count by drone type: %w", err)
	}
	defer rs.Close()

	var out []DroneTypeCount
	for rs.Next() {
		var c DroneTypeCount
		if err := rs.Scan(&c.DroneType, &c.Flights); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rs.Err()
}

// SaveRegions upserts boundaries by name and returns them with IDs set.
func (s *sqlStore) SaveRegions(ctx context.Context, bs []geo.Boundary) ([]geo.Boundary, error) {
	out := make([]geo.Boundary, len(bs))
	for i, b := range bs {
		var id int64
		err := s.q.queryRow(ctx, `
			INSERT INTO regions (name, area_km2, geometry_wkt)
			VALUES (?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET
				area_km2 = excluded.area_km2,
				geometry_wkt = excluded.geometry_wkt
			RETURNING id`,
			b.Name, b.AreaKm2, b.WKT(),
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("upsert region %q: %w", b.Name, err)
		}
		b.ID = id
		out[i] = b
	}
	return out, nil
}

// ListRegions loads every stored boundary in ID order.
func (s *sqlStore) ListRegions(ctx context.Context) ([]geo.Boundary, error) {
	rs, err := s.q.query(ctx, `SELECT id, name, area_km2, geometry_wkt FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rs.Close()

	var out []geo.Boundary
	for rs.Next() {
		var (
			id   int64
			name string
			area float64
			text string
		)
		if err := rs.Scan(&id, &name, &area, &text); err != nil {
			return nil, err
		}
		b, err := geo.FromWKT(id, name, area, text)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rs.Err()
}

// TopRegions ranks regions by the number of flights departing from them
// between two dates inclusive.
func (s *sqlStore) TopRegions(ctx context.Context, from, to time.Time, limit int) ([]RegionCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rs, err := s.q.query(ctx, `
		SELECT r.id, r.name, COUNT(*) AS n
		FROM flights f
		JOIN regions r ON r.id = f.departure_region_id
		WHERE f.flight_date >= ? AND f.flight_date <= ?
		GROUP BY r.id, r.name
		ORDER BY n DESC, r.name
		LIMIT ?`,
		from.Format(DateLayout), to.Format(DateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("top regions: %w", err)
	}
	defer rs.Close()

	var out []RegionCount
	for rs.Next() {
		var c RegionCount
		if err := rs.Scan(&c.RegionID, &c.Name, &c.Flights); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rs.Err()
}

func scanFlight(rw row) (*extractor.Record, error) {
	var (
		r                    extractor.Record
		telegramID           *int64
		date                 string
		dep, arr             *string
		coords, depC, arrC   *string
		depRegion, arrRegion *int64
		depName, arrName     *string
	)
	err := rw.Scan(
		&r.ID, &telegramID, &r.FlightID, &r.DroneType, &date,
		&dep, &arr, &r.DurationMinutes,
		&coords, &depC, &arrC,
		&depRegion, &depName, &arrRegion, &arrName,
		&r.ProcessingStatus,
	)
	if err != nil {
		return nil, err
	}

	if telegramID != nil {
		r.TelegramID = *telegramID
	}
	if r.FlightDate, err = time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("flight %d date: %w", r.ID, err)
	}
	if r.DepartureTime, err = parseStoredTime(dep); err != nil {
		return nil, fmt.Errorf("flight %d departure: %w", r.ID, err)
	}
	if r.ArrivalTime, err = parseStoredTime(arr); err != nil {
		return nil, fmt.Errorf("flight %d arrival: %w", r.ID, err)
	}
	r.Coordinates = deref(coords)
	r.DepartureCoords = deref(depC)
	r.ArrivalCoords = deref(arrC)
	r.DeparturePoint = pointOf(r.DepartureCoords)
	r.ArrivalPoint = pointOf(r.ArrivalCoords)
	r.DepartureRegion = regionRef(depRegion, depName)
	r.ArrivalRegion = regionRef(arrRegion, arrName)
	return &r, nil
}

func parseStoredTime(s *string) (*patterns.TimeOfDay, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := patterns.ParseHHMM(strings.Replace(*s, ":", "", 1))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func pointOf(canonical string) *orb.Point {
	if canonical == "" {
		return nil
	}
	c, err := patterns.ParseCanonical(canonical)
	if err != nil {
		return nil
	}
	p := geo.PointOf(c)
	return &p
}

func regionRef(id *int64, name *string) *geo.RegionRef {
	if id == nil {
		return nil
	}
	return &geo.RegionRef{ID: *id, Name: deref(name)}
}

func regionID(ref *geo.RegionRef) any {
	if ref == nil {
		return nil
	}
	return ref.ID
}

func nullTime(t *patterns.TimeOfDay) any {
	if t == nil {
		return nil
	}
	return t.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
