// Package extractor assembles flight records from SHR telegrams.
// This package is database-agnostic and can be used with any storage backend.
package extractor

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"shr_parser/internal/geo"
	"shr_parser/internal/patterns"
	"shr_parser/internal/telegram"
)

// StatusParsed is the processing status of every assembled record.
const StatusParsed = "PARSED"

// ParsedFlightData holds the fields extracted from one telegram.
type ParsedFlightData struct {
	FlightID        string              `json:"flight_id,omitempty"`
	DroneType       string              `json:"drone_type"`
	FlightDate      time.Time           `json:"flight_date"`
	DepartureTime   *patterns.TimeOfDay `json:"departure_time,omitempty"`
	ArrivalTime     *patterns.TimeOfDay `json:"arrival_time,omitempty"`
	DurationMinutes int                 `json:"duration_minutes"`
	Coordinates     string              `json:"coordinates,omitempty"`
	DepartureCoords string              `json:"departure_coords,omitempty"`
	ArrivalCoords   string              `json:"arrival_coords,omitempty"`

	Telegram *telegram.Telegram `json:"-"`
}

// Record is a flight ready for storage: parsed fields plus geometry and
// region attribution. Nil regions mean the point fell outside every boundary.
type Record struct {
	ParsedFlightData

	ID               int64          `json:"id,omitempty"`
	TelegramID       int64          `json:"telegram_id,omitempty"`
	DeparturePoint   *orb.Point     `json:"departure_point,omitempty"`
	ArrivalPoint     *orb.Point     `json:"arrival_point,omitempty"`
	DepartureRegion  *geo.RegionRef `json:"departure_region,omitempty"`
	ArrivalRegion    *geo.RegionRef `json:"arrival_region,omitempty"`
	ProcessingStatus string         `json:"processing_status"`
	CreatedAt        time.Time      `json:"created_at,omitempty"`
}

// RecordError reports a telegram that could not be turned into a record.
type RecordError struct {
	Index      int
	TelegramID int64
	Err        error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("telegram %d (row %d): %v", e.TelegramID, e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// BatchResult summarises one batch. Records keep input order.
type BatchResult struct {
	Records    []*Record
	Errors     []*RecordError
	Processed  int
	Failed     int
	Unresolved int // records with a point outside every boundary
}

// Total returns the number of telegrams in the batch.
func (b *BatchResult) Total() int {
	return b.Processed + b.Failed
}

// SuccessRate returns the share of processed telegrams as a percentage.
func (b *BatchResult) SuccessRate() float64 {
	if b.Total() == 0 {
		return 0
	}
	return float64(b.Processed) * 100 / float64(b.Total())
}
