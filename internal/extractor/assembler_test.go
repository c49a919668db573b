package extractor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"shr_parser/internal/geo"
	"shr_parser/internal/parsers/shr"
	"shr_parser/internal/telegram"
)

const sampleSHR = "SHR-ABC12\n-ZZZZ -0705\n-0900\n-DEP/5957N02905E DOF/010225 TYP/BLA"

var fixedNow = func() time.Time { return time.Date(2025, 5, 9, 13, 0, 0, 0, time.UTC) }

func testCatalog(t *testing.T) *geo.Catalog {
	t.Helper()
	b, err := geo.NewBoundary("Leningrad", orb.Polygon{{{28, 58}, {33, 58}, {33, 61}, {28, 61}, {28, 58}}})
	if err != nil {
		t.Fatal(err)
	}
	b.ID = 47
	return geo.NewCatalog([]geo.Boundary{b}, geo.CatalogOptions{})
}

func TestAssemble(t *testing.T) {
	a := NewAssembler(testCatalog(t), WithClock(fixedNow))

	rec, err := a.Assemble(&telegram.Telegram{ID: 9, SHRText: sampleSHR})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if rec.FlightID != "ABC12" {
		t.Errorf("FlightID = %q", rec.FlightID)
	}
	if rec.DroneType != "BLA" {
		t.Errorf("DroneType = %q", rec.DroneType)
	}
	if !rec.FlightDate.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("FlightDate = %v", rec.FlightDate)
	}
	if rec.Coordinates != "59.950000,29.083333" {
		t.Errorf("Coordinates = %q", rec.Coordinates)
	}
	if rec.DepartureCoords != rec.Coordinates || rec.ArrivalCoords != rec.Coordinates {
		t.Errorf("departure/arrival coords should copy %q", rec.Coordinates)
	}
	if rec.DeparturePoint == nil || rec.DeparturePoint.X() != 29.083333 || rec.DeparturePoint.Y() != 59.95 {
		t.Errorf("DeparturePoint = %v", rec.DeparturePoint)
	}
	if rec.DepartureRegion == nil || rec.DepartureRegion.ID != 47 {
		t.Errorf("DepartureRegion = %+v", rec.DepartureRegion)
	}
	if rec.ArrivalRegion == nil || rec.ArrivalRegion.Name != "Leningrad" {
		t.Errorf("ArrivalRegion = %+v", rec.ArrivalRegion)
	}
	if rec.TelegramID != 9 || rec.ProcessingStatus != StatusParsed {
		t.Errorf("TelegramID=%d status=%q", rec.TelegramID, rec.ProcessingStatus)
	}
	// Both times come from the first -HHMM group.
	if rec.DurationMinutes != 0 {
		t.Errorf("DurationMinutes = %d, want 0", rec.DurationMinutes)
	}
}

func TestAssembleSequentialTimes(t *testing.T) {
	a := NewAssembler(nil, WithClock(fixedNow), WithTimePolicy(shr.TimePolicySequential))

	rec, err := a.Assemble(&telegram.Telegram{SHRText: sampleSHR})
	if err != nil {
		t.Fatal(err)
	}
	if rec.DurationMinutes != 115 {
		t.Errorf("DurationMinutes = %d, want 115", rec.DurationMinutes)
	}
	if rec.DepartureRegion != nil {
		t.Error("nil resolver should leave region empty")
	}
	if rec.DeparturePoint == nil {
		t.Error("point should still be set without a resolver")
	}
}

func TestAssembleDefaults(t *testing.T) {
	a := NewAssembler(testCatalog(t), WithClock(fixedNow))

	rec, err := a.Assemble(&telegram.Telegram{SHRText: "no markers at all"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.DroneType != shr.DefaultDroneType {
		t.Errorf("DroneType = %q", rec.DroneType)
	}
	if !rec.FlightDate.Equal(time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("FlightDate = %v, want processing date", rec.FlightDate)
	}
	if rec.DeparturePoint != nil || rec.DepartureRegion != nil || rec.Coordinates != "" {
		t.Errorf("no coordinate expected: %+v", rec)
	}
	if rec.DepartureTime != nil || rec.DurationMinutes != 0 {
		t.Errorf("no time expected: %+v", rec)
	}
}

func TestAssembleOutsideEveryRegion(t *testing.T) {
	a := NewAssembler(testCatalog(t), WithClock(fixedNow))

	rec, err := a.Assemble(&telegram.Telegram{SHRText: "-DEP/4512N03737E"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.DeparturePoint == nil {
		t.Fatal("expected a point")
	}
	if rec.DepartureRegion != nil || rec.ArrivalRegion != nil {
		t.Errorf("expected no region, got %+v", rec.DepartureRegion)
	}
}

func TestAssembleErrors(t *testing.T) {
	a := NewAssembler(nil)

	if _, err := a.Assemble(nil); !errors.Is(err, ErrNilTelegram) {
		t.Errorf("Assemble(nil) error = %v", err)
	}
	if _, err := a.Assemble(&telegram.Telegram{SHRText: "DOF/310225"}); err == nil {
		t.Error("expected error for impossible flight date")
	}
}

func TestAssembleBatch(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			a := NewAssembler(testCatalog(t), WithClock(fixedNow), WithWorkers(workers))

			ts := []*telegram.Telegram{
				{ID: 1, SHRText: sampleSHR},
				{ID: 2, SHRText: "DOF/990199"},
				{ID: 3, SHRText: "-DEP/4512N03737E TYP/AER"},
				nil,
				{ID: 5, SHRText: "TYP/QUA"},
			}

			res, err := a.AssembleBatch(context.Background(), ts)
			if err != nil {
				t.Fatalf("AssembleBatch: %v", err)
			}
			if res.Processed != 3 || res.Failed != 2 {
				t.Errorf("processed=%d failed=%d, want 3 and 2", res.Processed, res.Failed)
			}
			if res.Total() != 5 {
				t.Errorf("Total = %d", res.Total())
			}
			if res.Unresolved != 1 {
				t.Errorf("Unresolved = %d, want 1", res.Unresolved)
			}
			if got := res.SuccessRate(); got != 60 {
				t.Errorf("SuccessRate = %v, want 60", got)
			}

			var ids []int64
			for _, r := range res.Records {
				ids = append(ids, r.TelegramID)
			}
			if fmt.Sprint(ids) != "[1 3 5]" {
				t.Errorf("record order = %v, want [1 3 5]", ids)
			}
			if res.Errors[0].Index != 1 || res.Errors[1].Index != 3 {
				t.Errorf("error indices = %d, %d", res.Errors[0].Index, res.Errors[1].Index)
			}
		})
	}
}

func TestAssembleBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewAssembler(nil).AssembleBatch(ctx, []*telegram.Telegram{{SHRText: "x"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if res.Processed != 0 {
		t.Errorf("Processed = %d, want 0", res.Processed)
	}
}

func TestBatchResultEmpty(t *testing.T) {
	res, err := NewAssembler(nil).AssembleBatch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total() != 0 || res.SuccessRate() != 0 {
		t.Errorf("empty batch: %+v", res)
	}
}
