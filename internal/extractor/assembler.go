package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shr_parser/internal/geo"
	"shr_parser/internal/logging"
	"shr_parser/internal/parsers/shr"
	"shr_parser/internal/patterns"
	"shr_parser/internal/telegram"
)

// ErrNilTelegram is returned when a batch contains a nil entry.
var ErrNilTelegram = errors.New("nil telegram")

// Resolver finds the boundary containing a point.
type Resolver interface {
	Resolve(p orb.Point) (geo.Boundary, bool)
}

// Assembler turns telegrams into flight records.
type Assembler struct {
	parser   *shr.Parser
	resolver Resolver
	now      func() time.Time
	workers  int
	log      *zap.SugaredLogger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock sets the clock used for the default flight date.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithTimePolicy selects how departure and arrival times are picked.
func WithTimePolicy(p shr.TimePolicy) Option {
	return func(a *Assembler) { a.parser = shr.New(p) }
}

// WithWorkers sets the number of goroutines used by AssembleBatch.
func WithWorkers(n int) Option {
	return func(a *Assembler) { a.workers = n }
}

// WithLogger sets the logger for per-record failures.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(a *Assembler) { a.log = logging.OrNop(l) }
}

// NewAssembler creates an assembler. A nil resolver leaves every record unattributed.
func NewAssembler(resolver Resolver, opts ...Option) *Assembler {
	a := &Assembler{
		parser:   shr.New(shr.TimePolicyFirstMatch),
		resolver: resolver,
		now:      time.Now,
		workers:  1,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Parse extracts the flight fields of t without resolving regions.
func (a *Assembler) Parse(t *telegram.Telegram) (*ParsedFlightData, error) {
	if t == nil {
		return nil, ErrNilTelegram
	}

	f, err := a.parser.Extract(t.SHRText)
	if err != nil {
		return nil, err
	}
	if f.FlightDate.State == shr.Malformed {
		return nil, fmt.Errorf("flight date: %w", f.FlightDate.Err)
	}

	data := &ParsedFlightData{
		FlightID:      f.FlightID.Or(""),
		DroneType:     f.DroneTypeOrDefault(),
		FlightDate:    f.DateOrDefault(a.now()),
		DepartureTime: f.Departure.Ptr(),
		ArrivalTime:   f.Arrival.Ptr(),
		Telegram:      t,
	}
	data.DurationMinutes = MinutesBetween(data.DepartureTime, data.ArrivalTime)

	if f.Coordinate.Ok() {
		data.Coordinates = f.Coordinate.Value.String()
		data.DepartureCoords = data.Coordinates
		data.ArrivalCoords = data.Coordinates
	}
	return data, nil
}

// Assemble parses t and attributes its departure and arrival points to regions.
func (a *Assembler) Assemble(t *telegram.Telegram) (*Record, error) {
	data, err := a.Parse(t)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ParsedFlightData: *data,
		TelegramID:       int64(t.ID),
		ProcessingStatus: StatusParsed,
	}

	rec.DeparturePoint, rec.DepartureRegion = a.locate(data.DepartureCoords)
	rec.ArrivalPoint, rec.ArrivalRegion = a.locate(data.ArrivalCoords)
	return rec, nil
}

func (a *Assembler) locate(coords string) (*orb.Point, *geo.RegionRef) {
	if coords == "" {
		return nil, nil
	}
	c, err := patterns.ParseCanonical(coords)
	if err != nil {
		return nil, nil
	}
	p := geo.PointOf(c)
	if a.resolver == nil {
		return &p, nil
	}
	if b, ok := a.resolver.Resolve(p); ok {
		return &p, b.Ref()
	}
	return &p, nil
}

type outcome struct {
	rec *Record
	err error
}

// AssembleBatch assembles every telegram. Failures are collected per record
// and do not stop the batch. The returned error is non-nil only if ctx was
// cancelled; the result then covers the telegrams handled before that.
func (a *Assembler) AssembleBatch(ctx context.Context, ts []*telegram.Telegram) (*BatchResult, error) {
	outcomes := make([]*outcome, len(ts))

	g, gctx := errgroup.WithContext(ctx)
	workers := a.workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, t := range ts {
		i, t := i, t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := a.Assemble(t)
			outcomes[i] = &outcome{rec: rec, err: err}
			return nil
		})
	}
	waitErr := g.Wait()

	res := &BatchResult{}
	for i, o := range outcomes {
		if o == nil {
			continue
		}
		if o.err != nil {
			var id int64
			if ts[i] != nil {
				id = int64(ts[i].ID)
			}
			re := &RecordError{Index: i, TelegramID: id, Err: o.err}
			res.Errors = append(res.Errors, re)
			res.Failed++
			a.log.Warnw("Failed to assemble telegram", "index", i, "telegram_id", id, "error", o.err)
			continue
		}
		if o.rec.DeparturePoint != nil && o.rec.DepartureRegion == nil {
			res.Unresolved++
		}
		res.Records = append(res.Records, o.rec)
		res.Processed++
	}

	a.log.Infow("Assembled telegram batch",
		"total", res.Total(), "processed", res.Processed, "failed", res.Failed, "unresolved", res.Unresolved)
	return res, waitErr
}
