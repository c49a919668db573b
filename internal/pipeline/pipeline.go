// Package pipeline wires parsing, region resolution, storage and delivery
// into the operations exposed by the CLI and the HTTP API.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"shr_parser/internal/extractor"
	"shr_parser/internal/geo"
	"shr_parser/internal/ingest"
	"shr_parser/internal/logging"
	"shr_parser/internal/metrics"
	"shr_parser/internal/publish"
	"shr_parser/internal/sheet"
	"shr_parser/internal/storage"
	"shr_parser/internal/telegram"
)

// MaxReportedErrors caps the per-record error messages kept in a summary.
const MaxReportedErrors = 50

// Archive receives a copy of every newly stored flight.
type Archive interface {
	InsertFlights(ctx context.Context, recs []*extractor.Record) error
}

// Options configures a Service. Zero values disable the optional parts.
type Options struct {
	Logger    *zap.SugaredLogger
	Metrics   *metrics.Registry
	Publisher publish.Publisher
	Archive   Archive
	TempDir   string
	Assembler []extractor.Option
}

// Service runs telegram files and boundary files through the system.
type Service struct {
	store     storage.Store
	resolver  *geo.Resolver
	assembler *extractor.Assembler
	ingestor  *ingest.Ingestor
	publisher publish.Publisher
	archive   Archive
	metrics   *metrics.Registry
	log       *zap.SugaredLogger
}

// New creates a service over store and resolver. A nil resolver starts
// with an empty catalog.
func New(store storage.Store, resolver *geo.Resolver, opts Options) *Service {
	log := logging.OrNop(opts.Logger)
	if resolver == nil {
		resolver = geo.NewResolver(geo.CatalogOptions{})
	}
	pub := opts.Publisher
	if pub == nil {
		pub = publish.Nop{}
	}

	s := &Service{
		store:     store,
		resolver:  resolver,
		ingestor:  ingest.New(log, opts.TempDir),
		publisher: pub,
		archive:   opts.Archive,
		metrics:   opts.Metrics,
		log:       log,
	}
	aopts := append([]extractor.Option{extractor.WithLogger(log)}, opts.Assembler...)
	s.assembler = extractor.NewAssembler(meteredResolver{resolver, opts.Metrics}, aopts...)
	return s
}

// Resolver returns the region resolver the service attributes flights with.
func (s *Service) Resolver() *geo.Resolver {
	return s.resolver
}

// Summary reports the outcome of one telegram file.
type Summary struct {
	FileName     string   `json:"file_name"`
	TotalRecords int      `json:"total_records"`
	Processed    int      `json:"processed"`
	Failed       int      `json:"failed"`
	Inserted     int      `json:"inserted"`
	Duplicates   int      `json:"duplicates"`
	Unresolved   int      `json:"unresolved"`
	SkippedRows  int      `json:"skipped_rows"`
	Published    int      `json:"published"`
	SuccessRate  float64  `json:"success_rate"`
	Errors       []string `json:"errors,omitempty"`
}

// ProcessFile reads a tabular telegram file and processes every row.
func (s *Service) ProcessFile(ctx context.Context, name string, r io.Reader) (*Summary, error) {
	batch, err := sheet.Read(name, r)
	if err != nil {
		return nil, err
	}
	sum, err := s.ProcessTelegrams(ctx, batch.FileName, batch.Telegrams)
	if sum != nil {
		sum.SkippedRows = batch.SkippedRows
	}
	return sum, err
}

// ProcessTelegrams stores the raw telegrams, assembles flights, stores them,
// marks each telegram processed or failed, then publishes and archives the
// newly inserted flights. Delivery failures are logged and counted but do
// not fail the call.
func (s *Service) ProcessTelegrams(ctx context.Context, fileName string, ts []*telegram.Telegram) (*Summary, error) {
	start := time.Now()
	kept := make([]*telegram.Telegram, 0, len(ts))
	for _, t := range ts {
		if t == nil {
			continue
		}
		if t.FileName == "" {
			t.FileName = fileName
		}
		kept = append(kept, t)
	}
	ts = kept

	if err := s.store.SaveTelegrams(ctx, ts); err != nil {
		return nil, fmt.Errorf("save telegrams: %w", err)
	}

	res, err := s.assembler.AssembleBatch(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	saved, err := s.store.SaveFlights(ctx, res.Records)
	if err != nil {
		return nil, fmt.Errorf("save flights: %w", err)
	}

	for _, rec := range res.Records {
		if err := s.store.UpdateTelegramStatus(ctx, rec.TelegramID, telegram.StatusProcessed); err != nil {
			return nil, err
		}
		if rec.Telegram != nil {
			rec.Telegram.Status = telegram.StatusProcessed
		}
	}
	for _, re := range res.Errors {
		if err := s.store.UpdateTelegramStatus(ctx, re.TelegramID, telegram.StatusFailed); err != nil {
			return nil, err
		}
		if t := ts[re.Index]; t != nil {
			t.Status = telegram.StatusFailed
		}
	}

	inserted := make([]*extractor.Record, 0, saved.Inserted)
	for _, rec := range res.Records {
		if rec.ID != 0 {
			inserted = append(inserted, rec)
		}
	}

	sum := &Summary{
		FileName:     fileName,
		TotalRecords: res.Total(),
		Processed:    res.Processed,
		Failed:       res.Failed,
		Inserted:     saved.Inserted,
		Duplicates:   saved.Duplicates,
		Unresolved:   res.Unresolved,
		SuccessRate:  res.SuccessRate(),
	}
	for _, re := range res.Errors {
		if len(sum.Errors) == MaxReportedErrors {
			break
		}
		sum.Errors = append(sum.Errors, re.Error())
	}

	sum.Published = s.deliver(ctx, inserted)

	s.metrics.ObserveBatch(res.Processed, res.Failed, time.Since(start).Seconds())
	s.metrics.ObserveSave(saved.Inserted, saved.Duplicates)
	s.log.Infow("Processed telegram file",
		"file", fileName,
		"total", sum.TotalRecords,
		"processed", sum.Processed,
		"failed", sum.Failed,
		"inserted", sum.Inserted,
		"duplicates", sum.Duplicates,
		"success_rate", fmt.Sprintf("%.2f", sum.SuccessRate),
	)
	return sum, nil
}

func (s *Service) deliver(ctx context.Context, recs []*extractor.Record) int {
	if len(recs) == 0 {
		return 0
	}
	sent, err := s.publisher.PublishFlights(ctx, recs)
	if err != nil {
		s.metrics.PublishFailed()
		s.log.Warnw("Failed to publish flights", "sent", sent, "total", len(recs), "error", err)
	}
	if s.archive != nil {
		if err := s.archive.InsertFlights(ctx, recs); err != nil {
			s.metrics.ArchiveFailed()
			s.log.Warnw("Failed to archive flights", "count", len(recs), "error", err)
		}
	}
	return sent
}

// RegionSummary reports the outcome of one boundary file.
type RegionSummary struct {
	Source      string   `json:"source"`
	Total       int      `json:"total"`
	Ingested    int      `json:"ingested"`
	Skipped     int      `json:"skipped"`
	CatalogSize int      `json:"catalog_size"`
	Failures    []string `json:"failures,omitempty"`
}

// LoadGeoJSON ingests an uploaded GeoJSON document, stores its boundaries,
// and reloads the catalog.
func (s *Service) LoadGeoJSON(ctx context.Context, name string, size int64, r io.Reader) (*RegionSummary, error) {
	if err := ingest.ValidateGeoJSONName(name, size); err != nil {
		return nil, err
	}
	res, err := s.ingestor.FeatureCollection(r)
	if err != nil {
		return nil, err
	}
	res.Source = name
	return s.storeRegions(ctx, "geojson", res)
}

// LoadGeoJSONFile ingests a GeoJSON file from disk.
func (s *Service) LoadGeoJSONFile(ctx context.Context, path string) (*RegionSummary, error) {
	res, err := s.ingestor.GeoJSONFile(path)
	if err != nil {
		return nil, err
	}
	return s.storeRegions(ctx, "geojson", res)
}

// LoadShapefile ingests a shapefile from disk.
func (s *Service) LoadShapefile(ctx context.Context, shpPath string) (*RegionSummary, error) {
	res, err := s.ingestor.Shapefile(shpPath)
	if err != nil {
		return nil, err
	}
	return s.storeRegions(ctx, "shapefile", res)
}

// LoadShapefileUpload ingests uploaded shapefile parts.
func (s *Service) LoadShapefileUpload(ctx context.Context, u ingest.ShapefileUpload) (*RegionSummary, error) {
	res, err := s.ingestor.ShapefileUpload(u)
	if err != nil {
		return nil, err
	}
	return s.storeRegions(ctx, "shapefile", res)
}

func (s *Service) storeRegions(ctx context.Context, kind string, res *ingest.Result) (*RegionSummary, error) {
	if _, err := s.store.SaveRegions(ctx, res.Boundaries); err != nil {
		return nil, fmt.Errorf("save regions: %w", err)
	}
	n, err := s.RefreshCatalog(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveIngest(kind, res.Ingested(), res.Skipped)

	sum := &RegionSummary{
		Source:      res.Source,
		Total:       res.Total,
		Ingested:    res.Ingested(),
		Skipped:     res.Skipped,
		CatalogSize: n,
	}
	for _, f := range res.Failures {
		if len(sum.Failures) == MaxReportedErrors {
			break
		}
		sum.Failures = append(sum.Failures, f.Error())
	}
	return sum, nil
}

// RefreshCatalog reloads every stored boundary into the resolver and returns
// the catalog size.
func (s *Service) RefreshCatalog(ctx context.Context) (int, error) {
	bs, err := s.store.ListRegions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load regions: %w", err)
	}
	s.resolver.Replace(bs)
	s.metrics.SetCatalogSize(len(bs))
	s.log.Infow("Region catalog loaded", "regions", len(bs))
	return len(bs), nil
}

// meteredResolver counts resolve hits and misses.
type meteredResolver struct {
	r *geo.Resolver
	m *metrics.Registry
}

func (mr meteredResolver) Resolve(p orb.Point) (geo.Boundary, bool) {
	b, ok := mr.r.Resolve(p)
	mr.m.ObserveResolve(ok)
	return b, ok
}
