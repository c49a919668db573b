// Package main provides the flights-api server for SHR flight data.
//
// The server ingests telegram sheets and region boundaries over HTTP, stores
// flights in SQLite or PostgreSQL, and optionally archives them to ClickHouse
// and publishes them on NATS. When NATS is configured it also consumes
// telegrams published on the telegram subject.
//
// Usage:
//
//	flights-api [options]
//
// Options:
//
//	-config PATH      YAML config file (env: SHR_CONFIG)
//	-port N           HTTP port (overrides config)
//	-auth             Enable API key authentication
//	-api-keys KEYS    Comma-separated list of valid API keys
//	-regions PATH     Boundary file (.geojson or .shp) ingested at startup
//
// API Endpoints:
//
//	GET    /api/v1/health
//	POST   /api/v1/telegrams/upload        multipart "file" (.xlsx, .csv, .jsonl)
//	GET    /api/v1/telegrams/status
//	GET    /api/v1/flights                 ?page&size&sort&order&from&to&drone_type&region_id
//	GET    /api/v1/flights/stats
//	GET    /api/v1/flights/drone-types
//	GET    /api/v1/flights/by-drone-type   ?from&to
//	GET    /api/v1/flights/{id}
//	DELETE /api/v1/flights/{id}
//	GET    /api/v1/regions
//	GET    /api/v1/regions/top             ?from&to&limit
//	GET    /api/v1/regions/resolve         ?lat&lon
//	POST   /api/v1/regions/geojson         multipart "file"
//	POST   /api/v1/regions/shapefile       multipart "shp", "dbf", "shx", optional "cpg"
//	POST   /api/v1/regions/reload
//	GET    /metrics
//
// Authentication:
//
//	When auth is enabled, requests other than health must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"shr_parser/internal/api"
	"shr_parser/internal/config"
	"shr_parser/internal/extractor"
	"shr_parser/internal/geo"
	"shr_parser/internal/logging"
	"shr_parser/internal/metrics"
	"shr_parser/internal/pipeline"
	"shr_parser/internal/publish"
	"shr_parser/internal/storage"
	"shr_parser/internal/telegram"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP port for API server (overrides config)")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", "", "Comma-separated list of valid API keys (when auth enabled)")
	regionsPath := flag.String("regions", "", "Boundary file ingested at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.API.Port = *port
	}
	if *authEnabled {
		cfg.API.AuthEnabled = true
	}
	if *apiKeys != "" {
		cfg.API.APIKeys = config.SplitKeys(*apiKeys)
	}

	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *regionsPath, log); err != nil {
		log.Errorw("flights-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, regionsPath string, log *zap.SugaredLogger) error {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	log.Infow("Store opened", "driver", cfg.Storage.Driver)

	m := metrics.New()
	opts := pipeline.Options{
		Logger:  log,
		Metrics: m,
		Assembler: []extractor.Option{
			extractor.WithTimePolicy(cfg.TimePolicy()),
			extractor.WithWorkers(cfg.Parse.Workers),
		},
	}

	if cfg.ClickHouse.Enabled {
		archive, err := storage.OpenClickHouse(ctx, cfg.ClickHouse.ClickHouseConfig)
		if err != nil {
			return fmt.Errorf("open clickhouse: %w", err)
		}
		defer archive.Close()
		if err := archive.CreateSchema(ctx); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
		opts.Archive = archive
		log.Infow("ClickHouse archive enabled", "host", cfg.ClickHouse.Host, "database", cfg.ClickHouse.Database)
	}

	var bus *publish.NATSPublisher
	if cfg.NATS.URL != "" {
		bus, err = publish.ConnectNATS(cfg.NATS.URL, cfg.NATS.FlightSubject, log)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer bus.Close()
		opts.Publisher = bus
	}

	svc := pipeline.New(store, geo.NewResolver(cfg.CatalogOptions()), opts)
	n, err := svc.RefreshCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load regions: %w", err)
	}
	log.Infow("Region catalog loaded", "regions", n)

	if regionsPath != "" {
		if err := loadRegions(ctx, svc, regionsPath, log); err != nil {
			return err
		}
	}

	if bus != nil && cfg.NATS.TelegramSubject != "" {
		sub, err := bus.SubscribeTelegrams(cfg.NATS.TelegramSubject, func(t *telegram.Telegram) {
			sum, err := svc.ProcessTelegrams(ctx, "nats:"+cfg.NATS.TelegramSubject, []*telegram.Telegram{t})
			if err != nil {
				log.Errorw("Failed to process telegram from bus", "error", err)
				return
			}
			log.Debugw("Telegram from bus processed", "inserted", sum.Inserted, "failed", sum.Failed)
		})
		if err != nil {
			return err
		}
		defer func() { _ = sub.Unsubscribe() }()
		log.Infow("Consuming telegrams", "subject", cfg.NATS.TelegramSubject)
	}

	server := api.NewServer(svc, store, m, log, api.Config{
		Port:           cfg.API.Port,
		AuthEnabled:    cfg.API.AuthEnabled,
		APIKeys:        cfg.API.APIKeys,
		MaxUploadBytes: cfg.API.MaxUploadMiB << 20,
	})
	return server.Run(ctx)
}

func loadRegions(ctx context.Context, svc *pipeline.Service, path string, log *zap.SugaredLogger) error {
	var (
		sum *pipeline.RegionSummary
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		sum, err = svc.LoadShapefile(ctx, path)
	} else {
		sum, err = svc.LoadGeoJSONFile(ctx, path)
	}
	if err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}
	log.Infow("Regions ingested",
		"source", sum.Source,
		"ingested", sum.Ingested,
		"skipped", sum.Skipped,
		"catalog_size", sum.CatalogSize,
	)
	return nil
}
