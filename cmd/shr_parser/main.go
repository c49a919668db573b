// Command-line entry point for the SHR parser.
//
// Input formats
// -------------
// extract reads a telegram sheet with at least four columns per row:
//
//	center, SHR text, DEP text, ARR text
//
// as .xlsx, .csv or .jsonl. A .jsonl line is one object with the keys
// "center", "shr_text", "dep_text" and "arr_text", or a bus envelope with that
// object under "telegram". Lines without "shr_text" are skipped.
// The first row of .xlsx and .csv files is a header. Rows with fewer than four
// cells are skipped and counted.
//
// Region files are GeoJSON FeatureCollections (.json, .geojson) or ESRI
// shapefiles (.shp with its .dbf and .shx beside it).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shr_parser/internal/extractor"
	"shr_parser/internal/geo"
	"shr_parser/internal/ingest"
	"shr_parser/internal/logging"
	"shr_parser/internal/parsers/shr"
	"shr_parser/internal/patterns"
	"shr_parser/internal/sheet"
)

type ExtractOut struct {
	Source  string              `json:"source"`
	Records []*extractor.Record `json:"records"`
	Errors  []string            `json:"errors,omitempty"`
}

type Stats struct {
	Rows        int
	SkippedRows int
	Processed   int
	Failed      int
	Unresolved  int
	Regions     int
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "shr_parser - commands:")
	fmt.Fprintln(w, "  extract  - parse a telegram sheet and output flight records as JSON")
	fmt.Fprintln(w, "  explain  - show how each marker matched for one SHR text")
	fmt.Fprintln(w, "  regions  - ingest a boundary file and print a summary")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  shr_parser extract -input telegrams.xlsx [-regions regions.geojson] [-output out.json] [-pretty] [-stats] [-policy first-match|sequential] [-workers N]")
	fmt.Fprintln(w, "  shr_parser explain [-input shr.txt] [-policy first-match|sequential]")
	fmt.Fprintln(w, "  shr_parser regions -input regions.shp [-resolve lat,lon]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - explain reads the SHR text from stdin when -input is not given.")
	fmt.Fprintln(w, "  - Without -regions every record is unresolved.")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "extract":
		runExtract(os.Args[2:])
	case "explain":
		runExplain(os.Args[2:])
	case "regions":
		runRegions(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	inPath := fs.String("input", "", "Input telegram file (.xlsx, .csv or .jsonl)")
	outPath := fs.String("output", "", "Output JSON file (default: stdout)")
	regionsPath := fs.String("regions", "", "Boundary file (.geojson or .shp) used to resolve regions")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	policy := fs.String("policy", string(shr.TimePolicyFirstMatch), "Time policy: first-match or sequential")
	workers := fs.Int("workers", 1, "Parallel assembly workers")
	verbose := fs.Bool("v", false, "Log per-telegram failures to stderr")
	_ = fs.Parse(args)

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "extract: -input is required")
		os.Exit(2)
	}
	tp, err := shr.ParseTimePolicy(*policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "extract: %v\n", err)
		os.Exit(2)
	}

	log := logging.Nop()
	if *verbose {
		if log, err = logging.New("development", "debug"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = log.Sync() }()
	}

	resolver := geo.NewResolver(geo.CatalogOptions{})
	if *regionsPath != "" {
		res, err := ingestFile(ingest.New(log, os.TempDir()), *regionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load regions: %v\n", err)
			os.Exit(1)
		}
		resolver.Replace(res.Boundaries)
	}

	f, err := os.Open(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	batch, err := sheet.Read(filepath.Base(*inPath), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Input read error: %v\n", err)
		os.Exit(1)
	}

	asm := extractor.NewAssembler(resolver,
		extractor.WithLogger(log),
		extractor.WithTimePolicy(tp),
		extractor.WithWorkers(*workers),
	)
	res, err := asm.AssembleBatch(context.Background(), batch.Telegrams)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Assembly error: %v\n", err)
		os.Exit(1)
	}

	var wout io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		wout = f
	}

	out := ExtractOut{Source: batch.FileName, Records: res.Records}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	enc, err := marshalJSON(out, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
		os.Exit(1)
	}
	_, _ = wout.Write(enc)
	if wout == os.Stdout {
		_, _ = wout.Write([]byte("\n"))
	}

	if *showStats {
		st := Stats{
			Rows:        len(batch.Telegrams) + batch.SkippedRows,
			SkippedRows: batch.SkippedRows,
			Processed:   res.Processed,
			Failed:      res.Failed,
			Unresolved:  res.Unresolved,
			Regions:     resolver.Catalog().Len(),
		}
		fmt.Fprintf(os.Stderr,
			"stats: rows=%d skipped=%d processed=%d failed=%d unresolved=%d regions=%d success=%.1f%%\n",
			st.Rows, st.SkippedRows, st.Processed, st.Failed, st.Unresolved, st.Regions, res.SuccessRate(),
		)
	}
}

func runExplain(args []string) {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	inPath := fs.String("input", "", "File holding one SHR text (default: stdin)")
	policy := fs.String("policy", string(shr.TimePolicyFirstMatch), "Time policy: first-match or sequential")
	_ = fs.Parse(args)

	tp, err := shr.ParseTimePolicy(*policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "explain: %v\n", err)
		os.Exit(2)
	}

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}
	text, err := io.ReadAll(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Input read error: %v\n", err)
		os.Exit(1)
	}

	fields, trace, err := shr.New(tp).ExtractWithTrace(string(text))
	if err != nil {
		fmt.Fprintf(os.Stderr, "explain: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Parser: %s (policy %s)\n\n", trace.ParserName, trace.Policy)
	fmt.Println("Formats:")
	for _, ft := range trace.Formats {
		mark := "-"
		if ft.Matched {
			mark = "+"
		}
		fmt.Printf("  %s %-16s %s\n", mark, ft.Name, ft.Pattern)
		for k, v := range ft.Captures {
			fmt.Printf("      %s = %q\n", k, v)
		}
	}
	fmt.Println("\nFields:")
	for _, e := range trace.Extractors {
		line := fmt.Sprintf("  %-16s %-10s", e.Name, e.State)
		if e.Raw != "" {
			line += fmt.Sprintf(" raw=%q", e.Raw)
		}
		if e.Value != "" {
			line += " value=" + e.Value
		}
		if e.Error != "" {
			line += " error=" + e.Error
		}
		fmt.Println(line)
	}
	if len(trace.Tokens) > 1 {
		fmt.Printf("\nCoordinate tokens: %s (only the first is used)\n", strings.Join(trace.Tokens, " "))
	}
	fmt.Printf("\nDrone type: %s  Flight date: %s\n",
		fields.DroneTypeOrDefault(), fields.DateOrDefault(time.Now()).Format("2006-01-02"))
}

func runRegions(args []string) {
	fs := flag.NewFlagSet("regions", flag.ExitOnError)
	inPath := fs.String("input", "", "Boundary file (.geojson, .json or .shp)")
	resolve := fs.String("resolve", "", "Resolve a lat,lon point against the loaded regions")
	_ = fs.Parse(args)

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "regions: -input is required")
		os.Exit(2)
	}

	res, err := ingestFile(ingest.New(logging.Nop(), os.TempDir()), *inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load regions: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Source:   %s\n", res.Source)
	fmt.Printf("Features: %d (ingested %d, skipped %d)\n", res.Total, res.Ingested(), res.Skipped)
	for _, b := range res.Boundaries {
		fmt.Printf("  %-40s %12.2f km2\n", b.Name, b.AreaKm2)
	}
	for _, fe := range res.Failures {
		fmt.Printf("  skipped: %v\n", fe)
	}

	if *resolve == "" {
		return
	}
	c, err := patterns.ParseCanonical(*resolve)
	if err != nil {
		fmt.Fprintf(os.Stderr, "regions: -resolve: %v\n", err)
		os.Exit(2)
	}
	resolver := geo.NewResolver(geo.CatalogOptions{})
	resolver.Replace(res.Boundaries)
	if b, ok := resolver.Resolve(geo.PointOf(c)); ok {
		fmt.Printf("\n%s is in %s\n", c, b.Name)
	} else {
		fmt.Printf("\n%s is outside every region\n", c)
	}
}

// ingestFile loads a GeoJSON or shapefile by extension.
func ingestFile(in *ingest.Ingestor, path string) (*ingest.Result, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return in.Shapefile(path)
	}
	return in.GeoJSONFile(path)
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
