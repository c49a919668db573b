package ingest

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"shr_parser/internal/geo"
	"shr_parser/internal/logging"
)

// NameProperties lists the attribute keys tried, in order, for a boundary name.
var NameProperties = []string{"name", "NAME", "region", "REGION", "subject", "SUBJECT"}

// DefaultEncoding decodes shapefile attributes when no .cpg file says otherwise.
var DefaultEncoding encoding.Encoding = charmap.Windows1251

// Progress is logged every this many features.
const (
	GeoJSONProgressEvery   = 100
	ShapefileProgressEvery = 1000
)

// Result summarises one ingestion.
type Result struct {
	Source     string          `json:"source"`
	Boundaries []geo.Boundary  `json:"-"`
	Total      int             `json:"total"`
	Skipped    int             `json:"skipped"`
	Failures   []*FeatureError `json:"-"`
}

// Ingested returns the number of boundaries produced.
func (r *Result) Ingested() int { return len(r.Boundaries) }

func (r *Result) skip(fe *FeatureError) {
	r.Skipped++
	r.Failures = append(r.Failures, fe)
}

// Ingestor converts boundary files into canonical boundaries.
type Ingestor struct {
	log     *zap.SugaredLogger
	tempDir string
}

// New returns an Ingestor. tempDir is where shapefile uploads are staged;
// empty means os.TempDir().
func New(log *zap.SugaredLogger, tempDir string) *Ingestor {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Ingestor{log: logging.OrNop(log), tempDir: tempDir}
}

// nameFrom returns the first non-blank candidate attribute.
func nameFrom(lookup func(key string) (any, bool)) string {
	for _, key := range NameProperties {
		v, ok := lookup(key)
		if !ok || v == nil {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(x)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return geo.UnknownName
}
