package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"shr_parser/internal/geo"
)

// GeoJSONExtensions are the accepted file extensions for GeoJSON uploads.
var GeoJSONExtensions = []string{".json", ".geojson"}

// ValidateGeoJSONName checks the upload name and size before reading it.
func ValidateGeoJSONName(name string, size int64) error {
	if size == 0 {
		return &ValidationError{Source: name, Reason: "file is empty"}
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range GeoJSONExtensions {
		if ext == want {
			return nil
		}
	}
	return &ValidationError{Source: name, Reason: fmt.Sprintf("unsupported extension %q, want .json or .geojson", ext)}
}

// GeoJSONFile opens and ingests a FeatureCollection file.
func (i *Ingestor) GeoJSONFile(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ValidationError{Source: path, Reason: err.Error()}
	}
	if err := ValidateGeoJSONName(path, info.Size()); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	res, err := i.FeatureCollection(f)
	if res != nil {
		res.Source = filepath.Base(path)
	}
	return res, err
}

// FeatureCollection ingests a GeoJSON FeatureCollection. Missing or malformed
// top-level structure fails the whole call with a ValidationError; a bad
// feature is logged and skipped.
func (i *Ingestor) FeatureCollection(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &ValidationError{Reason: "not a JSON object: " + err.Error()}
	}

	var typ string
	if raw, ok := top["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}
	if typ != "FeatureCollection" {
		return nil, &ValidationError{Reason: fmt.Sprintf("type is %q, want FeatureCollection", typ)}
	}

	rawFeatures, ok := top["features"]
	if !ok {
		return nil, &ValidationError{Reason: "missing features array"}
	}
	var features []json.RawMessage
	if !bytes.HasPrefix(bytes.TrimSpace(rawFeatures), []byte("[")) {
		return nil, &ValidationError{Reason: "features is not an array"}
	}
	if err := json.Unmarshal(rawFeatures, &features); err != nil {
		return nil, &ValidationError{Reason: "features is not an array: " + err.Error()}
	}

	res := &Result{Total: len(features)}
	for idx, raw := range features {
		b, err := decodeFeature(raw)
		if err != nil {
			fe := &FeatureError{Index: idx, Name: b.Name, Err: err}
			res.skip(fe)
			i.log.Warnw("Skipping GeoJSON feature", "index", idx, "name", b.Name, "error", err)
			continue
		}
		res.Boundaries = append(res.Boundaries, b)

		if (idx+1)%GeoJSONProgressEvery == 0 {
			i.log.Debugw("GeoJSON ingest progress", "processed", idx+1, "total", len(features))
		}
	}

	i.log.Infow("GeoJSON ingest finished", "total", res.Total, "ingested", res.Ingested(), "skipped", res.Skipped)
	return res, nil
}

// decodeFeature returns a boundary; on error the boundary carries only the name.
func decodeFeature(raw json.RawMessage) (geo.Boundary, error) {
	var feat struct {
		Properties map[string]any  `json:"properties"`
		Geometry   json.RawMessage `json:"geometry"`
	}
	if err := json.Unmarshal(raw, &feat); err != nil {
		return geo.Boundary{Name: geo.UnknownName}, fmt.Errorf("decode feature: %w", err)
	}

	name := nameFrom(func(key string) (any, bool) {
		v, ok := feat.Properties[key]
		return v, ok
	})

	var g orb.Geometry
	trimmed := bytes.TrimSpace(feat.Geometry)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		gj, err := geojson.UnmarshalGeometry(trimmed)
		if err != nil {
			return geo.Boundary{Name: name}, fmt.Errorf("decode geometry: %w", err)
		}
		g = gj.Geometry()
		if g == nil {
			return geo.Boundary{Name: name}, fmt.Errorf("decode geometry: empty %s", gj.Type)
		}
	}

	b, err := geo.NewBoundary(name, g)
	if err != nil {
		return geo.Boundary{Name: name}, err
	}
	return b, nil
}
