package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"shr_parser/internal/geo"
)

const squareCoords = `[[[30,59],[31,59],[31,60],[30,60],[30,59]]]`

func polygonFeature(props, coords string) string {
	return fmt.Sprintf(`{"type":"Feature","properties":%s,"geometry":{"type":"Polygon","coordinates":%s}}`, props, coords)
}

func collection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

func TestFeatureCollectionValidation(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "missing features", input: `{"type":"FeatureCollection"}`},
		{name: "features not array", input: `{"type":"FeatureCollection","features":{}}`},
		{name: "features null", input: `{"type":"FeatureCollection","features":null}`},
		{name: "wrong type", input: `{"type":"Feature","features":[]}`},
		{name: "missing type", input: `{"features":[]}`},
		{name: "not json", input: `not json`},
		{name: "array root", input: `[]`},
	}

	ing := New(nil, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ing.FeatureCollection(strings.NewReader(tt.input))
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if res != nil {
				t.Errorf("expected no result, got %d boundaries", res.Ingested())
			}
		})
	}
}

func TestFeatureCollectionSkipsMalformed(t *testing.T) {
	var features []string
	for i := 0; i < 8; i++ {
		features = append(features, polygonFeature(fmt.Sprintf(`{"name":"Region %d"}`, i), squareCoords))
	}
	features = append(features,
		polygonFeature(`{"name":"Broken string"}`, `"oops"`),
		polygonFeature(`{"name":"Broken point"}`, `[[[30,59],"x"]]`),
	)

	res, err := New(nil, "").FeatureCollection(strings.NewReader(collection(features...)))
	if err != nil {
		t.Fatalf("FeatureCollection: %v", err)
	}
	if res.Ingested() != 8 {
		t.Errorf("Ingested = %d, want 8", res.Ingested())
	}
	if res.Total != 10 || res.Skipped != 2 {
		t.Errorf("Total=%d Skipped=%d, want 10 and 2", res.Total, res.Skipped)
	}
	if len(res.Failures) != 2 || res.Failures[0].Index != 8 || res.Failures[0].Name != "Broken string" {
		t.Errorf("Failures = %+v", res.Failures)
	}
}

func TestFeatureCollectionNames(t *testing.T) {
	tests := []struct {
		name  string
		props string
		want  string
	}{
		{name: "name", props: `{"name":"Moscow"}`, want: "Moscow"},
		{name: "upper NAME", props: `{"NAME":"Tver"}`, want: "Tver"},
		{name: "region after blank name", props: `{"name":"  ","region":"Pskov"}`, want: "Pskov"},
		{name: "subject", props: `{"SUBJECT":"Karelia"}`, want: "Karelia"},
		{name: "priority order", props: `{"SUBJECT":"B","name":"A"}`, want: "A"},
		{name: "trimmed", props: `{"name":"  Novgorod "}`, want: "Novgorod"},
		{name: "numeric", props: `{"name":78}`, want: "78"},
		{name: "nested ignored", props: `{"name":{"ru":"x"}}`, want: geo.UnknownName},
		{name: "no properties", props: `null`, want: geo.UnknownName},
		{name: "unrelated", props: `{"id":5}`, want: geo.UnknownName},
	}

	ing := New(nil, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ing.FeatureCollection(strings.NewReader(collection(polygonFeature(tt.props, squareCoords))))
			if err != nil {
				t.Fatal(err)
			}
			if res.Ingested() != 1 {
				t.Fatalf("Ingested = %d", res.Ingested())
			}
			if got := res.Boundaries[0].Name; got != tt.want {
				t.Errorf("Name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeatureCollectionGeometry(t *testing.T) {
	multi := `{"type":"Feature","properties":{"name":"Multi"},"geometry":{"type":"MultiPolygon","coordinates":[` +
		squareCoords + `,[[[40,50],[41,50],[41,51],[40,51],[40,50]]]]}}`
	nullGeom := `{"type":"Feature","properties":{"name":"Nowhere"},"geometry":null}`
	point := `{"type":"Feature","properties":{"name":"Pin"},"geometry":{"type":"Point","coordinates":[30,59]}}`
	open := polygonFeature(`{"name":"Open"}`, `[[[30,59],[31,59],[31,60],[30,60]]]`)

	res, err := New(nil, "").FeatureCollection(strings.NewReader(collection(
		polygonFeature(`{"name":"Square"}`, squareCoords), multi, nullGeom, point, open,
	)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Ingested() != 3 || res.Skipped != 2 {
		t.Fatalf("Ingested=%d Skipped=%d, want 3 and 2", res.Ingested(), res.Skipped)
	}

	sq := res.Boundaries[0]
	if _, ok := sq.Geometry.(orb.Polygon); !ok {
		t.Errorf("Square geometry = %T", sq.Geometry)
	}
	if sq.AreaKm2 != 12392.14 {
		t.Errorf("Square AreaKm2 = %v, want 12392.14", sq.AreaKm2)
	}
	if _, ok := res.Boundaries[1].Geometry.(orb.MultiPolygon); !ok {
		t.Errorf("Multi geometry = %T", res.Boundaries[1].Geometry)
	}
	if nb := res.Boundaries[2]; nb.Name != "Nowhere" || nb.Geometry != nil || nb.AreaKm2 != 0 {
		t.Errorf("null geometry boundary = %+v", nb)
	}
	if !errors.Is(res.Failures[0].Err, geo.ErrNotPolygonal) {
		t.Errorf("point failure = %v, want ErrNotPolygonal", res.Failures[0].Err)
	}
}

func TestValidateGeoJSONName(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		wantErr bool
	}{
		{"regions.geojson", 10, false},
		{"REGIONS.JSON", 10, false},
		{"regions.json", 0, true},
		{"regions.txt", 10, true},
		{"regions", 10, true},
	}
	for _, tt := range tests {
		err := ValidateGeoJSONName(tt.name, tt.size)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateGeoJSONName(%q, %d) error = %v, wantErr %v", tt.name, tt.size, err, tt.wantErr)
		}
	}
}

func TestGeoJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.geojson")
	if err := os.WriteFile(path, []byte(collection(polygonFeature(`{"name":"A"}`, squareCoords))), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := New(nil, "").GeoJSONFile(path)
	if err != nil {
		t.Fatalf("GeoJSONFile: %v", err)
	}
	if res.Source != "regions.geojson" || res.Ingested() != 1 {
		t.Errorf("got source=%q ingested=%d", res.Source, res.Ingested())
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	var ve *ValidationError
	if _, err := New(nil, "").GeoJSONFile(empty); !errors.As(err, &ve) {
		t.Errorf("empty file error = %v, want *ValidationError", err)
	}
	if _, err := New(nil, "").GeoJSONFile(filepath.Join(dir, "missing.json")); !errors.As(err, &ve) {
		t.Errorf("missing file error = %v, want *ValidationError", err)
	}
}
