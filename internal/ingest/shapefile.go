package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"shr_parser/internal/geo"
)

// ShapefileParts are the companion extensions every shapefile must have.
var ShapefileParts = []string{".shp", ".dbf", ".shx"}

// Shapefile ingests the shapefile at shpPath. The .dbf and .shx companions
// must sit next to it with the same base name.
func (i *Ingestor) Shapefile(shpPath string) (*Result, error) {
	if !strings.EqualFold(filepath.Ext(shpPath), ".shp") {
		return nil, &ValidationError{Source: shpPath, Reason: "main file must have .shp extension"}
	}
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))

	for _, ext := range ShapefileParts {
		info, err := os.Stat(base + ext)
		if err != nil {
			return nil, &ValidationError{Source: base + ext, Reason: "missing " + ext + " file"}
		}
		if info.Size() == 0 {
			return nil, &ValidationError{Source: base + ext, Reason: ext + " file is empty"}
		}
	}

	enc := i.detectEncoding(base)

	reader, err := shp.Open(base + ".shp")
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", shpPath, err)
	}
	defer reader.Close()

	fields := reader.Fields()
	nameIdx := -1
	for _, candidate := range NameProperties {
		for idx, f := range fields {
			if f.String() == candidate {
				nameIdx = idx
				break
			}
		}
		if nameIdx >= 0 {
			break
		}
	}

	res := &Result{Source: filepath.Base(shpPath)}
	for reader.Next() {
		n, shape := reader.Shape()
		res.Total++

		name := geo.UnknownName
		if nameIdx >= 0 {
			if v := decodeAttribute(enc, reader.Attribute(nameIdx)); v != "" {
				name = v
			}
		}

		g, err := shapeGeometry(shape)
		if err == nil {
			var b geo.Boundary
			if b, err = geo.NewBoundary(name, g); err == nil {
				res.Boundaries = append(res.Boundaries, b)
			}
		}
		if err != nil {
			res.skip(&FeatureError{Index: n, Name: name, Err: err})
			i.log.Warnw("Skipping shapefile feature", "index", n, "name", name, "error", err)
		}

		if res.Total%ShapefileProgressEvery == 0 {
			i.log.Debugw("Shapefile ingest progress", "processed", res.Total)
		}
	}
	if err := reader.Err(); err != nil {
		return res, fmt.Errorf("read shapefile %s: %w", shpPath, err)
	}

	i.log.Infow("Shapefile ingest finished",
		"file", res.Source, "total", res.Total, "ingested", res.Ingested(), "skipped", res.Skipped)
	return res, nil
}

// shapeGeometry converts polygon shapes to orb geometry. Null shapes give nil.
func shapeGeometry(s shp.Shape) (orb.Geometry, error) {
	switch v := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Polygon:
		return polygonFromParts(v.Parts, v.Points)
	case *shp.PolygonZ:
		return polygonFromParts(v.Parts, v.Points)
	case *shp.PolygonM:
		return polygonFromParts(v.Parts, v.Points)
	default:
		return nil, fmt.Errorf("unsupported shape type %T", s)
	}
}

// polygonFromParts groups rings into polygons. A clockwise ring starts a new
// polygon; a counter-clockwise ring is a hole of the polygon before it.
func polygonFromParts(parts []int32, points []shp.Point) (orb.Geometry, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("polygon has no parts")
	}

	var polys orb.MultiPolygon
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			return nil, fmt.Errorf("part %d has invalid bounds %d..%d", i, start, end)
		}

		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}

		if ring.Orientation() == orb.CCW && len(polys) > 0 {
			last := len(polys) - 1
			polys[last] = append(polys[last], ring)
			continue
		}
		polys = append(polys, orb.Polygon{ring})
	}

	if len(polys) == 1 {
		return polys[0], nil
	}
	return polys, nil
}
