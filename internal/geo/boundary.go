// Package geo holds region boundaries and resolves points to the region containing them.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"shr_parser/internal/patterns"
)

// UnknownName is the placeholder for boundaries with no usable name.
const UnknownName = "Unknown"

// KmPerDegree is the flat-earth length of one degree used for area estimates.
const KmPerDegree = 111.32

// SRID of every geometry handled by this package (WGS 84 lon/lat).
const SRID = 4326

// ErrNotPolygonal is returned for geometries other than Polygon or MultiPolygon.
var ErrNotPolygonal = errors.New("geometry is not a polygon or multipolygon")

// Boundary is a named region with an optional polygonal geometry.
type Boundary struct {
	ID       int64        `json:"id,omitempty"`
	Name     string       `json:"name"`
	AreaKm2  float64      `json:"area_km2"`
	Geometry orb.Geometry `json:"-"`
}

// RegionRef identifies a boundary from a flight record.
type RegionRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Ref returns the reference used on flight records.
func (b Boundary) Ref() *RegionRef {
	return &RegionRef{ID: b.ID, Name: b.Name}
}

// WKT renders the geometry as well-known text, or "" when there is none.
func (b Boundary) WKT() string {
	if b.Geometry == nil {
		return ""
	}
	return wkt.MarshalString(b.Geometry)
}

// NewBoundary canonicalises g and computes its area. A nil geometry is
// allowed and yields a boundary with zero area.
func NewBoundary(name string, g orb.Geometry) (Boundary, error) {
	if name == "" {
		name = UnknownName
	}
	b := Boundary{Name: name}
	if g == nil {
		return b, nil
	}
	canon, err := Canonicalize(g)
	if err != nil {
		return Boundary{}, err
	}
	b.Geometry = canon
	b.AreaKm2 = AreaKm2(canon)
	return b, nil
}

// FromWKT rebuilds a boundary from stored well-known text.
func FromWKT(id int64, name string, area float64, text string) (Boundary, error) {
	b := Boundary{ID: id, Name: name, AreaKm2: area}
	if text == "" {
		return b, nil
	}
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return Boundary{}, fmt.Errorf("boundary %q: %w", name, err)
	}
	if err := validate(g); err != nil {
		return Boundary{}, fmt.Errorf("boundary %q: %w", name, err)
	}
	b.Geometry = g
	return b, nil
}

// Canonicalize validates a polygonal geometry and normalises it through a
// WKT encode/decode round trip.
func Canonicalize(g orb.Geometry) (orb.Geometry, error) {
	if err := validate(g); err != nil {
		return nil, err
	}
	out, err := wkt.Unmarshal(wkt.MarshalString(g))
	if err != nil {
		return nil, fmt.Errorf("wkt round trip: %w", err)
	}
	return out, nil
}

func validate(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Polygon:
		return validatePolygon(v)
	case orb.MultiPolygon:
		if len(v) == 0 {
			return errors.New("multipolygon has no polygons")
		}
		for i, p := range v {
			if err := validatePolygon(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	default:
		return ErrNotPolygonal
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return errors.New("polygon has no rings")
	}
	for i, r := range p {
		if len(r) < 4 {
			return fmt.Errorf("ring %d has %d points, need at least 4", i, len(r))
		}
		if !r.Closed() {
			return fmt.Errorf("ring %d is not closed", i)
		}
	}
	return nil
}

// AreaKm2 estimates the area of a lon/lat geometry by scaling its planar
// area in square degrees by KmPerDegree squared, rounded to two decimals.
// This ignores latitude distortion.
func AreaKm2(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	area := planar.Area(g) * KmPerDegree * KmPerDegree
	return math.Abs(math.Round(area*100) / 100)
}

// PointOf converts a decimal-degree coordinate to an orb point (x=lon, y=lat).
func PointOf(c patterns.Coordinate) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}
