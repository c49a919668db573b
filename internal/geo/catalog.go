package geo

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"
)

// DefaultCacheSize is the number of resolved points remembered per catalog.
const DefaultCacheSize = 4096

// CatalogOptions configures catalog construction.
type CatalogOptions struct {
	// CacheSize bounds the resolve cache. Zero selects DefaultCacheSize,
	// negative disables caching.
	CacheSize int
}

// Catalog is an immutable set of boundaries indexed by bounding box.
// It is safe for concurrent use.
type Catalog struct {
	boundaries []Boundary
	tree       rtree.RTreeG[int]
	cache      *lru.Cache[orb.Point, int]
}

// NewCatalog indexes bs. Boundaries without geometry are kept but never match.
func NewCatalog(bs []Boundary, opts CatalogOptions) *Catalog {
	c := &Catalog{boundaries: make([]Boundary, len(bs))}
	copy(c.boundaries, bs)

	for i, b := range c.boundaries {
		if b.Geometry == nil {
			continue
		}
		bound := b.Geometry.Bound()
		c.tree.Insert([2]float64{bound.Min.X(), bound.Min.Y()}, [2]float64{bound.Max.X(), bound.Max.Y()}, i)
	}

	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	if size > 0 {
		// lru.New only fails for non-positive sizes.
		c.cache, _ = lru.New[orb.Point, int](size)
	}
	return c
}

// Len returns the number of boundaries in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.boundaries)
}

// Boundaries returns a copy of the catalog contents in catalog order.
func (c *Catalog) Boundaries() []Boundary {
	if c == nil {
		return nil
	}
	out := make([]Boundary, len(c.boundaries))
	copy(out, c.boundaries)
	return out
}

// Resolve returns the first boundary, in catalog order, whose geometry
// contains p. Points on an edge count as contained.
func (c *Catalog) Resolve(p orb.Point) (Boundary, bool) {
	if c == nil || len(c.boundaries) == 0 {
		return Boundary{}, false
	}

	if c.cache != nil {
		if idx, ok := c.cache.Get(p); ok {
			if idx < 0 {
				return Boundary{}, false
			}
			return c.boundaries[idx], true
		}
	}

	idx := c.locate(p)
	if c.cache != nil {
		c.cache.Add(p, idx)
	}
	if idx < 0 {
		return Boundary{}, false
	}
	return c.boundaries[idx], true
}

func (c *Catalog) locate(p orb.Point) int {
	var candidates []int
	pt := [2]float64{p.X(), p.Y()}
	c.tree.Search(pt, pt, func(_, _ [2]float64, idx int) bool {
		candidates = append(candidates, idx)
		return true
	})
	sort.Ints(candidates)

	for _, idx := range candidates {
		if contains(c.boundaries[idx].Geometry, p) {
			return idx
		}
	}
	return -1
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch v := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, p)
	default:
		return false
	}
}
