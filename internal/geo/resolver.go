package geo

import (
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
)

// Resolver maps points to boundaries using the current catalog. Catalog
// replacement is a single atomic swap; readers never block on writers.
type Resolver struct {
	current atomic.Pointer[Catalog]
	writeMu sync.Mutex
	opts    CatalogOptions
}

// NewResolver creates a resolver with an empty catalog.
func NewResolver(opts CatalogOptions) *Resolver {
	r := &Resolver{opts: opts}
	r.current.Store(NewCatalog(nil, opts))
	return r
}

// Catalog returns the catalog currently used for resolution.
func (r *Resolver) Catalog() *Catalog {
	return r.current.Load()
}

// Replace swaps in a catalog built from bs.
func (r *Resolver) Replace(bs []Boundary) {
	c := NewCatalog(bs, r.opts)
	r.writeMu.Lock()
	r.current.Store(c)
	r.writeMu.Unlock()
}

// Extend swaps in a catalog holding the current boundaries followed by bs.
func (r *Resolver) Extend(bs []Boundary) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	merged := append(r.current.Load().Boundaries(), bs...)
	r.current.Store(NewCatalog(merged, r.opts))
}

// Resolve returns the boundary containing p in the current catalog.
func (r *Resolver) Resolve(p orb.Point) (Boundary, bool) {
	return r.current.Load().Resolve(p)
}
