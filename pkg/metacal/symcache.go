package metacal

import (
	"gonum.org/v1/gonum/mat"

	"github.com/lenstools/metacal/pkg/cache"
)

// SymKey identifies a cached noise-symmetrization correction field. Two
// derived images share a correction exactly when their grid size and their
// applied galaxy and PSF shears all match.
type SymKey struct {
	Rows, Cols   int
	G1, G2       float64
	G1PSF, G2PSF float64
}

// SymCache caches noise-difference fields by key. The fields are random
// realizations drawn from a distribution fixed by the key, so any realization
// serves any pipeline and sharing a cache between pipelines is safe; the
// cache itself synchronizes concurrent access.
type SymCache = cache.Cache[SymKey, *mat.Dense]

// NewSymCache creates an unbounded symmetrization cache
func NewSymCache() SymCache {
	return cache.New[SymKey, *mat.Dense]()
}

// NewSymCacheWithCapacity creates a symmetrization cache bounded to the
// given number of distinct (grid size, shear) combinations
func NewSymCacheWithCapacity(capacity int) SymCache {
	return cache.NewWithCapacity[SymKey, *mat.Dense](capacity)
}
