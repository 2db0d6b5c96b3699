package shear

import (
	"github.com/lenstools/metacal/pkg/errors"
)

// Response assembles a per-object response matrix from shapes measured on
// images sheared by +/-step along each component: R[a][b] is the central
// finite difference of shape component a with respect to applied shear
// component b.
func Response(g1p, g1m, g2p, g2m [2]float64, step float64) ([2][2]float64, error) {
	if step <= 0 {
		return [2][2]float64{}, errors.Newf(errors.ErrInvalidInput,
			"finite-difference step %g must be positive", step).
			WithDetail("step", step)
	}

	h := 1.0 / (2 * step)
	return [2][2]float64{
		{(g1p[0] - g1m[0]) * h, (g2p[0] - g2m[0]) * h},
		{(g1p[1] - g1m[1]) * h, (g2p[1] - g2m[1]) * h},
	}, nil
}

// PSFResponse assembles a per-object PSF response vector from shapes
// measured on images whose PSF was sheared by +/-step along each component
func PSFResponse(p1p, p1m, p2p, p2m [2]float64, step float64) ([2]float64, error) {
	if step <= 0 {
		return [2]float64{}, errors.Newf(errors.ErrInvalidInput,
			"finite-difference step %g must be positive", step).
			WithDetail("step", step)
	}

	h := 1.0 / (2 * step)
	return [2]float64{
		(p1p[0] - p1m[0]) * h,
		(p2p[1] - p2m[1]) * h,
	}, nil
}
