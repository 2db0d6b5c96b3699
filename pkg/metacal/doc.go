// Package metacal creates manipulated images for use in metacalibration.
//
// Given an observation with a PSF, a Metacal produces derived observations
// representing the galaxy (or the PSF itself) under a synthetic test shear,
// reconvolved with a slightly enlarged PSF. Measuring shapes on the derived
// observations and finite-differencing over the applied shear yields the
// shear response matrix R and the PSF response Rpsf:
//
//	mc, err := metacal.New(obs, engine)
//
//	sh1p, _ := shape.New(0.01, 0.00)
//	sh1m, _ := shape.New(-0.01, 0.00)
//
//	obs1p, _, err := mc.GetObsGalshear(sh1p, false)
//	obs1m, _, err := mc.GetObsGalshear(sh1m, false)
//
//	// observations used to calculate Rpsf
//	psf1p, err := mc.GetObsPSFShear(sh1p)
//	psf1m, err := mc.GetObsPSFShear(sh1m)
//
// The PSF is dilated by 1 + 2*max(|g1|, |g2|) in every mode, which
// suppresses shear-dependent noise amplification. Optional noise
// symmetrization reuses cached noise-difference fields keyed by grid size
// and applied shear, so paired +/- calls stay cheap and reproducible.
package metacal
