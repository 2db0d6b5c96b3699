package metacal

import (
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/lenstools/metacal/pkg/errors"
	"github.com/lenstools/metacal/pkg/logging"
	"github.com/lenstools/metacal/pkg/observation"
	"github.com/lenstools/metacal/pkg/resample"
	"github.com/lenstools/metacal/pkg/shape"
)

const (
	// symPatchSize is the side of the synthetic noise patch used to
	// estimate the correlated-noise model for symmetrization
	symPatchSize = 512

	// symOrder is the rotational symmetry order enforced on the total noise
	symOrder = 4
)

// Metacal creates manipulated images for use in metacalibration. It never
// mutates its input observation; every operation returns new observations.
type Metacal struct {
	obs    *observation.Observation
	eng    resample.Engine
	kernel resample.Kernel
	logger zerolog.Logger

	scale            float64
	rows, cols       int
	psfRows, psfCols int

	pixel    resample.Model
	psfNoPix resample.Model
	psfInv   resample.Model
	galNoPSF resample.Model

	whiten     bool
	symmetrize bool
	sameSeed   bool
	seed       uint64
	rng        *rand.Rand
	medVar     float64
	symCache   SymCache
}

// Option configures a Metacal at construction time
type Option func(*Metacal)

// WithKernel sets the interpolation-kernel configuration
func WithKernel(k resample.Kernel) Option {
	return func(m *Metacal) { m.kernel = k }
}

// WithWhitening enables noise whitening of derived images. When sameSeed
// is true, every whitening call reuses the same stored seed so paired +/-
// shear calls see statistically identical injected noise.
func WithWhitening(sameSeed bool) Option {
	return func(m *Metacal) {
		m.whiten = true
		m.sameSeed = sameSeed
	}
}

// WithSymmetrization enables noise symmetrization of derived images,
// using the given cache for the noise-difference fields. A nil cache gets
// a private unbounded one.
func WithSymmetrization(c SymCache) Option {
	return func(m *Metacal) {
		m.symmetrize = true
		m.symCache = c
	}
}

// WithRand sets the random number generator used for noise injection
func WithRand(rng *rand.Rand) Option {
	return func(m *Metacal) { m.rng = rng }
}

// New creates a Metacal for the given observation. The observation must
// carry a PSF observation; metacalibration requires a deconvolvable PSF
// model.
func New(obs *observation.Observation, eng resample.Engine, opts ...Option) (*Metacal, error) {
	if obs == nil {
		return nil, errors.New(errors.ErrInvalidInput, "observation is nil")
	}
	if eng == nil {
		return nil, errors.New(errors.ErrConfig, "resampling engine is required")
	}

	psfObs, err := obs.PSF()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrMissingPSF,
			"observation must have a psf observation set")
	}

	m := &Metacal{
		obs:    obs,
		eng:    eng,
		kernel: resample.DefaultKernel(),
		logger: logging.GetLogger("metacal.pipeline"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.kernel = m.kernel.WithDefaults()
	if err := m.kernel.Validate(); err != nil {
		return nil, err
	}

	m.rows, m.cols = obs.Dims()
	m.psfRows, m.psfCols = psfObs.Dims()
	m.scale = obs.Jacobian().MaxLinearScale()

	m.pixel = eng.Pixel(m.scale)
	pixelInv, err := eng.Deconvolve(m.pixel)
	if err != nil {
		return nil, err
	}

	psfModel, err := eng.Model(psfObs.Image(), m.scale, m.kernel)
	if err != nil {
		return nil, err
	}

	// psf with the pixel response removed; re-dilated and re-pixelized
	// later when building target psfs
	m.psfNoPix, err = eng.Convolve(psfModel, pixelInv)
	if err != nil {
		return nil, err
	}

	// used to deconvolve the psf, pixel included, from the galaxy image
	m.psfInv, err = eng.Deconvolve(psfModel)
	if err != nil {
		return nil, err
	}

	galModel, err := eng.Model(obs.Image(), m.scale, m.kernel)
	if err != nil {
		return nil, err
	}
	m.galNoPSF, err = eng.Convolve(galModel, m.psfInv)
	if err != nil {
		return nil, err
	}

	if m.whiten || m.symmetrize {
		medErr := obs.MedianErr()
		if medErr <= 0 {
			return nil, errors.New(errors.ErrConfig,
				"weight map has no positive median, cannot set a noise level")
		}
		m.medVar = medErr * medErr

		if m.rng == nil {
			m.rng = rand.New(rand.NewSource(rand.Uint64()))
		}
		if m.sameSeed {
			m.seed = m.rng.Uint64()
		}
		if m.symmetrize && m.symCache == nil {
			m.symCache = NewSymCache()
		}
	}

	return m, nil
}

// DilationFactor returns the PSF enlargement 1 + 2*max(|g1|, |g2|) used
// for the given test shear. It is exactly 1 for zero shear.
func DilationFactor(s shape.Shape) float64 {
	return 1 + 2*math.Max(math.Abs(s.G1), math.Abs(s.G2))
}

// GetTargetPSF builds the dilated, possibly sheared, target PSF for the
// given test shear. In PSFModeGalShear the PSF is only dilated; in
// PSFModePSFShear the pixel-convolved dilated PSF is additionally sheared.
// It returns the drawn PSF image and the un-drawn model, which already
// includes the pixel response.
func (m *Metacal) GetTargetPSF(s shape.Shape, mode PSFMode) (*mat.Dense, resample.Model, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	switch mode {
	case PSFModeGalShear, PSFModePSFShear:
	default:
		return nil, nil, errors.Newf(errors.ErrBadMode,
			"unsupported psf mode %q", mode.String()).
			WithDetail("mode", int(mode))
	}

	m.logger.Trace().Stringer("shear", s).Stringer("mode", mode).
		Float64("dilation", DilationFactor(s)).Msg("Building target psf")

	grown, err := m.eng.Dilate(m.psfNoPix, DilationFactor(s))
	if err != nil {
		return nil, nil, err
	}

	grownPix, err := m.eng.Convolve(grown, m.pixel)
	if err != nil {
		return nil, nil, err
	}

	if mode == PSFModePSFShear {
		// shear the pixelized version, after pixel reconvolution
		grownPix, err = m.eng.Shear(grownPix, s)
		if err != nil {
			return nil, nil, err
		}
	}

	// the pixel response is already included, draw with no extra pixel
	img, err := m.eng.Draw(grownPix, m.psfRows, m.psfCols, m.scale)
	if err != nil {
		return nil, nil, err
	}

	return img, grownPix, nil
}

// GetTargetImage builds the galaxy image convolved with the given target
// PSF model, sheared first when s is non-nil. Whitening, when enabled,
// happens here.
func (m *Metacal) GetTargetImage(psfModel resample.Model, s *shape.Shape) (*mat.Dense, error) {
	base := m.galNoPSF
	if s != nil {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		var err error
		// shear the deconvolved galaxy, pre-psf and pre-pixel
		base, err = m.eng.Shear(base, *s)
		if err != nil {
			return nil, err
		}
	}

	conv, err := m.eng.Convolve(base, psfModel)
	if err != nil {
		return nil, err
	}

	img, err := m.eng.Draw(conv, m.rows, m.cols, m.scale)
	if err != nil {
		return nil, err
	}

	if m.whiten {
		noise, err := m.propagatedNoise(psfModel, s)
		if err != nil {
			return nil, err
		}

		rng := m.rng
		if m.sameSeed {
			// paired +/- shear calls must see identical injected noise
			rng = rand.New(rand.NewSource(m.seed))
		}

		if _, err := m.eng.Whiten(img, noise, rng); err != nil {
			return nil, err
		}
	}

	return img, nil
}

// GetObsGalshear builds the observation with the test shear applied to the
// galaxy, for calculating R. When getUnsheared is true it additionally
// returns the zero-shear control observation convolved by the same target
// PSF; otherwise the second return is nil.
func (m *Metacal) GetObsGalshear(s shape.Shape, getUnsheared bool) (*observation.Observation, *observation.Observation, error) {
	psfImg, psfModel, err := m.GetTargetPSF(s, PSFModeGalShear)
	if err != nil {
		return nil, nil, err
	}

	img, err := m.GetTargetImage(psfModel, &s)
	if err != nil {
		return nil, nil, err
	}
	if m.symmetrize {
		img, err = m.symmetrizeNoise(img, psfModel, s, shape.Zero())
		if err != nil {
			return nil, nil, err
		}
	}

	newObs, err := m.makeObs(img, psfImg)
	if err != nil {
		return nil, nil, err
	}

	if !getUnsheared {
		return newObs, nil, nil
	}

	uimg, err := m.GetTargetImage(psfModel, nil)
	if err != nil {
		return nil, nil, err
	}
	if m.symmetrize {
		uimg, err = m.symmetrizeNoise(uimg, psfModel, shape.Zero(), shape.Zero())
		if err != nil {
			return nil, nil, err
		}
	}

	uobs, err := m.makeObs(uimg, psfImg)
	if err != nil {
		return nil, nil, err
	}

	return newObs, uobs, nil
}

// GetObsPSFShear builds the observation with the test shear applied to the
// PSF itself and no galaxy-side shear, for calculating Rpsf
func (m *Metacal) GetObsPSFShear(s shape.Shape) (*observation.Observation, error) {
	psfImg, psfModel, err := m.GetTargetPSF(s, PSFModePSFShear)
	if err != nil {
		return nil, err
	}

	img, err := m.GetTargetImage(psfModel, nil)
	if err != nil {
		return nil, err
	}
	if m.symmetrize {
		img, err = m.symmetrizeNoise(img, psfModel, shape.Zero(), s)
		if err != nil {
			return nil, err
		}
	}

	return m.makeObs(img, psfImg)
}

// GetObsDilatedOnly builds the unsheared observation with only the PSF
// dilation applied, a baseline with no shear anywhere
func (m *Metacal) GetObsDilatedOnly(s shape.Shape) (*observation.Observation, error) {
	psfImg, psfModel, err := m.GetTargetPSF(s, PSFModeGalShear)
	if err != nil {
		return nil, err
	}

	img, err := m.GetTargetImage(psfModel, nil)
	if err != nil {
		return nil, err
	}
	if m.symmetrize {
		img, err = m.symmetrizeNoise(img, psfModel, shape.Zero(), shape.Zero())
		if err != nil {
			return nil, err
		}
	}

	return m.makeObs(img, psfImg)
}

// symmetrizeNoise returns the image plus the noise-difference field that
// makes its total noise 4-fold rotationally symmetric. The field depends
// only on the grid size and the applied shears, so it is cached and reused.
func (m *Metacal) symmetrizeNoise(img *mat.Dense, targetPSF resample.Model, galShear, psfShear shape.Shape) (*mat.Dense, error) {
	rows, cols := img.Dims()
	key := SymKey{
		Rows: rows, Cols: cols,
		G1: galShear.G1, G2: galShear.G2,
		G1PSF: psfShear.G1, G2PSF: psfShear.G2,
	}

	diff, err := m.symCache.GetOrCompute(key, func() (*mat.Dense, error) {
		m.logger.Debug().
			Int("rows", rows).Int("cols", cols).
			Stringer("galShear", galShear).Stringer("psfShear", psfShear).
			Msg("Computing symmetrization noise field")
		return m.computeSymDiff(targetPSF, galShear, psfShear, rows, cols)
	})
	if err != nil {
		return nil, err
	}

	out := mat.DenseCopyOf(img)
	out.Add(out, diff)
	return out, nil
}

// computeSymDiff builds the additive correction for one cache key: estimate
// the correlated noise of a derived image by pushing a synthetic white
// patch through the same deconvolve/shear/reconvolve chain, then draw the
// field that completes it to 4-fold symmetry
func (m *Metacal) computeSymDiff(targetPSF resample.Model, galShear, psfShear shape.Shape, rows, cols int) (*mat.Dense, error) {
	patch := mat.NewDense(symPatchSize, symPatchSize, nil)
	if err := m.eng.AddNoise(patch, m.eng.UncorrelatedNoise(m.medVar), m.rng); err != nil {
		return nil, err
	}

	cn, err := m.eng.EstimateNoise(patch, m.scale)
	if err != nil {
		return nil, err
	}

	// the real noise went through the deconvolution too
	cn, err = m.eng.ConvolveNoise(cn, m.psfInv)
	if err != nil {
		return nil, err
	}

	appliedShear := galShear
	if galShear.IsZero() && !psfShear.IsZero() {
		appliedShear = psfShear
	}
	cn, err = m.eng.ShearNoise(cn, appliedShear)
	if err != nil {
		return nil, err
	}

	cn, err = m.eng.ConvolveNoise(cn, targetPSF)
	if err != nil {
		return nil, err
	}

	diff := mat.NewDense(rows, cols, nil)
	if err := m.eng.SymmetrizeNoise(diff, cn, symOrder, m.rng); err != nil {
		return nil, err
	}
	return diff, nil
}

// makeObs wraps a derived image and its drawn psf into a new observation
// sharing the original weight map and jacobian
func (m *Metacal) makeObs(img, psfImg *mat.Dense) (*observation.Observation, error) {
	psfObs, err := observation.New(psfImg,
		observation.WithJacobian(m.obs.Jacobian()))
	if err != nil {
		return nil, err
	}

	return observation.New(img,
		observation.WithWeight(m.obs.Weight()),
		observation.WithJacobian(m.obs.Jacobian()),
		observation.WithPSF(psfObs))
}

// propagatedNoise is the noise model of a derived image: the original
// uncorrelated noise pushed through deconvolution, optional shear, and
// reconvolution with the target psf
func (m *Metacal) propagatedNoise(psfModel resample.Model, s *shape.Shape) (resample.NoiseModel, error) {
	noise := m.eng.UncorrelatedNoise(m.medVar)

	noise, err := m.eng.ConvolveNoise(noise, m.psfInv)
	if err != nil {
		return nil, err
	}
	if s != nil {
		noise, err = m.eng.ShearNoise(noise, *s)
		if err != nil {
			return nil, err
		}
	}
	return m.eng.ConvolveNoise(noise, psfModel)
}
