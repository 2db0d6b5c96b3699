package resample_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/lenstools/metacal/pkg/errors"
	"github.com/lenstools/metacal/pkg/resample"
	"github.com/lenstools/metacal/pkg/shape"
)

// gaussImage draws a round Gaussian of the given sigma centered on the grid
func gaussImage(rows, cols int, sigma float64) *mat.Dense {
	img := mat.NewDense(rows, cols, nil)
	cr := float64(rows-1) / 2
	cc := float64(cols-1) / 2
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dr := float64(r) - cr
			dc := float64(c) - cc
			img.Set(r, c, math.Exp(-0.5*(dr*dr+dc*dc)/(sigma*sigma)))
		}
	}
	return img
}

func maxAbsDiff(a, b *mat.Dense) float64 {
	rows, cols := a.Dims()
	maxDiff := 0.0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			d := math.Abs(a.At(r, c) - b.At(r, c))
			if d > maxDiff {
				maxDiff = d
			}
		}
	}
	return maxDiff
}

func TestModelDrawRoundTrip(t *testing.T) {
	eng := resample.NewFFTEngine()
	img := gaussImage(32, 32, 3.0)

	m, err := eng.Model(img, 1.0, resample.DefaultKernel())
	require.NoError(t, err)

	drawn, err := eng.Draw(m, 32, 32, 1.0)
	require.NoError(t, err)

	assert.Less(t, maxAbsDiff(img, drawn), 1e-10,
		"drawing an unmodified model should reproduce the input image")
}

func TestModelValidation(t *testing.T) {
	eng := resample.NewFFTEngine()

	t.Run("nil image", func(t *testing.T) {
		_, err := eng.Model(nil, 1.0, resample.DefaultKernel())
		assert.True(t, errors.IsErrorCode(err, errors.ErrEmptyImage))
	})

	t.Run("bad scale", func(t *testing.T) {
		_, err := eng.Model(gaussImage(8, 8, 2), -1.0, resample.DefaultKernel())
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	})

	t.Run("bad kernel tol", func(t *testing.T) {
		_, err := eng.Model(gaussImage(8, 8, 2), 1.0, resample.Kernel{Order: 5, Tol: 2})
		assert.True(t, errors.IsErrorCode(err, errors.ErrConfig))
	})
}

func TestKernelDefaults(t *testing.T) {
	k := resample.Kernel{}.WithDefaults()
	assert.Equal(t, 5, k.Order)
	assert.True(t, k.ConserveDC)
	assert.Equal(t, 1.0e-4, k.Tol)

	partial := resample.Kernel{Order: 3}.WithDefaults()
	assert.Equal(t, 3, partial.Order)
	assert.Equal(t, 1.0e-4, partial.Tol)
}

func TestDeconvolveConvolveInverse(t *testing.T) {
	eng := resample.NewFFTEngine()
	img := gaussImage(32, 32, 3.0)

	m, err := eng.Model(img, 1.0, resample.DefaultKernel())
	require.NoError(t, err)

	inv, err := eng.Deconvolve(m)
	require.NoError(t, err)

	ident, err := eng.Convolve(m, inv)
	require.NoError(t, err)

	// Convolving a broad Gaussian with another model's deconvolution
	// inverse of itself is the identity where the spectrum is above
	// tolerance, so the drawn image should be close to a delta at center
	drawn, err := eng.Draw(ident, 32, 32, 1.0)
	require.NoError(t, err)

	// total flux of the identity kernel is 1
	assert.InDelta(t, 1.0, mat.Sum(drawn), 1e-6)
}

func TestDeconvolveZeroFlux(t *testing.T) {
	eng := resample.NewFFTEngine()
	img := mat.NewDense(8, 8, nil)

	m, err := eng.Model(img, 1.0, resample.DefaultKernel())
	require.NoError(t, err)

	_, err = eng.Deconvolve(m)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrEngine))
}

func TestDilate(t *testing.T) {
	eng := resample.NewFFTEngine()
	img := gaussImage(32, 32, 2.0)

	m, err := eng.Model(img, 1.0, resample.DefaultKernel())
	require.NoError(t, err)

	t.Run("factor one is identity", func(t *testing.T) {
		d, err := eng.Dilate(m, 1.0)
		require.NoError(t, err)
		assert.Equal(t, m, d)
	})

	t.Run("flux preserved", func(t *testing.T) {
		d, err := eng.Dilate(m, 1.05)
		require.NoError(t, err)

		orig, err := eng.Draw(m, 32, 32, 1.0)
		require.NoError(t, err)
		dil, err := eng.Draw(d, 32, 32, 1.0)
		require.NoError(t, err)

		assert.InDelta(t, mat.Sum(orig), mat.Sum(dil), 1e-6)

		// Dilation broadens the profile: the central pixel comes down
		assert.Less(t, dil.At(15, 15), orig.At(15, 15))
	})

	t.Run("bad factor", func(t *testing.T) {
		_, err := eng.Dilate(m, 0)
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	})
}

func TestShear(t *testing.T) {
	eng := resample.NewFFTEngine()
	img := gaussImage(32, 32, 3.0)

	m, err := eng.Model(img, 1.0, resample.DefaultKernel())
	require.NoError(t, err)

	t.Run("zero shear preserves the image", func(t *testing.T) {
		sheared, err := eng.Shear(m, shape.Zero())
		require.NoError(t, err)

		drawn, err := eng.Draw(sheared, 32, 32, 1.0)
		require.NoError(t, err)
		assert.Less(t, maxAbsDiff(img, drawn), 1e-10)
	})

	t.Run("shear preserves flux", func(t *testing.T) {
		s, err := shape.New(0.05, -0.02)
		require.NoError(t, err)

		sheared, err := eng.Shear(m, s)
		require.NoError(t, err)

		drawn, err := eng.Draw(sheared, 32, 32, 1.0)
		require.NoError(t, err)
		assert.InDelta(t, mat.Sum(img), mat.Sum(drawn), 1e-4)
	})

	t.Run("invalid shear", func(t *testing.T) {
		_, err := eng.Shear(m, shape.Shape{G1: 0.9, G2: 0.9})
		assert.True(t, errors.IsErrorCode(err, errors.ErrShapeRange))
	})
}

func TestDrawValidation(t *testing.T) {
	eng := resample.NewFFTEngine()
	img := gaussImage(8, 8, 2.0)

	m, err := eng.Model(img, 1.0, resample.DefaultKernel())
	require.NoError(t, err)

	_, err = eng.Draw(m, 0, 8, 1.0)
	assert.True(t, errors.IsErrorCode(err, errors.ErrDraw))

	_, err = eng.Draw(m, 8, 8, -1.0)
	assert.True(t, errors.IsErrorCode(err, errors.ErrDraw))

	_, err = eng.Draw(nil, 8, 8, 1.0)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestAddNoiseDeterministic(t *testing.T) {
	eng := resample.NewFFTEngine()
	noise := eng.UncorrelatedNoise(0.01)

	a := mat.NewDense(16, 16, nil)
	b := mat.NewDense(16, 16, nil)

	require.NoError(t, eng.AddNoise(a, noise, rand.New(rand.NewSource(42))))
	require.NoError(t, eng.AddNoise(b, noise, rand.New(rand.NewSource(42))))

	assert.Equal(t, 0.0, maxAbsDiff(a, b),
		"identical seeds must give identical noise realizations")

	c := mat.NewDense(16, 16, nil)
	require.NoError(t, eng.AddNoise(c, noise, rand.New(rand.NewSource(7))))
	assert.Greater(t, maxAbsDiff(a, c), 0.0)
}

func TestEstimateNoiseFlat(t *testing.T) {
	eng := resample.NewFFTEngine()

	img := mat.NewDense(64, 64, nil)
	require.NoError(t, eng.AddNoise(img, eng.UncorrelatedNoise(1.0), rand.New(rand.NewSource(3))))

	est, err := eng.EstimateNoise(img, 1.0)
	require.NoError(t, err)
	require.NotNil(t, est)

	_, err = eng.EstimateNoise(nil, 1.0)
	assert.True(t, errors.IsErrorCode(err, errors.ErrEmptyImage))
}

func TestWhitenFlatNoise(t *testing.T) {
	eng := resample.NewFFTEngine()
	img := mat.NewDense(16, 16, nil)

	variance, err := eng.Whiten(img, eng.UncorrelatedNoise(0.25), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	// Flat noise is already white: the reported variance is the input
	// level and nothing is added
	assert.InDelta(t, 0.25, variance, 1e-14)
	assert.Equal(t, 0.0, mat.Sum(img))
}

func TestSymmetrizeFlatNoiseIsNoop(t *testing.T) {
	eng := resample.NewFFTEngine()
	img := gaussImage(16, 16, 2.0)
	want := mat.DenseCopyOf(img)

	err := eng.SymmetrizeNoise(img, eng.UncorrelatedNoise(0.01), 4, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	// Flat noise is rotation invariant, so the correction field is zero
	assert.Equal(t, 0.0, maxAbsDiff(img, want))
}

func TestSymmetrizeBadOrder(t *testing.T) {
	eng := resample.NewFFTEngine()
	img := mat.NewDense(8, 8, nil)

	err := eng.SymmetrizeNoise(img, eng.UncorrelatedNoise(0.01), 1, rand.New(rand.NewSource(1)))
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestSymmetrizeCorrelatedNoiseAddsPower(t *testing.T) {
	eng := resample.NewFFTEngine()

	// Build anisotropic correlated noise: white noise filtered through a
	// sheared Gaussian model
	psfImg := gaussImage(32, 32, 2.0)
	psfModel, err := eng.Model(psfImg, 1.0, resample.DefaultKernel())
	require.NoError(t, err)

	s, err := shape.New(0.3, 0.0)
	require.NoError(t, err)
	shearedPSF, err := eng.Shear(psfModel, s)
	require.NoError(t, err)

	corr, err := eng.ConvolveNoise(eng.UncorrelatedNoise(1.0), shearedPSF)
	require.NoError(t, err)

	img := mat.NewDense(32, 32, nil)
	err = eng.SymmetrizeNoise(img, corr, 4, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	// Anisotropic noise needs a nonzero correction
	assert.Greater(t, maxAbsDiff(img, mat.NewDense(32, 32, nil)), 0.0)
}

func TestSymmetrizeEstimatedNoise(t *testing.T) {
	// Estimated power spectra live on a frequency grid; shearing and the
	// order-4 rotations query that grid at wrapped off-grid frequencies,
	// including values a rounding error below zero
	eng := resample.NewFFTEngine()

	patch := mat.NewDense(64, 64, nil)
	require.NoError(t, eng.AddNoise(patch, eng.UncorrelatedNoise(1.0), rand.New(rand.NewSource(21))))

	est, err := eng.EstimateNoise(patch, 1.0)
	require.NoError(t, err)

	s, err := shape.New(0.01, 0.0)
	require.NoError(t, err)
	sheared, err := eng.ShearNoise(est, s)
	require.NoError(t, err)

	psfModel, err := eng.Model(gaussImage(32, 32, 2.0), 1.0, resample.DefaultKernel())
	require.NoError(t, err)
	corr, err := eng.ConvolveNoise(sheared, psfModel)
	require.NoError(t, err)

	img := mat.NewDense(32, 32, nil)
	err = eng.SymmetrizeNoise(img, corr, 4, rand.New(rand.NewSource(22)))
	require.NoError(t, err)

	rows, cols := img.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			assert.False(t, math.IsNaN(img.At(r, c)) || math.IsInf(img.At(r, c), 0),
				"correction field must be finite at [%d,%d]", r, c)
		}
	}
}
