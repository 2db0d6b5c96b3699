package shear_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/lenstools/metacal/pkg/errors"
	"github.com/lenstools/metacal/pkg/shear"
)

func scatteredEnsemble(n int, rng *rand.Rand) ([][2]float64, [][2]float64, [][2][2]float64, [][2]float64) {
	g := make([][2]float64, n)
	gpsf := make([][2]float64, n)
	r := make([][2][2]float64, n)
	rpsf := make([][2]float64, n)
	for i := 0; i < n; i++ {
		g[i] = [2]float64{0.01 + 0.05*rng.NormFloat64(), 0.05 * rng.NormFloat64()}
		gpsf[i] = [2]float64{0.001 * rng.NormFloat64(), 0.001 * rng.NormFloat64()}
		r[i] = [2][2]float64{
			{1 + 0.1*rng.NormFloat64(), 0.01 * rng.NormFloat64()},
			{0.01 * rng.NormFloat64(), 1 + 0.1*rng.NormFloat64()},
		}
		rpsf[i] = [2]float64{0.1 + 0.01*rng.NormFloat64(), 0.1 + 0.01*rng.NormFloat64()}
	}
	return g, gpsf, r, rpsf
}

func TestBootstrapConstantEnsemble(t *testing.T) {
	// with zero scatter every resample reproduces the point estimate
	g, gpsf, r, rpsf := constEnsemble(50,
		[2]float64{0.01, 0}, [2]float64{}, identity(), [2]float64{})

	res, err := shear.Bootstrap(g, gpsf, r, rpsf, 20, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.InDelta(t, 0.01, res.Shear[0], 1e-15)
	assert.InDelta(t, 0.01, res.ShearMean[0], 1e-15)
	assert.Equal(t, 0.0, res.ShearCov[0][0])
	assert.Equal(t, 0.0, res.ShearErr[0])
	require.Len(t, res.Shears, 20)
}

func TestBootstrapDeterministicPerSeed(t *testing.T) {
	g, gpsf, r, rpsf := scatteredEnsemble(200, rand.New(rand.NewSource(7)))

	a, err := shear.Bootstrap(g, gpsf, r, rpsf, 50, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := shear.Bootstrap(g, gpsf, r, rpsf, 50, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	assert.Equal(t, a.Shears, b.Shears)
	assert.Equal(t, a.ShearCov, b.ShearCov)

	c, err := shear.Bootstrap(g, gpsf, r, rpsf, 50, rand.New(rand.NewSource(43)))
	require.NoError(t, err)
	assert.NotEqual(t, a.Shears, c.Shears)
}

func TestBootstrapCovariance(t *testing.T) {
	g, gpsf, r, rpsf := scatteredEnsemble(500, rand.New(rand.NewSource(13)))

	res, err := shear.Bootstrap(g, gpsf, r, rpsf, 100, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	// the point estimate is the non-resampled mean estimate
	mean, err := shear.Mean(g, gpsf, r, rpsf)
	require.NoError(t, err)
	assert.Equal(t, mean.Shear, res.Shear)

	assert.Greater(t, res.ShearCov[0][0], 0.0)
	assert.Greater(t, res.ShearCov[1][1], 0.0)
	assert.Equal(t, res.ShearCov[0][1], res.ShearCov[1][0])
	assert.Equal(t, math.Sqrt(res.ShearCov[0][0]), res.ShearErr[0])
	assert.Equal(t, math.Sqrt(res.ShearCov[1][1]), res.ShearErr[1])

	// the bootstrap scatter tracks the naive stderr to within a factor
	naive := mean.ShearErr[0]
	assert.Greater(t, res.ShearErr[0], naive/3)
	assert.Less(t, res.ShearErr[0], naive*3)

	// resampled means scatter around the point estimate
	assert.InDelta(t, res.Shear[0], res.ShearMean[0], 5*res.ShearErr[0])
}

func TestBootstrapValidation(t *testing.T) {
	g, gpsf, r, rpsf := constEnsemble(10,
		[2]float64{0.01, 0}, [2]float64{}, identity(), [2]float64{})

	t.Run("nboot below two", func(t *testing.T) {
		_, err := shear.Bootstrap(g, gpsf, r, rpsf, 1, rand.New(rand.NewSource(1)))
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	})

	t.Run("nil rng", func(t *testing.T) {
		_, err := shear.Bootstrap(g, gpsf, r, rpsf, 10, nil)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	})

	t.Run("empty ensemble", func(t *testing.T) {
		_, err := shear.Bootstrap(nil, nil, r, rpsf, 10, rand.New(rand.NewSource(1)))
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	})
}
