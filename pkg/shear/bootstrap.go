package shear

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/lenstools/metacal/pkg/errors"
	"github.com/lenstools/metacal/pkg/logging"
)

// BootstrapResult holds the non-resampled point estimate plus the bootstrap
// covariance of the shear
type BootstrapResult struct {
	*MeanResult

	// ShearMean is the mean of the bootstrap shear vectors
	ShearMean [2]float64

	// ShearCov is the bootstrap covariance about the point estimate,
	// with divisor nboot-1
	ShearCov [2][2]float64

	// Shears are the per-iteration bootstrap shear vectors
	Shears [][2]float64
}

// Bootstrap computes the mean shear and a bootstrap covariance. The shape
// ensemble (g, gpsf) and the response ensemble (R, rpsf) are resampled
// independently, since the responses may come from a separate calibration
// sample. The final ShearErr is the square root of the covariance diagonal.
func Bootstrap(g, gpsf [][2]float64, r [][2][2]float64, rpsf [][2]float64, nboot int, rng *rand.Rand) (*BootstrapResult, error) {
	logger := logging.GetLogger("shear.bootstrap")

	if nboot < 2 {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"nboot %d must be >= 2", nboot).
			WithDetail("nboot", nboot)
	}
	if rng == nil {
		return nil, errors.New(errors.ErrInvalidInput, "rng is nil")
	}

	mean, err := Mean(g, gpsf, r, rpsf)
	if err != nil {
		return nil, err
	}

	ng := len(g)
	nr := len(r)
	done := logging.LogOperationStart(logger, "bootstrap")
	defer done()
	logger.Debug().Int("ng", ng).Int("nr", nr).Int("nboot", nboot).
		Floats64("shear", mean.Shear[:]).Msg("Bootstrapping about point estimate")

	gScratch := make([][2]float64, ng)
	gpsfScratch := make([][2]float64, ng)
	rScratch := make([][2][2]float64, nr)
	rpsfScratch := make([][2]float64, nr)

	res := &BootstrapResult{
		MeanResult: mean,
		Shears:     make([][2]float64, nboot),
	}

	for i := 0; i < nboot; i++ {
		for j := 0; j < ng; j++ {
			k := rng.Intn(ng)
			gScratch[j] = g[k]
			gpsfScratch[j] = gpsf[k]
		}
		for j := 0; j < nr; j++ {
			k := rng.Intn(nr)
			rScratch[j] = r[k]
			rpsfScratch[j] = rpsf[k]
		}

		bres, err := Mean(gScratch, gpsfScratch, rScratch, rpsfScratch)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrSingular,
				"bootstrap resample %d failed", i).
				WithDetail("iteration", i)
		}
		res.Shears[i] = bres.Shear
	}

	var mean0, mean1 float64
	for _, s := range res.Shears {
		mean0 += s[0]
		mean1 += s[1]
	}
	res.ShearMean = [2]float64{mean0 / float64(nboot), mean1 / float64(nboot)}

	fac := 1.0 / float64(nboot-1)
	var cov [2][2]float64
	for _, s := range res.Shears {
		d0 := mean.Shear[0] - s[0]
		d1 := mean.Shear[1] - s[1]
		cov[0][0] += d0 * d0
		cov[0][1] += d0 * d1
		cov[1][1] += d1 * d1
	}
	cov[0][0] *= fac
	cov[0][1] *= fac
	cov[1][0] = cov[0][1]
	cov[1][1] *= fac

	res.ShearCov = cov
	res.ShearErr = [2]float64{math.Sqrt(cov[0][0]), math.Sqrt(cov[1][1])}

	return res, nil
}
