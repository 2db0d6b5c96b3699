package shear

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/lenstools/metacal/pkg/errors"
)

// MeanResult holds the non-resampled shear estimate and its inputs' means
type MeanResult struct {
	// Shear is the point estimate inverse(mean(R)) . (mean(g) - psf correction)
	Shear [2]float64

	// ShearErr is the naive error inverse(mean(R)) . stderr(g), ignoring
	// covariance contributions from R and Rpsf
	ShearErr [2]float64

	GMean   [2]float64
	R       [2][2]float64
	RPSF    [2]float64
	PSFCorr [2]float64

	GSum    [2]float64
	RSum    [2][2]float64
	RPSFSum [2]float64

	NG int
	NR int
}

// Mean computes the mean-shear estimate from per-object shapes g, PSF shapes
// gpsf, responses R and PSF responses rpsf. The shape ensemble (g, gpsf) and
// the response ensemble (R, rpsf) may have different sizes.
func Mean(g, gpsf [][2]float64, r [][2][2]float64, rpsf [][2]float64) (*MeanResult, error) {
	ng := len(g)
	nr := len(r)
	if ng == 0 || nr == 0 {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"empty ensemble: ng=%d nr=%d", ng, nr).
			WithDetail("ng", ng).
			WithDetail("nr", nr)
	}
	if len(gpsf) != ng {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"gpsf has %d rows, g has %d", len(gpsf), ng).
			WithDetail("ng", ng).
			WithDetail("ngpsf", len(gpsf))
	}
	if len(rpsf) != nr {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"rpsf has %d rows, R has %d", len(rpsf), nr).
			WithDetail("nr", nr).
			WithDetail("nrpsf", len(rpsf))
	}

	res := &MeanResult{NG: ng, NR: nr}

	g1 := make([]float64, ng)
	g2 := make([]float64, ng)
	for i, gi := range g {
		res.GSum[0] += gi[0]
		res.GSum[1] += gi[1]
		g1[i] = gi[0]
		g2[i] = gi[1]
	}
	res.GMean[0] = res.GSum[0] / float64(ng)
	res.GMean[1] = res.GSum[1] / float64(ng)

	// standard error of the mean, population normalization
	gerr := [2]float64{
		stat.PopStdDev(g1, nil) / math.Sqrt(float64(ng)),
		stat.PopStdDev(g2, nil) / math.Sqrt(float64(ng)),
	}

	for _, ri := range r {
		for a := 0; a < 2; a++ {
			for b := 0; b < 2; b++ {
				res.RSum[a][b] += ri[a][b]
			}
		}
	}
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			res.R[a][b] = res.RSum[a][b] / float64(nr)
		}
	}

	for _, rp := range rpsf {
		res.RPSFSum[0] += rp[0]
		res.RPSFSum[1] += rp[1]
	}
	res.RPSF[0] = res.RPSFSum[0] / float64(nr)
	res.RPSF[1] = res.RPSFSum[1] / float64(nr)

	// PSF correction: per object gpsf scaled componentwise by mean(Rpsf),
	// then averaged over the shape ensemble
	var corrSum [2]float64
	for _, gp := range gpsf {
		corrSum[0] += gp[0] * res.RPSF[0]
		corrSum[1] += gp[1] * res.RPSF[1]
	}
	res.PSFCorr[0] = corrSum[0] / float64(ng)
	res.PSFCorr[1] = corrSum[1] / float64(ng)

	rInv, err := invert2x2(res.R)
	if err != nil {
		return nil, err
	}

	res.Shear = matVec(rInv, [2]float64{
		res.GMean[0] - res.PSFCorr[0],
		res.GMean[1] - res.PSFCorr[1],
	})
	res.ShearErr = matVec(rInv, gerr)

	return res, nil
}

// invert2x2 inverts a 2x2 response matrix, failing with a typed
// singular-matrix error
func invert2x2(m [2][2]float64) ([2][2]float64, error) {
	dense := mat.NewDense(2, 2, []float64{m[0][0], m[0][1], m[1][0], m[1][1]})

	var inv mat.Dense
	if err := inv.Inverse(dense); err != nil {
		return [2][2]float64{}, errors.Wrap(err, errors.ErrSingular,
			"response matrix sum is singular").
			WithDetail("r00", m[0][0]).
			WithDetail("r01", m[0][1]).
			WithDetail("r10", m[1][0]).
			WithDetail("r11", m[1][1])
	}

	return [2][2]float64{
		{inv.At(0, 0), inv.At(0, 1)},
		{inv.At(1, 0), inv.At(1, 1)},
	}, nil
}

func matVec(m [2][2]float64, v [2]float64) [2]float64 {
	return [2]float64{
		m[0][0]*v[0] + m[0][1]*v[1],
		m[1][0]*v[0] + m[1][1]*v[1],
	}
}
