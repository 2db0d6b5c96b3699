package shear

import (
	"math"

	"github.com/lenstools/metacal/pkg/errors"
	"github.com/lenstools/metacal/pkg/logging"
)

// JackknifeResult holds a delete-one-chunk jackknife shear estimate
type JackknifeResult struct {
	// Shear is the global estimate inverse(sum R) . (sum g - sum Rpsf)
	Shear [2]float64

	// ShearCov is the jackknife covariance of the estimate
	ShearCov [2][2]float64

	// ShearErr is the square root of the covariance diagonal
	ShearErr [2]float64

	GSum    [2]float64
	RSum    [2][2]float64
	RPSFSum [2]float64

	// Shears are the per-chunk leave-out estimates
	Shears [][2]float64

	NUse int
}

// Jackknife computes the shear and its jackknife covariance by deleting one
// contiguous chunk of chunksize objects at a time, in original order. rpsf
// may be nil when no PSF response correction applies. The ensemble size must
// be an exact multiple of chunksize.
func Jackknife(g [][2]float64, r [][2][2]float64, rpsf [][2]float64, chunksize int) (*JackknifeResult, error) {
	logger := logging.GetLogger("shear.jackknife")

	n := len(g)
	if err := checkChunking(n, len(r), chunksize); err != nil {
		return nil, err
	}
	if rpsf != nil && len(rpsf) != n {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"rpsf has %d rows, g has %d", len(rpsf), n).
			WithDetail("n", n).
			WithDetail("nrpsf", len(rpsf))
	}

	nchunks := n / chunksize
	logger.Trace().Int("n", n).Int("chunksize", chunksize).Int("nchunks", nchunks).
		Msg("Jackknifing shear")

	res := &JackknifeResult{NUse: n}

	for i := 0; i < n; i++ {
		res.GSum[0] += g[i][0]
		res.GSum[1] += g[i][1]
		for a := 0; a < 2; a++ {
			for b := 0; b < 2; b++ {
				res.RSum[a][b] += r[i][a][b]
			}
		}
	}
	gsum := res.GSum
	if rpsf != nil {
		for i := 0; i < n; i++ {
			res.RPSFSum[0] += rpsf[i][0]
			res.RPSFSum[1] += rpsf[i][1]
		}
		gsum[0] -= res.RPSFSum[0]
		gsum[1] -= res.RPSFSum[1]
	}

	rInv, err := invert2x2(res.RSum)
	if err != nil {
		return nil, err
	}
	res.Shear = matVec(rInv, gsum)

	res.Shears = make([][2]float64, nchunks)
	for i := 0; i < nchunks; i++ {
		beg := i * chunksize
		end := beg + chunksize

		var cg [2]float64
		var cr [2][2]float64
		var crpsf [2]float64
		for j := beg; j < end; j++ {
			cg[0] += g[j][0]
			cg[1] += g[j][1]
			for a := 0; a < 2; a++ {
				for b := 0; b < 2; b++ {
					cr[a][b] += r[j][a][b]
				}
			}
			if rpsf != nil {
				crpsf[0] += rpsf[j][0]
				crpsf[1] += rpsf[j][1]
			}
		}

		jg := [2]float64{gsum[0] - (cg[0] - crpsf[0]), gsum[1] - (cg[1] - crpsf[1])}
		var jr [2][2]float64
		for a := 0; a < 2; a++ {
			for b := 0; b < 2; b++ {
				jr[a][b] = res.RSum[a][b] - cr[a][b]
			}
		}

		jrInv, err := invert2x2(jr)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrSingular,
				"leave-out response sum is singular for chunk %d", i).
				WithDetail("chunk", i)
		}
		res.Shears[i] = matVec(jrInv, jg)
	}

	res.ShearCov = jackknifeCov(res.Shear, res.Shears)
	res.ShearErr = [2]float64{
		math.Sqrt(res.ShearCov[0][0]),
		math.Sqrt(res.ShearCov[1][1]),
	}

	return res, nil
}

// JackknifeWeighted is Jackknife with a per-object scalar weight applied to
// every sum, using a sensitivity-matrix sum in place of the response sum.
// A nil weights slice means uniform weights.
func JackknifeWeighted(g [][2]float64, gsens [][2][2]float64, weights []float64, chunksize int) (*JackknifeResult, error) {
	n := len(g)
	if err := checkChunking(n, len(gsens), chunksize); err != nil {
		return nil, err
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != n {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"weights has %d entries, g has %d", len(weights), n).
			WithDetail("n", n).
			WithDetail("nweights", len(weights))
	}

	nchunks := n / chunksize
	res := &JackknifeResult{NUse: n}

	for i := 0; i < n; i++ {
		w := weights[i]
		res.GSum[0] += w * g[i][0]
		res.GSum[1] += w * g[i][1]
		for a := 0; a < 2; a++ {
			for b := 0; b < 2; b++ {
				res.RSum[a][b] += w * gsens[i][a][b]
			}
		}
	}

	rInv, err := invert2x2(res.RSum)
	if err != nil {
		return nil, err
	}
	res.Shear = matVec(rInv, res.GSum)

	res.Shears = make([][2]float64, nchunks)
	for i := 0; i < nchunks; i++ {
		beg := i * chunksize
		end := beg + chunksize

		var cg [2]float64
		var cr [2][2]float64
		for j := beg; j < end; j++ {
			w := weights[j]
			cg[0] += w * g[j][0]
			cg[1] += w * g[j][1]
			for a := 0; a < 2; a++ {
				for b := 0; b < 2; b++ {
					cr[a][b] += w * gsens[j][a][b]
				}
			}
		}

		jg := [2]float64{res.GSum[0] - cg[0], res.GSum[1] - cg[1]}
		var jr [2][2]float64
		for a := 0; a < 2; a++ {
			for b := 0; b < 2; b++ {
				jr[a][b] = res.RSum[a][b] - cr[a][b]
			}
		}

		jrInv, err := invert2x2(jr)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrSingular,
				"leave-out sensitivity sum is singular for chunk %d", i).
				WithDetail("chunk", i)
		}
		res.Shears[i] = matVec(jrInv, jg)
	}

	res.ShearCov = jackknifeCov(res.Shear, res.Shears)
	res.ShearErr = [2]float64{
		math.Sqrt(res.ShearCov[0][0]),
		math.Sqrt(res.ShearCov[1][1]),
	}

	return res, nil
}

func checkChunking(n, nr, chunksize int) error {
	if n == 0 {
		return errors.New(errors.ErrInvalidInput, "empty shape ensemble")
	}
	if nr != n {
		return errors.Newf(errors.ErrInvalidInput,
			"response ensemble has %d rows, g has %d", nr, n).
			WithDetail("n", n).
			WithDetail("nr", nr)
	}
	if chunksize < 1 {
		return errors.Newf(errors.ErrInvalidInput,
			"chunksize %d must be >= 1", chunksize).
			WithDetail("chunksize", chunksize)
	}
	if n%chunksize != 0 {
		return errors.Newf(errors.ErrInvalidInput,
			"ensemble size %d is not a multiple of chunksize %d", n, chunksize).
			WithDetail("n", n).
			WithDetail("chunksize", chunksize)
	}
	return nil
}

// jackknifeCov assembles ((n-1)/n) * sum of outer products of the
// deviations of the leave-out estimates from the overall estimate
func jackknifeCov(overall [2]float64, shears [][2]float64) [2][2]float64 {
	nchunks := float64(len(shears))
	fac := (nchunks - 1) / nchunks

	var cov [2][2]float64
	for _, s := range shears {
		d0 := overall[0] - s[0]
		d1 := overall[1] - s[1]
		cov[0][0] += d0 * d0
		cov[0][1] += d0 * d1
		cov[1][1] += d1 * d1
	}
	cov[0][0] *= fac
	cov[0][1] *= fac
	cov[1][0] = cov[0][1]
	cov[1][1] *= fac

	return cov
}
