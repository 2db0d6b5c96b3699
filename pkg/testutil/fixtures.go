package testutil

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lenstools/metacal/pkg/observation"
	"github.com/lenstools/metacal/pkg/shape"
)

// GaussImage draws an elliptical Gaussian with the given round sigma and
// reduced shear, centered on the grid, normalized to the given total flux
func GaussImage(rows, cols int, sigma float64, s shape.Shape, flux float64) *mat.Dense {
	cov := ellipCov(sigma, s)
	return gaussFromCov(rows, cols, cov, flux)
}

// MakeGaussObs builds an observation of a Gaussian galaxy convolved with a
// Gaussian PSF, with the PSF observation attached. The convolution is
// analytic: the observed covariance is the sum of the two covariances.
func MakeGaussObs(rows, cols int, galSigma, psfSigma float64, galShape, psfShape shape.Shape) (*observation.Observation, error) {
	galCov := ellipCov(galSigma, galShape)
	psfCov := ellipCov(psfSigma, psfShape)

	var obsCov [2][2]float64
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			obsCov[a][b] = galCov[a][b] + psfCov[a][b]
		}
	}

	psfObs, err := observation.New(gaussFromCov(rows, cols, psfCov, 1.0))
	if err != nil {
		return nil, err
	}

	return observation.New(gaussFromCov(rows, cols, obsCov, 100.0),
		observation.WithPSF(psfObs))
}

// ellipCov is the covariance matrix of a Gaussian with round size sigma
// under the reduced shear s: C = sigma^2 * S * S^T for the area-preserving
// shear matrix S
func ellipCov(sigma float64, s shape.Shape) [2][2]float64 {
	g2 := s.G1*s.G1 + s.G2*s.G2
	den := math.Sqrt(1 - g2)
	s11 := (1 + s.G1) / den
	s12 := s.G2 / den
	s22 := (1 - s.G1) / den

	v := sigma * sigma
	return [2][2]float64{
		{v * (s11*s11 + s12*s12), v * (s11*s12 + s12*s22)},
		{v * (s11*s12 + s12*s22), v * (s12*s12 + s22*s22)},
	}
}

func gaussFromCov(rows, cols int, cov [2][2]float64, flux float64) *mat.Dense {
	det := cov[0][0]*cov[1][1] - cov[0][1]*cov[1][0]
	inv00 := cov[1][1] / det
	inv01 := -cov[0][1] / det
	inv11 := cov[0][0] / det

	img := mat.NewDense(rows, cols, nil)
	cr := float64(rows-1) / 2
	cc := float64(cols-1) / 2

	sum := 0.0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dr := float64(r) - cr
			dc := float64(c) - cc
			arg := inv00*dr*dr + 2*inv01*dr*dc + inv11*dc*dc
			v := math.Exp(-0.5 * arg)
			img.Set(r, c, v)
			sum += v
		}
	}

	if sum > 0 {
		img.Scale(flux/sum, img)
	}
	return img
}
