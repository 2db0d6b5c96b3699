package resample

import (
	"math"
	"math/cmplx"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lenstools/metacal/pkg/errors"
	"github.com/lenstools/metacal/pkg/shape"
)

// noisePower is the internal noise contract: the noise power spectral
// density at a frequency in cycles per pixel.
type noisePower interface {
	NoiseModel
	powerAt(fr, fc float64) float64
}

// flatNoise is uncorrelated noise with constant power
type flatNoise struct {
	variance float64
}

func (*flatNoise) isNoiseModel() {}

func (n *flatNoise) powerAt(fr, fc float64) float64 { return n.variance }

// gridNoise holds an estimated power spectrum on a frequency grid
type gridNoise struct {
	power [][]float64
	rows  int
	cols  int
	scale float64
}

func (*gridNoise) isNoiseModel() {}

func (n *gridNoise) powerAt(fr, fc float64) float64 {
	// Bilinear periodic interpolation; power spectra are smooth enough
	// that higher-order kernels buy nothing here
	x := wrapIndex(fr*float64(n.rows), n.rows)
	y := wrapIndex(fc*float64(n.cols), n.cols)

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	dx := x - float64(x0)
	dy := y - float64(y0)
	x1 := (x0 + 1) % n.rows
	y1 := (y0 + 1) % n.cols

	return (1-dx)*(1-dy)*n.power[x0][y0] +
		(1-dx)*dy*n.power[x0][y1] +
		dx*(1-dy)*n.power[x1][y0] +
		dx*dy*n.power[x1][y1]
}

// filteredNoise is a noise model passed through an image model
type filteredNoise struct {
	n noisePower
	m sampler
}

func (*filteredNoise) isNoiseModel() {}

func (f *filteredNoise) powerAt(fr, fc float64) float64 {
	h := cmplx.Abs(f.m.sample(fr, fc))
	return f.n.powerAt(fr, fc) * h * h
}

// shearedNoise is a noise model under a frequency-domain coordinate change
type shearedNoise struct {
	n        noisePower
	a11, a12 float64
	a21, a22 float64
}

func (*shearedNoise) isNoiseModel() {}

func (s *shearedNoise) powerAt(fr, fc float64) float64 {
	return s.n.powerAt(s.a11*fr+s.a12*fc, s.a21*fr+s.a22*fc)
}

// UncorrelatedNoise returns a white-noise model with the given variance
func (e *FFTEngine) UncorrelatedNoise(variance float64) NoiseModel {
	return &flatNoise{variance: variance}
}

// EstimateNoise estimates the power spectrum of a noise image via its
// mean-subtracted periodogram
func (e *FFTEngine) EstimateNoise(image *mat.Dense, scale float64) (NoiseModel, error) {
	if image == nil {
		return nil, errors.New(errors.ErrEmptyImage, "noise image is nil")
	}
	rows, cols := image.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Newf(errors.ErrEmptyImage,
			"noise image has empty dimension [%d,%d]", rows, cols)
	}

	mean := mat.Sum(image) / float64(rows*cols)
	centered := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			centered.Set(r, c, image.At(r, c)-mean)
		}
	}

	spec := fft2(centered)
	npix := float64(rows * cols)

	power := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		power[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			a := cmplx.Abs(spec[r][c])
			power[r][c] = a * a / npix
		}
	}

	return &gridNoise{power: power, rows: rows, cols: cols, scale: scale}, nil
}

// ConvolveNoise filters a noise model through an image model
func (e *FFTEngine) ConvolveNoise(n NoiseModel, m Model) (NoiseModel, error) {
	np, err := e.asNoisePower(n)
	if err != nil {
		return nil, err
	}
	sm, err := e.asSampler(m)
	if err != nil {
		return nil, err
	}
	return &filteredNoise{n: np, m: sm}, nil
}

// ShearNoise applies a reduced shear to a noise model
func (e *FFTEngine) ShearNoise(n NoiseModel, s shape.Shape) (NoiseModel, error) {
	np, err := e.asNoisePower(n)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	g2 := s.G1*s.G1 + s.G2*s.G2
	den := math.Sqrt(1 - g2)
	return &shearedNoise{
		n:   np,
		a11: (1 + s.G1) / den, a12: s.G2 / den,
		a21: s.G2 / den, a22: (1 - s.G1) / den,
	}, nil
}

// AddNoise adds a realization of the noise model to the image in place
func (e *FFTEngine) AddNoise(image *mat.Dense, n NoiseModel, rng *rand.Rand) error {
	np, err := e.asNoisePower(n)
	if err != nil {
		return err
	}
	if image == nil {
		return errors.New(errors.ErrEmptyImage, "target image is nil")
	}
	if rng == nil {
		return errors.New(errors.ErrInvalidInput, "rng is nil")
	}

	rows, cols := image.Dims()
	power := materializePower(np, rows, cols)
	addNoiseField(image, power, rng)
	return nil
}

// Whiten adds noise so the total noise power is flat, returning the
// resulting per-pixel variance
func (e *FFTEngine) Whiten(image *mat.Dense, n NoiseModel, rng *rand.Rand) (float64, error) {
	np, err := e.asNoisePower(n)
	if err != nil {
		return 0, err
	}
	if image == nil {
		return 0, errors.New(errors.ErrEmptyImage, "target image is nil")
	}
	if rng == nil {
		return 0, errors.New(errors.ErrInvalidInput, "rng is nil")
	}

	rows, cols := image.Dims()
	power := materializePower(np, rows, cols)

	maxPower := 0.0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if power[r][c] > maxPower {
				maxPower = power[r][c]
			}
		}
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			power[r][c] = maxPower - power[r][c]
		}
	}
	addNoiseField(image, power, rng)

	return maxPower, nil
}

// SymmetrizeNoise adds noise so the total noise power is invariant under
// rotations of 2*pi/order
func (e *FFTEngine) SymmetrizeNoise(image *mat.Dense, n NoiseModel, order int, rng *rand.Rand) error {
	np, err := e.asNoisePower(n)
	if err != nil {
		return err
	}
	if image == nil {
		return errors.New(errors.ErrEmptyImage, "target image is nil")
	}
	if rng == nil {
		return errors.New(errors.ErrInvalidInput, "rng is nil")
	}
	if order < 2 {
		return errors.Newf(errors.ErrInvalidInput,
			"symmetrization order %d must be >= 2", order).
			WithDetail("order", order)
	}

	rows, cols := image.Dims()

	// Target power is the rotational envelope: the max of the power over
	// all rotations, which is invariant under them by construction
	power := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		fr := freq(r, rows)
		power[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			fc := freq(c, cols)

			p0 := np.powerAt(fr, fc)
			target := p0
			for k := 1; k < order; k++ {
				theta := 2 * math.Pi * float64(k) / float64(order)
				cosT, sinT := math.Cos(theta), math.Sin(theta)
				p := np.powerAt(cosT*fr-sinT*fc, sinT*fr+cosT*fc)
				if p > target {
					target = p
				}
			}
			power[r][c] = target - p0
		}
	}

	addNoiseField(image, power, rng)
	return nil
}

func (e *FFTEngine) asNoisePower(n NoiseModel) (noisePower, error) {
	if n == nil {
		return nil, errors.New(errors.ErrInvalidInput, "noise model is nil")
	}
	np, ok := n.(noisePower)
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"noise model type %T was not produced by this engine", n)
	}
	return np, nil
}

func materializePower(np noisePower, rows, cols int) [][]float64 {
	power := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		fr := freq(r, rows)
		power[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			power[r][c] = np.powerAt(fr, freq(c, cols))
		}
	}
	return power
}

// addNoiseField draws a Gaussian realization with the given power spectrum
// and adds it to the image in place. Negative power entries, which can arise
// from interpolation jitter in a power difference, are clipped to zero.
func addNoiseField(image *mat.Dense, power [][]float64, rng *rand.Rand) {
	rows, cols := image.Dims()

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	white := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			white.Set(r, c, normal.Rand())
		}
	}

	spec := fft2(white)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p := power[r][c]
			if p < 0 {
				p = 0
			}
			spec[r][c] *= complex(math.Sqrt(p), 0)
		}
	}

	noise := ifft2(spec)
	image.Add(image, noise)
}
