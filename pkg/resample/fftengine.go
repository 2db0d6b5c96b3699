package resample

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/lenstools/metacal/pkg/errors"
	"github.com/lenstools/metacal/pkg/logging"
	"github.com/lenstools/metacal/pkg/shape"
)

// FFTEngine is the bundled Engine implementation. Models are lazy operator
// chains over k-space spectra; nothing is evaluated until Draw samples the
// chain on a target frequency grid.
type FFTEngine struct{}

// NewFFTEngine creates an FFT-backed resampling engine
func NewFFTEngine() *FFTEngine {
	return &FFTEngine{}
}

// sampler is the internal model contract: evaluate the centered spectrum at
// a frequency in cycles per pixel.
type sampler interface {
	Model
	sample(fr, fc float64) complex128
	gridInfo() (rows, cols int, scale float64, kernel Kernel, ok bool)
}

// gridModel holds the centered spectrum of a pixel image
type gridModel struct {
	spec   [][]complex128
	rows   int
	cols   int
	scale  float64
	kernel Kernel
}

func (*gridModel) isModel() {}

func (g *gridModel) gridInfo() (int, int, float64, Kernel, bool) {
	return g.rows, g.cols, g.scale, g.kernel, true
}

func (g *gridModel) sample(fr, fc float64) complex128 {
	// The spectrum is periodic in frequency with period 1; map to a
	// continuous index and interpolate
	x := snapIndex(wrapIndex(fr*float64(g.rows), g.rows), g.rows)
	y := snapIndex(wrapIndex(fc*float64(g.cols), g.cols), g.cols)

	a := g.kernel.Order
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))

	var sum complex128
	var wsum float64
	for i := x0 - a + 1; i <= x0+a; i++ {
		wx := lanczos(x-float64(i), a)
		if wx == 0 {
			continue
		}
		ri := ((i % g.rows) + g.rows) % g.rows
		for j := y0 - a + 1; j <= y0+a; j++ {
			wy := lanczos(y-float64(j), a)
			if wy == 0 {
				continue
			}
			ci := ((j % g.cols) + g.cols) % g.cols
			w := wx * wy
			sum += complex(w, 0) * g.spec[ri][ci]
			wsum += w
		}
	}

	if g.kernel.ConserveDC && wsum != 0 {
		sum /= complex(wsum, 0)
	}
	return sum
}

// pixelModel is the analytic spectrum of a square unit pixel
type pixelModel struct {
	scale float64
}

func (*pixelModel) isModel() {}

func (p *pixelModel) gridInfo() (int, int, float64, Kernel, bool) {
	return 0, 0, p.scale, Kernel{}, false
}

func (p *pixelModel) sample(fr, fc float64) complex128 {
	return complex(sinc(math.Pi*fr)*sinc(math.Pi*fc), 0)
}

// recipModel is the deconvolution inverse of a model
type recipModel struct {
	m   sampler
	tol float64
	ref float64
}

func (*recipModel) isModel() {}

func (r *recipModel) gridInfo() (int, int, float64, Kernel, bool) {
	return r.m.gridInfo()
}

func (r *recipModel) sample(fr, fc float64) complex128 {
	v := r.m.sample(fr, fc)
	if cmplx.Abs(v) < r.tol*r.ref {
		return 0
	}
	return 1 / v
}

// productModel is the convolution of two models
type productModel struct {
	a, b sampler
}

func (*productModel) isModel() {}

func (p *productModel) gridInfo() (int, int, float64, Kernel, bool) {
	if rows, cols, scale, k, ok := p.a.gridInfo(); ok {
		return rows, cols, scale, k, true
	}
	return p.b.gridInfo()
}

func (p *productModel) sample(fr, fc float64) complex128 {
	return p.a.sample(fr, fc) * p.b.sample(fr, fc)
}

// remapModel applies a linear frequency-domain coordinate change, which
// realizes shear and dilation of the underlying model
type remapModel struct {
	m        sampler
	a11, a12 float64
	a21, a22 float64
}

func (*remapModel) isModel() {}

func (r *remapModel) gridInfo() (int, int, float64, Kernel, bool) {
	return r.m.gridInfo()
}

func (r *remapModel) sample(fr, fc float64) complex128 {
	return r.m.sample(r.a11*fr+r.a12*fc, r.a21*fr+r.a22*fc)
}

// Model builds a continuous model from a pixel image
func (e *FFTEngine) Model(image *mat.Dense, scale float64, kernel Kernel) (Model, error) {
	if image == nil {
		return nil, errors.New(errors.ErrEmptyImage, "model image is nil")
	}
	rows, cols := image.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Newf(errors.ErrEmptyImage,
			"model image has empty dimension [%d,%d]", rows, cols)
	}
	kernel = kernel.WithDefaults()
	if err := kernel.Validate(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, errors.Newf(errors.ErrInvalidInput, "pixel scale %g must be positive", scale).
			WithDetail("scale", scale)
	}

	spec := fft2(image)

	// Shift the nominal image center to the model origin so the spectrum
	// is smooth and off-grid sampling stays accurate
	cr := float64(rows-1) / 2
	cc := float64(cols-1) / 2
	for r := 0; r < rows; r++ {
		fr := freq(r, rows)
		for c := 0; c < cols; c++ {
			fc := freq(c, cols)
			spec[r][c] *= cmplx.Exp(complex(0, 2*math.Pi*(fr*cr+fc*cc)))
		}
	}

	return &gridModel{spec: spec, rows: rows, cols: cols, scale: scale, kernel: kernel}, nil
}

// Pixel returns the model of a square unit pixel
func (e *FFTEngine) Pixel(scale float64) Model {
	return &pixelModel{scale: scale}
}

// Deconvolve returns the deconvolution inverse of a model
func (e *FFTEngine) Deconvolve(m Model) (Model, error) {
	sm, err := e.asSampler(m)
	if err != nil {
		return nil, err
	}

	dc := cmplx.Abs(sm.sample(0, 0))
	if dc == 0 {
		return nil, errors.New(errors.ErrEngine, "cannot deconvolve a model with zero total flux")
	}

	tol := DefaultKernel().Tol
	if _, _, _, k, ok := sm.gridInfo(); ok {
		tol = k.Tol
	}

	return &recipModel{m: sm, tol: tol, ref: dc}, nil
}

// Convolve returns the convolution of two models
func (e *FFTEngine) Convolve(a, b Model) (Model, error) {
	sa, err := e.asSampler(a)
	if err != nil {
		return nil, err
	}
	sb, err := e.asSampler(b)
	if err != nil {
		return nil, err
	}
	return &productModel{a: sa, b: sb}, nil
}

// Shear applies a reduced shear to a model
func (e *FFTEngine) Shear(m Model, s shape.Shape) (Model, error) {
	sm, err := e.asSampler(m)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	// Area-preserving shear matrix; the spectrum of f(A^-1 x) is F(A^T f),
	// and A is symmetric for a pure shear
	g2 := s.G1*s.G1 + s.G2*s.G2
	den := math.Sqrt(1 - g2)
	return &remapModel{
		m:   sm,
		a11: (1 + s.G1) / den, a12: s.G2 / den,
		a21: s.G2 / den, a22: (1 - s.G1) / den,
	}, nil
}

// Dilate enlarges a model by the given factor, preserving flux
func (e *FFTEngine) Dilate(m Model, factor float64) (Model, error) {
	sm, err := e.asSampler(m)
	if err != nil {
		return nil, err
	}
	if factor <= 0 {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"dilation factor %g must be positive", factor).
			WithDetail("factor", factor)
	}
	if factor == 1 {
		return sm, nil
	}
	return &remapModel{m: sm, a11: factor, a22: factor}, nil
}

// Draw renders a model onto a pixel grid
func (e *FFTEngine) Draw(m Model, rows, cols int, scale float64) (*mat.Dense, error) {
	logger := logging.GetLogger("resample.engine")

	sm, err := e.asSampler(m)
	if err != nil {
		return nil, err
	}
	if rows <= 0 || cols <= 0 {
		return nil, errors.Newf(errors.ErrDraw,
			"draw grid [%d,%d] is empty", rows, cols).
			WithDetail("rows", rows).
			WithDetail("cols", cols)
	}
	if scale <= 0 {
		return nil, errors.Newf(errors.ErrDraw, "draw scale %g must be positive", scale).
			WithDetail("scale", scale)
	}

	logger.Trace().Int("rows", rows).Int("cols", cols).Float64("scale", scale).Msg("Drawing model")

	cr := float64(rows-1) / 2
	cc := float64(cols-1) / 2

	spec := make([][]complex128, rows)
	for r := 0; r < rows; r++ {
		fr := freq(r, rows)
		spec[r] = make([]complex128, cols)
		for c := 0; c < cols; c++ {
			fc := freq(c, cols)
			// Place the model origin back on the grid's center pixel
			phase := cmplx.Exp(complex(0, -2*math.Pi*(fr*cr+fc*cc)))
			spec[r][c] = sm.sample(fr, fc) * phase
		}
	}

	return ifft2(spec), nil
}

func (e *FFTEngine) asSampler(m Model) (sampler, error) {
	if m == nil {
		return nil, errors.New(errors.ErrInvalidInput, "model is nil")
	}
	sm, ok := m.(sampler)
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidInput,
			"model type %T was not produced by this engine", m)
	}
	return sm, nil
}

// lanczos evaluates the a-lobed Lanczos kernel at offset t
func lanczos(t float64, a int) float64 {
	if t == 0 {
		return 1
	}
	af := float64(a)
	if t <= -af || t >= af {
		return 0
	}
	pt := math.Pi * t
	return af * math.Sin(pt) * math.Sin(pt/af) / (pt * pt)
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(x) / x
}

// wrapIndex maps a continuous index onto [0, n). Adding the period to a
// tiny negative remainder can round to exactly n, which must wrap to 0.
func wrapIndex(x float64, n int) float64 {
	nf := float64(n)
	x = math.Mod(x, nf)
	if x < 0 {
		x += nf
	}
	if x >= nf {
		x = 0
	}
	return x
}

// snapIndex collapses float jitter so sampling on a grid point is exact
func snapIndex(x float64, n int) float64 {
	r := math.Round(x)
	if math.Abs(x-r) < 1e-9 {
		return wrapIndex(r, n)
	}
	return x
}
