package observation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/lenstools/metacal/pkg/errors"
	"github.com/lenstools/metacal/pkg/jacobian"
)

// Observation holds a pixel image together with its inverse-variance weight
// map, a pixel-to-sky jacobian, and optional per-pixel companions (bit mask,
// noise image) plus an optional nested PSF observation. All per-pixel arrays
// must share the image's dimensions.
//
// Optional fields are explicit: a nil psf means "no psf", never a deleted
// attribute. Setters validate dimensions and return typed errors.
type Observation struct {
	image  *mat.Dense
	weight *mat.Dense
	jac    jacobian.Jacobian
	psf    *Observation
	bmask  [][]int32
	noise  *mat.Dense
	meta   map[string]interface{}
}

// Option configures an Observation at construction time
type Option func(*Observation) error

// WithWeight sets the inverse-variance weight map
func WithWeight(weight *mat.Dense) Option {
	return func(o *Observation) error { return o.SetWeight(weight) }
}

// WithJacobian sets the pixel-to-sky jacobian
func WithJacobian(j jacobian.Jacobian) Option {
	return func(o *Observation) error { o.jac = j; return nil }
}

// WithPSF attaches a PSF observation
func WithPSF(psf *Observation) Option {
	return func(o *Observation) error { return o.SetPSF(psf) }
}

// WithBMask sets the bit mask
func WithBMask(bmask [][]int32) Option {
	return func(o *Observation) error { return o.SetBMask(bmask) }
}

// WithNoise sets the noise image
func WithNoise(noise *mat.Dense) Option {
	return func(o *Observation) error { return o.SetNoise(noise) }
}

// WithMeta sets the metadata map
func WithMeta(meta map[string]interface{}) Option {
	return func(o *Observation) error { o.meta = meta; return nil }
}

// New creates an Observation from an image. The weight defaults to uniform
// 1.0 and the jacobian to a unit jacobian centered on the image.
func New(image *mat.Dense, opts ...Option) (*Observation, error) {
	if image == nil {
		return nil, errors.New(errors.ErrEmptyImage, "observation image is nil")
	}
	rows, cols := image.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Newf(errors.ErrEmptyImage,
			"observation image has empty dimension [%d,%d]", rows, cols)
	}

	obs := &Observation{
		image: mat.DenseCopyOf(image),
		jac:   jacobian.Unit(float64(rows-1)/2, float64(cols-1)/2),
		meta:  map[string]interface{}{},
	}

	for _, opt := range opts {
		if err := opt(obs); err != nil {
			return nil, err
		}
	}

	if obs.weight == nil {
		w := mat.NewDense(rows, cols, nil)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				w.Set(r, c, 1.0)
			}
		}
		obs.weight = w
	}

	return obs, nil
}

// Image returns the pixel image. Callers must not modify it.
func (o *Observation) Image() *mat.Dense { return o.image }

// Weight returns the inverse-variance weight map. Callers must not modify it.
func (o *Observation) Weight() *mat.Dense { return o.weight }

// Jacobian returns the pixel-to-sky jacobian
func (o *Observation) Jacobian() jacobian.Jacobian { return o.jac }

// Meta returns the metadata map
func (o *Observation) Meta() map[string]interface{} { return o.meta }

// Dims returns the image dimensions
func (o *Observation) Dims() (rows, cols int) { return o.image.Dims() }

// SetWeight replaces the weight map, validating its dimensions
func (o *Observation) SetWeight(weight *mat.Dense) error {
	if weight == nil {
		return errors.New(errors.ErrInvalidInput, "weight is nil")
	}
	if err := o.checkDims(weight, "weight"); err != nil {
		return err
	}
	o.weight = mat.DenseCopyOf(weight)
	return nil
}

// SetJacobian replaces the jacobian
func (o *Observation) SetJacobian(j jacobian.Jacobian) {
	o.jac = j
}

// SetPSF attaches a PSF observation. The PSF may not itself carry a PSF;
// one level of nesting is the contract.
func (o *Observation) SetPSF(psf *Observation) error {
	if psf == nil {
		return errors.New(errors.ErrInvalidInput, "psf observation is nil")
	}
	if psf.HasPSF() {
		return errors.New(errors.ErrInvalidInput,
			"psf observation may not have a psf of its own")
	}
	o.psf = psf
	return nil
}

// HasPSF reports whether a PSF observation is attached
func (o *Observation) HasPSF() bool { return o.psf != nil }

// PSF returns the attached PSF observation
func (o *Observation) PSF() (*Observation, error) {
	if o.psf == nil {
		return nil, errors.New(errors.ErrMissingPSF, "observation has no psf set")
	}
	return o.psf, nil
}

// SetBMask sets the bit mask, validating its dimensions
func (o *Observation) SetBMask(bmask [][]int32) error {
	rows, cols := o.image.Dims()
	if len(bmask) != rows {
		return errors.Newf(errors.ErrShapeMismatch,
			"bmask has %d rows, image has %d", len(bmask), rows).
			WithDetail("imageRows", rows).
			WithDetail("bmaskRows", len(bmask))
	}
	for r := range bmask {
		if len(bmask[r]) != cols {
			return errors.Newf(errors.ErrShapeMismatch,
				"bmask row %d has %d cols, image has %d", r, len(bmask[r]), cols).
				WithDetail("imageCols", cols).
				WithDetail("bmaskCols", len(bmask[r]))
		}
	}
	o.bmask = bmask
	return nil
}

// HasBMask reports whether a bit mask is set
func (o *Observation) HasBMask() bool { return o.bmask != nil }

// BMask returns the bit mask, or nil if none is set
func (o *Observation) BMask() [][]int32 { return o.bmask }

// SetNoise sets the noise image, validating its dimensions
func (o *Observation) SetNoise(noise *mat.Dense) error {
	if noise == nil {
		return errors.New(errors.ErrInvalidInput, "noise image is nil")
	}
	if err := o.checkDims(noise, "noise"); err != nil {
		return err
	}
	o.noise = mat.DenseCopyOf(noise)
	return nil
}

// HasNoise reports whether a noise image is set
func (o *Observation) HasNoise() bool { return o.noise != nil }

// Noise returns the noise image, or nil if none is set
func (o *Observation) Noise() *mat.Dense { return o.noise }

// UpdateMeta merges entries into the metadata map
func (o *Observation) UpdateMeta(meta map[string]interface{}) {
	for k, v := range meta {
		o.meta[k] = v
	}
}

// S2N returns the simple signal-to-noise estimator
// sum(I)/sqrt(sum(1/w)) over pixels with positive weight,
// or -9999 when no pixel has positive weight
func (o *Observation) S2N() float64 {
	isum, vsum, _ := o.S2NSums()
	if vsum > 0 {
		return isum / math.Sqrt(vsum)
	}
	return -9999.0
}

// S2NSums returns the flux sum, variance sum, and pixel count entering S2N
func (o *Observation) S2NSums() (isum, vsum float64, npix int) {
	rows, cols := o.image.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			w := o.weight.At(r, c)
			if w > 0 {
				isum += o.image.At(r, c)
				vsum += 1.0 / w
				npix++
			}
		}
	}
	return isum, vsum, npix
}

// MedianErr returns the per-pixel error level sqrt(1/median(weight)),
// used as the noise level for whitening and symmetrization
func (o *Observation) MedianErr() float64 {
	rows, cols := o.weight.Dims()
	vals := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			vals = append(vals, o.weight.At(r, c))
		}
	}
	med := median(vals)
	if med <= 0 {
		return 0
	}
	return math.Sqrt(1.0 / med)
}

// Copy returns a deep copy of the observation
func (o *Observation) Copy() *Observation {
	cp := &Observation{
		image:  mat.DenseCopyOf(o.image),
		weight: mat.DenseCopyOf(o.weight),
		jac:    o.jac,
		meta:   map[string]interface{}{},
	}
	for k, v := range o.meta {
		cp.meta[k] = v
	}
	if o.psf != nil {
		cp.psf = o.psf.Copy()
	}
	if o.bmask != nil {
		bm := make([][]int32, len(o.bmask))
		for r := range o.bmask {
			bm[r] = append([]int32(nil), o.bmask[r]...)
		}
		cp.bmask = bm
	}
	if o.noise != nil {
		cp.noise = mat.DenseCopyOf(o.noise)
	}
	return cp
}

func (o *Observation) checkDims(m *mat.Dense, name string) error {
	rows, cols := o.image.Dims()
	mr, mc := m.Dims()
	if mr != rows || mc != cols {
		return errors.Newf(errors.ErrShapeMismatch,
			"%s dims [%d,%d] do not match image dims [%d,%d]",
			name, mr, mc, rows, cols).
			WithDetail("imageRows", rows).
			WithDetail("imageCols", cols).
			WithDetail("gotRows", mr).
			WithDetail("gotCols", mc)
	}
	return nil
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}
