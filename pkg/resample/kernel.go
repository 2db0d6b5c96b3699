package resample

import "github.com/lenstools/metacal/pkg/errors"

// Kernel is the interpolation-kernel configuration used when a model must be
// sampled at off-grid positions. The parameters follow the usual Lanczos
// conventions: Order is the number of lobes, ConserveDC renormalizes the
// kernel weights so a constant field is preserved, and Tol is the relative
// threshold below which deconvolution treats a spectral value as zero.
type Kernel struct {
	Order      int
	ConserveDC bool
	Tol        float64
}

// DefaultKernel returns the default Lanczos configuration
func DefaultKernel() Kernel {
	return Kernel{Order: 5, ConserveDC: true, Tol: 1.0e-4}
}

// WithDefaults fills unset fields from the default configuration.
// ConserveDC cannot be distinguished from an explicit false, so it is
// only defaulted together with an unset Order.
func (k Kernel) WithDefaults() Kernel {
	def := DefaultKernel()
	if k.Order == 0 {
		k.Order = def.Order
		k.ConserveDC = def.ConserveDC
	}
	if k.Tol == 0 {
		k.Tol = def.Tol
	}
	return k
}

// Validate checks the kernel configuration
func (k Kernel) Validate() error {
	if k.Order < 1 {
		return errors.Newf(errors.ErrConfig, "kernel order %d must be >= 1", k.Order).
			WithDetail("order", k.Order)
	}
	if k.Tol <= 0 || k.Tol >= 1 {
		return errors.Newf(errors.ErrConfig, "kernel tolerance %g must be in (0, 1)", k.Tol).
			WithDetail("tol", k.Tol)
	}
	return nil
}
