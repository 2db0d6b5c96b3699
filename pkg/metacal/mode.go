package metacal

import "fmt"

// PSFMode selects how the target PSF is built
type PSFMode int

const (
	// PSFModeGalShear dilates the PSF only; the shear is applied to the
	// galaxy. Used for calculating R.
	PSFModeGalShear PSFMode = iota

	// PSFModePSFShear dilates the PSF and then shears the pixel-convolved
	// PSF itself. Used for calculating Rpsf.
	PSFModePSFShear
)

func (m PSFMode) String() string {
	switch m {
	case PSFModeGalShear:
		return "gal_shear"
	case PSFModePSFShear:
		return "psf_shear"
	default:
		return fmt.Sprintf("PSFMode(%d)", int(m))
	}
}
