package jacobian

import (
	"fmt"
	"math"

	"github.com/lenstools/metacal/pkg/errors"
)

// Jacobian is a local affine mapping from pixel (row, col) coordinates to
// tangent-plane sky coordinates (u, v), anchored at a reference pixel center.
type Jacobian struct {
	// Reference pixel center
	Row float64
	Col float64

	// Partial derivatives of the sky coordinates with respect to pixels
	DudRow float64
	DudCol float64
	DvdRow float64
	DvdCol float64
}

// New creates a Jacobian centered at (row, col) with the given derivatives.
// A degenerate (zero-determinant) mapping is rejected.
func New(row, col, dudrow, dudcol, dvdrow, dvdcol float64) (Jacobian, error) {
	j := Jacobian{
		Row:    row,
		Col:    col,
		DudRow: dudrow,
		DudCol: dudcol,
		DvdRow: dvdrow,
		DvdCol: dvdcol,
	}
	if j.Det() == 0 {
		return Jacobian{}, errors.New(errors.ErrInvalidInput,
			"jacobian determinant is zero").
			WithDetail("dudrow", dudrow).
			WithDetail("dudcol", dudcol).
			WithDetail("dvdrow", dvdrow).
			WithDetail("dvdcol", dvdcol)
	}
	return j, nil
}

// Unit returns a unit jacobian (scale 1, no rotation or shear) centered
// at the given pixel
func Unit(row, col float64) Jacobian {
	return Jacobian{
		Row:    row,
		Col:    col,
		DudRow: 1, DudCol: 0,
		DvdRow: 0, DvdCol: 1,
	}
}

// Simple returns a pure-scale jacobian centered at the given pixel
func Simple(row, col, scale float64) Jacobian {
	return Jacobian{
		Row:    row,
		Col:    col,
		DudRow: scale, DudCol: 0,
		DvdRow: 0, DvdCol: scale,
	}
}

// Det returns the determinant of the pixel-to-sky mapping
func (j Jacobian) Det() float64 {
	return j.DudRow*j.DvdCol - j.DudCol*j.DvdRow
}

// Scale returns the linear pixel scale sqrt(|det|)
func (j Jacobian) Scale() float64 {
	return math.Sqrt(math.Abs(j.Det()))
}

// MaxLinearScale returns the largest singular value of the mapping, the
// scale used when drawing derived images to a square pixel grid
func (j Jacobian) MaxLinearScale() float64 {
	// Singular values of [[a b],[c d]] via the standard closed form
	a, b, c, d := j.DudRow, j.DudCol, j.DvdRow, j.DvdCol
	q := a*a + b*b + c*c + d*d
	r := math.Hypot(a*a+b*b-c*c-d*d, 2*(a*c+b*d))
	return math.Sqrt((q + r) / 2)
}

func (j Jacobian) String() string {
	return fmt.Sprintf("jacobian{row:%g col:%g dudrow:%g dudcol:%g dvdrow:%g dvdcol:%g}",
		j.Row, j.Col, j.DudRow, j.DudCol, j.DvdRow, j.DvdCol)
}
