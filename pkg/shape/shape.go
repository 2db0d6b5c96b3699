package shape

import (
	"fmt"
	"math"

	"github.com/lenstools/metacal/pkg/errors"
)

// Shape is a two-component reduced shear (g1, g2). The total distortion
// |g| = sqrt(g1^2 + g2^2) must be less than 1 for the shape to be physical.
type Shape struct {
	G1 float64
	G2 float64
}

// New creates a Shape, validating that it lies inside the unit disc
func New(g1, g2 float64) (Shape, error) {
	s := Shape{G1: g1, G2: g2}
	if err := s.Validate(); err != nil {
		return Shape{}, err
	}
	return s, nil
}

// Zero returns the zero shear
func Zero() Shape {
	return Shape{}
}

// Validate checks that the total shear is inside the unit disc
func (s Shape) Validate() error {
	g := s.G()
	if g >= 1.0 || math.IsNaN(g) {
		return errors.Newf(errors.ErrShapeRange,
			"shear magnitude %g is out of range [0, 1)", g).
			WithDetail("g1", s.G1).
			WithDetail("g2", s.G2)
	}
	return nil
}

// G returns the total shear magnitude sqrt(g1^2 + g2^2)
func (s Shape) G() float64 {
	return math.Hypot(s.G1, s.G2)
}

// Neg returns the shape rotated by 90 degrees, i.e. both components negated
func (s Shape) Neg() Shape {
	return Shape{G1: -s.G1, G2: -s.G2}
}

// IsZero reports whether both components are exactly zero
func (s Shape) IsZero() bool {
	return s.G1 == 0 && s.G2 == 0
}

func (s Shape) String() string {
	return fmt.Sprintf("(%g, %g)", s.G1, s.G2)
}
