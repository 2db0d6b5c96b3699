package resample

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/lenstools/metacal/pkg/shape"
)

// Model is an opaque continuous image model produced by an Engine.
// Models are immutable; every operation returns a new model.
type Model interface {
	isModel()
}

// NoiseModel is an opaque description of stationary correlated noise,
// produced and consumed by an Engine.
type NoiseModel interface {
	isNoiseModel()
}

// Engine is the image-resampling collaborator consumed by the
// metacalibration pipeline.
type Engine interface {
	// Model builds a continuous model from a pixel image with the given
	// pixel scale, using the kernel configuration for off-grid sampling.
	// The model is centered: the image's nominal center pixel maps to the
	// model origin.
	Model(image *mat.Dense, scale float64, kernel Kernel) (Model, error)

	// Pixel returns the model of a square unit pixel at the given scale
	Pixel(scale float64) Model

	// Deconvolve returns the deconvolution inverse of a model
	Deconvolve(m Model) (Model, error)

	// Convolve returns the convolution of two models
	Convolve(a, b Model) (Model, error)

	// Shear applies a reduced shear to a model
	Shear(m Model, s shape.Shape) (Model, error)

	// Dilate enlarges a model by the given factor, preserving flux
	Dilate(m Model, factor float64) (Model, error)

	// Draw renders a model onto a rows x cols pixel grid at the given
	// scale, with no additional pixel convolution
	Draw(m Model, rows, cols int, scale float64) (*mat.Dense, error)

	// UncorrelatedNoise returns a white-noise model with the given
	// per-pixel variance
	UncorrelatedNoise(variance float64) NoiseModel

	// EstimateNoise estimates the correlated-noise model of an image
	EstimateNoise(image *mat.Dense, scale float64) (NoiseModel, error)

	// ConvolveNoise filters a noise model through an image model
	ConvolveNoise(n NoiseModel, m Model) (NoiseModel, error)

	// ShearNoise applies a reduced shear to a noise model
	ShearNoise(n NoiseModel, s shape.Shape) (NoiseModel, error)

	// AddNoise adds a realization of the noise model to the image in place
	AddNoise(image *mat.Dense, n NoiseModel, rng *rand.Rand) error

	// Whiten adds noise to the image in place so the total noise is white,
	// returning the resulting per-pixel variance
	Whiten(image *mat.Dense, n NoiseModel, rng *rand.Rand) (float64, error)

	// SymmetrizeNoise adds noise to the image in place so the total noise
	// is symmetric under rotations of 2*pi/order, for even order
	SymmetrizeNoise(image *mat.Dense, n NoiseModel, order int, rng *rand.Rand) error
}
