// Package resample provides the continuous image-model engine consumed by
// the metacalibration pipeline.
//
// An Engine builds continuous models from pixel images and supports the
// operations the pipeline composes:
//
//   - Deconvolution and convolution of models
//   - Shear and dilation of models
//   - Drawing a model back onto a pixel grid
//   - Correlated-noise models: estimation, filtering, shearing, injection,
//     whitening, and 4-fold symmetrization
//
// The package ships an FFT-backed reference implementation (NewFFTEngine)
// where models are lazily composed operator chains over k-space spectra,
// sampled with Lanczos interpolation when a transform requires off-grid
// frequencies. Callers that have their own resampling backend implement
// Engine and inject it into the pipeline.
package resample
