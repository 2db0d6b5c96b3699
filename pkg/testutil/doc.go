// Package testutil provides fixtures for testing metacalibration
// components.
//
// The central fixture is MakeGaussObs, which builds an observation of a
// Gaussian galaxy convolved with a Gaussian PSF, the PSF attached. The
// convolution is done analytically by summing covariance matrices, so the
// fixtures carry no dependency on the resampling engine under test.
//
// All test data should be defined inline; every test gets isolated
// observations with no shared state.
package testutil
