// Package shear converts ensembles of per-object shape and response
// measurements into shear estimates with covariance.
//
// Three estimators are provided: a plain mean with naive error propagation
// (Mean), a chunked delete-one jackknife (Jackknife, JackknifeWeighted),
// and a bootstrap that resamples the shape and response ensembles
// independently (Bootstrap), for the case where the responses come from a
// separate calibration sample.
package shear
