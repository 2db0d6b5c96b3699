package resample

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// fft2 computes the unnormalized 2D DFT of a real image, row transforms
// followed by column transforms. The result is in standard FFT order with
// the DC coefficient at [0][0].
func fft2(img *mat.Dense) [][]complex128 {
	rows, cols := img.Dims()

	spec := make([][]complex128, rows)
	rowFFT := fourier.NewCmplxFFT(cols)
	buf := make([]complex128, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			buf[c] = complex(img.At(r, c), 0)
		}
		spec[r] = make([]complex128, cols)
		rowFFT.Coefficients(spec[r], buf)
	}

	colFFT := fourier.NewCmplxFFT(rows)
	colIn := make([]complex128, rows)
	colOut := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			colIn[r] = spec[r][c]
		}
		colFFT.Coefficients(colOut, colIn)
		for r := 0; r < rows; r++ {
			spec[r][c] = colOut[r]
		}
	}

	return spec
}

// ifft2 computes the normalized inverse 2D DFT and returns the real part
func ifft2(spec [][]complex128) *mat.Dense {
	rows := len(spec)
	cols := len(spec[0])

	tmp := make([][]complex128, rows)
	colFFT := fourier.NewCmplxFFT(rows)
	colIn := make([]complex128, rows)
	colOut := make([]complex128, rows)
	for r := range tmp {
		tmp[r] = make([]complex128, cols)
	}
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			colIn[r] = spec[r][c]
		}
		colFFT.Sequence(colOut, colIn)
		for r := 0; r < rows; r++ {
			tmp[r][c] = colOut[r]
		}
	}

	out := mat.NewDense(rows, cols, nil)
	rowFFT := fourier.NewCmplxFFT(cols)
	rowOut := make([]complex128, cols)
	norm := 1.0 / float64(rows*cols)
	for r := 0; r < rows; r++ {
		rowFFT.Sequence(rowOut, tmp[r])
		for c := 0; c < cols; c++ {
			out.Set(r, c, real(rowOut[c])*norm)
		}
	}

	return out
}

// freq returns the DFT sample frequency in cycles per pixel for index i
// of an n-point transform
func freq(i, n int) float64 {
	if i <= n/2 {
		return float64(i) / float64(n)
	}
	return float64(i-n) / float64(n)
}
