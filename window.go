package main

import (
	"math"

	gwindow "gonum.org/v1/gonum/dsp/window"
)

// buildWindow returns the analysis window coefficients for n samples and
// its power gain (the mean of the squared coefficients), used to
// correct the dBFS conversion so window choice doesn't shift the noise
// floor reading.
func buildWindow(kind WindowKind, n int) (coeffs []float64, powerGain float64) {
	coeffs = make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1.0
	}

	switch kind {
	case WindowHanning:
		coeffs = gwindow.Hann(coeffs)
	case WindowBlackman:
		coeffs = gwindow.Blackman(coeffs)
	case WindowBlackmanHarris:
		coeffs = gwindow.BlackmanHarris(coeffs)
	case WindowFlatTop:
		coeffs = gwindow.FlatTop(coeffs)
	case WindowKaiser6:
		coeffs = kaiserWindow(n, 6)
	case WindowKaiser10:
		coeffs = kaiserWindow(n, 10)
	case WindowKaiser14:
		coeffs = kaiserWindow(n, 14)
	default:
		// rectangular: coeffs already all-ones
	}

	var sumSq float64
	for _, c := range coeffs {
		sumSq += c * c
	}
	powerGain = sumSq / float64(n)
	return coeffs, powerGain
}

// kaiserWindow is not in gonum.org/v1/gonum/dsp/window, which has no
// shape-parameter window; computed directly from the modified Bessel
// function of the first kind, order zero.
func kaiserWindow(n int, beta float64) []float64 {
	w := make([]float64, n)
	denom := besselI0(beta)
	m := float64(n - 1)
	for i := 0; i < n; i++ {
		x := 2*float64(i)/m - 1 // -1..1
		arg := beta * math.Sqrt(1-x*x)
		w[i] = besselI0(arg) / denom
	}
	return w
}

// besselI0 evaluates the modified Bessel function of the first kind, order
// zero, via its power series. Converges quickly for the |x| < ~20 range
// used by Kaiser window shape parameters.
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	halfX := x / 2
	for k := 1; k < 40; k++ {
		term *= (halfX * halfX) / (float64(k) * float64(k))
		sum += term
		if term < sum*1e-16 {
			break
		}
	}
	return sum
}
