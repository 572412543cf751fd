// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the window applied before the FFT.
type WindowFunc int

const (
	Rectangular WindowFunc = iota
	BartlettHann
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = map[WindowFunc]string{
	Rectangular:     "none",
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Hann:            "hann",
	Hamming:         "hamming",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
}

func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc. Unknown
// names return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "rectangular", "":
		return Rectangular, nil
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown window function %q", name)
	}
}

// windowCoefficients returns n coefficients of w.
func windowCoefficients(n int, w WindowFunc) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch w {
	case Rectangular:
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
	return coeffs
}

// spectrum computes the magnitude of the real FFT of a mono block. All
// buffers are allocated once; transform does not allocate.
type spectrum struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	window     []float64
	input      []float64
	coeffs     []complex128
}

func newSpectrum(size int, sampleRate float64, w WindowFunc) *spectrum {
	return &spectrum{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		window:     windowCoefficients(size, w),
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
	}
}

// bins returns the number of magnitude values per block.
func (s *spectrum) bins() int { return s.size/2 + 1 }

// binHz returns the width of one bin in Hz.
func (s *spectrum) binHz() float64 { return s.fft.Freq(1) * s.sampleRate }

// transform writes |FFT(mono*window)| into out, which must hold bins() values.
func (s *spectrum) transform(out, mono []float64) {
	for i, v := range mono {
		s.input[i] = v * s.window[i]
	}
	s.fft.Coefficients(s.coeffs, s.input)
	for i, c := range s.coeffs {
		out[i] = cmplx.Abs(c)
	}
}
