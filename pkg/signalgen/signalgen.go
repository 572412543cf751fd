// Package signalgen builds deterministic interleaved float32 test signals for
// exercising the analyzer and sinks without an audio device.
package signalgen

import "math"

// Silence returns frames*channels zero samples.
func Silence(frames, channels int) []float32 {
	return make([]float32, frames*channels)
}

// Constant returns a block where every sample on every channel equals v.
func Constant(frames, channels int, v float32) []float32 {
	buf := make([]float32, frames*channels)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

// Sine returns an interleaved sine at frequency Hz with the given peak amplitude,
// identical on every channel.
func Sine(frames, channels int, sampleRate, frequency, amplitude float64) []float32 {
	buf := make([]float32, frames*channels)
	for i := range frames {
		tm := float64(i) / sampleRate
		v := float32(amplitude * math.Sin(2*math.Pi*frequency*tm))
		for c := range channels {
			buf[i*channels+c] = v
		}
	}
	return buf
}

// Complex returns a 440 Hz fundamental with its second and third harmonics.
func Complex(frames, channels int, sampleRate float64) []float32 {
	buf := make([]float32, frames*channels)
	for i := range frames {
		tm := float64(i) / sampleRate
		v := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		for c := range channels {
			buf[i*channels+c] = float32(v * 0.9)
		}
	}
	return buf
}

// ForEnergy returns a mono-equivalent block whose mean squared sample equals
// energy. Used to drive peak detection with exact energy values.
func ForEnergy(frames, channels int, energy float64) []float32 {
	return Constant(frames, channels, float32(math.Sqrt(energy)))
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
