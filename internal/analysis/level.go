// SPDX-License-Identifier: MIT
package analysis

import "math"

// Level tracks the loudness range of the input and maps RMS into [0, 1].
// The floor creeps up and the ceiling fades down, so the meter recalibrates
// itself after quiet or loud passages.
type Level struct {
	min, max, smoothed float64
}

// Audible RMS below which no floor is applied to the level.
const levelGate = 0.001

// NewLevel returns a Level with the calibration a fresh stream starts from.
func NewLevel() *Level {
	return &Level{min: 0.001, max: 0.1, smoothed: 0.1}
}

// Update feeds one frame's RMS and returns the calibrated level.
func (l *Level) Update(rms float64) float64 {
	l.min = math.Min(l.min*1.001, rms)
	l.max = math.Max(l.max*envelopeDecay, rms)
	if l.max <= l.min*1.2 {
		l.max = l.min * 2
	}
	l.smoothed = l.smoothed*(1-smoothing) + rms*smoothing

	var v float64
	switch {
	case l.max > l.min:
		v = (l.smoothed - l.min) / (l.max - l.min)
	case l.max > 0:
		v = l.smoothed / l.max
	}
	v = math.Pow(clamp(v, 0, 1), scaleCurve)
	if rms > levelGate {
		v = math.Max(v, bandFloor)
	}
	return clamp(v, 0, 1)
}
