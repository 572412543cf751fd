// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Band scaler constants.
const (
	envelopeDecay  = 0.995 // per-frame fade of the ceiling
	envelopeGrowth = 1.005 // per-frame rise of the floor
	smoothing      = 0.3   // EMA weight of the new value
	scaleCurve     = 0.7
	bandFloor      = 0.1
	bandCeiling    = 1.0
	minBandSpread  = 0.05
)

// BandRange is a frequency range in Hz. A bin at f belongs to the band when
// From < f <= To; the low band also takes a bin sitting exactly on From.
type BandRange struct {
	From float64 `yaml:"from"`
	To   float64 `yaml:"to"`
}

// DefaultBandRanges are the low, mid and high display bands.
var DefaultBandRanges = [NumBands]BandRange{
	Low:  {From: 20, To: 250},
	Mid:  {From: 250, To: 2000},
	High: {From: 2000, To: 8000},
}

// BandEnvelope is the slow min/max tracker for one band.
type BandEnvelope struct {
	Min      float64
	Max      float64
	Smoothed float64
	started  bool
}

// BandScaler normalizes raw band energies into [0.1, 1] with independent
// automatic gain per band.
type BandScaler struct {
	env [NumBands]BandEnvelope
}

// NewBandScaler returns a scaler with every envelope unstarted.
func NewBandScaler() *BandScaler {
	return &BandScaler{}
}

// Scale feeds raw into band's envelope and returns the display value.
func (s *BandScaler) Scale(raw float64, band Band) float64 {
	if band < 0 || band >= NumBands {
		return bandFloor
	}
	if raw < 0 || math.IsNaN(raw) {
		raw = 0
	}
	e := &s.env[band]
	if !e.started {
		e.Max = raw * 1.2
		e.Min = raw * 0.8
		e.Smoothed = raw
		e.started = true
	}

	e.Max = math.Max(raw, e.Max*envelopeDecay)
	e.Min = math.Min(raw, e.Min*envelopeGrowth)
	e.Smoothed = e.Smoothed*(1-smoothing) + raw*smoothing

	lo, hi := e.Min, e.Max
	if hi <= lo {
		hi = lo * 2
		if hi <= lo {
			// Both are zero.
			return bandFloor
		}
	}
	scaled := (e.Smoothed - lo) / (hi - lo)
	scaled = math.Pow(clamp(scaled, 0, 1), scaleCurve)
	return math.Min(bandFloor+scaled*(bandCeiling-bandFloor), bandCeiling)
}

// ScaleAll scales all three bands and keeps adjacent bands at least
// minBandSpread apart so narrow input does not render as one flat bar.
func (s *BandScaler) ScaleAll(raw Bands) Bands {
	var out Bands
	prev := 0.0
	for b := Low; b < NumBands; b++ {
		v := s.Scale(raw.Get(b), b)
		if b > Low && math.Abs(v-prev) < minBandSpread {
			v += minBandSpread
		}
		prev = v
		out.set(b, v)
	}
	out.Low = clamp(out.Low, bandFloor, bandCeiling)
	out.Mid = clamp(out.Mid, bandFloor, bandCeiling)
	out.High = clamp(out.High, bandFloor, bandCeiling)
	return out
}

// Envelope returns a copy of band's envelope.
func (s *BandScaler) Envelope(band Band) BandEnvelope {
	return s.env[band]
}

// bandBins maps each band to the FFT bins whose centre falls inside it.
type bandBins [NumBands]struct{ lo, hi int } // hi exclusive

func newBandBins(ranges [NumBands]BandRange, bins int, binHz float64) bandBins {
	var bb bandBins
	for b, r := range ranges {
		lo, hi := -1, -1
		for i := 0; i < bins; i++ {
			f := float64(i) * binHz
			in := f > r.From && f <= r.To
			if Band(b) == Low && f == r.From {
				in = true
			}
			if in {
				if lo < 0 {
					lo = i
				}
				hi = i + 1
			}
		}
		if lo < 0 {
			lo, hi = 0, 0
		}
		bb[b].lo, bb[b].hi = lo, hi
	}
	return bb
}

// energies returns the mean squared magnitude of each band. A band with no
// bins reports zero.
func (bb *bandBins) energies(mag []float64) Bands {
	var out Bands
	for b := range bb {
		lo, hi := bb[b].lo, bb[b].hi
		if hi <= lo {
			continue
		}
		m := mag[lo:hi]
		out.set(Band(b), floats.Dot(m, m)/float64(hi-lo))
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
