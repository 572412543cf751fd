// SPDX-License-Identifier: MIT
package analysis

import "time"

// Band identifies one of the three display bands.
type Band int

const (
	Low Band = iota
	Mid
	High
	NumBands
)

func (b Band) String() string {
	switch b {
	case Low:
		return "low"
	case Mid:
		return "mid"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Bands holds one value per display band.
type Bands struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// Get returns the value for b.
func (b Bands) Get(band Band) float64 {
	switch band {
	case Low:
		return b.Low
	case Mid:
		return b.Mid
	default:
		return b.High
	}
}

func (b *Bands) set(band Band, v float64) {
	switch band {
	case Low:
		b.Low = v
	case Mid:
		b.Mid = v
	default:
		b.High = v
	}
}

// Snapshot is the fixed-shape result of analyzing one frame. Every field is
// always present. A Snapshot is never modified after Process returns it, so
// sinks may hold on to it (and its Spectrum) without copying.
type Snapshot struct {
	Seq      uint64    // frame sequence number, starting at 1
	Time     time.Time // when the frame was analyzed
	Volume   float64   // RMS of the mono downmix
	Level    float64   // autocalibrated volume in [0, 1]
	Spectrum []float64 // magnitude spectrum, block/2+1 bins
	Peak     bool
	Beat     bool
	Bands    Bands // scaled band energies in [0.1, 1]
}

// Stats are running counters kept by the analyzer.
type Stats struct {
	Frames    uint64
	Beats     uint64
	Overruns  uint64
	Recovered uint64
}
