// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrame is returned for frames that cannot be analyzed: wrong
	// length, no channels, or non-finite samples.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrProcessing wraps a panic recovered inside the analysis path.
	ErrProcessing = errors.New("processing failed")
)

// Frame is one block of interleaved samples in [-1, 1] as delivered by the
// capture callback. The analyzer only reads Samples and never keeps a
// reference to it past Process.
type Frame struct {
	Samples  []float32
	Channels int
}

// Len returns the number of samples per channel.
func (f Frame) Len() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Validate checks the frame shape against the expected block size.
func (f Frame) Validate(blockSize int) error {
	switch {
	case f.Channels <= 0:
		return fmt.Errorf("%w: %d channels", ErrInvalidFrame, f.Channels)
	case len(f.Samples)%f.Channels != 0:
		return fmt.Errorf("%w: %d samples not divisible by %d channels", ErrInvalidFrame, len(f.Samples), f.Channels)
	case f.Len() != blockSize:
		return fmt.Errorf("%w: got %d frames, want %d", ErrInvalidFrame, f.Len(), blockSize)
	}
	return nil
}

// downmix writes the per-frame channel mean of f into mono, which must hold
// f.Len() values. A single channel frame is copied as is.
func downmix(mono []float64, f Frame) {
	if f.Channels == 1 {
		for i, s := range f.Samples {
			mono[i] = float64(s)
		}
		return
	}
	scale := 1 / float64(f.Channels)
	for i := range mono {
		var sum float64
		base := i * f.Channels
		for c := 0; c < f.Channels; c++ {
			sum += float64(f.Samples[base+c])
		}
		mono[i] = sum * scale
	}
}
