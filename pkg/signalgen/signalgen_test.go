// SPDX-License-Identifier: MIT
package signalgen

import (
	"math"
	"testing"
)

const (
	testFrames     = 1024
	testSampleRate = 48000
)

func TestSineIsInterleavedAndBounded(t *testing.T) {
	buf := Sine(testFrames, 2, testSampleRate, 440, 0.5)
	if len(buf) != testFrames*2 {
		t.Fatalf("len = %d, want %d", len(buf), testFrames*2)
	}
	for i := 0; i < len(buf); i += 2 {
		if buf[i] != buf[i+1] {
			t.Fatalf("channels differ at frame %d: %f vs %f", i/2, buf[i], buf[i+1])
		}
		if math.Abs(float64(buf[i])) > 0.5+1e-6 {
			t.Fatalf("sample %d exceeds amplitude: %f", i, buf[i])
		}
	}
}

func TestForEnergy(t *testing.T) {
	buf := ForEnergy(512, 1, 0.25)
	var sum float64
	for _, s := range buf {
		sum += float64(s) * float64(s)
	}
	if got := sum / 512; math.Abs(got-0.25) > 1e-6 {
		t.Errorf("mean square = %f, want 0.25", got)
	}
}

func TestFindPeakBin(t *testing.T) {
	mags := make([]float64, 64)
	for i := range mags {
		mags[i] = math.Exp(-0.05 * math.Pow(float64(i-20), 2))
	}

	tests := []struct {
		name       string
		start, end int
		want       int
	}{
		{"Full range", 0, 63, 20},
		{"Clamped range", -5, 100, 20},
		{"Sub range below peak", 0, 10, 10},
		{"Sub range above peak", 30, 63, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(mags, tt.start, tt.end); got != tt.want {
				t.Errorf("FindPeakBin(%d, %d) = %d, want %d", tt.start, tt.end, got, tt.want)
			}
		})
	}

	if got := FindPeakBin(nil, 0, 10); got != 0 {
		t.Errorf("FindPeakBin(nil) = %d, want 0", got)
	}
}
