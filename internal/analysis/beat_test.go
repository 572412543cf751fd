// SPDX-License-Identifier: MIT
package analysis

import (
	"math/rand/v2"
	"testing"
)

func TestBeatTrackerFirstPeakIsBeat(t *testing.T) {
	b := NewBeatTracker()
	if _, ok := b.SinceBeat(); ok {
		t.Fatal("counter defined before first beat")
	}
	if b.Update(false, 10) {
		t.Fatal("beat without peak")
	}
	if _, ok := b.SinceBeat(); ok {
		t.Fatal("counter started without a beat")
	}
	if !b.Update(true, 10) {
		t.Fatal("first peak did not produce a beat")
	}
	if n, ok := b.SinceBeat(); !ok || n != 0 {
		t.Errorf("SinceBeat() = %d, %v; want 0, true", n, ok)
	}
}

func TestBeatTrackerRefractory(t *testing.T) {
	tests := []struct {
		name     string
		interval int
	}{
		{"zero", 0},
		{"one", 1},
		{"default", DefaultMinBeatInterval},
		{"long", 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewPCG(7, uint64(tt.interval)))
			b := NewBeatTracker()
			lastBeat := -1
			beats := 0
			for frame := 0; frame < 5000; frame++ {
				if !b.Update(rng.IntN(3) == 0, tt.interval) {
					continue
				}
				beats++
				if lastBeat >= 0 && frame < lastBeat+tt.interval+1 {
					t.Fatalf("beat at frame %d only %d frames after beat at %d", frame, frame-lastBeat, lastBeat)
				}
				lastBeat = frame
			}
			if beats == 0 {
				t.Fatal("no beats detected")
			}
		})
	}
}

func TestBeatTrackerAcceptsAfterInterval(t *testing.T) {
	b := NewBeatTracker()
	b.Update(true, 2)
	// Counter checked before incrementing: 0, 1, 2 are inside the interval.
	for i := 0; i < 3; i++ {
		if b.Update(true, 2) {
			t.Fatalf("beat %d frames after previous", i+1)
		}
	}
	if !b.Update(true, 2) {
		t.Error("expected beat once the counter exceeds the interval")
	}
}

func TestBeatTrackerHistoryCapped(t *testing.T) {
	b := NewBeatTracker()
	b.Update(true, 10)
	for i := 0; i < 500; i++ {
		b.Update(false, 10)
	}
	h := b.History()
	if len(h) != beatHistorySize {
		t.Fatalf("len(History()) = %d, want %d", len(h), beatHistorySize)
	}
	if h[len(h)-1] != 500 {
		t.Errorf("newest history entry = %d, want 500", h[len(h)-1])
	}
}
