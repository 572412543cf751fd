// SPDX-License-Identifier: MIT
package analysis

// beatHistorySize bounds the diagnostic interval history.
const beatHistorySize = 100

// BeatTracker turns the peak signal into beats, suppressing any peak that
// arrives within the refractory interval of the previous beat.
type BeatTracker struct {
	sinceBeat int // frames since the last beat, -1 before the first one
	history   ring[int]
}

// NewBeatTracker returns a tracker that has not seen a beat yet.
func NewBeatTracker() *BeatTracker {
	return &BeatTracker{sinceBeat: -1, history: newRing[int](beatHistorySize)}
}

// Update consumes one frame's peak flag and reports whether it is a beat.
// A beat requires a peak and more than minInterval frames since the last beat.
func (b *BeatTracker) Update(peak bool, minInterval int) bool {
	if peak && (b.sinceBeat < 0 || b.sinceBeat > minInterval) {
		b.sinceBeat = 0
		b.history.push(0)
		return true
	}
	if b.sinceBeat >= 0 {
		b.sinceBeat++
		b.history.push(b.sinceBeat)
	}
	return false
}

// SinceBeat returns the frames since the last beat and false before the
// first beat.
func (b *BeatTracker) SinceBeat() (int, bool) {
	return b.sinceBeat, b.sinceBeat >= 0
}

// History returns the recorded counter values, oldest first, at most 100.
func (b *BeatTracker) History() []int { return b.history.values() }
