// SPDX-License-Identifier: MIT
package analysis

import "gonum.org/v1/gonum/floats"

// ring is a fixed capacity FIFO over a preallocated backing array. Pushing
// onto a full ring evicts the oldest value.
type ring[T any] struct {
	buf  []T
	head int // index of the oldest value
	n    int
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// values returns a copy, oldest first.
func (r *ring[T]) values() []T {
	out := make([]T, r.n)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// EnergyHistory is the rolling window of per-frame energies used as the
// adaptive peak baseline.
type EnergyHistory struct {
	r      ring[float64]
	seeded bool
}

// NewEnergyHistory returns an empty history holding at most capacity values.
func NewEnergyHistory(capacity int) *EnergyHistory {
	return &EnergyHistory{r: newRing[float64](capacity)}
}

// Seed fills the history with copies of e so the first frames are compared
// against themselves rather than against zero.
func (h *EnergyHistory) Seed(e float64) {
	for i := range h.r.buf {
		h.r.buf[i] = e
	}
	h.r.head = 0
	h.r.n = len(h.r.buf)
	h.seeded = true
}

// Seeded reports whether Seed has been called.
func (h *EnergyHistory) Seeded() bool { return h.seeded }

// Push appends e, evicting the oldest value when full.
func (h *EnergyHistory) Push(e float64) { h.r.push(e) }

// Mean returns the average of the stored values, or 0 when empty.
func (h *EnergyHistory) Mean() float64 {
	if h.r.n == 0 {
		return 0
	}
	// Unordered sum is fine for a mean, and avoids copying.
	if h.r.n == len(h.r.buf) {
		return floats.Sum(h.r.buf) / float64(h.r.n)
	}
	end := h.r.head + h.r.n
	if end <= len(h.r.buf) {
		return floats.Sum(h.r.buf[h.r.head:end]) / float64(h.r.n)
	}
	sum := floats.Sum(h.r.buf[h.r.head:]) + floats.Sum(h.r.buf[:end-len(h.r.buf)])
	return sum / float64(h.r.n)
}

func (h *EnergyHistory) Len() int { return h.r.n }
func (h *EnergyHistory) Cap() int { return len(h.r.buf) }

// Values returns a copy of the history, oldest first.
func (h *EnergyHistory) Values() []float64 { return h.r.values() }
