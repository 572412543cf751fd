// SPDX-License-Identifier: MIT

// Package controls holds the latest value of each MIDI control change and the
// listener that feeds it.
package controls

import (
	"fmt"
	"sync"
)

// NumControllers is the size of the MIDI control change range.
const NumControllers = 128

// Control is one controller's latest value.
type Control struct {
	Number uint8
	Value  uint8
}

// String formats the control as the status line shows it, e.g. "CC7:100".
func (c Control) String() string {
	return fmt.Sprintf("CC%d:%d", c.Number, c.Value)
}

// State is the latest value per controller, safe for one writer and any
// number of readers. Readers only ever see copies.
type State struct {
	mu     sync.RWMutex
	values [NumControllers]uint8
	seen   [NumControllers]bool
	order  []uint8 // controller numbers in first-seen order
}

func NewState() *State {
	return &State{order: make([]uint8, 0, NumControllers)}
}

// Set records value for controller cc. Numbers outside the MIDI range are ignored.
func (s *State) Set(cc, value uint8) {
	if cc >= NumControllers {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seen[cc] {
		s.seen[cc] = true
		s.order = append(s.order, cc)
	}
	s.values[cc] = value
}

// Get returns the latest value for cc and whether it has been set.
func (s *State) Get(cc uint8) (uint8, bool) {
	if cc >= NumControllers {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[cc], s.seen[cc]
}

// Len returns the number of controllers that have been set.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns a point-in-time copy of all set controls in first-seen order.
func (s *State) Snapshot() []Control {
	return s.Active(NumControllers)
}

// Active returns up to n set controls in first-seen order.
func (s *State) Active(n int) []Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n = min(n, len(s.order))
	out := make([]Control, n)
	for i, cc := range s.order[:n] {
		out[i] = Control{Number: cc, Value: s.values[cc]}
	}
	return out
}
