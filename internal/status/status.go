// SPDX-License-Identifier: MIT

// Package status periodically logs a one-line summary of the latest analysis
// result and the active MIDI controls.
package status

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/controls"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

const (
	// MeterWidth is the number of cells in the level meter.
	MeterWidth = 30

	// MaxControls is how many MIDI controls the status line lists.
	MaxControls = 5

	// silence is the volume under which the meter is omitted.
	silence = 0.0001
)

// Meter renders level in [0, 1] as a fixed width bar, e.g. "[#####     ]".
func Meter(level float64, width int) string {
	filled := int(min(max(level, 0), 1) * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(" ", width-filled) + "]"
}

// Line formats a status line from a snapshot and the active controls.
func Line(s analysis.Snapshot, ctrls []controls.Control) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: vol=%.3f ", s.Volume)
	if s.Volume > silence {
		b.WriteString(Meter(s.Level, MeterWidth))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "peak=%t beat=%t midi=[", s.Peak, s.Beat)
	for i, c := range ctrls {
		if i == MaxControls {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.String())
	}
	b.WriteByte(']')
	return b.String()
}

// Reporter logs a status line every interval until stopped.
type Reporter struct {
	snaps    analysis.SnapshotProvider
	controls *controls.State
	interval time.Duration

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
}

// NewReporter returns a stopped reporter. ctrls may be nil.
func NewReporter(snaps analysis.SnapshotProvider, ctrls *controls.State, interval time.Duration) *Reporter {
	return &Reporter{
		snaps:    snaps,
		controls: ctrls,
		interval: interval,
	}
}

// beatHistorian is implemented by providers that keep the frames-since-beat
// counter history.
type beatHistorian interface {
	BeatHistory() []int
}

// Report logs one status line now.
func (r *Reporter) Report() {
	var active []controls.Control
	if r.controls != nil {
		active = r.controls.Active(MaxControls)
	}
	log.Infof("%s", Line(r.snaps.Last(), active))

	if log.Enabled(log.LevelDebug) {
		st := r.snaps.Stats()
		log.Debugf("Status: frames=%d beats=%d overruns=%d recovered=%d",
			st.Frames, st.Beats, st.Overruns, st.Recovered)
		if h, ok := r.snaps.(beatHistorian); ok {
			if counts := h.BeatHistory(); len(counts) > 0 {
				log.Debugf("Status: since_beat=%d over %d frames", counts[len(counts)-1], len(counts))
			}
		}
	}
}

// Start begins periodic reporting. A non-positive interval disables it.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.interval <= 0 {
		return
	}
	r.running = true
	r.quit = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.quit, r.done)
}

func (r *Reporter) loop(quit, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Stop ends reporting and waits for the loop to exit.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	quit, done := r.quit, r.done
	r.mu.Unlock()

	close(quit)
	<-done
}
