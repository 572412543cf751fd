// SPDX-License-Identifier: MIT
package sink

import (
	"testing"
	"time"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
)

// gateSink blocks every Publish until released.
type gateSink struct {
	recordSink
	entered chan struct{}
	release chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		recordSink: recordSink{ok: true},
		entered:    make(chan struct{}, 16),
		release:    make(chan struct{}),
	}
}

func (g *gateSink) Publish(s analysis.Snapshot) bool {
	g.entered <- struct{}{}
	<-g.release
	return g.recordSink.Publish(s)
}

func TestAsyncNeverBlocksAndKeepsLatest(t *testing.T) {
	g := newGateSink()
	a := NewAsync(g)
	a.Start()

	a.Publish(testSnapshot(1))
	<-g.entered // worker is now stuck inside the sink with #1

	start := time.Now()
	for i := uint64(2); i <= 100; i++ {
		if !a.Publish(testSnapshot(i)) {
			t.Fatalf("Publish(%d) = false while running", i)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("publishing into a stalled sink took %v", elapsed)
	}

	close(g.release)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := g.snapshots()
	if len(got) != 2 {
		t.Fatalf("sink saw %d snapshots, want 2 (first and latest)", len(got))
	}
	if got[0].Seq != 1 || got[1].Seq != 100 {
		t.Errorf("sink saw seq %d, %d; want 1, 100", got[0].Seq, got[1].Seq)
	}
	if st := a.Stats(); st.Dropped != 98 || st.Published != 2 {
		t.Errorf("Stats() = %+v, want 98 dropped, 2 published", st)
	}
	if !g.closed {
		t.Error("wrapped sink not closed")
	}
}

func TestAsyncLifecycle(t *testing.T) {
	r := &recordSink{ok: true}
	a := NewAsync(r)

	if a.Publish(testSnapshot(1)) {
		t.Error("Publish() = true before Start")
	}
	a.Start()
	a.Start()

	a.Publish(testSnapshot(2))
	waitFor(t, func() bool { return len(r.snapshots()) == 1 })

	a.Stop()
	a.Stop()
	if a.Publish(testSnapshot(3)) {
		t.Error("Publish() = true after Stop")
	}

	// Restart after a stop.
	a.Start()
	a.Publish(testSnapshot(4))
	waitFor(t, func() bool { return len(r.snapshots()) == 2 })
	a.Stop()
}

func TestAsyncSurvivesPanickingSink(t *testing.T) {
	a := NewAsync(panicSink{})
	a.Start()
	defer a.Stop()

	a.Publish(testSnapshot(1))
	waitFor(t, func() bool { return a.Stats().Failed == 1 })
	a.Publish(testSnapshot(2))
	waitFor(t, func() bool { return a.Stats().Failed == 2 })
}
