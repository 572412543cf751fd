// SPDX-License-Identifier: MIT

// Package sink delivers analysis snapshots to consumers outside the process:
// datagram sockets, the beat FIFO, AwesomeWM over D-Bus and a websocket
// visualiser.
//
// Every Sink is best effort. Publish reports whether the snapshot was handed
// to the transport but never returns an error and never panics; failures are
// logged through a rate limiter. Sinks whose transport can stall (D-Bus,
// websocket) are wrapped in Async before being called from the capture
// callback.
package sink

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

var (
	// ErrNoReader reports that nobody is listening on the other end. It is an
	// expected condition, not a fault.
	ErrNoReader = errors.New("no reader")

	// ErrClosed is returned when writing to a closed sink.
	ErrClosed = errors.New("sink closed")
)

// Sink consumes snapshots.
type Sink interface {
	// Publish hands s to the transport. It must not block the caller for
	// longer than a bounded write and reports whether s was delivered.
	Publish(s analysis.Snapshot) bool
	Close() error
}

// Stats counts publish outcomes.
type Stats struct {
	Published uint64
	Failed    uint64
	Dropped   uint64
}

// counters is embedded by sinks that keep Stats.
type counters struct {
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func (c *counters) record(ok bool) bool {
	if ok {
		c.published.Add(1)
	} else {
		c.failed.Add(1)
	}
	return ok
}

// Stats returns a copy of the counters.
func (c *counters) Stats() Stats {
	return Stats{
		Published: c.published.Load(),
		Failed:    c.failed.Load(),
		Dropped:   c.dropped.Load(),
	}
}

// safePublish calls s.Publish and turns a panic into a failed publish.
func safePublish(s Sink, snap analysis.Snapshot) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Sink: %T panicked in Publish: %v", s, r)
			ok = false
		}
	}()
	return s.Publish(snap)
}

// Multi publishes every snapshot to each of its sinks in order.
type Multi struct {
	sinks []Sink
}

// NewMulti returns a Multi over sinks. Nil entries are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Publish reports whether at least one sink accepted s. A failing sink does
// not prevent the others from being tried.
func (m *Multi) Publish(s analysis.Snapshot) bool {
	ok := false
	for _, sk := range m.sinks {
		if safePublish(sk, s) {
			ok = true
		}
	}
	return ok
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, sk := range m.sinks {
		if err := sk.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", sk, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// LogSink writes snapshots to the debug log: every beat, and every Nth frame.
type LogSink struct {
	every uint64
	n     atomic.Uint64
}

// NewLogSink logs one in every snapshots plus all beats. every <= 0 logs beats only.
func NewLogSink(every int) *LogSink {
	l := &LogSink{}
	if every > 0 {
		l.every = uint64(every)
	}
	log.Info("Sink: logging snapshots at debug level")
	return l
}

// Publish always succeeds.
func (l *LogSink) Publish(s analysis.Snapshot) bool {
	n := l.n.Add(1)
	if !log.Enabled(log.LevelDebug) {
		return true
	}
	if s.Beat || (l.every > 0 && n%l.every == 0) {
		log.Debugf("Snapshot #%d: vol=%.4f level=%.2f peak=%v beat=%v bands=[%.2f %.2f %.2f]",
			s.Seq, s.Volume, s.Level, s.Peak, s.Beat, s.Bands.Low, s.Bands.Mid, s.Bands.High)
	}
	return true
}

// Close is a no-op.
func (l *LogSink) Close() error { return nil }

// Ensure implementations satisfy the interface at compile time.
var (
	_ Sink = (*Multi)(nil)
	_ Sink = (*LogSink)(nil)
)
