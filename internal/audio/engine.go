// SPDX-License-Identifier: MIT
/*
Package audio captures blocks of audio and drives them through analysis and
out to the sinks.

A Source (PortAudio input stream or WAV file) calls the Engine once per
block. The Engine optionally records the block, runs the FrameProcessor and
publishes the resulting snapshot. Publishing is expected to be non-blocking
(see sink.Async); nothing on this path waits on a consumer.

Thread Safety:
  - handleFrame runs on the source's thread and holds the engine mutex for the
    duration of one block.
  - Stop stops the source, then takes the mutex, so it returns only after the
    block in flight has been published.
  - The recorder is swapped through an atomic pointer.
*/
package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
	"github.com/keeperofkey/awesome-potato/internal/sink"
)

// ErrAlreadyRecording is returned by StartRecording while a recorder is attached.
var ErrAlreadyRecording = errors.New("already recording")

// EngineStats counts blocks seen by the engine.
type EngineStats struct {
	Frames      uint64
	Published   uint64
	Unpublished uint64
}

type Engine struct {
	source Source
	proc   analysis.FrameProcessor
	out    sink.Sink

	mu      sync.Mutex
	running atomic.Bool

	recorder atomic.Pointer[Recorder]

	frames      atomic.Uint64
	published   atomic.Uint64
	unpublished atomic.Uint64
}

func NewEngine(src Source, proc analysis.FrameProcessor, out sink.Sink) (*Engine, error) {
	if src == nil || proc == nil || out == nil {
		return nil, errors.New("engine needs a source, a processor and a sink")
	}
	return &Engine{
		source: src,
		proc:   proc,
		out:    out,
	}, nil
}

// Start begins capturing.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	if err := e.source.Start(e.handleFrame); err != nil {
		e.running.Store(false)
		return fmt.Errorf("start source: %w", err)
	}
	return nil
}

// handleFrame is the per-block hot path.
func (e *Engine) handleFrame(f analysis.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.Load() {
		return
	}

	e.frames.Add(1)
	if r := e.recorder.Load(); r != nil {
		r.Write(f)
	}

	snap := e.proc.Process(f)
	if e.out.Publish(snap) {
		e.published.Add(1)
	} else {
		e.unpublished.Add(1)
	}
}

// Stop stops the source and waits for the block in flight. Stopping a
// stopped engine is a no-op.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	err := e.source.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("stop source: %w", err)
	}
	return nil
}

// Running reports whether the engine is between Start and Stop.
func (e *Engine) Running() bool { return e.running.Load() }

// StartRecording attaches r; subsequent blocks are written to it.
func (e *Engine) StartRecording(r *Recorder) error {
	if r == nil {
		return errors.New("nil recorder")
	}
	if !e.recorder.CompareAndSwap(nil, r) {
		return ErrAlreadyRecording
	}
	return nil
}

// StopRecording detaches and closes the current recorder, if any.
func (e *Engine) StopRecording() error {
	r := e.recorder.Swap(nil)
	if r == nil {
		return nil
	}
	// Close waits for a Write in flight.
	return r.Close()
}

// Recording reports whether a recorder is attached.
func (e *Engine) Recording() bool { return e.recorder.Load() != nil }

// Stats returns the engine counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Frames:      e.frames.Load(),
		Published:   e.published.Load(),
		Unpublished: e.unpublished.Load(),
	}
}

// Close stops capture and recording.
func (e *Engine) Close() error {
	err := e.Stop()
	if rerr := e.StopRecording(); rerr != nil {
		err = errors.Join(err, rerr)
	}
	if err == nil {
		log.Debugf("Engine closed: %+v", e.Stats())
	}
	return err
}
