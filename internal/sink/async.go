// SPDX-License-Identifier: MIT
package sink

import (
	"sync"
	"sync/atomic"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

// Async moves publishing off the caller's goroutine. It holds at most one
// pending snapshot: publishing while one is pending replaces it, so a slow
// transport sees the newest data and the caller never waits.
type Async struct {
	counters

	sink Sink
	slot chan analysis.Snapshot

	mu       sync.Mutex // protects doneChan during Start/Stop
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewAsync wraps s. Call Start before publishing.
func NewAsync(s Sink) *Async {
	return &Async{
		sink: s,
		slot: make(chan analysis.Snapshot, 1),
	}
}

// Start launches the worker. Calling it on a running Async is a no-op.
func (a *Async) Start() {
	a.mu.Lock()
	if a.doneChan != nil {
		a.mu.Unlock()
		log.Warnf("Async: Start called but already running.")
		return
	}
	a.doneChan = make(chan struct{})
	a.stopOnce = sync.Once{}
	done := a.doneChan
	a.running.Store(true)
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case s := <-a.slot:
				a.deliver(s)
			case <-done:
				// Flush the last pending snapshot.
				select {
				case s := <-a.slot:
					a.deliver(s)
				default:
				}
				return
			}
		}
	}()
}

func (a *Async) deliver(s analysis.Snapshot) {
	if !safePublish(a.sink, s) {
		a.failed.Add(1)
		return
	}
	a.published.Add(1)
}

// Publish stores s in the slot, replacing any snapshot still pending. It
// returns false only when the worker is not running.
func (a *Async) Publish(s analysis.Snapshot) bool {
	if !a.running.Load() {
		return false
	}
	for range 2 {
		select {
		case a.slot <- s:
			return true
		default:
		}
		select {
		case <-a.slot:
			a.dropped.Add(1)
		default:
		}
	}
	// Another publisher refilled the slot between the two selects.
	a.dropped.Add(1)
	return false
}

// Stop signals the worker, waits for it to deliver what is pending and exit.
// Safe to call more than once.
func (a *Async) Stop() {
	a.mu.Lock()
	if a.doneChan == nil {
		a.mu.Unlock()
		return
	}
	a.running.Store(false)
	a.stopOnce.Do(func() {
		close(a.doneChan)
	})
	a.doneChan = nil
	a.mu.Unlock()

	a.wg.Wait()
}

// Close stops the worker and closes the wrapped sink.
func (a *Async) Close() error {
	a.Stop()
	return a.sink.Close()
}

var _ Sink = (*Async)(nil)
