// SPDX-License-Identifier: MIT
package log

import (
	"sync/atomic"
	"time"
)

// Limiter gates repeated messages from the audio callback so a persistent fault
// (no FIFO reader, overrunning frames) produces one line per interval instead of
// one line per frame. The zero value is not usable; see NewLimiter.
type Limiter struct {
	interval int64        // nanoseconds between allowed messages
	last     atomic.Int64 // unix nanos of the last allowed message
	dropped  atomic.Uint64
}

// NewLimiter returns a Limiter that allows at most one message per interval.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: int64(interval)}
}

// Allow reports whether a message may be written now, and how many were
// suppressed since the last allowed one. It never blocks or allocates.
func (l *Limiter) Allow() (ok bool, suppressed uint64) {
	now := time.Now().UnixNano()
	last := l.last.Load()
	if last != 0 && now-last < l.interval {
		l.dropped.Add(1)
		return false, 0
	}
	if !l.last.CompareAndSwap(last, now) {
		l.dropped.Add(1)
		return false, 0
	}
	return true, l.dropped.Swap(0)
}

// Debugf logs through the limiter at debug level.
func (l *Limiter) Debugf(format string, v ...any) {
	if !Enabled(LevelDebug) {
		return
	}
	if ok, n := l.Allow(); ok {
		if n > 0 {
			Debugf(format+" (%d similar suppressed)", append(v, n)...)
			return
		}
		Debugf(format, v...)
	}
}

// Warnf logs through the limiter at warn level.
func (l *Limiter) Warnf(format string, v ...any) {
	if !Enabled(LevelWarn) {
		return
	}
	if ok, n := l.Allow(); ok {
		if n > 0 {
			Warnf(format+" (%d similar suppressed)", append(v, n)...)
			return
		}
		Warnf(format, v...)
	}
}

// Errorf logs through the limiter at error level.
func (l *Limiter) Errorf(format string, v ...any) {
	if !Enabled(LevelError) {
		return
	}
	if ok, n := l.Allow(); ok {
		if n > 0 {
			Errorf(format+" (%d similar suppressed)", append(v, n)...)
			return
		}
		Errorf(format, v...)
	}
}
