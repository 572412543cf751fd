// SPDX-License-Identifier: MIT
package sink

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

// AwesomeWM exposes a Lua eval method on the session bus; it is what
// awesome-client talks to.
const (
	awesomeBusName    = "org.awesomewm.awful"
	awesomeObjectPath = "/"
	awesomeEvalMethod = "org.awesomewm.awful.Remote.Eval"
)

// Signals emitted into AwesomeWM.
const (
	SignalAudio = "glitch::audio"
	SignalFFT   = "glitch::fft"
	SignalBeat  = "glitch::beat"
)

// DefaultAwesomeInterval throttles level and band updates to 20 Hz.
const DefaultAwesomeInterval = 50 * time.Millisecond

// Evaluator runs a Lua chunk inside the window manager.
type Evaluator interface {
	Eval(lua string) error
	Close() error
}

// DBusEvaluator sends Lua to AwesomeWM over a private session bus connection.
type DBusEvaluator struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// DialAwesome connects to the session bus. It fails when no bus is
// available; a missing AwesomeWM only shows up when calls fail.
func DialAwesome() (*DBusEvaluator, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBusEvaluator{
		conn: conn,
		obj:  conn.Object(awesomeBusName, dbus.ObjectPath(awesomeObjectPath)),
	}, nil
}

// Eval sends lua without waiting for a reply.
func (e *DBusEvaluator) Eval(lua string) error {
	return e.obj.Go(awesomeEvalMethod, dbus.FlagNoReplyExpected, nil, lua).Err
}

// Close closes the bus connection.
func (e *DBusEvaluator) Close() error {
	return e.conn.Close()
}

// AwesomeSink emits glitch::* signals into AwesomeWM. Beats go out on the
// frame they occur; level and bands are throttled to one update per interval.
type AwesomeSink struct {
	counters

	eval     Evaluator
	interval time.Duration

	mu     sync.Mutex
	last   time.Time
	script []byte
	closed bool

	errLog *log.Limiter
}

// NewAwesomeSink wraps eval. interval <= 0 uses DefaultAwesomeInterval.
func NewAwesomeSink(eval Evaluator, interval time.Duration) (*AwesomeSink, error) {
	if eval == nil {
		return nil, errors.New("awesome sink: evaluator is required")
	}
	if interval <= 0 {
		interval = DefaultAwesomeInterval
	}
	log.Infof("Awesome: emitting %s, %s and %s every %v", SignalAudio, SignalFFT, SignalBeat, interval)
	return &AwesomeSink{
		eval:     eval,
		interval: interval,
		script:   make([]byte, 0, 256),
		errLog:   log.NewLimiter(10 * time.Second),
	}, nil
}

// Publish sends the Lua for s, if any is due.
func (a *AwesomeSink) Publish(s analysis.Snapshot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}

	now := s.Time
	if now.IsZero() {
		now = time.Now()
	}
	due := a.last.IsZero() || now.Sub(a.last) >= a.interval
	if !due && !s.Beat {
		return true
	}

	b := a.script[:0]
	if due {
		b = appendLevelSignals(b, s)
		a.last = now
	}
	if s.Beat {
		b = appendEmit(b, SignalBeat)
		b = append(b, ')')
	}
	a.script = b

	if err := a.eval.Eval(string(b)); err != nil {
		a.errLog.Warnf("Awesome: eval failed: %v", err)
		return a.record(false)
	}
	return a.record(true)
}

// appendLevelSignals appends the glitch::audio and glitch::fft emits.
func appendLevelSignals(b []byte, s analysis.Snapshot) []byte {
	b = appendEmit(b, SignalAudio)
	b = append(b, ", "...)
	b = strconv.AppendFloat(b, s.Level, 'f', 4, 64)
	b = append(b, ") "...)

	b = appendEmit(b, SignalFFT)
	b = append(b, ", { low = "...)
	b = strconv.AppendFloat(b, s.Bands.Low, 'f', 4, 64)
	b = append(b, ", mid = "...)
	b = strconv.AppendFloat(b, s.Bands.Mid, 'f', 4, 64)
	b = append(b, ", high = "...)
	b = strconv.AppendFloat(b, s.Bands.High, 'f', 4, 64)
	b = append(b, " }) "...)
	return b
}

func appendEmit(b []byte, signal string) []byte {
	b = append(b, `awesome.emit_signal("`...)
	b = append(b, signal...)
	return append(b, '"')
}

// Close closes the evaluator.
func (a *AwesomeSink) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.eval.Close()
}

var _ Sink = (*AwesomeSink)(nil)
var _ Evaluator = (*DBusEvaluator)(nil)
