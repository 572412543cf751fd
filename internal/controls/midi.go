// SPDX-License-Identifier: MIT
package controls

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/keeperofkey/awesome-potato/internal/log"
)

// DefaultRetry is how long the listener waits before reopening a missing port.
const DefaultRetry = 5 * time.Second

// ErrNoPort is returned when no input port matches the requested name.
var ErrNoPort = errors.New("no MIDI input port")

// openPort connects to the named input and calls onCC for every control
// change. It returns a function that stops listening. Replaced in tests.
var openPort = func(name string, onCC func(cc, value uint8)) (func(), error) {
	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w matching %q", ErrNoPort, name)
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		var ch, cc, val uint8
		if msg.GetControlChange(&ch, &cc, &val) {
			onCC(cc, val)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("listen to %s: %w", in, err)
	}
	log.Infof("MIDI: listening to %s", in)
	return stop, nil
}

// portPresent reports whether an input matching name is still attached.
// Replaced in tests.
var portPresent = func(name string) bool {
	_, err := midi.FindInPort(name)
	return err == nil
}

// inPorts lists the MIDI inputs. Replaced in tests.
var inPorts = func() []drivers.In { return midi.GetInPorts() }

// ListPorts writes the available MIDI input ports to w.
func ListPorts(w io.Writer) {
	fmt.Fprintf(w, "\nAvailable MIDI Inputs\n\n")
	ports := inPorts()
	if len(ports) == 0 {
		fmt.Fprintln(w, "  No MIDI input devices found")
		return
	}
	for i, p := range ports {
		fmt.Fprintf(w, "[%d] %s\n", i, p.String())
	}
}

// CloseDriver releases the MIDI driver. Call once after all listeners are closed.
func CloseDriver() {
	midi.CloseDriver()
}

// Listener feeds control changes from a MIDI input port into a State. While
// the port is missing it retries every retry interval, and once connected it
// checks at the same interval that the port is still attached, reopening it
// after an unplug. It keeps doing so until closed.
type Listener struct {
	state *State
	port  string
	retry time.Duration

	mu        sync.Mutex
	stopPort  func()
	connected bool

	started atomic.Bool
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewListener(state *State, port string, retry time.Duration) *Listener {
	if retry <= 0 {
		retry = DefaultRetry
	}
	return &Listener{
		state: state,
		port:  port,
		retry: retry,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start connects in the background.
func (l *Listener) Start() {
	if l.started.CompareAndSwap(false, true) {
		go l.run()
	}
}

func (l *Listener) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		default:
		}
		stop, err := openPort(l.port, l.state.Set)
		if err == nil {
			l.mu.Lock()
			l.stopPort = stop
			l.connected = true
			l.mu.Unlock()

			if !l.waitLost() {
				return
			}
			l.disconnect()
			log.Warnf("MIDI: %q disconnected, reconnecting", l.port)
			continue
		}
		log.Warnf("MIDI: %v, retrying in %v", err, l.retry)

		select {
		case <-l.quit:
			return
		case <-time.After(l.retry):
		}
	}
}

// waitLost blocks until the open port disappears (true) or the listener is
// closed (false).
func (l *Listener) waitLost() bool {
	t := time.NewTicker(l.retry)
	defer t.Stop()
	for {
		select {
		case <-l.quit:
			return false
		case <-t.C:
			if !portPresent(l.port) {
				return true
			}
		}
	}
}

func (l *Listener) disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopPort != nil {
		l.stopPort()
		l.stopPort = nil
	}
	l.connected = false
}

// Connected reports whether the port is open.
func (l *Listener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Close stops retrying and stops listening. It is safe to call more than once.
func (l *Listener) Close() error {
	l.once.Do(func() {
		close(l.quit)
	})
	if !l.started.Load() {
		return nil
	}
	<-l.done
	l.disconnect()
	return nil
}
