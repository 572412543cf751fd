// SPDX-License-Identifier: MIT
package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
	"golang.org/x/sys/unix"
)

// FIFOMode selects which tokens a FIFOSink writes.
type FIFOMode int

const (
	// ModePulse writes "1" on every beat.
	ModePulse FIFOMode = iota
	// ModeBeat writes "beat" on every beat.
	ModeBeat
	// ModeBar writes "downbeat" on the first beat of each bar and "beat"
	// otherwise. Bars are counted, not phase tracked.
	ModeBar
)

var (
	tokenPulse    = []byte("1\n")
	tokenBeat     = []byte("beat\n")
	tokenDownbeat = []byte("downbeat\n")
)

func (m FIFOMode) String() string {
	switch m {
	case ModePulse:
		return "pulse"
	case ModeBeat:
		return "beat"
	case ModeBar:
		return "bar"
	default:
		return fmt.Sprintf("FIFOMode(%d)", int(m))
	}
}

// ParseFIFOMode converts a mode name to a FIFOMode.
func ParseFIFOMode(name string) (FIFOMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "pulse":
		return ModePulse, nil
	case "beat":
		return ModeBeat, nil
	case "bar", "downbeat":
		return ModeBar, nil
	default:
		return ModePulse, fmt.Errorf("unknown fifo mode %q", name)
	}
}

// FIFOOptions configure a FIFOSink.
type FIFOOptions struct {
	Path        string
	Mode        FIFOMode
	BeatsPerBar int // ModeBar only, default 4
}

// FIFOSink writes one newline terminated token per beat to a named pipe.
// The pipe is opened non-blocking for each event, so readers may come and go;
// with no reader the event is skipped.
type FIFOSink struct {
	counters

	path        string
	mode        FIFOMode
	beatsPerBar int
	created     bool

	mu     sync.Mutex
	beats  uint64
	closed bool

	noReader *log.Limiter
}

// NewFIFOSink creates the FIFO at opts.Path unless it already exists. An
// existing file that is not a FIFO is an error.
func NewFIFOSink(opts FIFOOptions) (*FIFOSink, error) {
	if opts.Path == "" {
		return nil, errors.New("fifo sink: path is required")
	}
	if opts.BeatsPerBar <= 0 {
		opts.BeatsPerBar = 4
	}

	f := &FIFOSink{
		path:        opts.Path,
		mode:        opts.Mode,
		beatsPerBar: opts.BeatsPerBar,
		noReader:    log.NewLimiter(30 * time.Second),
	}

	fi, err := os.Stat(opts.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := unix.Mkfifo(opts.Path, 0o666); err != nil {
			return nil, fmt.Errorf("failed to create fifo '%s': %w", opts.Path, err)
		}
		f.created = true
		log.Infof("FIFO: created %s", opts.Path)
	case err != nil:
		return nil, fmt.Errorf("failed to stat fifo '%s': %w", opts.Path, err)
	case fi.Mode()&fs.ModeNamedPipe == 0:
		return nil, fmt.Errorf("'%s' exists and is not a fifo", opts.Path)
	}

	log.Infof("FIFO: writing %v tokens to %s", f.mode, f.path)
	return f, nil
}

// token returns the token for the next beat and advances the bar counter.
func (f *FIFOSink) token() []byte {
	f.beats++
	switch f.mode {
	case ModeBeat:
		return tokenBeat
	case ModeBar:
		if (f.beats-1)%uint64(f.beatsPerBar) == 0 {
			return tokenDownbeat
		}
		return tokenBeat
	default:
		return tokenPulse
	}
}

// Publish writes a token when s is a beat. Snapshots without a beat succeed
// without touching the pipe.
func (f *FIFOSink) Publish(s analysis.Snapshot) bool {
	if !s.Beat {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}

	err := f.write(f.token())
	switch {
	case err == nil:
		return f.record(true)
	case errors.Is(err, ErrNoReader):
		f.noReader.Debugf("FIFO: no reader on %s", f.path)
	default:
		f.noReader.Warnf("FIFO: write to %s failed: %v", f.path, err)
	}
	return f.record(false)
}

// write opens the pipe without blocking, writes token and closes it again.
func (f *FIFOSink) write(token []byte) error {
	fd, err := unix.Open(f.path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ENXIO {
			return ErrNoReader
		}
		return fmt.Errorf("open: %w", err)
	}
	defer unix.Close(fd)

	if _, err := unix.Write(fd, token); err != nil {
		if err == unix.EPIPE || err == unix.EAGAIN {
			return ErrNoReader
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Path returns the FIFO path.
func (f *FIFOSink) Path() string { return f.path }

// Close removes the FIFO if this sink created it.
func (f *FIFOSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if !f.created {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove fifo '%s': %w", f.path, err)
	}
	log.Debugf("FIFO: removed %s", f.path)
	return nil
}

var _ Sink = (*FIFOSink)(nil)
