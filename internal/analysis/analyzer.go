// SPDX-License-Identifier: MIT

// Package analysis extracts per-frame features from captured audio: volume,
// magnitude spectrum, adaptive peaks, refractory-gated beats and
// self-calibrating low/mid/high band levels.
//
// Thread Safety:
//
// An Analyzer has a single writer. Process must only be called from one
// goroutine at a time (the capture callback). Last, Stats, Tuning and
// SetTuning are safe from any goroutine. The diagnostic accessors
// (EnergyHistory, BeatHistory, Envelope) read writer state and must only be
// used from the processing goroutine or once capture has stopped.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keeperofkey/awesome-potato/internal/log"
	"github.com/keeperofkey/awesome-potato/pkg/bitint"
	"gonum.org/v1/gonum/floats"
)

// Defaults for Options fields left at their zero value.
const (
	DefaultHistorySize     = 43
	DefaultPeakThreshold   = 1.5
	DefaultMinBeatInterval = 10
)

// Tuning holds the parameters that may change while audio is flowing.
type Tuning struct {
	PeakThreshold   float64 // energy multiple over the history mean that counts as a peak
	MinBeatInterval int     // frames that must pass after a beat before the next
}

// DefaultTuning returns the tuning used when none is configured.
func DefaultTuning() Tuning {
	return Tuning{PeakThreshold: DefaultPeakThreshold, MinBeatInterval: DefaultMinBeatInterval}
}

// Validate reports whether t can be applied.
func (t Tuning) Validate() error {
	if t.PeakThreshold <= 0 || math.IsNaN(t.PeakThreshold) || math.IsInf(t.PeakThreshold, 0) {
		return fmt.Errorf("peak threshold must be positive, got %v", t.PeakThreshold)
	}
	if t.MinBeatInterval < 0 {
		return fmt.Errorf("min beat interval must not be negative, got %d", t.MinBeatInterval)
	}
	return nil
}

// Options configure a new Analyzer.
type Options struct {
	SampleRate  float64
	BlockSize   int // samples per channel, power of two
	Window      WindowFunc
	HistorySize int
	Bands       [NumBands]BandRange
	Tuning      Tuning
}

// Analyzer owns all per-stream analysis state. It is created once per stream
// and every buffer it needs is allocated up front.
type Analyzer struct {
	opts   Options
	budget time.Duration
	tuning atomic.Pointer[Tuning]

	mono    []float64
	spec    *spectrum
	bins    bandBins
	history *EnergyHistory
	beats   *BeatTracker
	scaler  *BandScaler
	level   *Level
	seq     uint64

	mu   sync.RWMutex
	last Snapshot

	frames    atomic.Uint64
	beatCount atomic.Uint64
	overruns  atomic.Uint64
	recovered atomic.Uint64

	overrunLog *log.Limiter
	errorLog   *log.Limiter
}

// NewAnalyzer validates opts, fills in defaults and allocates the analysis
// state.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %v", opts.SampleRate)
	}
	if opts.BlockSize < 2 || !bitint.IsPowerOfTwo(opts.BlockSize) {
		return nil, fmt.Errorf("block size must be a power of 2, got %d", opts.BlockSize)
	}
	if opts.HistorySize < 0 {
		return nil, fmt.Errorf("history size must not be negative, got %d", opts.HistorySize)
	}
	if opts.HistorySize == 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Bands == ([NumBands]BandRange{}) {
		opts.Bands = DefaultBandRanges
	}
	if opts.Tuning == (Tuning{}) {
		opts.Tuning = DefaultTuning()
	}
	if err := opts.Tuning.Validate(); err != nil {
		return nil, err
	}

	spec := newSpectrum(opts.BlockSize, opts.SampleRate, opts.Window)
	a := &Analyzer{
		opts:       opts,
		budget:     time.Duration(float64(opts.BlockSize) / opts.SampleRate * float64(time.Second)),
		mono:       make([]float64, opts.BlockSize),
		spec:       spec,
		bins:       newBandBins(opts.Bands, spec.bins(), spec.binHz()),
		history:    NewEnergyHistory(opts.HistorySize),
		beats:      NewBeatTracker(),
		scaler:     NewBandScaler(),
		level:      NewLevel(),
		last:       Snapshot{Spectrum: make([]float64, spec.bins())},
		overrunLog: log.NewLimiter(5 * time.Second),
		errorLog:   log.NewLimiter(5 * time.Second),
	}
	t := opts.Tuning
	a.tuning.Store(&t)

	log.Debugf("Analysis: block %d @ %.0f Hz, window %v, history %d, budget %v",
		opts.BlockSize, opts.SampleRate, opts.Window, opts.HistorySize, a.budget)
	return a, nil
}

// Process analyzes one frame. It never panics and never returns an error: a
// frame that cannot be analyzed yields the previous snapshot with Peak and
// Beat cleared.
func (a *Analyzer) Process(frame Frame) (snap Snapshot) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			snap = a.fallback(fmt.Errorf("%w: %v", ErrProcessing, r))
		}
		if took := time.Since(start); took > a.budget {
			a.overruns.Add(1)
			a.overrunLog.Warnf("Analysis: frame took %v, budget %v", took, a.budget)
		}
	}()

	a.frames.Add(1)
	snap, err := a.analyze(frame, start)
	if err != nil {
		return a.fallback(err)
	}
	a.mu.Lock()
	a.last = snap
	a.mu.Unlock()
	return snap
}

func (a *Analyzer) analyze(frame Frame, now time.Time) (Snapshot, error) {
	if err := frame.Validate(a.opts.BlockSize); err != nil {
		return Snapshot{}, err
	}
	downmix(a.mono, frame)
	energy := floats.Dot(a.mono, a.mono) / float64(len(a.mono))
	if math.IsNaN(energy) || math.IsInf(energy, 0) {
		return Snapshot{}, fmt.Errorf("%w: non-finite samples", ErrInvalidFrame)
	}
	volume := math.Sqrt(energy)

	mag := make([]float64, a.spec.bins())
	a.spec.transform(mag, a.mono)
	raw := a.bins.energies(mag)

	t := a.tuning.Load()
	if !a.history.Seeded() {
		a.history.Seed(energy)
	}
	a.history.Push(energy)
	peak := energy > a.history.Mean()*t.PeakThreshold
	beat := a.beats.Update(peak, t.MinBeatInterval)
	if beat {
		a.beatCount.Add(1)
	}

	a.seq++
	return Snapshot{
		Seq:      a.seq,
		Time:     now,
		Volume:   volume,
		Level:    a.level.Update(volume),
		Spectrum: mag,
		Peak:     peak,
		Beat:     beat,
		Bands:    a.scaler.ScaleAll(raw),
	}, nil
}

// fallback records err and returns the last snapshot with the event flags
// cleared.
func (a *Analyzer) fallback(err error) Snapshot {
	a.recovered.Add(1)
	if errors.Is(err, ErrProcessing) {
		a.errorLog.Errorf("Analysis: %v", err)
	} else {
		a.errorLog.Warnf("Analysis: %v", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.last.Peak = false
	a.last.Beat = false
	a.last.Time = time.Now()
	return a.last
}

// Last returns the most recent snapshot, whether or not it was published.
func (a *Analyzer) Last() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Stats returns the running counters.
func (a *Analyzer) Stats() Stats {
	return Stats{
		Frames:    a.frames.Load(),
		Beats:     a.beatCount.Load(),
		Overruns:  a.overruns.Load(),
		Recovered: a.recovered.Load(),
	}
}

// Tuning returns the tuning currently applied.
func (a *Analyzer) Tuning() Tuning { return *a.tuning.Load() }

// SetTuning replaces the tuning. It takes effect on the next frame.
func (a *Analyzer) SetTuning(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	a.tuning.Store(&t)
	return nil
}

// BinFrequency returns the centre frequency in Hz of spectrum bin i.
func (a *Analyzer) BinFrequency(i int) float64 {
	if i < 0 || i >= a.spec.bins() {
		return 0
	}
	return float64(i) * a.spec.binHz()
}

// EnergyHistory returns a copy of the peak baseline, oldest first.
func (a *Analyzer) EnergyHistory() []float64 { return a.history.Values() }

// BeatHistory returns the recorded frames-since-beat counters.
func (a *Analyzer) BeatHistory() []int { return a.beats.History() }

// Envelope returns a copy of band's scaler envelope.
func (a *Analyzer) Envelope(band Band) BandEnvelope { return a.scaler.Envelope(band) }
