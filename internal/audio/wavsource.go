// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

// WAVSource replays a PCM WAV file as fixed-size blocks. With Realtime set,
// blocks are paced at the file's sample rate; otherwise they are delivered
// as fast as the handler returns. The final partial block is zero padded.
type WAVSource struct {
	path            string
	framesPerBuffer int
	realtime        bool

	file       *os.File
	dec        *wav.Decoder
	channels   int
	sampleRate float64
	scale      float32

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	endOnce sync.Once
	err     error
	blocks  int
}

// OpenWAV opens path and reads its header so the caller can size the
// analyzer to the file's format before Start.
func OpenWAV(path string, framesPerBuffer int, realtime bool) (*WAVSource, error) {
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("invalid frames per buffer: %d", framesPerBuffer)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if dec.WavAudioFormat != 1 {
		f.Close()
		return nil, fmt.Errorf("%s: unsupported WAV format %d, want PCM", path, dec.WavAudioFormat)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		f.Close()
		return nil, fmt.Errorf("%s: unsupported bit depth %d", path, bitDepth)
	}

	return &WAVSource{
		path:            path,
		framesPerBuffer: framesPerBuffer,
		realtime:        realtime,
		file:            f,
		dec:             dec,
		channels:        int(dec.NumChans),
		sampleRate:      float64(dec.SampleRate),
		scale:           1 / float32(int64(1)<<(bitDepth-1)),
		done:            make(chan struct{}),
	}, nil
}

// Channels returns the file's channel count.
func (w *WAVSource) Channels() int { return w.channels }

// SampleRate returns the file's sample rate in Hz.
func (w *WAVSource) SampleRate() float64 { return w.sampleRate }

// Start begins delivering blocks from a background goroutine. A WAVSource
// plays once; Start after Stop returns io.EOF.
func (w *WAVSource) Start(h FrameHandler) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrRunning
	}
	if w.file == nil {
		return io.EOF
	}
	w.running = true
	w.stop = make(chan struct{})

	go w.run(h, w.stop)
	return nil
}

// end closes done exactly once.
func (w *WAVSource) end() {
	w.endOnce.Do(func() { close(w.done) })
}

func (w *WAVSource) run(h FrameHandler, stop chan struct{}) {
	defer w.end()

	n := w.framesPerBuffer * w.channels
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: w.channels, SampleRate: int(w.sampleRate)},
		Data:   make([]int, n),
	}
	samples := make([]float32, n)

	var tick <-chan time.Time
	if w.realtime {
		period := time.Duration(float64(w.framesPerBuffer) / w.sampleRate * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		read, err := w.dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			w.finish(fmt.Errorf("read %s: %w", w.path, err))
			return
		}
		if read == 0 {
			w.finish(nil)
			return
		}

		for i := 0; i < read; i++ {
			samples[i] = float32(buf.Data[i]) * w.scale
		}
		clear(samples[read:])

		if tick != nil {
			select {
			case <-tick:
			case <-stop:
				return
			}
		}
		h(analysis.Frame{Samples: samples, Channels: w.channels})

		w.mu.Lock()
		w.blocks++
		w.mu.Unlock()

		if read < n {
			w.finish(nil)
			return
		}
	}
}

func (w *WAVSource) finish(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
	if err != nil {
		log.Errorf("WAV source stopped: %v", err)
	} else {
		log.Infof("Reached end of %s after %d blocks", w.path, w.blocks)
	}
}

// Done is closed when playback ends, either at end of file, on a read
// error, or after Stop. The channel is the same for the life of the source,
// so it may be taken before Start.
func (w *WAVSource) Done() <-chan struct{} { return w.done }

// Err returns the read error that ended playback, if any.
func (w *WAVSource) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Blocks returns the number of blocks delivered so far.
func (w *WAVSource) Blocks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.blocks
}

// Stop ends playback, waits for the handler in flight and closes the file.
// It is safe to call on a source that was never started.
func (w *WAVSource) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	stop, done := w.stop, w.done
	w.mu.Unlock()

	if running {
		close(stop)
		<-done
	} else {
		w.end()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	f := w.file
	w.file = nil
	if f == nil {
		return nil
	}
	return f.Close()
}
