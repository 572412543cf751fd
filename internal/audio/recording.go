// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

// recordQueue is the number of blocks that may wait for the disk writer.
const recordQueue = 32

// RecordingFileName returns a timestamped WAV path inside dir.
func RecordingFileName(dir string, now time.Time) string {
	return filepath.Join(dir, "recording_"+now.Format("20060102_150405")+".wav")
}

// Recorder writes captured frames to a WAV file. Write copies the frame into
// a preallocated block and hands it to a writer goroutine, so the capture
// thread never touches the disk. When the writer falls behind, blocks are
// dropped and counted.
type Recorder struct {
	path     string
	channels int
	bitDepth int
	maxValue float64

	file *os.File
	enc  *wav.Encoder

	mu     sync.RWMutex
	closed bool
	free   chan []float32
	queue  chan []float32
	done   chan struct{}
	err    error

	written atomic.Uint64
	dropped atomic.Uint64
	dropLog *log.Limiter
}

// NewRecorder creates path and starts the writer. bitDepth is 16, 24 or 32.
func NewRecorder(path string, sampleRate float64, channels, framesPerBuffer, bitDepth int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
	if channels <= 0 || framesPerBuffer <= 0 {
		return nil, fmt.Errorf("invalid recording shape: %d channels, %d frames", channels, framesPerBuffer)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	r := &Recorder{
		path:     path,
		channels: channels,
		bitDepth: bitDepth,
		maxValue: float64(int64(1)<<(bitDepth-1) - 1),
		file:     file,
		enc:      wav.NewEncoder(file, int(sampleRate), bitDepth, channels, 1),
		free:     make(chan []float32, recordQueue),
		queue:    make(chan []float32, recordQueue),
		done:     make(chan struct{}),
		dropLog:  log.NewLimiter(time.Second),
	}
	for range recordQueue {
		r.free <- make([]float32, 0, framesPerBuffer*channels)
	}

	go r.writer(sampleRate, framesPerBuffer)
	log.Infof("Recording to %s (%d-bit)", path, bitDepth)
	return r, nil
}

// Path returns the output file path.
func (r *Recorder) Path() string { return r.path }

// Write queues a copy of f. It never blocks on disk I/O.
func (r *Recorder) Write(f analysis.Frame) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	var block []float32
	select {
	case block = <-r.free:
	default:
		r.drop()
		return
	}
	if cap(block) < len(f.Samples) {
		r.free <- block
		r.drop()
		return
	}
	block = append(block[:0], f.Samples...)
	r.queue <- block
}

func (r *Recorder) drop() {
	n := r.dropped.Add(1)
	if ok, _ := r.dropLog.Allow(); ok {
		log.Warnf("Recorder behind disk, %d blocks dropped", n)
	}
}

func (r *Recorder) writer(sampleRate float64, framesPerBuffer int) {
	defer close(r.done)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: r.channels, SampleRate: int(sampleRate)},
		Data:           make([]int, framesPerBuffer*r.channels),
		SourceBitDepth: r.bitDepth,
	}
	for block := range r.queue {
		buf.Data = buf.Data[:len(block)]
		for i, s := range block {
			buf.Data[i] = int(float64(clampSample(s)) * r.maxValue)
		}
		if r.err == nil {
			if err := r.enc.Write(buf); err != nil {
				r.err = fmt.Errorf("write recording: %w", err)
				log.Errorf("Recording failed: %v", err)
			} else {
				r.written.Add(1)
			}
		}
		r.free <- block
	}
}

func clampSample(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	case s != s:
		return 0
	}
	return s
}

// Blocks returns how many blocks reached the encoder and how many were dropped.
func (r *Recorder) Blocks() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}

// Close drains queued blocks, finalizes the WAV header and closes the file.
// Close is idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done

	err := r.err
	if cerr := r.enc.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("finalize recording: %w", cerr)
	}
	if cerr := r.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	written, dropped := r.Blocks()
	log.Infof("Recording closed: %s (%d blocks, %d dropped)", r.path, written, dropped)
	return err
}
