// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

var (
	// ErrRunning is returned by Start on a source that is already delivering frames.
	ErrRunning = errors.New("source already running")
)

// FrameHandler receives each captured block. The frame's sample slice is only
// valid for the duration of the call.
type FrameHandler func(analysis.Frame)

// Source produces fixed-size interleaved blocks and hands them to a FrameHandler.
type Source interface {
	Start(FrameHandler) error
	Stop() error
}

// StreamOptions describes the PortAudio input stream.
type StreamOptions struct {
	Device          *portaudio.DeviceInfo
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
	LowLatency      bool
}

// StreamSource captures from a PortAudio input device. The callback runs on
// the PortAudio thread; stream status flags are logged and never stop it.
type StreamSource struct {
	opts StreamOptions

	mu      sync.Mutex
	stream  *portaudio.Stream
	handler FrameHandler

	statusLog *log.Limiter
}

// NewStreamSource validates opts. PortAudio must be initialized before Start.
func NewStreamSource(opts StreamOptions) (*StreamSource, error) {
	if opts.Device == nil {
		return nil, errors.New("no input device")
	}
	if opts.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", opts.Channels)
	}
	if opts.Channels > opts.Device.MaxInputChannels {
		return nil, fmt.Errorf("device %s supports %d input channels, want %d",
			opts.Device.Name, opts.Device.MaxInputChannels, opts.Channels)
	}
	if opts.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("invalid frames per buffer: %d", opts.FramesPerBuffer)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = opts.Device.DefaultSampleRate
	}
	return &StreamSource{
		opts:      opts,
		statusLog: log.NewLimiter(time.Second),
	}, nil
}

func (s *StreamSource) latency() time.Duration {
	if s.opts.LowLatency {
		return s.opts.Device.DefaultLowInputLatency
	}
	return s.opts.Device.DefaultHighInputLatency
}

// Start opens and starts the input stream.
func (s *StreamSource) Start(h FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return ErrRunning
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: s.opts.Channels,
			Device:   s.opts.Device,
			Latency:  s.latency(),
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0,
			Device:   nil,
		},
		FramesPerBuffer: s.opts.FramesPerBuffer,
		SampleRate:      s.opts.SampleRate,
	}

	s.handler = h
	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start input stream: %w", err)
	}
	s.stream = stream

	log.Infof("Capturing from %s: %.0f Hz, %d channels, %d frames per block, latency %v",
		s.opts.Device.Name, s.opts.SampleRate, s.opts.Channels, s.opts.FramesPerBuffer, s.latency())
	return nil
}

// process is the PortAudio callback. in is reused by PortAudio after return.
func (s *StreamSource) process(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	if flags != 0 {
		s.statusLog.Warnf("Input stream status: %s", describeFlags(flags))
	}
	s.handler(analysis.Frame{Samples: in, Channels: s.opts.Channels})
}

func describeFlags(flags portaudio.StreamCallbackFlags) string {
	switch {
	case flags&portaudio.InputOverflow != 0 && flags&portaudio.InputUnderflow != 0:
		return "input overflow and underflow"
	case flags&portaudio.InputOverflow != 0:
		return "input overflow"
	case flags&portaudio.InputUnderflow != 0:
		return "input underflow"
	default:
		return fmt.Sprintf("flags 0x%x", uint64(flags))
	}
}

// Stop stops the stream, waiting for the callback in flight, and closes it.
// Stopping a stopped source is a no-op.
func (s *StreamSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}

	stream := s.stream
	s.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("stop input stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close input stream: %w", err)
	}
	return nil
}
