// SPDX-License-Identifier: MIT
package config

import (
	"time"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
)

// Defaults and limits for the engine configuration.
const (
	DefaultDeviceID        = MinDeviceID // system default input
	DefaultSampleRate      = 48000
	DefaultFramesPerBuffer = 512
	DefaultChannels        = 2
	DefaultWindow          = "hann"
	DefaultLogLevel        = "info"

	DefaultSocketPath = "/tmp/audio_vfx.sock"
	DefaultFIFOPath   = "/tmp/audio_beat_fifo"
	DefaultWSAddr     = "127.0.0.1:8765"
	DefaultRecordDir  = "./recordings"

	DefaultBeatsPerBar    = 4
	DefaultStatusInterval = 5 * time.Second

	MinDeviceID     = -1     // -1 represents the system default device
	MinSampleRate   = 8000   // Hz
	MaxSampleRate   = 192000 // Hz
	MaxBufferFrames = 8192   // power of 2
	MaxChannels     = 32
)

// Default returns the built-in configuration every load starts from.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
		},
		Analysis: AnalysisConfig{
			Window:          DefaultWindow,
			HistorySize:     analysis.DefaultHistorySize,
			PeakThreshold:   analysis.DefaultPeakThreshold,
			MinBeatInterval: analysis.DefaultMinBeatInterval,
			Bands: BandsConfig{
				Low:  analysis.DefaultBandRanges[analysis.Low],
				Mid:  analysis.DefaultBandRanges[analysis.Mid],
				High: analysis.DefaultBandRanges[analysis.High],
			},
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordDir,
			BitDepth:  16,
		},
		Output: OutputConfig{
			Socket: SocketConfig{
				Enabled: true,
				Network: "unixgram",
				Path:    DefaultSocketPath,
				Codec:   "json",
			},
			FIFO: FIFOConfig{
				Path:        DefaultFIFOPath,
				Mode:        "pulse",
				BeatsPerBar: DefaultBeatsPerBar,
			},
			Awesome: AwesomeConfig{
				Interval: 50 * time.Millisecond,
			},
			WebSocket: WebSocketConfig{
				Addr: DefaultWSAddr,
			},
		},
		Status: StatusConfig{
			Interval: DefaultStatusInterval,
		},
	}
}
