// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/log"
	"github.com/keeperofkey/awesome-potato/internal/sink"
	"github.com/keeperofkey/awesome-potato/pkg/bitint"
	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Capture settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Feature extraction settings; hot reloadable.
	Recording RecordingConfig `yaml:"recording"` // Audio recording settings.
	Output    OutputConfig    `yaml:"output"`    // Where snapshots are published.
	MIDI      MIDIConfig      `yaml:"midi"`      // Control surface input.
	Status    StatusConfig    `yaml:"status"`    // Periodic status line and monitor.

	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-"`
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	DeviceName      string  `yaml:"device_name"`       // Fuzzy device name match; wins over input_device when set.
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per block; also the FFT size.
	InputChannels   int     `yaml:"input_channels"`    // Number of input channels to capture.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio.
	WAVFile         string  `yaml:"wav_file"`          // Analyze this file instead of a device.
	Realtime        bool    `yaml:"realtime"`          // Pace WAV playback at the stream rate.
}

// AnalysisConfig holds the feature extraction settings.
type AnalysisConfig struct {
	Window          string      `yaml:"window"`            // FFT window ("none", "hann", "hamming", ...).
	HistorySize     int         `yaml:"history_size"`      // Frames in the peak baseline.
	PeakThreshold   float64     `yaml:"peak_threshold"`    // Energy multiple over the baseline that counts as a peak.
	MinBeatInterval int         `yaml:"min_beat_interval"` // Frames after a beat during which peaks are ignored.
	Bands           BandsConfig `yaml:"bands"`             // Display band edges in Hz.
}

// BandsConfig holds the low, mid and high band edges.
type BandsConfig struct {
	Low  analysis.BandRange `yaml:"low"`
	Mid  analysis.BandRange `yaml:"mid"`
	High analysis.BandRange `yaml:"high"`
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Record the captured stream to WAV.
	OutputDir  string `yaml:"output_dir"`  // Directory for generated file names.
	OutputFile string `yaml:"output_file"` // Explicit file name; generated when empty.
	BitDepth   int    `yaml:"bit_depth"`   // 16, 24 or 32.
}

// OutputConfig selects and configures the snapshot sinks.
type OutputConfig struct {
	Socket    SocketConfig    `yaml:"socket"`
	FIFO      FIFOConfig      `yaml:"fifo"`
	Awesome   AwesomeConfig   `yaml:"awesome"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogOutputConfig `yaml:"log"`
}

// SocketConfig configures the datagram sink.
type SocketConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Network      string        `yaml:"network"` // "unixgram" or "udp".
	Path         string        `yaml:"path"`    // Socket path, or host:port for udp.
	Codec        string        `yaml:"codec"`   // "json" or "binary".
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// FIFOConfig configures the beat pulse FIFO.
type FIFOConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	Mode        string `yaml:"mode"` // "pulse", "beat" or "bar".
	BeatsPerBar int    `yaml:"beats_per_bar"`
}

// AwesomeConfig configures signal emission into AwesomeWM over D-Bus.
type AwesomeConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"` // Minimum time between level updates.
}

// WebSocketConfig configures the visualiser stream.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogOutputConfig configures the debug logging sink.
type LogOutputConfig struct {
	Enabled bool `yaml:"enabled"`
	Every   int  `yaml:"every"` // Log every Nth snapshot besides beats.
}

// MIDIConfig configures the control surface listener.
type MIDIConfig struct {
	Device string `yaml:"device"` // Input port name (substring match); empty disables MIDI.
}

// StatusConfig configures the status reporter.
type StatusConfig struct {
	Interval time.Duration `yaml:"interval"` // 0 disables the periodic status line.
	Monitor  bool          `yaml:"monitor"`  // Run the terminal monitor instead of log lines.
}

// searchPaths returns the locations tried when no path is given.
func searchPaths() []string {
	paths := []string{"config.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "awesome-potato", "config.yaml"))
	}
	return paths
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations. If no file is found, it uses built-in defaults. After
// loading defaults or from file, it applies environment variable overrides and validates
// the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.Path = path
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		add("log_level %q is not a known level", c.LogLevel)
	}

	// Audio
	if c.Audio.InputDevice < MinDeviceID {
		add("audio.input_device must be >= %d, got %d", MinDeviceID, c.Audio.InputDevice)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		add("audio.sample_rate must be in [%d, %d], got %v", MinSampleRate, MaxSampleRate, c.Audio.SampleRate)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FramesPerBuffer) || c.Audio.FramesPerBuffer < 16 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		add("audio.frames_per_buffer must be a power of 2 in [16, %d], got %d", MaxBufferFrames, c.Audio.FramesPerBuffer)
	}
	if c.Audio.InputChannels < 1 || c.Audio.InputChannels > MaxChannels {
		add("audio.input_channels must be in [1, %d], got %d", MaxChannels, c.Audio.InputChannels)
	}

	// Analysis
	if _, err := analysis.ParseWindowFunc(c.Analysis.Window); err != nil {
		add("analysis.window: %v", err)
	}
	if c.Analysis.HistorySize < 1 {
		add("analysis.history_size must be positive, got %d", c.Analysis.HistorySize)
	}
	if err := c.Tuning().Validate(); err != nil {
		add("analysis: %v", err)
	}
	for name, r := range map[string]analysis.BandRange{"low": c.Analysis.Bands.Low, "mid": c.Analysis.Bands.Mid, "high": c.Analysis.Bands.High} {
		if r.From < 0 || r.To <= r.From {
			add("analysis.bands.%s must satisfy 0 <= from < to, got %v..%v", name, r.From, r.To)
		}
	}

	// Recording
	if c.Recording.Enabled {
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			add("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
		}
	}

	// Outputs
	if s := c.Output.Socket; s.Enabled {
		if s.Path == "" {
			add("output.socket.path must be set when the socket is enabled")
		}
		switch s.Network {
		case "unixgram", "udp", "udp4", "udp6":
		default:
			add("output.socket.network must be unixgram or udp, got %q", s.Network)
		}
		if _, err := sink.ParseCodec(s.Codec); err != nil {
			add("output.socket.codec: %v", err)
		}
	}
	if f := c.Output.FIFO; f.Enabled {
		if f.Path == "" {
			add("output.fifo.path must be set when the fifo is enabled")
		}
		if _, err := sink.ParseFIFOMode(f.Mode); err != nil {
			add("output.fifo.mode: %v", err)
		}
		if f.BeatsPerBar < 1 {
			add("output.fifo.beats_per_bar must be positive, got %d", f.BeatsPerBar)
		}
	}
	if c.Output.WebSocket.Enabled && c.Output.WebSocket.Addr == "" {
		add("output.websocket.addr must be set when the websocket is enabled")
	}
	if c.Status.Interval < 0 {
		add("status.interval must not be negative, got %v", c.Status.Interval)
	}

	return errors.Join(errs...)
}

// Tuning returns the hot reloadable part of the analysis section.
func (c *Config) Tuning() analysis.Tuning {
	return analysis.Tuning{
		PeakThreshold:   c.Analysis.PeakThreshold,
		MinBeatInterval: c.Analysis.MinBeatInterval,
	}
}

// AnalyzerOptions converts the audio and analysis sections into analyzer options.
func (c *Config) AnalyzerOptions() (analysis.Options, error) {
	w, err := analysis.ParseWindowFunc(c.Analysis.Window)
	if err != nil {
		return analysis.Options{}, err
	}
	return analysis.Options{
		SampleRate:  c.Audio.SampleRate,
		BlockSize:   c.Audio.FramesPerBuffer,
		Window:      w,
		HistorySize: c.Analysis.HistorySize,
		Bands: [analysis.NumBands]analysis.BandRange{
			analysis.Low:  c.Analysis.Bands.Low,
			analysis.Mid:  c.Analysis.Bands.Mid,
			analysis.High: c.Analysis.Bands.High,
		},
		Tuning: c.Tuning(),
	}, nil
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Malformed values are logged and ignored.
func (c *Config) applyEnvOverrides() {
	envString("ENV_LOG_LEVEL", &c.LogLevel)

	// ENV_AUDIO_{...}
	envInt("ENV_AUDIO_DEVICE", &c.Audio.InputDevice)
	envString("ENV_AUDIO_DEVICE_NAME", &c.Audio.DeviceName)
	envFloat("ENV_AUDIO_SAMPLE_RATE", &c.Audio.SampleRate)
	envInt("ENV_AUDIO_FRAMES_PER_BUFFER", &c.Audio.FramesPerBuffer)
	envInt("ENV_AUDIO_CHANNELS", &c.Audio.InputChannels)

	// ENV_ANALYSIS_{...}
	envString("ENV_ANALYSIS_WINDOW", &c.Analysis.Window)
	envFloat("ENV_ANALYSIS_PEAK_THRESHOLD", &c.Analysis.PeakThreshold)
	envInt("ENV_ANALYSIS_MIN_BEAT_INTERVAL", &c.Analysis.MinBeatInterval)

	// ENV_{SOCKET,FIFO,WS,...}
	envString("ENV_SOCKET_PATH", &c.Output.Socket.Path)
	envString("ENV_SOCKET_CODEC", &c.Output.Socket.Codec)
	envBool("ENV_FIFO_ENABLED", &c.Output.FIFO.Enabled)
	envString("ENV_FIFO_PATH", &c.Output.FIFO.Path)
	envString("ENV_FIFO_MODE", &c.Output.FIFO.Mode)
	envBool("ENV_AWESOME_ENABLED", &c.Output.Awesome.Enabled)
	envBool("ENV_WS_ENABLED", &c.Output.WebSocket.Enabled)
	envString("ENV_WS_ADDR", &c.Output.WebSocket.Addr)
	envString("ENV_MIDI_DEVICE", &c.MIDI.Device)
	envDuration("ENV_STATUS_INTERVAL", &c.Status.Interval)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		log.Debugf("configuration: overriding from %s: %q", key, val)
	}
}

func envInt(key string, dst *int) {
	if val, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
			return
		}
		*dst = n
		log.Debugf("configuration: overriding from %s: %d", key, n)
	}
}

func envFloat(key string, dst *float64) {
	if val, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
			return
		}
		*dst = f
		log.Debugf("configuration: overriding from %s: %v", key, f)
	}
}

func envBool(key string, dst *bool) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
			return
		}
		*dst = b
		log.Debugf("configuration: overriding from %s: %v", key, b)
	}
}

func envDuration(key string, dst *time.Duration) {
	if val, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
			return
		}
		*dst = d
		log.Debugf("configuration: overriding from %s: %s", key, d)
	}
}
