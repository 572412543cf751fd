// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keeperofkey/awesome-potato/internal/config"
	"github.com/keeperofkey/awesome-potato/pkg/build"
)

// Commands selected on the command line.
const (
	CommandRun   = "run"
	CommandList  = "list"
	CommandBeats = "beats"
)

// Invocation is the parsed command line: which command to run and the
// configuration after flags are laid over the file and environment.
type Invocation struct {
	Command     string
	Config      *config.Config
	Interactive bool // list: pick a device in the terminal UI
}

// flagValues mirrors the command line. Only flags the user set are applied.
type flagValues struct {
	configPath string

	device     int
	deviceName string
	sampleRate float64
	blockSize  int
	channels   int
	lowLatency bool

	wav      string
	realtime bool

	record bool
	output string

	socket    string
	codec     string
	fifo      string
	fifoMode  string
	awesome   bool
	ws        string
	midi      string
	monitor   bool
	verbose   bool
	beatsBar  int
	noSocket  bool
	logOutput bool
}

// ParseArgs parses os.Args.
func ParseArgs() (*Invocation, error) {
	return parse(os.Args[1:])
}

func parse(args []string) (*Invocation, error) {
	info := build.Get()
	inv := &Invocation{}
	var fv flagValues

	load := func(c *cobra.Command, command string) error {
		cfg, err := config.LoadConfig(fv.configPath)
		if err != nil {
			return err
		}
		fv.apply(c.Flags().Changed, cfg)
		if command == CommandBeats {
			cfg.Output.Socket.Enabled = false
			cfg.Output.Awesome.Enabled = false
			cfg.Output.WebSocket.Enabled = false
			cfg.Output.FIFO.Enabled = true
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		inv.Command = command
		inv.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Long:          info.Description + ".\n\nCaptures audio, extracts volume, spectrum, bands and beats, and publishes\nthem over a datagram socket, a beat FIFO, AwesomeWM signals and a websocket.",
		Version:       info.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(c *cobra.Command, _ []string) error {
			return load(c, CommandRun)
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio and MIDI input devices",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return load(c, CommandList)
		},
	}
	listCmd.Flags().BoolVarP(&inv.Interactive, "interactive", "i", false,
		"Pick an input device and sample rate in the terminal")

	beatsCmd := &cobra.Command{
		Use:   "beats",
		Short: "Only write beat pulses to the FIFO",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return load(c, CommandBeats)
		},
	}
	beatsCmd.Flags().IntVar(&fv.beatsBar, "beats-per-bar", config.DefaultBeatsPerBar,
		"Beats per bar for the downbeat token in bar mode")

	rootCmd.AddCommand(listCmd, beatsCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", "",
		"Config file (default: ./config.yaml, then the user config directory)")

	// Audio input
	pf.IntVarP(&fv.device, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use the 'list' command to see available devices")
	pf.StringVar(&fv.deviceName, "device-name", "",
		"Pick the input device by name (substring match, monitor devices preferred)")
	pf.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&fv.blockSize, "block-size", "b", config.DefaultFramesPerBuffer,
		"Frames per block, a power of 2 (also the FFT size)")
	pf.IntVarP(&fv.channels, "channels", "c", config.DefaultChannels,
		"Number of input channels (1=mono, 2=stereo)")
	pf.BoolVarP(&fv.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	pf.StringVar(&fv.wav, "wav", "",
		"Analyze a WAV file instead of an input device")
	pf.BoolVar(&fv.realtime, "realtime", false,
		"Pace WAV file playback at its sample rate")

	// Recording
	pf.BoolVarP(&fv.record, "record", "r", false,
		"Record the captured stream to WAV")
	pf.StringVarP(&fv.output, "output", "o", "",
		"Recording file name. Default is recording_YYYYMMDD_HHMMSS.wav in the recording directory")

	// Outputs
	pf.StringVar(&fv.socket, "socket", config.DefaultSocketPath,
		"Datagram socket to send snapshots to")
	pf.BoolVar(&fv.noSocket, "no-socket", false,
		"Do not send snapshots to the datagram socket")
	pf.StringVar(&fv.codec, "codec", "json",
		"Datagram encoding: json or binary")
	pf.StringVar(&fv.fifo, "fifo", "",
		"Write beat pulses to this FIFO")
	pf.StringVar(&fv.fifoMode, "fifo-mode", "pulse",
		"FIFO token mode: pulse, beat or bar")
	pf.BoolVar(&fv.awesome, "awesome", false,
		"Emit glitch::audio, glitch::fft and glitch::beat signals in AwesomeWM over D-Bus")
	pf.StringVar(&fv.ws, "ws", "",
		"Serve snapshots to a visualiser over a websocket on this address, e.g. "+config.DefaultWSAddr)
	pf.BoolVar(&fv.logOutput, "log-snapshots", false,
		"Log snapshots at debug level")

	// Controls and display
	pf.StringVar(&fv.midi, "midi-device", "",
		"MIDI input port to read control changes from (substring match)")
	pf.BoolVar(&fv.monitor, "monitor", false,
		"Show the live terminal monitor")
	pf.BoolVarP(&fv.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return inv, nil
}

// apply overlays the flags that were set on cfg.
func (fv *flagValues) apply(set func(name string) bool, cfg *config.Config) {
	if set("device") {
		cfg.Audio.InputDevice = fv.device
	}
	if set("device-name") {
		cfg.Audio.DeviceName = fv.deviceName
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if set("block-size") {
		cfg.Audio.FramesPerBuffer = fv.blockSize
	}
	if set("channels") {
		cfg.Audio.InputChannels = fv.channels
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if set("wav") {
		cfg.Audio.WAVFile = fv.wav
	}
	if set("realtime") {
		cfg.Audio.Realtime = fv.realtime
	}

	if set("record") {
		cfg.Recording.Enabled = fv.record
	}
	if set("output") {
		cfg.Recording.OutputFile = fv.output
		cfg.Recording.Enabled = true
	}

	if set("socket") {
		cfg.Output.Socket.Path = fv.socket
		cfg.Output.Socket.Enabled = true
	}
	if set("no-socket") && fv.noSocket {
		cfg.Output.Socket.Enabled = false
	}
	if set("codec") {
		cfg.Output.Socket.Codec = fv.codec
	}
	if set("fifo") {
		cfg.Output.FIFO.Path = fv.fifo
		cfg.Output.FIFO.Enabled = true
	}
	if set("fifo-mode") {
		cfg.Output.FIFO.Mode = fv.fifoMode
	}
	if set("beats-per-bar") {
		cfg.Output.FIFO.BeatsPerBar = fv.beatsBar
	}
	if set("awesome") {
		cfg.Output.Awesome.Enabled = fv.awesome
	}
	if set("ws") {
		cfg.Output.WebSocket.Addr = fv.ws
		cfg.Output.WebSocket.Enabled = true
	}
	if set("log-snapshots") {
		cfg.Output.Log.Enabled = fv.logOutput
	}

	if set("midi-device") {
		cfg.MIDI.Device = fv.midi
	}
	if set("monitor") {
		cfg.Status.Monitor = fv.monitor
	}
	if set("verbose") && fv.verbose {
		cfg.LogLevel = "debug"
	}
}
