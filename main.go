// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/keeperofkey/awesome-potato/cmd"
	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/internal/audio"
	"github.com/keeperofkey/awesome-potato/internal/config"
	"github.com/keeperofkey/awesome-potato/internal/controls"
	"github.com/keeperofkey/awesome-potato/internal/log"
	"github.com/keeperofkey/awesome-potato/internal/sink"
	"github.com/keeperofkey/awesome-potato/internal/status"
	"github.com/keeperofkey/awesome-potato/internal/tui"
	"github.com/keeperofkey/awesome-potato/pkg/build"
)

// main is the entry point for the audio feature engine.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Parse command line arguments over the config file
//   - Initialize PortAudio, or open the WAV file
//   - Build the analyzer, the sinks and the MIDI listener
//   - Start recording if enabled
//
// 2. Concurrent Phase (Hot Path):
//   - The capture callback analyzes each block and hands the snapshot to
//     the sink worker
//   - Status lines or the monitor read the latest snapshot
//
// 3. Shutdown Phase (Cold Path):
//   - Stop the source and wait for the block in flight
//   - Stop status, recording, sinks, MIDI, then terminate PortAudio
func main() {
	inv, err := cmd.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if inv.Command == "" {
		return // help or version
	}
	setLogLevel(inv.Config.LogLevel)

	switch inv.Command {
	case cmd.CommandList:
		err = listDevices(inv.Interactive)
	default:
		err = run(inv.Config)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

func setLogLevel(name string) {
	if level, ok := log.ParseLevel(name); ok {
		log.SetLevel(level)
	}
}

func listDevices(interactive bool) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if interactive {
		sel, ok, err := tui.PickDevice()
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("%s %s\n", build.Get().Name, sel.Flags())
		}
		return nil
	}

	if err := audio.ListDevices(os.Stdout); err != nil {
		return err
	}
	controls.ListPorts(os.Stdout)
	controls.CloseDriver()
	return nil
}

// run starts the engine and blocks until a signal, the end of a WAV file, or
// the monitor is closed. Deferred steps run in reverse, which gives the
// shutdown order: source, status, recording, sinks, MIDI, PortAudio.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ==================== STARTUP PHASE (Cold Path) ====================

	src, format, sourceDone, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Stop()
	if format.portAudio {
		defer func() {
			if err := audio.Terminate(); err != nil {
				log.Errorf("%v", err)
			}
		}()
	}

	opts, err := cfg.AnalyzerOptions()
	if err != nil {
		return err
	}
	opts.SampleRate = format.sampleRate
	analyzer, err := analysis.NewAnalyzer(opts)
	if err != nil {
		return err
	}

	state := controls.NewState()
	if cfg.MIDI.Device != "" {
		listener := controls.NewListener(state, cfg.MIDI.Device, controls.DefaultRetry)
		listener.Start()
		defer func() {
			listener.Close()
			controls.CloseDriver()
		}()
	}

	out, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	async := sink.NewAsync(out)
	async.Start()
	defer func() {
		if err := async.Close(); err != nil {
			log.Errorf("Closing sinks: %v", err)
		}
		st := async.Stats()
		log.Infof("Sinks closed: %d published, %d failed, %d dropped", st.Published, st.Failed, st.Dropped)
	}()

	engine, err := audio.NewEngine(src, analyzer, async)
	if err != nil {
		return err
	}

	if cfg.Recording.Enabled {
		rec, err := newRecorder(cfg, format)
		if err != nil {
			return err
		}
		if err := engine.StartRecording(rec); err != nil {
			rec.Close()
			return err
		}
		defer func() {
			if err := engine.StopRecording(); err != nil {
				log.Errorf("Stopping recording: %v", err)
			}
			fmt.Printf("\nRecording saved to: %s\n", rec.Path())
		}()
	}

	reporter := status.NewReporter(analyzer, state, cfg.Status.Interval)
	defer reporter.Stop()

	if cfg.Path != "" {
		watcher, err := config.NewWatcher(cfg)
		if err != nil {
			log.Warnf("Config hot reload disabled: %v", err)
		} else {
			watcher.OnReload(func(c *config.Config) {
				if err := analyzer.SetTuning(c.Tuning()); err != nil {
					log.Warnf("Config reload: %v", err)
					return
				}
				setLogLevel(c.LogLevel)
				log.Infof("Config reloaded: peak_threshold=%.2f min_beat_interval=%d",
					c.Analysis.PeakThreshold, c.Analysis.MinBeatInterval)
			})
			defer watcher.Close()
		}
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	if err := engine.Start(); err != nil {
		return err
	}
	defer func() {
		if err := engine.Stop(); err != nil {
			log.Errorf("Stopping engine: %v", err)
		}
		st := engine.Stats()
		log.Infof("Engine stopped: %d frames, %d unpublished", st.Frames, st.Unpublished)
	}()

	if cfg.Status.Monitor {
		return runMonitor(ctx, stop, analyzer, state, sourceDone)
	}

	reporter.Start()
	log.Infof("Starting audio analysis... Press Ctrl+C to exit")
	select {
	case <-ctx.Done():
		log.Infof("Shutting down")
	case <-sourceDone:
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	return nil
}

type sourceFormat struct {
	sampleRate float64
	channels   int
	portAudio  bool
}

// openSource returns the WAV file source when one is configured, otherwise
// the PortAudio input stream. The returned channel closes when a WAV file
// ends; it is nil for live input.
func openSource(cfg *config.Config) (audio.Source, sourceFormat, <-chan struct{}, error) {
	if cfg.Audio.WAVFile != "" {
		w, err := audio.OpenWAV(cfg.Audio.WAVFile, cfg.Audio.FramesPerBuffer, cfg.Audio.Realtime)
		if err != nil {
			return nil, sourceFormat{}, nil, err
		}
		log.Infof("Analyzing %s: %.0f Hz, %d channels", cfg.Audio.WAVFile, w.SampleRate(), w.Channels())
		return w, sourceFormat{sampleRate: w.SampleRate(), channels: w.Channels()}, w.Done(), nil
	}

	if err := audio.Initialize(); err != nil {
		return nil, sourceFormat{}, nil, err
	}
	fail := func(err error) (audio.Source, sourceFormat, <-chan struct{}, error) {
		audio.Terminate()
		return nil, sourceFormat{}, nil, err
	}

	dev, err := audio.SelectInputDevice(cfg.Audio.InputDevice, cfg.Audio.DeviceName)
	if err != nil {
		return fail(err)
	}
	s, err := audio.NewStreamSource(audio.StreamOptions{
		Device:          dev,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		Channels:        cfg.Audio.InputChannels,
		LowLatency:      cfg.Audio.LowLatency,
	})
	if err != nil {
		return fail(err)
	}
	format := sourceFormat{
		sampleRate: cfg.Audio.SampleRate,
		channels:   cfg.Audio.InputChannels,
		portAudio:  true,
	}
	return s, format, nil, nil
}

// buildSinks opens every enabled output. On error the ones already open are
// closed.
func buildSinks(cfg *config.Config) (*sink.Multi, error) {
	var sinks []sink.Sink
	fail := func(err error) (*sink.Multi, error) {
		sink.NewMulti(sinks...).Close()
		return nil, err
	}
	out := cfg.Output

	if out.Socket.Enabled {
		codec, err := sink.ParseCodec(out.Socket.Codec)
		if err != nil {
			return fail(err)
		}
		d, err := sink.NewDatagramSink(sink.DatagramOptions{
			Network:      out.Socket.Network,
			Address:      out.Socket.Path,
			Codec:        codec,
			WriteTimeout: out.Socket.WriteTimeout,
		})
		if err != nil {
			return fail(fmt.Errorf("socket output: %w", err))
		}
		sinks = append(sinks, d)
	}

	if out.FIFO.Enabled {
		mode, err := sink.ParseFIFOMode(out.FIFO.Mode)
		if err != nil {
			return fail(err)
		}
		f, err := sink.NewFIFOSink(sink.FIFOOptions{
			Path:        out.FIFO.Path,
			Mode:        mode,
			BeatsPerBar: out.FIFO.BeatsPerBar,
		})
		if err != nil {
			return fail(fmt.Errorf("fifo output: %w", err))
		}
		sinks = append(sinks, f)
	}

	if out.Awesome.Enabled {
		eval, err := sink.DialAwesome()
		if err != nil {
			return fail(fmt.Errorf("awesome output: %w", err))
		}
		a, err := sink.NewAwesomeSink(eval, out.Awesome.Interval)
		if err != nil {
			eval.Close()
			return fail(fmt.Errorf("awesome output: %w", err))
		}
		sinks = append(sinks, a)
	}

	if out.WebSocket.Enabled {
		ws, err := sink.NewWebSocketSink(out.WebSocket.Addr)
		if err != nil {
			return fail(fmt.Errorf("websocket output: %w", err))
		}
		sinks = append(sinks, ws)
	}

	if out.Log.Enabled {
		sinks = append(sinks, sink.NewLogSink(out.Log.Every))
	}

	m := sink.NewMulti(sinks...)
	if m.Len() == 0 {
		log.Warn("No outputs enabled; snapshots are only shown in status lines")
	}
	return m, nil
}

func newRecorder(cfg *config.Config, format sourceFormat) (*audio.Recorder, error) {
	path := cfg.Recording.OutputFile
	if path == "" {
		if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("recording directory: %w", err)
		}
		path = audio.RecordingFileName(cfg.Recording.OutputDir, time.Now())
	}
	return audio.NewRecorder(path, format.sampleRate, format.channels, cfg.Audio.FramesPerBuffer, cfg.Recording.BitDepth)
}

// runMonitor shows the terminal monitor until it is closed, a signal
// arrives or the source ends. Log output moves to a file meanwhile.
func runMonitor(ctx context.Context, cancel context.CancelFunc, snaps analysis.SnapshotProvider, state *controls.State, sourceDone <-chan struct{}) error {
	logPath := filepath.Join(os.TempDir(), build.Get().Name+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("monitor log file: %w", err)
	}
	log.SetOutput(logFile)
	defer func() {
		log.SetOutput(os.Stderr)
		logFile.Close()
	}()

	if sourceDone != nil {
		go func() {
			select {
			case <-sourceDone:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	m := tui.NewMonitor(build.Get().Name, snaps, state, tui.DefaultRefresh)
	if err := tui.RunMonitor(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Printf("Logs written to %s\n", logPath)
	return nil
}
