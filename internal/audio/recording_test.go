// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"github.com/keeperofkey/awesome-potato/pkg/signalgen"
)

func decodeWAV(t *testing.T, path string) *wav.Decoder {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	t.Cleanup(func() { f.Close() })
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatalf("%s is not a valid WAV file", path)
	}
	return dec
}

func TestRecordingFileName(t *testing.T) {
	now := time.Date(2024, 3, 9, 21, 4, 5, 0, time.UTC)
	got := RecordingFileName("/tmp/rec", now)
	if want := "/tmp/rec/recording_20240309_210405.wav"; got != want {
		t.Errorf("RecordingFileName = %q, want %q", got, want)
	}
}

func TestRecorderWritesSamples(t *testing.T) {
	tests := []struct {
		bitDepth int
		want     int // expected value of a 0.5 sample
	}{
		{16, 16383},
		{24, 4194303},
		{32, 1073741823},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-bit", tt.bitDepth), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.wav")
			r, err := NewRecorder(path, testSampleRate, testChannels, testBlock, tt.bitDepth)
			if err != nil {
				t.Fatalf("NewRecorder: %v", err)
			}
			frame := analysis.Frame{Samples: signalgen.Constant(testBlock, testChannels, 0.5), Channels: testChannels}
			for range 4 {
				r.Write(frame)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			dec := decodeWAV(t, path)
			if int(dec.NumChans) != testChannels || dec.SampleRate != testSampleRate || int(dec.BitDepth) != tt.bitDepth {
				t.Errorf("format = %d ch, %d Hz, %d bit", dec.NumChans, dec.SampleRate, dec.BitDepth)
			}
			buf, err := dec.FullPCMBuffer()
			if err != nil {
				t.Fatalf("FullPCMBuffer: %v", err)
			}
			if len(buf.Data) != 4*testBlock*testChannels {
				t.Fatalf("decoded %d samples, want %d", len(buf.Data), 4*testBlock*testChannels)
			}
			for i, v := range buf.Data[:8] {
				if v != tt.want {
					t.Errorf("sample %d = %d, want %d", i, v, tt.want)
				}
			}
		})
	}
}

func TestRecorderClipsSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	r, err := NewRecorder(path, testSampleRate, 1, 4, 16)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	r.Write(analysis.Frame{Samples: []float32{2, -2, 0, -0.25}, Channels: 1})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	buf, err := decodeWAV(t, path).FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	want := []int{32767, -32767, 0, -8191}
	for i, v := range want {
		if buf.Data[i] != v {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], v)
		}
	}
}

func TestRecorderErrorCases(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		desc     string
		path     string
		bitDepth int
		channels int
	}{
		{"Invalid path", "/nonexistent/path/file.wav", 16, 2},
		{"Unsupported bit depth", filepath.Join(dir, "a.wav"), 12, 2},
		{"No channels", filepath.Join(dir, "b.wav"), 16, 0},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := NewRecorder(tt.path, testSampleRate, tt.channels, testBlock, tt.bitDepth); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRecorderDropsOversizedAndClosedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.wav")
	r, err := NewRecorder(path, testSampleRate, 1, 4, 16)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	r.Write(analysis.Frame{Samples: make([]float32, 8), Channels: 1})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	r.Write(analysis.Frame{Samples: make([]float32, 4), Channels: 1})

	if written, dropped := r.Blocks(); written != 0 || dropped != 1 {
		t.Errorf("Blocks = %d written, %d dropped; want 0, 1", written, dropped)
	}
}

func TestRecorderWriteNoAllocs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.wav")
	r, err := NewRecorder(path, testSampleRate, testChannels, testBlock, 16)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer r.Close()

	frame := analysis.Frame{Samples: signalgen.Sine(testBlock, testChannels, testSampleRate, 440, 0.5), Channels: testChannels}
	allocs := testing.AllocsPerRun(100, func() {
		r.Write(frame)
	})
	if allocs > 0 {
		t.Errorf("Recorder.Write allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkRecorderWrite(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.wav")
	r, err := NewRecorder(path, testSampleRate, testChannels, testBlock, 16)
	if err != nil {
		b.Fatalf("NewRecorder: %v", err)
	}
	defer r.Close()
	frame := analysis.Frame{Samples: signalgen.Sine(testBlock, testChannels, testSampleRate, 440, 0.5), Channels: testChannels}

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		r.Write(frame)
	}
}
