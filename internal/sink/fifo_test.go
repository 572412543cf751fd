// SPDX-License-Identifier: MIT
package sink

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keeperofkey/awesome-potato/internal/analysis"
	"golang.org/x/sys/unix"
)

var beatSnapshot = analysis.Snapshot{Peak: true, Beat: true}

// openReader opens the read end without blocking and returns a function that
// drains what has been written so far.
func openReader(t *testing.T, path string) func() string {
	t.Helper()
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	t.Cleanup(func() { unix.Close(fd) })
	return func() string {
		buf := make([]byte, 4096)
		n, err := unix.Read(fd, buf)
		if err != nil && err != unix.EAGAIN {
			t.Fatalf("read: %v", err)
		}
		if n < 0 {
			n = 0
		}
		return string(buf[:n])
	}
}

func TestFIFOSinkNoReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beat_fifo")
	f, err := NewFIFOSink(FIFOOptions{Path: path})
	if err != nil {
		t.Fatalf("NewFIFOSink: %v", err)
	}
	defer f.Close()

	fi, err := os.Stat(path)
	if err != nil || fi.Mode()&fs.ModeNamedPipe == 0 {
		t.Fatalf("fifo not created: %v %v", fi, err)
	}
	if f.Publish(beatSnapshot) {
		t.Error("Publish() = true with no reader")
	}
	if !f.Publish(analysis.Snapshot{Peak: true}) {
		t.Error("Publish() of a non-beat should succeed without writing")
	}
	if err := f.write(tokenPulse); !errors.Is(err, ErrNoReader) {
		t.Errorf("write() = %v, want ErrNoReader", err)
	}
}

func TestFIFOSinkTokens(t *testing.T) {
	tests := []struct {
		name string
		mode FIFOMode
		want string
	}{
		{"pulse", ModePulse, "1\n1\n1\n1\n1\n"},
		{"beat", ModeBeat, "beat\nbeat\nbeat\nbeat\nbeat\n"},
		{"bar", ModeBar, "downbeat\nbeat\ndownbeat\nbeat\ndownbeat\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "beat_fifo")
			f, err := NewFIFOSink(FIFOOptions{Path: path, Mode: tt.mode, BeatsPerBar: 2})
			if err != nil {
				t.Fatalf("NewFIFOSink: %v", err)
			}
			defer f.Close()
			read := openReader(t, path)

			for i := 0; i < 5; i++ {
				if !f.Publish(beatSnapshot) {
					t.Fatalf("Publish %d = false with a reader", i)
				}
			}
			if got := read(); got != tt.want {
				t.Errorf("read %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFIFOSinkReaderComesLater(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beat_fifo")
	f, err := NewFIFOSink(FIFOOptions{Path: path})
	if err != nil {
		t.Fatalf("NewFIFOSink: %v", err)
	}
	defer f.Close()

	if f.Publish(beatSnapshot) {
		t.Fatal("Publish() = true before a reader exists")
	}
	read := openReader(t, path)
	if !f.Publish(beatSnapshot) {
		t.Fatal("Publish() = false once a reader exists")
	}
	if got := read(); got != "1\n" {
		t.Errorf("read %q, want one pulse", got)
	}
}

func TestFIFOSinkClose(t *testing.T) {
	dir := t.TempDir()

	created := filepath.Join(dir, "created")
	f, err := NewFIFOSink(FIFOOptions{Path: created})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(created); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("created fifo still present: %v", err)
	}
	if f.Publish(beatSnapshot) {
		t.Error("Publish() = true after Close")
	}

	existing := filepath.Join(dir, "existing")
	if err := unix.Mkfifo(existing, 0o600); err != nil {
		t.Fatal(err)
	}
	f, err = NewFIFOSink(FIFOOptions{Path: existing})
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := os.Stat(existing); err != nil {
		t.Errorf("pre-existing fifo removed: %v", err)
	}
}

func TestNewFIFOSinkRejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewFIFOSink(FIFOOptions{Path: path})
	if err == nil || !strings.Contains(err.Error(), "not a fifo") {
		t.Errorf("NewFIFOSink() = %v, want not a fifo error", err)
	}
}

func TestParseFIFOMode(t *testing.T) {
	for in, want := range map[string]FIFOMode{"": ModePulse, "pulse": ModePulse, "BEAT": ModeBeat, "bar": ModeBar, "downbeat": ModeBar} {
		if got, err := ParseFIFOMode(in); err != nil || got != want {
			t.Errorf("ParseFIFOMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFIFOMode("tempo"); err == nil {
		t.Error("ParseFIFOMode accepted an unknown mode")
	}
}
