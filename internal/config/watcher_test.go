// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"testing"
	"time"
)

// replaceFile swaps content in atomically, the way editors save.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloads(t *testing.T) {
	path := writeTempConfig(t, "analysis:\n  peak_threshold: 1.5\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(cfg)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	got := make(chan *Config, 8)
	w.OnReload(func(c *Config) { got <- c })

	replaceFile(t, path, "analysis:\n  peak_threshold: 2.0\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Analysis.PeakThreshold != 2.0 {
				t.Fatalf("reloaded threshold = %v, want 2.0", c.Analysis.PeakThreshold)
			}
			if w.Get().Analysis.PeakThreshold != 2.0 {
				t.Error("Get() does not return the reloaded config")
			}
			return
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestWatcherKeepsConfigOnInvalidEdit(t *testing.T) {
	path := writeTempConfig(t, "analysis:\n  peak_threshold: 1.5\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(cfg)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	called := make(chan struct{}, 8)
	w.OnReload(func(*Config) { called <- struct{}{} })

	replaceFile(t, path, "analysis:\n  peak_threshold: -3\n")
	select {
	case <-called:
		t.Error("callback ran for an invalid configuration")
	case <-time.After(300 * time.Millisecond):
	}
	if w.Get() != cfg {
		t.Error("Get() changed after an invalid edit")
	}
}

func TestNewWatcherNeedsPath(t *testing.T) {
	if _, err := NewWatcher(&Config{}); err == nil {
		t.Error("NewWatcher accepted a config without a path")
	}
	if _, err := NewWatcher(nil); err == nil {
		t.Error("NewWatcher accepted nil")
	}
}

func TestWatcherCloseTwice(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t, "log_level: info\n"))
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	w.Close()
}
