// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/keeperofkey/awesome-potato/internal/log"
)

// Watcher reloads a configuration file when it changes on disk and hands each
// valid result to the registered callbacks. An invalid edit is logged and the
// previous configuration stays in effect.
type Watcher struct {
	path string

	mu   sync.RWMutex
	cfg  *Config
	subs []func(*Config)

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewWatcher starts watching cfg.Path. The directory is watched rather than
// the file so editors that replace the file on save are still seen.
func NewWatcher(cfg *Config) (*Watcher, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("config watcher: configuration was not loaded from a file")
	}
	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path: path,
		cfg:  cfg,
		fsw:  fsw,
		done: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	log.Infof("Config: watching %s for changes", path)
	return w, nil
}

// OnReload registers fn to be called with every successfully reloaded config.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Get returns the current configuration.
func (w *Watcher) Get() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Errorf("Config: watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		log.Errorf("Config: reload of %s failed, keeping previous settings: %v", w.path, err)
		return
	}

	w.mu.Lock()
	w.cfg = cfg
	subs := append([]func(*Config)(nil), w.subs...)
	w.mu.Unlock()

	log.Infof("Config: reloaded %s", w.path)
	for _, fn := range subs {
		fn(cfg)
	}
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}
