// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/gemchat/internal/logging"
)

// =============================================================================
// SETTINGS FILE WATCHER
// =============================================================================

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// Reload carries freshly loaded settings to the interactive loop.
type Reload struct {
	Settings *Settings
	Warnings []*ConfigError
}

// Watcher reloads the settings file when it changes on disk.
// The parent directory is watched so that editors which save by rename
// are seen too.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(Reload)

	mu      sync.Mutex
	pending *time.Timer
}

// NewWatcher creates a watcher for the settings file at path. onChange is
// called from the watcher goroutine; callers hand the result to their own
// control path (the REPL uses a channel).
func NewWatcher(path string, onChange func(Reload)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		watcher:  fw,
		debounce: DefaultDebounce,
		onChange: onChange,
	}, nil
}

// Watch processes events until ctx is cancelled or Close is called.
func (w *Watcher) Watch(ctx context.Context) {
	log := logging.L().WithField("path", w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				log.WithField("op", event.Op.String()).Debug("settings file changed")
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("settings watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	s, warnings := Load(w.path)
	logging.L().WithField("warnings", len(warnings)).Info("settings reloaded")
	w.onChange(Reload{Settings: s, Warnings: warnings})
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
