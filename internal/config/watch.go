// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file for changes and reloads the global
// configuration when it is rewritten. Editors replace files with rename
// or truncate-and-write, so the watcher observes the parent directory and
// filters events for the config file itself.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	onReload func(*Config)
}

// Watch starts watching the default config file. onReload is called with
// the fresh snapshot after each successful reload; it may be nil. The
// watcher stops when ctx is cancelled.
func Watch(ctx context.Context, onReload func(*Config)) (*Watcher, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return WatchPath(ctx, path, onReload)
}

// WatchPath starts watching a specific config file path.
func WatchPath(ctx context.Context, path string, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, fsw: fsw, onReload: onReload}
	go w.run(ctx)
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	// Editors emit bursts of events per save; coalesce them so one save
	// triggers one reload.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(100 * time.Millisecond)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG: watch error: %v", err)

		case <-pending:
			pending = nil
			if err := ReloadGlobal(); err != nil {
				log.Printf("CONFIG: reload failed, keeping previous config: %v", err)
				continue
			}
			log.Printf("CONFIG: reloaded %s", w.path)
			if w.onReload != nil {
				w.onReload(Global())
			}
		}
	}
}
