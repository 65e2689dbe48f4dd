// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch observes service source trees and reports which services
// changed, debounced so a burst of saves triggers a single redeploy.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is called with the names of the services whose source trees
// changed, once the debounce window expires. Names are sorted and unique.
type ChangeHandler func(services []string)

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to wait for more changes before triggering.
	// Default: 2s (a redeploy is expensive, so the window is wide).
	DebounceWindow time.Duration

	// IgnorePatterns are name globs for files and directories to skip.
	// Default: [".git", "node_modules", "__pycache__", "*.swp", "*.tmp", "*.log"]
	IgnorePatterns []string

	// BufferSize is the size of the pending-change channel. Default: 1000.
	BufferSize int
}

// DefaultOptions returns the defaults described on Options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 2 * time.Second,
		IgnorePatterns: []string{".git", "node_modules", "__pycache__", "*.swp", "*.tmp", "*.log"},
		BufferSize:     1000,
	}
}

// Watcher maps file system events under a set of service roots back to the
// owning service and batches them with a debounce window.
//
// # Description
//
// Each locally built service contributes one root directory. All
// subdirectories are watched recursively; directories created while watching
// are added on the fly. When the debounce window expires without further
// events, the handler receives the distinct set of changed service names.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine.
type Watcher struct {
	roots   map[string]string // service name -> absolute root
	fsw     *fsnotify.Watcher
	handler ChangeHandler
	opts    Options
	logger  *slog.Logger

	pending  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	running bool
}

// New creates a Watcher over the given service roots.
//
// # Inputs
//
//   - roots: Map of service name to the absolute path of its source tree.
//   - handler: Called with the changed service names after each quiet window.
//   - opts: Optional configuration (nil uses DefaultOptions).
//
// # Outputs
//
//   - *Watcher: Ready to Start.
//   - error: Non-nil if the underlying fsnotify watcher could not be created.
func New(roots map[string]string, handler ChangeHandler, opts *Options, logger *slog.Logger) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		roots:   roots,
		fsw:     fsw,
		handler: handler,
		opts:    *opts,
		logger:  logger,
		pending: make(chan string, opts.BufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Start registers every root recursively and begins dispatching. It returns
// once watching is established; events flow until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for service, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			return err
		}
		w.logger.Debug("watching service source", "service", service, "root", root)
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop halts watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()

		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	})
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// addRecursive registers root and every non-ignored subdirectory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// ignored checks the path's base name against the ignore patterns.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.opts.IgnorePatterns {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// serviceFor resolves the service owning path, if any.
func (w *Watcher) serviceFor(path string) (string, bool) {
	for service, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return service, true
		}
	}
	return "", false
}

// processEvents maps raw fsnotify events onto service names.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}

			service, ok := w.serviceFor(event.Name)
			if !ok {
				continue
			}

			select {
			case w.pending <- service:
			default:
				// Buffer full; the debouncer already has this burst.
			}

			// New directories need their own watch registration.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// debounceLoop accumulates service names and flushes to the handler once the
// window expires without further events.
func (w *Watcher) debounceLoop(ctx context.Context) {
	dirty := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(dirty) > 0 && w.handler != nil {
			services := make([]string, 0, len(dirty))
			for s := range dirty {
				services = append(services, s)
			}
			sort.Strings(services)
			w.handler(services)
			dirty = make(map[string]struct{})
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case service := <-w.pending:
			dirty[service] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.opts.DebounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.DebounceWindow)
			}
		case <-timerC:
			flush()
		}
	}
}
