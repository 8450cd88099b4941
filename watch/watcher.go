// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch turns filesystem events into invalidation callbacks.
//
// A Watcher observes a project root recursively and reports changed files
// that pass the manifest glob filters. Bursts of events for the same file
// (editors write, rename, chmod in quick succession) are coalesced: changes
// accumulate in a pending set that is flushed at a rate-limited cadence, so
// the callback fires once per file per burst.
package watch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/stackscope/manifest"
)

var (
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("watcher already started")

	// ErrClosed is returned when starting a closed watcher.
	ErrClosed = errors.New("watcher is closed")
)

// Options configures a Watcher.
type Options struct {
	// Includes and Excludes filter reported paths; see manifest.GlobMatcher.
	Includes []string
	Excludes []string

	// FlushInterval is the minimum spacing between callback flushes.
	// Default: 250ms.
	FlushInterval time.Duration

	// Logger receives watcher diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// WatchOption is a functional option for NewWatcher.
type WatchOption func(*Options)

// WithIncludes sets the include patterns.
func WithIncludes(patterns ...string) WatchOption {
	return func(o *Options) {
		o.Includes = patterns
	}
}

// WithExcludes sets the exclude patterns.
func WithExcludes(patterns ...string) WatchOption {
	return func(o *Options) {
		o.Excludes = patterns
	}
}

// WithFlushInterval sets the minimum spacing between flushes.
func WithFlushInterval(d time.Duration) WatchOption {
	return func(o *Options) {
		o.FlushInterval = d
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) WatchOption {
	return func(o *Options) {
		o.Logger = l
	}
}

// Watcher reports changed files under a root.
type Watcher struct {
	root     string
	onChange func(rel string)
	matcher  *manifest.GlobMatcher
	limiter  *rate.Limiter
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	started bool
	closed  bool
	done    chan struct{}
}

// NewWatcher creates a watcher for root. onChange receives slash-separated
// paths relative to root, outside the event loop's critical section but
// from the watcher goroutine.
func NewWatcher(root string, onChange func(rel string), opts ...WatchOption) (*Watcher, error) {
	options := Options{FlushInterval: 250 * time.Millisecond}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     root,
		onChange: onChange,
		matcher:  manifest.NewGlobMatcher(options.Includes, options.Excludes),
		limiter:  rate.NewLimiter(rate.Every(options.FlushInterval), 1),
		logger:   options.Logger,
		fsw:      fsw,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the root tree and launches the event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.loop()
	return nil
}

// Close stops the watcher. Pending changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	err := w.fsw.Close()
	if started {
		<-w.done
	}
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)

	var flush <-chan time.Time
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
			if flush == nil && w.hasPending() {
				delay := w.limiter.Reserve().Delay()
				flush = time.After(delay)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))

		case <-flush:
			flush = nil
			w.flush()
			if w.hasPending() {
				flush = time.After(w.limiter.Reserve().Delay())
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories join the watch set so nested changes keep arriving.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn("watching new directory failed",
					slog.String("path", event.Name),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !w.matcher.Match(rel) {
		return
	}

	w.mu.Lock()
	w.pending[rel] = struct{}{}
	w.mu.Unlock()
}

func (w *Watcher) hasPending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) > 0
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batch := make([]string, 0, len(w.pending))
	for rel := range w.pending {
		batch = append(batch, rel)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, rel := range batch {
		w.onChange(rel)
	}
}
