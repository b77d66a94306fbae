// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reports debounced changes of a single source file.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change observed for the file.
type Op int

const (
	// OpCreate indicates the file was (re)created, as editors do on save.
	OpCreate Op = iota

	// OpWrite indicates the file was modified in place.
	OpWrite

	// OpRemove indicates the file was deleted or renamed away.
	OpRemove
)

// String returns the string representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is the last event of a debounce window.
type Change struct {
	Path string
	Op   Op
	Time time.Time

	// Events is the number of raw events coalesced into this change.
	Events int
}

// Handler is called with each debounced change, from a single goroutine.
type Handler func(ctx context.Context, change Change)

// DefaultDebounce is used when no debounce window is configured.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches one file with debouncing.
//
// # Description
//
// The parent directory is watched rather than the file itself, so the
// watch survives editors that save by writing a temporary file and
// renaming it over the original. Events for other entries of the
// directory are ignored.
//
// # Thread Safety
//
// Run must be called once. Close may be called from any goroutine.
type Watcher struct {
	path     string
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger
	fs       *fsnotify.Watcher

	closeOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long to wait for more events before calling the
// handler.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger for watch errors.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for path.
//
// # Inputs
//
//   - path: The file to watch. Its directory must exist.
//   - handler: Called with every debounced change.
//   - opts: Optional configuration.
//
// # Outputs
//
//   - *Watcher: Ready to Run.
//   - error: Non-nil if the directory cannot be watched.
func New(path string, handler Handler, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		fs:       fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Run delivers changes until ctx is canceled or Close is called.
//
// A change still pending in the debounce window when ctx is canceled is
// dropped.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	var (
		pending *Change
		timer   *time.Timer
		timerC  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}

			if pending == nil {
				pending = &Change{Path: w.path}
			}
			pending.Op = convertOp(event.Op)
			pending.Time = time.Now()
			pending.Events++

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			if pending != nil && w.handler != nil {
				w.handler(ctx, *pending)
			}
			pending = nil

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watch error",
				slog.String("path", w.path),
				slog.String("error", err.Error()))
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fs.Close()
	})
	return err
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpRemove
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpWrite
	}
}
