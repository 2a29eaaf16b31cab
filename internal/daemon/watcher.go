// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// RunWatcher watches runsRoot for new run directories and, within each,
// writes to events.jsonl, debouncing rapid-fire writes the way a single
// step's worth of event appends naturally comes in bursts.
type RunWatcher struct {
	layout     *runstore.Layout
	watcher    *fsnotify.Watcher
	logger     *zap.Logger
	debounceMs int
	onChange   func(runID swarmtypes.RunID)

	watchedDirs map[string]bool
	mu          sync.Mutex

	debounceTimers map[swarmtypes.RunID]*time.Timer
	debounceMu     sync.Mutex

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRunWatcher builds a RunWatcher. onChange is invoked (debounced) once
// per run whose events.jsonl changed.
func NewRunWatcher(layout *runstore.Layout, logger *zap.Logger, onChange func(runID swarmtypes.RunID)) (*RunWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &RunWatcher{
		layout:         layout,
		watcher:        w,
		logger:         logger,
		debounceMs:     500,
		onChange:       onChange,
		watchedDirs:    make(map[string]bool),
		debounceTimers: make(map[swarmtypes.RunID]*time.Timer),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// Start watches runsRoot for new run directories and begins the event
// loop in a goroutine. Existing runs are picked up immediately.
func (w *RunWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.layout.RunsRoot, 0o750); err != nil {
		return err
	}
	if err := w.watcher.Add(w.layout.RunsRoot); err != nil {
		return err
	}

	runs, err := w.layout.ListRuns()
	if err != nil {
		return err
	}
	for _, runID := range runs {
		w.addRunDir(runID)
	}

	go w.loop(ctx)
	return nil
}

// Stop closes the underlying fsnotify watcher and waits for the loop to
// exit.
func (w *RunWatcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *RunWatcher) addRunDir(runID swarmtypes.RunID) {
	dir := w.layout.RunBase(runID)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watchedDirs[dir] {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("daemon: watch run dir failed", zap.String("run_id", string(runID)), zap.Error(err))
		return
	}
	w.watchedDirs[dir] = true
}

func (w *RunWatcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("daemon: watcher error", zap.Error(err))
		}
	}
}

func (w *RunWatcher) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)

	// A new run directory appearing directly under runs_root: start
	// watching it too, so its own events.jsonl writes are seen.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRunDir(swarmtypes.RunID(name))
			return
		}
	}

	if name != "events.jsonl" {
		return
	}
	runID := swarmtypes.RunID(filepath.Base(filepath.Dir(event.Name)))
	w.debounce(runID)
}

func (w *RunWatcher) debounce(runID swarmtypes.RunID) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[runID]; ok {
		t.Stop()
	}
	w.debounceTimers[runID] = time.AfterFunc(time.Duration(w.debounceMs)*time.Millisecond, func() {
		w.onChange(runID)
	})
}
