// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package daemon implements swarmd, the long-running process that keeps
// the projection database caught up with every run's events.jsonl and
// exposes health, metrics, and a live event stream over HTTP. It owns no
// flow logic: swarmctl (or an external scheduler hitting its own
// autopilot runs) drives runs forward; swarmd only watches and projects.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/internal/app"
	"github.com/teradata-labs/swarm/pkg/eventlog"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Daemon wires the resilient projection's sweep loop to a cron-scheduled
// tick and, optionally, an fsnotify watcher for low-latency catch-up,
// and exposes /healthz, /metrics, and /events over HTTP.
type Daemon struct {
	app    *app.App
	logger *zap.Logger
	cfg    app.Config

	cron    *cron.Cron
	watcher *RunWatcher
	broker  *EventBroker
	httpSrv *http.Server

	offsetMu sync.Mutex
	offsets  map[swarmtypes.RunID]int64
}

// New builds a Daemon around an already-constructed App.
func New(a *app.App, cfg app.Config) *Daemon {
	return &Daemon{
		app:     a,
		logger:  a.Logger,
		cfg:     cfg,
		broker:  NewEventBroker(a.Logger),
		offsets: make(map[swarmtypes.RunID]int64),
	}
}

// Run starts the cron sweep, the optional fsnotify watcher, and the HTTP
// server, and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	d.cron = cron.New(cron.WithSeconds())
	if _, err := d.cron.AddFunc(d.cfg.SweepCron, func() { d.sweepAll() }); err != nil {
		return fmt.Errorf("daemon: invalid sweep_cron %q: %w", d.cfg.SweepCron, err)
	}
	d.cron.Start()
	defer d.cron.Stop()

	if d.cfg.EnableFSWatch {
		w, err := NewRunWatcher(d.app.Layout, d.logger, d.sweepRun)
		if err != nil {
			return fmt.Errorf("daemon: build fs watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("daemon: start fs watcher: %w", err)
		}
		d.watcher = w
		defer d.watcher.Stop()
	}

	d.httpSrv = &http.Server{
		Addr:         d.cfg.HTTPAddr,
		Handler:      newMux(d.app.Projection.Health, d.broker),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
	}
	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("daemon: http server listening", zap.String("addr", d.cfg.HTTPAddr))
		if err := d.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Catch up everything once at startup before waiting on cron/fsnotify.
	d.sweepAll()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return d.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (d *Daemon) sweepAll() {
	counts := d.app.Projection.Sweep()
	for runID := range counts {
		d.publishNew(runID)
	}
	runs, err := d.app.Layout.ListRuns()
	if err != nil {
		d.logger.Warn("daemon: list runs for sweep failed", zap.Error(err))
		return
	}
	for _, runID := range runs {
		if _, done := counts[runID]; !done {
			d.publishNew(runID)
		}
	}
}

func (d *Daemon) sweepRun(runID swarmtypes.RunID) {
	if _, err := d.app.Projection.SweepRun(runID); err != nil {
		d.logger.Warn("daemon: sweep run failed", zap.String("run_id", string(runID)), zap.Error(err))
	}
	d.publishNew(runID)
}

// publishNew reads events.jsonl for runID past the last byte offset this
// process has published and forwards each new event to the SSE broker.
// This offset is independent of the projection tailer's own offset
// bookkeeping: one is for durable ingestion, the other for best-effort
// live streaming.
func (d *Daemon) publishNew(runID swarmtypes.RunID) {
	d.offsetMu.Lock()
	from := d.offsets[runID]
	d.offsetMu.Unlock()

	events, next, err := eventlog.ReadFromOffset(d.app.Layout.EventsPath(runID), from)
	if err != nil {
		d.logger.Warn("daemon: read events for stream failed", zap.String("run_id", string(runID)), zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	d.offsetMu.Lock()
	d.offsets[runID] = next
	d.offsetMu.Unlock()

	for _, ev := range events {
		d.broker.Publish(runID, ev)
	}
}
