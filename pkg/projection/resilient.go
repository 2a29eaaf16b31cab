// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projection

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/observability"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Health reports the resilient wrapper's current view of the projection.
type Health struct {
	Healthy           bool
	ProjectionVersion int
	LastCheck         time.Time
	LastRebuild       time.Time
	RebuildCount      int
	ErrorCount        int
	LastError         string
	DBPath            string
	DBExists          bool
	NeedsRebuild      bool
}

// ResilientConfig configures a Resilient wrapper.
type ResilientConfig struct {
	DBPath                string
	AutoRebuild           bool
	MaxConsecutiveErrors  int
	RebuildOnError        bool
	GuardMode             WriteGuardMode
}

// Rebuilder is satisfied by *tailer.Tailer; declared here (rather than
// imported) to avoid a projection -> tailer import cycle, since tailer
// already imports projection.
type Rebuilder interface {
	RebuildAll() (int, error)
	RebuildRun(runID swarmtypes.RunID) (int, error)
	TailRun(runID swarmtypes.RunID) (int, error)
	TailAllRuns() map[swarmtypes.RunID]int
}

// Resilient wraps a DB so that API consumers never see a 500 because the
// projection vanished, fell behind, or hit a transient SQLite error: every
// query has a _Safe variant that logs and returns a zero value instead.
type Resilient struct {
	cfg    ResilientConfig
	tracer observability.Tracer
	logger *zap.Logger

	mu                 sync.Mutex
	db                 *DB
	tail               Rebuilder
	newTailer          func(*DB) Rebuilder
	health             Health
	consecutiveErrors  int
	initialized        bool
}

// NewResilient builds a Resilient wrapper. newTailer constructs the
// rebuilder (a *tailer.Tailer) bound to a freshly (re)opened DB; it is
// injected rather than imported directly to keep projection free of a
// dependency on tailer.
func NewResilient(cfg ResilientConfig, newTailer func(*DB) Rebuilder, tracer observability.Tracer, logger *zap.Logger) *Resilient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 5
	}
	return &Resilient{
		cfg:       cfg,
		newTailer: newTailer,
		tracer:    tracer,
		logger:    logger,
		health:    Health{DBPath: cfg.DBPath},
	}
}

// Initialize opens the projection, checking its version and triggering a
// rebuild if needed. Call once at startup.
func (r *Resilient) Initialize() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initializeLocked()
}

func (r *Resilient) initializeLocked() Health {
	if r.initialized {
		return r.health
	}

	db, err := Open(r.cfg.DBPath, r.cfg.GuardMode, r.tracer, r.logger)
	if err != nil {
		r.logger.Error("resilient projection: init failed", zap.Error(err))
		r.health.Healthy = false
		r.health.LastError = err.Error()
		r.health.ErrorCount++
		return r.health
	}

	r.db = db
	r.tail = r.newTailer(db)

	_, statErr := os.Stat(r.cfg.DBPath)
	r.health.DBExists = statErr == nil
	r.health.ProjectionVersion = ProjectionVersion

	if r.cfg.AutoRebuild && (db.NeedsRebuild || r.health.NeedsRebuild) {
		r.health.NeedsRebuild = true
		r.logger.Info("resilient projection: rebuilding from events.jsonl")
		r.triggerRebuildLocked()
	}

	r.health.Healthy = true
	r.health.LastCheck = time.Now().UTC()
	r.initialized = true
	r.consecutiveErrors = 0
	return r.health
}

func (r *Resilient) triggerRebuildLocked() {
	if r.tail == nil {
		return
	}
	n, err := r.tail.RebuildAll()
	if err != nil {
		r.health.LastError = err.Error()
		r.health.ErrorCount++
		r.logger.Error("resilient projection: rebuild failed", zap.Error(err))
		return
	}
	r.health.RebuildCount++
	r.health.LastRebuild = time.Now().UTC()
	r.health.NeedsRebuild = false
	r.logger.Info("resilient projection: rebuild complete", zap.Int("events_ingested", n))
}

// CheckHealth detects whether the db file was deleted out from under the
// process and, if so, reopens it and, when AutoRebuild is set, rebuilds it.
func (r *Resilient) CheckHealth() Health {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.cfg.DBPath); err != nil {
		r.logger.Warn("resilient projection: db file missing, rebuilding", zap.String("path", r.cfg.DBPath))
		r.health.DBExists = false
		r.health.NeedsRebuild = true
		if r.db != nil {
			r.db.Close()
			r.db = nil
		}
		r.initialized = false
		return r.initializeLocked()
	}

	r.health.DBExists = true
	r.health.LastCheck = time.Now().UTC()
	r.consecutiveErrors = 0
	return r.health
}

// RebuildAll re-ingests every run's events.jsonl from offset zero,
// for operator-triggered rebuilds (e.g. swarmctl rebuild --all).
func (r *Resilient) RebuildAll() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tail == nil {
		return 0, fmt.Errorf("projection: not initialized")
	}
	n, err := r.tail.RebuildAll()
	if err != nil {
		r.noteError(err)
		return n, err
	}
	r.health.RebuildCount++
	r.health.LastRebuild = time.Now().UTC()
	return n, nil
}

// RebuildRun re-ingests one run's events.jsonl from offset zero.
func (r *Resilient) RebuildRun(runID swarmtypes.RunID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tail == nil {
		return 0, fmt.Errorf("projection: not initialized")
	}
	n, err := r.tail.RebuildRun(runID)
	if err != nil {
		r.noteError(err)
		return n, err
	}
	r.health.RebuildCount++
	r.health.LastRebuild = time.Now().UTC()
	return n, nil
}

// Sweep incrementally ingests every run's events.jsonl from its last
// recorded offset, for the daemon's periodic catch-up pass.
func (r *Resilient) Sweep() map[swarmtypes.RunID]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tail == nil {
		return nil
	}
	n := r.tail.TailAllRuns()
	r.health.LastCheck = time.Now().UTC()
	return n
}

// SweepRun incrementally ingests one run's events.jsonl, for an
// fsnotify-triggered catch-up of the run that just changed.
func (r *Resilient) SweepRun(runID swarmtypes.RunID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tail == nil {
		return 0, fmt.Errorf("projection: not initialized")
	}
	n, err := r.tail.TailRun(runID)
	if err != nil {
		r.noteError(err)
		return n, err
	}
	r.health.LastCheck = time.Now().UTC()
	return n, nil
}

// Health returns the current health snapshot.
func (r *Resilient) Health() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.health
}

// Close shuts down the underlying projection.
func (r *Resilient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.initialized = false
	return err
}

func (r *Resilient) noteError(err error) {
	r.health.ErrorCount++
	r.health.LastError = err.Error()
	r.consecutiveErrors++
	if r.cfg.RebuildOnError && r.consecutiveErrors >= r.cfg.MaxConsecutiveErrors {
		r.logger.Info("resilient projection: multiple consecutive errors, checking health")
		go r.CheckHealth()
	}
}

// GetRunStatsSafe never returns an error: nil and a logged warning stand
// in for any underlying failure.
func (r *Resilient) GetRunStatsSafe(runID string) *RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		r.initializeLocked()
	}
	if r.db == nil {
		return nil
	}
	stats, err := r.db.GetRunStats(runID)
	if err != nil {
		r.logger.Warn("resilient projection: get_run_stats failed", zap.String("run_id", runID), zap.Error(err))
		r.noteError(err)
		return nil
	}
	return stats
}

// GetStepStatsSafe returns an empty slice, never nil+error, on failure.
func (r *Resilient) GetStepStatsSafe(runID string) []StepStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		r.initializeLocked()
	}
	if r.db == nil {
		return nil
	}
	stats, err := r.db.GetStepStats(runID)
	if err != nil {
		r.logger.Warn("resilient projection: get_step_stats failed", zap.String("run_id", runID), zap.Error(err))
		r.noteError(err)
		return nil
	}
	return stats
}

// GetToolBreakdownSafe returns an empty slice on failure.
func (r *Resilient) GetToolBreakdownSafe(runID string) []ToolBreakdown {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		r.initializeLocked()
	}
	if r.db == nil {
		return nil
	}
	out, err := r.db.GetToolBreakdown(runID)
	if err != nil {
		r.logger.Warn("resilient projection: get_tool_breakdown failed", zap.String("run_id", runID), zap.Error(err))
		r.noteError(err)
		return nil
	}
	return out
}

// GetRecentRunsSafe returns an empty slice on failure.
func (r *Resilient) GetRecentRunsSafe(limit int) []RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		r.initializeLocked()
	}
	if r.db == nil {
		return nil
	}
	out, err := r.db.GetRecentRuns(limit)
	if err != nil {
		r.logger.Warn("resilient projection: get_recent_runs failed", zap.Error(err))
		r.noteError(err)
		return nil
	}
	return out
}

// GetRoutingDecisionSummarySafe returns a zeroed summary on failure, never nil.
func (r *Resilient) GetRoutingDecisionSummarySafe(runID string) *RoutingDecisionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	empty := &RoutingDecisionSummary{ByDecision: map[string]int64{}, ByRoutingSource: map[string]int64{}}
	if !r.initialized {
		r.initializeLocked()
	}
	if r.db == nil {
		return empty
	}
	out, err := r.db.GetRoutingDecisionSummary(runID)
	if err != nil {
		r.logger.Warn("resilient projection: get_routing_decision_summary failed", zap.String("run_id", runID), zap.Error(err))
		r.noteError(err)
		return empty
	}
	return out
}
