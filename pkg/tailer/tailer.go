// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package tailer implements crash-safe incremental ingestion of a run's
// events.jsonl into the projection: read from the last recorded
// byte offset, ingest idempotently, and advance the offset only after a
// successful ingest, so a crash mid-ingest simply re-reads on restart.
package tailer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/eventlog"
	"github.com/teradata-labs/swarm/pkg/projection"
	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Error wraps an ingestion failure; the tailer's offset is guaranteed
// unchanged whenever this is returned.
type Error struct {
	RunID swarmtypes.RunID
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tailer: ingest failed for run %q: %v", e.RunID, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }

// Tailer ingests one or more runs' events.jsonl into a projection.DB.
type Tailer struct {
	db     *projection.DB
	layout *runstore.Layout
	logger *zap.Logger
}

// New builds a Tailer over db, reading run directories from layout.
func New(db *projection.DB, layout *runstore.Layout, logger *zap.Logger) *Tailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tailer{db: db, layout: layout, logger: logger}
}

// TailRun reads runID's events.jsonl from its last ingested offset and
// ingests any new complete lines. It returns the number of newly ingested
// events (0 if the file is missing or has not grown).
func (t *Tailer) TailRun(runID swarmtypes.RunID) (int, error) {
	path := t.layout.EventsPath(runID)

	lastOffset, _, err := t.db.GetIngestionOffset(runID)
	if err != nil {
		return 0, fmt.Errorf("tailer: read offset for %q: %w", runID, err)
	}

	events, newOffset, err := eventlog.ReadFromOffset(path, lastOffset)
	if err != nil {
		t.logger.Error("tailer: read events.jsonl failed", zap.String("run_id", string(runID)), zap.Error(err))
		return 0, nil
	}
	if len(events) == 0 {
		return 0, nil
	}

	maxSeq := int64(0)
	for _, e := range events {
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}

	ingested, err := t.db.IngestEvents(events, runID)
	if err != nil {
		// CRITICAL: offset is not advanced on failure, so the next call
		// re-reads from lastOffset and retries idempotently.
		return 0, &Error{RunID: runID, Err: err}
	}

	if err := t.db.SetIngestionOffset(runID, newOffset, maxSeq); err != nil {
		return 0, &Error{RunID: runID, Err: fmt.Errorf("advance offset: %w", err)}
	}

	t.logger.Debug("tailed run",
		zap.String("run_id", string(runID)),
		zap.Int64("offset_from", lastOffset), zap.Int64("offset_to", newOffset),
		zap.Int("ingested", ingested))
	return ingested, nil
}

// TailAllRuns tails every run directory under the layout's runs root,
// logging and skipping failures so one bad run never blocks the rest.
func (t *Tailer) TailAllRuns() map[swarmtypes.RunID]int {
	runs, err := t.layout.ListRuns()
	if err != nil {
		t.logger.Warn("tailer: list runs failed", zap.Error(err))
		return nil
	}

	results := make(map[swarmtypes.RunID]int)
	for _, runID := range runs {
		count, err := t.TailRun(runID)
		if err != nil {
			t.logger.Warn("tailer: tail_all_runs skipped a run", zap.String("run_id", string(runID)), zap.Error(err))
			continue
		}
		if count > 0 {
			results[runID] = count
		}
	}
	return results
}

// WatchRun polls runID at pollInterval, calling onBatch with the newly
// ingested count each time it is > 0, until ctx is canceled or (when
// stopOnComplete is set) a run_completed event has been ingested.
func (t *Tailer) WatchRun(ctx context.Context, runID swarmtypes.RunID, pollInterval time.Duration, stopOnComplete bool, onBatch func(int)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		count, err := t.TailRun(runID)
		if err == nil && count > 0 && onBatch != nil {
			onBatch(count)
		}

		if stopOnComplete {
			stats, statErr := t.db.GetRunStats(string(runID))
			if statErr == nil && stats != nil {
				switch swarmtypes.RunStatus(stats.Status) {
				case swarmtypes.RunSucceeded, swarmtypes.RunFailed, swarmtypes.RunCanceled:
					// one final tail to catch anything written between the
					// completion check and this read
					if final, err := t.TailRun(runID); err == nil && final > 0 && onBatch != nil {
						onBatch(final)
					}
					return nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RebuildRun re-ingests runID's events.jsonl from byte 0, used after a
// projection version mismatch or a manually deleted db file.
func (t *Tailer) RebuildRun(runID swarmtypes.RunID) (int, error) {
	if err := t.db.SetIngestionOffset(runID, 0, 0); err != nil {
		return 0, fmt.Errorf("tailer: reset offset for rebuild of %q: %w", runID, err)
	}
	return t.TailRun(runID)
}

// RebuildAll re-ingests every known run from byte 0.
func (t *Tailer) RebuildAll() (int, error) {
	runs, err := t.layout.ListRuns()
	if err != nil {
		return 0, fmt.Errorf("tailer: list runs for rebuild: %w", err)
	}

	total := 0
	for _, runID := range runs {
		n, err := t.RebuildRun(runID)
		if err != nil {
			t.logger.Warn("tailer: rebuild skipped a run", zap.String("run_id", string(runID)), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}
