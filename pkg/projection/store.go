// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package projection implements the tabular derived view of every run's
// events.jsonl: a SQLite-backed store, rebuildable at will, whose
// write path is restricted to the tailer's ingest bracket.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/observability"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// WriteGuardMode controls what happens when code outside the ingest
// bracket calls a write method ( SWARM_DB_PROJECTION_ONLY/_STRICT).
type WriteGuardMode int

const (
	// WriteGuardOpen allows writes from anywhere (tests, local tooling).
	WriteGuardOpen WriteGuardMode = iota
	// WriteGuardSilent drops direct writes outside the ingest bracket,
	// so legacy record_* call sites become silent no-ops.
	WriteGuardSilent
	// WriteGuardStrict raises an error on any direct write outside the
	// ingest bracket.
	WriteGuardStrict
)

// DB is the projection's SQLite-backed store.
type DB struct {
	path       string
	conn       *sql.DB
	migrator   *Migrator
	tracer     observability.Tracer
	logger     *zap.Logger
	guardMode  WriteGuardMode
	inIngest   bool
	NeedsRebuild bool
}

// Open opens (creating if absent) the projection at path, runs pending
// migrations, and renames-and-flags-for-rebuild on a version mismatch.
func Open(path string, guardMode WriteGuardMode, tracer observability.Tracer, logger *zap.Logger) (*DB, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	needsRebuild := false
	if _, err := os.Stat(path); err == nil {
		if mismatched, err := versionMismatch(path); err != nil {
			logger.Warn("projection: version check failed, treating as mismatch", zap.Error(err))
			needsRebuild = true
		} else if mismatched {
			old := fmt.Sprintf("%s.old.%d", path, time.Now().UTC().Unix())
			if err := os.Rename(path, old); err != nil {
				return nil, fmt.Errorf("projection: rename stale db: %w", err)
			}
			needsRebuild = true
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_fk=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("projection: open %s: %w", path, err)
	}

	migrator, err := NewMigrator(conn, tracer)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{
		path:         path,
		conn:         conn,
		migrator:     migrator,
		tracer:       tracer,
		logger:       logger,
		guardMode:    guardMode,
		NeedsRebuild: needsRebuild,
	}
	return db, nil
}

// versionMismatch opens path just far enough to compare its recorded
// migration version against ProjectionVersion, without running migrations.
func versionMismatch(path string) (bool, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var tableCount int
	if err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'",
	).Scan(&tableCount); err != nil {
		return false, err
	}
	if tableCount == 0 {
		return false, nil
	}
	var version int
	if err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return false, err
	}
	return version != ProjectionVersion, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

// Path returns the file this projection is backed by.
func (d *DB) Path() string { return d.path }

// withIngest runs fn with writes unconditionally permitted; this is the
// "ingest bracket" the tailer (and rebuild) are the only callers of.
func (d *DB) withIngest(fn func() error) error {
	d.inIngest = true
	defer func() { d.inIngest = false }()
	return fn()
}

// guardWrite enforces the configured WriteGuardMode for any write method
// invoked outside an ingest bracket.
func (d *DB) guardWrite(op string) error {
	if d.inIngest || d.guardMode == WriteGuardOpen {
		return nil
	}
	if d.guardMode == WriteGuardStrict {
		return fmt.Errorf("projection: write %q rejected outside ingest bracket", op)
	}
	d.logger.Debug("projection: dropped direct write outside ingest bracket", zap.String("op", op))
	return errSilentDrop
}

// errSilentDrop is a sentinel callers can ignore; IngestEvents and
// rebuild are the only legitimate sources of projection writes.
var errSilentDrop = fmt.Errorf("projection: write silently dropped")

// IsSilentDrop reports whether err is the sentinel returned when a
// guarded write is silently dropped in default (non-strict) mode.
func IsSilentDrop(err error) bool { return err == errSilentDrop }

// GetIngestionOffset returns the last recorded (byte_offset, last_seq)
// for runID, or (0, 0) if the run has never been ingested.
func (d *DB) GetIngestionOffset(runID swarmtypes.RunID) (int64, int64, error) {
	var offset, seq int64
	err := d.conn.QueryRow(
		"SELECT byte_offset, last_seq FROM ingestion_offsets WHERE run_id = ?",
		string(runID),
	).Scan(&offset, &seq)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("projection: read ingestion offset: %w", err)
	}
	return offset, seq, nil
}

// SetIngestionOffset records the tailer's new (byte_offset, last_seq) for
// runID. Only the tailer calls this, from inside the ingest bracket.
func (d *DB) SetIngestionOffset(runID swarmtypes.RunID, offset, seq int64) error {
	if err := d.guardWrite("set_ingestion_offset"); err != nil {
		if IsSilentDrop(err) {
			return nil
		}
		return err
	}
	_, err := d.conn.Exec(`
		INSERT INTO ingestion_offsets (run_id, byte_offset, last_seq) VALUES (?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET byte_offset = excluded.byte_offset, last_seq = excluded.last_seq
	`, string(runID), offset, seq)
	if err != nil {
		return fmt.Errorf("projection: set ingestion offset: %w", err)
	}
	return nil
}

// IngestEvents projects a batch of already-parsed events into the tabular
// store idempotently: re-ingesting the same events is a no-op because
// every write keys off (run_id, step_id, ...) primary keys or explicit
// dedup, never an autoincrement id.
func (d *DB) IngestEvents(events []swarmtypes.RunEvent, runID swarmtypes.RunID) (int, error) {
	ingested := 0
	err := d.withIngest(func() error {
		tx, err := d.conn.Begin()
		if err != nil {
			return fmt.Errorf("projection: begin ingest tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		for _, e := range events {
			if err := ingestOne(tx, e); err != nil {
				return fmt.Errorf("projection: ingest event %q: %w", e.EventID, err)
			}
			ingested++
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return ingested, nil
}

func ingestOne(tx *sql.Tx, e swarmtypes.RunEvent) error {
	ts := e.TS.UTC().Format(time.RFC3339Nano)

	switch swarmtypes.NormalizeKind(e.Kind) {
	case swarmtypes.EventRunCreated:
		_, err := tx.Exec(`
			INSERT INTO runs (run_id, status, created_at, updated_at) VALUES (?, 'pending', ?, ?)
			ON CONFLICT (run_id) DO UPDATE SET updated_at = excluded.updated_at
		`, string(e.RunID), ts, ts)
		return err

	case swarmtypes.EventRunStarted:
		_, err := tx.Exec(`
			INSERT INTO runs (run_id, status, started_at, updated_at) VALUES (?, 'running', ?, ?)
			ON CONFLICT (run_id) DO UPDATE SET status = 'running', started_at = excluded.started_at, updated_at = excluded.updated_at
		`, string(e.RunID), ts, ts)
		return err

	case swarmtypes.EventRunCompleted:
		status := "succeeded"
		if payloadString(e.Payload, "status") == string(swarmtypes.RunFailed) {
			status = "failed"
		}
		_, err := tx.Exec(`
			INSERT INTO runs (run_id, status, completed_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (run_id) DO UPDATE SET status = excluded.status, completed_at = excluded.completed_at, updated_at = excluded.updated_at
		`, string(e.RunID), status, ts, ts)
		return err

	case swarmtypes.EventRunCanceled:
		_, err := tx.Exec(`
			INSERT INTO runs (run_id, status, completed_at, updated_at) VALUES (?, 'canceled', ?, ?)
			ON CONFLICT (run_id) DO UPDATE SET status = 'canceled', completed_at = excluded.completed_at, updated_at = excluded.updated_at
		`, string(e.RunID), ts, ts)
		return err

	case swarmtypes.EventStepStart:
		_, err := tx.Exec(`
			INSERT INTO steps (run_id, flow_key, step_id, agent_key, status, started_at) VALUES (?, ?, ?, ?, 'running', ?)
			ON CONFLICT (run_id, flow_key, step_id) DO UPDATE SET started_at = excluded.started_at, agent_key = excluded.agent_key
		`, string(e.RunID), string(e.FlowKey), string(e.StepID), string(e.AgentKey), ts)
		return err

	case swarmtypes.EventStepEnd:
		status := payloadString(e.Payload, "status")
		errMsg := payloadString(e.Payload, "error")
		_, err := tx.Exec(`
			INSERT INTO steps (run_id, flow_key, step_id, status, ended_at, error) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, flow_key, step_id) DO UPDATE SET status = excluded.status, ended_at = excluded.ended_at, error = excluded.error
		`, string(e.RunID), string(e.FlowKey), string(e.StepID), status, ts, errMsg)
		return err

	case swarmtypes.EventToolStart:
		_, err := tx.Exec(`INSERT INTO tool_calls (run_id, step_id, tool_name, started_at) VALUES (?, ?, ?, ?)`,
			string(e.RunID), string(e.StepID), payloadString(e.Payload, "tool_name"), ts)
		return err

	case swarmtypes.EventToolEnd:
		success := 0
		if payloadString(e.Payload, "success") == "true" {
			success = 1
		}
		_, err := tx.Exec(`INSERT INTO tool_calls (run_id, step_id, tool_name, duration_ms, success) VALUES (?, ?, ?, ?, ?)`,
			string(e.RunID), string(e.StepID), payloadString(e.Payload, "tool_name"), payloadInt(e.Payload, "duration_ms"), success)
		return err

	case swarmtypes.EventFileChanges:
		paths, _ := e.Payload["paths"].([]any)
		for _, p := range paths {
			path, _ := p.(string)
			if path == "" {
				continue
			}
			if _, err := tx.Exec(`INSERT INTO file_changes (run_id, flow_key, step_id, path, change_kind, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
				string(e.RunID), string(e.FlowKey), string(e.StepID), path, payloadString(e.Payload, "change_kind"), ts); err != nil {
				return err
			}
		}
		return nil

	default:
		// every other kind (autopilot/evolution lifecycle, log, error,
		// backend_init) is journaled but has no dedicated projection table
		return nil
	}
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func payloadInt(payload map[string]any, key string) int64 {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// RecordRoutingDecision projects one routing signal for a step.
// IngestEvents does not call it; outside an ingest bracket it is subject
// to the write guard like any other write.
func (d *DB) RecordRoutingDecision(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID, signal *swarmtypes.RoutingSignal) error {
	if err := d.guardWrite("record_routing_decision"); err != nil {
		if IsSilentDrop(err) {
			return nil
		}
		return err
	}
	needsHuman := 0
	if signal.NeedsHuman {
		needsHuman = 1
	}
	_, err := d.conn.Exec(`
		INSERT INTO routing_decisions (run_id, flow_key, step_id, decision, next_step_id, routing_source, needs_human, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(runID), string(flowKey), string(stepID), string(signal.Decision), string(signal.NextStepID), signal.RoutingSource, needsHuman, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}
