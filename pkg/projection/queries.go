// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package projection

import (
	"database/sql"
	"fmt"
)

// RunStats is one row of the runs table, shaped for UI consumption.
type RunStats struct {
	RunID       string
	Status      string
	SDLCStatus  string
	CreatedAt   string
	UpdatedAt   string
	StartedAt   sql.NullString
	CompletedAt sql.NullString
	Error       sql.NullString
}

// StepStats is one row of the steps table.
type StepStats struct {
	RunID      string
	FlowKey    string
	StepID     string
	AgentKey   sql.NullString
	Status     sql.NullString
	StartedAt  sql.NullString
	EndedAt    sql.NullString
	DurationMS sql.NullInt64
	Error      sql.NullString
}

// ToolBreakdown aggregates tool_calls by tool_name for one run.
type ToolBreakdown struct {
	ToolName      string
	CallCount     int64
	TotalMS       int64
	SuccessCount  int64
}

// GetRunStats returns one run's projected summary, or nil if unknown.
func (d *DB) GetRunStats(runID string) (*RunStats, error) {
	var r RunStats
	err := d.conn.QueryRow(`
		SELECT run_id, status, sdlc_status, created_at, updated_at, started_at, completed_at, error
		FROM runs WHERE run_id = ?
	`, runID).Scan(&r.RunID, &r.Status, &r.SDLCStatus, &r.CreatedAt, &r.UpdatedAt, &r.StartedAt, &r.CompletedAt, &r.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("projection: get run stats: %w", err)
	}
	return &r, nil
}

// GetStepStats returns every projected step for runID, in started_at order.
func (d *DB) GetStepStats(runID string) ([]StepStats, error) {
	rows, err := d.conn.Query(`
		SELECT run_id, flow_key, step_id, agent_key, status, started_at, ended_at, duration_ms, error
		FROM steps WHERE run_id = ? ORDER BY started_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("projection: get step stats: %w", err)
	}
	defer rows.Close()

	var out []StepStats
	for rows.Next() {
		var s StepStats
		if err := rows.Scan(&s.RunID, &s.FlowKey, &s.StepID, &s.AgentKey, &s.Status, &s.StartedAt, &s.EndedAt, &s.DurationMS, &s.Error); err != nil {
			return nil, fmt.Errorf("projection: scan step stats: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetToolBreakdown aggregates tool_calls by tool_name for runID.
func (d *DB) GetToolBreakdown(runID string) ([]ToolBreakdown, error) {
	rows, err := d.conn.Query(`
		SELECT tool_name, COUNT(*), COALESCE(SUM(duration_ms), 0), COALESCE(SUM(success), 0)
		FROM tool_calls WHERE run_id = ? GROUP BY tool_name ORDER BY tool_name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("projection: get tool breakdown: %w", err)
	}
	defer rows.Close()

	var out []ToolBreakdown
	for rows.Next() {
		var t ToolBreakdown
		if err := rows.Scan(&t.ToolName, &t.CallCount, &t.TotalMS, &t.SuccessCount); err != nil {
			return nil, fmt.Errorf("projection: scan tool breakdown: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetRecentRuns returns the most recently updated runs, newest first.
func (d *DB) GetRecentRuns(limit int) ([]RunStats, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(`
		SELECT run_id, status, sdlc_status, created_at, updated_at, started_at, completed_at, error
		FROM runs ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("projection: get recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunStats
	for rows.Next() {
		var r RunStats
		if err := rows.Scan(&r.RunID, &r.Status, &r.SDLCStatus, &r.CreatedAt, &r.UpdatedAt, &r.StartedAt, &r.CompletedAt, &r.Error); err != nil {
			return nil, fmt.Errorf("projection: scan recent runs: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetFileChanges returns every projected file-change row for runID.
func (d *DB) GetFileChanges(runID string) ([]map[string]any, error) {
	rows, err := d.conn.Query(`
		SELECT flow_key, step_id, path, change_kind, recorded_at FROM file_changes WHERE run_id = ? ORDER BY recorded_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("projection: get file changes: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var flowKey, stepID, path, kind, recordedAt string
		if err := rows.Scan(&flowKey, &stepID, &path, &kind, &recordedAt); err != nil {
			return nil, fmt.Errorf("projection: scan file changes: %w", err)
		}
		out = append(out, map[string]any{
			"flow_key": flowKey, "step_id": stepID, "path": path, "change_kind": kind, "recorded_at": recordedAt,
		})
	}
	return out, rows.Err()
}

// RoutingDecisionSummary aggregates routing_decisions for one run, shaped
// for the UI's routing-distribution panel.
type RoutingDecisionSummary struct {
	TotalDecisions  int64
	ByDecision      map[string]int64
	ByRoutingSource map[string]int64
	NeedsHumanCount int64
}

// GetRoutingDecisionSummary aggregates runID's projected routing decisions.
func (d *DB) GetRoutingDecisionSummary(runID string) (*RoutingDecisionSummary, error) {
	summary := &RoutingDecisionSummary{
		ByDecision:      map[string]int64{},
		ByRoutingSource: map[string]int64{},
	}

	rows, err := d.conn.Query(`SELECT decision, routing_source, needs_human FROM routing_decisions WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("projection: get routing decision summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var decision, source string
		var needsHuman int
		if err := rows.Scan(&decision, &source, &needsHuman); err != nil {
			return nil, fmt.Errorf("projection: scan routing decision: %w", err)
		}
		summary.TotalDecisions++
		summary.ByDecision[decision]++
		summary.ByRoutingSource[source]++
		if needsHuman != 0 {
			summary.NeedsHumanCount++
		}
	}
	return summary, rows.Err()
}
