// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package runstore implements the canonical on-disk layout for a run:
// spec.json, meta.json, events.jsonl, and the per-flow handoff/llm/
// receipts/forensics directories.
package runstore

import (
	"os"
	"path/filepath"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Layout resolves canonical file paths rooted at runsRoot.
type Layout struct {
	RunsRoot string
}

// NewLayout builds a Layout rooted at runsRoot.
func NewLayout(runsRoot string) *Layout {
	return &Layout{RunsRoot: runsRoot}
}

// RunBase is "<runs_root>/<run_id>".
func (l *Layout) RunBase(runID swarmtypes.RunID) string {
	return filepath.Join(l.RunsRoot, string(runID))
}

// FlowBase is "<runs_root>/<run_id>/<flow_key>".
func (l *Layout) FlowBase(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey) string {
	return filepath.Join(l.RunBase(runID), string(flowKey))
}

// SpecPath is "<run>/spec.json".
func (l *Layout) SpecPath(runID swarmtypes.RunID) string {
	return filepath.Join(l.RunBase(runID), "spec.json")
}

// MetaPath is "<run>/meta.json".
func (l *Layout) MetaPath(runID swarmtypes.RunID) string {
	return filepath.Join(l.RunBase(runID), "meta.json")
}

// EventsPath is "<run>/events.jsonl".
func (l *Layout) EventsPath(runID swarmtypes.RunID) string {
	return filepath.Join(l.RunBase(runID), "events.jsonl")
}

// ListRuns enumerates every run_id directory directly under RunsRoot, for
// callers (the tailer's tail_all_runs, a rebuild pass) that need to walk
// every run without a separate index. A missing RunsRoot yields no runs,
// not an error, since a fresh install has none yet.
func (l *Layout) ListRuns() ([]swarmtypes.RunID, error) {
	entries, err := os.ReadDir(l.RunsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []swarmtypes.RunID
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, swarmtypes.RunID(e.Name()))
		}
	}
	return runs, nil
}

// HandoffDraftPath is "<flow>/handoff/<step_id>.draft.json".
func (l *Layout) HandoffDraftPath(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID) string {
	return filepath.Join(l.FlowBase(runID, flowKey), "handoff", string(stepID)+".draft.json")
}

// HandoffCommittedPath is "<flow>/handoff/<step_id>.json".
func (l *Layout) HandoffCommittedPath(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID) string {
	return filepath.Join(l.FlowBase(runID, flowKey), "handoff", string(stepID)+".json")
}

// LLMTranscriptPath is "<flow>/llm/<step_id>-<agent_key>-<engine>.jsonl".
func (l *Layout) LLMTranscriptPath(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID, agentKey swarmtypes.AgentKey, engine string) string {
	name := string(stepID) + "-" + string(agentKey) + "-" + engine + ".jsonl"
	return filepath.Join(l.FlowBase(runID, flowKey), "llm", name)
}

// ReceiptPath is "<flow>/receipts/<step_id>-<agent_key>.json".
func (l *Layout) ReceiptPath(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID, agentKey swarmtypes.AgentKey) string {
	name := string(stepID) + "-" + string(agentKey) + ".json"
	return filepath.Join(l.FlowBase(runID, flowKey), "receipts", name)
}

// FileChangesPath is "<flow>/forensics/file_changes_<step_id>.json".
func (l *Layout) FileChangesPath(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID) string {
	name := "file_changes_" + string(stepID) + ".json"
	return filepath.Join(l.FlowBase(runID, flowKey), "forensics", name)
}

// ParseEngineFromTranscriptName splits a transcript filename of the form
// "<step_id>-<agent_key>-<engine>.jsonl" into its three parts. Step ids
// never contain '-' (they use '_'), so the engine is always the final
// hyphen-delimited token and the agent key is whatever hyphenated
// sequence remains between the first and last hyphen group.
func ParseEngineFromTranscriptName(name string) (stepID swarmtypes.StepID, agentKey swarmtypes.AgentKey, engine string, ok bool) {
	base := name
	if ext := filepath.Ext(base); ext == ".jsonl" {
		base = base[:len(base)-len(ext)]
	}

	firstDash := indexByte(base, '-')
	lastDash := lastIndexByte(base, '-')
	if firstDash < 0 || lastDash <= firstDash {
		return "", "", "", false
	}

	stepID = swarmtypes.StepID(base[:firstDash])
	agentKey = swarmtypes.AgentKey(base[firstDash+1 : lastDash])
	engine = base[lastDash+1:]
	return stepID, agentKey, engine, true
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}
