// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Store provides atomic read/write access to a run's spec.json and
// meta.json against a Layout. A single orchestrator owns writes within a
// run; readers may run concurrently.
type Store struct {
	layout *Layout
	logger *zap.Logger
}

// NewStore builds a Store rooted at the given Layout.
func NewStore(layout *Layout, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{layout: layout, logger: logger}
}

// CreateRun materializes the run directory and writes spec.json plus an
// initial meta.json in RunPending status.
func (s *Store) CreateRun(runID swarmtypes.RunID, spec swarmtypes.RunSpec) error {
	base := s.layout.RunBase(runID)
	if err := os.MkdirAll(base, 0o750); err != nil {
		return fmt.Errorf("runstore: create run dir: %w", err)
	}

	if err := writeJSONAtomic(s.layout.SpecPath(runID), spec); err != nil {
		return fmt.Errorf("runstore: write spec.json: %w", err)
	}

	now := time.Now().UTC()
	summary := swarmtypes.RunSummary{
		ID:         runID,
		Spec:       spec,
		Status:     swarmtypes.RunPending,
		SDLCStatus: swarmtypes.SDLCUnknown,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := writeJSONAtomic(s.layout.MetaPath(runID), summary); err != nil {
		return fmt.Errorf("runstore: write meta.json: %w", err)
	}

	s.logger.Info("run created", zap.String("run_id", string(runID)))
	return nil
}

// ReadSpec reads spec.json.
func (s *Store) ReadSpec(runID swarmtypes.RunID) (*swarmtypes.RunSpec, error) {
	var spec swarmtypes.RunSpec
	if err := readJSON(s.layout.SpecPath(runID), &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ReadSummary reads meta.json.
func (s *Store) ReadSummary(runID swarmtypes.RunID) (*swarmtypes.RunSummary, error) {
	var summary swarmtypes.RunSummary
	if err := readJSON(s.layout.MetaPath(runID), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// UpdateSummary applies fn to the current summary and writes it back.
func (s *Store) UpdateSummary(runID swarmtypes.RunID, fn func(*swarmtypes.RunSummary)) error {
	summary, err := s.ReadSummary(runID)
	if err != nil {
		return err
	}
	fn(summary)
	summary.UpdatedAt = time.Now().UTC()
	return writeJSONAtomic(s.layout.MetaPath(runID), summary)
}

// EnsureFlowDirs creates the handoff/llm/receipts/forensics subdirectories
// for a flow, if they do not already exist.
func (s *Store) EnsureFlowDirs(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey) error {
	base := s.layout.FlowBase(runID, flowKey)
	for _, sub := range []string{"handoff", "llm", "receipts", "forensics"} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0o750); err != nil {
			return fmt.Errorf("runstore: ensure %s dir: %w", sub, err)
		}
	}
	return nil
}

// writeJSONAtomic writes v as indented JSON to a temp file in the same
// directory as path, then renames it into place so readers never observe
// a partial write.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readJSON reads and unmarshals path. A missing or malformed file is
// returned as a wrapped error to the caller, who decides whether that's fatal.
// The orchestrator treats a missing spec/meta as a genuine error since
// both are written at CreateRun time.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("runstore: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("runstore: parse %s: %w", path, err)
	}
	return nil
}
