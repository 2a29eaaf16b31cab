// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package handoff implements the unified envelope draft/commit write path
// and the envelope-first routing primitives.
package handoff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/schema"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// StrictEnvelopeValidationEnv is the environment flag from 
const StrictEnvelopeValidationEnv = "SWARM_STRICT_ENVELOPE_VALIDATION"

// IO writes and reads handoff envelopes for one Layout.
type IO struct {
	layout *runstore.Layout
	logger *zap.Logger
	strict bool
}

// New builds an IO. strict overrides the environment flag for tests;
// pass nil to read SWARM_STRICT_ENVELOPE_VALIDATION from the process
// environment instead.
func New(layout *runstore.Layout, logger *zap.Logger, strict *bool) *IO {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := os.Getenv(StrictEnvelopeValidationEnv) == "true"
	if strict != nil {
		s = *strict
	}
	return &IO{layout: layout, logger: logger, strict: s}
}

// WriteDraft writes the working draft envelope, per step (1).
func (io *IO) WriteDraft(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, e *swarmtypes.HandoffEnvelope) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	path := io.layout.HandoffDraftPath(runID, flowKey, e.StepID)
	return writeEnvelopeFile(path, e)
}

// Commit writes the committed envelope, validating against the envelope
// JSON schema first when strict mode is on, and logging (but not
// aborting) the same violations otherwise.
func (io *IO) Commit(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, e *swarmtypes.HandoffEnvelope) error {
	if err := os.MkdirAll(filepath.Dir(io.layout.HandoffCommittedPath(runID, flowKey, e.StepID)), 0o750); err != nil {
		return fmt.Errorf("handoff: ensure handoff dir: %w", err)
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if violations := schema.ValidateEnvelope(e); len(violations) > 0 {
		if io.strict {
			return fmt.Errorf("handoff: envelope for step %q violates schema: %v", e.StepID, violations)
		}
		io.logger.Warn("envelope schema violations (non-strict)",
			zap.String("step_id", string(e.StepID)),
			zap.Strings("violations", violations))
	}

	path := io.layout.HandoffCommittedPath(runID, flowKey, e.StepID)
	if err := writeEnvelopeFile(path, e); err != nil {
		return err
	}
	io.logger.Info("envelope committed",
		zap.String("run_id", string(runID)),
		zap.String("step_id", string(e.StepID)),
		zap.String("status", string(e.Status)))
	return nil
}

// Read reads the committed envelope for a step, or nil if it does not
// exist (fail-soft for reads).
func (io *IO) Read(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID) (*swarmtypes.HandoffEnvelope, error) {
	path := io.layout.HandoffCommittedPath(runID, flowKey, stepID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("handoff: read %s: %w", path, err)
	}
	var e swarmtypes.HandoffEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("handoff: parse %s: %w", path, err)
	}
	return &e, nil
}

// Exists reports whether a committed envelope already exists for a step
// without parsing it; used by the orchestrator's envelope invariant
// enforcement to decide whether a fallback is needed.
func (io *IO) Exists(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID) bool {
	_, err := os.Stat(io.layout.HandoffCommittedPath(runID, flowKey, stepID))
	return err == nil
}

// UpdateEnvelopeRouting reads the committed envelope, sets its routing
// signal, and rewrites it atomically (write-through per Invariant 5).
func (io *IO) UpdateEnvelopeRouting(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID, signal *swarmtypes.RoutingSignal) error {
	e, err := io.Read(runID, flowKey, stepID)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("handoff: no committed envelope for step %q; cannot attach routing signal", stepID)
	}
	e.RoutingSignal = signal
	return io.Commit(runID, flowKey, e)
}

// ReadRoutingFromEnvelope returns the routing_signal of a committed
// envelope if present. This is the envelope-first routing primitive the
// orchestrator consults before falling back to the routing driver.
func (io *IO) ReadRoutingFromEnvelope(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID) (*swarmtypes.RoutingSignal, error) {
	e, err := io.Read(runID, flowKey, stepID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return e.RoutingSignal, nil
}

func writeEnvelopeFile(path string, e *swarmtypes.HandoffEnvelope) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("handoff: ensure dir: %w", err)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("handoff: marshal envelope: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("handoff: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
