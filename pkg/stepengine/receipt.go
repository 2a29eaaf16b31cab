// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// ReceiptWriter writes the mandatory per-(step,agent) audit record (
// "Each engine MUST produce exactly one receipt per step").
type ReceiptWriter struct {
	layout *runstore.Layout
}

// NewReceiptWriter builds a ReceiptWriter rooted at layout.
func NewReceiptWriter(layout *runstore.Layout) *ReceiptWriter {
	return &ReceiptWriter{layout: layout}
}

// Write persists r at its canonical path, creating parent directories as
// needed. Every engine invocation writes exactly one receipt, including
// stub-mode invocations.
func (w *ReceiptWriter) Write(r *swarmtypes.StepReceipt) error {
	path := w.layout.ReceiptPath(r.RunID, r.FlowKey, r.StepID, r.Agent)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("stepengine: ensure receipts dir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("stepengine: marshal receipt: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("stepengine: write receipt: %w", err)
	}
	return os.Rename(tmp, path)
}
