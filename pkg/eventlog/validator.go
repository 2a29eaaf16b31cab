// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package eventlog

import (
	"fmt"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Severity distinguishes a validator finding that must abort CI ("doctor
// --strict") from one that is merely surfaced.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is one validator complaint about a run's events.jsonl.
type Finding struct {
	Severity Severity
	Message  string
	Seq      int64
}

// Validate runs the checks enumerated over an ordered event
// slice. strict promotes every warning-class finding to an error.
func Validate(events []swarmtypes.RunEvent, strict bool) []Finding {
	var findings []Finding
	add := func(sev Severity, seq int64, format string, args ...any) {
		if strict && sev == SeverityWarning {
			sev = SeverityError
		}
		findings = append(findings, Finding{Severity: sev, Seq: seq, Message: fmt.Sprintf(format, args...)})
	}

	seenSeq := make(map[int64]bool)
	var lastSeq int64
	sawRunStart := false
	runCompleted := false
	startedSteps := make(map[swarmtypes.StepID]bool)
	endedSteps := make(map[swarmtypes.StepID]bool)
	openToolUses := make(map[string]bool)

	for _, e := range events {
		if seenSeq[e.Seq] {
			add(SeverityError, e.Seq, "duplicate seq %d", e.Seq)
		}
		seenSeq[e.Seq] = true

		if e.Seq < lastSeq {
			add(SeverityError, e.Seq, "seq regression: %d after %d", e.Seq, lastSeq)
		} else if lastSeq != 0 && e.Seq > lastSeq+1 {
			add(SeverityWarning, e.Seq, "seq gap: %d after %d", e.Seq, lastSeq)
		}
		lastSeq = e.Seq

		switch swarmtypes.NormalizeKind(e.Kind) {
		case swarmtypes.EventRunCreated, swarmtypes.EventRunStarted:
			sawRunStart = true
		case swarmtypes.EventStepStart:
			startedSteps[e.StepID] = true
		case swarmtypes.EventStepEnd:
			if !startedSteps[e.StepID] {
				add(SeverityError, e.Seq, "step_end without step_start for step %q", e.StepID)
			}
			endedSteps[e.StepID] = true
		case swarmtypes.EventRunCompleted:
			runCompleted = true
		case swarmtypes.EventToolStart:
			if id, ok := e.Payload["tool_use_id"].(string); ok && id != "" {
				openToolUses[id] = true
			}
		case swarmtypes.EventToolEnd:
			if id, ok := e.Payload["tool_use_id"].(string); ok && id != "" {
				delete(openToolUses, id)
			}
		}

		if runCompleted {
			if k := swarmtypes.NormalizeKind(e.Kind); k == swarmtypes.EventStepStart {
				add(SeverityWarning, e.Seq, "orphan step_start after run_completed for step %q", e.StepID)
			}
			if e.Kind == swarmtypes.EventToolStart {
				add(SeverityWarning, e.Seq, "orphan tool_start after run_completed")
			}
		}
	}

	if !sawRunStart {
		add(SeverityWarning, 0, "missing run_created/run_started event")
	}

	return findings
}

// HasErrors reports whether any finding reached error severity.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
