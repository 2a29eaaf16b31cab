// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package policy implements policy-gated evolution ( "Policy-gated
// evolution"): after a Wisdom flow completes, candidate spec patches it
// left behind are validated and, depending on the run's configured
// EvolutionApplyPolicy, either applied, recorded as a suggestion, or
// rejected. Every outcome is journaled and marked on disk; an applied or
// rejected marker keeps a patch from being reprocessed on a later
// boundary, while a suggested patch is processed again.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/teradata-labs/swarm/pkg/eventlog"
	"github.com/teradata-labs/swarm/pkg/observability"
	"github.com/teradata-labs/swarm/pkg/runstore"
	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Engine scans a completed Wisdom flow's output directory for candidate
// patches and processes them against a run's evolution policy.
type Engine struct {
	configRoot string
	layout     *runstore.Layout
	logger     *zap.Logger
	tracer     observability.Tracer
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithTracer attaches a tracer for evolution-patch metrics.
func WithTracer(t observability.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine builds an Engine. configRoot is the flow/station spec tree
// that patches are allowed to target; patches naming a path outside it
// are rejected by validation.
func NewEngine(configRoot string, layout *runstore.Layout, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{configRoot: configRoot, layout: layout, logger: logger, tracer: observability.NewNoOpTracer()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// patchesSubdir is where a Wisdom step deposits candidate patches, one
// JSON-encoded swarmtypes.EvolutionPatch per file.
const patchesSubdir = "patches"

// ProcessBoundary scans runID's flowKey output directory for unprocessed
// patches and applies, suggests, or rejects each one per policy. It
// satisfies autopilot.EvolutionProcessor.
func (e *Engine) ProcessBoundary(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, apply swarmtypes.EvolutionApplyPolicy, events *eventlog.Writer) (*swarmtypes.EvolutionSummary, map[string]string, error) {
	wisdomDir := e.layout.FlowBase(runID, flowKey)
	if _, err := os.Stat(wisdomDir); err != nil {
		e.logger.Warn("policy: wisdom directory not found, skipping evolution", zap.String("dir", wisdomDir))
		return &swarmtypes.EvolutionSummary{RunID: runID, GeneratedAt: time.Now().UTC(), Policy: apply}, nil, nil
	}

	emit(events, runID, flowKey, swarmtypes.EventEvolutionProcessingStarted, map[string]any{"policy": string(apply)})

	patches, err := e.scanPatches(wisdomDir)
	if err != nil {
		return nil, nil, fmt.Errorf("policy: scan patches: %w", err)
	}

	summary := &swarmtypes.EvolutionSummary{
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Policy:      apply,
	}

	for _, patch := range patches {
		suggestion := e.processOne(runID, flowKey, patch, apply, events)
		summary.Suggestions = append(summary.Suggestions, suggestion)
	}

	if err := e.writeSummary(wisdomDir, summary); err != nil {
		e.logger.Warn("policy: failed to write evolution_summary.json", zap.Error(err))
	}

	artifacts := collectMarkdownArtifacts(wisdomDir)

	emit(events, runID, flowKey, swarmtypes.EventEvolutionProcessingCompleted, map[string]any{
		"patches_processed": len(patches),
	})
	return summary, artifacts, nil
}

func (e *Engine) processOne(runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, patch swarmtypes.EvolutionPatch, policy swarmtypes.EvolutionApplyPolicy, events *eventlog.Writer) swarmtypes.EvolutionSuggestion {
	wisdomDir := e.layout.FlowBase(runID, flowKey)

	if markerExists(wisdomDir, patch.ID) {
		return swarmtypes.EvolutionSuggestion{Patch: patch, ActionTaken: swarmtypes.ActionRejected, Reason: "already processed"}
	}

	if errs := e.validate(patch); len(errs) > 0 {
		reason := strings.Join(errs, "; ")
		e.writeMarker(wisdomDir, "rejected", patch.ID, map[string]any{"reason": reason, "policy": string(policy)})
		emit(events, runID, flowKey, swarmtypes.EventEvolutionRejected, map[string]any{
			"patch_id": patch.ID, "target_path": patch.TargetPath, "reason": reason,
		})
		return swarmtypes.EvolutionSuggestion{Patch: patch, ActionTaken: swarmtypes.ActionRejected, Reason: reason}
	}

	shouldApply := false
	switch policy {
	case swarmtypes.PolicyAutoApplyAll:
		shouldApply = true
	case swarmtypes.PolicyAutoApplySafe:
		shouldApply = patch.IsAutoApplySafe()
	case swarmtypes.PolicySuggestOnly:
		shouldApply = false
	}

	if !shouldApply {
		e.writeMarker(wisdomDir, "suggested", patch.ID, map[string]any{"policy": string(policy)})
		emit(events, runID, flowKey, swarmtypes.EventEvolutionSuggested, map[string]any{
			"patch_id": patch.ID, "target_path": patch.TargetPath, "risk": string(patch.Risk), "confidence": string(patch.Confidence),
		})
		return swarmtypes.EvolutionSuggestion{Patch: patch, ActionTaken: swarmtypes.ActionSuggested}
	}

	backupPath, applyErr := e.apply(patch)
	if applyErr != nil {
		reason := applyErr.Error()
		e.writeMarker(wisdomDir, "rejected", patch.ID, map[string]any{"reason": reason, "policy": string(policy)})
		emit(events, runID, flowKey, swarmtypes.EventEvolutionRejected, map[string]any{
			"patch_id": patch.ID, "target_path": patch.TargetPath, "reason": reason,
		})
		return swarmtypes.EvolutionSuggestion{Patch: patch, ActionTaken: swarmtypes.ActionRejected, Reason: reason}
	}

	e.writeMarker(wisdomDir, "applied", patch.ID, map[string]any{"backup_path": backupPath, "policy": string(policy)})
	emit(events, runID, flowKey, swarmtypes.EventEvolutionApplied, map[string]any{
		"patch_id": patch.ID, "target_path": patch.TargetPath, "backup_path": backupPath,
	})
	e.tracer.RecordMetric("evolution_patches_applied_total", 1, map[string]string{"risk": string(patch.Risk)})
	return swarmtypes.EvolutionSuggestion{Patch: patch, ActionTaken: swarmtypes.ActionApplied, BackupPath: backupPath}
}

// validate checks a patch's structural soundness without touching
// disk beyond confirming the target file exists and the diff parses.
func (e *Engine) validate(patch swarmtypes.EvolutionPatch) []string {
	var errs []string
	if patch.ID == "" {
		errs = append(errs, "patch id is empty")
	}
	if patch.TargetPath == "" {
		errs = append(errs, "target_path is empty")
	}
	if patch.Diff == "" {
		errs = append(errs, "diff is empty")
	}
	if len(errs) > 0 {
		return errs
	}

	absTarget, err := e.resolveTarget(patch.TargetPath)
	if err != nil {
		return []string{err.Error()}
	}
	if _, err := os.Stat(absTarget); err != nil {
		errs = append(errs, fmt.Sprintf("target file does not exist: %s", patch.TargetPath))
		return errs
	}

	dmp := diffmatchpatch.New()
	if _, parseErr := dmp.PatchFromText(patch.Diff); parseErr != nil {
		errs = append(errs, fmt.Sprintf("diff does not parse: %v", parseErr))
	}
	return errs
}

// resolveTarget confines patch.TargetPath to configRoot, rejecting any
// path that escapes it via ".." components.
func (e *Engine) resolveTarget(targetPath string) (string, error) {
	abs := filepath.Join(e.configRoot, targetPath)
	rel, err := filepath.Rel(e.configRoot, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("target_path %q escapes config root", targetPath)
	}
	return abs, nil
}

// apply applies patch.Diff (diff-match-patch patch text) to its
// target file, writing a timestamped backup first.
func (e *Engine) apply(patch swarmtypes.EvolutionPatch) (backupPath string, err error) {
	absTarget, err := e.resolveTarget(patch.TargetPath)
	if err != nil {
		return "", err
	}

	original, err := os.ReadFile(absTarget)
	if err != nil {
		return "", fmt.Errorf("read target: %w", err)
	}

	dmp := diffmatchpatch.New()
	patches, parseErr := dmp.PatchFromText(patch.Diff)
	if parseErr != nil {
		return "", fmt.Errorf("parse diff: %w", parseErr)
	}

	patched, applied := dmp.PatchApply(patches, string(original))
	for _, ok := range applied {
		if !ok {
			return "", fmt.Errorf("one or more hunks failed to apply to %s", patch.TargetPath)
		}
	}

	backupDir := filepath.Join(e.configRoot, ".wisdom_backups")
	if err := os.MkdirAll(backupDir, 0o750); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	backupPath = filepath.Join(backupDir, patch.ID+"."+time.Now().UTC().Format("20060102T150405")+".bak")
	if err := os.WriteFile(backupPath, original, 0o640); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	if err := os.WriteFile(absTarget, []byte(patched), 0o640); err != nil {
		return "", fmt.Errorf("write patched file: %w", err)
	}
	return backupPath, nil
}

// scanPatches loads every swarmtypes.EvolutionPatch a Wisdom step
// deposited under wisdomDir/patches/*.patch.json.
func (e *Engine) scanPatches(wisdomDir string) ([]swarmtypes.EvolutionPatch, error) {
	dir := filepath.Join(wisdomDir, patchesSubdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []swarmtypes.EvolutionPatch
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".patch.json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			e.logger.Warn("policy: failed to read patch file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var patch swarmtypes.EvolutionPatch
		if err := json.Unmarshal(raw, &patch); err != nil {
			e.logger.Warn("policy: failed to parse patch file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		out = append(out, patch)
	}
	return out, nil
}

func markerExists(wisdomDir, patchID string) bool {
	for _, kind := range []string{"applied", "rejected"} {
		if _, err := os.Stat(markerPath(wisdomDir, kind, patchID)); err == nil {
			return true
		}
	}
	return false
}

func markerPath(wisdomDir, kind, patchID string) string {
	return filepath.Join(wisdomDir, fmt.Sprintf(".%s_%s", kind, patchID))
}

func (e *Engine) writeMarker(wisdomDir, kind, patchID string, fields map[string]any) {
	fields["marked_at"] = time.Now().UTC().Format(time.RFC3339)
	fields["patch_id"] = patchID
	raw, err := json.Marshal(fields)
	if err != nil {
		e.logger.Warn("policy: failed to marshal marker", zap.Error(err))
		return
	}
	if err := os.WriteFile(markerPath(wisdomDir, kind, patchID), raw, 0o640); err != nil {
		e.logger.Warn("policy: failed to write marker", zap.String("kind", kind), zap.Error(err))
	}
}

func (e *Engine) writeSummary(wisdomDir string, summary *swarmtypes.EvolutionSummary) error {
	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(wisdomDir, "evolution_summary.json"), raw, 0o640)
}

// collectMarkdownArtifacts indexes a flow directory's top-level *.md
// files by filename stem, mirroring the original's wisdom_artifacts map.
func collectMarkdownArtifacts(dir string) map[string]string {
	artifacts := map[string]string{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return artifacts
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ".md")
		artifacts[stem] = filepath.Join(dir, entry.Name())
	}
	return artifacts
}

func emit(events *eventlog.Writer, runID swarmtypes.RunID, flowKey swarmtypes.FlowKey, kind swarmtypes.EventKind, payload map[string]any) {
	if events == nil {
		return
	}
	_, _ = events.Append(swarmtypes.RunEvent{
		RunID:   runID,
		EventID: string(runID) + ":" + string(kind) + ":" + time.Now().UTC().Format(time.RFC3339Nano),
		Kind:    kind,
		FlowKey: flowKey,
		Payload: payload,
	})
}
