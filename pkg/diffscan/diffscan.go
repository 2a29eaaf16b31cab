// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package diffscan captures forensic file-level changes between step
// boundaries by shelling out to the local git checkout.
package diffscan

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// DefaultTimeout bounds how long a single git invocation may run before
// the scan fails soft.
const DefaultTimeout = 30 * time.Second

// Scanner runs git in a working directory to compute changes since HEAD.
type Scanner struct {
	WorkDir string
	Timeout time.Duration
}

// NewScanner builds a Scanner rooted at workDir.
func NewScanner(workDir string) *Scanner {
	return &Scanner{WorkDir: workDir, Timeout: DefaultTimeout}
}

// Scan computes FileChanges since HEAD. It never returns an error: any
// failure is captured in FileChanges.ScanError so a diff-scan problem
// never aborts the step that requested it ( "fail-soft").
func (s *Scanner) Scan(ctx context.Context) swarmtypes.FileChanges {
	if !s.isRepo(ctx) {
		return swarmtypes.FileChanges{ScanError: "not a git repository"}
	}

	numstatOut, err := s.run(ctx, "diff", "HEAD", "--numstat", "--find-renames")
	if err != nil {
		return swarmtypes.FileChanges{ScanError: "git diff --numstat: " + err.Error()}
	}

	statusOut, err := s.run(ctx, "status", "--porcelain", "-uall")
	if err != nil {
		return swarmtypes.FileChanges{ScanError: "git status --porcelain: " + err.Error()}
	}

	numstat := parseNumstat(numstatOut)
	changes := parseStatus(statusOut)

	joinNumstat(changes.files, numstat)

	for _, f := range changes.files {
		changes.totals.TotalInsertions += f.Insertions
		changes.totals.TotalDeletions += f.Deletions
	}
	changes.totals.Files = changes.files
	changes.totals.Untracked = changes.untracked
	changes.totals.Staged = changes.staged

	return changes.totals
}

func (s *Scanner) isRepo(ctx context.Context) bool {
	_, err := s.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

func (s *Scanner) run(ctx context.Context, args ...string) (string, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = s.WorkDir
	out, err := cmd.Output()
	return string(out), err
}

type numstatEntry struct {
	insertions int
	deletions  int
	binary     bool
}

func parseNumstat(out string) map[string]numstatEntry {
	result := make(map[string]numstatEntry)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		ins, insErr := strconv.Atoi(fields[0])
		del, delErr := strconv.Atoi(fields[1])
		binary := insErr != nil || delErr != nil
		result[fields[2]] = numstatEntry{insertions: ins, deletions: del, binary: binary}
	}
	return result
}

type statusAccumulator struct {
	files     []swarmtypes.FileDiff
	untracked []string
	staged    []string
	totals    swarmtypes.FileChanges
}

// parseStatus parses `git status --porcelain -uall` lines of the form
// "XY path" or "XY old -> new" (renames), including untracked ("??") and
// staged (non-space, non-'?' index column) entries.
func parseStatus(out string) *statusAccumulator {
	acc := &statusAccumulator{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		indexCol := line[0]
		worktreeCol := line[1]
		rest := strings.TrimSpace(line[3:])

		var path, oldPath string
		if idx := strings.Index(rest, " -> "); idx >= 0 {
			oldPath = rest[:idx]
			path = rest[idx+4:]
		} else {
			path = rest
		}

		if indexCol == '?' && worktreeCol == '?' {
			acc.untracked = append(acc.untracked, path)
			acc.files = append(acc.files, swarmtypes.FileDiff{Path: path, Status: "??"})
			continue
		}

		status := string(indexCol)
		if indexCol == ' ' {
			status = string(worktreeCol)
		} else {
			acc.staged = append(acc.staged, path)
		}

		acc.files = append(acc.files, swarmtypes.FileDiff{Path: path, Status: status, OldPath: oldPath})
	}
	return acc
}

func joinNumstat(files []swarmtypes.FileDiff, numstat map[string]numstatEntry) {
	for i := range files {
		if entry, ok := numstat[files[i].Path]; ok {
			files[i].Insertions = entry.insertions
			files[i].Deletions = entry.deletions
		}
	}
}
