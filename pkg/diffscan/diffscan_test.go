// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package diffscan

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run(), "git %v", args)
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	run("add", "a.txt")
	run("commit", "-m", "initial")
	return dir
}

func TestScan_NotARepo(t *testing.T) {
	s := NewScanner(t.TempDir())
	changes := s.Scan(context.Background())
	assert.NotEmpty(t, changes.ScanError)
}

func TestScan_ModifiedAndUntracked(t *testing.T) {
	dir := initRepo(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new file\n"), 0o644))

	s := NewScanner(dir)
	changes := s.Scan(context.Background())

	require.Empty(t, changes.ScanError)
	assert.Contains(t, changes.Untracked, "b.txt")

	var modified bool
	for _, f := range changes.Files {
		if f.Path == "a.txt" {
			modified = true
			assert.Equal(t, 1, f.Insertions)
		}
	}
	assert.True(t, modified, "expected a.txt to appear in the diff")
}
