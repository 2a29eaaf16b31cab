// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package testparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

func TestParse_Pytest(t *testing.T) {
	raw := []byte(`{
		"summary": {"total": 3, "passed": 2, "failed": 1, "error": 0, "skipped": 0},
		"duration": 1.5,
		"tests": [
			{"nodeid": "test_a.py::test_one", "outcome": "passed"},
			{"nodeid": "test_b.py::test_two", "outcome": "failed", "call": {"longrepr": "assert 1 == 2"}}
		]
	}`)

	summary, err := Parse(swarmtypes.FormatPytest, raw)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Len(t, summary.ErrorSignatures, 1)
	assert.Len(t, summary.Failures[0].ErrorSignature, 16)
}

func TestParse_JUnit(t *testing.T) {
	raw := []byte(`<testsuite tests="2" failures="1" errors="0" skipped="0" time="0.5">
		<testcase name="t1"></testcase>
		<testcase name="t2"><failure message="boom">stack at /home/user/app.py:42</failure></testcase>
	</testsuite>`)

	summary, err := Parse(swarmtypes.FormatJUnit, raw)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "t2", summary.Failures[0].Name)
}

func TestErrorSignature_ScrubsPathsAndLines(t *testing.T) {
	sigA := ErrorSignature("test_x", "failed at /home/alice/app.py:42")
	sigB := ErrorSignature("test_x", "failed at /home/bob/app.py:99")
	assert.Equal(t, sigA, sigB)
	assert.Len(t, sigA, 16)
}
