// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package stepengine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens_NonEmptyStringPositive(t *testing.T) {
	n := estimateTokens("the quick brown fox jumps over the lazy dog")
	assert.Greater(t, n, 0)
}

func TestEstimateTokens_LongerTextMoreTokens(t *testing.T) {
	short := estimateTokens("hello world")
	long := estimateTokens(strings.Repeat("hello world ", 50))
	assert.Greater(t, long, short)
}

func TestEstimateTokens_Deterministic(t *testing.T) {
	s := "step summary: build completed, 3 files changed"
	a := estimateTokens(s)
	b := estimateTokens(s)
	assert.Equal(t, a, b)
}
