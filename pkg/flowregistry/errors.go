// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package flowregistry loads flow and step definitions from YAML and
// exposes a read-only, load-once index over them.
package flowregistry

import "errors"

var (
	// ErrFileNotFound is returned when the top-level flows file is missing.
	ErrFileNotFound = errors.New("flowregistry: flows file not found")
	// ErrInvalidYAML is returned when a flows or steps file fails to parse.
	ErrInvalidYAML = errors.New("flowregistry: invalid YAML")
	// ErrInvalidFlow is returned when a flow's structure fails validation
	// (non-contiguous step indices, duplicate step ids, and so on).
	ErrInvalidFlow = errors.New("flowregistry: invalid flow definition")
)

// UnknownFlowIndex is the sentinel returned by GetIndex for an unknown key.
const UnknownFlowIndex = 99
