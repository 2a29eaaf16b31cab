// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package swarmtypes holds the data model shared by every layer of the
// stepwise flow orchestrator: flow/step definitions, run records, handoff
// envelopes, routing signals and the event taxonomy.
package swarmtypes

import "github.com/google/uuid"

// RunID is an opaque, globally unique identifier for one orchestrator run.
type RunID string

// NewRunID mints a fresh RunID. Collisions are not expected to occur.
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// FlowKey is a short ASCII slug identifying a flow, e.g. "signal", "build".
type FlowKey string

// StepID is an ASCII identifier for a step within a flow. Step ids use
// underscores internally and never contain a hyphen; hyphens are reserved
// for agent keys so that filenames of the form "<step_id>-<agent_key>" can
// be split unambiguously.
type StepID string

// AgentKey identifies an agent persona; hyphens are permitted.
type AgentKey string

// BackendID identifies a run scheduler backend.
type BackendID string
