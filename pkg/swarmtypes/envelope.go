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
package swarmtypes

import "time"

// EnvelopeStatus is the outcome a step reports in its handoff envelope.
type EnvelopeStatus string

const (
	StatusVerified   EnvelopeStatus = "VERIFIED"
	StatusUnverified EnvelopeStatus = "UNVERIFIED"
	StatusPartial    EnvelopeStatus = "PARTIAL"
	StatusBlocked    EnvelopeStatus = "BLOCKED"
)

// statusRank gives the total order BLOCKED < UNVERIFIED < PARTIAL < VERIFIED
// used by join aggregation.
var statusRank = map[EnvelopeStatus]int{
	StatusBlocked:    0,
	StatusUnverified: 1,
	StatusPartial:    2,
	StatusVerified:   3,
}

// Rank returns the join aggregation rank of a status; unknown statuses rank
// below BLOCKED so they never silently win a "best" aggregation.
func (s EnvelopeStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// WorstOf returns the lowest-ranked status among a and b.
func WorstOf(a, b EnvelopeStatus) EnvelopeStatus {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}

// BestOf returns the highest-ranked status among a and b.
func BestOf(a, b EnvelopeStatus) EnvelopeStatus {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

// EnvelopeSource marks how a committed envelope came to exist.
type EnvelopeSource string

const (
	SourceLifecycle          EnvelopeSource = "lifecycle"
	SourceOrchestratorFallback EnvelopeSource = "orchestrator_fallback"
	SourceMinimalEnvelope    EnvelopeSource = "minimal_envelope"
)

// RoutingDecision is the canonical routing vocabulary a routing signal
// carries; aliases collapse onto these four values.
type RoutingDecision string

const (
	DecisionAdvance   RoutingDecision = "advance"
	DecisionLoop      RoutingDecision = "loop"
	DecisionTerminate RoutingDecision = "terminate"
	DecisionBranch    RoutingDecision = "branch"
)

// RoutingCandidate is one entry in a routing decision's audit trail.
type RoutingCandidate struct {
	Action     string  `json:"action"`
	TargetNode StepID  `json:"target_node,omitempty"`
	Reason     string  `json:"reason"`
	Priority   int     `json:"priority"`
	Source     string  `json:"source"`
	IsDefault  bool    `json:"is_default"`
}

// RoutingSignal is the decision record telling the orchestrator what to do
// next; it is attached to a committed envelope exactly once per step.
type RoutingSignal struct {
	Decision    RoutingDecision `json:"decision"`
	NextStepID  StepID          `json:"next_step_id,omitempty"`
	Route       string          `json:"route,omitempty"`
	Reason      string          `json:"reason"`
	Confidence  float64         `json:"confidence"`
	NeedsHuman  bool            `json:"needs_human"`

	RoutingSource      string             `json:"routing_source"`
	ChosenCandidateID  string             `json:"chosen_candidate_id,omitempty"`
	RoutingCandidates  []RoutingCandidate `json:"routing_candidates,omitempty"`
}

// FileDiff is one changed path within a FileChanges scan.
type FileDiff struct {
	Path        string `json:"path"`
	Status      string `json:"status"` // A, M, D, R, ...
	Insertions  int    `json:"insertions"`
	Deletions   int    `json:"deletions"`
	OldPath     string `json:"old_path,omitempty"`
}

// FileChanges is the forensic diff-scan result attached to an envelope.
type FileChanges struct {
	Files            []FileDiff `json:"files"`
	TotalInsertions  int        `json:"total_insertions"`
	TotalDeletions   int        `json:"total_deletions"`
	Untracked        []string   `json:"untracked,omitempty"`
	Staged           []string   `json:"staged,omitempty"`
	ScanError        string     `json:"scan_error,omitempty"`
}

// HandoffEnvelope is the durable, per-step record committed exactly once
// (with a write-through update for its routing signal).
type HandoffEnvelope struct {
	StepID   StepID  `json:"step_id"`
	FlowKey  FlowKey `json:"flow_key"`
	RunID    RunID   `json:"run_id"`

	Status  EnvelopeStatus `json:"status"`
	Summary string         `json:"summary"`

	Artifacts    map[string]string `json:"artifacts,omitempty"`
	FileChanges  FileChanges       `json:"file_changes"`
	RoutingSignal *RoutingSignal   `json:"routing_signal,omitempty"`

	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`

	// CanFurtherIterationHelp lets an agent tell the microloop driver that
	// another loop iteration is futile even though status isn't a success
	// value; nil means "unspecified" and the driver treats it as true.
	CanFurtherIterationHelp *bool `json:"can_further_iteration_help,omitempty"`

	EnvelopeSource EnvelopeSource `json:"_envelope_source"`
}
