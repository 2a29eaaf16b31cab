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

// StepResult is the outcome of the engine's work phase.
type StepResult struct {
	StepID     StepID            `json:"step_id"`
	Status     string            `json:"status"`
	Output     string            `json:"output"`
	Error      string            `json:"error,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
}

// FinalizationResult is the outcome of the engine's finalize phase.
type FinalizationResult struct {
	Envelope    *HandoffEnvelope `json:"envelope"`
	HandoffData map[string]any   `json:"handoff_data,omitempty"`
	Events      []RunEvent       `json:"events,omitempty"`
}

// ContextPack is the preferred hydration artifact: pre-assembled summaries
// and upstream artifacts attached to a step before it runs.
type ContextPack struct {
	StepID           StepID              `json:"step_id"`
	PreviousEnvelopes []*HandoffEnvelope `json:"previous_envelopes,omitempty"`
	UpstreamArtifacts map[string]string  `json:"upstream_artifacts,omitempty"`
	Notes            []string            `json:"notes,omitempty"`
}

// VerificationConfig names artifacts a step must produce to be considered
// complete, used by the orchestrator's lightweight per-step verification.
type VerificationConfig struct {
	RequiredArtifacts []string `json:"required_artifacts,omitempty"`
}

// HandoffPlan tells the engine where to write the draft/committed envelope.
type HandoffPlan struct {
	Path string `json:"path"`
}

// PromptPlan is produced from a compiled spec (the preferred prompt-build
// path) and fully determines how the engine invokes the LLM for a step.
type PromptPlan struct {
	Model          string              `json:"model"`
	AllowedTools   []string            `json:"allowed_tools,omitempty"`
	PermissionMode string              `json:"permission_mode"`
	MaxTurns       int                 `json:"max_turns"`
	SandboxEnabled bool                `json:"sandbox_enabled"`
	Verification   VerificationConfig  `json:"verification"`
	Handoff        HandoffPlan         `json:"handoff"`
	PromptHash     string              `json:"prompt_hash"`
	Prompt         string              `json:"prompt"`
}

// PriorityClass is the admission priority of a history item in legacy
// (non-ContextPack) prompt assembly.
type PriorityClass int

const (
	PriorityLow      PriorityClass = 0
	PriorityMedium   PriorityClass = 1
	PriorityHigh     PriorityClass = 2
	PriorityCritical PriorityClass = 3
)

// TruncationInfo records how much of the candidate history was admitted
// into a legacy prompt; both the ContextPack and raw-history hydration
// paths must produce this same shape.
type TruncationInfo struct {
	Truncated          bool           `json:"truncated"`
	IncludedByPriority map[string]int `json:"included_by_priority"`
	DroppedCount       int            `json:"dropped_count"`
}

// ReceiptMode is how the engine actually executed ("stub" engines never
// call a real LLM; useful for tests and dry runs).
type ReceiptMode string

const (
	ReceiptModeStub ReceiptMode = "stub"
	ReceiptModeSDK  ReceiptMode = "sdk"
	ReceiptModeCLI  ReceiptMode = "cli"
)

// ExecutionMode distinguishes the per-step session pattern from the legacy
// three-call pattern.
type ExecutionMode string

const (
	ExecutionLegacy  ExecutionMode = "legacy"
	ExecutionSession ExecutionMode = "session"
)

// TokenUsage is the token accounting attached to a receipt.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// StepReceipt is the mandatory per-(step,agent) audit record.
type StepReceipt struct {
	EngineID      string        `json:"engine_id"`
	Mode          ReceiptMode   `json:"mode"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`

	RunID   RunID    `json:"run_id"`
	FlowKey FlowKey  `json:"flow_key"`
	StepID  StepID   `json:"step_id"`
	Agent   AgentKey `json:"agent_key"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
	Status      string    `json:"status"`

	Tokens TokenUsage `json:"tokens"`

	TranscriptPath      string           `json:"transcript_path"`
	HandoffEnvelopePath string           `json:"handoff_envelope_path,omitempty"`
	RoutingSignal       *RoutingSignal   `json:"routing_signal,omitempty"`
	ContextTruncation   *TruncationInfo  `json:"context_truncation,omitempty"`

	// RequestedMode/EffectiveMode differ when a fallback engine was used
	// in place of the one requested by engine_profile.
	RequestedMode string `json:"requested_mode,omitempty"`
	EffectiveMode string `json:"effective_mode,omitempty"`
	FallbackUsed  bool   `json:"fallback_used,omitempty"`
}

// --- Fork/Join ---

// ExecutionPolicy governs how a ParallelExecutor schedules fork branches.
type ExecutionPolicy string

const (
	ExecConcurrent ExecutionPolicy = "concurrent"
	ExecBatch      ExecutionPolicy = "batch"
)

// FailurePolicy governs how a ParallelExecutor reacts to a branch failure.
type FailurePolicy string

const (
	FailureContinueAll FailurePolicy = "continue_all"
	FailureFailFast    FailurePolicy = "fail_fast"
	FailureBestEffort  FailurePolicy = "best_effort"
)

// ForkConfig configures dispatch of a fork step's targets.
type ForkConfig struct {
	ExecutionPolicy ExecutionPolicy `json:"execution_policy"`
	BatchSize       int             `json:"batch_size,omitempty"`
	FailurePolicy   FailurePolicy   `json:"failure_policy"`
	Isolation       string          `json:"isolation,omitempty"`
	MaxWorkers      int             `json:"max_workers,omitempty"`
}

// JoinStrategy governs when a join is considered satisfied.
type JoinStrategy string

const (
	JoinAllComplete JoinStrategy = "all_complete"
	JoinAllVerified JoinStrategy = "all_verified"
	JoinAnyVerified JoinStrategy = "any_verified"
	JoinQuorum      JoinStrategy = "quorum"
)

// AggregateStatusMode governs how branch statuses combine at a join point.
type AggregateStatusMode string

const (
	AggregateWorst  AggregateStatusMode = "worst"
	AggregateBest   AggregateStatusMode = "best"
	AggregateStrict AggregateStatusMode = "strict"
)

// JoinConfig configures how a join point merges fork branch results.
type JoinConfig struct {
	Strategy        JoinStrategy        `json:"strategy"`
	QuorumCount     int                 `json:"quorum_count,omitempty"`
	MergeArtifacts  bool                `json:"merge_artifacts"`
	MergeConcerns   bool                `json:"merge_concerns"`
	AggregateStatus AggregateStatusMode `json:"aggregate_status"`
}

// BranchResult is one fork branch's outcome, produced by the
// ParallelExecutor and consumed at the join point.
type BranchResult struct {
	StepID   StepID           `json:"step_id"`
	Envelope *HandoffEnvelope `json:"envelope,omitempty"`
	Err      error            `json:"-"`
}
