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

// RunSpec is the immutable configuration a run was started with.
type RunSpec struct {
	FlowKeys        []FlowKey         `json:"flow_keys"`
	ProfileID       string            `json:"profile_id,omitempty"`
	Backend         BackendID         `json:"backend"`
	Initiator       string            `json:"initiator"`
	Params          map[string]string `json:"params,omitempty"`
	NoHumanMidFlow  bool              `json:"no_human_mid_flow"`
}

// RunStatus is the coarse lifecycle state of a run, persisted in meta.json.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// SDLCStatus reflects whether the SDLC portion of a run produced a clean
// outcome, independent of the coarser RunStatus.
type SDLCStatus string

const (
	SDLCUnknown SDLCStatus = "unknown"
	SDLCOK      SDLCStatus = "ok"
	SDLCError   SDLCStatus = "error"
)

// RunSummary is the content of meta.json: status and timestamps for a run.
type RunSummary struct {
	ID          RunID      `json:"id"`
	Spec        RunSpec    `json:"spec"`
	Status      RunStatus  `json:"status"`
	SDLCStatus  SDLCStatus `json:"sdlc_status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// RunState is the per-flow scratchpad an orchestrator carries across steps:
// loop counters, a flat execution history and an interruption stack.
type RunState struct {
	RunID     RunID          `json:"run_id"`
	FlowKey   FlowKey        `json:"flow_key"`
	Status    RunStatus      `json:"status"`
	Timestamp time.Time      `json:"timestamp"`

	// LoopState is keyed "step_id:loop_target" -> iteration count.
	LoopState map[string]int `json:"loop_state"`

	History        []StepHistoryEntry `json:"history"`
	Interruptions  []string           `json:"interruptions,omitempty"`
	CurrentStepID  StepID             `json:"current_step_id,omitempty"`
}

// StepHistoryEntry records one completed step's outcome for use by
// downstream prompt assembly (history-priority budgeting).
type StepHistoryEntry struct {
	StepID    StepID    `json:"step_id"`
	AgentKey  AgentKey  `json:"agent_key"`
	Status    string    `json:"status"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// LoopKey builds the canonical "step:target" loop-state key.
func LoopKey(step, target StepID) string {
	return string(step) + ":" + string(target)
}

// NewRunState creates an empty RunState ready for a fresh flow execution.
func NewRunState(runID RunID, flowKey FlowKey) *RunState {
	return &RunState{
		RunID:     runID,
		FlowKey:   flowKey,
		Status:    RunPending,
		Timestamp: time.Now().UTC(),
		LoopState: make(map[string]int),
	}
}
