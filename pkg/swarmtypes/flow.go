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

// FlowDefinition is a named, ordered graph of steps loaded from the flow
// registry. It is immutable once constructed.
type FlowDefinition struct {
	Key           FlowKey          `json:"key" yaml:"key"`
	Index         int              `json:"index" yaml:"index"`
	Title         string           `json:"title" yaml:"title"`
	ShortTitle    string           `json:"short_title" yaml:"short_title"`
	Description   string           `json:"description" yaml:"description"`
	IsSDLC        bool             `json:"is_sdlc" yaml:"is_sdlc"`
	Steps         []StepDefinition `json:"steps" yaml:"steps"`
	CrossCutting  []AgentKey       `json:"cross_cutting" yaml:"cross_cutting"`
}

// StepDefinition is one node in a flow graph. Immutable once constructed.
type StepDefinition struct {
	ID            StepID         `json:"id" yaml:"id"`
	Index         int            `json:"index" yaml:"index"`
	Agents        []AgentKey     `json:"agents" yaml:"agents"`
	Role          string         `json:"role" yaml:"role"`
	TeachingNotes *TeachingNotes `json:"teaching_notes,omitempty" yaml:"teaching_notes,omitempty"`
	Routing       *StepRouting   `json:"routing,omitempty" yaml:"routing,omitempty"`
	EngineProfile *EngineProfile `json:"engine_profile,omitempty" yaml:"engine_profile,omitempty"`
}

// TeachingNotes documents the intent of a step for humans reading the flow
// definition; it has no effect on execution.
type TeachingNotes struct {
	Inputs      []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Emphasizes  []string `json:"emphasizes,omitempty" yaml:"emphasizes,omitempty"`
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// EngineProfile carries per-step overrides of the engine's default behavior.
type EngineProfile struct {
	TimeoutMS         int64  `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Model             string `json:"model,omitempty" yaml:"model,omitempty"`
	PermissionMode    string `json:"permission_mode,omitempty" yaml:"permission_mode,omitempty"`
	SandboxEnabled    bool   `json:"sandbox_enabled,omitempty" yaml:"sandbox_enabled,omitempty"`
	GateStatusOnFail  string `json:"gate_status_on_fail,omitempty" yaml:"gate_status_on_fail,omitempty"`
}

// RoutingKind tags the variant held by a StepRouting value.
type RoutingKind string

const (
	RoutingLinear    RoutingKind = "linear"
	RoutingMicroloop RoutingKind = "microloop"
	RoutingBranch    RoutingKind = "branch"
	RoutingTerminal  RoutingKind = "terminal"
	RoutingFork      RoutingKind = "fork"
	RoutingJoin      RoutingKind = "join"
)

// StepRouting is a tagged union over the six routing shapes a step can
// declare. Code reads the fields relevant to Kind; the registry loader
// copies the routing block as written and does not reject fields that
// belong to another kind.
type StepRouting struct {
	Kind RoutingKind `json:"kind" yaml:"kind"`

	// linear
	Next StepID `json:"next,omitempty" yaml:"next,omitempty"`

	// microloop
	LoopTarget        StepID   `json:"loop_target,omitempty" yaml:"loop_target,omitempty"`
	LoopConditionField string  `json:"loop_condition_field,omitempty" yaml:"loop_condition_field,omitempty"`
	LoopSuccessValues []string `json:"loop_success_values,omitempty" yaml:"loop_success_values,omitempty"`
	MaxIterations     int      `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`

	// branch
	Branches map[string]StepID `json:"branches,omitempty" yaml:"branches,omitempty"`

	// fork
	ForkTargets []StepID `json:"fork_targets,omitempty" yaml:"fork_targets,omitempty"`

	// join
	JoinPoint bool `json:"join_point,omitempty" yaml:"join_point,omitempty"`
}

// IsLoopSuccess reports whether status is one of the microloop's configured
// success values, matched case-insensitively.
func (r *StepRouting) IsLoopSuccess(status string) bool {
	for _, v := range r.LoopSuccessValues {
		if equalFold(v, status) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// AgentPosition records one place an agent appears in the flow graph.
// Cross-cutting agents carry StepID == "" and StepIndex == 0.
type AgentPosition struct {
	FlowKey   FlowKey
	StepID    StepID
	FlowIndex int
	StepIndex int
}
