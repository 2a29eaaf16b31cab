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
package observability

// Standard span names for consistency across the orchestration core.
// Use these constants instead of hardcoding strings.
const (
	// Run / flow spans
	SpanRunExecution  = "run.execution"
	SpanFlowExecution = "flow.execution"
	SpanStepHydrate   = "step.hydrate"
	SpanStepWork      = "step.work"
	SpanStepFinalize  = "step.finalize"
	SpanStepRoute     = "step.route"

	// Routing driver spans
	SpanRouteDeterministic = "route.deterministic"
	SpanRouteResolver      = "route.resolver"
	SpanRouteStallCheck    = "route.stall_check"

	// Fork/join spans
	SpanForkDispatch = "fork.dispatch"
	SpanJoinAwait    = "join.await"

	// Autopilot spans
	SpanAutopilotTick       = "autopilot.tick"
	SpanAutopilotFlow       = "autopilot.flow"
	SpanAutopilotEvolution  = "autopilot.evolution"
	SpanAutopilotEvolveStep = "autopilot.evolution.step"

	// Event and projection spans
	SpanEventAppend      = "event.append"
	SpanTailerIngest     = "tailer.ingest"
	SpanProjectionRebuild = "projection.rebuild"
	SpanProjectionQuery  = "projection.query"

	// Diff and test-output spans
	SpanDiffScan        = "diff.scan"
	SpanTestOutputParse = "test_output.parse"
)

// Standard metric names for consistency.
const (
	MetricStepsExecuted    = "orchestrator.steps.total"
	MetricStepDuration     = "orchestrator.step.duration_ms"
	MetricStepErrors       = "orchestrator.step.errors.total"
	MetricMicroloopIters   = "orchestrator.microloop.iterations"
	MetricEnvelopeFallback = "orchestrator.envelope.fallback.total"

	MetricEventsAppended   = "eventlog.events.appended.total"
	MetricTailerIngested   = "tailer.events.ingested.total"
	MetricTailerOffset     = "tailer.byte_offset"
	MetricProjectionErrors = "projection.errors.total"

	MetricAutopilotFlowsCompleted = "autopilot.flows.completed.total"
	MetricAutopilotFlowsFailed    = "autopilot.flows.failed.total"

	MetricForkJoinBranches = "fork_join.branches.total"
)

// Standard attribute names for consistency.
// Use these constants for span and event attributes.
const (
	AttrRunID    = "run.id"
	AttrFlowKey  = "flow.key"
	AttrStepID   = "step.id"
	AttrAgentKey = "agent.key"

	AttrRoutingDecision  = "routing.decision"
	AttrRoutingSource    = "routing.source"
	AttrRoutingConfident = "routing.confidence"

	AttrEnvelopeStatus = "envelope.status"
	AttrEnvelopeSource = "envelope.source"

	AttrEventKind = "event.kind"
	AttrEventSeq  = "event.seq"

	AttrAutopilotStatus = "autopilot.status"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)
