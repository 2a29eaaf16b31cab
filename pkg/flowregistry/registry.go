// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package flowregistry

import (
	"fmt"
	"sync"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// Registry is a process-wide, load-once, read-only index over a set of
// flow definitions. Construct one per config root; Reset is test-only.
type Registry struct {
	flowsInOrder []*swarmtypes.FlowDefinition
	byKey        map[swarmtypes.FlowKey]*swarmtypes.FlowDefinition
	agentIndex   map[swarmtypes.AgentKey][]swarmtypes.AgentPosition
}

// Load builds a Registry by reading "<configRoot>/flows.yaml" and, for
// each listed flow, "<configRoot>/<key>.yaml" for its steps.
func Load(configRoot string) (*Registry, error) {
	flowsFile, err := loadFlowsFile(flowsFilePath(configRoot))
	if err != nil {
		return nil, err
	}

	byKey := make(map[swarmtypes.FlowKey]*swarmtypes.FlowDefinition, len(flowsFile.Flows))
	ordered := make([]*swarmtypes.FlowDefinition, len(flowsFile.Flows))
	agentIndex := make(map[swarmtypes.AgentKey][]swarmtypes.AgentPosition)

	for _, hdr := range flowsFile.Flows {
		if hdr.Index < 1 || hdr.Index > len(flowsFile.Flows) {
			return nil, fmt.Errorf("%w: flow %q has out-of-range index %d", ErrInvalidFlow, hdr.Key, hdr.Index)
		}

		stepsRaw, found, err := loadStepsFile(stepsFilePath(configRoot, hdr.Key))
		if err != nil {
			return nil, err
		}

		def := &swarmtypes.FlowDefinition{
			Key:         swarmtypes.FlowKey(hdr.Key),
			Index:       hdr.Index,
			Title:       hdr.Title,
			ShortTitle:  hdr.ShortTitle,
			Description: hdr.Description,
			IsSDLC:      hdr.IsSDLC,
		}

		if found {
			def.Steps = convertSteps(stepsRaw.Steps)
			def.CrossCutting = convertCrossCutting(stepsRaw.CrossCutting)
		}

		if err := validateStepIndices(def); err != nil {
			return nil, err
		}

		if ordered[hdr.Index-1] != nil {
			return nil, fmt.Errorf("%w: duplicate flow index %d", ErrInvalidFlow, hdr.Index)
		}
		ordered[hdr.Index-1] = def
		byKey[def.Key] = def

		for idx, step := range def.Steps {
			for _, agent := range step.Agents {
				agentIndex[agent] = append(agentIndex[agent], swarmtypes.AgentPosition{
					FlowKey:   def.Key,
					StepID:    step.ID,
					FlowIndex: def.Index,
					StepIndex: idx + 1,
				})
			}
		}
		for _, agent := range def.CrossCutting {
			agentIndex[agent] = append(agentIndex[agent], swarmtypes.AgentPosition{
				FlowKey:   def.Key,
				FlowIndex: def.Index,
			})
		}
	}

	for i, d := range ordered {
		if d == nil {
			return nil, fmt.Errorf("%w: missing flow at index %d", ErrInvalidFlow, i+1)
		}
	}

	return &Registry{
		flowsInOrder: ordered,
		byKey:        byKey,
		agentIndex:   agentIndex,
	}, nil
}

func flowsFilePath(configRoot string) string {
	return configRoot + "/flows.yaml"
}

func validateStepIndices(def *swarmtypes.FlowDefinition) error {
	seen := make(map[swarmtypes.StepID]bool, len(def.Steps))
	for i, s := range def.Steps {
		if s.Index != i+1 {
			return fmt.Errorf("%w: flow %q step %q has non-contiguous index %d (want %d)",
				ErrInvalidFlow, def.Key, s.ID, s.Index, i+1)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: flow %q has duplicate step id %q", ErrInvalidFlow, def.Key, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// FlowOrder returns all flows in global order (index 1..N).
func (r *Registry) FlowOrder() []*swarmtypes.FlowDefinition {
	return r.flowsInOrder
}

// SDLCFlowKeys returns the keys of all is_sdlc=true flows, in order.
func (r *Registry) SDLCFlowKeys() []swarmtypes.FlowKey {
	keys := make([]swarmtypes.FlowKey, 0, len(r.flowsInOrder))
	for _, f := range r.flowsInOrder {
		if f.IsSDLC {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// GetFlow looks up a flow by key.
func (r *Registry) GetFlow(key swarmtypes.FlowKey) (*swarmtypes.FlowDefinition, bool) {
	f, ok := r.byKey[key]
	return f, ok
}

// GetSteps returns the steps of a flow, or nil if the key is unknown.
func (r *Registry) GetSteps(flowKey swarmtypes.FlowKey) []swarmtypes.StepDefinition {
	f, ok := r.byKey[flowKey]
	if !ok {
		return nil
	}
	return f.Steps
}

// GetStepIndex returns the 1-based index of stepID within flowKey, or 0 if
// either is not found.
func (r *Registry) GetStepIndex(flowKey swarmtypes.FlowKey, stepID swarmtypes.StepID) int {
	f, ok := r.byKey[flowKey]
	if !ok {
		return 0
	}
	for _, s := range f.Steps {
		if s.ID == stepID {
			return s.Index
		}
	}
	return 0
}

// GetAgentPositions returns every place an agent appears across all flows.
func (r *Registry) GetAgentPositions(agent swarmtypes.AgentKey) []swarmtypes.AgentPosition {
	return r.agentIndex[agent]
}

// SpecID returns the canonical "{index}-{key}" identifier for a flow.
func (r *Registry) SpecID(flowKey swarmtypes.FlowKey) string {
	f, ok := r.byKey[flowKey]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d-%s", f.Index, f.Key)
}

// GetIndex returns a flow's 1-based global index, or UnknownFlowIndex (99)
// if the key is not registered.
func (r *Registry) GetIndex(flowKey swarmtypes.FlowKey) int {
	f, ok := r.byKey[flowKey]
	if !ok {
		return UnknownFlowIndex
	}
	return f.Index
}

// TotalFlows returns the number of registered flows.
func (r *Registry) TotalFlows() int {
	return len(r.flowsInOrder)
}

// --- process-wide singleton, for convenience callers ---

var (
	globalMu       sync.RWMutex
	globalRegistry *Registry
)

// SetGlobal installs the process-wide registry accessor. Tests should
// prefer injecting a fresh *Registry rather than relying on this.
func SetGlobal(r *Registry) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRegistry = r
}

// Global returns the process-wide registry, or nil if none was installed.
func Global() *Registry {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRegistry
}

// ResetGlobal clears the process-wide registry. Test-only.
func ResetGlobal() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRegistry = nil
}
