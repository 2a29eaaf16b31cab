// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package flowregistry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/swarm/pkg/swarmtypes"
)

// flowsFileYAML is the top-level flows.yaml shape: a flat list of flow
// headers. The steps for each flow live in a sibling per-flow YAML file
// named "<key>.yaml".
type flowsFileYAML struct {
	Flows []flowHeaderYAML `yaml:"flows"`
}

type flowHeaderYAML struct {
	Key         string `yaml:"key"`
	Index       int    `yaml:"index"`
	Title       string `yaml:"title"`
	ShortTitle  string `yaml:"short_title"`
	Description string `yaml:"description"`
	IsSDLC      bool   `yaml:"is_sdlc"`
}

type stepsFileYAML struct {
	Steps        []stepYAML `yaml:"steps"`
	CrossCutting []string   `yaml:"cross_cutting"`
}

type stepYAML struct {
	ID            string                     `yaml:"id"`
	Agents        []string                   `yaml:"agents"`
	Role          string                     `yaml:"role"`
	TeachingNotes *swarmtypes.TeachingNotes  `yaml:"teaching_notes,omitempty"`
	Routing       *swarmtypes.StepRouting    `yaml:"routing,omitempty"`
	EngineProfile *swarmtypes.EngineProfile  `yaml:"engine_profile,omitempty"`
}

// loadFlowsFile reads and parses the top-level flows YAML.
func loadFlowsFile(path string) (*flowsFileYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("flowregistry: reading %s: %w", path, err)
	}

	var parsed flowsFileYAML
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	return &parsed, nil
}

// loadStepsFile reads a per-flow steps YAML. A missing file is NOT an
// error here: the caller treats it as an empty flow.
func loadStepsFile(path string) (*stepsFileYAML, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("flowregistry: reading %s: %w", path, err)
	}

	var parsed stepsFileYAML
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	return &parsed, true, nil
}

func stepsFilePath(configRoot, flowKey string) string {
	return filepath.Join(configRoot, flowKey+".yaml")
}

func convertSteps(raw []stepYAML) []swarmtypes.StepDefinition {
	steps := make([]swarmtypes.StepDefinition, 0, len(raw))
	for i, s := range raw {
		agents := make([]swarmtypes.AgentKey, 0, len(s.Agents))
		for _, a := range s.Agents {
			agents = append(agents, swarmtypes.AgentKey(a))
		}
		steps = append(steps, swarmtypes.StepDefinition{
			ID:            swarmtypes.StepID(s.ID),
			Index:         i + 1,
			Agents:        agents,
			Role:          s.Role,
			TeachingNotes: s.TeachingNotes,
			Routing:       s.Routing,
			EngineProfile: s.EngineProfile,
		})
	}
	return steps
}

func convertCrossCutting(raw []string) []swarmtypes.AgentKey {
	out := make([]swarmtypes.AgentKey, 0, len(raw))
	for _, a := range raw {
		out = append(out, swarmtypes.AgentKey(a))
	}
	return out
}
